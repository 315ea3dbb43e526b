package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bitfantasy/amb-mes/internal/mes/entity"
	"github.com/bitfantasy/amb-mes/internal/mes/events"
	"github.com/bitfantasy/amb-mes/internal/mes/repository"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var testNow = time.Date(2025, 4, 22, 9, 30, 0, 0, time.UTC)

var testSession = Session{UserID: "u-1", UserName: "Tester", Company: "AMB Test Co", RequestID: "req-1"}

func notFound(kind, key string) error {
	return errors.Join(repository.ErrNotFound, errors.New(kind+" "+key))
}

type fakeBatches struct {
	mu   sync.Mutex
	byID map[string]*entity.Batch
	// assigned 记录 CreateSubLots 的容器分配
	assigned map[string][]string
	conts    *fakeContainers
}

func newFakeBatches() *fakeBatches {
	return &fakeBatches{byID: map[string]*entity.Batch{}, assigned: map[string][]string{}}
}

func (f *fakeBatches) Create(_ context.Context, b *entity.Batch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, x := range f.byID {
		if x.Name == b.Name {
			return errors.New("duplicate name " + b.Name)
		}
	}
	cp := *b
	f.byID[b.ID] = &cp
	return nil
}

func (f *fakeBatches) FindByID(_ context.Context, id string) (*entity.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.byID[id]
	if !ok {
		return nil, notFound("batch", id)
	}
	cp := *b
	return &cp, nil
}

func (f *fakeBatches) FindByName(_ context.Context, name string) (*entity.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.byID {
		if b.Name == name {
			cp := *b
			return &cp, nil
		}
	}
	return nil, notFound("batch", name)
}

func (f *fakeBatches) List(_ context.Context, flt repository.BatchFilter) ([]entity.Batch, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []entity.Batch
	for _, b := range f.byID {
		if flt.Level != 0 && b.Level != flt.Level {
			continue
		}
		if flt.Keyword != "" && !strings.Contains(b.Name, flt.Keyword) {
			continue
		}
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, int64(len(out)), nil
}

func (f *fakeBatches) Update(_ context.Context, b *entity.Batch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[b.ID]; !ok {
		return notFound("batch", b.ID)
	}
	cp := *b
	f.byID[b.ID] = &cp
	return nil
}

func (f *fakeBatches) CountChildren(_ context.Context, parentID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, b := range f.byID {
		if b.ParentID != nil && *b.ParentID == parentID {
			n++
		}
	}
	return n, nil
}

func (f *fakeBatches) NameExists(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.byID {
		if b.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeBatches) CreateSubLots(ctx context.Context, subs []*entity.Batch, assign map[string][]string) error {
	for _, s := range subs {
		if err := f.Create(ctx, s); err != nil {
			return err
		}
	}
	f.mu.Lock()
	for id, cs := range assign {
		f.assigned[id] = cs
	}
	f.mu.Unlock()
	if f.conts != nil {
		for subID, ids := range assign {
			for _, cid := range ids {
				f.conts.setBatch(cid, subID)
			}
		}
	}
	return nil
}

type fakeContainers struct {
	mu    sync.Mutex
	byID  map[string]*entity.Container
	order []string
}

func newFakeContainers() *fakeContainers {
	return &fakeContainers{byID: map[string]*entity.Container{}}
}

func (f *fakeContainers) Create(_ context.Context, c *entity.Container) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *c
	f.byID[c.ID] = &cp
	f.order = append(f.order, c.ID)
	return nil
}

func (f *fakeContainers) FindByID(_ context.Context, id string) (*entity.Container, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[id]
	if !ok {
		return nil, notFound("container", id)
	}
	cp := *c
	return &cp, nil
}

func (f *fakeContainers) FindBySerial(_ context.Context, serial string) (*entity.Container, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.byID {
		if c.Serial == serial {
			cp := *c
			return &cp, nil
		}
	}
	return nil, notFound("container", serial)
}

func (f *fakeContainers) ListByBatch(_ context.Context, batchID string) ([]entity.Container, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []entity.Container
	for _, id := range f.order {
		c := f.byID[id]
		if c.BatchID != nil && *c.BatchID == batchID {
			out = append(out, *c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Serial < out[j].Serial })
	return out, nil
}

func (f *fakeContainers) Update(_ context.Context, c *entity.Container) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *c
	f.byID[c.ID] = &cp
	return nil
}

func (f *fakeContainers) setBatch(id, batchID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.byID[id]; ok {
		b := batchID
		c.BatchID = &b
	}
}

type fakeBOMs struct {
	mu    sync.Mutex
	boms  map[string]*entity.BOM
	items []entity.Item
	err   error
}

func newFakeBOMs() *fakeBOMs {
	return &fakeBOMs{boms: map[string]*entity.BOM{}}
}

func (f *fakeBOMs) CreateTree(_ context.Context, items []entity.Item, boms []*entity.BOM) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.items = append(f.items, items...)
	for _, b := range boms {
		cp := *b
		f.boms[b.ID] = &cp
	}
	return nil
}

func (f *fakeBOMs) FindByID(_ context.Context, id string) (*entity.BOM, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.boms[id]
	if !ok {
		return nil, notFound("bom", id)
	}
	cp := *b
	return &cp, nil
}

func (f *fakeBOMs) FindByName(_ context.Context, name string) (*entity.BOM, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.boms {
		if b.Name == name {
			cp := *b
			return &cp, nil
		}
	}
	return nil, notFound("bom", name)
}

func (f *fakeBOMs) FindByNames(_ context.Context, names []string) ([]entity.BOM, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	want := map[string]bool{}
	for _, n := range names {
		want[n] = true
	}
	var out []entity.BOM
	for _, b := range f.boms {
		if want[b.Name] {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeBOMs) ListByBatch(_ context.Context, batchID string) ([]entity.BOM, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []entity.BOM
	for _, b := range f.boms {
		if b.BatchID != nil && *b.BatchID == batchID {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Level != out[j].Level {
			return out[i].Level < out[j].Level
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (f *fakeBOMs) NameExists(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.boms {
		if b.Name == name {
			return true, nil
		}
	}
	return false, nil
}

type fakeCOAs struct {
	mu   sync.Mutex
	byID map[string]*entity.COA
}

func newFakeCOAs() *fakeCOAs {
	return &fakeCOAs{byID: map[string]*entity.COA{}}
}

func (f *fakeCOAs) Create(_ context.Context, c *entity.COA) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *c
	cp.Parameters = append([]entity.COAParameter(nil), c.Parameters...)
	f.byID[c.ID] = &cp
	return nil
}

func (f *fakeCOAs) FindByID(_ context.Context, id string) (*entity.COA, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[id]
	if !ok {
		return nil, notFound("coa", id)
	}
	cp := *c
	cp.Parameters = append([]entity.COAParameter(nil), c.Parameters...)
	return &cp, nil
}

func (f *fakeCOAs) ListByBatch(_ context.Context, batchID string) ([]entity.COA, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []entity.COA
	for _, c := range f.byID {
		if c.BatchID == batchID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeCOAs) Update(ctx context.Context, c *entity.COA) error {
	return f.Create(ctx, c)
}

type fakeItems struct {
	mu    sync.Mutex
	items map[string]entity.Item
}

func newFakeItems(items ...entity.Item) *fakeItems {
	f := &fakeItems{items: map[string]entity.Item{}}
	for _, it := range items {
		f.items[it.ItemCode] = it
	}
	return f
}

func (f *fakeItems) GetItem(_ context.Context, code string) (*entity.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.items[code]
	if !ok || it.Disabled {
		return nil, notFound("item", code)
	}
	return &it, nil
}

func (f *fakeItems) Upsert(_ context.Context, it *entity.Item) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[it.ItemCode] = *it
	return nil
}

func (f *fakeItems) List(_ context.Context, keyword string, _, _ int) ([]entity.Item, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []entity.Item
	for _, it := range f.items {
		if strings.Contains(it.ItemCode, keyword) {
			out = append(out, it)
		}
	}
	return out, int64(len(out)), nil
}

type fakeAudit struct {
	mu   sync.Mutex
	logs []*entity.AuditLog
	err  error
}

func (f *fakeAudit) Write(_ context.Context, l *entity.AuditLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.logs = append(f.logs, l)
	return nil
}

func (f *fakeAudit) actions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.logs))
	for _, l := range f.logs {
		out = append(out, l.Action)
	}
	return out
}

type fakeNotifier struct {
	mu    sync.Mutex
	sent  []Notification
	err   error
	panic bool
}

func (f *fakeNotifier) Notify(_ context.Context, _ string, n Notification) error {
	if f.panic {
		panic("notifier exploded")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, n)
	return nil
}

type fakeStorage struct {
	objects map[string][]byte
	err     error
}

func (f *fakeStorage) Put(_ context.Context, object string, data []byte, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	f.objects[object] = data
	return "mes-reports/" + object, nil
}

type fixture struct {
	svc        *Services
	batches    *fakeBatches
	containers *fakeContainers
	boms       *fakeBOMs
	coas       *fakeCOAs
	items      *fakeItems
	audit      *fakeAudit
	notifier   *fakeNotifier
	storage    *fakeStorage
	hub        *events.Hub
	logs       *observer.ObservedLogs
}

func defaultItems() []entity.Item {
	return []entity.Item{
		{ItemCode: "0227-ALOE-200X", ItemName: "Aloe Vera Gel 200X", StockUOM: "Kg", DefaultRate: 40},
		{ItemCode: "ALOE-BASE-LIQ", ItemName: "Aloe Base Liquid", StockUOM: "Kg", DefaultRate: 2},
		{ItemCode: "ELECTRIC-KWH", ItemName: "Electricity", StockUOM: "kWh", DefaultRate: 0.5},
		{ItemCode: "Q0-CARBON", ItemName: "Activated Carbon", StockUOM: "Kg", DefaultRate: 4},
		{ItemCode: "ALOE-200X", ItemName: "Aloe 200X", StockUOM: "Kg", DefaultRate: 30},
		{ItemCode: "E001-DRUM", ItemName: "Drum 220L", StockUOM: "Nos", DefaultRate: 12, NominalCapacity: 200},
		{ItemCode: "LABEL-X", ItemName: "Label", StockUOM: "Nos", DefaultRate: 0.1},
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	f := &fixture{
		batches:    newFakeBatches(),
		containers: newFakeContainers(),
		boms:       newFakeBOMs(),
		coas:       newFakeCOAs(),
		items:      newFakeItems(defaultItems()...),
		audit:      &fakeAudit{},
		notifier:   &fakeNotifier{},
		storage:    &fakeStorage{},
		hub:        events.NewHub(nil),
		logs:       logs,
	}
	f.batches.conts = f.containers
	f.svc = NewServices(Deps{
		Batches:    f.batches,
		Containers: f.containers,
		BOMs:       f.boms,
		COAs:       f.coas,
		Items:      f.items,
		Audit:      f.audit,
		Notifier:   f.notifier,
		Storage:    f.storage,
		Events:     f.hub,
		Logger:     zap.New(core),
		Options:    Options{NotifyChatID: "oc_test"},
		Now:        func() time.Time { return testNow },
	})
	return f
}
