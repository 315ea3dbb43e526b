package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bitfantasy/amb-mes/internal/mes/bomtree"
	"github.com/bitfantasy/amb-mes/internal/mes/entity"
	"github.com/bitfantasy/amb-mes/internal/mes/events"
	"github.com/bitfantasy/amb-mes/internal/mes/repository"
	"github.com/bitfantasy/amb-mes/internal/mes/sequence"
	"github.com/bitfantasy/amb-mes/internal/mes/service"
	"github.com/bitfantasy/amb-mes/internal/mes/testutil"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupMES(t *testing.T) (*gin.Engine, *gorm.DB, *events.Hub) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)
	hub := events.NewHub(nil)
	svc := service.NewServices(service.Deps{
		Batches:    repos.Batch,
		Containers: repos.Container,
		BOMs:       repos.BOM,
		COAs:       repos.COA,
		Items:      repos.Item,
		Sequence:   sequence.NewDBAllocator(db),
		Audit:      repos.Audit,
		Events:     hub,
	})
	health := NewHealthHandler("test", "now", CheckFunc{Label: "database", Fn: func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}})

	r := testutil.SetupRouter()
	RegisterRoutes(r, NewHandlers(svc, health, hub), testutil.JWTSecret)
	return r, db, hub
}

func dataOf(t *testing.T, resp map[string]interface{}) map[string]interface{} {
	t.Helper()
	data, ok := resp["data"].(map[string]interface{})
	require.True(t, ok, "response has no data object: %v", resp)
	return data
}

func TestBatchAPI_CreateSplitAndTransition(t *testing.T) {
	r, _, _ := setupMES(t)
	token := testutil.DefaultTestToken()

	w := testutil.DoRequest(r, "POST", "/api/v1/mes/batches", map[string]interface{}{
		"product_code": "0227",
		"work_order":   "MFG-WO-2024-00042",
		"year":         "2024",
		"plant":        "1",
		"item_code":    "0227-ALOE-200X",
		"planned_qty":  300,
	}, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	batch := dataOf(t, testutil.ParseResponse(w))
	assert.Equal(t, "0227042241", batch["name"])
	assert.Equal(t, testutil.TestCompany, batch["company"])
	id := batch["id"].(string)

	w = testutil.DoRequest(r, "POST", "/api/v1/mes/batches/"+id+"/sub-lots", map[string]int{"count": 3}, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	subs := dataOf(t, testutil.ParseResponse(w))["sub_lots"].([]interface{})
	require.Len(t, subs, 3)
	assert.Equal(t, "0227042241-3", subs[2].(map[string]interface{})["name"])

	w = testutil.DoRequest(r, "GET", "/api/v1/mes/batches?parent_id="+id, nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	list := dataOf(t, testutil.ParseResponse(w))
	assert.EqualValues(t, 3, list["pagination"].(map[string]interface{})["total"])

	w = testutil.DoRequest(r, "POST", "/api/v1/mes/batches/"+id+"/transition", map[string]string{"action": "approve"}, token)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.EqualValues(t, CodeInvalidTransition, testutil.ParseResponse(w)["code"])

	w = testutil.DoRequest(r, "POST", "/api/v1/mes/batches/"+id+"/transition", map[string]string{"action": "start"}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, entity.BatchStatusInProgress, dataOf(t, testutil.ParseResponse(w))["processing_status"])
}

func TestBatchAPI_HierarchyError(t *testing.T) {
	r, _, _ := setupMES(t)
	w := testutil.DoRequest(r, "POST", "/api/v1/mes/batches", map[string]interface{}{
		"level": 2, "item_code": "X", "planned_qty": 10,
	}, testutil.DefaultTestToken())
	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := testutil.ParseResponse(w)
	assert.EqualValues(t, CodeHierarchy, resp["code"])
	assert.Equal(t, false, resp["success"])
}

func TestBatchAPI_NotFound(t *testing.T) {
	r, _, _ := setupMES(t)
	w := testutil.DoRequest(r, "GET", "/api/v1/mes/batches/00000000-0000-0000-0000-000000000000", nil, testutil.DefaultTestToken())
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBatchAPI_RequiresPermission(t *testing.T) {
	r, _, _ := setupMES(t)
	readOnly := testutil.GenerateTestToken("viewer", "Viewer", testutil.TestCompany, nil, []string{"mes:batch:read"})

	w := testutil.DoRequest(r, "POST", "/api/v1/mes/batches", map[string]interface{}{"item_code": "X", "planned_qty": 1}, readOnly)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = testutil.DoRequest(r, "GET", "/api/v1/mes/batches", nil, readOnly)
	assert.Equal(t, http.StatusOK, w.Code)

	w = testutil.DoRequest(r, "GET", "/api/v1/mes/batches", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBOMAPI_GenerateAndExport(t *testing.T) {
	r, db, _ := setupMES(t)
	token := testutil.DefaultTestToken()
	testutil.SeedItem(t, db, "ALOE-BASE-LIQ", 2)
	testutil.SeedItem(t, db, "ELECTRIC-KWH", 0.5)
	testutil.SeedItem(t, db, "E001-DRUM", 12)

	w := testutil.DoRequest(r, "POST", "/api/v1/mes/batches", map[string]interface{}{
		"golden_number": "0227042241", "item_code": "0227", "planned_qty": 200,
	}, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := dataOf(t, testutil.ParseResponse(w))["id"].(string)

	w = testutil.DoRequest(r, "POST", "/api/v1/mes/batches/"+id+"/boms", map[string]interface{}{
		"sub_lots":   2,
		"precursors": []string{"ALOE-BASE-LIQ"},
		"candidates": []map[string]interface{}{
			{"item_code": "ELECTRIC-KWH", "qty": 20},
			{"item_code": "E001-DRUM", "qty": 4},
		},
	}, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	res := dataOf(t, testutil.ParseResponse(w))
	assert.Len(t, res["boms"], 1+2+4)
	rootID := res["root"].(map[string]interface{})["id"].(string)

	w = testutil.DoRequest(r, "GET", "/api/v1/mes/boms/"+rootID+"/explode?qty=100", nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	items := dataOf(t, testutil.ParseResponse(w))["items"].([]interface{})
	require.Len(t, items, 2)
	got := map[string]float64{}
	for _, it := range items {
		row := it.(map[string]interface{})
		got[row["item_code"].(string)] = row["qty"].(float64)
	}
	assert.InDelta(t, 10.0, got["ELECTRIC-KWH"], 1e-9)
	assert.InDelta(t, 2.0, got["E001-DRUM"], 1e-9)

	w = testutil.DoRequest(r, "GET", "/api/v1/mes/boms/"+rootID+"/export", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, service.XLSXContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment; filename=")

	w = testutil.DoRequest(r, "POST", "/api/v1/mes/batches/"+id+"/boms", map[string]interface{}{
		"precursors": []string{"NOT-THERE"},
	}, token)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRPC_Dispatch(t *testing.T) {
	r, _, _ := setupMES(t)
	token := testutil.DefaultTestToken()

	w := testutil.DoRequest(r, "POST", "/api/method/mes.golden.preview", map[string]string{
		"product_code": "0612", "consecutive": "7", "year": "2025", "plant": "2",
	}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := testutil.ParseResponse(w)
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, "0612007252", dataOf(t, resp)["golden_number"])

	w = testutil.DoRequest(r, "POST", "/api/method/mes.batch.create", map[string]interface{}{
		"golden_number": "0612007252", "item_code": "0612", "planned_qty": 50,
	}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = testutil.DoRequest(r, "POST", "/api/method/mes.batch.create", map[string]interface{}{
		"golden_number": "0612007252", "item_code": "0612", "planned_qty": 50,
	}, token)
	assert.Equal(t, http.StatusConflict, w.Code)
	resp = testutil.ParseResponse(w)
	assert.Equal(t, false, resp["success"])
	assert.Contains(t, resp["error"], "0612007252")

	w = testutil.DoRequest(r, "POST", "/api/method/mes.batch.get", map[string]string{"name": "0612007252"}, token)
	require.Equal(t, http.StatusOK, w.Code)

	w = testutil.DoRequest(r, "POST", "/api/method/mes.batch.create", map[string]interface{}{"bogus": 1}, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRPC_UnknownCommand(t *testing.T) {
	r := testutil.SetupRouter()
	h := &Handlers{RPC: &RPCHandler{commands: map[string]rpcFunc{}}, Health: NewHealthHandler("v", "b")}
	RegisterRoutes(r, h, testutil.JWTSecret)

	w := testutil.DoRequest(r, "POST", "/api/method/frappe.client.delete", nil, testutil.DefaultTestToken())
	assert.Equal(t, http.StatusNotFound, w.Code)
	resp := testutil.ParseResponse(w)
	assert.Equal(t, false, resp["success"])
	assert.EqualValues(t, CodeUnknownRPCCommand, resp["code"])
}

func TestRPC_CommandWhitelist(t *testing.T) {
	h := NewRPCHandler(&service.Services{})
	assert.Contains(t, h.Commands(), "mes.batch.create")
	assert.Contains(t, h.Commands(), "mes.bom.generate")
	assert.NotContains(t, h.Commands(), "mes.batch.delete")
}

func TestRPC_RequiresPermission(t *testing.T) {
	r := testutil.SetupRouter()
	RegisterRoutes(r, &Handlers{RPC: NewRPCHandler(&service.Services{})}, testutil.JWTSecret)
	readOnly := testutil.GenerateTestToken("viewer", "Viewer", testutil.TestCompany, nil, []string{"mes:batch:read"})

	for _, cmd := range []string{"mes.batch.create", "mes.batch.transition", "mes.container.register", "mes.bom.generate", "mes.coa.create", "mes.coa.approve"} {
		t.Run(cmd, func(t *testing.T) {
			w := testutil.DoRequest(r, "POST", "/api/method/"+cmd, map[string]interface{}{"id": "x"}, readOnly)
			assert.Equal(t, http.StatusForbidden, w.Code)
			resp := testutil.ParseResponse(w)
			assert.Equal(t, false, resp["success"])
			assert.EqualValues(t, CodePermissionDenied, resp["code"])
		})
	}

	// 有权限时进入参数解析
	writer := testutil.GenerateTestToken("op", "Operator", testutil.TestCompany, nil, []string{PermCOAApprove})
	w := testutil.DoRequest(r, "POST", "/api/method/mes.coa.approve", map[string]interface{}{"bogus": 1}, writer)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.EqualValues(t, CodeInvalidInput, testutil.ParseResponse(w)["code"])

	w = testutil.DoRequest(r, "POST", "/api/method/mes.batch.create", map[string]interface{}{"bogus": 1}, writer)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestHealth(t *testing.T) {
	r := testutil.SetupRouter()
	down := CheckFunc{Label: "redis", Fn: func(context.Context) error { return errors.New("connection refused") }}
	h := &Handlers{RPC: &RPCHandler{}, Health: NewHealthHandler("1.2.3", "2025-04-22", down)}
	RegisterRoutes(r, h, testutil.JWTSecret)

	w := testutil.DoRequest(r, "GET", "/health/live", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = testutil.DoRequest(r, "GET", "/health/ready", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	resp := testutil.ParseResponse(w)
	assert.Equal(t, "connection refused", resp["checks"].(map[string]interface{})["redis"])

	w = testutil.DoRequest(r, "GET", "/version", nil, "")
	assert.Equal(t, "1.2.3", testutil.ParseResponse(w)["version"])
}

func TestErrorCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("wrap: %w", service.ErrNotFound), CodeNotFound},
		{fmt.Errorf("%w: qty", service.ErrInvalidInput), CodeInvalidInput},
		{entity.ErrHierarchy, CodeHierarchy},
		{entity.ErrFillTooLow, CodeInvalidContainer},
		{service.ErrConflict, CodeConflict},
		{fmt.Errorf("batch X: %w", entity.ErrTerminalStatus), CodeTerminalStatus},
		{entity.ErrInvalidTransition, CodeInvalidTransition},
		{entity.ErrQuantityLocked, CodeQuantityLocked},
		{bomtree.ErrCycle, CodeBOMCycle},
		{errors.New("db down"), CodeInternal},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ErrorCode(tc.err), tc.err.Error())
	}
}

func TestEventsStream(t *testing.T) {
	hub := events.NewHub(nil)
	r := testutil.SetupRouter()
	h := &Handlers{RPC: &RPCHandler{}, Health: NewHealthHandler("v", "b"), Events: NewEventsHandler(hub)}
	RegisterRoutes(r, h, testutil.JWTSecret)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/mes/events", nil)
	req.Header.Set("Authorization", "Bearer "+testutil.DefaultTestToken())
	w := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.ServeHTTP(w, req)
	}()

	require.Eventually(t, func() bool { return hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)
	hub.Publish(testutil.TestCompany, events.Change{EntityType: "container", EntityID: "c-1", Action: "fill"})
	hub.Publish("Another Co", events.Change{EntityType: "container", EntityID: "c-2", Action: "fill"})
	hub.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end after hub closed")
	}
	body := w.Body.String()
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Contains(t, body, "event: connected")
	assert.Contains(t, body, "event: container_update")
	assert.Contains(t, body, `"entity_id":"c-1"`)
	assert.NotContains(t, body, `"entity_id":"c-2"`)
}
