package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newClient(id, company string, buf int) *Client {
	return &Client{ID: id, UserID: "u-" + id, Company: company, Events: make(chan Event, buf)}
}

func TestHub_PublishFiltersByCompany(t *testing.T) {
	h := NewHub(nil)
	a := newClient("a", "AMB", 4)
	b := newClient("b", "Other Co", 4)
	all := newClient("c", "", 4)
	h.Register(a)
	h.Register(b)
	h.Register(all)
	require.Equal(t, 3, h.Count())

	at := time.Date(2025, 4, 22, 9, 30, 0, 0, time.UTC)
	h.Publish("AMB", Change{EntityType: "batch", EntityID: "b-1", Action: "start", From: "Draft", To: "InProgress", At: at})

	require.Len(t, a.Events, 1)
	assert.Len(t, b.Events, 0)
	assert.Len(t, all.Events, 1)

	ev := <-a.Events
	assert.Equal(t, "batch_update", ev.Type)
	var got Change
	require.NoError(t, json.Unmarshal(ev.Data, &got))
	assert.Equal(t, "InProgress", got.To)
	assert.True(t, at.Equal(got.At))
}

func TestHub_FullBufferSkipped(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	h := NewHub(zap.New(core))
	slow := newClient("slow", "", 1)
	h.Register(slow)

	h.Broadcast(Event{Type: "coa_update"})
	h.Broadcast(Event{Type: "coa_update"})

	assert.Len(t, slow.Events, 1)
	assert.Equal(t, 1, logs.FilterMessage("SSE client buffer full, skipping event").Len())
}

func TestHub_UnregisterClosesChannel(t *testing.T) {
	h := NewHub(nil)
	c := newClient("x", "", 1)
	h.Register(c)
	h.Unregister("x")
	h.Unregister("x")

	_, ok := <-c.Events
	assert.False(t, ok)
	assert.Zero(t, h.Count())
}

func TestHub_CloseKeepsBufferedEvents(t *testing.T) {
	h := NewHub(nil)
	c := newClient("x", "", 2)
	h.Register(c)
	h.Broadcast(Event{Type: "bom_update"})
	h.Close()

	ev, ok := <-c.Events
	assert.True(t, ok)
	assert.Equal(t, "bom_update", ev.Type)
	_, ok = <-c.Events
	assert.False(t, ok)
	assert.Zero(t, h.Count())
}
