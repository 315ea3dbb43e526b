package handler

import (
	"fmt"
	"time"

	"github.com/bitfantasy/amb-mes/internal/mes/events"
	"github.com/gin-gonic/gin"
)

type EventsHandler struct {
	hub       *events.Hub
	heartbeat time.Duration
}

func NewEventsHandler(hub *events.Hub) *EventsHandler {
	return &EventsHandler{hub: hub, heartbeat: 30 * time.Second}
}

// Stream GET /events，按当前公司过滤的变更流
func (h *EventsHandler) Stream(c *gin.Context) {
	sess := SessionFrom(c)
	clientID := fmt.Sprintf("%s_%d", sess.UserID, time.Now().UnixNano())

	client := &events.Client{
		ID:      clientID,
		UserID:  sess.UserID,
		Company: sess.Company,
		Events:  make(chan events.Event, 64),
	}
	h.hub.Register(client)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	c.Writer.WriteString("event: connected\ndata: {\"client_id\":\"" + clientID + "\"}\n\n")
	c.Writer.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	clientGone := c.Request.Context().Done()
	for {
		select {
		case <-clientGone:
			h.hub.Unregister(clientID)
			return
		case event, ok := <-client.Events:
			if !ok {
				return
			}
			fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event.Type, event.Data)
			c.Writer.Flush()
		case <-heartbeat.C:
			c.Writer.WriteString(": keepalive\n\n")
			c.Writer.Flush()
		}
	}
}
