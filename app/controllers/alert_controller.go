package controllers

import (
	"encoding/json"
	"time"

	"github.com/shashiranjanraj/ventas/pkg/ctx"
	"github.com/shashiranjanraj/ventas/pkg/logger"
	"github.com/shashiranjanraj/ventas/pkg/sse"
	"github.com/shashiranjanraj/ventas/pkg/ws"
)

const heartbeat = 15 * time.Second

// AlertController streams the alert hub as Server-Sent Events for
// dashboards that cannot hold a WebSocket.
type AlertController struct {
	hub *ws.Hub
}

func NewAlertController(hub *ws.Hub) *AlertController {
	return &AlertController{hub: hub}
}

func (h *AlertController) Stream(c *ctx.Context) {
	stream, err := sse.New(c.W, c.R)
	if err != nil {
		logger.WithCtx(c.Context()).Error("alerts: cannot stream", "error", err)
		return
	}
	feed, stop := h.hub.Subscribe()
	defer stop()

	tick := time.NewTicker(heartbeat)
	defer tick.Stop()

	for {
		select {
		case <-stream.Done():
			return
		case <-tick.C:
			if stream.Comment("ping") != nil {
				return
			}
		case msg, ok := <-feed:
			if !ok {
				return
			}
			var head struct {
				Type string `json:"type"`
			}
			_ = json.Unmarshal(msg, &head)
			if stream.Send(head.Type, msg) != nil {
				return
			}
		}
	}
}
