package controllers

import (
	"net/http"

	"github.com/shashiranjanraj/ventas/app/models"
	"github.com/shashiranjanraj/ventas/app/repositories"
	"github.com/shashiranjanraj/ventas/pkg/ctx"
	"github.com/shashiranjanraj/ventas/pkg/event"
	"github.com/shashiranjanraj/ventas/pkg/logger"
)

// SyncController receives drafts devices could not commit and lets
// managers work through them.
type SyncController struct {
	failures *repositories.SyncFailureRepository
}

func NewSyncController(failures *repositories.SyncFailureRepository) *SyncController {
	return &SyncController{failures: failures}
}

// Report stores a device's failure report. Repeats are harmless.
func (h *SyncController) Report(c *ctx.Context) {
	var in models.SyncFailureReport
	if !c.BindJSON(&in) {
		return
	}
	if dev := c.Header("X-Device-ID"); dev != "" && dev != in.DeviceID {
		c.Fail(http.StatusUnprocessableEntity, "device_mismatch", "device_id does not match X-Device-ID")
		return
	}

	f, err := h.failures.Record(c.Context(), in)
	if err != nil {
		fail(c, err)
		return
	}
	logger.WithCtx(c.Context()).Warn("sync: device reported failed draft",
		"local_id", f.LocalID, "code", f.Code, "device_id", f.DeviceID)
	event.Fire(event.SyncFailureAdded, f)
	c.Created(f)
}

// Index lists failures; ?open=1 limits to unacknowledged ones.
func (h *SyncController) Index(c *ctx.Context) {
	open := c.Query("open") == "1" || c.Query("open") == "true"
	items, page, err := h.failures.List(c.Context(), open, c.IntQuery("page", 1), c.IntQuery("per_page", 0))
	if err != nil {
		fail(c, err)
		return
	}
	c.Paginated(items, page)
}

// Ack marks a failure as handled.
func (h *SyncController) Ack(c *ctx.Context) {
	id, ok := c.ParamUint("id")
	if !ok {
		c.NotFound()
		return
	}
	f, err := h.failures.Acknowledge(c.Context(), id, c.Operator())
	if err != nil {
		fail(c, err)
		return
	}
	c.Success(f)
}
