package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xbora/mio/internal/actions"
	"github.com/xbora/mio/internal/types"
)

func (h *Handler) CreateAction(c *gin.Context) {
	body, ok := bindBody(c)
	if !ok {
		return
	}
	// An authenticated caller owns what it creates; the body user id is only
	// honoured on unauthenticated internal calls.
	if id, ok := caller(c); ok {
		delete(body, "workos_user_id")
		body["user_id"] = string(id)
	}
	action, err := h.Actions.Create(c.Request.Context(), body)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Proactive action created successfully",
		"data":    action,
	})
}

func (h *Handler) ListActions(c *gin.Context) {
	userID, ok := caller(c)
	if !ok {
		unauthorized(c)
		return
	}
	list, err := h.Actions.List(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	if list == nil {
		list = []*types.ProactiveAction{}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": list})
}

func (h *Handler) UpdateAction(c *gin.Context) {
	userID, ok := caller(c)
	if !ok {
		unauthorized(c)
		return
	}
	body, ok := bindBody(c)
	if !ok {
		return
	}
	action, err := h.Actions.Update(c.Request.Context(), types.ActionID(c.Param("id")), userID, body)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Proactive action updated successfully",
		"data":    action,
	})
}

// Execute runs one scheduling cycle at the given execution_time.
func (h *Handler) Execute(c *gin.Context) {
	body, ok := bindBody(c)
	if !ok {
		return
	}
	raw := stringField(body, "execution_time")
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "execution_time is required (ISO 8601 format)", "kind": "validation"})
		return
	}
	at, err := actions.ParseExecutionTime(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid execution_time format", "kind": "validation"})
		return
	}

	ctx := c.Request.Context()
	report, err := h.Cycles.RunCycle(ctx, at)
	if err != nil {
		respondError(c, err)
		return
	}
	if h.Alerter != nil {
		if err := h.Alerter.CycleFinished(ctx, report); err != nil {
			slog.Warn("cycle alert failed", "error", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"execution_time": at.Format("2006-01-02T15:04:05.000Z07:00"),
		"executed":       nonNil(report.Executed),
		"skipped":        nonNil(report.Skipped),
	})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
