// Package api exposes proactive actions, share invitations and sync over
// HTTP with gin.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xbora/mio/internal/scheduler"
	"github.com/xbora/mio/internal/shares"
	"github.com/xbora/mio/internal/syncer"
	"github.com/xbora/mio/internal/types"
	"github.com/xbora/mio/internal/vault"
)

type ActionService interface {
	Create(ctx context.Context, body map[string]any) (*types.ProactiveAction, error)
	Update(ctx context.Context, id types.ActionID, userID types.UserID, patch map[string]any) (*types.ProactiveAction, error)
	List(ctx context.Context, userID types.UserID) ([]*types.ProactiveAction, error)
}

type ShareService interface {
	Create(ctx context.Context, owner types.UserID, skillName, email string) (*shares.Invitation, error)
	Accept(ctx context.Context, token string) shares.Acceptance
}

type SyncService interface {
	SyncAs(ctx context.Context, id types.ShareID, d types.Direction, kind types.SkillType) (*syncer.Result, error)
	Trigger(ctx context.Context, userID types.UserID, skill string) (*syncer.TriggerResult, error)
}

// Handler holds the services behind the routes. Alerter may be nil.
type Handler struct {
	Actions ActionService
	Cycles  scheduler.CycleRunner
	Alerter scheduler.Alerter
	Shares  ShareService
	Sync    SyncService
	Now     func() time.Time
}

// NewRouter registers every route on a fresh gin engine.
func NewRouter(h *Handler) *gin.Engine {
	if h.Now == nil {
		h.Now = time.Now
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.SetHTMLTemplate(acceptPage)

	r.POST("/proactive-actions", h.CreateAction)
	r.GET("/proactive-actions", h.ListActions)
	r.PATCH("/proactive-actions/:id", h.UpdateAction)
	r.POST("/proactive-actions/execute", h.Execute)

	r.POST("/shares", h.CreateShare)
	r.GET("/accept-share", h.AcceptShare)
	r.POST("/sync", h.syncHandler(types.SkillTabular))
	r.POST("/sync-vector", h.syncHandler(types.SkillVector))
	r.POST("/sync-trigger", h.TriggerSync)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "API route not found", "kind": "not_found"})
	})
	return r
}

// caller identifies the user from X-User-ID or a bearer token holding the
// user id.
func caller(c *gin.Context) (types.UserID, bool) {
	if id := strings.TrimSpace(c.GetHeader("X-User-ID")); id != "" {
		return types.UserID(id), true
	}
	auth := c.GetHeader("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return "", false
	}
	id := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	return types.UserID(id), id != ""
}

func unauthorized(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing or invalid Authorization header", "kind": "unauthorized"})
}

func statusFor(err error) int {
	switch types.Kind(err) {
	case "validation", "state":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	case "conflict":
		return http.StatusConflict
	case "upstream":
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	body := gin.H{"error": err.Error(), "kind": types.Kind(err)}

	var missing *vault.MissingSkillError
	if errors.As(err, &missing) {
		body["error"] = missing.Message
		body["available_skills"] = missing.Available
	}
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "status", status, "error", err)
	}
	c.JSON(status, body)
}

// bindBody decodes a JSON object body. An empty body is an empty object.
func bindBody(c *gin.Context) (map[string]any, bool) {
	body := map[string]any{}
	if c.Request.ContentLength == 0 {
		return body, true
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON body", "kind": "validation"})
		return nil, false
	}
	return body, true
}

func stringField(body map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := body[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}
