package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xbora/mio/internal/syncer"
	"github.com/xbora/mio/internal/types"
)

func (h *Handler) CreateShare(c *gin.Context) {
	owner, ok := caller(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized - provide X-User-ID header or a bearer token", "kind": "unauthorized"})
		return
	}
	body, ok := bindBody(c)
	if !ok {
		return
	}
	inv, err := h.Shares.Create(c.Request.Context(), owner, stringField(body, "skill_name"), stringField(body, "shared_with_email"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

func (h *Handler) AcceptShare(c *gin.Context) {
	out := h.Shares.Accept(c.Request.Context(), c.Query("token"))
	page := acceptPageFor(out)
	c.HTML(page.Status, "accept", page)
}

// syncHandler serves /sync and /sync-vector, which differ only in the engine
// they run.
func (h *Handler) syncHandler(kind types.SkillType) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, ok := bindBody(c)
		if !ok {
			return
		}
		id := types.ShareID(stringField(body, "shared_skill_id"))
		dir := types.Direction(stringField(body, "direction"))

		res, err := h.Sync.SyncAs(c.Request.Context(), id, dir, kind)
		if errors.Is(err, syncer.ErrNothingSynced) && res != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error":   res.Message,
				"kind":    "internal",
				"details": res.Errors,
			})
			return
		}
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

func (h *Handler) TriggerSync(c *gin.Context) {
	body, ok := bindBody(c)
	if !ok {
		return
	}
	userID := types.UserID(stringField(body, "user_id", "workos_user_id"))
	res, err := h.Sync.Trigger(c.Request.Context(), userID, stringField(body, "skill_name"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
