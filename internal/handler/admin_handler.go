package handler

import (
	"hivisloyalty/internal/model"
	"hivisloyalty/pkg/response"

	"github.com/gin-gonic/gin"
)

type reconcileRequest struct {
	UserID string `json:"user_id"`
}

// Reconcile re-sums the ledger for one user, or every user when user_id is
// omitted, and repairs drifted balances.
// POST /api/v1/admin/reconcile
func (h *Handler) Reconcile(c *gin.Context) {
	var req reconcileRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ParamError(c, "invalid body: "+err.Error())
			return
		}
	}

	if req.UserID != "" {
		result, err := h.svc.Reconcile.Reconcile(c.Request.Context(), req.UserID)
		if err != nil {
			h.writeError(c, err)
			return
		}
		response.Success(c, result)
		return
	}

	summary, err := h.svc.Reconcile.ReconcileAll(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, summary)
}

// Stats GET /api/v1/admin/stats
func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.svc.Reconcile.Stats(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, stats)
}

// ListUsers pages through every account.
// GET /api/v1/admin/users?page=1&page_size=20
func (h *Handler) ListUsers(c *gin.Context) {
	page, pageSize := pageParams(c)
	list, total, err := h.svc.Users.ListUsers(c.Request.Context(), page, pageSize)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, gin.H{
		"list":  list,
		"total": total,
		"page":  page,
	})
}

// ResetStreakReward lets the user earn the streak reward again.
// POST /api/v1/admin/users/:id/streak-reset
func (h *Handler) ResetStreakReward(c *gin.Context) {
	if err := h.svc.Award.ResetStreakReward(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, nil)
}

type bonusRequest struct {
	Points      int64  `json:"points" binding:"required,gt=0"`
	Description string `json:"description" binding:"required,max=255"`
}

// GrantBonus credits goodwill points outside the purchase path.
// POST /api/v1/admin/users/:id/bonus
func (h *Handler) GrantBonus(c *gin.Context) {
	var req bonusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid body: "+err.Error())
		return
	}
	result, err := h.svc.Award.GrantBonus(c.Request.Context(), c.Param("id"), req.Points, req.Description, model.NotificationPointsEarned)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, result)
}
