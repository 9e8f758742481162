package handler

import (
	"hivisloyalty/internal/service"
	"hivisloyalty/pkg/response"

	"github.com/gin-gonic/gin"
)

// ListRewards returns the active catalog, cheapest first.
// GET /api/v1/rewards
func (h *Handler) ListRewards(c *gin.Context) {
	rewards, err := h.svc.Redemption.ListRewards(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, rewards)
}

// GetReward GET /api/v1/rewards/:id
func (h *Handler) GetReward(c *gin.Context) {
	id, ok := pathInt64(c, "id")
	if !ok {
		return
	}
	reward, err := h.svc.Redemption.GetReward(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, reward)
}

type redeemRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// Redeem spends points on a reward and returns the one-time code.
// POST /api/v1/rewards/:id/redeem
func (h *Handler) Redeem(c *gin.Context) {
	id, ok := pathInt64(c, "id")
	if !ok {
		return
	}
	var req redeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid body: "+err.Error())
		return
	}
	result, err := h.svc.Redemption.Redeem(c.Request.Context(), req.UserID, id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, result)
}

type claimRequest struct {
	Code string `json:"code" binding:"required"`
}

// ClaimCode validates a redemption code at the counter and burns it.
// POST /api/v1/admin/redemptions/claim
func (h *Handler) ClaimCode(c *gin.Context) {
	var req claimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid body: "+err.Error())
		return
	}
	result, err := h.svc.Redemption.ValidateAndClaim(c.Request.Context(), req.Code)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, result)
}

// CreateReward adds a catalog item.
// POST /api/v1/admin/rewards
func (h *Handler) CreateReward(c *gin.Context) {
	var req service.CreateRewardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid body: "+err.Error())
		return
	}
	reward, err := h.svc.Redemption.CreateReward(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Created(c, reward)
}
