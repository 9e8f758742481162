package handler

import (
	"hivisloyalty/internal/service"
	"hivisloyalty/pkg/response"

	"github.com/gin-gonic/gin"
)

// CreateUser registers a customer.
// POST /api/v1/users
func (h *Handler) CreateUser(c *gin.Context) {
	var req service.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid body: "+err.Error())
		return
	}
	user, err := h.svc.Users.CreateUser(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Created(c, user)
}

// GetUser returns the profile and loyalty state.
// GET /api/v1/users/:id
func (h *Handler) GetUser(c *gin.Context) {
	user, err := h.svc.Users.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, user)
}

// UpdateProfile edits names and suburb.
// PUT /api/v1/users/:id/profile
func (h *Handler) UpdateProfile(c *gin.Context) {
	var req service.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid body: "+err.Error())
		return
	}
	user, err := h.svc.Users.UpdateProfile(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, user)
}

type linkCardRequest struct {
	CardNumber string `json:"card_number" binding:"required"`
}

// LinkCard attaches a payment card for automatic matching.
// PUT /api/v1/users/:id/card
func (h *Handler) LinkCard(c *gin.Context) {
	var req linkCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid body: "+err.Error())
		return
	}
	user, err := h.svc.Users.LinkCard(c.Request.Context(), c.Param("id"), req.CardNumber)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, user)
}

// UnlinkCard removes the payment card.
// DELETE /api/v1/users/:id/card
func (h *Handler) UnlinkCard(c *gin.Context) {
	if err := h.svc.Users.UnlinkCard(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, nil)
}

// ListTransactions pages through the user's ledger, newest first.
// GET /api/v1/users/:id/transactions?page=1&page_size=20
func (h *Handler) ListTransactions(c *gin.Context) {
	userID := c.Param("id")
	if _, err := h.svc.Users.GetUser(c.Request.Context(), userID); err != nil {
		h.writeError(c, err)
		return
	}
	page, pageSize := pageParams(c)
	list, total, err := h.svc.Users.ListTransactions(c.Request.Context(), userID, page, pageSize)
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

type referralRequest struct {
	Code string `json:"code" binding:"required"`
}

// UseReferral applies another customer's referral code.
// POST /api/v1/users/:id/referral
func (h *Handler) UseReferral(c *gin.Context) {
	var req referralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid body: "+err.Error())
		return
	}
	result, err := h.svc.Referral.UseReferralCode(c.Request.Context(), c.Param("id"), req.Code)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, result)
}

type scanRequest struct {
	QRData string `json:"qr_data" binding:"required"`
}

// ScanQR credits a machine QR scan.
// POST /api/v1/users/:id/scan
func (h *Handler) ScanQR(c *gin.Context) {
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid body: "+err.Error())
		return
	}
	result, err := h.svc.Scan.ScanQR(c.Request.Context(), c.Param("id"), req.QRData)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, result)
}

type manualPurchaseRequest struct {
	MachineID string `json:"machine_id" binding:"required"`
	Amount    int64  `json:"amount" binding:"required"`
}

// ManualPurchase credits a purchase entered by hand, amount in cents.
// POST /api/v1/users/:id/purchases
func (h *Handler) ManualPurchase(c *gin.Context) {
	var req manualPurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid body: "+err.Error())
		return
	}
	result, err := h.svc.Scan.ManualPurchase(c.Request.Context(), c.Param("id"), req.MachineID, req.Amount)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, result)
}
