package handler

import (
	"hivisloyalty/internal/service"
	"hivisloyalty/pkg/response"

	"github.com/gin-gonic/gin"
)

// ListNotifications returns the user's inbox, newest first.
// GET /api/v1/users/:id/notifications
func (h *Handler) ListNotifications(c *gin.Context) {
	inbox, err := h.svc.Notifications.ListNotifications(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, inbox)
}

// MarkNotificationRead POST /api/v1/users/:id/notifications/:nid/read
func (h *Handler) MarkNotificationRead(c *gin.Context) {
	id, ok := pathInt64(c, "nid")
	if !ok {
		return
	}
	n, err := h.svc.Notifications.MarkNotificationRead(c.Request.Context(), c.Param("id"), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, n)
}

// SendNotifications sends an announcement to the listed users, or to every
// user when user_ids is empty.
// POST /api/v1/admin/notifications
func (h *Handler) SendNotifications(c *gin.Context) {
	var req service.BulkNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid body: "+err.Error())
		return
	}
	result, err := h.svc.Notifications.SendBulk(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, result)
}
