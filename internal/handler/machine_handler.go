package handler

import (
	"hivisloyalty/internal/service"
	"hivisloyalty/pkg/response"

	"github.com/gin-gonic/gin"
)

// ListMachines GET /api/v1/machines
func (h *Handler) ListMachines(c *gin.Context) {
	machines, err := h.svc.Machines.ListMachines(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, machines)
}

// RegisterMachine adds a machine to the registry QR scans are checked against.
// POST /api/v1/admin/machines
func (h *Handler) RegisterMachine(c *gin.Context) {
	var req service.RegisterMachineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid body: "+err.Error())
		return
	}
	machine, err := h.svc.Machines.RegisterMachine(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Created(c, machine)
}

type machineStatusRequest struct {
	IsOnline *bool `json:"is_online" binding:"required"`
}

// UpdateMachineStatus is the machine heartbeat.
// PUT /api/v1/machines/:id/status
func (h *Handler) UpdateMachineStatus(c *gin.Context) {
	var req machineStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid body: "+err.Error())
		return
	}
	machine, err := h.svc.Machines.UpdateMachineStatus(c.Request.Context(), c.Param("id"), *req.IsOnline)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, machine)
}
