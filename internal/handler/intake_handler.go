package handler

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"

	"hivisloyalty/internal/job"
	"hivisloyalty/internal/model"
	"hivisloyalty/internal/service"
	"hivisloyalty/internal/source"
	"hivisloyalty/pkg/idgen"
	"hivisloyalty/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// maxImportBytes bounds CSV uploads and webhook bodies.
const maxImportBytes = 8 << 20

// IngestTransaction accepts one purchase in the canonical shape.
// POST /api/v1/external/transactions
//
// A new row answers 201, a repeated external_id answers 200 with duplicate
// set. Storage failures answer 503 so the sender retries.
func (h *Handler) IngestTransaction(c *gin.Context) {
	var raw service.RawTransaction
	if err := c.ShouldBindJSON(&raw); err != nil {
		response.ParamError(c, "invalid body: "+err.Error())
		return
	}

	result, err := h.svc.Intake.Ingest(c.Request.Context(), model.SourceAPI, &raw)
	if err != nil {
		h.intakeError(c, err)
		return
	}
	if result.Duplicate {
		response.Success(c, result)
		return
	}
	response.Created(c, result)
}

// MomaWebhook accepts a vending provider push in any of its payload shapes.
// POST /api/v1/webhooks/moma
func (h *Handler) MomaWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxImportBytes))
	if err != nil {
		response.ParamError(c, "read body: "+err.Error())
		return
	}

	raws, parseErrs := source.ParseMomaPayload(body)
	out := &service.BatchResult{Received: len(raws) + len(parseErrs), Invalid: len(parseErrs)}
	out.Errors = errorStrings(parseErrs)
	for _, raw := range raws {
		res, err := h.svc.Intake.Ingest(c.Request.Context(), model.SourceWebhook, raw)
		if err != nil {
			var verr *service.ValidationError
			if errors.As(err, &verr) {
				out.Invalid++
				out.Errors = append(out.Errors, fmt.Sprintf("%s: %v", raw.ExternalID, err))
				continue
			}
			h.intakeError(c, err)
			return
		}
		if res.Duplicate {
			out.Duplicates++
			continue
		}
		out.Created++
		if res.Match != nil && res.Match.Status == service.MatchStatusMatched {
			out.Matched++
		}
	}

	if out.Created == 0 && out.Duplicates == 0 {
		response.ErrorWithData(c, http.StatusBadRequest, response.CodeParamError,
			"no usable transactions in payload", out)
		return
	}

	h.log.Info("webhook received",
		zap.Int("received", out.Received),
		zap.Int("created", out.Created),
		zap.Int("matched", out.Matched))
	response.Success(c, out)
}

// intakeError answers validation problems with 400 and anything else with 503.
func (h *Handler) intakeError(c *gin.Context, err error) {
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		h.writeError(c, err)
		return
	}
	h.log.Error("intake failed", zap.String("path", c.FullPath()), zap.Error(err))
	response.Unavailable(c, "transaction could not be stored, retry later")
}

// ImportCSV ingests a CSV export, either as multipart field "file" or as the
// raw request body.
// POST /api/v1/admin/external/import-csv
func (h *Handler) ImportCSV(c *gin.Context) {
	var r io.Reader
	if file, err := c.FormFile("file"); err == nil {
		f, err := file.Open()
		if err != nil {
			response.ParamError(c, "open upload: "+err.Error())
			return
		}
		defer f.Close()
		r = io.LimitReader(f, maxImportBytes)
	} else {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxImportBytes))
		if err != nil || len(body) == 0 {
			response.ParamError(c, "csv file is required")
			return
		}
		r = bytes.NewReader(body)
	}

	batchID := idgen.GenerateBatchID()
	raws, rowErrs, err := source.ParseCSV(r, batchID)
	if err != nil {
		response.ParamError(c, err.Error())
		return
	}

	result := h.svc.Intake.IngestBatch(c.Request.Context(), model.SourceCSV, raws)
	result.Received += len(rowErrs)
	result.Invalid += len(rowErrs)
	result.Errors = append(errorStrings(rowErrs), result.Errors...)

	h.log.Info("csv imported",
		zap.String("batch_id", batchID),
		zap.Int("received", result.Received),
		zap.Int("created", result.Created),
		zap.Int("invalid", result.Invalid))
	response.Success(c, gin.H{
		"batch_id": batchID,
		"result":   result,
	})
}

// ListUnprocessed pages through purchases still waiting for a user.
// GET /api/v1/admin/external/unprocessed?page=1&page_size=20
func (h *Handler) ListUnprocessed(c *gin.Context) {
	page, pageSize := pageParams(c)
	list, total, err := h.svc.Matcher.GetUnprocessed(c.Request.Context(), page, pageSize)
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

type manualMatchRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// ManualMatch credits an unprocessed purchase to a chosen user.
// POST /api/v1/admin/external/:id/match
func (h *Handler) ManualMatch(c *gin.Context) {
	id, ok := pathInt64(c, "id")
	if !ok {
		return
	}
	var req manualMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid body: "+err.Error())
		return
	}

	result, err := h.svc.Matcher.ManualMatch(c.Request.Context(), id, req.UserID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, result)
}

// SyncStart launches the vending API poller.
// POST /api/v1/admin/sync/start
func (h *Handler) SyncStart(c *gin.Context) {
	if !h.syncConfigured(c) {
		return
	}
	if err := h.poller.Start(h.baseCtx); err != nil {
		if errors.Is(err, job.ErrPollerRunning) {
			response.Conflict(c, response.CodeConflict, err.Error())
			return
		}
		h.writeError(c, err)
		return
	}
	response.Success(c, h.poller.Status())
}

// SyncStop halts the poller.
// POST /api/v1/admin/sync/stop
func (h *Handler) SyncStop(c *gin.Context) {
	if !h.syncConfigured(c) {
		return
	}
	if err := h.poller.Stop(); err != nil {
		if errors.Is(err, job.ErrPollerNotRunning) {
			response.Conflict(c, response.CodeConflict, err.Error())
			return
		}
		h.writeError(c, err)
		return
	}
	response.Success(c, h.poller.Status())
}

// SyncRun performs one poll inside the request.
// POST /api/v1/admin/sync/run
func (h *Handler) SyncRun(c *gin.Context) {
	if !h.syncConfigured(c) {
		return
	}
	h.poller.RunOnce(c.Request.Context())
	response.Success(c, h.poller.Status())
}

// SyncStatus reports the poller's counters.
// GET /api/v1/admin/sync/status
func (h *Handler) SyncStatus(c *gin.Context) {
	if !h.syncConfigured(c) {
		return
	}
	response.Success(c, h.poller.Status())
}

func (h *Handler) syncConfigured(c *gin.Context) bool {
	if h.poller == nil {
		response.Unavailable(c, "vending sync is not configured")
		return false
	}
	return true
}

func errorStrings(errs []error) []string {
	out := make([]string, 0, len(errs))
	for _, err := range errs {
		out = append(out, err.Error())
	}
	return out
}
