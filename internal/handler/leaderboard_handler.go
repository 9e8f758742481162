package handler

import (
	"hivisloyalty/pkg/response"

	"github.com/gin-gonic/gin"
)

// SuburbLeaderboard ranks users by all-time points inside each suburb.
// GET /api/v1/leaderboard/suburbs
func (h *Handler) SuburbLeaderboard(c *gin.Context) {
	groups, err := h.svc.Seasons.GetLeaderboardBySuburb(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, groups)
}

// CurrentSeason GET /api/v1/seasons/current
func (h *Handler) CurrentSeason(c *gin.Context) {
	season, err := h.svc.Seasons.GetCurrentSeason(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, season)
}

// ListSeasons GET /api/v1/seasons
func (h *Handler) ListSeasons(c *gin.Context) {
	seasons, err := h.svc.Seasons.ListSeasons(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, seasons)
}

// SeasonLeaderboard returns the monthly ranking per suburb.
// GET /api/v1/seasons/:id/leaderboard
func (h *Handler) SeasonLeaderboard(c *gin.Context) {
	id, ok := pathInt64(c, "id")
	if !ok {
		return
	}
	board, err := h.svc.Seasons.GetMonthlyLeaderboard(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, board)
}
