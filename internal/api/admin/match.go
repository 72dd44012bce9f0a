package admin

import (
	"net/http"
	"strings"

	"github.com/ZJUSCT/CFBingo/internal/database/models"
	"github.com/ZJUSCT/CFBingo/internal/util"
	"github.com/gin-gonic/gin"
)

func (h *Handler) getAllMatches(c *gin.Context) {
	standings, err := h.svc.Standings(c.Request.Context())
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, standings, "Matches retrieved")
}

func (h *Handler) getMatch(c *gin.Context) {
	view, err := h.svc.MatchView(c.Request.Context(), c.Param("id"))
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, view, "Match retrieved")
}

func (h *Handler) getMatchSubmissions(c *gin.Context) {
	subs, err := h.svc.MatchSubmissions(c.Request.Context(), c.Param("id"))
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, subs, "Submissions retrieved")
}

func (h *Handler) startMatch(c *gin.Context) {
	m, err := h.svc.StartMatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, m, "Match started")
}

// syncMatch reconciles the match on behalf of the system, bypassing the
// per-team rate limit.
func (h *Handler) syncMatch(c *gin.Context) {
	res, err := h.svc.SyncRound2(c.Request.Context(), c.Param("id"), "")
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, res, "Sync complete")
}

func (h *Handler) resolveMatch(c *gin.Context) {
	var req struct {
		Winner string `json:"winner" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, err)
		return
	}
	var side models.Side
	switch strings.ToUpper(req.Winner) {
	case "A":
		side = models.SideA
	case "B":
		side = models.SideB
	default:
		util.Error(c, http.StatusBadRequest, "winner must be A or B")
		return
	}

	m, err := h.svc.ResolveMatch(c.Request.Context(), c.Param("id"), side)
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, m, "Match resolved")
}
