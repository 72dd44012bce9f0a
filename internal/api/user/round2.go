package user

import (
	"github.com/ZJUSCT/CFBingo/internal/api"
	"github.com/ZJUSCT/CFBingo/internal/util"
	"github.com/gin-gonic/gin"
)

func (h *Handler) getActiveMatch(c *gin.Context) {
	am, err := h.svc.ActiveMatch(c.Request.Context(), api.TeamID(c))
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, am, "Active match retrieved")
}

func (h *Handler) getStandings(c *gin.Context) {
	standings, err := h.svc.Round2Standings(c.Request.Context(), api.TeamID(c))
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, standings, "Standings retrieved")
}

func (h *Handler) getMatch(c *gin.Context) {
	view, err := h.svc.MatchView(c.Request.Context(), c.Param("id"))
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, view, "Match retrieved")
}

func (h *Handler) syncMatch(c *gin.Context) {
	res, err := h.svc.SyncRound2(c.Request.Context(), c.Param("id"), api.TeamID(c))
	if err != nil {
		util.Fail(c, err)
		return
	}
	msg := "Sync complete"
	if len(res.Warnings) > 0 {
		msg = "Sync complete with warnings"
	}
	util.Success(c, res, msg)
}
