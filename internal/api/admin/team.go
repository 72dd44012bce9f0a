package admin

import (
	"net/http"

	"github.com/ZJUSCT/CFBingo/internal/contest"
	"github.com/ZJUSCT/CFBingo/internal/util"
	"github.com/gin-gonic/gin"
)

func (h *Handler) getAllTeams(c *gin.Context) {
	teams, err := h.svc.Teams(c.Request.Context())
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, teams, "Teams retrieved")
}

func (h *Handler) createTeam(c *gin.Context) {
	var req contest.NewTeam
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, err)
		return
	}
	team, err := h.svc.CreateTeam(c.Request.Context(), req)
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, team, "Team created")
}

func (h *Handler) updateTeam(c *gin.Context) {
	var patch contest.TeamPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		util.Error(c, http.StatusBadRequest, err)
		return
	}
	team, err := h.svc.UpdateTeam(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, team, "Team updated")
}

func (h *Handler) resetTeamPassword(c *gin.Context) {
	var req struct {
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, err)
		return
	}
	if err := h.svc.ResetPassword(c.Request.Context(), c.Param("id"), req.Password); err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, nil, "Password reset")
}
