package user

import (
	"net/http"

	"github.com/ZJUSCT/CFBingo/internal/api"
	"github.com/ZJUSCT/CFBingo/internal/auth"
	"github.com/ZJUSCT/CFBingo/internal/util"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type teamInfo struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	CodeforcesHandle string   `json:"codeforces_handle"`
	Members          []string `json:"members"`
	HasRound2Access  bool     `json:"has_round2_access"`
}

func (h *Handler) login(c *gin.Context) {
	var req struct {
		Name     string `json:"name" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, err)
		return
	}

	team, err := h.svc.Authenticate(c.Request.Context(), req.Name, req.Password)
	if err != nil {
		util.Fail(c, err)
		return
	}

	jwtToken, err := auth.GenerateJWT(team.ID, team.Name, team.HasRound2Access, h.cfg.Auth.JWT.Secret, h.cfg.Auth.JWT.ExpireHours)
	if err != nil {
		util.Error(c, http.StatusInternalServerError, "failed to generate JWT")
		return
	}
	zap.S().Infof("team %s logged in", team.Name)
	util.Success(c, gin.H{
		"token": jwtToken,
		"team": teamInfo{
			ID:               team.ID,
			Name:             team.Name,
			CodeforcesHandle: team.CodeforcesHandle,
			Members:          team.Members,
			HasRound2Access:  team.HasRound2Access,
		},
	}, "Login successful")
}

func (h *Handler) getAuthStatus(c *gin.Context) {
	team, err := h.svc.Team(c.Request.Context(), api.TeamID(c))
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, teamInfo{
		ID:               team.ID,
		Name:             team.Name,
		CodeforcesHandle: team.CodeforcesHandle,
		Members:          team.Members,
		HasRound2Access:  team.HasRound2Access,
	}, "Auth status retrieved")
}

func (h *Handler) setHandle(c *gin.Context) {
	var req struct {
		Handle string `json:"handle" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, err)
		return
	}
	team, err := h.svc.SetHandle(c.Request.Context(), api.TeamID(c), req.Handle)
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, gin.H{"codeforces_handle": team.CodeforcesHandle}, "Handle saved")
}
