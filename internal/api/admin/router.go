package admin

import (
	"github.com/ZJUSCT/CFBingo/internal/api"
	"github.com/ZJUSCT/CFBingo/internal/config"
	"github.com/ZJUSCT/CFBingo/internal/contest"
	"github.com/ZJUSCT/CFBingo/internal/metrics"
	"github.com/gin-gonic/gin"
)

// NewAdminRouter creates and configures the admin Gin engine.
func NewAdminRouter(cfg *config.Config, svc *contest.Service, m *metrics.Metrics) *gin.Engine {
	r := gin.Default()

	r.Use(api.CORSMiddleware(cfg.CORS))

	h := NewHandler(cfg, svc, m)

	if m != nil {
		r.GET("/metrics", gin.WrapH(m.Handler()))
	}

	v1 := r.Group("/api/v1")
	v1.Use(api.AdminTokenMiddleware(cfg.Admin.Token))
	{
		// Management
		v1.POST("/reload", h.reload)
		v1.GET("/export", h.export)

		teams := v1.Group("/teams")
		{
			teams.GET("", h.getAllTeams)
			teams.POST("", h.createTeam)
			teams.PATCH("/:id", h.updateTeam)
			teams.POST("/:id/reset-password", h.resetTeamPassword)
		}

		round1 := v1.Group("/round1")
		{
			round1.GET("/leaderboard", h.getRound1Leaderboard)
			round1.POST("/reset", h.resetRound1)
		}

		matches := v1.Group("/matches")
		{
			matches.GET("", h.getAllMatches)
			matches.GET("/:id", h.getMatch)
			matches.GET("/:id/submissions", h.getMatchSubmissions)
			matches.POST("/:id/start", h.startMatch)
			matches.POST("/:id/sync", h.syncMatch)
			matches.POST("/:id/resolve", h.resolveMatch)
		}
	}

	return r
}
