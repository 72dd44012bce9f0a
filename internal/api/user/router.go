package user

import (
	"github.com/ZJUSCT/CFBingo/internal/api"
	"github.com/ZJUSCT/CFBingo/internal/config"
	"github.com/ZJUSCT/CFBingo/internal/contest"
	"github.com/ZJUSCT/CFBingo/internal/ratelimit"
	"github.com/gin-gonic/gin"
)

// NewUserRouter creates and configures the user Gin engine.
func NewUserRouter(cfg *config.Config, svc *contest.Service) *gin.Engine {
	r := gin.Default()

	r.Use(api.CORSMiddleware(cfg.CORS))

	h := NewHandler(cfg, svc)
	loginLimiter := ratelimit.NewBucketLimiter(cfg.RateLimit.Login)

	v1 := r.Group("/api/v1")
	{
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/login", api.IPRateLimitMiddleware(loginLimiter), h.login)
		}

		// Publicly accessible info
		v1.GET("/leaderboard/round1", h.getRound1Leaderboard)
		v1.GET("/round2/matches/:id", h.getMatch)

		// Websocket for live match scores, authorized by query token
		v1.GET("/ws/matches/:id", h.handleMatchWs)

		authed := v1.Group("/")
		authed.Use(api.AuthMiddleware(cfg.Auth.JWT.Secret))
		{
			authed.GET("/auth/status", h.getAuthStatus)
			authed.PUT("/team/handle", h.setHandle)

			round1 := authed.Group("/round1")
			{
				round1.GET("/board", h.getBoard)
				round1.POST("/sync", h.syncRound1)
				round1.GET("/score", h.getScore)
			}

			round2 := authed.Group("/round2")
			{
				round2.GET("/active-match", h.getActiveMatch)
				round2.GET("/standings", h.getStandings)
				round2.POST("/matches/:id/sync", h.syncMatch)
			}
		}
	}

	return r
}
