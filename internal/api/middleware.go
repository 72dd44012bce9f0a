package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/ZJUSCT/CFBingo/internal/auth"
	"github.com/ZJUSCT/CFBingo/internal/config"
	"github.com/ZJUSCT/CFBingo/internal/ratelimit"
	"github.com/ZJUSCT/CFBingo/internal/util"

	"github.com/gin-gonic/gin"
)

const (
	ContextTeamID   = "teamID"
	ContextTeamName = "teamName"
)

// CORSMiddleware provides a configurable CORS middleware.
func CORSMiddleware(cfg config.CORS) gin.HandlerFunc {
	return func(c *gin.Context) {
		// If no origins are configured, do nothing.
		if len(cfg.AllowedOrigins) == 0 {
			c.Next()
			return
		}

		origin := c.Request.Header.Get("Origin")
		allowOrigin := ""

		for _, o := range cfg.AllowedOrigins {
			if o == "*" {
				allowOrigin = "*"
				break
			}
			if o == origin {
				allowOrigin = origin
				break
			}
		}

		// Only set headers if the origin is allowed.
		if allowOrigin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", allowOrigin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, PATCH, DELETE")

			if c.Request.Method == "OPTIONS" {
				c.AbortWithStatus(http.StatusNoContent)
				return
			}
		}
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, string) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", "Authorization header is required"
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", "Authorization header format must be Bearer {token}"
	}
	return parts[1], ""
}

// AuthMiddleware accepts a team JWT and stores the team id in the context.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, problem := bearerToken(c)
		if problem != "" {
			util.Error(c, http.StatusUnauthorized, problem)
			c.Abort()
			return
		}

		claims, err := auth.ValidateJWT(tokenString, secret)
		if err != nil {
			util.Error(c, http.StatusUnauthorized, err.Error())
			c.Abort()
			return
		}

		c.Set(ContextTeamID, claims.Subject)
		c.Set(ContextTeamName, claims.TeamName)
		c.Next()
	}
}

// AdminTokenMiddleware guards the admin engine with a static bearer token.
// An empty token leaves the engine open, which is only sensible when it
// listens on loopback.
func AdminTokenMiddleware(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		got, problem := bearerToken(c)
		if problem != "" {
			util.Error(c, http.StatusUnauthorized, problem)
			c.Abort()
			return
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			util.Error(c, http.StatusUnauthorized, "invalid admin token")
			c.Abort()
			return
		}
		c.Next()
	}
}

// IPRateLimitMiddleware rejects clients that exceed their per-IP budget.
func IPRateLimitMiddleware(l *ratelimit.IPLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(c.ClientIP()) {
			util.Error(c, http.StatusTooManyRequests, "too many requests")
			c.Abort()
			return
		}
		c.Next()
	}
}

// TeamID returns the id stored by AuthMiddleware.
func TeamID(c *gin.Context) string {
	return c.GetString(ContextTeamID)
}
