package user

import (
	"github.com/ZJUSCT/CFBingo/internal/config"
	"github.com/ZJUSCT/CFBingo/internal/contest"
)

// Handler holds all dependencies for the user API handlers.
type Handler struct {
	cfg *config.Config
	svc *contest.Service
}

// NewHandler creates a new user handler with its dependencies.
func NewHandler(cfg *config.Config, svc *contest.Service) *Handler {
	return &Handler{
		cfg: cfg,
		svc: svc,
	}
}
