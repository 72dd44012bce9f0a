package admin

import (
	"github.com/ZJUSCT/CFBingo/internal/config"
	"github.com/ZJUSCT/CFBingo/internal/contest"
	"github.com/ZJUSCT/CFBingo/internal/metrics"
)

// Handler holds all dependencies for the admin API handlers.
type Handler struct {
	cfg     *config.Config
	svc     *contest.Service
	metrics *metrics.Metrics
}

// NewHandler creates a new admin handler with its dependencies.
func NewHandler(cfg *config.Config, svc *contest.Service, m *metrics.Metrics) *Handler {
	return &Handler{
		cfg:     cfg,
		svc:     svc,
		metrics: m,
	}
}
