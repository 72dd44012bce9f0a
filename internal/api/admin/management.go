package admin

import (
	"fmt"
	"net/http"

	"github.com/ZJUSCT/CFBingo/internal/seed"
	"github.com/ZJUSCT/CFBingo/internal/util"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// reload re-applies the seed file. A request body, when present, is used in
// place of the configured file.
func (h *Handler) reload(c *gin.Context) {
	zap.S().Info("starting reload process...")

	var (
		f   *seed.File
		err error
	)
	if c.Request.ContentLength > 0 {
		data, readErr := c.GetRawData()
		if readErr != nil {
			util.Error(c, http.StatusBadRequest, readErr)
			return
		}
		f, err = seed.Parse(data)
	} else {
		f, err = seed.LoadFile(h.cfg.Seed)
	}
	if err != nil {
		util.Error(c, http.StatusBadRequest, fmt.Errorf("failed to load seed: %w", err))
		return
	}

	sum, err := seed.Apply(h.svc.DB().WithContext(c.Request.Context()), f, h.cfg.Round2)
	if err != nil {
		util.Error(c, http.StatusInternalServerError, fmt.Errorf("failed to apply seed: %w", err))
		return
	}
	util.Success(c, sum, "Reload successful")
}

func (h *Handler) resetRound1(c *gin.Context) {
	n, err := h.svc.ResetRound1(c.Request.Context())
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, gin.H{"deleted": n}, "Round 1 scores reset")
}

func (h *Handler) getRound1Leaderboard(c *gin.Context) {
	entries, err := h.svc.Round1Leaderboard(c.Request.Context())
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, entries, "Leaderboard retrieved")
}
