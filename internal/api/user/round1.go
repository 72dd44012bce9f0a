package user

import (
	"github.com/ZJUSCT/CFBingo/internal/api"
	"github.com/ZJUSCT/CFBingo/internal/util"
	"github.com/gin-gonic/gin"
)

func (h *Handler) getBoard(c *gin.Context) {
	board, err := h.svc.Board(c.Request.Context(), api.TeamID(c))
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, board, "Board retrieved")
}

func (h *Handler) syncRound1(c *gin.Context) {
	res, err := h.svc.SyncRound1(c.Request.Context(), api.TeamID(c))
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

func (h *Handler) getScore(c *gin.Context) {
	score, err := h.svc.Score(c.Request.Context(), api.TeamID(c))
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, gin.H{
		"current_score":        score.CurrentScore,
		"solved_indices":       score.SolvedIndices,
		"bingo_lines":          score.BingoLines,
		"last_submission_time": score.LastSubmissionTime,
		"sync_count":           score.SyncCount,
	}, "Score retrieved")
}

func (h *Handler) getRound1Leaderboard(c *gin.Context) {
	entries, err := h.svc.Round1Leaderboard(c.Request.Context())
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, entries, "Leaderboard retrieved")
}
