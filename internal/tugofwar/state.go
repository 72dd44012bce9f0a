package tugofwar

import (
	"errors"
	"time"

	"github.com/ZJUSCT/CFBingo/internal/config"
	"github.com/ZJUSCT/CFBingo/internal/database/models"
)

var ErrInvalidTransition = errors.New("invalid match status transition")

// Rules are the scoring constants of a tug-of-war match.
type Rules struct {
	InitialScore  int
	WinThreshold  int
	PointsCorrect int
	PointsWrong   int
	Duration      int
}

func NewRules(cfg config.Round2) Rules {
	return Rules{
		InitialScore:  cfg.InitialScore,
		WinThreshold:  cfg.WinThreshold,
		PointsCorrect: cfg.PointsCorrect,
		PointsWrong:   cfg.PointsWrong,
		Duration:      cfg.Duration,
	}
}

type WinResult struct {
	HasWinner   bool
	WinningSide models.Side
	IsTimeout   bool
}

// CalculatePoints returns the score delta for a verdict.
func (r Rules) CalculatePoints(verdict string) int {
	if verdict == models.VerdictOK {
		return r.PointsCorrect
	}
	return r.PointsWrong
}

func (r Rules) duration(m *models.Match) time.Duration {
	d := m.Duration
	if d <= 0 {
		d = r.Duration
	}
	return time.Duration(d) * time.Second
}

// TimeRemaining returns the whole seconds left on the match clock, never
// negative. A match that has not started has its full duration left.
func (r Rules) TimeRemaining(m *models.Match, now time.Time) int {
	if m.StartTime == nil {
		return int(r.duration(m) / time.Second)
	}
	left := m.StartTime.Add(r.duration(m)).Sub(now)
	if left <= 0 {
		return 0
	}
	return int(left / time.Second)
}

func (r Rules) timedOut(m *models.Match, now time.Time) bool {
	return m.StartTime != nil && !now.Before(m.StartTime.Add(r.duration(m)))
}

// CheckWinCondition decides the match from its current scores. Side A
// reaching the threshold is checked first, so A wins when both sides reach it
// in the same batch. On timeout the higher score wins; a tie reports a
// timeout without a winner.
func (r Rules) CheckWinCondition(m *models.Match, now time.Time) WinResult {
	if m.ScoreA >= r.WinThreshold {
		return WinResult{HasWinner: true, WinningSide: models.SideA}
	}
	if m.ScoreB >= r.WinThreshold {
		return WinResult{HasWinner: true, WinningSide: models.SideB}
	}
	if !r.timedOut(m, now) {
		return WinResult{}
	}

	switch {
	case m.ScoreA > m.ScoreB:
		return WinResult{HasWinner: true, WinningSide: models.SideA, IsTimeout: true}
	case m.ScoreB > m.ScoreA:
		return WinResult{HasWinner: true, WinningSide: models.SideB, IsTimeout: true}
	default:
		return WinResult{IsTimeout: true}
	}
}

// Start moves a waiting match to active, resetting both scores.
func (r Rules) Start(m *models.Match, now time.Time) error {
	if m.Status != models.MatchWaiting {
		return ErrInvalidTransition
	}
	m.Status = models.MatchActive
	m.ScoreA = r.InitialScore
	m.ScoreB = r.InitialScore
	if m.Duration <= 0 {
		m.Duration = r.Duration
	}
	start := now
	m.StartTime = &start
	return nil
}

// Complete moves an active match to completed with the given winner.
func Complete(m *models.Match, winner models.Side, now time.Time) error {
	if m.Status != models.MatchActive {
		return ErrInvalidTransition
	}
	if winner != models.SideA && winner != models.SideB {
		return ErrInvalidTransition
	}
	end := now
	m.Status = models.MatchCompleted
	m.WinningSide = &winner
	m.EndTime = &end
	return nil
}
