package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/ZJUSCT/CFBingo/internal/codeforces"
	"github.com/ZJUSCT/CFBingo/internal/database"
	"github.com/ZJUSCT/CFBingo/internal/database/models"
	"github.com/ZJUSCT/CFBingo/internal/metrics"
	"github.com/ZJUSCT/CFBingo/internal/tugofwar"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Result is the match state after a reconcile pass.
type Result struct {
	MatchID        string                   `json:"match_id"`
	ScoreA         int                      `json:"score_a"`
	ScoreB         int                      `json:"score_b"`
	NewSubmissions []models.MatchSubmission `json:"new_submissions"`
	WinningSide    *models.Side             `json:"winning_side"`
	IsTimeout      bool                     `json:"is_timeout"`
	TimeRemaining  int                      `json:"time_remaining"`
	MatchStatus    models.MatchStatus       `json:"match_status"`
	// Completed is true when this pass moved the match to completed.
	Completed bool `json:"completed"`
}

type Reconciler struct {
	db      *gorm.DB
	rules   tugofwar.Rules
	metrics *metrics.Metrics
	now     func() time.Time
}

func New(db *gorm.DB, rules tugofwar.Rules, m *metrics.Metrics) *Reconciler {
	return &Reconciler{
		db:      db,
		rules:   rules,
		metrics: m,
		now:     time.Now,
	}
}

// WithClock replaces the clock used for timeouts and completion times.
func (r *Reconciler) WithClock(now func() time.Time) *Reconciler {
	r.now = now
	return r
}

// Reconcile credits subs to the match exactly once each and settles the match
// if a side has won. Submissions are processed in the order given. Matches
// that are not active are returned unchanged.
func (r *Reconciler) Reconcile(ctx context.Context, matchID string, subs []codeforces.Submission) (*Result, error) {
	var res *Result
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		match, err := database.GetMatch(tx, matchID)
		if err != nil {
			return err
		}
		if match.Status != models.MatchActive {
			res = r.snapshot(match, nil)
			return nil
		}

		created, deltaA, deltaB, err := r.record(tx, match, subs)
		if err != nil {
			return err
		}
		if err := database.AddMatchScores(tx, match.ID, deltaA, deltaB); err != nil {
			return fmt.Errorf("apply score deltas: %w", err)
		}

		match, err = database.GetMatch(tx, matchID)
		if err != nil {
			return err
		}

		now := r.now()
		win := r.rules.CheckWinCondition(match, now)
		res = r.snapshot(match, created)
		res.IsTimeout = win.IsTimeout
		if !win.HasWinner {
			return nil
		}

		ok, err := database.CompleteMatch(tx, match.ID, win.WinningSide, now)
		if err != nil {
			return fmt.Errorf("complete match: %w", err)
		}
		if ok {
			side := win.WinningSide
			res.WinningSide = &side
			res.MatchStatus = models.MatchCompleted
			res.TimeRemaining = 0
			res.Completed = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if res.Completed {
		r.metrics.IncCompleted(string(*res.WinningSide))
		zap.S().Infof("match %s completed, side %s wins (%d:%d)", matchID, *res.WinningSide, res.ScoreA, res.ScoreB)
	}
	for _, s := range res.NewSubmissions {
		r.metrics.IncSubmission(string(s.Side), s.Verdict)
	}
	return res, nil
}

func (r *Reconciler) record(tx *gorm.DB, match *models.Match, subs []codeforces.Submission) ([]models.MatchSubmission, int, int, error) {
	pools := make(map[models.Side][]models.Round2Question, 2)
	for _, side := range []models.Side{models.SideA, models.SideB} {
		pool, err := database.GetPool(tx, match.RoundNumber, side)
		if err != nil {
			return nil, 0, 0, fmt.Errorf("load pool %s: %w", side, err)
		}
		pools[side] = pool
	}

	teams := make(map[models.Side][]models.Team, 2)
	for _, side := range []models.Side{models.SideA, models.SideB} {
		t, err := database.GetTeamsByIDs(tx, match.TeamIDs(side))
		if err != nil {
			return nil, 0, 0, fmt.Errorf("load teams %s: %w", side, err)
		}
		teams[side] = t
	}

	created := make([]models.MatchSubmission, 0)
	deltas := map[models.Side]int{}

	for _, sub := range subs {
		if match.StartTime != nil && sub.CreatedAt.Before(*match.StartTime) {
			continue
		}

		side, handle := tugofwar.SideForAuthors(sub.Handles, match.SideAHandles, match.SideBHandles)
		if side == "" {
			continue
		}
		question := tugofwar.QuestionInPool(sub.ContestID, sub.ProblemIndex, pools[side])
		if question == nil {
			continue
		}
		teamID := tugofwar.TeamIDForHandle(handle, teams[side])
		if teamID == "" {
			zap.S().Debugf("match %s: handle %s on side %s maps to no team, dropping submission %d", match.ID, handle, side, sub.ID)
			continue
		}

		rec := models.MatchSubmission{
			MatchID:      match.ID,
			Side:         side,
			TeamID:       teamID,
			Handle:       handle,
			QuestionID:   question.ID,
			ContestID:    question.ContestID,
			ProblemIndex: question.ProblemIndex,
			SubmissionID: sub.ID,
			Verdict:      sub.Verdict,
			Points:       r.rules.CalculatePoints(sub.Verdict),
			Timestamp:    sub.CreatedAt,
		}
		if sub.Verdict == models.VerdictOK {
			key := models.CreditKey(match.ID, side, question.ID)
			rec.CreditKey = &key
		}

		inserted, err := database.InsertMatchSubmission(tx, &rec)
		if err != nil {
			return nil, 0, 0, fmt.Errorf("record submission %d: %w", sub.ID, err)
		}
		if !inserted {
			if rec.CreditKey == nil {
				continue
			}
			seen, err := database.SubmissionExists(tx, sub.ID)
			if err != nil {
				return nil, 0, 0, err
			}
			if seen {
				continue
			}
			// The side already owns this question: keep the submission as a
			// zero-point record so its id is consumed, but do not report it
			// as new.
			rec.ID = 0
			rec.CreditKey = nil
			rec.Points = 0
			if _, err := database.InsertMatchSubmission(tx, &rec); err != nil {
				return nil, 0, 0, fmt.Errorf("record submission %d: %w", sub.ID, err)
			}
			continue
		}

		deltas[side] += rec.Points
		created = append(created, rec)
	}

	return created, deltas[models.SideA], deltas[models.SideB], nil
}

func (r *Reconciler) snapshot(m *models.Match, created []models.MatchSubmission) *Result {
	if created == nil {
		created = []models.MatchSubmission{}
	}
	remaining := 0
	if m.Status != models.MatchCompleted {
		remaining = r.rules.TimeRemaining(m, r.now())
	}
	return &Result{
		MatchID:        m.ID,
		ScoreA:         m.ScoreA,
		ScoreB:         m.ScoreB,
		NewSubmissions: created,
		WinningSide:    m.WinningSide,
		TimeRemaining:  remaining,
		MatchStatus:    m.Status,
	}
}
