package contest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ZJUSCT/CFBingo/internal/database"
	"github.com/ZJUSCT/CFBingo/internal/database/models"
	"github.com/ZJUSCT/CFBingo/internal/pubsub"
	"github.com/ZJUSCT/CFBingo/internal/reconciler"
	"github.com/ZJUSCT/CFBingo/internal/tugofwar"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const FinalRound = 3

var roundNames = map[int]string{
	1: "Quarterfinals",
	2: "Semifinals",
	3: "Finals",
}

func RoundName(n int) string {
	if name, ok := roundNames[n]; ok {
		return name
	}
	return "Unknown"
}

// Streams published on a match topic.
const (
	StreamScore     = "score"
	StreamStatus    = "status"
	StreamCompleted = "completed"
)

type Round2Sync struct {
	Match    *reconciler.Result `json:"match"`
	Warnings []string           `json:"warnings,omitempty"`
}

// SyncRound2 fetches every handle of both sides and reconciles the match.
// A non-empty teamID is a team-initiated sync: the team must play in the
// match and is rate limited.
func (s *Service) SyncRound2(ctx context.Context, matchID, teamID string) (*Round2Sync, error) {
	match, err := database.GetMatch(s.db.WithContext(ctx), matchID)
	if err != nil {
		return nil, notFound(err, "match")
	}

	if teamID != "" {
		if _, ok := match.SideOfTeam(teamID); !ok {
			return nil, ErrNotInMatch
		}
		if err := s.allow(ctx, "round2:"+teamID, s.cfg.RateLimit.Round2Sync); err != nil {
			s.metrics.IncSync("round2", "rate_limited")
			return nil, err
		}
	}
	if match.Status != models.MatchActive {
		return nil, fmt.Errorf("%w (status: %s)", ErrMatchNotActive, match.Status)
	}

	handles := make([]string, 0, len(match.SideAHandles)+len(match.SideBHandles))
	for _, h := range append(append([]string{}, match.SideAHandles...), match.SideBHandles...) {
		if h != "" {
			handles = append(handles, h)
		}
	}

	subs, warnings, err := s.fetchAll(ctx, handles, true)
	if err != nil {
		s.metrics.IncSync("round2", "unavailable")
		return nil, err
	}

	res, err := s.rec.Reconcile(ctx, matchID, subs)
	if err != nil {
		return nil, notFound(err, "match")
	}
	s.metrics.IncSync("round2", "ok")
	s.publish(res)

	return &Round2Sync{Match: res, Warnings: warnings}, nil
}

func (s *Service) publish(res *reconciler.Result) {
	stream := StreamScore
	if res.Completed {
		stream = StreamCompleted
	}
	s.broker.PublishJSON(pubsub.MatchTopic(res.MatchID), stream, res)
}

type TeamRef struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Handle string `json:"handle"`
}

type PoolQuestion struct {
	ID           uint   `json:"id"`
	ContestID    string `json:"contest_id"`
	ProblemIndex string `json:"problem_index"`
	Name         string `json:"name"`
	URL          string `json:"url"`
	Solved       bool   `json:"solved"`
}

type SideView struct {
	Teams     []TeamRef      `json:"teams"`
	Handles   []string       `json:"handles"`
	Score     int            `json:"score"`
	Questions []PoolQuestion `json:"questions"`
}

type MatchView struct {
	MatchID       string             `json:"match_id"`
	RoundNumber   int                `json:"round_number"`
	RoundName     string             `json:"round_name"`
	SideA         SideView           `json:"side_a"`
	SideB         SideView           `json:"side_b"`
	Status        models.MatchStatus `json:"status"`
	WinningSide   *models.Side       `json:"winning_side"`
	TimeRemaining int                `json:"time_remaining"`
	Duration      int                `json:"duration"`
	StartTime     *time.Time         `json:"start_time"`
	EndTime       *time.Time         `json:"end_time"`
}

// MatchView returns the match with its line-up, pools and solved flags.
func (s *Service) MatchView(ctx context.Context, matchID string) (*MatchView, error) {
	db := s.db.WithContext(ctx)
	match, err := database.GetMatch(db, matchID)
	if err != nil {
		return nil, notFound(err, "match")
	}

	solved, err := database.GetSolvedQuestionIDs(db, match.ID)
	if err != nil {
		return nil, err
	}

	view := &MatchView{
		MatchID:     match.ID,
		RoundNumber: match.RoundNumber,
		RoundName:   RoundName(match.RoundNumber),
		Status:      match.Status,
		WinningSide: match.WinningSide,
		Duration:    match.Duration,
		StartTime:   match.StartTime,
		EndTime:     match.EndTime,
	}
	if match.Status != models.MatchCompleted {
		view.TimeRemaining = s.rules.TimeRemaining(match, s.now())
	}

	for _, side := range []models.Side{models.SideA, models.SideB} {
		sv, err := s.sideView(db, match, side, solved[side])
		if err != nil {
			return nil, err
		}
		if side == models.SideA {
			view.SideA = sv
		} else {
			view.SideB = sv
		}
	}
	return view, nil
}

func (s *Service) sideView(db *gorm.DB, match *models.Match, side models.Side, solved map[uint]bool) (SideView, error) {
	ids := match.TeamIDs(side)
	teams, err := database.GetTeamsByIDs(db, ids)
	if err != nil {
		return SideView{}, err
	}
	byID := make(map[string]models.Team, len(teams))
	for _, t := range teams {
		byID[t.ID] = t
	}

	refs := make([]TeamRef, 0, len(ids))
	for _, id := range ids {
		if t, ok := byID[id]; ok {
			refs = append(refs, TeamRef{ID: t.ID, Name: t.Name, Handle: t.CodeforcesHandle})
		}
	}

	pool, err := database.GetPool(db, match.RoundNumber, side)
	if err != nil {
		return SideView{}, err
	}
	questions := make([]PoolQuestion, 0, len(pool))
	for _, q := range pool {
		questions = append(questions, PoolQuestion{
			ID:           q.ID,
			ContestID:    q.ContestID,
			ProblemIndex: q.ProblemIndex,
			Name:         q.Name,
			URL:          q.URL,
			Solved:       solved[q.ID],
		})
	}

	handles := append([]string{}, match.Handles(side)...)
	return SideView{
		Teams:     refs,
		Handles:   handles,
		Score:     match.Score(side),
		Questions: questions,
	}, nil
}

// ActiveMatch describes where a team currently stands in the bracket.
type ActiveMatch struct {
	// State is one of no_match, waiting, active, advanced, champion or
	// eliminated.
	State       string       `json:"state"`
	MatchID     string       `json:"match_id,omitempty"`
	RoundNumber int          `json:"round_number,omitempty"`
	RoundName   string       `json:"round_name,omitempty"`
	Side        models.Side  `json:"side,omitempty"`
	WinningSide *models.Side `json:"winning_side,omitempty"`
}

func (s *Service) requireRound2(ctx context.Context, teamID string) (*models.Team, error) {
	team, err := s.Team(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if !team.HasRound2Access {
		return nil, ErrNoRound2Access
	}
	return team, nil
}

// ActiveMatch resolves the team's current match: its latest match while that
// is waiting or active, the next-round match after a win, or its final
// standing.
func (s *Service) ActiveMatch(ctx context.Context, teamID string) (*ActiveMatch, error) {
	if _, err := s.requireRound2(ctx, teamID); err != nil {
		return nil, err
	}
	matches, err := database.GetAllMatches(s.db.WithContext(ctx))
	if err != nil {
		return nil, err
	}

	var latest *models.Match
	var side models.Side
	for i := range matches {
		if sd, ok := matches[i].SideOfTeam(teamID); ok {
			latest = &matches[i]
			side = sd
		}
	}
	if latest == nil {
		return &ActiveMatch{State: "no_match"}, nil
	}

	am := &ActiveMatch{
		MatchID:     latest.ID,
		RoundNumber: latest.RoundNumber,
		RoundName:   RoundName(latest.RoundNumber),
		Side:        side,
		WinningSide: latest.WinningSide,
	}
	switch latest.Status {
	case models.MatchWaiting, models.MatchActive:
		am.State = string(latest.Status)
	default:
		switch {
		case latest.WinningSide == nil || *latest.WinningSide != side:
			am.State = "eliminated"
		case latest.RoundNumber >= FinalRound:
			am.State = "champion"
		default:
			am.State = "advanced"
		}
	}
	return am, nil
}

type MatchSummary struct {
	MatchID     string             `json:"match_id"`
	RoundNumber int                `json:"round_number"`
	RoundName   string             `json:"round_name"`
	SideA       []string           `json:"side_a"`
	SideB       []string           `json:"side_b"`
	ScoreA      int                `json:"score_a"`
	ScoreB      int                `json:"score_b"`
	Status      models.MatchStatus `json:"status"`
	WinningSide *models.Side       `json:"winning_side"`
}

// Round2Standings lists every match of the bracket. Only Round 2 teams may
// see it.
func (s *Service) Round2Standings(ctx context.Context, teamID string) ([]MatchSummary, error) {
	if _, err := s.requireRound2(ctx, teamID); err != nil {
		return nil, err
	}
	return s.Standings(ctx)
}

func (s *Service) Standings(ctx context.Context) ([]MatchSummary, error) {
	db := s.db.WithContext(ctx)
	matches, err := database.GetAllMatches(db)
	if err != nil {
		return nil, err
	}
	teams, err := database.GetAllTeams(db)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(teams))
	for _, t := range teams {
		names[t.ID] = t.Name
	}
	nameList := func(ids []string) []string {
		out := make([]string, 0, len(ids))
		for _, id := range ids {
			if n, ok := names[id]; ok {
				out = append(out, n)
			}
		}
		return out
	}

	summaries := make([]MatchSummary, 0, len(matches))
	for _, m := range matches {
		summaries = append(summaries, MatchSummary{
			MatchID:     m.ID,
			RoundNumber: m.RoundNumber,
			RoundName:   RoundName(m.RoundNumber),
			SideA:       nameList(m.SideATeamIDs),
			SideB:       nameList(m.SideBTeamIDs),
			ScoreA:      m.ScoreA,
			ScoreB:      m.ScoreB,
			Status:      m.Status,
			WinningSide: m.WinningSide,
		})
	}
	return summaries, nil
}

// StartMatch moves a waiting match to active and starts its clock.
func (s *Service) StartMatch(ctx context.Context, matchID string) (*models.Match, error) {
	db := s.db.WithContext(ctx)
	match, err := database.GetMatch(db, matchID)
	if err != nil {
		return nil, notFound(err, "match")
	}
	if err := s.rules.Start(match, s.now()); err != nil {
		return nil, err
	}
	ok, err := database.StartMatch(db, match)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidTransition
	}
	zap.S().Infof("match %s (%s) started", match.ID, RoundName(match.RoundNumber))
	s.broker.PublishJSON(pubsub.MatchTopic(match.ID), StreamStatus, match)
	return match, nil
}

// ResolveMatch completes an active match whose clock has run out on tied
// scores with the winner chosen by an administrator. Timeouts with a leader
// are left to SettleExpired.
func (s *Service) ResolveMatch(ctx context.Context, matchID string, winner models.Side) (*models.Match, error) {
	db := s.db.WithContext(ctx)
	match, err := database.GetMatch(db, matchID)
	if err != nil {
		return nil, notFound(err, "match")
	}
	if match.Status != models.MatchActive {
		return nil, ErrMatchNotActive
	}
	now := s.now()
	win := s.rules.CheckWinCondition(match, now)
	if !win.IsTimeout {
		return nil, ErrNotTimedOut
	}
	if win.HasWinner {
		return nil, fmt.Errorf("%w: timeout already decides side %s", ErrInvalidTransition, win.WinningSide)
	}
	if err := tugofwar.Complete(match, winner, now); err != nil {
		return nil, err
	}
	ok, err := database.CompleteMatch(db, match.ID, winner, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidTransition
	}
	s.metrics.IncCompleted(string(winner))
	zap.S().Infof("match %s resolved manually, side %s wins", match.ID, winner)
	s.broker.PublishJSON(pubsub.MatchTopic(match.ID), StreamCompleted, match)
	return match, nil
}

// SettleExpired reconciles every active match whose clock has run out
// without fetching, completing those with a winner. Tied matches stay
// active and are returned for manual resolution.
func (s *Service) SettleExpired(ctx context.Context) (completed int, tied []string, err error) {
	matches, err := database.GetActiveMatches(s.db.WithContext(ctx))
	if err != nil {
		return 0, nil, err
	}
	now := s.now()
	for _, m := range matches {
		if s.rules.TimeRemaining(&m, now) > 0 {
			continue
		}
		res, err := s.rec.Reconcile(ctx, m.ID, nil)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return completed, tied, err
		}
		if res.Completed {
			completed++
			s.publish(res)
		} else if res.IsTimeout {
			tied = append(tied, m.ID)
		}
	}
	return completed, tied, nil
}

func (s *Service) ActiveMatchIDs(ctx context.Context) ([]string, error) {
	matches, err := database.GetActiveMatches(s.db.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

func (s *Service) MatchSubmissions(ctx context.Context, matchID string) ([]models.MatchSubmission, error) {
	db := s.db.WithContext(ctx)
	if _, err := database.GetMatch(db, matchID); err != nil {
		return nil, notFound(err, "match")
	}
	return database.GetMatchSubmissions(db, matchID)
}

// PurgeRateLimits drops rate-limit counters whose window has closed.
func (s *Service) PurgeRateLimits(ctx context.Context) (int64, error) {
	return s.limits.Purge(ctx)
}
