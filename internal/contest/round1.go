package contest

import (
	"context"
	"fmt"
	"time"

	"github.com/ZJUSCT/CFBingo/internal/bingo"
	"github.com/ZJUSCT/CFBingo/internal/database"
	"github.com/ZJUSCT/CFBingo/internal/database/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Cell struct {
	Position     int    `json:"position"`
	QuestionID   uint   `json:"question_id"`
	ContestID    string `json:"contest_id"`
	ProblemIndex string `json:"problem_index"`
	Name         string `json:"name"`
	URL          string `json:"url"`
	Points       int    `json:"points"`
	Solved       bool   `json:"solved"`
}

// Board is a team's Round 1 grid in its own order together with its score.
type Board struct {
	TeamID             string     `json:"team_id"`
	Cells              []Cell     `json:"cells"`
	SolvedIndices      []int      `json:"solved_indices"`
	CurrentScore       int        `json:"current_score"`
	BingoLines         [][]int    `json:"bingo_lines"`
	LastSubmissionTime *time.Time `json:"last_submission_time"`
	SyncCount          int        `json:"sync_count"`
}

type Round1Sync struct {
	Board    *Board   `json:"board"`
	Warnings []string `json:"warnings,omitempty"`
}

// gridFor returns the team's problems in grid order along with its score row,
// creating the row with a fresh permutation on first use.
func (s *Service) gridFor(db *gorm.DB, teamID string) ([]models.Question, *models.TeamScore, error) {
	questions, err := database.GetAllQuestions(db)
	if err != nil {
		return nil, nil, err
	}
	if len(questions) != bingo.GridSize {
		return nil, nil, ErrBoardNotSeeded
	}

	score, err := database.GetOrCreateTeamScore(db, teamID, s.perm(bingo.GridSize))
	if err != nil {
		return nil, nil, fmt.Errorf("load team score: %w", err)
	}
	if len(score.QuestionOrder) != bingo.GridSize {
		return nil, nil, fmt.Errorf("team %s has a malformed question order", teamID)
	}

	grid := make([]models.Question, bingo.GridSize)
	for pos, idx := range score.QuestionOrder {
		if idx < 0 || idx >= len(questions) {
			return nil, nil, fmt.Errorf("team %s has a malformed question order", teamID)
		}
		grid[pos] = questions[idx]
	}
	return grid, score, nil
}

func toProblems(grid []models.Question) []bingo.Problem {
	problems := make([]bingo.Problem, len(grid))
	for pos, q := range grid {
		problems[pos] = bingo.Problem{
			GridIndex:    pos,
			ContestID:    q.ContestID,
			ProblemIndex: q.ProblemIndex,
			Points:       q.Points,
		}
	}
	return problems
}

func buildBoard(teamID string, grid []models.Question, score *models.TeamScore, pointsPerProblem int) *Board {
	solved := make(map[int]bool, len(score.SolvedIndices))
	for _, idx := range score.SolvedIndices {
		solved[idx] = true
	}

	cells := make([]Cell, len(grid))
	for pos, q := range grid {
		points := q.Points
		if points <= 0 {
			points = pointsPerProblem
		}
		cells[pos] = Cell{
			Position:     pos,
			QuestionID:   q.ID,
			ContestID:    q.ContestID,
			ProblemIndex: q.ProblemIndex,
			Name:         q.Name,
			URL:          q.URL,
			Points:       points,
			Solved:       solved[pos],
		}
	}

	lines := make([][]int, 0, len(score.BingoLines))
	for _, l := range score.BingoLines {
		lines = append(lines, l)
	}
	solvedIndices := []int(score.SolvedIndices)
	if solvedIndices == nil {
		solvedIndices = []int{}
	}
	return &Board{
		TeamID:             teamID,
		Cells:              cells,
		SolvedIndices:      solvedIndices,
		CurrentScore:       score.CurrentScore,
		BingoLines:         lines,
		LastSubmissionTime: score.LastSubmissionTime,
		SyncCount:          score.SyncCount,
	}
}

// Board returns the team's grid, creating its score row on first access.
func (s *Service) Board(ctx context.Context, teamID string) (*Board, error) {
	db := s.db.WithContext(ctx)
	if _, err := s.Team(ctx, teamID); err != nil {
		return nil, err
	}
	grid, score, err := s.gridFor(db, teamID)
	if err != nil {
		return nil, err
	}
	return buildBoard(teamID, grid, score, s.cfg.Round1.PointsPerProblem), nil
}

// SyncRound1 refetches the team's accepted submissions and recomputes its
// score from scratch.
func (s *Service) SyncRound1(ctx context.Context, teamID string) (*Round1Sync, error) {
	team, err := s.Team(ctx, teamID)
	if err != nil {
		return nil, err
	}
	handles := teamHandles(team)
	if len(handles) == 0 {
		return nil, ErrNoHandle
	}
	if err := s.allow(ctx, "round1:"+teamID, s.cfg.RateLimit.Round1Sync); err != nil {
		s.metrics.IncSync("round1", "rate_limited")
		return nil, err
	}

	db := s.db.WithContext(ctx)
	grid, _, err := s.gridFor(db, teamID)
	if err != nil {
		return nil, err
	}

	subs, warnings, err := s.fetchAll(ctx, handles, false)
	if err != nil {
		s.metrics.IncSync("round1", "unavailable")
		return nil, err
	}

	res := s.scorer.CalculateTeamScore(subs, toProblems(grid))
	var last *time.Time
	if !res.LastSolveTime.IsZero() {
		t := res.LastSolveTime
		last = &t
	}
	lines := make([][]int, 0, len(res.BingoLines))
	for _, l := range res.BingoLines {
		lines = append(lines, []int{l[0], l[1], l[2]})
	}

	if err := database.SaveRound1Result(db, teamID, res.SolvedIndices, res.CurrentScore, lines, last); err != nil {
		return nil, fmt.Errorf("save round 1 result: %w", err)
	}
	if err := database.TouchTeamSync(db, teamID, s.now()); err != nil {
		zap.S().Warnf("failed to record sync time for team %s: %v", teamID, err)
	}
	s.metrics.IncSync("round1", "ok")
	zap.S().Infof("round 1 sync for team %s: %d solved, %d lines, score %d", team.Name, len(res.SolvedIndices), len(lines), res.CurrentScore)

	score, err := database.GetTeamScore(db, teamID)
	if err != nil {
		return nil, err
	}
	return &Round1Sync{
		Board:    buildBoard(teamID, grid, score, s.cfg.Round1.PointsPerProblem),
		Warnings: warnings,
	}, nil
}

// Score returns the team's stored Round 1 score.
func (s *Service) Score(ctx context.Context, teamID string) (*models.TeamScore, error) {
	if _, err := s.Team(ctx, teamID); err != nil {
		return nil, err
	}
	_, score, err := s.gridFor(s.db.WithContext(ctx), teamID)
	return score, err
}

func (s *Service) Round1Leaderboard(ctx context.Context) ([]database.LeaderboardEntry, error) {
	return database.GetRound1Leaderboard(s.db.WithContext(ctx))
}

// ResetRound1 deletes every team's Round 1 score; grids are reshuffled on
// next access.
func (s *Service) ResetRound1(ctx context.Context) (int64, error) {
	n, err := database.ResetTeamScores(s.db.WithContext(ctx))
	if err != nil {
		return 0, err
	}
	zap.S().Infof("reset %d round 1 scores", n)
	return n, nil
}
