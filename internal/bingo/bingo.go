package bingo

import (
	"sort"
	"strings"
	"time"

	"github.com/ZJUSCT/CFBingo/internal/codeforces"
	"github.com/ZJUSCT/CFBingo/internal/config"
)

const GridSize = 9

// Lines is the catalogue of the 8 lines of a 3x3 grid: rows, columns, then
// the two diagonals.
var Lines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	{0, 4, 8}, {2, 4, 6},
}

// Problem is one cell of a team's grid.
type Problem struct {
	GridIndex    int
	ContestID    string
	ProblemIndex string
	Points       int
}

func (p Problem) valid() bool {
	return p.GridIndex >= 0 && p.GridIndex < GridSize &&
		strings.TrimSpace(p.ContestID) != "" && strings.TrimSpace(p.ProblemIndex) != ""
}

// Matches reports whether the submission is for this problem.
func (p Problem) Matches(contestID, problemIndex string) bool {
	return p.valid() &&
		strings.TrimSpace(p.ContestID) == strings.TrimSpace(contestID) &&
		strings.EqualFold(strings.TrimSpace(p.ProblemIndex), strings.TrimSpace(problemIndex))
}

type Result struct {
	SolvedIndices []int    `json:"solved_indices"`
	CurrentScore  int      `json:"current_score"`
	BingoLines    [][3]int `json:"bingo_lines"`
	// LastSolveTime is the latest creation time among submissions that solved
	// a grid problem, zero when nothing is solved.
	LastSolveTime time.Time `json:"last_solve_time"`
}

// MatchSolvedProblems returns the grid indices, ascending and without
// duplicates, of the problems solved by at least one submission.
func MatchSolvedProblems(subs []codeforces.Submission, problems []Problem) []int {
	indices, _ := matchSolved(subs, problems)
	return indices
}

func matchSolved(subs []codeforces.Submission, problems []Problem) ([]int, time.Time) {
	solved := make(map[int]bool)
	var last time.Time
	for _, s := range subs {
		for _, p := range problems {
			if p.Matches(s.ContestID, s.ProblemIndex) {
				solved[p.GridIndex] = true
				if s.CreatedAt.After(last) {
					last = s.CreatedAt
				}
			}
		}
	}

	indices := make([]int, 0, len(solved))
	for idx := range solved {
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	return indices, last
}

// FindCompletedBingoLines returns the lines fully covered by solved, in
// catalogue order.
func FindCompletedBingoLines(solved []int) [][3]int {
	set := make(map[int]bool, len(solved))
	for _, idx := range solved {
		set[idx] = true
	}

	lines := make([][3]int, 0)
	for _, line := range Lines {
		if set[line[0]] && set[line[1]] && set[line[2]] {
			lines = append(lines, line)
		}
	}
	return lines
}

// Scorer turns solved grid indices into a score.
type Scorer struct {
	PointsPerProblem int
	BingoBonus       int
	Mode             string
}

func NewScorer(cfg config.Round1) Scorer {
	return Scorer{
		PointsPerProblem: cfg.PointsPerProblem,
		BingoBonus:       cfg.BingoBonus,
		Mode:             cfg.ScoreMode,
	}
}

func (s Scorer) pointsFor(idx int, problems []Problem) int {
	for _, p := range problems {
		if p.GridIndex == idx && p.Points > 0 {
			return p.Points
		}
	}
	return s.PointsPerProblem
}

// CalculateScore scores solved. In line-bonus mode every completed line is
// worth the bonus once, and only cells outside all completed lines earn their
// own points. In additive mode every solved cell earns its points and each
// line adds the bonus on top.
func (s Scorer) CalculateScore(solved []int, problems []Problem) int {
	lines := FindCompletedBingoLines(solved)
	score := len(lines) * s.BingoBonus

	inLine := make(map[int]bool)
	if s.Mode != config.ScoreModeAdditive {
		for _, line := range lines {
			for _, idx := range line {
				inLine[idx] = true
			}
		}
	}

	seen := make(map[int]bool, len(solved))
	for _, idx := range solved {
		if seen[idx] || inLine[idx] {
			continue
		}
		seen[idx] = true
		score += s.pointsFor(idx, problems)
	}
	return score
}

func (s Scorer) CalculateTeamScore(subs []codeforces.Submission, problems []Problem) Result {
	solved, last := matchSolved(subs, problems)
	return Result{
		SolvedIndices: solved,
		CurrentScore:  s.CalculateScore(solved, problems),
		BingoLines:    FindCompletedBingoLines(solved),
		LastSolveTime: last,
	}
}
