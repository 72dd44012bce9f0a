package bingo

import (
	"math/rand"
	"strconv"
	"testing"
	"time"

	"github.com/ZJUSCT/CFBingo/internal/codeforces"
	"github.com/ZJUSCT/CFBingo/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func grid() []Problem {
	problems := make([]Problem, 0, GridSize)
	for i := 0; i < GridSize; i++ {
		problems = append(problems, Problem{
			GridIndex:    i,
			ContestID:    strconv.Itoa(1900 + i),
			ProblemIndex: "A",
		})
	}
	return problems
}

func solve(idx int, at time.Time) codeforces.Submission {
	return codeforces.Submission{
		ID:           int64(idx + 1),
		ContestID:    strconv.Itoa(1900 + idx),
		ProblemIndex: "a",
		Verdict:      "OK",
		CreatedAt:    at,
	}
}

func TestMatchSolvedProblems(t *testing.T) {
	base := time.Unix(1700000000, 0)
	subs := []codeforces.Submission{
		solve(4, base),
		solve(0, base),
		solve(4, base.Add(time.Minute)),
		{ID: 99, ContestID: "1", ProblemIndex: "Z"},
	}
	assert.Equal(t, []int{0, 4}, MatchSolvedProblems(subs, grid()))
}

func TestMatchSolvedProblemsIgnoresMalformed(t *testing.T) {
	problems := []Problem{
		{GridIndex: 0, ContestID: "", ProblemIndex: "A"},
		{GridIndex: 12, ContestID: "5", ProblemIndex: "A"},
		{GridIndex: 1, ContestID: "5", ProblemIndex: ""},
	}
	subs := []codeforces.Submission{
		{ContestID: "", ProblemIndex: "A"},
		{ContestID: "5", ProblemIndex: "A"},
		{ContestID: "5", ProblemIndex: ""},
	}
	assert.Empty(t, MatchSolvedProblems(subs, problems))
}

func TestMatchSolvedProblemsOrderIndependent(t *testing.T) {
	base := time.Unix(1700000000, 0)
	subs := []codeforces.Submission{solve(8, base), solve(2, base), solve(5, base), solve(1, base)}
	want := MatchSolvedProblems(subs, grid())

	r := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := append([]codeforces.Submission(nil), subs...)
		r.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		assert.Equal(t, want, MatchSolvedProblems(shuffled, grid()))
	}
}

func TestFindCompletedBingoLines(t *testing.T) {
	tests := []struct {
		name   string
		solved []int
		want   [][3]int
	}{
		{"empty", nil, [][3]int{}},
		{"top row", []int{0, 1, 2}, [][3]int{{0, 1, 2}}},
		{"diagonal and column", []int{0, 4, 8, 1, 7}, [][3]int{{1, 4, 7}, {0, 4, 8}}},
		{"almost", []int{0, 1, 3, 5, 7}, [][3]int{}},
		{"full grid", []int{0, 1, 2, 3, 4, 5, 6, 7, 8}, Lines[:]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FindCompletedBingoLines(tt.solved))
		})
	}
}

func TestCalculateScoreLineBonus(t *testing.T) {
	s := NewScorer(config.Default().Round1)
	problems := grid()

	tests := []struct {
		name   string
		solved []int
		want   int
	}{
		{"nothing", nil, 0},
		{"two singles", []int{0, 4}, 20},
		{"one line", []int{0, 1, 2}, 60},
		{"line plus single", []int{0, 1, 2, 4}, 70},
		{"crossing lines", []int{0, 1, 2, 3, 6}, 120},
		{"full grid", []int{0, 1, 2, 3, 4, 5, 6, 7, 8}, 480},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.CalculateScore(tt.solved, problems))
		})
	}
}

func TestCalculateScoreAdditive(t *testing.T) {
	s := Scorer{PointsPerProblem: 10, BingoBonus: 30, Mode: config.ScoreModeAdditive}
	problems := grid()

	assert.Equal(t, 60, s.CalculateScore([]int{0, 1, 2}, problems))
	assert.Equal(t, 90+8*30, s.CalculateScore([]int{0, 1, 2, 3, 4, 5, 6, 7, 8}, problems))
}

func TestCalculateScoreUsesProblemPoints(t *testing.T) {
	s := NewScorer(config.Default().Round1)
	problems := grid()
	problems[3].Points = 25

	assert.Equal(t, 35, s.CalculateScore([]int{3, 7}, problems))
}

func TestCalculateTeamScore(t *testing.T) {
	s := NewScorer(config.Default().Round1)
	base := time.Unix(1700000000, 0).UTC()
	subs := []codeforces.Submission{
		solve(2, base.Add(2*time.Minute)),
		solve(4, base),
		solve(6, base.Add(time.Minute)),
		{ID: 50, ContestID: "42", ProblemIndex: "A", CreatedAt: base.Add(time.Hour)},
	}

	res := s.CalculateTeamScore(subs, grid())
	require.Equal(t, []int{2, 4, 6}, res.SolvedIndices)
	assert.Equal(t, [][3]int{{2, 4, 6}}, res.BingoLines)
	assert.Equal(t, 60, res.CurrentScore)
	assert.Equal(t, base.Add(2*time.Minute), res.LastSolveTime)

	again := s.CalculateTeamScore(subs, grid())
	assert.Equal(t, res, again)
}
