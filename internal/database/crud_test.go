package database_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ZJUSCT/CFBingo/internal/database"
	"github.com/ZJUSCT/CFBingo/internal/database/models"
	"github.com/ZJUSCT/CFBingo/internal/testutils"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestGetOrCreateTeamScoreKeepsFirstOrder(t *testing.T) {
	db := testutils.NewDB(t)
	team := testutils.CreateTeams(t, db, 1)[0]

	first, err := database.GetOrCreateTeamScore(db, team.ID, []int{8, 7, 6, 5, 4, 3, 2, 1, 0})
	require.NoError(t, err)
	second, err := database.GetOrCreateTeamScore(db, team.ID, []int{0, 1, 2, 3, 4, 5, 6, 7, 8})
	require.NoError(t, err)

	assert.Equal(t, models.IntList{8, 7, 6, 5, 4, 3, 2, 1, 0}, first.QuestionOrder)
	assert.Equal(t, first.QuestionOrder, second.QuestionOrder)
	assert.Empty(t, second.SolvedIndices)
}

func TestSaveRound1ResultCountsSyncs(t *testing.T) {
	db := testutils.NewDB(t)
	team := testutils.CreateTeams(t, db, 1)[0]
	_, err := database.GetOrCreateTeamScore(db, team.ID, []int{0, 1, 2, 3, 4, 5, 6, 7, 8})
	require.NoError(t, err)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, database.SaveRound1Result(db, team.ID, []int{0, 1, 2}, 60, [][]int{{0, 1, 2}}, &at))
	require.NoError(t, database.SaveRound1Result(db, team.ID, []int{0, 1, 2}, 60, [][]int{{0, 1, 2}}, &at))

	score, err := database.GetTeamScore(db, team.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, score.SyncCount)
	assert.Equal(t, 60, score.CurrentScore)
	assert.Equal(t, models.LineList{{0, 1, 2}}, score.BingoLines)
	require.NotNil(t, score.LastSubmissionTime)
	assert.True(t, at.Equal(*score.LastSubmissionTime))

	assert.Error(t, database.SaveRound1Result(db, "missing", nil, 0, nil, nil))
}

func TestRound1LeaderboardRanking(t *testing.T) {
	db := testutils.NewDB(t)
	teams := testutils.CreateTeams(t, db, 4)
	early := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	late := early.Add(time.Hour)

	results := []struct {
		score int
		at    *time.Time
	}{
		{70, &late},
		{70, &early},
		{120, &late},
		{0, nil},
	}
	for i, r := range results {
		_, err := database.GetOrCreateTeamScore(db, teams[i].ID, []int{0, 1, 2, 3, 4, 5, 6, 7, 8})
		require.NoError(t, err)
		require.NoError(t, database.SaveRound1Result(db, teams[i].ID, nil, r.score, nil, r.at))
	}

	board, err := database.GetRound1Leaderboard(db)
	require.NoError(t, err)
	require.Len(t, board, 4)

	assert.Equal(t, teams[2].ID, board[0].TeamID)
	assert.Equal(t, 1, board[0].Rank)
	assert.Equal(t, teams[1].ID, board[1].TeamID)
	assert.Equal(t, 2, board[1].Rank)
	assert.Equal(t, teams[0].ID, board[2].TeamID)
	assert.Equal(t, 2, board[2].Rank)
	assert.Equal(t, teams[3].ID, board[3].TeamID)
	assert.Equal(t, 4, board[3].Rank)
}

func newMatch(t *testing.T, round int) *models.Match {
	t.Helper()
	return &models.Match{
		ID:           uuid.NewString(),
		RoundNumber:  round,
		SideAHandles: models.StringList{"alice"},
		SideBHandles: models.StringList{"bob"},
		ScoreA:       50,
		ScoreB:       50,
		Status:       models.MatchActive,
		Duration:     2700,
	}
}

func TestCompleteMatchFirstWriterWins(t *testing.T) {
	db := testutils.NewDB(t)
	m := newMatch(t, 1)
	require.NoError(t, db.Create(m).Error)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ok, err := database.CompleteMatch(db, m.ID, models.SideB, now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = database.CompleteMatch(db, m.ID, models.SideA, now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err := database.GetMatch(db, m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchCompleted, stored.Status)
	require.NotNil(t, stored.WinningSide)
	assert.Equal(t, models.SideB, *stored.WinningSide)
	assert.True(t, now.Equal(*stored.EndTime))
}

func TestAddMatchScoresIsAtomic(t *testing.T) {
	db := testutils.NewDB(t)
	m := newMatch(t, 2)
	require.NoError(t, db.Create(m).Error)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, database.AddMatchScores(db, m.ID, 1, -1))
		}()
	}
	wg.Wait()

	stored, err := database.GetMatch(db, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 60, stored.ScoreA)
	assert.Equal(t, 40, stored.ScoreB)
}

func TestInsertMatchSubmissionUniqueness(t *testing.T) {
	db := testutils.NewDB(t)
	key := models.CreditKey("m1", models.SideA, 7)

	first := &models.MatchSubmission{MatchID: "m1", Side: models.SideA, QuestionID: 7, SubmissionID: 100, Verdict: "OK", Points: 10, CreditKey: &key}
	ok, err := database.InsertMatchSubmission(db, first)
	require.NoError(t, err)
	assert.True(t, ok)

	dup := &models.MatchSubmission{MatchID: "m1", Side: models.SideA, QuestionID: 7, SubmissionID: 100, Verdict: "OK", Points: 10}
	ok, err = database.InsertMatchSubmission(db, dup)
	require.NoError(t, err)
	assert.False(t, ok)

	second := &models.MatchSubmission{MatchID: "m1", Side: models.SideA, QuestionID: 7, SubmissionID: 101, Verdict: "OK", Points: 10, CreditKey: &key}
	ok, err = database.InsertMatchSubmission(db, second)
	require.NoError(t, err)
	assert.False(t, ok)

	exists, err := database.SubmissionExists(db, 101)
	require.NoError(t, err)
	assert.False(t, exists)

	solved, err := database.GetSolvedQuestionIDs(db, "m1")
	require.NoError(t, err)
	assert.True(t, solved[models.SideA][7])
	assert.Empty(t, solved[models.SideB])
}

func TestUpsertMatchKeepsStartedMatch(t *testing.T) {
	db := testutils.NewDB(t)
	m := newMatch(t, 3)
	m.Status = models.MatchWaiting
	require.NoError(t, database.UpsertMatch(db, m))

	update := newMatch(t, 3)
	update.Status = models.MatchWaiting
	update.SideAHandles = models.StringList{"carol"}
	require.NoError(t, database.UpsertMatch(db, update))
	assert.Equal(t, m.ID, update.ID)

	stored, err := database.GetMatchByRound(db, 3)
	require.NoError(t, err)
	assert.Equal(t, models.StringList{"carol"}, stored.SideAHandles)

	require.NoError(t, db.Model(&models.Match{}).Where("id = ?", m.ID).Update("status", models.MatchActive).Error)

	late := newMatch(t, 3)
	late.SideAHandles = models.StringList{"dave"}
	require.NoError(t, database.UpsertMatch(db, late))
	stored, err = database.GetMatchByRound(db, 3)
	require.NoError(t, err)
	assert.Equal(t, models.StringList{"carol"}, stored.SideAHandles)
}

func TestIncrementRateLimit(t *testing.T) {
	db := testutils.NewDB(t)
	window := time.Minute
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 1; i <= 3; i++ {
		n, err := database.IncrementRateLimit(db, "round2:team", start, window)
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}

	n, err := database.IncrementRateLimit(db, "round2:team", start.Add(window), window)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	purged, err := database.PurgeExpiredRateLimits(db, start.Add(90*time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
}

type lineWriter struct {
	mu    sync.Mutex
	lines []string
}

func (w *lineWriter) Printf(format string, args ...interface{}) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lines = append(w.lines, fmt.Sprintf(format, args...))
}

func (w *lineWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.lines)
}

func TestLoggerSkipsRecordNotFound(t *testing.T) {
	w := &lineWriter{}
	db := testutils.NewDB(t).Session(&gorm.Session{Logger: database.NewLogger(w)})

	_, err := database.GetMatch(db, "missing")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
	_, err = database.GetMatchByRound(db, 9)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.Zero(t, w.count())

	var n int
	require.Error(t, db.Raw("SELECT count(*) FROM no_such_table").Scan(&n).Error)
	assert.Equal(t, 1, w.count())
}
