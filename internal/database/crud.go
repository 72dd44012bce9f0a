package database

import (
	"errors"
	"sort"
	"time"

	"github.com/ZJUSCT/CFBingo/internal/database/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Team CRUD
func CreateTeam(db *gorm.DB, team *models.Team) error {
	return db.Create(team).Error
}

func GetTeam(db *gorm.DB, id string) (*models.Team, error) {
	var team models.Team
	if err := db.Where("id = ?", id).First(&team).Error; err != nil {
		return nil, err
	}
	return &team, nil
}

func GetTeamByName(db *gorm.DB, name string) (*models.Team, error) {
	var team models.Team
	if err := db.Where("name = ?", name).First(&team).Error; err != nil {
		return nil, err
	}
	return &team, nil
}

func GetAllTeams(db *gorm.DB) ([]models.Team, error) {
	var teams []models.Team
	if err := db.Order("name asc").Find(&teams).Error; err != nil {
		return nil, err
	}
	return teams, nil
}

func GetTeamsByIDs(db *gorm.DB, ids []string) ([]models.Team, error) {
	var teams []models.Team
	if len(ids) == 0 {
		return teams, nil
	}
	if err := db.Where("id IN ?", ids).Find(&teams).Error; err != nil {
		return nil, err
	}
	return teams, nil
}

// UpsertTeam creates the team or refreshes its seeded fields, keyed by name.
func UpsertTeam(db *gorm.DB, team *models.Team) error {
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"codeforces_handle", "members", "password_hash", "has_round2_access", "updated_at"}),
	}).Create(team).Error
}

func TouchTeamSync(db *gorm.DB, teamID string, at time.Time) error {
	return db.Model(&models.Team{}).Where("id = ?", teamID).Update("last_sync", at).Error
}

// Question CRUD
func UpsertQuestion(db *gorm.DB, q *models.Question) error {
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "grid_index"}},
		DoUpdates: clause.AssignmentColumns([]string{"contest_id", "problem_index", "name", "points", "url", "updated_at"}),
	}).Create(q).Error
}

func GetAllQuestions(db *gorm.DB) ([]models.Question, error) {
	var questions []models.Question
	if err := db.Order("grid_index asc").Find(&questions).Error; err != nil {
		return nil, err
	}
	return questions, nil
}

// TeamScore CRUD

// GetOrCreateTeamScore returns the team's score row, creating it with order
// when none exists. Concurrent first calls converge on a single row.
func GetOrCreateTeamScore(db *gorm.DB, teamID string, order []int) (*models.TeamScore, error) {
	score := models.TeamScore{
		TeamID:        teamID,
		QuestionOrder: order,
		SolvedIndices: models.IntList{},
		BingoLines:    models.LineList{},
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&score).Error; err != nil {
		return nil, err
	}
	return GetTeamScore(db, teamID)
}

func GetTeamScore(db *gorm.DB, teamID string) (*models.TeamScore, error) {
	var score models.TeamScore
	if err := db.Where("team_id = ?", teamID).First(&score).Error; err != nil {
		return nil, err
	}
	return &score, nil
}

// SaveRound1Result stores a freshly computed score and counts the sync.
func SaveRound1Result(db *gorm.DB, teamID string, solved []int, score int, lines [][]int, lastSubmission *time.Time) error {
	res := db.Model(&models.TeamScore{}).Where("team_id = ?", teamID).Updates(map[string]interface{}{
		"solved_indices":       models.IntList(solved),
		"current_score":        score,
		"bingo_lines":          models.LineList(lines),
		"last_submission_time": lastSubmission,
		"sync_count":           gorm.Expr("sync_count + 1"),
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func ResetTeamScores(db *gorm.DB) (int64, error) {
	res := db.Where("1 = 1").Delete(&models.TeamScore{})
	return res.RowsAffected, res.Error
}

// Leaderboard

type LeaderboardEntry struct {
	Rank               int        `json:"rank"`
	TeamID             string     `json:"team_id"`
	TeamName           string     `json:"team_name"`
	Score              int        `json:"score"`
	SolvedCount        int        `json:"solved_count"`
	BingoCount         int        `json:"bingo_count"`
	LastSubmissionTime *time.Time `json:"last_submission_time"`
}

// GetRound1Leaderboard ranks every team holding a score row: score
// descending, then earliest last submission. Equal scores share a rank.
func GetRound1Leaderboard(db *gorm.DB) ([]LeaderboardEntry, error) {
	var scores []models.TeamScore
	if err := db.Find(&scores).Error; err != nil {
		return nil, err
	}
	var teams []models.Team
	if err := db.Find(&teams).Error; err != nil {
		return nil, err
	}
	names := make(map[string]string, len(teams))
	for _, t := range teams {
		names[t.ID] = t.Name
	}

	entries := make([]LeaderboardEntry, 0, len(scores))
	for _, s := range scores {
		name, ok := names[s.TeamID]
		if !ok {
			continue
		}
		entries = append(entries, LeaderboardEntry{
			TeamID:             s.TeamID,
			TeamName:           name,
			Score:              s.CurrentScore,
			SolvedCount:        len(s.SolvedIndices),
			BingoCount:         len(s.BingoLines),
			LastSubmissionTime: s.LastSubmissionTime,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		ti, tj := entries[i].LastSubmissionTime, entries[j].LastSubmissionTime
		if ti == nil {
			return false
		}
		if tj == nil {
			return true
		}
		if !ti.Equal(*tj) {
			return ti.Before(*tj)
		}
		return entries[i].TeamName < entries[j].TeamName
	})

	rank := 1
	for i := range entries {
		if i > 0 && entries[i].Score < entries[i-1].Score {
			rank = i + 1
		}
		entries[i].Rank = rank
	}
	return entries, nil
}

// Round2Question CRUD
func UpsertRound2Question(db *gorm.DB, q *models.Round2Question) error {
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "round_number"}, {Name: "contest_id"}, {Name: "problem_index"}},
		DoUpdates: clause.AssignmentColumns([]string{"side", "name", "url", "updated_at"}),
	}).Create(q).Error
}

func GetPool(db *gorm.DB, roundNumber int, side models.Side) ([]models.Round2Question, error) {
	var pool []models.Round2Question
	if err := db.Where("round_number = ? AND side = ?", roundNumber, side).
		Order("contest_id asc, problem_index asc").
		Find(&pool).Error; err != nil {
		return nil, err
	}
	return pool, nil
}

// Match CRUD

// UpsertMatch creates the match for its round or refreshes its line-up while
// it has not started.
func UpsertMatch(db *gorm.DB, m *models.Match) error {
	return db.Transaction(func(tx *gorm.DB) error {
		existing, err := GetMatchByRound(tx, m.RoundNumber)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(m).Error
		}
		if err != nil {
			return err
		}
		m.ID = existing.ID
		if existing.Status != models.MatchWaiting {
			*m = *existing
			return nil
		}
		return tx.Model(existing).Updates(map[string]interface{}{
			"side_a_team_ids": m.SideATeamIDs,
			"side_a_handles":  m.SideAHandles,
			"side_b_team_ids": m.SideBTeamIDs,
			"side_b_handles":  m.SideBHandles,
			"score_a":         m.ScoreA,
			"score_b":         m.ScoreB,
			"duration":        m.Duration,
		}).Error
	})
}

func GetMatch(db *gorm.DB, id string) (*models.Match, error) {
	var m models.Match
	if err := db.Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func GetMatchByRound(db *gorm.DB, roundNumber int) (*models.Match, error) {
	var m models.Match
	if err := db.Where("round_number = ?", roundNumber).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func GetAllMatches(db *gorm.DB) ([]models.Match, error) {
	var matches []models.Match
	if err := db.Order("round_number asc").Find(&matches).Error; err != nil {
		return nil, err
	}
	return matches, nil
}

func GetActiveMatches(db *gorm.DB) ([]models.Match, error) {
	var matches []models.Match
	if err := db.Where("status = ?", models.MatchActive).Order("round_number asc").Find(&matches).Error; err != nil {
		return nil, err
	}
	return matches, nil
}

// StartMatch activates a waiting match. It reports false when the match was
// not waiting.
func StartMatch(db *gorm.DB, m *models.Match) (bool, error) {
	res := db.Model(&models.Match{}).
		Where("id = ? AND status = ?", m.ID, models.MatchWaiting).
		Updates(map[string]interface{}{
			"status":     m.Status,
			"score_a":    m.ScoreA,
			"score_b":    m.ScoreB,
			"duration":   m.Duration,
			"start_time": m.StartTime,
		})
	return res.RowsAffected == 1, res.Error
}

// AddMatchScores applies score deltas atomically.
func AddMatchScores(db *gorm.DB, matchID string, deltaA, deltaB int) error {
	if deltaA == 0 && deltaB == 0 {
		return nil
	}
	return db.Model(&models.Match{}).Where("id = ?", matchID).Updates(map[string]interface{}{
		"score_a": gorm.Expr("score_a + ?", deltaA),
		"score_b": gorm.Expr("score_b + ?", deltaB),
	}).Error
}

// CompleteMatch records the winner if the match is still active. Only the
// first caller succeeds; later callers get false.
func CompleteMatch(db *gorm.DB, matchID string, winner models.Side, at time.Time) (bool, error) {
	res := db.Model(&models.Match{}).
		Where("id = ? AND status = ?", matchID, models.MatchActive).
		Updates(map[string]interface{}{
			"status":       models.MatchCompleted,
			"winning_side": winner,
			"end_time":     at,
		})
	return res.RowsAffected == 1, res.Error
}

// MatchSubmission CRUD

// InsertMatchSubmission writes sub unless a row with the same submission id
// or credit key exists. It reports whether a row was written.
func InsertMatchSubmission(db *gorm.DB, sub *models.MatchSubmission) (bool, error) {
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(sub)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func SubmissionExists(db *gorm.DB, submissionID int64) (bool, error) {
	var count int64
	err := db.Model(&models.MatchSubmission{}).Where("submission_id = ?", submissionID).Count(&count).Error
	return count > 0, err
}

func GetMatchSubmissions(db *gorm.DB, matchID string) ([]models.MatchSubmission, error) {
	var subs []models.MatchSubmission
	if err := db.Where("match_id = ?", matchID).Order("timestamp asc, submission_id asc").Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

// GetSolvedQuestionIDs returns the questions each side has been credited for.
func GetSolvedQuestionIDs(db *gorm.DB, matchID string) (map[models.Side]map[uint]bool, error) {
	var rows []models.MatchSubmission
	if err := db.Select("side", "question_id").
		Where("match_id = ? AND credit_key IS NOT NULL", matchID).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	solved := map[models.Side]map[uint]bool{
		models.SideA: {},
		models.SideB: {},
	}
	for _, r := range rows {
		if solved[r.Side] != nil {
			solved[r.Side][r.QuestionID] = true
		}
	}
	return solved, nil
}

// Rate limiting

// IncrementRateLimit bumps the counter of scope in the window starting at
// windowStart and returns the new count.
func IncrementRateLimit(db *gorm.DB, scope string, windowStart time.Time, window time.Duration) (int, error) {
	var hits int
	err := db.Transaction(func(tx *gorm.DB) error {
		counter := models.RateLimitCounter{
			Scope:       scope,
			WindowStart: windowStart.Unix(),
			Hits:        1,
			ExpiresAt:   windowStart.Add(window),
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "scope"}, {Name: "window_start"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"hits": gorm.Expr("rate_limit_counters.hits + 1"),
			}),
		}).Create(&counter).Error; err != nil {
			return err
		}
		return tx.Model(&models.RateLimitCounter{}).
			Select("hits").
			Where("scope = ? AND window_start = ?", scope, windowStart.Unix()).
			Scan(&hits).Error
	})
	return hits, err
}

func PurgeExpiredRateLimits(db *gorm.DB, now time.Time) (int64, error) {
	res := db.Where("expires_at < ?", now).Delete(&models.RateLimitCounter{})
	return res.RowsAffected, res.Error
}
