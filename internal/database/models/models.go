package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type Side string

const (
	SideA Side = "A"
	SideB Side = "B"
)

type MatchStatus string

const (
	MatchWaiting   MatchStatus = "waiting"
	MatchActive    MatchStatus = "active"
	MatchCompleted MatchStatus = "completed"
)

const VerdictOK = "OK"

// IntList stores a list of integers as a JSON column.
type IntList []int

func (l IntList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]int(l))
	return string(b), err
}

func (l *IntList) Scan(value interface{}) error {
	return scanJSON(value, l)
}

// LineList stores bingo lines as a JSON column.
type LineList [][]int

func (l LineList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([][]int(l))
	return string(b), err
}

func (l *LineList) Scan(value interface{}) error {
	return scanJSON(value, l)
}

// StringList stores a list of strings as a JSON column.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	return string(b), err
}

func (l *StringList) Scan(value interface{}) error {
	return scanJSON(value, l)
}

func scanJSON(value interface{}, dst interface{}) error {
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return errors.New("type assertion to []byte failed")
	}
}

type Team struct {
	ID        string `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Name             string     `gorm:"uniqueIndex" json:"name"`
	CodeforcesHandle string     `gorm:"index" json:"codeforces_handle"`
	Members          StringList `gorm:"type:text" json:"members"`
	PasswordHash     string     `json:"-"`
	HasRound2Access  bool       `gorm:"column:has_round2_access" json:"has_round2_access"`
	LastSync         *time.Time `json:"last_sync"`
}

// Question is a Round 1 grid problem. GridIndex is its position in the seeded
// catalogue; each team sees the catalogue permuted by its TeamScore.QuestionOrder.
type Question struct {
	ID        uint `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time
	UpdatedAt time.Time

	GridIndex    int    `gorm:"uniqueIndex" json:"grid_index"`
	ContestID    string `json:"contest_id"`
	ProblemIndex string `json:"problem_index"`
	Name         string `json:"name"`
	Points       int    `json:"points"`
	URL          string `json:"url"`
}

type TeamScore struct {
	TeamID    string `gorm:"primaryKey" json:"team_id"`
	CreatedAt time.Time
	UpdatedAt time.Time

	QuestionOrder      IntList    `gorm:"type:text" json:"question_order"`
	SolvedIndices      IntList    `gorm:"type:text" json:"solved_indices"`
	CurrentScore       int        `gorm:"index" json:"current_score"`
	BingoLines         LineList   `gorm:"type:text" json:"bingo_lines"`
	LastSubmissionTime *time.Time `json:"last_submission_time"`
	SyncCount          int        `json:"sync_count"`
}

// Round2Question belongs to exactly one side's pool in one round.
type Round2Question struct {
	ID        uint `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time
	UpdatedAt time.Time

	RoundNumber  int    `gorm:"uniqueIndex:idx_round_problem;index:idx_round_side" json:"round_number"`
	Side         Side   `gorm:"index:idx_round_side" json:"side"`
	ContestID    string `gorm:"uniqueIndex:idx_round_problem" json:"contest_id"`
	ProblemIndex string `gorm:"uniqueIndex:idx_round_problem" json:"problem_index"`
	Name         string `json:"name"`
	URL          string `json:"url"`
}

type Match struct {
	ID        string `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time
	UpdatedAt time.Time

	RoundNumber  int         `gorm:"uniqueIndex" json:"round_number"`
	SideATeamIDs StringList  `gorm:"column:side_a_team_ids;type:text" json:"side_a_team_ids"`
	SideAHandles StringList  `gorm:"column:side_a_handles;type:text" json:"side_a_handles"`
	SideBTeamIDs StringList  `gorm:"column:side_b_team_ids;type:text" json:"side_b_team_ids"`
	SideBHandles StringList  `gorm:"column:side_b_handles;type:text" json:"side_b_handles"`
	ScoreA       int         `gorm:"column:score_a" json:"score_a"`
	ScoreB       int         `gorm:"column:score_b" json:"score_b"`
	Status       MatchStatus `gorm:"index" json:"status"`
	WinningSide  *Side       `json:"winning_side"`
	Duration     int         `json:"duration"`
	StartTime    *time.Time  `json:"start_time"`
	EndTime      *time.Time  `json:"end_time"`
}

func (m *Match) TeamIDs(side Side) []string {
	if side == SideA {
		return m.SideATeamIDs
	}
	return m.SideBTeamIDs
}

func (m *Match) Handles(side Side) []string {
	if side == SideA {
		return m.SideAHandles
	}
	return m.SideBHandles
}

func (m *Match) Score(side Side) int {
	if side == SideA {
		return m.ScoreA
	}
	return m.ScoreB
}

// SideOfTeam reports which side teamID plays on.
func (m *Match) SideOfTeam(teamID string) (Side, bool) {
	for _, id := range m.SideATeamIDs {
		if id == teamID {
			return SideA, true
		}
	}
	for _, id := range m.SideBTeamIDs {
		if id == teamID {
			return SideB, true
		}
	}
	return "", false
}

// MatchSubmission is the write-once audit record of one external submission.
// SubmissionID is unique across the whole table. CreditKey is set only on the
// record that credited an accepted solve, so at most one credit per
// (match, side, question) can exist.
type MatchSubmission struct {
	ID        uint `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time

	MatchID      string    `gorm:"index;index:idx_match_side_question" json:"match_id"`
	Side         Side      `gorm:"index:idx_match_side_question" json:"side"`
	TeamID       string    `gorm:"index" json:"team_id"`
	Handle       string    `json:"handle"`
	QuestionID   uint      `gorm:"index:idx_match_side_question" json:"question_id"`
	ContestID    string    `json:"contest_id"`
	ProblemIndex string    `json:"problem_index"`
	SubmissionID int64     `gorm:"uniqueIndex" json:"submission_id"`
	Verdict      string    `gorm:"index:idx_match_side_question" json:"verdict"`
	Points       int       `json:"points"`
	CreditKey    *string   `gorm:"uniqueIndex" json:"-"`
	Timestamp    time.Time `json:"timestamp"`
}

// CreditKey builds the key identifying one side's accepted solve of a question.
func CreditKey(matchID string, side Side, questionID uint) string {
	return fmt.Sprintf("%s:%s:%d", matchID, side, questionID)
}

// RateLimitCounter is a fixed-window request counter shared by every process
// using the same database.
type RateLimitCounter struct {
	ID          uint      `gorm:"primaryKey"`
	Scope       string    `gorm:"uniqueIndex:idx_scope_window"`
	WindowStart int64     `gorm:"uniqueIndex:idx_scope_window"`
	Hits        int       `gorm:"not null;default:0"`
	ExpiresAt   time.Time `gorm:"index"`
}
