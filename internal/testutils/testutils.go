package testutils

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/ZJUSCT/CFBingo/internal/config"
	"github.com/ZJUSCT/CFBingo/internal/database"
	"github.com/ZJUSCT/CFBingo/internal/database/models"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NewDB opens a migrated SQLite database in a temporary directory that is
// removed when the test ends.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "test.db") + "?_busy_timeout=5000"
	db, err := database.Init(config.Storage{Driver: "sqlite", Database: dsn})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// FakeTeam builds a team with a random name and Codeforces handle.
func FakeTeam() models.Team {
	handle := strings.ToLower(gofakeit.Username())
	return models.Team{
		ID:               uuid.NewString(),
		Name:             gofakeit.Company() + " " + gofakeit.LetterN(4),
		CodeforcesHandle: handle,
		Members:          models.StringList{handle},
	}
}

// CreateTeams inserts n fake teams.
func CreateTeams(t testing.TB, db *gorm.DB, n int) []models.Team {
	t.Helper()
	teams := make([]models.Team, 0, n)
	for i := 0; i < n; i++ {
		team := FakeTeam()
		if err := database.CreateTeam(db, &team); err != nil {
			t.Fatalf("failed to create team: %v", err)
		}
		teams = append(teams, team)
	}
	return teams
}
