// Package seed loads the contest roster and problem sets from a YAML file
// into the database.
package seed

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ZJUSCT/CFBingo/internal/auth"
	"github.com/ZJUSCT/CFBingo/internal/bingo"
	"github.com/ZJUSCT/CFBingo/internal/config"
	"github.com/ZJUSCT/CFBingo/internal/database"
	"github.com/ZJUSCT/CFBingo/internal/database/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

type Team struct {
	Name     string   `yaml:"name"`
	Password string   `yaml:"password"`
	Handle   string   `yaml:"handle"`
	Members  []string `yaml:"members"`
	Round2   bool     `yaml:"round2"`
}

type Problem struct {
	Contest string `yaml:"contest"`
	Index   string `yaml:"index"`
	Name    string `yaml:"name"`
	Points  int    `yaml:"points"`
	URL     string `yaml:"url"`
}

type Pool struct {
	Round    int       `yaml:"round"`
	Side     string    `yaml:"side"`
	Problems []Problem `yaml:"problems"`
}

// Match names its teams; handles are taken from the teams' rosters.
type Match struct {
	ID       string   `yaml:"id"`
	Round    int      `yaml:"round"`
	SideA    []string `yaml:"side_a"`
	SideB    []string `yaml:"side_b"`
	Duration int      `yaml:"duration"`
}

type File struct {
	Teams     []Team    `yaml:"teams"`
	Questions []Problem `yaml:"questions"`
	Pools     []Pool    `yaml:"pools"`
	Matches   []Match   `yaml:"matches"`
}

type Summary struct {
	Teams     int `json:"teams"`
	Questions int `json:"questions"`
	Pools     int `json:"pool_problems"`
	Matches   int `json:"matches"`
}

func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func LoadFile(path string) (*File, error) {
	if path == "" {
		return nil, errors.New("no seed file configured")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file '%s': %w", path, err)
	}
	return Parse(data)
}

func parseSide(s string) (models.Side, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "A":
		return models.SideA, nil
	case "B":
		return models.SideB, nil
	}
	return "", fmt.Errorf("invalid side %q", s)
}

func (f *File) Validate() error {
	names := make(map[string]bool, len(f.Teams))
	for _, t := range f.Teams {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			return errors.New("team with empty name")
		}
		if names[name] {
			return fmt.Errorf("duplicate team %q", name)
		}
		names[name] = true
	}

	if n := len(f.Questions); n != 0 && n != bingo.GridSize {
		return fmt.Errorf("round 1 needs exactly %d questions, got %d", bingo.GridSize, n)
	}
	for i, q := range f.Questions {
		if q.Contest == "" || q.Index == "" {
			return fmt.Errorf("question %d is missing contest or index", i)
		}
	}

	for _, p := range f.Pools {
		if p.Round < 1 {
			return fmt.Errorf("pool with invalid round %d", p.Round)
		}
		if _, err := parseSide(p.Side); err != nil {
			return fmt.Errorf("pool for round %d: %w", p.Round, err)
		}
	}

	rounds := make(map[int]bool, len(f.Matches))
	for _, m := range f.Matches {
		if m.Round < 1 {
			return fmt.Errorf("match %q has invalid round %d", m.ID, m.Round)
		}
		if rounds[m.Round] {
			return fmt.Errorf("round %d has more than one match", m.Round)
		}
		rounds[m.Round] = true
		for _, name := range append(append([]string{}, m.SideA...), m.SideB...) {
			if !names[strings.TrimSpace(name)] {
				return fmt.Errorf("match for round %d references unknown team %q", m.Round, name)
			}
		}
	}
	return nil
}

func teamHandles(t Team) []string {
	var out []string
	seen := make(map[string]bool)
	for _, h := range append([]string{t.Handle}, t.Members...) {
		h = strings.TrimSpace(h)
		if h == "" || seen[strings.ToLower(h)] {
			continue
		}
		seen[strings.ToLower(h)] = true
		out = append(out, h)
	}
	return out
}

// Apply upserts everything in f in one transaction. Existing teams keep their
// id and, when no password is given, their password. Matches that have
// already started are left untouched.
func Apply(db *gorm.DB, f *File, round2 config.Round2) (*Summary, error) {
	var sum Summary
	err := db.Transaction(func(tx *gorm.DB) error {
		byName := make(map[string]*models.Team, len(f.Teams))
		for _, t := range f.Teams {
			team, err := upsertTeam(tx, t)
			if err != nil {
				return fmt.Errorf("team %q: %w", t.Name, err)
			}
			byName[team.Name] = team
			sum.Teams++
		}

		for i, q := range f.Questions {
			if err := database.UpsertQuestion(tx, &models.Question{
				GridIndex:    i,
				ContestID:    strings.TrimSpace(q.Contest),
				ProblemIndex: strings.TrimSpace(q.Index),
				Name:         q.Name,
				Points:       q.Points,
				URL:          q.URL,
			}); err != nil {
				return fmt.Errorf("question %d: %w", i, err)
			}
			sum.Questions++
		}

		for _, p := range f.Pools {
			side, _ := parseSide(p.Side)
			for _, q := range p.Problems {
				if err := database.UpsertRound2Question(tx, &models.Round2Question{
					RoundNumber:  p.Round,
					Side:         side,
					ContestID:    strings.TrimSpace(q.Contest),
					ProblemIndex: strings.TrimSpace(q.Index),
					Name:         q.Name,
					URL:          q.URL,
				}); err != nil {
					return fmt.Errorf("pool problem %s%s: %w", q.Contest, q.Index, err)
				}
				sum.Pools++
			}
		}

		for _, m := range f.Matches {
			match := buildMatch(m, byName, round2)
			if err := database.UpsertMatch(tx, match); err != nil {
				return fmt.Errorf("match for round %d: %w", m.Round, err)
			}
			if match.Status != models.MatchWaiting {
				zap.S().Warnf("match for round %d is %s, line-up not changed", m.Round, match.Status)
			}
			sum.Matches++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	zap.S().Infof("seeded %d teams, %d questions, %d pool problems and %d matches", sum.Teams, sum.Questions, sum.Pools, sum.Matches)
	return &sum, nil
}

func upsertTeam(tx *gorm.DB, t Team) (*models.Team, error) {
	name := strings.TrimSpace(t.Name)
	handles := teamHandles(t)
	primary := ""
	if len(handles) > 0 {
		primary = handles[0]
	}

	team := &models.Team{
		ID:               uuid.NewString(),
		Name:             name,
		CodeforcesHandle: primary,
		Members:          models.StringList(handles),
		HasRound2Access:  t.Round2,
	}
	existing, err := database.GetTeamByName(tx, name)
	switch {
	case err == nil:
		team.ID = existing.ID
		team.PasswordHash = existing.PasswordHash
		if team.CodeforcesHandle == "" {
			team.CodeforcesHandle = existing.CodeforcesHandle
			team.Members = existing.Members
		}
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}

	if t.Password != "" {
		hash, err := auth.HashPassword(t.Password)
		if err != nil {
			return nil, err
		}
		team.PasswordHash = hash
	}
	if err := database.UpsertTeam(tx, team); err != nil {
		return nil, err
	}
	return team, nil
}

func buildMatch(m Match, teams map[string]*models.Team, round2 config.Round2) *models.Match {
	id := m.ID
	if id == "" {
		id = uuid.NewString()
	}
	match := &models.Match{
		ID:          id,
		RoundNumber: m.Round,
		ScoreA:      round2.InitialScore,
		ScoreB:      round2.InitialScore,
		Status:      models.MatchWaiting,
		Duration:    m.Duration,
	}
	if match.Duration <= 0 {
		match.Duration = round2.Duration
	}
	add := func(names []string, ids, handles *models.StringList) {
		*ids = models.StringList{}
		*handles = models.StringList{}
		for _, name := range names {
			team := teams[strings.TrimSpace(name)]
			*ids = append(*ids, team.ID)
			*handles = append(*handles, team.Members...)
		}
	}
	add(m.SideA, &match.SideATeamIDs, &match.SideAHandles)
	add(m.SideB, &match.SideBTeamIDs, &match.SideBHandles)
	return match
}
