package contest

import (
	"context"
	"fmt"
	"strings"

	"github.com/ZJUSCT/CFBingo/internal/auth"
	"github.com/ZJUSCT/CFBingo/internal/database"
	"github.com/ZJUSCT/CFBingo/internal/database/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type NewTeam struct {
	Name     string   `json:"name" binding:"required"`
	Password string   `json:"password" binding:"required"`
	Handle   string   `json:"handle"`
	Members  []string `json:"members"`
	Round2   bool     `json:"round2"`
}

// TeamPatch holds the fields an administrator may change. Nil fields are kept.
type TeamPatch struct {
	Handle  *string  `json:"handle"`
	Members []string `json:"members"`
	Round2  *bool    `json:"round2"`
}

func (s *Service) Teams(ctx context.Context) ([]models.Team, error) {
	return database.GetAllTeams(s.db.WithContext(ctx))
}

func (s *Service) CreateTeam(ctx context.Context, req NewTeam) (*models.Team, error) {
	db := s.db.WithContext(ctx)
	name := strings.TrimSpace(req.Name)
	if _, err := database.GetTeamByName(db, name); err == nil {
		return nil, ErrTeamExists
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	team := &models.Team{
		ID:              uuid.NewString(),
		Name:            name,
		PasswordHash:    hash,
		HasRound2Access: req.Round2,
	}
	team.Members = models.StringList(teamHandles(&models.Team{CodeforcesHandle: req.Handle, Members: req.Members}))
	if len(team.Members) > 0 {
		team.CodeforcesHandle = team.Members[0]
	}
	if err := database.CreateTeam(db, team); err != nil {
		return nil, err
	}
	zap.S().Infof("team %s created", team.Name)
	return team, nil
}

// UpdateTeam applies patch to the team. Unlike SetHandle it may overwrite an
// existing handle.
func (s *Service) UpdateTeam(ctx context.Context, teamID string, patch TeamPatch) (*models.Team, error) {
	team, err := s.Team(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if patch.Handle != nil {
		team.CodeforcesHandle = strings.TrimSpace(*patch.Handle)
	}
	if patch.Members != nil {
		team.Members = models.StringList(patch.Members)
	}
	if patch.Handle != nil || patch.Members != nil {
		team.Members = models.StringList(teamHandles(team))
	}
	if patch.Round2 != nil {
		team.HasRound2Access = *patch.Round2
	}
	if err := s.db.WithContext(ctx).Save(team).Error; err != nil {
		return nil, err
	}
	return team, nil
}

func (s *Service) ResetPassword(ctx context.Context, teamID, password string) error {
	if _, err := s.Team(ctx, teamID); err != nil {
		return err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.db.WithContext(ctx).Model(&models.Team{}).Where("id = ?", teamID).Update("password_hash", hash).Error
}
