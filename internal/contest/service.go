package contest

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/ZJUSCT/CFBingo/internal/auth"
	"github.com/ZJUSCT/CFBingo/internal/bingo"
	"github.com/ZJUSCT/CFBingo/internal/codeforces"
	"github.com/ZJUSCT/CFBingo/internal/config"
	"github.com/ZJUSCT/CFBingo/internal/database"
	"github.com/ZJUSCT/CFBingo/internal/database/models"
	"github.com/ZJUSCT/CFBingo/internal/metrics"
	"github.com/ZJUSCT/CFBingo/internal/pubsub"
	"github.com/ZJUSCT/CFBingo/internal/ratelimit"
	"github.com/ZJUSCT/CFBingo/internal/reconciler"
	"github.com/ZJUSCT/CFBingo/internal/tugofwar"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service implements the contest operations exposed over HTTP and run by the
// background poller.
type Service struct {
	db      *gorm.DB
	cfg     *config.Config
	fetcher codeforces.Fetcher
	scorer  bingo.Scorer
	rules   tugofwar.Rules
	rec     *reconciler.Reconciler
	limits  *ratelimit.Store
	broker  *pubsub.Broker
	metrics *metrics.Metrics
	now     func() time.Time

	randMu sync.Mutex
	rand   *rand.Rand
}

func NewService(cfg *config.Config, db *gorm.DB, fetcher codeforces.Fetcher, broker *pubsub.Broker, m *metrics.Metrics) *Service {
	rules := tugofwar.NewRules(cfg.Round2)
	if broker == nil {
		broker = pubsub.NewBroker()
	}
	return &Service{
		db:      db,
		cfg:     cfg,
		fetcher: fetcher,
		scorer:  bingo.NewScorer(cfg.Round1),
		rules:   rules,
		rec:     reconciler.New(db, rules, m),
		limits:  ratelimit.NewStore(db),
		broker:  broker,
		metrics: m,
		now:     time.Now,
		rand:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithClock replaces the clock of the service and everything it drives.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	s.rec.WithClock(now)
	s.limits.WithClock(now)
	return s
}

// WithSeed makes grid shuffles deterministic.
func (s *Service) WithSeed(seed int64) *Service {
	s.randMu.Lock()
	s.rand = rand.New(rand.NewSource(seed))
	s.randMu.Unlock()
	return s
}

func (s *Service) Broker() *pubsub.Broker {
	return s.broker
}

func (s *Service) DB() *gorm.DB {
	return s.db
}

func (s *Service) perm(n int) []int {
	s.randMu.Lock()
	defer s.randMu.Unlock()
	return s.rand.Perm(n)
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return err
}

func (s *Service) allow(ctx context.Context, scope string, w config.Window) error {
	ok, err := s.limits.Allow(ctx, scope, w)
	if err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}
	if !ok {
		return ErrRateLimited
	}
	return nil
}

// fetchAll fetches the submissions of every handle. Failed handles become
// warnings; if every handle failed the error is ErrExternalSourceUnavailable.
func (s *Service) fetchAll(ctx context.Context, handles []string, includeAll bool) ([]codeforces.Submission, []string, error) {
	results := codeforces.FetchMany(ctx, s.fetcher, handles, includeAll, s.cfg.Codeforces.Concurrency)

	var (
		subs     []codeforces.Submission
		warnings []string
		failed   int
		lastErr  error
	)
	for _, r := range results {
		if r.Err != nil {
			failed++
			lastErr = r.Err
			warnings = append(warnings, fmt.Sprintf("%s: %v", r.Handle, r.Err))
			zap.S().Warnf("failed to fetch submissions for %s: %v", r.Handle, r.Err)
			continue
		}
		subs = append(subs, r.Submissions...)
	}
	if len(results) > 0 && failed == len(results) {
		return nil, warnings, fmt.Errorf("%w: %v", ErrExternalSourceUnavailable, lastErr)
	}
	return subs, warnings, nil
}

// Authenticate checks a team's credentials.
func (s *Service) Authenticate(ctx context.Context, name, password string) (*models.Team, error) {
	team, err := database.GetTeamByName(s.db.WithContext(ctx), strings.TrimSpace(name))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !auth.CheckPassword(team.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return team, nil
}

func (s *Service) Team(ctx context.Context, teamID string) (*models.Team, error) {
	team, err := database.GetTeam(s.db.WithContext(ctx), teamID)
	if err != nil {
		return nil, notFound(err, "team")
	}
	return team, nil
}

// SetHandle sets the team's Codeforces handle. It can only be set once.
func (s *Service) SetHandle(ctx context.Context, teamID, handle string) (*models.Team, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return nil, ErrNoHandle
	}
	res := s.db.WithContext(ctx).Model(&models.Team{}).
		Where("id = ? AND (codeforces_handle = '' OR codeforces_handle IS NULL)", teamID).
		Updates(map[string]interface{}{
			"codeforces_handle": handle,
			"members":           models.StringList{handle},
		})
	if res.Error != nil {
		return nil, res.Error
	}
	team, err := s.Team(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected == 0 {
		return nil, ErrHandleAlreadySet
	}
	return team, nil
}

// teamHandles lists the distinct handles of a team, primary handle first.
func teamHandles(team *models.Team) []string {
	seen := make(map[string]bool)
	var handles []string
	for _, h := range append([]string{team.CodeforcesHandle}, team.Members...) {
		h = strings.TrimSpace(h)
		if h == "" || seen[strings.ToLower(h)] {
			continue
		}
		seen[strings.ToLower(h)] = true
		handles = append(handles, h)
	}
	return handles
}
