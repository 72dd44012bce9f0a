package user_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ZJUSCT/CFBingo/internal/api/user"
	"github.com/ZJUSCT/CFBingo/internal/auth"
	"github.com/ZJUSCT/CFBingo/internal/codeforces"
	"github.com/ZJUSCT/CFBingo/internal/config"
	"github.com/ZJUSCT/CFBingo/internal/contest"
	"github.com/ZJUSCT/CFBingo/internal/database"
	"github.com/ZJUSCT/CFBingo/internal/database/models"
	"github.com/ZJUSCT/CFBingo/internal/pubsub"
	"github.com/ZJUSCT/CFBingo/internal/testutils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type stubFetcher map[string][]codeforces.Submission

func (f stubFetcher) FetchSubmissions(_ context.Context, handle string, includeAll bool) ([]codeforces.Submission, error) {
	var out []codeforces.Submission
	for _, s := range f[handle] {
		if includeAll || s.Verdict == models.VerdictOK {
			out = append(out, s)
		}
	}
	return out, nil
}

type envelope struct {
	Code    int             `json:"code"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

type server struct {
	cfg     *config.Config
	db      *gorm.DB
	svc     *contest.Service
	router  *gin.Engine
	fetcher stubFetcher
	team    models.Team
}

func newServer(t *testing.T) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	cfg.Auth.JWT.Secret = "test-secret"
	cfg.RateLimit.Login = config.Bucket{PerMinute: 1, Burst: 2}

	db := testutils.NewDB(t)
	fetcher := stubFetcher{}
	svc := contest.NewService(cfg, db, fetcher, pubsub.NewBroker(), nil)

	hash, err := auth.HashPassword("secret")
	require.NoError(t, err)
	team := models.Team{ID: uuid.NewString(), Name: "Red", CodeforcesHandle: "alice", Members: models.StringList{"alice"}, PasswordHash: hash}
	require.NoError(t, database.CreateTeam(db, &team))

	for i := 0; i < 9; i++ {
		require.NoError(t, database.UpsertQuestion(db, &models.Question{GridIndex: i, ContestID: "1900", ProblemIndex: string(rune('A' + i))}))
	}

	return &server{cfg: cfg, db: db, svc: svc, router: user.NewUserRouter(cfg, svc), fetcher: fetcher, team: team}
}

func (s *server) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}

func (s *server) login(t *testing.T) string {
	t.Helper()
	w, env := s.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"name": "Red", "password": "secret"})
	require.Equal(t, http.StatusOK, w.Code, env.Message)
	var data struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	return data.Token
}

func TestLogin(t *testing.T) {
	s := newServer(t)
	token := s.login(t)
	assert.NotEmpty(t, token)

	w, env := s.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"name": "Red", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, -1, env.Code)

	w, _ = s.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"name": "Red", "password": "secret"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestAuthRequired(t *testing.T) {
	s := newServer(t)
	w, env := s.do(t, http.MethodGet, "/api/v1/round1/board", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Authorization header is required", env.Message)

	w, _ = s.do(t, http.MethodGet, "/api/v1/round1/board", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRound1Flow(t *testing.T) {
	s := newServer(t)
	token := s.login(t)

	w, env := s.do(t, http.MethodGet, "/api/v1/round1/board", token, nil)
	require.Equal(t, http.StatusOK, w.Code, env.Message)
	var board contest.Board
	require.NoError(t, json.Unmarshal(env.Data, &board))
	assert.Len(t, board.Cells, 9)

	s.fetcher["alice"] = []codeforces.Submission{
		{ID: 1, ContestID: "1900", ProblemIndex: "C", Verdict: "OK", CreatedAt: time.Now(), Handles: []string{"alice"}},
	}
	w, env = s.do(t, http.MethodPost, "/api/v1/round1/sync", token, nil)
	require.Equal(t, http.StatusOK, w.Code, env.Message)
	var sync contest.Round1Sync
	require.NoError(t, json.Unmarshal(env.Data, &sync))
	assert.Equal(t, 10, sync.Board.CurrentScore)

	w, env = s.do(t, http.MethodGet, "/api/v1/leaderboard/round1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var entries []database.LeaderboardEntry
	require.NoError(t, json.Unmarshal(env.Data, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "Red", entries[0].TeamName)
	assert.Equal(t, 10, entries[0].Score)
}

func TestSetHandleConflict(t *testing.T) {
	s := newServer(t)
	token := s.login(t)

	w, env := s.do(t, http.MethodPut, "/api/v1/team/handle", token, gin.H{"handle": "petr"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, contest.ErrHandleAlreadySet.Error(), env.Message)
}

func TestRound2Access(t *testing.T) {
	s := newServer(t)
	token := s.login(t)

	w, _ := s.do(t, http.MethodGet, "/api/v1/round2/active-match", token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = s.do(t, http.MethodGet, "/api/v1/round2/matches/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	other := testutils.CreateTeams(t, s.db, 1)[0]
	require.NoError(t, database.UpsertMatch(s.db, &models.Match{
		ID:           "m1",
		RoundNumber:  1,
		SideATeamIDs: models.StringList{other.ID},
		SideAHandles: models.StringList{other.CodeforcesHandle},
		Status:       models.MatchWaiting,
	}))
	w, _ = s.do(t, http.MethodPost, "/api/v1/round2/matches/m1/sync", token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env := s.do(t, http.MethodGet, "/api/v1/round2/matches/m1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var view contest.MatchView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, "Quarterfinals", view.RoundName)
	assert.Equal(t, models.MatchWaiting, view.Status)
}

func TestMatchWebsocket(t *testing.T) {
	s := newServer(t)
	token := s.login(t)
	require.NoError(t, database.UpsertMatch(s.db, &models.Match{ID: "m1", RoundNumber: 1, Status: models.MatchWaiting}))

	srv := httptest.NewServer(s.router)
	defer srv.Close()
	base := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws/matches/m1"

	_, resp, err := websocket.DefaultDialer.Dial(base, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(base+"?token="+token, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var msg pubsub.WsMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "view", msg.Stream)

	_, err = s.svc.StartMatch(context.Background(), "m1")
	require.NoError(t, err)
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, contest.StreamStatus, msg.Stream)
}
