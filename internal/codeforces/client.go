package codeforces

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ZJUSCT/CFBingo/internal/config"
	"github.com/ZJUSCT/CFBingo/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

var (
	ErrHandleNotFound = errors.New("codeforces handle not found")
	ErrUnavailable    = errors.New("codeforces api unavailable")
)

// TerminalVerdicts are the verdicts after which a submission is never re-judged.
var TerminalVerdicts = map[string]bool{
	"OK":                        true,
	"WRONG_ANSWER":              true,
	"TIME_LIMIT_EXCEEDED":       true,
	"RUNTIME_ERROR":             true,
	"COMPILATION_ERROR":         true,
	"MEMORY_LIMIT_EXCEEDED":     true,
	"IDLENESS_LIMIT_EXCEEDED":   true,
	"SECURITY_VIOLATED":         true,
	"CRASHED":                   true,
	"INPUT_PREPARATION_CRASHED": true,
	"CHALLENGED":                true,
	"SKIPPED":                   true,
	"REJECTED":                  true,
}

// Submission is one judged submission as seen by the rest of the service.
type Submission struct {
	ID           int64     `json:"id"`
	ContestID    string    `json:"contest_id"`
	ProblemIndex string    `json:"problem_index"`
	ProblemName  string    `json:"problem_name"`
	Verdict      string    `json:"verdict"`
	CreatedAt    time.Time `json:"created_at"`
	Handles      []string  `json:"handles"`
}

type apiResponse struct {
	Status  string          `json:"status"`
	Comment string          `json:"comment"`
	Result  []apiSubmission `json:"result"`
}

type apiSubmission struct {
	ID                  int64 `json:"id"`
	ContestID           int   `json:"contestId"`
	CreationTimeSeconds int64 `json:"creationTimeSeconds"`
	Problem             struct {
		ContestID int    `json:"contestId"`
		Index     string `json:"index"`
		Name      string `json:"name"`
	} `json:"problem"`
	Author struct {
		Members []struct {
			Handle string `json:"handle"`
		} `json:"members"`
	} `json:"author"`
	Verdict string `json:"verdict"`
}

func (s apiSubmission) toSubmission() Submission {
	contestID := s.Problem.ContestID
	if contestID == 0 {
		contestID = s.ContestID
	}
	sub := Submission{
		ID:           s.ID,
		ProblemIndex: s.Problem.Index,
		ProblemName:  s.Problem.Name,
		Verdict:      s.Verdict,
		CreatedAt:    time.Unix(s.CreationTimeSeconds, 0).UTC(),
	}
	if contestID != 0 {
		sub.ContestID = strconv.Itoa(contestID)
	}
	for _, m := range s.Author.Members {
		sub.Handles = append(sub.Handles, m.Handle)
	}
	return sub
}

// Fetcher lists the submissions of a single handle.
type Fetcher interface {
	FetchSubmissions(ctx context.Context, handle string, includeAllVerdicts bool) ([]Submission, error)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
	retryDelay time.Duration
	group      singleflight.Group
	metrics    *metrics.Metrics
}

func NewClient(cfg config.Codeforces, m *metrics.Metrics) *Client {
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	limit := rate.Inf
	if cfg.MinInterval > 0 {
		limit = rate.Every(cfg.MinInterval)
	}
	retries := cfg.MaxRetries
	if retries < 1 {
		retries = 1
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(limit, burst),
		maxRetries: retries,
		retryDelay: cfg.RetryDelay,
		metrics:    m,
	}
}

// FetchSubmissions returns the handle's judged submissions. With
// includeAllVerdicts every terminal verdict is kept, otherwise only accepted
// ones. Concurrent calls for the same handle share one request.
func (c *Client) FetchSubmissions(ctx context.Context, handle string, includeAllVerdicts bool) ([]Submission, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return nil, fmt.Errorf("%w: empty handle", ErrHandleNotFound)
	}

	v, err, _ := c.group.Do(strings.ToLower(handle), func() (interface{}, error) {
		return c.userStatus(ctx, handle)
	})
	if err != nil {
		return nil, err
	}

	all := v.([]Submission)
	subs := make([]Submission, 0, len(all))
	for _, s := range all {
		if includeAllVerdicts {
			if TerminalVerdicts[s.Verdict] {
				subs = append(subs, s)
			}
		} else if s.Verdict == "OK" {
			subs = append(subs, s)
		}
	}
	return subs, nil
}

func (c *Client) userStatus(ctx context.Context, handle string) ([]Submission, error) {
	endpoint := fmt.Sprintf("%s/user.status?handle=%s", c.baseURL, url.QueryEscape(handle))
	body, err := c.doRequest(ctx, endpoint, handle)
	if err != nil {
		return nil, err
	}

	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode response for %s: %v", ErrUnavailable, handle, err)
	}
	if resp.Status != "OK" {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, resp.Comment)
	}

	subs := make([]Submission, 0, len(resp.Result))
	for _, s := range resp.Result {
		subs = append(subs, s.toSubmission())
	}
	zap.S().Debugf("fetched %d submissions for %s", len(subs), handle)
	return subs, nil
}

// doRequest performs the GET with retries. 429 and 5xx are retried with a
// linear backoff; any other non-200 status ends the attempt loop.
func (c *Client) doRequest(ctx context.Context, endpoint, handle string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			zap.S().Debugf("retrying codeforces fetch for %s (attempt %d/%d)", handle, attempt+1, c.maxRetries)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
			case <-time.After(c.retryDelay * time.Duration(attempt)):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limit wait: %v", ErrUnavailable, err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("new request: %w", err)
		}

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.metrics.ObserveCodeforcesRequest("error", time.Since(start))
			lastErr = fmt.Errorf("%w: %v", ErrUnavailable, err)
			zap.S().Warnf("codeforces request for %s failed on attempt %d: %v", handle, attempt+1, err)
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			c.metrics.ObserveCodeforcesRequest("ok", time.Since(start))
			if readErr != nil {
				lastErr = fmt.Errorf("%w: read response: %v", ErrUnavailable, readErr)
				continue
			}
			return body, nil
		case resp.StatusCode == http.StatusBadRequest:
			c.metrics.ObserveCodeforcesRequest("not_found", time.Since(start))
			return nil, fmt.Errorf("%w: %s", ErrHandleNotFound, handle)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
			c.metrics.ObserveCodeforcesRequest("retry", time.Since(start))
			lastErr = fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
			zap.S().Warnf("codeforces returned %d for %s, attempt %d", resp.StatusCode, handle, attempt+1)
			continue
		default:
			c.metrics.ObserveCodeforcesRequest("error", time.Since(start))
			return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
		}
	}

	zap.S().Errorf("codeforces fetch for %s failed after %d attempts: %v", handle, c.maxRetries, lastErr)
	return nil, lastErr
}

// HandleResult carries the outcome of fetching one handle.
type HandleResult struct {
	Handle      string
	Submissions []Submission
	Err         error
}

// FetchMany fetches handles with at most concurrency requests in flight. The
// results are in the same order as handles; a failed handle has Err set.
func FetchMany(ctx context.Context, f Fetcher, handles []string, includeAllVerdicts bool, concurrency int) []HandleResult {
	results := make([]HandleResult, len(handles))
	g, gctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for i, h := range handles {
		i, h := i, h
		g.Go(func() error {
			subs, err := f.FetchSubmissions(gctx, h, includeAllVerdicts)
			results[i] = HandleResult{Handle: h, Submissions: subs, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
