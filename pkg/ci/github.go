// Package ci reads commit status from GitHub.
package ci

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/busyloop/hu/pkg/engine"
)

// DefaultURL is the public GitHub API.
const DefaultURL = "https://api.github.com"

// TokenEnv names the environment variable holding the access token.
const TokenEnv = "HU_GITHUB_ACCESS_TOKEN"

// GitHub reads combined commit statuses for one repository.
type GitHub struct {
	httpClient *http.Client
	baseURL    string
	repo       string
	logger     zerolog.Logger
}

// Option configures a GitHub reader.
type Option func(*GitHub)

// WithBaseURL overrides the API endpoint, e.g. for GitHub Enterprise.
func WithBaseURL(u string) Option {
	return func(g *GitHub) { g.baseURL = strings.TrimRight(u, "/") }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(g *GitHub) { g.logger = logger }
}

// NewGitHub creates a reader for repo ("owner/name").
func NewGitHub(token, repo string, opts ...Option) *GitHub {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := oauth2.NewClient(context.Background(), src)
	httpClient.Timeout = 15 * time.Second

	g := &GitHub{
		httpClient: httpClient,
		baseURL:    DefaultURL,
		repo:       repo,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type combinedStatus struct {
	State    string `json:"state"`
	Statuses []struct {
		Context     string `json:"context"`
		State       string `json:"state"`
		Description string `json:"description"`
		TargetURL   string `json:"target_url"`
	} `json:"statuses"`
}

// CombinedStatus implements engine.CIReader. A commit without any reported
// status yields CIStateUnknown.
func (g *GitHub) CombinedStatus(ctx context.Context, commit string) (engine.CIStatus, error) {
	url := fmt.Sprintf("%s/repos/%s/commits/%s/status", g.baseURL, g.repo, commit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return engine.CIStatus{}, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return engine.CIStatus{}, fmt.Errorf("github status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return engine.CIStatus{}, fmt.Errorf("github status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var cs combinedStatus
	if err := json.NewDecoder(resp.Body).Decode(&cs); err != nil {
		return engine.CIStatus{}, fmt.Errorf("failed to decode github status: %w", err)
	}

	out := engine.CIStatus{Commit: commit}
	if len(cs.Statuses) == 0 {
		g.logger.Debug().Str("commit", commit).Msg("no CI statuses reported")
		return out, nil
	}
	out.State = engine.CIState(cs.State)
	for _, s := range cs.Statuses {
		out.Checks = append(out.Checks, engine.CICheck{
			Context:     s.Context,
			State:       engine.CIState(s.State),
			Description: s.Description,
			URL:         s.TargetURL,
		})
	}
	return out, nil
}
