// Package platform is a small client for the Heroku Platform API covering
// what a deploy session reads and the single promotion it writes.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// DefaultURL is the production API endpoint.
const DefaultURL = "https://api.heroku.com"

const acceptHeader = "application/vnd.heroku+json; version=3"

// Client talks to the platform API with a bearer token.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	logger     zerolog.Logger
	pollEvery  time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithLogger sets the request logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithPollInterval sets how often promotion status is polled.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) { c.pollEvery = d }
}

// NewClient creates a client authenticated with token.
func NewClient(token string, opts ...Option) *Client {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	httpClient := oauth2.NewClient(context.Background(), src)
	httpClient.Timeout = 30 * time.Second

	c := &Client{
		httpClient: httpClient,
		baseURL:    DefaultURL,
		userAgent:  "hu",
		logger:     zerolog.Nop(),
		pollEvery:  time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int    `json:"-"`
	ID         string `json:"id"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("platform API %d (%s): %s", e.StatusCode, e.ID, e.Message)
	}
	return fmt.Sprintf("platform API %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsUnauthorized reports whether err is a 401 from the API.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	return c.send(ctx, method, path, nil, body, out)
}

func (c *Client) doWithHeader(ctx context.Context, method, path, key, value string, out interface{}) error {
	h := http.Header{}
	h.Set(key, value)
	return c.send(ctx, method, path, h, nil, out)
}

func (c *Client) send(ctx context.Context, method, path string, header http.Header, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header[k] = v
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("platform request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(data, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func escape(s string) string {
	return url.PathEscape(s)
}

// Apps lists the apps visible to the token.
func (c *Client) Apps(ctx context.Context) ([]App, error) {
	var apps []App
	return apps, c.get(ctx, "/apps", &apps)
}

// App returns one app by name or id.
func (c *Client) App(ctx context.Context, app string) (*App, error) {
	var a App
	if err := c.get(ctx, "/apps/"+escape(app), &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// Pipelines lists pipelines.
func (c *Client) Pipelines(ctx context.Context) ([]Pipeline, error) {
	var p []Pipeline
	return p, c.get(ctx, "/pipelines", &p)
}

// Couplings lists every pipeline coupling.
func (c *Client) Couplings(ctx context.Context) ([]Coupling, error) {
	var cs []Coupling
	return cs, c.get(ctx, "/pipeline-couplings", &cs)
}

// PipelineCouplings lists the couplings of one pipeline.
func (c *Client) PipelineCouplings(ctx context.Context, pipelineID string) ([]Coupling, error) {
	var cs []Coupling
	return cs, c.get(ctx, "/pipelines/"+escape(pipelineID)+"/pipeline-couplings", &cs)
}

// Dynos lists the running dynos of an app.
func (c *Client) Dynos(ctx context.Context, app string) ([]Dyno, error) {
	var d []Dyno
	return d, c.get(ctx, "/apps/"+escape(app)+"/dynos", &d)
}

// Formation lists the process formation of an app.
func (c *Client) Formation(ctx context.Context, app string) ([]Formation, error) {
	var f []Formation
	return f, c.get(ctx, "/apps/"+escape(app)+"/formation", &f)
}

// FormationOf returns one process type of an app's formation.
func (c *Client) FormationOf(ctx context.Context, app, processType string) (*Formation, error) {
	var f Formation
	if err := c.get(ctx, "/apps/"+escape(app)+"/formation/"+escape(processType), &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// Release returns a release by version number.
func (c *Client) Release(ctx context.Context, app string, version int) (*Release, error) {
	var r Release
	if err := c.get(ctx, fmt.Sprintf("/apps/%s/releases/%d", escape(app), version), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Slug returns slug metadata.
func (c *Client) Slug(ctx context.Context, app, slugID string) (*Slug, error) {
	var s Slug
	if err := c.get(ctx, "/apps/"+escape(app)+"/slugs/"+escape(slugID), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ConfigVars returns the config vars of an app.
func (c *Client) ConfigVars(ctx context.Context, app string) (map[string]string, error) {
	vars := map[string]string{}
	return vars, c.get(ctx, "/apps/"+escape(app)+"/config-vars", &vars)
}

// Feature returns an app feature such as "preboot".
func (c *Client) Feature(ctx context.Context, app, feature string) (*Feature, error) {
	var f Feature
	if err := c.get(ctx, "/apps/"+escape(app)+"/features/"+escape(feature), &f); err != nil {
		return nil, err
	}
	return &f, nil
}
