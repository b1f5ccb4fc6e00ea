// Package client provides the Go SDK for the skilldex registry: catalog
// search and detail, ZIP downloads, favorites, and the device-auth flow used
// by headless clients.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// ErrNotFound is returned when the registry answers 404.
var ErrNotFound = errors.New("skill not found in registry")

// SkillSummary is one row of a search response.
type SkillSummary struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Owner       string   `json:"owner"`
	Repo        string   `json:"repo"`
	Stars       int      `json:"stars"`
	UpdatedAt   string   `json:"updatedAt"`
	Categories  []string `json:"categories"`
	Visibility  string   `json:"visibility"`
	Slug        string   `json:"slug"`
}

// SearchResult is the response of Search.
type SearchResult struct {
	Skills []SkillSummary `json:"skills"`
	Total  int            `json:"total"`
}

// SkillDocument is the detail response, document included.
type SkillDocument struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Owner       string   `json:"owner"`
	Repo        string   `json:"repo"`
	Stars       int      `json:"stars"`
	UpdatedAt   string   `json:"updatedAt"`
	Categories  []string `json:"categories"`
	Content     string   `json:"content"`
	GithubURL   string   `json:"githubUrl"`
	Visibility  string   `json:"visibility"`
}

// Category is one taxonomy entry with its live skill count.
type Category struct {
	Slug       string `json:"slug"`
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	SkillCount int    `json:"skillCount"`
}

// Client is the registry SDK entry point.
type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string

	mu          sync.Mutex
	bearerToken string
}

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBearerToken attaches a pre-obtained bearer token to every request.
func WithBearerToken(token string) Option {
	return func(c *Client) { c.bearerToken = token }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// New creates a Client for the registry at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		userAgent:  "skilldex-client/1.0",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetBearerToken replaces the bearer token used for subsequent requests.
func (c *Client) SetBearerToken(token string) {
	c.mu.Lock()
	c.bearerToken = token
	c.mu.Unlock()
}

// SearchParams filter a catalog search.
type SearchParams struct {
	Query          string
	Category       string
	Limit          int
	Offset         int
	IncludePrivate bool
}

// Search runs a catalog search.
func (c *Client) Search(ctx context.Context, p SearchParams) (*SearchResult, error) {
	q := make([]string, 0, 5)
	add := func(k, v string) {
		if v != "" {
			q = append(q, k+"="+v)
		}
	}
	add("q", p.Query)
	add("category", p.Category)
	if p.Limit > 0 {
		add("limit", fmt.Sprintf("%d", p.Limit))
	}
	if p.Offset > 0 {
		add("offset", fmt.Sprintf("%d", p.Offset))
	}
	if p.IncludePrivate {
		add("include_private", "true")
	}
	path := "/registry/search"
	if len(q) > 0 {
		path += "?" + strings.Join(q, "&")
	}

	var out SearchResult
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetSkill fetches a skill by (owner, name).
func (c *Client) GetSkill(ctx context.Context, owner, name string) (*SkillDocument, error) {
	var out SkillDocument
	if err := c.getJSON(ctx, "/registry/skill/"+owner+"/"+name, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetSkillByIdentifier fetches a skill by slug or "@owner/name".
func (c *Client) GetSkillByIdentifier(ctx context.Context, identifier string) (*SkillDocument, error) {
	var out SkillDocument
	if err := c.getJSON(ctx, "/registry/skill/"+identifier, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Download fetches the skill's ZIP archive.
func (c *Client) Download(ctx context.Context, slug string) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, "/skills/"+slug+"/download", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	return io.ReadAll(resp.Body)
}

// Categories lists the category taxonomy.
func (c *Client) Categories(ctx context.Context) ([]Category, error) {
	var out struct {
		Categories []Category `json:"categories"`
	}
	if err := c.getJSON(ctx, "/categories", &out); err != nil {
		return nil, err
	}
	return out.Categories, nil
}

// Favorite marks or unmarks a skill as a favorite.
func (c *Client) Favorite(ctx context.Context, slug string, favored bool) error {
	method := http.MethodPost
	if !favored {
		method = http.MethodDelete
	}
	body, _ := json.Marshal(map[string]string{"slug": slug})
	resp, err := c.do(ctx, method, "/favorites", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

// ── Plumbing ──────────────────────────────────────────────────────────────────

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.mu.Lock()
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}
	c.mu.Unlock()
	return c.httpClient.Do(req)
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	var envelope struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(data, &envelope) == nil && envelope.Error != "" {
		return fmt.Errorf("registry: %s (status %d)", envelope.Error, resp.StatusCode)
	}
	return fmt.Errorf("registry: unexpected status %d", resp.StatusCode)
}
