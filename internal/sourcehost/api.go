package sourcehost

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Repo is the subset of repository metadata the pipeline needs.
type Repo struct {
	Name          string    `json:"name"`
	FullName      string    `json:"full_name"`
	DefaultBranch string    `json:"default_branch"`
	Stars         int       `json:"stargazers_count"`
	Forks         int       `json:"forks_count"`
	PushedAt      time.Time `json:"pushed_at"`
	HTMLURL       string    `json:"html_url"`
	Owner         struct {
		Login     string `json:"login"`
		ID        int64  `json:"id"`
		AvatarURL string `json:"avatar_url"`
		Type      string `json:"type"`
	} `json:"owner"`
}

// GetRepo fetches repository metadata.
func (c *Client) GetRepo(ctx context.Context, owner, repo string) (*Repo, error) {
	body, _, err := c.Request(ctx, fmt.Sprintf("/repos/%s/%s", owner, repo))
	if err != nil {
		return nil, err
	}
	var r Repo
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("decode repo: %w", err)
	}
	return &r, nil
}

// ContentEntry is one entry from the repository contents API.
type ContentEntry struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Type string `json:"type"` // "file" or "dir"
	SHA  string `json:"sha"`
	Size int    `json:"size"`
}

// ListContents lists a directory in a repository. A missing directory is not
// an error; it returns an empty slice so discovery can continue.
func (c *Client) ListContents(ctx context.Context, owner, repo, path string) ([]ContentEntry, error) {
	u := fmt.Sprintf("/repos/%s/%s/contents/%s", owner, repo, escapePath(path))
	body, _, err := c.Request(ctx, u)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	var entries []ContentEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		// A file path returns a single object rather than an array.
		var single ContentEntry
		if err2 := json.Unmarshal(body, &single); err2 == nil {
			return []ContentEntry{single}, nil
		}
		return nil, fmt.Errorf("decode contents: %w", err)
	}
	return entries, nil
}

// FileContent is a fetched file with its blob SHA.
type FileContent struct {
	Content string
	SHA     string
}

// GetContent fetches a file and decodes its base64 payload to UTF-8.
func (c *Client) GetContent(ctx context.Context, owner, repo, path string) (*FileContent, error) {
	u := fmt.Sprintf("/repos/%s/%s/contents/%s", owner, repo, escapePath(path))
	body, _, err := c.Request(ctx, u)
	if err != nil {
		return nil, err
	}
	var raw struct {
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
		SHA      string `json:"sha"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode file: %w", err)
	}
	if raw.Encoding != "base64" {
		return &FileContent{Content: raw.Content, SHA: raw.SHA}, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(raw.Content, "\n", ""))
	if err != nil {
		return nil, fmt.Errorf("decode base64 content: %w", err)
	}
	return &FileContent{Content: string(decoded), SHA: raw.SHA}, nil
}

// User is source-host profile data used to refresh authors.
type User struct {
	Login     string `json:"login"`
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
	Bio       string `json:"bio"`
	Type      string `json:"type"`
}

// GetUser fetches a user or organization profile.
func (c *Client) GetUser(ctx context.Context, username string) (*User, error) {
	body, _, err := c.Request(ctx, "/users/"+url.PathEscape(username))
	if err != nil {
		return nil, err
	}
	var u User
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	return &u, nil
}

// Event is one entry from the public event stream.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
	Repo      struct {
		Name string `json:"name"` // "owner/repo"
	} `json:"repo"`
}

// ListPublicEvents fetches one page (up to perPage, max 100) of the public
// event stream. The result is a finite slice; callers sort and iterate once.
func (c *Client) ListPublicEvents(ctx context.Context, perPage int) ([]Event, error) {
	if perPage <= 0 || perPage > 100 {
		perPage = 100
	}
	body, _, err := c.Request(ctx, fmt.Sprintf("/events?per_page=%d", perPage))
	if err != nil {
		return nil, err
	}
	var events []Event
	if err := json.Unmarshal(body, &events); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}
	return events, nil
}

// escapePath escapes each segment of a slash-separated repo path.
func escapePath(p string) string {
	segs := strings.Split(p, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}
