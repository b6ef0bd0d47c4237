// Package github creates remote repositories through the GitHub REST API
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
)

// DefaultBaseURL is the public GitHub API endpoint
const DefaultBaseURL = "https://api.github.com"

// Repository is the subset of the API response gitbox uses
type Repository struct {
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	Private       bool   `json:"private"`
	HTMLURL       string `json:"html_url"`
	CloneURL      string `json:"clone_url"`
	DefaultBranch string `json:"default_branch"`
}

// APIError is a non-2xx API response. Message is GitHub's own text.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("github api returned status %d", e.StatusCode)
	}
	return e.Message
}

// Client talks to the API with a personal access token
type Client struct {
	http    *http.Client
	baseURL string
}

// NewClient creates a client authenticating every request with token
func NewClient(ctx context.Context, token string) (*Client, error) {
	if token == "" {
		return nil, errors.New("github token cannot be empty")
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return &Client{
		http:    oauth2.NewClient(ctx, ts),
		baseURL: DefaultBaseURL,
	}, nil
}

// WithBaseURL points the client at another API root, e.g. GitHub Enterprise
func (c *Client) WithBaseURL(baseURL string) *Client {
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

// CreateRepository creates name under the authenticated user.
// The repository is initialized with a README so its default branch exists.
func (c *Client) CreateRepository(ctx context.Context, name string, private bool) (*Repository, error) {
	if name == "" {
		return nil, errors.New("repository name cannot be empty")
	}

	body, err := json.Marshal(map[string]any{
		"name":      name,
		"private":   private,
		"auto_init": true,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/user/repos", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to create repository: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var payload struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &payload) == nil {
			apiErr.Message = payload.Message
		}
		return nil, apiErr
	}

	var repo Repository
	if err := json.Unmarshal(data, &repo); err != nil {
		return nil, fmt.Errorf("failed to decode repository: %w", err)
	}
	return &repo, nil
}
