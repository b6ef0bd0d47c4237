// Package session holds one repository binding and its observable status.
package session

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/Ning0612/Gitbox/internal/domain"
)

// Session owns the current RepositoryConfig (or none) and the live SyncStatus.
// Only the engine mutates it; readers get copies.
type Session struct {
	mu     sync.RWMutex
	config *domain.RepositoryConfig
	status domain.SyncStatus
}

// New creates a disconnected session
func New() *Session {
	return &Session{}
}

// Config returns a copy of the current config, or nil when none is bound
func (s *Session) Config() *domain.RepositoryConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.config == nil {
		return nil
	}
	cfg := *s.config
	return &cfg
}

// SetConfig replaces the binding; nil clears it
func (s *Session) SetConfig(cfg *domain.RepositoryConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cfg == nil {
		s.config = nil
		return
	}
	c := *cfg
	s.config = &c
}

// Status returns an independent snapshot
func (s *Session) Status() domain.SyncStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status.Clone()
}

// Update mutates the status under lock and returns the resulting snapshot
func (s *Session) Update(fn func(*domain.SyncStatus)) domain.SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn(&s.status)
	return s.status.Clone()
}

// Reset restores the initial disconnected status and clears the binding
func (s *Session) Reset() domain.SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.config = nil
	s.status = domain.SyncStatus{}
	return s.status.Clone()
}

// AuthenticatedURL derives the remote URL carrying credentials
func (s *Session) AuthenticatedURL() (string, error) {
	cfg := s.Config()
	if cfg == nil {
		return "", domain.ErrNotConnected
	}
	return AuthenticatedURL(*cfg)
}

// Credentials returns the username and token for the credential callback
func (s *Session) Credentials() (username, token string) {
	cfg := s.Config()
	if cfg == nil {
		return "", ""
	}
	return credentials(*cfg)
}

// AuthenticatedURL derives the remote URL for cfg.
//
// For github the repository path is reduced to owner/repo and the URL is
// rebuilt as https://<username>:<token>@github.com/<owner>/<repo>.git.
// For generic remotes credentials are injected only into https URLs with a
// token; every other URL is returned unchanged.
func AuthenticatedURL(cfg domain.RepositoryConfig) (string, error) {
	switch cfg.Provider {
	case domain.ProviderGitHub:
		return githubURL(cfg)
	default:
		return genericURL(cfg)
	}
}

func githubURL(cfg domain.RepositoryConfig) (string, error) {
	ownerRepo, err := GitHubRepoPath(cfg.URL)
	if err != nil {
		return "", err
	}

	u := &url.URL{
		Scheme: "https",
		Host:   "github.com",
		Path:   "/" + ownerRepo + ".git",
	}
	if cfg.Token != "" {
		user, token := credentials(cfg)
		u.User = url.UserPassword(user, token)
	}
	return u.String(), nil
}

func genericURL(cfg domain.RepositoryConfig) (string, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return "", fmt.Errorf("%w: invalid repository url: %v", domain.ErrConfigInvalid, err)
	}
	if u.Scheme != "https" || cfg.Token == "" {
		return cfg.URL, nil
	}
	user, token := credentials(cfg)
	u.User = url.UserPassword(user, token)
	return u.String(), nil
}

// GitHubRepoPath extracts "owner/repo" from a github URL or a bare owner/repo path
func GitHubRepoPath(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: invalid repository url: %v", domain.ErrConfigInvalid, err)
	}

	p := strings.Trim(u.Path, "/")
	p = strings.TrimSuffix(p, ".git")
	p = strings.Trim(p, "/")

	parts := strings.Split(p, "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", fmt.Errorf("%w: cannot find owner/repo in %q", domain.ErrConfigInvalid, raw)
	}
	return parts[0] + "/" + strings.TrimSuffix(parts[1], ".git"), nil
}

// the token-only case still needs a username for basic auth
func credentials(cfg domain.RepositoryConfig) (string, string) {
	user := cfg.Username
	if user == "" && cfg.Token != "" {
		user = "x-access-token"
	}
	return user, cfg.Token
}
