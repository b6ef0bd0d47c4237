package gdrive

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
)

// DefaultTokenFile is the token file name used when no path is configured
const DefaultTokenFile = "gdrive_token.json"

// ErrNoToken is returned when no usable token is stored
var ErrNoToken = errors.New("no google drive token, run 'gitbox auth gdrive' first")

// Authenticator runs the OAuth flow and keeps the token file current
type Authenticator struct {
	config    *oauth2.Config
	tokenPath string
}

// NewAuthenticator creates a new authenticator
func NewAuthenticator(clientID, clientSecret, tokenPath string) *Authenticator {
	if tokenPath == "" {
		tokenPath = DefaultTokenFile
		if configDir, err := os.UserConfigDir(); err == nil {
			tokenPath = filepath.Join(configDir, "gitbox", DefaultTokenFile)
		}
	}

	return &Authenticator{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			// 只存取本程式建立的檔案
			Scopes:   []string{drive.DriveFileScope},
			Endpoint: google.Endpoint,
		},
		tokenPath: tokenPath,
	}
}

// Token returns the stored token, refreshing and re-saving it when expired
func (a *Authenticator) Token(ctx context.Context) (*oauth2.Token, error) {
	stored, err := a.loadToken()
	if err != nil {
		return nil, ErrNoToken
	}
	if stored.Valid() {
		return stored, nil
	}
	if stored.RefreshToken == "" {
		return nil, fmt.Errorf("token expired: %w", ErrNoToken)
	}

	token, err := a.TokenSource(ctx, stored).Token()
	if err != nil {
		return nil, fmt.Errorf("token refresh failed, run 'gitbox auth gdrive' to re-authenticate: %w", err)
	}
	return token, nil
}

// TokenSource refreshes from token as needed and writes every new token back
// to the token file, so a long-running watcher survives restarts
func (a *Authenticator) TokenSource(ctx context.Context, token *oauth2.Token) oauth2.TokenSource {
	return &persistingSource{
		auth:   a,
		src:    a.config.TokenSource(ctx, token),
		access: token.AccessToken,
	}
}

type persistingSource struct {
	auth *Authenticator
	src  oauth2.TokenSource

	mu     sync.Mutex
	access string
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	token, err := p.src.Token()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if token.AccessToken != p.access {
		if err := p.auth.saveToken(token); err != nil {
			return nil, fmt.Errorf("failed to save refreshed token: %w", err)
		}
		p.access = token.AccessToken
	}
	return token, nil
}

func randomState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// Authenticate runs the manual authorization-code flow, prompting on out and
// reading the code from in
func (a *Authenticator) Authenticate(ctx context.Context, in io.Reader, out io.Writer) (*oauth2.Token, error) {
	state, err := randomState()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state: %w", err)
	}

	authURL := a.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
	fmt.Fprintf(out, "\nTo authorize gitbox to keep its working copy in Google Drive:\n\n")
	fmt.Fprintf(out, "1. Visit this URL:\n   %s\n\n", authURL)
	fmt.Fprintf(out, "2. Sign in and paste the authorization code below\n\n")
	fmt.Fprintf(out, "Enter authorization code: ")

	var code string
	if _, err := fmt.Fscan(in, &code); err != nil {
		return nil, fmt.Errorf("failed to read authorization code: %w", err)
	}

	token, err := a.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code for token: %w", err)
	}
	if err := a.saveToken(token); err != nil {
		return nil, fmt.Errorf("failed to save token: %w", err)
	}

	fmt.Fprintln(out, "\nAuthentication successful! Token saved.")
	return token, nil
}

func (a *Authenticator) loadToken() (*oauth2.Token, error) {
	data, err := os.ReadFile(a.tokenPath)
	if err != nil {
		return nil, err
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("invalid token file: %w", err)
	}
	return &token, nil
}

// saveToken replaces the token file through a temp file in the same directory
func (a *Authenticator) saveToken(token *oauth2.Token) error {
	dir := filepath.Dir(a.tokenPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".token-*")
	if err != nil {
		return fmt.Errorf("failed to create temp token file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0600); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), a.tokenPath); err != nil {
		return fmt.Errorf("failed to rename token file: %w", err)
	}
	return nil
}

// TokenPath returns the path where the token is stored
func (a *Authenticator) TokenPath() string {
	return a.tokenPath
}

// Config returns the OAuth2 config
func (a *Authenticator) Config() *oauth2.Config {
	return a.config
}
