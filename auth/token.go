// Package auth supplies bearer tokens for the market data provider.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrNoToken is returned when no usable token is configured.
var ErrNoToken = errors.New("no market data token configured")

// TokenSource returns the token to send as "Authorization: Bearer <token>".
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a token taken verbatim from configuration.
type StaticToken string

// Token returns the configured value.
func (t StaticToken) Token(context.Context) (string, error) {
	if t == "" {
		return "", ErrNoToken
	}
	return string(t), nil
}

// TokenData is the on-disk token cache written by the login tooling.
type TokenData struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Valid reports whether the token is set and not expiring within skew.
func (d TokenData) Valid(now time.Time, skew time.Duration) bool {
	if d.AccessToken == "" {
		return false
	}
	if d.ExpiresAt.IsZero() {
		return true
	}
	return now.Add(skew).Before(d.ExpiresAt)
}

// FileTokenSource reads a token cache file and re-reads it when the cached token
// is about to expire, so an external refresher can rotate it without a restart.
type FileTokenSource struct {
	path string
	skew time.Duration
	now  func() time.Time

	mu   sync.RWMutex
	data TokenData
}

// NewFileTokenSource creates a source for path. The file is read lazily.
func NewFileTokenSource(path string) *FileTokenSource {
	return &FileTokenSource{path: path, skew: 5 * time.Minute, now: time.Now}
}

// Token returns a valid token, reloading the file if needed.
func (f *FileTokenSource) Token(context.Context) (string, error) {
	f.mu.RLock()
	data := f.data
	f.mu.RUnlock()

	if data.Valid(f.now().UTC(), f.skew) {
		return data.AccessToken, nil
	}

	log.Debug().Msgf("🔄 Reloading token file %s", f.path)
	if err := f.load(); err != nil {
		return "", err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	if !f.data.Valid(f.now().UTC(), 0) {
		return "", fmt.Errorf("token in %s expired at %s", f.path, f.data.ExpiresAt.Format(time.RFC3339))
	}
	return f.data.AccessToken, nil
}

func (f *FileTokenSource) load() error {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("token file not found: %w", ErrNoToken)
		}
		return fmt.Errorf("failed to read token file: %w", err)
	}

	var data TokenData
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("failed to parse token file: %w", err)
	}

	f.mu.Lock()
	f.data = data
	f.mu.Unlock()
	return nil
}

// SaveTokenToFile writes data in the format FileTokenSource reads.
func SaveTokenToFile(path string, data TokenData) error {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token data: %w", err)
	}
	if err := os.WriteFile(path, jsonData, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}

// NewTokenSource prefers the token file when one is configured.
func NewTokenSource(staticToken, tokenFile string) TokenSource {
	if tokenFile != "" {
		return NewFileTokenSource(tokenFile)
	}
	return StaticToken(staticToken)
}
