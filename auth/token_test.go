package auth

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticToken(t *testing.T) {
	tok, err := StaticToken("abc").Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)

	_, err = StaticToken("").Token(context.Background())
	assert.True(t, errors.Is(err, ErrNoToken))
}

func TestFileTokenSourceReloadsRotatedToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, SaveTokenToFile(path, TokenData{AccessToken: "first", ExpiresAt: now.Add(time.Hour)}))

	src := NewFileTokenSource(path)
	src.now = func() time.Time { return now }

	tok, err := src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first", tok)

	// Rotated on disk, but the cached one is still valid.
	require.NoError(t, SaveTokenToFile(path, TokenData{AccessToken: "second", ExpiresAt: now.Add(3 * time.Hour)}))
	tok, _ = src.Token(context.Background())
	assert.Equal(t, "first", tok)

	// Inside the refresh skew the file is re-read.
	src.now = func() time.Time { return now.Add(58 * time.Minute) }
	tok, err = src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "second", tok)
}

func TestFileTokenSourceExpired(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, SaveTokenToFile(path, TokenData{AccessToken: "old", ExpiresAt: now.Add(-time.Minute)}))

	src := NewFileTokenSource(path)
	src.now = func() time.Time { return now }

	_, err := src.Token(context.Background())
	assert.Error(t, err)
}

func TestFileTokenSourceMissingFile(t *testing.T) {
	src := NewFileTokenSource(filepath.Join(t.TempDir(), "absent.json"))
	_, err := src.Token(context.Background())
	assert.True(t, errors.Is(err, ErrNoToken))
}
