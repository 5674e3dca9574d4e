package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	ok, err := s.Exists(ctx, "series/ohlcv/BBCA.csv")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Get(ctx, "series/ohlcv/BBCA.csv")
	var nf *NotFoundError
	assert.True(t, errors.As(err, &nf))

	require.NoError(t, s.Put(ctx, "series/ohlcv/BBCA.csv", []byte("a"), "text/csv"))
	require.NoError(t, s.Put(ctx, "series/ohlcv/BBRI.csv", []byte("b"), "text/csv"))
	require.NoError(t, s.Put(ctx, "series/bidask/BBCA.csv", []byte("c"), "text/csv"))

	data, err := s.Get(ctx, "series/ohlcv/BBCA.csv")
	require.NoError(t, err)
	assert.Equal(t, "a", string(data))

	keys, err := s.List(ctx, "series/ohlcv/")
	require.NoError(t, err)
	assert.Equal(t, []string{"series/ohlcv/BBCA.csv", "series/ohlcv/BBRI.csv"}, keys)
	assert.Equal(t, 3, s.PutCount())
}

func TestMemoryStoreCopiesOnWrite(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	buf := []byte("original")
	require.NoError(t, s.Put(ctx, "k", buf, "text/plain"))
	buf[0] = 'X'

	data, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))
}

func TestReadOptional(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	data, found, err := ReadOptional(ctx, s, "missing")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, data)

	require.NoError(t, s.Put(ctx, "present", []byte("x"), "text/plain"))
	data, found, err = ReadOptional(ctx, s, "present")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "x", string(data))
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `orderflow/2024\_01/`, escapeLike("orderflow/2024_01/"))
	assert.Equal(t, `a\%b`, escapeLike("a%b"))
}
