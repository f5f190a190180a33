package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *Store {
	s, err := NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSetAndGet(t *testing.T) {
	s := setupTestStore(t)

	require.NoError(t, s.Set("medications", []byte(`[]`)))

	val, err := s.Get("medications")
	require.NoError(t, err)
	assert.Equal(t, []byte(`[]`), val)
}

func TestGetMissingKey(t *testing.T) {
	s := setupTestStore(t)

	val, err := s.Get("nope")
	require.NoError(t, err)
	assert.Nil(t, val)
}

func TestOverwrite(t *testing.T) {
	s := setupTestStore(t)

	require.NoError(t, s.Set("k", []byte("a")))
	require.NoError(t, s.Set("k", []byte("b")))

	val, err := s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), val)
}
