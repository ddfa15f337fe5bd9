package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethchecksum/ethchecksum/aleph"
)

func TestLoadSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed": {"login": {"login": 1}, "profile": {"version": 2}}
	}`), 0o600))

	store := aleph.NewInMemoryStore(nil)
	n, err := loadSeed(store, path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	raw, err := store.Read(context.Background(), "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", "login")
	require.NoError(t, err)
	assert.JSONEq(t, `{"login":1}`, string(raw))
}

func TestLoadSeed_InvalidAddress(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"bob": {"login": {"login": 1}}}`), 0o600))

	_, err := loadSeed(aleph.NewInMemoryStore(nil), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid seed entry bob/login")
}

func TestLoadSeed_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.json")
	require.NoError(t, os.WriteFile(path, []byte(`[]`), 0o600))

	_, err := loadSeed(aleph.NewInMemoryStore(nil), path)
	assert.Error(t, err)
}
