package simstate

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SaveLoad(t *testing.T) {
	t.Setenv("PERPSPLIT_SIMULATE_STATE_DIR", "")
	dir := t.TempDir()
	store, err := NewStore(dir, "0xAbC/Main")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "0xabc_main.json"), store.Path())

	state, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, state)

	opened := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	want := State{
		Version:    SchemaVersion,
		Vault:      "606",
		Spend:      "444",
		Native:     "1",
		Allowances: map[string]string{"0xd4": "400"},
		Positions: []StoredPosition{
			{Venue: "primary", Index: 1, Pair: "BTC/USD", Side: "long", Size: "6000", EntryPrice: "50000", Margin: "600", Fees: "6", OpenedAt: opened},
		},
		NextIndex: map[string]uint64{"primary": 2},
		Nonce:     3,
	}
	require.NoError(t, store.Save(want))

	got, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want, *got)

	leftovers, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestStore_LoadVersion(t *testing.T) {
	t.Setenv("PERPSPLIT_SIMULATE_STATE_DIR", "")
	store, err := NewStore(t.TempDir(), "owner")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(store.Path(), []byte(`{"vault":"1","spend":"2","native":"3"}`), 0o600))
	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, got.Version)
	assert.Equal(t, "1", got.Vault)

	require.NoError(t, os.WriteFile(store.Path(), []byte(`{"version":99}`), 0o600))
	_, err = store.Load()
	assert.ErrorIs(t, err, ErrSchemaVersion)

	require.NoError(t, os.WriteFile(store.Path(), []byte(`{`), 0o600))
	_, err = store.Load()
	assert.Error(t, err)
}

func TestNewStore_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PERPSPLIT_SIMULATE_STATE_DIR", dir)
	store, err := NewStore("ignored", "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "default.json"), store.Path())
}

func TestSanitizeScope(t *testing.T) {
	tests := map[string]string{
		"":              "",
		"  BTC/USD ":    "btc_usd",
		"--a--b--":      "a_b",
		"0xDeadBeef":    "0xdeadbeef",
		"owner:primary": "owner_primary",
	}
	for in, want := range tests {
		assert.Equal(t, want, sanitizeScope(in), in)
	}
}
