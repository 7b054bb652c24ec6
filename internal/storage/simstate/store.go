// Package simstate persists the simulated execution account so restarts keep balances and open positions.
package simstate

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

const (
	defaultStateDir = "./wal/simulate"
	stateDirEnv     = "PERPSPLIT_SIMULATE_STATE_DIR"

	// SchemaVersion is written into every saved state.
	SchemaVersion = 1
)

// ErrSchemaVersion is returned by Load for a state file written by an incompatible build.
var ErrSchemaVersion = errors.New("unsupported simulate state version")

var scopeJunk = regexp.MustCompile(`[^a-z0-9]+`)

// Store keeps the simulator state of one account in a single JSON file.
type Store struct {
	path string
}

// NewStore creates a state store under dir for the given scope, usually the account address.
// PERPSPLIT_SIMULATE_STATE_DIR overrides dir.
func NewStore(dir, scope string) (*Store, error) {
	if env := os.Getenv(stateDirEnv); env != "" {
		dir = env
	}
	if dir == "" {
		dir = defaultStateDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create simulate state dir")
	}

	name := sanitizeScope(scope)
	if name == "" {
		name = "default"
	}
	return &Store{path: filepath.Join(dir, name+".json")}, nil
}

// State all persisted simulator data. Amounts are decimal strings.
type State struct {
	Version    int               `json:"version"`
	Vault      string            `json:"vault"`
	Spend      string            `json:"spend"`
	Native     string            `json:"native"`
	Allowances map[string]string `json:"allowances,omitempty"`
	Positions  []StoredPosition  `json:"positions,omitempty"`
	NextIndex  map[string]uint64 `json:"next_index,omitempty"`
	Nonce      uint64            `json:"nonce"`
}

// StoredPosition serializable open position of either venue.
type StoredPosition struct {
	Venue      string    `json:"venue"`
	Index      uint64    `json:"index"`
	Pair       string    `json:"pair"`
	Side       string    `json:"side"`
	Size       string    `json:"size"`
	EntryPrice string    `json:"entry_price"`
	Margin     string    `json:"margin"`
	Fees       string    `json:"fees"`
	OpenedAt   time.Time `json:"opened_at"`
}

// Load returns the saved state, or nil when nothing was saved yet.
func (s *Store) Load() (*State, error) {
	if s == nil || s.path == "" {
		return nil, nil
	}

	payload, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, nil
	case err != nil:
		return nil, errors.Wrap(err, "read simulate state")
	case len(payload) == 0:
		return nil, nil
	}

	state := new(State)
	if err := json.Unmarshal(payload, state); err != nil {
		return nil, errors.Wrap(err, "decode simulate state")
	}
	// files written before versioning carry 0
	if state.Version != 0 && state.Version != SchemaVersion {
		return nil, errors.Wrapf(ErrSchemaVersion, "%s has version %d", s.path, state.Version)
	}
	state.Version = SchemaVersion
	return state, nil
}

// Save replaces the state file. The new content is synced before it becomes visible.
func (s *Store) Save(state State) error {
	if s == nil || s.path == "" {
		return nil
	}
	state.Version = SchemaVersion

	payload, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode simulate state")
	}

	f, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "create simulate state temp file")
	}
	tmp := f.Name()
	defer os.Remove(tmp) //nolint:errcheck

	if _, err := f.Write(payload); err != nil {
		f.Close() //nolint:errcheck
		return errors.Wrap(err, "write simulate state temp file")
	}
	if err := f.Sync(); err != nil {
		f.Close() //nolint:errcheck
		return errors.Wrap(err, "sync simulate state temp file")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "close simulate state temp file")
	}
	return errors.Wrap(os.Rename(tmp, s.path), "persist simulate state")
}

// Path returns the state file location.
func (s *Store) Path() string {
	return s.path
}

func sanitizeScope(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	return strings.Trim(scopeJunk.ReplaceAllString(value, "_"), "_")
}
