// Package balancesnapshots persists observed wallet balance changes for the balance stream.
package balancesnapshots

import (
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"
	"github.com/vadiminshakov/perpsplit/internal/domain"
)

const (
	defaultDir    = "./wal/balance"
	segmentSize   = 1000
	maxSegments   = 100
	keyPrefix     = "balance_snapshot_"
	segmentPrefix = "snapshot_"
)

var errClosed = errors.New("balance snapshot store is not initialized")

// WALStore is an append-only log of balance snapshots. Each record's WAL index
// doubles as the SSE event id.
type WALStore struct {
	mu  sync.RWMutex
	wal *gowal.Wal
	// last saved snapshot per owner, used to drop repeats after a restart
	last map[string]domain.BalanceSnapshot
}

// NewWALStore opens or creates the log under dir.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = defaultDir
	}
	wal, err := gowal.NewWAL(gowal.Config{
		Dir:              dir,
		Prefix:           segmentPrefix,
		SegmentThreshold: segmentSize,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "init balance snapshot WAL")
	}

	s := &WALStore{wal: wal, last: make(map[string]domain.BalanceSnapshot)}
	records, err := s.scan(0, wal.CurrentIndex())
	if err != nil {
		wal.Close() //nolint:errcheck
		return nil, err
	}
	for _, rec := range records {
		s.last[ownerKey(rec.Snapshot.Owner)] = rec.Snapshot
	}
	return s, nil
}

// Save appends the snapshot unless it repeats the owner's last saved balances.
func (s *WALStore) Save(snapshot domain.BalanceSnapshot) error {
	if s == nil || s.wal == nil {
		return errClosed
	}
	if snapshot.Owner == "" {
		return errors.New("balance snapshot owner is required")
	}
	owner := ownerKey(snapshot.Owner)

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.last[owner]; ok && sameBalances(prev, snapshot) {
		return nil
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return errors.Wrap(err, "marshal balance snapshot")
	}
	if err := s.wal.Write(s.wal.CurrentIndex()+1, keyPrefix+owner, payload); err != nil {
		return errors.Wrap(err, "append balance snapshot")
	}
	s.last[owner] = snapshot
	return nil
}

// Latest returns the last saved snapshot of owner.
func (s *WALStore) Latest(owner string) (domain.BalanceSnapshot, bool) {
	if s == nil {
		return domain.BalanceSnapshot{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.last[ownerKey(owner)]
	return snap, ok
}

// SnapshotsAfter returns snapshots with a WAL index greater than index, oldest first.
func (s *WALStore) SnapshotsAfter(index uint64) ([]domain.BalanceSnapshotRecord, error) {
	if s == nil || s.wal == nil {
		return nil, errClosed
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scan(index, s.wal.CurrentIndex())
}

// scan reads (from, to]. Indexes in evicted segments are skipped.
func (s *WALStore) scan(from, to uint64) ([]domain.BalanceSnapshotRecord, error) {
	if to <= from {
		return nil, nil
	}
	out := make([]domain.BalanceSnapshotRecord, 0, to-from)
	for idx := from + 1; idx <= to; idx++ {
		key, payload, err := s.wal.Get(idx)
		if err != nil || !strings.HasPrefix(key, keyPrefix) {
			continue
		}
		var snap domain.BalanceSnapshot
		if err := json.Unmarshal(payload, &snap); err != nil {
			return nil, errors.Wrapf(err, "decode balance snapshot %d", idx)
		}
		out = append(out, domain.BalanceSnapshotRecord{Index: idx, Snapshot: snap})
	}
	return out, nil
}

// CurrentIndex returns the latest WAL index stored.
func (s *WALStore) CurrentIndex() uint64 {
	if s == nil || s.wal == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.wal.CurrentIndex()
}

func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wal.Close()
}

func ownerKey(owner string) string {
	return strings.ToLower(owner)
}

func sameBalances(a, b domain.BalanceSnapshot) bool {
	return a.Vault == b.Vault && a.Spend == b.Spend &&
		a.SpendAllowance == b.SpendAllowance && a.Native == b.Native
}
