package domain

import "time"

// BalanceSnapshot wallet state of an owner, persisted on every observed change.
// Uses string fields to keep decimal precision when consumed by stream readers.
type BalanceSnapshot struct {
	Timestamp      time.Time `json:"ts"`
	Owner          string    `json:"owner"`
	Vault          string    `json:"vault"`
	Spend          string    `json:"spend"`
	SpendAllowance string    `json:"spend_allowance,omitempty"`
	Native         string    `json:"native,omitempty"`
}

// NewBalanceSnapshot creates a new BalanceSnapshot.
func NewBalanceSnapshot(owner string, b WalletBalances) BalanceSnapshot {
	ts := b.UpdatedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return BalanceSnapshot{
		Timestamp:      ts,
		Owner:          owner,
		Vault:          b.Vault.String(),
		Spend:          b.Spend.String(),
		SpendAllowance: b.SpendAllowance.String(),
		Native:         b.Native.String(),
	}
}

// BalanceSnapshotRecord bundles a snapshot with its WAL index.
type BalanceSnapshotRecord struct {
	Index    uint64
	Snapshot BalanceSnapshot
}
