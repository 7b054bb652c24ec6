package execution

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/perpsplit/internal/domain"
	"github.com/vadiminshakov/perpsplit/internal/storage/simstate"
	"go.uber.org/zap"
)

func (s *Simulator) restoreState() error {
	if s.store == nil {
		return nil
	}
	state, err := s.store.Load()
	if err != nil || state == nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	restored := s.acct.clone()
	if restored.vault, err = parseAmount(state.Vault, "vault balance"); err != nil {
		return err
	}
	if restored.spend, err = parseAmount(state.Spend, "spend balance"); err != nil {
		return err
	}
	if restored.native, err = parseAmount(state.Native, "native balance"); err != nil {
		return err
	}

	for spender, raw := range state.Allowances {
		parsed, err := parseAmount(raw, "allowance of "+spender)
		if err != nil {
			return err
		}
		restored.allowances[common.HexToAddress(spender)] = parsed
	}

	for _, sp := range state.Positions {
		p, err := toPosition(sp)
		if err != nil {
			return err
		}
		restored.positions[p.ID] = p
	}

	for raw, idx := range state.NextIndex {
		var v domain.Venue
		if err := v.UnmarshalText([]byte(raw)); err != nil {
			return errors.Wrap(err, "decode next index")
		}
		restored.next[v] = idx
	}
	restored.nonce = state.Nonce

	s.acct = restored
	return nil
}

// persist must be called with s.mu held.
func (s *Simulator) persist() {
	if s.store == nil {
		return
	}

	state := simstate.State{
		Vault:      s.acct.vault.String(),
		Spend:      s.acct.spend.String(),
		Native:     s.acct.native.String(),
		Allowances: make(map[string]string, len(s.acct.allowances)),
		NextIndex:  make(map[string]uint64, len(s.acct.next)),
		Nonce:      s.acct.nonce,
	}
	for spender, amount := range s.acct.allowances {
		state.Allowances[strings.ToLower(spender.Hex())] = amount.String()
	}
	for v, idx := range s.acct.next {
		state.NextIndex[v.String()] = idx
	}
	positions := make(domain.Positions, 0, len(s.acct.positions))
	for _, p := range s.acct.positions {
		positions = append(positions, p)
	}
	for _, p := range positions.Sorted() {
		state.Positions = append(state.Positions, fromPosition(p))
	}

	if err := s.store.Save(state); err != nil {
		s.logger.Error("failed to persist simulate state", zap.Error(err))
	}
}

func fromPosition(p domain.Position) simstate.StoredPosition {
	fees := decimal.Zero
	if p.Fees != nil {
		fees = p.Fees.Total()
	}
	return simstate.StoredPosition{
		Venue:      p.ID.Venue.String(),
		Index:      p.ID.Index,
		Pair:       p.Pair.String(),
		Side:       p.Side.String(),
		Size:       p.Size.String(),
		EntryPrice: p.EntryPrice.String(),
		Margin:     p.Margin.String(),
		Fees:       fees.String(),
		OpenedAt:   p.OpenedAt,
	}
}

func toPosition(sp simstate.StoredPosition) (domain.Position, error) {
	var p domain.Position
	if err := p.ID.Venue.UnmarshalText([]byte(sp.Venue)); err != nil {
		return p, errors.Wrap(err, "decode position venue")
	}
	p.ID.Index = sp.Index

	pair, err := domain.ParsePair(sp.Pair)
	if err != nil {
		return p, errors.Wrap(err, "decode position pair")
	}
	p.Pair = pair
	if err := p.Side.UnmarshalText([]byte(sp.Side)); err != nil {
		return p, errors.Wrap(err, "decode position side")
	}

	if p.Size, err = parseAmount(sp.Size, "position size"); err != nil {
		return p, err
	}
	if p.EntryPrice, err = parseAmount(sp.EntryPrice, "position entry price"); err != nil {
		return p, err
	}
	if p.Margin, err = parseAmount(sp.Margin, "position margin"); err != nil {
		return p, err
	}
	fees, err := parseAmount(sp.Fees, "position fees")
	if err != nil {
		return p, err
	}
	if p.ID.Venue == domain.VenuePrimary {
		p.Fees = domain.PrimaryFees{Paid: domain.FeeSet{Position: fees}}
	} else {
		p.Fees = domain.SecondaryFees{Cumulative: fees}
	}
	p.OpenedAt = sp.OpenedAt

	return p, nil
}

// parseAmount decodes a stored decimal; empty means zero.
func parseAmount(raw, name string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "decode %s", name)
	}
	return v, nil
}
