package positions

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/perpsplit/internal/clients"
	"github.com/vadiminshakov/perpsplit/internal/domain"
	"go.uber.org/zap"
)

// PrimaryPriceDecimals fixed-point scale of primary-venue prices.
const PrimaryPriceDecimals int32 = 10

// Feed reports the open positions of owner on one venue.
type Feed interface {
	Venue() domain.Venue
	Positions(ctx context.Context, owner common.Address) (domain.Positions, error)
}

// PairResolver maps a venue market key to the shared pair.
type PairResolver interface {
	Resolve(v domain.Venue, index uint16) (domain.Pair, bool)
}

// PrimaryReader on-chain position read of the primary venue.
type PrimaryReader interface {
	PrimaryPositions(ctx context.Context, owner common.Address) (clients.RawPrimaryPositions, error)
}

// TradesReader HTTP trade feed of the secondary venue.
type TradesReader interface {
	Trades(ctx context.Context, owner common.Address) ([]clients.RawSecondaryTrade, error)
}

// PrimaryFeed normalizes the parallel arrays of the primary lens read.
type PrimaryFeed struct {
	reader             PrimaryReader
	pairs              PairResolver
	collateralDecimals int32
	logger             *zap.Logger
}

// NewPrimaryFeed creates the primary feed. Collateral, notional and fees use collateralDecimals.
func NewPrimaryFeed(reader PrimaryReader, pairs PairResolver, collateralDecimals int32, logger *zap.Logger) *PrimaryFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PrimaryFeed{
		reader:             reader,
		pairs:              pairs,
		collateralDecimals: collateralDecimals,
		logger:             logger.With(zap.String("feed", "primary")),
	}
}

// Venue implements Feed.
func (f *PrimaryFeed) Venue() domain.Venue { return domain.VenuePrimary }

// Positions implements Feed. Positions on pairs unknown to the registry are skipped.
func (f *PrimaryFeed) Positions(ctx context.Context, owner common.Address) (domain.Positions, error) {
	raw, err := f.reader.PrimaryPositions(ctx, owner)
	if err != nil {
		return nil, err
	}

	out := make(domain.Positions, 0, len(raw.Ids))
	for i, id := range raw.Ids {
		p := raw.Positions[i]
		pair, ok := f.pairs.Resolve(domain.VenuePrimary, p.PairIndex)
		if !ok {
			f.logger.Warn("skipping position on unknown pair", zap.Uint16("pair_index", p.PairIndex), zap.String("id", id.String()))
			continue
		}
		if !id.IsUint64() {
			return nil, errors.Errorf("position id %s overflows uint64", id)
		}

		side := domain.SideShort
		if p.IsLong {
			side = domain.SideLong
		}

		out = append(out, domain.Position{
			ID:         domain.PositionID{Venue: domain.VenuePrimary, Index: id.Uint64()},
			Pair:       pair,
			Side:       side,
			Size:       domain.FromUnits(p.Notional, f.collateralDecimals),
			EntryPrice: domain.FromUnits(p.OpenPrice, PrimaryPriceDecimals),
			Margin:     domain.FromUnits(p.Collateral, f.collateralDecimals),
			Fees: domain.PrimaryFees{
				Paid:    f.fees(raw.PaidFees[i]),
				Accrued: f.fees(raw.AccruedFees[i]),
			},
			OpenedAt: unixTime(int64(p.OpenedAt)),
		})
	}
	return out, nil
}

func (f *PrimaryFeed) fees(raw clients.RawFees) domain.FeeSet {
	return domain.FeeSet{
		Position: domain.FromUnits(raw.PositionFee, f.collateralDecimals),
		Borrow:   domain.FromUnits(raw.BorrowFee, f.collateralDecimals),
		Funding:  domain.FromUnits(raw.FundingFee, f.collateralDecimals),
	}
}

// SecondaryFeed normalizes the secondary trade records. Size is collateral times leverage.
type SecondaryFeed struct {
	reader             TradesReader
	pairs              PairResolver
	collateralDecimals int32
	logger             *zap.Logger
}

// NewSecondaryFeed creates the secondary feed.
func NewSecondaryFeed(reader TradesReader, pairs PairResolver, collateralDecimals int32, logger *zap.Logger) *SecondaryFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SecondaryFeed{
		reader:             reader,
		pairs:              pairs,
		collateralDecimals: collateralDecimals,
		logger:             logger.With(zap.String("feed", "secondary")),
	}
}

// Venue implements Feed.
func (f *SecondaryFeed) Venue() domain.Venue { return domain.VenueSecondary }

// Positions implements Feed. Closed trades and trades on unknown pairs are skipped.
func (f *SecondaryFeed) Positions(ctx context.Context, owner common.Address) (domain.Positions, error) {
	trades, err := f.reader.Trades(ctx, owner)
	if err != nil {
		return nil, err
	}

	out := make(domain.Positions, 0, len(trades))
	for _, t := range trades {
		if !t.IsOpen {
			continue
		}
		pair, ok := f.pairs.Resolve(domain.VenueSecondary, t.PairIndex)
		if !ok {
			f.logger.Warn("skipping trade on unknown pair", zap.Uint16("pair_index", t.PairIndex), zap.Uint64("index", t.Index))
			continue
		}

		collateral, err := units(t.CollateralAmount, f.collateralDecimals)
		if err != nil {
			return nil, errors.Wrapf(err, "trade %d collateral", t.Index)
		}
		leverage, err := units(t.Leverage, clients.SecondaryLeverageDecimals)
		if err != nil {
			return nil, errors.Wrapf(err, "trade %d leverage", t.Index)
		}
		price, err := units(t.OpenPrice, clients.SecondaryPriceDecimals)
		if err != nil {
			return nil, errors.Wrapf(err, "trade %d open price", t.Index)
		}
		fees, err := units(t.TotalFees, f.collateralDecimals)
		if err != nil {
			return nil, errors.Wrapf(err, "trade %d fees", t.Index)
		}

		side := domain.SideShort
		if t.Long {
			side = domain.SideLong
		}

		out = append(out, domain.Position{
			ID:         domain.PositionID{Venue: domain.VenueSecondary, Index: t.Index},
			Pair:       pair,
			Side:       side,
			Size:       collateral.Mul(leverage),
			EntryPrice: price,
			Margin:     collateral,
			Fees:       domain.SecondaryFees{Cumulative: fees},
			OpenedAt:   unixTime(t.OpenedAt),
		})
	}
	return out, nil
}

// units parses a fixed-point integer string. Empty means zero.
func units(s string, decimals int32) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	return v.Shift(-decimals), nil
}

func unixTime(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
