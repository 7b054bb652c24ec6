package clients

import (
	"context"
	"math/big"
	"net/http"
	"net/url"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/perpsplit/internal/domain"
	"go.uber.org/zap"
)

// Fixed-point scales of the secondary trading contract.
const (
	SecondaryPriceDecimals    int32 = 10
	SecondaryLeverageDecimals int32 = 3
	SecondarySlippageDecimals int32 = 3
)

const secondaryTradingABIJSON = `[
  {"type":"function","name":"openTrade","stateMutability":"nonpayable",
   "inputs":[
     {"name":"trade","type":"tuple","components":[
       {"name":"user","type":"address"},
       {"name":"index","type":"uint32"},
       {"name":"pairIndex","type":"uint16"},
       {"name":"leverage","type":"uint24"},
       {"name":"long","type":"bool"},
       {"name":"isOpen","type":"bool"},
       {"name":"collateralIndex","type":"uint8"},
       {"name":"tradeType","type":"uint8"},
       {"name":"collateralAmount","type":"uint120"},
       {"name":"openPrice","type":"uint64"},
       {"name":"tp","type":"uint64"},
       {"name":"sl","type":"uint64"},
       {"name":"placeholder","type":"uint192"}]},
     {"name":"maxSlippageP","type":"uint16"},
     {"name":"referrer","type":"address"}],
   "outputs":[]}
]`

var secondaryTradingABI = mustParseABI(secondaryTradingABIJSON)

// SecondaryOrderRequest open-trade request of the secondary venue in decimal units.
type SecondaryOrderRequest struct {
	User            common.Address
	PairIndex       uint16
	Collateral      decimal.Decimal
	OpenPrice       decimal.Decimal
	Long            bool
	Leverage        decimal.Decimal
	TakeProfit      decimal.Decimal
	StopLoss        decimal.Decimal
	CollateralIndex uint8
	TradeType       uint8
	// MaxSlippage percent, e.g. 1 for 1%.
	MaxSlippage decimal.Decimal
	Referrer    common.Address
}

// openTradeTuple Go mirror of the trade tuple, fields named after the ABI components.
type openTradeTuple struct {
	User             common.Address
	Index            uint32
	PairIndex        uint16
	Leverage         *big.Int
	Long             bool
	IsOpen           bool
	CollateralIndex  uint8
	TradeType        uint8
	CollateralAmount *big.Int
	OpenPrice        uint64
	Tp               uint64
	Sl               uint64
	Placeholder      *big.Int
}

// SecondaryClient prepares secondary-venue trades in process and reads its trade feed over HTTP.
type SecondaryClient struct {
	trading            common.Address
	collateralDecimals int32
	api                *apiClient
}

// NewSecondaryClient creates a client for the trading contract. feedURL serves the open-trades feed.
func NewSecondaryClient(trading common.Address, collateralDecimals int32, feedURL string, rps float64, httpClient *http.Client, logger *zap.Logger) *SecondaryClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SecondaryClient{
		trading:            trading,
		collateralDecimals: collateralDecimals,
		api:                newAPIClient(feedURL, rps, httpClient, logger.With(zap.String("client", "secondary"))),
	}
}

// TradingContract returns the address the collateral must be approved to.
func (c *SecondaryClient) TradingContract() common.Address {
	return c.trading
}

// PrepareOpenTrade returns the unsigned openTrade call.
func (c *SecondaryClient) PrepareOpenTrade(_ context.Context, req SecondaryOrderRequest) (domain.TransactionCall, error) {
	if !req.Collateral.IsPositive() {
		return domain.TransactionCall{}, errors.New("secondary collateral must be positive")
	}
	if !req.OpenPrice.IsPositive() {
		return domain.TransactionCall{}, errors.New("secondary open price must be positive")
	}

	leverage := domain.ToUnits(req.Leverage, SecondaryLeverageDecimals)
	if leverage.Sign() <= 0 || leverage.BitLen() > 24 {
		return domain.TransactionCall{}, errors.Errorf("secondary leverage %s out of range", req.Leverage)
	}

	price, err := uint64Units(req.OpenPrice, SecondaryPriceDecimals)
	if err != nil {
		return domain.TransactionCall{}, errors.Wrap(err, "open price")
	}
	tp, err := uint64Units(req.TakeProfit, SecondaryPriceDecimals)
	if err != nil {
		return domain.TransactionCall{}, errors.Wrap(err, "take profit")
	}
	sl, err := uint64Units(req.StopLoss, SecondaryPriceDecimals)
	if err != nil {
		return domain.TransactionCall{}, errors.Wrap(err, "stop loss")
	}

	slippage := domain.ToUnits(req.MaxSlippage, SecondarySlippageDecimals)
	if !slippage.IsUint64() || slippage.Uint64() > 0xffff {
		return domain.TransactionCall{}, errors.Errorf("secondary slippage %s out of range", req.MaxSlippage)
	}

	trade := openTradeTuple{
		User:             req.User,
		PairIndex:        req.PairIndex,
		Leverage:         leverage,
		Long:             req.Long,
		IsOpen:           true,
		CollateralIndex:  req.CollateralIndex,
		TradeType:        req.TradeType,
		CollateralAmount: domain.ToUnits(req.Collateral, c.collateralDecimals),
		OpenPrice:        price,
		Tp:               tp,
		Sl:               sl,
		Placeholder:      new(big.Int),
	}

	data, err := secondaryTradingABI.Pack("openTrade", trade, uint16(slippage.Uint64()), req.Referrer)
	if err != nil {
		return domain.TransactionCall{}, errors.Wrap(err, "pack openTrade")
	}

	return domain.TransactionCall{
		Target:  c.trading,
		Payload: data,
		Value:   new(big.Int),
		Kind:    domain.CallSecondaryOrder,
		Amount:  req.Collateral,
	}, nil
}

// RawSecondaryTrade trade record of the secondary feed. Integers are fixed-point strings.
type RawSecondaryTrade struct {
	Index            uint64 `json:"index"`
	PairIndex        uint16 `json:"pairIndex"`
	Long             bool   `json:"long"`
	IsOpen           bool   `json:"isOpen"`
	Leverage         string `json:"leverage"`
	CollateralAmount string `json:"collateralAmount"`
	OpenPrice        string `json:"openPrice"`
	TotalFees        string `json:"totalFees"`
	OpenedAt         int64  `json:"openedAt"`
}

// Trades fetches the raw trade records of owner.
func (c *SecondaryClient) Trades(ctx context.Context, owner common.Address) ([]RawSecondaryTrade, error) {
	var out []RawSecondaryTrade
	path := "/v1/trades/" + url.PathEscape(owner.Hex())
	if err := c.api.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func uint64Units(d decimal.Decimal, decimals int32) (uint64, error) {
	if d.IsNegative() {
		return 0, errors.Errorf("negative value %s", d)
	}
	v := domain.ToUnits(d, decimals)
	if !v.IsUint64() {
		return 0, errors.Errorf("value %s overflows uint64", d)
	}
	return v.Uint64(), nil
}
