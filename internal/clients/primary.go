package clients

import (
	"context"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	primaryPreparePath = "/v1/orders/prepare"
	primaryPairsPath   = "/v1/pairs"
)

// PrimaryOrderRequest order preparation request of the primary venue.
// Amounts are decimal strings in settlement units.
type PrimaryOrderRequest struct {
	Pair               string  `json:"pair"`
	IsLong             bool    `json:"isLong"`
	OrderType          string  `json:"orderType"`
	MaxAcceptablePrice string  `json:"maxAcceptablePrice"`
	SlippagePercent    string  `json:"slippagePercent"`
	Margin             string  `json:"margin"`
	Size               string  `json:"size"`
	OwnerAddress       string  `json:"ownerAddress"`
	SkipBalanceCheck   bool    `json:"skipBalanceCheck"`
	Referrer           string  `json:"referrer"`
	TakeProfit         *string `json:"takeProfit,omitempty"`
	StopLoss           *string `json:"stopLoss,omitempty"`
}

// PrimaryOrderResponse unsigned order call returned by the primary venue.
type PrimaryOrderResponse struct {
	Calldata            hexutil.Bytes         `json:"calldata"`
	VaultAddress        common.Address        `json:"vaultAddress"`
	InsufficientBalance bool                  `json:"insufficientBalance"`
	RequiredGasFee      *math.HexOrDecimal256 `json:"requiredGasFee"`
}

// GasFee returns the required gas fee in wei, zero when absent.
func (r PrimaryOrderResponse) GasFee() *big.Int {
	if r.RequiredGasFee == nil {
		return new(big.Int)
	}
	return (*big.Int)(r.RequiredGasFee)
}

// PairInfo market registry entry of the primary venue.
type PairInfo struct {
	Pair           string          `json:"pair"`
	PairIndex      uint16          `json:"pairIndex"`
	LongLiquidity  decimal.Decimal `json:"longLiquidity"`
	ShortLiquidity decimal.Decimal `json:"shortLiquidity"`
	LongFeeRate    decimal.Decimal `json:"longFeeRate"`
	ShortFeeRate   decimal.Decimal `json:"shortFeeRate"`
}

type pairsResponse struct {
	Pairs []PairInfo `json:"pairs"`
}

// PrimaryClient HTTP client of the primary venue API.
type PrimaryClient struct {
	api *apiClient
}

// NewPrimaryClient creates a client for baseURL throttled to rps requests per second (0 disables throttling).
func NewPrimaryClient(baseURL string, rps float64, httpClient *http.Client, logger *zap.Logger) *PrimaryClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PrimaryClient{api: newAPIClient(baseURL, rps, httpClient, logger.With(zap.String("client", "primary")))}
}

// PrepareOrder asks the primary venue for unsigned order call data.
func (c *PrimaryClient) PrepareOrder(ctx context.Context, req PrimaryOrderRequest) (PrimaryOrderResponse, error) {
	var resp PrimaryOrderResponse
	if err := c.api.do(ctx, http.MethodPost, primaryPreparePath, req, &resp); err != nil {
		return PrimaryOrderResponse{}, err
	}
	if len(resp.Calldata) == 0 {
		return PrimaryOrderResponse{}, errors.New("primary venue returned empty calldata")
	}
	if resp.VaultAddress == (common.Address{}) {
		return PrimaryOrderResponse{}, errors.New("primary venue returned empty vault address")
	}
	return resp, nil
}

// Pairs fetches the market registry.
func (c *PrimaryClient) Pairs(ctx context.Context) ([]PairInfo, error) {
	var resp pairsResponse
	if err := c.api.do(ctx, http.MethodGet, primaryPairsPath, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Pairs, nil
}
