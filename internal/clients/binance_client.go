package clients

import (
	"github.com/adshao/go-binance/v2"
)

// NewBinanceClient creates a Binance client. Empty credentials give access to public market data.
func NewBinanceClient(apiKey, apiSecret string) *binance.Client {
	return binance.NewClient(apiKey, apiSecret)
}
