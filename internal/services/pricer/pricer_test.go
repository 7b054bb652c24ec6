package pricer

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/perpsplit/internal/domain"
)

type fixedPricer struct {
	price decimal.Decimal
	err   error
	calls int
}

func (f *fixedPricer) GetPrice(context.Context, domain.Pair) (decimal.Decimal, error) {
	f.calls++
	return f.price, f.err
}

func TestChain_GetPrice(t *testing.T) {
	pair := domain.Pair{From: "BTC", To: "USD"}

	t.Run("falls back to the next source", func(t *testing.T) {
		failing := &fixedPricer{err: errors.New("timeout")}
		zero := &fixedPricer{price: decimal.Zero}
		ok := &fixedPricer{price: decimal.NewFromInt(65000)}
		unused := &fixedPricer{price: decimal.NewFromInt(1)}

		price, err := NewChain(nil, failing, zero, ok, unused).GetPrice(context.Background(), pair)
		require.NoError(t, err)
		assert.True(t, price.Equal(decimal.NewFromInt(65000)))
		assert.Equal(t, 0, unused.calls)
	})

	t.Run("all sources fail", func(t *testing.T) {
		_, err := NewChain(nil, &fixedPricer{err: errors.New("timeout")}).GetPrice(context.Background(), pair)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "timeout")
	})

	t.Run("no sources", func(t *testing.T) {
		_, err := NewChain(nil).GetPrice(context.Background(), pair)
		assert.Error(t, err)
	})
}

func TestSymbol(t *testing.T) {
	pair := domain.Pair{From: "ETH", To: "USD"}
	assert.Equal(t, "ETHUSD", symbol(pair, ""))
	assert.Equal(t, "ETHUSDT", symbol(pair, "USDT"))
}

type staticMids struct {
	mids map[string]string
	err  error
}

func (s staticMids) AllMids(context.Context) (map[string]string, error) { return s.mids, s.err }

func TestHyperliquidPricer(t *testing.T) {
	eth := domain.Pair{From: "ETH", To: "USD"}
	tests := []struct {
		name    string
		src     MidsSource
		want    string
		wantErr bool
	}{
		{name: "mid by base coin", src: staticMids{mids: map[string]string{"ETH": "3120.5"}}, want: "3120.5"},
		{name: "missing coin", src: staticMids{mids: map[string]string{"BTC": "1"}}, wantErr: true},
		{name: "garbage", src: staticMids{mids: map[string]string{"ETH": "n/a"}}, wantErr: true},
		{name: "upstream error", src: staticMids{err: errors.New("503")}, wantErr: true},
		{name: "no client", src: nil, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			price, err := NewHyperliquidPricer(tt.src).GetPrice(context.Background(), eth)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, price.String())
		})
	}
}
