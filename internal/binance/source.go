// Package binance adapts Binance USDⓈ-M futures market data and account
// state to the pipeline's market interfaces.
package binance

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/rs/zerolog"

	"regime-trading-bot/internal/market"
	"regime-trading-bot/internal/vault"
)

const (
	// FuturesBaseURL is the production Binance Futures API URL
	FuturesBaseURL = "https://fapi.binance.com"
	// FuturesTestnetURL is the testnet Binance Futures API URL
	FuturesTestnetURL = "https://testnet.binancefuture.com"

	maxKlineLimit = 1500
)

// FuturesSource implements market.CandleSource and market.AccountSource.
type FuturesSource struct {
	client *futures.Client
	logger zerolog.Logger
	now    func() time.Time
}

// NewFuturesSource builds an authenticated client. Missing credentials are
// fatal for this broker and surface as vault.ErrMissingCredentials.
func NewFuturesSource(creds vault.Credentials, timeout time.Duration, logger zerolog.Logger) (*FuturesSource, error) {
	if creds.APIKey == "" || creds.SecretKey == "" {
		return nil, fmt.Errorf("%w: binance", vault.ErrMissingCredentials)
	}
	client := futures.NewClient(strings.TrimSpace(creds.APIKey), strings.TrimSpace(creds.SecretKey))
	client.BaseURL = FuturesBaseURL
	if creds.Testnet {
		client.BaseURL = FuturesTestnetURL
	}
	client.HTTPClient = &http.Client{Timeout: timeout}
	return newFuturesSource(client, logger), nil
}

func newFuturesSource(client *futures.Client, logger zerolog.Logger) *FuturesSource {
	return &FuturesSource{
		client: client,
		logger: logger.With().Str("component", "BinanceFutures").Logger(),
		now:    time.Now,
	}
}

// GetCandles returns closed klines, oldest first. The still-forming last
// kline is dropped so indicators never see a partial bar.
func (s *FuturesSource) GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]market.Candle, error) {
	if limit <= 0 {
		return nil, nil
	}
	if limit > maxKlineLimit {
		limit = maxKlineLimit
	}
	symbol = strings.ToUpper(strings.NewReplacer("/", "", "-", "").Replace(symbol))

	kls, err := s.client.NewKlinesService().
		Symbol(symbol).
		Interval(strings.ToLower(timeframe)).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("klines %s %s: %w", symbol, timeframe, err)
	}

	nowMs := s.now().UnixMilli()
	out := make([]market.Candle, 0, len(kls))
	for _, kl := range kls {
		if kl == nil || kl.CloseTime >= nowMs {
			continue
		}
		out = append(out, market.Candle{
			Open:           toFloat(kl.Open),
			High:           toFloat(kl.High),
			Low:            toFloat(kl.Low),
			Close:          toFloat(kl.Close),
			Volume:         toFloat(kl.Volume),
			TakerBuyVolume: toFloat(kl.TakerBuyBaseAssetVolume),
			Timestamp:      time.UnixMilli(kl.OpenTime).UTC(),
		})
	}
	return out, nil
}

// GetAccount reports wallet balance, margin balance as equity, and initial
// margin in use.
func (s *FuturesSource) GetAccount(ctx context.Context) (market.Account, error) {
	acc, err := s.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return market.Account{}, fmt.Errorf("futures account: %w", err)
	}
	return market.Account{
		Balance:    toFloat(acc.TotalWalletBalance),
		Equity:     toFloat(acc.TotalMarginBalance),
		MarginUsed: toFloat(acc.TotalInitialMargin),
	}, nil
}

func toFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

// IntervalDuration maps a Binance interval string to its duration.
func IntervalDuration(interval string) (time.Duration, bool) {
	interval = strings.TrimSpace(interval)
	if len(interval) < 2 {
		return 0, false
	}
	n, err := strconv.Atoi(interval[:len(interval)-1])
	if err != nil || n <= 0 {
		return 0, false
	}
	switch interval[len(interval)-1] {
	case 'm':
		return time.Duration(n) * time.Minute, true
	case 'h':
		return time.Duration(n) * time.Hour, true
	case 'd':
		return time.Duration(n) * 24 * time.Hour, true
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, true
	}
	return 0, false
}
