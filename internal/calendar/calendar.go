// Package calendar reads the weekly economic calendar feed and answers
// whether a high-impact release is imminent for an instrument.
package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"regime-trading-bot/config"
	"regime-trading-bot/internal/kvstore"
)

const cacheKey = "calendar:events"

// ImpactHigh is the only impact level the gate cares about.
const ImpactHigh = "High"

// Event is a scheduled release.
type Event struct {
	Title    string    `json:"title"`
	Currency string    `json:"country"`
	Time     time.Time `json:"date"`
	Impact   string    `json:"impact"`
}

// Source fetches the feed and caches it in the shared store.
type Source struct {
	url        string
	httpClient *http.Client
	store      kvstore.Store
	cacheTTL   time.Duration
	logger     zerolog.Logger
	now        func() time.Time
}

func NewSource(cfg config.CalendarConfig, store kvstore.Store, timeout time.Duration, logger zerolog.Logger) *Source {
	return &Source{
		url:        cfg.URL,
		httpClient: &http.Client{Timeout: timeout},
		store:      store,
		cacheTTL:   cfg.CacheTTL,
		logger:     logger.With().Str("component", "Calendar").Logger(),
		now:        time.Now,
	}
}

// SetClock replaces the time source.
func (s *Source) SetClock(now func() time.Time) { s.now = now }

// Events returns the high-impact events of the current feed, cached for the
// configured TTL. A cache read failure falls through to the feed.
func (s *Source) Events(ctx context.Context) ([]Event, error) {
	var cached []Event
	err := kvstore.GetJSON(ctx, s.store, cacheKey, &cached)
	if err == nil {
		return cached, nil
	}

	events, err := s.fetch(ctx)
	if err != nil {
		return nil, err
	}
	if err := kvstore.PutJSON(ctx, s.store, cacheKey, events, s.cacheTTL); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to cache calendar")
	}
	return events, nil
}

func (s *Source) fetch(ctx context.Context) ([]Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("calendar request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calendar fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("calendar fetch: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("calendar read: %w", err)
	}

	var all []Event
	if err := json.Unmarshal(body, &all); err != nil {
		return nil, fmt.Errorf("calendar decode: %w", err)
	}
	high := all[:0]
	for _, e := range all {
		if strings.EqualFold(e.Impact, ImpactHigh) {
			e.Currency = strings.ToUpper(e.Currency)
			high = append(high, e)
		}
	}
	sort.Slice(high, func(i, j int) bool { return high[i].Time.Before(high[j].Time) })
	s.logger.Debug().Int("events", len(all)).Int("high_impact", len(high)).Msg("Calendar refreshed")
	return high, nil
}

// UpcomingHighImpact returns high-impact events for any currency of symbol
// scheduled between now and now+horizon.
func (s *Source) UpcomingHighImpact(ctx context.Context, symbol string, horizon time.Duration) ([]Event, error) {
	events, err := s.Events(ctx)
	if err != nil {
		return nil, err
	}
	return Upcoming(events, Currencies(symbol), s.now(), horizon), nil
}

// Upcoming filters events to currencies within [now, now+horizon].
func Upcoming(events []Event, currencies []string, now time.Time, horizon time.Duration) []Event {
	want := make(map[string]bool, len(currencies))
	for _, c := range currencies {
		want[c] = true
	}
	end := now.Add(horizon)
	var out []Event
	for _, e := range events {
		if !want[e.Currency] || e.Time.Before(now) || e.Time.After(end) {
			continue
		}
		out = append(out, e)
	}
	return out
}

var quoteAssets = []string{"USDT", "USDC", "BUSD", "FDUSD", "USD", "EUR", "GBP", "JPY", "CHF", "AUD", "CAD", "NZD", "BTC", "ETH"}

var stablecoins = map[string]string{"USDT": "USD", "USDC": "USD", "BUSD": "USD", "FDUSD": "USD"}

// Currencies maps a symbol to the calendar currencies that move it.
// EURUSD -> [EUR USD], BTCUSDT -> [BTC USD].
func Currencies(symbol string) []string {
	s := strings.ToUpper(strings.NewReplacer("/", "", "_", "", "-", "").Replace(symbol))
	var base, quote string
	for _, q := range quoteAssets {
		if len(s) > len(q) && strings.HasSuffix(s, q) {
			base, quote = s[:len(s)-len(q)], q
			break
		}
	}
	if quote == "" {
		if len(s) == 6 {
			base, quote = s[:3], s[3:]
		} else {
			return []string{s}
		}
	}
	if m, ok := stablecoins[quote]; ok {
		quote = m
	}
	if m, ok := stablecoins[base]; ok {
		base = m
	}
	if base == quote {
		return []string{base}
	}
	return []string{base, quote}
}
