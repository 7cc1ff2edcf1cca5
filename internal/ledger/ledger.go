package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// NewTrade is the admission input for RecordTrade.
type NewTrade struct {
	Symbol     string
	Side       Side
	EntryPrice float64
	Quantity   float64
	StopLoss   float64
	TakeProfit float64
	Confidence float64
	Strategy   string
	Rationale  string
}

// Performance summarizes recent closed trades for Kelly sizing.
type Performance struct {
	Trades  int     `json:"trades"`
	Wins    int     `json:"wins"`
	Losses  int     `json:"losses"`
	WinRate float64 `json:"win_rate"`
	AvgWin  float64 `json:"avg_win"`
	AvgLoss float64 `json:"avg_loss"` // positive magnitude
}

// Ledger records admitted trades. It does not itself forbid a second open
// trade per symbol; callers check HasOpenPosition under the symbol lock.
type Ledger struct {
	store  Store
	logger zerolog.Logger
	now    func() time.Time
}

func New(store Store, logger zerolog.Logger) *Ledger {
	return &Ledger{
		store:  store,
		logger: logger.With().Str("component", "Ledger").Logger(),
		now:    time.Now,
	}
}

// SetClock replaces the time source.
func (l *Ledger) SetClock(now func() time.Time) { l.now = now }

// RecordTrade creates an OPEN trade.
func (l *Ledger) RecordTrade(ctx context.Context, nt NewTrade) (Trade, error) {
	if nt.Symbol == "" {
		return Trade{}, errors.New("record trade: symbol is required")
	}
	if nt.Side != SideLong && nt.Side != SideShort {
		return Trade{}, fmt.Errorf("record trade: invalid side %q", nt.Side)
	}
	if nt.EntryPrice <= 0 || nt.Quantity <= 0 {
		return Trade{}, fmt.Errorf("record trade: entry %.8f and quantity %.8f must be positive", nt.EntryPrice, nt.Quantity)
	}

	t := Trade{
		ID:         uuid.NewString(),
		Symbol:     strings.ToUpper(nt.Symbol),
		Side:       nt.Side,
		EntryPrice: nt.EntryPrice,
		Quantity:   nt.Quantity,
		StopLoss:   nt.StopLoss,
		TakeProfit: nt.TakeProfit,
		Confidence: nt.Confidence,
		Strategy:   nt.Strategy,
		Rationale:  nt.Rationale,
		OpenedAt:   l.now().UTC(),
		Status:     StatusOpen,
	}
	if err := l.store.Insert(ctx, t); err != nil {
		return Trade{}, err
	}
	l.logger.Info().
		Str("trade_id", t.ID).
		Str("symbol", t.Symbol).
		Str("side", string(t.Side)).
		Float64("entry", t.EntryPrice).
		Float64("quantity", t.Quantity).
		Msg("Trade recorded")
	return t, nil
}

// CloseTrade closes an OPEN trade at exit. A missing or already closed trade
// returns false and changes nothing.
func (l *Ledger) CloseTrade(ctx context.Context, id string, exit float64) (bool, error) {
	t, err := l.store.Get(ctx, id)
	if errors.Is(err, ErrTradeNotFound) {
		l.logger.Debug().Str("trade_id", id).Msg("Close ignored: trade not found")
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if t.Status != StatusOpen {
		l.logger.Debug().Str("trade_id", id).Msg("Close ignored: trade already closed")
		return false, nil
	}
	if exit <= 0 {
		return false, fmt.Errorf("close trade %s: exit price must be positive", id)
	}

	c := ComputeClosing(t, exit, l.now().UTC())
	ok, err := l.store.Close(ctx, id, c)
	if err != nil || !ok {
		return ok, err
	}
	l.logger.Info().
		Str("trade_id", id).
		Str("symbol", t.Symbol).
		Float64("exit", exit).
		Float64("pnl", c.PnL).
		Float64("pnl_percent", c.PnLPercent).
		Msg("Trade closed")
	return true, nil
}

// Get returns a trade by id.
func (l *Ledger) Get(ctx context.Context, id string) (Trade, error) {
	return l.store.Get(ctx, id)
}

// HasOpenPosition reports whether symbol has any OPEN trade.
func (l *Ledger) HasOpenPosition(ctx context.Context, symbol string) (bool, error) {
	open, err := l.store.Open(ctx, strings.ToUpper(symbol))
	if err != nil {
		return false, err
	}
	return len(open) > 0, nil
}

// OpenTrades returns every OPEN trade.
func (l *Ledger) OpenTrades(ctx context.Context) ([]Trade, error) {
	return l.store.Open(ctx, "")
}

// Performance computes win rate and average win/loss over the last lookback
// closed trades of symbol (all symbols when empty). Break-even trades count
// toward neither side.
func (l *Ledger) Performance(ctx context.Context, symbol string, lookback int) (Performance, error) {
	closed, err := l.store.Closed(ctx, strings.ToUpper(symbol), lookback)
	if err != nil {
		return Performance{}, err
	}
	var p Performance
	var winSum, lossSum float64
	for _, t := range closed {
		if t.RealizedPnL == nil {
			continue
		}
		p.Trades++
		switch v := *t.RealizedPnL; {
		case v > 0:
			p.Wins++
			winSum += v
		case v < 0:
			p.Losses++
			lossSum += -v
		}
	}
	if p.Trades > 0 {
		p.WinRate = float64(p.Wins) / float64(p.Trades)
	}
	if p.Wins > 0 {
		p.AvgWin = winSum / float64(p.Wins)
	}
	if p.Losses > 0 {
		p.AvgLoss = lossSum / float64(p.Losses)
	}
	return p, nil
}
