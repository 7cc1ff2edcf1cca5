// Package ledger records admitted trades and their single OPEN -> CLOSED
// transition with realized P&L.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrTradeNotFound is returned by stores for an unknown trade id.
var ErrTradeNotFound = errors.New("trade not found")

// Side of a trade
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Status of a trade
type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
)

// Trade is an admitted trade. Exit fields are set exactly once, on close.
type Trade struct {
	ID         string    `json:"id"`
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"side"`
	EntryPrice float64   `json:"entry_price"`
	Quantity   float64   `json:"quantity"`
	StopLoss   float64   `json:"stop_loss,omitempty"`
	TakeProfit float64   `json:"take_profit,omitempty"`
	Confidence float64   `json:"confidence"`
	Strategy   string    `json:"strategy"`
	Rationale  string    `json:"rationale"`
	OpenedAt   time.Time `json:"opened_at"`
	Status     Status    `json:"status"`

	ExitPrice   *float64   `json:"exit_price,omitempty"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
	PnL         *float64   `json:"pnl,omitempty"`          // per unit: exit-entry for longs, entry-exit for shorts
	RealizedPnL *float64   `json:"realized_pnl,omitempty"` // PnL * quantity
	PnLPercent  *float64   `json:"pnl_percent,omitempty"`
}

// Closing carries the computed close-out values.
type Closing struct {
	ExitPrice   float64
	ClosedAt    time.Time
	PnL         float64
	RealizedPnL float64
	PnLPercent  float64
}

// ComputeClosing derives P&L for closing t at exit. Arithmetic is done in
// decimal so repeated closes of the same prices give identical results.
func ComputeClosing(t Trade, exit float64, at time.Time) Closing {
	entry := decimal.NewFromFloat(t.EntryPrice)
	out := decimal.NewFromFloat(exit)
	qty := decimal.NewFromFloat(t.Quantity)

	diff := out.Sub(entry)
	if t.Side == SideShort {
		diff = entry.Sub(out)
	}
	pct := decimal.Zero
	if !entry.IsZero() {
		pct = diff.Div(entry).Mul(decimal.NewFromInt(100)).Round(4)
	}

	pnl, _ := diff.Float64()
	realized, _ := diff.Mul(qty).Round(8).Float64()
	pctF, _ := pct.Float64()
	return Closing{
		ExitPrice:   exit,
		ClosedAt:    at,
		PnL:         pnl,
		RealizedPnL: realized,
		PnLPercent:  pctF,
	}
}

// Apply returns a copy of t closed with c.
func (c Closing) Apply(t Trade) Trade {
	exit, pnl, realized, pct, at := c.ExitPrice, c.PnL, c.RealizedPnL, c.PnLPercent, c.ClosedAt
	t.Status = StatusClosed
	t.ExitPrice = &exit
	t.ClosedAt = &at
	t.PnL = &pnl
	t.RealizedPnL = &realized
	t.PnLPercent = &pct
	return t
}

// Store persists trades. Close must only transition a trade that is still
// OPEN and report false otherwise, atomically with respect to concurrent
// closers.
type Store interface {
	Insert(ctx context.Context, t Trade) error
	Get(ctx context.Context, id string) (Trade, error)
	Close(ctx context.Context, id string, c Closing) (bool, error)
	// Open returns open trades for symbol, or all open trades when symbol is empty.
	Open(ctx context.Context, symbol string) ([]Trade, error)
	// Closed returns up to limit most recently closed trades for symbol.
	Closed(ctx context.Context, symbol string, limit int) ([]Trade, error)
}
