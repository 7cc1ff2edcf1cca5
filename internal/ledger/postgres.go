package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"regime-trading-bot/internal/database"
)

const tradeColumns = `id, symbol, side, entry_price, quantity, stop_loss, take_profit, confidence,
	strategy_name, rationale, opened_at, status, exit_price, closed_at, pnl, realized_pnl, pnl_percent`

// PostgresStore keeps trades in the trades table.
type PostgresStore struct {
	db *database.DB
}

func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func nullable(v float64) *float64 {
	if v == 0 {
		return nil
	}
	return &v
}

func (p *PostgresStore) Insert(ctx context.Context, t Trade) error {
	query := `
		INSERT INTO trades (id, symbol, side, entry_price, quantity, stop_loss, take_profit,
			confidence, strategy_name, rationale, opened_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := p.db.Pool.Exec(ctx, query,
		t.ID, t.Symbol, string(t.Side), t.EntryPrice, t.Quantity, nullable(t.StopLoss), nullable(t.TakeProfit),
		t.Confidence, t.Strategy, t.Rationale, t.OpenedAt, string(t.Status),
	)
	if err != nil {
		return fmt.Errorf("insert trade %s: %w", t.ID, err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (Trade, error) {
	row := p.db.Pool.QueryRow(ctx, `SELECT `+tradeColumns+` FROM trades WHERE id = $1`, id)
	t, err := scanTrade(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Trade{}, ErrTradeNotFound
	}
	if err != nil {
		return Trade{}, fmt.Errorf("get trade %s: %w", id, err)
	}
	return t, nil
}

// Close only touches a row that is still OPEN, so two concurrent closers
// cannot both succeed.
func (p *PostgresStore) Close(ctx context.Context, id string, c Closing) (bool, error) {
	query := `
		UPDATE trades
		SET status = 'CLOSED', exit_price = $2, closed_at = $3, pnl = $4, realized_pnl = $5,
			pnl_percent = $6, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND status = 'OPEN'
	`
	tag, err := p.db.Pool.Exec(ctx, query, id, c.ExitPrice, c.ClosedAt, c.PnL, c.RealizedPnL, c.PnLPercent)
	if err != nil {
		return false, fmt.Errorf("close trade %s: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (p *PostgresStore) Open(ctx context.Context, symbol string) ([]Trade, error) {
	if symbol == "" {
		return p.query(ctx, `SELECT `+tradeColumns+` FROM trades WHERE status = 'OPEN' ORDER BY opened_at DESC`)
	}
	return p.query(ctx, `SELECT `+tradeColumns+` FROM trades WHERE status = 'OPEN' AND symbol = $1 ORDER BY opened_at DESC`, symbol)
}

func (p *PostgresStore) Closed(ctx context.Context, symbol string, limit int) ([]Trade, error) {
	if limit <= 0 {
		limit = 1000
	}
	if symbol == "" {
		return p.query(ctx, `SELECT `+tradeColumns+` FROM trades WHERE status = 'CLOSED' ORDER BY closed_at DESC LIMIT $1`, limit)
	}
	return p.query(ctx, `SELECT `+tradeColumns+` FROM trades WHERE status = 'CLOSED' AND symbol = $1 ORDER BY closed_at DESC LIMIT $2`, symbol, limit)
}

func (p *PostgresStore) query(ctx context.Context, query string, args ...any) ([]Trade, error) {
	rows, err := p.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var trades []Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func scanTrade(row pgx.Row) (Trade, error) {
	var (
		t                   Trade
		side, status        string
		stop, target, conf  *float64
		strategyName, notes *string
	)
	err := row.Scan(
		&t.ID, &t.Symbol, &side, &t.EntryPrice, &t.Quantity, &stop, &target, &conf,
		&strategyName, &notes, &t.OpenedAt, &status, &t.ExitPrice, &t.ClosedAt,
		&t.PnL, &t.RealizedPnL, &t.PnLPercent,
	)
	if err != nil {
		return Trade{}, err
	}
	t.Side = Side(side)
	t.Status = Status(status)
	if stop != nil {
		t.StopLoss = *stop
	}
	if target != nil {
		t.TakeProfit = *target
	}
	if conf != nil {
		t.Confidence = *conf
	}
	if strategyName != nil {
		t.Strategy = *strategyName
	}
	if notes != nil {
		t.Rationale = *notes
	}
	return t, nil
}
