package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"perparb/internal/application/port"
	"perparb/internal/domain/model"
)

type Repo struct {
	db *sql.DB
}

func New(path string) (*Repo, error) {
	// ensure directory exists
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) GetDB() *sql.DB {
	return r.db
}

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS funding_payments (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  exchange TEXT NOT NULL,
  amount REAL NOT NULL,
  paid_at INTEGER NOT NULL,
  created_at INTEGER NOT NULL,
  UNIQUE(exchange, amount, paid_at)
);
CREATE INDEX IF NOT EXISTS idx_payments_paid_at ON funding_payments(paid_at);
CREATE INDEX IF NOT EXISTS idx_payments_exchange ON funding_payments(exchange);

CREATE TABLE IF NOT EXISTS metrics_snapshots (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  ts_ms INTEGER NOT NULL,
  payload TEXT NOT NULL,
  created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_metrics_ts ON metrics_snapshots(ts_ms);

CREATE TABLE IF NOT EXISTS opportunities (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  symbol TEXT NOT NULL,
  long_exchange TEXT NOT NULL,
  short_exchange TEXT NOT NULL,
  long_rate REAL NOT NULL,
  short_rate REAL NOT NULL,
  spread_per_hour REAL NOT NULL,
  notional_usd REAL NOT NULL,
  ts_ms INTEGER NOT NULL,
  created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_opps_symbol ON opportunities(symbol);
CREATE INDEX IF NOT EXISTS idx_opps_ts ON opportunities(ts_ms);

CREATE TABLE IF NOT EXISTS position_groups (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  exchange TEXT NOT NULL,
  symbol TEXT NOT NULL,
  perp_side TEXT NOT NULL,
  perp_size REAL NOT NULL,
  perp_entry_price REAL NOT NULL,
  perp_mark_price REAL NOT NULL,
  hedge_kind TEXT NOT NULL,
  hedge_side TEXT NOT NULL,
  hedge_size REAL NOT NULL,
  hedge_entry_price REAL NOT NULL,
  hedge_mark_price REAL NOT NULL,
  tolerance_percent REAL NOT NULL,
  status TEXT NOT NULL DEFAULT 'OPEN',
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL,
  UNIQUE(exchange, symbol)
);
CREATE INDEX IF NOT EXISTS idx_groups_status ON position_groups(status);
`)
	return err
}

func (r *Repo) SaveFundingPayment(ctx context.Context, p model.FundingPayment) error {
	// 同一笔支付重复同步时按唯一键忽略
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO funding_payments(exchange, amount, paid_at, created_at)
		VALUES(?, ?, ?, ?)
		ON CONFLICT(exchange, amount, paid_at) DO NOTHING
	`, string(p.Exchange), p.Amount, p.At.UnixMilli(), time.Now().UnixMilli())
	return err
}

func (r *Repo) ListFundingPayments(ctx context.Context, since time.Time) ([]model.FundingPayment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT exchange, amount, paid_at FROM funding_payments
		WHERE paid_at >= ? ORDER BY paid_at ASC
	`, since.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []model.FundingPayment
	for rows.Next() {
		var exchange string
		var amount float64
		var paidAt int64
		if err := rows.Scan(&exchange, &amount, &paidAt); err != nil {
			return nil, err
		}
		payments = append(payments, model.FundingPayment{
			Exchange: model.Exchange(exchange),
			Amount:   amount,
			At:       time.UnixMilli(paidAt),
		})
	}
	return payments, rows.Err()
}

func (r *Repo) SaveMetricsSnapshot(ctx context.Context, ts int64, payload string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO metrics_snapshots(ts_ms, payload, created_at) VALUES(?, ?, ?)
	`, ts, payload, time.Now().UnixMilli())
	return err
}

func (r *Repo) SaveOpportunity(ctx context.Context, opp model.FundingOpportunity) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO opportunities(symbol, long_exchange, short_exchange, long_rate, short_rate, spread_per_hour, notional_usd, ts_ms, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, opp.Symbol, string(opp.LongExchange), string(opp.ShortExchange),
		opp.LongRate, opp.ShortRate, opp.SpreadPerHour, opp.NotionalUSD,
		opp.Timestamp, time.Now().UnixMilli())
	return err
}

func (r *Repo) SaveGroup(ctx context.Context, g *model.DeltaNeutralGroup) error {
	now := time.Now().UnixMilli()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO position_groups(
			exchange, symbol,
			perp_side, perp_size, perp_entry_price, perp_mark_price,
			hedge_kind, hedge_side, hedge_size, hedge_entry_price, hedge_mark_price,
			tolerance_percent, status, created_at, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'OPEN', ?, ?)
		ON CONFLICT(exchange, symbol) DO UPDATE SET
			perp_side=excluded.perp_side, perp_size=excluded.perp_size,
			perp_entry_price=excluded.perp_entry_price, perp_mark_price=excluded.perp_mark_price,
			hedge_kind=excluded.hedge_kind, hedge_side=excluded.hedge_side, hedge_size=excluded.hedge_size,
			hedge_entry_price=excluded.hedge_entry_price, hedge_mark_price=excluded.hedge_mark_price,
			tolerance_percent=excluded.tolerance_percent, status='OPEN', updated_at=excluded.updated_at
	`, string(g.Exchange), g.Symbol,
		string(g.Perp.Side), g.Perp.Size, g.Perp.EntryPrice, g.Perp.MarkPrice,
		string(g.Hedge.Kind), string(g.Hedge.Side), g.Hedge.Size, g.Hedge.EntryPrice, g.Hedge.MarkPrice,
		g.Tolerance.Percent(), now, now)
	return err
}

func (r *Repo) ListOpenGroups(ctx context.Context) ([]*model.DeltaNeutralGroup, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT exchange, symbol,
			perp_side, perp_size, perp_entry_price, perp_mark_price,
			hedge_kind, hedge_side, hedge_size, hedge_entry_price, hedge_mark_price,
			tolerance_percent, updated_at
		FROM position_groups WHERE status='OPEN' ORDER BY symbol
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []*model.DeltaNeutralGroup
	for rows.Next() {
		var exchange, symbol, perpSide, hedgeKind, hedgeSide string
		var perpSize, perpEntry, perpMark, hedgeSize, hedgeEntry, hedgeMark, tolerance float64
		var updatedAt int64
		if err := rows.Scan(&exchange, &symbol,
			&perpSide, &perpSize, &perpEntry, &perpMark,
			&hedgeKind, &hedgeSide, &hedgeSize, &hedgeEntry, &hedgeMark,
			&tolerance, &updatedAt); err != nil {
			return nil, err
		}

		at := time.UnixMilli(updatedAt)
		perp := model.LegPosition{
			Exchange:   model.Exchange(exchange),
			Symbol:     symbol,
			Kind:       model.MarketPerp,
			Side:       model.Side(perpSide),
			Size:       perpSize,
			EntryPrice: perpEntry,
		}.WithMarkPrice(perpMark, at)
		hedge := model.LegPosition{
			Exchange:   model.Exchange(exchange),
			Symbol:     symbol,
			Kind:       model.MarketKind(hedgeKind),
			Side:       model.Side(hedgeSide),
			Size:       hedgeSize,
			EntryPrice: hedgeEntry,
		}.WithMarkPrice(hedgeMark, at)

		g, err := model.NewDeltaNeutralGroup(perp, hedge, model.PercentageFromPercent(tolerance))
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

var _ port.Repository = (*Repo)(nil)
