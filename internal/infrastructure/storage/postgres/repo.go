package postgres

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"perparb/internal/application/port"
	"perparb/internal/domain/model"
)

type Repo struct {
	db *sql.DB
}

func New(dsn string) (*Repo, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS funding_payments (
  id BIGSERIAL PRIMARY KEY,
  exchange TEXT NOT NULL,
  amount DOUBLE PRECISION NOT NULL,
  paid_at BIGINT NOT NULL,
  created_at BIGINT NOT NULL,
  UNIQUE(exchange, amount, paid_at)
);
CREATE INDEX IF NOT EXISTS idx_payments_paid_at ON funding_payments(paid_at);

CREATE TABLE IF NOT EXISTS metrics_snapshots (
  id BIGSERIAL PRIMARY KEY,
  ts_ms BIGINT NOT NULL,
  payload TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_metrics_ts ON metrics_snapshots(ts_ms);

CREATE TABLE IF NOT EXISTS opportunities (
  id BIGSERIAL PRIMARY KEY,
  symbol TEXT NOT NULL,
  long_exchange TEXT NOT NULL,
  short_exchange TEXT NOT NULL,
  long_rate DOUBLE PRECISION NOT NULL,
  short_rate DOUBLE PRECISION NOT NULL,
  spread_per_hour DOUBLE PRECISION NOT NULL,
  notional_usd DOUBLE PRECISION NOT NULL,
  ts_ms BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_opps_symbol ON opportunities(symbol);

CREATE TABLE IF NOT EXISTS position_groups (
  id BIGSERIAL PRIMARY KEY,
  exchange TEXT NOT NULL,
  symbol TEXT NOT NULL,
  perp_side TEXT NOT NULL,
  perp_size DOUBLE PRECISION NOT NULL,
  perp_entry_price DOUBLE PRECISION NOT NULL,
  perp_mark_price DOUBLE PRECISION NOT NULL,
  hedge_kind TEXT NOT NULL,
  hedge_side TEXT NOT NULL,
  hedge_size DOUBLE PRECISION NOT NULL,
  hedge_entry_price DOUBLE PRECISION NOT NULL,
  hedge_mark_price DOUBLE PRECISION NOT NULL,
  tolerance_percent DOUBLE PRECISION NOT NULL,
  status TEXT NOT NULL DEFAULT 'OPEN',
  updated_at BIGINT NOT NULL,
  UNIQUE(exchange, symbol)
);
`)
	return err
}

func (r *Repo) SaveFundingPayment(ctx context.Context, p model.FundingPayment) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO funding_payments(exchange, amount, paid_at, created_at)
		VALUES($1, $2, $3, $4)
		ON CONFLICT(exchange, amount, paid_at) DO NOTHING
	`, string(p.Exchange), p.Amount, p.At.UnixMilli(), time.Now().UnixMilli())
	return err
}

func (r *Repo) ListFundingPayments(ctx context.Context, since time.Time) ([]model.FundingPayment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT exchange, amount, paid_at FROM funding_payments
		WHERE paid_at >= $1 ORDER BY paid_at ASC
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
	_, err := r.db.ExecContext(ctx, `INSERT INTO metrics_snapshots(ts_ms, payload) VALUES($1, $2)`, ts, payload)
	return err
}

func (r *Repo) SaveOpportunity(ctx context.Context, opp model.FundingOpportunity) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO opportunities(symbol, long_exchange, short_exchange, long_rate, short_rate, spread_per_hour, notional_usd, ts_ms)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8)
	`, opp.Symbol, string(opp.LongExchange), string(opp.ShortExchange),
		opp.LongRate, opp.ShortRate, opp.SpreadPerHour, opp.NotionalUSD, opp.Timestamp)
	return err
}

func (r *Repo) SaveGroup(ctx context.Context, g *model.DeltaNeutralGroup) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO position_groups(
			exchange, symbol,
			perp_side, perp_size, perp_entry_price, perp_mark_price,
			hedge_kind, hedge_side, hedge_size, hedge_entry_price, hedge_mark_price,
			tolerance_percent, status, updated_at)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 'OPEN', $13)
		ON CONFLICT(exchange, symbol) DO UPDATE SET
			perp_side=EXCLUDED.perp_side, perp_size=EXCLUDED.perp_size,
			perp_entry_price=EXCLUDED.perp_entry_price, perp_mark_price=EXCLUDED.perp_mark_price,
			hedge_kind=EXCLUDED.hedge_kind, hedge_side=EXCLUDED.hedge_side, hedge_size=EXCLUDED.hedge_size,
			hedge_entry_price=EXCLUDED.hedge_entry_price, hedge_mark_price=EXCLUDED.hedge_mark_price,
			tolerance_percent=EXCLUDED.tolerance_percent, status='OPEN', updated_at=EXCLUDED.updated_at
	`, string(g.Exchange), g.Symbol,
		string(g.Perp.Side), g.Perp.Size, g.Perp.EntryPrice, g.Perp.MarkPrice,
		string(g.Hedge.Kind), string(g.Hedge.Side), g.Hedge.Size, g.Hedge.EntryPrice, g.Hedge.MarkPrice,
		g.Tolerance.Percent(), time.Now().UnixMilli())
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
