package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"perparb/internal/application/port"
	"perparb/internal/domain/model"

	"github.com/redis/go-redis/v9"
)

// Repo 是只写镜像：把最新指标和机会推到 Redis 供外部消费者订阅，
// 历史读取一律返回空，由 SQLite/Postgres 承担。
type Repo struct {
	rdb       *redis.Client
	prefix    string
	ttl       time.Duration
	keyLatest string // prefix + ":metrics:latest"
	keyGroups string // prefix + ":groups"
	oppStream string
	oppChan   string
}

func New(rdb *redis.Client, prefix string, ttl time.Duration, oppStream, oppChan string) *Repo {
	if strings.TrimSpace(oppStream) == "" {
		oppStream = prefix + ":opportunities"
	}
	if strings.TrimSpace(oppChan) == "" {
		oppChan = prefix + ":opportunities:pub"
	}
	return &Repo{
		rdb:       rdb,
		prefix:    prefix,
		ttl:       ttl,
		keyLatest: prefix + ":metrics:latest",
		keyGroups: prefix + ":groups",
		oppStream: oppStream,
		oppChan:   oppChan,
	}
}

func (r *Repo) SaveFundingPayment(ctx context.Context, p model.FundingPayment) error {
	// 资费历史由 SQL 仓储负责
	return nil
}

func (r *Repo) ListFundingPayments(ctx context.Context, since time.Time) ([]model.FundingPayment, error) {
	return nil, nil
}

func (r *Repo) SaveMetricsSnapshot(ctx context.Context, ts int64, payload string) error {
	pipe := r.rdb.Pipeline()
	pipe.HSet(ctx, r.keyLatest, "ts_ms", ts, "payload", payload)
	if r.ttl > 0 {
		pipe.Expire(ctx, r.keyLatest, r.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (r *Repo) SaveOpportunity(ctx context.Context, opp model.FundingOpportunity) error {
	// 1) Stream: XADD <stream> * ...
	_, err := r.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: r.oppStream,
		Values: map[string]any{
			"ts_ms":           opp.Timestamp,
			"symbol":          opp.Symbol,
			"long_exchange":   string(opp.LongExchange),
			"short_exchange":  string(opp.ShortExchange),
			"spread_per_hour": opp.SpreadPerHour,
			"notional_usd":    opp.NotionalUSD,
		},
	}).Result()
	if err != nil {
		return err
	}

	// 2) PubSub: PUBLISH <channel> json
	// 用最简单的 JSON，便于消费者
	msg := fmt.Sprintf(`{"ts_ms":%d,"symbol":"%s","long":"%s","short":"%s","spread_per_hour":%.8f,"notional_usd":%.2f}`,
		opp.Timestamp, opp.Symbol, opp.LongExchange, opp.ShortExchange, opp.SpreadPerHour, opp.NotionalUSD)
	return r.rdb.Publish(ctx, r.oppChan, msg).Err()
}

func (r *Repo) SaveGroup(ctx context.Context, g *model.DeltaNeutralGroup) error {
	b, _ := json.Marshal(map[string]any{
		"exchange":   string(g.Exchange),
		"symbol":     g.Symbol,
		"net_delta":  g.NetDelta(),
		"perp_side":  string(g.Perp.Side),
		"perp_size":  g.Perp.Size,
		"hedge_kind": string(g.Hedge.Kind),
		"hedge_size": g.Hedge.Size,
	})
	field := fmt.Sprintf("%s:%s", g.Exchange, g.Symbol)
	pipe := r.rdb.Pipeline()
	pipe.HSet(ctx, r.keyGroups, field, string(b))
	if r.ttl > 0 {
		pipe.Expire(ctx, r.keyGroups, r.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (r *Repo) ListOpenGroups(ctx context.Context) ([]*model.DeltaNeutralGroup, error) {
	return nil, nil
}

func (r *Repo) Close() error { return r.rdb.Close() }

var _ port.Repository = (*Repo)(nil)
