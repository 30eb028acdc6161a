package service

import (
	"context"
	"testing"
	"time"

	"perparb/internal/application/port"
	"perparb/internal/domain/model"
	domainsvc "perparb/internal/domain/service"
)

type MockRepository struct {
	opportunities []model.FundingOpportunity
	groups        []*model.DeltaNeutralGroup
	payments      []model.FundingPayment
	snapshots     int
}

func (r *MockRepository) SaveFundingPayment(ctx context.Context, p model.FundingPayment) error {
	r.payments = append(r.payments, p)
	return nil
}

func (r *MockRepository) ListFundingPayments(ctx context.Context, since time.Time) ([]model.FundingPayment, error) {
	return r.payments, nil
}

func (r *MockRepository) SaveMetricsSnapshot(ctx context.Context, ts int64, payload string) error {
	r.snapshots++
	return nil
}

func (r *MockRepository) SaveOpportunity(ctx context.Context, opp model.FundingOpportunity) error {
	r.opportunities = append(r.opportunities, opp)
	return nil
}

func (r *MockRepository) SaveGroup(ctx context.Context, g *model.DeltaNeutralGroup) error {
	r.groups = append(r.groups, g)
	return nil
}

func (r *MockRepository) ListOpenGroups(ctx context.Context) ([]*model.DeltaNeutralGroup, error) {
	return r.groups, nil
}

func (r *MockRepository) Close() error { return nil }

type MockTreasury struct {
	deployed float64
	sent     []float64
}

func (t *MockTreasury) DeployedCapital() float64 { return t.deployed }

func (t *MockTreasury) SendFunds(ctx context.Context, amountUSD float64) error {
	t.sent = append(t.sent, amountUSD)
	return nil
}

type keeperFixture struct {
	keeper   *KeeperService
	repo     *MockRepository
	logger   *PerformanceLogger
	treasury *MockTreasury
	adapters map[model.Exchange]port.ExchangeAdapter
}

func newKeeperFixture(cfg *model.StrategyConfig, balancePerExchange float64) *keeperFixture {
	if cfg == nil {
		cfg = model.DefaultStrategyConfig()
	}
	cfg.PerpSpotHedging = false

	adapters := map[model.Exchange]port.ExchangeAdapter{
		model.ExchangeHyperliquid: NewMockAdapter(model.ExchangeHyperliquid, balancePerExchange),
		model.ExchangeAster:       NewMockAdapter(model.ExchangeAster, balancePerExchange),
	}

	perfLogger, _ := newTestLogger(nil)
	balances := NewBalanceManager(nil, &MockRebalancer{})
	balances.sleep = func(time.Duration) {}
	repo := &MockRepository{}
	treasury := &MockTreasury{deployed: 10000}

	return &keeperFixture{
		keeper:   NewKeeperService(cfg, domainsvc.NewCostCalculator(cfg), balances, perfLogger, adapters, repo, treasury),
		repo:     repo,
		logger:   perfLogger,
		treasury: treasury,
		adapters: adapters,
	}
}

func fundingRates(longRate, shortRate float64) map[model.Exchange]map[string]port.FundingTick {
	now := time.Now()
	return map[model.Exchange]map[string]port.FundingTick{
		model.ExchangeHyperliquid: {
			"ETH": {Exchange: model.ExchangeHyperliquid, Symbol: "ETH", HourlyRate: longRate, MarkPrice: 3000, At: now},
		},
		model.ExchangeAster: {
			"ETHUSDT": {Exchange: model.ExchangeAster, Symbol: "ETHUSDT", HourlyRate: shortRate, MarkPrice: 3000, At: now},
		},
	}
}

func TestKeeperDetectsSpreadOpportunity(t *testing.T) {
	f := newKeeperFixture(nil, 10000)

	// 多头 0.00001/h，空头 0.0003/h：价差远超阈值
	if err := f.keeper.RunCycle(context.Background(), fundingRates(0.00001, 0.0003)); err != nil {
		t.Fatalf("cycle failed: %v", err)
	}

	if len(f.repo.opportunities) != 1 {
		t.Fatalf("opportunities persisted = %d, want 1", len(f.repo.opportunities))
	}
	opp := f.repo.opportunities[0]
	if opp.Symbol != "ETH" {
		t.Errorf("symbol = %s, want normalized ETH", opp.Symbol)
	}
	if opp.LongExchange != model.ExchangeHyperliquid || opp.ShortExchange != model.ExchangeAster {
		t.Errorf("legs = %s/%s, want long HYPERLIQUID short ASTER", opp.LongExchange, opp.ShortExchange)
	}
	if m := f.logger.GetPerformanceMetrics(0); m.OpportunitiesDetected != 1 {
		t.Errorf("recorded opportunities = %d, want 1", m.OpportunitiesDetected)
	}
}

func TestKeeperRejectsThinSpread(t *testing.T) {
	f := newKeeperFixture(nil, 10000)

	// 两边几乎持平
	if err := f.keeper.RunCycle(context.Background(), fundingRates(0.0001, 0.0001)); err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
	if len(f.repo.opportunities) != 0 {
		t.Errorf("flat rates should produce no opportunities, got %d", len(f.repo.opportunities))
	}
}

func TestKeeperCostGateRejectsSlowBreakEven(t *testing.T) {
	cfg := model.DefaultStrategyConfig()
	cfg.MaxBreakEvenDays = 0.01 // 回本上限 0.24 小时
	f := newKeeperFixture(cfg, 10000)

	if err := f.keeper.RunCycle(context.Background(), fundingRates(0.00001, 0.0003)); err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
	if len(f.repo.opportunities) != 0 {
		t.Errorf("cost gate should reject, got %d opportunities", len(f.repo.opportunities))
	}
}

func TestKeeperSkipsDustNotional(t *testing.T) {
	// 每所 10 美元本金：名义价值低于最小仓位
	f := newKeeperFixture(nil, 10)

	if err := f.keeper.RunCycle(context.Background(), fundingRates(0.00001, 0.0003)); err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
	if len(f.repo.opportunities) != 0 {
		t.Errorf("dust notional should be skipped, got %d opportunities", len(f.repo.opportunities))
	}
}

func TestKeeperHarvestsOnce(t *testing.T) {
	f := newKeeperFixture(nil, 10000)

	f.logger.RecordFundingPayment(model.ExchangeHyperliquid, 100)

	if err := f.keeper.RunCycle(context.Background(), nil); err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
	if len(f.treasury.sent) != 1 || f.treasury.sent[0] != 100 {
		t.Fatalf("harvested = %v, want one transfer of 100", f.treasury.sent)
	}

	// 无新增利润：第二轮不重复收割
	if err := f.keeper.RunCycle(context.Background(), nil); err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
	if len(f.treasury.sent) != 1 {
		t.Errorf("profit harvested twice: %v", f.treasury.sent)
	}
}

func TestKeeperHarvestBelowThreshold(t *testing.T) {
	f := newKeeperFixture(nil, 10000)

	f.logger.RecordFundingPayment(model.ExchangeHyperliquid, 10)

	if err := f.keeper.RunCycle(context.Background(), nil); err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
	if len(f.treasury.sent) != 0 {
		t.Errorf("profit below threshold should stay on exchange, sent %v", f.treasury.sent)
	}
}

func TestKeeperMaintainsHedgeGroups(t *testing.T) {
	cfg := model.DefaultStrategyConfig()
	f := newKeeperFixture(cfg, 10000)
	cfg.PerpSpotHedging = true

	adapter := f.adapters[model.ExchangeHyperliquid].(*MockAdapter)
	adapter.positions = []model.LegPosition{
		{Exchange: model.ExchangeHyperliquid, Symbol: "ETH", Kind: model.MarketPerp, Side: model.SideShort, Size: 1.0, EntryPrice: 3000, MarkPrice: 3000},
		{Exchange: model.ExchangeHyperliquid, Symbol: "ETH", Kind: model.MarketSpot, Side: model.SideLong, Size: 1.0, EntryPrice: 3000, MarkPrice: 3000},
	}

	if err := f.keeper.RunCycle(context.Background(), nil); err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
	if len(f.repo.groups) != 1 {
		t.Fatalf("persisted groups = %d, want 1", len(f.repo.groups))
	}
	if !f.repo.groups[0].IsNeutral() {
		t.Error("matched legs should form a neutral group")
	}
}
