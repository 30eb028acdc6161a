package service

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"perparb/internal/application/port"
	"perparb/internal/domain/model"
)

type MockPaymentSource struct {
	payments []model.FundingPayment
	fetchErr error
	summary  *model.FundingSummary
}

func (s *MockPaymentSource) FetchAllFundingPayments(ctx context.Context, days int) ([]model.FundingPayment, error) {
	return s.payments, s.fetchErr
}

func (s *MockPaymentSource) GetTotalTradingCosts() float64 { return 0 }

func (s *MockPaymentSource) GetCombinedSummary(ctx context.Context, days int, capitalDeployedUSD float64) (*model.FundingSummary, error) {
	if s.summary == nil {
		return nil, errors.New("no summary")
	}
	return s.summary, nil
}

// newTestLogger 使用可控时钟的记录器；返回的指针用于推进时间
func newTestLogger(src port.FundingPaymentSource) (*PerformanceLogger, *time.Time) {
	l := NewPerformanceLogger(src)
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	l.clock = func() time.Time { return now }
	l.ResetPerformanceMetrics()
	return l, &now
}

func perpSnapshot(ex model.Exchange, symbol string, side model.Side, size, mark float64) model.LegPosition {
	return model.LegPosition{
		Exchange:  ex,
		Symbol:    symbol,
		Kind:      model.MarketPerp,
		Side:      side,
		Size:      size,
		MarkPrice: mark,
	}
}

func TestFundingPaymentAccumulation(t *testing.T) {
	l, _ := newTestLogger(nil)

	l.RecordFundingPayment(model.ExchangeHyperliquid, 10)
	l.RecordFundingPayment(model.ExchangeHyperliquid, -4)

	m := l.ExchangeMetricsSnapshot()[model.ExchangeHyperliquid]
	if m.FundingCapturedUSD != 10 {
		t.Errorf("captured = %v, want 10", m.FundingCapturedUSD)
	}
	if m.FundingPaidUSD != 4 {
		t.Errorf("paid = %v, want 4 (absolute value)", m.FundingPaidUSD)
	}
	if m.NetFundingUSD != 6 {
		t.Errorf("net = %v, want 6", m.NetFundingUSD)
	}
	if got := len(l.Payments()); got != 2 {
		t.Errorf("payment history length = %d, want 2", got)
	}
}

func TestUnknownExchangeIsNoOp(t *testing.T) {
	l, _ := newTestLogger(nil)

	l.RecordFundingPayment(model.Exchange("DERIBIT"), 100)
	l.RecordTradingCost(model.Exchange("DERIBIT"), 100)
	l.RecordOrder(model.Exchange("DERIBIT"))

	if got := len(l.Payments()); got != 0 {
		t.Errorf("unknown exchange payment should not be recorded, got %d entries", got)
	}
	metrics := l.GetPerformanceMetrics(1000)
	if metrics.NetFundingUSD != 0 || metrics.OrdersExecuted != 0 {
		t.Errorf("unknown exchange should leave totals untouched: %+v", metrics)
	}
}

func TestUpdatePositionMetricsFiltersAndReplaces(t *testing.T) {
	l, _ := newTestLogger(nil)

	rates := map[string]float64{"ETH": 0.0001, "BTC": 0.0002}
	positions := []model.LegPosition{
		perpSnapshot(model.ExchangeHyperliquid, "ETH", model.SideShort, 1.0, 3000),
		perpSnapshot(model.ExchangeHyperliquid, "BTC", model.SideShort, 0.00001, 60000), // 取整噪音
	}

	l.UpdatePositionMetrics(model.ExchangeHyperliquid, positions, rates)
	if got := len(l.FundingSnapshots()); got != 1 {
		t.Fatalf("snapshot count = %d, want 1 (dust filtered)", got)
	}

	// 同一轮重复调用不产生重复快照
	l.UpdatePositionMetrics(model.ExchangeHyperliquid, positions, rates)
	if got := len(l.FundingSnapshots()); got != 1 {
		t.Errorf("repeated update duplicated snapshots: %d", got)
	}

	// 持仓清空后该交易所快照全部清除
	l.UpdatePositionMetrics(model.ExchangeHyperliquid, nil, rates)
	if got := len(l.FundingSnapshots()); got != 0 {
		t.Errorf("closed positions should purge snapshots, got %d", got)
	}
}

func TestUpdatePositionMetricsPrunesStaleSnapshots(t *testing.T) {
	l, now := newTestLogger(nil)

	rates := map[string]float64{"ETH": 0.0001}
	l.UpdatePositionMetrics(model.ExchangeHyperliquid, []model.LegPosition{
		perpSnapshot(model.ExchangeHyperliquid, "ETH", model.SideShort, 1.0, 3000),
	}, rates)

	*now = now.Add(25 * time.Hour)
	l.UpdatePositionMetrics(model.ExchangeAster, []model.LegPosition{
		perpSnapshot(model.ExchangeAster, "ETH", model.SideLong, 1.0, 3000),
	}, rates)

	snaps := l.FundingSnapshots()
	if len(snaps) != 1 || snaps[0].Exchange != model.ExchangeAster {
		t.Errorf("25h-old snapshot should be pruned, got %+v", snaps)
	}
}

func TestEstimatedAPYPairedLegs(t *testing.T) {
	l, _ := newTestLogger(nil)

	// ETH 空头费率 0.0002，多头 0.0001：每小时价差 0.0001
	l.UpdatePositionMetrics(model.ExchangeHyperliquid, []model.LegPosition{
		perpSnapshot(model.ExchangeHyperliquid, "ETHUSDT", model.SideShort, 1.0, 1000),
	}, map[string]float64{"ETHUSDT": 0.0002})
	l.UpdatePositionMetrics(model.ExchangeAster, []model.LegPosition{
		perpSnapshot(model.ExchangeAster, "ETH-PERP", model.SideLong, 1.0, 1000),
	}, map[string]float64{"ETH-PERP": 0.0001})

	want := 0.0001 * 24 * 365 * 100 // 87.6%
	if got := l.CalculateEstimatedAPY(); math.Abs(got-want) > 1e-9 {
		t.Errorf("estimated APY = %v, want %v", got, want)
	}
}

func TestEstimatedAPYOrphanLegs(t *testing.T) {
	l, _ := newTestLogger(nil)

	// 孤立多头，费率为负：多头收资金费
	l.UpdatePositionMetrics(model.ExchangeHyperliquid, []model.LegPosition{
		perpSnapshot(model.ExchangeHyperliquid, "ETH", model.SideLong, 1.0, 1000),
	}, map[string]float64{"ETH": -0.0001})

	want := 0.0001 * 24 * 365 * 100
	if got := l.CalculateEstimatedAPY(); math.Abs(got-want) > 1e-9 {
		t.Errorf("orphan long APY = %v, want %v", got, want)
	}
}

func TestEstimatedAPYNoPositions(t *testing.T) {
	l, _ := newTestLogger(nil)
	if got := l.CalculateEstimatedAPY(); got != 0 {
		t.Errorf("no snapshots should yield 0, got %v", got)
	}
}

func TestRealizedAPYGuards(t *testing.T) {
	l, now := newTestLogger(nil)

	if got := l.CalculateRealizedAPY(0); got != 0 {
		t.Errorf("zero capital should yield 0, got %v", got)
	}
	if got := l.CalculateRealizedAPY(10000); got != 0 {
		t.Errorf("no payment history should yield 0, got %v", got)
	}

	l.RecordFundingPayment(model.ExchangeHyperliquid, 50)

	// 运行不足 1 小时：返回未年化的原始收益率
	*now = now.Add(30 * time.Minute)
	if got := l.CalculateRealizedAPY(10000); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("sub-hour APY = %v, want raw 0.5%%", got)
	}

	// 10 天后：日收益 50/10000/10，年化
	*now = now.Add(10 * 24 * time.Hour)
	want := 50.0 / 10000 / (10.0 + 0.5/24) * 365 * 100
	if got := l.CalculateRealizedAPY(10000); math.Abs(got-want) > 1e-6 {
		t.Errorf("annualized APY = %v, want %v", got, want)
	}
}

func TestRealizedAPYCappedAtThousandPercent(t *testing.T) {
	l, now := newTestLogger(nil)

	l.RecordFundingPayment(model.ExchangeHyperliquid, 5000)
	*now = now.Add(2 * time.Hour)

	if got := l.CalculateRealizedAPY(1000); got != maxRealizedAPYPercent {
		t.Errorf("runaway APY = %v, want cap %v", got, maxRealizedAPYPercent)
	}
}

func TestRealizedAPYPrefersExternalSummary(t *testing.T) {
	l, _ := newTestLogger(nil)

	l.RecordFundingPayment(model.ExchangeHyperliquid, 50)
	l.SetExternalSummary(&model.FundingSummary{RealAPY: 12.5})

	if got := l.CalculateRealizedAPY(10000); got != 12.5 {
		t.Errorf("external summary APY = %v, want 12.5", got)
	}
	// 本金为 0 时外部汇总不适用
	if got := l.CalculateRealizedAPY(0); got != 0 {
		t.Errorf("zero capital should ignore external summary, got %v", got)
	}
}

func TestPerformanceMetricsCapitalFallback(t *testing.T) {
	l, _ := newTestLogger(nil)

	l.UpdatePositionMetrics(model.ExchangeHyperliquid, []model.LegPosition{
		perpSnapshot(model.ExchangeHyperliquid, "ETH", model.SideShort, 1.0, 3000),
	}, map[string]float64{"ETH": 0.0001})

	m := l.GetPerformanceMetrics(0)
	if m.CapitalDeployedUSD != 1500 {
		t.Errorf("capital fallback = %v, want positionValue/2 = 1500", m.CapitalDeployedUSD)
	}
	if m.TotalPositionValueUSD != 3000 {
		t.Errorf("total position value = %v, want 3000", m.TotalPositionValueUSD)
	}
}

func TestDrawdownMonotone(t *testing.T) {
	l, _ := newTestLogger(nil)

	l.UpdatePositionMetrics(model.ExchangeHyperliquid, []model.LegPosition{
		perpSnapshot(model.ExchangeHyperliquid, "ETH", model.SideShort, 1.0, 1000),
	}, map[string]float64{"ETH": 0.0001})

	// 峰值 1000
	if m := l.GetPerformanceMetrics(500); m.MaxDrawdownPercent != 0 {
		t.Fatalf("initial drawdown = %v, want 0", m.MaxDrawdownPercent)
	}

	// 支付 100 资金费：当前价值 900，回撤 10%
	l.RecordFundingPayment(model.ExchangeHyperliquid, -100)
	if m := l.GetPerformanceMetrics(500); math.Abs(m.MaxDrawdownPercent-10) > 1e-9 {
		t.Errorf("drawdown = %v, want 10", m.MaxDrawdownPercent)
	}

	// 回升后最大回撤不回落
	l.RecordFundingPayment(model.ExchangeHyperliquid, 100)
	if m := l.GetPerformanceMetrics(500); math.Abs(m.MaxDrawdownPercent-10) > 1e-9 {
		t.Errorf("max drawdown should not shrink, got %v", m.MaxDrawdownPercent)
	}
}

func TestResetClearsState(t *testing.T) {
	l, _ := newTestLogger(nil)

	l.RecordFundingPayment(model.ExchangeHyperliquid, 10)
	l.RecordOpportunity()
	l.SetExternalSummary(&model.FundingSummary{RealAPY: 12.5})
	l.ResetPerformanceMetrics()

	m := l.GetPerformanceMetrics(1000)
	if m.NetFundingUSD != 0 || m.OpportunitiesDetected != 0 {
		t.Errorf("reset left residual state: %+v", m)
	}
	if got := l.CalculateRealizedAPY(1000); got != 0 {
		t.Errorf("reset should drop external summary, got APY %v", got)
	}
}

func TestSyncExternalPaymentsSkipsPreResetHistory(t *testing.T) {
	src := &MockPaymentSource{}
	l, now := newTestLogger(src)

	src.payments = []model.FundingPayment{
		{Exchange: model.ExchangeHyperliquid, Amount: 10, At: now.Add(-time.Hour)}, // 重置之前
		{Exchange: model.ExchangeHyperliquid, Amount: 20, At: now.Add(time.Hour)},
		{Exchange: model.ExchangeAster, Amount: -5, At: now.Add(2 * time.Hour)},
	}

	l.SyncExternalPayments(context.Background(), 30)

	if got := len(l.Payments()); got != 2 {
		t.Fatalf("replayed payments = %d, want 2", got)
	}
	metrics := l.GetPerformanceMetrics(1000)
	if metrics.NetFundingUSD != 15 {
		t.Errorf("net funding after sync = %v, want 15", metrics.NetFundingUSD)
	}
}

func TestSyncExternalPaymentsFailureIsSwallowed(t *testing.T) {
	src := &MockPaymentSource{fetchErr: errors.New("api down")}
	l, _ := newTestLogger(src)

	l.SyncExternalPayments(context.Background(), 30)
	if got := len(l.Payments()); got != 0 {
		t.Errorf("failed sync should record nothing, got %d", got)
	}
}
