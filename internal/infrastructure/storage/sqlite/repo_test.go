package sqlite

import (
	"context"
	"os"
	"testing"
	"time"

	"perparb/internal/domain/model"
)

func TestSQLiteRepoFundingPaymentDedup(t *testing.T) {
	dbPath := "test_payments.db"
	defer os.Remove(dbPath)

	repo, err := New(dbPath)
	if err != nil {
		t.Fatalf("failed to create repo: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()
	paidAt := time.UnixMilli(1717200000000)
	p := model.FundingPayment{Exchange: model.ExchangeHyperliquid, Amount: 1.25, At: paidAt}

	// 同一笔支付写两次，只应落库一次
	if err := repo.SaveFundingPayment(ctx, p); err != nil {
		t.Fatalf("SaveFundingPayment failed: %v", err)
	}
	if err := repo.SaveFundingPayment(ctx, p); err != nil {
		t.Fatalf("duplicate SaveFundingPayment failed: %v", err)
	}

	payments, err := repo.ListFundingPayments(ctx, paidAt.Add(-time.Hour))
	if err != nil {
		t.Fatalf("ListFundingPayments failed: %v", err)
	}
	if len(payments) != 1 {
		t.Fatalf("expected 1 payment, got %d", len(payments))
	}
	if payments[0].Amount != 1.25 || payments[0].Exchange != model.ExchangeHyperliquid {
		t.Errorf("unexpected payment %+v", payments[0])
	}
}

func TestSQLiteRepoListFundingPaymentsSince(t *testing.T) {
	dbPath := "test_payments_since.db"
	defer os.Remove(dbPath)

	repo, err := New(dbPath)
	if err != nil {
		t.Fatalf("failed to create repo: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()
	base := time.UnixMilli(1717200000000)
	repo.SaveFundingPayment(ctx, model.FundingPayment{Exchange: model.ExchangeAster, Amount: 1, At: base})
	repo.SaveFundingPayment(ctx, model.FundingPayment{Exchange: model.ExchangeAster, Amount: 2, At: base.Add(2 * time.Hour)})

	payments, err := repo.ListFundingPayments(ctx, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("ListFundingPayments failed: %v", err)
	}
	if len(payments) != 1 || payments[0].Amount != 2 {
		t.Errorf("expected only the later payment, got %+v", payments)
	}
}

func TestSQLiteRepoInsertMetricsSnapshot(t *testing.T) {
	dbPath := "test_metrics.db"
	defer os.Remove(dbPath)

	repo, err := New(dbPath)
	if err != nil {
		t.Fatalf("failed to create repo: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()
	payload := `{"net_funding_usd":12.5}`
	if err := repo.SaveMetricsSnapshot(ctx, 1717200000000, payload); err != nil {
		t.Fatalf("SaveMetricsSnapshot failed: %v", err)
	}
}

func TestSQLiteRepoInsertOpportunity(t *testing.T) {
	dbPath := "test_opps.db"
	defer os.Remove(dbPath)

	repo, err := New(dbPath)
	if err != nil {
		t.Fatalf("failed to create repo: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()
	opp := model.FundingOpportunity{
		Symbol:        "ETH",
		LongExchange:  model.ExchangeHyperliquid,
		ShortExchange: model.ExchangeAster,
		LongRate:      0.00001,
		ShortRate:     0.0003,
		SpreadPerHour: 0.00029,
		NotionalUSD:   1800,
		Timestamp:     1717200000000,
	}
	if err := repo.SaveOpportunity(ctx, opp); err != nil {
		t.Fatalf("SaveOpportunity failed: %v", err)
	}
}

func TestSQLiteRepoGroupRoundTrip(t *testing.T) {
	dbPath := "test_groups.db"
	defer os.Remove(dbPath)

	repo, err := New(dbPath)
	if err != nil {
		t.Fatalf("failed to create repo: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()
	at := time.UnixMilli(1717200000000)
	perp := model.LegPosition{
		Exchange: model.ExchangeHyperliquid, Symbol: "ETH", Kind: model.MarketPerp,
		Side: model.SideShort, Size: 1.0, EntryPrice: 3000,
	}.WithMarkPrice(3010, at)
	spot := model.LegPosition{
		Exchange: model.ExchangeHyperliquid, Symbol: "ETH", Kind: model.MarketSpot,
		Side: model.SideLong, Size: 1.0, EntryPrice: 3000,
	}.WithMarkPrice(3010, at)

	g, err := model.NewDeltaNeutralGroup(perp, spot, model.PercentageFromPercent(1))
	if err != nil {
		t.Fatalf("group construction failed: %v", err)
	}

	// 同键写两次应为更新而不是新增
	if err := repo.SaveGroup(ctx, g); err != nil {
		t.Fatalf("SaveGroup failed: %v", err)
	}
	if err := repo.SaveGroup(ctx, g); err != nil {
		t.Fatalf("second SaveGroup failed: %v", err)
	}

	groups, err := repo.ListOpenGroups(ctx)
	if err != nil {
		t.Fatalf("ListOpenGroups failed: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	got := groups[0]
	if got.Symbol != "ETH" || got.Exchange != model.ExchangeHyperliquid {
		t.Errorf("unexpected group identity %s/%s", got.Exchange, got.Symbol)
	}
	if got.Perp.Side != model.SideShort || got.Hedge.Kind != model.MarketSpot {
		t.Errorf("legs not restored: perp=%+v hedge=%+v", got.Perp, got.Hedge)
	}
	if got.NetDelta() != 0 {
		t.Errorf("expected neutral group, net delta = %v", got.NetDelta())
	}
}
