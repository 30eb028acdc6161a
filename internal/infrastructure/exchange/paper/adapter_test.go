package paper

import (
	"context"
	"testing"
	"time"

	"perparb/internal/domain/model"
)

func TestPaperAdapterDepositWithdraw(t *testing.T) {
	a := New(model.ExchangeLighter, 1000)
	ctx := context.Background()

	if err := a.DepositExternal(ctx, 250); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	if err := a.WithdrawExternal(ctx, 500, "0xdead"); err != nil {
		t.Fatalf("withdraw failed: %v", err)
	}

	balance, err := a.GetBalance(ctx)
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if balance != 750 {
		t.Errorf("balance = %v, want 750", balance)
	}

	if err := a.WithdrawExternal(ctx, 10000, "0xdead"); err == nil {
		t.Error("overdraw should fail")
	}
	if err := a.DepositExternal(ctx, -5); err == nil {
		t.Error("negative deposit should fail")
	}
}

func TestPaperAdapterEquityIncludesUnrealized(t *testing.T) {
	a := New(model.ExchangeAster, 1000)
	ctx := context.Background()

	leg := model.LegPosition{
		Exchange: model.ExchangeAster, Symbol: "ETHUSDT", Kind: model.MarketPerp,
		Side: model.SideShort, Size: 1.0, EntryPrice: 3000,
	}.WithMarkPrice(2900, time.Now())
	a.SetPositions([]model.LegPosition{leg})

	equity, err := a.GetEquity(ctx)
	if err != nil {
		t.Fatalf("GetEquity failed: %v", err)
	}
	// 空头标记价下跌 100，浮盈 100
	if equity != 1100 {
		t.Errorf("equity = %v, want 1100", equity)
	}

	positions, _ := a.GetPositions(ctx)
	if len(positions) != 1 || positions[0].Symbol != "ETHUSDT" {
		t.Errorf("positions = %+v", positions)
	}
}
