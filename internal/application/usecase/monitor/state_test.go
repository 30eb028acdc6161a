package monitor

import (
	"testing"
	"time"

	"perparb/internal/application/port"
	"perparb/internal/domain/model"
)

func tick(ex model.Exchange, symbol string, rate float64) port.FundingTick {
	return port.FundingTick{Exchange: ex, Symbol: symbol, HourlyRate: rate, At: time.Now()}
}

func TestBoardApplyTracksConfiguredSymbolsOnly(t *testing.T) {
	b := NewRateBoard([]string{"ETHUSDT", "BTC"})

	if !b.Apply(tick(model.ExchangeHyperliquid, "ETH", 0.0001)) {
		t.Error("first rate for tracked symbol should report change")
	}
	if b.Apply(tick(model.ExchangeHyperliquid, "ETH-PERP", 0.0001)) {
		t.Error("unchanged rate should not report change")
	}
	if b.Apply(tick(model.ExchangeHyperliquid, "SOL", 0.0001)) {
		t.Error("untracked symbol should be ignored")
	}

	if rate, ok := b.RateFor(model.ExchangeHyperliquid, "ETHUSDC"); !ok || rate != 0.0001 {
		t.Errorf("rate lookup = %v, %v; want 0.0001, true", rate, ok)
	}
}

func TestBoardBestSpread(t *testing.T) {
	b := NewRateBoard([]string{"ETH"})

	b.Apply(tick(model.ExchangeHyperliquid, "ETH", 0.00005))
	if _, _, _, ok := b.BestSpread("ETH"); ok {
		t.Error("single quote cannot form a spread")
	}

	b.Apply(tick(model.ExchangeAster, "ETHUSDT", 0.0003))
	long, short, spread, ok := b.BestSpread("ETH")
	if !ok {
		t.Fatal("two quotes should form a spread")
	}
	if long != model.ExchangeHyperliquid || short != model.ExchangeAster {
		t.Errorf("legs = %s/%s, want long HYPERLIQUID short ASTER", long, short)
	}
	if spread != 0.00025 {
		t.Errorf("spread = %v, want 0.00025", spread)
	}
}
