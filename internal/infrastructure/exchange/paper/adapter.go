package paper

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"perparb/internal/application/port"
	"perparb/internal/domain/model"
)

// Adapter 纸面账户：余额在内存里记账，出入金立即到账。
// 用于没有凭据的运行和集成演练。
type Adapter struct {
	name model.Exchange

	mu        sync.Mutex
	balance   float64
	positions []model.LegPosition
}

func New(name model.Exchange, seedBalanceUSD float64) *Adapter {
	log.Info().Str("exchange", string(name)).Float64("seed_usd", seedBalanceUSD).Msg("✓ paper adapter ready")
	return &Adapter{name: name, balance: seedBalanceUSD}
}

func (a *Adapter) Name() model.Exchange { return a.name }

func (a *Adapter) GetBalance(ctx context.Context) (float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balance, nil
}

func (a *Adapter) GetEquity(ctx context.Context) (float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	equity := a.balance
	for _, p := range a.positions {
		equity += p.UnrealizedPnL
	}
	return equity, nil
}

func (a *Adapter) GetPositions(ctx context.Context) ([]model.LegPosition, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]model.LegPosition, len(a.positions))
	copy(out, a.positions)
	return out, nil
}

func (a *Adapter) DepositExternal(ctx context.Context, amountUSD float64) error {
	if amountUSD <= 0 {
		return fmt.Errorf("deposit amount must be positive, got %.2f", amountUSD)
	}
	a.mu.Lock()
	a.balance += amountUSD
	a.mu.Unlock()
	return nil
}

func (a *Adapter) WithdrawExternal(ctx context.Context, amountUSD float64, destination string) error {
	if amountUSD <= 0 {
		return fmt.Errorf("withdraw amount must be positive, got %.2f", amountUSD)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if amountUSD > a.balance {
		return fmt.Errorf("insufficient balance: have %.2f, want %.2f", a.balance, amountUSD)
	}
	a.balance -= amountUSD
	return nil
}

// SetPositions 注入模拟持仓，演练对冲组合维护用
func (a *Adapter) SetPositions(positions []model.LegPosition) {
	a.mu.Lock()
	a.positions = append([]model.LegPosition(nil), positions...)
	a.mu.Unlock()
}

var _ port.ExchangeAdapter = (*Adapter)(nil)
