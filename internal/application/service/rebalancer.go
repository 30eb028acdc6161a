package service

import (
	"context"
	"fmt"
	"time"

	"perparb/internal/application/port"
	"perparb/internal/domain/model"

	"github.com/rs/zerolog/log"
)

const (
	// 出金到账轮询间隔与总等待上限
	defaultArrivalPollInterval = 10 * time.Second
	defaultArrivalMaxWait      = 5 * time.Minute

	// 桥接/出金手续费容差：到账金额达到 99% 即认为完成
	arrivalTolerance = 0.99
)

// DefaultRebalancer 经钱包中转的跨交易所调拨：
// 源交易所出金 → 轮询钱包到账 → 目标交易所入金。
// 出金到账是全系统唯一的长耗时操作，轮询有总时长上限，
// 超时后带告警继续入金而不是挂起或失败，资金不会因为确认慢而卡在钱包。
type DefaultRebalancer struct {
	wallet port.WalletClient // 可为 nil，此时跳过到账确认

	pollInterval time.Duration
	maxWait      time.Duration
	sleep        func(time.Duration) // 可注入，测试中替换
}

var _ port.Rebalancer = (*DefaultRebalancer)(nil)

// NewDefaultRebalancer 创建调拨器
func NewDefaultRebalancer(wallet port.WalletClient) *DefaultRebalancer {
	return &DefaultRebalancer{
		wallet:       wallet,
		pollInterval: defaultArrivalPollInterval,
		maxWait:      defaultArrivalMaxWait,
		sleep:        time.Sleep,
	}
}

// GetExchangeBalances 批量查询可用余额。单个交易所失败记日志后跳过，
// 一家故障不影响其余交易所的调拨决策。
func (r *DefaultRebalancer) GetExchangeBalances(ctx context.Context, adapters map[model.Exchange]port.ExchangeAdapter) map[model.Exchange]float64 {
	balances := make(map[model.Exchange]float64, len(adapters))
	for exchange, adapter := range adapters {
		balance, err := adapter.GetBalance(ctx)
		if err != nil {
			log.Warn().Str("exchange", string(exchange)).Err(err).Msg("balance query failed")
			continue
		}
		balances[exchange] = balance
	}
	return balances
}

// TransferBetweenExchanges 在两个交易所间转移资金
func (r *DefaultRebalancer) TransferBetweenExchanges(ctx context.Context, from, to model.Exchange, amountUSD float64, fromAdapter, toAdapter port.ExchangeAdapter) error {
	if amountUSD <= 0 {
		return fmt.Errorf("invalid transfer amount %.2f", amountUSD)
	}

	var baseline float64
	destination := ""
	if r.wallet != nil {
		destination = r.wallet.Address()
		bal, err := r.wallet.USDCBalance(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("wallet baseline check failed, arrival confirmation degraded")
		} else {
			baseline = bal
		}
	}

	if err := fromAdapter.WithdrawExternal(ctx, amountUSD, destination); err != nil {
		return fmt.Errorf("withdraw from %s failed: %w", from, err)
	}

	log.Info().
		Str("from", string(from)).
		Str("to", string(to)).
		Float64("amount", amountUSD).
		Msg("withdrawal submitted, waiting for arrival")

	r.waitForArrival(ctx, baseline, amountUSD)

	if err := toAdapter.DepositExternal(ctx, amountUSD); err != nil {
		return fmt.Errorf("deposit to %s failed: %w", to, err)
	}

	log.Info().
		Str("from", string(from)).
		Str("to", string(to)).
		Float64("amount", amountUSD).
		Msg("✓ transfer complete")
	return nil
}

// waitForArrival 轮询钱包直到出金到账或达到等待上限
func (r *DefaultRebalancer) waitForArrival(ctx context.Context, baseline, amountUSD float64) {
	if r.wallet == nil {
		return
	}

	target := baseline + amountUSD*arrivalTolerance
	maxPolls := int(r.maxWait / r.pollInterval)
	for i := 0; i < maxPolls; i++ {
		if ctx.Err() != nil {
			return
		}
		balance, err := r.wallet.USDCBalance(ctx)
		if err == nil && balance >= target {
			return
		}
		r.sleep(r.pollInterval)
	}

	log.Warn().
		Float64("expected", target).
		Dur("waited", r.maxWait).
		Msg("withdrawal arrival not confirmed in time, proceeding anyway")
}
