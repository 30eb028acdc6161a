package port

import (
	"context"

	"perparb/internal/domain/model"
)

// ExchangeAdapter 交易所适配器能力集：余额/权益查询、持仓查询、出入金。
// 每个接入的交易所（Hyperliquid、Aster、Lighter）各实现一份。
type ExchangeAdapter interface {
	// Name 交易所标识
	Name() model.Exchange

	// GetBalance 获取可用余额（USD）
	GetBalance(ctx context.Context) (float64, error)

	// GetEquity 获取总权益（USD，含未实现盈亏）
	GetEquity(ctx context.Context) (float64, error)

	// GetPositions 获取当前持仓
	GetPositions(ctx context.Context) ([]model.LegPosition, error)

	// DepositExternal 从外部钱包入金
	DepositExternal(ctx context.Context, amountUSD float64) error

	// WithdrawExternal 出金到外部地址
	WithdrawExternal(ctx context.Context, amountUSD float64, destination string) error
}

// Rebalancer 跨交易所资金调拨
type Rebalancer interface {
	// GetExchangeBalances 批量查询各交易所可用余额；单个失败不中断整体
	GetExchangeBalances(ctx context.Context, adapters map[model.Exchange]ExchangeAdapter) map[model.Exchange]float64

	// TransferBetweenExchanges 在两个交易所间转移资金
	TransferBetweenExchanges(ctx context.Context, from, to model.Exchange, amountUSD float64, fromAdapter, toAdapter ExchangeAdapter) error
}

// ProfitTracker 可部署资金估算（可选协作者，接入后用于扣除待收割利润）
type ProfitTracker interface {
	GetDeployableCapital(exchange model.Exchange) (float64, error)
}
