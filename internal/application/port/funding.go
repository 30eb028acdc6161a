package port

import (
	"context"
	"time"

	"perparb/internal/domain/model"
)

// FundingPaymentSource 外部资金费支付来源（交易所账单 API）。
// 绩效记录器启动时用它回放历史支付，运行中定期刷新真实汇总。
type FundingPaymentSource interface {
	// FetchAllFundingPayments 拉取最近 days 天的资金费支付记录
	FetchAllFundingPayments(ctx context.Context, days int) ([]model.FundingPayment, error)

	// GetTotalTradingCosts 累计交易成本（USD）
	GetTotalTradingCosts() float64

	// GetCombinedSummary 各交易所合并后的真实资金费汇总
	GetCombinedSummary(ctx context.Context, days int, capitalDeployedUSD float64) (*model.FundingSummary, error)
}

// FundingTick 资金费率推送
type FundingTick struct {
	Exchange        model.Exchange
	Symbol          string
	HourlyRate      float64
	MarkPrice       float64
	OpenInterestUSD float64
	At              time.Time
}

// FundingFeed 资金费率实时数据源
type FundingFeed interface {
	// Start 建立连接并开始推送，断线自动重连，ctx 取消后退出
	Start(ctx context.Context) error

	// Ticks 推送通道
	Ticks() <-chan FundingTick

	// Close 关闭连接
	Close() error
}
