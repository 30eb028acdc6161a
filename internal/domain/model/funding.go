package model

import (
	"strings"
	"time"
)

// FundingSnapshot 资金费率快照：某交易所某标的上当前持仓的每小时费率。
// 仅用于预估年化，保留 24 小时滚动窗口，同一 (symbol, exchange) 只保留最新。
type FundingSnapshot struct {
	Symbol           string
	Exchange         Exchange
	HourlyRate       float64 // 每小时费率，小数形式
	PositionValueUSD float64
	Side             Side
	At               time.Time
}

// FundingPayment 已结算的资金费：正值为收取，负值为支付
type FundingPayment struct {
	Exchange Exchange
	Amount   float64
	At       time.Time
}

// FundingSummary 外部对账源（交易所费用历史 API）给出的汇总，
// 可用时优先于本地记账计算实际年化。
type FundingSummary struct {
	NetFundingUSD  float64
	DailyAverage   float64
	AnnualizedAPY  float64 // 百分数
	RealAPY        float64 // 百分数，基于实际投入资金
	BreakEvenHours float64
	WinRate        float64
	ProfitableDays int
	TotalDays      int
}

// FundingOpportunity 跨交易所资金费率套利机会
type FundingOpportunity struct {
	Symbol        string
	LongExchange  Exchange
	ShortExchange Exchange
	LongRate      float64 // 每小时费率
	ShortRate     float64
	SpreadPerHour float64 // shortRate − longRate
	NotionalUSD   float64
	Timestamp     int64 // unix ms
}

var symbolSuffixes = []string{"-PERP", "PERP", "USDT", "USDC"}

// NormalizeSymbol 归一化标的符号：去掉 USDT/USDC/-PERP/PERP 后缀并转大写，
// 使同一标的在不同交易所的不同写法归并到同一套利对。
func NormalizeSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	for changed := true; changed; {
		changed = false
		for _, suffix := range symbolSuffixes {
			if len(s) > len(suffix) && strings.HasSuffix(s, suffix) {
				s = strings.TrimSuffix(s, suffix)
				changed = true
			}
		}
	}
	return strings.TrimSuffix(s, "-")
}
