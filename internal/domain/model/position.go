package model

import "time"

// Side 持仓方向
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// MarketKind 市场类型
type MarketKind string

const (
	MarketPerp MarketKind = "PERP"
	MarketSpot MarketKind = "SPOT"
)

// LegPosition 对冲组合的单条腿（永续或现货）。
// 价格更新返回新实例，调用方之间不共享可变状态。
type LegPosition struct {
	Exchange      Exchange
	Symbol        string
	Kind          MarketKind
	Side          Side
	Size          float64 // 基础资产数量，始终为正
	EntryPrice    float64
	MarkPrice     float64
	UnrealizedPnL float64
	RealizedPnL   float64
	UpdatedAt     time.Time
}

// SignedSize 带符号数量：LONG 为正，SHORT 为负
func (p LegPosition) SignedSize() float64 {
	if p.Side == SideShort {
		return -p.Size
	}
	return p.Size
}

// NotionalUSD 按标记价格计算的名义价值
func (p LegPosition) NotionalUSD() float64 {
	return p.Size * p.MarkPrice
}

// WithMarkPrice 返回更新标记价格后的新实例，未实现盈亏随之重算
func (p LegPosition) WithMarkPrice(price float64, at time.Time) LegPosition {
	next := p
	next.MarkPrice = price
	next.UpdatedAt = at
	if p.Side == SideShort {
		next.UnrealizedPnL = (p.EntryPrice - price) * p.Size
	} else {
		next.UnrealizedPnL = (price - p.EntryPrice) * p.Size
	}
	return next
}
