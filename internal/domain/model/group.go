package model

import (
	"fmt"
	"math"
)

// DefaultNeutralityTolerance 默认中性偏差容忍度 1%
var DefaultNeutralityTolerance = PercentageFromPercent(1)

// DeltaNeutralGroup 同一交易所、同一标的上的对冲组合：
// 一条永续腿加一条现货（或第二条永续）腿。构造时校验两腿属于同一
// 交易所和同一标的 —— 不满足属于调用方错误，立即失败而不是容忍。
// 组合本身不可变，更新通过 WithPositions 返回新实例。
type DeltaNeutralGroup struct {
	Symbol    string
	Exchange  Exchange
	Perp      LegPosition
	Hedge     LegPosition
	Tolerance Percentage
}

// NewDeltaNeutralGroup 创建对冲组合。tolerance 传零值时使用默认 1%。
func NewDeltaNeutralGroup(perp, hedge LegPosition, tolerance Percentage) (*DeltaNeutralGroup, error) {
	if perp.Exchange != hedge.Exchange {
		return nil, fmt.Errorf("exchange mismatch: perp leg on %s, hedge leg on %s", perp.Exchange, hedge.Exchange)
	}
	if perp.Symbol != hedge.Symbol {
		return nil, fmt.Errorf("symbol mismatch: perp leg %s, hedge leg %s", perp.Symbol, hedge.Symbol)
	}
	if tolerance.Decimal() == 0 {
		tolerance = DefaultNeutralityTolerance
	}
	return &DeltaNeutralGroup{
		Symbol:    perp.Symbol,
		Exchange:  perp.Exchange,
		Perp:      perp,
		Hedge:     hedge,
		Tolerance: tolerance,
	}, nil
}

// NetDelta 净敞口 = 两腿带符号数量之和，中性组合应接近 0
func (g *DeltaNeutralGroup) NetDelta() float64 {
	return g.Perp.SignedSize() + g.Hedge.SignedSize()
}

// DriftPercent 偏差百分比 = |perpSize − hedgeSize| / hedgeSize × 100。
// 对冲腿数量为 0 时返回 0（由 IsNeutral 单独判定为非中性）。
func (g *DeltaNeutralGroup) DriftPercent() float64 {
	if g.Hedge.Size == 0 {
		return 0
	}
	return math.Abs(g.Perp.Size-g.Hedge.Size) / g.Hedge.Size * 100
}

// IsNeutral 偏差小于容忍度即视为中性；对冲腿为零敞口时恒为 false
func (g *DeltaNeutralGroup) IsNeutral() bool {
	if g.Hedge.Size == 0 {
		return false
	}
	return g.DriftPercent() < g.Tolerance.Percent()
}

// TotalValueUSD 两腿按标记价格的名义价值之和
func (g *DeltaNeutralGroup) TotalValueUSD() float64 {
	return g.Perp.NotionalUSD() + g.Hedge.NotionalUSD()
}

// CombinedPnL 两腿未实现盈亏之和。正确开仓的中性组合中价格敞口
// 互相抵消，该值应在 0 附近波动；资金费收益另行记账。
func (g *DeltaNeutralGroup) CombinedPnL() float64 {
	return g.Perp.UnrealizedPnL + g.Hedge.UnrealizedPnL
}

// WithPositions 返回替换两腿后的新组合，重新走构造校验
func (g *DeltaNeutralGroup) WithPositions(perp, hedge LegPosition) (*DeltaNeutralGroup, error) {
	return NewDeltaNeutralGroup(perp, hedge, g.Tolerance)
}
