package service

import (
	"math"

	"perparb/internal/domain/model"
)

// OrderType 下单方式
type OrderType string

const (
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeMarket OrderType = "MARKET"
)

const (
	limitBaseSlippageRate  = 0.0001 // 限价单基础滑点 0.01%
	marketBaseSlippageRate = 0.0005 // 市价单基础滑点 0.05%
	impactSlippageCap      = 0.02   // 冲击滑点上限 2%
	fundingImpactFraction  = 0.1    // 单一参与者最多推动当前费率的 10%
)

// CostCalculator 交易成本估算器：滑点、手续费、资金费率冲击、回本时间。
// 全部为纯函数，处在开仓决策热路径上 —— 对零值/NaN 等异常输入一律退化为
// 保守估计，绝不 panic、绝不返回错误中断交易循环。
type CostCalculator struct {
	cfg *model.StrategyConfig
}

func NewCostCalculator(cfg *model.StrategyConfig) *CostCalculator {
	return &CostCalculator{cfg: cfg}
}

// CalculateSlippageCost 估算滑点成本（美元）。
// 基础滑点由订单类型决定；冲击滑点随仓位占未平仓量的比例上升，
// 上限 2%，防止对流动性差的市场给出无界估计。
// 未平仓量为零或中间价不可用时只按基础滑点估算，不做除法。
func (c *CostCalculator) CalculateSlippageCost(positionSizeUSD, bestBid, bestAsk, openInterestUSD float64, orderType OrderType) float64 {
	if positionSizeUSD <= 0 || math.IsNaN(positionSizeUSD) || math.IsInf(positionSizeUSD, 0) {
		return 0
	}

	baseRate := limitBaseSlippageRate
	if orderType == OrderTypeMarket {
		baseRate = marketBaseSlippageRate
	}

	mid := (bestBid + bestAsk) / 2
	if openInterestUSD <= 0 || mid <= 0 || math.IsNaN(mid) {
		return positionSizeUSD * baseRate
	}

	impactRate := 0.5 * (positionSizeUSD / openInterestUSD)
	if impactRate > impactSlippageCap {
		impactRate = impactSlippageCap
	}
	return positionSizeUSD * (baseRate + impactRate)
}

// PredictFundingRateImpact 预测本仓位对资金费率的推动量（小数形式，带符号）。
// 按仓位占未平仓量比例的平方根缩放（规模越大边际冲击越小），
// 与当前费率同号，幅度上限为当前费率绝对值的 10%。
// 未平仓量为零或费率非有限数时返回 0。
func (c *CostCalculator) PredictFundingRateImpact(positionSizeUSD, openInterestUSD, currentFundingRate float64) float64 {
	if openInterestUSD <= 0 {
		return 0
	}
	if math.IsNaN(currentFundingRate) || math.IsInf(currentFundingRate, 0) || currentFundingRate == 0 {
		return 0
	}
	if positionSizeUSD <= 0 || math.IsNaN(positionSizeUSD) {
		return 0
	}

	fraction := positionSizeUSD / openInterestUSD
	if fraction > 1 {
		fraction = 1
	}
	impact := math.Abs(currentFundingRate) * fundingImpactFraction * math.Sqrt(fraction)
	if currentFundingRate < 0 {
		impact = -impact
	}
	return impact
}

// CalculateFees 按交易所费率表计算手续费（美元）。
// 未知交易所回退到保守默认费率；开仓与平仓使用同一费率表，无不对称。
func (c *CostCalculator) CalculateFees(positionSizeUSD float64, exchange model.Exchange, isMaker, isEntry bool) float64 {
	_ = isEntry // entry and exit are charged at the same schedule
	if positionSizeUSD <= 0 || math.IsNaN(positionSizeUSD) {
		return 0
	}
	return positionSizeUSD * c.cfg.FeeFor(exchange, isMaker)
}

// RoundTripFees 双腿开平仓的总手续费
func (c *CostCalculator) RoundTripFees(positionSizeUSD float64, long, short model.Exchange, isMaker bool) float64 {
	return c.CalculateFees(positionSizeUSD, long, isMaker, true) +
		c.CalculateFees(positionSizeUSD, long, isMaker, false) +
		c.CalculateFees(positionSizeUSD, short, isMaker, true) +
		c.CalculateFees(positionSizeUSD, short, isMaker, false)
}

// CalculateBreakEvenHours 回本时间（小时）。
// hourlyReturn ≤ 0 时无法回本，ok 返回 false；成本为 0 时立即回本。
func (c *CostCalculator) CalculateBreakEvenHours(totalCostsUSD, hourlyReturnUSD float64) (hours float64, ok bool) {
	if totalCostsUSD == 0 {
		return 0, true
	}
	if hourlyReturnUSD <= 0 || math.IsNaN(hourlyReturnUSD) {
		return 0, false
	}
	return totalCostsUSD / hourlyReturnUSD, true
}
