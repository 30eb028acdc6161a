package model

import (
	"fmt"
	"time"
)

// FeeSchedule 单个交易所的挂单/吃单费率（小数形式）
type FeeSchedule struct {
	Maker float64
	Taker float64
}

// LeverageBounds 动态杠杆上下界与回看窗口
type LeverageBounds struct {
	Min           float64
	Max           float64
	LookbackHours int
}

// StrategyConfig 策略参数聚合。启动时构建一次并校验，之后按引用共享、
// 只读 —— 不存在全局可变状态。
type StrategyConfig struct {
	// 机会筛选
	MinSpread            Percentage // 最小每小时费率价差
	MinPositionUSD       float64
	BalanceUsageFraction float64 // 单次可动用余额比例 (0,1]
	BaseLeverage         float64
	MaxBreakEvenDays     float64

	// 流动性过滤
	MinOpenInterestUSD          float64 // 单仓位最小未平仓量
	MinAggregateOpenInterestUSD float64 // 标的聚合最小未平仓量
	MinDailyVolumeUSD           float64

	// 费率表，未知交易所回退到 DefaultFee
	Fees       map[Exchange]FeeSchedule
	DefaultFee FeeSchedule

	// 执行重试与订单等待退避
	ExecutionRetries int
	RetryDelays      []time.Duration
	OrderWaitBase    time.Duration
	OrderWaitMax     time.Duration

	// 动态杠杆，按归一化符号覆盖
	Leverage          LeverageBounds
	LeverageOverrides map[string]LeverageBounds

	// 永续+现货对冲
	PerpSpotHedging bool
	HedgeTolerance  Percentage
}

// DefaultStrategyConfig 带默认参数的配置
func DefaultStrategyConfig() *StrategyConfig {
	return &StrategyConfig{
		MinSpread:            PercentageFromDecimal(0.00001), // 0.001%/h
		MinPositionUSD:       50,
		BalanceUsageFraction: 0.9,
		BaseLeverage:         2,
		MaxBreakEvenDays:     3,

		MinOpenInterestUSD:          500_000,
		MinAggregateOpenInterestUSD: 2_000_000,
		MinDailyVolumeUSD:           1_000_000,

		Fees: map[Exchange]FeeSchedule{
			ExchangeHyperliquid: {Maker: 0.0001, Taker: 0.00035},
			ExchangeAster:       {Maker: 0.0001, Taker: 0.0004},
			ExchangeLighter:     {Maker: 0, Taker: 0.0002},
		},
		DefaultFee: FeeSchedule{Maker: 0.0002, Taker: 0.0005},

		ExecutionRetries: 3,
		RetryDelays:      []time.Duration{2 * time.Second, 5 * time.Second, 10 * time.Second},
		OrderWaitBase:    500 * time.Millisecond,
		OrderWaitMax:     10 * time.Second,

		Leverage:          LeverageBounds{Min: 1, Max: 5, LookbackHours: 72},
		LeverageOverrides: map[string]LeverageBounds{},

		PerpSpotHedging: true,
		HedgeTolerance:  PercentageFromPercent(1),
	}
}

// Validate 构造期校验：比例字段落在 (0,1]，杠杆 ≥ 1，重试参数非空。
// 违反即为接线层 bug，立即报错而不是带病运行。
func (c *StrategyConfig) Validate() error {
	if f := c.BalanceUsageFraction; f <= 0 || f > 1 {
		return fmt.Errorf("balance usage fraction must be in (0,1], got %f", f)
	}
	if c.MinPositionUSD <= 0 {
		return fmt.Errorf("min position usd must be positive, got %f", c.MinPositionUSD)
	}
	if c.BaseLeverage < 1 {
		return fmt.Errorf("base leverage must be >= 1, got %f", c.BaseLeverage)
	}
	if c.MaxBreakEvenDays <= 0 {
		return fmt.Errorf("max break-even days must be positive, got %f", c.MaxBreakEvenDays)
	}
	if c.ExecutionRetries <= 0 {
		return fmt.Errorf("execution retries must be positive, got %d", c.ExecutionRetries)
	}
	if len(c.RetryDelays) == 0 {
		return fmt.Errorf("retry delay list must not be empty")
	}
	if c.OrderWaitBase <= 0 || c.OrderWaitMax < c.OrderWaitBase {
		return fmt.Errorf("invalid order wait backoff: base=%s max=%s", c.OrderWaitBase, c.OrderWaitMax)
	}
	if c.Leverage.Min < 1 || c.Leverage.Max < c.Leverage.Min {
		return fmt.Errorf("invalid leverage bounds: min=%f max=%f", c.Leverage.Min, c.Leverage.Max)
	}
	for sym, b := range c.LeverageOverrides {
		if b.Min < 1 || b.Max < b.Min {
			return fmt.Errorf("invalid leverage override for %s: min=%f max=%f", sym, b.Min, b.Max)
		}
	}
	if t := c.HedgeTolerance.Decimal(); t <= 0 || t > 1 {
		return fmt.Errorf("hedge tolerance must be in (0,1], got %f", t)
	}
	return nil
}

// FeeFor 查询费率，未知交易所回退到保守默认值
func (c *StrategyConfig) FeeFor(ex Exchange, isMaker bool) float64 {
	sched, ok := c.Fees[ex]
	if !ok {
		sched = c.DefaultFee
	}
	if isMaker {
		return sched.Maker
	}
	return sched.Taker
}

// LeverageBoundsFor 查询杠杆边界，按归一化符号匹配覆盖项
func (c *StrategyConfig) LeverageBoundsFor(symbol string) LeverageBounds {
	if b, ok := c.LeverageOverrides[NormalizeSymbol(symbol)]; ok {
		return b
	}
	return c.Leverage
}
