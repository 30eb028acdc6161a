package model

import "fmt"

// PositionSize 仓位规模值对象：基础资产数量 + 可选杠杆倍数。
// 数量必须为正；杠杆必须 ≥ 1。杠杆只影响保证金占用，不影响名义价值换算。
type PositionSize struct {
	base     float64
	leverage float64
}

// NewPositionSize 创建仓位规模，数量必须 > 0
func NewPositionSize(base float64) (PositionSize, error) {
	if base <= 0 {
		return PositionSize{}, fmt.Errorf("position size must be positive, got %f", base)
	}
	return PositionSize{base: base, leverage: 1}, nil
}

// PositionSizeFromUSD 按价格折算出基础资产数量
func PositionSizeFromUSD(usdValue, price, leverage float64) (PositionSize, error) {
	if price <= 0 {
		return PositionSize{}, fmt.Errorf("price must be positive, got %f", price)
	}
	ps, err := NewPositionSize(usdValue / price)
	if err != nil {
		return PositionSize{}, err
	}
	return ps.WithLeverage(leverage)
}

// Base 基础资产数量
func (s PositionSize) Base() float64 { return s.base }

// Leverage 杠杆倍数（默认 1）
func (s PositionSize) Leverage() float64 { return s.leverage }

// USD 名义价值 = 数量 × 价格。杠杆不参与换算。
func (s PositionSize) USD(price float64) float64 { return s.base * price }

// MarginUSD 保证金占用 = 名义价值 / 杠杆
func (s PositionSize) MarginUSD(price float64) float64 {
	return s.base * price / s.leverage
}

// WithLeverage 返回应用杠杆后的新实例，杠杆必须 ≥ 1
func (s PositionSize) WithLeverage(leverage float64) (PositionSize, error) {
	if leverage < 1 {
		return PositionSize{}, fmt.Errorf("leverage must be >= 1, got %f", leverage)
	}
	return PositionSize{base: s.base, leverage: leverage}, nil
}

// Add 数量相加，保留自身杠杆
func (s PositionSize) Add(o PositionSize) PositionSize {
	return PositionSize{base: s.base + o.base, leverage: s.leverage}
}

// Sub 数量相减，结果必须仍为正
func (s PositionSize) Sub(o PositionSize) (PositionSize, error) {
	if o.base >= s.base {
		return PositionSize{}, fmt.Errorf("subtraction would produce non-positive size: %f - %f", s.base, o.base)
	}
	return PositionSize{base: s.base - o.base, leverage: s.leverage}, nil
}
