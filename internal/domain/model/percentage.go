package model

import "errors"

// ErrDivideByZero 除零错误
var ErrDivideByZero = errors.New("percentage: divide by zero")

// Percentage 比率值对象，内部始终以小数形式存储（0.0001 = 0.01%）。
// 不限制取值范围：资金费率可以为负，杠杆后的年化可以超过 100%。
// 所有算术操作返回新实例，原值不变。
type Percentage struct {
	value float64
}

// PercentageFromDecimal 从小数创建（0.0001 = 0.01%）
func PercentageFromDecimal(v float64) Percentage {
	return Percentage{value: v}
}

// PercentageFromPercent 从百分数创建（0.01 = 0.01%）
func PercentageFromPercent(p float64) Percentage {
	return Percentage{value: p / 100}
}

// Decimal 小数形式
func (p Percentage) Decimal() float64 { return p.value }

// Percent 百分数形式（×100）
func (p Percentage) Percent() float64 { return p.value * 100 }

// APY 年化语义别名，数值与 Decimal 相同
func (p Percentage) APY() float64 { return p.value }

func (p Percentage) Add(o Percentage) Percentage {
	return Percentage{value: p.value + o.value}
}

func (p Percentage) Sub(o Percentage) Percentage {
	return Percentage{value: p.value - o.value}
}

func (p Percentage) Mul(o Percentage) Percentage {
	return Percentage{value: p.value * o.value}
}

func (p Percentage) Div(o Percentage) (Percentage, error) {
	if o.value == 0 {
		return Percentage{}, ErrDivideByZero
	}
	return Percentage{value: p.value / o.value}, nil
}

func (p Percentage) Equals(o Percentage) bool      { return p.value == o.value }
func (p Percentage) GreaterThan(o Percentage) bool { return p.value > o.value }
func (p Percentage) LessThan(o Percentage) bool    { return p.value < o.value }
