package model

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-12
}

func TestPercentageRoundTrip(t *testing.T) {
	cases := []float64{0, 0.0001, -0.0003, 1.5, 42}
	for _, d := range cases {
		p := PercentageFromDecimal(d)
		if p.Decimal() != d {
			t.Errorf("FromDecimal(%v).Decimal() = %v", d, p.Decimal())
		}
		if !almostEqual(p.Percent(), d*100) {
			t.Errorf("FromDecimal(%v).Percent() = %v, want %v", d, p.Percent(), d*100)
		}
		if p.APY() != d {
			t.Errorf("APY should equal Decimal, got %v vs %v", p.APY(), d)
		}
	}

	if got := PercentageFromPercent(2.5).Decimal(); !almostEqual(got, 0.025) {
		t.Errorf("FromPercent(2.5).Decimal() = %v, want 0.025", got)
	}
}

func TestPercentageArithmeticClosure(t *testing.T) {
	a := PercentageFromDecimal(0.0007)
	b := PercentageFromDecimal(0.0002)

	if got := a.Add(b).Sub(b); !almostEqual(got.Decimal(), a.Decimal()) {
		t.Errorf("add/sub round trip: got %v, want %v", got.Decimal(), a.Decimal())
	}

	q, err := a.Div(b)
	if err != nil {
		t.Fatalf("div failed: %v", err)
	}
	if got := q.Mul(b); !almostEqual(got.Decimal(), a.Decimal()) {
		t.Errorf("div/mul round trip: got %v, want %v", got.Decimal(), a.Decimal())
	}
}

func TestPercentageDivideByZero(t *testing.T) {
	_, err := PercentageFromDecimal(1).Div(PercentageFromDecimal(0))
	if err == nil {
		t.Fatal("expected divide-by-zero error")
	}
}

func TestPercentageComparisons(t *testing.T) {
	a := PercentageFromDecimal(-0.0001)
	b := PercentageFromDecimal(0.0003)

	if !a.LessThan(b) || b.LessThan(a) {
		t.Error("comparison mismatch")
	}
	if !b.GreaterThan(a) {
		t.Error("GreaterThan mismatch")
	}
	if !a.Equals(PercentageFromDecimal(-0.0001)) {
		t.Error("Equals mismatch")
	}
}
