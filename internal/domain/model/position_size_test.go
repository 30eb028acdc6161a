package model

import "testing"

func TestPositionSizeMustBePositive(t *testing.T) {
	if _, err := NewPositionSize(0); err == nil {
		t.Error("zero size should fail")
	}
	if _, err := NewPositionSize(-1.5); err == nil {
		t.Error("negative size should fail")
	}
}

func TestPositionSizeFromUSD(t *testing.T) {
	ps, err := PositionSizeFromUSD(3000, 1500, 2)
	if err != nil {
		t.Fatalf("from usd failed: %v", err)
	}
	if !almostEqual(ps.Base(), 2) {
		t.Errorf("base = %v, want 2", ps.Base())
	}
	// 杠杆不影响名义价值换算
	if !almostEqual(ps.USD(1500), 3000) {
		t.Errorf("usd = %v, want 3000", ps.USD(1500))
	}
	if !almostEqual(ps.MarginUSD(1500), 1500) {
		t.Errorf("margin = %v, want 1500", ps.MarginUSD(1500))
	}

	if _, err := PositionSizeFromUSD(1000, 0, 1); err == nil {
		t.Error("zero price should fail")
	}
}

func TestPositionSizeLeverageBound(t *testing.T) {
	ps, _ := NewPositionSize(1)
	if _, err := ps.WithLeverage(0.5); err == nil {
		t.Error("leverage < 1 should fail")
	}
	lev, err := ps.WithLeverage(3)
	if err != nil {
		t.Fatalf("leverage 3 failed: %v", err)
	}
	if lev.Leverage() != 3 {
		t.Errorf("leverage = %v, want 3", lev.Leverage())
	}
}

func TestPositionSizeSubtraction(t *testing.T) {
	a, _ := NewPositionSize(2)
	b, _ := NewPositionSize(2)
	if _, err := a.Sub(b); err == nil {
		t.Error("subtracting equal size should fail")
	}

	c, _ := NewPositionSize(3)
	got, err := c.Sub(a)
	if err != nil {
		t.Fatalf("sub failed: %v", err)
	}
	if !almostEqual(got.Base(), 1) {
		t.Errorf("base = %v, want 1", got.Base())
	}
}
