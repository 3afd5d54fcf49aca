package money

import "testing"

func TestFromFloatExact(t *testing.T) {
	c, corrected := FromFloat(10.00)
	if c != 1000 {
		t.Errorf("got %d cents, want 1000", c)
	}
	if corrected {
		t.Errorf("expected no correction for an exact value")
	}
}

func TestFromFloatSnapsDrift(t *testing.T) {
	// 9.999999 should snap to 1000 cents ($10.00) and report a correction.
	c, corrected := FromFloat(9.999999)
	if c != 1000 {
		t.Errorf("got %d cents, want 1000", c)
	}
	if !corrected {
		t.Errorf("expected a correction to be reported")
	}
}

func TestToFloatRoundTrip(t *testing.T) {
	c := Cents(1050)
	if got := c.ToFloat(); got != 10.50 {
		t.Errorf("got %v, want 10.50", got)
	}
}

func TestAbsNeg(t *testing.T) {
	c := Cents(-150)
	if c.Abs() != 150 {
		t.Errorf("Abs() = %d, want 150", c.Abs())
	}
	if c.Neg() != 150 {
		t.Errorf("Neg() = %d, want 150", c.Neg())
	}
}
