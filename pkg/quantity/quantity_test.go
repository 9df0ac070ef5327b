package quantity

import (
	"math"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in    string
		value float64
		unit  string
	}{
		{"0.8V", 0.8, "V"},
		{"30ps", 30e-12, "s"},
		{"133ps", 133e-12, "s"},
		{"40ohm", 40, "ohm"},
		{"1pF", 1e-12, "F"},
		{"1.8pF", 1.8e-12, "F"},
		{"0.1GHz", 0.1e9, "Hz"},
		{"1kHz", 1e3, "Hz"},
		{"10GHz", 10e9, "Hz"},
		{"-40.0dB", -40, "dB"},
		{"3ns", 3e-9, "s"},
		{"0.005000", 0.005, ""},
		{"1e-10", 1e-10, ""},
		{"3", 3, ""},
		{"50 ohm", 50, "ohm"},
	}
	for _, tt := range tests {
		q, err := Parse(tt.in)
		if err != nil {
			t.Fatalf("Parse(%q) failed: %v", tt.in, err)
		}
		if q.Unit != tt.unit {
			t.Errorf("Parse(%q) unit = %q, want %q", tt.in, q.Unit, tt.unit)
		}
		if !closeTo(q.Value, tt.value) {
			t.Errorf("Parse(%q) value = %g, want %g", tt.in, q.Value, tt.value)
		}
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "fast", "12parsecs", "1..2GHz"} {
		if _, err := Parse(in); err == nil {
			t.Errorf("Parse(%q) succeeded, want error", in)
		}
	}
}

func TestConvert(t *testing.T) {
	q := MustParse("133ps")
	ps, err := q.Convert("ps")
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if !closeTo(ps, 133) {
		t.Errorf("Convert(ps) = %g, want 133", ps)
	}
	if _, err := q.Convert("GHz"); err == nil {
		t.Errorf("expected unit mismatch converting seconds to GHz")
	}

	f := MustParse("0.1GHz")
	hz, err := f.Convert("Hz")
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if !closeTo(hz, 1e8) {
		t.Errorf("Convert(Hz) = %g, want 1e8", hz)
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		value float64
		unit  string
		want  string
	}{
		{1.33e-10, "s", "133ps"},
		{1e8, "Hz", "100MHz"},
		{40, "ohm", "40ohm"},
		{1.8e-12, "F", "1.8pF"},
		{-40, "dB", "-40dB"},
	}
	for _, tt := range tests {
		if got := Format(tt.value, tt.unit); got != tt.want {
			t.Errorf("Format(%g, %q) = %q, want %q", tt.value, tt.unit, got, tt.want)
		}
	}
}

func closeTo(a, b float64) bool {
	if a == b {
		return true
	}
	return math.Abs(a-b) <= 1e-9*math.Max(math.Abs(a), math.Abs(b))
}
