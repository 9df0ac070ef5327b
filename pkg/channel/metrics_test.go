package channel

import (
	"math"
	"testing"
)

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestIntegrateNonUniform(t *testing.T) {
	// Unit square pulse over [1, 3] with non-uniform sampling.
	x := []float64{0, 1, 1.5, 3, 4}
	y := []float64{0, 1, 1, 1, 0}
	got := IntegrateNonUniform(x, y)
	// Trapezoid picks up half the rise and fall segments.
	want := 0.5 + 0.5 + 1.5 + 0.5
	if !almostEqual(got, want, 1e-12) {
		t.Errorf("integral = %v, want %v", got, want)
	}
}

func TestSigISITrianglePulse(t *testing.T) {
	// Triangle peaking at t=3 over a 10-unit record, window length 2.
	ts := []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	v := []float64{0, 0, 0.5, 1, 0.5, 0, 0, 0, 0, 0, 0}
	sig, isi, err := SigISI(ts, v, 2)
	if err != nil {
		t.Fatalf("SigISI failed: %v", err)
	}
	// Best window [2,4] integrates 0.75+0.75; the tails outside it are ISI.
	if !almostEqual(sig, 1.5, 1e-9) {
		t.Errorf("sig = %v, want 1.5", sig)
	}
	if !almostEqual(isi, 0.5, 1e-9) {
		t.Errorf("isi = %v, want 0.5", isi)
	}
}

func TestSigISIUnsortedInput(t *testing.T) {
	ts := []float64{4, 0, 2, 3, 1, 5, 6, 7, 8, 9, 10}
	v := []float64{0.5, 0, 0.5, 1, 0, 0, 0, 0, 0, 0, 0}
	sig, isi, err := SigISI(ts, v, 2)
	if err != nil {
		t.Fatalf("SigISI failed: %v", err)
	}
	if !almostEqual(sig, 1.5, 1e-9) || !almostEqual(isi, 0.5, 1e-9) {
		t.Errorf("sig, isi = %v, %v after sorting, want 1.5, 0.5", sig, isi)
	}
}

func TestSigISINegativeLobes(t *testing.T) {
	// A negative undershoot reduces sig but adds to the absolute tail.
	ts := []float64{0, 1, 2, 3, 4, 5, 6}
	v := []float64{0, 1, 1, 0, -0.5, 0, 0}
	sig, isi, err := SigISI(ts, v, 2)
	if err != nil {
		t.Fatalf("SigISI failed: %v", err)
	}
	// Best signed window is [0.5 + 1, 1] over [0,2].
	if !almostEqual(sig, 1.5, 1e-9) {
		t.Errorf("sig = %v, want 1.5", sig)
	}
	// total |v| = 0.5 + 1 + 0.5 + 0.25 + 0.25 = 2.5; window abs = 1.5.
	if !almostEqual(isi, 1.0, 1e-9) {
		t.Errorf("isi = %v, want 1.0", isi)
	}
}

func TestSigISIErrors(t *testing.T) {
	if _, _, err := SigISI([]float64{0, 1}, []float64{0}, 1); err == nil {
		t.Error("accepted mismatched lengths")
	}
	if _, _, err := SigISI([]float64{0, 1}, []float64{0, 1}, 0); err == nil {
		t.Error("accepted non-positive unit interval")
	}
	if _, _, err := SigISI([]float64{0, 1}, []float64{0, 1}, 5); err == nil {
		t.Error("accepted waveform shorter than the unit interval")
	}
}
