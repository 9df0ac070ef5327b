package channel

import (
	"fmt"
	"math"
	"sort"
)

// IntegrateNonUniform computes the trapezoid integral of y over the
// possibly non-uniform axis x.
func IntegrateNonUniform(x, y []float64) float64 {
	integral := 0.0
	for i := 0; i+1 < len(x); i++ {
		dx := x[i+1] - x[i]
		integral += 0.5 * (y[i] + y[i+1]) * dx
	}
	return integral
}

// SigISI computes the signal and inter-symbol interference metrics of a
// pulse response. sig is the maximum of the signed integral over every
// window of length unitInterval; isi is the waveform's total absolute
// integral minus the absolute integral over the winning window. Units
// follow the inputs (V*ps for a ps time axis).
func SigISI(t, v []float64, unitInterval float64) (sig, isi float64, err error) {
	if len(t) != len(v) {
		return 0, 0, fmt.Errorf("channel: time and voltage lengths differ (%d vs %d)", len(t), len(v))
	}
	if len(t) < 2 {
		return 0, 0, fmt.Errorf("channel: waveform needs at least two samples")
	}
	if unitInterval <= 0 {
		return 0, 0, fmt.Errorf("channel: unit interval must be positive")
	}

	n := len(t)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return t[idx[a]] < t[idx[b]] })
	ts := make([]float64, n)
	vs := make([]float64, n)
	for i, k := range idx {
		ts[i] = t[k]
		vs[i] = v[k]
	}

	if ts[n-1]-ts[0] < unitInterval {
		return 0, 0, fmt.Errorf("channel: waveform spans %g, shorter than unit interval %g", ts[n-1]-ts[0], unitInterval)
	}

	// Cumulative trapezoid integrals of v and |v|.
	trap := make([]float64, n)
	trapAbs := make([]float64, n)
	for i := 1; i < n; i++ {
		dt := ts[i] - ts[i-1]
		trap[i] = trap[i-1] + 0.5*(vs[i-1]+vs[i])*dt
		trapAbs[i] = trapAbs[i-1] + 0.5*(math.Abs(vs[i-1])+math.Abs(vs[i]))*dt
	}
	totalAbs := trapAbs[n-1]

	// Last index whose window of length unitInterval still fits.
	cutoff := ts[n-1] - unitInterval
	lastStart := sort.Search(n, func(i int) bool { return ts[i] > cutoff }) - 1
	if lastStart < 0 {
		return 0, 0, fmt.Errorf("channel: no integration window of length %g", unitInterval)
	}

	sigMax := math.Inf(-1)
	bestI, bestJ := 0, 0
	bestEnd := 0.0
	j := 0
	for i := 0; i <= lastStart; i++ {
		tEnd := ts[i] + unitInterval
		for j+1 < n && ts[j+1] <= tEnd {
			j++
		}
		integ := trap[j] - trap[i]
		if j+1 < n && ts[j] < tEnd && tEnd < ts[j+1] {
			vEnd := vs[j] + (vs[j+1]-vs[j])*(tEnd-ts[j])/(ts[j+1]-ts[j])
			integ += 0.5 * (vs[j] + vEnd) * (tEnd - ts[j])
		}
		if integ > sigMax {
			sigMax = integ
			bestI, bestJ, bestEnd = i, j, tEnd
		}
	}

	integAbs := trapAbs[bestJ] - trapAbs[bestI]
	if bestJ+1 < n && ts[bestJ] < bestEnd && bestEnd < ts[bestJ+1] {
		vEnd := vs[bestJ] + (vs[bestJ+1]-vs[bestJ])*(bestEnd-ts[bestJ])/(ts[bestJ+1]-ts[bestJ])
		integAbs += 0.5 * (math.Abs(vs[bestJ]) + math.Abs(vEnd)) * (bestEnd - ts[bestJ])
	}

	return sigMax, totalAbs - integAbs, nil
}

func absSlice(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = math.Abs(x)
	}
	return out
}
