package touchstone

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"math/cmplx"
	"os"
	"path/filepath"
)

// Network is a frequency-domain multi-port characterization. It is immutable
// after creation; Subnetwork returns a new value rather than mutating.
type Network struct {
	NumPorts  int
	Reference float64

	FreqHz []float64
	// S[k][i][j] is the scattering parameter from port j into port i at
	// FreqHz[k], using zero-based port indices.
	S [][][]complex128
}

// Points returns the number of frequency points.
func (n *Network) Points() int { return len(n.FreqHz) }

// At returns S[i][j] at frequency point k.
func (n *Network) At(k, i, j int) complex128 { return n.S[k][i][j] }

// Subnetwork extracts the sub-matrix covering the given zero-based port
// indices, preserving their order.
func (n *Network) Subnetwork(ports []int) (*Network, error) {
	for _, p := range ports {
		if p < 0 || p >= n.NumPorts {
			return nil, fmt.Errorf("touchstone: port index %d out of range (have %d ports)", p, n.NumPorts)
		}
	}
	sub := &Network{
		NumPorts:  len(ports),
		Reference: n.Reference,
		FreqHz:    append([]float64(nil), n.FreqHz...),
		S:         make([][][]complex128, len(n.FreqHz)),
	}
	for k := range n.S {
		matrix := make([][]complex128, len(ports))
		for i, pi := range ports {
			matrix[i] = make([]complex128, len(ports))
			for j, pj := range ports {
				matrix[i][j] = n.S[k][pi][pj]
			}
		}
		sub.S[k] = matrix
	}
	return sub, nil
}

// MaxCouplingDB returns the peak |S[rx][tx]| across the frequency axis in
// dB, scanning every provided transmitter port. Returns -Inf when there is
// no coupling at all.
func (n *Network) MaxCouplingDB(rx int, txPorts ...int) float64 {
	peak := 0.0
	for k := range n.S {
		for _, tx := range txPorts {
			if mag := cmplx.Abs(n.S[k][rx][tx]); mag > peak {
				peak = mag
			}
		}
	}
	if peak <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(peak)
}

// WriteFile writes the network to path, which must carry the matching .sNp
// extension.
func (n *Network) WriteFile(path string) error {
	ports, err := PortsFromPath(path)
	if err != nil {
		return err
	}
	if ports != n.NumPorts {
		return fmt.Errorf("touchstone: %s: extension says %d ports, network has %d", filepath.Base(path), ports, n.NumPorts)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("touchstone: %w", err)
	}
	if err := n.Write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Write emits the network in real/imaginary format with a Hz frequency axis.
func (n *Network) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "! %d-port S-parameter data\n", n.NumPorts)
	fmt.Fprintf(bw, "# HZ S RI R %g\n", n.Reference)
	for k, freq := range n.FreqHz {
		if n.NumPorts == 2 {
			// Two-port files use S11 S21 S12 S22 ordering.
			fmt.Fprintf(bw, "%.9e", freq)
			for _, idx := range [][2]int{{0, 0}, {1, 0}, {0, 1}, {1, 1}} {
				s := n.S[k][idx[0]][idx[1]]
				fmt.Fprintf(bw, " %.9e %.9e", real(s), imag(s))
			}
			fmt.Fprintln(bw)
			continue
		}
		for i := 0; i < n.NumPorts; i++ {
			if i == 0 {
				fmt.Fprintf(bw, "%.9e", freq)
			}
			for j := 0; j < n.NumPorts; j++ {
				s := n.S[k][i][j]
				fmt.Fprintf(bw, " %.9e %.9e", real(s), imag(s))
			}
			fmt.Fprintln(bw)
		}
	}
	return bw.Flush()
}
