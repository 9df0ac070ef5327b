// Package touchstone reads and writes Touchstone v1 network model files
// (.sNp): a frequency axis plus a complex scattering matrix per frequency
// point, as produced by frequency-domain field solvers.
package touchstone

import (
	"fmt"
	"io"
	"math"
	"math/cmplx"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
)

type tsFile struct {
	Lines []*tsLine `parser:"@@*"`
}

type tsLine struct {
	Option *tsOption `parser:"  @@"`
	Values []float64 `parser:"| @Number+"`
	Blank  bool      `parser:"| @Newline"`
}

// tsOption is the '#' line: frequency unit, parameter type, data format and
// reference resistance. Fields are interpreted after parsing because the
// keywords are case-insensitive and partially optional.
type tsOption struct {
	Fields []string `parser:"Hash @( Ident | Number )*"`
}

// Parser parses Touchstone network model files.
type Parser struct {
	parser *participle.Parser[tsFile]
}

// NewParser creates a new Touchstone parser instance.
func NewParser() (*Parser, error) {
	parser, err := participle.Build[tsFile](
		participle.Lexer(TouchstoneLexer),
		participle.Elide("Comment", "Whitespace"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build parser: %w", err)
	}
	return &Parser{parser: parser}, nil
}

var portCountRe = regexp.MustCompile(`(?i)\.s(\d{1,3})p$`)

// PortsFromPath extracts the port count from an .sNp file extension.
func PortsFromPath(path string) (int, error) {
	m := portCountRe.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return 0, fmt.Errorf("touchstone: %s: not an .sNp file", path)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("touchstone: %s: invalid port count", path)
	}
	return n, nil
}

// Load reads a network model from disk, taking the port count from the file
// extension and cross-checking it against the data layout.
func Load(path string) (*Network, error) {
	ports, err := PortsFromPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("touchstone: %w", err)
	}
	defer f.Close()
	return Read(f, ports)
}

// Read parses a Touchstone document for a network with the given number of
// ports.
func Read(r io.Reader, ports int) (*Network, error) {
	parser, err := NewParser()
	if err != nil {
		return nil, err
	}
	doc, err := parser.parser.Parse("", r)
	if err != nil {
		return nil, fmt.Errorf("touchstone: parse error: %w", err)
	}
	return assemble(doc, ports)
}

type options struct {
	freqScale float64
	format    string // "RI", "MA", "DB"
	param     string
	reference float64
}

func defaultOptions() options {
	// Touchstone defaults: GHz, S-parameters, magnitude/angle, 50 ohm.
	return options{freqScale: 1e9, format: "MA", param: "S", reference: 50}
}

func parseOptions(fields []string) (options, error) {
	opt := defaultOptions()
	for i := 0; i < len(fields); i++ {
		switch f := strings.ToUpper(fields[i]); f {
		case "HZ":
			opt.freqScale = 1
		case "KHZ":
			opt.freqScale = 1e3
		case "MHZ":
			opt.freqScale = 1e6
		case "GHZ":
			opt.freqScale = 1e9
		case "S", "Y", "Z", "G", "H":
			opt.param = f
		case "RI", "MA", "DB":
			opt.format = f
		case "R":
			if i+1 >= len(fields) {
				return opt, fmt.Errorf("option line: R without resistance value")
			}
			i++
			ref, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				return opt, fmt.Errorf("option line: bad reference %q", fields[i])
			}
			opt.reference = ref
		default:
			return opt, fmt.Errorf("option line: unknown keyword %q", fields[i])
		}
	}
	if opt.param != "S" {
		return opt, fmt.Errorf("unsupported parameter type %s (only S-parameters)", opt.param)
	}
	return opt, nil
}

func assemble(doc *tsFile, ports int) (*Network, error) {
	opt := defaultOptions()
	sawOption := false
	var values []float64
	for _, line := range doc.Lines {
		switch {
		case line.Option != nil:
			if sawOption {
				// Touchstone v1 allows only one option line; later ones
				// are ignored by most readers, we reject them instead.
				return nil, fmt.Errorf("touchstone: multiple option lines")
			}
			parsed, err := parseOptions(line.Option.Fields)
			if err != nil {
				return nil, fmt.Errorf("touchstone: %w", err)
			}
			opt = parsed
			sawOption = true
		case len(line.Values) > 0:
			values = append(values, line.Values...)
		}
	}

	perPoint := 1 + 2*ports*ports
	if len(values) == 0 || len(values)%perPoint != 0 {
		return nil, fmt.Errorf("touchstone: data size %d does not match %d ports", len(values), ports)
	}

	points := len(values) / perPoint
	nw := &Network{
		NumPorts:  ports,
		Reference: opt.reference,
		FreqHz:    make([]float64, points),
		S:         make([][][]complex128, points),
	}
	for k := 0; k < points; k++ {
		chunk := values[k*perPoint : (k+1)*perPoint]
		nw.FreqHz[k] = chunk[0] * opt.freqScale
		if k > 0 && nw.FreqHz[k] <= nw.FreqHz[k-1] {
			return nil, fmt.Errorf("touchstone: frequency axis not increasing at point %d", k)
		}
		matrix := make([][]complex128, ports)
		for i := range matrix {
			matrix[i] = make([]complex128, ports)
		}
		pairs := chunk[1:]
		for p := 0; p < ports*ports; p++ {
			row, col := pairIndex(p, ports)
			matrix[row][col] = toComplex(pairs[2*p], pairs[2*p+1], opt.format)
		}
		nw.S[k] = matrix
	}
	return nw, nil
}

// pairIndex maps the p-th value pair to its matrix position. Two-port files
// store S11 S21 S12 S22 (column-major); larger networks are row-major.
func pairIndex(p, ports int) (row, col int) {
	if ports == 2 {
		return p % 2, p / 2
	}
	return p / ports, p % ports
}

func toComplex(a, b float64, format string) complex128 {
	switch format {
	case "RI":
		return complex(a, b)
	case "DB":
		mag := math.Pow(10, a/20)
		return cmplx.Rect(mag, b*math.Pi/180)
	default: // MA
		return cmplx.Rect(a, b*math.Pi/180)
	}
}
