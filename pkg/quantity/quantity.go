// Package quantity parses engineering quantities such as "0.1GHz", "30ps",
// "40ohm" or "1.8pF" as they appear in sweep tables, transmitter/receiver
// settings and vendor netlists.
package quantity

import (
	"fmt"
	"math"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// QuantityLexer tokenizes a quantity expression: a number optionally followed
// by a prefixed unit, with no whitespace required between the two.
var QuantityLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `[ \t]+`},
	{Name: "Number", Pattern: `[-+]?[0-9]*\.?[0-9]+([eE][-+]?[0-9]+)?`},
	{Name: "Ident", Pattern: `[A-Za-z][A-Za-z0-9]*`},
})

type quantityExpr struct {
	Value float64 `parser:"@Number"`
	Unit  string  `parser:"@Ident?"`
}

var quantityParser = participle.MustBuild[quantityExpr](
	participle.Lexer(QuantityLexer),
	participle.Elide("Whitespace"),
)

// Quantity is a parsed value normalized to the base unit (Hz, s, V, ohm, F,
// m). Raw preserves the original spelling for verbatim re-emission into
// vendor configuration.
type Quantity struct {
	Raw   string
	Value float64
	Unit  string
}

// Base units recognized after an optional SI prefix. Order matters: longer
// suffixes are matched first so "ohm" never loses its "m" to a prefix.
var baseUnits = []string{"ohm", "Ohm", "OHM", "Hz", "hz", "dB", "db", "V", "v", "F", "s", "m"}

var canonicalUnit = map[string]string{
	"ohm": "ohm", "Ohm": "ohm", "OHM": "ohm",
	"Hz": "Hz", "hz": "Hz",
	"dB": "dB", "db": "dB",
	"V": "V", "v": "V",
	"F": "F",
	"s": "s",
	"m": "m",
}

var prefixScale = map[string]float64{
	"f": 1e-15,
	"p": 1e-12,
	"n": 1e-9,
	"u": 1e-6,
	"m": 1e-3,
	"k": 1e3,
	"K": 1e3,
	"M": 1e6,
	"G": 1e9,
	"T": 1e12,
}

// Parse interprets s as a quantity. A bare number parses as a dimensionless
// quantity with an empty unit.
func Parse(s string) (Quantity, error) {
	expr, err := quantityParser.ParseString("", s)
	if err != nil {
		return Quantity{}, fmt.Errorf("quantity %q: %w", s, err)
	}
	q := Quantity{Raw: strings.TrimSpace(s), Value: expr.Value}
	if expr.Unit == "" {
		return q, nil
	}
	unit, scale, err := splitUnit(expr.Unit)
	if err != nil {
		return Quantity{}, fmt.Errorf("quantity %q: %w", s, err)
	}
	q.Unit = unit
	q.Value *= scale
	return q, nil
}

// MustParse is Parse for compile-time constants; it panics on error.
func MustParse(s string) Quantity {
	q, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return q
}

func splitUnit(token string) (unit string, scale float64, err error) {
	for _, base := range baseUnits {
		if !strings.HasSuffix(token, base) {
			continue
		}
		head := strings.TrimSuffix(token, base)
		if head == "" {
			return canonicalUnit[base], 1, nil
		}
		if s, ok := prefixScale[head]; ok {
			// dB carries no SI prefixes in any of the formats we read.
			if canonicalUnit[base] == "dB" {
				break
			}
			return canonicalUnit[base], s, nil
		}
	}
	return "", 0, fmt.Errorf("unknown unit %q", token)
}

// Convert returns the value expressed in target, which may carry an SI
// prefix ("ps", "GHz"). Converting a dimensionless quantity applies only the
// prefix scale.
func (q Quantity) Convert(target string) (float64, error) {
	unit, scale, err := splitUnit(target)
	if err != nil {
		return 0, err
	}
	if q.Unit != "" && q.Unit != unit {
		return 0, fmt.Errorf("cannot convert %s to %s", q.Unit, target)
	}
	return q.Value / scale, nil
}

// Format renders value (given in the base unit) with an engineering prefix,
// e.g. Format(1.33e-10, "s") == "133ps".
func Format(value float64, unit string) string {
	if value == 0 || unit == "dB" || unit == "" {
		return trimFloat(value) + unit
	}
	type step struct {
		prefix string
		scale  float64
	}
	steps := []step{
		{"T", 1e12}, {"G", 1e9}, {"M", 1e6}, {"k", 1e3}, {"", 1},
		{"m", 1e-3}, {"u", 1e-6}, {"n", 1e-9}, {"p", 1e-12}, {"f", 1e-15},
	}
	abs := math.Abs(value)
	for _, s := range steps {
		if abs >= s.scale {
			return trimFloat(value/s.scale) + s.prefix + unit
		}
	}
	return trimFloat(value) + unit
}

func trimFloat(v float64) string {
	s := fmt.Sprintf("%g", v)
	return s
}
