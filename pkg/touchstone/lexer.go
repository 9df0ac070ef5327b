package touchstone

import (
	"github.com/alecthomas/participle/v2/lexer"
)

// TouchstoneLexer defines the lexical structure of a Touchstone v1 file.
// Newlines are significant: the option line and each data row end at the
// line break, while '!' comments and horizontal whitespace are elided.
var TouchstoneLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `![^\n]*`},
	{Name: "Newline", Pattern: `\r?\n`},
	{Name: "Whitespace", Pattern: `[ \t]+`},
	{Name: "Hash", Pattern: `#`},

	// Numbers, including exponent notation as emitted by solvers.
	{Name: "Number", Pattern: `[-+]?[0-9]*\.?[0-9]+([eE][-+]?[0-9]+)?`},

	// Option-line keywords (HZ, GHZ, S, MA, RI, DB, R, ...).
	{Name: "Ident", Pattern: `[A-Za-z][A-Za-z0-9_]*`},
})
