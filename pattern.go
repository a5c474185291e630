package serdbg

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// PatternByte is one position of a receive pattern: either an exact byte
// value or a wildcard that accepts any byte.
type PatternByte struct {
	Value byte
	Any   bool
}

// Pattern is a fixed-length receive pattern.
type Pattern []PatternByte

// Hex returns the exact-byte pattern for a hex string such as "ABCD01".
// It panics on malformed input and is meant for literal tables; use
// ParsePattern for user supplied text.
func Hex(s string) Pattern {
	p, err := ParsePattern(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Any returns a pattern of n wildcard bytes.
func Any(n int) Pattern {
	p := make(Pattern, n)
	for i := range p {
		p[i].Any = true
	}
	return p
}

// Concat joins pattern pieces in order.
func Concat(parts ...Pattern) Pattern {
	var p Pattern
	for _, part := range parts {
		p = append(p, part...)
	}
	return p
}

// ParsePattern parses the text form of a pattern. Bytes are written as hex
// pairs and wildcards as "**"; whitespace between tokens is ignored, so
// "AB CD ** 02" and "ABCD**02" are equivalent.
func ParsePattern(s string) (Pattern, error) {
	compact := strings.Join(strings.Fields(s), "")
	if compact == "" {
		return nil, fmt.Errorf("%w: empty pattern", ErrInvalidPattern)
	}
	if len(compact)%2 != 0 {
		return nil, fmt.Errorf("%w: odd number of digits in %q", ErrInvalidPattern, s)
	}
	p := make(Pattern, 0, len(compact)/2)
	for i := 0; i < len(compact); i += 2 {
		tok := compact[i : i+2]
		if tok == "**" {
			p = append(p, PatternByte{Any: true})
			continue
		}
		b, err := hex.DecodeString(tok)
		if err != nil {
			return nil, fmt.Errorf("%w: bad token %q in %q", ErrInvalidPattern, tok, s)
		}
		p = append(p, PatternByte{Value: b[0]})
	}
	return p, nil
}

// String renders the pattern in its canonical text form.
func (p Pattern) String() string {
	parts := make([]string, len(p))
	for i, pb := range p {
		if pb.Any {
			parts[i] = "**"
		} else {
			parts[i] = fmt.Sprintf("%02X", pb.Value)
		}
	}
	return strings.Join(parts, " ")
}

// ParseHex decodes a hex string, ignoring whitespace.
func ParseHex(s string) ([]byte, error) {
	b, err := hex.DecodeString(strings.Join(strings.Fields(s), ""))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidHex, s)
	}
	return b, nil
}
