package dat

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind classifies how a field's bytes are decoded.
type Kind int

const (
	KindInt Kind = iota
	KindFloat
	KindEnum
	KindString
	KindDate
	KindRaw
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindEnum:
		return "enum"
	case KindString:
		return "fixed_string"
	case KindDate:
		return "date"
	case KindRaw:
		return "raw"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// DType is a spec-table element type token: u1..u8, i1..i8, f4, f8 for
// fixed-width numbers, S<n> for fixed-width strings, B<n> for opaque bytes.
// Multi-byte numbers use the format's global byte order (big-endian).
type DType struct {
	Code   string
	Size   int // bytes per element
	Signed bool
	Float  bool
	Str    bool
	Raw    bool
}

func parseDType(tok string) (DType, error) {
	if tok == "" {
		return DType{}, fmt.Errorf("empty dtype")
	}
	switch tok[0] {
	case 'u', 'i':
		n, err := strconv.Atoi(tok[1:])
		if err != nil || (n != 1 && n != 2 && n != 4 && n != 8) {
			return DType{}, fmt.Errorf("bad integer dtype %q", tok)
		}
		return DType{Code: tok, Size: n, Signed: tok[0] == 'i'}, nil
	case 'f':
		n, err := strconv.Atoi(tok[1:])
		if err != nil || (n != 4 && n != 8) {
			return DType{}, fmt.Errorf("bad float dtype %q", tok)
		}
		return DType{Code: tok, Size: n, Signed: true, Float: true}, nil
	case 'S':
		n, err := strconv.Atoi(tok[1:])
		if err != nil || n <= 0 {
			return DType{}, fmt.Errorf("bad string dtype %q", tok)
		}
		return DType{Code: tok, Size: n, Str: true}, nil
	case 'B':
		n, err := strconv.Atoi(tok[1:])
		if err != nil || n <= 0 {
			return DType{}, fmt.Errorf("bad raw dtype %q", tok)
		}
		return DType{Code: tok, Size: n, Raw: true}, nil
	default:
		return DType{}, fmt.Errorf("unknown dtype %q", tok)
	}
}

func parseShape(tok string) ([]int, error) {
	tok = strings.TrimSpace(tok)
	if tok == "" || tok == "0" {
		return nil, nil
	}
	parts := strings.Split(tok, ",")
	shape := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("bad shape %q", tok)
		}
		shape = append(shape, n)
	}
	return shape, nil
}
