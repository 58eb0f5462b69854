package solver

import (
	"fmt"
	"unicode/utf8"
)

// Printable is every printable ASCII character except whitespace, in code point order.
func Printable() []rune {
	var out []rune
	for r := rune(0x21); r <= 0x7e; r++ {
		out = append(out, r)
	}
	return out
}

// ParseAlphabet turns a string into an ordered alphabet, rejecting repeats.
// The named sets "printable", "digits", "lower", "upper", "hex" and "alnum" are expanded.
func ParseAlphabet(s string) ([]rune, error) {
	switch s {
	case "", "printable":
		return Printable(), nil
	case "digits":
		s = "0123456789"
	case "lower":
		s = "abcdefghijklmnopqrstuvwxyz"
	case "upper":
		s = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	case "hex":
		s = "0123456789abcdef"
	case "alnum":
		s = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	}
	if !utf8.ValidString(s) {
		return nil, fmt.Errorf("alphabet is not valid UTF-8")
	}
	seen := make(map[rune]bool)
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if seen[r] {
			return nil, fmt.Errorf("alphabet repeats %q", r)
		}
		seen[r] = true
		out = append(out, r)
	}
	return out, nil
}
