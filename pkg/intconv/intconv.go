// Package intconv normalizes the address and size representations found in
// readelf output and user input into uint64 values.
package intconv

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidInput is returned when a value can not be coerced to an
// unsigned integer.
var ErrInvalidInput = errors.New("invalid input")

func hasHexPrefix(s string) bool {
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}

func invalid(v interface{}) error {
	return fmt.Errorf("%w: can not convert %#v to an unsigned integer", ErrInvalidInput, v)
}

// ParseHex parses s as a base 16 numeral, with or without a 0x prefix.
func ParseHex(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if hasHexPrefix(s) {
		s = s[2:]
	}
	n, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, invalid(s)
	}
	return n, nil
}

// ParseSize parses a symbol or section size the way readelf prints it:
// values carrying a 0x prefix are hexadecimal, everything else is decimal.
// readelf only switches to hexadecimal for large sizes, so "26" and "0x1a"
// are both 26.
func ParseSize(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if hasHexPrefix(s) {
		return ParseHex(s)
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, invalid(s)
	}
	return n, nil
}

// ParseAddress parses an address typed by a user. Addresses are always
// hexadecimal, the 0x prefix is optional.
func ParseAddress(s string) (uint64, error) {
	return ParseHex(s)
}

// ToUint64 returns v as an uint64. Integers are returned unchanged, strings
// are parsed with ParseHex.
func ToUint64(v interface{}) (uint64, error) {
	switch x := v.(type) {
	case uint64:
		return x, nil
	case uint:
		return uint64(x), nil
	case uint32:
		return uint64(x), nil
	case uint16:
		return uint64(x), nil
	case uint8:
		return uint64(x), nil
	case uintptr:
		return uint64(x), nil
	case int:
		return fromSigned(int64(x))
	case int64:
		return fromSigned(x)
	case int32:
		return fromSigned(int64(x))
	case int16:
		return fromSigned(int64(x))
	case int8:
		return fromSigned(int64(x))
	case string:
		return ParseHex(x)
	case []byte:
		return ParseHex(string(x))
	}
	return 0, invalid(v)
}

func fromSigned(n int64) (uint64, error) {
	if n < 0 {
		return 0, invalid(n)
	}
	return uint64(n), nil
}
