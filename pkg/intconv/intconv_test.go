package intconv

import (
	"errors"
	"testing"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		in   string
		want uint64
	}{
		{"0x1a", 26},
		{"0X1A", 26},
		{"26", 26},
		{"0", 0},
		{" 4096 ", 4096},
		{"0x10000", 0x10000},
	}
	for _, tt := range tests {
		got, err := ParseSize(tt.in)
		if err != nil {
			t.Fatalf("ParseSize(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseSize(%q) = %d; want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseSizeDecimalOnlyWithoutPrefix(t *testing.T) {
	// "1a" is not a decimal numeral and readelf never prints hex sizes
	// without a prefix.
	if _, err := ParseSize("1a"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestParseHex(t *testing.T) {
	tests := []struct {
		in   string
		want uint64
	}{
		{"ffffffc010080000", 0xffffffc010080000},
		{"0xffffffc010080000", 0xffffffc010080000},
		{"10", 0x10},
		{"0000000000000000", 0},
	}
	for _, tt := range tests {
		got, err := ParseHex(tt.in)
		if err != nil {
			t.Fatalf("ParseHex(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseHex(%q) = %#x; want %#x", tt.in, got, tt.want)
		}
	}
	for _, in := range []string{"", "0x", "xyz", "12g4", "-1"} {
		if _, err := ParseHex(in); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("ParseHex(%q): expected ErrInvalidInput, got %v", in, err)
		}
	}
}

func TestToUint64(t *testing.T) {
	tests := []struct {
		in   interface{}
		want uint64
	}{
		{uint64(0x1000), 0x1000},
		{int(42), 42},
		{uint32(7), 7},
		{int64(0x20), 0x20},
		{"0x20", 0x20},
		{"20", 0x20},
		{[]byte("ff"), 0xff},
	}
	for _, tt := range tests {
		got, err := ToUint64(tt.in)
		if err != nil {
			t.Fatalf("ToUint64(%#v): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ToUint64(%#v) = %#x; want %#x", tt.in, got, tt.want)
		}
	}

	for _, in := range []interface{}{-1, 1.5, nil, []int{1}, "nope"} {
		if _, err := ToUint64(in); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("ToUint64(%#v): expected ErrInvalidInput, got %v", in, err)
		}
	}
}
