package elfmeta

import (
	"fmt"
	"strings"
)

// Bound selects whether the end address of a symbol or section (Addr+Size)
// still belongs to it.
type Bound uint8

const (
	// InclusiveEnd treats Addr+Size as part of the record. This is how
	// addresses have always been resolved, it means that for contiguous
	// records the first byte of a record also resolves to its predecessor
	// when the predecessor is found first.
	InclusiveEnd Bound = iota
	// ExclusiveEnd treats records as the half open interval [Addr, Addr+Size).
	ExclusiveEnd
)

func (b Bound) String() string {
	switch b {
	case InclusiveEnd:
		return "inclusive"
	case ExclusiveEnd:
		return "exclusive"
	}
	return fmt.Sprintf("Bound(%d)", uint8(b))
}

// ParseBound parses the textual form of a Bound, as used in the
// configuration file and on the command line.
func ParseBound(s string) (Bound, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "inclusive":
		return InclusiveEnd, nil
	case "exclusive":
		return ExclusiveEnd, nil
	}
	return InclusiveEnd, fmt.Errorf("%w: unknown containment bound %q (must be inclusive or exclusive)", ErrInvalidArgument, s)
}

func spanContains(start, size, addr uint64, b Bound) bool {
	if addr < start {
		return false
	}
	if b == ExclusiveEnd {
		return addr-start < size
	}
	return addr-start <= size
}

// Symbol is an entry of the symbol table of the image.
type Symbol struct {
	Name       string
	Type       string
	Bind       string
	Visibility string
	// Ndx is the section index column as printed by readelf, it can be a
	// number or one of UND, ABS, COM.
	Ndx  string
	Addr uint64
	Size uint64
}

// Contains returns true if addr falls inside the symbol.
func (s Symbol) Contains(addr uint64, b Bound) bool {
	return spanContains(s.Addr, s.Size, addr, b)
}

func (s Symbol) String() string {
	return fmt.Sprintf("name: '%s', type: '%s', bind: '%s', ndx: '%s', visibility: '%s', address: '%#x', size: '%#x'",
		s.Name, s.Type, s.Bind, s.Ndx, s.Visibility, s.Addr, s.Size)
}

// Section is an entry of the section header table of the image.
type Section struct {
	Name   string
	Type   string
	Addr   uint64
	Offset uint64
	Size   uint64
}

// Contains returns true if addr falls inside the section.
func (s Section) Contains(addr uint64, b Bound) bool {
	return spanContains(s.Addr, s.Size, addr, b)
}

func (s Section) String() string {
	return fmt.Sprintf("name: '%s', type: '%s', address: '%#x', offset: '%#x', size: '%#x'",
		s.Name, s.Type, s.Addr, s.Offset, s.Size)
}

// Header holds the fields of the ELF file header that kmeta uses.
type Header struct {
	Class   string
	Data    string
	Type    string
	Machine string
	Entry   uint64
}

func (h Header) empty() bool {
	return h == Header{}
}

// Arch returns the GOARCH style name of the machine the image was built
// for, or the empty string if it is not one kmeta can disassemble.
func (h Header) Arch() string {
	switch h.Machine {
	case "AArch64":
		return "arm64"
	case "Advanced Micro Devices X86-64":
		return "amd64"
	case "Intel 80386":
		return "386"
	}
	return ""
}
