package elfmeta

import (
	"github.com/pkg/errors"
)

// TableKind selects one of the tables dumped by the TableProvider.
type TableKind uint8

const (
	SectionTable TableKind = iota
	SymbolTable
	RelocationTable
	FileHeader
)

func (k TableKind) String() string {
	switch k {
	case SectionTable:
		return "sections"
	case SymbolTable:
		return "symbols"
	case RelocationTable:
		return "relocations"
	case FileHeader:
		return "header"
	}
	return "unknown"
}

// TableProvider returns the textual dump of one table of the image at
// path. Implementations block until the dump is complete.
type TableProvider interface {
	Table(kind TableKind, path string) (string, error)
}

// TableProviderFunc adapts a function to the TableProvider interface.
type TableProviderFunc func(kind TableKind, path string) (string, error)

// Table calls fn(kind, path).
func (fn TableProviderFunc) Table(kind TableKind, path string) (string, error) {
	return fn(kind, path)
}

var (
	// ErrInvalidArgument is returned when a query receives a value of the
	// wrong shape, for example a script passing a float as an address.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNoSection is returned when a virtual address is not covered by
	// any section and therefore has no file offset.
	ErrNoSection = errors.New("address not covered by any section")
)
