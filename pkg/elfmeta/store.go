// Package elfmeta caches the section, symbol and relocation tables of an
// ELF image and resolves addresses against them.
//
// Tables are not decoded from the image directly, they are obtained as text
// from a TableProvider (normally readelf, see package readelf) the first time
// they are needed and kept until the File is bound to a different image.
package elfmeta

import (
	"path/filepath"
	"sort"
	"sync"

	"github.com/derekparker/trie"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"github.com/go-delve/kmeta/pkg/logflags"
)

const defaultCacheSize = 4096

// addrTable is a list of records sorted by address with an index from
// address to position. Addresses are unique.
type addrTable[T any] struct {
	entries []T
	index   map[uint64]int
}

// newAddrTable builds an addrTable out of records in the order they were
// parsed. When two records share an address the later one replaces the
// earlier one but keeps its position, ties can not survive into the sorted
// table.
func newAddrTable[T any](recs []T, addrOf func(*T) uint64) (addrTable[T], int) {
	t := addrTable[T]{index: make(map[uint64]int, len(recs))}
	dropped := 0
	for i := range recs {
		addr := addrOf(&recs[i])
		if j, ok := t.index[addr]; ok {
			t.entries[j] = recs[i]
			dropped++
			continue
		}
		t.index[addr] = len(t.entries)
		t.entries = append(t.entries, recs[i])
	}
	sort.SliceStable(t.entries, func(i, j int) bool {
		return addrOf(&t.entries[i]) < addrOf(&t.entries[j])
	})
	for i := range t.entries {
		t.index[addrOf(&t.entries[i])] = i
	}
	return t, dropped
}

func (t *addrTable[T]) empty() bool {
	return len(t.entries) == 0
}

// find returns the position of the record at addr or, failing that, of
// the lowest addressed record containing addr. Returns -1 if no record
// contains addr.
func (t *addrTable[T]) find(addr uint64, contains func(*T, uint64) bool) int {
	if i, ok := t.index[addr]; ok {
		return i
	}
	for i := range t.entries {
		if contains(&t.entries[i], addr) {
			return i
		}
	}
	return -1
}

type cacheKey struct {
	kind TableKind
	addr uint64
}

// File is the metadata of one ELF image.
//
// All methods are safe for concurrent use, populating a table and
// rebinding the image are serialized.
type File struct {
	mu sync.Mutex

	path     string
	provider TableProvider
	bound    Bound
	log      logflags.Logger

	sections addrTable[Section]
	symbols  addrTable[Symbol]
	relocs   []uint64
	header   Header

	names     *trie.Trie
	cache     *lru.Cache
	cacheSize int
}

// Option configures a File.
type Option func(*File)

// WithBound sets the containment policy used by address lookups.
func WithBound(b Bound) Option {
	return func(f *File) {
		f.bound = b
	}
}

// WithLogger replaces the default store logger.
func WithLogger(l logflags.Logger) Option {
	return func(f *File) {
		f.log = l
	}
}

// WithCacheSize sets the number of address lookups remembered per
// generation. A size of zero disables the cache.
func WithCacheSize(n int) Option {
	return func(f *File) {
		f.cacheSize = n
	}
}

// New returns a File bound to the image at path whose tables are obtained
// from provider.
func New(path string, provider TableProvider, opts ...Option) (*File, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not resolve %s", path)
	}
	f := &File{
		path:      abs,
		provider:  provider,
		bound:     InclusiveEnd,
		cacheSize: defaultCacheSize,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.log == nil {
		f.log = logflags.StoreLogger()
	}
	if f.cacheSize > 0 {
		f.cache, err = lru.New(f.cacheSize)
		if err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Path returns the absolute path of the bound image.
func (f *File) Path() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.path
}

// Bound returns the containment policy used by address lookups.
func (f *File) Bound() Bound {
	return f.bound
}

// SetPath binds f to the image at path. Binding to the image already bound
// (after both paths are made absolute) does nothing, binding to any other
// image discards every cached table.
func (f *File) SetPath(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrapf(err, "could not resolve %s", path)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if abs == f.path {
		return nil
	}
	f.log.Debugf("rebinding %s -> %s, dropping cached tables", f.path, abs)
	f.path = abs
	f.reset()
	return nil
}

func (f *File) reset() {
	f.sections = addrTable[Section]{}
	f.symbols = addrTable[Symbol]{}
	f.relocs = nil
	f.header = Header{}
	f.names = nil
	f.purgeCache()
}

func (f *File) purgeCache() {
	if f.cache != nil {
		f.cache.Purge()
	}
}

func (f *File) fetch(kind TableKind) (string, error) {
	f.log.Debugf("fetching %s table of %s", kind, f.path)
	text, err := f.provider.Table(kind, f.path)
	if err != nil {
		return "", errors.Wrapf(err, "could not read %s of %s", kind, f.path)
	}
	return text, nil
}

func (f *File) loadSections() error {
	if !f.sections.empty() {
		return nil
	}
	text, err := f.fetch(SectionTable)
	if err != nil {
		return err
	}
	var dropped int
	f.sections, dropped = newAddrTable(parseSections(text), func(s *Section) uint64 { return s.Addr })
	f.purgeCache()
	f.log.Debugf("loaded %d sections (%d replaced by a later section at the same address)", len(f.sections.entries), dropped)
	return nil
}

func (f *File) loadSymbols() error {
	if !f.symbols.empty() {
		return nil
	}
	text, err := f.fetch(SymbolTable)
	if err != nil {
		return err
	}
	var dropped int
	f.symbols, dropped = newAddrTable(parseSymbols(text), func(s *Symbol) uint64 { return s.Addr })
	f.names = nil
	f.purgeCache()
	f.log.Debugf("loaded %d symbols (%d replaced by a later symbol at the same address)", len(f.symbols.entries), dropped)
	return nil
}

func (f *File) loadRelocations() error {
	if len(f.relocs) != 0 {
		return nil
	}
	text, err := f.fetch(RelocationTable)
	if err != nil {
		return err
	}
	f.relocs = parseRelocations(text)
	f.log.Debugf("loaded %d relocations", len(f.relocs))
	return nil
}

// Sections returns the section table sorted by address.
func (f *File) Sections() ([]Section, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.loadSections(); err != nil {
		return nil, err
	}
	return append([]Section(nil), f.sections.entries...), nil
}

// Symbols returns the symbol table sorted by address.
func (f *File) Symbols() ([]Symbol, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.loadSymbols(); err != nil {
		return nil, err
	}
	return append([]Symbol(nil), f.symbols.entries...), nil
}

// Relocations returns the address of every relocation entry in the order
// readelf printed them.
func (f *File) Relocations() ([]uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.loadRelocations(); err != nil {
		return nil, err
	}
	return append([]uint64(nil), f.relocs...), nil
}

// RelocationsInRange returns the relocation addresses a with
// start <= a <= end, in the order readelf printed them.
func (f *File) RelocationsInRange(start, end uint64) ([]uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.loadRelocations(); err != nil {
		return nil, err
	}
	var r []uint64
	for _, a := range f.relocs {
		if start <= a && a <= end {
			r = append(r, a)
		}
	}
	return r, nil
}

// Header returns the ELF file header of the image.
func (f *File) Header() (Header, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.header.empty() {
		return f.header, nil
	}
	text, err := f.fetch(FileHeader)
	if err != nil {
		return Header{}, err
	}
	f.header = parseHeader(text)
	return f.header, nil
}

// SymbolByName returns the lowest addressed symbol called name, or nil if
// there is none.
func (f *File) SymbolByName(name string) (*Symbol, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.loadSymbols(); err != nil {
		return nil, err
	}
	return f.symbolByName(name), nil
}

func (f *File) symbolByName(name string) *Symbol {
	for i := range f.symbols.entries {
		if f.symbols.entries[i].Name == name {
			sym := f.symbols.entries[i]
			return &sym
		}
	}
	return nil
}

// SymbolsByName looks up every name in names. The result has the same
// length as names, with nil for names that were not found.
func (f *File) SymbolsByName(names []string) ([]*Symbol, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.loadSymbols(); err != nil {
		return nil, err
	}
	r := make([]*Symbol, len(names))
	for i, name := range names {
		r[i] = f.symbolByName(name)
	}
	return r, nil
}

// SectionByName returns the lowest addressed section called name, or nil
// if there is none.
func (f *File) SectionByName(name string) (*Section, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.loadSections(); err != nil {
		return nil, err
	}
	return f.sectionByName(name), nil
}

func (f *File) sectionByName(name string) *Section {
	for i := range f.sections.entries {
		if f.sections.entries[i].Name == name {
			sec := f.sections.entries[i]
			return &sec
		}
	}
	return nil
}

// SectionsByName looks up every name in names. The result has the same
// length as names, with nil for names that were not found.
func (f *File) SectionsByName(names []string) ([]*Section, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.loadSections(); err != nil {
		return nil, err
	}
	r := make([]*Section, len(names))
	for i, name := range names {
		r[i] = f.sectionByName(name)
	}
	return r, nil
}

// cachedFind memoizes addrTable.find for the current generation.
func (f *File) cachedFind(kind TableKind, addr uint64, find func() int) int {
	if f.cache == nil {
		return find()
	}
	key := cacheKey{kind, addr}
	if v, ok := f.cache.Get(key); ok {
		return v.(int)
	}
	i := find()
	f.cache.Add(key, i)
	return i
}

// SymbolByAddr returns the symbol at addr or, if there is none, the lowest
// addressed symbol containing addr. Returns nil if addr is not inside any
// symbol.
func (f *File) SymbolByAddr(addr uint64) (*Symbol, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.loadSymbols(); err != nil {
		return nil, err
	}
	return f.symbolByAddr(addr), nil
}

func (f *File) symbolByAddr(addr uint64) *Symbol {
	i := f.cachedFind(SymbolTable, addr, func() int {
		return f.symbols.find(addr, func(s *Symbol, addr uint64) bool { return s.Contains(addr, f.bound) })
	})
	if i < 0 {
		return nil
	}
	sym := f.symbols.entries[i]
	return &sym
}

// SymbolsByAddr looks up every address in addrs. The result has the same
// length as addrs, with nil for addresses not inside any symbol.
func (f *File) SymbolsByAddr(addrs []uint64) ([]*Symbol, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.loadSymbols(); err != nil {
		return nil, err
	}
	r := make([]*Symbol, len(addrs))
	for i, addr := range addrs {
		r[i] = f.symbolByAddr(addr)
	}
	return r, nil
}

// SectionByAddr returns the section at addr or, if there is none, the
// lowest addressed section containing addr. Returns nil if addr is not
// inside any section.
func (f *File) SectionByAddr(addr uint64) (*Section, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.loadSections(); err != nil {
		return nil, err
	}
	return f.sectionByAddr(addr), nil
}

func (f *File) sectionByAddr(addr uint64) *Section {
	i := f.cachedFind(SectionTable, addr, func() int {
		return f.sections.find(addr, func(s *Section, addr uint64) bool { return s.Contains(addr, f.bound) })
	})
	if i < 0 {
		return nil
	}
	sec := f.sections.entries[i]
	return &sec
}

// SectionsByAddr looks up every address in addrs. The result has the same
// length as addrs, with nil for addresses not inside any section.
func (f *File) SectionsByAddr(addrs []uint64) ([]*Section, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.loadSections(); err != nil {
		return nil, err
	}
	r := make([]*Section, len(addrs))
	for i, addr := range addrs {
		r[i] = f.sectionByAddr(addr)
	}
	return r, nil
}

// VAddrToOffset translates a virtual address into an offset in the image
// file using the section containing it.
func (f *File) VAddrToOffset(vaddr uint64) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.loadSections(); err != nil {
		return 0, err
	}
	return f.vaddrToOffset(vaddr)
}

// Locate returns the path of the bound image together with the file offset
// of vaddr in it. Both are read under the same lock so that a concurrent
// SetPath cannot pair the offset with a different image.
func (f *File) Locate(vaddr uint64) (path string, off uint64, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.loadSections(); err != nil {
		return "", 0, err
	}
	off, err = f.vaddrToOffset(vaddr)
	if err != nil {
		return "", 0, err
	}
	return f.path, off, nil
}

func (f *File) vaddrToOffset(vaddr uint64) (uint64, error) {
	sec := f.sectionByAddr(vaddr)
	if sec == nil {
		return 0, errors.Wrapf(ErrNoSection, "%#x", vaddr)
	}
	return vaddr - sec.Addr + sec.Offset, nil
}

// VAddrsToOffsets translates every address in vaddrs, see VAddrToOffset.
// It fails on the first address not covered by a section.
func (f *File) VAddrsToOffsets(vaddrs []uint64) ([]uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.loadSections(); err != nil {
		return nil, err
	}
	r := make([]uint64, len(vaddrs))
	for i, vaddr := range vaddrs {
		off, err := f.vaddrToOffset(vaddr)
		if err != nil {
			return nil, err
		}
		r[i] = off
	}
	return r, nil
}

// SymbolsWithPrefix returns the names of all symbols starting with prefix.
func (f *File) SymbolsWithPrefix(prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.loadSymbols(); err != nil {
		return nil, err
	}
	if f.names == nil {
		f.names = trie.New()
		for i := range f.symbols.entries {
			f.names.Add(f.symbols.entries[i].Name, f.symbols.entries[i].Addr)
		}
	}
	r := f.names.PrefixSearch(prefix)
	sort.Strings(r)
	return r, nil
}
