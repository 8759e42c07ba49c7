package starbind

import (
	"github.com/pkg/errors"
	"go.starlark.net/starlark"

	"github.com/go-delve/kmeta/pkg/elfmeta"
	"github.com/go-delve/kmeta/pkg/intconv"
)

var errNoImage = errors.New("no image loaded, use the file command")

// query is the argument of a lookup builtin: either a name or an
// address, alone or in a list.
type query struct {
	names []string
	addrs []uint64
	list  bool
}

func (q query) byName() bool {
	return q.names != nil
}

// parseQuery converts a string, an int, or a list or tuple made only of
// strings or only of ints.
func parseQuery(fn string, v starlark.Value) (query, error) {
	var q query
	switch v := v.(type) {
	case starlark.String:
		q.names = []string{string(v)}
		return q, nil
	case starlark.Int:
		addr, err := starlarkAddr(fn, v)
		if err != nil {
			return q, err
		}
		q.addrs = []uint64{addr}
		return q, nil
	case *starlark.List, starlark.Tuple:
		q.list = true
		it := v.(starlark.Iterable).Iterate()
		defer it.Done()
		var elem starlark.Value
		for i := 0; it.Next(&elem); i++ {
			switch elem := elem.(type) {
			case starlark.String:
				if q.addrs != nil {
					return q, errors.Wrapf(elfmeta.ErrInvalidArgument, "%s: element %d is a string in a list of addresses", fn, i)
				}
				q.names = append(q.names, string(elem))
			case starlark.Int:
				if q.names != nil {
					return q, errors.Wrapf(elfmeta.ErrInvalidArgument, "%s: element %d is an int in a list of names", fn, i)
				}
				addr, err := starlarkAddr(fn, elem)
				if err != nil {
					return q, err
				}
				q.addrs = append(q.addrs, addr)
			default:
				return q, errors.Wrapf(elfmeta.ErrInvalidArgument, "%s: element %d has type %s", fn, i, elem.Type())
			}
		}
		if q.names == nil && q.addrs == nil {
			q.addrs = []uint64{}
		}
		return q, nil
	}
	return q, errors.Wrapf(elfmeta.ErrInvalidArgument, "%s: argument has type %s", fn, v.Type())
}

func starlarkAddr(fn string, v starlark.Value) (uint64, error) {
	var addr uint64
	if err := unmarshalStarlarkValue(v, &addr, "addr"); err != nil {
		return 0, errors.Wrapf(elfmeta.ErrInvalidArgument, "%s: %v", fn, err)
	}
	return addr, nil
}

// addrArg converts an int or an address string ("0xffff0000").
func addrArg(fn string, v starlark.Value) (uint64, error) {
	if s, ok := v.(starlark.String); ok {
		addr, err := intconv.ParseAddress(string(s))
		if err != nil {
			return 0, errors.Wrapf(elfmeta.ErrInvalidArgument, "%s: %v", fn, err)
		}
		return addr, nil
	}
	if _, ok := v.(starlark.Int); !ok {
		return 0, errors.Wrapf(elfmeta.ErrInvalidArgument, "%s: argument has type %s", fn, v.Type())
	}
	return starlarkAddr(fn, v)
}

func (env *Env) file() (*elfmeta.File, error) {
	f := env.ctx.File()
	if f == nil {
		return nil, errNoImage
	}
	return f, nil
}

func (env *Env) symbolQuery(q query) (interface{}, error) {
	f, err := env.file()
	if err != nil {
		return nil, err
	}
	var r []*elfmeta.Symbol
	if q.byName() {
		r, err = f.SymbolsByName(q.names)
	} else {
		r, err = f.SymbolsByAddr(q.addrs)
	}
	if err != nil || q.list {
		return r, err
	}
	return r[0], nil
}

func (env *Env) sectionQuery(q query) (interface{}, error) {
	f, err := env.file()
	if err != nil {
		return nil, err
	}
	var r []*elfmeta.Section
	if q.byName() {
		r, err = f.SectionsByName(q.names)
	} else {
		r, err = f.SectionsByAddr(q.addrs)
	}
	if err != nil || q.list {
		return r, err
	}
	return r[0], nil
}

func (env *Env) lookupBuiltin(name string, lookup func(query) (interface{}, error)) *starlark.Builtin {
	return starlark.NewBuiltin(name, func(thread *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if err := isCancelled(thread); err != nil {
			return starlark.None, decorateError(thread, err)
		}
		var arg starlark.Value
		if err := starlark.UnpackPositionalArgs(name, args, kwargs, 1, &arg); err != nil {
			return starlark.None, decorateError(thread, errors.Wrap(elfmeta.ErrInvalidArgument, err.Error()))
		}
		q, err := parseQuery(name, arg)
		if err != nil {
			return starlark.None, decorateError(thread, err)
		}
		r, err := lookup(q)
		if err != nil {
			return starlark.None, decorateError(thread, err)
		}
		return env.interfaceToStarlarkValue(r), nil
	})
}

func (env *Env) starlarkPredeclare() (starlark.StringDict, map[string]string) {
	r := starlark.StringDict{}
	doc := make(map[string]string)

	r["symbol"] = env.lookupBuiltin("symbol", env.symbolQuery)
	doc["symbol"] = "builtin symbol(Query)\n\nsymbol returns the symbol named Query if Query is a string or the symbol\ncontaining address Query if it is an int. If Query is a list of names or a\nlist of addresses a list is returned. Symbols that can not be found are None."

	r["section"] = env.lookupBuiltin("section", env.sectionQuery)
	doc["section"] = "builtin section(Query)\n\nsection returns the section named Query if Query is a string or the section\ncontaining address Query if it is an int. If Query is a list of names or a\nlist of addresses a list is returned. Sections that can not be found are None."

	r["offset"] = starlark.NewBuiltin("offset", func(thread *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if err := isCancelled(thread); err != nil {
			return starlark.None, decorateError(thread, err)
		}
		var arg starlark.Value
		if err := starlark.UnpackPositionalArgs("offset", args, kwargs, 1, &arg); err != nil {
			return starlark.None, decorateError(thread, errors.Wrap(elfmeta.ErrInvalidArgument, err.Error()))
		}
		f, err := env.file()
		if err != nil {
			return starlark.None, decorateError(thread, err)
		}
		switch arg := arg.(type) {
		case *starlark.List, starlark.Tuple:
			var vaddrs []uint64
			it := arg.(starlark.Iterable).Iterate()
			defer it.Done()
			var elem starlark.Value
			for it.Next(&elem) {
				vaddr, err := addrArg("offset", elem)
				if err != nil {
					return starlark.None, decorateError(thread, err)
				}
				vaddrs = append(vaddrs, vaddr)
			}
			offs, err := f.VAddrsToOffsets(vaddrs)
			if err != nil {
				return starlark.None, decorateError(thread, err)
			}
			if offs == nil {
				offs = []uint64{}
			}
			return env.interfaceToStarlarkValue(offs), nil
		default:
			vaddr, err := addrArg("offset", arg)
			if err != nil {
				return starlark.None, decorateError(thread, err)
			}
			off, err := f.VAddrToOffset(vaddr)
			if err != nil {
				return starlark.None, decorateError(thread, err)
			}
			return starlark.MakeUint64(off), nil
		}
	})
	doc["offset"] = "builtin offset(Addr)\n\noffset translates the virtual address Addr, or each address in a list, to a\nfile offset. Addresses may be ints or hexadecimal strings."

	r["relocs"] = starlark.NewBuiltin("relocs", func(thread *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if err := isCancelled(thread); err != nil {
			return starlark.None, decorateError(thread, err)
		}
		var startv, endv starlark.Value = starlark.None, starlark.None
		if err := starlark.UnpackArgs("relocs", args, kwargs, "start?", &startv, "end?", &endv); err != nil {
			return starlark.None, decorateError(thread, errors.Wrap(elfmeta.ErrInvalidArgument, err.Error()))
		}
		f, err := env.file()
		if err != nil {
			return starlark.None, decorateError(thread, err)
		}
		var relocs []uint64
		if startv == starlark.None || endv == starlark.None {
			relocs, err = f.Relocations()
		} else {
			var start, end uint64
			if start, err = addrArg("relocs", startv); err != nil {
				return starlark.None, decorateError(thread, err)
			}
			if end, err = addrArg("relocs", endv); err != nil {
				return starlark.None, decorateError(thread, err)
			}
			relocs, err = f.RelocationsInRange(start, end)
		}
		if err != nil {
			return starlark.None, decorateError(thread, err)
		}
		if relocs == nil {
			relocs = []uint64{}
		}
		return env.interfaceToStarlarkValue(relocs), nil
	})
	doc["relocs"] = "builtin relocs(Start, End)\n\nrelocs returns the relocation addresses between Start and End, inclusive,\nin the order readelf prints them. If either bound is omitted every\nrelocation is returned."

	r["sections"] = starlark.NewBuiltin("sections", func(thread *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		f, err := env.file()
		if err != nil {
			return starlark.None, decorateError(thread, err)
		}
		secs, err := f.Sections()
		if err != nil {
			return starlark.None, decorateError(thread, err)
		}
		return env.interfaceToStarlarkValue(secs), nil
	})
	doc["sections"] = "builtin sections()\n\nsections returns every section of the image sorted by address."

	r["symbols"] = starlark.NewBuiltin("symbols", func(thread *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		f, err := env.file()
		if err != nil {
			return starlark.None, decorateError(thread, err)
		}
		syms, err := f.Symbols()
		if err != nil {
			return starlark.None, decorateError(thread, err)
		}
		return env.interfaceToStarlarkValue(syms), nil
	})
	doc["symbols"] = "builtin symbols()\n\nsymbols returns every symbol of the image sorted by address."

	r["header"] = starlark.NewBuiltin("header", func(thread *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		f, err := env.file()
		if err != nil {
			return starlark.None, decorateError(thread, err)
		}
		h, err := f.Header()
		if err != nil {
			return starlark.None, decorateError(thread, err)
		}
		return env.interfaceToStarlarkValue(h), nil
	})
	doc["header"] = "builtin header()\n\nheader returns the ELF file header of the image."

	return r, doc
}
