// Package disasm decodes machine code read out of an image.
package disasm

import (
	"fmt"
	"strings"

	"golang.org/x/arch/arm64/arm64asm"
	"golang.org/x/arch/x86/x86asm"

	"github.com/go-delve/kmeta/pkg/elfmeta"
)

// AssemblyFlavour is the assembly syntax to display.
type AssemblyFlavour int

const (
	// GNUFlavour will display GNU assembly syntax.
	GNUFlavour = AssemblyFlavour(iota)
	// IntelFlavour will display Intel assembly syntax.
	IntelFlavour
	// GoFlavour will display Go assembly syntax.
	GoFlavour
)

// ParseFlavour parses the name of an assembly syntax.
func ParseFlavour(s string) (AssemblyFlavour, error) {
	switch strings.ToLower(s) {
	case "", "gnu":
		return GNUFlavour, nil
	case "intel":
		return IntelFlavour, nil
	case "go":
		return GoFlavour, nil
	}
	return GNUFlavour, fmt.Errorf("unknown disassembly flavor %q", s)
}

// SymbolLookup returns the name and start address of the symbol containing
// addr, or an empty name.
type SymbolLookup func(addr uint64) (string, uint64)

// Symbols returns a SymbolLookup backed by the symbol table of f.
func Symbols(f *elfmeta.File) SymbolLookup {
	return func(addr uint64) (string, uint64) {
		sym, err := f.SymbolByAddr(addr)
		if err != nil || sym == nil {
			return "", 0
		}
		return sym.Name, sym.Addr
	}
}

// Instruction is one decoded instruction.
type Instruction struct {
	PC    uint64
	Bytes []byte
	// Text is "?" if the bytes could not be decoded.
	Text string
}

type archInst interface {
	Text(flavour AssemblyFlavour, pc uint64, symLookup SymbolLookup) string
}

type decodeFunc func(mem []byte) (inst archInst, size int, err error)

// Disassemble decodes mem, which was loaded at pc, for the architecture
// arch ("arm64", "amd64" or "386"). Bytes that can not be decoded produce
// a "?" instruction and decoding resumes after them.
func Disassemble(arch string, mem []byte, pc uint64, flavour AssemblyFlavour, symLookup SymbolLookup) ([]Instruction, error) {
	var decode decodeFunc
	switch arch {
	case "arm64":
		decode = arm64Decode
	case "amd64":
		decode = x86Decode(64)
	case "386":
		decode = x86Decode(32)
	default:
		return nil, fmt.Errorf("disassembly not supported for architecture %q", arch)
	}
	if symLookup == nil {
		symLookup = func(uint64) (string, uint64) { return "", 0 }
	}

	r := make([]Instruction, 0, len(mem)/4)
	for len(mem) > 0 {
		inst, size, err := decode(mem)
		if size > len(mem) {
			size = len(mem)
		}
		text := "?"
		if err == nil {
			text = inst.Text(flavour, pc, symLookup)
		}
		r = append(r, Instruction{PC: pc, Bytes: mem[:size], Text: text})
		mem = mem[size:]
		pc += uint64(size)
	}
	return r, nil
}

type arm64ArchInst arm64asm.Inst

func arm64Decode(mem []byte) (archInst, int, error) {
	inst, err := arm64asm.Decode(mem)
	if err != nil {
		return nil, 4, err
	}
	return (*arm64ArchInst)(&inst), 4, nil
}

func (inst *arm64ArchInst) Text(flavour AssemblyFlavour, pc uint64, symLookup SymbolLookup) string {
	switch flavour {
	case GoFlavour:
		return arm64asm.GoSyntax(arm64asm.Inst(*inst), pc, symLookup, nil)
	default:
		return arm64asm.GNUSyntax(arm64asm.Inst(*inst))
	}
}

type x86Inst x86asm.Inst

func x86Decode(bits int) decodeFunc {
	return func(mem []byte) (archInst, int, error) {
		inst, err := x86asm.Decode(mem, bits)
		if err != nil {
			return nil, 1, err
		}
		return (*x86Inst)(&inst), inst.Len, nil
	}
}

func (inst *x86Inst) Text(flavour AssemblyFlavour, pc uint64, symLookup SymbolLookup) string {
	switch flavour {
	case GoFlavour:
		return x86asm.GoSyntax(x86asm.Inst(*inst), pc, x86asm.SymLookup(symLookup))
	case IntelFlavour:
		return x86asm.IntelSyntax(x86asm.Inst(*inst), pc, x86asm.SymLookup(symLookup))
	default:
		return x86asm.GNUSyntax(x86asm.Inst(*inst), pc, x86asm.SymLookup(symLookup))
	}
}
