package disasm

import (
	"strings"
	"testing"
)

func TestParseFlavour(t *testing.T) {
	for s, want := range map[string]AssemblyFlavour{"": GNUFlavour, "gnu": GNUFlavour, "Intel": IntelFlavour, "go": GoFlavour} {
		got, err := ParseFlavour(s)
		if err != nil {
			t.Fatalf("%q: %v", s, err)
		}
		if got != want {
			t.Errorf("%q: expected %d got %d", s, want, got)
		}
	}
	if _, err := ParseFlavour("att"); err == nil {
		t.Error("expected error for unknown flavour")
	}
}

func TestDisassembleARM64(t *testing.T) {
	mem := []byte{
		0x1f, 0x20, 0x03, 0xd5, // nop
		0xc0, 0x03, 0x5f, 0xd6, // ret
		0x00, 0x00,
	}
	insts, err := Disassemble("arm64", mem, 0x1000, GNUFlavour, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(insts) != 3 {
		t.Fatalf("expected 3 instructions, got %d: %v", len(insts), insts)
	}
	if !strings.EqualFold(insts[0].Text, "nop") {
		t.Errorf("expected nop, got %q", insts[0].Text)
	}
	if !strings.HasPrefix(strings.ToLower(insts[1].Text), "ret") {
		t.Errorf("expected ret, got %q", insts[1].Text)
	}
	if insts[1].PC != 0x1004 {
		t.Errorf("wrong pc %#x", insts[1].PC)
	}
	if insts[2].Text != "?" || len(insts[2].Bytes) != 2 || insts[2].PC != 0x1008 {
		t.Errorf("trailing bytes decoded as %#v", insts[2])
	}
}

func TestDisassembleAMD64(t *testing.T) {
	for _, flavour := range []AssemblyFlavour{GNUFlavour, IntelFlavour, GoFlavour} {
		insts, err := Disassemble("amd64", []byte{0x90, 0xc3}, 0x2000, flavour, nil)
		if err != nil {
			t.Fatal(err)
		}
		if len(insts) != 2 {
			t.Fatalf("expected 2 instructions, got %d", len(insts))
		}
		if !strings.EqualFold(insts[0].Text, "nop") {
			t.Errorf("flavour %d: expected nop, got %q", flavour, insts[0].Text)
		}
		if !strings.HasPrefix(strings.ToLower(insts[1].Text), "ret") {
			t.Errorf("flavour %d: expected ret, got %q", flavour, insts[1].Text)
		}
		if insts[1].PC != 0x2001 {
			t.Errorf("wrong pc %#x", insts[1].PC)
		}
	}
}

func TestDisassembleUnsupported(t *testing.T) {
	if _, err := Disassemble("riscv64", []byte{0}, 0, GNUFlavour, nil); err == nil {
		t.Fatal("expected error")
	}
}
