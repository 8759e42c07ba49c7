package starbind

import (
	"bytes"
	"strings"
	"testing"

	"github.com/go-delve/kmeta/pkg/elfmeta"
)

const (
	testSections = `  [Nr] Name              Type            Address          Off    Size   ES Flg Lk Inf Al
  [ 0]                   NULL            0000000000000000 000000 000000 00      0   0  0
  [ 1] .head.text        PROGBITS        0000000000000800 000100 000100 00  AX  0   0 4096
  [ 2] .text             PROGBITS        0000000000001000 000200 000500 00  AX  0   0 16
`
	testSymbols = `Symbol table '.symtab' contains 3 entries:
   Num:    Value          Size Type    Bind   Vis      Ndx Name
     0: 0000000000000000     0 NOTYPE  LOCAL  DEFAULT  UND
     1: 0000000000001000    64 FUNC    GLOBAL DEFAULT    2 start_kernel
     2: 0000000000001040 0x100 FUNC    GLOBAL DEFAULT    2 rest_init
`
	testRelocs = `Relocation section '.rela.text' at offset 0x9000 contains 4 entries:
    Offset             Info             Type               Symbol's Value  Symbol's Name + Addend
0000000000000010  0000000000000403 R_AARCH64_RELATIVE                        1000
0000000000000020  0000000000000403 R_AARCH64_RELATIVE                        1040
0000000000000005  0000000000000403 R_AARCH64_RELATIVE                        1000
0000000000000030  0000000000000403 R_AARCH64_RELATIVE                        1040
`
)

type fakeContext struct {
	file     *elfmeta.File
	cmds     map[string]func(string) error
	executed []string
}

func (ctx *fakeContext) File() *elfmeta.File { return ctx.file }

func (ctx *fakeContext) RegisterCommand(name, helpMsg string, fn func(args string) error) {
	ctx.cmds[name] = fn
}

func (ctx *fakeContext) CallCommand(cmdstr string) error {
	ctx.executed = append(ctx.executed, cmdstr)
	return nil
}

type bufWriter struct {
	bytes.Buffer
}

func (w *bufWriter) Echo(string) {}
func (w *bufWriter) Flush()      {}

func newTestEnv(t *testing.T) (*Env, *fakeContext, *bufWriter) {
	t.Helper()
	f, err := elfmeta.New("vmlinux", elfmeta.TableProviderFunc(func(kind elfmeta.TableKind, _ string) (string, error) {
		switch kind {
		case elfmeta.SectionTable:
			return testSections, nil
		case elfmeta.SymbolTable:
			return testSymbols, nil
		case elfmeta.RelocationTable:
			return testRelocs, nil
		}
		return "", nil
	}))
	if err != nil {
		t.Fatal(err)
	}
	ctx := &fakeContext{file: f, cmds: map[string]func(string) error{}}
	out := &bufWriter{}
	return New(ctx, out), ctx, out
}

func TestBuiltins(t *testing.T) {
	env, _, out := newTestEnv(t)
	script := `
def main():
    print(symbol("start_kernel").Addr)
    print(symbol(0x1010).Name)
    print(symbol(0x9999))
    print([s.Name if s else None for s in symbol(["rest_init", "missing", "start_kernel"])])
    print([s.Name for s in section([0x1010, 0x800])])
    print(section(".text").Offset)
    print(offset(0x1010))
    print(offset("0x1020"))
    print(list(offset([0x1010, 0x800])))
    print(list(relocs(0x10, 0x20)))
    print(len(relocs()))
    print(len(symbols()), len(sections()))
`
	if _, err := env.Execute("test.star", script, "main", nil); err != nil {
		t.Fatal(err)
	}
	want := []string{
		"4096",
		"start_kernel",
		"None",
		`["rest_init", None, "start_kernel"]`,
		`[".text", ".head.text"]`,
		"512",
		"528",
		"544",
		"[528, 256]",
		"[16, 32]",
		"4",
		"2 2",
	}
	got := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(got) != len(want) {
		t.Fatalf("expected %d lines of output, got:\n%s", len(want), out.String())
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestBuiltinsInvalidArgument(t *testing.T) {
	for _, expr := range []string{
		`symbol(1.5)`,
		`symbol(["start_kernel", 0x1000])`,
		`section({"name": ".text"})`,
		`offset(None)`,
		`symbol(-1)`,
	} {
		env, _, _ := newTestEnv(t)
		_, err := env.Execute("test.star", expr+"\n", "", nil)
		if err == nil {
			t.Errorf("%s: expected an error", expr)
			continue
		}
		if !strings.Contains(err.Error(), elfmeta.ErrInvalidArgument.Error()) {
			t.Errorf("%s: expected an invalid argument error, got %v", expr, err)
		}
	}
}

func TestOffsetNotCovered(t *testing.T) {
	env, _, _ := newTestEnv(t)
	_, err := env.Execute("test.star", "offset(0x9000)\n", "", nil)
	if err == nil || !strings.Contains(err.Error(), elfmeta.ErrNoSection.Error()) {
		t.Fatalf("expected a not covered error, got %v", err)
	}
}

func TestNoImage(t *testing.T) {
	env, ctx, _ := newTestEnv(t)
	ctx.file = nil
	_, err := env.Execute("test.star", `symbol("start_kernel")`+"\n", "", nil)
	if err == nil || !strings.Contains(err.Error(), errNoImage.Error()) {
		t.Fatalf("expected %v, got %v", errNoImage, err)
	}
}

func TestCommandRegistration(t *testing.T) {
	env, ctx, out := newTestEnv(t)
	script := `
def command_whereis(args):
    "Prints the symbol containing an address."
    print(symbol(int(args, 16)).Name)

def command_both(a, b):
    kmeta_command("sym", a)
    kmeta_command("sym", b)
`
	if _, err := env.Execute("cmds.star", script, "", nil); err != nil {
		t.Fatal(err)
	}
	whereis := ctx.cmds["whereis"]
	if whereis == nil {
		t.Fatal("command_whereis was not registered")
	}
	if err := whereis("0x1044"); err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(out.String()); got != "rest_init" {
		t.Fatalf("expected rest_init, got %q", got)
	}

	both := ctx.cmds["both"]
	if both == nil {
		t.Fatal("command_both was not registered")
	}
	if err := both(`"start_kernel", "rest_init"`); err != nil {
		t.Fatal(err)
	}
	if len(ctx.executed) != 2 || ctx.executed[0] != "sym start_kernel" || ctx.executed[1] != "sym rest_init" {
		t.Fatalf("unexpected commands %q", ctx.executed)
	}
}

func TestImageAndHelp(t *testing.T) {
	env, ctx, out := newTestEnv(t)
	script := `
print(image().endswith("vmlinux"))
help()
help(offset)
`
	if _, err := env.Execute("help.star", script, "", nil); err != nil {
		t.Fatal(err)
	}
	for _, s := range []string{"True\n", "Available builtins:\n", "\timage()\n", "\tsymbol(Query)\n", "\tkmeta_command(Command, Args...)\n", "builtin offset(Addr)\n\noffset translates"} {
		if !strings.Contains(out.String(), s) {
			t.Errorf("output does not contain %q:\n%s", s, out.String())
		}
	}

	ctx.file = nil
	out.Reset()
	if _, err := env.Execute("image.star", "print(image())\n", "", nil); err != nil {
		t.Fatal(err)
	}
	if got := out.String(); got != "None\n" {
		t.Fatalf("expected None without an image, got %q", got)
	}
}

func TestBuiltinArgumentErrors(t *testing.T) {
	for _, expr := range []string{
		`read_file()`,
		`write_file("x")`,
		`kmeta_command("sym", 1)`,
		`image(1)`,
	} {
		env, _, _ := newTestEnv(t)
		if _, err := env.Execute("args.star", expr+"\n", "", nil); err == nil {
			t.Errorf("%s: expected an error", expr)
		}
	}
}
