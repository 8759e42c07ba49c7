package starbind

import (
	"testing"

	"go.starlark.net/starlark"
)

func TestConv(t *testing.T) {
	script := `
# A list global that we'll unmarshal into a slice.
x = [1,2]
`
	globals, err := starlark.ExecFile(&starlark.Thread{}, "test.star", script, nil)
	if err != nil {
		t.Fatal(err)
	}
	starlarkVal, ok := globals["x"]
	if !ok {
		t.Fatal("missing global 'x'")
	}
	var x []uint64
	err = unmarshalStarlarkValue(starlarkVal, &x, "x")
	if err != nil {
		t.Fatal(err)
	}
	if len(x) != 2 || x[0] != 1 || x[1] != 2 {
		t.Fatalf("expected [1 2], got: %v", x)
	}
}

func TestConvNegativeAddress(t *testing.T) {
	var addr uint64
	if err := unmarshalStarlarkValue(starlark.MakeInt(-1), &addr, "addr"); err == nil {
		t.Fatalf("expected error, got %#x", addr)
	}
}
