package config

import (
	"reflect"
	"testing"
)

func TestSplitQuotedFields(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		quote string
		seps  string
		want  []string
	}{
		{"alias rule", `sym "symbol lookup"`, `"`, "", []string{"sym", "symbol lookup"}},
		{"single quotes kept inside double quotes", `sec ".text's"`, `"`, "", []string{"sec", ".text's"}},
		{"escaped quote", `'start_\'kernel' rest_init`, Quotes, "", []string{"start_'kernel", "rest_init"}},
		{"glued quoted parts", `start"_"kernel`, Quotes, "", []string{"start_kernel"}},
		{"commas separate lookups", `start_kernel,rest_init, 0x1000`, Quotes, ",", []string{"start_kernel", "rest_init", "0x1000"}},
		{"quoted comma", `"a,b",c`, Quotes, ",", []string{"a,b", "c"}},
		{"comma without separators", `a,b`, Quotes, "", []string{"a,b"}},
		{"runs of separators", ` ,, .text ,`, Quotes, ",", []string{".text"}},
		{"empty quoted fields", ` "" '' .bss ""`, Quotes, ",", []string{"", "", ".bss", ""}},
		{"unterminated quote", `sym "rest_init`, Quotes, "", []string{"sym", "rest_init"}},
		{"blank", "  \t ", Quotes, ",", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitQuotedFields(tt.in, tt.quote, tt.seps)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("expected %#v, got %#v", tt.want, got)
			}
		})
	}
}
