package terminal

import (
	"bufio"
	"fmt"
	"text/tabwriter"

	"github.com/go-delve/kmeta/pkg/disasm"
)

func disasmPrint(t *Term, insts []disasm.Instruction) {
	bw := bufio.NewWriter(t.stdout)
	defer bw.Flush()
	if len(insts) > 0 {
		if sym, _ := t.file.SymbolByAddr(insts[0].PC); sym != nil {
			fmt.Fprintf(bw, "TEXT %s(SB) %s\n", sym.Name, t.file.Path())
		}
	}
	tw := tabwriter.NewWriter(bw, 1, 8, 1, '\t', 0)
	defer tw.Flush()
	for _, inst := range insts {
		loc := ""
		if sym, _ := t.file.SymbolByAddr(inst.PC); sym != nil {
			loc = fmt.Sprintf("%s+%d", sym.Name, inst.PC-sym.Addr)
		}
		fmt.Fprintf(tw, "\t%s\t%#x\t%x\t%s\n", loc, inst.PC, inst.Bytes, inst.Text)
	}
}
