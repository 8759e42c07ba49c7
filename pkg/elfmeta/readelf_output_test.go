package elfmeta

import (
	"sync"
)

const sectionsOutput = `There are 8 section headers, starting at offset 0x6a2b3c:

Section Headers:
  [Nr] Name              Type            Address          Off    Size   ES Flg Lk Inf Al
  [ 0]                   NULL            0000000000000000 000000 000000 00      0   0  0
  [ 1] .head.text        PROGBITS        ffffffc010000000 010000 001000 00  AX  0   0 4096
  [ 2] .text             PROGBITS        ffffffc010001000 011000 400000 00  AX  0   0 2048
  [ 3] .rodata           PROGBITS        ffffffc010410000 420000 100000 00  WA  0   0 4096
  [ 4] .bss              NOBITS          ffffffc010600000 520000 080000 00  WA  0   0 4096
  [ 5] .comment          PROGBITS        0000000000000000 520000 00002b 01  MS  0   0  1
  [ 6] .symtab           SYMTAB          0000000000000000 520030 0c0000 18      7 12345  8
  [ 7] .strtab           STRTAB          0000000000000000 5e0030 0a0000 00      0   0  1
Key to Flags:
  W (write), A (alloc), X (execute), M (merge), S (strings), I (info),
  L (link order), O (extra OS processing required), G (group), T (TLS),
  C (compressed), x (unknown), o (OS specific), E (exclude),
  p (processor specific)
`

const symbolsOutput = `
Symbol table '.symtab' contains 9 entries:
   Num:    Value          Size Type    Bind   Vis      Ndx Name
     0: 0000000000000000     0 NOTYPE  LOCAL  DEFAULT  UND
     1: ffffffc010000000     0 SECTION LOCAL  DEFAULT    1 .head.text
     2: ffffffc010001000    64 FUNC    GLOBAL DEFAULT    2 start_kernel
     3: ffffffc010001040 0x1a0 FUNC    LOCAL  DEFAULT    2 do_one_initcall
     4: ffffffc010001040    16 FUNC    GLOBAL DEFAULT    2 do_one_initcall_alias
     5: ffffffc010410000    26 OBJECT  GLOBAL DEFAULT    3 linux_banner
     6: ffffffc010410100 0x100 OBJECT  GLOBAL DEFAULT    3 first_crypto_rodata
     7: ffffffc010002000     8 FUNC    GLOBAL DEFAULT    2 start_kernel
     8: ffffffc010410080    16 OBJECT  GLOBAL DEFAULT    3 linux_proc_banner [VERSION]
`

const relocationsOutput = `
Relocation section '.rela.dyn' at offset 0x1234 contains 4 entries:
    Offset             Info             Type               Symbol's Value  Symbol's Name + Addend
0000000000000010  0000000000000403 R_AARCH64_RELATIVE                        ffffffc010001000
0000000000000020  0000000000000403 R_AARCH64_RELATIVE                        ffffffc010001040
0000000000000005  0000000000000403 R_AARCH64_RELATIVE                        ffffffc010410000
0000000000000030  0000000000000403 R_AARCH64_RELATIVE                        ffffffc010410100
`

const headerOutput = `ELF Header:
  Magic:   7f 45 4c 46 02 01 01 00 00 00 00 00 00 00 00 00
  Class:                             ELF64
  Data:                              2's complement, little endian
  Version:                           1 (current)
  OS/ABI:                            UNIX - System V
  ABI Version:                       0
  Type:                              EXEC (Executable file)
  Machine:                           AArch64
  Version:                           0x1
  Entry point address:               0xffffffc010000000
  Start of program headers:          64 (bytes into file)
`

// fakeReadelf serves canned tables and counts how often each one was
// requested.
type fakeReadelf struct {
	mu     sync.Mutex
	tables map[TableKind]string
	err    error
	calls  map[TableKind]int
	paths  []string
}

func newFakeReadelf() *fakeReadelf {
	return &fakeReadelf{
		tables: map[TableKind]string{
			SectionTable:    sectionsOutput,
			SymbolTable:     symbolsOutput,
			RelocationTable: relocationsOutput,
			FileHeader:      headerOutput,
		},
		calls: make(map[TableKind]int),
	}
}

func (p *fakeReadelf) Table(kind TableKind, path string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[kind]++
	p.paths = append(p.paths, path)
	if p.err != nil {
		return "", p.err
	}
	return p.tables[kind], nil
}

func (p *fakeReadelf) count(kind TableKind) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[kind]
}
