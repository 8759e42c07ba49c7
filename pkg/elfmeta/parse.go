package elfmeta

import (
	"strings"

	"github.com/grafana/regexp"

	"github.com/go-delve/kmeta/pkg/intconv"
)

var (
	// [NN] name type address offset size ...
	sectionLineRx = regexp.MustCompile(`\[.*\]\s*([._a-zA-Z0-9$-]+)\s+([A-Z][A-Z_0-9]*)\s+([0-9A-Fa-f]+)\s+([0-9A-Fa-f]+)\s+([0-9A-Fa-f]+)`)
	// NN: address size type bind visibility ndx name
	symbolLineRx = regexp.MustCompile(`^.*\d+:\s(.*)$`)
	// leading hexadecimal field of a relocation entry
	relocLineRx = regexp.MustCompile(`^\s*([0-9A-Fa-f]+)`)
	// Key: value
	headerLineRx = regexp.MustCompile(`^\s*([^:]+):\s*(.*)$`)
)

const (
	sectionFields = 5
	symbolFields  = 7
)

func lines(text string) []string {
	return strings.Split(strings.TrimSpace(text), "\n")
}

// parseSections parses the output of readelf -SW. Lines that do not have
// the expected shape are skipped, readelf mixes headers and a legend with
// the table rows.
func parseSections(text string) []Section {
	var r []Section
	for _, line := range lines(text) {
		m := sectionLineRx.FindStringSubmatch(line)
		if len(m) != sectionFields+1 {
			continue
		}
		addr, err1 := intconv.ParseHex(m[3])
		off, err2 := intconv.ParseHex(m[4])
		size, err3 := intconv.ParseHex(m[5])
		if err1 != nil || err2 != nil || err3 != nil {
			continue
		}
		r = append(r, Section{Name: m[1], Type: m[2], Addr: addr, Offset: off, Size: size})
	}
	return r
}

// parseSymbols parses the output of readelf -sW. Only rows with exactly
// seven columns are kept, which drops symbols without a name as well as
// the table headers.
func parseSymbols(text string) []Symbol {
	var r []Symbol
	for _, line := range lines(text) {
		m := symbolLineRx.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		fields := strings.Fields(m[1])
		if len(fields) != symbolFields {
			continue
		}
		addr, err := intconv.ParseHex(fields[0])
		if err != nil {
			continue
		}
		size, err := intconv.ParseSize(fields[1])
		if err != nil {
			continue
		}
		r = append(r, Symbol{
			Addr:       addr,
			Size:       size,
			Type:       fields[2],
			Bind:       fields[3],
			Visibility: fields[4],
			Ndx:        fields[5],
			Name:       fields[6],
		})
	}
	return r
}

// parseRelocations returns the leading hexadecimal field of every line of
// the output of readelf -rW, in the order they appear.
func parseRelocations(text string) []uint64 {
	var r []uint64
	for _, line := range lines(text) {
		m := relocLineRx.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		addr, err := intconv.ParseHex(m[1])
		if err != nil {
			continue
		}
		r = append(r, addr)
	}
	return r
}

// parseHeader parses the output of readelf -hW.
func parseHeader(text string) Header {
	var h Header
	for _, line := range lines(text) {
		m := headerLineRx.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		v := strings.TrimSpace(m[2])
		switch strings.TrimSpace(m[1]) {
		case "Class":
			h.Class = v
		case "Data":
			h.Data = v
		case "Type":
			h.Type = v
		case "Machine":
			h.Machine = v
		case "Entry point address":
			if entry, err := intconv.ParseHex(v); err == nil {
				h.Entry = entry
			}
		}
	}
	return h
}
