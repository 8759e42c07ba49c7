package version

import (
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"text/tabwriter"
)

func init() {
	buildInfo = moduleBuildInfo
}

func moduleBuildInfo() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "not built in module mode"
	}
	return formatBuildInfo(info)
}

// formatBuildInfo describes the main module, the commit it was built from
// and its dependencies sorted by path.
func formatBuildInfo(info *debug.BuildInfo) string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "%s %s\n", info.Main.Path, moduleVersion(&info.Main))

	settings := make(map[string]string, len(info.Settings))
	for _, s := range info.Settings {
		settings[s.Key] = s.Value
	}
	if rev := settings["vcs.revision"]; rev != "" {
		fmt.Fprintf(&buf, "built from %s", rev)
		if t := settings["vcs.time"]; t != "" {
			fmt.Fprintf(&buf, " (%s)", t)
		}
		if settings["vcs.modified"] == "true" {
			buf.WriteString(", modified")
		}
		buf.WriteByte('\n')
	}

	deps := append([]*debug.Module(nil), info.Deps...)
	sort.Slice(deps, func(i, j int) bool { return deps[i].Path < deps[j].Path })
	w := tabwriter.NewWriter(&buf, 0, 8, 1, ' ', 0)
	for _, dep := range deps {
		fmt.Fprintf(w, "  %s\t%s", dep.Path, moduleVersion(dep))
		if dep.Replace != nil {
			fmt.Fprintf(w, "\t=> %s %s", dep.Replace.Path, moduleVersion(dep.Replace))
		}
		fmt.Fprintln(w)
	}
	w.Flush()
	return buf.String()
}

func moduleVersion(m *debug.Module) string {
	if m.Version == "" {
		return "(devel)"
	}
	return m.Version
}
