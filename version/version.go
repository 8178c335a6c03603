// Package version reports build information for the causes binary.
//
// Release builds set the variables with
//
//	-ldflags "-X github.com/grovetools/causes/version.Version=v1.0.0 -X ..."
//
// Without ldflags, the commit and build date come from the VCS stamp the Go
// toolchain embeds, when there is one.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

var (
	Version   = "dev"
	Commit    = "none"
	Branch    = "unknown"
	BuildDate = "unknown"
)

// Info is the build information printed by 'causes version'.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Branch    string `json:"branch"`
	BuildDate string `json:"buildDate"`
	GoVersion string `json:"goVersion"`
	Compiler  string `json:"compiler"`
	Platform  string `json:"platform"`
}

func GetInfo() Info {
	info := Info{
		Version:   Version,
		Commit:    Commit,
		Branch:    Branch,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Compiler:  runtime.Compiler,
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info.fillFromBuildSettings(bi.Settings)
	}
	return info
}

// fillFromBuildSettings uses vcs.* settings for fields ldflags left unset.
func (i *Info) fillFromBuildSettings(settings []debug.BuildSetting) {
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if i.Commit == "none" && s.Value != "" {
				i.Commit = s.Value
			}
		case "vcs.time":
			if i.BuildDate == "unknown" && s.Value != "" {
				i.BuildDate = s.Value
			}
		}
	}
}

func (i Info) String() string {
	rows := [][2]string{
		{"Version", i.Version},
		{"Commit", i.Commit},
		{"Branch", i.Branch},
		{"Build Date", i.BuildDate},
		{"Go Version", i.GoVersion},
		{"Compiler", i.Compiler},
		{"Platform", i.Platform},
	}
	var b strings.Builder
	for n, row := range rows {
		if n > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%-11s %s", row[0]+":", row[1])
	}
	return b.String()
}
