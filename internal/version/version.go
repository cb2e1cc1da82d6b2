package version

import (
	"runtime/debug"
	"strings"
)

// Version values are set at build time using -ldflags.
var Version = "dev"
var Built = ""
var GitCommit = ""

type VersionInfo struct {
	Version   string
	Built     string
	GitCommit string
	Modified  bool
}

// GetVersionInfo returns the ldflags-stamped values, falling back to the VCS
// settings recorded by the Go toolchain when no commit was stamped.
func GetVersionInfo() VersionInfo {
	info := VersionInfo{
		Version:   Version,
		Built:     Built,
		GitCommit: GitCommit,
	}
	if info.GitCommit != "" {
		return info
	}
	build, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	for _, setting := range build.Settings {
		switch setting.Key {
		case "vcs.revision":
			info.GitCommit = setting.Value
		case "vcs.time":
			if info.Built == "" {
				info.Built = setting.Value
			}
		case "vcs.modified":
			info.Modified = setting.Value == "true"
		}
	}
	return info
}

// String renders the one-line form printed by --version.
func (info VersionInfo) String() string {
	builder := strings.Builder{}
	builder.WriteString(info.Version)
	commit := info.GitCommit
	if len(commit) > 12 {
		commit = commit[:12]
	}
	if commit != "" {
		builder.WriteString(" (")
		builder.WriteString(commit)
		if info.Modified {
			builder.WriteString("-dirty")
		}
		builder.WriteString(")")
	}
	if info.Built != "" {
		builder.WriteString(" built ")
		builder.WriteString(info.Built)
	}
	return builder.String()
}
