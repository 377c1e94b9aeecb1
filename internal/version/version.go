// Package version resolves the fibarc build version recorded in container
// attributes and printed by the version command.
package version

import "runtime/debug"

// Injected at release build time via -ldflags; empty in plain go-build
// binaries, where Resolve falls back to module build info.
var (
	Version   = ""
	Commit    = ""
	BuildTime = ""
)

type Info struct {
	Version   string
	Commit    string
	BuildTime string
}

// Resolve merges the ldflags values with whatever the Go toolchain stamped
// into the binary, preferring the explicit ldflags.
func Resolve() Info {
	out := Info{Version: Version, Commit: Commit, BuildTime: BuildTime}

	if bi, ok := debug.ReadBuildInfo(); ok {
		if out.Version == "" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			out.Version = bi.Main.Version
		}
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if out.Commit == "" {
					out.Commit = s.Value
				}
			case "vcs.time":
				if out.BuildTime == "" {
					out.BuildTime = s.Value
				}
			}
		}
	}

	if out.Version == "" {
		out.Version = "devel"
	}
	return out
}

// String renders the resolved version in the single-line form stored in
// container attributes, e.g. "v0.3.0 (1a2b3c4d5e6f)".
func String() string {
	info := Resolve()
	if info.Commit == "" {
		return info.Version
	}
	return info.Version + " (" + shortCommit(info.Commit) + ")"
}

func shortCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}
