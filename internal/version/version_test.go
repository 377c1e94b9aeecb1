package version

import (
	"strings"
	"testing"
)

func setVars(t *testing.T, v, c, b string) {
	t.Helper()
	origV, origC, origB := Version, Commit, BuildTime
	t.Cleanup(func() { Version, Commit, BuildTime = origV, origC, origB })
	Version, Commit, BuildTime = v, c, b
}

func TestResolvePrefersLdflags(t *testing.T) {
	setVars(t, "v1.2.3", "abcdef0123456789", "2026-01-01T00:00:00Z")

	info := Resolve()
	if info.Version != "v1.2.3" || info.Commit != "abcdef0123456789" {
		t.Fatalf("resolve: %+v", info)
	}
	if info.BuildTime != "2026-01-01T00:00:00Z" {
		t.Fatalf("build time: %q", info.BuildTime)
	}
}

func TestResolveNeverEmpty(t *testing.T) {
	setVars(t, "", "", "")

	if info := Resolve(); info.Version == "" {
		t.Fatal("resolved version is empty")
	}
}

func TestStringShortensCommit(t *testing.T) {
	setVars(t, "v1.2.3", "abcdef0123456789", "")

	got := String()
	if got != "v1.2.3 (abcdef012345)" {
		t.Fatalf("string: %q", got)
	}
	if strings.Contains(got, "6789") {
		t.Fatalf("commit not shortened: %q", got)
	}
}

func TestShortCommit(t *testing.T) {
	if got := shortCommit("abc123"); got != "abc123" {
		t.Fatalf("short commit kept: %q", got)
	}
	if got := shortCommit("abcdef0123456789"); got != "abcdef012345" {
		t.Fatalf("long commit: %q", got)
	}
}
