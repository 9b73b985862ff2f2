package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestInternalImportForbiddenPredicate(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"mycocore/internal/core", true},
		{"example.com/mod/internal/x", true},
		{"example.com/mod/pkg/x", false},
	}
	for _, c := range cases {
		if got := InternalImportForbidden(c.in); got != c.want {
			t.Fatalf("InternalImportForbidden(%q)=%v want %v", c.in, got, c.want)
		}
	}
}

// TestAssertNoDirectImports exercises the success path against a tiny temp
// package that only imports fmt.
func TestAssertNoDirectImports(t *testing.T) {
	dir := t.TempDir()
	src := []byte("package tmp\nimport \"fmt\"\nfunc X(){fmt.Println(1)}")
	if err := os.WriteFile(filepath.Join(dir, "x.go"), src, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	AssertNoDirectImports(t, dir, func(string) bool { return false }, "none")
}

func TestAssertNoDirectImportsDetectsViolation(t *testing.T) {
	dir := t.TempDir()
	src := []byte("package tmp\nimport _ \"example.com/mod/internal/x\"\n")
	if err := os.WriteFile(filepath.Join(dir, "x.go"), src, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	probe := &recordingTB{TB: t}
	AssertNoDirectImports(probe, dir, InternalImportForbidden, "no internal imports")
	if !probe.failed {
		t.Fatalf("expected violation to be reported")
	}
}

func TestAssertNoTransitiveDependencyStubbed(t *testing.T) {
	prev := goListDeps
	goListDeps = func(string) ([]byte, error) {
		return []byte("fmt\nexample.com/mod/internal/x\n"), nil
	}
	defer func() { goListDeps = prev }()

	probe := &recordingTB{TB: t}
	AssertNoTransitiveDependency(probe, "./...", InternalImportForbidden, "no internal deps")
	if !probe.failed {
		t.Fatalf("expected violation to be reported")
	}
	probe = &recordingTB{TB: t}
	AssertNoTransitiveDependency(probe, "./...", func(string) bool { return false }, "none")
	if probe.failed {
		t.Fatalf("clean dependency list must pass")
	}
}

// recordingTB captures Fatalf instead of aborting, so guard failures can be
// asserted without failing the surrounding test.
type recordingTB struct {
	testing.TB
	failed bool
}

func (r *recordingTB) Fatalf(string, ...any) { r.failed = true }
func (r *recordingTB) Helper()               {}
