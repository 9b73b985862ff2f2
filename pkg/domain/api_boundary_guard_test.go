package domain

import (
	"strings"
	"testing"

	"mycocore/testutil"
)

// TestAPIBoundaryGuards enforces that the public domain package does not
// directly or transitively depend on internal packages: domain is the surface
// the storage backends and service implement, never the other way around.
func TestAPIBoundaryGuards(t *testing.T) {
	// Direct imports guard.
	testutil.AssertNoDirectImports(t, ".", testutil.InternalImportForbidden,
		"no direct imports of internal packages from pkg/domain")

	// Transitive dependency guard, scoped to this module so standard library
	// internal packages pulled in by third-party deps do not trip it.
	testutil.AssertNoTransitiveDependency(t, ".", func(p string) bool {
		return strings.HasPrefix(p, "mycocore/") && testutil.InternalImportForbidden(p)
	}, "no transitive dependency on internal packages from pkg/domain")
}
