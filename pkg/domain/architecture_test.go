package domain

import (
	"testing"

	"neosweat/testutil"
)

func TestDomainDependsOnlyOnStdlib(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.NonStdlibImport, "domain types are shared by every layer")
}
