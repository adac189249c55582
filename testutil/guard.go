// Package testutil holds the import-boundary checks used by architecture tests.
package testutil

import (
	"fmt"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"testing"
)

// ImportRule reports whether an import path is off limits for a package.
type ImportRule func(importPath string) bool

// NonStdlibImport matches anything outside the standard library, this module included.
func NonStdlibImport(path string) bool {
	first, _, _ := strings.Cut(path, "/")
	return first == "neosweat" || strings.Contains(first, ".")
}

// InfraImportForbidden matches the concrete record store, export store and lock drivers.
func InfraImportForbidden(path string) bool {
	return strings.HasPrefix(path, "neosweat/internal/infra/")
}

// AssertNoDirectImports fails t when a non-test file in dir imports a path
// matched by rule. Build tags are ignored and subdirectories are not scanned.
func AssertNoDirectImports(t testing.TB, dir string, rule ImportRule, reason string) {
	t.Helper()
	found, err := scanImports(dir, rule)
	if err != nil {
		t.Fatalf("scan %s: %v", dir, err)
	}
	report(t, reason, found)
}

// scanImports returns "path (in file.go)" for every matching import, sorted.
func scanImports(dir string, rule ImportRule) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.go"))
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	var found []string
	for _, file := range files {
		base := filepath.Base(file)
		if strings.HasSuffix(base, "_test.go") {
			continue
		}
		parsed, err := parser.ParseFile(fset, file, nil, parser.ImportsOnly)
		if err != nil {
			return nil, err
		}
		for _, spec := range parsed.Imports {
			path, err := strconv.Unquote(spec.Path.Value)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", base, err)
			}
			if rule(path) {
				found = append(found, fmt.Sprintf("%s (in %s)", path, base))
			}
		}
	}
	slices.Sort(found)
	return found, nil
}

func report(t interface{ Fatalf(string, ...any) }, reason string, found []string) {
	if len(found) == 0 {
		return
	}
	t.Fatalf("forbidden imports (%s):\n  %s", reason, strings.Join(found, "\n  "))
}
