package architecture_test

import (
	"go/ast"
	"go/parser"
	"go/token"
	"path/filepath"
	"strings"
	"testing"
)

const (
	isolationPackage = "fairgate/internal/isolation"
	duckdbDriver     = "github.com/duckdb/duckdb-go"
)

// TestIsolatedStoreDriverConfined keeps the DuckDB driver import inside
// internal/isolation. Demographics live in a separate engine precisely so no
// other package can join them against operational tables; a second import
// site would reopen that path.
func TestIsolatedStoreDriverConfined(t *testing.T) {
	t.Parallel()

	root := repoRootDir(t)
	for _, path := range collectGoFiles(t, root) {
		rel := filepath.ToSlash(relToRepoRoot(t, root, path))
		if strings.HasPrefix(rel, "internal/isolation/") {
			continue
		}
		for _, imp := range parseImports(t, path) {
			if hasPathPrefix(imp, duckdbDriver) {
				t.Errorf("%s imports the isolated store driver %s; only internal/isolation may", rel, imp)
			}
		}
	}
}

// TestIsolationRouterConstructionConfined allows production code to build an
// isolation.Router only inside internal/app. Every other package receives a
// wired router, so there is exactly one partition per process and its
// lifecycle is owned by the composition root. Test files are exempt: they
// stand up ad hoc in-memory partitions.
func TestIsolationRouterConstructionConfined(t *testing.T) {
	t.Parallel()

	root := repoRootDir(t)
	for _, path := range collectGoFiles(t, root) {
		rel := filepath.ToSlash(relToRepoRoot(t, root, path))
		if isTestFile(path) || shouldSkipGeneratedFile(path) {
			continue
		}
		if strings.HasPrefix(rel, "internal/isolation/") || strings.HasPrefix(rel, "internal/app/") {
			continue
		}
		for _, call := range constructorCalls(t, path, isolationPackage, "NewRouter") {
			t.Errorf("%s calls isolation.NewRouter at line %d; construction belongs to internal/app", rel, call)
		}
	}
}

// constructorCalls returns the lines on which file calls pkgPath.funcName.
// The import alias is resolved from the file's import block, so renamed
// imports cannot dodge the check.
func constructorCalls(t *testing.T, path, pkgPath, funcName string) []int {
	t.Helper()

	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, path, nil, 0)
	if err != nil {
		t.Fatalf("parse %s: %v", path, err)
	}

	alias := ""
	for _, spec := range f.Imports {
		if strings.Trim(spec.Path.Value, `"`) != pkgPath {
			continue
		}
		if spec.Name != nil {
			alias = spec.Name.Name
		} else {
			alias = pkgPath[strings.LastIndex(pkgPath, "/")+1:]
		}
	}
	if alias == "" || alias == "_" {
		return nil
	}

	var lines []int
	ast.Inspect(f, func(n ast.Node) bool {
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		sel, ok := call.Fun.(*ast.SelectorExpr)
		if !ok {
			return true
		}
		ident, ok := sel.X.(*ast.Ident)
		if !ok {
			return true
		}
		if ident.Name == alias && sel.Sel.Name == funcName {
			lines = append(lines, fset.Position(call.Pos()).Line)
		}
		return true
	})
	return lines
}
