// Command abicheck statically verifies that package syscall's dispatch
// table is wired in the same order as its index constants. This is the
// same invariant syscall.assertTableOrder checks at runtime, run here
// against source so a drift is caught before a kernel image is even
// built.
//
// Usage: abicheck [package pattern]
// Defaults to "substrate/syscall".
package main

import (
	"fmt"
	"go/ast"
	"os"
	"strings"

	"golang.org/x/tools/go/packages"
)

func main() {
	pattern := "substrate/syscall"
	if len(os.Args) > 1 {
		pattern = os.Args[1]
	}

	cfg := &packages.Config{Mode: packages.NeedSyntax | packages.NeedTypes | packages.NeedTypesInfo}
	pkgs, err := packages.Load(cfg, pattern)
	if err != nil {
		fmt.Fprintln(os.Stderr, "abicheck: load failed:", err)
		os.Exit(1)
	}
	if packages.PrintErrors(pkgs) > 0 {
		os.Exit(1)
	}
	if len(pkgs) != 1 {
		fmt.Fprintln(os.Stderr, "abicheck: expected exactly one package")
		os.Exit(1)
	}
	pkg := pkgs[0]

	indexNames, err := indexConstants(pkg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "abicheck:", err)
		os.Exit(1)
	}

	entries, err := tableEntries(pkg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "abicheck:", err)
		os.Exit(1)
	}

	if len(indexNames) != len(entries) {
		fmt.Fprintf(os.Stderr, "abicheck: %d index constants but %d table entries\n",
			len(indexNames), len(entries))
		os.Exit(1)
	}

	failed := false
	for i, constName := range indexNames {
		want := handlerName(constName)
		got := entries[i]
		if got != want {
			fmt.Fprintf(os.Stderr, "abicheck: table[%d] = %s, want %s (for constant %s)\n",
				i, got, want, constName)
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}

	fmt.Printf("abicheck: %d dispatch entries match their index constants\n", len(entries))
}

// handlerName derives the expected handler function name from an index
// constant's name: Terminate -> terminate, AcquireFramebuffer ->
// acquireFramebuffer.
func handlerName(constName string) string {
	if constName == "" {
		return constName
	}
	return strings.ToLower(constName[:1]) + constName[1:]
}

// indexConstants returns the names of the syscall-index constants, in
// declaration order, by walking the iota const block that starts with
// "Terminate".
func indexConstants(pkg *packages.Package) ([]string, error) {
	var names []string

	for _, file := range pkg.Syntax {
		for _, decl := range file.Decls {
			gd, ok := decl.(*ast.GenDecl)
			if !ok || gd.Tok.String() != "const" {
				continue
			}
			for _, spec := range gd.Specs {
				vs, ok := spec.(*ast.ValueSpec)
				if !ok {
					continue
				}
				for _, n := range vs.Names {
					if n.Name == "Terminate" || len(names) > 0 {
						names = append(names, n.Name)
					}
				}
			}
			if len(names) > 0 {
				return names, nil
			}
		}
	}
	return nil, fmt.Errorf("no const block defining Terminate found")
}

// tableEntries returns the handler function names assigned to each
// index of the "table" composite literal, in table order.
func tableEntries(pkg *packages.Package) ([]string, error) {
	var result []string

	for _, file := range pkg.Syntax {
		for _, decl := range file.Decls {
			gd, ok := decl.(*ast.GenDecl)
			if !ok || gd.Tok.String() != "var" {
				continue
			}
			for _, spec := range gd.Specs {
				vs, ok := spec.(*ast.ValueSpec)
				if !ok {
					continue
				}
				for i, n := range vs.Names {
					if n.Name != "table" {
						continue
					}
					lit, ok := vs.Values[i].(*ast.CompositeLit)
					if !ok {
						continue
					}
					return compositeLitHandlers(lit)
				}
			}
		}
	}

	return result, fmt.Errorf("no \"table\" composite literal found")
}

func compositeLitHandlers(lit *ast.CompositeLit) ([]string, error) {
	entries := map[string]string{}
	order := []string{}

	for _, elt := range lit.Elts {
		kv, ok := elt.(*ast.KeyValueExpr)
		if !ok {
			return nil, fmt.Errorf("table entries must be keyed (index: handler)")
		}
		key, ok := kv.Key.(*ast.Ident)
		if !ok {
			return nil, fmt.Errorf("table key is not a plain identifier")
		}
		val, ok := kv.Value.(*ast.Ident)
		if !ok {
			return nil, fmt.Errorf("table value is not a plain identifier")
		}
		entries[key.Name] = val.Name
		order = append(order, key.Name)
	}

	var out []string
	for _, k := range order {
		out = append(out, entries[k])
	}
	return out, nil
}
