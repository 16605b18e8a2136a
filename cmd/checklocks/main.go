// Command checklocks is a go/analysis-based static check of this
// kernel's one cross-package locking invariant (SPEC_FULL §9, "the
// single most subtle invariant in the design"): no guard bound from an
// x.Lock() call may still be held at a call to swtch.Switch (or sched's
// switchFunc seam) unless an x.HandOff.Store(...) call has handed it to
// the slot first. It does not check that a HandOff store is preceded
// by the lock acquisition it hands off. Ground: biscuit's own
// misc/depgraph (a host tool that shells out to `go` and walks its
// output) is the only analysis-adjacent tool in the pack; this follows
// the same "small, single-purpose host command" shape but does its
// walking with golang.org/x/tools/go/analysis instead of exec.Command,
// the teacher's own direct dependency.
package main

import (
	"go/ast"

	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/passes/inspect"
	"golang.org/x/tools/go/analysis/singlechecker"
	"golang.org/x/tools/go/ast/inspector"
)

var Analyzer = &analysis.Analyzer{
	Name:     "checklocks",
	Doc:      "flags swtch.Switch calls made while a klock guard acquired via TCB.Lock is still held, other than through the HandOff slot",
	Requires: []*analysis.Analyzer{inspect.Analyzer},
	Run:      run,
}

func main() {
	singlechecker.Main(Analyzer)
}

// run hands every function body to checkFunc, whose locked map tracks
// the identifiers bound to an x.Lock() call result that have not yet
// been released by an Unlock() call on that identifier, in source
// order; an x.HandOff.Store(...) call hands every guard still held to
// the slot and empties the map. This is a syntactic
// approximation of the real data-flow property — good enough to catch
// the mechanical mistake (a Switch call pasted in before the Unlock it
// should follow) without needing full points-to analysis.
func run(pass *analysis.Pass) (any, error) {
	insp := pass.ResultOf[inspect.Analyzer].(*inspector.Inspector)
	nodeFilter := []ast.Node{(*ast.FuncDecl)(nil)}

	insp.Preorder(nodeFilter, func(n ast.Node) {
		fn, ok := n.(*ast.FuncDecl)
		if !ok || fn.Body == nil {
			return
		}
		checkFunc(pass, fn)
	})

	return nil, nil
}

func checkFunc(pass *analysis.Pass, fn *ast.FuncDecl) {
	locked := map[string]bool{}

	ast.Inspect(fn.Body, func(n ast.Node) bool {
		assign, ok := n.(*ast.AssignStmt)
		if ok && len(assign.Rhs) == 1 {
			if isLockCall(assign.Rhs[0]) && len(assign.Lhs) >= 1 {
				if id, ok := assign.Lhs[0].(*ast.Ident); ok && id.Name != "_" {
					locked[id.Name] = true
				}
			}
		}

		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}

		if recv := unlockReceiver(call); recv != "" {
			delete(locked, recv)
		}

		if sel, ok := call.Fun.(*ast.SelectorExpr); ok && sel.Sel.Name == "Store" {
			if slot, ok := sel.X.(*ast.SelectorExpr); ok && slot.Sel.Name == "HandOff" {
				clear(locked)
			}
		}

		if isSwitchCall(call) && len(locked) > 0 {
			pass.Reportf(call.Pos(), "swtch.Switch called while %d lock guard(s) from TCB.Lock remain held (%v); Unlock before switching, or hand off via HandOff", len(locked), sortedKeys(locked))
		}

		return true
	})
}

// isLockCall reports whether expr is a call of the form x.Lock().
func isLockCall(expr ast.Expr) bool {
	call, ok := expr.(*ast.CallExpr)
	if !ok {
		return false
	}
	sel, ok := call.Fun.(*ast.SelectorExpr)
	return ok && sel.Sel.Name == "Lock"
}

// unlockReceiver returns the receiver identifier name of an x.Unlock()
// call, or "" if call is not one.
func unlockReceiver(call *ast.CallExpr) string {
	sel, ok := call.Fun.(*ast.SelectorExpr)
	if !ok || sel.Sel.Name != "Unlock" {
		return ""
	}
	if id, ok := sel.X.(*ast.Ident); ok {
		return id.Name
	}
	return ""
}

// isSwitchCall reports whether call invokes switchFunc(...) or
// swtch.Switch(...), the two spellings this kernel's sources use for
// the context-switch primitive (internal/sched's override seam and a
// direct call, respectively).
func isSwitchCall(call *ast.CallExpr) bool {
	switch fun := call.Fun.(type) {
	case *ast.Ident:
		return fun.Name == "switchFunc"
	case *ast.SelectorExpr:
		return fun.Sel.Name == "Switch"
	}
	return false
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}
