// Package guard implements the small expression language used by chart
// guards and evaluated action properties.
//
//	isAdmin() && request.type == "publish" || !hasRequest()
//
// Precedence from loosest to tightest: ||, &&, comparisons, '!'. So
// !a == b reads (!a) == b; write !(a == b) to negate a comparison.
//
// Expressions are compiled once when a chart is loaded and evaluated against
// a read-only Env.
package guard

import (
	"fmt"
	"maps"
	"slices"
)

// Env supplies identifier values and function results during evaluation.
// Implementations must not mutate the handle they expose.
type Env interface {
	// Lookup resolves a dotted identifier. Missing values evaluate to null.
	Lookup(path []string) (any, bool)
	// Call invokes a built-in fact or a named guard.
	Call(name string, args []any) (any, error)
}

// Expr is a compiled expression.
type Expr struct {
	src  string
	root node
}

// Compile parses src.
func Compile(src string) (*Expr, error) {
	tokens, err := lex(src)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", src, err)
	}
	p := &parser{tokens: tokens}
	root, err := p.parseOr()
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", src, err)
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, fmt.Errorf("parse %q: unexpected %s at %d", src, t, t.pos)
	}
	return &Expr{src: src, root: root}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(src string) *Expr {
	e, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return e
}

// String returns the source text.
func (e *Expr) String() string { return e.src }

// Calls returns the sorted names of every function the expression calls.
func (e *Expr) Calls() []string {
	set := make(map[string]struct{})
	e.root.calls(set)
	return slices.Sorted(maps.Keys(set))
}

// Eval evaluates the expression.
func (e *Expr) Eval(env Env) (any, error) {
	return e.root.eval(env)
}

// EvalBool evaluates the expression and requires a boolean result.
func (e *Expr) EvalBool(env Env) (bool, error) {
	v, err := e.Eval(env)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%q evaluated to %s, not a boolean", e.src, describe(v))
	}
	return b, nil
}
