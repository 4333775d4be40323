// Package expression compiles and evaluates rate and guard expressions
// using an embedded gopher-lua interpreter that never loads the
// standard library, so the authored expressions can only reach arithmetic
// and the fixed function catalogue in catalogue.go.
package expression

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// Bindings is the per-evaluation variable environment: place names bound to
// their current tokens, plus the reserved time/dt identifiers.
type Bindings struct {
	Places map[string]float64
	Time   float64
	Dt     float64
}

// identifierPattern extracts bare identifiers from an expression so compile
// can reject names the evaluator doesn't know about, up front: an
// unrecognised identifier is a compile-time error, not a runtime surprise.
var identifierPattern = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

var reservedWords = map[string]bool{
	"and": true, "or": true, "not": true, "true": true, "false": true, "nil": true,
	"time": true, "dt": true,
}

// Evaluator owns one Lua state shared by every compiled expression. A
// fresh state is created with NewEvaluator; lua.OpenLibs is deliberately
// never called, so no os/io/require surface is reachable from expression
// text.
type Evaluator struct {
	L         *lua.LState
	knownVars map[string]bool // place names declared at construction
	wiener    *distuv.Normal  // owned by this Evaluator, never shared across runs
}

// NewEvaluator creates an evaluator whose known variable set is the given
// place names (used to validate expressions at compile time). Each Evaluator
// owns its own Wiener sampler rather than reaching for a package-level one,
// so two Controllers running concurrently never share a random stream.
func NewEvaluator(placeNames []string) *Evaluator {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})

	e := &Evaluator{
		L:         L,
		knownVars: make(map[string]bool, len(placeNames)),
		wiener:    &distuv.Normal{Mu: 0, Sigma: 1, Src: rand.NewSource(1)},
	}
	for _, n := range placeNames {
		e.knownVars[n] = true
	}
	registerCatalogue(L, e.wiener)
	return e
}

// SeedWiener reseeds this evaluator's Wiener sampler, keeping it in step
// with the controller's own reseed on Reset.
func (e *Evaluator) SeedWiener(seed uint64) {
	e.wiener.Src = rand.NewSource(seed)
}

// Close releases the underlying Lua state.
func (e *Evaluator) Close() {
	if e.L != nil {
		e.L.Close()
	}
}

// Expr is a compiled expression ready for repeated evaluation. Compiling
// once and reusing the resulting function avoids re-parsing and
// re-resolving identifier names on every tick.
type Expr struct {
	source string
	proto  *lua.FunctionProto
}

// Compile validates and compiles an expression string. Unknown identifiers
// (anything that isn't a place name, a reserved word, or a catalogue
// function) are rejected here, before the transition is ever scheduled —
// this realises the "compile failure" row of the error taxonomy.
func (e *Evaluator) Compile(source string) (*Expr, error) {
	if strings.TrimSpace(source) == "" {
		return nil, fmt.Errorf("expression is empty")
	}
	if err := e.checkIdentifiers(source); err != nil {
		return nil, err
	}

	chunk := "return " + source
	lfunc, err := e.L.LoadString(chunk)
	if err != nil {
		return nil, fmt.Errorf("failed to compile expression %q: %w", source, err)
	}

	return &Expr{source: source, proto: lfunc.Proto}, nil
}

// checkIdentifiers rejects any bare name in source that is neither a
// catalogue function, a reserved word, nor a declared place. A match whose
// preceding character is a digit or a dot is the exponent suffix of a
// numeric literal (1e-5, 2.5E3), not an identifier.
func (e *Evaluator) checkIdentifiers(source string) error {
	for _, loc := range identifierPattern.FindAllStringIndex(source, -1) {
		if loc[0] > 0 {
			prev := source[loc[0]-1]
			if (prev >= '0' && prev <= '9') || prev == '.' {
				continue
			}
		}
		match := source[loc[0]:loc[1]]
		if reservedWords[match] || catalogueFunctions[match] || e.knownVars[match] {
			continue
		}
		return fmt.Errorf("unrecognised identifier %q in expression %q", match, source)
	}
	return nil
}

// Eval evaluates a compiled expression under the given bindings and
// returns the numeric result. A non-finite result (NaN/Inf) is reported
// to the caller as an error so the controller can demote the rate to 0 for
// this tick instead of propagating a bad value into the marking.
func (e *Evaluator) Eval(expr *Expr, b Bindings) (float64, error) {
	e.bind(b)

	lfunc := e.L.NewFunctionFromProto(expr.proto)
	e.L.Push(lfunc)
	if err := e.L.PCall(0, 1, nil); err != nil {
		return 0, fmt.Errorf("failed to evaluate expression %q: %w", expr.source, err)
	}
	result := e.L.Get(-1)
	e.L.Pop(1)

	num, ok := result.(lua.LNumber)
	if !ok {
		return 0, fmt.Errorf("expression %q did not return a number, got %s", expr.source, result.Type().String())
	}
	f := float64(num)
	if isNonFinite(f) {
		return 0, fmt.Errorf("expression %q evaluated to a non-finite value", expr.source)
	}
	return f, nil
}

// EvalBool evaluates a compiled guard expression and coerces the result to
// a boolean following Lua truthiness (nil and false are falsy).
func (e *Evaluator) EvalBool(expr *Expr, b Bindings) (bool, error) {
	e.bind(b)

	lfunc := e.L.NewFunctionFromProto(expr.proto)
	e.L.Push(lfunc)
	if err := e.L.PCall(0, 1, nil); err != nil {
		return false, fmt.Errorf("failed to evaluate guard %q: %w", expr.source, err)
	}
	result := e.L.Get(-1)
	e.L.Pop(1)

	return lua.LVAsBool(result), nil
}

func (e *Evaluator) bind(b Bindings) {
	for name, value := range b.Places {
		e.L.SetGlobal(name, lua.LNumber(value))
	}
	e.L.SetGlobal("time", lua.LNumber(b.Time))
	e.L.SetGlobal("dt", lua.LNumber(b.Dt))
}

func isNonFinite(f float64) bool {
	return math.IsNaN(f) || math.IsInf(f, 0)
}
