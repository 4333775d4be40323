package expression

import (
	"math"

	lua "github.com/yuin/gopher-lua"
	"gonum.org/v1/gonum/stat/distuv"
)

// catalogueFunctions is the closed set of names an expression may call.
// checkIdentifiers in evaluator.go consults this map to reject anything
// else at compile time.
var catalogueFunctions = map[string]bool{
	"exp": true, "log": true, "sqrt": true, "sin": true, "cos": true, "pow": true,
	"min": true, "max": true, "abs": true, "floor": true, "ceil": true,
	"sigmoid": true, "michaelis_menten": true, "mass_action": true, "wiener": true,
}

// registerCatalogue installs the catalogue functions as Lua globals. It is
// the only place in the package that adds names to the Lua environment
// beyond place/time/dt bindings, keeping the surface closed to arithmetic
// and this fixed function set. wiener is bound to the caller's own sampler
// rather than a package-level one: each Evaluator (one per Controller)
// owns its own Wiener source so two simulations never share a random
// stream.
func registerCatalogue(L *lua.LState, wiener *distuv.Normal) {
	L.SetGlobal("exp", L.NewFunction(catExp))
	L.SetGlobal("log", L.NewFunction(catLog))
	L.SetGlobal("sqrt", L.NewFunction(catSqrt))
	L.SetGlobal("sin", L.NewFunction(catSin))
	L.SetGlobal("cos", L.NewFunction(catCos))
	L.SetGlobal("pow", L.NewFunction(catPow))
	L.SetGlobal("min", L.NewFunction(catMin))
	L.SetGlobal("max", L.NewFunction(catMax))
	L.SetGlobal("abs", L.NewFunction(catAbs))
	L.SetGlobal("floor", L.NewFunction(catFloor))
	L.SetGlobal("ceil", L.NewFunction(catCeil))
	L.SetGlobal("sigmoid", L.NewFunction(catSigmoid))
	L.SetGlobal("michaelis_menten", L.NewFunction(catMichaelisMenten))
	L.SetGlobal("mass_action", L.NewFunction(catMassAction))
	L.SetGlobal("wiener", L.NewFunction(func(L *lua.LState) int {
		_ = arg(L, 1)
		L.Push(lua.LNumber(wiener.Rand()))
		return 1
	}))
}

func arg(L *lua.LState, i int) float64 {
	return float64(L.CheckNumber(i))
}

func catExp(L *lua.LState) int   { L.Push(lua.LNumber(math.Exp(arg(L, 1)))); return 1 }
func catLog(L *lua.LState) int   { L.Push(lua.LNumber(math.Log(arg(L, 1)))); return 1 }
func catSqrt(L *lua.LState) int  { L.Push(lua.LNumber(math.Sqrt(arg(L, 1)))); return 1 }
func catSin(L *lua.LState) int   { L.Push(lua.LNumber(math.Sin(arg(L, 1)))); return 1 }
func catCos(L *lua.LState) int   { L.Push(lua.LNumber(math.Cos(arg(L, 1)))); return 1 }
func catFloor(L *lua.LState) int { L.Push(lua.LNumber(math.Floor(arg(L, 1)))); return 1 }
func catCeil(L *lua.LState) int  { L.Push(lua.LNumber(math.Ceil(arg(L, 1)))); return 1 }
func catAbs(L *lua.LState) int   { L.Push(lua.LNumber(math.Abs(arg(L, 1)))); return 1 }

func catPow(L *lua.LState) int {
	L.Push(lua.LNumber(math.Pow(arg(L, 1), arg(L, 2))))
	return 1
}

func catMin(L *lua.LState) int {
	result := arg(L, 1)
	for i := 2; i <= L.GetTop(); i++ {
		result = math.Min(result, arg(L, i))
	}
	L.Push(lua.LNumber(result))
	return 1
}

func catMax(L *lua.LState) int {
	result := arg(L, 1)
	for i := 2; i <= L.GetTop(); i++ {
		result = math.Max(result, arg(L, i))
	}
	L.Push(lua.LNumber(result))
	return 1
}

// catSigmoid implements sigmoid(x, center, steepness) = 1/(1+exp(-steepness*(x-center))).
func catSigmoid(L *lua.LState) int {
	x, center, steepness := arg(L, 1), arg(L, 2), arg(L, 3)
	result := 1.0 / (1.0 + math.Exp(-steepness*(x-center)))
	L.Push(lua.LNumber(result))
	return 1
}

// catMichaelisMenten implements michaelis_menten(S, vmax, km) = vmax*S/(km+S).
func catMichaelisMenten(L *lua.LState) int {
	s, vmax, km := arg(L, 1), arg(L, 2), arg(L, 3)
	var result float64
	if km+s != 0 {
		result = vmax * s / (km + s)
	}
	L.Push(lua.LNumber(result))
	return 1
}

// catMassAction implements mass_action(k, A, B, ...) = k * product(reactants).
func catMassAction(L *lua.LState) int {
	result := arg(L, 1)
	for i := 2; i <= L.GetTop(); i++ {
		result *= arg(L, i)
	}
	L.Push(lua.LNumber(result))
	return 1
}

// wiener(time) is documented on registerCatalogue, which binds it per
// Evaluator instance instead of through a package-level sampler.
