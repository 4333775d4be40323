// Package behavior implements the four transition behavior variants:
// immediate, timed (TPN), stochastic (FSPN) and continuous (SHPN flow).
// Each variant is built by Build (factory.go) from a *models.Transition and driven
// by the simulation controller through the Behavior interface hierarchy
// below.
package behavior

import (
	"go-shpn-core/internal/adapter"
	"go-shpn-core/internal/expression"
	"go-shpn-core/internal/models"
)

// FireResult carries the consumed/produced token deltas and any
// behavior-specific detail of a single firing, matching the step event
// schema emitted to listeners.
type FireResult struct {
	Consumed map[string]float64
	Produced map[string]float64
	Details  map[string]interface{}
}

// Behavior is implemented by every transition behavior variant.
type Behavior interface {
	Kind() models.TransitionKind
}

// Discrete is implemented by the three event-firing variants (immediate,
// timed, stochastic): each reports whether it can fire right now and
// produces the consume/produce deltas when asked to fire.
type Discrete interface {
	Behavior
	CanFire(a *adapter.Adapter, state *models.TransitionState) (bool, error)
	Fire(a *adapter.Adapter) (FireResult, error)
}

// TimeAware is implemented by the two behaviors that track an enablement
// window (timed, stochastic). The controller calls NotifyEnabled/
// NotifyDisabled as structural enablement changes, at the start of each
// step before continuous integration and discrete firing.
type TimeAware interface {
	Behavior
	NotifyEnabled(a *adapter.Adapter, state *models.TransitionState)
	NotifyDisabled(state *models.TransitionState)
}

// Continuous is implemented by the SHPN flow variant: it integrates its
// rate over one tick and returns the marking deltas directly, without a
// separate CanFire/Fire split (flow happens every tick it is enabled).
type Continuous interface {
	Behavior
	Integrate(a *adapter.Adapter, dt float64) (FireResult, error)
}

// Guarded is implemented by every Discrete behavior, exposing its
// precompiled guard expression so the controller's enablement check can
// reuse it instead of recompiling the guard per tick.
type Guarded interface {
	Behavior
	GuardExpr() *expression.Expr
}

// StructurallyEnabled reports whether a transition's enabling check is
// currently satisfied: every normal/test input arc has enough tokens,
// every inhibitor input arc's source is below its threshold, and the
// guard (if any, already compiled) is truthy. guardExpr is nil when the
// transition has no guard.
func StructurallyEnabled(a *adapter.Adapter, t *models.Transition, guardExpr *expression.Expr) (bool, error) {
	for _, arc := range a.InputArcs(t.ID) {
		tokens := a.Tokens(arc.PlaceID())
		switch arc.Kind {
		case models.ArcKindNormal, models.ArcKindTest:
			if tokens < float64(arc.Weight) {
				return false, nil
			}
		case models.ArcKindInhibitor:
			if tokens >= float64(arc.EffectiveThreshold()) {
				return false, nil
			}
		}
	}

	if guardExpr == nil {
		return true, nil
	}
	return a.Evaluator.EvalBool(guardExpr, a.Bindings(t.ID))
}

// compileGuard compiles a transition's guard once at construction time, so
// CanFire checks reuse the compiled expression instead of recompiling it
// every tick.
func compileGuard(t *models.Transition, evaluator *expression.Evaluator) (*expression.Expr, error) {
	if !t.HasGuard() {
		return nil, nil
	}
	return evaluator.Compile(t.Guard)
}

// applyFiring computes the consumed/produced maps for the shared
// Immediate/Timed firing semantics: normal input arcs are decremented
// unless the transition is a source, normal output arcs are incremented
// unless it is a sink; test and inhibitor arcs never consume.
func applyFiring(t *models.Transition, inputs, outputs []*models.Arc) FireResult {
	consumed := make(map[string]float64)
	produced := make(map[string]float64)

	if !t.IsSource {
		for _, arc := range inputs {
			if arc.ConsumesTokens() {
				consumed[arc.PlaceID()] += float64(arc.Weight)
			}
		}
	}
	if !t.IsSink {
		for _, arc := range outputs {
			if arc.ConsumesTokens() {
				produced[arc.PlaceID()] += float64(arc.Weight)
			}
		}
	}

	return FireResult{Consumed: consumed, Produced: produced, Details: map[string]interface{}{}}
}
