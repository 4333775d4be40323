package behavior

import (
	"fmt"

	"go-shpn-core/internal/adapter"
	"go-shpn-core/internal/expression"
	"go-shpn-core/internal/models"
)

// Timed implements a time-window firing rule: a transition becomes
// firable once its enablement window [earliest, latest] opens, relative
// to the instant it became structurally enabled. The upper bound is
// advisory — CanFire never forces firing at latest, a choice recorded in
// DESIGN.md.
type Timed struct {
	transition *models.Transition
	guardExpr  *expression.Expr
}

// NewTimed builds a Timed behavior for the given transition, compiling
// its guard (if any) once up front.
func NewTimed(t *models.Transition, evaluator *expression.Evaluator) (*Timed, error) {
	guard, err := compileGuard(t, evaluator)
	if err != nil {
		return nil, fmt.Errorf("transition %s: %w", t.ID, err)
	}
	return &Timed{transition: t, guardExpr: guard}, nil
}

// Kind returns the timed transition kind.
func (b *Timed) Kind() models.TransitionKind { return models.TransitionKindTimed }

// GuardExpr returns the precompiled guard expression, or nil if none.
func (b *Timed) GuardExpr() *expression.Expr { return b.guardExpr }

// NotifyEnabled records the instant enablement began.
func (b *Timed) NotifyEnabled(a *adapter.Adapter, state *models.TransitionState) {
	state.SetEnablementTime(a.Time())
}

// NotifyDisabled clears the enablement window.
func (b *Timed) NotifyDisabled(state *models.TransitionState) {
	state.Clear()
}

// CanFire reports whether the transition is still structurally enabled
// and logical_time has reached enablement_time + earliest.
func (b *Timed) CanFire(a *adapter.Adapter, state *models.TransitionState) (bool, error) {
	if !state.IsEnabled() {
		return false, nil
	}
	enabled, err := StructurallyEnabled(a, b.transition, b.guardExpr)
	if err != nil || !enabled {
		return false, err
	}
	due := *state.EnablementTime + b.transition.Earliest
	return a.Time() >= due, nil
}

// Fire applies the standard consume/produce semantics, the same firing
// rule as Immediate once the timing window has opened.
func (b *Timed) Fire(a *adapter.Adapter) (FireResult, error) {
	inputs := a.InputArcs(b.transition.ID)
	outputs := a.OutputArcs(b.transition.ID)
	return applyFiring(b.transition, inputs, outputs), nil
}
