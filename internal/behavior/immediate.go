package behavior

import (
	"fmt"

	"go-shpn-core/internal/adapter"
	"go-shpn-core/internal/expression"
	"go-shpn-core/internal/models"
)

// Immediate fires with zero delay: firing is gated solely on structural
// enablement and the guard, with no timing window.
type Immediate struct {
	transition *models.Transition
	guardExpr  *expression.Expr
}

// NewImmediate builds an Immediate behavior for the given transition,
// compiling its guard (if any) once up front.
func NewImmediate(t *models.Transition, evaluator *expression.Evaluator) (*Immediate, error) {
	guard, err := compileGuard(t, evaluator)
	if err != nil {
		return nil, fmt.Errorf("transition %s: %w", t.ID, err)
	}
	return &Immediate{transition: t, guardExpr: guard}, nil
}

// Kind returns the immediate transition kind.
func (b *Immediate) Kind() models.TransitionKind { return models.TransitionKindImmediate }

// GuardExpr returns the precompiled guard expression, or nil if none.
func (b *Immediate) GuardExpr() *expression.Expr { return b.guardExpr }

// CanFire reports whether the transition is structurally enabled.
func (b *Immediate) CanFire(a *adapter.Adapter, _ *models.TransitionState) (bool, error) {
	return StructurallyEnabled(a, b.transition, b.guardExpr)
}

// Fire applies the standard consume/produce semantics.
func (b *Immediate) Fire(a *adapter.Adapter) (FireResult, error) {
	inputs := a.InputArcs(b.transition.ID)
	outputs := a.OutputArcs(b.transition.ID)
	return applyFiring(b.transition, inputs, outputs), nil
}
