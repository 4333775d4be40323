package behavior

import (
	"fmt"

	"go-shpn-core/internal/expression"
	"go-shpn-core/internal/models"
)

// Build constructs the behavior for a transition according to its kind.
// An unknown kind or a rate/guard compile failure is returned as an
// error. The controller (sim.New) refuses to start on an unknown kind,
// and on a compile failure leaves only that transition permanently
// disabled while the rest of the net runs.
func Build(t *models.Transition, evaluator *expression.Evaluator) (Behavior, error) {
	switch t.Kind {
	case models.TransitionKindImmediate:
		return NewImmediate(t, evaluator)
	case models.TransitionKindTimed:
		return NewTimed(t, evaluator)
	case models.TransitionKindStochastic:
		return NewStochastic(t, evaluator)
	case models.TransitionKindContinuous:
		return NewContinuous(t, evaluator)
	default:
		return nil, fmt.Errorf("transition %s: unknown transition kind %q", t.ID, t.Kind)
	}
}
