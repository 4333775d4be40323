// Package adapter provides the read-only view of a model and its marking
// that is passed to every behavior and to the formula evaluator, so
// neither has to hold a reference to the controller itself.
package adapter

import (
	"golang.org/x/exp/rand"

	"go-shpn-core/internal/expression"
	"go-shpn-core/internal/models"
)

// Adapter is a read-only façade over the model, the current marking,
// logical time, and a seeded random source. All mutation happens through
// behavior Fire results applied by the controller; the adapter itself
// never writes to the marking.
type Adapter struct {
	Model       *models.Model
	Marking     *models.Marking
	Evaluator   *expression.Evaluator
	Rand        *rand.Rand
	LogicalTime float64
	Dt          float64
}

// New creates an adapter bound to a model, its initial marking, a shared
// evaluator, and a seeded random source.
func New(model *models.Model, marking *models.Marking, evaluator *expression.Evaluator, seed uint64) *Adapter {
	return &Adapter{
		Model:     model,
		Marking:   marking,
		Evaluator: evaluator,
		Rand:      rand.New(rand.NewSource(seed)),
	}
}

// Tokens returns the current token count at a place.
func (a *Adapter) Tokens(placeID string) float64 {
	return a.Marking.Get(placeID)
}

// Time returns the controller's current logical time.
func (a *Adapter) Time() float64 {
	return a.LogicalTime
}

// StepSize returns the controller's configured dt.
func (a *Adapter) StepSize() float64 {
	return a.Dt
}

// InputArcs returns the Place->Transition arcs for a transition.
func (a *Adapter) InputArcs(transitionID string) []*models.Arc {
	return a.Model.InputArcs(transitionID)
}

// OutputArcs returns the Transition->Place arcs for a transition.
func (a *Adapter) OutputArcs(transitionID string) []*models.Arc {
	return a.Model.OutputArcs(transitionID)
}

// Bindings builds the expression.Bindings for evaluating any expression
// attached to the given transition: every place in the model bound to its
// current tokens, plus time and dt.
func (a *Adapter) Bindings(transitionID string) expression.Bindings {
	places := make(map[string]float64, len(a.Model.Places))
	for _, p := range a.Model.Places {
		places[p.ID] = a.Marking.Get(p.ID)
	}
	return expression.Bindings{
		Places: places,
		Time:   a.LogicalTime,
		Dt:     a.Dt,
	}
}

// Reseed rebinds the adapter's random source, used by Controller.Reset to
// restore reproducible replay from the originally configured seed.
func (a *Adapter) Reseed(seed uint64) {
	a.Rand = rand.New(rand.NewSource(seed))
}
