package behavior

import (
	"fmt"
	"math"

	"go-shpn-core/internal/adapter"
	"go-shpn-core/internal/expression"
	"go-shpn-core/internal/models"
)

// burstBand is one row of the holding-time -> burst-multiplier table.
type burstBand struct {
	upperBound float64 // inclusive upper bound of holding_time for this band; +Inf for the last row
	choices    []int
}

var burstTable = []burstBand{
	{upperBound: 0.2, choices: []int{1}},
	{upperBound: 0.5, choices: []int{1, 2}},
	{upperBound: 1.0, choices: []int{2, 3, 4}},
	{upperBound: 2.0, choices: []int{4, 5, 6}},
	{upperBound: math.Inf(1), choices: []int{6, 7, 8}},
}

func burstChoicesFor(holdingTime float64) []int {
	for _, band := range burstTable {
		if holdingTime <= band.upperBound {
			return band.choices
		}
	}
	return burstTable[len(burstTable)-1].choices
}

// Stochastic implements exponential holding-time sampling at enablement,
// with burst firing sized from the sampled holding time and clamped so
// no firing drives a place negative.
type Stochastic struct {
	transition      *models.Transition
	rateExpr        *expression.Expr
	guardExpr       *expression.Expr
	lastHoldingTime float64
}

// NewStochastic compiles the transition's rate expression (and guard, if
// any) and builds a Stochastic behavior for it.
func NewStochastic(t *models.Transition, evaluator *expression.Evaluator) (*Stochastic, error) {
	expr, err := evaluator.Compile(t.Rate)
	if err != nil {
		return nil, fmt.Errorf("transition %s: %w", t.ID, err)
	}
	guard, err := compileGuard(t, evaluator)
	if err != nil {
		return nil, fmt.Errorf("transition %s: %w", t.ID, err)
	}
	return &Stochastic{transition: t, rateExpr: expr, guardExpr: guard}, nil
}

// Kind returns the stochastic transition kind.
func (b *Stochastic) Kind() models.TransitionKind { return models.TransitionKindStochastic }

// GuardExpr returns the precompiled guard expression, or nil if none.
func (b *Stochastic) GuardExpr() *expression.Expr { return b.guardExpr }

// NotifyEnabled reduces the rate expression to a scalar at this instant
// and samples a holding time via inverse-CDF sampling of the exponential
// distribution, -ln(1-U)/lambda, then records the resulting scheduled
// firing time.
func (b *Stochastic) NotifyEnabled(a *adapter.Adapter, state *models.TransitionState) {
	state.SetEnablementTime(a.Time())

	lambda, err := a.Evaluator.Eval(b.rateExpr, a.Bindings(b.transition.ID))
	if err != nil || lambda <= 0 {
		// A non-positive or failed rate means this transition never fires
		// until re-enabled with a usable rate.
		b.lastHoldingTime = math.Inf(1)
		state.SetScheduledTime(math.Inf(1))
		return
	}

	u := a.Rand.Float64()
	holding := -math.Log(1-u) / lambda
	b.lastHoldingTime = holding
	state.SetScheduledTime(a.Time() + holding)
}

// NotifyDisabled clears the scheduling state.
func (b *Stochastic) NotifyDisabled(state *models.TransitionState) {
	state.Clear()
}

// CanFire reports whether the sampled holding time has elapsed and the
// transition is still structurally enabled.
func (b *Stochastic) CanFire(a *adapter.Adapter, state *models.TransitionState) (bool, error) {
	if !state.IsEnabled() || state.ScheduledTime == nil {
		return false, nil
	}
	enabled, err := StructurallyEnabled(a, b.transition, b.guardExpr)
	if err != nil || !enabled {
		return false, err
	}
	return a.Time() >= *state.ScheduledTime, nil
}

// Fire samples a burst multiplier from the holding time that scheduled
// this firing, clamps it so no input place goes negative, and scales
// consumption/production by the resulting burst.
func (b *Stochastic) Fire(a *adapter.Adapter) (FireResult, error) {
	inputs := a.InputArcs(b.transition.ID)
	outputs := a.OutputArcs(b.transition.ID)

	choices := burstChoicesFor(b.lastHoldingTime)
	burst := choices[a.Rand.Intn(len(choices))]

	if !b.transition.IsSource {
		for _, arc := range inputs {
			if !arc.ConsumesTokens() || arc.Weight <= 0 {
				continue
			}
			maxBurst := int(math.Floor(a.Tokens(arc.PlaceID()) / float64(arc.Weight)))
			if maxBurst < burst {
				burst = maxBurst
			}
		}
	}
	if burst < 0 {
		burst = 0
	}

	consumed := make(map[string]float64)
	produced := make(map[string]float64)
	if !b.transition.IsSource {
		for _, arc := range inputs {
			if arc.ConsumesTokens() {
				consumed[arc.PlaceID()] += float64(arc.Weight * burst)
			}
		}
	}
	if !b.transition.IsSink {
		for _, arc := range outputs {
			if arc.ConsumesTokens() {
				produced[arc.PlaceID()] += float64(arc.Weight * burst)
			}
		}
	}

	return FireResult{
		Consumed: consumed,
		Produced: produced,
		Details: map[string]interface{}{
			"burst":        burst,
			"holding_time": b.lastHoldingTime,
		},
	}, nil
}
