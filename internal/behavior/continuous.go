package behavior

import (
	"fmt"

	"go-shpn-core/internal/adapter"
	"go-shpn-core/internal/expression"
	"go-shpn-core/internal/models"
)

// flowArc pairs a place with its signed stoichiometric coefficient for
// this transition: +weight on outputs, -weight on inputs, test/inhibitor
// arcs excluded since they never consume or produce.
type flowArc struct {
	placeID string
	stoich  float64
}

// ContinuousBehavior models a continuous flow: a rate expression R(m,t) governs
// the flow, integrated with fixed-step, fourth-order Runge-Kutta, using
// the classic 1/6, 1/3, 1/3, 1/6 weighting of the RK4 Butcher tableau.
type ContinuousBehavior struct {
	transition *models.Transition
	rateExpr   *expression.Expr
}

// DefaultNoiseAmplitude is the perturbation amplitude used when a
// transition requests rate noise without configuring one.
const DefaultNoiseAmplitude = 0.1

// NewContinuous compiles the transition's rate expression and builds a
// Continuous behavior for it. A transition carrying a "noise_amplitude"
// metadata entry (set by pathway-level heuristic estimation) has its
// authored rate wrapped as (R) * (1 + A * wiener(time)), a small mean-zero
// perturbation that keeps flows from settling into steady-state traps.
func NewContinuous(t *models.Transition, evaluator *expression.Evaluator) (*ContinuousBehavior, error) {
	source := t.Rate
	if amplitude, ok := noiseAmplitude(t); ok {
		source = fmt.Sprintf("(%s) * (1 + %g * wiener(time))", t.Rate, amplitude)
	}
	expr, err := evaluator.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("transition %s: %w", t.ID, err)
	}
	return &ContinuousBehavior{transition: t, rateExpr: expr}, nil
}

// noiseAmplitude reads the transition's noise configuration from its
// metadata: absent, false, zero or a negative number means no noise; a
// positive number is used as-is; true or any other non-numeric value means
// the default amplitude.
func noiseAmplitude(t *models.Transition) (float64, bool) {
	raw, ok := t.Metadata["noise_amplitude"]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		if v > 0 {
			return v, true
		}
		return 0, false
	case bool:
		if v {
			return DefaultNoiseAmplitude, true
		}
		return 0, false
	default:
		return DefaultNoiseAmplitude, true
	}
}

// Kind returns the continuous transition kind.
func (b *ContinuousBehavior) Kind() models.TransitionKind { return models.TransitionKindContinuous }

// gated reports whether a test or inhibitor input arc currently blocks
// this transition's flow entirely: an inhibitor at or above its threshold,
// or a test arc whose place has too few tokens. Normal input arcs are not
// a gate here (the RK4 clamp already bounds their contribution); this
// generalizes the presence/absence guard discrete behaviors use so an
// inhibitor can shut off a flow, not just a discrete fire.
func (b *ContinuousBehavior) gated(a *adapter.Adapter) bool {
	for _, arc := range a.InputArcs(b.transition.ID) {
		tokens := a.Tokens(arc.PlaceID())
		switch arc.Kind {
		case models.ArcKindTest:
			if tokens < float64(arc.Weight) {
				return true
			}
		case models.ArcKindInhibitor:
			if tokens >= float64(arc.EffectiveThreshold()) {
				return true
			}
		}
	}
	return false
}

func (b *ContinuousBehavior) flowArcs(a *adapter.Adapter) []flowArc {
	var arcs []flowArc
	if !b.transition.IsSource {
		for _, arc := range a.InputArcs(b.transition.ID) {
			if arc.ConsumesTokens() {
				arcs = append(arcs, flowArc{placeID: arc.PlaceID(), stoich: -float64(arc.Weight)})
			}
		}
	}
	if !b.transition.IsSink {
		for _, arc := range a.OutputArcs(b.transition.ID) {
			if arc.ConsumesTokens() {
				arcs = append(arcs, flowArc{placeID: arc.PlaceID(), stoich: float64(arc.Weight)})
			}
		}
	}
	return arcs
}

// rate evaluates R under a marking overlay: base values from the
// adapter's current marking, overridden at the connected places by the
// stage-local values in overlay.
func (b *ContinuousBehavior) rate(a *adapter.Adapter, overlay map[string]float64, t float64) (float64, error) {
	bindings := a.Bindings(b.transition.ID)
	for placeID, value := range overlay {
		bindings.Places[placeID] = value
	}
	bindings.Time = t
	return a.Evaluator.Eval(b.rateExpr, bindings)
}

// Integrate runs one RK4 tick over [time, time+dt], clamping the
// resulting flow so no connected place is driven negative.
func (b *ContinuousBehavior) Integrate(a *adapter.Adapter, dt float64) (FireResult, error) {
	if b.gated(a) {
		return FireResult{Consumed: map[string]float64{}, Produced: map[string]float64{}, Details: map[string]interface{}{"rate": 0.0, "gated": true}}, nil
	}

	arcs := b.flowArcs(a)
	if len(arcs) == 0 {
		return FireResult{Consumed: map[string]float64{}, Produced: map[string]float64{}, Details: map[string]interface{}{"rate": 0.0}}, nil
	}

	base := make(map[string]float64, len(arcs))
	for _, arc := range arcs {
		base[arc.placeID] = a.Tokens(arc.placeID)
	}

	r0, err := b.rate(a, base, a.Time())
	if err != nil {
		return FireResult{}, err
	}
	if r0 <= 0 {
		return FireResult{Consumed: map[string]float64{}, Produced: map[string]float64{}, Details: map[string]interface{}{"rate": r0}}, nil
	}

	// f evaluates the derivative vector (stoich * R) at a marking overlay.
	f := func(overlay map[string]float64, t float64) (map[string]float64, error) {
		r, err := b.rate(a, overlay, t)
		if err != nil {
			return nil, err
		}
		if r < 0 {
			r = 0
		}
		deriv := make(map[string]float64, len(arcs))
		for _, arc := range arcs {
			deriv[arc.placeID] = arc.stoich * r
		}
		return deriv, nil
	}

	stage := func(k map[string]float64, scale float64) map[string]float64 {
		overlay := make(map[string]float64, len(base))
		for placeID, v := range base {
			overlay[placeID] = v + scale*k[placeID]
		}
		return overlay
	}

	time := a.Time()
	k1, err := f(base, time)
	if err != nil {
		return FireResult{}, err
	}
	k2, err := f(stage(k1, dt/2), time+dt/2)
	if err != nil {
		return FireResult{}, err
	}
	k3, err := f(stage(k2, dt/2), time+dt/2)
	if err != nil {
		return FireResult{}, err
	}
	k4, err := f(stage(k3, dt), time+dt)
	if err != nil {
		return FireResult{}, err
	}

	delta := make(map[string]float64, len(arcs))
	for _, arc := range arcs {
		id := arc.placeID
		delta[id] = (dt / 6.0) * (k1[id] + 2*k2[id] + 2*k3[id] + k4[id])
	}

	// Stoichiometry-preserving clamp: scale the whole delta vector down so
	// no input place (negative stoichiometry) is driven below zero.
	scale := 1.0
	for _, arc := range arcs {
		if arc.stoich >= 0 {
			continue
		}
		d := delta[arc.placeID]
		if d >= 0 {
			continue
		}
		available := base[arc.placeID]
		if -d > available {
			candidate := available / -d
			if candidate < scale {
				scale = candidate
			}
		}
	}
	if scale < 0 {
		scale = 0
	}

	consumed := make(map[string]float64)
	produced := make(map[string]float64)
	for _, arc := range arcs {
		d := delta[arc.placeID] * scale
		if d < 0 {
			consumed[arc.placeID] += -d
		} else if d > 0 {
			produced[arc.placeID] += d
		}
	}

	return FireResult{
		Consumed: consumed,
		Produced: produced,
		Details: map[string]interface{}{
			"rate":              r0,
			"integration_steps": 4,
			"clamp_scale":       scale,
		},
	}, nil
}
