// Package sim implements the simulation controller: the component that
// owns logical time and drives the per-tick update over a model's
// behaviors.
package sim

import (
	"fmt"
	"log"
	"math"

	"go-shpn-core/internal/adapter"
	"go-shpn-core/internal/behavior"
	"go-shpn-core/internal/expression"
	"go-shpn-core/internal/models"
)

// DefaultDt is the default step size in time units, used whenever a
// caller constructs a controller with a non-positive dt.
const DefaultDt = 0.01

// State is the controller's lifecycle state: Idle -> Running -> Idle.
// Reset has no state of its own and leaves the state unchanged.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
)

// Controller owns the marking, logical time, behavior cache and
// conflict policy, and executes one tick of the simulation per Step call.
type Controller struct {
	model     *models.Model
	marking   *models.Marking
	evaluator *expression.Evaluator
	adapter   *adapter.Adapter

	behaviors        map[string]behavior.Behavior
	states           map[string]*models.TransitionState
	disabled         map[string]string // transition ID -> compile error; permanently disabled
	disabledNotified bool

	policy Policy
	dt     float64
	time   float64
	seed   uint64

	state         State
	listeners     *listenerRegistry
	tickListeners *tickRegistry
}

// New builds a controller for a model with the given step size, random
// seed, and conflict policy. The behavior cache is built once here. An
// unknown transition kind is an error and the controller is never
// entered; a rate/guard compile failure leaves that transition
// permanently disabled instead (the rest of the net still runs), with a
// notification emitted on the event bus at the first step.
func New(model *models.Model, dt float64, seed uint64, policy Policy) (*Controller, error) {
	if dt <= 0 {
		dt = DefaultDt
	}

	placeNames := make([]string, 0, len(model.Places))
	for _, p := range model.Places {
		placeNames = append(placeNames, p.ID)
	}
	evaluator := expression.NewEvaluator(placeNames)
	evaluator.SeedWiener(seed)

	marking := model.CreateInitialMarking()
	a := adapter.New(model, marking, evaluator, seed)

	c := &Controller{
		model:         model,
		marking:       marking,
		evaluator:     evaluator,
		adapter:       a,
		behaviors:     make(map[string]behavior.Behavior, len(model.Transitions)),
		states:        make(map[string]*models.TransitionState),
		disabled:      make(map[string]string),
		policy:        policy,
		dt:            dt,
		seed:          seed,
		state:         StateIdle,
		listeners:     newListenerRegistry(),
		tickListeners: newTickRegistry(),
	}

	for _, t := range model.Transitions {
		switch t.Kind {
		case models.TransitionKindImmediate, models.TransitionKindTimed,
			models.TransitionKindStochastic, models.TransitionKindContinuous:
		default:
			evaluator.Close()
			return nil, fmt.Errorf("transition %s: unknown transition kind %q", t.ID, t.Kind)
		}
		b, err := behavior.Build(t, evaluator)
		if err != nil {
			// Compile failure in a rate or guard expression: the transition
			// is permanently disabled, the rest of the net still runs.
			log.Printf("transition %s disabled: %v", t.ID, err)
			c.disabled[t.ID] = err.Error()
			continue
		}
		c.behaviors[t.ID] = b
		if t.IsTimeAware() {
			c.states[t.ID] = &models.TransitionState{}
		}
	}

	return c, nil
}

// DisabledTransitions returns the transitions left permanently disabled by
// a rate/guard compile failure, keyed to the compile error text.
func (c *Controller) DisabledTransitions() map[string]string {
	out := make(map[string]string, len(c.disabled))
	for id, msg := range c.disabled {
		out[id] = msg
	}
	return out
}

// SetConflictPolicy changes the policy, effective from the next Step call.
func (c *Controller) SetConflictPolicy(p Policy) {
	c.policy = p
}

// AddStepListener subscribes to step events and returns a handle for
// RemoveStepListener.
func (c *Controller) AddStepListener(l StepListener) string {
	return c.listeners.Add(l)
}

// RemoveStepListener unsubscribes a previously registered listener.
func (c *Controller) RemoveStepListener(handle string) {
	c.listeners.Remove(handle)
}

// AddTickListener subscribes to end-of-tick notifications, called with the
// new logical time after every Step whether or not anything fired.
func (c *Controller) AddTickListener(l TickListener) string {
	return c.tickListeners.Add(l)
}

// RemoveTickListener unsubscribes a previously registered tick listener.
func (c *Controller) RemoveTickListener(handle string) {
	c.tickListeners.Remove(handle)
}

// Time returns the controller's current logical time.
func (c *Controller) Time() float64 { return c.time }

// Marking returns a snapshot of the current marking, safe for the caller
// to retain.
func (c *Controller) Marking() map[string]float64 { return c.marking.Snapshot() }

// EnabledTransitions returns the IDs of every transition currently
// tracking an open enablement window, for reporting in a state snapshot.
func (c *Controller) EnabledTransitions() []string {
	var ids []string
	for id, state := range c.states {
		if state.IsEnabled() {
			ids = append(ids, id)
		}
	}
	return ids
}

// Step executes one tick of the simulation and returns whether any
// discrete transition fired.
func (c *Controller) Step() (bool, error) {
	c.adapter.LogicalTime = c.time
	c.adapter.Dt = c.dt

	var pending []StepEvent

	// Surface compile-disabled transitions to listeners once, on the first
	// tick after subscription is possible.
	if !c.disabledNotified {
		for id, msg := range c.disabled {
			t := c.model.GetTransition(id)
			pending = append(pending, newStepEvent(c.time, id, string(t.Kind), nil, nil,
				map[string]interface{}{"disabled": true, "error": msg}))
		}
		c.disabledNotified = true
	}

	// 1. Update enablement states for time-aware (timed/stochastic) behaviors.
	for _, t := range c.model.Transitions {
		if !t.IsTimeAware() {
			continue
		}
		timeAware, ok := c.behaviors[t.ID].(behavior.TimeAware)
		if !ok {
			continue
		}
		state := c.states[t.ID]
		enabled, err := c.structurallyEnabled(t)
		if err != nil {
			continue // evaluation failure: leave state as-is, treat as not newly enabled
		}
		switch {
		case enabled && !state.IsEnabled():
			timeAware.NotifyEnabled(c.adapter, state)
		case !enabled && state.IsEnabled():
			timeAware.NotifyDisabled(state)
		}
	}

	// 2. Continuous integration, applied before discrete eligibility is checked.
	for _, t := range c.model.Transitions {
		if !t.IsContinuous() {
			continue
		}
		cont, ok := c.behaviors[t.ID].(behavior.Continuous)
		if !ok {
			continue
		}
		result, err := cont.Integrate(c.adapter, c.dt)
		if err != nil {
			// Evaluation failure: the rate is treated as 0 for this tick, no
			// marking change, and listeners see the failure detail.
			pending = append(pending, newStepEvent(c.time, t.ID, string(t.Kind), nil, nil,
				map[string]interface{}{"rate": 0.0, "error": err.Error()}))
			continue
		}
		c.apply(result)
		if len(result.Consumed) > 0 || len(result.Produced) > 0 {
			pending = append(pending, newStepEvent(c.time, t.ID, string(t.Kind), result.Consumed, result.Produced, result.Details))
		}
	}

	// 3. Gather firable discrete candidates.
	var candidates []Candidate
	for _, t := range c.model.Transitions {
		if t.IsContinuous() {
			continue
		}
		discrete, ok := c.behaviors[t.ID].(behavior.Discrete)
		if !ok {
			continue
		}
		state := c.states[t.ID]
		canFire, err := discrete.CanFire(c.adapter, state)
		if err != nil || !canFire {
			continue
		}
		candidates = append(candidates, c.buildCandidate(t, state))
	}

	// 4. Resolve conflicts.
	selected := resolveConflicts(c.policy, candidates, c.marking.Snapshot(), c.adapter.Rand)

	// 5. Fire selected transitions, applying each in turn so later firings
	// in the same tick observe the marking left by earlier ones.
	fired := false
	for _, transitionID := range selected {
		t := c.model.GetTransition(transitionID)
		discrete := c.behaviors[transitionID].(behavior.Discrete)
		result, err := discrete.Fire(c.adapter)
		if err != nil {
			pending = append(pending, newStepEvent(c.time, transitionID, string(t.Kind), nil, nil,
				map[string]interface{}{"error": err.Error()}))
			continue
		}
		c.apply(result)
		fired = true
		pending = append(pending, newStepEvent(c.time, transitionID, string(t.Kind), result.Consumed, result.Produced, result.Details))

		if t.IsTimeAware() {
			c.states[transitionID].Clear()
		}
	}

	// 6. Advance time.
	c.time += c.dt
	c.adapter.LogicalTime = c.time

	// 7. Notify listeners: firing events in order (continuous flows first,
	// then discrete firings, preserving non-decreasing event timestamps),
	// then the per-tick callbacks with the new time.
	for _, event := range pending {
		c.listeners.Notify(event)
	}
	c.tickListeners.Notify(c.time)

	return fired, nil
}

// structurallyEnabled re-checks enablement using each behavior's
// precompiled guard (Timed/Stochastic both implement behavior.Guarded),
// since CanFire layers a timing check on top of structural enablement and
// isn't suitable for step 1's plain enablement check.
func (c *Controller) structurallyEnabled(t *models.Transition) (bool, error) {
	var guardExpr *expression.Expr
	if guarded, ok := c.behaviors[t.ID].(behavior.Guarded); ok {
		guardExpr = guarded.GuardExpr()
	}
	return behavior.StructurallyEnabled(c.adapter, t, guardExpr)
}

// buildCandidate derives the conflict-resolution candidate for a firable
// transition: required tokens from its consuming input arcs (using arc
// weight, not a stochastic burst multiplier, since the multiplier is only
// known once Fire is called), and the scheduling metadata each policy
// needs.
func (c *Controller) buildCandidate(t *models.Transition, state *models.TransitionState) Candidate {
	required := make(map[string]float64)
	var inputIDs []string
	for _, arc := range c.model.InputArcs(t.ID) {
		inputIDs = append(inputIDs, arc.PlaceID())
		if arc.ConsumesTokens() {
			required[arc.PlaceID()] += float64(arc.Weight)
		}
	}

	scheduledTime := unboundedSchedule
	enablementTime := c.time
	if state != nil {
		if state.ScheduledTime != nil {
			scheduledTime = *state.ScheduledTime
		}
		if state.EnablementTime != nil {
			enablementTime = *state.EnablementTime
		}
	}

	return Candidate{
		TransitionID:   t.ID,
		Priority:       t.Priority,
		ScheduledTime:  scheduledTime,
		EnablementTime: enablementTime,
		Required:       required,
		InputPlaceIDs:  inputIDs,
	}
}

// apply merges a FireResult's deltas into the marking, clamping at zero so
// rounding error never drives a place negative.
func (c *Controller) apply(result behavior.FireResult) {
	for placeID, qty := range result.Consumed {
		c.marking.Set(placeID, math.Max(0, c.marking.Get(placeID)-qty))
	}
	for placeID, qty := range result.Produced {
		c.marking.Add(placeID, qty)
	}
}

// Run drives Step repeatedly until Stop is called or maxSteps is reached
// (0 means unbounded). A positive dt overrides the configured tick size
// for this run onward; a non-positive dt keeps the current one. It
// returns the number of steps executed.
func (c *Controller) Run(dt float64, maxSteps int) (int, error) {
	if dt > 0 {
		c.dt = dt
	}
	c.state = StateRunning
	defer func() { c.state = StateIdle }()

	steps := 0
	for c.state == StateRunning {
		if maxSteps > 0 && steps >= maxSteps {
			break
		}
		if _, err := c.Step(); err != nil {
			return steps, err
		}
		steps++
	}
	return steps, nil
}

// Stop requests termination of an in-progress Run loop; the current tick
// completes before the loop exits.
func (c *Controller) Stop() {
	c.state = StateIdle
}

// Reset restores the initial marking, clears scheduling state, rebuilds
// the random source from the originally configured seed, and sets time
// back to 0.
func (c *Controller) Reset() {
	c.marking = c.model.ResetTo()
	c.adapter.Marking = c.marking
	c.adapter.Reseed(c.seed)
	c.evaluator.SeedWiener(c.seed)
	c.time = 0
	c.adapter.LogicalTime = 0
	c.disabledNotified = false
	for _, state := range c.states {
		state.Clear()
	}
}

// Close releases the evaluator's underlying Lua state.
func (c *Controller) Close() {
	c.evaluator.Close()
}
