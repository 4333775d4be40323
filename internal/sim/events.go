package sim

import "github.com/google/uuid"

// StepEvent is the structured record emitted to listeners on every firing.
// The channel is a broadcast bus: the controller doesn't interpret these
// records, it only constructs and dispatches them.
type StepEvent struct {
	ID           string                 `json:"id"`
	Time         float64                `json:"time"`
	TransitionID string                 `json:"transition_id"`
	Kind         string                 `json:"kind"`
	Consumed     map[string]float64     `json:"consumed"`
	Produced     map[string]float64     `json:"produced"`
	Details      map[string]interface{} `json:"details,omitempty"`
}

// newStepEvent builds a StepEvent with a fresh correlation ID.
func newStepEvent(time float64, transitionID, kind string, consumed, produced map[string]float64, details map[string]interface{}) StepEvent {
	return StepEvent{
		ID:           uuid.NewString(),
		Time:         time,
		TransitionID: transitionID,
		Kind:         kind,
		Consumed:     consumed,
		Produced:     produced,
		Details:      details,
	}
}

// StepListener receives every StepEvent emitted during a run. Listeners
// must not mutate the model; they may only retain references.
type StepListener func(event StepEvent)

// listenerRegistry is a simple slice-backed broadcast list. Controller
// holds one of these instead of a channel because step() is synchronous
// and listeners must observe events in the exact order they fired (a
// buffered channel could reorder delivery across listeners).
type listenerRegistry struct {
	listeners []StepListener
	ids       []string
}

func newListenerRegistry() *listenerRegistry {
	return &listenerRegistry{}
}

// Add registers a listener and returns a handle usable with Remove.
func (r *listenerRegistry) Add(l StepListener) string {
	id := uuid.NewString()
	r.listeners = append(r.listeners, l)
	r.ids = append(r.ids, id)
	return id
}

// Remove unregisters a listener by its handle.
func (r *listenerRegistry) Remove(id string) {
	for i, existing := range r.ids {
		if existing == id {
			r.listeners = append(r.listeners[:i], r.listeners[i+1:]...)
			r.ids = append(r.ids[:i], r.ids[i+1:]...)
			return
		}
	}
}

// Notify dispatches an event to every registered listener, in registration
// order.
func (r *listenerRegistry) Notify(event StepEvent) {
	for _, l := range r.listeners {
		l(event)
	}
}

// TickListener is called with the new logical time at the end of every
// tick, whether or not anything fired. It is the coarse "time advanced"
// channel next to the per-firing StepEvent bus, for subscribers that
// sample the marking on a clock rather than reacting to firings.
type TickListener func(newTime float64)

type tickRegistry struct {
	listeners []TickListener
	ids       []string
}

func newTickRegistry() *tickRegistry {
	return &tickRegistry{}
}

func (r *tickRegistry) Add(l TickListener) string {
	id := uuid.NewString()
	r.listeners = append(r.listeners, l)
	r.ids = append(r.ids, id)
	return id
}

func (r *tickRegistry) Remove(id string) {
	for i, existing := range r.ids {
		if existing == id {
			r.listeners = append(r.listeners[:i], r.listeners[i+1:]...)
			r.ids = append(r.ids[:i], r.ids[i+1:]...)
			return
		}
	}
}

func (r *tickRegistry) Notify(newTime float64) {
	for _, l := range r.listeners {
		l(newTime)
	}
}
