package models

import (
	"fmt"
	"strings"
)

// Model owns all places, transitions and arcs of a net, plus the
// construction-time invariants over them. It carries no simulation logic
// — that lives in the behavior and sim packages.
type Model struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Places      []*Place      `json:"places"`
	Transitions []*Transition `json:"transitions"`
	Arcs        []*Arc        `json:"arcs"`

	placeIndex      map[string]*Place
	transitionIndex map[string]*Transition
	arcIndex        map[string]*Arc
	inputArcs       map[string][]*Arc // transition ID -> input arcs
	outputArcs      map[string][]*Arc // transition ID -> output arcs
	placeArcs       map[string][]*Arc // place ID -> incident arcs
}

// NewModel creates an empty model.
func NewModel(id, name, description string) *Model {
	return &Model{
		ID:          id,
		Name:        name,
		Description: description,
	}
}

func (m *Model) ensureIndex() {
	if m.placeIndex != nil && m.transitionIndex != nil && m.arcIndex != nil {
		return
	}
	m.rebuildIndex()
}

func (m *Model) rebuildIndex() {
	m.placeIndex = make(map[string]*Place, len(m.Places))
	for _, p := range m.Places {
		m.placeIndex[p.ID] = p
	}
	m.transitionIndex = make(map[string]*Transition, len(m.Transitions))
	for _, t := range m.Transitions {
		m.transitionIndex[t.ID] = t
	}
	m.arcIndex = make(map[string]*Arc, len(m.Arcs))
	m.inputArcs = make(map[string][]*Arc)
	m.outputArcs = make(map[string][]*Arc)
	m.placeArcs = make(map[string][]*Arc)
	for _, a := range m.Arcs {
		m.arcIndex[a.ID] = a
		if a.IsInputArc() {
			m.inputArcs[a.TransitionID()] = append(m.inputArcs[a.TransitionID()], a)
		} else {
			m.outputArcs[a.TransitionID()] = append(m.outputArcs[a.TransitionID()], a)
		}
		m.placeArcs[a.PlaceID()] = append(m.placeArcs[a.PlaceID()], a)
	}
}

// AddPlace adds a place to the model.
func (m *Model) AddPlace(p *Place) {
	m.Places = append(m.Places, p)
	m.placeIndex = nil
}

// AddTransition adds a transition to the model.
func (m *Model) AddTransition(t *Transition) {
	m.Transitions = append(m.Transitions, t)
	m.transitionIndex = nil
}

// AddArc adds an arc, enforcing the bipartite invariant and the
// inhibitor-only-on-Place->Transition invariant. Every other arc
// construction path in the codebase should funnel through this method.
func (m *Model) AddArc(a *Arc) error {
	m.ensureIndex()

	sourceIsPlace := m.placeIndex[a.SourceID] != nil
	sourceIsTransition := m.transitionIndex[a.SourceID] != nil
	targetIsPlace := m.placeIndex[a.TargetID] != nil
	targetIsTransition := m.transitionIndex[a.TargetID] != nil

	switch {
	case sourceIsPlace && targetIsTransition:
		a.Direction = ArcDirectionIn
	case sourceIsTransition && targetIsPlace:
		a.Direction = ArcDirectionOut
	case sourceIsPlace && targetIsPlace:
		return fmt.Errorf("arc %s connects two places: %s -> %s", a.ID, a.SourceID, a.TargetID)
	case sourceIsTransition && targetIsTransition:
		return fmt.Errorf("arc %s connects two transitions: %s -> %s", a.ID, a.SourceID, a.TargetID)
	default:
		return fmt.Errorf("arc %s references an unknown endpoint (%s -> %s)", a.ID, a.SourceID, a.TargetID)
	}

	if a.Kind == ArcKindInhibitor && a.IsOutputArc() {
		return fmt.Errorf("arc %s: inhibitor arcs are only valid Place->Transition, not Transition->Place", a.ID)
	}
	if a.Weight <= 0 {
		a.Weight = 1
	}
	if a.Threshold <= 0 {
		a.Threshold = a.Weight
	}

	m.Arcs = append(m.Arcs, a)
	m.arcIndex = nil // force reindex of arc maps on next query
	return nil
}

// GetPlace returns the place with the given ID, or nil.
func (m *Model) GetPlace(id string) *Place {
	m.ensureIndex()
	return m.placeIndex[id]
}

// GetTransition returns the transition with the given ID, or nil.
func (m *Model) GetTransition(id string) *Transition {
	m.ensureIndex()
	return m.transitionIndex[id]
}

// GetArc returns the arc with the given ID, or nil.
func (m *Model) GetArc(id string) *Arc {
	m.ensureIndex()
	return m.arcIndex[id]
}

// InputArcs returns the Place->Transition arcs for a transition.
func (m *Model) InputArcs(transitionID string) []*Arc {
	m.ensureIndex()
	return m.inputArcs[transitionID]
}

// OutputArcs returns the Transition->Place arcs for a transition.
func (m *Model) OutputArcs(transitionID string) []*Arc {
	m.ensureIndex()
	return m.outputArcs[transitionID]
}

// ArcsForPlace returns every arc incident to a place, input or output.
func (m *Model) ArcsForPlace(placeID string) []*Arc {
	m.ensureIndex()
	return m.placeArcs[placeID]
}

// CreateInitialMarking builds a Marking from every place's InitialMarking.
func (m *Model) CreateInitialMarking() *Marking {
	marking := NewMarking()
	for _, p := range m.Places {
		marking.Set(p.ID, p.InitialMarking)
	}
	return marking
}

// ResetTo resets every place's Tokens field to its InitialMarking, and
// returns a freshly built Marking reflecting that reset (used by
// Controller.Reset).
func (m *Model) ResetTo() *Marking {
	for _, p := range m.Places {
		p.Reset()
	}
	return m.CreateInitialMarking()
}

// Validate performs the structural checks that are not already enforced
// at AddArc time (duplicate IDs, dangling transition kinds).
func (m *Model) Validate() []error {
	var errs []error

	placeIDs := make(map[string]bool)
	for _, p := range m.Places {
		if placeIDs[p.ID] {
			errs = append(errs, fmt.Errorf("duplicate place ID: %s", p.ID))
		}
		placeIDs[p.ID] = true
		if p.InitialMarking < 0 {
			errs = append(errs, fmt.Errorf("place %s has negative initial marking %g", p.Name, p.InitialMarking))
		}
	}

	transitionIDs := make(map[string]bool)
	for _, t := range m.Transitions {
		if transitionIDs[t.ID] {
			errs = append(errs, fmt.Errorf("duplicate transition ID: %s", t.ID))
		}
		transitionIDs[t.ID] = true
		switch t.Kind {
		case TransitionKindImmediate, TransitionKindTimed, TransitionKindStochastic, TransitionKindContinuous:
		default:
			errs = append(errs, fmt.Errorf("transition %s has unknown kind %q", t.Name, t.Kind))
		}
	}

	arcIDs := make(map[string]bool)
	for _, a := range m.Arcs {
		if arcIDs[a.ID] {
			errs = append(errs, fmt.Errorf("duplicate arc ID: %s", a.ID))
		}
		arcIDs[a.ID] = true
		if !placeIDs[a.PlaceID()] {
			errs = append(errs, fmt.Errorf("arc %s references non-existent place: %s", a.ID, a.PlaceID()))
		}
		if !transitionIDs[a.TransitionID()] {
			errs = append(errs, fmt.Errorf("arc %s references non-existent transition: %s", a.ID, a.TransitionID()))
		}
	}

	// Advisory checks: these do not reject the model, they surface
	// warning-shaped errors for the host to display.
	for _, p := range m.Places {
		if !p.IsCatalyst || p.InitialMarking >= 1 {
			continue
		}
		onlyTestArcs := true
		participates := false
		for _, a := range m.ArcsForPlace(p.ID) {
			participates = true
			if a.Kind != ArcKindTest {
				onlyTestArcs = false
				break
			}
		}
		// A catalyst reachable only through test arcs can never satisfy
		// its presence guards when it starts below one token.
		if participates && onlyTestArcs {
			errs = append(errs, fmt.Errorf("warning: catalyst place %s starts with %g tokens; its test-arc transitions can never enable", p.Name, p.InitialMarking))
		}
	}
	for _, t := range m.Transitions {
		if t.IsSource && len(m.InputArcs(t.ID)) > 0 {
			errs = append(errs, fmt.Errorf("warning: transition %s is flagged is_source but has input arcs", t.Name))
		}
		if t.IsSink && len(m.OutputArcs(t.ID)) > 0 {
			errs = append(errs, fmt.Errorf("warning: transition %s is flagged is_sink but has output arcs", t.Name))
		}
	}

	return errs
}

// String returns a human-readable representation of the model.
func (m *Model) String() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("Model{ID: %s, Name: %s}", m.ID, m.Name))
	parts = append(parts, fmt.Sprintf("  Places: %d", len(m.Places)))
	parts = append(parts, fmt.Sprintf("  Transitions: %d", len(m.Transitions)))
	parts = append(parts, fmt.Sprintf("  Arcs: %d", len(m.Arcs)))
	return strings.Join(parts, "\n")
}

// Clone creates a deep copy of the model.
func (m *Model) Clone() *Model {
	clone := NewModel(m.ID, m.Name, m.Description)
	clone.Places = make([]*Place, len(m.Places))
	for i, p := range m.Places {
		clone.Places[i] = p.Clone()
	}
	clone.Transitions = make([]*Transition, len(m.Transitions))
	for i, t := range m.Transitions {
		clone.Transitions[i] = t.Clone()
	}
	clone.Arcs = make([]*Arc, len(m.Arcs))
	for i, a := range m.Arcs {
		clone.Arcs[i] = a.Clone()
	}
	return clone
}
