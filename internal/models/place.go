package models

import "fmt"

// Place holds a non-negative real-valued token count and the initial
// marking it resets to. IsCatalyst does not change firing semantics: a
// catalyst on a normal arc is consumed like any other place. Model.Validate
// warns when a catalyst reachable only through test arcs starts below one
// token.
type Place struct {
	ID             string                 `json:"id"`
	Name           string                 `json:"name"`
	Tokens         float64                `json:"tokens"`
	InitialMarking float64                `json:"initialMarking"`
	IsCatalyst     bool                   `json:"isCatalyst,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// NewPlace creates a place with the given initial marking.
func NewPlace(id, name string, initialMarking float64) *Place {
	return &Place{
		ID:             id,
		Name:           name,
		Tokens:         initialMarking,
		InitialMarking: initialMarking,
	}
}

// Reset restores the place's tokens to its initial marking.
func (p *Place) Reset() {
	p.Tokens = p.InitialMarking
}

// String returns a human-readable representation of the place.
func (p *Place) String() string {
	return fmt.Sprintf("Place{ID: %s, Name: %s, Tokens: %g}", p.ID, p.Name, p.Tokens)
}

// Clone creates a copy of the place.
func (p *Place) Clone() *Place {
	clone := *p
	if p.Metadata != nil {
		clone.Metadata = make(map[string]interface{}, len(p.Metadata))
		for k, v := range p.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}
