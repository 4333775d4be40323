package models

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// modelSchemaJSON is the fixed JSON Schema for a model document. It is
// compiled once and reused for every Load call; a document failing this
// schema is rejected before the model is ever built, so the simulation
// never starts on malformed input.
const modelSchemaJSON = `{
  "type": "object",
  "required": ["places", "transitions", "arcs"],
  "properties": {
    "id": {"type": "string"},
    "name": {"type": "string"},
    "description": {"type": "string"},
    "places": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "name"],
        "properties": {
          "id": {"type": "string"},
          "name": {"type": "string"},
          "x": {"type": "number"},
          "y": {"type": "number"},
          "initial_marking": {"type": "number"},
          "is_catalyst": {"type": "boolean"}
        }
      }
    },
    "transitions": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "name", "transition_type"],
        "properties": {
          "id": {"type": "string"},
          "name": {"type": "string"},
          "x": {"type": "number"},
          "y": {"type": "number"},
          "transition_type": {"enum": ["immediate", "timed", "stochastic", "continuous"]},
          "rate": {"type": "string"},
          "guard": {"type": "string"},
          "priority": {"type": "integer"},
          "is_source": {"type": "boolean"},
          "is_sink": {"type": "boolean"},
          "earliest": {"type": "number"},
          "latest": {"type": "number"}
        }
      }
    },
    "arcs": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "source_id", "target_id", "arc_type"],
        "properties": {
          "id": {"type": "string"},
          "name": {"type": "string"},
          "source_id": {"type": "string"},
          "target_id": {"type": "string"},
          "arc_type": {"enum": ["normal", "inhibitor", "test"]},
          "weight": {"type": "integer"},
          "threshold": {"type": "integer"}
        }
      }
    }
  }
}`

// ModelSchema validates and parses a model document. It wraps one
// compiled jsonschema.Schema, built once in NewModelSchema and reused across
// every Load call so repeated model loads don't recompile the schema.
type ModelSchema struct {
	compiled *jsonschema.Schema
}

// NewModelSchema compiles the fixed model-document schema.
func NewModelSchema() (*ModelSchema, error) {
	compiler := jsonschema.NewCompiler()
	url := "mem://schemas/model.json"
	if err := compiler.AddResource(url, bytes.NewReader([]byte(modelSchemaJSON))); err != nil {
		return nil, fmt.Errorf("failed to add model schema resource: %w", err)
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("failed to compile model schema: %w", err)
	}
	return &ModelSchema{compiled: compiled}, nil
}

// Validate checks raw model JSON against the schema without parsing it into
// a Model. The jsonschema validation error is wrapped with %w, so callers
// can unwrap it to report every offending path.
func (s *ModelSchema) Validate(jsonData []byte) error {
	var doc interface{}
	if err := json.Unmarshal(jsonData, &doc); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := s.compiled.Validate(doc); err != nil {
		return fmt.Errorf("model document failed schema validation: %w", err)
	}
	return nil
}

// placeJSON, transitionJSON, arcJSON mirror the model document's wire format.
type placeJSON struct {
	ID             string                 `json:"id"`
	Name           string                 `json:"name"`
	X              float64                `json:"x"`
	Y              float64                `json:"y"`
	InitialMarking float64                `json:"initial_marking"`
	IsCatalyst     bool                   `json:"is_catalyst,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

type transitionJSON struct {
	ID             string                 `json:"id"`
	Name           string                 `json:"name"`
	X              float64                `json:"x"`
	Y              float64                `json:"y"`
	TransitionType string                 `json:"transition_type"`
	Rate           string                 `json:"rate"`
	Guard          string                 `json:"guard,omitempty"`
	Priority       int                    `json:"priority"`
	IsSource       bool                   `json:"is_source,omitempty"`
	IsSink         bool                   `json:"is_sink,omitempty"`
	Earliest       float64                `json:"earliest,omitempty"`
	Latest         float64                `json:"latest,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

type arcJSON struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	SourceID  string `json:"source_id"`
	TargetID  string `json:"target_id"`
	ArcType   string `json:"arc_type"`
	Weight    int    `json:"weight"`
	Threshold int    `json:"threshold,omitempty"`
}

// modelDocument is the document root of a model file.
type modelDocument struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Places      []placeJSON            `json:"places"`
	Transitions []transitionJSON       `json:"transitions"`
	Arcs        []arcJSON              `json:"arcs"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// Load validates jsonData against the schema, then parses it into a Model.
// IDs are read from the document, never generated; duplicates are rejected
// by Model.Validate after construction.
func (s *ModelSchema) Load(jsonData []byte) (*Model, error) {
	if err := s.Validate(jsonData); err != nil {
		return nil, err
	}

	var doc modelDocument
	if err := json.Unmarshal(jsonData, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal model document: %w", err)
	}

	model := NewModel(doc.ID, doc.Name, doc.Description)

	for _, pd := range doc.Places {
		p := NewPlace(pd.ID, pd.Name, pd.InitialMarking)
		p.IsCatalyst = pd.IsCatalyst
		p.Metadata = pd.Metadata
		model.AddPlace(p)
	}

	for _, td := range doc.Transitions {
		kind := TransitionKind(td.TransitionType)
		switch kind {
		case TransitionKindImmediate, TransitionKindTimed, TransitionKindStochastic, TransitionKindContinuous:
		default:
			return nil, fmt.Errorf("unknown transition kind %q for transition %s", td.TransitionType, td.ID)
		}
		t := NewTransition(td.ID, td.Name, kind)
		if td.Rate != "" {
			t.Rate = td.Rate
		}
		t.Guard = td.Guard
		t.Priority = td.Priority
		t.IsSource = td.IsSource
		t.IsSink = td.IsSink
		t.Earliest = td.Earliest
		t.Latest = td.Latest
		t.Metadata = td.Metadata
		model.AddTransition(t)
	}

	for _, ad := range doc.Arcs {
		var kind ArcKind
		switch ad.ArcType {
		case "normal", "":
			kind = ArcKindNormal
		case "inhibitor":
			kind = ArcKindInhibitor
		case "test":
			kind = ArcKindTest
		default:
			return nil, fmt.Errorf("unknown arc type %q for arc %s", ad.ArcType, ad.ID)
		}

		// Direction is inferred from endpoint kinds by AddArc; build with a
		// placeholder direction and let it fill in the real one.
		a := &Arc{
			ID:        ad.ID,
			SourceID:  ad.SourceID,
			TargetID:  ad.TargetID,
			Kind:      kind,
			Weight:    ad.Weight,
			Threshold: ad.Threshold,
		}
		if err := model.AddArc(a); err != nil {
			return nil, fmt.Errorf("failed to load arc %s: %w", ad.ID, err)
		}
	}

	for _, err := range model.Validate() {
		if !isWarning(err) {
			return nil, fmt.Errorf("model validation failed: %v", err)
		}
	}

	return model, nil
}

// isWarning reports whether a Model.Validate error is one of the advisory
// warnings (catalyst below one token, source/sink structure) rather than a
// hard rejection.
func isWarning(err error) bool {
	const prefix = "warning"
	msg := err.Error()
	return len(msg) >= len(prefix) && msg[:len(prefix)] == prefix
}
