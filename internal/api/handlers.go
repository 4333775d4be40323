package api

import (
	"encoding/json"
	"net/http"
	"sync"

	"go-shpn-core/internal/models"
	"go-shpn-core/internal/sim"
)

// Server hosts a single simulation session: one loaded model driven by one
// controller. The control surface (step/run/reset/get_state) operates on
// "the" controller, not a named collection of them, so one session is all
// a host needs.
type Server struct {
	mu sync.Mutex

	schema     *models.ModelSchema
	model      *models.Model
	controller *sim.Controller

	dt     float64
	seed   uint64
	policy sim.Policy
}

// NewServer creates a new API server with no model loaded yet.
func NewServer() *Server {
	schema, err := models.NewModelSchema()
	if err != nil {
		panic("api: failed to compile model schema: " + err.Error())
	}
	return &Server{
		schema: schema,
		dt:     sim.DefaultDt,
		policy: sim.PolicyRandom,
	}
}

// Close releases the active controller's resources, if any.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.controller != nil {
		s.controller.Close()
		s.controller = nil
	}
}

// Response envelope types shared by every handler.

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

type StateResponse struct {
	Time               float64            `json:"time"`
	Marking            map[string]float64 `json:"marking"`
	EnabledTransitions []string           `json:"enabled_transitions"`
	Policy             string             `json:"policy"`
}

type StepResponse struct {
	Fired bool          `json:"fired"`
	State StateResponse `json:"state"`
}

type RunResponse struct {
	StepsExecuted int           `json:"steps_executed"`
	State         StateResponse `json:"state"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, status int, err string, message string) {
	s.writeJSON(w, status, ErrorResponse{Error: err, Message: message})
}

func (s *Server) writeSuccess(w http.ResponseWriter, data interface{}, message string) {
	s.writeJSON(w, http.StatusOK, SuccessResponse{Success: true, Data: data, Message: message})
}

// stateLocked builds a StateResponse from the currently held controller.
// Caller must hold s.mu.
func (s *Server) stateLocked() StateResponse {
	enabled := s.controller.EnabledTransitions()
	if enabled == nil {
		enabled = []string{}
	}
	return StateResponse{
		Time:               s.controller.Time(),
		Marking:            s.controller.Marking(),
		EnabledTransitions: enabled,
		Policy:             string(s.policy),
	}
}

// loadModelRequest is the body of POST /api/model/load: the model
// document plus the run-level parameters the controller needs to start.
type loadModelRequest struct {
	Model  json.RawMessage `json:"model"`
	Dt     float64         `json:"dt"`
	Seed   uint64          `json:"seed"`
	Policy string          `json:"policy"`
}

// LoadModel validates and parses a model document, then builds a fresh
// controller for it, replacing any previously loaded session.
func (s *Server) LoadModel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST method is allowed")
		return
	}

	var req loadModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_json", "Failed to parse request body: "+err.Error())
		return
	}
	if len(req.Model) == 0 {
		s.writeError(w, http.StatusBadRequest, "missing_model", "request body must include a \"model\" document")
		return
	}

	model, err := s.schema.Load(req.Model)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_model", "Failed to load model: "+err.Error())
		return
	}

	policy := sim.PolicyRandom
	if req.Policy != "" {
		policy = sim.Policy(req.Policy)
	}
	dt := req.Dt
	if dt <= 0 {
		dt = sim.DefaultDt
	}

	controller, err := sim.New(model, dt, req.Seed, policy)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "behavior_build_failed", err.Error())
		return
	}

	s.mu.Lock()
	if s.controller != nil {
		s.controller.Close()
	}
	s.model = model
	s.controller = controller
	s.dt = dt
	s.seed = req.Seed
	s.policy = policy
	state := s.stateLocked()
	s.mu.Unlock()

	s.writeSuccess(w, state, "model loaded")
}

// GetModel returns the currently loaded model document.
func (s *Server) GetModel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only GET method is allowed")
		return
	}

	s.mu.Lock()
	model := s.model
	s.mu.Unlock()

	if model == nil {
		s.writeError(w, http.StatusNotFound, "no_model_loaded", "no model has been loaded yet")
		return
	}
	s.writeSuccess(w, model, "")
}

// SimStep executes a single tick.
func (s *Server) SimStep(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST method is allowed")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.controller == nil {
		s.writeError(w, http.StatusNotFound, "no_model_loaded", "no model has been loaded yet")
		return
	}

	fired, err := s.controller.Step()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "step_failed", err.Error())
		return
	}
	s.writeSuccess(w, StepResponse{Fired: fired, State: s.stateLocked()}, "")
}

type runRequest struct {
	Dt       float64 `json:"dt"`
	MaxSteps int     `json:"max_steps"`
}

// SimRun drives the controller for up to max_steps ticks (0 is rejected;
// running over HTTP is host-bounded, unlike the library-level unbounded
// run loop). An optional positive dt overrides the tick size for this run
// onward.
func (s *Server) SimRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST method is allowed")
		return
	}

	var req runRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req) // optional body; a missing max_steps is rejected below
	}
	if req.MaxSteps <= 0 {
		s.writeError(w, http.StatusBadRequest, "invalid_max_steps", "max_steps must be a positive integer")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.controller == nil {
		s.writeError(w, http.StatusNotFound, "no_model_loaded", "no model has been loaded yet")
		return
	}

	if req.Dt > 0 {
		s.dt = req.Dt
	}
	steps, err := s.controller.Run(req.Dt, req.MaxSteps)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "run_failed", err.Error())
		return
	}
	s.writeSuccess(w, RunResponse{StepsExecuted: steps, State: s.stateLocked()}, "")
}

// SimReset restores the initial marking and resets logical time to zero.
func (s *Server) SimReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST method is allowed")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.controller == nil {
		s.writeError(w, http.StatusNotFound, "no_model_loaded", "no model has been loaded yet")
		return
	}

	s.controller.Reset()
	s.writeSuccess(w, s.stateLocked(), "reset to initial marking")
}

// SimState returns logical time, the marking and enabled transitions.
func (s *Server) SimState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only GET method is allowed")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.controller == nil {
		s.writeError(w, http.StatusNotFound, "no_model_loaded", "no model has been loaded yet")
		return
	}
	s.writeSuccess(w, s.stateLocked(), "")
}

type policyRequest struct {
	Policy string `json:"policy"`
}

// SimPolicy changes the conflict-resolution policy, effective next step.
func (s *Server) SimPolicy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST method is allowed")
		return
	}

	var req policyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_json", "Failed to parse request body: "+err.Error())
		return
	}

	switch sim.Policy(req.Policy) {
	case sim.PolicyRandom, sim.PolicyEarliest, sim.PolicyLatest, sim.PolicyPriority,
		sim.PolicyRace, sim.PolicyAge, sim.PolicyPreemptivePriority:
	default:
		s.writeError(w, http.StatusBadRequest, "invalid_policy", "unknown conflict policy: "+req.Policy)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.policy = sim.Policy(req.Policy)
	if s.controller != nil {
		s.controller.SetConflictPolicy(s.policy)
	}
	state := StateResponse{Policy: string(s.policy)}
	if s.controller != nil {
		state = s.stateLocked()
	}
	s.writeSuccess(w, state, "policy updated")
}
