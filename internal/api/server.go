// Package api exposes a single simulation session over plain net/http: this file
// owns routing, CORS and the health/docs endpoints, handlers.go owns the
// per-endpoint logic.
package api

import (
	"log"
	"net/http"
)

// SetupRoutes registers every endpoint under /api.
func (s *Server) SetupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Model management
	mux.HandleFunc("/api/model/load", s.corsMiddleware(s.LoadModel))
	mux.HandleFunc("/api/model/get", s.corsMiddleware(s.GetModel))

	// Simulation control
	mux.HandleFunc("/api/sim/step", s.corsMiddleware(s.SimStep))
	mux.HandleFunc("/api/sim/run", s.corsMiddleware(s.SimRun))
	mux.HandleFunc("/api/sim/reset", s.corsMiddleware(s.SimReset))
	mux.HandleFunc("/api/sim/state", s.corsMiddleware(s.SimState))
	mux.HandleFunc("/api/sim/policy", s.corsMiddleware(s.SimPolicy))

	// Utility
	mux.HandleFunc("/api/health", s.corsMiddleware(s.HealthCheck))
	mux.HandleFunc("/api/docs", s.corsMiddleware(s.APIDocs))

	return mux
}

// corsMiddleware adds CORS headers to allow cross-origin requests.
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

// HealthCheck returns the health status of the API.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only GET method is allowed")
		return
	}

	s.mu.Lock()
	loaded := s.controller != nil
	s.mu.Unlock()

	status := map[string]interface{}{
		"status":  "healthy",
		"service": "go-shpn-core",
		"version": "1.0.0",
		"loaded":  loaded,
		"engine":  "gopher-lua",
	}

	s.writeSuccess(w, status, "Service is healthy")
}

// APIDocs returns API documentation.
func (s *Server) APIDocs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only GET method is allowed")
		return
	}

	docs := map[string]interface{}{
		"title":       "go-shpn-core API",
		"version":     "1.0.0",
		"description": "REST API for Stochastic Hybrid Petri Net simulation",
		"endpoints": map[string]interface{}{
			"Model Management": map[string]interface{}{
				"POST /api/model/load": "Load a model from a JSON document and reset the session",
				"GET /api/model/get":   "Return the currently loaded model",
			},
			"Simulation": map[string]interface{}{
				"POST /api/sim/step":   "Execute a single tick",
				"POST /api/sim/run":    "Execute up to max_steps ticks, optionally overriding dt",
				"POST /api/sim/reset":  "Reset to the initial marking at time zero",
				"GET /api/sim/state":   "Return logical time, marking and enabled transitions",
				"POST /api/sim/policy": "Change the conflict-resolution policy",
			},
			"Utility": map[string]interface{}{
				"GET /api/health": "Health check",
				"GET /api/docs":   "API documentation",
			},
		},
		"examples": map[string]interface{}{
			"load_model": map[string]interface{}{
				"method": "POST",
				"url":    "/api/model/load",
				"body": map[string]interface{}{
					"dt":     0.01,
					"seed":   1,
					"policy": "RANDOM",
					"model": map[string]interface{}{
						"id":          "example",
						"name":        "Example",
						"places":      []map[string]interface{}{{"id": "p1", "name": "P1", "initial_marking": 10}},
						"transitions": []map[string]interface{}{{"id": "t1", "name": "T1", "transition_type": "immediate"}},
						"arcs":        []map[string]interface{}{{"id": "a1", "source_id": "p1", "target_id": "t1", "arc_type": "normal", "weight": 1}},
					},
				},
			},
			"run": map[string]interface{}{
				"method": "POST",
				"url":    "/api/sim/run",
				"body":   map[string]interface{}{"dt": 0.01, "max_steps": 100},
			},
		},
	}

	s.writeSuccess(w, docs, "")
}

// StartServer starts the HTTP server.
func (s *Server) StartServer(port string) error {
	mux := s.SetupRoutes()

	log.Printf("Starting go-shpn-core API server on port %s", port)
	log.Printf("API documentation available at: http://localhost:%s/api/docs", port)
	log.Printf("Health check available at: http://localhost:%s/api/health", port)

	return http.ListenAndServe("0.0.0.0:"+port, mux)
}
