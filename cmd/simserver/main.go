package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go-shpn-core/internal/api"
	"go-shpn-core/internal/models"
	"go-shpn-core/internal/sim"
)

func main() {
	port := flag.String("port", "8080", "Port to run the HTTP server on")
	modelPath := flag.String("model", "", "Path to a model JSON document; with -steps > 0 runs to completion instead of serving HTTP")
	steps := flag.Int("steps", 0, "Number of ticks to run in CLI mode (requires -model)")
	dt := flag.Float64("dt", sim.DefaultDt, "Tick size in time units")
	seed := flag.Uint64("seed", 1, "Random seed for stochastic behaviors, conflict resolution and wiener()")
	policy := flag.String("policy", string(sim.PolicyRandom), "Conflict-resolution policy")
	flag.Parse()

	if *modelPath != "" && *steps > 0 {
		if err := runToCompletion(*modelPath, *steps, *dt, *seed, sim.Policy(*policy)); err != nil {
			log.Fatalf("run failed: %v", err)
		}
		return
	}

	server := api.NewServer()
	defer server.Close()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		log.Println("Shutting down server...")
		server.Close()
		os.Exit(0)
	}()

	log.Printf("go-shpn-core server starting...")
	if err := server.StartServer(*port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// runToCompletion loads a model file, drives the controller for the given
// number of ticks, and prints the final marking as JSON. It exists as a
// quick batch mode alongside the HTTP surface.
func runToCompletion(path string, steps int, dt float64, seed uint64, policy sim.Policy) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading model file: %w", err)
	}

	schema, err := models.NewModelSchema()
	if err != nil {
		return fmt.Errorf("compiling model schema: %w", err)
	}
	model, err := schema.Load(data)
	if err != nil {
		return fmt.Errorf("loading model: %w", err)
	}
	if errs := model.Validate(); len(errs) > 0 {
		for _, e := range errs {
			log.Printf("model validation: %v", e)
		}
	}

	controller, err := sim.New(model, dt, seed, policy)
	if err != nil {
		return fmt.Errorf("building controller: %w", err)
	}
	defer controller.Close()

	executed, err := controller.Run(dt, steps)
	if err != nil {
		return fmt.Errorf("running simulation: %w", err)
	}

	result := map[string]interface{}{
		"steps_executed": executed,
		"time":           controller.Time(),
		"marking":        controller.Marking(),
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
