package behavior

import (
	"math"
	"testing"

	"golang.org/x/exp/rand"

	"go-shpn-core/internal/adapter"
	"go-shpn-core/internal/expression"
	"go-shpn-core/internal/models"
)

// newTestAdapter builds a model+adapter pair with an evaluator scoped to
// the model's own place IDs, mirroring how Controller.New wires things.
func newTestAdapter(m *models.Model, seed uint64) *adapter.Adapter {
	names := make([]string, 0, len(m.Places))
	for _, p := range m.Places {
		names = append(names, p.ID)
	}
	eval := expression.NewEvaluator(names)
	marking := m.CreateInitialMarking()
	return adapter.New(m, marking, eval, seed)
}

func TestImmediateCanFireAndFire(t *testing.T) {
	m := models.NewModel("m", "", "")
	m.AddPlace(models.NewPlace("p1", "P1", 3))
	m.AddPlace(models.NewPlace("p2", "P2", 0))
	tr := models.NewTransition("t1", "T1", models.TransitionKindImmediate)
	m.AddTransition(tr)
	if err := m.AddArc(models.NewArc("a1", "p1", "t1", models.ArcDirectionIn, 1)); err != nil {
		t.Fatal(err)
	}
	if err := m.AddArc(models.NewArc("a2", "t1", "p2", models.ArcDirectionOut, 1)); err != nil {
		t.Fatal(err)
	}

	a := newTestAdapter(m, 1)
	defer a.Evaluator.Close()

	b, err := NewImmediate(tr, a.Evaluator)
	if err != nil {
		t.Fatalf("NewImmediate: %v", err)
	}
	can, err := b.CanFire(a, nil)
	if err != nil || !can {
		t.Fatalf("expected immediate transition to be firable, got %v %v", can, err)
	}

	res, err := b.Fire(a)
	if err != nil {
		t.Fatalf("Fire: %v", err)
	}
	if res.Consumed["p1"] != 1 {
		t.Errorf("expected 1 token consumed from p1, got %g", res.Consumed["p1"])
	}
	if res.Produced["p2"] != 1 {
		t.Errorf("expected 1 token produced at p2, got %g", res.Produced["p2"])
	}
}

func TestImmediateSkipsInhibitorAndTestConsumption(t *testing.T) {
	m := models.NewModel("m", "", "")
	m.AddPlace(models.NewPlace("p1", "P1", 5)) // inhibited place
	m.AddPlace(models.NewPlace("p2", "P2", 3)) // test-guarded place
	m.AddPlace(models.NewPlace("p3", "P3", 0))
	tr := models.NewTransition("t1", "T1", models.TransitionKindImmediate)
	m.AddTransition(tr)

	inhibitor := models.NewArc("a1", "p1", "t1", models.ArcDirectionIn, 10) // threshold 10, never blocks
	inhibitor.Kind = models.ArcKindInhibitor
	if err := m.AddArc(inhibitor); err != nil {
		t.Fatal(err)
	}
	test := models.NewArc("a2", "p2", "t1", models.ArcDirectionIn, 1)
	test.Kind = models.ArcKindTest
	if err := m.AddArc(test); err != nil {
		t.Fatal(err)
	}
	if err := m.AddArc(models.NewArc("a3", "t1", "p3", models.ArcDirectionOut, 1)); err != nil {
		t.Fatal(err)
	}

	a := newTestAdapter(m, 1)
	defer a.Evaluator.Close()

	b, err := NewImmediate(tr, a.Evaluator)
	if err != nil {
		t.Fatalf("NewImmediate: %v", err)
	}
	can, err := b.CanFire(a, nil)
	if err != nil || !can {
		t.Fatalf("expected transition enabled (inhibitor below threshold, test satisfied), got %v %v", can, err)
	}
	res, err := b.Fire(a)
	if err != nil {
		t.Fatalf("Fire: %v", err)
	}
	if len(res.Consumed) != 0 {
		t.Errorf("expected no consumption from test/inhibitor arcs, got %v", res.Consumed)
	}
}

func TestImmediateInhibitorBlocksAtThreshold(t *testing.T) {
	m := models.NewModel("m", "", "")
	m.AddPlace(models.NewPlace("p1", "P1", 5))
	m.AddPlace(models.NewPlace("p2", "P2", 0))
	tr := models.NewTransition("t1", "T1", models.TransitionKindImmediate)
	m.AddTransition(tr)
	inhibitor := models.NewArc("a1", "p1", "t1", models.ArcDirectionIn, 1)
	inhibitor.Kind = models.ArcKindInhibitor
	inhibitor.Threshold = 5
	if err := m.AddArc(inhibitor); err != nil {
		t.Fatal(err)
	}
	if err := m.AddArc(models.NewArc("a2", "t1", "p2", models.ArcDirectionOut, 1)); err != nil {
		t.Fatal(err)
	}

	a := newTestAdapter(m, 1)
	defer a.Evaluator.Close()

	b, err := NewImmediate(tr, a.Evaluator)
	if err != nil {
		t.Fatalf("NewImmediate: %v", err)
	}
	can, err := b.CanFire(a, nil)
	if err != nil {
		t.Fatalf("CanFire: %v", err)
	}
	if can {
		t.Errorf("expected inhibitor at threshold to block firing")
	}
}

func TestSourceSkipsConsumptionSinkSkipsProduction(t *testing.T) {
	m := models.NewModel("m", "", "")
	m.AddPlace(models.NewPlace("p1", "P1", 0))
	source := models.NewTransition("t1", "T1", models.TransitionKindImmediate)
	source.IsSource = true
	m.AddTransition(source)
	if err := m.AddArc(models.NewArc("a1", "t1", "p1", models.ArcDirectionOut, 1)); err != nil {
		t.Fatal(err)
	}

	a := newTestAdapter(m, 1)
	defer a.Evaluator.Close()
	b, err := NewImmediate(source, a.Evaluator)
	if err != nil {
		t.Fatal(err)
	}
	res, err := b.Fire(a)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Consumed) != 0 {
		t.Errorf("expected a source transition to consume nothing, got %v", res.Consumed)
	}
	if res.Produced["p1"] != 1 {
		t.Errorf("expected source to produce 1 token at p1, got %g", res.Produced["p1"])
	}
}

func TestTimedRespectsEarliestWindow(t *testing.T) {
	m := models.NewModel("m", "", "")
	m.AddPlace(models.NewPlace("p1", "P1", 1))
	m.AddPlace(models.NewPlace("p2", "P2", 0))
	tr := models.NewTransition("t1", "T1", models.TransitionKindTimed)
	tr.Earliest = 0.5
	tr.Latest = 10
	m.AddTransition(tr)
	if err := m.AddArc(models.NewArc("a1", "p1", "t1", models.ArcDirectionIn, 1)); err != nil {
		t.Fatal(err)
	}
	if err := m.AddArc(models.NewArc("a2", "t1", "p2", models.ArcDirectionOut, 1)); err != nil {
		t.Fatal(err)
	}

	a := newTestAdapter(m, 1)
	defer a.Evaluator.Close()
	b, err := NewTimed(tr, a.Evaluator)
	if err != nil {
		t.Fatal(err)
	}

	state := &models.TransitionState{}
	a.LogicalTime = 0
	b.NotifyEnabled(a, state)

	can, err := b.CanFire(a, state)
	if err != nil {
		t.Fatal(err)
	}
	if can {
		t.Errorf("expected timed transition not firable before earliest elapses")
	}

	a.LogicalTime = 0.5
	can, err = b.CanFire(a, state)
	if err != nil {
		t.Fatal(err)
	}
	if !can {
		t.Errorf("expected timed transition firable once earliest has elapsed")
	}
}

func TestStochasticBurstClampedToAvailableTokens(t *testing.T) {
	m := models.NewModel("m", "", "")
	m.AddPlace(models.NewPlace("p1", "P1", 3))
	m.AddPlace(models.NewPlace("p2", "P2", 0))
	tr := models.NewTransition("t1", "T1", models.TransitionKindStochastic)
	tr.Rate = "10"
	m.AddTransition(tr)
	if err := m.AddArc(models.NewArc("a1", "p1", "t1", models.ArcDirectionIn, 1)); err != nil {
		t.Fatal(err)
	}
	if err := m.AddArc(models.NewArc("a2", "t1", "p2", models.ArcDirectionOut, 1)); err != nil {
		t.Fatal(err)
	}

	a := newTestAdapter(m, 7)
	defer a.Evaluator.Close()
	b, err := NewStochastic(tr, a.Evaluator)
	if err != nil {
		t.Fatal(err)
	}

	state := &models.TransitionState{}
	b.NotifyEnabled(a, state)
	b.lastHoldingTime = 2.5 // forces the {6,7,8} burst band, larger than available tokens

	res, err := b.Fire(a)
	if err != nil {
		t.Fatal(err)
	}
	if res.Consumed["p1"] > 3 {
		t.Errorf("burst firing must not consume more than available tokens, consumed %g", res.Consumed["p1"])
	}
	if res.Consumed["p1"] != res.Produced["p2"] {
		t.Errorf("expected consumed/produced burst quantities to match (weight 1 on both arcs)")
	}
}

func TestStochasticNonPositiveRateNeverSchedules(t *testing.T) {
	m := models.NewModel("m", "", "")
	m.AddPlace(models.NewPlace("p1", "P1", 3))
	tr := models.NewTransition("t1", "T1", models.TransitionKindStochastic)
	tr.Rate = "0"
	m.AddTransition(tr)
	if err := m.AddArc(models.NewArc("a1", "p1", "t1", models.ArcDirectionIn, 1)); err != nil {
		t.Fatal(err)
	}

	a := newTestAdapter(m, 1)
	defer a.Evaluator.Close()
	b, err := NewStochastic(tr, a.Evaluator)
	if err != nil {
		t.Fatal(err)
	}

	state := &models.TransitionState{}
	b.NotifyEnabled(a, state)
	if state.ScheduledTime == nil || !math.IsInf(*state.ScheduledTime, 1) {
		t.Errorf("expected a non-positive rate to schedule an infinite holding time")
	}
	can, err := b.CanFire(a, state)
	if err != nil {
		t.Fatal(err)
	}
	if can {
		t.Errorf("expected a transition with an unreachable scheduled time never to fire")
	}
}

func TestContinuousClampsFlowToAvailableTokens(t *testing.T) {
	m := models.NewModel("m", "", "")
	m.AddPlace(models.NewPlace("p1", "P1", 1.0))
	m.AddPlace(models.NewPlace("p2", "P2", 0))
	tr := models.NewTransition("t1", "T1", models.TransitionKindContinuous)
	tr.Rate = "2.0"
	m.AddTransition(tr)
	if err := m.AddArc(models.NewArc("a1", "p1", "t1", models.ArcDirectionIn, 1)); err != nil {
		t.Fatal(err)
	}
	if err := m.AddArc(models.NewArc("a2", "t1", "p2", models.ArcDirectionOut, 1)); err != nil {
		t.Fatal(err)
	}

	a := newTestAdapter(m, 1)
	defer a.Evaluator.Close()
	b, err := NewContinuous(tr, a.Evaluator)
	if err != nil {
		t.Fatal(err)
	}

	res, err := b.Integrate(a, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if res.Consumed["p1"] > 1.0+1e-9 {
		t.Errorf("expected flow clamped to available tokens (<=1.0), got %g", res.Consumed["p1"])
	}
	if math.Abs(res.Consumed["p1"]-res.Produced["p2"]) > 1e-9 {
		t.Errorf("expected conserved flow between single input/output arcs of equal weight")
	}
	if math.Abs(res.Consumed["p1"]-1.0) > 1e-6 {
		t.Errorf("expected the clamp to drive p1 to exactly 0 over this tick, consumed %g", res.Consumed["p1"])
	}
}

func TestContinuousInhibitorGatesFlow(t *testing.T) {
	m := models.NewModel("m", "", "")
	m.AddPlace(models.NewPlace("p5", "P5", 5))
	m.AddPlace(models.NewPlace("p2", "P2", 0))
	tr := models.NewTransition("t9", "T9", models.TransitionKindContinuous)
	tr.Rate = "1.0"
	m.AddTransition(tr)
	if err := m.AddArc(models.NewArc("a1", "p5", "t9", models.ArcDirectionIn, 1)); err != nil {
		t.Fatal(err)
	}
	inhibitor := models.NewArc("a2", "p5", "t9", models.ArcDirectionIn, 1)
	inhibitor.Kind = models.ArcKindInhibitor
	inhibitor.Threshold = 5
	if err := m.AddArc(inhibitor); err != nil {
		t.Fatal(err)
	}
	if err := m.AddArc(models.NewArc("a3", "t9", "p2", models.ArcDirectionOut, 1)); err != nil {
		t.Fatal(err)
	}

	a := newTestAdapter(m, 1)
	defer a.Evaluator.Close()
	b, err := NewContinuous(tr, a.Evaluator)
	if err != nil {
		t.Fatal(err)
	}
	res, err := b.Integrate(a, 0.1)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Consumed) != 0 || len(res.Produced) != 0 {
		t.Errorf("expected the inhibitor at threshold to block all flow, got consumed=%v produced=%v", res.Consumed, res.Produced)
	}
}

func TestContinuousZeroRateProducesNoFlow(t *testing.T) {
	m := models.NewModel("m", "", "")
	m.AddPlace(models.NewPlace("p1", "P1", 5))
	m.AddPlace(models.NewPlace("p2", "P2", 0))
	tr := models.NewTransition("t1", "T1", models.TransitionKindContinuous)
	tr.Rate = "0"
	m.AddTransition(tr)
	if err := m.AddArc(models.NewArc("a1", "p1", "t1", models.ArcDirectionIn, 1)); err != nil {
		t.Fatal(err)
	}
	if err := m.AddArc(models.NewArc("a2", "t1", "p2", models.ArcDirectionOut, 1)); err != nil {
		t.Fatal(err)
	}

	a := newTestAdapter(m, 1)
	defer a.Evaluator.Close()
	b, err := NewContinuous(tr, a.Evaluator)
	if err != nil {
		t.Fatal(err)
	}
	res, err := b.Integrate(a, 0.1)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Consumed) != 0 || len(res.Produced) != 0 {
		t.Errorf("expected a zero rate to produce no flow, got consumed=%v produced=%v", res.Consumed, res.Produced)
	}
}

// TestContinuousNoiseWrapStaysNearAuthoredRate: a transition with rate
// noise requested flows close to, but not byte-identical to, its authored
// rate — the wiener perturbation is small and mean-zero, not a rewrite of
// the flow.
func TestContinuousNoiseWrapStaysNearAuthoredRate(t *testing.T) {
	m := models.NewModel("m", "", "")
	m.AddPlace(models.NewPlace("p1", "P1", 100))
	m.AddPlace(models.NewPlace("p2", "P2", 0))
	tr := models.NewTransition("t1", "T1", models.TransitionKindContinuous)
	tr.Rate = "1.0"
	tr.Metadata = map[string]interface{}{"noise_amplitude": 0.1}
	m.AddTransition(tr)
	if err := m.AddArc(models.NewArc("a1", "p1", "t1", models.ArcDirectionIn, 1)); err != nil {
		t.Fatal(err)
	}
	if err := m.AddArc(models.NewArc("a2", "t1", "p2", models.ArcDirectionOut, 1)); err != nil {
		t.Fatal(err)
	}

	a := newTestAdapter(m, 1)
	defer a.Evaluator.Close()
	a.Evaluator.SeedWiener(1)
	b, err := NewContinuous(tr, a.Evaluator)
	if err != nil {
		t.Fatal(err)
	}

	res, err := b.Integrate(a, 0.1)
	if err != nil {
		t.Fatal(err)
	}
	flow := res.Consumed["p1"]
	if flow <= 0 {
		t.Fatalf("expected a positive perturbed flow, got %g", flow)
	}
	// amplitude 0.1 over four stages of N(0,1) samples keeps the per-tick
	// flow well inside half-to-double the unperturbed 0.1.
	if flow < 0.05 || flow > 0.2 {
		t.Errorf("expected perturbed flow near the authored 0.1 per tick, got %g", flow)
	}
}

func TestFactoryRejectsUnknownKind(t *testing.T) {
	tr := models.NewTransition("t1", "T1", models.TransitionKind("gillespie"))
	eval := expression.NewEvaluator(nil)
	defer eval.Close()
	if _, err := Build(tr, eval); err == nil {
		t.Errorf("expected Build to reject an unknown transition kind")
	}
}

func TestFactoryBuildsEachKnownKind(t *testing.T) {
	eval := expression.NewEvaluator(nil)
	defer eval.Close()
	for _, kind := range []models.TransitionKind{
		models.TransitionKindImmediate, models.TransitionKindTimed,
		models.TransitionKindStochastic, models.TransitionKindContinuous,
	} {
		tr := models.NewTransition("t1", "T1", kind)
		b, err := Build(tr, eval)
		if err != nil {
			t.Fatalf("Build(%s): %v", kind, err)
		}
		if b.Kind() != kind {
			t.Errorf("expected built behavior to report kind %s, got %s", kind, b.Kind())
		}
	}
}

// TestAdapterRandIsUsable checks that a golang.org/x/exp/rand source seeded
// the way the adapter seeds it yields Float64 samples in [0,1).
func TestAdapterRandIsUsable(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	if r.Float64() < 0 || r.Float64() > 1 {
		t.Errorf("expected Float64 in [0,1)")
	}
}
