package sim

import (
	"math"
	"testing"

	"go-shpn-core/internal/models"
)

func mustAddArc(t *testing.T, m *models.Model, a *models.Arc) {
	t.Helper()
	if err := m.AddArc(a); err != nil {
		t.Fatalf("AddArc %s: %v", a.ID, err)
	}
}

// TestImmediateProducerConsumer_DrainsExactlyThreeTokens fires a single
// immediate producer/consumer pair for three ticks and checks it stops
// firing the instant its input place is exhausted.
func TestImmediateProducerConsumer_DrainsExactlyThreeTokens(t *testing.T) {
	m := models.NewModel("m", "producer-consumer", "")
	m.AddPlace(models.NewPlace("P1", "P1", 3))
	m.AddPlace(models.NewPlace("P2", "P2", 0))
	m.AddTransition(models.NewTransition("T1", "T1", models.TransitionKindImmediate))
	mustAddArc(t, m, models.NewArc("A1", "P1", "T1", models.ArcDirectionIn, 1))
	mustAddArc(t, m, models.NewArc("A2", "T1", "P2", models.ArcDirectionOut, 1))

	c, err := New(m, 0.01, 1, PolicyRandom)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	for i := 0; i < 3; i++ {
		if _, err := c.Step(); err != nil {
			t.Fatalf("Step %d: %v", i, err)
		}
	}
	marking := c.Marking()
	if marking["P1"] != 0 {
		t.Errorf("expected P1=0 after 3 steps, got %g", marking["P1"])
	}
	if marking["P2"] != 3 {
		t.Errorf("expected P2=3 after 3 steps, got %g", marking["P2"])
	}
	if math.Abs(c.Time()-0.03) > 1e-9 {
		t.Errorf("expected time=0.03 after 3 steps, got %g", c.Time())
	}

	fired, err := c.Step()
	if err != nil {
		t.Fatalf("Step 4: %v", err)
	}
	if fired {
		t.Errorf("expected step 4 to fire nothing once P1 is exhausted")
	}
	if math.Abs(c.Time()-0.04) > 1e-9 {
		t.Errorf("expected time=0.04 after step 4, got %g", c.Time())
	}
}

// TestSourceTransition_ProducesWithoutConsumingInputs fires a source
// transition repeatedly and checks its output place grows by one token
// per firing with no input side to deplete.
func TestSourceTransition_ProducesWithoutConsumingInputs(t *testing.T) {
	m := models.NewModel("m", "source-supply", "")
	m.AddPlace(models.NewPlace("P1", "P1", 0))
	source := models.NewTransition("T1", "T1", models.TransitionKindImmediate)
	source.IsSource = true
	m.AddTransition(source)
	mustAddArc(t, m, models.NewArc("A1", "T1", "P1", models.ArcDirectionOut, 1))

	c, err := New(m, 0.01, 1, PolicyRandom)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	for i := 0; i < 5; i++ {
		if _, err := c.Step(); err != nil {
			t.Fatalf("Step %d: %v", i, err)
		}
	}
	if c.Marking()["P1"] != 5 {
		t.Errorf("expected P1=5 after 5 steps, got %g", c.Marking()["P1"])
	}
	if math.Abs(c.Time()-0.05) > 1e-9 {
		t.Errorf("expected time=0.05, got %g", c.Time())
	}
}

// TestSinkTransition_DrainsInputWithoutProducing fires a sink transition
// until its input place is exhausted and checks it never produces
// anywhere and fires exactly once per available token.
func TestSinkTransition_DrainsInputWithoutProducing(t *testing.T) {
	m := models.NewModel("m", "sink-drain", "")
	m.AddPlace(models.NewPlace("P1", "P1", 5))
	sink := models.NewTransition("T1", "T1", models.TransitionKindImmediate)
	sink.IsSink = true
	m.AddTransition(sink)
	mustAddArc(t, m, models.NewArc("A1", "P1", "T1", models.ArcDirectionIn, 1))

	c, err := New(m, 0.01, 1, PolicyRandom)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	fireCount := 0
	for i := 0; i < 10; i++ {
		fired, err := c.Step()
		if err != nil {
			t.Fatalf("Step %d: %v", i, err)
		}
		if fired {
			fireCount++
		}
	}
	if c.Marking()["P1"] != 0 {
		t.Errorf("expected P1=0 once the sink drains it, got %g", c.Marking()["P1"])
	}
	if fireCount != 5 {
		t.Errorf("expected the sink to fire exactly 5 times, fired %d times", fireCount)
	}
}

// TestInhibitorRegulatesAccumulation_CutsOffContinuousFlowAtThreshold: a
// source feeds P5 every tick; a continuous transition drains P5 into P2
// while P5 is below the inhibitor threshold, then is cut off entirely
// once P5 reaches 5 — P2 must stop growing at that point even though P5
// keeps accumulating from the unconditional source, and the inhibitor
// arc itself must never consume from P5 (an inhibitor arc must not
// double as a consuming input).
func TestInhibitorRegulatesAccumulation_CutsOffContinuousFlowAtThreshold(t *testing.T) {
	m := models.NewModel("m", "inhibitor-regulation", "")
	m.AddPlace(models.NewPlace("P5", "P5", 0))
	m.AddPlace(models.NewPlace("P2", "P2", 0))

	t11 := models.NewTransition("T11", "T11", models.TransitionKindImmediate)
	t11.IsSource = true
	m.AddTransition(t11)
	mustAddArc(t, m, models.NewArc("A1", "T11", "P5", models.ArcDirectionOut, 1))

	t9 := models.NewTransition("T9", "T9", models.TransitionKindContinuous)
	t9.Rate = "1.0 * (1 - P2/10)"
	m.AddTransition(t9)
	mustAddArc(t, m, models.NewArc("A2", "P5", "T9", models.ArcDirectionIn, 1))
	inhibitor := models.NewArc("A3", "P5", "T9", models.ArcDirectionIn, 1)
	inhibitor.Kind = models.ArcKindInhibitor
	inhibitor.Threshold = 5
	mustAddArc(t, m, inhibitor)
	mustAddArc(t, m, models.NewArc("A4", "T9", "P2", models.ArcDirectionOut, 1))

	c, err := New(m, 0.01, 1, PolicyRandom)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	var p2AtThreshold float64
	crossedAt := -1
	for i := 0; i < 1000; i++ {
		if _, err := c.Step(); err != nil {
			t.Fatalf("Step %d: %v", i, err)
		}
		if c.Marking()["P5"] < 0 {
			t.Fatalf("P5 went negative at step %d: %g", i, c.Marking()["P5"])
		}
		if crossedAt < 0 && c.Marking()["P5"] >= 5 {
			crossedAt = i
			p2AtThreshold = c.Marking()["P2"]
		}
	}
	if crossedAt < 0 {
		t.Fatalf("expected P5 to cross the inhibitor threshold of 5 within 1000 ticks, reached %g", c.Marking()["P5"])
	}
	if c.Marking()["P5"] <= 5 {
		t.Errorf("expected the unconditional source to keep growing P5 past the threshold, got %g", c.Marking()["P5"])
	}
	if math.Abs(c.Marking()["P2"]-p2AtThreshold) > 1e-9 {
		t.Errorf("expected P2 to stop growing once the inhibitor cuts off T9: was %g at threshold, now %g", p2AtThreshold, c.Marking()["P2"])
	}
}

// TestStochasticBurstBound_NeverDrivesInputNegative runs a high-rate
// stochastic transition for many ticks and checks every burst firing
// stays clamped to the tokens actually available, conserving the total.
func TestStochasticBurstBound_NeverDrivesInputNegative(t *testing.T) {
	m := models.NewModel("m", "stochastic-burst", "")
	m.AddPlace(models.NewPlace("P1", "P1", 3))
	m.AddPlace(models.NewPlace("P2", "P2", 0))
	tr := models.NewTransition("T1", "T1", models.TransitionKindStochastic)
	tr.Rate = "10"
	m.AddTransition(tr)
	mustAddArc(t, m, models.NewArc("A1", "P1", "T1", models.ArcDirectionIn, 1))
	mustAddArc(t, m, models.NewArc("A2", "T1", "P2", models.ArcDirectionOut, 1))

	c, err := New(m, 0.01, 42, PolicyRandom)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	for i := 0; i < 500; i++ {
		if _, err := c.Step(); err != nil {
			t.Fatalf("Step %d: %v", i, err)
		}
		if c.Marking()["P1"] < 0 {
			t.Fatalf("P1 went negative at step %d: %g", i, c.Marking()["P1"])
		}
	}
	if c.Marking()["P1"]+c.Marking()["P2"] != 3 {
		t.Errorf("expected total tokens conserved at 3, got P1=%g P2=%g", c.Marking()["P1"], c.Marking()["P2"])
	}
}

// TestContinuousConservationAndClamp_StopsExactlyAtZero runs one RK4 tick
// of a continuous flow big enough to overdraw its input in a single step
// and checks the clamp stops the source place exactly at zero while
// still conserving the total across both places.
func TestContinuousConservationAndClamp_StopsExactlyAtZero(t *testing.T) {
	m := models.NewModel("m", "continuous-clamp", "")
	m.AddPlace(models.NewPlace("P1", "P1", 1.0))
	m.AddPlace(models.NewPlace("P2", "P2", 0))
	tr := models.NewTransition("T1", "T1", models.TransitionKindContinuous)
	tr.Rate = "2.0"
	m.AddTransition(tr)
	mustAddArc(t, m, models.NewArc("A1", "P1", "T1", models.ArcDirectionIn, 1))
	mustAddArc(t, m, models.NewArc("A2", "T1", "P2", models.ArcDirectionOut, 1))

	c, err := New(m, 0.5, 1, PolicyRandom)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	if _, err := c.Step(); err != nil {
		t.Fatalf("Step: %v", err)
	}
	p1, p2 := c.Marking()["P1"], c.Marking()["P2"]
	if p1 < -1e-9 {
		t.Errorf("expected P1 >= 0, got %g", p1)
	}
	if math.Abs(p1) > 1e-6 {
		t.Errorf("expected P1 clamped to ~0, got %g", p1)
	}
	if math.Abs(p2-1.0) > 1e-6 {
		t.Errorf("expected P2 ~= 1.0, got %g", p2)
	}
	if math.Abs((p1+p2)-1.0) > 1e-6 {
		t.Errorf("expected conservation P1+P2 ~= 1.0, got %g", p1+p2)
	}
}
