package sim

import (
	"math"
	"sort"

	"golang.org/x/exp/rand"
)

// Policy selects which firable transitions actually fire in a tick when
// more than one is eligible.
type Policy string

const (
	PolicyRandom             Policy = "RANDOM"
	PolicyEarliest           Policy = "EARLIEST"
	PolicyLatest             Policy = "LATEST"
	PolicyPriority           Policy = "PRIORITY"
	PolicyRace               Policy = "RACE"
	PolicyAge                Policy = "AGE"
	PolicyPreemptivePriority Policy = "PREEMPTIVE-PRIORITY"
)

// Candidate is one firable transition entering conflict resolution.
type Candidate struct {
	TransitionID   string
	Priority       int
	ScheduledTime  float64            // math.Inf(1) when the behavior tracks no schedule (immediate)
	EnablementTime float64            // current time when the behavior tracks no enablement (immediate)
	Required       map[string]float64 // place ID -> tokens this candidate would consume
	InputPlaceIDs  []string           // every input-arc place ID, consuming or not
}

// resolveConflicts picks the firing subset for a tick: it repeatedly
// selects one candidate (ordered/chosen by policy), reserves its required
// tokens against the marking, and drops any candidate the reservation
// would starve, until nothing remains firable. Ties within a policy's
// ordering are always broken uniformly at random.
func resolveConflicts(policy Policy, candidates []Candidate, marking map[string]float64, rng *rand.Rand) []string {
	pool := append([]Candidate(nil), candidates...)
	reserved := make(map[string]float64)
	var selected []string

	firable := func(c Candidate) bool {
		for placeID, need := range c.Required {
			if marking[placeID]-reserved[placeID] < need {
				return false
			}
		}
		return true
	}

	for len(pool) > 0 {
		var live []Candidate
		for _, c := range pool {
			if firable(c) {
				live = append(live, c)
			}
		}
		if len(live) == 0 {
			break
		}

		chosen := choose(policy, live, rng)
		selected = append(selected, chosen.TransitionID)
		for placeID, need := range chosen.Required {
			reserved[placeID] += need
		}

		next := pool[:0]
		for _, c := range pool {
			if c.TransitionID == chosen.TransitionID {
				continue
			}
			if policy == PolicyPreemptivePriority && sharesInput(chosen, c) && c.Priority < chosen.Priority {
				continue // dropped for this tick regardless of token sufficiency
			}
			next = append(next, c)
		}
		pool = next
	}

	return selected
}

func sharesInput(a, b Candidate) bool {
	set := make(map[string]bool, len(a.InputPlaceIDs))
	for _, id := range a.InputPlaceIDs {
		set[id] = true
	}
	for _, id := range b.InputPlaceIDs {
		if set[id] {
			return true
		}
	}
	return false
}

// choose picks a single candidate from a currently-firable pool according
// to the policy's ordering, breaking ties uniformly at random.
func choose(policy Policy, live []Candidate, rng *rand.Rand) Candidate {
	switch policy {
	case PolicyEarliest, PolicyRace:
		sortStable(live, func(i, j int) bool {
			if live[i].ScheduledTime != live[j].ScheduledTime {
				return live[i].ScheduledTime < live[j].ScheduledTime
			}
			return live[i].Priority > live[j].Priority
		})
	case PolicyLatest:
		sortStable(live, func(i, j int) bool {
			if live[i].ScheduledTime != live[j].ScheduledTime {
				return live[i].ScheduledTime > live[j].ScheduledTime
			}
			return live[i].Priority > live[j].Priority
		})
	case PolicyPriority, PolicyPreemptivePriority:
		sortStable(live, func(i, j int) bool {
			return live[i].Priority > live[j].Priority
		})
	case PolicyAge:
		sortStable(live, func(i, j int) bool {
			return live[i].EnablementTime < live[j].EnablementTime
		})
	case PolicyRandom:
		// no ordering: every candidate is tied, fall through to the
		// random tie-break below over the whole pool.
	default:
		// unrecognised policy tags behave like RANDOM rather than
		// rejecting the tick.
	}

	top := topTiedGroup(policy, live)
	return top[rng.Intn(len(top))]
}

// topTiedGroup returns every candidate tied for first place under the
// policy's ordering key, so the final pick among them is uniform random.
func topTiedGroup(policy Policy, sorted []Candidate) []Candidate {
	if policy == PolicyRandom || len(sorted) <= 1 {
		return sorted
	}
	first := sorted[0]
	group := []Candidate{first}
	for _, c := range sorted[1:] {
		if tied(policy, first, c) {
			group = append(group, c)
		} else {
			break
		}
	}
	return group
}

func tied(policy Policy, a, b Candidate) bool {
	switch policy {
	case PolicyEarliest, PolicyRace, PolicyLatest:
		return a.ScheduledTime == b.ScheduledTime && a.Priority == b.Priority
	case PolicyPriority, PolicyPreemptivePriority:
		return a.Priority == b.Priority
	case PolicyAge:
		return a.EnablementTime == b.EnablementTime
	default:
		return true
	}
}

func sortStable(c []Candidate, less func(i, j int) bool) {
	sort.SliceStable(c, less)
}

// unboundedSchedule is the scheduled-time sentinel for candidates whose
// behavior tracks no schedule (immediate transitions).
var unboundedSchedule = math.Inf(1)
