package models

// TransitionState is the scheduler-owned record tracking when a timed or
// stochastic transition last became enabled, and when it is next due to
// fire. The controller creates/clears these as enablement changes;
// behaviors only read and set the two fields through it.
type TransitionState struct {
	EnablementTime *float64
	ScheduledTime  *float64
}

// IsEnabled reports whether this state currently tracks an open enablement
// window. Whenever this is true, the transition must be structurally
// enabled at the current tick.
func (s *TransitionState) IsEnabled() bool {
	return s.EnablementTime != nil
}

// Clear drops both recorded times, as happens on disablement or on firing.
func (s *TransitionState) Clear() {
	s.EnablementTime = nil
	s.ScheduledTime = nil
}

// SetEnablementTime records when the transition became structurally enabled.
func (s *TransitionState) SetEnablementTime(t float64) {
	v := t
	s.EnablementTime = &v
}

// SetScheduledTime records when the transition is next due to fire.
func (s *TransitionState) SetScheduledTime(t float64) {
	v := t
	s.ScheduledTime = &v
}
