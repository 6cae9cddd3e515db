package surface

// State represents the surface runtime's position in the route lifecycle.
type State string

const (
	StateIdle       State = "idle"
	StateRouteSet   State = "route_set"
	StateAnimating  State = "animating"
	StatePickupOnly State = "pickup_only"
)

// validTransitions defines the runtime state machine. Every display message
// tears down to idle before rebuilding, so rebuild transitions all originate
// there; animation is the only transition that does not pass through idle.
var validTransitions = map[State][]State{
	StateIdle:       {StateIdle, StateRouteSet, StatePickupOnly},
	StateRouteSet:   {StateIdle, StateAnimating},
	StateAnimating:  {StateIdle, StateRouteSet},
	StatePickupOnly: {StateIdle},
}

// CanTransitionTo returns true if a transition from this state to the target is allowed.
func (s State) CanTransitionTo(target State) bool {
	allowed, exists := validTransitions[s]
	if !exists {
		return false
	}
	for _, t := range allowed {
		if t == target {
			return true
		}
	}
	return false
}

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}
