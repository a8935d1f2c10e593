package robot

import "fmt"

// Policy decides how missed cycles between periodic updates are treated.
type Policy int

const (
	// PolicyEnforce treats any missed cycle beyond MaxMissedCycles as fatal.
	PolicyEnforce Policy = iota
	// PolicyIgnore tolerates up to MaxMissedCycles skipped cycles.
	PolicyIgnore
)

func (p Policy) String() string {
	switch p {
	case PolicyEnforce:
		return "enforce"
	case PolicyIgnore:
		return "ignore"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParsePolicy accepts "enforce" and "ignore".
func ParsePolicy(raw string) (Policy, error) {
	switch raw {
	case "enforce", "":
		return PolicyEnforce, nil
	case "ignore":
		return PolicyIgnore, nil
	default:
		return 0, fmt.Errorf("robot: unknown realtime policy %q", raw)
	}
}

// DefaultIgnoreMissedCycles is the tolerance PolicyIgnore gets when none is set.
const DefaultIgnoreMissedCycles = 20

// RealtimeConfig is the missed-cycle policy fixed at session construction.
type RealtimeConfig struct {
	Policy          Policy
	MaxMissedCycles uint64
}

// Options configures a Session. Zero fields take the DefaultOptions values.
type Options struct {
	Realtime RealtimeConfig
	Logger   StateLogger
	// MaxWaitCycles bounds the state reads spent waiting for the controller
	// to reach the modes a lifecycle operation asked for.
	MaxWaitCycles int
}

// DefaultOptions enforces the realtime policy and waits up to 10000 cycles for mode changes.
func DefaultOptions() Options {
	return Options{
		Realtime:      RealtimeConfig{Policy: PolicyEnforce},
		MaxWaitCycles: 10000,
	}
}

func (o Options) withDefaults() Options {
	if o.Realtime.Policy == PolicyIgnore && o.Realtime.MaxMissedCycles == 0 {
		o.Realtime.MaxMissedCycles = DefaultIgnoreMissedCycles
	}
	if o.Logger == nil {
		o.Logger = nopLogger{}
	}
	if o.MaxWaitCycles <= 0 {
		o.MaxWaitCycles = DefaultOptions().MaxWaitCycles
	}
	return o
}
