package generation

// Hooks are optional lifecycle callbacks invoked around a transition.
// A non-nil error from Before or After aborts the transition flow: OnError
// runs (if set) and the error is returned to the caller.
type Hooks struct {
	// BeforeTransition runs before the state mutates.
	BeforeTransition func(from, to Status) error
	// AfterTransition runs after the state has mutated.
	AfterTransition func(from, to Status) error
	// OnError runs when either hook fails.
	OnError func(err error, from, to Status)
}

// Machine validates and applies status transitions. It is pure and
// synchronous: no I/O, no retries. Retry policy belongs to the orchestrator.
type Machine struct {
	current Status
	hooks   Hooks
}

// NewMachine creates a state machine positioned at the given status.
func NewMachine(current Status, hooks Hooks) *Machine {
	return &Machine{current: current, hooks: hooks}
}

// Current returns the machine's current status.
func (m *Machine) Current() Status {
	return m.current
}

// TransitionTo attempts to move the machine to the target status.
// It returns a KindInvalidTransition error if the target is not in the
// current status's adjacency list, leaving the state unchanged. On a valid
// target it runs BeforeTransition, mutates state, then runs AfterTransition.
// If either hook fails, OnError is invoked and the hook error is returned;
// a BeforeTransition failure leaves the state unchanged.
func (m *Machine) TransitionTo(to Status) error {
	from := m.current

	if !CanTransition(from, to) {
		return NewError(KindInvalidTransition,
			"cannot transition from "+string(from)+" to "+string(to))
	}

	if m.hooks.BeforeTransition != nil {
		if err := m.hooks.BeforeTransition(from, to); err != nil {
			if m.hooks.OnError != nil {
				m.hooks.OnError(err, from, to)
			}
			return err
		}
	}

	m.current = to

	if m.hooks.AfterTransition != nil {
		if err := m.hooks.AfterTransition(from, to); err != nil {
			if m.hooks.OnError != nil {
				m.hooks.OnError(err, from, to)
			}
			return err
		}
	}

	return nil
}
