// Package statemachine provides a small data-driven finite state machine.
// Machines are configured with a state set and a transition table; the
// engine validates transitions, supports forced and no-op transitions, and
// can render its configuration as a mermaid diagram for documentation.
package statemachine

import (
	"fmt"
	"sort"
	"strings"
)

// Config describes a machine: its name, state set, allowed transitions,
// and initial state.
type Config struct {
	Name        string
	States      []string
	Transitions map[string][]string
	Initial     string
}

// Machine validates state transitions against a fixed transition table.
type Machine struct {
	name        string
	states      map[string]struct{}
	stateList   []string
	transitions map[string]map[string]struct{}
	initial     string
}

// Result reports the outcome of a Transition call.
type Result struct {
	Success bool
	From    string
	To      string
	Noop    bool
	Forced  bool
	Err     error
}

// New builds a Machine from cfg. It returns an error when the configuration
// is inconsistent: empty state set, an initial or transition state not in
// the state set.
func New(cfg Config) (*Machine, error) {
	if len(cfg.States) == 0 {
		return nil, fmt.Errorf("state machine %q: no states configured", cfg.Name)
	}

	states := make(map[string]struct{}, len(cfg.States))
	for _, s := range cfg.States {
		states[s] = struct{}{}
	}

	if cfg.Initial != "" {
		if _, ok := states[cfg.Initial]; !ok {
			return nil, fmt.Errorf("state machine %q: initial state %q not in state set", cfg.Name, cfg.Initial)
		}
	}

	transitions := make(map[string]map[string]struct{}, len(cfg.Transitions))
	for from, targets := range cfg.Transitions {
		if _, ok := states[from]; !ok {
			return nil, fmt.Errorf("state machine %q: transition source %q not in state set", cfg.Name, from)
		}
		set := make(map[string]struct{}, len(targets))
		for _, to := range targets {
			if _, ok := states[to]; !ok {
				return nil, fmt.Errorf("state machine %q: transition target %q (from %q) not in state set", cfg.Name, to, from)
			}
			set[to] = struct{}{}
		}
		transitions[from] = set
	}

	list := make([]string, len(cfg.States))
	copy(list, cfg.States)

	return &Machine{
		name:        cfg.Name,
		states:      states,
		stateList:   list,
		transitions: transitions,
		initial:     cfg.Initial,
	}, nil
}

// MustNew is New but panics on a bad configuration. Machine configurations
// are compile-time constants, so a failure here is a programming error.
func MustNew(cfg Config) *Machine {
	m, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return m
}

// Name returns the machine's configured name.
func (m *Machine) Name() string { return m.name }

// Initial returns the machine's initial state, if one was configured.
func (m *Machine) Initial() string { return m.initial }

// States returns the configured state set in declaration order.
func (m *Machine) States() []string {
	out := make([]string, len(m.stateList))
	copy(out, m.stateList)
	return out
}

// IsValidState reports whether s is a member of the state set.
func (m *Machine) IsValidState(s string) bool {
	_, ok := m.states[s]
	return ok
}

// IsValidTransition reports whether from → to is allowed. A same-state
// transition is always a valid no-op.
func (m *Machine) IsValidTransition(from, to string) bool {
	if !m.IsValidState(from) || !m.IsValidState(to) {
		return false
	}
	if from == to {
		return true
	}
	targets, ok := m.transitions[from]
	if !ok {
		return false
	}
	_, ok = targets[to]
	return ok
}

// ValidTransitions returns the allowed target states from a given state,
// sorted, for help and UI surfaces. Unknown states yield nil.
func (m *Machine) ValidTransitions(from string) []string {
	targets, ok := m.transitions[from]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(targets))
	for to := range targets {
		out = append(out, to)
	}
	sort.Strings(out)
	return out
}

// Transition validates a state change and reports the outcome. Invalid
// source or target states always fail, naming the allowed state set. A
// disallowed transition fails unless force is set, in which case it
// succeeds with Forced. A same-state transition succeeds with Noop and has
// no side effect.
func (m *Machine) Transition(from, to string, force bool) Result {
	res := Result{From: from, To: to}

	if !m.IsValidState(from) {
		res.Err = fmt.Errorf("%s: invalid source state %q (valid: %s)", m.name, from, strings.Join(m.stateList, ", "))
		return res
	}
	if !m.IsValidState(to) {
		res.Err = fmt.Errorf("%s: invalid target state %q (valid: %s)", m.name, to, strings.Join(m.stateList, ", "))
		return res
	}

	if from == to {
		res.Success = true
		res.Noop = true
		return res
	}

	if m.IsValidTransition(from, to) {
		res.Success = true
		return res
	}

	if force {
		res.Success = true
		res.Forced = true
		return res
	}

	allowed := m.ValidTransitions(from)
	res.Err = fmt.Errorf("%s: transition %q → %q not allowed (allowed: %s)", m.name, from, to, strings.Join(allowed, ", "))
	return res
}

// Diagram renders the machine as a mermaid stateDiagram-v2 block, suitable
// for embedding in docs.
func (m *Machine) Diagram() string {
	var sb strings.Builder
	sb.WriteString("stateDiagram-v2\n")
	if m.initial != "" {
		fmt.Fprintf(&sb, "    [*] --> %s\n", m.initial)
	}
	for _, from := range m.stateList {
		for _, to := range m.ValidTransitions(from) {
			fmt.Fprintf(&sb, "    %s --> %s\n", from, to)
		}
	}
	return sb.String()
}
