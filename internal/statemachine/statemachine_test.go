package statemachine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMachine(t *testing.T) *Machine {
	t.Helper()
	m, err := New(Config{
		Name:   "test",
		States: []string{"a", "b", "c"},
		Transitions: map[string][]string{
			"a": {"b"},
			"b": {"c"},
		},
		Initial: "a",
	})
	require.NoError(t, err)
	return m
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(Config{Name: "empty"})
	assert.Error(t, err)

	_, err = New(Config{
		Name:    "bad-initial",
		States:  []string{"a"},
		Initial: "z",
	})
	assert.Error(t, err)

	_, err = New(Config{
		Name:        "bad-target",
		States:      []string{"a"},
		Transitions: map[string][]string{"a": {"z"}},
	})
	assert.Error(t, err)

	_, err = New(Config{
		Name:        "bad-source",
		States:      []string{"a"},
		Transitions: map[string][]string{"z": {"a"}},
	})
	assert.Error(t, err)
}

func TestIsValidTransition(t *testing.T) {
	m := newTestMachine(t)

	assert.True(t, m.IsValidTransition("a", "b"))
	assert.False(t, m.IsValidTransition("a", "c"))
	assert.False(t, m.IsValidTransition("c", "a"))
	assert.False(t, m.IsValidTransition("a", "z"))

	// Same-state is always a trivially valid no-op.
	for _, s := range m.States() {
		assert.True(t, m.IsValidTransition(s, s), "noop for %s", s)
	}
}

func TestTransition_Noop(t *testing.T) {
	m := newTestMachine(t)

	for _, s := range m.States() {
		res := m.Transition(s, s, false)
		assert.True(t, res.Success)
		assert.True(t, res.Noop)
		assert.False(t, res.Forced)
		assert.NoError(t, res.Err)
	}
}

func TestTransition_Allowed(t *testing.T) {
	m := newTestMachine(t)

	res := m.Transition("a", "b", false)
	assert.True(t, res.Success)
	assert.False(t, res.Noop)
	assert.False(t, res.Forced)
}

func TestTransition_Disallowed(t *testing.T) {
	m := newTestMachine(t)

	res := m.Transition("a", "c", false)
	assert.False(t, res.Success)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "not allowed")
	assert.Contains(t, res.Err.Error(), "b") // names the allowed targets
}

func TestTransition_Forced(t *testing.T) {
	m := newTestMachine(t)

	res := m.Transition("a", "c", true)
	assert.True(t, res.Success)
	assert.True(t, res.Forced)
	assert.NoError(t, res.Err)
}

func TestTransition_Closure(t *testing.T) {
	// For every pair not in the table, unforced fails and forced succeeds.
	m := newTestMachine(t)

	for _, from := range m.States() {
		for _, to := range m.States() {
			if from == to || m.IsValidTransition(from, to) {
				continue
			}
			plain := m.Transition(from, to, false)
			assert.False(t, plain.Success, "%s -> %s", from, to)

			forced := m.Transition(from, to, true)
			assert.True(t, forced.Success, "%s -> %s forced", from, to)
			assert.True(t, forced.Forced)
		}
	}
}

func TestTransition_InvalidStates(t *testing.T) {
	m := newTestMachine(t)

	res := m.Transition("z", "a", false)
	assert.False(t, res.Success)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "invalid source state")
	assert.Contains(t, res.Err.Error(), "a, b, c")

	// Force does not bypass state-set validation.
	res = m.Transition("a", "z", true)
	assert.False(t, res.Success)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "invalid target state")
}

func TestValidTransitions(t *testing.T) {
	m := newTestMachine(t)

	assert.Equal(t, []string{"b"}, m.ValidTransitions("a"))
	assert.Nil(t, m.ValidTransitions("c"))
	assert.Nil(t, m.ValidTransitions("unknown"))
}

func TestDiagram(t *testing.T) {
	m := newTestMachine(t)

	d := m.Diagram()
	assert.Contains(t, d, "stateDiagram-v2")
	assert.Contains(t, d, "[*] --> a")
	assert.Contains(t, d, "a --> b")
	assert.Contains(t, d, "b --> c")
}

func TestMustNew_PanicsOnBadConfig(t *testing.T) {
	assert.Panics(t, func() {
		MustNew(Config{Name: "bad"})
	})
}
