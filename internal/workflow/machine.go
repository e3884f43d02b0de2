// Package workflow models document lifecycles as explicit finite state machines
// with named triggers instead of ad hoc status string comparisons.
package workflow

import (
	"fmt"
	"sort"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Trigger names a transition.
type Trigger string

type edge[S ~string] struct {
	from    S
	trigger Trigger
}

// Machine is an immutable-after-build transition table for status type S.
type Machine[S ~string] struct {
	name  string
	edges map[edge[S]]S
}

// New starts an empty machine. name is used in error messages.
func New[S ~string](name string) *Machine[S] {
	return &Machine[S]{name: name, edges: make(map[edge[S]]S)}
}

// Permit registers from --trigger--> to. It panics on a conflicting
// registration since tables are built once at package init.
func (m *Machine[S]) Permit(from S, trigger Trigger, to S) *Machine[S] {
	key := edge[S]{from: from, trigger: trigger}
	if existing, ok := m.edges[key]; ok && existing != to {
		panic(fmt.Sprintf("workflow %s: %s on %s already leads to %s", m.name, trigger, from, existing))
	}
	m.edges[key] = to
	return m
}

// Can reports whether trigger is allowed from the given state.
func (m *Machine[S]) Can(from S, trigger Trigger) bool {
	_, ok := m.edges[edge[S]{from: from, trigger: trigger}]
	return ok
}

// Fire returns the target state or an error wrapping shared.ErrInvalidState.
func (m *Machine[S]) Fire(from S, trigger Trigger) (S, error) {
	to, ok := m.edges[edge[S]{from: from, trigger: trigger}]
	if !ok {
		return from, fmt.Errorf("%s: cannot %s from %s: %w", m.name, trigger, from, shared.ErrInvalidState)
	}
	return to, nil
}

// Triggers lists the triggers available from a state, sorted.
func (m *Machine[S]) Triggers(from S) []Trigger {
	var out []Trigger
	for key := range m.edges {
		if key.from == from {
			out = append(out, key.trigger)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
