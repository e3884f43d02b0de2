package workflow

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

type lampState string

const (
	lampOff    lampState = "OFF"
	lampOn     lampState = "ON"
	lampBroken lampState = "BROKEN"
)

func lampMachine() *Machine[lampState] {
	return New[lampState]("lamp").
		Permit(lampOff, "switch", lampOn).
		Permit(lampOn, "switch", lampOff).
		Permit(lampOn, "overload", lampBroken)
}

func TestFireFollowsTable(t *testing.T) {
	m := lampMachine()

	next, err := m.Fire(lampOff, "switch")
	require.NoError(t, err)
	require.Equal(t, lampOn, next)

	next, err = m.Fire(next, "overload")
	require.NoError(t, err)
	require.Equal(t, lampBroken, next)
}

func TestFireRejectsUnknownTransition(t *testing.T) {
	m := lampMachine()

	state, err := m.Fire(lampBroken, "switch")
	require.ErrorIs(t, err, shared.ErrInvalidState)
	require.Equal(t, lampBroken, state)
	require.False(t, m.Can(lampOff, "overload"))
}

func TestTriggersSorted(t *testing.T) {
	m := lampMachine()
	require.Equal(t, []Trigger{"overload", "switch"}, m.Triggers(lampOn))
	require.Empty(t, m.Triggers(lampBroken))
}

func TestPermitConflictPanics(t *testing.T) {
	m := lampMachine()
	require.Panics(t, func() {
		m.Permit(lampOff, "switch", lampBroken)
	})
}
