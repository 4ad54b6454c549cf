package saga

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompensatorRunsAllActions(t *testing.T) {
	c := NewCompensator(nil, nil)

	var ran []string
	actions := []RevertAction{
		{Name: "revert canonical", Undo: func(context.Context) error {
			ran = append(ran, "canonical")
			return nil
		}},
		{Name: "revert dependents", Undo: func(context.Context) error {
			ran = append(ran, "dependents")
			return nil
		}},
	}

	err := c.Run(context.Background(), "edit", actions)
	require.NoError(t, err)
	assert.Equal(t, []string{"canonical", "dependents"}, ran)
}

func TestCompensatorContinuesPastFailures(t *testing.T) {
	// A failed revert must not stop the remaining actions: best-effort means
	// every action gets its chance.
	c := NewCompensator(nil, nil)

	var ran []string
	actions := []RevertAction{
		{Name: "revert canonical", Undo: func(context.Context) error {
			ran = append(ran, "canonical")
			return errors.New("upsert rejected")
		}},
		{Name: "revert dependents", Undo: func(context.Context) error {
			ran = append(ran, "dependents")
			return nil
		}},
	}

	err := c.Run(context.Background(), "delete", actions)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCompensationFailed))
	assert.Equal(t, []string{"canonical", "dependents"}, ran)
}

func TestCompensatorNoActions(t *testing.T) {
	c := NewCompensator(nil, nil)
	require.NoError(t, c.Run(context.Background(), "edit", nil))
}
