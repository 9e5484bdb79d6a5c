package batch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunInOrder(t *testing.T) {
	var seen []string
	err := Run(context.Background(), []string{"A", "B", "C"}, func(ctx context.Context, item string) error {
		seen = append(seen, item)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, seen)
}

func TestRunAbortsAfterFailure(t *testing.T) {
	boom := errors.New("thread not found")
	written := map[string]bool{}
	var attempted []string

	err := Run(context.Background(), []string{"A", "B", "C"}, func(ctx context.Context, item string) error {
		attempted = append(attempted, item)
		if item == "B" {
			return boom
		}
		written[item] = true
		return nil
	})

	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"A", "B"}, attempted)
	assert.True(t, written["A"])
	assert.False(t, written["C"])

	var itemErr *ItemError[string]
	require.ErrorAs(t, err, &itemErr)
	assert.Equal(t, 1, itemErr.Index)
	assert.Equal(t, "B", itemErr.Item)
}

func TestRunEmpty(t *testing.T) {
	calls := 0
	err := Run(context.Background(), nil, func(ctx context.Context, item int) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Zero(t, calls)
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var attempted []int

	err := Run(ctx, []int{1, 2, 3}, func(ctx context.Context, item int) error {
		attempted = append(attempted, item)
		cancel()
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []int{1}, attempted)
}
