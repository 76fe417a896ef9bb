// internal/browser/context_utils_test.go
package browser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCombineContext(t *testing.T) {
	type ctxKey string
	const key ctxKey = "testKey"
	const value = "testValue"

	t.Run("InheritsValuesFromPrimary", func(t *testing.T) {
		primary := context.WithValue(context.Background(), key, value)

		combinedCtx, cancel := CombineContext(primary, context.Background())
		defer cancel()

		assert.Equal(t, value, combinedCtx.Value(key))
		assert.Nil(t, combinedCtx.Err())
	})

	t.Run("IgnoresValuesFromSecondary", func(t *testing.T) {
		secondary := context.WithValue(context.Background(), key, value)

		combinedCtx, cancel := CombineContext(context.Background(), secondary)
		defer cancel()

		assert.Nil(t, combinedCtx.Value(key))
	})

	t.Run("CancelledByPrimary", func(t *testing.T) {
		primary, cancelPrimary := context.WithCancel(context.Background())

		combinedCtx, cancel := CombineContext(primary, context.Background())
		defer cancel()

		cancelPrimary()
		assert.ErrorIs(t, combinedCtx.Err(), context.Canceled)
	})

	t.Run("CancelledBySecondary", func(t *testing.T) {
		secondary, cancelSecondary := context.WithCancel(context.Background())

		combinedCtx, cancel := CombineContext(context.Background(), secondary)
		defer cancel()

		cancelSecondary()
		assert.Eventually(t, func() bool {
			return combinedCtx.Err() != nil
		}, time.Second, 5*time.Millisecond, "combined context should follow the secondary context")
	})

	t.Run("DeadlineFromPrimary", func(t *testing.T) {
		deadline := time.Now().Add(time.Minute)
		primary, cancelPrimary := context.WithDeadline(context.Background(), deadline)
		defer cancelPrimary()

		combinedCtx, cancel := CombineContext(primary, context.Background())
		defer cancel()

		got, ok := combinedCtx.Deadline()
		require.True(t, ok)
		assert.Equal(t, deadline, got)
	})
}

func TestDetach(t *testing.T) {
	type ctxKey string
	parent, cancel := context.WithTimeout(context.WithValue(context.Background(), ctxKey("k"), "v"), time.Millisecond)
	cancel()

	detached := Detach(parent)

	assert.Equal(t, "v", detached.Value(ctxKey("k")))
	assert.NoError(t, detached.Err())
	assert.Nil(t, detached.Done())
	_, ok := detached.Deadline()
	assert.False(t, ok)

	child, childCancel := context.WithCancel(detached)
	defer childCancel()
	assert.NoError(t, child.Err(), "children of a detached context start live")
}
