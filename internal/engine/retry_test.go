package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brennhill/macrorun/internal/codes"
	"github.com/brennhill/macrorun/internal/state"
)

func newTestContext(t *testing.T) *CommandContext {
	t.Helper()
	mgr := state.New("demo.iim", 10, 1, 10)
	mgr.Start()
	return &CommandContext{Ctx: context.Background(), State: mgr}
}

func TestTimeoutTagSeconds_DefaultsWhenUnset(t *testing.T) {
	cc := newTestContext(t)
	assert.Equal(t, defaultTimeoutTag, timeoutTagSeconds(cc))
}

func TestTimeoutTagSeconds_DefaultsWhenNonNumeric(t *testing.T) {
	cc := newTestContext(t)
	cc.Vars().SetSystemTrusted("!TIMEOUT_TAG", "not-a-number")
	assert.Equal(t, defaultTimeoutTag, timeoutTagSeconds(cc))
}

func TestTimeoutTagSeconds_UsesConfiguredValue(t *testing.T) {
	cc := newTestContext(t)
	cc.Vars().SetSystemTrusted("!TIMEOUT_TAG", "3")
	assert.Equal(t, 3.0, timeoutTagSeconds(cc))
}

func TestMaxRetries_AlwaysAtLeastOneAndCeiled(t *testing.T) {
	assert.Equal(t, 1, maxRetries(0.1))
	assert.Equal(t, 2, maxRetries(1.2))
	assert.Equal(t, 10, maxRetries(10))
}

func TestExecuteWithTimeoutRetry_SucceedsImmediately(t *testing.T) {
	cc := newTestContext(t)
	calls := 0
	outcome := ExecuteWithTimeoutRetry(cc, func(*CommandContext) error {
		calls++
		return nil
	})
	require.NoError(t, outcome.Err)
	assert.Equal(t, 1, outcome.Attempts)
	assert.Equal(t, 1, calls)
}

func TestExecuteWithTimeoutRetry_NonRetryableStopsImmediately(t *testing.T) {
	cc := newTestContext(t)
	cc.Vars().SetSystemTrusted("!TIMEOUT_TAG", "5")
	calls := 0
	outcome := ExecuteWithTimeoutRetry(cc, func(*CommandContext) error {
		calls++
		return NewCommandError(codes.ScriptError, "boom")
	})
	require.Error(t, outcome.Err)
	assert.Equal(t, codes.ScriptError, CodeOf(outcome.Err))
	assert.Equal(t, 1, outcome.Attempts)
	assert.Equal(t, 1, calls)
}

func TestExecuteWithTimeoutRetry_RetryableRetriesThenSucceeds(t *testing.T) {
	cc := newTestContext(t)
	cc.Vars().SetSystemTrusted("!TIMEOUT_TAG", "2")
	calls := 0
	outcome := ExecuteWithTimeoutRetry(cc, func(*CommandContext) error {
		calls++
		if calls == 1 {
			return NewCommandError(codes.ElementNotFound, "not yet")
		}
		return nil
	})
	require.NoError(t, outcome.Err)
	assert.Equal(t, 2, outcome.Attempts)
	assert.Equal(t, 2, calls)
}

func TestExecuteWithTimeoutRetry_ExhaustsIntoTimeout(t *testing.T) {
	cc := newTestContext(t)
	cc.Vars().SetSystemTrusted("!TIMEOUT_TAG", "1")
	calls := 0
	outcome := ExecuteWithTimeoutRetry(cc, func(*CommandContext) error {
		calls++
		return NewCommandError(codes.ElementNotFound, "never found")
	})
	require.Error(t, outcome.Err)
	assert.Equal(t, codes.Timeout, CodeOf(outcome.Err))
	assert.Equal(t, 2, calls) // maxRetries=1 -> 2 total invocations
	assert.Equal(t, 2, outcome.Attempts)
}

func TestExecuteWithTimeoutRetry_CancelledContextStopsRetrying(t *testing.T) {
	cc := newTestContext(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cc.Ctx = ctx
	outcome := ExecuteWithTimeoutRetry(cc, func(*CommandContext) error {
		t.Fatal("handler should not run against a cancelled context")
		return nil
	})
	assert.Error(t, outcome.Err)
}
