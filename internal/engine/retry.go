// retry.go — bounded retry/timeout wrapper around a single command execution
// (§4.5). Grounded on the teacher's recording playback engine
// (internal/recording/playback_engine.go): a fixed per-step budget, a
// classify-then-continue-or-fail loop, and a result that distinguishes
// "succeeded on a later attempt" from "failed after exhausting retries".
package engine

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/brennhill/macrorun/internal/codes"
)

const (
	// defaultRetryDelay is the fixed inter-attempt delay (§4.5).
	defaultRetryDelay = 1000 * time.Millisecond
	// defaultTimeoutTag is !TIMEOUT_TAG's default when unset or unparsable
	// (the Open Question in spec.md §9 is resolved here: a non-numeric or
	// missing !TIMEOUT_TAG falls back to this default of 10 rather than
	// propagating NaN into maxRetries).
	defaultTimeoutTag = 10.0
)

// retryDelay and timeoutTagDefault start at the package constants above and
// can be overridden once at process startup via Configure, so
// internal/config's timeouts.retry_delay_ms / timeouts.timeout_tag_seconds
// reach the retry loop without every call site threading a *config.Config
// through.
var (
	retryDelay        = defaultRetryDelay
	timeoutTagDefault = defaultTimeoutTag
)

// Configure applies config-file/env/flag-resolved retry tuning. Zero or
// negative values are ignored, leaving the built-in default in place.
func Configure(delay time.Duration, timeoutTagSeconds float64) {
	if delay > 0 {
		retryDelay = delay
	}
	if timeoutTagSeconds > 0 {
		timeoutTagDefault = timeoutTagSeconds
	}
}

// RetryOutcome reports how executeWithTimeoutRetry resolved.
type RetryOutcome struct {
	Attempts int
	Err      error
}

// timeoutTagSeconds reads !TIMEOUT_TAG from the run's variables via
// parseFloat, defaulting to 10 when unset or non-numeric (§4.5, §9).
func timeoutTagSeconds(cc *CommandContext) float64 {
	raw, ok := cc.Vars().Get("!TIMEOUT_TAG")
	if !ok {
		return timeoutTagDefault
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) {
		return timeoutTagDefault
	}
	return v
}

// maxRetries derives maxRetries = max(1, ceil(!TIMEOUT_TAG)) per §4.5.
func maxRetries(timeoutTagSeconds float64) int {
	n := int(math.Ceil(timeoutTagSeconds))
	if n < 1 {
		n = 1
	}
	return n
}

// ExecuteWithTimeoutRetry runs h against cc, retrying on codes.Retryable
// errors up to the bound implied by !TIMEOUT_TAG, waiting retryDelay
// (defaultRetryDelay unless Configure overrode it) between attempts. Pausing the run (cc.State.Status() == StatusPaused)
// suspends the delay countdown rather than burning it, per §4.5's
// pause-aware retry delay. Attempts run 0..maxRetries inclusive (maxRetries+1
// invocations total); a retryable error surviving the last attempt is
// rewritten to codes.Timeout with a wrapping message (§4.5 step 4).
func ExecuteWithTimeoutRetry(cc *CommandContext, h Handler) RetryOutcome {
	maxR := maxRetries(timeoutTagSeconds(cc))
	totalAttempts := maxR + 1

	var lastErr error
	for attempt := 1; attempt <= totalAttempts; attempt++ {
		if cc.Ctx.Err() != nil {
			return RetryOutcome{Attempts: attempt, Err: cc.Ctx.Err()}
		}
		lastErr = h(cc)
		if lastErr == nil {
			return RetryOutcome{Attempts: attempt, Err: nil}
		}
		if !codes.Retryable(CodeOf(lastErr)) {
			return RetryOutcome{Attempts: attempt, Err: lastErr}
		}
		if attempt == totalAttempts {
			lastErr = NewCommandError(codes.Timeout, "timed out after "+strconv.Itoa(attempt)+" attempts: "+lastErr.Error())
			break
		}
		lg := cc.Log()
		lg.Debug().Int("attempt", attempt).Err(lastErr).Msg("retrying command")
		if !waitRetryDelay(cc.Ctx, cc.State, retryDelay) {
			return RetryOutcome{Attempts: attempt, Err: cc.Ctx.Err()}
		}
	}
	return RetryOutcome{Attempts: totalAttempts, Err: lastErr}
}

// waitRetryDelay sleeps for delay, quantized in 100ms ticks so a pause mid-
// wait doesn't burn elapsed time: each tick re-checks run status and only
// counts toward the delay while the run is not paused. Returns false if ctx
// is cancelled first.
func waitRetryDelay(ctx context.Context, isPaused pauser, delay time.Duration) bool {
	const tick = 100 * time.Millisecond
	remaining := delay
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for remaining > 0 {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if isPaused.IsPaused() {
				continue
			}
			remaining -= tick
		}
	}
	return true
}

// pauser is the narrow slice of *state.Manager the retry delay needs.
type pauser interface {
	IsPaused() bool
}
