package stability

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Strategy names the corrective action taken for an error type and carries
// the pluggable function that performs it. A nil Run simulates success,
// preserving the reporting shape while letting deployments substitute real
// corrective actions.
type Strategy struct {
	Action string
	Run    func(ctx context.Context, ev ErrorEvent) error
}

// StrategyMap maps error types to recovery strategies. The empty key holds
// the default strategy used for unmapped types.
type StrategyMap map[string]Strategy

// Well-known error types with dedicated recovery actions.
const (
	ErrorTypeTimeout               = "Timeout"
	ErrorTypeScreenDetectionFailed = "ScreenDetectionFailed"
	ErrorTypeControlFailed         = "ControlFailed"
)

// DefaultStrategies returns the built-in strategy table. Every strategy is
// simulated: the action is recorded and reported, but no real corrective
// work happens. The default wait_and_retry strategy at least waits out one
// backoff interval so retries do not spin.
func DefaultStrategies() StrategyMap {
	return StrategyMap{
		ErrorTypeTimeout:               {Action: "restart"},
		ErrorTypeScreenDetectionFailed: {Action: "new_screenshot"},
		ErrorTypeControlFailed:         {Action: "alternative_control"},
		"":                             {Action: "wait_and_retry", Run: waitAndRetry},
	}
}

// For looks up the strategy for an error type, falling back to the default.
func (sm StrategyMap) For(errType string) Strategy {
	if s, ok := sm[errType]; ok {
		return s
	}
	if s, ok := sm[""]; ok {
		return s
	}
	return Strategy{Action: "wait_and_retry", Run: waitAndRetry}
}

// execute runs the strategy with exponential-backoff retries bounded by the
// recovery timeout. A nil Run succeeds immediately (simulated recovery).
func (s Strategy) execute(ev ErrorEvent, timeout time.Duration) error {
	if s.Run == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxElapsedTime = timeout

	return backoff.Retry(func() error {
		return s.Run(ctx, ev)
	}, backoff.WithContext(bo, ctx))
}

// waitAndRetry is the default corrective action for unmapped error types:
// give the system one backoff interval to settle, then report success.
func waitAndRetry(ctx context.Context, _ ErrorEvent) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}
