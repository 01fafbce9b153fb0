package device

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/iotctl/internal/logging"
)

// WaitOptions configures how WaitForRestart polls a device
type WaitOptions struct {
	// InitialDelay is the pause before the first probe, giving the device
	// time to start going down. Default: 2s
	InitialDelay time.Duration

	// RetryDelay is the delay between probes. Default: 1s
	RetryDelay time.Duration

	// UseExponentialBackoff doubles RetryDelay after each probe, up to
	// MaxRetryDelay. Default: true
	UseExponentialBackoff bool

	// MaxRetryDelay caps the backoff. Default: 10s
	MaxRetryDelay time.Duration

	// MaxAttempts bounds the number of probes, 0 for no limit (the
	// context deadline still applies). Default: 0
	MaxAttempts int

	// RequireDowntime keeps waiting until the device has been seen
	// unreachable at least once. Default: true
	RequireDowntime bool
}

// DefaultWaitOptions returns sensible defaults for a reboot
func DefaultWaitOptions() *WaitOptions {
	return &WaitOptions{
		InitialDelay:          2 * time.Second,
		RetryDelay:            1 * time.Second,
		UseExponentialBackoff: true,
		MaxRetryDelay:         10 * time.Second,
		RequireDowntime:       true,
	}
}

// WaitResult describes the outcome of WaitForRestart
type WaitResult struct {
	// Attempts is the number of probes made
	Attempts int

	// WentDown reports whether a probe saw the device unreachable
	WentDown bool

	// State is the state from the last probe
	State State

	// Elapsed is the total time spent waiting
	Elapsed time.Duration
}

// WaitForRestart probes address with fresh sessions until the device has
// been seen unreachable and then reachable again. With RequireDowntime unset
// the first reachable probe is enough. Returns a Timeout error when ctx ends
// or attempts run out first.
func WaitForRestart(ctx context.Context, address string, wopts *WaitOptions, opts ...Option) (*WaitResult, error) {
	if wopts == nil {
		wopts = DefaultWaitOptions()
	}

	start := time.Now()
	result := &WaitResult{}

	if err := sleepContext(ctx, wopts.InitialDelay); err == nil {
		if ok := waitLoop(ctx, address, wopts, result, opts...); ok {
			result.Elapsed = time.Since(start)
			return result, nil
		}
	}

	result.Elapsed = time.Since(start)
	return result, &DeviceError{
		Type:    ErrTypeTimeout,
		Message: "device did not come back online",
		Address: address,
		Err:     ctx.Err(),
	}
}

// waitLoop probes until the restart is observed. Returns false when ctx
// ends or attempts run out.
func waitLoop(ctx context.Context, address string, wopts *WaitOptions, result *WaitResult, opts ...Option) bool {
	delay := wopts.RetryDelay
	for attempt := 0; wopts.MaxAttempts == 0 || attempt < wopts.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepContext(ctx, delay); err != nil {
				return false
			}
			if wopts.UseExponentialBackoff {
				delay *= 2
				if delay > wopts.MaxRetryDelay {
					delay = wopts.MaxRetryDelay
				}
			}
		}

		result.Attempts++
		state, err := probeOnce(ctx, address, opts...)
		if err != nil {
			return false
		}
		result.State = state

		logging.Debug("Restart probe",
			zap.String("address", address),
			zap.Int("attempt", result.Attempts),
			zap.Bool("connected", state.Connected))

		if !state.Connected {
			result.WentDown = true
			continue
		}
		if result.WentDown || !wopts.RequireDowntime {
			return true
		}
	}
	return false
}

// probeOnce runs a single connectivity probe through a throwaway session
func probeOnce(ctx context.Context, address string, opts ...Option) (State, error) {
	s := New(address, opts...)
	defer s.Close()

	if err := s.WaitReady(ctx); err != nil {
		return State{}, err
	}
	return s.State(), nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
