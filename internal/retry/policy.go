package retry

import (
	"fmt"
	"math"
	"time"

	errpkg "github.com/tracktide/tracktide/internal/errors"
)

// Settings are the tunable retry parameters, snapshotted per dispatch.
type Settings struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// Validate checks the settings against their allowed ranges.
func (s Settings) Validate() error {
	if s.MaxRetries < 0 || s.MaxRetries > 10 {
		return fmt.Errorf("max retries out of range [0, 10]: %d", s.MaxRetries)
	}
	if s.InitialDelay < 100*time.Millisecond || s.InitialDelay > 30*time.Second {
		return fmt.Errorf("initial delay out of range [100ms, 30s]: %s", s.InitialDelay)
	}
	if s.MaxDelay < time.Second || s.MaxDelay > 300*time.Second {
		return fmt.Errorf("max delay out of range [1s, 300s]: %s", s.MaxDelay)
	}
	if s.MaxDelay < s.InitialDelay {
		return fmt.Errorf("max delay %s is shorter than initial delay %s", s.MaxDelay, s.InitialDelay)
	}
	if s.BackoffFactor < 1.0 || s.BackoffFactor > 5.0 {
		return fmt.Errorf("backoff factor out of range [1.0, 5.0]: %g", s.BackoffFactor)
	}
	return nil
}

// Delay computes the backoff before re-attempting after the given failed
// attempt (1-based): initial * factor^(attempt-1), clamped to the max delay.
func Delay(attempt int, s Settings) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(float64(s.InitialDelay) * math.Pow(s.BackoffFactor, float64(attempt-1)))
	if d > s.MaxDelay || d < 0 {
		d = s.MaxDelay
	}
	return d
}

// ShouldRetry reports whether a failed attempt may be re-attempted: the error
// must be transient and the retry budget not yet exhausted.
func ShouldRetry(err error, attempt int, s Settings) bool {
	if !errpkg.Retryable(err) {
		return false
	}
	return attempt <= s.MaxRetries
}
