// Package backoff provides exponential delay calculation for poll and retry loops.
package backoff

import (
	"math"
	"time"

	"github.com/wb-go/wbf/retry"
)

// Config for exponential backoff. Zero values use defaults.
type Config struct {
	Initial    time.Duration // default: 100ms
	Max        time.Duration // default: 5s
	Multiplier float64       // default: 2, values below 1 are treated as 1
}

// Exponential calculates the delay before a given attempt.
// Attempt 1 returns initial, attempt 2 returns initial*multiplier, etc.
func Exponential(attempt int, cfg *Config) time.Duration {
	initial := 100 * time.Millisecond
	maxBackoff := 5 * time.Second
	multiplier := 2.0
	if cfg != nil {
		if cfg.Initial > 0 {
			initial = cfg.Initial
		}
		if cfg.Max > 0 {
			maxBackoff = cfg.Max
		}
		if cfg.Multiplier != 0 {
			multiplier = math.Max(cfg.Multiplier, 1)
		}
	}

	if attempt < 1 {
		return initial
	}
	delay := float64(initial) * math.Pow(multiplier, float64(attempt-1))
	if delay > float64(maxBackoff) {
		delay = float64(maxBackoff)
	}
	return time.Duration(delay)
}

// FromStrategy converts retry strategy into backoff config capped at max.
func FromStrategy(s retry.Strategy, maxDelay time.Duration) *Config {
	return &Config{Initial: s.Delay, Max: maxDelay, Multiplier: s.Backoff}
}
