package core

import (
	"errors"
	"fmt"
	"sync"
)

// ErrBudgetExhausted is returned when a RoundLimiter runs out of rounds.
var ErrBudgetExhausted = errors.New("round budget exhausted")

// RoundLimiter enforces a maximum number of model rounds per call. It keeps
// the tool-call loop from running forever when a model keeps requesting
// further tool invocations.
type RoundLimiter struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewRoundLimiter creates a limiter with a maximum number of rounds.
// If max == 0, unlimited rounds are allowed.
func NewRoundLimiter(max int) *RoundLimiter {
	return &RoundLimiter{max: max}
}

// Increment consumes one round and returns ErrBudgetExhausted (wrapped with
// the configured maximum) once the budget is exceeded.
func (rl *RoundLimiter) Increment() error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.count++
	if rl.max > 0 && rl.count > rl.max {
		return fmt.Errorf("exceeded %d rounds: %w", rl.max, ErrBudgetExhausted)
	}

	return nil
}

// Count returns the number of rounds consumed so far.
func (rl *RoundLimiter) Count() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	return rl.count
}

// Remaining returns how many rounds are left, or -1 when unlimited.
func (rl *RoundLimiter) Remaining() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.max == 0 {
		return -1
	}

	return rl.max - rl.count
}
