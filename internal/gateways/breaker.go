package gateway

import (
	"sync/atomic"
	"time"

	"github.com/inboxly/mail-assistant/pkg/logger"
)

type breakerState int32

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// circuitBreaker guards the processor with the usual three states: closed
// passes everything, open fails fast, and half-open lets exactly one probe
// through after the recovery timeout. State lives in atomics so callers on
// any goroutine can consult it without locking.
type circuitBreaker struct {
	threshold int32
	recovery  time.Duration

	state            atomic.Int32
	consecutiveFails atomic.Int32
	openedAtUnixNano atomic.Int64
}

func newCircuitBreaker(threshold int, recovery time.Duration) *circuitBreaker {
	b := &circuitBreaker{
		threshold: int32(threshold),
		recovery:  recovery,
	}
	b.state.Store(int32(breakerClosed))
	return b
}

// Allow reports whether a call may proceed. When the recovery timeout has
// elapsed on an open breaker, the first caller to win the CAS becomes the
// half-open probe; everyone else keeps failing fast until it reports back.
func (b *circuitBreaker) Allow() error {
	switch breakerState(b.state.Load()) {
	case breakerClosed:
		return nil
	case breakerHalfOpen:
		return ErrCircuitOpen
	case breakerOpen:
		openedAt := time.Unix(0, b.openedAtUnixNano.Load())
		if time.Since(openedAt) < b.recovery {
			return ErrCircuitOpen
		}
		if b.state.CompareAndSwap(int32(breakerOpen), int32(breakerHalfOpen)) {
			logger.Info("circuit breaker half-open, allowing trial call")
			return nil
		}
		return ErrCircuitOpen
	}
	return nil
}

func (b *circuitBreaker) RecordSuccess() {
	prev := breakerState(b.state.Swap(int32(breakerClosed)))
	b.consecutiveFails.Store(0)
	if prev != breakerClosed {
		logger.Info("circuit breaker closed")
	}
}

func (b *circuitBreaker) RecordFailure() {
	if breakerState(b.state.Load()) == breakerHalfOpen {
		b.open()
		return
	}

	fails := b.consecutiveFails.Add(1)
	if fails >= b.threshold {
		b.open()
	}
}

func (b *circuitBreaker) open() {
	b.openedAtUnixNano.Store(time.Now().UnixNano())
	if b.state.Swap(int32(breakerOpen)) != int32(breakerOpen) {
		logger.Warn("circuit breaker opened",
			"consecutive_fails", b.consecutiveFails.Load(),
			"recovery_timeout", b.recovery)
	}
}

func (b *circuitBreaker) State() breakerState {
	return breakerState(b.state.Load())
}
