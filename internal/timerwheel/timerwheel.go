// Package timerwheel implements the single monotonic priority queue keyed
// by deadline with opaque cancellation tokens called for in spec §9. It is
// built on github.com/benbjohnson/clock so a session's timer-driven
// behavior (allocation/permission/channel expiry) is deterministically
// advanceable in tests.
package timerwheel

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Token identifies one scheduled deadline. Zero is never issued and is safe
// to use as a "no timer" sentinel.
type Token uint64

// Event is delivered on a Wheel's channel when a scheduled deadline fires.
type Event struct {
	Token Token
}

// Wheel multiplexes every timer belonging to one session onto a single
// channel. Cancellation is generation-based: Cancel simply forgets the
// token, so if its deadline has already fired and is sitting in the
// channel buffer, the consumer recognizes it as stale (via Consume) and
// discards it — satisfying the "cancel must either succeed or consume the
// already-delivered event" requirement without scanning the channel.
type Wheel struct {
	clock clock.Clock
	out   chan Event

	mu   sync.Mutex
	next uint64
	live map[Token]struct{}
}

// New creates a Wheel that delivers fired timers on out. The caller owns
// out and should size its buffer generously enough that firing never
// blocks the clock's internal goroutine (Schedule already sends
// non-blockingly, so a full buffer only means the event is dropped, not
// that anything deadlocks).
func New(clk clock.Clock, out chan Event) *Wheel {
	return &Wheel{clock: clk, out: out, live: make(map[Token]struct{})}
}

// Schedule arms a new deadline and returns its token.
func (w *Wheel) Schedule(d time.Duration) Token {
	w.mu.Lock()
	w.next++
	tok := Token(w.next)
	w.live[tok] = struct{}{}
	w.mu.Unlock()

	w.clock.AfterFunc(d, func() {
		w.mu.Lock()
		_, stillLive := w.live[tok]
		w.mu.Unlock()
		if !stillLive {
			return
		}
		select {
		case w.out <- Event{Token: tok}:
		default:
		}
	})
	return tok
}

// Cancel forgets tok. If its deadline already fired and the event is
// sitting in the channel, the eventual Consume call for it will report
// false and the event loop discards it.
func (w *Wheel) Cancel(tok Token) {
	w.mu.Lock()
	delete(w.live, tok)
	w.mu.Unlock()
}

// Consume reports whether tok is still live and, if so, atomically forgets
// it (a fired timer is one-shot: once observed it cannot fire again). Call
// this when handling an Event read off the channel, before acting on it.
func (w *Wheel) Consume(tok Token) bool {
	w.mu.Lock()
	_, live := w.live[tok]
	delete(w.live, tok)
	w.mu.Unlock()
	return live
}
