package timerwheel

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func TestScheduleFires(t *testing.T) {
	t.Parallel()
	mock := clock.NewMock()
	events := make(chan Event, 4)
	w := New(mock, events)

	tok := w.Schedule(5 * time.Second)
	mock.Add(5 * time.Second)

	select {
	case ev := <-events:
		if ev.Token != tok {
			t.Errorf("expected token %d, got %d", tok, ev.Token)
		}
		if !w.Consume(ev.Token) {
			t.Error("expected first consume to succeed")
		}
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
}

func TestCancelBeforeFireSuppressesEvent(t *testing.T) {
	t.Parallel()
	mock := clock.NewMock()
	events := make(chan Event, 4)
	w := New(mock, events)

	tok := w.Schedule(5 * time.Second)
	w.Cancel(tok)
	mock.Add(5 * time.Second)

	select {
	case ev := <-events:
		t.Fatalf("did not expect event for cancelled token, got %+v", ev)
	case <-time.After(50 * time.Millisecond):
		// expected: nothing delivered
	}
}

func TestCancelAfterFireIsConsumedAsStale(t *testing.T) {
	t.Parallel()
	mock := clock.NewMock()
	events := make(chan Event, 4)
	w := New(mock, events)

	tok := w.Schedule(5 * time.Second)
	mock.Add(5 * time.Second)

	// Simulate the race where Cancel races with an already-enqueued fire:
	// the event loop must treat the buffered event as stale once forgotten.
	w.Cancel(tok)

	ev := <-events
	if w.Consume(ev.Token) {
		t.Error("expected stale event to be discarded, not consumed as live")
	}
}

func TestConsumeIsOneShot(t *testing.T) {
	t.Parallel()
	mock := clock.NewMock()
	events := make(chan Event, 4)
	w := New(mock, events)

	w.Schedule(time.Second)
	mock.Add(time.Second)
	ev := <-events

	if !w.Consume(ev.Token) {
		t.Fatal("expected first consume to succeed")
	}
	if w.Consume(ev.Token) {
		t.Error("expected second consume of the same token to fail")
	}
}
