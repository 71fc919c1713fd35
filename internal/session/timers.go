package session

import (
	"time"

	"github.com/relaycore/turncore/internal/timerwheel"
)

// armLifeTimer (re)arms the allocation lifetime timer. Any previously
// scheduled life timer is cancelled first, per spec §4.2 "On every Refresh
// it is cancelled and re-armed."
func (s *Session) armLifeTimer(d time.Duration) {
	if s.lifeToken != 0 {
		s.wheel.Cancel(s.lifeToken)
		delete(s.timers, s.lifeToken)
	}
	tok := s.wheel.Schedule(d)
	s.lifeToken = tok
	s.lifeDeadline = s.clock.Now().Add(d)
	s.timers[tok] = timerRole{kind: timerKindLife}
}

// remainingLifetime is used for the LIFETIME attribute on Allocate success
// responses.
func (s *Session) remainingLifetime() time.Duration {
	remaining := s.lifeDeadline.Sub(s.clock.Now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// handleTimerEvent dispatches a fired deadline to the right subsystem,
// discarding it if the wheel reports it as stale (already cancelled).
func (s *Session) handleTimerEvent(ev timerwheel.Event) {
	role, ok := s.timers[ev.Token]
	if !ok {
		return
	}
	if !s.wheel.Consume(ev.Token) {
		delete(s.timers, ev.Token)
		return
	}
	delete(s.timers, ev.Token)

	switch role.kind {
	case timerKindLife:
		s.log.Debug("allocation lifetime expired")
		s.terminate(nil)
	case timerKindPermission:
		s.expirePermission(role.ip)
	case timerKindChannel:
		s.expireChannel(role.channel)
	}
}
