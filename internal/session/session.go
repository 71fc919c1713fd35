// Package session implements the per-allocation TURN core described in
// spec §2-§9: the session state machine, permission table, channel table,
// data relay, blacklist policy, and ICE connectivity-check tunnel for
// exactly one client allocation.
package session

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/google/uuid"

	"github.com/relaycore/turncore/internal/blacklist"
	"github.com/relaycore/turncore/internal/stun"
	"github.com/relaycore/turncore/internal/timerwheel"
)

// State is one of the two FSM states from spec §4.1.
type State uint8

const (
	WaitForAllocate State = iota
	Active
)

func (s State) String() string {
	if s == Active {
		return "Active"
	}
	return "WaitForAllocate"
}

// unresolvedPortsCapacity bounds memory for ports whose parent_resolver
// lookup already failed (spec §3.1 unresolved_ports), per SPEC_FULL.md §11.
const unresolvedPortsCapacity = 256

type timerKind uint8

const (
	timerKindLife timerKind = iota
	timerKindPermission
	timerKindChannel
)

type timerRole struct {
	kind    timerKind
	ip      netip.Addr
	channel uint16
}

type permEntry struct {
	token timerwheel.Token
}

type channelEntry struct {
	peer  netip.AddrPort
	token timerwheel.Token
}

// Counters tracks the byte/packet accounting spec §3.1 and §6's hook
// payload require.
type Counters struct {
	SentBytes int64
	SentPkts  int64
	RcvdBytes int64
	RcvdPkts  int64
}

// Session is one allocation: exactly the aggregate record of spec §3.1 plus
// the machinery (timers, channels) to run it as a single-threaded actor.
type Session struct {
	cfg Config
	log *logrus.Entry

	clock clock.Clock
	key   *stun.Key

	state      State
	clientAddr netip.AddrPort
	relayAddr  netip.AddrPort
	hasRelay   bool

	blacklist *blacklist.List

	wheel       *timerwheel.Wheel
	timerEvents chan timerwheel.Event
	timers      map[timerwheel.Token]timerRole

	lifeToken    timerwheel.Token
	lifeDeadline time.Time

	permissions map[netip.Addr]permEntry
	channels    map[uint16]channelEntry
	peers       map[netip.AddrPort]uint16

	hasLast  bool
	lastTrid stun.TransactionID
	lastPkt  []byte

	seq uint32

	hasCandidate  bool
	candidateAddr netip.AddrPort

	parent          ParentLink
	unresolvedPorts *lru.Cache[uint16, struct{}]

	counters  Counters
	startedAt time.Time

	clientEvents chan []byte
	parentEvents chan ParentMessage
	stopCh       chan struct{}
	stopped      bool
	stopReason   error
}

// New constructs a session in the WaitForAllocate state. It does not start
// the event loop; call Run for that.
func New(cfg Config) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}

	sessionID := cfg.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logrus.New()
	}

	unresolved, err := lru.New[uint16, struct{}](unresolvedPortsCapacity)
	if err != nil {
		return nil, fmt.Errorf("session: build unresolved port cache: %w", err)
	}

	timerEvents := make(chan timerwheel.Event, 32)

	s := &Session{
		cfg:             cfg,
		log:             logger.WithFields(logrus.Fields{"session_id": sessionID, "username": cfg.Username, "realm": cfg.Realm}),
		clock:           clk,
		key:             &stun.Key{Username: cfg.Username, Realm: cfg.Realm, Password: cfg.Key},
		state:           WaitForAllocate,
		clientAddr:      cfg.ClientAddr,
		blacklist:       blacklist.New(cfg.Blacklist...),
		wheel:           timerwheel.New(clk, timerEvents),
		timerEvents:     timerEvents,
		timers:          make(map[timerwheel.Token]timerRole),
		permissions:     make(map[netip.Addr]permEntry),
		channels:        make(map[uint16]channelEntry),
		peers:           make(map[netip.AddrPort]uint16),
		parent:          cfg.Parent,
		unresolvedPorts: unresolved,
		startedAt:       clk.Now(),
		clientEvents:    make(chan []byte, 64),
		parentEvents:    make(chan ParentMessage, 64),
		stopCh:          make(chan struct{}),
	}
	s.cfg.SessionID = sessionID

	lifetime := clampInitialLifetime(cfg.Lifetime)
	s.armLifeTimer(lifetime)

	s.runHook("turn_session_start", map[string]any{
		"id":        sessionID,
		"user":      cfg.Username,
		"realm":     cfg.Realm,
		"client":    cfg.ClientAddr.String(),
		"transport": cfg.Transport.String(),
	})

	return s, nil
}

// DeliverClientMessage feeds one datagram/frame received from the client
// socket into the session's event loop.
func (s *Session) DeliverClientMessage(raw []byte) {
	select {
	case s.clientEvents <- raw:
	case <-s.stopCh:
	}
}

// DeliverParentMessage feeds one message injected by the parent into the
// session's event loop. Spec §5: "events from the parent are processed in
// send order from that parent."
func (s *Session) DeliverParentMessage(msg ParentMessage) {
	select {
	case s.parentEvents <- msg:
	case <-s.stopCh:
	}
}

// State returns the session's current FSM state.
func (s *Session) State() State { return s.state }

// RelayAddr returns the advertised relay address and whether one has been
// assigned yet.
func (s *Session) RelayAddr() (netip.AddrPort, bool) { return s.relayAddr, s.hasRelay }

// Counters returns a snapshot of the byte/packet accounting.
func (s *Session) Counters() Counters { return s.counters }

// Run drives the single-threaded event loop until the session terminates,
// the context is cancelled, or the owner dies. It returns the reason the
// session stopped.
func (s *Session) Run(ctx context.Context) error {
	var ownerDead <-chan struct{}
	if s.cfg.Owner != nil {
		ownerDead = s.cfg.Owner.Dead()
	}

	for !s.stopped {
		select {
		case <-ctx.Done():
			s.terminate(ctx.Err())
		case <-ownerDead:
			s.terminate(ErrOwnerDied)
		case raw := <-s.clientEvents:
			s.handleClientBytes(raw)
		case msg := <-s.parentEvents:
			s.handleParentMessage(msg)
		case ev := <-s.timerEvents:
			s.handleTimerEvent(ev)
		case <-s.stopCh:
		}
	}
	return s.stopReason
}

// terminate is the single path off the event loop: it cancels the
// outstanding life timer, deregisters from the allocation registry, fires
// the stop hook, and signals the owner. It is idempotent.
func (s *Session) terminate(reason error) {
	if s.stopped {
		return
	}
	s.stopped = true
	s.stopReason = reason
	s.wheel.Cancel(s.lifeToken)

	if s.hasRelay {
		s.cfg.Registry.Del(s.clientAddr, s.cfg.Username, s.cfg.Realm)
	}

	duration := s.clock.Now().Sub(s.startedAt)
	s.runHook("turn_session_stop", map[string]any{
		"id":             s.cfg.SessionID,
		"user":           s.cfg.Username,
		"realm":          s.cfg.Realm,
		"client":         s.clientAddr.String(),
		"transport":      s.cfg.Transport.String(),
		"sent_bytes":     s.counters.SentBytes,
		"sent_pkts":      s.counters.SentPkts,
		"rcvd_bytes":     s.counters.RcvdBytes,
		"rcvd_pkts":      s.counters.RcvdPkts,
		"duration_native": duration,
	})

	if s.cfg.Owner != nil {
		s.cfg.Owner.Stop()
	}

	close(s.stopCh)
	s.log.WithError(reason).Info("session terminated")
}

// runHook invokes the configured Hook, recovering any panic per spec §7:
// "Hook exceptions are caught and logged, not propagated."
func (s *Session) runHook(name string, info map[string]any) {
	if s.cfg.Hook == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.WithField("hook", name).Errorf("hook panicked: %v", r)
		}
	}()
	s.cfg.Hook(name, info)
}

// sendToClient writes data to the client transport, applying spec §5's
// write-failure policy: fatal for reliable transports, dropped for
// datagram.
func (s *Session) sendToClient(data []byte) {
	if err := s.cfg.Sender.Send(data); err != nil {
		if s.cfg.Transport == TransportUnreliableDatagram {
			s.log.WithError(err).Debug("dropped write to client (datagram transport)")
			return
		}
		s.log.WithError(err).Error("fatal write failure to client")
		s.terminate(fmt.Errorf("%w: %w", ErrSocketClosed, err))
	}
}
