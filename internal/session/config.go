package session

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/relaycore/turncore/internal/registry"
)

// TransportKind determines whether responses are sent to ClientAddr or on
// the accepted connection, and whether a write failure is fatal (reliable)
// or merely dropped (unreliable). Spec §3.1.
type TransportKind uint8

const (
	TransportUnreliableDatagram TransportKind = iota
	TransportReliableStream
	TransportReliableStreamTLS
)

func (t TransportKind) String() string {
	switch t {
	case TransportUnreliableDatagram:
		return "udp"
	case TransportReliableStream:
		return "tcp"
	case TransportReliableStreamTLS:
		return "tls"
	default:
		return "unknown"
	}
}

// Default and bound constants from spec §6/§4.2/§4.3/§4.4, in milliseconds
// as the spec states them, exposed here as time.Duration.
const (
	DefaultAllocationLifetime = 10 * time.Minute
	MaxAllocationLifetime     = 1 * time.Hour
	MinAllocationLifetime     = 10 * time.Minute
	PermissionLifetime        = 5 * time.Minute
	ChannelLifetime           = 10 * time.Minute
)

// ClientSender delivers encoded bytes to the client-facing socket. The
// session decides, based on TransportKind, whether a returned error is
// fatal (reliable transports) or merely logged and dropped (datagram).
type ClientSender interface {
	Send(data []byte) error
}

// OwnerLink lets the core monitor an owning process and signal it back on
// termination, per spec §5 "Owner link".
type OwnerLink interface {
	// Dead returns a channel that is closed when the owner has died.
	Dead() <-chan struct{}
	// Stop signals the owner that this session has terminated normally.
	Stop()
}

// Hook is called on session start and stop; see spec §6 "Hook payload".
// Errors or panics inside the hook are the embedder's responsibility to
// avoid — the session recovers a panicking hook and only logs it, per spec
// §7.
type Hook func(name string, info map[string]any)

// Config carries every option spec §6 lists under "Configuration options
// consumed at init".
type Config struct {
	SessionID string
	Owner     OwnerLink

	Username string
	Realm    string
	Key      string // password-derived secret; never logged

	ClientAddr netip.AddrPort
	Transport  TransportKind
	Sender     ClientSender

	Hook      Hook
	Blacklist []netip.Prefix

	RelayIPv4   netip.Addr
	RelayIPv6   netip.Addr // IsValid() == false means "not configured"
	MockRelayIP netip.Addr

	MinPort uint16
	MaxPort uint16

	MaxPermissions int
	MaxAllocs      int

	ServerName string

	Parent         ParentLink // optional; may be resolved lazily instead
	ParentResolver ParentResolver

	Registry registry.Registry

	// Lifetime is the caller-requested initial allocation lifetime. Per
	// spec §4.2/§6, a value below 600s (or the zero value) falls back to
	// DefaultAllocationLifetime; values above MaxAllocationLifetime are
	// clamped.
	Lifetime time.Duration

	Clock  clock.Clock
	Logger *logrus.Logger
}

// Validate checks Config for the minimum set of fields the session cannot
// run without, mirroring the Validate() methods of the teacher's cmd
// option structs.
func (c Config) Validate() error {
	if c.Username == "" {
		return fmt.Errorf("session: need a username")
	}
	if !c.ClientAddr.IsValid() {
		return fmt.Errorf("session: need a valid client address")
	}
	if c.Sender == nil {
		return fmt.Errorf("session: need a ClientSender")
	}
	if !c.RelayIPv4.IsValid() {
		return fmt.Errorf("session: need a valid relay IPv4 address")
	}
	if !c.MockRelayIP.IsValid() {
		return fmt.Errorf("session: need a valid mock relay IP")
	}
	if c.MinPort == 0 || c.MaxPort == 0 || c.MinPort > c.MaxPort {
		return fmt.Errorf("session: need a valid [min_port, max_port] range")
	}
	if c.MaxPermissions <= 0 {
		return fmt.Errorf("session: need a positive max_permissions")
	}
	if c.Registry == nil {
		return fmt.Errorf("session: need an allocation Registry")
	}
	if c.ParentResolver == nil {
		return fmt.Errorf("session: need a ParentResolver")
	}
	return nil
}

// clampInitialLifetime implements spec §4.2: "its duration is
// max(requested_lifetime, 10 minutes) clamped to at most 1 hour; if the
// caller supplies a value below 600 seconds or non-numeric, use 10
// minutes."
func clampInitialLifetime(requested time.Duration) time.Duration {
	if requested < MinAllocationLifetime {
		return DefaultAllocationLifetime
	}
	if requested > MaxAllocationLifetime {
		return MaxAllocationLifetime
	}
	return requested
}

// clampRefreshLifetime implements spec §4.1's Refresh clamp:
// min(requested*1000ms, 1 hour), with LIFETIME absent meaning the default.
func clampRefreshLifetime(requested time.Duration, present bool) time.Duration {
	if !present {
		return DefaultAllocationLifetime
	}
	if requested > MaxAllocationLifetime {
		return MaxAllocationLifetime
	}
	if requested < 0 {
		return 0
	}
	return requested
}
