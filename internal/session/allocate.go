package session

import (
	"encoding/binary"
	"math/rand/v2"
	"net/netip"

	"github.com/relaycore/turncore/internal/stun"
	"github.com/relaycore/turncore/internal/turn"
)

// handleAllocate implements spec §4.1 "Transition: WaitForAllocate on
// Allocate request" and, for Active, the "Allocate in Active -> error 437"
// rule.
func (s *Session) handleAllocate(req *stun.Message) {
	if s.state == Active {
		s.sendError(req, turn.ErrAllocationMismatch)
		return
	}

	transportAttr, ok := req.GetAttribute(turn.AttrRequestedTransport)
	if !ok {
		s.log.Debug("allocate rejected: missing REQUESTED-TRANSPORT")
		s.sendError(req, stun.ErrBadRequest)
		s.terminate(nil)
		return
	}
	if len(transportAttr.Value) < 4 || turn.RequestedTransport(binary.LittleEndian.Uint32(transportAttr.Value)) != turn.RequestedTransportUDP {
		s.log.Debug("allocate rejected: unsupported REQUESTED-TRANSPORT")
		s.sendError(req, turn.ErrUnsupportedTransportProtocol)
		s.terminate(nil)
		return
	}

	if _, ok := req.GetAttribute(turn.AttrDontFragment); ok {
		s.log.Debug("allocate rejected: DONT-FRAGMENT not supported")
		s.sendError(req, stun.ErrUnknownAttribute, stun.Attribute{
			Type:  stun.AttrUnknownAttributes,
			Value: stun.EncodeUnknownAttributes([]stun.AttributeType{turn.AttrDontFragment}),
		})
		s.terminate(nil)
		return
	}

	wantsIPv6 := false
	if famAttr, ok := req.GetAttribute(turn.AttrRequestedAddressFamily); ok && len(famAttr.Value) >= 1 {
		wantsIPv6 = turn.AddressFamily(famAttr.Value[0]) == turn.AddressFamilyIPv6
	}
	if wantsIPv6 && !s.cfg.RelayIPv6.IsValid() {
		s.log.Debug("allocate rejected: IPv6 requested but not configured")
		s.sendError(req, turn.ErrAddressFamilyNotSupported)
		s.terminate(nil)
		return
	}

	if s.blacklist.Contains(s.clientAddr.Addr()) {
		s.log.WithField("client", s.clientAddr).Debug("allocate rejected: client blacklisted")
		s.sendError(req, turn.ErrForbidden)
		s.terminate(nil)
		return
	}

	if err := s.cfg.Registry.Add(s.clientAddr, s.cfg.Username, s.cfg.Realm, s.cfg.MaxAllocs, s); err != nil {
		s.log.WithError(err).Debug("allocate rejected: registry refused")
		s.sendError(req, turn.ErrInsufficientCapacity)
		s.terminate(ErrRegistryRejected)
		return
	}

	port := s.cfg.MinPort
	if s.cfg.MaxPort > s.cfg.MinPort {
		port += uint16(rand.IntN(int(s.cfg.MaxPort-s.cfg.MinPort) + 1)) // nolint:gosec
	}
	s.relayAddr = netip.AddrPortFrom(s.cfg.MockRelayIP, port)
	s.hasRelay = true
	s.state = Active

	resp := s.newResponse(req, stun.ClassSuccess)

	relayedAddr, err := turn.EncodeXORAddr(s.relayAddr, req.TransactionID)
	if err != nil {
		s.log.WithError(err).Error("failed to encode XOR-RELAYED-ADDRESS")
		s.sendError(req, stun.ErrServerError)
		s.terminate(err)
		return
	}
	resp.Add(turn.AttrXorRelayedAddress, relayedAddr)

	lifetimeSecs := make([]byte, 4)
	binary.BigEndian.PutUint32(lifetimeSecs, uint32(s.remainingLifetime().Seconds()))
	resp.Add(turn.AttrLifetime, lifetimeSecs)

	mappedAddr, err := turn.EncodeXORAddr(unmapAddrPort(s.clientAddr), req.TransactionID)
	if err != nil {
		s.log.WithError(err).Error("failed to encode XOR-MAPPED-ADDRESS")
		s.sendError(req, stun.ErrServerError)
		s.terminate(err)
		return
	}
	resp.Add(stun.AttrXorMappedAddress, mappedAddr)

	s.log.WithField("relay", s.relayAddr).Info("allocation succeeded")
	s.sendResponse(resp)
}

// unmapAddrPort collapses an IPv4-mapped-IPv6 address down to plain IPv4,
// per spec §4.1 "XOR-MAPPED-ADDRESS = unmapped client_addr".
func unmapAddrPort(addr netip.AddrPort) netip.AddrPort {
	return netip.AddrPortFrom(addr.Addr().Unmap(), addr.Port())
}
