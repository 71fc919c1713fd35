package session

import (
	"net/netip"

	"github.com/relaycore/turncore/internal/stun"
	"github.com/relaycore/turncore/internal/turn"
)

// updatePermissions implements spec §4.3. The quota check is evaluated
// before dedup: every supplied address counts as a new slot even if it
// duplicates an existing permission or another entry in addrs.
func (s *Session) updatePermissions(addrs []netip.Addr) *stun.Error {
	if len(addrs) == 0 {
		return stun.NewError(stun.ErrBadRequest)
	}
	if len(s.permissions)+len(addrs) > s.cfg.MaxPermissions {
		return stun.NewError(turn.ErrInsufficientCapacity)
	}

	relayIsIPv6 := s.relayAddr.Addr().Is6()
	for _, a := range addrs {
		if a.Is6() != relayIsIPv6 {
			return stun.NewError(turn.ErrPeerAddressFamilyMismatch)
		}
	}
	if s.blacklist.ContainsAny(addrs) {
		return stun.NewError(turn.ErrForbidden)
	}

	for _, a := range addrs {
		s.armPermissionTimer(a)
	}
	return nil
}

// armPermissionTimer cancels any existing timer for ip and arms a fresh
// PermissionLifetime one, inserting or overwriting the permission entry.
func (s *Session) armPermissionTimer(ip netip.Addr) {
	if existing, ok := s.permissions[ip]; ok {
		s.wheel.Cancel(existing.token)
		delete(s.timers, existing.token)
	}
	tok := s.wheel.Schedule(PermissionLifetime)
	s.timers[tok] = timerRole{kind: timerKindPermission, ip: ip}
	s.permissions[ip] = permEntry{token: tok}
}

// expirePermission removes the permission for ip. Channels referencing ip
// are left untouched — they have their own independent lifetime, per spec
// §4.3.
func (s *Session) expirePermission(ip netip.Addr) {
	delete(s.permissions, ip)
	s.log.WithField("peer_ip", ip).Debug("permission expired")
}

// hasPermission reports whether ip currently holds a live permission.
func (s *Session) hasPermission(ip netip.Addr) bool {
	_, ok := s.permissions[ip]
	return ok
}

// handleCreatePermission implements spec §4.1's CreatePermission
// transition: gather every XOR-PEER-ADDRESS and apply §4.3.
func (s *Session) handleCreatePermission(req *stun.Message) {
	attrs := req.GetAttributes(turn.AttrXorPeerAddress)
	addrs := make([]netip.Addr, 0, len(attrs))
	for _, a := range attrs {
		addr, err := turn.DecodeXORAddr(a.Value, req.TransactionID)
		if err != nil {
			s.sendError(req, stun.ErrBadRequest)
			return
		}
		addrs = append(addrs, addr.Addr())
	}

	if stunErr := s.updatePermissions(addrs); stunErr != nil {
		s.sendError(req, stunErr.Code)
		return
	}

	s.sendResponse(s.newResponse(req, stun.ClassSuccess))
}
