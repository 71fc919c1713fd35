package session

import (
	"encoding/binary"
	"time"

	"github.com/relaycore/turncore/internal/stun"
	"github.com/relaycore/turncore/internal/turn"
)

// handleRefresh implements spec §4.1's Refresh rules for the Active state.
func (s *Session) handleRefresh(req *stun.Message) {
	if famAttr, ok := req.GetAttribute(turn.AttrRequestedAddressFamily); ok && len(famAttr.Value) >= 1 {
		wantsIPv6 := turn.AddressFamily(famAttr.Value[0]) == turn.AddressFamilyIPv6
		relayIsIPv6 := s.relayAddr.Addr().Is6()
		if wantsIPv6 != relayIsIPv6 {
			s.sendError(req, turn.ErrPeerAddressFamilyMismatch)
			return
		}
	}

	lifetimeAttr, present := req.GetAttribute(turn.AttrLifetime)
	var requested time.Duration
	if present {
		if len(lifetimeAttr.Value) < 4 {
			s.sendError(req, stun.ErrBadRequest)
			return
		}
		requested = time.Duration(binary.BigEndian.Uint32(lifetimeAttr.Value)) * time.Second
	}

	if present && requested == 0 {
		resp := s.newResponse(req, stun.ClassSuccess)
		resp.Add(turn.AttrLifetime, []byte{0, 0, 0, 0})
		s.sendResponse(resp)
		s.terminate(nil)
		return
	}

	granted := clampRefreshLifetime(requested, present)
	s.armLifeTimer(granted)

	resp := s.newResponse(req, stun.ClassSuccess)
	secs := make([]byte, 4)
	binary.BigEndian.PutUint32(secs, uint32(granted.Seconds()))
	resp.Add(turn.AttrLifetime, secs)
	s.sendResponse(resp)
}
