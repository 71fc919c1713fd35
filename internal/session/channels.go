package session

import (
	"encoding/binary"
	"net/netip"

	"github.com/relaycore/turncore/internal/stun"
	"github.com/relaycore/turncore/internal/turn"
)

// handleChannelBind implements spec §4.4's ChannelBind transition:
//  1. channel number out of [0x4000, 0x7FFE] -> 400
//  2. not exactly one XOR-PEER-ADDRESS -> 400
//  3. peer already bound to a different channel -> 400
//  4. channel already bound to a different peer -> 400
//  5. update_permissions([peer_ip]); propagate its error verbatim
//  6. otherwise (re)arm a 10-minute channel timer and bind both maps
func (s *Session) handleChannelBind(req *stun.Message) {
	chanAttr, ok := req.GetAttribute(turn.AttrChannelNumber)
	if !ok || len(chanAttr.Value) < 2 {
		s.sendError(req, stun.ErrBadRequest)
		return
	}
	channel := binary.BigEndian.Uint16(chanAttr.Value)
	if channel < turn.MinChannelNumber || channel > turn.MaxChannelNumber {
		s.sendError(req, stun.ErrBadRequest)
		return
	}

	peerAttrs := req.GetAttributes(turn.AttrXorPeerAddress)
	if len(peerAttrs) != 1 {
		s.sendError(req, stun.ErrBadRequest)
		return
	}
	peer, err := turn.DecodeXORAddr(peerAttrs[0].Value, req.TransactionID)
	if err != nil {
		s.sendError(req, stun.ErrBadRequest)
		return
	}

	if existingChan, ok := s.peers[peer]; ok && existingChan != channel {
		s.sendError(req, stun.ErrBadRequest)
		return
	}
	if existing, ok := s.channels[channel]; ok && existing.peer != peer {
		s.sendError(req, stun.ErrBadRequest)
		return
	}

	if stunErr := s.updatePermissions([]netip.Addr{peer.Addr()}); stunErr != nil {
		s.sendError(req, stunErr.Code)
		return
	}

	if !s.hasCandidate {
		s.hasCandidate = true
		s.candidateAddr = peer
	}

	s.armChannelTimer(channel, peer)
	s.sendResponse(s.newResponse(req, stun.ClassSuccess))
}

// armChannelTimer cancels any existing timer for channel and arms a fresh
// ChannelLifetime one, binding channel<->peer in both directions.
func (s *Session) armChannelTimer(channel uint16, peer netip.AddrPort) {
	if existing, ok := s.channels[channel]; ok {
		s.wheel.Cancel(existing.token)
		delete(s.timers, existing.token)
		delete(s.peers, existing.peer)
	}
	tok := s.wheel.Schedule(ChannelLifetime)
	s.timers[tok] = timerRole{kind: timerKindChannel, channel: channel}
	s.channels[channel] = channelEntry{peer: peer, token: tok}
	s.peers[peer] = channel
}

// expireChannel tears down the channel<->peer binding. It does not touch
// the peer's permission, which runs on its own independent timer.
func (s *Session) expireChannel(channel uint16) {
	entry, ok := s.channels[channel]
	if !ok {
		return
	}
	delete(s.channels, channel)
	delete(s.peers, entry.peer)
	s.log.WithField("channel", channel).Debug("channel expired")
}
