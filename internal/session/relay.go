package session

import (
	"encoding/binary"

	"github.com/relaycore/turncore/internal/stun"
	"github.com/relaycore/turncore/internal/turn"
)

// handleSendIndication implements spec §4.1's Send-indication transition:
// track the first peer ever addressed as candidate_addr, then forward to
// the parent only if a live permission covers the peer's IP.
func (s *Session) handleSendIndication(msg *stun.Message) {
	peerAttr, ok := msg.GetAttribute(turn.AttrXorPeerAddress)
	if !ok {
		return
	}
	peer, err := turn.DecodeXORAddr(peerAttr.Value, msg.TransactionID)
	if err != nil {
		return
	}
	dataAttr, ok := msg.GetAttribute(turn.AttrData)
	if !ok {
		return
	}

	if !s.hasCandidate {
		s.hasCandidate = true
		s.candidateAddr = peer
	}

	if !s.hasPermission(peer.Addr()) {
		return
	}

	s.forwardToPeer(dataAttr.Value)
}

// handleChannelDataFrame implements spec §4.1's ChannelData transition:
// forward only if the channel is currently bound, else drop.
func (s *Session) handleChannelDataFrame(channel uint16, data []byte) {
	if _, ok := s.channels[channel]; !ok {
		return
	}
	s.forwardToPeer(data)
}

// forwardToPeer implements the client->peer half of spec §4.5: lazily
// resolve the parent from candidate_addr's port, classify the payload as
// a STUN connectivity check or an opaque ICE payload, and hand it off.
func (s *Session) forwardToPeer(payload []byte) {
	if s.parent == nil && !s.resolveParent() {
		return
	}

	if len(payload) > 0 && turn.LooksLikeSTUN(payload[0]) {
		msg, err := stun.Decode(payload)
		if err != nil {
			s.log.WithError(err).Debug("dropping malformed peer-bound STUN payload")
			return
		}
		check := connectivityCheckFromMessage(msg)
		check.SenderHandle = s
		if err := s.parent.ForwardConnectivityCheck(check); err != nil {
			s.log.WithError(err).Debug("forward connectivity check failed")
			return
		}
	} else if err := s.parent.ForwardICEPayload(payload); err != nil {
		s.log.WithError(err).Debug("forward ice payload failed")
		return
	}

	s.counters.SentBytes += int64(len(payload))
	s.counters.SentPkts++
}

// connectivityCheckFromMessage extracts the fields spec §4.5 forwards to
// the parent when a client payload decodes as a STUN message (the method is
// not checked).
func connectivityCheckFromMessage(msg *stun.Message) ConnectivityCheck {
	check := ConnectivityCheck{
		Class:         msg.Type.Class,
		TransactionID: msg.TransactionID,
	}
	if a, ok := msg.GetAttribute(stun.AttrUsername); ok {
		check.Username = string(a.Value)
	}
	if a, ok := msg.GetAttribute(turn.AttrPriority); ok && len(a.Value) >= 4 {
		check.Priority = binary.BigEndian.Uint32(a.Value)
	}
	if _, ok := msg.GetAttribute(turn.AttrUseCandidate); ok {
		check.UseCandidate = true
	}
	if _, ok := msg.GetAttribute(turn.AttrIceControlling); ok {
		check.IceControlling = true
	}
	if _, ok := msg.GetAttribute(turn.AttrIceControlled); ok {
		check.IceControlled = true
	}
	if a, ok := msg.GetAttribute(stun.AttrErrorCode); ok {
		if parsed, err := stun.ParseErrorAttribute(a.Value); err == nil {
			check.ErrorCode = &parsed.Code
		}
	}
	return check
}

// resolveParent implements spec §4.5's lazy parent binding: resolve from
// candidate_addr's port once, remembering failures in unresolved_ports so
// later payloads for the same port skip straight to dropping.
func (s *Session) resolveParent() bool {
	if !s.hasCandidate {
		return false
	}
	port := s.candidateAddr.Port()
	if _, tried := s.unresolvedPorts.Peek(port); tried {
		return false
	}

	link, err := s.cfg.ParentResolver.Resolve(port)
	if err != nil {
		s.unresolvedPorts.Add(port, struct{}{})
		s.log.WithField("port", port).WithError(err).Debug("parent resolution failed")
		return false
	}
	s.parent = link
	return true
}

// nextTransactionID mints a transaction id for a server-originated Data
// indication from the monotonic seq counter, per spec §3.1/§4.5.
func (s *Session) nextTransactionID() stun.TransactionID {
	var trid stun.TransactionID
	binary.BigEndian.PutUint32(trid[8:12], s.seq)
	s.seq++
	return trid
}

// deliverToClient implements the peer->client half of spec §4.5: choose a
// ChannelData frame, a Data indication, or a silent drop based on whether
// candidate_addr carries a live permission and/or a bound channel.
// candidate_addr is the only destination ever used: other peers that hold
// permissions never receive payloads through this path.
func (s *Session) deliverToClient(payload []byte) {
	if !s.hasCandidate {
		return
	}
	ip := s.candidateAddr.Addr()
	if !s.hasPermission(ip) {
		return
	}

	if channel, ok := s.peers[s.candidateAddr]; ok {
		s.sendToClient(turn.EncodeChannelData(channel, payload))
	} else {
		ind := stun.New(stun.ClassIndication, turn.MethodData, s.nextTransactionID())
		peerAddr, err := turn.EncodeXORAddr(s.candidateAddr, ind.TransactionID)
		if err != nil {
			s.log.WithError(err).Error("failed to encode XOR-PEER-ADDRESS for data indication")
			return
		}
		ind.Add(turn.AttrXorPeerAddress, peerAddr)
		ind.Add(turn.AttrData, payload)
		s.sendIndication(ind)
	}

	s.counters.RcvdBytes += int64(len(payload))
	s.counters.RcvdPkts++
}
