package session

import (
	"encoding/binary"

	"github.com/relaycore/turncore/internal/stun"
	"github.com/relaycore/turncore/internal/turn"
)

// handleParentMessage implements spec §4.5's Peer -> Client direction: the
// parent injects either a structured connectivity check to build and sign,
// or an already-encoded opaque payload to deliver as-is.
func (s *Session) handleParentMessage(msg ParentMessage) {
	switch {
	case msg.ConnectivityCheck != nil:
		s.handleConnectivityCheck(msg.ConnectivityCheck)
	case msg.ICEPayload != nil:
		s.deliverToClient(msg.ICEPayload)
	default:
		s.log.Debug("ignoring empty parent message")
	}
}

// handleConnectivityCheck builds a STUN Binding message from the parent's
// params, signs it with the supplied ICE password, appends a FINGERPRINT,
// and proceeds to deliver it to the client, per spec §4.5.
func (s *Session) handleConnectivityCheck(p *ConnectivityCheckParams) {
	msg := stun.New(p.Class, stun.MethodBinding, p.TransactionID)

	if p.Username != "" {
		msg.Add(stun.AttrUsername, []byte(p.Username))
	}
	if p.Priority != 0 {
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, p.Priority)
		msg.Add(turn.AttrPriority, buf)
	}
	if p.UseCandidate {
		msg.Add(turn.AttrUseCandidate, nil)
	}
	if p.IceControlling {
		msg.Add(turn.AttrIceControlling, nil)
	}
	if p.IceControlled {
		msg.Add(turn.AttrIceControlled, nil)
	}
	if p.ErrorCode != nil {
		msg.Add(stun.AttrErrorCode, stun.NewError(*p.ErrorCode).ToAttribute())
	}
	if p.Class == stun.ClassSuccess && s.hasRelay {
		if mapped, err := turn.EncodeXORAddr(s.relayAddr, p.TransactionID); err == nil {
			msg.Add(stun.AttrXorMappedAddress, mapped)
		}
	}

	data, err := msg.Encode(&stun.Key{Username: p.Username, Password: p.Password})
	if err != nil {
		s.log.WithError(err).Error("failed to encode connectivity check")
		return
	}
	data = stun.AddFingerprint(data)

	s.deliverToClient(data)
}
