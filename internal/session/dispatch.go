package session

import (
	"github.com/relaycore/turncore/internal/stun"
	"github.com/relaycore/turncore/internal/turn"
)

// handleClientBytes is the top-level dispatch for spec §4.1: separate
// ChannelData framing from STUN messages, apply the retransmission
// shortcut, then route requests and indications to their handlers.
func (s *Session) handleClientBytes(raw []byte) {
	if len(raw) == 0 {
		return
	}

	if !turn.LooksLikeSTUN(raw[0]) {
		channel, data, err := turn.DecodeChannelData(raw)
		if err != nil {
			s.log.WithError(err).Debug("dropping malformed channeldata frame")
			return
		}
		s.handleChannelDataFrame(channel, data)
		return
	}

	msg, err := stun.Decode(raw)
	if err != nil {
		s.log.WithError(err).Debug("dropping malformed STUN message")
		return
	}

	if s.state == WaitForAllocate {
		if msg.Type.Class == stun.ClassRequest && msg.Type.Method == turn.MethodAllocate {
			s.handleAllocate(msg)
			return
		}
		s.log.WithField("method", msg.Type.Method).Debug("ignoring non-Allocate event in WaitForAllocate")
		return
	}

	if s.hasLast && msg.Type.Class == stun.ClassRequest && msg.TransactionID == s.lastTrid {
		s.sendToClient(s.lastPkt)
		return
	}

	switch msg.Type.Class {
	case stun.ClassRequest:
		switch msg.Type.Method {
		case turn.MethodAllocate:
			s.handleAllocate(msg)
		case turn.MethodRefresh:
			s.handleRefresh(msg)
		case turn.MethodCreatePermission:
			s.handleCreatePermission(msg)
		case turn.MethodChannelBind:
			s.handleChannelBind(msg)
		default:
			s.log.WithField("method", msg.Type.Method).Debug("ignoring unknown request method")
		}
	case stun.ClassIndication:
		if msg.Type.Method == turn.MethodSend {
			s.handleSendIndication(msg)
			return
		}
		s.log.WithField("method", msg.Type.Method).Debug("ignoring unknown indication method")
	default:
		s.log.WithField("class", msg.Type.Class).Debug("ignoring unexpected message class")
	}
}
