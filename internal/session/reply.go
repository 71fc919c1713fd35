package session

import (
	"github.com/relaycore/turncore/internal/stun"
)

// newResponse builds a response sharing the request's method and
// transaction id, stamping SOFTWARE if configured.
func (s *Session) newResponse(req *stun.Message, class stun.Class) *stun.Message {
	resp := stun.New(class, req.Type.Method, req.TransactionID)
	if s.cfg.ServerName != "" {
		resp.Add(stun.AttrSoftware, []byte(s.cfg.ServerName))
	}
	return resp
}

// sendResponse encodes and sends resp, caching it for retransmission
// suppression per spec §3.2/§4.1 ("only updated for responses, not
// indications"). Callers building an indication must use sendIndication
// instead.
func (s *Session) sendResponse(resp *stun.Message) {
	data, err := resp.Encode(s.key)
	if err != nil {
		s.log.WithError(err).Error("failed to encode response")
		return
	}
	s.lastTrid = resp.TransactionID
	s.lastPkt = data
	s.hasLast = true
	s.sendToClient(data)
}

// sendIndication encodes and sends an indication without touching the
// retransmission cache.
func (s *Session) sendIndication(msg *stun.Message) {
	data, err := msg.Encode(s.key)
	if err != nil {
		s.log.WithError(err).Error("failed to encode indication")
		return
	}
	s.sendToClient(data)
}

// sendError builds and sends a STUN error response for req.
func (s *Session) sendError(req *stun.Message, code stun.ErrorCode, extra ...stun.Attribute) {
	resp := s.newResponse(req, stun.ClassError)
	resp.Add(stun.AttrErrorCode, stun.NewError(code).ToAttribute())
	for _, a := range extra {
		resp.Attributes = append(resp.Attributes, a)
	}
	s.sendResponse(resp)
}
