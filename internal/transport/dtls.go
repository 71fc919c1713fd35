package transport

import (
	"fmt"
	"net"

	"github.com/pion/dtls/v2"
	"github.com/sirupsen/logrus"

	"github.com/relaycore/turncore/internal/session"
)

// ListenDTLS opens a DTLS-wrapped UDP listener, the server-side
// counterpart of the teacher's client-only dtls.ClientWithContext call
// in internal/connection.go. Accepted connections behave like any other
// reliable stream for session purposes: DTLS retransmits at the record
// layer, so write failures are still treated as fatal.
func ListenDTLS(addr string, cfg *dtls.Config, log *logrus.Logger, factory SessionFactory) (*StreamListener, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: resolve dtls addr: %w", err)
	}
	ln, err := dtls.Listen("udp", udpAddr, cfg)
	if err != nil {
		return nil, fmt.Errorf("transport: listen dtls: %w", err)
	}
	return &StreamListener{ln: ln, log: log, factory: factory, kind: session.TransportReliableStreamTLS}, nil
}
