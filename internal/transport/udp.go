// Package transport adapts the accept side of the listener code the
// teacher only ever used to dial out (internal/connection.go,
// internal/helper/connection.go) into the three socket kinds a TURN
// server core needs to be fed from: unreliable datagram, reliable
// stream, and reliable stream over TLS/DTLS.
package transport

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/relaycore/turncore/internal/session"
)

// SessionFactory builds a fresh session for a newly seen client. For
// datagram transports it is called whenever a datagram arrives from a client
// address that has no live session (so again after that address's session
// has ended); for stream transports it is called once per accepted
// connection.
type SessionFactory func(clientAddr netip.AddrPort, sender session.ClientSender, kind session.TransportKind) (*session.Session, error)

// datagramSender implements session.ClientSender by writing back to a
// single remote address on a shared UDP socket.
type datagramSender struct {
	conn *net.UDPConn
	addr netip.AddrPort
}

func (d *datagramSender) Send(data []byte) error {
	_, err := d.conn.WriteToUDPAddrPort(data, d.addr)
	return err
}

// UDPListener demultiplexes inbound datagrams by source address,
// spinning up exactly one session per client the way each accepted TCP
// connection gets exactly one session in StreamListener.
type UDPListener struct {
	conn    *net.UDPConn
	log     *logrus.Logger
	factory SessionFactory

	mu       sync.Mutex
	sessions map[netip.AddrPort]*session.Session
}

// ListenUDP opens a UDP socket at addr and returns a listener ready for
// Serve.
func ListenUDP(addr string, log *logrus.Logger, factory SessionFactory) (*UDPListener, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: resolve udp addr: %w", err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen udp: %w", err)
	}
	return &UDPListener{
		conn:     conn,
		log:      log,
		factory:  factory,
		sessions: make(map[netip.AddrPort]*session.Session),
	}, nil
}

// Serve reads datagrams until the socket is closed, routing each to its
// session's event loop (spawning a new session and its Run goroutine on
// first sight of a client address).
func (l *UDPListener) Serve() error {
	buf := make([]byte, 64*1024)
	for {
		n, addr, err := l.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			return fmt.Errorf("transport: udp read: %w", err)
		}
		data := append([]byte{}, buf[:n]...)

		s, err := l.sessionFor(addr)
		if err != nil {
			l.log.WithError(err).WithField("client", addr).Warn("dropping datagram: could not build session")
			continue
		}
		s.DeliverClientMessage(data)
	}
}

func (l *UDPListener) sessionFor(addr netip.AddrPort) (*session.Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if s, ok := l.sessions[addr]; ok {
		return s, nil
	}

	sender := &datagramSender{conn: l.conn, addr: addr}
	s, err := l.factory(addr, sender, session.TransportUnreliableDatagram)
	if err != nil {
		return nil, err
	}
	l.sessions[addr] = s
	go l.runSession(addr, s)
	return s, nil
}

func (l *UDPListener) runSession(addr netip.AddrPort, s *session.Session) {
	_ = s.Run(context.Background())
	l.mu.Lock()
	delete(l.sessions, addr)
	l.mu.Unlock()
}

// Close stops accepting new datagrams.
func (l *UDPListener) Close() error {
	return l.conn.Close()
}
