package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/relaycore/turncore/internal/session"
)

const defaultStreamTimeout = 30 * time.Second

// streamSender implements session.ClientSender over an accepted
// connection, mirroring the write-deadline discipline of the teacher's
// helper.ConnectionWrite.
type streamSender struct {
	conn    net.Conn
	timeout time.Duration
}

func (s *streamSender) Send(data []byte) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.timeout)); err != nil {
		return fmt.Errorf("transport: set write deadline: %w", err)
	}
	written := 0
	for written < len(data) {
		n, err := s.conn.Write(data[written:])
		if err != nil {
			return fmt.Errorf("transport: stream write: %w", err)
		}
		written += n
	}
	return nil
}

// StreamListener accepts connections on a net.Listener (plain TCP or
// TLS-wrapped) and runs exactly one session per connection.
type StreamListener struct {
	ln      net.Listener
	log     *logrus.Logger
	factory SessionFactory
	kind    session.TransportKind
	timeout time.Duration
}

// ListenTCP opens a plain TCP listener.
func ListenTCP(addr string, log *logrus.Logger, factory SessionFactory) (*StreamListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen tcp: %w", err)
	}
	return &StreamListener{ln: ln, log: log, factory: factory, kind: session.TransportReliableStream, timeout: defaultStreamTimeout}, nil
}

// ListenTLS opens a TLS-wrapped TCP listener.
func ListenTLS(addr string, cfg *tls.Config, log *logrus.Logger, factory SessionFactory) (*StreamListener, error) {
	ln, err := tls.Listen("tcp", addr, cfg)
	if err != nil {
		return nil, fmt.Errorf("transport: listen tls: %w", err)
	}
	return &StreamListener{ln: ln, log: log, factory: factory, kind: session.TransportReliableStreamTLS, timeout: defaultStreamTimeout}, nil
}

// Serve accepts connections until the listener is closed, handing each
// off to its own session goroutine.
func (l *StreamListener) Serve() error {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			return fmt.Errorf("transport: accept: %w", err)
		}
		go l.handle(conn)
	}
}

func (l *StreamListener) handle(conn net.Conn) {
	defer conn.Close()

	addr, err := netip.ParseAddrPort(conn.RemoteAddr().String())
	if err != nil {
		l.log.WithError(err).Warn("could not parse remote address, dropping connection")
		return
	}

	timeout := l.timeout
	if timeout == 0 {
		timeout = defaultStreamTimeout
	}
	s, err := l.factory(addr, &streamSender{conn: conn, timeout: timeout}, l.kind)
	if err != nil {
		l.log.WithError(err).WithField("client", addr).Warn("dropping connection: could not build session")
		return
	}

	go l.pump(conn, s)
	_ = s.Run(context.Background())
}

func (l *StreamListener) pump(conn net.Conn, s *session.Session) {
	buf := make([]byte, 64*1024)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		s.DeliverClientMessage(append([]byte{}, buf[:n]...))
	}
}

// Close stops accepting new connections.
func (l *StreamListener) Close() error {
	return l.ln.Close()
}
