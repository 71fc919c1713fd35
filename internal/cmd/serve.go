package cmd

import (
	"crypto/tls"
	"fmt"
	"net/netip"
	"time"

	"github.com/pion/dtls/v2"
	"github.com/sirupsen/logrus"

	"github.com/relaycore/turncore/internal/registry"
	"github.com/relaycore/turncore/internal/session"
	"github.com/relaycore/turncore/internal/transport"
)

// ServeOpts carries everything the serve command needs to stand up a
// listener and hand every accepted client its own session, mirroring the
// opts-struct-plus-Validate convention the teacher uses for every
// subcommand (see InfoOpts).
type ServeOpts struct {
	ListenAddr string
	Protocol   string // udp, tcp, tls, dtls

	Username string
	Realm    string
	Password string

	RelayIPv4   string
	RelayIPv6   string
	MockRelayIP string
	MinPort     uint16
	MaxPort     uint16

	MaxPermissions int
	MaxAllocs      int
	ServerName     string
	Blacklist      []string
	Lifetime       time.Duration

	CertFile string
	KeyFile  string

	Log *logrus.Logger
}

func (o ServeOpts) Validate() error {
	if o.ListenAddr == "" {
		return fmt.Errorf("need a valid listen address")
	}
	switch o.Protocol {
	case "udp", "tcp", "tls", "dtls":
	default:
		return fmt.Errorf("protocol needs to be one of udp, tcp, tls, dtls")
	}
	if o.Username == "" || o.Realm == "" || o.Password == "" {
		return fmt.Errorf("need username, realm and password")
	}
	if o.RelayIPv4 == "" || o.MockRelayIP == "" {
		return fmt.Errorf("need relay-ipv4 and mock-relay-ip")
	}
	if o.MinPort == 0 || o.MaxPort == 0 || o.MinPort > o.MaxPort {
		return fmt.Errorf("need a valid [min-port, max-port] range")
	}
	if o.MaxPermissions <= 0 {
		return fmt.Errorf("need a positive max-permissions")
	}
	if (o.Protocol == "tls" || o.Protocol == "dtls") && (o.CertFile == "" || o.KeyFile == "") {
		return fmt.Errorf("tls and dtls need cert-file and key-file")
	}
	if o.Log == nil {
		return fmt.Errorf("please supply a valid logger")
	}
	return nil
}

// Serve stands up one of the four listener kinds and serves client
// sessions from it until the listener errors out or is closed.
func Serve(opts ServeOpts) error {
	if err := opts.Validate(); err != nil {
		return err
	}

	relayIPv4, err := netip.ParseAddr(opts.RelayIPv4)
	if err != nil {
		return fmt.Errorf("invalid relay-ipv4: %w", err)
	}
	mockRelayIP, err := netip.ParseAddr(opts.MockRelayIP)
	if err != nil {
		return fmt.Errorf("invalid mock-relay-ip: %w", err)
	}
	var relayIPv6 netip.Addr
	if opts.RelayIPv6 != "" {
		relayIPv6, err = netip.ParseAddr(opts.RelayIPv6)
		if err != nil {
			return fmt.Errorf("invalid relay-ipv6: %w", err)
		}
	}

	blacklist := make([]netip.Prefix, 0, len(opts.Blacklist))
	for _, raw := range opts.Blacklist {
		p, err := netip.ParsePrefix(raw)
		if err != nil {
			return fmt.Errorf("invalid blacklist entry %q: %w", raw, err)
		}
		blacklist = append(blacklist, p)
	}

	reg := registry.New()
	resolver := &loggingParentResolver{log: opts.Log}

	factory := func(clientAddr netip.AddrPort, sender session.ClientSender, kind session.TransportKind) (*session.Session, error) {
		cfg := session.Config{
			Username:       opts.Username,
			Realm:          opts.Realm,
			Key:            opts.Password,
			ClientAddr:     clientAddr,
			Transport:      kind,
			Sender:         sender,
			Blacklist:      blacklist,
			RelayIPv4:      relayIPv4,
			RelayIPv6:      relayIPv6,
			MockRelayIP:    mockRelayIP,
			MinPort:        opts.MinPort,
			MaxPort:        opts.MaxPort,
			MaxPermissions: opts.MaxPermissions,
			MaxAllocs:      opts.MaxAllocs,
			ServerName:     opts.ServerName,
			ParentResolver: resolver,
			Registry:       reg,
			Lifetime:       opts.Lifetime,
			Logger:         opts.Log,
			Hook: func(name string, info map[string]any) {
				opts.Log.WithFields(info).Info(name)
			},
		}
		return session.New(cfg)
	}

	switch opts.Protocol {
	case "udp":
		ln, err := transport.ListenUDP(opts.ListenAddr, opts.Log, factory)
		if err != nil {
			return err
		}
		return ln.Serve()
	case "tcp":
		ln, err := transport.ListenTCP(opts.ListenAddr, opts.Log, factory)
		if err != nil {
			return err
		}
		return ln.Serve()
	case "tls":
		cert, err := tls.LoadX509KeyPair(opts.CertFile, opts.KeyFile)
		if err != nil {
			return fmt.Errorf("load tls keypair: %w", err)
		}
		ln, err := transport.ListenTLS(opts.ListenAddr, &tls.Config{Certificates: []tls.Certificate{cert}}, opts.Log, factory)
		if err != nil {
			return err
		}
		return ln.Serve()
	case "dtls":
		cert, err := tls.LoadX509KeyPair(opts.CertFile, opts.KeyFile)
		if err != nil {
			return fmt.Errorf("load dtls keypair: %w", err)
		}
		ln, err := transport.ListenDTLS(opts.ListenAddr, &dtls.Config{Certificates: []tls.Certificate{cert}}, opts.Log, factory)
		if err != nil {
			return err
		}
		return ln.Serve()
	default:
		return fmt.Errorf("unsupported protocol %q", opts.Protocol)
	}
}

// loggingParentResolver stands in for the real parent process named in
// spec §1/§6: this demo binary has no actual peer-facing relay socket, so
// it just logs what it would have forwarded.
type loggingParentResolver struct {
	log *logrus.Logger
}

func (r *loggingParentResolver) Resolve(port uint16) (session.ParentLink, error) {
	return &loggingParent{log: r.log, port: port}, nil
}

type loggingParent struct {
	log  *logrus.Logger
	port uint16
}

func (p *loggingParent) ForwardConnectivityCheck(check session.ConnectivityCheck) error {
	p.log.WithField("port", p.port).WithField("username", check.Username).Debug("would forward connectivity check to parent")
	return nil
}

func (p *loggingParent) ForwardICEPayload(data []byte) error {
	p.log.WithField("port", p.port).WithField("bytes", len(data)).Debug("would forward ice payload to parent")
	return nil
}
