// TURN: https://datatracker.ietf.org/doc/html/rfc5766
// STUN: https://datatracker.ietf.org/doc/html/rfc5389
// TURN Extension for IPv6: https://datatracker.ietf.org/doc/html/rfc6156
// ICE: https://datatracker.ietf.org/doc/html/rfc8445

package main

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/relaycore/turncore/internal/cmd"
)

func main() {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	log.SetLevel(logrus.InfoLevel)

	app := &cli.App{
		Name:  "turncored",
		Usage: "run a TURN per-allocation relay core",
		Commands: []*cli.Command{
			{
				Name:        "serve",
				Usage:       "accept client connections and run one session per allocation",
				Description: "Starts a listener of the given kind and hands every client its own allocation session.",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "debug", Aliases: []string{"d"}, Usage: "enable debug output"},
					&cli.StringFlag{Name: "listen", Aliases: []string{"l"}, Value: "0.0.0.0:3478", Usage: "address to listen on"},
					&cli.StringFlag{Name: "protocol", Value: "udp", Usage: "listener kind: udp, tcp, tls or dtls"},
					&cli.StringFlag{Name: "username", Aliases: []string{"u"}, Required: true, Usage: "long-term credential username"},
					&cli.StringFlag{Name: "realm", Required: true, Usage: "long-term credential realm"},
					&cli.StringFlag{Name: "password", Aliases: []string{"p"}, Required: true, Usage: "long-term credential password"},
					&cli.StringFlag{Name: "relay-ipv4", Required: true, Usage: "configured IPv4 relay address"},
					&cli.StringFlag{Name: "relay-ipv6", Usage: "configured IPv6 relay address (optional)"},
					&cli.StringFlag{Name: "mock-relay-ip", Required: true, Usage: "IP advertised in XOR-RELAYED-ADDRESS"},
					&cli.UintFlag{Name: "min-port", Value: 49152, Usage: "lower bound of advertised relay ports"},
					&cli.UintFlag{Name: "max-port", Value: 65535, Usage: "upper bound of advertised relay ports"},
					&cli.IntFlag{Name: "max-permissions", Value: 64, Usage: "cap on the permission table size"},
					&cli.IntFlag{Name: "max-allocs", Value: 0, Usage: "per-user concurrent allocation cap (0 = unlimited)"},
					&cli.StringFlag{Name: "server-name", Value: "turncore", Usage: "value placed in the SOFTWARE attribute"},
					&cli.StringSliceFlag{Name: "blacklist", Usage: "additional CIDR ranges to blacklist, beyond the always-on defaults"},
					&cli.DurationFlag{Name: "lifetime", Value: 10 * time.Minute, Usage: "requested initial allocation lifetime"},
					&cli.StringFlag{Name: "cert-file", Usage: "certificate file, required for tls/dtls"},
					&cli.StringFlag{Name: "key-file", Usage: "key file, required for tls/dtls"},
				},
				Before: func(ctx *cli.Context) error {
					if ctx.Bool("debug") {
						log.SetLevel(logrus.DebugLevel)
					}
					return nil
				},
				Action: func(c *cli.Context) error {
					return cmd.Serve(cmd.ServeOpts{
						ListenAddr:     c.String("listen"),
						Protocol:       c.String("protocol"),
						Username:       c.String("username"),
						Realm:          c.String("realm"),
						Password:       c.String("password"),
						RelayIPv4:      c.String("relay-ipv4"),
						RelayIPv6:      c.String("relay-ipv6"),
						MockRelayIP:    c.String("mock-relay-ip"),
						MinPort:        uint16(c.Uint("min-port")), // nolint:gosec
						MaxPort:        uint16(c.Uint("max-port")), // nolint:gosec
						MaxPermissions: c.Int("max-permissions"),
						MaxAllocs:      c.Int("max-allocs"),
						ServerName:     c.String("server-name"),
						Blacklist:      c.StringSlice("blacklist"),
						Lifetime:       c.Duration("lifetime"),
						CertFile:       c.String("cert-file"),
						KeyFile:        c.String("key-file"),
						Log:            log,
					})
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
