// Package bus publishes extraction events to NATS.
//
// One subject per RPC method, so downstream consumers can subscribe to the
// node surfaces they care about without filtering.
package bus

import (
	"fmt"
	"os"
	"strings"

	"github.com/nats-io/nats.go"

	"rpcextractor/internal/config"
	logx "rpcextractor/pkg/logx"
)

const clientName = "rpc-extractor"

// Connect establishes the NATS connection. Credentials are optional; a
// password may be read from a file holding only the password (trailing
// whitespace trimmed).
func Connect(cfg config.NatsConfig, log logx.Logger) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name(clientName),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", logx.Err(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", logx.String("url", nc.ConnectedUrl()))
		}),
	}

	user := strings.TrimSpace(cfg.Username)
	if user != "" {
		pass := cfg.Password
		if pf := strings.TrimSpace(cfg.PasswordFile); pf != "" {
			b, err := os.ReadFile(pf)
			if err != nil {
				return nil, fmt.Errorf("nats password file: %w", err)
			}
			pass = strings.TrimSpace(string(b))
			log.Info("using nats password from file", logx.String("user", user), logx.String("file", pf))
		}
		if pass == "" {
			log.Warn("no nats password supplied", logx.String("user", user), logx.String("address", cfg.Address))
		}
		opts = append(opts, nats.UserInfo(user, pass))
	}

	addr := strings.TrimSpace(cfg.Address)
	log.Info("connecting to nats", logx.String("address", addr), logx.Bool("authenticated", user != ""))
	nc, err := nats.Connect("nats://"+addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", addr, err)
	}
	return nc, nil
}
