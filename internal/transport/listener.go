package transport

import (
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gdoct/apexsim-sub001/internal/codec"
	"github.com/gdoct/apexsim-sub001/internal/model"
)

// TLSConfig bundles the three-way TLS decision from §4.7: required with
// material present (handshake), absent and not required (plain stream
// with a warning), or required with missing/invalid material (Fatal,
// refuse to start).
type TLSConfig struct {
	CertPath string
	KeyPath  string
	Required bool
}

// OnConnect is invoked once per accepted connection. No pump is running
// yet when it is called; starting them is the callback's job. Over TLS
// the handshake has not run yet either: it happens on the first read or
// write.
type OnConnect func(*Connection)

// Listener accepts reliable-channel connections (§4.7).
type Listener struct {
	addr   string
	tlsCfg TLSConfig
	log    zerolog.Logger

	mu      sync.Mutex
	nextID  uint64
	netLn   net.Listener
	closing bool
}

func NewListener(addr string, tlsCfg TLSConfig, logger zerolog.Logger) *Listener {
	return &Listener{addr: addr, tlsCfg: tlsCfg, log: logger.With().Str("component", "transport-listener").Logger()}
}

// Start binds the listener, performing the TLS decision described in
// §4.7, and returns once bound (Fatal-class errors surface here, before
// the tick loop runs).
func (l *Listener) Start() error {
	tcpLn, err := net.Listen("tcp", l.addr)
	if err != nil {
		return fmt.Errorf("transport: binding reliable listener on %s: %w", l.addr, err)
	}

	switch {
	case l.tlsCfg.CertPath != "" && l.tlsCfg.KeyPath != "":
		cert, err := tls.LoadX509KeyPair(l.tlsCfg.CertPath, l.tlsCfg.KeyPath)
		if err != nil {
			tcpLn.Close()
			return fmt.Errorf("transport: loading tls material: %w", err)
		}
		l.netLn = tls.NewListener(tcpLn, &tls.Config{Certificates: []tls.Certificate{cert}})
		l.log.Info().Msg("reliable listener bound with tls")
	case l.tlsCfg.Required:
		tcpLn.Close()
		return ErrTLSRequired
	default:
		l.netLn = tcpLn
		l.log.Warn().Msg("reliable listener bound without tls")
	}
	return nil
}

// Accept runs the accept loop, wrapping each new connection in a
// Connection and handing it to onConnect, which starts its pumps
// (§4.7: "accept loop spawns one task per connection").
func (l *Listener) Accept(onConnect OnConnect) {
	for {
		conn, err := l.netLn.Accept()
		if err != nil {
			l.mu.Lock()
			closing := l.closing
			l.mu.Unlock()
			if closing {
				return
			}
			l.log.Warn().Err(err).Msg("accept failed")
			continue
		}

		l.mu.Lock()
		l.nextID++
		id := model.ConnectionID(l.nextID)
		l.mu.Unlock()

		c := NewConnection(id, conn, l.log)
		onConnect(c)
	}
}

// Close stops the accept loop and the underlying listener.
func (l *Listener) Close() error {
	l.mu.Lock()
	l.closing = true
	l.mu.Unlock()
	if l.netLn == nil {
		return nil
	}
	return l.netLn.Close()
}

// BroadcastShutdown sends msg (the terminal 503 error) to every
// connection and waits up to grace for outbound queues to flush before
// returning (§4.7 graceful shutdown). The caller owns the connection
// registry; the listener itself does not track live connections.
func BroadcastShutdown(conns []*Connection, msg codec.Message, grace time.Duration) {
	for _, c := range conns {
		c.Send(msg)
	}
	time.Sleep(grace)
}
