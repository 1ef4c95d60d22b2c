// Package transport owns the reliable stream listener and datagram
// socket described in §4.7: per-connection read/write pump goroutines,
// bounded priority-classified outbound queues, heartbeat housekeeping,
// and graceful shutdown. The pump-goroutine-pair-per-connection shape is
// grounded on the teacher's Client.ReadPump/Client.WritePump, adapted
// from a websocket frame to the spec's own 4-byte length-prefixed
// framing.
package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/gdoct/apexsim-sub001/internal/codec"
	"github.com/gdoct/apexsim-sub001/internal/model"
)

const inboundQueueCapacity = 256

// Connection wraps one reliable-channel stream: a TCP (optionally
// TLS-wrapped) connection from a single client.
type Connection struct {
	ID   model.ConnectionID
	conn net.Conn

	inbound  chan codec.Message
	outbound *outboundQueue

	lastSeenTick atomic.Int64
	slow         atomic.Bool

	malformedMu    sync.Mutex
	malformedCount int
	windowStart    time.Time

	closeOnce sync.Once
	closed    chan struct{}

	log zerolog.Logger
}

// NewConnection wraps an accepted net.Conn. Callers are responsible for
// registering it with a Manager and starting its pumps.
func NewConnection(id model.ConnectionID, conn net.Conn, logger zerolog.Logger) *Connection {
	return &Connection{
		ID:       id,
		conn:     conn,
		inbound:  make(chan codec.Message, inboundQueueCapacity),
		outbound: newOutboundQueue(),
		closed:   make(chan struct{}),
		log:      logger.With().Uint64("connection_id", uint64(id)).Logger(),
	}
}

// RemoteIP returns the connection's peer IP address, used to correlate
// the datagram channel to this connection (§4.7).
func (c *Connection) RemoteIP() string {
	host, _, err := net.SplitHostPort(c.conn.RemoteAddr().String())
	if err != nil {
		return c.conn.RemoteAddr().String()
	}
	return host
}

// Inbound is the channel the scheduler's drain step consumes from.
func (c *Connection) Inbound() <-chan codec.Message { return c.inbound }

// Send enqueues a message for the write pump, classifying it as
// droppable or non-droppable per §4.7.
func (c *Connection) Send(msg codec.Message) {
	payload, err := codec.Encode(msg)
	if err != nil {
		c.log.Error().Err(err).Msg("failed to encode outbound message")
		return
	}
	if err := c.outbound.push(msg.Tag(), payload); err != nil {
		c.slow.Store(true)
		c.log.Warn().Err(err).Msg("marking connection slow")
	}
}

// IsSlow reports whether a non-droppable send has missed its deadline;
// the scheduler's housekeep step disconnects slow connections.
func (c *Connection) IsSlow() bool { return c.slow.Load() }

// Touch records that a heartbeat (or any traffic) was seen at tick.
func (c *Connection) Touch(tick int64) { c.lastSeenTick.Store(tick) }

// LastSeenTick reports the last tick at which traffic was observed.
func (c *Connection) LastSeenTick() int64 { return c.lastSeenTick.Load() }

// Close shuts down both pumps and the underlying socket. Safe to call
// more than once.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}

// ReadPump decodes framed messages until the connection errors or
// closes, applying the malformed-message counter (§7, §10). A malformed
// frame does not itself close the connection; onMalformed is invoked so
// the caller can track the windowed threshold and decide whether
// to disconnect.
func (c *Connection) ReadPump(onMalformed func(), onFatal func(error)) {
	defer c.Close()

	for {
		msg, err := codec.ReadFrame(c.conn)
		if err != nil {
			if errors.Is(err, codec.ErrMalformed) {
				onMalformed()
				continue
			}
			select {
			case <-c.closed:
			default:
				onFatal(err)
			}
			return
		}

		select {
		case c.inbound <- msg:
		case <-c.closed:
			return
		}
	}
}

// RecordMalformed increments the malformed-frame counter and reports
// whether it now exceeds threshold (§10). The window is fixed, not
// sliding: it starts at the first malformed frame, and the first frame
// that arrives after window has elapsed starts a new window with the
// count reset.
func (c *Connection) RecordMalformed(threshold int, window time.Duration) bool {
	c.malformedMu.Lock()
	defer c.malformedMu.Unlock()

	now := time.Now()
	if c.windowStart.IsZero() || now.Sub(c.windowStart) > window {
		c.windowStart = now
		c.malformedCount = 0
	}
	c.malformedCount++
	return c.malformedCount > threshold
}

// WritePump drains the outbound queue and frames each message onto the
// wire until the connection closes.
func (c *Connection) WritePump() {
	defer c.Close()

	for {
		frame, ok := c.outbound.pop(c.closed)
		if !ok {
			return
		}
		if err := writeLengthPrefixed(c.conn, frame.payload); err != nil {
			c.log.Debug().Err(err).Msg("write pump stopping")
			return
		}
	}
}

func writeLengthPrefixed(w io.Writer, payload []byte) error {
	length := len(payload)
	header := []byte{byte(length >> 24), byte(length >> 16), byte(length >> 8), byte(length)}
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("transport: writing frame header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("transport: writing frame payload: %w", err)
	}
	return nil
}
