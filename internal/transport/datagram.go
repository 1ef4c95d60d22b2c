package transport

import (
	"net"
	"sync"

	"github.com/rs/zerolog"

	"github.com/gdoct/apexsim-sub001/internal/codec"
	"github.com/gdoct/apexsim-sub001/internal/model"
)

// datagramQueueCapacity is not referenced by the socket: inbound inputs
// are coalesced into a per-player map where the newest input supersedes
// older ones (§4.7, §9 coalescing), so no inbound queue exists to bound.
const datagramQueueCapacity = 1024

// AddressRegistry correlates UDP source addresses to player ids. A
// player's remote IP is recorded when it authenticates over the
// reliable channel; the first datagram seen from that IP binds the
// player permanently to the exact address (ip:port) it sent from, since
// a client's ephemeral UDP source port is not knowable in advance. This
// is the registry's resolution of §4.7's "correlated to a
// connection/player id by source address" for a wire format that never
// carries a player id.
type AddressRegistry struct {
	mu          sync.RWMutex
	pendingByIP map[string]model.PlayerID
	boundByAddr map[string]model.PlayerID
}

func NewAddressRegistry() *AddressRegistry {
	return &AddressRegistry{
		pendingByIP: make(map[string]model.PlayerID),
		boundByAddr: make(map[string]model.PlayerID),
	}
}

// RegisterPending records that ip belongs to playerID, to be bound to a
// concrete address on the first datagram received from it.
func (a *AddressRegistry) RegisterPending(playerID model.PlayerID, ip string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pendingByIP[ip] = playerID
}

// Forget removes all bindings for playerID, e.g. on disconnect.
func (a *AddressRegistry) Forget(playerID model.PlayerID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for ip, id := range a.pendingByIP {
		if id == playerID {
			delete(a.pendingByIP, ip)
		}
	}
	for addr, id := range a.boundByAddr {
		if id == playerID {
			delete(a.boundByAddr, addr)
		}
	}
}

// Resolve returns the player id bound to addr, binding it from a
// pending IP-only registration on first sight.
func (a *AddressRegistry) Resolve(addr *net.UDPAddr) (model.PlayerID, bool) {
	key := addr.String()

	a.mu.RLock()
	if id, ok := a.boundByAddr[key]; ok {
		a.mu.RUnlock()
		return id, true
	}
	a.mu.RUnlock()

	a.mu.Lock()
	defer a.mu.Unlock()
	if id, ok := a.boundByAddr[key]; ok {
		return id, true
	}
	if id, ok := a.pendingByIP[addr.IP.String()]; ok {
		a.boundByAddr[key] = id
		delete(a.pendingByIP, addr.IP.String())
		return id, true
	}
	return model.PlayerID{}, false
}

// BindAddr returns the address a player is currently bound to, for the
// emit step's outbound datagram sends.
func (a *AddressRegistry) BindAddr(playerID model.PlayerID) (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for addr, id := range a.boundByAddr {
		if id == playerID {
			return addr, true
		}
	}
	return "", false
}

// InputSample is one coalesced datagram input, tagged with the player it
// was resolved to.
type InputSample struct {
	PlayerID model.PlayerID
	Input    codec.PlayerInput
}

// DatagramSocket is the single receive/send pair described in §4.7.
type DatagramSocket struct {
	conn      *net.UDPConn
	addresses *AddressRegistry
	log       zerolog.Logger

	mu     sync.Mutex
	latest map[model.PlayerID]codec.PlayerInput
}

func NewDatagramSocket(addr string, addresses *AddressRegistry, logger zerolog.Logger) (*DatagramSocket, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}
	return &DatagramSocket{
		conn:      conn,
		addresses: addresses,
		log:       logger.With().Str("component", "transport-datagram").Logger(),
		latest:    make(map[model.PlayerID]codec.PlayerInput),
	}, nil
}

// ReceiveLoop decodes inbound datagrams and coalesces them into the
// latest-input-per-player map (§5, §9: "one datagram's input overwrites
// any older unconsumed input for the same player").
func (s *DatagramSocket) ReceiveLoop(stop <-chan struct{}) {
	buf := make([]byte, 2048)
	for {
		select {
		case <-stop:
			return
		default:
		}

		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-stop:
				return
			default:
				s.log.Debug().Err(err).Msg("datagram read failed")
				continue
			}
		}

		msg, err := codec.Decode(buf[:n])
		if err != nil {
			continue // malformed datagrams are silently dropped, unlike the reliable channel's counted violations
		}
		input, ok := msg.(codec.PlayerInput)
		if !ok {
			continue
		}

		playerID, ok := s.addresses.Resolve(addr)
		if !ok {
			continue
		}

		s.mu.Lock()
		s.latest[playerID] = input
		s.mu.Unlock()
	}
}

// DrainLatest returns and clears the coalesced inputs since the last
// drain, for the scheduler's drain step.
func (s *DatagramSocket) DrainLatest() map[model.PlayerID]codec.PlayerInput {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.latest
	s.latest = make(map[model.PlayerID]codec.PlayerInput)
	return out
}

// Send writes one payload-per-datagram message to addr (§4.7 framing:
// "Datagram: one payload per datagram", no length prefix).
func (s *DatagramSocket) Send(addr string, msg codec.Message) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return
	}
	payload, err := codec.Encode(msg)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to encode datagram payload")
		return
	}
	if _, err := s.conn.WriteToUDP(payload, udpAddr); err != nil {
		s.log.Debug().Err(err).Msg("datagram send failed")
	}
}

func (s *DatagramSocket) Close() error {
	return s.conn.Close()
}
