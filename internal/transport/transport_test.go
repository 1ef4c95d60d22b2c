package transport

import (
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/gdoct/apexsim-sub001/internal/codec"
	"github.com/gdoct/apexsim-sub001/internal/model"
)

func TestOutboundQueueDroppableReplacesOldest(t *testing.T) {
	q := newOutboundQueue()
	for i := 0; i < outboundCapacity+5; i++ {
		if err := q.push(codec.TagTelemetry, []byte{byte(i)}); err != nil {
			t.Fatalf("push: %v", err)
		}
	}
	if len(q.droppableCh) != outboundCapacity {
		t.Fatalf("expected queue capped at %d, got %d", outboundCapacity, len(q.droppableCh))
	}
}

func TestOutboundQueueNonDroppableBlocksThenErrors(t *testing.T) {
	q := newOutboundQueue()
	for i := 0; i < outboundCapacity; i++ {
		if err := q.push(codec.TagError, []byte{byte(i)}); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}
	// the queue is now full; the next non-droppable push must wait out
	// the deadline and report a slow consumer.
	start := time.Now()
	err := q.push(codec.TagError, []byte{99})
	if err != ErrSlowConsumer {
		t.Fatalf("expected ErrSlowConsumer, got %v", err)
	}
	if time.Since(start) < nonDroppableDeadline {
		t.Error("expected push to wait out the deadline before failing")
	}
}

func TestOutboundQueuePopPrefersNonDroppable(t *testing.T) {
	q := newOutboundQueue()
	q.push(codec.TagTelemetry, []byte("telemetry"))
	q.push(codec.TagError, []byte("error"))

	closeCh := make(chan struct{})
	frame, ok := q.pop(closeCh)
	if !ok {
		t.Fatal("expected a frame")
	}
	if frame.tag != codec.TagError {
		t.Errorf("expected non-droppable frame first, got tag %v", frame.tag)
	}
}

func TestAddressRegistryBindsOnFirstDatagram(t *testing.T) {
	reg := NewAddressRegistry()
	playerID := model.NewPlayerID()
	reg.RegisterPending(playerID, "127.0.0.1")

	addr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 54321}
	got, ok := reg.Resolve(addr)
	if !ok || got != playerID {
		t.Fatalf("expected to resolve pending registration, got %v, %v", got, ok)
	}

	// a second datagram from the same address resolves without needing
	// another pending registration.
	got2, ok2 := reg.Resolve(addr)
	if !ok2 || got2 != playerID {
		t.Fatalf("expected bound address to resolve again, got %v, %v", got2, ok2)
	}
}

func TestAddressRegistryForgetRemovesBindings(t *testing.T) {
	reg := NewAddressRegistry()
	playerID := model.NewPlayerID()
	reg.RegisterPending(playerID, "127.0.0.1")
	addr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 1}
	reg.Resolve(addr)

	reg.Forget(playerID)
	if _, ok := reg.BindAddr(playerID); ok {
		t.Error("expected binding to be forgotten")
	}
}

func TestManagerTracksConnections(t *testing.T) {
	mgr := NewManager(zerolog.Nop())
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	conn := NewConnection(model.ConnectionID(1), server, zerolog.Nop())
	mgr.Add(conn)

	if _, ok := mgr.Get(model.ConnectionID(1)); !ok {
		t.Fatal("expected connection to be tracked")
	}
	if len(mgr.All()) != 1 {
		t.Fatalf("expected 1 connection, got %d", len(mgr.All()))
	}

	mgr.Remove(model.ConnectionID(1))
	if _, ok := mgr.Get(model.ConnectionID(1)); ok {
		t.Error("expected connection to be removed")
	}
}

func TestManagerCheckTimeoutsFlagsStaleConnections(t *testing.T) {
	mgr := NewManager(zerolog.Nop())
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	conn := NewConnection(model.ConnectionID(1), server, zerolog.Nop())
	conn.Touch(0)
	mgr.Add(conn)

	stale := mgr.CheckTimeouts(10000, 1000.0/240, 10*time.Second)
	if len(stale) != 1 {
		t.Fatalf("expected 1 stale connection, got %d", len(stale))
	}

	conn.Touch(9999)
	stale = mgr.CheckTimeouts(10000, 1000.0/240, 10*time.Second)
	if len(stale) != 0 {
		t.Fatalf("expected 0 stale connections after touch, got %d", len(stale))
	}
}

func TestConnectionReadPumpDeliversDecodedMessages(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	conn := NewConnection(model.ConnectionID(1), server, zerolog.Nop())
	malformedCount := 0
	go conn.ReadPump(func() { malformedCount++ }, func(error) {})

	go codec.WriteFrame(client, codec.Authenticate{Token: "dev", Name: "P"})

	select {
	case msg := <-conn.Inbound():
		auth, ok := msg.(codec.Authenticate)
		if !ok {
			t.Fatalf("expected Authenticate, got %T", msg)
		}
		if auth.Name != "P" {
			t.Errorf("expected name P, got %q", auth.Name)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for decoded message")
	}
}

func TestConnectionWritePumpFramesMessages(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	conn := NewConnection(model.ConnectionID(1), server, zerolog.Nop())
	go conn.WritePump()

	conn.Send(codec.AuthSuccess{PlayerID: model.NewPlayerID(), ServerVersion: "1"})

	done := make(chan struct{})
	go func() {
		msg, err := codec.ReadFrame(client)
		if err != nil {
			t.Errorf("ReadFrame: %v", err)
		} else if _, ok := msg.(codec.AuthSuccess); !ok {
			t.Errorf("expected AuthSuccess, got %T", msg)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for framed write")
	}
}
