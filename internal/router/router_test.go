package router

import (
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/gdoct/apexsim-sub001/internal/codec"
	"github.com/gdoct/apexsim-sub001/internal/content"
	"github.com/gdoct/apexsim-sub001/internal/model"
	"github.com/gdoct/apexsim-sub001/internal/registry"
	"github.com/gdoct/apexsim-sub001/internal/transport"
)

func testStore() *content.Store {
	store := content.NewStore()
	store.AddCar(&model.CarConfig{ID: model.CarConfigID{1}, Name: "kart"})
	store.AddTrack(&model.TrackConfig{
		ID:   model.TrackConfigID{1},
		Name: "oval",
		Centerline: []model.CenterlinePoint{
			{X: 0, Y: 0, ArcLength: 0},
			{X: 100, Y: 0, ArcLength: 100},
			{X: 100, Y: 100, ArcLength: 200},
			{X: 0, Y: 0, ArcLength: 300},
		},
		WidthM:    10,
		GridSlots: []model.GridSlot{{Index: 0}, {Index: 1}, {Index: 2}, {Index: 3}},
	})
	return store
}

func testRouter() (*Router, *transport.Manager) {
	reg := registry.New(testStore(), registry.Settings{
		TickPeriodMs:         1000.0 / 240,
		CountdownTicks:       720,
		RaceTimeCeilingTicks: 1_000_000,
		FinishedGraceTicks:   14400,
	}, zerolog.Nop())
	connMgr := transport.NewManager(zerolog.Nop())
	addresses := transport.NewAddressRegistry()
	r := New(reg, connMgr, nil, addresses, Settings{
		HeartbeatTimeout:       10 * time.Second,
		MalformedThreshold:     10,
		MalformedWindowSeconds: 60,
	}, zerolog.Nop())
	return r, connMgr
}

func pipeConnection(t *testing.T, id model.ConnectionID) (net.Conn, *transport.Connection) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() { client.Close() })
	return client, transport.NewConnection(id, server, zerolog.Nop())
}

func TestRouterAuthenticateThenCreateSession(t *testing.T) {
	r, connMgr := testRouter()
	client, conn := pipeConnection(t, 1)
	connMgr.Add(conn)
	go conn.WritePump()

	r.applyReliable(conn, codec.Authenticate{Token: "dev", Name: "alice"}, 1)

	resp := mustReadFrom(t, client)
	success, ok := resp.(codec.AuthSuccess)
	if !ok {
		t.Fatalf("expected AuthSuccess, got %T", resp)
	}

	playerID := success.PlayerID
	if _, ok := r.reg.ConnectionPlayer(conn.ID); !ok {
		t.Fatal("expected connection to be mapped to a player")
	}

	if err := r.reg.SelectCar(playerID, model.CarConfigID{1}); err != nil {
		t.Fatalf("SelectCar: %v", err)
	}

	r.applyReliable(conn, codec.CreateSession{TrackID: model.TrackConfigID{1}, MaxPlayers: 4, LapLimit: 3}, 1)
	resp2 := mustReadFrom(t, client)
	if _, ok := resp2.(codec.SessionJoined); !ok {
		t.Fatalf("expected SessionJoined, got %T", resp2)
	}
}

func TestRouterRejectsUnauthenticatedSessionOps(t *testing.T) {
	r, connMgr := testRouter()
	client, conn := pipeConnection(t, 1)
	connMgr.Add(conn)
	go conn.WritePump()

	r.applyReliable(conn, codec.CreateSession{TrackID: model.TrackConfigID{1}, MaxPlayers: 4}, 1)

	resp := mustReadFrom(t, client)
	errMsg, ok := resp.(codec.Error)
	if !ok {
		t.Fatalf("expected Error, got %T", resp)
	}
	if errMsg.Code != codec.ErrCodeProtocolViolation {
		t.Errorf("expected protocol violation code, got %d", errMsg.Code)
	}
}

func TestRouterDisconnectRemovesPlayerFromSession(t *testing.T) {
	r, connMgr := testRouter()
	client, conn := pipeConnection(t, 1)
	connMgr.Add(conn)
	go conn.WritePump()

	playerID, err := r.reg.Authenticate(conn.ID, "dev", "alice")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if err := r.reg.SelectCar(playerID, model.CarConfigID{1}); err != nil {
		t.Fatalf("SelectCar: %v", err)
	}
	sessionID, err := r.reg.CreateSession(playerID, model.TrackConfigID{1}, 4, 0, 3)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	r.disconnect(conn)

	if _, ok := r.reg.PlayerSession(playerID); ok {
		t.Error("expected player to be removed from session on disconnect")
	}
	sessions := r.reg.Sessions()
	if sess, ok := sessions[sessionID]; ok {
		if _, still := sess.Participants[playerID]; still {
			t.Error("expected participant removed from session")
		}
	}
}

func mustReadFrom(t *testing.T, conn net.Conn) codec.Message {
	t.Helper()
	type result struct {
		msg codec.Message
		err error
	}
	ch := make(chan result, 1)
	go func() {
		msg, err := codec.ReadFrame(conn)
		ch <- result{msg, err}
	}()
	select {
	case res := <-ch:
		if res.err != nil {
			t.Fatalf("ReadFrame: %v", res.err)
		}
		return res.msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}
