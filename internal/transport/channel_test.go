package transport

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/gorilla/websocket"

	"github.com/rickgao/netpulse/internal/model"
)

func testChannelConfig(url string) ChannelConfig {
	cfg := DefaultChannelConfig()
	cfg.Client = testClientConfig(url)
	cfg.ReconnectMin = 10 * time.Millisecond
	cfg.ReconnectMax = 50 * time.Millisecond
	return cfg
}

func stopChannel(t *testing.T, ch *Channel) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := ch.Stop(ctx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}

func TestChannel_DispatchesEvents(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"entity_telemetry","data":{"1":{"status":true}}}`))
		drain(conn)
	})
	defer server.Close()

	ch := NewChannel(testChannelConfig(wsURL(server)), nil, nil)

	connected := make(chan struct{}, 1)
	got := make(chan json.RawMessage, 1)
	ch.On(EventConnected, func(json.RawMessage, time.Time) { connected <- struct{}{} })
	ch.On(EventEntityTelemetry, func(data json.RawMessage, receivedAt time.Time) {
		if receivedAt.IsZero() {
			t.Error("receivedAt should not be zero")
		}
		got <- data
	})

	if err := ch.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer stopChannel(t, ch)

	select {
	case <-connected:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for connected event")
	}

	select {
	case data := <-got:
		if string(data) != `{"1":{"status":true}}` {
			t.Errorf("data = %s, want entity payload", data)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for telemetry")
	}

	if ch.Status() != model.TransportConnected {
		t.Errorf("Status() = %v, want %v", ch.Status(), model.TransportConnected)
	}
}

func TestChannel_Emit(t *testing.T) {
	frames := make(chan []byte, 1)
	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			frames <- msg
		}
	})
	defer server.Close()

	ch := NewChannel(testChannelConfig(wsURL(server)), nil, nil)

	if err := ch.Emit(EventJoinScope, ScopeParams{ScopeID: "r1"}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Emit before connect error = %v, want %v", err, ErrNotConnected)
	}

	statuses := make(chan model.TransportStatus, 4)
	ch.OnStatus(func(st model.TransportStatus) { statuses <- st })

	if err := ch.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer stopChannel(t, ch)

	select {
	case st := <-statuses:
		if st != model.TransportConnected {
			t.Fatalf("status = %v, want %v", st, model.TransportConnected)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for connected status")
	}

	params := EntitiesParams{ScopeID: "r1", EntityIDs: []model.EntityID{"ether1", "ether2"}}
	if err := ch.Emit(EventSubscribeEntities, params); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}

	select {
	case frame := <-frames:
		var env Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			t.Fatalf("unmarshal envelope: %v", err)
		}
		if env.Event != EventSubscribeEntities {
			t.Errorf("Event = %s, want %s", env.Event, EventSubscribeEntities)
		}
		if string(env.Data) != `{"scopeId":"r1","entityIds":["ether1","ether2"]}` {
			t.Errorf("Data = %s", env.Data)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for frame")
	}
}

func TestChannel_Reconnects(t *testing.T) {
	var conns atomic.Int32
	server := mockWSServer(t, func(conn *websocket.Conn) {
		if conns.Add(1) == 1 {
			// Drop the first connection
			return
		}
		drain(conn)
	})
	defer server.Close()

	ch := NewChannel(testChannelConfig(wsURL(server)), nil, nil)

	statuses := make(chan model.TransportStatus, 8)
	ch.OnStatus(func(st model.TransportStatus) { statuses <- st })

	var connectedEvents atomic.Int32
	ch.On(EventConnected, func(json.RawMessage, time.Time) { connectedEvents.Add(1) })

	if err := ch.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	want := []model.TransportStatus{
		model.TransportConnected,
		model.TransportReconnecting,
		model.TransportConnected,
	}
	for i, w := range want {
		select {
		case st := <-statuses:
			if st != w {
				t.Fatalf("status %d = %v, want %v", i, st, w)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout waiting for status %d (%v)", i, w)
		}
	}

	deadline := time.Now().Add(time.Second)
	for connectedEvents.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := connectedEvents.Load(); n != 2 {
		t.Errorf("connected events = %d, want 2", n)
	}

	stopChannel(t, ch)

	select {
	case st := <-statuses:
		if st != model.TransportDisconnected {
			t.Errorf("status after stop = %v, want %v", st, model.TransportDisconnected)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for disconnected status")
	}
}

func TestChannel_StopWhileDialFailing(t *testing.T) {
	ch := NewChannel(testChannelConfig("ws://127.0.0.1:1"), nil, nil)

	if err := ch.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	stopChannel(t, ch)

	if ch.Status() != model.TransportDisconnected {
		t.Errorf("Status() = %v, want %v", ch.Status(), model.TransportDisconnected)
	}
}

func TestChannel_ReconnectDelayFollowsClock(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	mClock := quartz.NewMock(t)
	trap := mClock.Trap().NewTimer("transport", "reconnect")
	defer trap.Close()

	cfg := testChannelConfig("ws://127.0.0.1:1")
	cfg.ReconnectMin = time.Minute
	cfg.ReconnectMax = 10 * time.Minute
	ch := NewChannel(cfg, nil, nil, WithClock(mClock))

	if err := ch.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer stopChannel(t, ch)

	first := trap.MustWait(ctx)
	if first.Duration != time.Minute {
		t.Errorf("first delay = %v, want %v", first.Duration, time.Minute)
	}
	first.MustRelease(ctx)
	mClock.Advance(first.Duration).MustWait(ctx)

	second := trap.MustWait(ctx)
	if second.Duration < time.Minute || second.Duration > 2*time.Minute {
		t.Errorf("second delay = %v, want within [1m, 2m]", second.Duration)
	}
	second.MustRelease(ctx)

	if ch.Status() != model.TransportDisconnected {
		t.Errorf("Status() = %v, want %v before any connection", ch.Status(), model.TransportDisconnected)
	}
}
