package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/latch-core/internal/auth"
	"github.com/nerrad567/latch-core/internal/infrastructure/config"
	"github.com/nerrad567/latch-core/internal/infrastructure/logging"
	"github.com/nerrad567/latch-core/internal/relay"
)

// ─── Ticket Tests ──────────────────────────────────────────────────

func TestWSTicket_Issue(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := authedRequest(t, http.MethodPost, "/api/v1/auth/ws-ticket", nil, auth.RoleOperator)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	ticket, _ := resp["ticket"].(string)
	if ticket == "" {
		t.Fatal("expected a non-empty ticket")
	}
	if resp["expires_in"] != float64(60) {
		t.Errorf("expires_in = %v, want 60", resp["expires_in"])
	}

	// The ticket carries the caller's identity for the upgrade handler.
	entry, ok := srv.tickets.consume(ticket)
	if !ok {
		t.Fatal("issued ticket should be consumable")
	}
	if entry.subject != "front-desk" {
		t.Errorf("ticket subject = %q, want front-desk", entry.subject)
	}
	if entry.role != auth.RoleOperator {
		t.Errorf("ticket role = %q, want %q", entry.role, auth.RoleOperator)
	}
}

func TestWSTicket_RequiresAuth(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/ws-ticket", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestTicketStore_SingleUse(t *testing.T) {
	ts := newTicketStore()
	ticket := ts.issue("front-desk", auth.RoleOperator)

	if _, ok := ts.consume(ticket); !ok {
		t.Fatal("first consume should succeed")
	}
	if _, ok := ts.consume(ticket); ok {
		t.Error("second consume should fail; tickets are single-use")
	}
}

func TestTicketStore_Expired(t *testing.T) {
	ts := newTicketStore()
	ticket := ts.issue("front-desk", auth.RoleOperator)

	// Backdate the entry past its TTL.
	ts.mu.Lock()
	entry := ts.tickets[ticket]
	entry.expiresAt = time.Now().Add(-time.Second)
	ts.tickets[ticket] = entry
	ts.mu.Unlock()

	if _, ok := ts.consume(ticket); ok {
		t.Error("expired ticket should not be consumable")
	}
}

func TestTicketStore_Clean(t *testing.T) {
	ts := newTicketStore()
	expired := ts.issue("front-desk", auth.RoleOperator)
	fresh := ts.issue("installer", auth.RoleAdmin)

	ts.mu.Lock()
	entry := ts.tickets[expired]
	entry.expiresAt = time.Now().Add(-time.Second)
	ts.tickets[expired] = entry
	ts.mu.Unlock()

	ts.clean()

	ts.mu.Lock()
	defer ts.mu.Unlock()
	if _, ok := ts.tickets[expired]; ok {
		t.Error("clean should remove expired tickets")
	}
	if _, ok := ts.tickets[fresh]; !ok {
		t.Error("clean should keep valid tickets")
	}
}

// ─── Hub Tests ─────────────────────────────────────────────────────

func testHub(t *testing.T) *Hub {
	t.Helper()
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
	return NewHub(config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}, log)
}

// hubClient builds a client without a network connection. Broadcast only
// touches the send channel, so the conn can stay nil.
func hubClient(hub *Hub, channels ...string) *WSClient {
	subs := make(map[string]struct{}, len(channels))
	for _, ch := range channels {
		subs[ch] = struct{}{}
	}
	return &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: subs,
		subject:       "front-desk",
		role:          auth.RoleOperator,
	}
}

func TestHub_BroadcastToSubscribed(t *testing.T) {
	hub := testHub(t)
	client := hubClient(hub, ChannelDoorEvent)
	hub.Register(client)

	hub.Broadcast(ChannelDoorEvent, map[string]string{"state": "unlocked"})

	select {
	case data := <-client.send:
		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if msg.Type != WSTypeEvent {
			t.Errorf("type = %q, want %q", msg.Type, WSTypeEvent)
		}
		if msg.EventType != ChannelDoorEvent {
			t.Errorf("event_type = %q, want %q", msg.EventType, ChannelDoorEvent)
		}
	default:
		t.Fatal("subscribed client should have received the broadcast")
	}
}

func TestHub_NoMessageForUnsubscribed(t *testing.T) {
	hub := testHub(t)
	client := hubClient(hub) // no subscriptions
	hub.Register(client)

	hub.Broadcast(ChannelDoorEvent, map[string]string{"state": "unlocked"})

	select {
	case <-client.send:
		t.Fatal("unsubscribed client should not receive broadcasts")
	default:
	}
}

func TestHub_ClientCount(t *testing.T) {
	hub := testHub(t)

	if hub.ClientCount() != 0 {
		t.Errorf("count = %d, want 0", hub.ClientCount())
	}

	a := hubClient(hub)
	b := hubClient(hub)
	hub.Register(a)
	hub.Register(b)

	if hub.ClientCount() != 2 {
		t.Errorf("count = %d, want 2", hub.ClientCount())
	}

	hub.Unregister(a)
	if hub.ClientCount() != 1 {
		t.Errorf("count = %d, want 1", hub.ClientCount())
	}
}

func TestHub_UnregisterTwice(t *testing.T) {
	hub := testHub(t)
	client := hubClient(hub)
	hub.Register(client)

	hub.Unregister(client)
	hub.Unregister(client) // must not double-close the send channel
}

func TestHub_PublishEvent(t *testing.T) {
	hub := testHub(t)
	client := hubClient(hub, ChannelDoorEvent)
	hub.Register(client)

	hub.Publish(relay.Event{
		ID:     "evt-1",
		Type:   relay.EventUnlocked,
		Source: relay.SourceAPI,
		Actor:  "front-desk",
		State:  relay.DoorUnlocked,
		Online: true,
		At:     time.Now().UTC(),
	})

	select {
	case data := <-client.send:
		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if msg.EventType != ChannelDoorEvent {
			t.Errorf("event_type = %q, want %q", msg.EventType, ChannelDoorEvent)
		}
		payload, ok := msg.Payload.(map[string]any)
		if !ok {
			t.Fatalf("payload type = %T, want object", msg.Payload)
		}
		if payload["type"] != string(relay.EventUnlocked) {
			t.Errorf("payload type = %v, want %q", payload["type"], relay.EventUnlocked)
		}
		if payload["source"] != string(relay.SourceAPI) {
			t.Errorf("payload source = %v, want %q", payload["source"], relay.SourceAPI)
		}
		if payload["state"] != string(relay.DoorUnlocked) {
			t.Errorf("payload state = %v, want %q", payload["state"], relay.DoorUnlocked)
		}
	default:
		t.Fatal("subscribed client should have received the door event")
	}
}

func TestHub_SlowClientSkipped(t *testing.T) {
	hub := testHub(t)
	client := hubClient(hub, ChannelDoorEvent)
	client.send = make(chan []byte) // unbuffered, nobody reading
	hub.Register(client)

	done := make(chan struct{})
	go func() {
		hub.Broadcast(ChannelDoorEvent, map[string]string{"state": "locked"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast must not block on a slow client")
	}
}

// ─── Live Server Tests ─────────────────────────────────────────────

// startTestServer starts a real HTTP listener on the given port.
func startTestServer(t *testing.T, port int) (*Server, *testDeps) {
	t.Helper()

	deps := &testDeps{
		door: &fakeDoor{status: relay.Status{Online: true, State: relay.DoorLocked}},
		sup: &fakeSupervisor{
			online: true,
			identity: relay.Identity{
				DeviceID: "front-door",
				Key:      "0123456789abcdef",
				Addr:     "192.168.1.40:6668",
				Version:  "3.3",
			},
		},
		repo: &fakeEventRepo{},
	}

	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: port,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Security: testSecurity(t),
		Logger:   log,
		Door:     deps.door,
		Relay:    deps.sup,
		Events:   deps.repo,
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	t.Cleanup(func() {
		if err := srv.Close(); err != nil {
			t.Errorf("Close() error: %v", err)
		}
	})

	// Give the listener a moment to bind
	time.Sleep(100 * time.Millisecond)

	return srv, deps
}

// fetchTicket obtains a single-use WebSocket ticket over the live API.
func fetchTicket(t *testing.T, port int) string {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, fmt.Sprintf("http://127.0.0.1:%d/api/v1/auth/ws-ticket", port), nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Authorization", bearerToken(t, "front-desk", auth.RoleOperator))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("ws-ticket request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ws-ticket status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode ticket: %v", err)
	}
	ticket, _ := body["ticket"].(string)
	if ticket == "" {
		t.Fatal("empty ticket")
	}
	return ticket
}

// connectWebSocket dials the live server's WebSocket endpoint.
func connectWebSocket(t *testing.T, port int) *websocket.Conn {
	t.Helper()

	ticket := fetchTicket(t, port)
	wsURL := fmt.Sprintf("ws://127.0.0.1:%d/api/v1/ws?ticket=%s", port, ticket)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readWSMessage reads one message with a deadline so tests never hang.
func readWSMessage(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("SetReadDeadline: %v", err)
	}
	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	return msg
}

func TestServer_StartAndClose(t *testing.T) {
	startTestServer(t, 18870)

	resp, err := http.Get("http://127.0.0.1:18870/api/v1/health")
	if err != nil {
		t.Fatalf("health request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}

func TestWebSocket_FullConnection(t *testing.T) {
	srv, _ := startTestServer(t, 18871)
	conn := connectWebSocket(t, 18871)

	// Subscribe to door events
	sub := WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "sub-1",
		Payload: WSSubscribePayload{Channels: []string{ChannelDoorEvent}},
	}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	resp := readWSMessage(t, conn)
	if resp.Type != WSTypeResponse {
		t.Fatalf("response type = %q, want %q", resp.Type, WSTypeResponse)
	}
	if resp.ID != "sub-1" {
		t.Errorf("response id = %q, want sub-1", resp.ID)
	}

	// A door event published through the hub reaches the subscriber
	srv.Hub().Publish(relay.Event{
		ID:     "evt-live",
		Type:   relay.EventUnlocked,
		Source: relay.SourceAPI,
		Actor:  "front-desk",
		State:  relay.DoorUnlocked,
		Online: true,
		At:     time.Now().UTC(),
	})

	evt := readWSMessage(t, conn)
	if evt.Type != WSTypeEvent {
		t.Errorf("event type = %q, want %q", evt.Type, WSTypeEvent)
	}
	if evt.EventType != ChannelDoorEvent {
		t.Errorf("event channel = %q, want %q", evt.EventType, ChannelDoorEvent)
	}
	payload, ok := evt.Payload.(map[string]any)
	if !ok {
		t.Fatalf("payload type = %T, want object", evt.Payload)
	}
	if payload["id"] != "evt-live" {
		t.Errorf("payload id = %v, want evt-live", payload["id"])
	}
}

func TestWebSocket_NoTicket(t *testing.T) {
	startTestServer(t, 18872)

	wsURL := "ws://127.0.0.1:18872/api/v1/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("dial without a ticket should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected handshake rejection with 401, got %v", resp)
	}
}

func TestWebSocket_InvalidTicket(t *testing.T) {
	startTestServer(t, 18873)

	wsURL := "ws://127.0.0.1:18873/api/v1/ws?ticket=bogus"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("dial with a bogus ticket should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected handshake rejection with 401, got %v", resp)
	}
}

func TestWebSocket_TicketSingleUse(t *testing.T) {
	startTestServer(t, 18874)

	ticket := fetchTicket(t, 18874)
	wsURL := fmt.Sprintf("ws://127.0.0.1:%d/api/v1/ws?ticket=%s", 18874, ticket)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("first dial: %v", err)
	}
	defer conn.Close()

	if _, _, err := websocket.DefaultDialer.Dial(wsURL, nil); err == nil {
		t.Fatal("second dial with the same ticket should fail")
	}
}

func TestWebSocket_Ping(t *testing.T) {
	startTestServer(t, 18875)
	conn := connectWebSocket(t, 18875)

	ping := WSMessage{Type: WSTypePing, ID: "ping-1"}
	if err := conn.WriteJSON(ping); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	resp := readWSMessage(t, conn)
	if resp.Type != WSTypePong {
		t.Errorf("response type = %q, want %q", resp.Type, WSTypePong)
	}
	if resp.ID != "ping-1" {
		t.Errorf("response id = %q, want ping-1", resp.ID)
	}
}

func TestWebSocket_InvalidMessage(t *testing.T) {
	startTestServer(t, 18876)
	conn := connectWebSocket(t, 18876)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	resp := readWSMessage(t, conn)
	if resp.Type != WSTypeError {
		t.Errorf("response type = %q, want %q", resp.Type, WSTypeError)
	}
	if !strings.Contains(fmt.Sprint(resp.Payload), "invalid JSON") {
		t.Errorf("payload = %v, want an invalid JSON message", resp.Payload)
	}
}
