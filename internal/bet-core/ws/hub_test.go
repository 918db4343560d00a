package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

// subscribe inscreve e espera o pong de um ping: como o servidor processa as
// mensagens da conexão em ordem, o pong confirma que o subscribe foi aplicado.
func subscribe(t *testing.T, c *websocket.Conn, marketID string) {
	t.Helper()
	if err := c.WriteJSON(ClientMsg{Type: "subscribe", MarketID: marketID}); err != nil {
		t.Fatal(err)
	}
	if err := c.WriteJSON(ClientMsg{Type: "ping"}); err != nil {
		t.Fatal(err)
	}
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg map[string]string
	if err := c.ReadJSON(&msg); err != nil {
		t.Fatal(err)
	}
	if msg["type"] != "pong" {
		t.Fatalf("got %v, want pong", msg)
	}
}

func TestHubBroadcastReachesSubscriber(t *testing.T) {
	hub := NewHub(func(*http.Request) bool { return true })
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	c := dial(t, srv)
	subscribe(t, c, "m1")

	hub.Broadcast(PoolUpdate{MarketID: "m1", Payload: map[string]int64{"pool_total": 80}})

	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	var upd PoolUpdate
	if err := c.ReadJSON(&upd); err != nil {
		t.Fatal(err)
	}
	if upd.MarketID != "m1" {
		t.Fatalf("marketId = %q, want m1", upd.MarketID)
	}
}

func TestHubBroadcastSkipsOtherMarkets(t *testing.T) {
	hub := NewHub(func(*http.Request) bool { return true })
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	c := dial(t, srv)
	subscribe(t, c, "m1")

	hub.Broadcast(PoolUpdate{MarketID: "m2", Payload: "x"})
	hub.Broadcast(PoolUpdate{MarketID: "m1", Payload: "y"})

	// só a atualização de m1 chega
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	var upd PoolUpdate
	if err := c.ReadJSON(&upd); err != nil {
		t.Fatal(err)
	}
	if upd.MarketID != "m1" {
		t.Fatalf("marketId = %q, want m1", upd.MarketID)
	}
}

// Pongs saem da goroutine de leitura e broadcasts da goroutine do assinante;
// as escritas na mesma conexão são serializadas pelo mutex do conn.
func TestHubConcurrentBroadcastAndPing(t *testing.T) {
	hub := NewHub(func(*http.Request) bool { return true })
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	c := dial(t, srv)
	subscribe(t, c, "m1")

	const broadcasts = 20
	const pings = 5

	var wg sync.WaitGroup
	for i := 0; i < broadcasts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hub.Broadcast(PoolUpdate{MarketID: "m1", Payload: "tick"})
		}()
	}
	for i := 0; i < pings; i++ {
		if err := c.WriteJSON(ClientMsg{Type: "ping"}); err != nil {
			t.Fatal(err)
		}
	}
	wg.Wait()

	// todas as mensagens chegam inteiras, em qualquer ordem
	var gotPongs, gotUpdates int
	_ = c.SetReadDeadline(time.Now().Add(3 * time.Second))
	for gotPongs+gotUpdates < broadcasts+pings {
		_, raw, err := c.ReadMessage()
		if err != nil {
			t.Fatalf("after %d pongs and %d updates: %v", gotPongs, gotUpdates, err)
		}
		var frame struct {
			Type     string `json:"type"`
			MarketID string `json:"marketId"`
		}
		if err := json.Unmarshal(raw, &frame); err != nil {
			t.Fatalf("malformed frame %q: %v", raw, err)
		}
		switch {
		case frame.Type == "pong":
			gotPongs++
		case frame.MarketID == "m1":
			gotUpdates++
		default:
			t.Fatalf("unexpected frame %q", raw)
		}
	}
	if gotPongs != pings || gotUpdates != broadcasts {
		t.Fatalf("pongs=%d updates=%d, want %d/%d", gotPongs, gotUpdates, pings, broadcasts)
	}
}

func TestHubUnsubscribeStopsDelivery(t *testing.T) {
	hub := NewHub(func(*http.Request) bool { return true })
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	c := dial(t, srv)
	subscribe(t, c, "m1")

	if err := c.WriteJSON(ClientMsg{Type: "unsubscribe", MarketID: "m1"}); err != nil {
		t.Fatal(err)
	}
	// pong confirma o unsubscribe processado
	if err := c.WriteJSON(ClientMsg{Type: "ping"}); err != nil {
		t.Fatal(err)
	}
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg map[string]string
	if err := c.ReadJSON(&msg); err != nil {
		t.Fatal(err)
	}

	hub.Broadcast(PoolUpdate{MarketID: "m1", Payload: "x"})

	_ = c.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, _, err := c.ReadMessage(); err == nil {
		t.Fatal("received update after unsubscribe")
	}
}
