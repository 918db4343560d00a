package ws

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// conn embrulha a conexão com um mutex de escrita: o pong sai da goroutine
// de leitura e o Broadcast da goroutine do assinante Redis, e o
// gorilla/websocket não permite escritores concorrentes.
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Hub gerencia conexões WebSocket e assinaturas de atualizações de pool
// subs: mapeia marketID para o conjunto de conexões inscritas
type Hub struct {
	upgrader websocket.Upgrader
	mu       sync.RWMutex
	// marketID -> set of connections
	subs map[string]map[*conn]struct{}
}

// NewHub cria uma instância de Hub com política customizada de origem (CORS)
func NewHub(allowOrigin func(r *http.Request) bool) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: allowOrigin},
		subs:     make(map[string]map[*conn]struct{}),
	}
}

// HandleWS gerencia o ciclo de vida de uma conexão WebSocket
// Permite subscribe/unsubscribe em mercados e responde a pings
// Cada cliente pode se inscrever em múltiplos marketIDs
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	raw, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &conn{ws: raw}
	defer raw.Close()

	for {
		var msg ClientMsg
		if err := raw.ReadJSON(&msg); err != nil {
			break
		}
		switch msg.Type {
		case "subscribe":
			h.mu.Lock()
			if _, ok := h.subs[msg.MarketID]; !ok {
				h.subs[msg.MarketID] = make(map[*conn]struct{})
			}
			h.subs[msg.MarketID][c] = struct{}{}
			h.mu.Unlock()
		case "unsubscribe":
			h.mu.Lock()
			if m, ok := h.subs[msg.MarketID]; ok {
				delete(m, c)
				if len(m) == 0 {
					delete(h.subs, msg.MarketID)
				}
			}
			h.mu.Unlock()
		case "ping":
			_ = c.write([]byte(`{"type":"pong"}`))
		}
	}
	// Remove a conexão de todas as assinaturas ao desconectar
	h.mu.Lock()
	for _, set := range h.subs {
		delete(set, c)
	}
	h.mu.Unlock()
}

// Broadcast envia uma atualização de pool para todos os clientes inscritos no marketID correspondente
func (h *Hub) Broadcast(update PoolUpdate) {
	h.mu.RLock()
	conns := make([]*conn, 0, len(h.subs[update.MarketID]))
	for c := range h.subs[update.MarketID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	if len(conns) == 0 {
		return
	}

	b, _ := json.Marshal(update)
	for _, c := range conns {
		_ = c.write(b)
	}
}
