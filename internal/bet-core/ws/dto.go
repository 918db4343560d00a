package ws

// ClientMsg representa uma mensagem recebida do cliente WebSocket
// Type: subscribe | unsubscribe | ping
// MarketID: obrigatório para subscribe/unsubscribe
type ClientMsg struct {
	Type     string `json:"type"`     // subscribe | unsubscribe | ping
	MarketID string `json:"marketId"` // requerido em subscribe/unsubscribe
}

// PoolUpdate representa uma atualização de pool enviada para clientes WebSocket
type PoolUpdate struct {
	MarketID string      `json:"marketId"`
	Payload  interface{} `json:"payload"`
}
