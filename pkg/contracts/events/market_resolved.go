package events

import "time"

// Evento emitido pelo bet-core-service após liquidar um mercado.
type MarketResolved struct {
	MarketID  string    `json:"market_id"`
	Title     string    `json:"title"`
	Outcome   string    `json:"outcome"` // vazio quando o mercado foi anulado (void)
	State     string    `json:"state"`   // "resolved" | "void"
	TotalPool int64     `json:"total_pool"`
	FeeBps    int64     `json:"fee_bps"`
	Winners   int       `json:"winners"`
	Payouts   int64     `json:"payouts"` // soma dos pagamentos creditados
	Ts        time.Time `json:"ts"`
}
