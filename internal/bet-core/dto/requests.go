package dto

import "time"

// Caller identifica o usuário do Telegram nas requisições autenticadas
// pela borda (o core só faz passthrough de identidade).
type Caller struct {
	TelegramID string `json:"telegramId"`
	Username   string `json:"username,omitempty"`
}

type PlaceStakeRequest struct {
	Caller
	Amount int64  `json:"amount"` // em $COCO inteiros
	Side   string `json:"side"`   // ex: "yes" | "no"
}

type CreateMarketRequest struct {
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	MinAmount   int64     `json:"min_amount"`
	MaxAmount   int64     `json:"max_amount"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
}

type ResolveRequest struct {
	Outcome string `json:"outcome"`
	FeeBps  int64  `json:"fee_bps"`
}

type CompleteTaskRequest struct {
	Caller
}

type TapsRequest struct {
	Caller
	Taps int64 `json:"taps"`
}
