package dto

type StakeResponse struct {
	StakeID    string `json:"stakeId"`
	MarketID   string `json:"marketId"`
	Amount     int64  `json:"amount"`
	Side       string `json:"side"`
	NewBalance int64  `json:"new_balance"`
	PoolTotal  int64  `json:"pool_total"`
}

type BalanceResponse struct {
	AccountID string `json:"account_id"`
	Username  string `json:"username"`
	Balance   int64  `json:"balance"`
}

type ResolveResponse struct {
	MarketID string `json:"marketId"`
	State    string `json:"state"`
	Outcome  string `json:"outcome,omitempty"`
	Entries  int    `json:"entries"`
	Payouts  int64  `json:"payouts"`  // soma creditada
	Refunded bool   `json:"refunded"` // devolução integral (sem vencedores / void)
}

type TapsResponse struct {
	Earned     int64 `json:"earned"`
	NewBalance int64 `json:"new_balance"`
}

type TaskCompleteResponse struct {
	TaskID     string `json:"taskId"`
	NewBalance int64  `json:"new_balance"`
}

// ErrorResponse preserva o tipo do erro e os limites violados, pra
// apresentação poder mostrar exatamente a restrição quebrada.
type ErrorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind"`
	Min     *int64 `json:"min,omitempty"`
	Max     *int64 `json:"max,omitempty"`
	Balance *int64 `json:"balance,omitempty"`
}
