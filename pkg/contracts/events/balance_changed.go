package events

type BalanceChanged struct {
	AccountID string `json:"account_id"`
	Username  string `json:"username"`
	Balance   int64  `json:"balance"` // saldo após a operação
	Kind      string `json:"kind"`    // stake | payout | refund | reward | adjustment
	TsUnixMs  int64  `json:"ts_unix_ms"`
}
