package events

type StakePlaced struct {
	StakeID   string `json:"stake_id"`
	AccountID string `json:"account_id"`
	MarketID  string `json:"market_id"`
	Side      string `json:"side"`
	Amount    int64  `json:"amount"`
	PoolTotal int64  `json:"pool_total"` // total do pool após a aposta
	TsUnixMs  int64  `json:"ts_unix_ms"`
}
