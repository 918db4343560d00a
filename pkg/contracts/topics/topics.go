package topics

const (
	// Apostas
	StakePlaced = "stake_placed"

	// Liquidação de mercados
	MarketResolved = "market_resolved"

	// Saldos (projeção do leaderboard)
	BalanceChanged = "balance_changed"
)
