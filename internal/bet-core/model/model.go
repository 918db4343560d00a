// Package model define os tipos de domínio do bet-core.
// Valores monetários são int64 em $COCO inteiros (sem frações).
package model

import "time"

// EntryKind classifica um lançamento no ledger.
type EntryKind string

const (
	KindStake      EntryKind = "stake"      // débito ao apostar (valor negativo)
	KindPayout     EntryKind = "payout"     // crédito de liquidação
	KindRefund     EntryKind = "refund"     // devolução integral (void / sem vencedores)
	KindReward     EntryKind = "reward"     // recompensa de tarefa ou taps
	KindAdjustment EntryKind = "adjustment" // ajuste administrativo
)

// ValidKind informa se o tipo de lançamento é conhecido.
func ValidKind(k EntryKind) bool {
	switch k {
	case KindStake, KindPayout, KindRefund, KindReward, KindAdjustment:
		return true
	}
	return false
}

// MarketState é o estado do ciclo de vida de um mercado.
type MarketState string

const (
	StateOpen     MarketState = "open"
	StateClosed   MarketState = "closed"
	StateResolved MarketState = "resolved"
	StateVoid     MarketState = "void"
)

// Account é a conta interna de um usuário do Telegram.
// Balance é cache derivado do ledger; nunca é mutado diretamente.
type Account struct {
	ID         string    `json:"id"`
	TelegramID string    `json:"telegram_id"`
	Username   string    `json:"username"`
	Balance    int64     `json:"balance"`
	CreatedAt  time.Time `json:"created_at"`
}

// LedgerEntry é um lançamento imutável no ledger. Criado apenas pelo
// pool accountant, settlement engine ou rewards; nunca atualizado ou removido.
type LedgerEntry struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	Amount    int64     `json:"amount"` // com sinal: débito negativo, crédito positivo
	Kind      EntryKind `json:"kind"`
	MarketID  string    `json:"market_id,omitempty"` // vazio quando não referencia mercado
	CreatedAt time.Time `json:"created_at"`
}

// Market é uma proposição de aposta com janela de staking e desfecho.
// Mercados nunca são removidos (auditoria).
type Market struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	MinAmount   int64       `json:"min_amount"`
	MaxAmount   int64       `json:"max_amount"`
	StartTime   time.Time   `json:"start_time"`
	EndTime     time.Time   `json:"end_time"`
	State       MarketState `json:"state"`
	Outcome     string      `json:"outcome,omitempty"` // preenchido só em resolved
	PoolTotal   int64       `json:"pool_total"`        // contador mantido transacionalmente
	CreatedAt   time.Time   `json:"created_at"`
	SettledAt   *time.Time  `json:"settled_at,omitempty"`
}

// StateAt avalia o estado efetivo contra o relógio: um mercado "open" cuja
// janela terminou conta como "closed" mesmo sem transição persistida.
// A checagem dentro do placeStake usa isso; não dependemos de timer.
func (m *Market) StateAt(now time.Time) MarketState {
	if m.State == StateOpen && !now.Before(m.EndTime) {
		return StateClosed
	}
	return m.State
}

// AcceptsStakes informa se o mercado aceita novas apostas no instante dado.
func (m *Market) AcceptsStakes(now time.Time) bool {
	return m.StateAt(now) == StateOpen && !now.Before(m.StartTime)
}

// Terminal informa se o estado é final (resolved/void).
func (m *Market) Terminal() bool {
	return m.State == StateResolved || m.State == StateVoid
}

// Stake é o compromisso de uma conta em um lado de um mercado.
// No máximo um por (account, market); imutável após criado.
type Stake struct {
	ID        string    `json:"id"`
	MarketID  string    `json:"market_id"`
	AccountID string    `json:"account_id"`
	Amount    int64     `json:"amount"`
	Side      string    `json:"side"` // ex: "yes" | "no"
	PlacedAt  time.Time `json:"placed_at"`
}

// Task é uma tarefa do catálogo que concede recompensa ao ser completada.
type Task struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	RewardAmount int64  `json:"reward_amount"`
	Active       bool   `json:"active"`
}

// TaskCompletion registra que uma conta completou (e recebeu) uma tarefa.
type TaskCompletion struct {
	AccountID   string    `json:"account_id"`
	TaskID      string    `json:"task_id"`
	CompletedAt time.Time `json:"completed_at"`
}
