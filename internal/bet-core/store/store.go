// Package store define a interface de persistência do bet-core e suas
// implementações (memória para testes, Postgres para produção).
//
// Operações compostas (PlaceStake, SettleMarket, AppendLedger, CompleteTask)
// são atômicas em cada implementação: ou tudo commita ou nada persiste.
package store

import (
	"context"
	"time"

	"github.com/cocognome/coco-bet-core/internal/bet-core/model"
)

type Store interface {
	// Contas e ledger
	GetOrCreateAccount(ctx context.Context, telegramID, username string) (*model.Account, error)
	GetAccount(ctx context.Context, accountID string) (*model.Account, error)
	Balance(ctx context.Context, accountID string) (int64, error)
	SumLedger(ctx context.Context, accountID string) (int64, error)
	SetBalance(ctx context.Context, accountID string, balance int64) error
	ListLedger(ctx context.Context, accountID string) ([]model.LedgerEntry, error)

	// AppendLedger insere o lançamento e atualiza o saldo cacheado na mesma
	// transação. Débitos que cruzariam o piso zero falham com
	// InsufficientFundsError. Retorna o novo saldo.
	AppendLedger(ctx context.Context, e *model.LedgerEntry) (int64, error)

	// Mercados
	CreateMarket(ctx context.Context, m *model.Market) error
	GetMarket(ctx context.Context, marketID string) (*model.Market, error)
	ListOpenMarkets(ctx context.Context, now time.Time) ([]model.Market, error)

	// TransitionMarket muda o estado se o atual estiver em from; estados
	// terminais respondem ErrAlreadyResolved, os demais ErrMarketNotOpen.
	TransitionMarket(ctx context.Context, marketID string, from []model.MarketState, to model.MarketState, at time.Time) error

	// Apostas
	GetStake(ctx context.Context, marketID, accountID string) (*model.Stake, error)
	PoolTotal(ctx context.Context, marketID string) (int64, error)

	// PlaceStake insere aposta + débito no ledger + bump do contador do pool
	// atomicamente, revalidando sob lock: janela do mercado (contra now),
	// duplicidade por (account, market) e saldo suficiente.
	// Retorna o novo saldo da conta e o novo total do pool.
	PlaceStake(ctx context.Context, s *model.Stake, debit *model.LedgerEntry, now time.Time) (newBalance, poolTotal int64, err error)

	// SettleMarket aplica a transição terminal e grava os lançamentos de
	// liquidação atomicamente. Os stakes são listados sob o mesmo lock do
	// mercado e passados ao callback settle, que devolve os lançamentos:
	// nenhuma aposta pode commitar entre a listagem e a transição, então todo
	// stake aceito entra na liquidação. Estados terminais respondem
	// ErrAlreadyResolved. Retorna o saldo resultante por conta creditada.
	SettleMarket(ctx context.Context, marketID string, to model.MarketState, outcome string, settle func(stakes []model.Stake) []model.LedgerEntry, at time.Time) (map[string]int64, error)

	// Tarefas
	CreateTask(ctx context.Context, t *model.Task) error
	GetTask(ctx context.Context, taskID string) (*model.Task, error)
	ListTasks(ctx context.Context) ([]model.Task, error)
	CompletedTaskIDs(ctx context.Context, accountID string) (map[string]bool, error)

	// CompleteTask registra a conclusão e credita a recompensa atomicamente.
	// Conclusão repetida falha com ErrAlreadyClaimed. Retorna o novo saldo.
	CompleteTask(ctx context.Context, c *model.TaskCompletion, reward *model.LedgerEntry) (int64, error)
}
