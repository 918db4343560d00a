// Package ledger é o único mutador de saldo do bet-core. Saldo de conta é,
// por definição, a soma com sinal dos lançamentos; a coluna cacheada é
// otimização e é reconciliada sob demanda.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cocognome/coco-bet-core/internal/bet-core/model"
	"github.com/cocognome/coco-bet-core/internal/bet-core/store"
	"github.com/cocognome/coco-bet-core/internal/shared/metrics"
)

var ErrInvalidKind = errors.New("invalid ledger entry kind")

type Ledger struct {
	log *zap.Logger
	st  store.Store
}

func New(log *zap.Logger, st store.Store) *Ledger {
	return &Ledger{log: log, st: st}
}

// Append grava um lançamento. Débitos que cruzariam o piso zero falham com
// InsufficientFundsError dentro da mesma transação que faria o débito —
// não existe janela entre checar saldo e debitar.
func (l *Ledger) Append(ctx context.Context, accountID string, amount int64, kind model.EntryKind, marketRef string) (*model.LedgerEntry, error) {
	if !model.ValidKind(kind) {
		return nil, ErrInvalidKind
	}

	e := &model.LedgerEntry{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Amount:    amount,
		Kind:      kind,
		MarketID:  marketRef,
		CreatedAt: time.Now().UTC(),
	}

	newBalance, err := l.st.AppendLedger(ctx, e)
	if err != nil {
		return nil, err
	}

	metrics.LedgerEntries.WithLabelValues(string(kind)).Inc()
	l.log.Debug("ledger append",
		zap.String("account", accountID),
		zap.Int64("amount", amount),
		zap.String("kind", string(kind)),
		zap.Int64("balance", newBalance),
	)
	return e, nil
}

// Balance retorna o saldo cacheado da conta.
func (l *Ledger) Balance(ctx context.Context, accountID string) (int64, error) {
	return l.st.Balance(ctx, accountID)
}

// Entries lista os lançamentos da conta em ordem de criação.
func (l *Ledger) Entries(ctx context.Context, accountID string) ([]model.LedgerEntry, error) {
	return l.st.ListLedger(ctx, accountID)
}

// Reconcile recomputa o saldo a partir do stream de lançamentos e conserta o
// cache se divergirem. Retorna o saldo correto.
func (l *Ledger) Reconcile(ctx context.Context, accountID string) (int64, error) {
	sum, err := l.st.SumLedger(ctx, accountID)
	if err != nil {
		return 0, err
	}
	cached, err := l.st.Balance(ctx, accountID)
	if err != nil {
		return 0, err
	}
	if cached != sum {
		l.log.Warn("cached balance mismatch, repairing",
			zap.String("account", accountID),
			zap.Int64("cached", cached),
			zap.Int64("recomputed", sum),
		)
		if err := l.st.SetBalance(ctx, accountID, sum); err != nil {
			return 0, err
		}
	}
	return sum, nil
}
