// Package pool implementa a contabilidade do pool de apostas: validação e
// aceite de stakes, totais por mercado e visões para a apresentação.
package pool

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

// Clock injetável pra testar janela de staking sem esperar relógio de parede.
type Clock func() time.Time

type Accountant struct {
	log *zap.Logger
	st  store.Store
	now Clock
}

func NewAccountant(log *zap.Logger, st store.Store, now Clock) *Accountant {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Accountant{log: log, st: st, now: now}
}

// MarketView é o mercado enriquecido com o total do pool e, quando
// solicitado, a aposta do próprio usuário.
type MarketView struct {
	model.Market
	UserStake *model.Stake `json:"user_stake,omitempty"`
}

// PlaceStakeResult carrega o que a camada HTTP precisa publicar depois do
// commit (evento, broadcast do pool, saldo novo).
type PlaceStakeResult struct {
	Stake      model.Stake
	NewBalance int64
	PoolTotal  int64
}

// PlaceStake valida e aceita uma aposta. O fechamento da janela é checado
// aqui contra o relógio na hora da chamada — nunca por timer — e revalidado
// sob lock dentro do store. Débito e stake commitam juntos ou nada persiste.
func (a *Accountant) PlaceStake(ctx context.Context, accountID, marketID string, amount int64, side string) (*PlaceStakeResult, error) {
	now := a.now()

	m, err := a.readMarket(ctx, marketID)
	if err != nil {
		return nil, err
	}

	if !m.AcceptsStakes(now) {
		metrics.StakesRejected.WithLabelValues("market_not_open").Inc()
		return nil, model.ErrMarketNotOpen
	}
	if amount < m.MinAmount || amount > m.MaxAmount {
		metrics.StakesRejected.WithLabelValues("out_of_range").Inc()
		return nil, &model.OutOfRangeError{Min: m.MinAmount, Max: m.MaxAmount, Amount: amount}
	}
	// primeira aposta é vinculante: sem top-up, sem overwrite
	if _, err := a.st.GetStake(ctx, marketID, accountID); err == nil {
		metrics.StakesRejected.WithLabelValues("duplicate").Inc()
		return nil, model.ErrDuplicateStake
	} else if !errors.Is(err, model.ErrNotFound) {
		return nil, storageErr(err)
	}

	s := &model.Stake{
		ID:        uuid.NewString(),
		MarketID:  marketID,
		AccountID: accountID,
		Amount:    amount,
		Side:      side,
		PlacedAt:  now,
	}
	debit := &model.LedgerEntry{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Amount:    -amount,
		Kind:      model.KindStake,
		MarketID:  marketID,
		CreatedAt: now,
	}

	newBalance, poolTotal, err := a.st.PlaceStake(ctx, s, debit, now)
	if err != nil {
		var insufficient *model.InsufficientFundsError
		switch {
		case errors.Is(err, model.ErrDuplicateStake):
			metrics.StakesRejected.WithLabelValues("duplicate").Inc()
		case errors.Is(err, model.ErrMarketNotOpen):
			metrics.StakesRejected.WithLabelValues("market_not_open").Inc()
		case errors.As(err, &insufficient):
			metrics.StakesRejected.WithLabelValues("insufficient_funds").Inc()
		default:
			return nil, storageErr(err)
		}
		return nil, err
	}

	metrics.StakesPlaced.Inc()
	metrics.LedgerEntries.WithLabelValues(string(model.KindStake)).Inc()
	a.log.Info("stake placed",
		zap.String("market", marketID),
		zap.String("account", accountID),
		zap.Int64("amount", amount),
		zap.String("side", side),
		zap.Int64("pool_total", poolTotal),
	)

	return &PlaceStakeResult{Stake: *s, NewBalance: newBalance, PoolTotal: poolTotal}, nil
}

// PoolTotal lê o contador mantido do pool — O(1), sem rescan dos stakes.
func (a *Accountant) PoolTotal(ctx context.Context, marketID string) (int64, error) {
	total, err := a.st.PoolTotal(ctx, marketID)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return 0, storageErr(err)
	}
	return total, err
}

// ListOpenMarkets retorna os mercados abertos no instante da chamada.
func (a *Accountant) ListOpenMarkets(ctx context.Context) ([]model.Market, error) {
	out, err := a.st.ListOpenMarkets(ctx, a.now())
	if err != nil {
		return nil, storageErr(err)
	}
	return out, nil
}

// GetMarketView carrega o mercado com pool e, se accountID não for vazio,
// a aposta do usuário.
func (a *Accountant) GetMarketView(ctx context.Context, marketID, accountID string) (*MarketView, error) {
	m, err := a.readMarket(ctx, marketID)
	if err != nil {
		return nil, err
	}
	view := &MarketView{Market: *m}
	if accountID != "" {
		s, err := a.st.GetStake(ctx, marketID, accountID)
		if err == nil {
			view.UserStake = s
		} else if !errors.Is(err, model.ErrNotFound) {
			return nil, storageErr(err)
		}
	}
	return view, nil
}

// CreateMarket registra uma nova proposição (ação de operador).
func (a *Accountant) CreateMarket(ctx context.Context, title, description string, minAmount, maxAmount int64, startTime, endTime time.Time) (*model.Market, error) {
	if minAmount <= 0 || maxAmount < minAmount {
		return nil, &model.OutOfRangeError{Min: minAmount, Max: maxAmount, Amount: minAmount}
	}
	m := &model.Market{
		ID:          uuid.NewString(),
		Title:       title,
		Description: description,
		MinAmount:   minAmount,
		MaxAmount:   maxAmount,
		StartTime:   startTime,
		EndTime:     endTime,
		State:       model.StateOpen,
		CreatedAt:   a.now(),
	}
	if err := a.st.CreateMarket(ctx, m); err != nil {
		return nil, storageErr(err)
	}
	a.log.Info("market created", zap.String("market", m.ID), zap.String("title", title))
	return m, nil
}

// readMarket é leitura idempotente: em falha de storage tenta uma vez mais
// com backoff curto antes de responder Unavailable.
func (a *Accountant) readMarket(ctx context.Context, marketID string) (*model.Market, error) {
	m, err := a.st.GetMarket(ctx, marketID)
	if err == nil || errors.Is(err, model.ErrNotFound) {
		return m, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(100 * time.Millisecond):
	}

	m, err = a.st.GetMarket(ctx, marketID)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return nil, storageErr(err)
	}
	return m, err
}

// storageErr reduz falhas de infraestrutura ao erro genérico Unavailable,
// preservando a causa pra log/inspeção.
func storageErr(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return errors.Join(model.ErrUnavailable, err)
}
