// Package settle implementa o settlement engine: fecha, anula e liquida
// mercados, distribuindo o pool via lançamentos no ledger.
package settle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cocognome/coco-bet-core/internal/bet-core/model"
	"github.com/cocognome/coco-bet-core/internal/bet-core/store"
	"github.com/cocognome/coco-bet-core/internal/shared/metrics"
)

var ErrInvalidFee = errors.New("fee_bps must be in [0,10000)")

type Clock func() time.Time

type Engine struct {
	log *zap.Logger
	st  store.Store
	now Clock
}

func NewEngine(log *zap.Logger, st store.Store, now Clock) *Engine {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Engine{log: log, st: st, now: now}
}

// Result é o desfecho de um resolve/void: lançamentos gravados e saldos
// resultantes (pra eventos balance_changed).
type Result struct {
	Market   model.Market
	Entries  []model.LedgerEntry
	Balances map[string]int64
	Refunded bool // liquidação sem vencedores (devolução integral)
}

// Resolve liquida o mercado com o outcome dado. Chamável uma vez: estados
// terminais respondem AlreadyResolved sem lançamento adicional. Aceita
// mercados open ou closed (operador pode encerrar antecipadamente; a janela
// de staking continua protegida pelo placeStake).
func (e *Engine) Resolve(ctx context.Context, marketID, outcome string, feeBps int64) (*Result, error) {
	if feeBps < 0 || feeBps >= 10000 {
		return nil, ErrInvalidFee
	}
	if outcome == "" {
		return nil, fmt.Errorf("outcome required")
	}

	m, err := e.readMarket(ctx, marketID)
	if err != nil {
		return nil, err
	}
	if m.Terminal() {
		return nil, model.ErrAlreadyResolved
	}

	// a listagem dos stakes acontece dentro do SettleMarket, sob o mesmo
	// lock que aceita apostas: um placeStake concorrente ou commita antes e
	// entra na liquidação, ou falha com mercado terminal
	now := e.now()
	var entries []model.LedgerEntry
	var refunded bool
	balances, err := e.st.SettleMarket(ctx, marketID, model.StateResolved, outcome, func(stakes []model.Stake) []model.LedgerEntry {
		payouts, noWinners := ComputePayouts(stakes, outcome, feeBps)
		refunded = noWinners
		entries = toEntries(payouts, marketID, now)
		return entries
	}, now)
	if err != nil {
		if errors.Is(err, model.ErrAlreadyResolved) || errors.Is(err, model.ErrNotFound) {
			return nil, err
		}
		return nil, settleErr(err)
	}

	m.State = model.StateResolved
	m.Outcome = outcome
	m.SettledAt = &now

	metrics.MarketsSettled.WithLabelValues(string(model.StateResolved)).Inc()
	for _, en := range entries {
		metrics.LedgerEntries.WithLabelValues(string(en.Kind)).Inc()
	}
	e.log.Info("market resolved",
		zap.String("market", marketID),
		zap.String("outcome", outcome),
		zap.Int64("fee_bps", feeBps),
		zap.Int("entries", len(entries)),
		zap.Bool("refunded", refunded),
	)

	return &Result{Market: *m, Entries: entries, Balances: balances, Refunded: refunded}, nil
}

// Void anula o mercado administrativamente: todo stake volta pelo valor de
// face. Aceito a partir de open ou closed; terminal depois disso.
func (e *Engine) Void(ctx context.Context, marketID string) (*Result, error) {
	m, err := e.readMarket(ctx, marketID)
	if err != nil {
		return nil, err
	}
	if m.Terminal() {
		return nil, model.ErrAlreadyResolved
	}

	now := e.now()
	var entries []model.LedgerEntry
	balances, err := e.st.SettleMarket(ctx, marketID, model.StateVoid, "", func(stakes []model.Stake) []model.LedgerEntry {
		entries = toEntries(RefundAll(stakes), marketID, now)
		return entries
	}, now)
	if err != nil {
		if errors.Is(err, model.ErrAlreadyResolved) || errors.Is(err, model.ErrNotFound) {
			return nil, err
		}
		return nil, settleErr(err)
	}

	m.State = model.StateVoid
	m.SettledAt = &now

	metrics.MarketsSettled.WithLabelValues(string(model.StateVoid)).Inc()
	e.log.Info("market voided", zap.String("market", marketID), zap.Int("refunds", len(entries)))

	return &Result{Market: *m, Entries: entries, Balances: balances, Refunded: true}, nil
}

// Close aplica a transição explícita open -> closed (ação de operador).
// O fechamento por tempo não depende disso: placeStake checa o relógio.
func (e *Engine) Close(ctx context.Context, marketID string) error {
	err := e.st.TransitionMarket(ctx, marketID, []model.MarketState{model.StateOpen}, model.StateClosed, e.now())
	if err == nil {
		e.log.Info("market closed", zap.String("market", marketID))
	}
	return err
}

func toEntries(payouts []Payout, marketID string, at time.Time) []model.LedgerEntry {
	entries := make([]model.LedgerEntry, 0, len(payouts))
	for _, p := range payouts {
		entries = append(entries, model.LedgerEntry{
			ID:        uuid.NewString(),
			AccountID: p.AccountID,
			Amount:    p.Amount,
			Kind:      p.Kind,
			MarketID:  marketID,
			CreatedAt: at,
		})
	}
	return entries
}

// readMarket tenta uma segunda vez em falha de storage (leitura idempotente).
func (e *Engine) readMarket(ctx context.Context, marketID string) (*model.Market, error) {
	m, err := e.st.GetMarket(ctx, marketID)
	if err == nil || errors.Is(err, model.ErrNotFound) {
		return m, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(100 * time.Millisecond):
	}

	m, err = e.st.GetMarket(ctx, marketID)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return nil, settleErr(err)
	}
	return m, err
}

func settleErr(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return errors.Join(model.ErrUnavailable, err)
}
