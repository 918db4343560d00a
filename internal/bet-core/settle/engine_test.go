package settle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/cocognome/coco-bet-core/internal/bet-core/model"
	"github.com/cocognome/coco-bet-core/internal/bet-core/store"
)

// seedMarket monta um mercado aberto com os stakes dados, debitando cada
// conta via store pra manter o ledger consistente.
func seedMarket(t *testing.T, st *store.MemoryStore, stakes []model.Stake) *model.Market {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	m := &model.Market{
		ID:        "m1",
		Title:     "vai chover amanhã?",
		MinAmount: 1,
		MaxAmount: 1000,
		StartTime: now.Add(-time.Hour),
		EndTime:   now.Add(time.Hour),
		State:     model.StateOpen,
		CreatedAt: now,
	}
	if err := st.CreateMarket(ctx, m); err != nil {
		t.Fatal(err)
	}

	for i := range stakes {
		s := stakes[i]
		acc, err := st.GetOrCreateAccount(ctx, "tg-"+s.AccountID, s.AccountID)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := st.AppendLedger(ctx, &model.LedgerEntry{
			ID: "seed-" + s.AccountID, AccountID: acc.ID, Amount: 1000, Kind: model.KindAdjustment, CreatedAt: now,
		}); err != nil {
			t.Fatal(err)
		}
		s.AccountID = acc.ID
		debit := &model.LedgerEntry{
			ID: "debit-" + acc.ID, AccountID: acc.ID, Amount: -s.Amount, Kind: model.KindStake, MarketID: m.ID, CreatedAt: s.PlacedAt,
		}
		if _, _, err := st.PlaceStake(ctx, &s, debit, now); err != nil {
			t.Fatal(err)
		}
	}
	return m
}

func TestResolveCreditsWinners(t *testing.T) {
	st := store.NewMemoryStore()
	now := time.Now().UTC()
	seedMarket(t, st, []model.Stake{
		stake("alice", "yes", 50, now),
		stake("bob", "no", 30, now.Add(time.Second)),
	})

	eng := NewEngine(zap.NewNop(), st, nil)
	res, err := eng.Resolve(context.Background(), "m1", "yes", 500)
	if err != nil {
		t.Fatal(err)
	}
	if res.Market.State != model.StateResolved || res.Market.Outcome != "yes" {
		t.Fatalf("market = %+v, want resolved/yes", res.Market)
	}
	if res.Refunded {
		t.Fatal("unexpected refund flag")
	}
	// alice: 1000 - 50 + 76 = 1026
	bal, err := st.Balance(context.Background(), "acc-tg-alice")
	if err != nil {
		t.Fatal(err)
	}
	if bal != 1026 {
		t.Fatalf("alice balance = %d, want 1026", bal)
	}
	// bob perdeu o stake: 970
	bal, _ = st.Balance(context.Background(), "acc-tg-bob")
	if bal != 970 {
		t.Fatalf("bob balance = %d, want 970", bal)
	}
}

func TestResolveIsTerminal(t *testing.T) {
	st := store.NewMemoryStore()
	now := time.Now().UTC()
	seedMarket(t, st, []model.Stake{
		stake("alice", "yes", 50, now),
		stake("bob", "no", 30, now.Add(time.Second)),
	})

	eng := NewEngine(zap.NewNop(), st, nil)
	ctx := context.Background()
	if _, err := eng.Resolve(ctx, "m1", "yes", 500); err != nil {
		t.Fatal(err)
	}

	// segunda liquidação não lança nada de novo
	if _, err := eng.Resolve(ctx, "m1", "no", 500); !errors.Is(err, model.ErrAlreadyResolved) {
		t.Fatalf("err = %v, want ErrAlreadyResolved", err)
	}
	if _, err := eng.Void(ctx, "m1"); !errors.Is(err, model.ErrAlreadyResolved) {
		t.Fatalf("void after resolve: err = %v, want ErrAlreadyResolved", err)
	}

	bal, _ := st.Balance(ctx, "acc-tg-alice")
	if bal != 1026 {
		t.Fatalf("balance changed after repeated resolve: %d", bal)
	}
}

func TestResolveNoWinnersRefunds(t *testing.T) {
	st := store.NewMemoryStore()
	now := time.Now().UTC()
	seedMarket(t, st, []model.Stake{
		stake("alice", "no", 50, now),
		stake("bob", "no", 30, now.Add(time.Second)),
	})

	eng := NewEngine(zap.NewNop(), st, nil)
	res, err := eng.Resolve(context.Background(), "m1", "yes", 500)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Refunded {
		t.Fatal("expected refund flag")
	}
	if res.Market.Outcome != "yes" {
		t.Fatalf("outcome = %q, want registrado mesmo sem vencedores", res.Market.Outcome)
	}
	// devolução integral: saldo volta a 1000
	for _, acc := range []string{"acc-tg-alice", "acc-tg-bob"} {
		bal, _ := st.Balance(context.Background(), acc)
		if bal != 1000 {
			t.Fatalf("%s balance = %d, want 1000", acc, bal)
		}
	}
}

func TestVoidRefundsFaceValue(t *testing.T) {
	st := store.NewMemoryStore()
	now := time.Now().UTC()
	seedMarket(t, st, []model.Stake{
		stake("alice", "yes", 50, now),
		stake("bob", "no", 30, now.Add(time.Second)),
	})

	eng := NewEngine(zap.NewNop(), st, nil)
	res, err := eng.Void(context.Background(), "m1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Market.State != model.StateVoid {
		t.Fatalf("state = %s, want void", res.Market.State)
	}
	for _, acc := range []string{"acc-tg-alice", "acc-tg-bob"} {
		bal, _ := st.Balance(context.Background(), acc)
		if bal != 1000 {
			t.Fatalf("%s balance = %d, want 1000", acc, bal)
		}
	}
}

func TestResolveValidatesFee(t *testing.T) {
	st := store.NewMemoryStore()
	eng := NewEngine(zap.NewNop(), st, nil)
	ctx := context.Background()

	for _, fee := range []int64{-1, 10000, 20000} {
		if _, err := eng.Resolve(ctx, "m1", "yes", fee); !errors.Is(err, ErrInvalidFee) {
			t.Fatalf("fee %d: err = %v, want ErrInvalidFee", fee, err)
		}
	}
}

func TestResolveUnknownMarket(t *testing.T) {
	st := store.NewMemoryStore()
	eng := NewEngine(zap.NewNop(), st, nil)
	if _, err := eng.Resolve(context.Background(), "nope", "yes", 0); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

// lateStakeStore commita uma aposta pelo caminho real do store logo após a
// leitura do mercado, simulando um placeStake concorrente com o resolve.
type lateStakeStore struct {
	*store.MemoryStore
	place func()
	once  sync.Once
}

func (s *lateStakeStore) GetMarket(ctx context.Context, marketID string) (*model.Market, error) {
	m, err := s.MemoryStore.GetMarket(ctx, marketID)
	if err == nil {
		s.once.Do(s.place)
	}
	return m, err
}

func TestResolveIncludesStakeCommittedMidResolve(t *testing.T) {
	mem := store.NewMemoryStore()
	now := time.Now().UTC()
	seedMarket(t, mem, []model.Stake{
		stake("alice", "yes", 50, now),
		stake("bob", "no", 30, now.Add(time.Second)),
	})

	ctx := context.Background()
	carol, err := mem.GetOrCreateAccount(ctx, "tg-carol", "carol")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := mem.AppendLedger(ctx, &model.LedgerEntry{
		ID: "seed-carol", AccountID: carol.ID, Amount: 1000, Kind: model.KindAdjustment, CreatedAt: now,
	}); err != nil {
		t.Fatal(err)
	}

	st := &lateStakeStore{MemoryStore: mem, place: func() {
		s := model.Stake{
			ID: "stk-carol", MarketID: "m1", AccountID: carol.ID,
			Amount: 40, Side: "yes", PlacedAt: now.Add(2 * time.Second),
		}
		debit := &model.LedgerEntry{
			ID: "debit-carol", AccountID: carol.ID, Amount: -40,
			Kind: model.KindStake, MarketID: "m1", CreatedAt: s.PlacedAt,
		}
		if _, _, err := mem.PlaceStake(ctx, &s, debit, now); err != nil {
			t.Errorf("concurrent stake: %v", err)
		}
	}}

	eng := NewEngine(zap.NewNop(), st, nil)
	res, err := eng.Resolve(ctx, "m1", "yes", 500)
	if err != nil {
		t.Fatal(err)
	}

	// a aposta commitada no meio do resolve entra na liquidação:
	// pool 120, distribuível 114; alice 63+1 de resíduo, carol 50
	if _, ok := res.Balances[carol.ID]; !ok {
		t.Fatal("late stake settled without a payout or refund")
	}
	bal, _ := mem.Balance(ctx, carol.ID)
	if bal != 1010 {
		t.Fatalf("carol balance = %d, want 1010 (1000 - 40 + 50)", bal)
	}
	bal, _ = mem.Balance(ctx, "acc-tg-alice")
	if bal != 1014 {
		t.Fatalf("alice balance = %d, want 1014", bal)
	}

	// conservação do pool: saldos finais somam o seed menos a taxa (6)
	var total int64
	for _, acc := range []string{"acc-tg-alice", "acc-tg-bob", carol.ID} {
		b, _ := mem.Balance(ctx, acc)
		total += b
	}
	if total != 2994 {
		t.Fatalf("total balances = %d, want 2994", total)
	}
}

func TestCloseThenResolve(t *testing.T) {
	st := store.NewMemoryStore()
	now := time.Now().UTC()
	seedMarket(t, st, []model.Stake{
		stake("alice", "yes", 50, now),
		stake("bob", "no", 30, now.Add(time.Second)),
	})

	eng := NewEngine(zap.NewNop(), st, nil)
	ctx := context.Background()
	if err := eng.Close(ctx, "m1"); err != nil {
		t.Fatal(err)
	}

	m, _ := st.GetMarket(ctx, "m1")
	if m.State != model.StateClosed {
		t.Fatalf("state = %s, want closed", m.State)
	}

	// resolve é aceito a partir de closed
	if _, err := eng.Resolve(ctx, "m1", "yes", 500); err != nil {
		t.Fatal(err)
	}
}
