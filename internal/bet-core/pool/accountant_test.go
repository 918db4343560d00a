package pool

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/cocognome/coco-bet-core/internal/bet-core/model"
	"github.com/cocognome/coco-bet-core/internal/bet-core/store"
)

type fixture struct {
	st  *store.MemoryStore
	acc *Accountant
	now time.Time
}

// newFixture monta um accountant com relógio congelado e um mercado aberto
// de janela [-1h, +1h] e limites [10, 100].
func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.NewMemoryStore()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	f := &fixture{st: st, now: now}
	f.acc = NewAccountant(zap.NewNop(), st, func() time.Time { return f.now })

	m := &model.Market{
		ID:        "m1",
		Title:     "o gnomo acha a moeda?",
		MinAmount: 10,
		MaxAmount: 100,
		StartTime: now.Add(-time.Hour),
		EndTime:   now.Add(time.Hour),
		State:     model.StateOpen,
		CreatedAt: now.Add(-time.Hour),
	}
	if err := st.CreateMarket(context.Background(), m); err != nil {
		t.Fatal(err)
	}
	return f
}

func (f *fixture) fund(t *testing.T, telegramID string, amount int64) string {
	t.Helper()
	ctx := context.Background()
	acc, err := f.st.GetOrCreateAccount(ctx, telegramID, telegramID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.st.AppendLedger(ctx, &model.LedgerEntry{
		ID: "seed-" + acc.ID, AccountID: acc.ID, Amount: amount, Kind: model.KindAdjustment, CreatedAt: f.now,
	}); err != nil {
		t.Fatal(err)
	}
	return acc.ID
}

func TestPlaceStakeDebitsAndBumpsPool(t *testing.T) {
	f := newFixture(t)
	acc := f.fund(t, "tg-alice", 200)

	res, err := f.acc.PlaceStake(context.Background(), acc, "m1", 50, "yes")
	if err != nil {
		t.Fatal(err)
	}
	if res.NewBalance != 150 {
		t.Fatalf("balance = %d, want 150", res.NewBalance)
	}
	if res.PoolTotal != 50 {
		t.Fatalf("pool = %d, want 50", res.PoolTotal)
	}

	total, err := f.acc.PoolTotal(context.Background(), "m1")
	if err != nil || total != 50 {
		t.Fatalf("PoolTotal = %d, %v; want 50", total, err)
	}
}

func TestPlaceStakePoolEqualsSumOfStakes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	amounts := []int64{10, 25, 100}
	var want int64
	for i, amt := range amounts {
		acc := f.fund(t, "tg-"+string(rune('a'+i)), 500)
		if _, err := f.acc.PlaceStake(ctx, acc, "m1", amt, "yes"); err != nil {
			t.Fatal(err)
		}
		want += amt
	}
	total, _ := f.acc.PoolTotal(ctx, "m1")
	if total != want {
		t.Fatalf("pool = %d, want %d", total, want)
	}
}

func TestPlaceStakeRejectsDuplicate(t *testing.T) {
	f := newFixture(t)
	acc := f.fund(t, "tg-alice", 200)
	ctx := context.Background()

	if _, err := f.acc.PlaceStake(ctx, acc, "m1", 50, "yes"); err != nil {
		t.Fatal(err)
	}
	// segunda aposta da mesma conta no mesmo mercado: sem top-up, sem troca de lado
	if _, err := f.acc.PlaceStake(ctx, acc, "m1", 20, "no"); !errors.Is(err, model.ErrDuplicateStake) {
		t.Fatalf("err = %v, want ErrDuplicateStake", err)
	}

	bal, _ := f.st.Balance(ctx, acc)
	if bal != 150 {
		t.Fatalf("balance = %d, want 150 (sem débito extra)", bal)
	}
}

func TestPlaceStakeOutOfRange(t *testing.T) {
	f := newFixture(t)
	acc := f.fund(t, "tg-alice", 200)
	ctx := context.Background()

	for _, amount := range []int64{9, 101} {
		_, err := f.acc.PlaceStake(ctx, acc, "m1", amount, "yes")
		var oor *model.OutOfRangeError
		if !errors.As(err, &oor) {
			t.Fatalf("amount %d: err = %v, want OutOfRangeError", amount, err)
		}
		if oor.Min != 10 || oor.Max != 100 {
			t.Fatalf("bounds = [%d,%d], want [10,100]", oor.Min, oor.Max)
		}
	}
}

func TestPlaceStakeInsufficientFunds(t *testing.T) {
	f := newFixture(t)
	acc := f.fund(t, "tg-alice", 30)
	ctx := context.Background()

	_, err := f.acc.PlaceStake(ctx, acc, "m1", 50, "yes")
	var insufficient *model.InsufficientFundsError
	if !errors.As(err, &insufficient) {
		t.Fatalf("err = %v, want InsufficientFundsError", err)
	}

	// débito recusado não deixa stake nem altera o pool
	if _, err := f.st.GetStake(ctx, "m1", acc); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("stake exists after failed debit: %v", err)
	}
	total, _ := f.acc.PoolTotal(ctx, "m1")
	if total != 0 {
		t.Fatalf("pool = %d, want 0", total)
	}
}

func TestPlaceStakeAfterEndTime(t *testing.T) {
	f := newFixture(t)
	acc := f.fund(t, "tg-alice", 200)

	// avança o relógio além da janela; nenhum timer precisa rodar
	f.now = f.now.Add(2 * time.Hour)

	if _, err := f.acc.PlaceStake(context.Background(), acc, "m1", 50, "yes"); !errors.Is(err, model.ErrMarketNotOpen) {
		t.Fatalf("err = %v, want ErrMarketNotOpen", err)
	}
}

func TestPlaceStakeBeforeStartTime(t *testing.T) {
	f := newFixture(t)
	acc := f.fund(t, "tg-alice", 200)

	f.now = f.now.Add(-2 * time.Hour)

	if _, err := f.acc.PlaceStake(context.Background(), acc, "m1", 50, "yes"); !errors.Is(err, model.ErrMarketNotOpen) {
		t.Fatalf("err = %v, want ErrMarketNotOpen", err)
	}
}

func TestPlaceStakeUnknownMarket(t *testing.T) {
	f := newFixture(t)
	acc := f.fund(t, "tg-alice", 200)

	if _, err := f.acc.PlaceStake(context.Background(), acc, "nope", 50, "yes"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestListOpenMarketsHidesExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	expired := &model.Market{
		ID:        "m2",
		Title:     "janela vencida",
		MinAmount: 1,
		MaxAmount: 10,
		StartTime: f.now.Add(-2 * time.Hour),
		EndTime:   f.now.Add(-time.Hour),
		State:     model.StateOpen,
	}
	if err := f.st.CreateMarket(ctx, expired); err != nil {
		t.Fatal(err)
	}

	out, err := f.acc.ListOpenMarkets(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0].ID != "m1" {
		t.Fatalf("got %v, want only m1", out)
	}
}

func TestGetMarketViewIncludesUserStake(t *testing.T) {
	f := newFixture(t)
	acc := f.fund(t, "tg-alice", 200)
	ctx := context.Background()

	if _, err := f.acc.PlaceStake(ctx, acc, "m1", 50, "yes"); err != nil {
		t.Fatal(err)
	}

	view, err := f.acc.GetMarketView(ctx, "m1", acc)
	if err != nil {
		t.Fatal(err)
	}
	if view.UserStake == nil || view.UserStake.Amount != 50 || view.UserStake.Side != "yes" {
		t.Fatalf("user stake = %+v, want 50/yes", view.UserStake)
	}

	// sem conta: sem stake no payload
	anon, err := f.acc.GetMarketView(ctx, "m1", "")
	if err != nil {
		t.Fatal(err)
	}
	if anon.UserStake != nil {
		t.Fatalf("anonymous view has stake: %+v", anon.UserStake)
	}
}

func TestCreateMarketValidatesBounds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct{ min, max int64 }{{0, 10}, {-5, 10}, {20, 10}}
	for _, tc := range cases {
		_, err := f.acc.CreateMarket(ctx, "t", "", tc.min, tc.max, f.now, f.now.Add(time.Hour))
		var oor *model.OutOfRangeError
		if !errors.As(err, &oor) {
			t.Fatalf("min=%d max=%d: err = %v, want OutOfRangeError", tc.min, tc.max, err)
		}
	}
}
