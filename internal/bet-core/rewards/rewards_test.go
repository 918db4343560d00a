package rewards

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/cocognome/coco-bet-core/internal/bet-core/model"
	"github.com/cocognome/coco-bet-core/internal/bet-core/store"
)

func setup(t *testing.T) (*Service, *store.MemoryStore, string) {
	t.Helper()
	st := store.NewMemoryStore()
	svc := New(zap.NewNop(), st, 2, 100) // 2 $COCO por tap, máx 100 taps
	acc, err := st.GetOrCreateAccount(context.Background(), "tg-1", "alice")
	if err != nil {
		t.Fatal(err)
	}
	return svc, st, acc.ID
}

func TestCompleteTaskCreditsOnce(t *testing.T) {
	svc, st, acc := setup(t)
	ctx := context.Background()

	task := &model.Task{ID: "t1", Title: "siga o canal", RewardAmount: 500, Active: true}
	if err := st.CreateTask(ctx, task); err != nil {
		t.Fatal(err)
	}

	bal, err := svc.CompleteTask(ctx, acc, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if bal != 500 {
		t.Fatalf("balance = %d, want 500", bal)
	}

	// repetição não credita de novo
	if _, err := svc.CompleteTask(ctx, acc, "t1"); !errors.Is(err, model.ErrAlreadyClaimed) {
		t.Fatalf("err = %v, want ErrAlreadyClaimed", err)
	}
	got, _ := st.Balance(ctx, acc)
	if got != 500 {
		t.Fatalf("balance after repeat = %d, want 500", got)
	}
}

func TestCompleteTaskInactive(t *testing.T) {
	svc, st, acc := setup(t)
	ctx := context.Background()

	if err := st.CreateTask(ctx, &model.Task{ID: "t1", RewardAmount: 100, Active: false}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CompleteTask(ctx, acc, "t1"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCompleteTaskUnknown(t *testing.T) {
	svc, _, acc := setup(t)
	if _, err := svc.CompleteTask(context.Background(), acc, "nope"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestListTasksFlagsCompleted(t *testing.T) {
	svc, st, acc := setup(t)
	ctx := context.Background()

	for _, task := range []*model.Task{
		{ID: "t1", RewardAmount: 100, Active: true},
		{ID: "t2", RewardAmount: 200, Active: true},
		{ID: "t3", RewardAmount: 300, Active: false},
	} {
		if err := st.CreateTask(ctx, task); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := svc.CompleteTask(ctx, acc, "t1"); err != nil {
		t.Fatal(err)
	}

	views, err := svc.ListTasks(ctx, acc)
	if err != nil {
		t.Fatal(err)
	}
	// t3 inativa fica fora do catálogo
	if len(views) != 2 {
		t.Fatalf("tasks = %d, want 2", len(views))
	}
	byID := map[string]bool{}
	for _, v := range views {
		byID[v.ID] = v.Completed
	}
	if !byID["t1"] || byID["t2"] {
		t.Fatalf("completed flags = %v, want t1 only", byID)
	}
}

func TestReportTapsPricedOnServer(t *testing.T) {
	svc, st, acc := setup(t)

	earned, bal, err := svc.ReportTaps(context.Background(), acc, 50)
	if err != nil {
		t.Fatal(err)
	}
	if earned != 100 || bal != 100 {
		t.Fatalf("earned = %d bal = %d, want 100/100", earned, bal)
	}

	got, _ := st.Balance(context.Background(), acc)
	if got != 100 {
		t.Fatalf("balance = %d, want 100", got)
	}
}

func TestReportTapsLimits(t *testing.T) {
	svc, _, acc := setup(t)
	ctx := context.Background()

	for _, taps := range []int64{0, -5, 101} {
		if _, _, err := svc.ReportTaps(ctx, acc, taps); !errors.Is(err, ErrInvalidTaps) {
			t.Fatalf("taps %d: err = %v, want ErrInvalidTaps", taps, err)
		}
	}
}
