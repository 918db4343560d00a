// Package rewards concede $COCO por tarefas e taps do clicker.
// O cliente nunca envia um delta de saldo: envia a intenção (tarefa X,
// N taps) e o servidor precifica e credita via ledger.
package rewards

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

var ErrInvalidTaps = errors.New("taps must be positive")

type Service struct {
	log              *zap.Logger
	st               store.Store
	tapReward        int64
	maxTapsPerReport int64
}

func New(log *zap.Logger, st store.Store, tapReward, maxTapsPerReport int64) *Service {
	return &Service{log: log, st: st, tapReward: tapReward, maxTapsPerReport: maxTapsPerReport}
}

// TaskView é a tarefa com o flag de conclusão do usuário.
type TaskView struct {
	model.Task
	Completed bool `json:"completed"`
}

// ListTasks retorna o catálogo ativo com o estado de conclusão da conta.
func (s *Service) ListTasks(ctx context.Context, accountID string) ([]TaskView, error) {
	tasks, err := s.st.ListTasks(ctx)
	if err != nil {
		return nil, err
	}
	done := map[string]bool{}
	if accountID != "" {
		if done, err = s.st.CompletedTaskIDs(ctx, accountID); err != nil {
			return nil, err
		}
	}
	out := make([]TaskView, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, TaskView{Task: t, Completed: done[t.ID]})
	}
	return out, nil
}

// CompleteTask registra a conclusão e credita a recompensa uma única vez por
// (conta, tarefa); repetição falha com AlreadyClaimed sem crédito extra.
func (s *Service) CompleteTask(ctx context.Context, accountID, taskID string) (newBalance int64, err error) {
	task, err := s.st.GetTask(ctx, taskID)
	if err != nil {
		return 0, err
	}
	if !task.Active {
		return 0, model.ErrNotFound
	}

	now := time.Now().UTC()
	completion := &model.TaskCompletion{AccountID: accountID, TaskID: taskID, CompletedAt: now}
	reward := &model.LedgerEntry{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Amount:    task.RewardAmount,
		Kind:      model.KindReward,
		CreatedAt: now,
	}

	newBalance, err = s.st.CompleteTask(ctx, completion, reward)
	if err != nil {
		return 0, err
	}

	metrics.RewardsGranted.Inc()
	metrics.LedgerEntries.WithLabelValues(string(model.KindReward)).Inc()
	s.log.Info("task reward granted",
		zap.String("account", accountID),
		zap.String("task", taskID),
		zap.Int64("reward", task.RewardAmount),
	)
	return newBalance, nil
}

// ReportTaps credita um lote de taps do clicker. O lote é limitado por
// requisição e precificado no servidor (tapReward por tap).
func (s *Service) ReportTaps(ctx context.Context, accountID string, taps int64) (earned, newBalance int64, err error) {
	if taps <= 0 {
		return 0, 0, ErrInvalidTaps
	}
	if taps > s.maxTapsPerReport {
		return 0, 0, fmt.Errorf("%w: max %d per report", ErrInvalidTaps, s.maxTapsPerReport)
	}

	earned = taps * s.tapReward
	entry := &model.LedgerEntry{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Amount:    earned,
		Kind:      model.KindReward,
		CreatedAt: time.Now().UTC(),
	}
	newBalance, err = s.st.AppendLedger(ctx, entry)
	if err != nil {
		return 0, 0, err
	}

	metrics.RewardsGranted.Inc()
	metrics.LedgerEntries.WithLabelValues(string(model.KindReward)).Inc()
	return earned, newBalance, nil
}
