package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cocognome/coco-bet-core/internal/bet-core/model"
)

// MemoryStore guarda tudo em mapas sob um único mutex. Usado nos testes e
// como referência do contrato; a serialização grossa cobre a atomicidade
// das operações compostas.
type MemoryStore struct {
	mu          sync.Mutex
	accounts    map[string]*model.Account // accountID -> conta
	byTelegram  map[string]string         // telegramID -> accountID
	ledger      map[string][]model.LedgerEntry
	markets     map[string]*model.Market
	stakes      map[string]map[string]*model.Stake // marketID -> accountID -> stake
	tasks       map[string]*model.Task
	completions map[string]map[string]time.Time // accountID -> taskID -> quando
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:    make(map[string]*model.Account),
		byTelegram:  make(map[string]string),
		ledger:      make(map[string][]model.LedgerEntry),
		markets:     make(map[string]*model.Market),
		stakes:      make(map[string]map[string]*model.Stake),
		tasks:       make(map[string]*model.Task),
		completions: make(map[string]map[string]time.Time),
	}
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) GetOrCreateAccount(ctx context.Context, telegramID, username string) (*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.byTelegram[telegramID]; ok {
		acc := *m.accounts[id]
		return &acc, nil
	}
	acc := &model.Account{
		ID:         "acc-" + telegramID,
		TelegramID: telegramID,
		Username:   username,
		CreatedAt:  time.Now().UTC(),
	}
	m.accounts[acc.ID] = acc
	m.byTelegram[telegramID] = acc.ID
	cp := *acc
	return &cp, nil
}

func (m *MemoryStore) GetAccount(ctx context.Context, accountID string) (*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[accountID]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *acc
	return &cp, nil
}

func (m *MemoryStore) Balance(ctx context.Context, accountID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[accountID]
	if !ok {
		return 0, model.ErrNotFound
	}
	return acc.Balance, nil
}

func (m *MemoryStore) SumLedger(ctx context.Context, accountID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[accountID]; !ok {
		return 0, model.ErrNotFound
	}
	var sum int64
	for _, e := range m.ledger[accountID] {
		sum += e.Amount
	}
	return sum, nil
}

func (m *MemoryStore) SetBalance(ctx context.Context, accountID string, balance int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[accountID]
	if !ok {
		return model.ErrNotFound
	}
	acc.Balance = balance
	return nil
}

func (m *MemoryStore) ListLedger(ctx context.Context, accountID string) ([]model.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[accountID]; !ok {
		return nil, model.ErrNotFound
	}
	out := make([]model.LedgerEntry, len(m.ledger[accountID]))
	copy(out, m.ledger[accountID])
	return out, nil
}

func (m *MemoryStore) AppendLedger(ctx context.Context, e *model.LedgerEntry) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(e)
}

// appendLocked aplica o lançamento com piso zero. Chamar com mu preso.
func (m *MemoryStore) appendLocked(e *model.LedgerEntry) (int64, error) {
	acc, ok := m.accounts[e.AccountID]
	if !ok {
		return 0, model.ErrNotFound
	}
	if e.Amount < 0 && acc.Balance+e.Amount < 0 {
		return 0, &model.InsufficientFundsError{Balance: acc.Balance, Amount: -e.Amount}
	}
	m.ledger[e.AccountID] = append(m.ledger[e.AccountID], *e)
	acc.Balance += e.Amount
	return acc.Balance, nil
}

func (m *MemoryStore) CreateMarket(ctx context.Context, mk *model.Market) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *mk
	m.markets[mk.ID] = &cp
	m.stakes[mk.ID] = make(map[string]*model.Stake)
	return nil
}

func (m *MemoryStore) GetMarket(ctx context.Context, marketID string) (*model.Market, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mk, ok := m.markets[marketID]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *mk
	return &cp, nil
}

func (m *MemoryStore) ListOpenMarkets(ctx context.Context, now time.Time) ([]model.Market, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Market
	for _, mk := range m.markets {
		if mk.StateAt(now) == model.StateOpen {
			out = append(out, *mk)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndTime.Before(out[j].EndTime) })
	return out, nil
}

func (m *MemoryStore) TransitionMarket(ctx context.Context, marketID string, from []model.MarketState, to model.MarketState, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mk, ok := m.markets[marketID]
	if !ok {
		return model.ErrNotFound
	}
	if err := checkTransition(mk.State, from); err != nil {
		return err
	}
	mk.State = to
	if to == model.StateResolved || to == model.StateVoid {
		t := at
		mk.SettledAt = &t
	}
	return nil
}

// checkTransition valida o estado atual contra os estados de origem aceitos.
func checkTransition(cur model.MarketState, from []model.MarketState) error {
	for _, f := range from {
		if cur == f {
			return nil
		}
	}
	if cur == model.StateResolved || cur == model.StateVoid {
		return model.ErrAlreadyResolved
	}
	return model.ErrMarketNotOpen
}

func (m *MemoryStore) GetStake(ctx context.Context, marketID, accountID string) (*model.Stake, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byAcc, ok := m.stakes[marketID]
	if !ok {
		return nil, model.ErrNotFound
	}
	s, ok := byAcc[accountID]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) PoolTotal(ctx context.Context, marketID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mk, ok := m.markets[marketID]
	if !ok {
		return 0, model.ErrNotFound
	}
	return mk.PoolTotal, nil
}

func (m *MemoryStore) PlaceStake(ctx context.Context, s *model.Stake, debit *model.LedgerEntry, now time.Time) (int64, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mk, ok := m.markets[s.MarketID]
	if !ok {
		return 0, 0, model.ErrNotFound
	}
	// revalidação sob lock: a janela pode ter fechado entre a leitura e aqui
	if !mk.AcceptsStakes(now) {
		return 0, 0, model.ErrMarketNotOpen
	}
	if _, exists := m.stakes[s.MarketID][s.AccountID]; exists {
		return 0, 0, model.ErrDuplicateStake
	}

	newBalance, err := m.appendLocked(debit)
	if err != nil {
		return 0, 0, err
	}

	cp := *s
	m.stakes[s.MarketID][s.AccountID] = &cp
	mk.PoolTotal += s.Amount
	return newBalance, mk.PoolTotal, nil
}

func (m *MemoryStore) SettleMarket(ctx context.Context, marketID string, to model.MarketState, outcome string, settle func(stakes []model.Stake) []model.LedgerEntry, at time.Time) (map[string]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mk, ok := m.markets[marketID]
	if !ok {
		return nil, model.ErrNotFound
	}
	if err := checkTransition(mk.State, []model.MarketState{model.StateOpen, model.StateClosed}); err != nil {
		return nil, err
	}

	// listagem sob o mesmo lock que aceita apostas: nada commita no meio
	stakes := make([]model.Stake, 0, len(m.stakes[marketID]))
	for _, s := range m.stakes[marketID] {
		stakes = append(stakes, *s)
	}
	sort.Slice(stakes, func(i, j int) bool { return stakes[i].PlacedAt.Before(stakes[j].PlacedAt) })
	entries := settle(stakes)

	balances := make(map[string]int64, len(entries))
	for i := range entries {
		b, err := m.appendLocked(&entries[i])
		if err != nil {
			return nil, err // créditos não falham por piso; NotFound seria bug de chamada
		}
		balances[entries[i].AccountID] = b
	}

	mk.State = to
	mk.Outcome = outcome
	t := at
	mk.SettledAt = &t
	return balances, nil
}

func (m *MemoryStore) CreateTask(ctx context.Context, t *model.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.tasks[t.ID] = &cp
	return nil
}

func (m *MemoryStore) GetTask(ctx context.Context, taskID string) (*model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *MemoryStore) ListTasks(ctx context.Context) ([]model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		if t.Active {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) CompletedTaskIDs(ctx context.Context, accountID string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]bool, len(m.completions[accountID]))
	for id := range m.completions[accountID] {
		out[id] = true
	}
	return out, nil
}

func (m *MemoryStore) CompleteTask(ctx context.Context, c *model.TaskCompletion, reward *model.LedgerEntry) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tasks[c.TaskID]; !ok {
		return 0, model.ErrNotFound
	}
	if _, done := m.completions[c.AccountID][c.TaskID]; done {
		return 0, model.ErrAlreadyClaimed
	}

	newBalance, err := m.appendLocked(reward)
	if err != nil {
		return 0, err
	}
	if m.completions[c.AccountID] == nil {
		m.completions[c.AccountID] = make(map[string]time.Time)
	}
	m.completions[c.AccountID][c.TaskID] = c.CompletedAt
	return newBalance, nil
}
