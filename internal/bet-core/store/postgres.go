package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/cocognome/coco-bet-core/internal/bet-core/model"
)

// Postgres implementa Store sobre database/sql + lib/pq.
// A serialização por mercado/conta vem de SELECT ... FOR UPDATE nas linhas
// correspondentes; as operações compostas rodam em uma transação só.
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

var _ Store = (*Postgres)(nil)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func (p *Postgres) GetOrCreateAccount(ctx context.Context, telegramID, username string) (*model.Account, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	acc := &model.Account{TelegramID: telegramID, Username: username}
	err = tx.QueryRowContext(ctx,
		`SELECT id, username, balance, created_at FROM accounts WHERE telegram_id=$1`,
		telegramID).Scan(&acc.ID, &acc.Username, &acc.Balance, &acc.CreatedAt)
	if err == sql.ErrNoRows {
		acc.ID = uuid.NewString()
		acc.CreatedAt = time.Now().UTC()
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO accounts(id, telegram_id, username, balance, created_at) VALUES($1,$2,$3,0,$4)`,
			acc.ID, telegramID, username, acc.CreatedAt); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return acc, nil
}

func (p *Postgres) GetAccount(ctx context.Context, accountID string) (*model.Account, error) {
	acc := &model.Account{ID: accountID}
	err := p.db.QueryRowContext(ctx,
		`SELECT telegram_id, username, balance, created_at FROM accounts WHERE id=$1`,
		accountID).Scan(&acc.TelegramID, &acc.Username, &acc.Balance, &acc.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return acc, nil
}

func (p *Postgres) Balance(ctx context.Context, accountID string) (int64, error) {
	var bal int64
	err := p.db.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE id=$1`, accountID).Scan(&bal)
	if err == sql.ErrNoRows {
		return 0, model.ErrNotFound
	}
	return bal, err
}

func (p *Postgres) SumLedger(ctx context.Context, accountID string) (int64, error) {
	var sum int64
	err := p.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount),0) FROM ledger_entries WHERE account_id=$1`, accountID).Scan(&sum)
	return sum, err
}

func (p *Postgres) SetBalance(ctx context.Context, accountID string, balance int64) error {
	res, err := p.db.ExecContext(ctx, `UPDATE accounts SET balance=$1 WHERE id=$2`, balance, accountID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (p *Postgres) ListLedger(ctx context.Context, accountID string) ([]model.LedgerEntry, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, account_id, amount, kind, COALESCE(market_id,''), created_at
		FROM ledger_entries WHERE account_id=$1 ORDER BY created_at, id`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Amount, &e.Kind, &e.MarketID, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *Postgres) AppendLedger(ctx context.Context, e *model.LedgerEntry) (int64, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	newBalance, err := appendInTx(ctx, tx, e)
	if err != nil {
		return 0, err
	}
	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return newBalance, nil
}

// appendInTx insere o lançamento e atualiza o saldo cacheado, com lock
// pessimista na linha da conta e piso em zero para débitos.
func appendInTx(ctx context.Context, tx *sql.Tx, e *model.LedgerEntry) (int64, error) {
	var balance int64
	err := tx.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE id=$1 FOR UPDATE`, e.AccountID).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, model.ErrNotFound
	}
	if err != nil {
		return 0, err
	}

	if e.Amount < 0 && balance+e.Amount < 0 {
		return 0, &model.InsufficientFundsError{Balance: balance, Amount: -e.Amount}
	}

	var marketRef any
	if e.MarketID != "" {
		marketRef = e.MarketID
	}
	if _, err = tx.ExecContext(ctx, `
		INSERT INTO ledger_entries(id, account_id, amount, kind, market_id, created_at)
		VALUES($1,$2,$3,$4,$5,$6)`,
		e.ID, e.AccountID, e.Amount, string(e.Kind), marketRef, e.CreatedAt); err != nil {
		return 0, err
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE accounts SET balance = balance + $1 WHERE id=$2`, e.Amount, e.AccountID); err != nil {
		return 0, err
	}
	return balance + e.Amount, nil
}

func (p *Postgres) CreateMarket(ctx context.Context, m *model.Market) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO markets(id, title, description, min_amount, max_amount, start_time, end_time, state, pool_total, created_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,0,$9)`,
		m.ID, m.Title, m.Description, m.MinAmount, m.MaxAmount, m.StartTime, m.EndTime, string(m.State), m.CreatedAt)
	return err
}

func scanMarket(row interface{ Scan(...any) error }) (*model.Market, error) {
	var m model.Market
	var outcome sql.NullString
	var settledAt sql.NullTime
	err := row.Scan(&m.ID, &m.Title, &m.Description, &m.MinAmount, &m.MaxAmount,
		&m.StartTime, &m.EndTime, &m.State, &outcome, &m.PoolTotal, &m.CreatedAt, &settledAt)
	if err == sql.ErrNoRows {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	m.Outcome = outcome.String
	if settledAt.Valid {
		t := settledAt.Time
		m.SettledAt = &t
	}
	return &m, nil
}

const marketCols = `id, title, description, min_amount, max_amount, start_time, end_time, state, outcome, pool_total, created_at, settled_at`

func (p *Postgres) GetMarket(ctx context.Context, marketID string) (*model.Market, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+marketCols+` FROM markets WHERE id=$1`, marketID)
	return scanMarket(row)
}

func (p *Postgres) ListOpenMarkets(ctx context.Context, now time.Time) ([]model.Market, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+marketCols+` FROM markets
		WHERE state='open' AND end_time > $1
		ORDER BY end_time`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// lockMarket lê a linha do mercado com FOR UPDATE: é o escritor único por
// mercado exigido pelo placeStake/resolve.
func lockMarket(ctx context.Context, tx *sql.Tx, marketID string) (*model.Market, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+marketCols+` FROM markets WHERE id=$1 FOR UPDATE`, marketID)
	return scanMarket(row)
}

func (p *Postgres) TransitionMarket(ctx context.Context, marketID string, from []model.MarketState, to model.MarketState, at time.Time) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	m, err := lockMarket(ctx, tx, marketID)
	if err != nil {
		return err
	}
	if err := checkTransition(m.State, from); err != nil {
		return err
	}

	var settled any
	if to == model.StateResolved || to == model.StateVoid {
		settled = at
	}
	if _, err = tx.ExecContext(ctx,
		`UPDATE markets SET state=$1, settled_at=$2 WHERE id=$3`, string(to), settled, marketID); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *Postgres) GetStake(ctx context.Context, marketID, accountID string) (*model.Stake, error) {
	var s model.Stake
	err := p.db.QueryRowContext(ctx, `
		SELECT id, market_id, account_id, amount, side, placed_at
		FROM stakes WHERE market_id=$1 AND account_id=$2`, marketID, accountID).
		Scan(&s.ID, &s.MarketID, &s.AccountID, &s.Amount, &s.Side, &s.PlacedAt)
	if err == sql.ErrNoRows {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// listStakesTx lista os stakes do mercado dentro da transação que segura o
// lock do mercado na liquidação.
func listStakesTx(ctx context.Context, tx *sql.Tx, marketID string) ([]model.Stake, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, market_id, account_id, amount, side, placed_at
		FROM stakes WHERE market_id=$1 ORDER BY placed_at, id`, marketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Stake
	for rows.Next() {
		var s model.Stake
		if err := rows.Scan(&s.ID, &s.MarketID, &s.AccountID, &s.Amount, &s.Side, &s.PlacedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) PoolTotal(ctx context.Context, marketID string) (int64, error) {
	var total int64
	err := p.db.QueryRowContext(ctx, `SELECT pool_total FROM markets WHERE id=$1`, marketID).Scan(&total)
	if err == sql.ErrNoRows {
		return 0, model.ErrNotFound
	}
	return total, err
}

func (p *Postgres) PlaceStake(ctx context.Context, s *model.Stake, debit *model.LedgerEntry, now time.Time) (int64, int64, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback()

	m, err := lockMarket(ctx, tx, s.MarketID)
	if err != nil {
		return 0, 0, err
	}
	// revalidação sob lock: a janela pode ter fechado entre a leitura e aqui
	if !m.AcceptsStakes(now) {
		return 0, 0, model.ErrMarketNotOpen
	}

	newBalance, err := appendInTx(ctx, tx, debit)
	if err != nil {
		return 0, 0, err
	}

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO stakes(id, market_id, account_id, amount, side, placed_at)
		VALUES($1,$2,$3,$4,$5,$6)`,
		s.ID, s.MarketID, s.AccountID, s.Amount, s.Side, s.PlacedAt); err != nil {
		if isUniqueViolation(err) {
			return 0, 0, model.ErrDuplicateStake
		}
		return 0, 0, err
	}

	var poolTotal int64
	if err = tx.QueryRowContext(ctx, `
		UPDATE markets SET pool_total = pool_total + $1 WHERE id=$2
		RETURNING pool_total`, s.Amount, s.MarketID).Scan(&poolTotal); err != nil {
		return 0, 0, err
	}

	if err = tx.Commit(); err != nil {
		return 0, 0, err
	}
	return newBalance, poolTotal, nil
}

func (p *Postgres) SettleMarket(ctx context.Context, marketID string, to model.MarketState, outcome string, settle func(stakes []model.Stake) []model.LedgerEntry, at time.Time) (map[string]int64, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	m, err := lockMarket(ctx, tx, marketID)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(m.State, []model.MarketState{model.StateOpen, model.StateClosed}); err != nil {
		return nil, err
	}

	// listagem dentro da transação que segura o FOR UPDATE do mercado:
	// placeStake concorrente fica bloqueado até o commit, então todo stake
	// aceito entra na liquidação
	stakes, err := listStakesTx(ctx, tx, marketID)
	if err != nil {
		return nil, err
	}
	entries := settle(stakes)

	balances := make(map[string]int64, len(entries))
	for i := range entries {
		b, err := appendInTx(ctx, tx, &entries[i])
		if err != nil {
			return nil, err
		}
		balances[entries[i].AccountID] = b
	}

	var out any
	if outcome != "" {
		out = outcome
	}
	if _, err = tx.ExecContext(ctx,
		`UPDATE markets SET state=$1, outcome=$2, settled_at=$3 WHERE id=$4`,
		string(to), out, at, marketID); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return balances, nil
}

func (p *Postgres) CreateTask(ctx context.Context, t *model.Task) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO tasks(id, title, description, reward_amount, active)
		VALUES($1,$2,$3,$4,$5)`,
		t.ID, t.Title, t.Description, t.RewardAmount, t.Active)
	return err
}

func (p *Postgres) GetTask(ctx context.Context, taskID string) (*model.Task, error) {
	var t model.Task
	err := p.db.QueryRowContext(ctx, `
		SELECT id, title, description, reward_amount, active FROM tasks WHERE id=$1`, taskID).
		Scan(&t.ID, &t.Title, &t.Description, &t.RewardAmount, &t.Active)
	if err == sql.ErrNoRows {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (p *Postgres) ListTasks(ctx context.Context) ([]model.Task, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, title, description, reward_amount, active FROM tasks
		WHERE active ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Task
	for rows.Next() {
		var t model.Task
		if err := rows.Scan(&t.ID, &t.Title, &t.Description, &t.RewardAmount, &t.Active); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *Postgres) CompletedTaskIDs(ctx context.Context, accountID string) (map[string]bool, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT task_id FROM task_completions WHERE account_id=$1`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

func (p *Postgres) CompleteTask(ctx context.Context, c *model.TaskCompletion, reward *model.LedgerEntry) (int64, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO task_completions(account_id, task_id, completed_at)
		VALUES($1,$2,$3)`, c.AccountID, c.TaskID, c.CompletedAt); err != nil {
		if isUniqueViolation(err) {
			return 0, model.ErrAlreadyClaimed
		}
		return 0, err
	}

	newBalance, err := appendInTx(ctx, tx, reward)
	if err != nil {
		return 0, err
	}

	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return newBalance, nil
}
