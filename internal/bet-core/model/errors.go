package model

import (
	"errors"
	"fmt"
)

// Erros recuperáveis do core. Todos chegam ao chamador com o limite
// violado no payload; nunca são engolidos nem só logados.
var (
	ErrNotFound        = errors.New("not found")
	ErrMarketNotOpen   = errors.New("market not open")
	ErrDuplicateStake  = errors.New("duplicate stake")
	ErrAlreadyResolved = errors.New("market already resolved")
	ErrAlreadyClaimed  = errors.New("task already claimed")
	ErrUnavailable     = errors.New("storage unavailable")
)

// InsufficientFundsError indica que o débito levaria o saldo abaixo de zero.
type InsufficientFundsError struct {
	Balance int64
	Amount  int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: balance=%d amount=%d", e.Balance, e.Amount)
}

// OutOfRangeError indica valor fora dos limites do mercado.
type OutOfRangeError struct {
	Min    int64
	Max    int64
	Amount int64
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("amount %d out of range [%d,%d]", e.Amount, e.Min, e.Max)
}
