// Package identity mapeia o usuário do Telegram pra conta interna.
// É capability injetada nos handlers — nada de estado global do SDK.
package identity

import (
	"context"
	"errors"

	"github.com/cocognome/coco-bet-core/internal/bet-core/model"
	"github.com/cocognome/coco-bet-core/internal/bet-core/store"
)

var ErrMissingIdentity = errors.New("telegram id required")

type Resolver struct {
	st store.Store
}

func NewResolver(st store.Store) *Resolver { return &Resolver{st: st} }

// Resolve retorna a conta do usuário do Telegram, criando no primeiro acesso
// (passthrough: validação do initData fica na borda, fora deste core).
func (r *Resolver) Resolve(ctx context.Context, telegramID, username string) (*model.Account, error) {
	if telegramID == "" {
		return nil, ErrMissingIdentity
	}
	return r.st.GetOrCreateAccount(ctx, telegramID, username)
}
