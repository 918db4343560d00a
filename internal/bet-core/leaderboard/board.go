// Package leaderboard lê o ranking de saldos mantido no Redis pelo
// leaderboard-worker (ZSET saldo -> conta, usernames em hash paralelo).
package leaderboard

import (
	"context"

	"github.com/redis/go-redis/v9"
)

type Board struct {
	r   *redis.Client
	key string
}

func New(r *redis.Client, key string) *Board { return &Board{r: r, key: key} }

func (b *Board) namesKey() string { return b.key + ":names" }

// Entry é uma posição do ranking.
type Entry struct {
	Rank      int    `json:"rank"`
	AccountID string `json:"account_id"`
	Username  string `json:"username"`
	Balance   int64  `json:"balance"`
}

// Top retorna as n maiores posições, rank atribuído a partir de 1.
func (b *Board) Top(ctx context.Context, n int64) ([]Entry, error) {
	zs, err := b.r.ZRevRangeWithScores(ctx, b.key, 0, n-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(zs))
	for i, z := range zs {
		accountID, _ := z.Member.(string)
		username, _ := b.r.HGet(ctx, b.namesKey(), accountID).Result()
		out = append(out, Entry{
			Rank:      i + 1,
			AccountID: accountID,
			Username:  username,
			Balance:   int64(z.Score),
		})
	}
	return out, nil
}

// Set atualiza a posição de uma conta (usado pelo worker).
func (b *Board) Set(ctx context.Context, accountID, username string, balance int64) error {
	if err := b.r.ZAdd(ctx, b.key, redis.Z{Score: float64(balance), Member: accountID}).Err(); err != nil {
		return err
	}
	if username == "" {
		return nil
	}
	return b.r.HSet(ctx, b.namesKey(), accountID, username).Err()
}
