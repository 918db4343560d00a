package projector

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/cocognome/coco-bet-core/internal/bet-core/leaderboard"
	skafka "github.com/cocognome/coco-bet-core/internal/shared/kafka"
	"github.com/cocognome/coco-bet-core/pkg/contracts/events"
)

// Projector consome eventos balance_changed do Kafka e mantém o ZSET do
// leaderboard no Redis. Callbacks de métricas podem ser usadas para
// monitoramento de cada etapa.
type Projector struct {
	Log    *zap.Logger
	Reader *kafka.Reader
	Board  *leaderboard.Board

	OnConsumed func()       // métricas (counter++)
	OnApplied  func()       // métricas
	OnError    func(string) // métricas por fase
}

// Run inicia o loop principal de consumo e projeção dos eventos
func (p *Projector) Run(ctx context.Context) error {
	for {
		_, value, err := skafka.ReadNext(ctx, p.Reader)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err() // encerra se o contexto for cancelado
			}
			p.Log.Warn("kafka read failed", zap.Error(err))
			if p.OnError != nil {
				p.OnError("read")
			}
			time.Sleep(500 * time.Millisecond)
			continue
		}

		if p.OnConsumed != nil {
			p.OnConsumed()
		}

		var ev events.BalanceChanged
		if err := json.Unmarshal(value, &ev); err != nil {
			p.Log.Warn("invalid message", zap.Error(err))
			if p.OnError != nil {
				p.OnError("decode")
			}
			continue
		}

		// A projeção é idempotente: o ZADD sobrescreve o score da conta,
		// então reprocessar um evento não corrompe o ranking.
		if err := p.Board.Set(ctx, ev.AccountID, ev.Username, ev.Balance); err != nil {
			p.Log.Warn("redis zadd failed", zap.Error(err))
			if p.OnError != nil {
				p.OnError("redis")
			}
			continue
		}
		if p.OnApplied != nil {
			p.OnApplied()
		}
	}
}
