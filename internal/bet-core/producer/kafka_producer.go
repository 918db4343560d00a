package producer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cocognome/coco-bet-core/internal/shared/kafka"
	"github.com/cocognome/coco-bet-core/pkg/contracts/events"
)

// KafkaPublisher publica os eventos do bet-core em seus tópicos.
// Writers separados porque cada writer do kafka-go é amarrado a um tópico.
type KafkaPublisher struct {
	StakeWriter   *kafka.Writer
	ResolveWriter *kafka.Writer
	BalanceWriter *kafka.Writer
}

func NewKafkaPublisher(stake, resolve, balance *kafka.Writer) *KafkaPublisher {
	return &KafkaPublisher{StakeWriter: stake, ResolveWriter: resolve, BalanceWriter: balance}
}

func (p *KafkaPublisher) PublishStakePlaced(ctx context.Context, e events.StakePlaced) error {
	e.TsUnixMs = time.Now().UnixMilli()
	b, _ := json.Marshal(e)
	return kafka.WriteJSON(ctx, p.StakeWriter, e.MarketID, b)
}

func (p *KafkaPublisher) PublishMarketResolved(ctx context.Context, e events.MarketResolved) error {
	b, _ := json.Marshal(e)
	return kafka.WriteJSON(ctx, p.ResolveWriter, e.MarketID, b)
}

func (p *KafkaPublisher) PublishBalanceChanged(ctx context.Context, e events.BalanceChanged) error {
	e.TsUnixMs = time.Now().UnixMilli()
	b, _ := json.Marshal(e)
	return kafka.WriteJSON(ctx, p.BalanceWriter, e.AccountID, b)
}
