package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cocognome/coco-bet-core/internal/notify"
	"github.com/cocognome/coco-bet-core/internal/shared/config"
	"github.com/cocognome/coco-bet-core/internal/shared/kafka"
	"github.com/cocognome/coco-bet-core/internal/shared/logger"
	"github.com/cocognome/coco-bet-core/internal/shared/metrics"
	ev "github.com/cocognome/coco-bet-core/pkg/contracts/events"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if cfg.TelegramBotToken == "" || cfg.TelegramChatID == "" {
		log.Fatal("TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID are required")
	}
	sender := notify.NewTelegramSender(cfg.TelegramBotToken, cfg.TelegramChatID)

	reader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicMarketResolved, "notify")
	defer reader.Close()

	metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		return nil // worker sem dependência própria de storage
	})

	log.Info("notify-worker started", zap.String("consume", cfg.TopicMarketResolved))

	ctx := context.Background()
	for {
		_, value, err := kafka.ReadNext(ctx, reader)
		if err != nil {
			log.Warn("kafka read", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		var resolved ev.MarketResolved
		if jerr := json.Unmarshal(value, &resolved); jerr != nil {
			log.Error("unmarshal market_resolved", zap.Error(jerr))
			continue
		}

		title, body := formatAnnouncement(&resolved)
		if err := sender.Send(ctx, title, body); err != nil {
			log.Error("telegram send", zap.String("marketId", resolved.MarketID), zap.Error(err))
			time.Sleep(500 * time.Millisecond)
		}
	}
}

// formatAnnouncement monta o anúncio do resultado pro chat do Telegram.
func formatAnnouncement(e *ev.MarketResolved) (title, body string) {
	if e.State == "void" || e.Outcome == "" {
		title = "Mercado anulado"
		body = fmt.Sprintf("%s\nApostas devolvidas: %d $COCO", e.Title, e.Payouts)
		return title, body
	}

	title = "Mercado liquidado"
	if e.Winners == 0 {
		body = fmt.Sprintf("%s\nResultado: %s\nSem vencedores, apostas devolvidas (%d $COCO)",
			e.Title, e.Outcome, e.Payouts)
		return title, body
	}
	body = fmt.Sprintf("%s\nResultado: %s\nPool: %d $COCO | Vencedores: %d | Pago: %d $COCO",
		e.Title, e.Outcome, e.TotalPool, e.Winners, e.Payouts)
	return title, body
}
