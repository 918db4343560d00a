package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/cocognome/coco-bet-core/internal/bet-core/leaderboard"
	"github.com/cocognome/coco-bet-core/internal/leaderboard-worker/projector"
	"github.com/cocognome/coco-bet-core/internal/shared/cache"
	"github.com/cocognome/coco-bet-core/internal/shared/config"
	"github.com/cocognome/coco-bet-core/internal/shared/kafka"
	"github.com/cocognome/coco-bet-core/internal/shared/logger"
	"github.com/cocognome/coco-bet-core/internal/shared/metrics"
)

var (
	eventsConsumed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "leaderboard_events_consumed_total",
		Help: "Eventos balance_changed lidos do Kafka",
	})
	eventsApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "leaderboard_events_applied_total",
		Help: "Eventos aplicados no ZSET do Redis",
	})
	eventErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leaderboard_event_errors_total",
		Help: "Falhas por fase (read/decode/redis)",
	}, []string{"phase"})
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	rdb, err := cache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	reader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicBalanceChanged, "leaderboard")
	defer reader.Close()

	metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})

	p := &projector.Projector{
		Log:        log,
		Reader:     reader,
		Board:      leaderboard.New(rdb, cfg.LeaderboardKey),
		OnConsumed: eventsConsumed.Inc,
		OnApplied:  eventsApplied.Inc,
		OnError: func(phase string) {
			eventErrors.WithLabelValues(phase).Inc()
		},
	}

	log.Info("leaderboard-worker started",
		zap.String("consume", cfg.TopicBalanceChanged),
		zap.String("key", cfg.LeaderboardKey),
	)
	if err := p.Run(context.Background()); err != nil {
		log.Fatal("projector", zap.Error(err))
	}
}
