package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	bhttp "github.com/cocognome/coco-bet-core/internal/bet-core/http"
	"github.com/cocognome/coco-bet-core/internal/bet-core/identity"
	"github.com/cocognome/coco-bet-core/internal/bet-core/leaderboard"
	"github.com/cocognome/coco-bet-core/internal/bet-core/ledger"
	"github.com/cocognome/coco-bet-core/internal/bet-core/pool"
	"github.com/cocognome/coco-bet-core/internal/bet-core/producer"
	"github.com/cocognome/coco-bet-core/internal/bet-core/pubsub"
	"github.com/cocognome/coco-bet-core/internal/bet-core/rewards"
	"github.com/cocognome/coco-bet-core/internal/bet-core/settle"
	"github.com/cocognome/coco-bet-core/internal/bet-core/store"
	"github.com/cocognome/coco-bet-core/internal/bet-core/ws"
	"github.com/cocognome/coco-bet-core/internal/shared/cache"
	"github.com/cocognome/coco-bet-core/internal/shared/config"
	"github.com/cocognome/coco-bet-core/internal/shared/db"
	"github.com/cocognome/coco-bet-core/internal/shared/kafka"
	"github.com/cocognome/coco-bet-core/internal/shared/logger"
	"github.com/cocognome/coco-bet-core/internal/shared/metrics"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// Postgres
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("pg", zap.Error(err))
	}
	defer pg.Close()

	// Redis (pub/sub do pool + leaderboard)
	rdb, err := cache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	// Kafka writers, um por tópico
	stakeWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicStakePlaced)
	defer stakeWriter.Close()
	resolveWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicMarketResolved)
	defer resolveWriter.Close()
	balanceWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicBalanceChanged)
	defer balanceWriter.Close()

	// deps
	st := store.NewPostgres(pg)
	ids := identity.NewResolver(st)
	led := ledger.New(log, st)
	accountant := pool.NewAccountant(log, st, nil)
	engine := settle.NewEngine(log, st, nil)
	rewardSvc := rewards.New(log, st, cfg.TapReward, cfg.MaxTapsPerReport)
	board := leaderboard.New(rdb, cfg.LeaderboardKey)
	publ := producer.NewKafkaPublisher(stakeWriter, resolveWriter, balanceWriter)
	bcast := pubsub.NewRedisBroadcaster(rdb)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// WS hub + assinante do canal de atualizações de pool
	hub := ws.NewHub(func(r *http.Request) bool { return true })
	ws.StartRedisSubscriber(ctx, log, rdb, cfg.RedisPubSubChannel, hub)

	api := bhttp.NewServer(bhttp.Deps{
		Log:         log,
		Identity:    ids,
		Pool:        accountant,
		Settler:     engine,
		Ledger:      led,
		Rewards:     rewardSvc,
		Board:       board,
		Store:       st,
		Publisher:   publ,
		Broadcaster: bcast,
		Channel:     cfg.RedisPubSubChannel,
		Hub:         hub,
		OpToken:     cfg.OperatorToken,
	})
	apiSrv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler: api.Router(),
	}

	// metrics/health em porta separada
	metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		if err := pg.PingContext(ctx); err != nil {
			return fmt.Errorf("pg: %w", err)
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		return nil
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("bet-core-service listening", zap.String("addr", apiSrv.Addr))
		if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return apiSrv.Shutdown(shutCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal("api", zap.Error(err))
	}
}
