package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hivisloyalty/internal/config"
	"hivisloyalty/internal/handler"
	"hivisloyalty/internal/infrastructure/cache"
	"hivisloyalty/internal/infrastructure/database"
	"hivisloyalty/internal/infrastructure/lock"
	"hivisloyalty/internal/infrastructure/mq"
	"hivisloyalty/internal/job"
	"hivisloyalty/internal/service"
	"hivisloyalty/internal/source"
	"hivisloyalty/pkg/idgen"
	"hivisloyalty/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Env, cfg.Log.Service)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	if err := idgen.Init(cfg.Server.WorkerID); err != nil {
		return fmt.Errorf("init id generator: %w", err)
	}

	db, err := database.InitMySQL(&cfg.MySQL, log)
	if err != nil {
		return err
	}

	redisClient, err := cache.InitRedis(&cfg.Redis, log)
	if err != nil {
		return err
	}
	defer redisClient.Close()
	locker := lock.NewRedisLocker(redisClient,
		cfg.Loyalty.LockTTL(),
		cfg.Loyalty.LockRetryInterval(),
		cfg.Loyalty.LockMaxRetries)

	publisher, err := mq.InitKafka(&cfg.Kafka)
	if err != nil {
		return err
	}
	defer publisher.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rules := service.NewRules(cfg)
	notifier := service.NewOutboxNotifier(db, cfg.Kafka.Topic.Notifications, log)
	svc := service.NewServices(db, locker, rules, notifier, log)

	var poller handler.SyncController
	if cfg.Sync.BaseURL != "" {
		client := source.NewMomaClient(cfg.Sync.BaseURL, cfg.Sync.APIKey, 15*time.Second, log)
		p := job.NewSyncPoller(client, svc.Intake, cfg.Sync.Interval(),
			time.Duration(cfg.Sync.LookbackHours)*time.Hour, log)
		if cfg.Sync.Enabled {
			if err := p.Start(ctx); err != nil {
				return fmt.Errorf("start sync poller: %w", err)
			}
			defer p.Stop()
		}
		poller = p
	}

	h := handler.NewHandler(ctx, svc, poller, log)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           handler.SetupRouter(h, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	outboxSender := job.NewOutboxSender(db, publisher, cfg.Kafka.MaxRetryCount, log)
	rollover := job.NewSeasonRolloverJob(svc.Seasons, time.Duration(cfg.Jobs.SeasonCheckMinutes)*time.Minute, log)
	reconcile := job.NewReconcileJob(svc.Reconcile, time.Duration(cfg.Jobs.ReconcileIntervalMinutes)*time.Minute, log)
	for _, start := range []func(context.Context){outboxSender.Start, rollover.Start, reconcile.Start} {
		start := start
		g.Go(func() error {
			start(gctx)
			return nil
		})
	}
	g.Go(func() error {
		log.Info("http server listening", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info("shutting down", zap.String("signal", sig.String()))
	case <-gctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", zap.Error(err))
	}

	cancel()
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("server stopped")
	return nil
}
