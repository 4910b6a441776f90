package bootstrap

import (
	"context"
	"sync"
	"time"

	"booking_server/adapter/in/worker"
	"booking_server/adapter/out/messaging"
	"booking_server/config"
	"booking_server/pkg/logger"

	"github.com/rs/zerolog"
)

type Worker struct {
	pool                *worker.Pool
	consumer            *messaging.Consumer
	watchRenewScheduler *worker.WatchRenewScheduler
	deps                *Dependencies
	ctx                 context.Context
	cancel              context.CancelFunc
	wg                  sync.WaitGroup
	zlog                zerolog.Logger
}

func NewWorker(cfg *config.Config) (*Worker, func(), error) {
	deps, cleanup, err := NewDependencies(cfg)
	if err != nil {
		return nil, nil, err
	}

	zlog := logger.Component("worker").With().Str("worker_id", cfg.WorkerID).Logger()

	runner := deps.IntegrationService
	handler := worker.NewHandler(
		worker.NewCalendarProcessor(runner),
		worker.NewWebhookProcessor(runner),
	)

	poolConfig := worker.DefaultPoolConfig()
	poolConfig.MaxWorkers = cfg.WorkerMax
	poolConfig.QueueSize = cfg.WorkerQueueSize
	if cfg.SyncJobTimeout > 0 {
		poolConfig.JobTimeoutByType[worker.JobCalendarSync] = cfg.SyncJobTimeout
	}
	pool := worker.NewPool(handler, poolConfig, zlog)

	ctx, cancel := context.WithCancel(context.Background())

	w := &Worker{
		pool:   pool,
		deps:   deps,
		ctx:    ctx,
		cancel: cancel,
		zlog:   zlog,
	}

	if cfg.SchedulerEnabled {
		w.watchRenewScheduler = worker.NewWatchRenewScheduler(pool, cfg.WatchRenewCron)
		logger.Info("Watch renew scheduler configured (%s)", cfg.WatchRenewCron)
	}

	// Redis Stream Consumer (push-triggered passes)
	if deps.Redis != nil {
		streams := []string{messaging.StreamCalendarSync}
		w.consumer = messaging.NewConsumer(deps.Redis, &messaging.ConsumerConfig{
			Group:                cfg.ConsumerGroup,
			Consumer:             cfg.WorkerID,
			Streams:              streams,
			Handler:              worker.NewStreamHandler(pool),
			Logger:               zlog,
			PendingCheckInterval: secondsOrZero(cfg.ConsumerPendingCheckSec),
			MaxRetries:           cfg.ConsumerMaxRetries,
		})
		logger.Info("Redis Stream Consumer configured for %d streams", len(streams))
	} else {
		logger.Warn("Redis not available, push notifications are synced inline by the API")
	}

	return w, cleanup, nil
}

func (w *Worker) Start() {
	w.pool.Start()

	if w.consumer != nil {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.zlog.Info().Msg("Starting Redis Stream Consumer...")
			if err := w.consumer.Run(w.ctx); err != nil && err != context.Canceled {
				w.zlog.Error().Err(err).Msg("Redis Stream Consumer error")
			}
		}()
	}

	if w.watchRenewScheduler != nil {
		if err := w.watchRenewScheduler.Start(); err != nil {
			w.zlog.Error().Err(err).Msg("failed to start watch renew scheduler")
		} else {
			w.zlog.Info().Msg("Started Watch Renew Scheduler")
		}
	}

	// Block until context is cancelled
	<-w.ctx.Done()
}

func (w *Worker) Stop() {
	if w.watchRenewScheduler != nil {
		w.watchRenewScheduler.Stop()
	}
	w.cancel()
	w.wg.Wait()
	w.pool.Stop()
}

func (w *Worker) Submit(msg *worker.Message) bool {
	return w.pool.Submit(msg)
}

func (w *Worker) GetMetrics() worker.PoolMetrics {
	return w.pool.GetMetrics()
}

func (w *Worker) Dependencies() *Dependencies {
	return w.deps
}

func secondsOrZero(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}
