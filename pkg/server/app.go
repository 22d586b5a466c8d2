package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	drepo "SigTrail/internal/domain/repository"
	"SigTrail/internal/service/pricestream"
	"SigTrail/internal/usecase"
	"SigTrail/pkg/config"
	xhttp "SigTrail/pkg/http"
	pkgkafka "SigTrail/pkg/kafka"
	applogger "SigTrail/pkg/logger"
	pkgqueue "SigTrail/pkg/queue"
)

// App encapsulates the entire application lifecycle: the HTTP API, the
// periodic batch evaluation loop, the execution-fill consumer, the retry
// queue, and the live price stream.
type App struct {
	cfg       *config.Config
	l         *applogger.Logger
	handler   xhttp.Handler
	store     drepo.SignalStore
	evaluator *usecase.OutcomeEvaluator

	httpServer  *xhttp.Server
	consumer    *pkgkafka.Consumer
	execHandler *usecase.KafkaExecutionsHandler
	retryQueue  *pkgqueue.RedisQueue
	stream      *pricestream.Stream
	archive     drepo.Archive
	publisher   drepo.Publisher
}

// AppOption configures optional App collaborators.
type AppOption func(*App)

// WithKafkaConsumer attaches the execution-fill consumer.
func WithKafkaConsumer(c *pkgkafka.Consumer, h *usecase.KafkaExecutionsHandler) AppOption {
	return func(a *App) {
		a.consumer = c
		a.execHandler = h
	}
}

// WithRetryQueue attaches the evaluation retry queue consumer.
func WithRetryQueue(q *pkgqueue.RedisQueue) AppOption {
	return func(a *App) { a.retryQueue = q }
}

// WithPriceStream attaches the live last-price stream.
func WithPriceStream(s *pricestream.Stream) AppOption {
	return func(a *App) { a.stream = s }
}

// WithArchive attaches the terminal-signal archive for shutdown.
func WithArchive(ar drepo.Archive) AppOption {
	return func(a *App) { a.archive = ar }
}

// WithPublisher attaches the lifecycle publisher for shutdown.
func WithPublisher(p drepo.Publisher) AppOption {
	return func(a *App) { a.publisher = p }
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	handler xhttp.Handler,
	store drepo.SignalStore,
	evaluator *usecase.OutcomeEvaluator,
	opts ...AppOption,
) *App {
	a := &App{
		cfg:       cfg,
		l:         l,
		handler:   handler,
		store:     store,
		evaluator: evaluator,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)

	if a.stream != nil {
		go func() {
			if err := a.stream.Run(ctx); err != nil {
				a.l.Error("price stream error", applogger.Error(err))
			}
		}()
	}

	if a.consumer != nil && a.execHandler != nil {
		a.consumer.RegisterHandler(a.execHandler)
		go func() {
			if err := a.consumer.Start(); err != nil {
				a.l.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		a.l.Info("kafka consumer started", applogger.String("topic", a.execHandler.Topic()))
	}

	if a.retryQueue != nil {
		if err := a.retryQueue.Start(); err != nil {
			a.l.Error("retry queue start error", applogger.Error(err))
		} else {
			a.l.Info("retry queue started")
		}
	}

	go a.evaluationLoop(ctx)

	if err := a.httpServer.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		return err
	}
	a.l.Info("http server started", applogger.Int("port", a.cfg.Server.Port))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.l.Info("shutdown signal received")
	cancel()
	return a.shutdown()
}

// evaluationLoop periodically evaluates eligible signals in batches.
func (a *App) evaluationLoop(ctx context.Context) {
	interval := a.cfg.Evaluator.BatchInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	batchSize := a.cfg.Evaluator.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := a.evaluator.EvaluateBatch(ctx, batchSize)
			if err != nil {
				a.l.Error("batch evaluation failed", applogger.Error(err))
				continue
			}
			a.l.Info("batch evaluation finished",
				applogger.Int("evaluated", report.TotalEvaluated),
				applogger.Int("deferred", report.Deferred),
				applogger.Int("skipped", report.Skipped))
		}
	}
}

// shutdown gracefully stops all services.
func (a *App) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.l.Error("http shutdown error", applogger.Error(err))
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(shutdownCtx); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	if a.retryQueue != nil {
		if err := a.retryQueue.Stop(shutdownCtx); err != nil {
			a.l.Warn("retry queue stop error", applogger.Error(err))
		}
	}

	// Final collector flush must happen while the producer is still open.
	a.l.RemoveCollector()

	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.l.Warn("publisher close error", applogger.Error(err))
		}
	}

	if a.archive != nil {
		if err := a.archive.Close(); err != nil {
			a.l.Warn("archive close error", applogger.Error(err))
		}
	}

	if err := a.store.Close(); err != nil {
		a.l.Warn("store close error", applogger.Error(err))
	}

	a.l.Info("shutdown complete")
	return nil
}
