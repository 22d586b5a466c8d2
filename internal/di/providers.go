package di

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	drepo "SigTrail/internal/domain/repository"
	dservice "SigTrail/internal/domain/service"
	"SigTrail/internal/handler/api"
	internalrepo "SigTrail/internal/repository"
	icache "SigTrail/internal/service/cache"
	"SigTrail/internal/service/marketdata"
	"SigTrail/internal/service/narrative"
	"SigTrail/internal/service/notify"
	"SigTrail/internal/service/pricestream"
	"SigTrail/internal/usecase"
	pkgcache "SigTrail/pkg/cache"
	pkgch "SigTrail/pkg/clickhouse"
	"SigTrail/pkg/config"
	xhttp "SigTrail/pkg/http"
	pkgkafka "SigTrail/pkg/kafka"
	applogger "SigTrail/pkg/logger"
	"SigTrail/pkg/metrics"
	pkgqueue "SigTrail/pkg/queue"
	"SigTrail/pkg/server"
)

// RetryPublisher enqueues deferred evaluation retries.
type RetryPublisher *pkgqueue.RedisQueue

// RetryConsumer drains the retry queue.
type RetryConsumer *pkgqueue.RedisQueue

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	level := "info"
	format := "json"
	if cfg.Environment == "development" {
		level = "debug"
		format = "console"
	}
	l, err := applogger.New(&applogger.Config{Level: level, Format: format, Output: "stdout"})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() drepo.Metrics {
	return metrics.New()
}

// ProvideSignalStore selects the signal store backend.
func ProvideSignalStore(cfg *config.Config) (drepo.SignalStore, error) {
	switch cfg.Store.Type {
	case "postgres":
		ssl := cfg.Postgres.SSLMode
		if ssl == "" {
			ssl = "disable"
		}
		dsn := fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
			cfg.Postgres.Host, cfg.Postgres.Port, cfg.Postgres.Database,
			cfg.Postgres.User, cfg.Postgres.Password, ssl)
		maxConns := cfg.Postgres.MaxConns
		if maxConns <= 0 {
			maxConns = 10
		}
		store, err := internalrepo.NewPostgresSignalStore(dsn, maxConns, maxConns/2)
		if err != nil {
			return nil, fmt.Errorf("postgres store: %w", err)
		}
		return store, nil
	default:
		return internalrepo.NewMemorySignalStore(), nil
	}
}

// ProvideMarketData creates the candle history client.
func ProvideMarketData(cfg *config.Config) drepo.MarketData {
	opts := []marketdata.Option{}
	if cfg.MarketData.FetchTimeout > 0 {
		opts = append(opts, marketdata.WithTimeout(cfg.MarketData.FetchTimeout))
	}
	if cfg.MarketData.MaxBars > 0 {
		opts = append(opts, marketdata.WithMaxBars(cfg.MarketData.MaxBars))
	}
	return marketdata.New(cfg.MarketData.BaseURL, opts...)
}

// ProvideRedisCache creates the shared Redis cache, or nil when disabled.
func ProvideRedisCache(cfg *config.Config) (*pkgcache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	host, portStr, err := net.SplitHostPort(cfg.Redis.Addr)
	if err != nil {
		return nil, fmt.Errorf("redis addr %q: %w", cfg.Redis.Addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("redis port %q: %w", portStr, err)
	}
	c, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(host),
		pkgcache.WithRedisPort(port),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return c, nil
}

// ProvideArchive creates the ClickHouse terminal-signal archive, or nil when
// disabled.
func ProvideArchive(cfg *config.Config) (drepo.Archive, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	table := cfg.ClickHouse.Table
	if table == "" {
		table = "signal_outcomes"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.ArchiveSchema(cfg.ClickHouse.Database, table)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return internalrepo.NewClickHouseArchive(client.DB(), cfg.ClickHouse.Database+"."+table), nil
}

// producerLogSink adapts the Kafka producer to the log collector's publisher.
type producerLogSink struct{ p *pkgkafka.Producer }

func (s producerLogSink) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return s.p.Publish(ctx, topic, nil, payload)
}

// ProvideKafkaProducer creates a Kafka producer, or nil when disabled.
func ProvideKafkaProducer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}

	// Error-level logs are deduplicated and shipped alongside lifecycle
	// events once a broker is available.
	logsTopic := cfg.Kafka.LogsTopic
	if logsTopic == "" {
		logsTopic = "sigtrail-logs"
	}
	l.AddCollector(&applogger.CollectionConfig{
		TimeInterval:   30 * time.Second,
		CountThreshold: 100,
		Topic:          logsTopic,
		Publisher:      producerLogSink{producer},
	})

	return producer, nil
}

// ProvidePublisher creates the lifecycle event publisher, or nil without
// Kafka.
func ProvidePublisher(producer *pkgkafka.Producer, cfg *config.Config) drepo.Publisher {
	if producer == nil {
		return nil
	}
	topic := cfg.Kafka.LifecycleTopic
	if topic == "" {
		topic = "signal-lifecycle"
	}
	return internalrepo.NewKafkaLifecyclePublisher(producer, topic)
}

// ProvideKafkaConsumer creates the execution-fill consumer, or nil when no
// executions topic is configured.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || cfg.Kafka.Executions.Topic == "" {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Executions.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Executions.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Executions.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Executions.RetryMax, cfg.Kafka.Executions.BackoffMin, cfg.Kafka.Executions.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Executions.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Executions.MinBytes, cfg.Kafka.Executions.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvidePriceStream creates the live last-price stream.
func ProvidePriceStream(cfg *config.Config, l *applogger.Logger, m drepo.Metrics) *pricestream.Stream {
	url := ""
	if cfg.PriceStream.Enabled {
		url = cfg.PriceStream.URL
	}
	opts := []pricestream.Option{pricestream.WithMetrics(m)}
	if cfg.PriceStream.ReconnectDelay > 0 {
		opts = append(opts, pricestream.WithReconnectDelay(cfg.PriceStream.ReconnectDelay))
	}
	return pricestream.New(url, cfg.PriceStream.Symbols, l, opts...)
}

// ProvideNarrative creates the signal narrative generator.
func ProvideNarrative(cfg *config.Config, l *applogger.Logger) dservice.NarrativeGenerator {
	opts := []narrative.Option{}
	if cfg.Narrative.Timeout > 0 {
		opts = append(opts, narrative.WithTimeout(cfg.Narrative.Timeout))
	}
	if cfg.Narrative.Attempts > 0 {
		opts = append(opts, narrative.WithAttempts(cfg.Narrative.Attempts))
	}
	return narrative.New(cfg.Narrative.ServiceURL, l, opts...)
}

// ProvideNotifier creates the Telegram notifier, or nil when disabled.
func ProvideNotifier(cfg *config.Config) dservice.Notifier {
	if !cfg.Telegram.Enabled {
		return nil
	}
	return notify.NewTelegramNotifier(cfg.Telegram.Token, cfg.Telegram.ChatID)
}

// ProvideSnapshotBuilder creates the indicator snapshot builder.
func ProvideSnapshotBuilder(market drepo.MarketData) *usecase.SnapshotBuilder {
	return usecase.NewSnapshotBuilder(market)
}

// ProvideTracker creates the signal tracker use case.
func ProvideTracker(
	store drepo.SignalStore,
	m drepo.Metrics,
	l *applogger.Logger,
	publisher drepo.Publisher,
	notifier dservice.Notifier,
	gen dservice.NarrativeGenerator,
) *usecase.SignalTracker {
	opts := []usecase.TrackerOption{usecase.WithNarrative(gen)}
	if publisher != nil {
		opts = append(opts, usecase.WithTrackerPublisher(publisher))
	}
	if notifier != nil {
		opts = append(opts, usecase.WithNotifier(notifier))
	}
	return usecase.NewSignalTracker(store, m, l, opts...)
}

// ProvideRetryPublisher creates the producer side of the evaluation retry
// queue, or nil without Redis.
func ProvideRetryPublisher(l *applogger.Logger, rc *pkgcache.RedisCache) RetryPublisher {
	if rc == nil {
		return nil
	}
	return pkgqueue.NewRedisPublisher(l, rc.Client())
}

// ProvideEvaluator creates the outcome evaluator use case.
func ProvideEvaluator(
	cfg *config.Config,
	store drepo.SignalStore,
	market drepo.MarketData,
	m drepo.Metrics,
	l *applogger.Logger,
	archive drepo.Archive,
	publisher drepo.Publisher,
	stream *pricestream.Stream,
	rc *pkgcache.RedisCache,
	retryPub RetryPublisher,
	notifier dservice.Notifier,
) *usecase.OutcomeEvaluator {
	opts := []usecase.EvaluatorOption{usecase.WithLastPrices(stream)}
	if notifier != nil {
		opts = append(opts, usecase.WithEvaluatorNotifier(notifier))
	}
	if cfg.Evaluator.MaxHolding > 0 {
		opts = append(opts, usecase.WithMaxHolding(cfg.Evaluator.MaxHolding))
	}
	if cfg.Evaluator.MinAge > 0 {
		opts = append(opts, usecase.WithMinAge(cfg.Evaluator.MinAge))
	}
	if cfg.MarketData.FetchTimeout > 0 {
		opts = append(opts, usecase.WithFetchTimeout(cfg.MarketData.FetchTimeout))
	}
	if cfg.Evaluator.RetryAttempts > 0 {
		opts = append(opts, usecase.WithRetry(cfg.Evaluator.RetryAttempts, cfg.Evaluator.RetryBackoff))
	}
	if archive != nil {
		opts = append(opts, usecase.WithArchive(archive))
	}
	if publisher != nil {
		opts = append(opts, usecase.WithPublisher(publisher))
	}
	if rc != nil {
		// Redis stays authoritative for existence checks; the memory layer
		// only short-circuits repeated reads of the same marker.
		opts = append(opts, usecase.WithDeferralCache(pkgcache.NewLayeredCache(rc), cfg.Evaluator.DeferralTTL))
	}
	if retryPub != nil {
		opts = append(opts, usecase.WithRetryQueue((*pkgqueue.RedisQueue)(retryPub)))
	}
	return usecase.NewOutcomeEvaluator(store, market, m, l, opts...)
}

// ProvideRetryConsumer creates the consumer side of the evaluation retry
// queue, or nil without Redis.
func ProvideRetryConsumer(l *applogger.Logger, rc *pkgcache.RedisCache, evaluator *usecase.OutcomeEvaluator) RetryConsumer {
	if rc == nil {
		return nil
	}
	return pkgqueue.NewRedisConsumer(l, &pkgqueue.QueueConfig{
		Workers:    2,
		RetryLimit: 5,
		RetryDelay: 30 * time.Second,
	}, rc.Client(), []pkgqueue.Job{usecase.NewEvaluationRetryJob(evaluator, l)})
}

// ProvideInsights creates the insights aggregator use case.
func ProvideInsights(cfg *config.Config, store drepo.SignalStore, l *applogger.Logger) *usecase.InsightsAggregator {
	return usecase.NewInsightsAggregator(store, l, cfg.Insights.MinSample)
}

// ProvideExecutionsHandler creates the Kafka execution-fill handler, or nil
// without a consumer.
func ProvideExecutionsHandler(
	cfg *config.Config,
	consumer *pkgkafka.Consumer,
	tracker *usecase.SignalTracker,
	m drepo.Metrics,
	l *applogger.Logger,
) *usecase.KafkaExecutionsHandler {
	if consumer == nil {
		return nil
	}
	return usecase.NewKafkaExecutionsHandler(cfg.Kafka.Executions.Topic, tracker, m, l)
}

// ProvideHTTPHandler creates the signals HTTP handler.
func ProvideHTTPHandler(
	cfg *config.Config,
	l *applogger.Logger,
	store drepo.SignalStore,
	tracker *usecase.SignalTracker,
	evaluator *usecase.OutcomeEvaluator,
	insights *usecase.InsightsAggregator,
	snapshots *usecase.SnapshotBuilder,
) xhttp.Handler {
	var reportCache icache.BytesCache
	if cfg.Redis.Enabled {
		reportCache = icache.NewRedisCache(icache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	} else {
		reportCache = icache.NewTTLCache()
	}
	return api.NewSignalsHandler(l, store, tracker, evaluator, insights, snapshots,
		api.WithInsightsCache(reportCache, cfg.Insights.CacheTTL))
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	handler xhttp.Handler,
	store drepo.SignalStore,
	evaluator *usecase.OutcomeEvaluator,
	consumer *pkgkafka.Consumer,
	execHandler *usecase.KafkaExecutionsHandler,
	retryConsumer RetryConsumer,
	stream *pricestream.Stream,
	archive drepo.Archive,
	publisher drepo.Publisher,
) *server.App {
	return server.New(cfg, l, handler, store, evaluator,
		server.WithKafkaConsumer(consumer, execHandler),
		server.WithRetryQueue((*pkgqueue.RedisQueue)(retryConsumer)),
		server.WithPriceStream(stream),
		server.WithArchive(archive),
		server.WithPublisher(publisher),
	)
}
