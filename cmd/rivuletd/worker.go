package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/rivulet-io/rivulet/internal/config"
	"github.com/rivulet-io/rivulet/internal/events"
	"github.com/rivulet-io/rivulet/internal/logging"
	"github.com/rivulet-io/rivulet/internal/metadata/oxia"
	"github.com/rivulet-io/rivulet/internal/metrics"
	"github.com/rivulet-io/rivulet/internal/segments"
	"github.com/rivulet-io/rivulet/internal/streams"
	"github.com/rivulet-io/rivulet/internal/tasks"
	"github.com/rivulet-io/rivulet/internal/txns"
)

func runWorker(args []string) {
	fs := flag.NewFlagSet("worker", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	metricsAddr := fs.String("metrics-addr", "", "Override metrics endpoint address (e.g., :9090)")
	workerID := fs.String("worker-id", "", "Override worker ID (default: auto-generated UUID)")

	fs.Usage = func() {
		fmt.Println(`Usage: rivuletd worker [options]

Start a Rivulet controller worker.

The worker joins the controller consumer group, pulls stream workflow
events off the queue, and drives them to completion, writing unfinished
events back for a later retry.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	// Load configuration
	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFromPath(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Apply CLI overrides
	if *metricsAddr != "" {
		cfg.Observability.MetricsAddr = *metricsAddr
	}

	// Set up logger
	logger := logging.New(logging.Config{
		Level:  logging.ParseLevel(cfg.Observability.LogLevel),
		Format: logging.ParseFormat(cfg.Observability.LogFormat),
	})
	logging.SetGlobal(logger)

	opts := WorkerOptions{
		Config:   cfg,
		Logger:   logger,
		WorkerID: *workerID,
	}
	if opts.WorkerID == "" {
		opts.WorkerID = uuid.New().String()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	worker, err := NewWorker(ctx, opts)
	if err != nil {
		logger.Errorf("failed to create worker", map[string]any{"error": err.Error()})
		os.Exit(1)
	}

	// Set up signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- worker.Start(ctx)
	}()

	select {
	case sig := <-sigCh:
		logger.Infof("received shutdown signal", map[string]any{"signal": sig.String()})
		cancel()
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Errorf("worker error", map[string]any{"error": err.Error()})
			worker.Shutdown()
			os.Exit(1)
		}
	}

	logger.Info("initiating graceful shutdown")
	worker.Shutdown()
	logger.Info("worker shutdown complete")
}

// WorkerOptions configures a controller worker.
type WorkerOptions struct {
	Config   *config.Config
	Logger   *logging.Logger
	WorkerID string
}

// Worker wires the seal workflow to its collaborators: the Oxia
// metadata store, the segment store notifier, and the Kafka event
// queue.
type Worker struct {
	logger        *logging.Logger
	id            string
	meta          *oxia.Store
	queue         *events.KafkaQueue
	consumer      *events.Consumer
	metricsServer *metrics.Server
	kafkaCfg      events.KafkaConfig
	partitions    int32
}

// NewWorker builds the component graph for one worker instance.
func NewWorker(ctx context.Context, opts WorkerOptions) (*Worker, error) {
	if opts.Config == nil {
		return nil, errors.New("config is required")
	}
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = logging.DefaultLogger()
	}

	meta, err := oxia.New(ctx, oxia.Config{
		ServiceAddress: cfg.Metadata.OxiaEndpoint,
		Namespace:      cfg.Metadata.Namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("connect metadata store: %w", err)
	}

	notifier, err := segments.NewRestNotifier(segments.RestNotifierConfig{
		URI:            cfg.SegmentStore.URI,
		RequestTimeout: time.Duration(cfg.SegmentStore.RequestTimeoutMs) * time.Millisecond,
	})
	if err != nil {
		meta.Close()
		return nil, fmt.Errorf("create segment notifier: %w", err)
	}

	kafkaCfg := events.KafkaConfig{
		SeedBrokers: splitBrokers(cfg.Queue.Brokers),
		Topic:       cfg.Queue.Topic,
		GroupID:     cfg.Queue.GroupID,
	}
	queue, err := events.NewKafkaQueue(kafkaCfg)
	if err != nil {
		meta.Close()
		return nil, fmt.Errorf("create event queue: %w", err)
	}

	store := streams.NewStore(meta)
	coordinator := txns.NewCoordinator(store)
	task := tasks.NewSealStreamTask(store, coordinator, notifier, tasks.SealStreamConfig{
		AuthToken: cfg.Controller.AuthToken,
		Metrics:   metrics.NewSealMetrics(),
	})

	dispatcher := events.NewDispatcher(queue, task, events.DispatcherConfig{
		IsExpectedRetry: tasks.IsExpectedRetry,
		Metrics:         metrics.NewQueueMetrics(),
	})
	consumer, err := events.NewConsumer(kafkaCfg, dispatcher)
	if err != nil {
		queue.Close()
		meta.Close()
		return nil, fmt.Errorf("create event consumer: %w", err)
	}

	return &Worker{
		logger:        logger.With(map[string]any{"workerId": opts.WorkerID}),
		id:            opts.WorkerID,
		meta:          meta,
		queue:         queue,
		consumer:      consumer,
		metricsServer: metrics.NewServer(cfg.Observability.MetricsAddr),
		kafkaCfg:      kafkaCfg,
		partitions:    int32(cfg.Queue.Partitions),
	}, nil
}

// Start provisions the event topic, starts the metrics endpoint, and
// runs the consume loop until ctx is canceled.
func (w *Worker) Start(ctx context.Context) error {
	if err := events.EnsureTopic(ctx, w.kafkaCfg, w.partitions, 1); err != nil {
		return err
	}

	if err := w.metricsServer.Start(); err != nil {
		return fmt.Errorf("start metrics server: %w", err)
	}
	w.logger.Infof("worker started", map[string]any{
		"topic":       w.kafkaCfg.Topic,
		"group":       w.kafkaCfg.GroupID,
		"metricsAddr": w.metricsServer.Addr(),
	})

	ctx = logging.WithLoggerCtx(ctx, w.logger)
	return w.consumer.Run(ctx)
}

// Shutdown releases the worker's resources.
func (w *Worker) Shutdown() {
	w.consumer.Close()
	w.queue.Close()
	w.meta.Close()
	w.metricsServer.Close()
}

func splitBrokers(brokers string) []string {
	parts := strings.Split(brokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
