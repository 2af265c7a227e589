// Package metrics provides Prometheus metrics for observability.
//
// This package exposes metrics for the Rivulet controller:
//   - Seal workflow runs broken down by outcome (sealed, retry, rejected, failure)
//   - Seal workflow run latency
//   - Transaction abort sweep requests broken down by result
//   - Event queue throughput: events written, consumed, redelivered, dropped
//
// Metrics are exposed via a dedicated HTTP server on /metrics in Prometheus format.
//
// Usage:
//
//	// Create and register metrics
//	sealMetrics := metrics.NewSealMetrics()
//	queueMetrics := metrics.NewQueueMetrics()
//
//	// Wire into components
//	task := tasks.NewSealStreamTask(store, notifier, queue, tasks.SealStreamConfig{Metrics: sealMetrics})
//	dispatcher := events.NewDispatcher(queue, handler, events.DispatcherConfig{Metrics: queueMetrics})
//
//	// Start metrics server
//	metricsServer := metrics.NewServer(":9090")
//	metricsServer.Start()
package metrics
