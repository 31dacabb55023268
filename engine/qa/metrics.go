package qa

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	metricsOnce        sync.Once
	metricsMu          sync.Mutex
	metricsInitErr     error
	uploadDurationHist metric.Float64Histogram
	chunkCounter       metric.Int64Counter
	queryLatencyHist   metric.Float64Histogram
	queryEmptyCounter  metric.Int64Counter
	removalCounter     metric.Int64Counter
)

func recordUpload(ctx context.Context, d time.Duration, chunks int, status string) {
	if err := ensureMetrics(); err != nil || uploadDurationHist == nil {
		return
	}
	uploadDurationHist.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("status", status)))
	if chunks > 0 && chunkCounter != nil {
		chunkCounter.Add(ctx, int64(chunks))
	}
}

func recordQuery(ctx context.Context, d time.Duration, results int) {
	if err := ensureMetrics(); err != nil || queryLatencyHist == nil {
		return
	}
	queryLatencyHist.Record(ctx, d.Seconds())
	if results == 0 && queryEmptyCounter != nil {
		queryEmptyCounter.Add(ctx, 1)
	}
}

func recordRemoval(ctx context.Context, reason string) {
	if err := ensureMetrics(); err != nil || removalCounter == nil {
		return
	}
	removalCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// ResetMetricsForTesting clears the cached instruments.
func ResetMetricsForTesting() {
	metricsMu.Lock()
	metricsOnce = sync.Once{}
	metricsInitErr = nil
	uploadDurationHist = nil
	chunkCounter = nil
	queryLatencyHist = nil
	queryEmptyCounter = nil
	removalCounter = nil
	metricsMu.Unlock()
}

func ensureMetrics() error {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("pagedex.qa")
		var err error
		uploadDurationHist, err = meter.Float64Histogram(
			"pagedex_upload_duration_seconds",
			metric.WithDescription("Latency of document upload and ingestion"),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120),
		)
		if err != nil {
			metricsInitErr = err
			return
		}
		chunkCounter, err = meter.Int64Counter(
			"pagedex_chunks_total",
			metric.WithDescription("Number of chunks persisted during ingestion"),
			metric.WithUnit("1"),
		)
		if err != nil {
			metricsInitErr = err
			return
		}
		queryLatencyHist, err = meter.Float64Histogram(
			"pagedex_query_latency_seconds",
			metric.WithDescription("Latency of question answering"),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10),
		)
		if err != nil {
			metricsInitErr = err
			return
		}
		queryEmptyCounter, err = meter.Int64Counter(
			"pagedex_query_empty_total",
			metric.WithDescription("Number of questions that retrieved no context"),
			metric.WithUnit("1"),
		)
		if err != nil {
			metricsInitErr = err
			return
		}
		removalCounter, err = meter.Int64Counter(
			"pagedex_document_removals_total",
			metric.WithDescription("Number of documents removed, by reason"),
			metric.WithUnit("1"),
		)
		if err != nil {
			metricsInitErr = err
		}
	})
	return metricsInitErr
}
