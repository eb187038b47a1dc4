package telemetry

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const defaultMetricExportInterval = 60 * time.Second

var (
	metricsMutex        sync.RWMutex
	globalMeterProvider *sdkmetric.MeterProvider
	globalMeter         metric.Meter
	metricsEnabled      bool

	generationsCounter metric.Int64Counter
	generationDuration metric.Float64Histogram
	llmTokensCounter   metric.Int64Counter
	rateLimitedCounter metric.Int64Counter
)

// InitMetrics initialises the OpenTelemetry meter provider
// Should be called after InitTracer in main.go
// Returns a shutdown function and an error if initialisation fails
func InitMetrics(logger *logrus.Logger) (func() error, error) {
	metricsMutex.Lock()
	defer metricsMutex.Unlock()

	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" || os.Getenv("OTEL_SDK_DISABLED") == "true" {
		logger.Debug("OTEL Metrics: Not configured, using noop meter")
		metricsEnabled = false
		globalMeter = otel.GetMeterProvider().Meter(instrumentationName)
		return func() error { return nil }, nil
	}

	logger.WithField("endpoint", endpoint).Info("OTEL Metrics: Initialising meter")

	protocol := getOTLPProtocol()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var exporter sdkmetric.Exporter
	var err error

	switch protocol {
	case "grpc":
		exporter, err = otlpmetricgrpc.New(ctx)
	case "http/protobuf", "http":
		exporter, err = otlpmetrichttp.New(ctx)
	default:
		logger.WithField("protocol", protocol).Warn("OTEL Metrics: Unknown protocol, defaulting to http")
		exporter, err = otlpmetrichttp.New(ctx)
	}

	if err != nil {
		logger.WithError(err).Warn("OTEL Metrics: Failed to create exporter, falling back to noop meter")
		metricsEnabled = false
		globalMeter = otel.GetMeterProvider().Meter(instrumentationName)
		return func() error { return nil }, err
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(getMetricExportInterval(logger)),
		)),
		sdkmetric.WithResource(newResource(ctx, logger)),
	)

	otel.SetMeterProvider(meterProvider)
	globalMeterProvider = meterProvider
	globalMeter = meterProvider.Meter(instrumentationName)

	if err := initMetricInstruments(globalMeter); err != nil {
		logger.WithError(err).Error("OTEL Metrics: Failed to initialise instruments")
		return func() error { return nil }, err
	}

	metricsEnabled = true
	logger.Info("OTEL Metrics: Meter initialised successfully")

	return func() error {
		metricsMutex.Lock()
		defer metricsMutex.Unlock()

		if globalMeterProvider != nil {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := globalMeterProvider.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Error("OTEL Metrics: Failed to shutdown meter provider")
				return err
			}
			logger.Debug("OTEL Metrics: Meter provider shutdown successfully")
		}
		return nil
	}, nil
}

// initMetricInstruments creates all metric instruments. Caller holds metricsMutex.
func initMetricInstruments(meter metric.Meter) error {
	var err error

	generationsCounter, err = meter.Int64Counter(
		"reviewer.generations",
		metric.WithDescription("Reviewer generation requests by outcome"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	generationDuration, err = meter.Float64Histogram(
		"reviewer.generation.duration",
		metric.WithDescription("End-to-end reviewer generation duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(250, 500, 1000, 2500, 5000, 10000, 30000, 60000, 120000, 240000),
	)
	if err != nil {
		return err
	}

	llmTokensCounter, err = meter.Int64Counter(
		"llm.tokens",
		metric.WithDescription("LLM tokens consumed"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return err
	}

	rateLimitedCounter, err = meter.Int64Counter(
		"reviewer.rate_limited",
		metric.WithDescription("Requests rejected by the rate limiter"),
		metric.WithUnit("{request}"),
	)
	return err
}

// IsMetricsEnabled returns true if metrics collection is enabled
func IsMetricsEnabled() bool {
	metricsMutex.RLock()
	defer metricsMutex.RUnlock()
	return metricsEnabled
}

// RecordGeneration records one pipeline run and its duration
func RecordGeneration(ctx context.Context, transport, outcome string, durationMs float64) {
	if !IsMetricsEnabled() {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("transport", transport),
		attribute.String("outcome", outcome),
	)
	generationsCounter.Add(ctx, 1, attrs)
	generationDuration.Record(ctx, durationMs, attrs)
}

// RecordLLMTokens records token consumption for a completion
func RecordLLMTokens(ctx context.Context, provider, model string, inputTokens, outputTokens int64) {
	if !IsMetricsEnabled() {
		return
	}

	llmTokensCounter.Add(ctx, inputTokens, metric.WithAttributes(
		attribute.String(AttrLLMSystem, provider),
		attribute.String(AttrLLMModel, model),
		attribute.String("direction", "input"),
	))
	llmTokensCounter.Add(ctx, outputTokens, metric.WithAttributes(
		attribute.String(AttrLLMSystem, provider),
		attribute.String(AttrLLMModel, model),
		attribute.String("direction", "output"),
	))
}

// RecordRateLimited records a request rejected with 429
func RecordRateLimited(ctx context.Context) {
	if !IsMetricsEnabled() {
		return
	}
	rateLimitedCounter.Add(ctx, 1)
}

func getMetricExportInterval(logger *logrus.Logger) time.Duration {
	intervalStr := os.Getenv("OTEL_METRIC_EXPORT_INTERVAL")
	if intervalStr == "" {
		return defaultMetricExportInterval
	}

	// Bare numbers are seconds
	duration, err := time.ParseDuration(intervalStr)
	if err != nil {
		duration, err = time.ParseDuration(intervalStr + "s")
		if err != nil {
			logger.WithField("interval", intervalStr).Warn("OTEL Metrics: Invalid export interval, using default")
			return defaultMetricExportInterval
		}
	}

	return duration
}
