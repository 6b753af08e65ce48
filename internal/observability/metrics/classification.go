package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	classificationMeterName = "haid.tracker"
)

type ClassificationMetrics struct {
	classifications        metric.Int64Counter
	escalations            metric.Int64Counter
	chainedOverflows       metric.Int64Counter
	storeEvents            metric.Int64Counter
	classificationDuration metric.Float64Histogram
}

// NewClassificationMetrics registers the tracker instruments on provider, or
// on the global provider when nil.
func NewClassificationMetrics(provider metric.MeterProvider) (*ClassificationMetrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(classificationMeterName)

	classifications, err := meter.Int64Counter(
		"haid_classifications_total",
		metric.WithDescription("Total number of record tables classified"),
		metric.WithUnit("{table}"),
	)
	if err != nil {
		return nil, err
	}

	escalations, err := meter.Int64Counter(
		"haid_escalations_total",
		metric.WithDescription("Records marked as a broken pattern"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, err
	}

	chainedOverflows, err := meter.Int64Counter(
		"haid_chained_overflow_total",
		metric.WithDescription("Records flagged for a third consecutive over-threshold bleeding"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, err
	}

	storeEvents, err := meter.Int64Counter(
		"haid_store_events_total",
		metric.WithDescription("Record change notifications consumed"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	classificationDuration, err := meter.Float64Histogram(
		"haid_classification_duration_seconds",
		metric.WithDescription("Time spent classifying one table"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(
			0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1,
		),
	)
	if err != nil {
		return nil, err
	}

	return &ClassificationMetrics{
		classifications:        classifications,
		escalations:            escalations,
		chainedOverflows:       chainedOverflows,
		storeEvents:            storeEvents,
		classificationDuration: classificationDuration,
	}, nil
}

func (m *ClassificationMetrics) RecordClassification(ctx context.Context, lang string, escalated, flagged int, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String("lang", lang))

	m.classifications.Add(ctx, 1, attrs)
	m.classificationDuration.Record(ctx, duration.Seconds(), attrs)
	if escalated > 0 {
		m.escalations.Add(ctx, int64(escalated), attrs)
	}
	if flagged > 0 {
		m.chainedOverflows.Add(ctx, int64(flagged), attrs)
	}
}

func (m *ClassificationMetrics) RecordStoreEvent(ctx context.Context, op string) {
	m.storeEvents.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
	))
}
