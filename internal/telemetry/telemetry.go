// Package telemetry counts agent activity with OpenTelemetry metrics.
package telemetry

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "github.com/vdavid/mailagent"

// Setup builds the process MeterProvider and installs it globally. With an empty
// endpoint metrics are discarded. The returned shutdown flushes pending exports.
func Setup(ctx context.Context, endpoint string) (metric.MeterProvider, func(context.Context) error, error) {
	if endpoint == "" {
		mp := noop.NewMeterProvider()
		return mp, func(context.Context) error { return nil }, nil
	}

	exporter, err := otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpointURL(endpoint))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)))
	otel.SetMeterProvider(mp)

	return mp, mp.Shutdown, nil
}

// Recorder holds the agent's instruments. A nil *Recorder records nothing.
type Recorder struct {
	pollCycles          metric.Int64Counter
	messagesDetected    metric.Int64Counter
	replies             metric.Int64Counter
	generationFallbacks metric.Int64Counter
	drafts              metric.Int64Counter
}

// NewRecorder registers the instruments on mp.
func NewRecorder(mp metric.MeterProvider) (*Recorder, error) {
	m := mp.Meter(meterName)

	var r Recorder
	var errs []error
	var err error

	r.pollCycles, err = m.Int64Counter("mailagent.poll.cycles",
		metric.WithDescription("Completed mailbox poll cycles"))
	errs = append(errs, err)

	r.messagesDetected, err = m.Int64Counter("mailagent.messages.detected",
		metric.WithDescription("New messages picked up for a reply"))
	errs = append(errs, err)

	r.replies, err = m.Int64Counter("mailagent.replies.total",
		metric.WithDescription("Automatic replies by outcome"))
	errs = append(errs, err)

	r.generationFallbacks, err = m.Int64Counter("mailagent.generation.fallbacks",
		metric.WithDescription("Generation service calls that fell back to a template"))
	errs = append(errs, err)

	r.drafts, err = m.Int64Counter("mailagent.drafts.total",
		metric.WithDescription("Approval workflow draft transitions"))
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("failed to create instruments: %w", err)
	}
	return &r, nil
}

// statusStr returns "sent" or "failed" depending on whether err is nil.
func statusStr(err error) string {
	if err != nil {
		return "failed"
	}
	return "sent"
}

func (r *Recorder) PollCycle(ctx context.Context) {
	if r == nil {
		return
	}
	r.pollCycles.Add(ctx, 1)
}

func (r *Recorder) MessagesDetected(ctx context.Context, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.messagesDetected.Add(ctx, int64(n))
}

// Reply counts one reply attempt, labelled status=sent|failed.
func (r *Recorder) Reply(ctx context.Context, err error) {
	if r == nil {
		return
	}
	r.replies.Add(ctx, 1, metric.WithAttributes(statusAttr(statusStr(err))))
}

func (r *Recorder) GenerationFallback(ctx context.Context) {
	if r == nil {
		return
	}
	r.generationFallbacks.Add(ctx, 1)
}

// Draft counts a workflow transition such as "created", "sent", "failed" or "cancelled".
func (r *Recorder) Draft(ctx context.Context, action string) {
	if r == nil {
		return
	}
	r.drafts.Add(ctx, 1, metric.WithAttributes(actionAttr(action)))
}
