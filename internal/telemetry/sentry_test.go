package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSampleRateFor(t *testing.T) {
	assert.Equal(t, 1.0, SampleRateFor(""))
	assert.Equal(t, 1.0, SampleRateFor("development"))
	assert.Equal(t, 0.1, SampleRateFor("production"))
	assert.Equal(t, 0.1, SampleRateFor("staging"))
}

func TestInit_EmptyDSNIsNoop(t *testing.T) {
	shutdown, err := Init(Config{})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	shutdown()
}

func TestStartSpan_WithoutClient(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "IngestionService.Ingest", SpanAttributes{
		OwnerID:    "owner-1",
		DocumentID: "doc-1",
		Operation:  "ingest",
	})
	require.NotNil(t, span)
	assert.NotNil(t, ctx)

	span.SetError(errors.New("boom"))
	span.End()
}

func TestBreadcrumb_WithoutClient(t *testing.T) {
	assert.NotPanics(t, func() {
		Breadcrumb(context.Background(), "ingest", "batch 0 committed", map[string]any{"sections": 10})
	})
}

func TestSampler(t *testing.T) {
	s := sampler(0.25)

	assert.Equal(t, 0.0, s(sentry.SamplingContext{Span: &sentry.Span{Name: "GET /health"}}))
	assert.Equal(t, 0.25, s(sentry.SamplingContext{Span: &sentry.Span{Name: "POST /answers"}}))
	assert.Equal(t, 0.0, s(sentry.SamplingContext{Span: &sentry.Span{Name: "child", ParentSpanID: sentry.SpanID{1}, Sampled: sentry.SampledFalse}}))
	assert.Equal(t, 1.0, s(sentry.SamplingContext{Span: &sentry.Span{Name: "child", ParentSpanID: sentry.SpanID{1}, Sampled: sentry.SampledTrue}}))
}

func TestSpan_ZeroValueIsInert(t *testing.T) {
	var span Span
	assert.NotPanics(t, func() {
		span.SetError(errors.New("boom"))
		span.End()
	})
}
