package test

import (
	"context"

	"github.com/stretchr/testify/mock"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/chunkbatch/pkg/batch/core/metrics"
)

// MockTracer is a testify mock of metrics.Tracer.
// Span starts are not mocked; they return ctx and a no-op end function.
type MockTracer struct {
	mock.Mock
}

func (m *MockTracer) StartJobSpan(ctx context.Context, execution *model.JobExecution) (context.Context, func()) {
	return ctx, func() {}
}

func (m *MockTracer) StartStepSpan(ctx context.Context, jobName, stepName string) (context.Context, func()) {
	return ctx, func() {}
}

func (m *MockTracer) RecordError(ctx context.Context, module string, err error) {
	m.Called(ctx, module, err)
}

func (m *MockTracer) RecordEvent(ctx context.Context, name string, attributes map[string]interface{}) {
	m.Called(ctx, name, attributes)
}

var _ metrics.Tracer = (*MockTracer)(nil)
