package metrics

import (
	"context"
	"sync"
	"time"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/chunkbatch/pkg/batch/core/metrics"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// DefaultAsyncBufferSize is used when the configured buffer size is not positive.
const DefaultAsyncBufferSize = 100

type metricEventType int

const (
	eventJobStart metricEventType = iota
	eventJobEnd
	eventStepStart
	eventStepEnd
	eventItemRead
	eventItemProcess
	eventItemWrite
	eventItemSkip
	eventItemRetry
	eventChunkCommit
	eventDuration
)

// metricEvent is one recorder call queued for the worker.
// The job name is captured from the caller's context because the worker runs detached from it.
type metricEvent struct {
	kind      metricEventType
	jobName   string
	execution *model.JobExecution
	stepName  string
	result    model.RunResult
	count     int
	reason    string
	duration  time.Duration
	tags      map[string]string
}

// AsyncMetricRecorder queues recorder calls on a buffered channel and replays them on a
// worker goroutine, so slow backends never stall the chunk loop.
// Calls made while the queue is full are dropped with a warning.
type AsyncMetricRecorder struct {
	queue    chan metricEvent
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	delegate metrics.MetricRecorder
}

// NewAsyncMetricRecorder starts the worker. A bufferSize of 0 or less uses DefaultAsyncBufferSize.
func NewAsyncMetricRecorder(bufferSize int, delegate metrics.MetricRecorder) *AsyncMetricRecorder {
	if bufferSize <= 0 {
		bufferSize = DefaultAsyncBufferSize
	}
	r := &AsyncMetricRecorder{
		queue:    make(chan metricEvent, bufferSize),
		stopCh:   make(chan struct{}),
		delegate: delegate,
	}
	r.wg.Add(1)
	go r.run()
	logger.Debugf("AsyncMetricRecorder: Worker goroutine started (buffer size: %d).", bufferSize)
	return r
}

func (r *AsyncMetricRecorder) run() {
	defer r.wg.Done()
	for {
		select {
		case event := <-r.queue:
			r.process(event)
		case <-r.stopCh:
			drained := 0
			for {
				select {
				case event := <-r.queue:
					r.process(event)
					drained++
				default:
					logger.Debugf("AsyncMetricRecorder: Worker goroutine stopped. Processed %d remaining events.", drained)
					return
				}
			}
		}
	}
}

func (r *AsyncMetricRecorder) process(event metricEvent) {
	ctx := metrics.WithJobName(context.Background(), event.jobName)
	switch event.kind {
	case eventJobStart:
		r.delegate.RecordJobStart(ctx, event.execution)
	case eventJobEnd:
		r.delegate.RecordJobEnd(ctx, event.execution)
	case eventStepStart:
		r.delegate.RecordStepStart(ctx, event.stepName)
	case eventStepEnd:
		r.delegate.RecordStepEnd(ctx, event.stepName, event.result, event.duration)
	case eventItemRead:
		r.delegate.RecordItemRead(ctx, event.stepName)
	case eventItemProcess:
		r.delegate.RecordItemProcess(ctx, event.stepName)
	case eventItemWrite:
		r.delegate.RecordItemWrite(ctx, event.stepName, event.count)
	case eventItemSkip:
		r.delegate.RecordItemSkip(ctx, event.stepName, event.reason)
	case eventItemRetry:
		r.delegate.RecordItemRetry(ctx, event.stepName, event.reason)
	case eventChunkCommit:
		r.delegate.RecordChunkCommit(ctx, event.stepName, event.count)
	case eventDuration:
		r.delegate.RecordDuration(ctx, event.stepName, event.duration, event.tags)
	}
}

// Close stops the worker after it has processed every queued event. It is safe to call twice.
func (r *AsyncMetricRecorder) Close() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
}

func (r *AsyncMetricRecorder) send(ctx context.Context, event metricEvent) {
	event.jobName = metrics.JobNameFromContext(ctx)
	select {
	case <-r.stopCh:
		logger.Warnf("AsyncMetricRecorder: recorder is closed, event of step '%s' discarded.", event.stepName)
		return
	default:
	}
	select {
	case r.queue <- event:
	default:
		logger.Warnf("AsyncMetricRecorder: Event queue is full (job: %s, step: %s). Event discarded.", event.jobName, event.stepName)
	}
}

// snapshot copies execution so that the worker never reads a JobExecution the runner is still updating.
func snapshot(execution *model.JobExecution) *model.JobExecution {
	c := *execution
	return &c
}

func (r *AsyncMetricRecorder) RecordJobStart(ctx context.Context, execution *model.JobExecution) {
	r.send(metrics.WithJobName(ctx, execution.JobName), metricEvent{kind: eventJobStart, execution: snapshot(execution)})
}

func (r *AsyncMetricRecorder) RecordJobEnd(ctx context.Context, execution *model.JobExecution) {
	r.send(metrics.WithJobName(ctx, execution.JobName), metricEvent{kind: eventJobEnd, execution: snapshot(execution)})
}

func (r *AsyncMetricRecorder) RecordStepStart(ctx context.Context, stepName string) {
	r.send(ctx, metricEvent{kind: eventStepStart, stepName: stepName})
}

func (r *AsyncMetricRecorder) RecordStepEnd(ctx context.Context, stepName string, result model.RunResult, duration time.Duration) {
	r.send(ctx, metricEvent{kind: eventStepEnd, stepName: stepName, result: result, duration: duration})
}

func (r *AsyncMetricRecorder) RecordItemRead(ctx context.Context, stepName string) {
	r.send(ctx, metricEvent{kind: eventItemRead, stepName: stepName})
}

func (r *AsyncMetricRecorder) RecordItemProcess(ctx context.Context, stepName string) {
	r.send(ctx, metricEvent{kind: eventItemProcess, stepName: stepName})
}

func (r *AsyncMetricRecorder) RecordItemWrite(ctx context.Context, stepName string, count int) {
	r.send(ctx, metricEvent{kind: eventItemWrite, stepName: stepName, count: count})
}

func (r *AsyncMetricRecorder) RecordItemSkip(ctx context.Context, stepName string, reason string) {
	r.send(ctx, metricEvent{kind: eventItemSkip, stepName: stepName, reason: reason})
}

func (r *AsyncMetricRecorder) RecordItemRetry(ctx context.Context, stepName string, reason string) {
	r.send(ctx, metricEvent{kind: eventItemRetry, stepName: stepName, reason: reason})
}

func (r *AsyncMetricRecorder) RecordChunkCommit(ctx context.Context, stepName string, count int) {
	r.send(ctx, metricEvent{kind: eventChunkCommit, stepName: stepName, count: count})
}

// RecordDuration queues a duration; name travels in the stepName field.
func (r *AsyncMetricRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	r.send(ctx, metricEvent{kind: eventDuration, stepName: name, duration: duration, tags: tags})
}

var _ metrics.MetricRecorder = (*AsyncMetricRecorder)(nil)
