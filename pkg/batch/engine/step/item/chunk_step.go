// Package item implements the chunk-oriented step: items are read one at a time,
// transformed, buffered into chunks and written one chunk per sink call.
package item

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-multierror"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/chunkbatch/pkg/batch/core/metrics"
	"github.com/tigerroll/chunkbatch/pkg/batch/engine/step/retry"
	"github.com/tigerroll/chunkbatch/pkg/batch/engine/step/skip"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

const moduleName = "step"

// DefaultChunkSize is used when no chunk size option is given.
const DefaultChunkSize = 10

// settings holds the options shared by every ChunkStep instantiation.
type settings struct {
	jobName        string
	chunkSize      int
	faultPolicy    skip.FaultPolicy
	retryPolicy    retry.RetryPolicy
	listeners      port.Listeners
	metricRecorder metrics.MetricRecorder
	tracer         metrics.Tracer
	clock          func() time.Time
}

// Option configures a ChunkStep.
type Option func(*settings)

// WithJobName sets the job name carried by every event.
func WithJobName(name string) Option {
	return func(s *settings) { s.jobName = name }
}

// WithChunkSize sets the chunk size. size must be positive or model.Unbounded.
func WithChunkSize(size int) Option {
	return func(s *settings) { s.chunkSize = size }
}

// WithFaultPolicy sets the fault policy. The default is skip.AllOrNothing().
func WithFaultPolicy(p skip.FaultPolicy) Option {
	return func(s *settings) { s.faultPolicy = p }
}

// WithRetryPolicy sets the transform retry policy. The default never retries.
func WithRetryPolicy(p retry.RetryPolicy) Option {
	return func(s *settings) { s.retryPolicy = p }
}

// WithListeners appends event listeners. They are called in order.
func WithListeners(ls ...port.Listener) Option {
	return func(s *settings) { s.listeners = append(s.listeners, ls...) }
}

// WithMetricRecorder sets the metric recorder.
func WithMetricRecorder(r metrics.MetricRecorder) Option {
	return func(s *settings) { s.metricRecorder = r }
}

// WithTracer sets the tracer.
func WithTracer(t metrics.Tracer) Option {
	return func(s *settings) { s.tracer = t }
}

// WithClock overrides the time source used for event timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *settings) { s.clock = clock }
}

// ChunkStep drives Source -> Transformer -> Sink in chunks under a fault policy.
// A ChunkStep holds no per-run state; each Run call is independent.
type ChunkStep[I, O any] struct {
	name        string
	source      port.Source[I]
	transformer port.Transformer[I, O]
	sink        port.Sink[O]
	settings
}

// NewChunkStep creates a ChunkStep.
//
// Parameters:
//
//	name: The step name reported in events and metrics.
//	source: Supplies the raw items.
//	transformer: Maps each raw item to an output item.
//	sink: Persists each chunk.
//	opts: Options such as WithChunkSize and WithFaultPolicy.
func NewChunkStep[I, O any](name string, source port.Source[I], transformer port.Transformer[I, O], sink port.Sink[O], opts ...Option) (*ChunkStep[I, O], error) {
	s := settings{
		chunkSize:      DefaultChunkSize,
		faultPolicy:    skip.AllOrNothing(),
		retryPolicy:    retry.NoRetry(),
		metricRecorder: metrics.NewNoOpMetricRecorder(),
		tracer:         metrics.NewNoOpTracer(),
		clock:          time.Now,
	}
	for _, opt := range opts {
		opt(&s)
	}

	if name == "" {
		return nil, exception.NewBatchErrorf(moduleName, "step name must not be empty")
	}
	if source == nil || transformer == nil || sink == nil {
		return nil, exception.NewBatchErrorf(moduleName, "step '%s' requires a source, a transformer and a sink", name)
	}
	if s.chunkSize == 0 || s.chunkSize < model.Unbounded {
		return nil, exception.NewBatchErrorf(moduleName, "step '%s': chunk size must be positive or unbounded, got %d", name, s.chunkSize)
	}
	if s.faultPolicy == nil {
		return nil, exception.NewBatchErrorf(moduleName, "step '%s': fault policy must not be nil", name)
	}

	return &ChunkStep[I, O]{
		name:        name,
		source:      source,
		transformer: transformer,
		sink:        sink,
		settings:    s,
	}, nil
}

// Name returns the step name.
func (s *ChunkStep[I, O]) Name() string {
	return s.name
}

// ChunkSize returns the configured chunk size, or model.Unbounded.
func (s *ChunkStep[I, O]) ChunkSize() int {
	return s.chunkSize
}

// Run executes the step once.
//
// It emits StepStarted first and StepFinished last. The returned error is non-nil exactly
// when the result is Failed: a TransformError under AllOrNothing, a SkipLimitExceededError,
// a WriteError, a read failure, or a cancelled context. Buffered items that were not yet
// written are discarded when the run aborts.
func (s *ChunkStep[I, O]) Run(ctx context.Context) (model.RunResult, error) {
	if s.jobName != "" {
		ctx = metrics.WithJobName(ctx, s.jobName)
	}
	ctx, endSpan := s.tracer.StartStepSpan(ctx, s.jobName, s.name)
	defer endSpan()

	start := s.clock()
	var stats model.RunStats

	logger.Infof("Step '%s' started (chunk size: %s, policy: %v).", s.name, chunkSizeString(s.chunkSize), s.faultPolicy)
	s.metricRecorder.RecordStepStart(ctx, s.name)
	s.emit(ctx, port.StepStarted{EventMeta: s.meta(stats)})

	runErr := s.open(ctx)
	if runErr != nil {
		s.emit(ctx, port.ChunkError{EventMeta: s.meta(stats), Err: runErr})
	} else {
		runErr = s.process(ctx, &stats)
		s.close(ctx)
	}

	result := model.RunResult{Status: model.RunStatusCompleted, Stats: stats}
	if runErr != nil {
		result.Status = model.RunStatusFailed
		s.tracer.RecordError(ctx, moduleName, runErr)
		logger.Errorf("Step '%s' failed (%s): %v", s.name, stats, runErr)
	} else {
		logger.Infof("Step '%s' completed (%s).", s.name, stats)
	}

	s.metricRecorder.RecordStepEnd(ctx, s.name, result, s.clock().Sub(start))
	s.emit(ctx, port.StepFinished{EventMeta: s.meta(stats), Status: result.Status})
	return result, runErr
}

// process runs the read/transform/flush loop. It returns the error that aborted the run;
// the matching ChunkError event has already been emitted.
func (s *ChunkStep[I, O]) process(ctx context.Context, stats *model.RunStats) error {
	buffer := s.newBuffer()

	for {
		// Cancellation is observed at chunk boundaries only.
		if len(buffer) == 0 {
			if err := ctx.Err(); err != nil {
				abortErr := exception.NewBatchError(moduleName, fmt.Sprintf("step '%s' cancelled", s.name), err, false, false)
				s.emit(ctx, port.ChunkError{EventMeta: s.meta(*stats), Err: abortErr})
				return abortErr
			}
		}

		item, err := s.source.Read(ctx)
		if err != nil {
			if errors.Is(err, port.ErrNoMoreItems) || errors.Is(err, io.EOF) {
				break
			}
			readErr := exception.NewBatchError("reader", fmt.Sprintf("failed to read item in step '%s'", s.name), err, false, false)
			s.emit(ctx, port.ChunkError{EventMeta: s.meta(*stats), Err: readErr})
			return readErr
		}
		stats.Total++
		s.metricRecorder.RecordItemRead(ctx, s.name)

		out, err := s.transform(ctx, item)
		if err != nil {
			if ctx.Err() != nil {
				// Cancelled while waiting for a retry; this is not an item failure.
				abortErr := exception.NewBatchError(moduleName, fmt.Sprintf("step '%s' cancelled", s.name), err, false, false)
				s.emit(ctx, port.ChunkError{EventMeta: s.meta(*stats), Err: abortErr})
				return abortErr
			}
			if abortErr := s.onItemFailure(ctx, item, exception.NewTransformError(s.name, err), stats); abortErr != nil {
				return abortErr
			}
			continue
		}
		s.metricRecorder.RecordItemProcess(ctx, s.name)

		buffer = append(buffer, out)
		if s.chunkSize != model.Unbounded && len(buffer) >= s.chunkSize {
			if err := s.flush(ctx, buffer, stats); err != nil {
				return err
			}
			buffer = s.newBuffer()
		}
	}

	if len(buffer) > 0 {
		return s.flush(ctx, buffer, stats)
	}
	return nil
}

// transform applies the transformer under the retry policy.
func (s *ChunkStep[I, O]) transform(ctx context.Context, item I) (O, error) {
	out, retries, err := retry.Do(ctx, s.retryPolicy, func(ctx context.Context) (O, error) {
		return s.transformer.Transform(ctx, item)
	})
	for i := 0; i < retries; i++ {
		s.metricRecorder.RecordItemRetry(ctx, s.name, errorReason(err))
	}
	return out, err
}

// onItemFailure applies the fault policy to one failed item.
// It returns a non-nil error when the run must abort.
func (s *ChunkStep[I, O]) onItemFailure(ctx context.Context, item I, te *exception.TransformError, stats *model.RunStats) error {
	if !s.faultPolicy.CanSkip(te) {
		stats.Failure++
		logger.Warnf("Step '%s': item %d failed and cannot be skipped: %v", s.name, stats.Total, te)
		s.emit(ctx, port.ChunkError{EventMeta: s.meta(*stats), Err: te})
		return te
	}

	decision := s.faultPolicy.OnItemFailure(stats.Failure)
	stats.Failure++
	s.metricRecorder.RecordItemSkip(ctx, s.name, errorReason(te.Cause))
	logger.Debugf("Step '%s': skipping item %d (%d skipped so far): %v", s.name, stats.Total, stats.Failure, te)
	s.emit(ctx, port.ItemSkipped{EventMeta: s.meta(*stats), Item: item, Err: te})

	if decision == skip.Abort {
		sle := exception.NewSkipLimitExceededError(s.faultPolicy.SkipLimit(), stats.Failure, te)
		s.emit(ctx, port.ChunkError{EventMeta: s.meta(*stats), Err: sle})
		return sle
	}
	return nil
}

// flush writes one chunk. A sink failure is fatal and never retried.
func (s *ChunkStep[I, O]) flush(ctx context.Context, chunk []O, stats *model.RunStats) error {
	writeStart := s.clock()
	if err := s.sink.WriteAll(ctx, chunk); err != nil {
		we := exception.NewWriteError(s.name, len(chunk), err)
		s.emit(ctx, port.ChunkError{EventMeta: s.meta(*stats), Err: we})
		return we
	}
	s.metricRecorder.RecordDuration(ctx, "sink_write", s.clock().Sub(writeStart), map[string]string{"step": s.name})

	stats.Success += len(chunk)
	s.metricRecorder.RecordItemWrite(ctx, s.name, len(chunk))
	s.metricRecorder.RecordChunkCommit(ctx, s.name, len(chunk))
	logger.Debugf("Step '%s': committed chunk of %d items (%s).", s.name, len(chunk), *stats)
	s.emit(ctx, port.ChunkCommitted{EventMeta: s.meta(*stats), Count: len(chunk)})
	return nil
}

// open opens the source and the sink when they implement port.Opener.
func (s *ChunkStep[I, O]) open(ctx context.Context) error {
	if o, ok := s.source.(port.Opener); ok {
		if err := o.Open(ctx); err != nil {
			return exception.NewBatchError("reader", fmt.Sprintf("failed to open source of step '%s'", s.name), err, false, false)
		}
	}
	if o, ok := s.sink.(port.Opener); ok {
		if err := o.Open(ctx); err != nil {
			if c, ok := s.source.(port.Closer); ok {
				if cErr := c.Close(ctx); cErr != nil {
					logger.Warnf("Step '%s': failed to close source after sink open error: %v", s.name, cErr)
				}
			}
			return exception.NewBatchError("writer", fmt.Sprintf("failed to open sink of step '%s'", s.name), err, false, false)
		}
	}
	return nil
}

// close closes the source and the sink. Close errors are logged and never change the result.
func (s *ChunkStep[I, O]) close(ctx context.Context) {
	var result *multierror.Error
	if c, ok := s.source.(port.Closer); ok {
		if err := c.Close(ctx); err != nil {
			result = multierror.Append(result, errors.Wrap(err, "close source"))
		}
	}
	if c, ok := s.sink.(port.Closer); ok {
		if err := c.Close(ctx); err != nil {
			result = multierror.Append(result, errors.Wrap(err, "close sink"))
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		logger.Warnf("Step '%s': %v", s.name, err)
	}
}

// emit hands event to the listeners. A panicking listener is logged and ignored.
func (s *ChunkStep[I, O]) emit(ctx context.Context, event port.Event) {
	if len(s.listeners) == 0 {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Step '%s': listener panicked on '%s' event: %v", s.name, event.Kind(), r)
		}
	}()
	s.listeners.Handle(ctx, event)
}

func (s *ChunkStep[I, O]) meta(stats model.RunStats) port.EventMeta {
	return port.EventMeta{
		JobName:  s.jobName,
		StepName: s.name,
		Stats:    stats,
		Time:     s.clock(),
	}
}

func (s *ChunkStep[I, O]) newBuffer() []O {
	if s.chunkSize == model.Unbounded {
		return make([]O, 0, DefaultChunkSize)
	}
	return make([]O, 0, s.chunkSize)
}

func chunkSizeString(size int) string {
	if size == model.Unbounded {
		return "unbounded"
	}
	return fmt.Sprintf("%d", size)
}

// errorReason returns a short label for metrics.
func errorReason(err error) string {
	if err == nil {
		return "unknown"
	}
	return fmt.Sprintf("%T", errors.UnwrapAll(err))
}
