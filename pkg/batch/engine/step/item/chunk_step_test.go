package item_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/engine/step/item"
	"github.com/tigerroll/chunkbatch/pkg/batch/engine/step/retry"
	"github.com/tigerroll/chunkbatch/pkg/batch/engine/step/skip"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
)

type user struct {
	Name  string
	Email string
}

func valid(name string) user   { return user{Name: name, Email: name + "@example.com"} }
func invalid(name string) user { return user{Name: name, Email: "invalid_email"} }

// sliceSource returns the items in order, then ErrNoMoreItems.
func sliceSource(items ...user) port.Source[user] {
	i := 0
	return port.SourceFunc[user](func(ctx context.Context) (user, error) {
		if i >= len(items) {
			return user{}, port.ErrNoMoreItems
		}
		i++
		return items[i-1], nil
	})
}

var validateEmail = port.TransformerFunc[user, user](func(ctx context.Context, u user) (user, error) {
	if u.Email == "invalid_email" {
		return user{}, fmt.Errorf("invalid email for %s", u.Name)
	}
	u.Name = strings.ToUpper(u.Name)
	return u, nil
})

// recordingSink keeps every chunk it receives.
type recordingSink struct {
	chunks [][]user
}

func (s *recordingSink) WriteAll(ctx context.Context, items []user) error {
	s.chunks = append(s.chunks, append([]user(nil), items...))
	return nil
}

func (s *recordingSink) sizes() []int {
	out := make([]int, 0, len(s.chunks))
	for _, c := range s.chunks {
		out = append(out, len(c))
	}
	return out
}

func (s *recordingSink) names() []string {
	var out []string
	for _, c := range s.chunks {
		for _, u := range c {
			out = append(out, u.Name)
		}
	}
	return out
}

// eventLog collects events in order.
type eventLog struct {
	events []port.Event
}

func (l *eventLog) Handle(ctx context.Context, e port.Event) {
	l.events = append(l.events, e)
}

func (l *eventLog) kinds() []model.EventKind {
	out := make([]model.EventKind, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.Kind())
	}
	return out
}

func runStep(t *testing.T, src port.Source[user], sink port.Sink[user], opts ...item.Option) (model.RunResult, error, *eventLog) {
	t.Helper()
	events := &eventLog{}
	opts = append(opts, item.WithListeners(events), item.WithJobName("testJob"))
	step, err := item.NewChunkStep[user, user]("testStep", src, validateEmail, sink, opts...)
	require.NoError(t, err)
	result, runErr := step.Run(context.Background())
	return result, runErr, events
}

func TestChunkStep_Scenarios(t *testing.T) {
	t.Run("three valid items in one chunk", func(t *testing.T) {
		sink := &recordingSink{}
		result, err, events := runStep(t, sliceSource(valid("a"), valid("b"), valid("c")), sink,
			item.WithChunkSize(10), item.WithFaultPolicy(skip.AllOrNothing()))

		require.NoError(t, err)
		assert.Equal(t, model.RunResult{Status: model.RunStatusCompleted, Stats: model.RunStats{Total: 3, Success: 3}}, result)
		assert.Equal(t, []int{3}, sink.sizes())
		assert.Equal(t, []model.EventKind{
			model.EventKindStepStarted, model.EventKindChunkCommitted, model.EventKindStepFinished,
		}, events.kinds())
	})

	t.Run("all-or-nothing aborts on the first invalid item", func(t *testing.T) {
		sink := &recordingSink{}
		result, err, events := runStep(t, sliceSource(valid("a"), invalid("b"), valid("c")), sink,
			item.WithChunkSize(10), item.WithFaultPolicy(skip.AllOrNothing()))

		require.Error(t, err)
		assert.True(t, exception.IsTransformError(err))
		assert.Equal(t, model.RunResult{Status: model.RunStatusFailed, Stats: model.RunStats{Total: 2, Success: 0, Failure: 1}}, result)
		assert.Empty(t, sink.chunks)
		assert.Equal(t, []model.EventKind{
			model.EventKindStepStarted, model.EventKindChunkError, model.EventKindStepFinished,
		}, events.kinds())
	})

	t.Run("chunk of one with unbounded skips", func(t *testing.T) {
		sink := &recordingSink{}
		result, err, events := runStep(t, sliceSource(valid("a"), invalid("b"), valid("c")), sink,
			item.WithChunkSize(1), item.WithFaultPolicy(skip.SkipLimited(model.Unbounded)))

		require.NoError(t, err)
		assert.Equal(t, model.RunResult{Status: model.RunStatusCompleted, Stats: model.RunStats{Total: 3, Success: 2, Failure: 1}}, result)
		assert.Equal(t, []int{1, 1}, sink.sizes())
		assert.Equal(t, []model.EventKind{
			model.EventKindStepStarted,
			model.EventKindChunkCommitted,
			model.EventKindItemSkipped,
			model.EventKindChunkCommitted,
			model.EventKindStepFinished,
		}, events.kinds())

		skipped := events.events[2].(port.ItemSkipped)
		assert.Equal(t, invalid("b"), skipped.Item)
		assert.True(t, exception.IsTransformError(skipped.Err))
	})

	t.Run("twenty-five items in chunks of ten", func(t *testing.T) {
		items := make([]user, 25)
		for i := range items {
			items[i] = valid(fmt.Sprintf("u%02d", i))
		}
		sink := &recordingSink{}
		result, err, _ := runStep(t, sliceSource(items...), sink,
			item.WithChunkSize(10), item.WithFaultPolicy(skip.AllOrNothing()))

		require.NoError(t, err)
		assert.Equal(t, model.RunResult{Status: model.RunStatusCompleted, Stats: model.RunStats{Total: 25, Success: 25}}, result)
		assert.Equal(t, []int{10, 10, 5}, sink.sizes())
	})

	t.Run("second failure exceeds a skip limit of one", func(t *testing.T) {
		sink := &recordingSink{}
		result, err, events := runStep(t, sliceSource(invalid("a"), invalid("b")), sink,
			item.WithChunkSize(1), item.WithFaultPolicy(skip.SkipLimited(1)))

		require.Error(t, err)
		var sle *exception.SkipLimitExceededError
		require.True(t, errors.As(err, &sle))
		assert.Equal(t, 1, sle.Limit)
		assert.Equal(t, 2, sle.SkipCount)
		assert.Equal(t, model.RunResult{Status: model.RunStatusFailed, Stats: model.RunStats{Total: 2, Success: 0, Failure: 2}}, result)
		assert.Empty(t, sink.chunks)
		assert.Equal(t, []model.EventKind{
			model.EventKindStepStarted,
			model.EventKindItemSkipped,
			model.EventKindItemSkipped,
			model.EventKindChunkError,
			model.EventKindStepFinished,
		}, events.kinds())
	})
}

func TestChunkStep_EmptySource(t *testing.T) {
	sink := &recordingSink{}
	result, err, events := runStep(t, sliceSource(), sink)

	require.NoError(t, err)
	assert.Equal(t, model.RunResult{Status: model.RunStatusCompleted}, result)
	assert.Empty(t, sink.chunks)
	assert.Equal(t, []model.EventKind{model.EventKindStepStarted, model.EventKindStepFinished}, events.kinds())
}

func TestChunkStep_AccountingUnderSkipLimited(t *testing.T) {
	// Every third item is invalid.
	for _, chunkSize := range []int{1, 2, 3, 7, model.Unbounded} {
		for _, n := range []int{0, 1, 5, 13, 30} {
			items := make([]user, n)
			for i := range items {
				if i%3 == 2 {
					items[i] = invalid(fmt.Sprintf("u%d", i))
				} else {
					items[i] = valid(fmt.Sprintf("u%d", i))
				}
			}
			sink := &recordingSink{}
			result, err, _ := runStep(t, sliceSource(items...), sink,
				item.WithChunkSize(chunkSize), item.WithFaultPolicy(skip.SkipLimited(model.Unbounded)))

			require.NoError(t, err)
			s := result.Stats
			assert.Equal(t, n, s.Total, "chunk=%d n=%d", chunkSize, n)
			assert.Equal(t, s.Total, s.Success+s.Failure, "chunk=%d n=%d", chunkSize, n)
			assert.Equal(t, n/3, s.Failure, "chunk=%d n=%d", chunkSize, n)
		}
	}
}

func TestChunkStep_ChunkSizesNeverExceedLimit(t *testing.T) {
	for _, chunkSize := range []int{1, 2, 4, 10} {
		items := make([]user, 23)
		for i := range items {
			items[i] = valid(fmt.Sprintf("u%d", i))
		}
		sink := &recordingSink{}
		_, err, _ := runStep(t, sliceSource(items...), sink, item.WithChunkSize(chunkSize))
		require.NoError(t, err)

		sizes := sink.sizes()
		for i, size := range sizes {
			assert.LessOrEqual(t, size, chunkSize)
			if i < len(sizes)-1 {
				assert.Equal(t, chunkSize, size, "only the last chunk may be short")
			}
		}
	}
}

func TestChunkStep_AllOrNothingTruncation(t *testing.T) {
	for k := 1; k <= 5; k++ {
		items := make([]user, 8)
		for i := range items {
			items[i] = valid(fmt.Sprintf("u%d", i))
		}
		items[k-1] = invalid("bad")

		sink := &recordingSink{}
		result, err, _ := runStep(t, sliceSource(items...), sink,
			item.WithChunkSize(model.Unbounded), item.WithFaultPolicy(skip.AllOrNothing()))

		require.Error(t, err)
		assert.Equal(t, model.RunStats{Total: k, Success: 0, Failure: 1}, result.Stats, "k=%d", k)
		assert.Empty(t, sink.chunks, "k=%d", k)
	}
}

func TestChunkStep_SkipLimitBoundary(t *testing.T) {
	build := func(failures int) []user {
		items := []user{valid("first")}
		for i := 0; i < failures; i++ {
			items = append(items, invalid(fmt.Sprintf("bad%d", i)), valid(fmt.Sprintf("ok%d", i)))
		}
		return items
	}

	for _, limit := range []int{0, 1, 3} {
		result, err, _ := runStep(t, sliceSource(build(limit)...), &recordingSink{},
			item.WithChunkSize(2), item.WithFaultPolicy(skip.SkipLimited(limit)))
		require.NoError(t, err, "limit=%d", limit)
		assert.Equal(t, model.RunStatusCompleted, result.Status, "limit=%d", limit)
		assert.Equal(t, limit, result.Stats.Failure)

		result, err, _ = runStep(t, sliceSource(build(limit+1)...), &recordingSink{},
			item.WithChunkSize(2), item.WithFaultPolicy(skip.SkipLimited(limit)))
		require.Error(t, err, "limit=%d", limit)
		assert.Equal(t, model.RunStatusFailed, result.Status, "limit=%d", limit)
		assert.Equal(t, limit+1, result.Stats.Failure)
	}
}

func TestChunkStep_PreservesOrder(t *testing.T) {
	sink := &recordingSink{}
	items := []user{valid("a"), invalid("x"), valid("b"), valid("c"), invalid("y"), valid("d"), valid("e")}
	_, err, _ := runStep(t, sliceSource(items...), sink,
		item.WithChunkSize(2), item.WithFaultPolicy(skip.SkipLimited(model.Unbounded)))

	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C", "D", "E"}, sink.names())
}

type mockSink struct {
	mock.Mock
}

func (m *mockSink) WriteAll(ctx context.Context, items []user) error {
	args := m.Called(ctx, items)
	return args.Error(0)
}

func TestChunkStep_WriteErrorIsFatal(t *testing.T) {
	sink := new(mockSink)
	diskFull := errors.New("disk full")
	sink.On("WriteAll", mock.Anything, mock.MatchedBy(func(items []user) bool { return len(items) == 2 })).Return(nil).Once()
	sink.On("WriteAll", mock.Anything, mock.Anything).Return(diskFull).Once()

	items := []user{valid("a"), valid("b"), valid("c"), valid("d"), valid("e")}
	result, err, events := runStep(t, sliceSource(items...), sink,
		item.WithChunkSize(2), item.WithFaultPolicy(skip.SkipLimited(model.Unbounded)))

	require.Error(t, err)
	var we *exception.WriteError
	require.True(t, errors.As(err, &we))
	assert.Equal(t, 2, we.ChunkSize)
	assert.ErrorIs(t, err, diskFull)
	assert.Equal(t, model.RunResult{Status: model.RunStatusFailed, Stats: model.RunStats{Total: 4, Success: 2}}, result)
	assert.Equal(t, []model.EventKind{
		model.EventKindStepStarted,
		model.EventKindChunkCommitted,
		model.EventKindChunkError,
		model.EventKindStepFinished,
	}, events.kinds())
	sink.AssertNumberOfCalls(t, "WriteAll", 2)
}

func TestChunkStep_NonSkippableErrorAborts(t *testing.T) {
	transformer := port.TransformerFunc[user, user](func(ctx context.Context, u user) (user, error) {
		if u.Name == "db" {
			return user{}, errors.New("connection lost")
		}
		if u.Email == "invalid_email" {
			return user{}, errors.New("invalid_email")
		}
		return u, nil
	})
	events := &eventLog{}
	step, err := item.NewChunkStep[user, user]("s", sliceSource(invalid("a"), valid("db"), valid("c")), transformer, &recordingSink{},
		item.WithFaultPolicy(skip.SkipLimited(model.Unbounded, skip.WithSkippable("invalid_email"))),
		item.WithListeners(events))
	require.NoError(t, err)

	result, err := step.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection lost")
	assert.Equal(t, model.RunStats{Total: 2, Success: 0, Failure: 2}, result.Stats)
	assert.Equal(t, []model.EventKind{
		model.EventKindStepStarted,
		model.EventKindItemSkipped,
		model.EventKindChunkError,
		model.EventKindStepFinished,
	}, events.kinds())
}

func TestChunkStep_ReadError(t *testing.T) {
	calls := 0
	src := port.SourceFunc[user](func(ctx context.Context) (user, error) {
		calls++
		if calls == 3 {
			return user{}, errors.New("cursor closed")
		}
		return valid(fmt.Sprintf("u%d", calls)), nil
	})
	sink := &recordingSink{}
	result, err, events := runStep(t, src, sink, item.WithChunkSize(10))

	require.Error(t, err)
	assert.True(t, exception.IsBatchError(err))
	assert.Equal(t, model.RunStats{Total: 2}, result.Stats)
	assert.Empty(t, sink.chunks, "the unflushed buffer is discarded")
	assert.Equal(t, model.EventKindChunkError, events.kinds()[1])
}

func TestChunkStep_IOEOFEndsInput(t *testing.T) {
	done := false
	src := port.SourceFunc[user](func(ctx context.Context) (user, error) {
		if done {
			return user{}, io.EOF
		}
		done = true
		return valid("a"), nil
	})
	result, err, _ := runStep(t, src, &recordingSink{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Stats.Success)
}

func TestChunkStep_CancellationAtChunkBoundary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n := 0
	src := port.SourceFunc[user](func(ctx context.Context) (user, error) {
		n++
		if n == 2 {
			cancel()
		}
		return valid(fmt.Sprintf("u%d", n)), nil
	})
	sink := &recordingSink{}
	step, err := item.NewChunkStep[user, user]("s", src, validateEmail, sink, item.WithChunkSize(2))
	require.NoError(t, err)

	result, err := step.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, model.RunResult{Status: model.RunStatusFailed, Stats: model.RunStats{Total: 2, Success: 2}}, result)
	assert.Equal(t, []int{2}, sink.sizes())
}

func TestChunkStep_RetriesTransientTransformErrors(t *testing.T) {
	attempts := map[string]int{}
	transformer := port.TransformerFunc[user, user](func(ctx context.Context, u user) (user, error) {
		attempts[u.Name]++
		if attempts[u.Name] < 2 {
			return user{}, exception.NewBatchError("processor", "lookup timed out", errors.New("timeout"), false, true)
		}
		return u, nil
	})
	step, err := item.NewChunkStep[user, user]("s", sliceSource(valid("a"), valid("b")), transformer, &recordingSink{},
		item.WithRetryPolicy(retry.New(2, 0, nil)))
	require.NoError(t, err)

	result, err := step.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.RunStats{Total: 2, Success: 2}, result.Stats)
	assert.Equal(t, map[string]int{"a": 2, "b": 2}, attempts)
}

type lifecycleSource struct {
	port.Source[user]
	opened, closed bool
	closeErr       error
}

func (s *lifecycleSource) Open(ctx context.Context) error  { s.opened = true; return nil }
func (s *lifecycleSource) Close(ctx context.Context) error { s.closed = true; return s.closeErr }

func TestChunkStep_OpensAndClosesSource(t *testing.T) {
	src := &lifecycleSource{Source: sliceSource(valid("a")), closeErr: errors.New("close failed")}
	result, err, _ := runStep(t, src, &recordingSink{})

	require.NoError(t, err, "close errors never fail the run")
	assert.True(t, src.opened)
	assert.True(t, src.closed)
	assert.Equal(t, model.RunStatusCompleted, result.Status)
}

func TestChunkStep_PanickingListenerDoesNotFailRun(t *testing.T) {
	panicky := port.ListenerFunc(func(ctx context.Context, e port.Event) { panic("listener bug") })
	step, err := item.NewChunkStep[user, user]("s", sliceSource(valid("a")), validateEmail, &recordingSink{},
		item.WithListeners(panicky))
	require.NoError(t, err)

	result, err := step.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.RunStats{Total: 1, Success: 1}, result.Stats)
}

func TestChunkStep_EventsCarryStatsSnapshots(t *testing.T) {
	sink := &recordingSink{}
	_, err, events := runStep(t, sliceSource(valid("a"), valid("b"), valid("c")), sink, item.WithChunkSize(2))
	require.NoError(t, err)

	committed := events.events[1].(port.ChunkCommitted)
	assert.Equal(t, 2, committed.Count)
	assert.Equal(t, model.RunStats{Total: 2, Success: 2}, committed.Stats)
	assert.Equal(t, "testJob", committed.JobName)
	assert.Equal(t, "testStep", committed.StepName)

	finished := events.events[len(events.events)-1].(port.StepFinished)
	assert.Equal(t, model.RunStats{Total: 3, Success: 3}, finished.Stats)
	assert.Equal(t, model.RunStatusCompleted, finished.Status)
}

func TestNewChunkStep_Validation(t *testing.T) {
	src, sink := sliceSource(), &recordingSink{}

	_, err := item.NewChunkStep[user, user]("", src, validateEmail, sink)
	assert.Error(t, err)
	_, err = item.NewChunkStep[user, user]("s", nil, validateEmail, sink)
	assert.Error(t, err)
	_, err = item.NewChunkStep[user, user]("s", src, validateEmail, sink, item.WithChunkSize(0))
	assert.Error(t, err)
	_, err = item.NewChunkStep[user, user]("s", src, validateEmail, sink, item.WithChunkSize(-2))
	assert.Error(t, err)
	_, err = item.NewChunkStep[user, user]("s", src, validateEmail, sink, item.WithFaultPolicy(nil))
	assert.Error(t, err)

	step, err := item.NewChunkStep[user, user]("s", src, validateEmail, sink, item.WithChunkSize(model.Unbounded))
	require.NoError(t, err)
	assert.Equal(t, model.Unbounded, step.ChunkSize())
	assert.Equal(t, "s", step.Name())
}
