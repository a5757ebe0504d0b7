package audit_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/engine/step/item"
	"github.com/tigerroll/chunkbatch/pkg/batch/engine/step/skip"
	"github.com/tigerroll/chunkbatch/pkg/batch/listener/audit"
)

type recordingAuditSink struct {
	records []model.AuditRecord
}

func (s *recordingAuditSink) Append(ctx context.Context, r model.AuditRecord) error {
	s.records = append(s.records, r)
	return nil
}

type user struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

var ts = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func meta(job string, stats model.RunStats) port.EventMeta {
	return port.EventMeta{JobName: job, StepName: "createUsersStep", Stats: stats, Time: ts}
}

func TestTelemetryListener_Messages(t *testing.T) {
	sink := &recordingAuditSink{}
	l := audit.NewTelemetryListener(sink)
	ctx := context.Background()

	l.Handle(ctx, port.StepStarted{EventMeta: meta("createUsersJob", model.RunStats{})})
	l.Handle(ctx, port.ChunkCommitted{EventMeta: meta("createUsersJob", model.RunStats{Total: 3, Success: 2, Failure: 1}), Count: 2})
	l.Handle(ctx, port.ItemSkipped{
		EventMeta: meta("createUsersJob", model.RunStats{Total: 4, Success: 2, Failure: 2}),
		Item:      user{Name: "bob", Email: "invalid_email"},
		Err:       errors.New("bad email"),
	})
	l.Handle(ctx, port.ChunkError{EventMeta: meta("createUsersJob", model.RunStats{Total: 4, Success: 2, Failure: 2}), Err: errors.New("disk full")})
	l.Handle(ctx, port.ChunkError{EventMeta: meta("createUsersJob", model.RunStats{Total: 4, Success: 2, Failure: 2})})
	l.Handle(ctx, port.StepFinished{EventMeta: meta("createUsersJob", model.RunStats{Total: 4, Success: 2, Failure: 2}), Status: model.RunStatusFailed})

	require.Len(t, sink.records, 6)

	want := []struct {
		kind    model.EventKind
		message string
	}{
		{model.EventKindStepStarted, "Step started"},
		{model.EventKindChunkCommitted, "Committed: 2, Total: 3, Success: 2, Failure: 1"},
		{model.EventKindItemSkipped, `Item: {"name":"bob","email":"invalid_email"}, Error: bad email`},
		{model.EventKindChunkError, "disk full"},
		{model.EventKindChunkError, "Unknown error"},
		{model.EventKindStepFinished, "Total: 4, Success: 2, Failure: 2"},
	}
	for i, w := range want {
		r := sink.records[i]
		assert.Equal(t, w.kind, r.Kind(), "record %d", i)
		assert.Equal(t, w.message, r.Message(), "record %d", i)
		assert.Equal(t, "createUsersJob", r.JobName())
		assert.Equal(t, "createUsersStep", r.StepName())
		assert.Equal(t, ts, r.Timestamp())
	}

	snap, ok := sink.records[2].ItemSnapshot()
	require.True(t, ok)
	assert.JSONEq(t, `{"name":"bob","email":"invalid_email"}`, snap)
	_, ok = sink.records[0].ItemSnapshot()
	assert.False(t, ok)
}

func TestTelemetryListener_UnknownJobName(t *testing.T) {
	sink := &recordingAuditSink{}
	audit.NewTelemetryListener(sink).Handle(context.Background(), port.StepStarted{EventMeta: meta("", model.RunStats{})})

	require.Len(t, sink.records, 1)
	assert.Equal(t, audit.UnknownJobName, sink.records[0].JobName())
}

func TestSnapshot_FallsBackToGoSyntax(t *testing.T) {
	type withChan struct {
		C chan int
	}
	assert.Equal(t, `{"name":"a","email":"b"}`, audit.Snapshot(user{Name: "a", Email: "b"}))
	assert.Equal(t, fmt.Sprintf("%+v", withChan{}), audit.Snapshot(withChan{}))
}

func TestTelemetryListener_DropsSinkFailures(t *testing.T) {
	failing := port.AuditSinkFunc(func(ctx context.Context, r model.AuditRecord) error {
		return errors.New("audit db unavailable")
	})
	panicking := port.AuditSinkFunc(func(ctx context.Context, r model.AuditRecord) error {
		panic("boom")
	})

	assert.NotPanics(t, func() {
		audit.NewTelemetryListener(failing).Handle(context.Background(), port.StepStarted{EventMeta: meta("j", model.RunStats{})})
		audit.NewTelemetryListener(panicking).Handle(context.Background(), port.StepStarted{EventMeta: meta("j", model.RunStats{})})
		audit.NewTelemetryListener(nil).Handle(context.Background(), port.StepStarted{EventMeta: meta("j", model.RunStats{})})
	})
}

// runUsers runs a step over a mix of valid and invalid users with the given listeners.
func runUsers(t *testing.T, policy skip.FaultPolicy, chunkSize int, listeners ...port.Listener) model.RunResult {
	t.Helper()
	users := []user{
		{"a", "a@example.com"}, {"b", "invalid_email"}, {"c", "c@example.com"},
		{"d", "d@example.com"}, {"e", "invalid_email"}, {"f", "f@example.com"},
	}
	i := 0
	src := port.SourceFunc[user](func(ctx context.Context) (user, error) {
		if i >= len(users) {
			return user{}, port.ErrNoMoreItems
		}
		i++
		return users[i-1], nil
	})
	transformer := port.TransformerFunc[user, user](func(ctx context.Context, u user) (user, error) {
		if u.Email == "invalid_email" {
			return user{}, errors.New("invalid email")
		}
		return u, nil
	})
	sink := port.SinkFunc[user](func(ctx context.Context, items []user) error { return nil })

	step, err := item.NewChunkStep[user, user]("createUsersStep", src, transformer, sink,
		item.WithJobName("createUsersJob"),
		item.WithChunkSize(chunkSize),
		item.WithFaultPolicy(policy),
		item.WithListeners(listeners...))
	require.NoError(t, err)
	result, _ := step.Run(context.Background())
	return result
}

func TestTelemetryListener_AuditNeverChangesResult(t *testing.T) {
	failing := port.AuditSinkFunc(func(ctx context.Context, r model.AuditRecord) error {
		return errors.New("audit db unavailable")
	})
	panicking := port.AuditSinkFunc(func(ctx context.Context, r model.AuditRecord) error {
		panic("boom")
	})

	policies := map[string]func() skip.FaultPolicy{
		"all or nothing": skip.AllOrNothing,
		"skip limited 1": func() skip.FaultPolicy { return skip.SkipLimited(1) },
		"skip unbounded": func() skip.FaultPolicy { return skip.SkipLimited(model.Unbounded) },
	}
	for name, policy := range policies {
		t.Run(name, func(t *testing.T) {
			baseline := runUsers(t, policy(), 2)
			assert.Equal(t, baseline, runUsers(t, policy(), 2, audit.NewTelemetryListener(failing)))
			assert.Equal(t, baseline, runUsers(t, policy(), 2, audit.NewTelemetryListener(panicking)))
		})
	}
}

func TestTelemetryListener_RecordsFullRun(t *testing.T) {
	sink := &recordingAuditSink{}
	result := runUsers(t, skip.SkipLimited(model.Unbounded), 2, audit.NewTelemetryListener(sink))

	assert.Equal(t, model.RunStats{Total: 6, Success: 4, Failure: 2}, result.Stats)

	var kinds []model.EventKind
	for _, r := range sink.records {
		kinds = append(kinds, r.Kind())
	}
	assert.Equal(t, []model.EventKind{
		model.EventKindStepStarted,
		model.EventKindItemSkipped,
		model.EventKindChunkCommitted,
		model.EventKindItemSkipped,
		model.EventKindChunkCommitted,
		model.EventKindStepFinished,
	}, kinds)
	assert.Equal(t, "Total: 6, Success: 4, Failure: 2", sink.records[len(sink.records)-1].Message())
}

func TestTelemetryListener_CountsStartFreshEachRun(t *testing.T) {
	sink := &recordingAuditSink{}
	l := audit.NewTelemetryListener(sink)

	runUsers(t, skip.SkipLimited(model.Unbounded), 2, l)
	firstRun := len(sink.records)
	runUsers(t, skip.SkipLimited(model.Unbounded), 2, l)
	require.Len(t, sink.records, 2*firstRun)

	second := sink.records[firstRun:]
	assert.Equal(t, model.EventKindStepStarted, second[0].Kind())
	assert.Equal(t, "Committed: 2, Total: 3, Success: 2, Failure: 1", second[2].Message())
	assert.Equal(t, "Total: 6, Success: 4, Failure: 2", second[len(second)-1].Message())
}
