package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"willitrain/internal/scheduler"
	"willitrain/internal/types"
)

type fakeProcessor struct {
	seen []types.PrefetchMessage
	fail map[string]bool
}

func (f *fakeProcessor) Process(_ context.Context, msg types.PrefetchMessage) error {
	f.seen = append(f.seen, msg)
	if f.fail[msg.QueryID] {
		return errors.New("nasa power unavailable")
	}
	return nil
}

type fakeSweeper struct {
	now time.Time
	res scheduler.SweepResult
	err error
}

func (f *fakeSweeper) RefreshAll(_ context.Context, now time.Time) (scheduler.SweepResult, error) {
	f.now = now
	return f.res, f.err
}

var workerNow = time.Date(2026, 7, 1, 6, 0, 0, 0, time.UTC)

func newTestHandler(p *fakeProcessor, s *fakeSweeper) (*Handler, *int) {
	flushes := 0
	return &Handler{
		processor: p,
		sweeper:   s,
		clock:     types.FixedClock{T: workerNow},
		flush: func(context.Context) error {
			flushes++
			return nil
		},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, &flushes
}

func body(t *testing.T, msg types.PrefetchMessage) string {
	t.Helper()
	b, err := json.Marshal(msg)
	require.NoError(t, err)
	return string(b)
}

func TestHandle_SQSBatchReportsOnlyFailures(t *testing.T) {
	proc := &fakeProcessor{fail: map[string]bool{"q-2": true}}
	h, flushes := newTestHandler(proc, &fakeSweeper{})

	ev := events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "m-1", Body: body(t, types.PrefetchMessage{QueryID: "q-1", Lat: 30.27, Lon: -97.74})},
		{MessageId: "m-2", Body: body(t, types.PrefetchMessage{QueryID: "q-2", Lat: 40.7, Lon: -74.0})},
		{MessageId: "m-3", Body: `{not json`},
		{MessageId: "m-4", Body: body(t, types.PrefetchMessage{QueryID: "q-4", Lat: 120, Lon: 0})},
	}}
	raw, err := json.Marshal(ev)
	require.NoError(t, err)

	out, err := h.Handle(context.Background(), raw)
	require.NoError(t, err)

	resp, ok := out.(events.SQSEventResponse)
	require.True(t, ok, "expected SQSEventResponse, got %T", out)
	require.Len(t, resp.BatchItemFailures, 1)
	assert.Equal(t, "m-2", resp.BatchItemFailures[0].ItemIdentifier)

	require.Len(t, proc.seen, 2, "malformed and out-of-range messages are dropped before processing")
	assert.Equal(t, "q-1", proc.seen[0].QueryID)
	assert.Equal(t, 1, *flushes)
}

func TestHandle_ScheduleUsesClock(t *testing.T) {
	sweeper := &fakeSweeper{res: scheduler.SweepResult{Warmed: 3, Skipped: 1}}
	h, flushes := newTestHandler(&fakeProcessor{}, sweeper)

	out, err := h.Handle(context.Background(), json.RawMessage(`{"task":"refresh_saved_queries"}`))
	require.NoError(t, err)

	assert.Equal(t, scheduler.SweepResult{Warmed: 3, Skipped: 1}, out)
	assert.Equal(t, workerNow, sweeper.now)
	assert.Equal(t, 1, *flushes)
}

func TestHandle_ScheduleReferenceTime(t *testing.T) {
	sweeper := &fakeSweeper{}
	h, _ := newTestHandler(&fakeProcessor{}, sweeper)

	_, err := h.Handle(context.Background(),
		json.RawMessage(`{"task":"refresh_saved_queries","reference_time":"2026-02-06T03:00:00Z"}`))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 6, 3, 0, 0, 0, time.UTC), sweeper.now)
}

func TestHandleSchedule_PartialFailureSucceeds(t *testing.T) {
	sweeper := &fakeSweeper{
		res: scheduler.SweepResult{Warmed: 2, Failed: 1},
		err: errors.New("refresh 30.27,-97.74: timeout"),
	}
	h, _ := newTestHandler(&fakeProcessor{}, sweeper)

	res, err := h.HandleSchedule(context.Background(), scheduler.SchedulePayload{Task: scheduler.TaskRefreshSavedQueries})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
}

func TestHandleSchedule_TotalFailureErrors(t *testing.T) {
	sweeper := &fakeSweeper{err: errors.New("prefetch: list saved queries: connection refused")}
	h, _ := newTestHandler(&fakeProcessor{}, sweeper)

	_, err := h.HandleSchedule(context.Background(), scheduler.SchedulePayload{Task: scheduler.TaskRefreshSavedQueries})
	assert.ErrorContains(t, err, "connection refused")
}

func TestHandle_UnknownTask(t *testing.T) {
	sweeper := &fakeSweeper{}
	h, flushes := newTestHandler(&fakeProcessor{}, sweeper)

	_, err := h.Handle(context.Background(), json.RawMessage(`{"task":"archive"}`))
	assert.ErrorContains(t, err, `unknown task "archive"`)
	assert.True(t, sweeper.now.IsZero(), "sweeper must not run")
	assert.Equal(t, 1, *flushes)
}

func TestHandle_InvalidJSON(t *testing.T) {
	h, _ := newTestHandler(&fakeProcessor{}, &fakeSweeper{})

	_, err := h.Handle(context.Background(), json.RawMessage(`[1,2]`))
	assert.Error(t, err)
}

func TestNewLogger_HonorsLevel(t *testing.T) {
	ctx := context.Background()

	assert.True(t, newLogger("debug").Enabled(ctx, slog.LevelDebug))
	assert.False(t, newLogger("info").Enabled(ctx, slog.LevelDebug))
	assert.False(t, newLogger("warn").Enabled(ctx, slog.LevelInfo))
	assert.True(t, newLogger("warn").Enabled(ctx, slog.LevelWarn))
	assert.False(t, newLogger("error").Enabled(ctx, slog.LevelWarn))
	assert.True(t, newLogger("").Enabled(ctx, slog.LevelInfo))
}
