package queue

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"willitrain/internal/types"
)

// --- Mock SQS Client ---

// mockSQSSender captures SendMessage calls for test assertions.
type mockSQSSender struct {
	calls []*sqs.SendMessageInput
	err   error
}

func (m *mockSQSSender) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.calls = append(m.calls, params)
	if m.err != nil {
		return nil, m.err
	}
	return &sqs.SendMessageOutput{}, nil
}

// --- Test Helpers ---

const testQueueURL = "https://sqs.us-east-1.amazonaws.com/123456789/prefetch"

var enqueuedAt = time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC)

func newTestQueue(sender *mockSQSSender) *PrefetchQueue {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewPrefetchQueue(sender, testQueueURL, types.FixedClock{T: enqueuedAt}, logger)
}

func testQuery() *types.SavedQuery {
	return &types.SavedQuery{ID: "q-1", Lat: 30.27, Lon: -97.74, Date: "2026-07-04"}
}

// --- Tests ---

func TestEnqueuePrefetch_SendsMessage(t *testing.T) {
	sender := &mockSQSSender{}
	q := newTestQueue(sender)

	ctx := types.WithRequestID(context.Background(), "req-123")
	if err := q.EnqueuePrefetch(ctx, testQuery(), ReasonSavedQueryCreated); err != nil {
		t.Fatalf("EnqueuePrefetch returned unexpected error: %v", err)
	}

	if len(sender.calls) != 1 {
		t.Fatalf("expected 1 SQS call, got %d", len(sender.calls))
	}
	call := sender.calls[0]

	if *call.QueueUrl != testQueueURL {
		t.Errorf("expected queue URL %q, got %q", testQueueURL, *call.QueueUrl)
	}

	var msg types.PrefetchMessage
	if err := json.Unmarshal([]byte(*call.MessageBody), &msg); err != nil {
		t.Fatalf("failed to unmarshal message body: %v", err)
	}
	want := types.PrefetchMessage{
		QueryID:    "q-1",
		Lat:        30.27,
		Lon:        -97.74,
		Date:       "2026-07-04",
		TraceID:    "req-123",
		EnqueuedAt: enqueuedAt,
	}
	if msg != want {
		t.Errorf("message = %+v, want %+v", msg, want)
	}

	attr, ok := call.MessageAttributes["reason"]
	if !ok {
		t.Fatal("expected 'reason' message attribute")
	}
	if *attr.StringValue != ReasonSavedQueryCreated {
		t.Errorf("expected reason %q, got %q", ReasonSavedQueryCreated, *attr.StringValue)
	}
	if *attr.DataType != "String" {
		t.Errorf("expected DataType 'String', got %q", *attr.DataType)
	}
}

func TestEnqueuePrefetch_GeneratesTraceID(t *testing.T) {
	sender := &mockSQSSender{}
	q := newTestQueue(sender)

	if err := q.EnqueuePrefetch(context.Background(), testQuery(), ReasonScheduledRefresh); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var msg types.PrefetchMessage
	if err := json.Unmarshal([]byte(*sender.calls[0].MessageBody), &msg); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if len(msg.TraceID) != 36 {
		t.Errorf("expected a UUID trace id, got %q", msg.TraceID)
	}
}

func TestSend_SQSError(t *testing.T) {
	sender := &mockSQSSender{err: errors.New("AccessDenied")}
	q := newTestQueue(sender)

	err := q.EnqueuePrefetch(context.Background(), testQuery(), ReasonSavedQueryCreated)
	if err == nil {
		t.Fatal("expected error when SQS fails")
	}
	if !strings.Contains(err.Error(), testQueueURL) {
		t.Errorf("error should name the queue, got: %v", err)
	}
	if !strings.Contains(err.Error(), "AccessDenied") {
		t.Errorf("error should wrap the SQS cause, got: %v", err)
	}
}

func TestDecodePrefetchMessage(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"query_id":"q-1","lat":30.27,"lon":-97.74,"date":"2026-07-04"}`, false},
		{"invalid json", `{"query_id":`, true},
		{"latitude out of range", `{"query_id":"q-1","lat":95,"lon":0}`, true},
		{"longitude out of range", `{"query_id":"q-1","lat":0,"lon":-200}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := DecodePrefetchMessage(tt.body)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodePrefetchMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && msg.QueryID != "q-1" {
				t.Errorf("expected query id q-1, got %q", msg.QueryID)
			}
		})
	}
}
