// Package queue provides the SQS producer that asks the prefetch worker to
// warm the history cache for a saved query's location.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"willitrain/internal/types"
)

// Reasons carried in the "reason" message attribute.
const (
	ReasonSavedQueryCreated = "saved_query_created"
	ReasonScheduledRefresh  = "scheduled_refresh"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// PrefetchQueue serializes PrefetchMessages onto a single SQS queue.
type PrefetchQueue struct {
	client   SQSSender
	queueURL string
	clock    types.Clock
	logger   *slog.Logger
}

func NewPrefetchQueue(client SQSSender, queueURL string, clock types.Clock, logger *slog.Logger) *PrefetchQueue {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PrefetchQueue{
		client:   client,
		queueURL: queueURL,
		clock:    clock,
		logger:   logger,
	}
}

// EnqueuePrefetch sends a warm request for q. The request ID on ctx, when
// present, becomes the trace ID so the worker's logs join the API's.
func (p *PrefetchQueue) EnqueuePrefetch(ctx context.Context, q *types.SavedQuery, reason string) error {
	traceID := types.GetRequestID(ctx)
	if traceID == "" {
		traceID = uuid.New().String()
	}

	msg := types.PrefetchMessage{
		QueryID:    q.ID,
		Lat:        q.Lat,
		Lon:        q.Lon,
		Date:       q.Date,
		TraceID:    traceID,
		EnqueuedAt: p.clock.Now(),
	}
	return p.Send(ctx, msg, reason)
}

// Send dispatches a prepared message.
func (p *PrefetchQueue) Send(ctx context.Context, msg types.PrefetchMessage, reason string) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal PrefetchMessage: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"reason": {
				DataType:    aws.String("String"),
				StringValue: aws.String(reason),
			},
		},
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("queue: failed to send PrefetchMessage to %s: %w", p.queueURL, err)
	}

	p.logger.InfoContext(ctx, "prefetch message sent",
		"queue_url", p.queueURL,
		"query_id", msg.QueryID,
		"trace_id", msg.TraceID,
		"reason", reason,
	)
	return nil
}

// DecodePrefetchMessage parses an SQS body produced by Send.
func DecodePrefetchMessage(body string) (types.PrefetchMessage, error) {
	var msg types.PrefetchMessage
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		return msg, fmt.Errorf("queue: invalid PrefetchMessage body: %w", err)
	}
	if !types.ValidCoordinates(msg.Lat, msg.Lon) {
		return msg, fmt.Errorf("queue: PrefetchMessage %s has invalid coordinates (%g, %g)", msg.QueryID, msg.Lat, msg.Lon)
	}
	return msg, nil
}
