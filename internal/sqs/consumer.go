package sqs

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.uber.org/zap"

	"github.com/lalithlochan/quorum/internal/metrics"
	"github.com/lalithlochan/quorum/internal/notify"
)

const (
	maxMessages       = 10
	waitTimeSeconds   = 20
	visibilitySeconds = 120
	receiveBackoff    = 5 * time.Second
)

// Consumer long-polls the queue and hands each event to a handler. Every
// received message is deleted once handled: fan-out is best-effort and a
// failed event is logged, not redelivered.
type Consumer struct {
	client   sqsAPI
	queueURL string
	handler  notify.EventHandler
	logger   *zap.Logger
	backoff  time.Duration
}

// NewConsumer creates a new SQS consumer.
func NewConsumer(ctx context.Context, cfg Config, handler notify.EventHandler, logger *zap.Logger) (*Consumer, error) {
	client, err := newClient(ctx, cfg.Region)
	if err != nil {
		return nil, err
	}

	logger.Info("sqs consumer initialized",
		zap.String("queue_url", cfg.QueueURL),
	)
	return newConsumer(client, cfg.QueueURL, handler, logger), nil
}

func newConsumer(client sqsAPI, queueURL string, handler notify.EventHandler, logger *zap.Logger) *Consumer {
	return &Consumer{
		client:   client,
		queueURL: queueURL,
		handler:  handler,
		logger:   logger,
		backoff:  receiveBackoff,
	}
}

// Run polls until ctx is cancelled. Messages of one batch are handled
// concurrently and the batch is finished before the next receive.
func (c *Consumer) Run(ctx context.Context) {
	c.logger.Info("sqs consumer started")

	for {
		if ctx.Err() != nil {
			c.logger.Info("sqs consumer stopping")
			return
		}

		messages, err := c.receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				continue
			}
			c.logger.Error("sqs receive failed", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(c.backoff):
			}
			continue
		}

		c.handleBatch(ctx, messages)
	}
}

func (c *Consumer) receive(ctx context.Context) ([]types.Message, error) {
	out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.queueURL),
		MaxNumberOfMessages: maxMessages,
		WaitTimeSeconds:     waitTimeSeconds,
		VisibilityTimeout:   visibilitySeconds,
	})
	if err != nil {
		return nil, err
	}
	return out.Messages, nil
}

func (c *Consumer) handleBatch(ctx context.Context, messages []types.Message) {
	if len(messages) == 0 {
		return
	}
	metrics.SetSQSMessagesInFlight(len(messages))
	defer metrics.SetSQSMessagesInFlight(0)

	// handlers outlive a shutdown signal so a received batch is not dropped
	handleCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for _, m := range messages {
		wg.Add(1)
		go func(m types.Message) {
			defer wg.Done()
			c.handle(handleCtx, m)
		}(m)
	}
	wg.Wait()
}

func (c *Consumer) handle(ctx context.Context, m types.Message) {
	messageID := aws.ToString(m.MessageId)

	var msg Message
	if err := json.Unmarshal([]byte(aws.ToString(m.Body)), &msg); err != nil {
		c.logger.Error("discarding malformed message",
			zap.Error(err),
			zap.String("message_id", messageID),
		)
	} else if err := c.handler.HandleEvent(ctx, msg.Event); err != nil {
		metrics.RecordFanout(string(msg.Event.Kind), "error")
		c.logger.Error("fan-out failed",
			zap.Error(err),
			zap.String("message_id", messageID),
			zap.String("kind", string(msg.Event.Kind)),
			zap.String("project_id", msg.Event.ProjectID.String()),
		)
	} else {
		metrics.RecordFanout(string(msg.Event.Kind), "ok")
		c.logger.Debug("event handled",
			zap.String("message_id", messageID),
			zap.Duration("queued_for", time.Since(time.Unix(0, msg.EnqueuedAt))),
		)
	}

	if err := c.delete(ctx, m.ReceiptHandle); err != nil {
		c.logger.Error("sqs delete failed",
			zap.Error(err),
			zap.String("message_id", messageID),
		)
	}
}

// delete removes a message from SQS after processing.
func (c *Consumer) delete(ctx context.Context, receiptHandle *string) error {
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: receiptHandle,
	})
	return err
}
