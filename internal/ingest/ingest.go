// Package ingest polls an SQS queue for change events and dispatches them to
// the orchestrator. Deliveries are deduplicated through provider locks.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/dwsmith1983/checkrun/internal/provider"
	"github.com/dwsmith1983/checkrun/pkg/types"
)

const (
	defaultWaitSeconds = int32(10)
	defaultMaxMessages = int32(5)

	// dedupTTL bounds how long a delivery ID blocks redelivery.
	dedupTTL = 24 * time.Hour
)

// SQSAPI is the subset of the SQS client used by the poller.
type SQSAPI interface {
	ReceiveMessage(ctx context.Context, input *sqs.ReceiveMessageInput, opts ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, input *sqs.DeleteMessageInput, opts ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Handler processes one deduplicated change event.
type Handler func(ctx context.Context, event types.ChangeEvent) error

// Poller long-polls SQS and forwards change events to the handler.
type Poller struct {
	client   SQSAPI
	queueURL string
	wait     int32
	maxMsgs  int32
	provider provider.Provider
	handler  Handler
	logger   *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Poller from config.
func New(cfg types.IngestConfig, prov provider.Provider, handler Handler, logger *slog.Logger) (*Poller, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	// For local SQS emulators: static credentials and custom endpoint.
	if cfg.Endpoint != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("local", "local", ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	var clientOpts []func(*sqs.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *sqs.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	p := NewFromClient(sqs.NewFromConfig(awsCfg, clientOpts...), cfg.QueueURL, prov, handler, logger)
	if cfg.WaitSeconds > 0 {
		p.wait = cfg.WaitSeconds
	}
	if cfg.MaxMessages > 0 {
		p.maxMsgs = cfg.MaxMessages
	}
	return p, nil
}

// NewFromClient creates a Poller around an existing client (useful for testing).
func NewFromClient(client SQSAPI, queueURL string, prov provider.Provider, handler Handler, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		client:   client,
		queueURL: queueURL,
		wait:     defaultWaitSeconds,
		maxMsgs:  defaultMaxMessages,
		provider: prov,
		handler:  handler,
		logger:   logger,
	}
}

// Start begins the polling loop.
func (p *Poller) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.logger.Info("ingest poller started", "queue", p.queueURL)
		for {
			select {
			case <-ctx.Done():
				p.logger.Info("ingest poller stopping")
				return
			default:
			}
			p.Poll(ctx)
		}
	}()
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop(ctx context.Context) {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("ingest poller stopped")
	case <-ctx.Done():
		p.logger.Warn("ingest poller stop timed out")
	}
}

// Poll performs one long-poll receive and processes the returned messages.
func (p *Poller) Poll(ctx context.Context) {
	out, err := p.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            &p.queueURL,
		WaitTimeSeconds:     p.wait,
		MaxNumberOfMessages: p.maxMsgs,
	})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.logger.Error("receive failed", "queue", p.queueURL, "error", err)
		// Back off a little so a broken queue doesn't spin the loop.
		select {
		case <-ctx.Done():
		case <-time.After(5 * time.Second):
		}
		return
	}

	for _, msg := range out.Messages {
		if ctx.Err() != nil {
			return
		}
		p.handleMessage(ctx, aws.ToString(msg.Body), aws.ToString(msg.MessageId), aws.ToString(msg.ReceiptHandle))
	}
}

func (p *Poller) handleMessage(ctx context.Context, body, messageID, receiptHandle string) {
	var event types.ChangeEvent
	if err := json.Unmarshal([]byte(body), &event); err != nil {
		p.logger.Warn("dropping malformed message", "messageId", messageID, "error", err)
		p.deleteMessage(ctx, receiptHandle)
		return
	}

	deliveryID := event.DeliveryID
	if deliveryID == "" {
		deliveryID = messageID
	}

	acquired, err := p.provider.AcquireLock(ctx, "ingest:"+deliveryID, dedupTTL)
	if err != nil {
		// Leave the message in the queue; redelivery retries the lock.
		p.logger.Error("dedup lock failed", "deliveryId", deliveryID, "error", err)
		return
	}
	if !acquired {
		p.logger.Debug("duplicate delivery skipped", "deliveryId", deliveryID)
		p.deleteMessage(ctx, receiptHandle)
		return
	}

	if err := p.handler(ctx, event); err != nil {
		p.logger.Error("event handling failed", "deliveryId", deliveryID, "error", err)
		// Release so the redelivered message is not treated as a duplicate.
		if rerr := p.provider.ReleaseLock(ctx, "ingest:"+deliveryID); rerr != nil {
			p.logger.Warn("failed to release dedup lock", "deliveryId", deliveryID, "error", rerr)
		}
		return
	}
	p.deleteMessage(ctx, receiptHandle)
}

func (p *Poller) deleteMessage(ctx context.Context, receiptHandle string) {
	if receiptHandle == "" {
		return
	}
	if _, err := p.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      &p.queueURL,
		ReceiptHandle: &receiptHandle,
	}); err != nil {
		p.logger.Warn("failed to delete message", "error", err)
	}
}
