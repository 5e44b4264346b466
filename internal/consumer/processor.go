// Package consumer reads sync requests from Kafka and drives the sync service.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"example.com/raidsync/internal/events"
)

// Reader exposes the minimal kafka.Reader interface needed by the processor.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler receives decoded sync requests.
type Handler interface {
	Handle(context.Context, Request) error
}

// Request is a decoded sync request with its Kafka coordinates.
type Request struct {
	Topic     string
	Partition int
	Offset    int64
	events.SyncRequested
}

// Option configures optional behaviour for the Processor.
type Option func(*Processor)

// WithLogger overrides the logger used to report errors.
func WithLogger(logger *log.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// Processor pulls messages from Kafka, decodes them, and dispatches to a Handler.
type Processor struct {
	reader  Reader
	handler Handler
	logger  *log.Logger
}

// NewProcessor constructs a Processor with the provided reader and handler.
func NewProcessor(reader Reader, handler Handler, opts ...Option) *Processor {
	p := &Processor{
		reader:  reader,
		handler: handler,
		logger:  log.New(log.Writer(), "[consumer] ", log.LstdFlags|log.Lshortfile),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run starts a blocking loop that processes Kafka messages until the context is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			p.logger.Printf("fetch error: %v", err)
			continue
		}

		request, decodeErr := decodeMessage(msg)
		if decodeErr != nil {
			p.logger.Printf("decode error (topic=%s, partition=%d, offset=%d): %v", msg.Topic, msg.Partition, msg.Offset, decodeErr)
			recordDecodeError(msg.Topic)
			// Commit malformed messages to avoid poison-pill loops.
			if commitErr := p.reader.CommitMessages(ctx, msg); commitErr != nil {
				p.logger.Printf("commit error after decode failure: %v", commitErr)
			}
			continue
		}

		if handleErr := p.handler.Handle(ctx, request); handleErr != nil {
			p.logger.Printf("handler error (username=%s, offset=%d): %v", request.Username, request.Offset, handleErr)
			recordHandlerError(request.Topic)
			continue
		}

		if commitErr := p.reader.CommitMessages(ctx, msg); commitErr != nil {
			p.logger.Printf("commit error: %v", commitErr)
		} else {
			recordProcessed(request.Topic, msg.Time)
		}
	}
}

func decodeMessage(msg kafka.Message) (Request, error) {
	var payload events.SyncRequested
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		return Request{}, fmt.Errorf("decode sync request: %w", err)
	}
	payload.Username = strings.TrimSpace(payload.Username)
	payload.MembershipID = strings.TrimSpace(payload.MembershipID)
	if payload.Username == "" || payload.MembershipID == "" {
		return Request{}, errors.New("sync request requires username and membership_id")
	}
	if payload.RequestedAt.IsZero() {
		payload.RequestedAt = msg.Time
	}
	return Request{
		Topic:         msg.Topic,
		Partition:     msg.Partition,
		Offset:        msg.Offset,
		SyncRequested: payload,
	}, nil
}

// NewKafkaReader builds a consumer-group reader for the sync request topic.
func NewKafkaReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
		MaxWait:        time.Second,
		StartOffset:    kafka.FirstOffset,
	})
}
