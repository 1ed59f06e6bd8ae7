// Package queue feeds commands from a Kafka topic into the dispatcher
// and publishes each command's result.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/efreitasn/matchcore/internal/command"
	"github.com/efreitasn/matchcore/internal/domain"
	"github.com/segmentio/kafka-go"
)

// MessageReader is the subset of *kafka.Reader the consumer needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ResultWriter is the subset of *kafka.Writer the consumer needs.
type ResultWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Dispatcher executes a decoded command.
type Dispatcher interface {
	Dispatch(cmd command.Command) (*command.Result, error)
}

// KafkaConfig describes the topics the consumer reads from and writes to.
type KafkaConfig struct {
	Brokers      []string
	CommandTopic string
	GroupID      string
	// ResultTopic may be empty, in which case results are only logged.
	ResultTopic string
}

// Consumer reads commands one at a time, so commands apply in queue
// order.
type Consumer struct {
	reader     MessageReader
	writer     ResultWriter
	dispatcher Dispatcher
	logger     *slog.Logger
}

// NewConsumer creates a Consumer over an existing reader. writer may be
// nil.
func NewConsumer(reader MessageReader, writer ResultWriter, dispatcher Dispatcher, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		reader:     reader,
		writer:     writer,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// NewKafkaConsumer creates a Consumer backed by a consumer-group reader
// and, when cfg.ResultTopic is set, a synchronous writer.
func NewKafkaConsumer(cfg KafkaConfig, dispatcher Dispatcher, logger *slog.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		Topic:          cfg.CommandTopic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
	})

	var writer ResultWriter
	if cfg.ResultTopic != "" {
		writer = &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.ResultTopic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		}
	}
	return NewConsumer(reader, writer, dispatcher, logger)
}

// Run consumes until ctx is cancelled, which returns nil. A fetch,
// publish or commit failure is returned to the caller.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch command: %w", err)
		}

		if err := c.handle(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("commit offset %d: %w", msg.Offset, err)
		}
	}
}

// handle processes one message. Messages that cannot be decoded or
// executed still produce a result and are committed, so a bad message
// never stalls the partition.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	cmd, err := command.Decode(msg.Value)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownCommand) {
			c.logger.Debug("skipping unknown command", "offset", msg.Offset, "error", err)
			return nil
		}
		c.logger.Warn("undecodable command", "offset", msg.Offset, "error", err)
		return c.publish(ctx, command.Failed(nil, "", err))
	}

	res, err := c.dispatcher.Dispatch(cmd)
	if err != nil {
		res = command.Failed(cmd, "", err)
	}
	return c.publish(ctx, res)
}

func (c *Consumer) publish(ctx context.Context, res *command.Result) error {
	if c.writer == nil {
		c.logger.Debug("command result", "request_id", res.RequestID, "type", res.Type, "status", res.Status)
		return nil
	}
	value, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	err = c.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(res.Market),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("publish result %s: %w", res.RequestID, err)
	}
	return nil
}

// Close releases the reader and writer.
func (c *Consumer) Close() error {
	err := c.reader.Close()
	if c.writer != nil {
		err = errors.Join(err, c.writer.Close())
	}
	return err
}
