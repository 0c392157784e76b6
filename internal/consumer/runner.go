package consumer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	segmentio "github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/nftbridge-backend/internal/clients/kafka"
	"github.com/yungbote/nftbridge-backend/internal/logger"
	"github.com/yungbote/nftbridge-backend/internal/utils"
)

const handlerAttempts = 3

// Runner owns one reader per inbound topic and pumps messages through the
// handler. Transient handler failures are retried in place; malformed
// payloads are committed and skipped so one poison message cannot wedge a
// partition.
type Runner struct {
	brokers []string
	groupID string
	handler *Handler
	log     *logger.Logger
}

func NewRunner(handler *Handler, baseLog *logger.Logger) (*Runner, error) {
	brokers := utils.GetEnv("KAFKA_BROKERS", "", baseLog)
	if brokers == "" {
		return nil, fmt.Errorf("missing KAFKA_BROKERS")
	}
	return &Runner{
		brokers: strings.Split(brokers, ","),
		groupID: utils.GetEnv("KAFKA_GROUP_ID", "nftbridge-enrichment", baseLog),
		handler: handler,
		log:     baseLog.With("service", "ConsumerRunner"),
	}, nil
}

// Run blocks until ctx ends or a reader fails fatally.
func (r *Runner) Run(ctx context.Context) error {
	topics := []string{
		kafka.TopicInboundItem,
		kafka.TopicInboundOwnership,
		kafka.TopicInboundCollection,
		kafka.TopicInboundOrder,
		kafka.TopicInboundActivity,
		kafka.TopicInboundAuction,
	}
	g, ctx := errgroup.WithContext(ctx)
	for _, topic := range topics {
		g.Go(func() error {
			return r.consume(ctx, topic)
		})
	}
	return g.Wait()
}

func (r *Runner) consume(ctx context.Context, topic string) error {
	reader := segmentio.NewReader(segmentio.ReaderConfig{
		Brokers:     r.brokers,
		GroupID:     r.groupID,
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10 << 20,
		StartOffset: segmentio.FirstOffset,
	})
	defer reader.Close()
	r.log.Info("consumer started", "topic", topic)

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("fetch %s: %w", topic, err)
		}
		r.process(ctx, msg)
		if err := reader.CommitMessages(ctx, msg); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("commit %s: %w", topic, err)
		}
	}
}

func (r *Runner) process(ctx context.Context, msg segmentio.Message) {
	var err error
	for attempt := 0; attempt < handlerAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
		err = r.handler.Handle(ctx, msg)
		if err == nil {
			return
		}
		var bad *malformedError
		if errors.As(err, &bad) {
			r.log.Warn("dropping malformed message",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
			return
		}
	}
	r.log.Error("message handling failed after retries, skipping",
		"topic", msg.Topic,
		"partition", msg.Partition,
		"offset", msg.Offset,
		"error", err,
	)
}
