// Package kafka carries the engine's message broker surface: the outgoing
// producer for enriched entities and topic names shared with the consumers.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	segmentio "github.com/segmentio/kafka-go"

	"github.com/yungbote/nftbridge-backend/internal/logger"
	"github.com/yungbote/nftbridge-backend/internal/types"
	"github.com/yungbote/nftbridge-backend/internal/utils"
)

// Outbound topics.
const (
	TopicItem       = "nft.item"
	TopicOwnership  = "nft.ownership"
	TopicCollection = "nft.collection"
	TopicOrder      = "nft.order"
)

// Inbound topics consumed from the chain indexers.
const (
	TopicInboundItem       = "indexer.item"
	TopicInboundOwnership  = "indexer.ownership"
	TopicInboundCollection = "indexer.collection"
	TopicInboundOrder      = "indexer.order"
	TopicInboundActivity   = "indexer.activity"
	TopicInboundAuction    = "indexer.auction"
)

// envelope wraps every outgoing payload with its change type.
type envelope struct {
	Type    string          `json:"type"` // UPDATE | DELETE
	Payload json.RawMessage `json:"payload"`
}

// Producer publishes enriched entities downstream. Messages are keyed by
// entity id so consumers see per-entity order.
type Producer struct {
	writer *segmentio.Writer
	log    *logger.Logger
}

func NewProducer(baseLog *logger.Logger) (*Producer, error) {
	brokers := utils.GetEnv("KAFKA_BROKERS", "", baseLog)
	if brokers == "" {
		return nil, fmt.Errorf("missing KAFKA_BROKERS")
	}
	writer := &segmentio.Writer{
		Addr:         segmentio.TCP(strings.Split(brokers, ",")...),
		Balancer:     &segmentio.Hash{},
		RequiredAcks: segmentio.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}
	return &Producer{
		writer: writer,
		log:    baseLog.With("service", "KafkaProducer"),
	}, nil
}

func (p *Producer) Close() error { return p.writer.Close() }

func (p *Producer) publish(ctx context.Context, topic, key, changeType string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	value, err := json.Marshal(envelope{Type: changeType, Payload: raw})
	if err != nil {
		return err
	}
	err = p.writer.WriteMessages(ctx, segmentio.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("kafka publish %s %s: %w", topic, key, err)
	}
	return nil
}

func (p *Producer) PublishItemUpdate(ctx context.Context, event types.ItemUpdateEvent) error {
	return p.publish(ctx, TopicItem, event.ItemID, "UPDATE", event)
}

func (p *Producer) PublishItemDelete(ctx context.Context, event types.ItemDeleteEvent) error {
	return p.publish(ctx, TopicItem, event.ItemID, "DELETE", event)
}

func (p *Producer) PublishOwnershipUpdate(ctx context.Context, event types.OwnershipUpdateEvent) error {
	return p.publish(ctx, TopicOwnership, event.OwnershipID, "UPDATE", event)
}

func (p *Producer) PublishOwnershipDelete(ctx context.Context, event types.OwnershipDeleteEvent) error {
	return p.publish(ctx, TopicOwnership, event.OwnershipID, "DELETE", event)
}

func (p *Producer) PublishCollectionUpdate(ctx context.Context, event types.CollectionUpdateEvent) error {
	return p.publish(ctx, TopicCollection, event.CollectionID, "UPDATE", event)
}

func (p *Producer) PublishCollectionDelete(ctx context.Context, event types.CollectionDeleteEvent) error {
	return p.publish(ctx, TopicCollection, event.CollectionID, "DELETE", event)
}

func (p *Producer) PublishOrderUpdate(ctx context.Context, event types.OrderUpdateEvent) error {
	return p.publish(ctx, TopicOrder, event.OrderID, "UPDATE", event)
}
