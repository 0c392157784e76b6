package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	segmentio "github.com/segmentio/kafka-go"

	"github.com/yungbote/nftbridge-backend/internal/clients/kafka"
	"github.com/yungbote/nftbridge-backend/internal/downloader"
	"github.com/yungbote/nftbridge-backend/internal/logger"
	"github.com/yungbote/nftbridge-backend/internal/services"
	"github.com/yungbote/nftbridge-backend/internal/types"
)

// malformedError marks payloads that can never be processed; the runner
// commits them instead of retrying.
type malformedError struct{ err error }

func (e *malformedError) Error() string { return "malformed event: " + e.err.Error() }
func (e *malformedError) Unwrap() error { return e.err }

func malformed(err error) error { return &malformedError{err: err} }

// Handler dispatches inbound indexer events to the enrichment services.
type Handler struct {
	itemEvents       *services.ItemEventService
	ownershipEvents  *services.OwnershipEventService
	collectionEvents *services.CollectionEventService
	orderEvents      *services.OrderEventService
	downloads        *downloader.Orchestrator
	log              *logger.Logger
}

func NewHandler(
	itemEvents *services.ItemEventService,
	ownershipEvents *services.OwnershipEventService,
	collectionEvents *services.CollectionEventService,
	orderEvents *services.OrderEventService,
	downloads *downloader.Orchestrator,
	baseLog *logger.Logger,
) *Handler {
	return &Handler{
		itemEvents:       itemEvents,
		ownershipEvents:  ownershipEvents,
		collectionEvents: collectionEvents,
		orderEvents:      orderEvents,
		downloads:        downloads,
		log:              baseLog.With("service", "EventConsumer"),
	}
}

func (h *Handler) Handle(ctx context.Context, msg segmentio.Message) error {
	switch msg.Topic {
	case kafka.TopicInboundItem:
		return h.handleItem(ctx, msg.Value)
	case kafka.TopicInboundOwnership:
		return h.handleOwnership(ctx, msg.Value)
	case kafka.TopicInboundCollection:
		return h.handleCollection(ctx, msg.Value)
	case kafka.TopicInboundOrder:
		return h.handleOrder(ctx, msg.Value)
	case kafka.TopicInboundActivity:
		return h.handleActivity(ctx, msg.Value)
	case kafka.TopicInboundAuction:
		return h.handleAuction(ctx, msg.Value)
	default:
		h.log.Warn("message on unknown topic", "topic", msg.Topic)
		return nil
	}
}

func (h *Handler) handleItem(ctx context.Context, value []byte) error {
	var payload struct {
		ItemID  string `json:"item_id"`
		Deleted bool   `json:"deleted"`
	}
	if err := json.Unmarshal(value, &payload); err != nil {
		return malformed(err)
	}
	id, err := types.ParseItemID(payload.ItemID)
	if err != nil {
		return malformed(err)
	}
	if payload.Deleted {
		return h.itemEvents.OnItemDeleted(ctx, id)
	}
	if err := h.itemEvents.OnItemChanged(ctx, id); err != nil {
		return err
	}
	// Chain-side item change may mean changed metadata; queue a refresh.
	return h.downloads.Schedule(ctx, types.DownloadTask{
		ID:       payload.ItemID,
		Priority: types.PriorityMedium,
	})
}

func (h *Handler) handleOwnership(ctx context.Context, value []byte) error {
	var payload struct {
		OwnershipID string `json:"ownership_id"`
		Deleted     bool   `json:"deleted"`
	}
	if err := json.Unmarshal(value, &payload); err != nil {
		return malformed(err)
	}
	id, err := types.ParseOwnershipID(payload.OwnershipID)
	if err != nil {
		return malformed(err)
	}
	if payload.Deleted {
		return h.ownershipEvents.OnOwnershipDeleted(ctx, id)
	}
	return h.ownershipEvents.OnOwnershipChanged(ctx, id)
}

func (h *Handler) handleCollection(ctx context.Context, value []byte) error {
	var payload struct {
		CollectionID string   `json:"collection_id"`
		Deleted      bool     `json:"deleted"`
		OrderOrigins []string `json:"order_origins"`
		HasOrigins   bool     `json:"has_origins"`
	}
	if err := json.Unmarshal(value, &payload); err != nil {
		return malformed(err)
	}
	id, err := types.ParseCollectionID(payload.CollectionID)
	if err != nil {
		return malformed(err)
	}
	if payload.Deleted {
		return h.collectionEvents.OnCollectionDeleted(ctx, id)
	}
	if payload.HasOrigins {
		if err := h.collectionEvents.SetOrderOrigins(ctx, id, payload.OrderOrigins); err != nil {
			return err
		}
	}
	return h.collectionEvents.OnCollectionChanged(ctx, id)
}

func (h *Handler) handleOrder(ctx context.Context, value []byte) error {
	var event types.OrderEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return malformed(err)
	}
	if event.Order.ID == "" {
		return malformed(fmt.Errorf("order event without order id"))
	}
	return h.orderEvents.OnOrderUpdated(ctx, &event)
}

func (h *Handler) handleActivity(ctx context.Context, value []byte) error {
	var activity types.Activity
	if err := json.Unmarshal(value, &activity); err != nil {
		return malformed(err)
	}
	if activity.ItemID == "" {
		return malformed(fmt.Errorf("activity without item id"))
	}
	return h.itemEvents.OnActivity(ctx, &activity)
}

func (h *Handler) handleAuction(ctx context.Context, value []byte) error {
	var payload struct {
		ItemID    string `json:"item_id"`
		AuctionID string `json:"auction_id"`
		Deleted   bool   `json:"deleted"`
	}
	if err := json.Unmarshal(value, &payload); err != nil {
		return malformed(err)
	}
	id, err := types.ParseItemID(payload.ItemID)
	if err != nil {
		return malformed(err)
	}
	if payload.Deleted {
		return h.itemEvents.OnAuctionDeleted(ctx, id, payload.AuctionID)
	}
	return h.itemEvents.OnAuctionUpdated(ctx, id, payload.AuctionID)
}
