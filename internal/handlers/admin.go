package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/nftbridge-backend/internal/clients/redis"
	"github.com/yungbote/nftbridge-backend/internal/downloader"
	"github.com/yungbote/nftbridge-backend/internal/services"
	"github.com/yungbote/nftbridge-backend/internal/types"
)

// AdminHandler exposes the operational surface: inspect aggregates, force
// metadata refreshes, and drive reconciliation.
type AdminHandler struct {
	items            *services.EnrichmentItemService
	itemEvents       *services.ItemEventService
	ownershipEvents  *services.OwnershipEventService
	collectionEvents *services.CollectionEventService
	downloads        *downloader.Orchestrator
	reconcile        *redis.ReconcileQueue
}

func NewAdminHandler(
	items *services.EnrichmentItemService,
	itemEvents *services.ItemEventService,
	ownershipEvents *services.OwnershipEventService,
	collectionEvents *services.CollectionEventService,
	downloads *downloader.Orchestrator,
	reconcile *redis.ReconcileQueue,
) *AdminHandler {
	return &AdminHandler{
		items:            items,
		itemEvents:       itemEvents,
		ownershipEvents:  ownershipEvents,
		collectionEvents: collectionEvents,
		downloads:        downloads,
		reconcile:        reconcile,
	}
}

// GET /admin/items/:id
func (h *AdminHandler) GetItem(c *gin.Context) {
	id, err := types.ParseItemID(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_item_id", err)
		return
	}
	item, err := h.items.Get(c.Request.Context(), id)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "item_lookup_failed", err)
		return
	}
	if item == nil {
		RespondError(c, http.StatusNotFound, "item_not_found", fmt.Errorf("item %s not found", id))
		return
	}
	enriched, err := h.items.EnrichItem(c.Request.Context(), item)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "item_enrich_failed", err)
		return
	}
	RespondOK(c, gin.H{"item": enriched, "version": item.Version})
}

// POST /admin/items/:id/meta/refresh
func (h *AdminHandler) RefreshItemMeta(c *gin.Context) {
	id, err := types.ParseItemID(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_item_id", err)
		return
	}
	task := types.DownloadTask{
		ID:       id.String(),
		Priority: types.PriorityImmediate,
		Force:    true,
	}
	if err := h.downloads.Schedule(c.Request.Context(), task); err != nil {
		RespondError(c, http.StatusInternalServerError, "schedule_failed", err)
		return
	}
	RespondOK(c, gin.H{"scheduled": true, "item_id": id.String()})
}

// POST /admin/reconcile/:kind/:id re-derives and re-publishes one entity.
func (h *AdminHandler) Reconcile(c *gin.Context) {
	kind := c.Param("kind")
	rawID := c.Param("id")
	ctx := c.Request.Context()

	var err error
	switch kind {
	case "item":
		var id types.ItemID
		if id, err = types.ParseItemID(rawID); err == nil {
			err = h.itemEvents.OnItemChanged(ctx, id)
		}
	case "ownership":
		var id types.OwnershipID
		if id, err = types.ParseOwnershipID(rawID); err == nil {
			err = h.ownershipEvents.OnOwnershipChanged(ctx, id)
		}
	case "collection":
		var id types.CollectionID
		if id, err = types.ParseCollectionID(rawID); err == nil {
			err = h.collectionEvents.OnCollectionChanged(ctx, id)
		}
	default:
		RespondError(c, http.StatusBadRequest, "invalid_kind", fmt.Errorf("unknown entity kind %q", kind))
		return
	}
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "reconcile_failed", err)
		return
	}
	RespondOK(c, gin.H{"reconciled": true, "kind": kind, "id": rawID})
}

// GET /admin/reconcile/:kind/backlog
func (h *AdminHandler) ReconcileBacklog(c *gin.Context) {
	kind := c.Param("kind")
	switch kind {
	case "item", "ownership", "collection":
	default:
		RespondError(c, http.StatusBadRequest, "invalid_kind", fmt.Errorf("unknown entity kind %q", kind))
		return
	}
	depth, err := h.reconcile.Depth(c.Request.Context(), kind)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "backlog_lookup_failed", err)
		return
	}
	RespondOK(c, gin.H{"kind": kind, "depth": depth, "queue_depth": h.downloads.QueueDepth()})
}
