package app

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/nftbridge-backend/internal/handlers"
)

func wireRouter(serviceset Services, clients Clients) *gin.Engine {
	admin := handlers.NewAdminHandler(
		serviceset.Item,
		serviceset.ItemEvents,
		serviceset.OwnershipEvents,
		serviceset.CollectionEvents,
		serviceset.Downloads,
		clients.ReconcileQueue,
	)

	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", handlers.HealthCheck)

	adminGroup := router.Group("/admin")
	{
		adminGroup.GET("/items/:id", admin.GetItem)
		adminGroup.POST("/items/:id/meta/refresh", admin.RefreshItemMeta)
		adminGroup.POST("/reconcile/:kind/:id", admin.Reconcile)
		adminGroup.GET("/reconcile/:kind/backlog", admin.ReconcileBacklog)
	}
	return router
}
