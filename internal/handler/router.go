package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/scribe/internal/middleware"
)

type RouterDeps struct {
	Queries     *QueryHandler
	Collections *CollectionHandler
	// RateLimit is the minimum interval between two queries of one client,
	// 0 disables it.
	RateLimit time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.GET("/healthz", Health)
	api.GET("/collections/:id", deps.Collections.Get)

	queryGroup := api.Group("")
	if deps.RateLimit > 0 {
		queryGroup.Use(middleware.RateLimit(deps.RateLimit))
	}
	queryGroup.POST("/query", deps.Queries.Query)
}
