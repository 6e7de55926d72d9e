package handler

import (
	"fmt"

	"github.com/gin-gonic/gin"

	appErr "github.com/xxxsen/scribe/internal/pkg/errors"
	"github.com/xxxsen/scribe/internal/pkg/response"
	"github.com/xxxsen/scribe/internal/service"
)

type CollectionHandler struct {
	queries *service.QueryService
}

func NewCollectionHandler(queries *service.QueryService) *CollectionHandler {
	return &CollectionHandler{queries: queries}
}

func (h *CollectionHandler) Get(c *gin.Context) {
	id := c.Param("id")
	ok, err := h.queries.Exists(c.Request.Context(), id)
	if err != nil {
		handleError(c, err)
		return
	}
	if !ok {
		handleError(c, fmt.Errorf("%q: %w", id, appErr.ErrCollectionNotFound))
		return
	}
	response.Success(c, gin.H{"id": id, "exists": true})
}

func Health(c *gin.Context) {
	response.Success(c, gin.H{"status": "ok"})
}
