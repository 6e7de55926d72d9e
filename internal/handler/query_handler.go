package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/scribe/internal/model"
	appErr "github.com/xxxsen/scribe/internal/pkg/errors"
	"github.com/xxxsen/scribe/internal/pkg/response"
	"github.com/xxxsen/scribe/internal/service"
)

type QueryHandler struct {
	queries *service.QueryService
}

func NewQueryHandler(queries *service.QueryService) *QueryHandler {
	return &QueryHandler{queries: queries}
}

type queryRequest struct {
	QueryText              string                 `json:"queryText"`
	CollectionID           string                 `json:"collectionId"`
	InvokeGeneration       bool                   `json:"invokeGeneration"`
	NumberOfResults        *int                   `json:"numberOfResults"`
	UseConversationalStyle bool                   `json:"useConversationalStyle"`
	GenerationConfig       model.GenerationParams `json:"generationConfig"`
}

func (h *QueryHandler) Query(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleError(c, appErr.NewFieldError("body", err.Error()))
		return
	}
	resp, err := h.queries.Query(c.Request.Context(), model.QueryRequest{
		QueryText:        req.QueryText,
		CollectionID:     req.CollectionID,
		InvokeGeneration: req.InvokeGeneration,
		NumberOfResults:  req.NumberOfResults,
		Conversational:   req.UseConversationalStyle,
		Generation:       req.GenerationConfig,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, resp)
}
