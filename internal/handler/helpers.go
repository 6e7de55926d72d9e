package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/scribe/internal/pkg/errcode"
	appErr "github.com/xxxsen/scribe/internal/pkg/errors"
	"github.com/xxxsen/scribe/internal/pkg/response"
)

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	requestID, _ := c.Get("request_id")
	logger := logutil.GetLogger(c.Request.Context()).With(
		zap.Any("request_id", requestID),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
	)
	switch {
	case appErr.IsInvalid(err):
		logger.Info("request rejected", zap.Error(err))
		fields := appErr.FieldErrors(err)
		if len(fields) > 0 {
			response.ErrorWithData(c, http.StatusUnprocessableEntity, errcode.ErrInvalid, "invalid request", gin.H{"fields": fields})
			return
		}
		response.Error(c, http.StatusUnprocessableEntity, errcode.ErrInvalid, err.Error())
	case appErr.IsCollectionNotFound(err):
		logger.Info("collection not found", zap.Error(err))
		response.Error(c, http.StatusNotFound, errcode.ErrCollectionNotFound, "collection not found")
	case appErr.IsRejected(err):
		logger.Warn("provider rejected request", zap.Error(err))
		response.Error(c, http.StatusBadGateway, errcode.ErrProviderRejected, "provider rejected the request")
	case appErr.IsUnavailable(err), errors.Is(err, context.DeadlineExceeded):
		logger.Error("provider unavailable", zap.Error(err))
		response.Error(c, http.StatusServiceUnavailable, errcode.ErrProviderUnavailable, "provider unavailable")
	case appErr.IsInternal(err):
		logger.Error("request failed", zap.Error(err))
		response.Error(c, http.StatusInternalServerError, errcode.ErrInternal, "internal error")
	case appErr.IsNotFound(err):
		response.Error(c, http.StatusNotFound, errcode.ErrNotFound, "not found")
	case errors.Is(err, appErr.ErrTooMany):
		response.Error(c, http.StatusTooManyRequests, errcode.ErrTooMany, "too many requests")
	case appErr.IsConflict(err):
		response.Error(c, http.StatusConflict, errcode.ErrConflict, "conflict")
	default:
		logger.Error("request failed", zap.Error(err))
		response.Error(c, http.StatusInternalServerError, errcode.ErrInternal, "internal error")
	}
}
