package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	appErr "github.com/xxxsen/scribe/internal/pkg/errors"
)

var (
	ErrInvalidInput        = appErr.ErrInvalid
	ErrProviderUnavailable = appErr.ErrUnavailable
	ErrProviderRejected    = appErr.ErrRejected
)

// ClassifyError tags a provider error as unavailable unless it already
// carries one of the adapter error kinds.
func ClassifyError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrProviderUnavailable), errors.Is(err, ErrProviderRejected):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: timeout: %w", ErrProviderUnavailable, err)
	default:
		return fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}
}

// statusError tags err by the HTTP status the provider answered with.
// Quota and policy answers are rejections, the rest is treated as an outage.
func statusError(status int, err error) error {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusRequestTimeout, status >= http.StatusInternalServerError:
		return fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	case status >= http.StatusBadRequest:
		return fmt.Errorf("%w: %w", ErrProviderRejected, err)
	default:
		return fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}
}
