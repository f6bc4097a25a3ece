package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/developer-mesh/academic-helper/internal/embedding"
	"github.com/developer-mesh/academic-helper/internal/repository"
	"github.com/developer-mesh/academic-helper/internal/seeder"
)

// statusFor maps a core error onto an HTTP status and a public message
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, embedding.ErrProviderRejected):
		return http.StatusUnprocessableEntity, "the embedding provider rejected the input"
	case errors.Is(err, embedding.ErrProviderUnavailable):
		return http.StatusServiceUnavailable, "embedding provider unavailable, try again later"
	case errors.Is(err, repository.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, "storage unavailable, try again later"
	case errors.Is(err, seeder.ErrDatasetNotFound):
		return http.StatusNotFound, "seed dataset not found"
	case errors.Is(err, seeder.ErrInvalidDataset):
		return http.StatusInternalServerError, "seed dataset is invalid"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "request timed out"
	case errors.Is(err, context.Canceled):
		// client went away; the status is never seen
		return 499, "request canceled"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
