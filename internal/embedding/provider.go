// Package embedding turns text into fixed-dimension vectors through an
// external embedding model.
package embedding

import (
	"context"
	"errors"
	"fmt"
)

// TaskType tells the model how the vector will be used
type TaskType string

const (
	// TaskRetrievalDocument is used when embedding corpus documents
	TaskRetrievalDocument TaskType = "RETRIEVAL_DOCUMENT"
	// TaskRetrievalQuery is used when embedding search queries
	TaskRetrievalQuery TaskType = "RETRIEVAL_QUERY"
)

// Provider represents an embedding provider
type Provider interface {
	// Name returns the provider name (e.g., "google", "mock")
	Name() string

	// Dimensions returns the fixed length of every vector the provider returns
	Dimensions() int

	// Embed returns the embedding of text. It never retries and never caches.
	Embed(ctx context.Context, text string, task TaskType) ([]float32, error)
}

var (
	// ErrProviderUnavailable covers network, auth, quota and timeout failures.
	// Callers may retry later.
	ErrProviderUnavailable = errors.New("embedding provider unavailable")

	// ErrProviderRejected means the provider refused the input. Retrying the
	// same input will not help.
	ErrProviderRejected = errors.New("embedding provider rejected input")
)

// ProviderError represents an error from an embedding provider
type ProviderError struct {
	Provider   string
	Code       string
	Message    string
	StatusCode int
	// Kind is ErrProviderUnavailable or ErrProviderRejected
	Kind error
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s provider error [%s] (status %d): %s", e.Provider, e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s provider error [%s]: %s", e.Provider, e.Code, e.Message)
}

// Is lets errors.Is match the error against its kind sentinel
func (e *ProviderError) Is(target error) bool {
	return e.Kind != nil && target == e.Kind
}

// Unwrap returns the kind sentinel
func (e *ProviderError) Unwrap() error {
	return e.Kind
}

// IsRetryable reports whether the same request may succeed later
func (e *ProviderError) IsRetryable() bool {
	return errors.Is(e.Kind, ErrProviderUnavailable)
}

func unavailable(provider, code, msg string, status int) *ProviderError {
	return &ProviderError{Provider: provider, Code: code, Message: msg, StatusCode: status, Kind: ErrProviderUnavailable}
}

func rejected(provider, code, msg string, status int) *ProviderError {
	return &ProviderError{Provider: provider, Code: code, Message: msg, StatusCode: status, Kind: ErrProviderRejected}
}
