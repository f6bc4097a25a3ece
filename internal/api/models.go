package api

import (
	"github.com/developer-mesh/academic-helper/internal/models"
	"github.com/developer-mesh/academic-helper/internal/seeder"
)

// SearchRequest is the query string of GET /api/v1/sources.
// The tag bounds are hard ceilings; configuration may lower them.
type SearchRequest struct {
	Query string `form:"query" binding:"required,max=2000"`
	Limit *int   `form:"limit" binding:"omitempty,min=0,max=50"`
}

// SearchResponse is the response for a similarity search
type SearchResponse struct {
	Query   string                 `json:"query"`
	Results []models.SourceSummary `json:"results"`
	Count   int                    `json:"count"`
}

// SeedResponse is the response for a seed run
type SeedResponse struct {
	Message       string                 `json:"message"`
	InsertedCount int                    `json:"inserted_count"`
	SkippedCount  int                    `json:"skipped_count"`
	FailedCount   int                    `json:"failed_count"`
	Failures      []seeder.RecordFailure `json:"failures"`
	Error         string                 `json:"error,omitempty"`
}

func newSeedResponse(report *seeder.Report, message string) SeedResponse {
	return SeedResponse{
		Message:       message,
		InsertedCount: report.Inserted,
		SkippedCount:  report.Skipped,
		FailedCount:   report.FailedCount(),
		Failures:      report.Failed,
	}
}

// ErrorResponse is the body of every error response
type ErrorResponse struct {
	Error     string `json:"error"`
	Details   string `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}
