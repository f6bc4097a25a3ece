// Package models defines the academic source entity and its projections
package models

import (
	"fmt"
	"strings"
	"time"
)

// AcademicSource is a stored reference document with its embedding
type AcademicSource struct {
	ID              int64     `json:"id" db:"id"`
	Title           string    `json:"title" db:"title"`
	Authors         string    `json:"authors" db:"authors"`
	PublicationYear int       `json:"publication_year" db:"publication_year"`
	Abstract        string    `json:"abstract" db:"abstract"`
	FullText        string    `json:"full_text" db:"full_text"`
	SourceType      string    `json:"source_type" db:"source_type"`
	Embedding       []float32 `json:"-" db:"-"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`

	// Distance to the query vector; set only on ranked results
	Distance float64 `json:"-" db:"-"`
}

// Summary projects the source onto the fields returned to API callers
func (s *AcademicSource) Summary() SourceSummary {
	return SourceSummary{
		Title:           s.Title,
		Authors:         s.Authors,
		PublicationYear: s.PublicationYear,
		Abstract:        s.Abstract,
		SourceType:      s.SourceType,
	}
}

// SourceSummary is the public view of a source. It never carries the
// embedding or the full text.
type SourceSummary struct {
	Title           string `json:"title"`
	Authors         string `json:"authors"`
	PublicationYear int    `json:"publication_year"`
	Abstract        string `json:"abstract"`
	SourceType      string `json:"source_type"`
}

// RawSourceRecord is one entry of a seed dataset
type RawSourceRecord struct {
	Title           string `json:"title" validate:"required,max=1000"`
	Authors         string `json:"authors" validate:"max=2000"`
	PublicationYear int    `json:"publication_year" validate:"gte=0,lte=3000"`
	Abstract        string `json:"abstract"`
	FullText        string `json:"full_text" validate:"required"`
	SourceType      string `json:"source_type" validate:"max=100"`
}

// ToSource builds an AcademicSource from the record and its embedding
func (r RawSourceRecord) ToSource(embedding []float32) *AcademicSource {
	return &AcademicSource{
		Title:           strings.TrimSpace(r.Title),
		Authors:         r.Authors,
		PublicationYear: r.PublicationYear,
		Abstract:        r.Abstract,
		FullText:        r.FullText,
		SourceType:      r.SourceType,
		Embedding:       embedding,
	}
}

// DistanceMetric selects how vectors are compared
type DistanceMetric string

const (
	// MetricL2 is Euclidean distance
	MetricL2 DistanceMetric = "l2"
	// MetricCosine is cosine distance (1 - cosine similarity)
	MetricCosine DistanceMetric = "cosine"
)

// ParseDistanceMetric accepts only the known metrics
func ParseDistanceMetric(s string) (DistanceMetric, error) {
	switch m := DistanceMetric(strings.ToLower(strings.TrimSpace(s))); m {
	case MetricL2, MetricCosine:
		return m, nil
	default:
		return "", fmt.Errorf("unknown distance metric %q", s)
	}
}

// Valid reports whether m is one of the known metrics
func (m DistanceMetric) Valid() bool {
	return m == MetricL2 || m == MetricCosine
}
