package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/lib/pq"
)

var (
	// ErrDuplicateTitle means a source with the same title is already stored
	ErrDuplicateTitle = errors.New("source with this title already exists")

	// ErrDimensionMismatch means a vector does not match the column dimension
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrStorageUnavailable means the datastore could not be reached
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrInvalidMetric means an unknown distance metric was requested
	ErrInvalidMetric = errors.New("invalid distance metric")
)

const uniqueViolation = "23505"

// classifyError maps driver errors onto the repository taxonomy. Errors that
// say nothing about availability (syntax, constraint) are returned unchanged.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStorageUnavailable) || errors.Is(err, ErrDuplicateTitle) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if pqErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %w", ErrDuplicateTitle, err)
		}
		if isUnavailableCode(string(pqErr.Code)) {
			return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
		}
		return err
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone),
		errors.As(err, &netErr):
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return err
}

// isUnavailableCode reports SQLSTATEs for lost connections, shutdowns and
// connection exhaustion.
func isUnavailableCode(code string) bool {
	switch {
	case strings.HasPrefix(code, "08"): // connection_exception
		return true
	case code == "57P01", code == "57P02", code == "57P03": // admin/crash shutdown, cannot connect now
		return true
	case code == "53300": // too_many_connections
		return true
	}
	return false
}
