// Package service provides business logic services for pan storage.
package service

import "errors"

// Common service errors.
var (
	// ErrInternalError wraps metadata store failures that have no domain meaning.
	ErrInternalError = errors.New("internal server error")
)

// IDGenerator issues unique record IDs.
// Implemented by *idgen.Generator.
type IDGenerator interface {
	Generate() (int64, error)
}
