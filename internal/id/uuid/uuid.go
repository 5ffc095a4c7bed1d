// Package uuid issues crawl run identifiers.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// RunIDs issues UUIDv7 run identifiers. Their embedded millisecond
// timestamp makes lexical order follow submission order.
type RunIDs struct{}

// NewRunIDs returns a run ID source.
func NewRunIDs() RunIDs {
	return RunIDs{}
}

// NewID returns a fresh run ID.
func (RunIDs) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("new run id: %w", err)
	}
	return id.String(), nil
}
