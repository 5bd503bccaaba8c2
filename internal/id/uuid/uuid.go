// Package uuid provides ID generation helpers.
package uuid

import (
	"fmt"
	"os"

	"github.com/google/uuid"
)

// Generator creates UUID v7 strings.
type Generator struct{}

// New creates a new Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a UUID7 string.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}

// NewWorkerID builds a queue claimant identity. The hostname prefix makes
// claimed_by values traceable to a machine; the UUID suffix keeps replicas on
// the same host distinct.
func (g Generator) NewWorkerID() (string, error) {
	id, err := g.NewID()
	if err != nil {
		return "", err
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		return id, nil
	}
	return host + "-" + id, nil
}
