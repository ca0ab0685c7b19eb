// Package storage mirrors finished datasets to blob storage. A provider is
// picked from config: a GCS bucket, a local directory, or none.
package storage

import (
	"context"
)

// Provider saves one object.
type Provider interface {
	// Save uploads data to objectName, replacing any previous object.
	Save(ctx context.Context, objectName string, data []byte) error
}

// NoOpProvider discards everything. It backs runs with mirroring disabled.
type NoOpProvider struct{}

// Save does nothing and always returns nil.
func (n *NoOpProvider) Save(_ context.Context, _ string, _ []byte) error {
	return nil
}
