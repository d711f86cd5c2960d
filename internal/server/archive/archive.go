// Package archive provides the object-archive capability used for world
// save data: named blobs that can be uploaded, fetched back, listed, and
// deleted. The production implementation targets any S3-compatible store.
package archive

import "context"

// Archive stores world save blobs under string keys.
type Archive interface {
	// Put uploads the local file at localPath under key.
	Put(ctx context.Context, localPath, key string) error

	// Get downloads the blob at key into the local file at localPath.
	Get(ctx context.Context, key, localPath string) error

	// Delete removes the blob at key.
	Delete(ctx context.Context, key string) error

	// List returns the keys under prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}
