package domain

import "context"

// ItemStore persists generated items. SaveChunk must be atomic: either every
// item in the record is stored or none is.
type ItemStore interface {
	SaveChunk(ctx context.Context, chunk ChunkRecord) ([]string, error)
	ListByBatch(ctx context.Context, batchID string) ([]GeneratedItem, error)
}

// ObjectStore uploads media and returns the public URL of the stored object.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}
