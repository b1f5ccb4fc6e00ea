// Package objstore abstracts the blob store that holds canonical SKILL
// documents and the pre-computed cache lists. Keys are slash-separated paths
// (e.g. "skills/acme/widget/SKILL.md", "cache/trending.json").
package objstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no object exists at the given key.
var ErrNotFound = errors.New("objstore: object not found")

// Store is a minimal blob store. Put is atomic per key: readers never see a
// partially written object.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}
