package blob

import (
	"context"
	"fmt"
	"io"
)

// Replace stores r at key, deleting any existing blob first. Stores are
// create-only, so re-uploading a grown export goes through here.
func Replace(ctx context.Context, s Store, key string, r io.Reader, opts PutOptions) (Info, error) {
	if _, err := s.Delete(ctx, key); err != nil {
		return Info{}, fmt.Errorf("replace %s: %w", key, err)
	}
	return s.Put(ctx, key, r, opts)
}
