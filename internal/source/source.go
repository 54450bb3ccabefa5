package source

import (
	"context"
	"time"

	"media-library/internal/library"
)

// AssetInfo is one enumerated item: stable id, content fingerprint,
// creation time and media kind.
type AssetInfo struct {
	ID          string
	Fingerprint string
	CreatedAt   time.Time
	Kind        library.MediaKind
}

// AssetSource enumerates media items and supplies their content.
//
// FetchContent returns library.ErrAssetUnavailable (possibly wrapped)
// when the item vanished since enumeration; callers drop such items
// without retrying.
type AssetSource interface {
	ListItems(ctx context.Context) ([]AssetInfo, error)
	FetchContent(ctx context.Context, id string) ([]byte, error)
}
