package cache

import (
	"context"

	"github.com/tjfontaine/polyglot-debate/internal/api/debates"
	"github.com/tjfontaine/polyglot-debate/internal/storage"
)

// ArchiveSource serves history from the local archive so cache resolution
// works offline.
type ArchiveSource struct {
	Store storage.ArchiveStore
}

// ListDebates implements HistorySource.
func (a ArchiveSource) ListDebates(ctx context.Context, limit, offset int) (*debates.ListDebatesResponse, error) {
	page, err := a.Store.ListDebates(ctx, storage.ListOptions{Limit: limit + 1, Offset: offset})
	if err != nil {
		return nil, err
	}
	total, err := a.Store.CountDebates(ctx)
	if err != nil {
		return nil, err
	}

	resp := &debates.ListDebatesResponse{Total: total}
	if len(page) > limit {
		page = page[:limit]
		resp.HasMore = true
	}
	resp.Debates = page
	return resp, nil
}
