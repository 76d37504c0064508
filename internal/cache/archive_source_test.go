package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/tjfontaine/polyglot-debate/internal/core/domain"
	"github.com/tjfontaine/polyglot-debate/internal/storage/memory"
)

func TestArchiveSource_Paging(t *testing.T) {
	store := memory.New()
	base := time.Now()
	for i := 0; i < 5; i++ {
		store.SaveDebate(context.Background(), &domain.Debate{
			ID:        fmt.Sprintf("d%d", i),
			Topic:     "Free will",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}

	src := ArchiveSource{Store: store}

	first, err := src.ListDebates(context.Background(), 3, 0)
	if err != nil {
		t.Fatalf("ListDebates() error = %v", err)
	}
	if len(first.Debates) != 3 || !first.HasMore || first.Total != 5 {
		t.Errorf("first page = %d debates, hasMore=%v, total=%d", len(first.Debates), first.HasMore, first.Total)
	}

	second, err := src.ListDebates(context.Background(), 3, 3)
	if err != nil {
		t.Fatalf("ListDebates() error = %v", err)
	}
	if len(second.Debates) != 2 || second.HasMore {
		t.Errorf("second page = %d debates, hasMore=%v", len(second.Debates), second.HasMore)
	}
}

func TestResolver_OverArchive(t *testing.T) {
	store := memory.New()
	panelists := []domain.Panelist{{ID: "kant"}, {ID: "hume"}}
	store.SaveDebate(context.Background(), &domain.Debate{
		ID:        "old",
		Topic:     "Free will",
		Panelists: panelists,
		CreatedAt: time.Now(),
	})

	r := NewResolver(ArchiveSource{Store: store}, WithPageSize(1))
	hit, ok, err := r.Resolve(context.Background(), "Free will", []domain.Panelist{{ID: "hume"}, {ID: "kant"}})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !ok || hit.ID != "old" {
		t.Errorf("Resolve() = %v, %v, want hit on old", hit, ok)
	}
}
