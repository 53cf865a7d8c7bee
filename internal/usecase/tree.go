package usecase

import (
	"context"
	"fmt"

	"github.com/eslsoft/dictsync/internal/repository"
)

// TreeResolver walks parent links of hierarchical dictionaries.
type TreeResolver struct {
	store    repository.Store
	maxDepth int
}

// NewTreeResolver bounds every walk to maxDepth steps; maxDepth <= 0 is unlimited.
func NewTreeResolver(store repository.Store, maxDepth int) *TreeResolver {
	return &TreeResolver{store: store, maxDepth: maxDepth}
}

// Ancestors returns the parent chain of value, nearest first. The walk stops
// at a root, at the depth limit, or when a value repeats; the chain collected
// so far is returned in every case.
func (r *TreeResolver) Ancestors(ctx context.Context, code, value string) ([]string, error) {
	chain := make([]string, 0)
	seen := map[string]struct{}{value: {}}
	current := value
	for r.maxDepth <= 0 || len(chain) < r.maxDepth {
		parent, ok, err := r.store.GetParentValue(ctx, code, current)
		if err != nil {
			return chain, fmt.Errorf("resolve parent of %s:%s: %w", code, current, err)
		}
		if !ok || parent == "" {
			break
		}
		if _, dup := seen[parent]; dup {
			break
		}
		seen[parent] = struct{}{}
		chain = append(chain, parent)
		current = parent
	}
	return chain, nil
}
