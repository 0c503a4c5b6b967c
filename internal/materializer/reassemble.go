package materializer

import (
	"sort"

	"github.com/iconidentify/quickstage/internal/domain"
)

// Placed is a materialized item tagged with the position of the input it came
// from. Index is -1 when the position is unknown.
type Placed struct {
	Index int
	Item  domain.MaterializedItem
}

// Reassemble returns the successes in input order. A success whose Index names
// an input with the same source takes that position. Any other success takes
// the first unclaimed position of its source, and successes with no matching
// input go last in the order given.
func Reassemble(items []domain.Item, successes []Placed) []domain.MaterializedItem {
	claimed := make([]bool, len(items))
	rank := make([]int, len(successes))

	var unplaced []int
	for i, s := range successes {
		if s.Index >= 0 && s.Index < len(items) && !claimed[s.Index] &&
			items[s.Index].Source == s.Item.OriginalSource {
			claimed[s.Index] = true
			rank[i] = s.Index
			continue
		}
		unplaced = append(unplaced, i)
	}

	// Exact positions are claimed before any locator fallback.
	free := make(map[string][]int)
	for i, item := range items {
		if !claimed[i] {
			free[item.Source] = append(free[item.Source], i)
		}
	}
	for k, i := range unplaced {
		src := successes[i].Item.OriginalSource
		if pos := free[src]; len(pos) > 0 {
			rank[i] = pos[0]
			free[src] = pos[1:]
			continue
		}
		rank[i] = len(items) + k
	}

	order := make([]int, len(successes))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return rank[order[a]] < rank[order[b]]
	})

	out := make([]domain.MaterializedItem, len(successes))
	for i, j := range order {
		out[i] = successes[j].Item
	}
	return out
}
