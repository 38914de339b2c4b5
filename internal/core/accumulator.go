package core

// accumulator.go holds the per-run set of rows waiting to be imported.
//
// Rows are bucketed by ImportHash and compared with ImportEquals inside a
// bucket, so membership tests cost one hash plus a short scan. The first row
// queued for an equality class is kept; later equal rows are dropped.

import (
	"fmt"
	"iter"
)

type pendingRow[T Importable] struct {
	item    T
	dropped bool
}

// Accumulator is a deduplicating collection keyed by import equality.
// It is not safe for concurrent use.
type Accumulator[T Importable] struct {
	order   []*pendingRow[T]
	buckets map[uint64][]*pendingRow[T]
	live    int
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator[T Importable]() *Accumulator[T] {
	return &Accumulator[T]{
		buckets: make(map[uint64][]*pendingRow[T]),
	}
}

// Add inserts item unless an import-equal row is already present.
// Reports whether the item was added.
func (a *Accumulator[T]) Add(item T) (bool, error) {
	if isNil(item) {
		return false, fmt.Errorf("queue: %w", InvalidComparison("queued row", item))
	}

	_, found, err := a.lookup(item)
	if err != nil {
		return false, err
	}
	if found {
		return false, nil
	}

	row := &pendingRow[T]{item: item}
	h := item.ImportHash()
	a.buckets[h] = append(a.buckets[h], row)
	a.order = append(a.order, row)
	a.live++
	return true, nil
}

// Queue merges a batch of rows. Duplicates, within the batch or against rows
// already queued, collapse silently. Returns the number of rows added.
// On error the rows added before the failing one stay queued.
func (a *Accumulator[T]) Queue(items iter.Seq[T]) (int, error) {
	added := 0
	for item := range items {
		ok, err := a.Add(item)
		if err != nil {
			return added, err
		}
		if ok {
			added++
		}
	}
	return added, nil
}

// Except removes every queued row that is import-equal to one of existing.
// Returns the number of queued rows removed.
func (a *Accumulator[T]) Except(existing []T) (int, error) {
	if a.live == 0 {
		return 0, nil
	}

	removed := 0
	for _, e := range existing {
		if isNil(e) {
			return removed, fmt.Errorf("except: %w", InvalidComparison("stored row", e))
		}
		idx, found, err := a.lookup(e)
		if err != nil {
			return removed, err
		}
		if !found {
			continue
		}

		h := e.ImportHash()
		bucket := a.buckets[h]
		bucket[idx].dropped = true
		bucket = append(bucket[:idx], bucket[idx+1:]...)
		if len(bucket) == 0 {
			delete(a.buckets, h)
		} else {
			a.buckets[h] = bucket
		}
		a.live--
		removed++

		if a.live == 0 {
			break
		}
	}

	if removed > 0 {
		a.compact()
	}
	return removed, nil
}

// DrainAll returns the queued rows in the order they were first queued and
// leaves the accumulator empty.
func (a *Accumulator[T]) DrainAll() []T {
	items := make([]T, 0, a.live)
	for _, row := range a.order {
		if !row.dropped {
			items = append(items, row.item)
		}
	}
	a.Reset()
	return items
}

// Count returns the number of queued rows.
func (a *Accumulator[T]) Count() int {
	return a.live
}

// Reset empties the accumulator.
func (a *Accumulator[T]) Reset() {
	a.order = nil
	a.buckets = make(map[uint64][]*pendingRow[T])
	a.live = 0
}

// lookup finds the bucket position of a queued row import-equal to item.
func (a *Accumulator[T]) lookup(item T) (int, bool, error) {
	for i, row := range a.buckets[item.ImportHash()] {
		eq, err := row.item.ImportEquals(item)
		if err != nil {
			return 0, false, err
		}
		if eq {
			return i, true, nil
		}
	}
	return 0, false, nil
}

func (a *Accumulator[T]) compact() {
	kept := a.order[:0]
	for _, row := range a.order {
		if !row.dropped {
			kept = append(kept, row)
		}
	}
	clear(a.order[len(kept):])
	a.order = kept
}
