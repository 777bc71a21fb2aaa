// Package view maintains client-side read models folded from the change
// feed. Every projection tolerates at-least-once delivery by keying rows on
// their store id, and recovers from feed gaps with a wholesale refetch.
package view

import (
	"encoding/json"
	"sync"

	"gigmarket/internal/feed"
)

// Projection is a keyed fold of one table's rows. Applying the same event
// twice converges to the same state, which is what makes at-least-once
// delivery safe. Each row remembers the highest sequence folded into it, so
// a redelivered or delayed older event can never overwrite a newer row state.
type Projection[T any] struct {
	mu   sync.RWMutex
	rows map[int64]T
	seqs map[int64]int64
}

func NewProjection[T any]() *Projection[T] {
	return &Projection[T]{rows: make(map[int64]T), seqs: make(map[int64]int64)}
}

// Apply folds one change event into the projection. Events carrying a
// sequence at or below the row's last applied sequence are dropped.
func (p *Projection[T]) Apply(ev feed.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ev.Seq != 0 {
		if last, ok := p.seqs[ev.RowID]; ok && ev.Seq <= last {
			return nil
		}
	}

	switch ev.Op {
	case feed.OpDelete:
		delete(p.rows, ev.RowID)
	default:
		var row T
		if err := json.Unmarshal(ev.Row, &row); err != nil {
			return err
		}
		p.rows[ev.RowID] = row
	}
	if ev.Seq != 0 {
		p.seqs[ev.RowID] = ev.Seq
	}
	return nil
}

// Replace swaps the whole projection for freshly fetched rows. Applied
// sequences are kept: a fetch reads at least as much as any event already
// folded, so an older event straggling in after the refetch must still be
// dropped.
func (p *Projection[T]) Replace(rows []T, key func(T) int64) {
	next := make(map[int64]T, len(rows))
	for _, r := range rows {
		next[key(r)] = r
	}
	p.mu.Lock()
	p.rows = next
	p.mu.Unlock()
}

func (p *Projection[T]) Get(id int64) (T, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	row, ok := p.rows[id]
	return row, ok
}

func (p *Projection[T]) Snapshot() []T {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]T, 0, len(p.rows))
	for _, r := range p.rows {
		out = append(out, r)
	}
	return out
}

func (p *Projection[T]) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.rows)
}
