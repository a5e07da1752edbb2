// Package position materializes executed fills into symbol-level positions.
//
// The store is the only component allowed to mutate positions; all mutations
// happen in response to completed executions. Each symbol's (quantity,
// average price) tuple is protected by its own mutex; Snapshot takes a
// coarse lock across all symbols so the returned map is a consistent
// point-in-time copy.
package position

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tradecore/pkg/types"
)

// Store holds per-symbol positions. Quantity is signed: long positive,
// short negative.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	now     func() time.Time
}

type entry struct {
	mu  sync.Mutex
	pos types.Position
}

// NewStore creates an empty position store.
func NewStore() *Store {
	return &Store{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// ApplyFill updates the symbol's position under an exclusive section over
// that symbol and returns the resulting position.
//
// Semantics:
//   - New position: quantity = ±q, average price = p.
//   - Same-direction add: average = (|qty|·avg + q·p) / (|qty| + q).
//   - Opposite-direction partial: |quantity| reduced by q, average unchanged.
//   - Sign cross: the residual opens a new position on the other side at p.
//   - Exact flat: the row is kept with quantity 0 and average price p, so
//     the next fill of either side opens cleanly.
//
// The fill price always becomes the symbol's reference price.
func (s *Store) ApplyFill(symbol string, side types.Side, quantity, price decimal.Decimal) types.Position {
	ent := s.entry(symbol)

	ent.mu.Lock()
	defer ent.mu.Unlock()

	pos := &ent.pos
	delta := quantity
	if side == types.SELL {
		delta = quantity.Neg()
	}

	switch {
	case pos.Quantity.IsZero():
		pos.Quantity = delta
		pos.AveragePrice = price

	case pos.Quantity.Sign() == delta.Sign():
		absQty := pos.Quantity.Abs()
		totalCost := absQty.Mul(pos.AveragePrice).Add(quantity.Mul(price))
		pos.AveragePrice = totalCost.Div(absQty.Add(quantity))
		pos.Quantity = pos.Quantity.Add(delta)

	default:
		absQty := pos.Quantity.Abs()
		switch quantity.Cmp(absQty) {
		case -1: // partial reduction, average unchanged
			pos.Quantity = pos.Quantity.Add(delta)
		case 0: // exact flat
			pos.Quantity = decimal.Zero
			pos.AveragePrice = price
		case 1: // cross: residual opens the other side at the fill price
			residual := quantity.Sub(absQty)
			if delta.Sign() > 0 {
				pos.Quantity = residual
			} else {
				pos.Quantity = residual.Neg()
			}
			pos.AveragePrice = price
		}
	}

	pos.LastPrice = price
	pos.LastUpdate = s.now()
	return *pos
}

// Position returns the symbol's position and whether it exists.
func (s *Store) Position(symbol string) (types.Position, bool) {
	s.mu.RLock()
	ent, ok := s.entries[symbol]
	s.mu.RUnlock()
	if !ok {
		return types.Position{}, false
	}

	ent.mu.Lock()
	defer ent.mu.Unlock()
	return ent.pos, true
}

// Snapshot returns a consistent point-in-time copy of every position. The
// coarse write lock excludes concurrent ApplyFill for the duration.
func (s *Store) Snapshot() map[string]types.Position {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]types.Position, len(s.entries))
	for sym, ent := range s.entries {
		ent.mu.Lock()
		out[sym] = ent.pos
		ent.mu.Unlock()
	}
	return out
}

// entry returns the symbol's slot, creating it on first use.
func (s *Store) entry(symbol string) *entry {
	s.mu.RLock()
	ent, ok := s.entries[symbol]
	s.mu.RUnlock()
	if ok {
		return ent
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if ent, ok = s.entries[symbol]; ok {
		return ent
	}
	ent = &entry{pos: types.Position{Symbol: symbol}}
	s.entries[symbol] = ent
	return ent
}
