package market

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/obdex/orderblock/pkg/exchange/store"
)

// ErrPairExists is returned when a market already covers the requested
// pair or its reversal.
var ErrPairExists = errors.New("PAIR_EXISTS")

// ErrNotFound is returned when no market matches the requested id.
var ErrNotFound = errors.New("market not found")

// record is the persisted identity of a market. Books and stop queues
// hold only Open orders and are rebuilt by the engine on startup.
type record struct {
	ID    uint64         `json:"id"`
	Base  common.Address `json:"base"`
	Quote common.Address `json:"quote"`
}

// Registry manages all markets in a thread-safe manner. The unordered
// pair {base, quote} is unique: a pair and its reversal are the same
// market and cannot be recreated.
type Registry struct {
	mu      sync.RWMutex
	nextID  uint64
	markets map[uint64]*Market
	pairs   map[string]uint64 // canonical pair key -> market id
	store   *store.Store      // may be nil for an ephemeral registry
}

// NewRegistry creates a registry backed by the given store. A nil store
// keeps all markets in memory only.
func NewRegistry(st *store.Store) (*Registry, error) {
	r := &Registry{
		nextID:  1,
		markets: make(map[uint64]*Market),
		pairs:   make(map[string]uint64),
		store:   st,
	}
	if st != nil {
		if err := r.load(); err != nil {
			return nil, fmt.Errorf("failed to load market registry: %w", err)
		}
	}
	return r, nil
}

func (r *Registry) load() error {
	var next uint64
	ok, err := r.store.GetJSON(store.NextMarketIDKey(), &next)
	if err != nil {
		return err
	}
	if ok {
		r.nextID = next
	}

	return r.store.IterPrefix(store.MarketPrefix(), func(key, value []byte) error {
		var rec record
		if err := json.Unmarshal(value, &rec); err != nil {
			return fmt.Errorf("failed to unmarshal market %s: %w", key, err)
		}
		m := NewMarket(rec.ID, rec.Base, rec.Quote)
		r.markets[m.ID] = m
		r.pairs[pairKey(m.Base, m.Quote)] = m.ID
		return nil
	})
}

// pairKey canonicalizes the unordered pair so {a, b} and {b, a} map to
// the same key.
func pairKey(a, b common.Address) string {
	if bytes.Compare(a.Bytes(), b.Bytes()) > 0 {
		a, b = b, a
	}
	return a.Hex() + ":" + b.Hex()
}

// Create allocates a new market for the pair. Fails with ErrPairExists
// if a market covers the pair or its reversal.
func (r *Registry) Create(base, quote common.Address) (*Market, error) {
	if base == quote {
		return nil, fmt.Errorf("base and quote assets must differ")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := pairKey(base, quote)
	if id, exists := r.pairs[key]; exists {
		return nil, fmt.Errorf("%w: market %d", ErrPairExists, id)
	}

	m := NewMarket(r.nextID, base, quote)
	r.nextID++
	r.markets[m.ID] = m
	r.pairs[key] = m.ID

	if r.store != nil {
		if err := r.store.PutJSON(store.NextMarketIDKey(), r.nextID); err != nil {
			return nil, err
		}
		rec := record{ID: m.ID, Base: m.Base, Quote: m.Quote}
		if err := r.store.PutJSON(store.MarketKey(m.ID), rec); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Get retrieves a market by id.
func (r *Registry) Get(id uint64) (*Market, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, exists := r.markets[id]
	if !exists {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return m, nil
}

// List returns all markets. The slice is a copy; the markets are not.
func (r *Registry) List() []*Market {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Market, 0, len(r.markets))
	for _, m := range r.markets {
		out = append(out, m)
	}
	return out
}

// Count returns the number of markets.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.markets)
}
