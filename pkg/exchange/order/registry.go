package order

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/obdex/orderblock/pkg/exchange/store"
)

// Registry owns all order records by identifier and handles lifecycle
// transitions. Identifiers are assigned monotonically starting at 1 and
// never reused. Uses in-memory cache + Pebble persistence for durability.
type Registry struct {
	mu     sync.RWMutex
	nextID uint64
	orders map[uint64]*Order
	store  *store.Store // may be nil for an ephemeral registry
}

// NewRegistry creates a registry backed by the given store. A nil store
// keeps all records in memory only.
func NewRegistry(st *store.Store) (*Registry, error) {
	r := &Registry{
		nextID: 1,
		orders: make(map[uint64]*Order),
		store:  st,
	}
	if st != nil {
		if err := r.load(); err != nil {
			return nil, fmt.Errorf("failed to load order registry: %w", err)
		}
	}
	return r, nil
}

// load restores records and the id counter from Pebble.
func (r *Registry) load() error {
	var next uint64
	ok, err := r.store.GetJSON(store.NextOrderIDKey(), &next)
	if err != nil {
		return err
	}
	if ok {
		r.nextID = next
	}

	return r.store.IterPrefix(store.OrderPrefix(), func(key, value []byte) error {
		var o Order
		if err := json.Unmarshal(value, &o); err != nil {
			return fmt.Errorf("failed to unmarshal order %s: %w", key, err)
		}
		r.orders[o.ID] = &o
		return nil
	})
}

// FreeID returns the next identifier to be assigned (read-only).
func (r *Registry) FreeID() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.nextID
}

// New creates an Open order record, assigns the next id, and persists
// it. Remaining is cloned so the caller's value stays untouched.
func (r *Registry) New(marketID uint64, owner common.Address, side Side, kind Kind, price, trigger, amount *uint256.Int) (*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o := &Order{
		ID:        r.nextID,
		MarketID:  marketID,
		Owner:     owner,
		Side:      side,
		Kind:      kind,
		Price:     price.Clone(),
		Trigger:   trigger.Clone(),
		Remaining: amount.Clone(),
		Status:    Open,
		Seq:       r.nextID, // ids are monotonic, so they double as FIFO sequence
		CreatedAt: time.Now().Unix(),
	}
	r.nextID++
	r.orders[o.ID] = o

	if r.store != nil {
		if err := r.store.PutJSON(store.NextOrderIDKey(), r.nextID); err != nil {
			return nil, err
		}
		if err := r.store.PutJSON(store.OrderKey(o.ID), o); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// Get retrieves an order by id.
func (r *Registry) Get(id uint64) (*Order, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	return o, ok
}

// Save persists the current state of an order after a mutation.
func (r *Registry) Save(o *Order) error {
	if r.store == nil {
		return nil
	}
	return r.store.PutJSON(store.OrderKey(o.ID), o)
}

// Close transitions an Open order into a terminal status and sweeps
// Remaining to zero for Filled. Terminal statuses are immutable:
// closing an already-closed order is rejected.
func (r *Registry) Close(o *Order, st Status) error {
	if st == Open {
		return fmt.Errorf("cannot close order %d to Open", o.ID)
	}
	if o.IsClosed() {
		return fmt.Errorf("order %d already closed (%s)", o.ID, o.Status)
	}

	if st == Filled && !o.Remaining.IsZero() {
		return fmt.Errorf("order %d marked Filled with remaining %s", o.ID, o.Remaining.Dec())
	}
	o.Status = st
	return r.Save(o)
}

// OpenOrders returns every Open order, unordered. Used by invariant
// checks and the API.
func (r *Registry) OpenOrders() []*Order {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Order, 0)
	for _, o := range r.orders {
		if !o.IsClosed() {
			out = append(out, o)
		}
	}
	return out
}
