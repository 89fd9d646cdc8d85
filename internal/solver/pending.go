// Package solver orchestrates intent processing: dedup, evaluation, liquidity
// check, and fill execution with at-most-once semantics per order.
package solver

import "sync"

// PendingSet tracks orders currently being evaluated or filled. Membership is
// the sole defense against double-fills, so the test-and-insert must be one
// atomic operation.
type PendingSet struct {
	mu     sync.Mutex
	orders map[string]struct{}
}

// NewPendingSet creates an empty set.
func NewPendingSet() *PendingSet {
	return &PendingSet{orders: make(map[string]struct{})}
}

// TryAdd atomically inserts orderID and reports whether it was absent. A
// false return means the order is already in flight and must be dropped.
func (p *PendingSet) TryAdd(orderID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.orders[orderID]; exists {
		return false
	}
	p.orders[orderID] = struct{}{}
	return true
}

// Remove releases orderID. Safe to call for an absent order.
func (p *PendingSet) Remove(orderID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.orders, orderID)
}

// Len returns the number of in-flight orders.
func (p *PendingSet) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.orders)
}
