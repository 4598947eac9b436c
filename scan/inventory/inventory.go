// Package inventory holds the in-memory view of an order's expected return
// set: per-asset required versus already-scanned quantities, plus the derived
// session progress.
package inventory

import (
	"errors"
	"math"
	"sync"
)

// Tracking modes: each INDIVIDUAL unit carries its own code; one BATCH code
// represents a variable-quantity group.
const (
	TrackingIndividual = "INDIVIDUAL"
	TrackingBatch      = "BATCH"
)

// ErrUnknownCode is returned when a decoded value matches no item in the order.
var ErrUnknownCode = errors.New("code matches no item in this order")

// Item is one line of the order's expected return set.
type Item struct {
	AssetID          int64
	QRCode           string
	AssetName        string
	TrackingMethod   string
	RequiredQuantity int64
	ScannedQuantity  int64
}

// Complete reports whether the line has been fully scanned back.
func (it Item) Complete() bool {
	return it.ScannedQuantity >= it.RequiredQuantity
}

// Remaining is the quantity still expected back.
func (it Item) Remaining() int64 {
	if it.Complete() {
		return 0
	}
	return it.RequiredQuantity - it.ScannedQuantity
}

// Progress is the derived order-level scan progress.
type Progress struct {
	OrderID         int64
	TotalItems      int64
	ItemsScanned    int64
	PercentComplete int
}

// Model is the session-scoped inventory view, keyed by QR code. Lookups are
// side-effect free; only ApplyScan mutates, and only the submission
// coordinator may call it.
type Model struct {
	orderID int64

	mu    sync.RWMutex
	items map[string]*Item
	order []string
}

func NewModel(orderID int64, items []Item) *Model {
	m := &Model{
		orderID: orderID,
		items:   make(map[string]*Item, len(items)),
		order:   make([]string, 0, len(items)),
	}
	for i := range items {
		it := items[i]
		if _, exists := m.items[it.QRCode]; exists {
			continue
		}
		m.items[it.QRCode] = &it
		m.order = append(m.order, it.QRCode)
	}
	return m
}

// Resolve looks up the item matching a decoded code.
func (m *Model) Resolve(code string) (Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, ok := m.items[code]
	if !ok {
		return Item{}, ErrUnknownCode
	}
	return *it, nil
}

// ApplyScan increments the scanned quantity for code by confirmed, clamped so
// it never exceeds the required quantity, and returns the updated item with
// the recomputed progress.
func (m *Model) ApplyScan(code string, confirmed int64) (Item, Progress) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[code]
	if !ok {
		return Item{}, m.progressLocked()
	}
	it.ScannedQuantity += confirmed
	if it.ScannedQuantity > it.RequiredQuantity {
		it.ScannedQuantity = it.RequiredQuantity
	}
	return *it, m.progressLocked()
}

// Progress recomputes the aggregate snapshot.
func (m *Model) Progress() Progress {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.progressLocked()
}

// Items returns the lines in their original manifest order.
func (m *Model) Items() []Item {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Item, 0, len(m.order))
	for _, code := range m.order {
		out = append(out, *m.items[code])
	}
	return out
}

func (m *Model) progressLocked() Progress {
	p := Progress{OrderID: m.orderID}
	for _, it := range m.items {
		p.TotalItems += it.RequiredQuantity
		p.ItemsScanned += it.ScannedQuantity
	}
	p.PercentComplete = PercentComplete(p.ItemsScanned, p.TotalItems)
	return p
}

// PercentComplete rounds 100*scanned/total to the nearest integer.
func PercentComplete(scanned, total int64) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(scanned) / float64(total)))
}
