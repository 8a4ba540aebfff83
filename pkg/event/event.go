// Package event provides a simple synchronous/async event dispatcher.
//
//	event.Listen(event.StockLow, func(p any) {
//	    alert := p.(event.StockAlert)
//	    ...
//	})
//	event.Fire(event.StockLow, event.StockAlert{ProductID: "P-001"})
package event

import (
	"sync"
)

// Event names fired by the sale engine and the sync loop.
const (
	SaleCommitted    = "sale.committed"
	SaleCancelled    = "sale.cancelled"
	StockLow         = "stock.low"
	StockChanged     = "stock.changed"
	SyncDraftFailed  = "sync.draft_failed"
	SyncFailureAdded = "sync.failure_reported"
	DeviceOnline     = "device.online"
)

// StockAlert is the payload of StockLow.
type StockAlert struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Quantity  string `json:"quantity"`
	MinStock  string `json:"min_stock"`
}

// Handler is a function that receives an event payload.
type Handler func(payload any)

var (
	mu       sync.RWMutex
	handlers = map[string][]Handler{}
)

// Listen registers a handler for the given event name.
func Listen(event string, handler Handler) {
	mu.Lock()
	defer mu.Unlock()
	handlers[event] = append(handlers[event], handler)
}

func snapshot(event string) []Handler {
	mu.RLock()
	defer mu.RUnlock()
	hs := make([]Handler, len(handlers[event]))
	copy(hs, handlers[event])
	return hs
}

// Fire dispatches an event synchronously to all registered listeners.
func Fire(event string, payload any) {
	for _, h := range snapshot(event) {
		h(payload)
	}
}

// FireAsync dispatches the event to all listeners concurrently.
// It returns immediately without waiting for handlers to complete.
func FireAsync(event string, payload any) {
	for _, h := range snapshot(event) {
		go h(payload)
	}
}

// Flush removes all listeners (useful in tests).
func Flush() {
	mu.Lock()
	defer mu.Unlock()
	handlers = map[string][]Handler{}
}
