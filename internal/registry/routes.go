// Package registry holds the process-wide trading route registry and partner
// ledger. Both are owned by the administrative boundary; the trading core
// only reads them.
package registry

import (
	"fmt"
	"sync"

	"github.com/sincore/aggregator/internal/domain"
)

// Routes is the ordered collection of registered trading routes. Indices are
// dense, assigned at registration, and never reused; a route is deactivated
// rather than deleted.
type Routes struct {
	mu     sync.RWMutex
	routes []domain.TradingRoute
}

// NewRoutes creates an empty route registry.
func NewRoutes() *Routes {
	return &Routes{}
}

// Add registers a new route and returns its index.
func (r *Routes) Add(name string, adapter domain.RouteAdapter) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	index := len(r.routes)
	r.routes = append(r.routes, domain.TradingRoute{
		Index:   index,
		Name:    name,
		Adapter: adapter,
		Active:  true,
	})
	return index
}

// Resolve returns the route at index. It fails with ErrInvalidRouteIndex when
// the index is out of range or the route has been deactivated.
func (r *Routes) Resolve(index int) (domain.TradingRoute, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if index < 0 || index >= len(r.routes) {
		return domain.TradingRoute{}, fmt.Errorf("registry: route %d: %w", index, domain.ErrInvalidRouteIndex)
	}
	route := r.routes[index]
	if !route.Active {
		return domain.TradingRoute{}, fmt.Errorf("registry: route %d (%s) disabled: %w", index, route.Name, domain.ErrInvalidRouteIndex)
	}
	return route, nil
}

// SetActive enables or disables the route at index.
func (r *Routes) SetActive(index int, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if index < 0 || index >= len(r.routes) {
		return fmt.Errorf("registry: route %d: %w", index, domain.ErrInvalidRouteIndex)
	}
	r.routes[index].Active = active
	return nil
}

// Count returns the number of registered routes, active or not.
func (r *Routes) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.routes)
}
