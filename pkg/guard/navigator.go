package guard

import (
	"context"
	"errors"
	"net/url"
	"sync/atomic"
)

// ErrNavigationSuperseded is returned for a navigation whose result arrived
// after a newer navigation had started.
var ErrNavigationSuperseded = errors.New("navigation superseded")

// Navigator runs guard checks for successive navigations. Only the latest
// navigation's decision is delivered; older ones return ErrNavigationSuperseded.
// Cache updates made by a superseded check (a completed refresh) are kept.
type Navigator struct {
	guard  *Guard
	routes *RouteTable
	gen    atomic.Uint64
}

func NewNavigator(g *Guard, routes *RouteTable) *Navigator {
	if routes == nil {
		routes = DefaultRoutes()
	}
	return &Navigator{guard: g, routes: routes}
}

// Navigate checks location, a path with optional query.
func (n *Navigator) Navigate(ctx context.Context, location string) (Decision, error) {
	gen := n.gen.Add(1)
	path := location
	if u, err := url.Parse(location); err == nil {
		path = u.Path
	}
	d := n.guard.Check(ctx, n.routes.Lookup(path), location)
	if n.gen.Load() != gen {
		return Decision{State: Unchecked}, ErrNavigationSuperseded
	}
	return d, nil
}
