package guard

import (
	"net/url"
	"sort"
	"strings"

	"github.com/fernando2601/Dental360-APIC--sub004/internal/models"
)

// Route is a protected destination. Empty Roles means any authenticated identity.
type Route struct {
	Pattern string
	Roles   []models.Role
	Public  bool
}

// RouteTable resolves paths to routes by longest segment-prefix match.
type RouteTable struct {
	routes []Route
}

func NewRouteTable(routes ...Route) *RouteTable {
	sorted := append([]Route(nil), routes...)
	sort.SliceStable(sorted, func(i, j int) bool { return len(sorted[i].Pattern) > len(sorted[j].Pattern) })
	return &RouteTable{routes: sorted}
}

// Lookup returns the route for path. Unknown paths require authentication.
func (t *RouteTable) Lookup(path string) Route {
	for _, r := range t.routes {
		if matches(r.Pattern, path) {
			return r
		}
	}
	return Route{Pattern: path}
}

func matches(pattern, path string) bool {
	if pattern == "/" {
		return path == "/" || path == ""
	}
	return path == pattern || strings.HasPrefix(path, pattern+"/")
}

// DefaultRoutes is the clinic front end's route table.
func DefaultRoutes() *RouteTable {
	back := []models.Role{models.RoleAdmin, models.RoleManager}
	return NewRouteTable(
		Route{Pattern: "/login", Public: true},
		Route{Pattern: "/access-denied", Public: true},
		Route{Pattern: "/"},
		Route{Pattern: "/dashboard"},
		Route{Pattern: "/agenda"},
		Route{Pattern: "/clients", Roles: []models.Role{models.RoleAdmin, models.RoleManager, models.RoleStaff}},
		Route{Pattern: "/inventory", Roles: back},
		Route{Pattern: "/finance", Roles: back},
		Route{Pattern: "/admin", Roles: []models.Role{models.RoleAdmin}},
	)
}

// ReturnLocation accepts raw only when it is a local absolute path, so a
// crafted return parameter cannot redirect off-site.
func ReturnLocation(raw, fallback string) string {
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.Contains(raw, "\\") {
		return fallback
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" || u.User != nil {
		return fallback
	}
	return raw
}
