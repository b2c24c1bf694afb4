// Package guard decides whether a navigation may proceed based on the cached
// session and the route's required roles.
package guard

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/fernando2601/Dental360-APIC--sub004/internal/models"
	"github.com/fernando2601/Dental360-APIC--sub004/pkg/logger"
	"github.com/fernando2601/Dental360-APIC--sub004/pkg/sessioncache"
)

var log = logger.Named("guard")

// State is the outcome of one navigation check.
type State int

const (
	Unchecked State = iota
	Authenticated
	Unauthenticated
	Forbidden
)

func (s State) String() string {
	switch s {
	case Authenticated:
		return "authenticated"
	case Unauthenticated:
		return "unauthenticated"
	case Forbidden:
		return "forbidden"
	}
	return "unchecked"
}

// Authenticator is the server round trip the guard depends on. Errors from the
// models taxonomy are definitive; anything else is treated as transient.
type Authenticator interface {
	Validate(ctx context.Context, accessToken string) (sessioncache.Identity, error)
	Refresh(ctx context.Context, refreshToken string) (sessioncache.Entry, error)
}

// Config holds redirect targets and the per-call timeout.
type Config struct {
	LoginPath        string
	AccessDeniedPath string
	ReturnParam      string
	Timeout          time.Duration
}

// DefaultConfig returns the clinic front end's paths and a 5s timeout.
func DefaultConfig() Config {
	return Config{
		LoginPath:        "/login",
		AccessDeniedPath: "/access-denied",
		ReturnParam:      "returnTo",
		Timeout:          5 * time.Second,
	}
}

// Decision is the result of Check. Redirect is empty when navigation may proceed.
type Decision struct {
	State    State
	Redirect string
	Identity sessioncache.Identity
	Public   bool
	Err      error
}

// Allowed reports whether navigation may proceed.
func (d Decision) Allowed() bool {
	return d.State == Authenticated || d.Public
}

// Guard serialises navigation checks against one session cache.
type Guard struct {
	mu    sync.Mutex
	cache *sessioncache.Cache
	auth  Authenticator
	cfg   Config
}

func New(cache *sessioncache.Cache, auth Authenticator, cfg Config) *Guard {
	def := DefaultConfig()
	if cfg.LoginPath == "" {
		cfg.LoginPath = def.LoginPath
	}
	if cfg.AccessDeniedPath == "" {
		cfg.AccessDeniedPath = def.AccessDeniedPath
	}
	if cfg.ReturnParam == "" {
		cfg.ReturnParam = def.ReturnParam
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &Guard{cache: cache, auth: auth, cfg: cfg}
}

// Check decides a navigation to location, which resolves to route. On an
// expired access token it refreshes exactly once.
func (g *Guard) Check(ctx context.Context, route Route, location string) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	if route.Public {
		return Decision{State: Unchecked, Public: true}
	}
	entry, ok := g.cache.Get()
	if !ok {
		return g.unauthenticated(location, models.ErrTokenNotFound)
	}

	id, err := g.validate(ctx, entry.AccessToken)
	if errors.Is(err, models.ErrTokenExpired) {
		var next sessioncache.Entry
		next, err = g.refresh(ctx, entry.RefreshToken)
		if err == nil {
			if !g.cache.SetIf(entry.AccessToken, next.Session, next.Identity) {
				return g.unauthenticated(location, models.ErrTokenNotFound)
			}
			id = next.Identity
		}
	}
	if err != nil {
		if models.ErrorCode(err) != "" {
			g.cache.ClearIf(entry.AccessToken)
		} else {
			log.Warnf("session check for %s failed, keeping cached session: %v", location, err)
		}
		return g.unauthenticated(location, err)
	}
	return g.authorize(id, route)
}

func (g *Guard) validate(ctx context.Context, access string) (sessioncache.Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()
	return g.auth.Validate(ctx, access)
}

func (g *Guard) refresh(ctx context.Context, refresh string) (sessioncache.Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()
	return g.auth.Refresh(ctx, refresh)
}

func (g *Guard) authorize(id sessioncache.Identity, route Route) Decision {
	d := Decision{Identity: id}
	switch {
	case !id.Role.Valid():
		d.State = Forbidden
		d.Err = fmt.Errorf("%w: %q", models.ErrUnknownRole, id.Role)
		log.Errorf("identity %d carries unrecognised role %q", id.ID, id.Role)
	case !models.RoleIn(id.Role, route.Roles):
		d.State = Forbidden
		d.Err = models.ErrForbidden
	default:
		d.State = Authenticated
		return d
	}
	d.Redirect = g.cfg.AccessDeniedPath
	return d
}

func (g *Guard) unauthenticated(location string, err error) Decision {
	return Decision{State: Unauthenticated, Redirect: g.LoginRedirect(location), Err: err}
}

// LoginRedirect builds the login URL carrying location as the return target.
func (g *Guard) LoginRedirect(location string) string {
	if location == "" {
		return g.cfg.LoginPath
	}
	return g.cfg.LoginPath + "?" + url.Values{g.cfg.ReturnParam: {location}}.Encode()
}

// ReturnTarget extracts the post-login destination from a login URL's query,
// falling back when it is missing or not a local path.
func (g *Guard) ReturnTarget(query url.Values, fallback string) string {
	return ReturnLocation(query.Get(g.cfg.ReturnParam), fallback)
}
