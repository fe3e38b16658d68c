// Package routeguard decides whether navigation has to be redirected based on
// the session and the zone of the current route.
package routeguard

import (
	"context"
	"sync"

	"github.com/mkrupp/nutrifit-client/internal/infra/logging"
)

// Zone classifies routes into the unauthenticated and the authenticated part of the app.
type Zone int

const (
	ZoneApp Zone = iota
	ZoneAuth
)

func (z Zone) String() string {
	if z == ZoneAuth {
		return "auth"
	}

	return "app"
}

// Action is the navigation decided by the guard.
type Action int

const (
	ActionNone Action = iota
	ActionRedirectToApp
	ActionRedirectToAuth
)

func (a Action) String() string {
	switch a {
	case ActionRedirectToApp:
		return "redirect-to-app"
	case ActionRedirectToAuth:
		return "redirect-to-auth"
	case ActionNone:
	}

	return "none"
}

// Landing routes of both zones.
const (
	RouteApp  = "/(tabs)/workouts"
	RouteAuth = "/(auth)/login"

	authSegment = "(auth)"
)

// Decide returns the navigation action for the given inputs. While the session
// is loading no decision is made.
func Decide(sessionPresent, isLoading bool, zone Zone) Action {
	switch {
	case isLoading:
		return ActionNone
	case sessionPresent && zone == ZoneAuth:
		return ActionRedirectToApp
	case !sessionPresent && zone == ZoneApp:
		return ActionRedirectToAuth
	default:
		return ActionNone
	}
}

// ZoneForSegment maps the first route segment to its zone.
func ZoneForSegment(segment string) Zone {
	if segment == authSegment {
		return ZoneAuth
	}

	return ZoneApp
}

// Navigator replaces the current route.
type Navigator interface {
	Replace(ctx context.Context, route string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(ctx context.Context, route string)

// Replace implements Navigator.
func (f NavigatorFunc) Replace(ctx context.Context, route string) {
	f(ctx, route)
}

// Guard re-evaluates Decide whenever one of its inputs changes and applies
// redirects through a Navigator. After a redirect the guard is in the target
// zone, so evaluating again yields ActionNone.
type Guard struct {
	nav Navigator
	log logging.Logger

	mu             sync.Mutex
	sessionPresent bool
	isLoading      bool
	zone           Zone
}

// NewGuard creates a Guard starting in the loading state in zone.
func NewGuard(nav Navigator, zone Zone) *Guard {
	return &Guard{
		nav:       nav,
		log:       logging.GetLogger("routeguard"),
		isLoading: true,
		zone:      zone,
	}
}

// SetSession updates the session inputs and re-evaluates.
func (g *Guard) SetSession(ctx context.Context, present, loading bool) Action {
	g.mu.Lock()
	g.sessionPresent, g.isLoading = present, loading
	g.mu.Unlock()

	return g.Evaluate(ctx)
}

// SetZone updates the current zone, typically after the user navigated, and re-evaluates.
func (g *Guard) SetZone(ctx context.Context, zone Zone) Action {
	g.mu.Lock()
	g.zone = zone
	g.mu.Unlock()

	return g.Evaluate(ctx)
}

// Zone returns the zone the guard believes the user is in.
func (g *Guard) Zone() Zone {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.zone
}

// Evaluate decides on the current inputs and applies a redirect if needed.
func (g *Guard) Evaluate(ctx context.Context) Action {
	g.mu.Lock()

	action := Decide(g.sessionPresent, g.isLoading, g.zone)

	var route string

	switch action {
	case ActionRedirectToApp:
		route, g.zone = RouteApp, ZoneApp
	case ActionRedirectToAuth:
		route, g.zone = RouteAuth, ZoneAuth
	case ActionNone:
	}
	g.mu.Unlock()

	if route != "" {
		g.log.DebugContext(ctx, "redirect", "action", action.String(), "route", route)
		g.nav.Replace(ctx, route)
	}

	return action
}
