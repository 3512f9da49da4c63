package auth

import (
	"context"

	"github.com/visionboost/portal/internal/api"
	"github.com/visionboost/portal/internal/nav"
	"github.com/visionboost/portal/internal/services"
)

// Phase is the position of a session in its lifecycle.
type Phase int

// Session phases.
const (
	PhaseUninitialized Phase = iota
	PhaseLoading
	PhaseAuthenticated
	PhaseUnauthenticated
)

func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseAuthenticated:
		return "authenticated"
	case PhaseUnauthenticated:
		return "unauthenticated"
	default:
		return "uninitialized"
	}
}

// State is the read-only snapshot handlers receive. IsAuthenticated implies
// User is set; Loading and IsAuthenticated are never both true.
type State struct {
	Phase           Phase
	User            *api.User
	IsAuthenticated bool
	Loading         bool
}

func loadingState() State {
	return State{Phase: PhaseLoading, Loading: true}
}

func anonymousState() State {
	return State{Phase: PhaseUnauthenticated}
}

func authenticatedState(user api.User) State {
	return State{Phase: PhaseAuthenticated, User: &user, IsAuthenticated: true}
}

// Role returns the normalised role, or "" for anonymous visitors.
func (s State) Role() string {
	if s.User == nil {
		return ""
	}
	return nav.NormaliseRole(s.User.Role)
}

// ActiveServices returns the known services on the account.
func (s State) ActiveServices() []services.ID {
	if s.User == nil {
		return nil
	}
	return services.Parse(s.User.ActiveServices)
}

type stateContextKey struct{}

// ContextWithState stores the session state in ctx.
func ContextWithState(ctx context.Context, state State) context.Context {
	return context.WithValue(ctx, stateContextKey{}, state)
}

// StateFromContext returns the state stored by the middleware. A context the
// middleware never saw yields an uninitialized, unauthenticated state.
func StateFromContext(ctx context.Context) State {
	state, _ := ctx.Value(stateContextKey{}).(State)
	return state
}

// Viewer adapts the request state for the route guard.
func Viewer(ctx context.Context) nav.Viewer {
	state := StateFromContext(ctx)
	return nav.Viewer{
		Loading:       state.Loading,
		Authenticated: state.IsAuthenticated,
		Role:          state.Role(),
	}
}
