package session

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"foodadmin/internal/model"
)

//go:generate mockgen -source ./session.go -destination=./mocks/session.go -package=mock_session

// State is the authentication state of the console.
type State int

const (
	// StateUnknown means the identity check has not completed yet. Protected
	// surfaces must not render in this state.
	StateUnknown State = iota
	StateAnonymous
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Route is a navigation signal emitted after login/logout.
type Route string

const (
	RouteHome  Route = "/"
	RouteLogin Route = "/login"
)

var (
	ErrUnresolved      = errors.New("session state not resolved yet")
	ErrUnauthenticated = errors.New("not authenticated")
)

// AuthAPI is the slice of the REST client the session uses.
type AuthAPI interface {
	Me(ctx context.Context) (*model.User, error)
	Login(ctx context.Context, email, password string) (*model.User, string, error)
	Logout(ctx context.Context) error
}

// Session resolves the staff identity once at startup and gates every
// protected operation afterwards.
type Session struct {
	api      AuthAPI
	logger   *zap.Logger
	navigate func(Route)

	mu    sync.Mutex
	state State
	user  *model.User

	resolveOnce sync.Once
}

// New creates an unresolved session. navigate may be nil when no surface
// cares about navigation signals.
func New(api AuthAPI, logger *zap.Logger, navigate func(Route)) *Session {
	if navigate == nil {
		navigate = func(Route) {}
	}
	return &Session{
		api:      api,
		logger:   logger,
		navigate: navigate,
		state:    StateUnknown,
	}
}

// Resolve performs the one-time identity check. Any failure resolves to
// Anonymous; the session never stays Unknown once Resolve returns.
func (s *Session) Resolve(ctx context.Context) {
	s.resolveOnce.Do(func() {
		user, err := s.api.Me(ctx)
		s.mu.Lock()
		defer s.mu.Unlock()
		if err != nil || user == nil {
			s.state = StateAnonymous
			s.user = nil
			if err != nil {
				s.logger.Debug("identity check failed", zap.Error(err))
			}
			return
		}
		s.state = StateAuthenticated
		s.user = user
		s.logger.Info("session resolved", zap.String("email", user.Email))
	})
}

// Login authenticates the staff user. On success the session becomes
// Authenticated and navigation to home is signalled; on failure the state is
// Anonymous and the server-provided message is in the returned error.
func (s *Session) Login(ctx context.Context, email, password string) error {
	user, message, err := s.api.Login(ctx, email, password)
	if err != nil {
		s.mu.Lock()
		s.state = StateAnonymous
		s.user = nil
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.state = StateAuthenticated
	s.user = user
	s.mu.Unlock()

	s.logger.Info("logged in", zap.String("email", email), zap.String("message", message))
	s.navigate(RouteHome)
	return nil
}

// Logout terminates the server session and unconditionally clears local
// state. A failed server call is reported but does not keep the user
// logged in.
func (s *Session) Logout(ctx context.Context) error {
	err := s.api.Logout(ctx)

	s.mu.Lock()
	s.state = StateAnonymous
	s.user = nil
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("logout request failed, local session cleared anyway", zap.Error(err))
	} else {
		s.logger.Info("logged out")
	}
	s.navigate(RouteLogin)
	return err
}

// State returns the current authentication state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// User returns the authenticated staff user, or nil.
func (s *Session) User() *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// Require gates protected operations: it fails while the state is Unknown
// (avoiding a flash of protected content before Resolve completes) and
// while Anonymous.
func (s *Session) Require() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateAuthenticated:
		return nil
	case StateUnknown:
		return ErrUnresolved
	default:
		return ErrUnauthenticated
	}
}
