package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/visionboost/portal/internal/api"
	"github.com/visionboost/portal/internal/shared"
)

// Backend is the subset of the API client the session service needs.
type Backend interface {
	Login(ctx context.Context, creds api.Credentials) (api.AuthResult, error)
	Register(ctx context.Context, reg api.Registration) (api.AuthResult, error)
	Logout(ctx context.Context, token string) error
	CurrentUser(ctx context.Context, token string) (api.User, error)
}

// ClientInfo describes the browser behind a sign-in, for the audit trail.
type ClientInfo struct {
	IP        string
	UserAgent string
}

// ErrNoCredential is returned when the backend accepted a sign-in but issued no token.
var ErrNoCredential = errors.New("auth: backend returned no credential")

// Options tunes a Service.
type Options struct {
	// Revalidate bounds how long a cached principal is trusted before the
	// backend is asked again.
	Revalidate time.Duration
	Recorder   Recorder
	Logger     *slog.Logger
	Now        func() time.Time
}

// Service is the single writer of the session credential and cached user.
type Service struct {
	backend    Backend
	sessions   *shared.SessionManager
	recorder   Recorder
	revalidate time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// NewService constructs a Service.
func NewService(backend Backend, sessions *shared.SessionManager, opts Options) *Service {
	if opts.Recorder == nil {
		opts.Recorder = NopRecorder{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Revalidate <= 0 {
		opts.Revalidate = 5 * time.Minute
	}
	return &Service{
		backend:    backend,
		sessions:   sessions,
		recorder:   opts.Recorder,
		revalidate: opts.Revalidate,
		logger:     opts.Logger,
		now:        opts.Now,
	}
}

// Bootstrap resolves the state of sess. A missing, expired or rejected
// credential yields Unauthenticated with the credential cleared.
func (s *Service) Bootstrap(ctx context.Context, sess *shared.Session) State {
	return s.resolve(ctx, sess, false)
}

// Refresh forces revalidation of the cached user against the backend.
func (s *Service) Refresh(ctx context.Context, sess *shared.Session) State {
	return s.resolve(ctx, sess, true)
}

func (s *Service) resolve(ctx context.Context, sess *shared.Session, force bool) State {
	credential := sess.Credential()
	if credential == "" {
		return anonymousState()
	}
	now := s.now()
	if credentialExpired(credential, now) {
		s.logger.Info("stored credential expired", slog.String("session", sess.ID))
		s.sessions.ClearCredential(sess)
		return anonymousState()
	}
	if !force {
		if user, ok := s.cachedUser(sess, now); ok {
			return authenticatedState(user)
		}
	}
	user, err := s.backend.CurrentUser(ctx, credential)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return anonymousState()
		}
		s.logger.Warn("credential validation failed", slog.String("session", sess.ID), slog.Any("error", err))
		s.sessions.ClearCredential(sess)
		return anonymousState()
	}
	principal, err := json.Marshal(user)
	if err != nil {
		s.logger.Error("encode principal", slog.Any("error", err))
		return authenticatedState(user)
	}
	s.sessions.TouchPrincipal(sess, principal, now)
	return authenticatedState(user)
}

func (s *Service) cachedUser(sess *shared.Session, now time.Time) (api.User, bool) {
	raw, validatedAt := sess.Principal()
	if len(raw) == 0 || validatedAt.IsZero() || now.Sub(validatedAt) >= s.revalidate {
		return api.User{}, false
	}
	var user api.User
	if err := json.Unmarshal(raw, &user); err != nil {
		return api.User{}, false
	}
	return user, true
}

// Login exchanges credentials for a token and binds it to sess. On failure
// sess keeps no credential and the error is returned for display.
func (s *Service) Login(ctx context.Context, sess *shared.Session, creds api.Credentials, info ClientInfo) (State, error) {
	result, err := s.backend.Login(ctx, creds)
	if err != nil {
		s.sessions.ClearCredential(sess)
		return anonymousState(), fmt.Errorf("auth: login: %w", err)
	}
	return s.bind(ctx, sess, result, info)
}

// Register creates an account. Backends that answer without a token get a
// follow-up login with the same credentials.
func (s *Service) Register(ctx context.Context, sess *shared.Session, reg api.Registration, info ClientInfo) (State, error) {
	result, err := s.backend.Register(ctx, reg)
	if err != nil {
		return anonymousState(), fmt.Errorf("auth: register: %w", err)
	}
	if result.Credential() == "" {
		return s.Login(ctx, sess, api.Credentials{Email: reg.Email, Password: reg.Password}, info)
	}
	return s.bind(ctx, sess, result, info)
}

func (s *Service) bind(ctx context.Context, sess *shared.Session, result api.AuthResult, info ClientInfo) (State, error) {
	credential := result.Credential()
	if credential == "" {
		s.sessions.ClearCredential(sess)
		return anonymousState(), ErrNoCredential
	}
	var user api.User
	if result.User != nil {
		user = *result.User
	} else {
		fetched, err := s.backend.CurrentUser(ctx, credential)
		if err != nil {
			s.sessions.ClearCredential(sess)
			return anonymousState(), fmt.Errorf("auth: resolve user: %w", err)
		}
		user = fetched
	}
	principal, err := json.Marshal(user)
	if err != nil {
		return anonymousState(), fmt.Errorf("auth: encode principal: %w", err)
	}
	now := s.now()
	s.sessions.BindCredential(sess, credential, strconv.FormatInt(user.ID, 10), principal, now)

	if err := s.recorder.RecordLogin(ctx, sess.ID, user.ID, now.Add(s.sessions.TTL()), info.IP, info.UserAgent); err != nil {
		s.logger.Warn("record login", slog.Any("error", err))
	}
	return authenticatedState(user), nil
}

// Logout notifies the backend on a best-effort basis and always invalidates
// the local session.
func (s *Service) Logout(ctx context.Context, sess *shared.Session) State {
	if sess == nil {
		return anonymousState()
	}
	if credential := sess.Credential(); credential != "" {
		if err := s.backend.Logout(ctx, credential); err != nil {
			s.logger.Warn("backend logout failed", slog.Any("error", err))
		}
	}
	if err := s.recorder.RecordLogout(ctx, sess.ID); err != nil {
		s.logger.Warn("record logout", slog.Any("error", err))
	}
	s.sessions.Destroy(sess)
	return anonymousState()
}

// InvalidateCredential clears token from the session carried by ctx. It is
// the API client's reaction to a 401. The fetches of one page share the
// session, so only the first caller holding token clears it. The stored copy
// is cleared at once so the next request sees it even if this one fails;
// other stored values are left as they are.
func (s *Service) InvalidateCredential(ctx context.Context, token string) {
	sess := shared.SessionFromContext(ctx)
	if !s.sessions.RevokeCredential(sess, token) {
		return
	}
	s.logger.Info("credential rejected by backend", slog.String("session", sess.ID))
	if err := s.sessions.ClearStoredCredential(context.WithoutCancel(ctx), sess.ID, token); err != nil {
		s.logger.Warn("persist invalidated session", slog.Any("error", err))
	}
}

var _ api.Invalidator = (*Service)(nil)
