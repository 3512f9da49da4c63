// Package social links third-party social accounts through the backend's
// OAuth popup flow. A link is recorded when the popup opens, completed by an
// explicit callback and confirmed by a bounded number of verification polls.
package social

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/visionboost/portal/internal/api"
	"github.com/visionboost/portal/internal/shared"
)

// Platforms the backend can link.
var Platforms = []string{"facebook", "instagram", "linkedin", "twitter", "tiktok"}

// ErrUnknownPlatform rejects platforms outside Platforms.
var ErrUnknownPlatform = errors.New("social: unknown platform")

// ErrNotLinked is returned by Verify while the account has not shown up yet.
var ErrNotLinked = errors.New("social: account not linked yet")

// Backend lists the social-account calls the service issues.
type Backend interface {
	SocialAccounts(ctx context.Context, token string) ([]api.SocialAccount, error)
	ConnectSocialAccount(ctx context.Context, token, platform, returnURL string) (api.ConnectGrant, error)
	SyncSocialAccount(ctx context.Context, token string, id int64) error
	DisconnectSocialAccount(ctx context.Context, token string, id int64) error
}

// Enqueuer schedules a verification of link id after delay.
type Enqueuer interface {
	EnqueueLinkVerify(ctx context.Context, linkID string, delay time.Duration) error
}

// Config tunes a Service.
type Config struct {
	// PublicURL is the externally reachable portal origin used to build the
	// completion callback.
	PublicURL   string
	VerifyDelay time.Duration
	Logger      *slog.Logger
}

// Service runs the link lifecycle.
type Service struct {
	backend  Backend
	store    *Store
	enqueuer Enqueuer
	sessions *shared.SessionManager
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs a Service.
func NewService(backend Backend, store *Store, enqueuer Enqueuer, sessions *shared.SessionManager, cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.VerifyDelay <= 0 {
		cfg.VerifyDelay = 5 * time.Second
	}
	cfg.PublicURL = strings.TrimRight(cfg.PublicURL, "/")
	return &Service{
		backend:  backend,
		store:    store,
		enqueuer: enqueuer,
		sessions: sessions,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// KnownPlatform reports whether platform can be linked.
func KnownPlatform(platform string) bool {
	return slices.Contains(Platforms, platform)
}

// Start asks the backend for an authorization URL and records a pending link
// owned by sess.
func (s *Service) Start(ctx context.Context, sess *shared.Session, platform string) (Link, error) {
	platform = strings.ToLower(strings.TrimSpace(platform))
	if !KnownPlatform(platform) {
		return Link{}, ErrUnknownPlatform
	}
	token := sess.Credential()

	accounts, err := s.backend.SocialAccounts(ctx, token)
	if err != nil {
		return Link{}, fmt.Errorf("social: baseline accounts: %w", err)
	}

	link := Link{
		ID:        uuid.NewString(),
		Platform:  platform,
		SessionID: sess.ID,
		Baseline:  connectedIDs(accounts, platform),
		Status:    StatusPending,
		CreatedAt: s.now().UTC(),
	}
	grant, err := s.backend.ConnectSocialAccount(ctx, token, platform, s.completionURL(link.ID))
	if err != nil {
		return Link{}, fmt.Errorf("social: connect %s: %w", platform, err)
	}
	link.AuthorizationURL = grant.URL()
	if link.AuthorizationURL == "" {
		return Link{}, fmt.Errorf("social: connect %s: backend returned no authorization url", platform)
	}
	if err := s.store.Save(ctx, link); err != nil {
		return Link{}, fmt.Errorf("social: save link: %w", err)
	}
	if s.enqueuer != nil {
		if err := s.enqueuer.EnqueueLinkVerify(ctx, link.ID, s.cfg.VerifyDelay); err != nil {
			s.logger.Warn("enqueue link verification", slog.String("link", link.ID), slog.Any("error", err))
		}
	}
	s.logger.Info("social link started", slog.String("link", link.ID), slog.String("platform", platform))
	return link, nil
}

func (s *Service) completionURL(id string) string {
	return s.cfg.PublicURL + "/oauth/complete?link=" + url.QueryEscape(id)
}

// Complete records the explicit completion signal from the popup and
// verifies the link right away.
func (s *Service) Complete(ctx context.Context, id string) (Link, error) {
	link, _, err := s.store.Update(ctx, id, func(l *Link) { l.Signalled = true })
	if err != nil {
		return Link{}, err
	}
	if link.Status.Done() {
		return link, nil
	}
	verified, err := s.Verify(ctx, id)
	if errors.Is(err, ErrNotLinked) {
		// The backend may still be processing the provider callback; the
		// queued verification keeps polling.
		if s.enqueuer != nil {
			if qerr := s.enqueuer.EnqueueLinkVerify(ctx, id, s.cfg.VerifyDelay); qerr != nil {
				s.logger.Warn("enqueue link verification", slog.String("link", id), slog.Any("error", qerr))
			}
		}
		return verified, nil
	}
	return verified, err
}

// Status returns link id if it belongs to sess.
func (s *Service) Status(ctx context.Context, sess *shared.Session, id string) (Link, error) {
	link, err := s.store.Get(ctx, id)
	if err != nil {
		return Link{}, err
	}
	if sess == nil || link.SessionID != sess.ID {
		return Link{}, ErrLinkNotFound
	}
	return link, nil
}

// Await is Status that waits up to timeout for a terminal status.
func (s *Service) Await(ctx context.Context, sess *shared.Session, id string, timeout time.Duration) (Link, error) {
	if _, err := s.Status(ctx, sess, id); err != nil {
		return Link{}, err
	}
	return s.store.Wait(ctx, id, timeout)
}

// Verify checks once whether the platform account appeared. It returns
// ErrNotLinked while the link is still pending so callers can poll again.
// The completion callback and the queued job may verify the same link at
// once; whichever settles it first wins and the other sees the settled link.
func (s *Service) Verify(ctx context.Context, id string) (Link, error) {
	link, err := s.store.Get(ctx, id)
	if err != nil {
		return Link{}, err
	}
	if link.Status.Done() {
		return link, nil
	}

	sess, err := s.sessions.LoadByID(ctx, link.SessionID)
	if errors.Is(err, shared.ErrSessionNotFound) {
		return s.finish(ctx, link.ID, StatusFailed, 0, "session ended")
	}
	if err != nil {
		return link, err
	}
	token := sess.Credential()
	if token == "" {
		return s.finish(ctx, link.ID, StatusFailed, 0, "signed out")
	}

	// The session rides in ctx so a 401 clears it like any page request would.
	accounts, err := s.backend.SocialAccounts(shared.ContextWithSession(ctx, sess), token)
	if err != nil {
		if api.IsUnauthorized(err) {
			return s.finish(ctx, link.ID, StatusFailed, 0, "credential rejected")
		}
		return link, err
	}
	if account, ok := newConnection(accounts, link); ok {
		return s.finish(ctx, link.ID, StatusConnected, account.ID, "")
	}

	link, _, err = s.store.Update(ctx, link.ID, func(l *Link) { l.Attempts++ })
	if err != nil {
		return link, err
	}
	if link.Status.Done() {
		return link, nil
	}
	return link, ErrNotLinked
}

// Fail marks a pending link failed, used when verification gives up.
func (s *Service) Fail(ctx context.Context, id, reason string) (Link, error) {
	return s.finish(ctx, id, StatusFailed, 0, reason)
}

// finish settles a pending link. A link settled by someone else meanwhile is
// returned as stored and not announced again.
func (s *Service) finish(ctx context.Context, id string, status Status, accountID int64, reason string) (Link, error) {
	now := s.now().UTC()
	link, changed, err := s.store.Update(ctx, id, func(l *Link) {
		l.Status = status
		l.AccountID = accountID
		l.Reason = reason
		l.CompletedAt = &now
	})
	if err != nil || !changed {
		return link, err
	}
	if err := s.store.Publish(ctx, link); err != nil {
		s.logger.Warn("publish link status", slog.String("link", link.ID), slog.Any("error", err))
	}
	s.logger.Info("social link finished",
		slog.String("link", link.ID),
		slog.String("platform", link.Platform),
		slog.String("status", string(status)),
		slog.String("reason", reason))
	return link, nil
}

// Sync asks the backend to refresh account id.
func (s *Service) Sync(ctx context.Context, sess *shared.Session, id int64) error {
	return s.backend.SyncSocialAccount(ctx, sess.Credential(), id)
}

// Disconnect unlinks account id.
func (s *Service) Disconnect(ctx context.Context, sess *shared.Session, id int64) error {
	return s.backend.DisconnectSocialAccount(ctx, sess.Credential(), id)
}

// Accounts lists the linked accounts for the accounts page.
func (s *Service) Accounts(ctx context.Context, sess *shared.Session) ([]api.SocialAccount, error) {
	return s.backend.SocialAccounts(ctx, sess.Credential())
}

func connectedIDs(accounts []api.SocialAccount, platform string) []int64 {
	var ids []int64
	for _, a := range accounts {
		if strings.EqualFold(a.Platform, platform) && a.Connected() {
			ids = append(ids, a.ID)
		}
	}
	return ids
}

// newConnection finds a connected account on the link's platform that was
// not connected when the link started.
func newConnection(accounts []api.SocialAccount, link Link) (api.SocialAccount, bool) {
	for _, a := range accounts {
		if !strings.EqualFold(a.Platform, link.Platform) || !a.Connected() {
			continue
		}
		if !slices.Contains(link.Baseline, a.ID) {
			return a, true
		}
	}
	return api.SocialAccount{}, false
}
