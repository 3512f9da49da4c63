package social

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visionboost/portal/internal/api"
	"github.com/visionboost/portal/internal/shared"
)

type fakeBackend struct {
	mu        sync.Mutex
	accounts  []api.SocialAccount
	listErr   error
	grant     api.ConnectGrant
	returnURL string
	synced    []int64
}

func (f *fakeBackend) SocialAccounts(context.Context, string) ([]api.SocialAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]api.SocialAccount(nil), f.accounts...), f.listErr
}

func (f *fakeBackend) ConnectSocialAccount(_ context.Context, _, _, returnURL string) (api.ConnectGrant, error) {
	f.returnURL = returnURL
	return f.grant, nil
}

func (f *fakeBackend) SyncSocialAccount(_ context.Context, _ string, id int64) error {
	f.synced = append(f.synced, id)
	return nil
}

func (f *fakeBackend) DisconnectSocialAccount(context.Context, string, int64) error { return nil }

func (f *fakeBackend) link(account api.SocialAccount) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts = append(f.accounts, account)
}

// gatedBackend holds the next armed SocialAccounts call after it has read the
// account list, until release is closed.
type gatedBackend struct {
	*fakeBackend
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func newGatedBackend(inner *fakeBackend) *gatedBackend {
	return &gatedBackend{fakeBackend: inner, entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedBackend) SocialAccounts(ctx context.Context, token string) ([]api.SocialAccount, error) {
	accounts, err := g.fakeBackend.SocialAccounts(ctx, token)
	if g.armed.CompareAndSwap(true, false) {
		close(g.entered)
		<-g.release
	}
	return accounts, err
}

type fakeEnqueuer struct {
	ids []string
}

func (f *fakeEnqueuer) EnqueueLinkVerify(_ context.Context, id string, _ time.Duration) error {
	f.ids = append(f.ids, id)
	return nil
}

type fixture struct {
	backend  *fakeBackend
	queue    *fakeEnqueuer
	sessions *shared.SessionManager
	store    *Store
	service  *Service
	mr       *miniredis.Miniredis
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	f := &fixture{
		backend: &fakeBackend{
			accounts: []api.SocialAccount{{ID: 1, Platform: "facebook", IsConnected: true}},
			grant:    api.ConnectGrant{AuthURL: "https://provider.example/authorize?state=x"},
		},
		queue:    &fakeEnqueuer{},
		sessions: shared.NewSessionManager(client, "vb_session", "secret", time.Hour, false),
		store:    NewStore(client, time.Minute),
		mr:       mr,
	}
	f.service = NewService(f.backend, f.store, f.queue, f.sessions, Config{PublicURL: "https://portal.example/"})
	return f
}

func (f *fixture) session(t *testing.T, credential string) *shared.Session {
	t.Helper()
	sess, err := f.sessions.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	if credential != "" {
		f.sessions.BindCredential(sess, credential, "3", nil, time.Now())
	}
	require.NoError(t, f.sessions.Save(context.Background(), sess))
	return sess
}

func TestStartRecordsPendingLink(t *testing.T) {
	f := newFixture(t)
	sess := f.session(t, "tok")

	link, err := f.service.Start(context.Background(), sess, "Facebook")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, link.Status)
	assert.Equal(t, "facebook", link.Platform)
	assert.Equal(t, []int64{1}, link.Baseline)
	assert.Equal(t, "https://provider.example/authorize?state=x", link.AuthorizationURL)
	assert.Equal(t, "https://portal.example/oauth/complete?link="+link.ID, f.backend.returnURL)
	assert.Equal(t, []string{link.ID}, f.queue.ids)

	stored, err := f.store.Get(context.Background(), link.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, stored.SessionID)
}

func TestStartRejectsUnknownPlatform(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Start(context.Background(), f.session(t, "tok"), "myspace")
	assert.ErrorIs(t, err, ErrUnknownPlatform)
}

func TestVerifyWaitsForANewAccount(t *testing.T) {
	f := newFixture(t)
	sess := f.session(t, "tok")
	link, err := f.service.Start(context.Background(), sess, "facebook")
	require.NoError(t, err)

	// The pre-existing facebook account does not count.
	pending, err := f.service.Verify(context.Background(), link.ID)
	require.ErrorIs(t, err, ErrNotLinked)
	assert.Equal(t, 1, pending.Attempts)

	f.backend.link(api.SocialAccount{ID: 2, Platform: "facebook", Status: "connected"})
	done, err := f.service.Verify(context.Background(), link.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConnected, done.Status)
	assert.Equal(t, int64(2), done.AccountID)
	assert.NotNil(t, done.CompletedAt)

	// Terminal links are left alone.
	again, err := f.service.Verify(context.Background(), link.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConnected, again.Status)
}

func TestVerifyFailsWhenSessionSignedOut(t *testing.T) {
	f := newFixture(t)
	sess := f.session(t, "tok")
	link, err := f.service.Start(context.Background(), sess, "instagram")
	require.NoError(t, err)

	f.sessions.ClearCredential(sess)
	require.NoError(t, f.sessions.Save(context.Background(), sess))

	done, err := f.service.Verify(context.Background(), link.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, done.Status)
	assert.Equal(t, "signed out", done.Reason)
}

func TestVerifyFailsOnRejectedCredential(t *testing.T) {
	f := newFixture(t)
	link, err := f.service.Start(context.Background(), f.session(t, "tok"), "linkedin")
	require.NoError(t, err)

	f.backend.listErr = &api.HTTPError{Status: http.StatusUnauthorized}
	done, err := f.service.Verify(context.Background(), link.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, done.Status)
}

func TestVerifyTransientErrorKeepsPending(t *testing.T) {
	f := newFixture(t)
	link, err := f.service.Start(context.Background(), f.session(t, "tok"), "tiktok")
	require.NoError(t, err)

	boom := &api.TransportError{Err: errors.New("reset")}
	f.backend.listErr = boom
	pending, err := f.service.Verify(context.Background(), link.ID)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StatusPending, pending.Status)
}

func TestCompleteSignalsAndRequeuesWhilePending(t *testing.T) {
	f := newFixture(t)
	link, err := f.service.Start(context.Background(), f.session(t, "tok"), "twitter")
	require.NoError(t, err)

	got, err := f.service.Complete(context.Background(), link.ID)
	require.NoError(t, err)
	assert.True(t, got.Signalled)
	assert.Equal(t, StatusPending, got.Status)
	assert.Len(t, f.queue.ids, 2)

	_, err = f.service.Complete(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrLinkNotFound)
}

func TestStatusIsScopedToOwningSession(t *testing.T) {
	f := newFixture(t)
	owner := f.session(t, "tok")
	link, err := f.service.Start(context.Background(), owner, "facebook")
	require.NoError(t, err)

	_, err = f.service.Status(context.Background(), owner, link.ID)
	assert.NoError(t, err)
	_, err = f.service.Status(context.Background(), f.session(t, "other"), link.ID)
	assert.ErrorIs(t, err, ErrLinkNotFound)
}

func TestFailIsIdempotent(t *testing.T) {
	f := newFixture(t)
	link, err := f.service.Start(context.Background(), f.session(t, "tok"), "facebook")
	require.NoError(t, err)

	failed, err := f.service.Fail(context.Background(), link.ID, "timed out")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, failed.Status)

	f.backend.link(api.SocialAccount{ID: 5, Platform: "facebook", IsConnected: true})
	again, err := f.service.Fail(context.Background(), link.ID, "other")
	require.NoError(t, err)
	assert.Equal(t, "timed out", again.Reason)
}

func TestStoreSaveKeepsExpiry(t *testing.T) {
	f := newFixture(t)
	link := Link{ID: "abc", Platform: "facebook", Status: StatusPending}
	require.NoError(t, f.store.Save(context.Background(), link))

	f.mr.FastForward(40 * time.Second)
	link.Attempts = 3
	require.NoError(t, f.store.Save(context.Background(), link))
	assert.LessOrEqual(t, f.mr.TTL(linkKey("abc")), 20*time.Second)

	f.mr.FastForward(25 * time.Second)
	_, err := f.store.Get(context.Background(), "abc")
	assert.ErrorIs(t, err, ErrLinkNotFound)
}

func TestStoreWaitWakesOnTerminalStatus(t *testing.T) {
	f := newFixture(t)
	link := Link{ID: "w1", Platform: "facebook", Status: StatusPending}
	require.NoError(t, f.store.Save(context.Background(), link))

	done := make(chan Link, 1)
	go func() {
		got, err := f.store.Wait(context.Background(), "w1", 5*time.Second)
		assert.NoError(t, err)
		done <- got
	}()

	// Publish until the waiter has subscribed and seen the change.
	link.Status = StatusConnected
	require.NoError(t, f.store.Save(context.Background(), link))
	deadline := time.After(3 * time.Second)
	for {
		require.NoError(t, f.store.Publish(context.Background(), link))
		select {
		case got := <-done:
			assert.Equal(t, StatusConnected, got.Status)
			return
		case <-deadline:
			t.Fatal("waiter did not wake up")
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestStoreWaitTimesOut(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Save(context.Background(), Link{ID: "w2", Status: StatusPending}))

	start := time.Now()
	got, err := f.store.Wait(context.Background(), "w2", 100*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestVerifyRacingCompletionKeepsConnectedLink(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gate := newGatedBackend(f.backend)
	svc := NewService(gate, f.store, f.queue, f.sessions, Config{PublicURL: "https://portal.example"})

	link, err := svc.Start(ctx, f.session(t, "tok"), "facebook")
	require.NoError(t, err)

	type outcome struct {
		link Link
		err  error
	}
	job := make(chan outcome, 1)
	gate.armed.Store(true)
	go func() {
		got, err := svc.Verify(ctx, link.ID)
		job <- outcome{got, err}
	}()
	select {
	case <-gate.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("queued verification never reached the backend")
	}

	// The account shows up and the popup signals while the job still holds
	// the old account list.
	f.backend.link(api.SocialAccount{ID: 2, Platform: "facebook", IsConnected: true})
	completed, err := svc.Complete(ctx, link.ID)
	require.NoError(t, err)
	require.Equal(t, StatusConnected, completed.Status)

	close(gate.release)
	res := <-job
	require.NoError(t, res.err)
	assert.Equal(t, StatusConnected, res.link.Status)

	stored, err := f.store.Get(ctx, link.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConnected, stored.Status)
	assert.Equal(t, int64(2), stored.AccountID)
	assert.Zero(t, stored.Attempts)

	// The job's last retry must not fail a connected link.
	final, err := svc.Fail(ctx, link.ID, "account did not appear in time")
	require.NoError(t, err)
	assert.Equal(t, StatusConnected, final.Status)
	assert.Empty(t, final.Reason)
}

func TestParallelVerifyCountsEveryAttempt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	link, err := f.service.Start(ctx, f.session(t, "tok"), "linkedin")
	require.NoError(t, err)

	const runs = 5
	var wg sync.WaitGroup
	for range runs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.Verify(ctx, link.ID)
			assert.ErrorIs(t, err, ErrNotLinked)
		}()
	}
	wg.Wait()

	stored, err := f.store.Get(ctx, link.ID)
	require.NoError(t, err)
	assert.Equal(t, runs, stored.Attempts)
	assert.Equal(t, StatusPending, stored.Status)
}

func TestStoreUpdateNeverRewritesSettledLink(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Save(ctx, Link{ID: "u1", Status: StatusConnected, AccountID: 4}))

	called := false
	got, changed, err := f.store.Update(ctx, "u1", func(l *Link) {
		called = true
		l.Status = StatusPending
	})
	require.NoError(t, err)
	assert.False(t, changed)
	assert.False(t, called)
	assert.Equal(t, StatusConnected, got.Status)

	_, _, err = f.store.Update(ctx, "missing", func(*Link) {})
	assert.ErrorIs(t, err, ErrLinkNotFound)
}

func TestStoreUpdateKeepsExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Save(ctx, Link{ID: "u2", Status: StatusPending}))
	f.mr.FastForward(40 * time.Second)

	got, changed, err := f.store.Update(ctx, "u2", func(l *Link) { l.Attempts++ })
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 1, got.Attempts)
	assert.LessOrEqual(t, f.mr.TTL(linkKey("u2")), 20*time.Second)
	assert.Greater(t, f.mr.TTL(linkKey("u2")), time.Duration(0))
}
