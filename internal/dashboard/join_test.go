package dashboard

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visionboost/portal/internal/api"
	"github.com/visionboost/portal/internal/auth"
	"github.com/visionboost/portal/internal/shared"
)

func TestJoinKeepsSuccessesWhenOneFetchFails(t *testing.T) {
	var posts []api.ContentPost
	var accounts []api.SocialAccount
	var notes []api.Notification

	failures := Join(context.Background(), nil,
		Into("content", &posts, func(ctx context.Context) ([]api.ContentPost, error) {
			return []api.ContentPost{{ID: 1}, {ID: 2}}, nil
		}),
		Into("accounts", &accounts, func(ctx context.Context) ([]api.SocialAccount, error) {
			return nil, &api.HTTPError{Status: http.StatusInternalServerError, Message: "boom"}
		}),
		Into("notifications", &notes, func(ctx context.Context) ([]api.Notification, error) {
			return []api.Notification{{ID: 9}}, nil
		}),
	)

	require.Len(t, failures, 1)
	assert.Equal(t, "accounts", failures[0].Name)
	assert.True(t, failures.Failed("accounts"))
	assert.False(t, failures.Failed("content"))
	assert.Len(t, posts, 2)
	assert.Len(t, notes, 1)
	assert.Nil(t, accounts)
	assert.False(t, failures.Unauthorized())
	assert.Error(t, failures.Err())
}

func TestJoinDoesNotCancelSiblings(t *testing.T) {
	var finished atomic.Bool
	failures := Join(context.Background(), nil,
		Fetch{Name: "fast-fail", Run: func(ctx context.Context) error { return errors.New("nope") }},
		Fetch{Name: "slow", Run: func(ctx context.Context) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(20 * time.Millisecond):
				finished.Store(true)
				return nil
			}
		}},
	)
	assert.Len(t, failures, 1)
	assert.True(t, finished.Load())
}

func TestJoinAllSucceed(t *testing.T) {
	failures := Join(context.Background(), nil)
	assert.Empty(t, failures)
	assert.NoError(t, failures.Err())
	assert.Empty(t, failures.Messages())
}

func TestFailuresUnauthorized(t *testing.T) {
	failures := Failures{{Name: "tasks", Err: &api.HTTPError{Status: http.StatusUnauthorized}}}
	assert.True(t, failures.Unauthorized())
}

func TestJoinWithEveryFetchRejectedClearsSharedSession(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"Token expired."}`))
	}))
	t.Cleanup(server.Close)

	mr := miniredis.RunT(t)
	sessions := shared.NewSessionManager(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "vb_session", "s", time.Hour, false)
	client, err := api.New(api.Config{BaseURL: server.URL})
	require.NoError(t, err)
	client.SetInvalidator(auth.NewService(client, sessions, auth.Options{}))

	sess, err := sessions.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/dashboard/client", nil))
	require.NoError(t, err)
	sessions.BindCredential(sess, "tok-expired", "3", []byte(`{"id":3}`), time.Now())
	sess.Set(shared.CSRFSessionKey, "csrf")
	require.NoError(t, sessions.Save(context.Background(), sess))
	ctx := shared.ContextWithSession(context.Background(), sess)

	var (
		posts    []api.ContentPost
		accounts []api.SocialAccount
		notes    []api.Notification
		invoices []api.Invoice
	)
	tok := sess.Credential()
	failures := Join(ctx, nil,
		Into("content", &posts, func(ctx context.Context) ([]api.ContentPost, error) { return client.Content(ctx, tok, "") }),
		Into("accounts", &accounts, func(ctx context.Context) ([]api.SocialAccount, error) { return client.SocialAccounts(ctx, tok) }),
		Into("notifications", &notes, func(ctx context.Context) ([]api.Notification, error) { return client.Notifications(ctx, tok) }),
		Into("invoices", &invoices, func(ctx context.Context) ([]api.Invoice, error) { return client.Invoices(ctx, tok) }),
	)

	assert.Equal(t, int32(4), hits.Load())
	require.Len(t, failures, 4)
	assert.True(t, failures.Unauthorized())
	assert.Empty(t, sess.Credential())
	assert.Empty(t, sess.User())
	assert.Equal(t, "csrf", sess.Get(shared.CSRFSessionKey))

	stored, err := sessions.LoadByID(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Credential())
	assert.Equal(t, "csrf", stored.Get(shared.CSRFSessionKey))
}
