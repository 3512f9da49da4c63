package shared

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// FlashMessage represents a one-time notification stored in session.
type FlashMessage struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ErrSessionNotFound is returned by LoadByID when the session expired or never existed.
var ErrSessionNotFound = errors.New("session not found")

const maxWatchRetries = 8

// SessionManager orchestrates cookie based sessions backed by Redis.
type SessionManager struct {
	client     *redis.Client
	cookieName string
	ttl        time.Duration
	secure     bool
	secret     []byte
}

// Session holds per-request session data.
//
// The bearer credential and the cached principal are read through Credential
// and Principal. They are written only through SessionManager.BindCredential
// and SessionManager.ClearCredential, which the auth service owns.
//
// A Session may be shared by the goroutines of one page load, so every field
// but ID is guarded by mu. ID only changes while binding a credential.
type Session struct {
	ID string

	mu          sync.Mutex
	previousID  string
	values      map[string]string
	userID      string
	credential  string
	principal   json.RawMessage
	validatedAt time.Time
	flashes     []FlashMessage
	manager     *SessionManager
	isNew       bool
	dirty       bool
	destroyed   bool
}

type sessionPayload struct {
	Values      map[string]string `json:"values"`
	UserID      string            `json:"user_id"`
	Credential  string            `json:"credential,omitempty"`
	Principal   json.RawMessage   `json:"principal,omitempty"`
	ValidatedAt int64             `json:"validated_at,omitempty"`
	Flashes     []FlashMessage    `json:"flashes"`
}

// NewSessionManager constructs a SessionManager.
func NewSessionManager(client *redis.Client, cookieName string, secret string, ttl time.Duration, secure bool) *SessionManager {
	return &SessionManager{
		client:     client,
		cookieName: cookieName,
		ttl:        ttl,
		secure:     secure,
		secret:     []byte(secret),
	}
}

// Load loads or creates a new session for request.
func (sm *SessionManager) Load(ctx context.Context, r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(sm.cookieName)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return sm.newSession(), nil
		}
		return nil, err
	}

	sess, err := sm.LoadByID(ctx, cookie.Value)
	if errors.Is(err, ErrSessionNotFound) {
		// Expired server side; start fresh so a stale cookie id is never reused.
		return sm.newSession(), nil
	}
	return sess, err
}

// LoadByID fetches a stored session without an HTTP request, for background jobs.
func (sm *SessionManager) LoadByID(ctx context.Context, id string) (*Session, error) {
	payload, err := sm.client.Get(ctx, sm.redisKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	var stored sessionPayload
	if err := json.Unmarshal(payload, &stored); err != nil {
		return nil, err
	}

	sess := sm.newSession()
	sess.ID = id
	if stored.Values != nil {
		sess.values = stored.Values
	}
	sess.userID = stored.UserID
	sess.credential = stored.Credential
	sess.principal = stored.Principal
	if stored.ValidatedAt > 0 {
		sess.validatedAt = time.Unix(stored.ValidatedAt, 0)
	}
	sess.flashes = stored.Flashes
	sess.isNew = false
	sess.dirty = false
	return sess, nil
}

// Commit persists the session and writes cookie headers as needed.
func (sm *SessionManager) Commit(ctx context.Context, w http.ResponseWriter, r *http.Request, sess *Session) error {
	if sess == nil {
		return nil
	}

	if sess.Destroyed() {
		if err := sm.client.Del(ctx, sm.storedKeys(sess)...).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		http.SetCookie(w, &http.Cookie{
			Name:     sm.cookieName,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   sm.secure,
			SameSite: http.SameSiteLaxMode,
		})
		return nil
	}

	if err := sm.Save(ctx, sess); err != nil {
		return err
	}

	if sess.ID != "" {
		http.SetCookie(w, &http.Cookie{
			Name:     sm.cookieName,
			Value:    sess.ID,
			Path:     "/",
			HttpOnly: true,
			Secure:   sm.secure,
			SameSite: http.SameSiteLaxMode,
			Expires:  time.Now().Add(sm.ttl),
		})
	}
	return nil
}

// Save persists dirty session state without touching cookies. A session
// whose id was rotated drops its old key in the same transaction.
func (sm *SessionManager) Save(ctx context.Context, sess *Session) error {
	if sess == nil {
		return nil
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.destroyed {
		return nil
	}
	if sess.ID == "" {
		sess.ID = sm.generateSessionID()
	}
	if !sess.dirty && !sess.isNew && sess.previousID == "" {
		return nil
	}
	data, err := json.Marshal(sess.payload())
	if err != nil {
		return err
	}
	_, err = sm.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sm.redisKey(sess.ID), data, sm.ttl)
		if sess.previousID != "" {
			pipe.Del(ctx, sm.redisKey(sess.previousID))
		}
		return nil
	})
	if err != nil {
		return err
	}
	sess.previousID = ""
	sess.dirty = false
	sess.isNew = false
	return nil
}

// Destroy marks the session for deletion and drops its credential.
func (sm *SessionManager) Destroy(sess *Session) {
	if sess == nil {
		return
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.clearCredential()
	sess.destroyed = true
}

// BindCredential stores the bearer credential and the principal it resolved
// to. A session that already exists in Redis moves to a fresh id so an id
// known before sign-in never carries the credential.
func (sm *SessionManager) BindCredential(sess *Session, credential, userID string, principal json.RawMessage, validatedAt time.Time) {
	if sess == nil {
		return
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if !sess.isNew && sess.previousID == "" {
		sess.previousID = sess.ID
		sess.ID = sm.generateSessionID()
	}
	sess.credential = credential
	sess.userID = userID
	sess.principal = principal
	sess.validatedAt = validatedAt
	sess.dirty = true
}

// TouchPrincipal refreshes the cached principal for the current credential.
func (sm *SessionManager) TouchPrincipal(sess *Session, principal json.RawMessage, validatedAt time.Time) {
	if sess == nil {
		return
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.credential == "" {
		return
	}
	sess.principal = principal
	sess.validatedAt = validatedAt
	sess.dirty = true
}

// ClearCredential removes the credential and the cached principal.
func (sm *SessionManager) ClearCredential(sess *Session) {
	if sess == nil {
		return
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.clearCredential()
}

// RevokeCredential clears the credential only if sess still holds token and
// reports whether it did. Concurrent callers rejecting the same token see
// exactly one true.
func (sm *SessionManager) RevokeCredential(sess *Session, token string) bool {
	if sess == nil || token == "" {
		return false
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.credential != token {
		return false
	}
	sess.clearCredential()
	return true
}

// ClearStoredCredential removes token from the stored session id and leaves
// its values and flashes alone. Sessions that are gone or hold another
// credential are not written.
func (sm *SessionManager) ClearStoredCredential(ctx context.Context, id, token string) error {
	key := sm.redisKey(id)
	for range maxWatchRetries {
		err := sm.client.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				return nil
			}
			if err != nil {
				return err
			}
			var stored sessionPayload
			if err := json.Unmarshal(data, &stored); err != nil {
				return err
			}
			if stored.Credential != token {
				return nil
			}
			stored.Credential = ""
			stored.UserID = ""
			stored.Principal = nil
			stored.ValidatedAt = 0
			encoded, err := json.Marshal(stored)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, encoded, redis.KeepTTL)
				return nil
			})
			return err
		}, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("session: clear credential: %w", redis.TxFailedErr)
}

// TTL exposes the configured session lifetime.
func (sm *SessionManager) TTL() time.Duration {
	return sm.ttl
}

// CookieName returns the cookie identifier used for sessions.
func (sm *SessionManager) CookieName() string {
	return sm.cookieName
}

// Set stores a key-value pair.
func (s *Session) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.values == nil {
		s.values = make(map[string]string)
	}
	s.values[key] = value
	s.dirty = true
}

// Get retrieves a value.
func (s *Session) Get(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.values == nil {
		return ""
	}
	return s.values[key]
}

// Delete removes a value.
func (s *Session) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.values == nil {
		return
	}
	delete(s.values, key)
	s.dirty = true
}

// User returns the backend user ID bound to the session.
func (s *Session) User() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// Credential returns the bearer token bound to the session, if any.
func (s *Session) Credential() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.credential
}

// Principal returns the cached user document and when it was last validated.
func (s *Session) Principal() (json.RawMessage, time.Time) {
	if s == nil {
		return nil, time.Time{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.principal, s.validatedAt
}

// Destroyed reports whether the session is scheduled for deletion.
func (s *Session) Destroyed() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed
}

// AddFlash queues a flash message.
func (s *Session) AddFlash(msg FlashMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flashes = append(s.flashes, msg)
	s.dirty = true
}

// PopFlash retrieves and clears the oldest flash message.
func (s *Session) PopFlash() *FlashMessage {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.flashes) == 0 {
		return nil
	}
	msg := s.flashes[0]
	s.flashes = s.flashes[1:]
	s.dirty = true
	return &msg
}

func (s *Session) clearCredential() {
	if s.credential == "" && s.userID == "" && len(s.principal) == 0 {
		return
	}
	s.credential = ""
	s.userID = ""
	s.principal = nil
	s.validatedAt = time.Time{}
	s.dirty = true
}

// storedKeys lists the Redis keys the session may occupy.
func (sm *SessionManager) storedKeys(sess *Session) []string {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	keys := []string{sm.redisKey(sess.ID)}
	if sess.previousID != "" {
		keys = append(keys, sm.redisKey(sess.previousID))
	}
	return keys
}

func (s *Session) payload() sessionPayload {
	p := sessionPayload{
		Values:     s.values,
		UserID:     s.userID,
		Credential: s.credential,
		Principal:  s.principal,
		Flashes:    s.flashes,
	}
	if !s.validatedAt.IsZero() {
		p.ValidatedAt = s.validatedAt.Unix()
	}
	return p
}

func (sm *SessionManager) newSession() *Session {
	return &Session{
		ID:      sm.generateSessionID(),
		values:  make(map[string]string),
		manager: sm,
		isNew:   true,
		dirty:   true,
	}
}

func (sm *SessionManager) redisKey(id string) string {
	return "session:" + id
}

func (sm *SessionManager) generateSessionID() string {
	if id, err := uuid.NewRandom(); err == nil {
		return id.String()
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return base64.RawURLEncoding.EncodeToString([]byte(time.Now().Format(time.RFC3339Nano)))
	}
	if len(sm.secret) > 0 {
		for i := range b {
			b[i] ^= sm.secret[i%len(sm.secret)]
		}
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
