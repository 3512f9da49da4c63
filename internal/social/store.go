package social

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLinkNotFound is returned for unknown or expired links.
var ErrLinkNotFound = errors.New("social: link not found")

const maxUpdateRetries = 8

// Status is the lifecycle position of a pending link.
type Status string

// Link statuses.
const (
	StatusPending   Status = "pending"
	StatusConnected Status = "connected"
	StatusFailed    Status = "failed"
)

// Done reports whether the status is terminal.
func (s Status) Done() bool {
	return s == StatusConnected || s == StatusFailed
}

// Link is an OAuth account link in progress.
type Link struct {
	ID               string     `json:"id"`
	Platform         string     `json:"platform"`
	SessionID        string     `json:"session_id"`
	Baseline         []int64    `json:"baseline,omitempty"`
	AuthorizationURL string     `json:"authorization_url"`
	Status           Status     `json:"status"`
	Signalled        bool       `json:"signalled"`
	Attempts         int        `json:"attempts"`
	AccountID        int64      `json:"account_id,omitempty"`
	Reason           string     `json:"reason,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// Store keeps pending links in Redis and announces status changes over
// pub/sub.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore constructs a Store.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Store{client: client, ttl: ttl}
}

func linkKey(id string) string {
	return "social:link:" + id
}

// Channel is the pub/sub channel carrying status changes of link id.
func Channel(id string) string {
	return "social.link." + id
}

// Save writes link, keeping its original expiry when it already exists.
// Changes to a link that may be written concurrently go through Update.
func (s *Store) Save(ctx context.Context, link Link) error {
	data, err := json.Marshal(link)
	if err != nil {
		return fmt.Errorf("social: encode link: %w", err)
	}
	ttl := s.ttl
	if remaining, err := s.client.PTTL(ctx, linkKey(link.ID)).Result(); err == nil && remaining > 0 {
		ttl = remaining
	}
	return s.client.Set(ctx, linkKey(link.ID), data, ttl).Err()
}

// Get loads a link.
func (s *Store) Get(ctx context.Context, id string) (Link, error) {
	return getLink(ctx, s.client, id)
}

// Update applies fn to a pending link and writes the result only if nobody
// else wrote the link in between. A link that already reached a terminal
// status is returned as stored and fn is not called. changed reports whether
// fn's result was written.
func (s *Store) Update(ctx context.Context, id string, fn func(*Link)) (link Link, changed bool, err error) {
	key := linkKey(id)
	for range maxUpdateRetries {
		changed = false
		err = s.client.Watch(ctx, func(tx *redis.Tx) error {
			current, err := getLink(ctx, tx, id)
			if err != nil {
				return err
			}
			link = current
			if link.Status.Done() {
				return nil
			}
			fn(&link)
			data, err := json.Marshal(link)
			if err != nil {
				return fmt.Errorf("social: encode link: %w", err)
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, data, redis.KeepTTL)
				return nil
			})
			changed = err == nil
			return err
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return Link{}, false, err
		}
		return link, changed, nil
	}
	return Link{}, false, fmt.Errorf("social: update link %s: %w", id, err)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func getLink(ctx context.Context, c getter, id string) (Link, error) {
	data, err := c.Get(ctx, linkKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Link{}, ErrLinkNotFound
		}
		return Link{}, err
	}
	var link Link
	if err := json.Unmarshal(data, &link); err != nil {
		return Link{}, fmt.Errorf("social: decode link: %w", err)
	}
	return link, nil
}

// Publish announces the current status of link.
func (s *Store) Publish(ctx context.Context, link Link) error {
	return s.client.Publish(ctx, Channel(link.ID), string(link.Status)).Err()
}

// Wait blocks until link id reaches a terminal status, ctx ends or timeout
// elapses, and returns the latest stored link.
func (s *Store) Wait(ctx context.Context, id string, timeout time.Duration) (Link, error) {
	sub := s.client.Subscribe(ctx, Channel(id))
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return Link{}, err
	}

	// Checked after subscribing so a change published in between is not lost.
	link, err := s.Get(ctx, id)
	if err != nil || link.Status.Done() {
		return link, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return s.Get(context.WithoutCancel(ctx), id)
		case <-timer.C:
			return s.Get(ctx, id)
		case msg, ok := <-ch:
			if !ok {
				return s.Get(ctx, id)
			}
			if Status(msg.Payload).Done() {
				return s.Get(ctx, id)
			}
		}
	}
}
