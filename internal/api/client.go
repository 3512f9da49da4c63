// Package api is the single outbound path from the portal to the VisionBoost backend.
package api

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

// Invalidator is notified when the backend rejects a credential with 401.
type Invalidator interface {
	InvalidateCredential(ctx context.Context, token string)
}

// InvalidatorFunc adapts a function to Invalidator.
type InvalidatorFunc func(ctx context.Context, token string)

// InvalidateCredential implements Invalidator.
func (f InvalidatorFunc) InvalidateCredential(ctx context.Context, token string) { f(ctx, token) }

// Config configures the backend client.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
	// Coalesce shares one in-flight GET between identical concurrent callers.
	Coalesce    bool
	Invalidator Invalidator
	Schemas     *SchemaSet
	Metrics     *Metrics
}

// Client talks to the backend REST API.
type Client struct {
	baseURL     string
	http        *http.Client
	coalesce    bool
	group       singleflight.Group
	invalidator Invalidator
	schemas     *SchemaSet
	metrics     *Metrics
}

// Request describes one backend call.
type Request struct {
	Method string
	Path   string
	// Route is the templated path used as a metrics label; defaults to Path.
	Route string
	Query url.Values
	Token string
	Body  any
	Out   any
	// Schema names an embedded schema the payload must satisfy before decoding.
	Schema string
	// List unwraps paginated envelopes ({"results": [...]}) before decoding.
	List bool
}

// New builds a Client.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("api: base url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("api: parse base url: %w", err)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	schemas := cfg.Schemas
	if schemas == nil {
		var err error
		if schemas, err = DefaultSchemas(); err != nil {
			return nil, err
		}
	}
	return &Client{
		baseURL:     base,
		http:        httpClient,
		coalesce:    cfg.Coalesce,
		invalidator: cfg.Invalidator,
		schemas:     schemas,
		metrics:     cfg.Metrics,
	}, nil
}

// SetInvalidator wires the 401 hook after construction.
func (c *Client) SetInvalidator(inv Invalidator) {
	c.invalidator = inv
}

// BaseURL returns the normalised backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type response struct {
	status int
	body   []byte
}

// Do performs the request. On 2xx the payload is validated and decoded into
// req.Out; otherwise a typed error is returned. A 401 clears the credential
// through the Invalidator before the error is returned.
func (c *Client) Do(ctx context.Context, req Request) error {
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	resp, err := c.execute(ctx, req)
	if err != nil {
		return err
	}
	if resp.status < 200 || resp.status >= 300 {
		if resp.status == http.StatusUnauthorized && req.Token != "" && c.invalidator != nil {
			c.invalidator.InvalidateCredential(ctx, req.Token)
		}
		return &HTTPError{
			Status:  resp.status,
			Message: extractMessage(resp.status, resp.body),
			Method:  req.Method,
			Path:    req.Path,
		}
	}
	if req.Out == nil || resp.status == http.StatusNoContent || len(bytes.TrimSpace(resp.body)) == 0 {
		return nil
	}
	return c.decode(req, resp.body)
}

func (c *Client) execute(ctx context.Context, req Request) (response, error) {
	if !c.coalesce || req.Method != http.MethodGet {
		return c.roundTrip(ctx, req)
	}
	key := c.flightKey(req)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		return c.roundTrip(context.WithoutCancel(ctx), req)
	})
	select {
	case <-ctx.Done():
		return response{}, &TransportError{Method: req.Method, Path: req.Path, Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return response{}, res.Err
		}
		return res.Val.(response), nil
	}
}

func (c *Client) roundTrip(ctx context.Context, req Request) (response, error) {
	var body io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return response{}, fmt.Errorf("api: encode payload: %w", err)
		}
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.resolve(req.Path, req.Query), body)
	if err != nil {
		return response{}, fmt.Errorf("api: build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Content-Type", "application/json")
	if req.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Token)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.metrics.observe(req.Method, routeLabel(req), 0, time.Since(start))
		return response{}, &TransportError{Method: req.Method, Path: req.Path, Err: err}
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	c.metrics.observe(req.Method, routeLabel(req), resp.StatusCode, time.Since(start))
	if err != nil {
		return response{}, &TransportError{Method: req.Method, Path: req.Path, Err: err}
	}
	return response{status: resp.StatusCode, body: data}, nil
}

func (c *Client) decode(req Request, raw []byte) error {
	payload := raw
	if req.List {
		list, err := unwrapList(raw)
		if err != nil {
			return &ShapeError{Path: req.Path, Err: err}
		}
		payload = list
	}
	if req.Schema != "" {
		if err := c.schemas.Validate(req.Schema, payload); err != nil {
			return &ShapeError{Path: req.Path, Err: err}
		}
	}
	if err := json.Unmarshal(payload, req.Out); err != nil {
		return &ShapeError{Path: req.Path, Err: err}
	}
	return nil
}

func (c *Client) resolve(path string, query url.Values) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	target := c.baseURL + path
	if len(query) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + query.Encode()
	}
	return target
}

func (c *Client) flightKey(req Request) string {
	sum := sha256.Sum256([]byte(req.Token))
	return req.Method + " " + c.resolve(req.Path, req.Query) + " " + hex.EncodeToString(sum[:8])
}

// unwrapList accepts a bare array, null, or a paginated envelope.
func unwrapList(raw []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(raw)
	switch {
	case len(trimmed) == 0, bytes.Equal(trimmed, []byte("null")):
		return []byte("[]"), nil
	case trimmed[0] == '[':
		return trimmed, nil
	case trimmed[0] == '{':
		var envelope struct {
			Results json.RawMessage `json:"results"`
			Data    json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return nil, err
		}
		for _, candidate := range []json.RawMessage{envelope.Results, envelope.Data} {
			c := bytes.TrimSpace(candidate)
			if len(c) > 0 && c[0] == '[' {
				return c, nil
			}
		}
		return nil, errors.New("object without a results array")
	default:
		return nil, errors.New("expected an array")
	}
}

func routeLabel(req Request) string {
	if req.Route != "" {
		return req.Route
	}
	return req.Path
}
