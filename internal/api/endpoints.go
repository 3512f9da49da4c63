package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// Login exchanges credentials for a token.
func (c *Client) Login(ctx context.Context, creds Credentials) (AuthResult, error) {
	var out AuthResult
	err := c.Do(ctx, Request{Method: http.MethodPost, Path: "/auth/login/", Body: creds, Out: &out})
	return out, err
}

// Register creates an account. Some deployments answer with a token, others
// require a follow-up login.
func (c *Client) Register(ctx context.Context, reg Registration) (AuthResult, error) {
	var out AuthResult
	err := c.Do(ctx, Request{Method: http.MethodPost, Path: "/auth/register/", Body: reg, Out: &out})
	return out, err
}

// Logout notifies the backend that token is no longer in use.
func (c *Client) Logout(ctx context.Context, token string) error {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: "/auth/logout/", Token: token})
}

// CurrentUser resolves the principal behind token.
func (c *Client) CurrentUser(ctx context.Context, token string) (User, error) {
	var out User
	err := c.Do(ctx, Request{Path: "/auth/user/", Token: token, Out: &out, Schema: SchemaUser})
	return out, err
}

// AdminStats loads the admin overview counters.
func (c *Client) AdminStats(ctx context.Context, token string) (AdminStats, error) {
	var out AdminStats
	err := c.Do(ctx, Request{Path: "/dashboard/admin-stats/", Token: token, Out: &out})
	return out, err
}

// AgentStats loads the agent overview counters.
func (c *Client) AgentStats(ctx context.Context, token string) (AgentStats, error) {
	var out AgentStats
	err := c.Do(ctx, Request{Path: "/dashboard/agent-stats/", Token: token, Out: &out})
	return out, err
}

// Clients lists every client account (admin).
func (c *Client) Clients(ctx context.Context, token string) ([]ClientAccount, error) {
	var out []ClientAccount
	err := c.Do(ctx, Request{Path: "/clients/", Token: token, Out: &out, Schema: SchemaClients, List: true})
	return out, err
}

// MyClients lists the clients assigned to the calling agent.
func (c *Client) MyClients(ctx context.Context, token string) ([]ClientAccount, error) {
	var out []ClientAccount
	err := c.Do(ctx, Request{Path: "/agents/my-clients/", Token: token, Out: &out, Schema: SchemaClients, List: true})
	return out, err
}

// Tasks lists tasks visible to the caller.
func (c *Client) Tasks(ctx context.Context, token string) ([]Task, error) {
	var out []Task
	err := c.Do(ctx, Request{Path: "/tasks/", Token: token, Out: &out, Schema: SchemaTasks, List: true})
	return out, err
}

// Messages lists the caller's conversation.
func (c *Client) Messages(ctx context.Context, token string) ([]Message, error) {
	var out []Message
	err := c.Do(ctx, Request{Path: "/messages/", Token: token, Out: &out, Schema: SchemaMessages, List: true})
	return out, err
}

// SendMessage posts a chat message.
func (c *Client) SendMessage(ctx context.Context, token string, msg NewMessage) (Message, error) {
	var out Message
	err := c.Do(ctx, Request{Method: http.MethodPost, Path: "/messages/", Token: token, Body: msg, Out: &out})
	return out, err
}

// Content lists content posts, optionally filtered by status.
func (c *Client) Content(ctx context.Context, token, status string) ([]ContentPost, error) {
	var out []ContentPost
	var q url.Values
	if status != "" {
		q = url.Values{"status": []string{status}}
	}
	err := c.Do(ctx, Request{Path: "/content/", Query: q, Token: token, Out: &out, Schema: SchemaContent, List: true})
	return out, err
}

// Performance lists per-platform metrics.
func (c *Client) Performance(ctx context.Context, token string) ([]PerformanceMetric, error) {
	var out []PerformanceMetric
	err := c.Do(ctx, Request{Path: "/performance/", Token: token, Out: &out, Schema: SchemaPerformance, List: true})
	return out, err
}

// Invoices lists the caller's invoices.
func (c *Client) Invoices(ctx context.Context, token string) ([]Invoice, error) {
	var out []Invoice
	err := c.Do(ctx, Request{Path: "/invoices/", Token: token, Out: &out, Schema: SchemaInvoices, List: true})
	return out, err
}

// WebsiteProjects lists website builds.
func (c *Client) WebsiteProjects(ctx context.Context, token string) ([]WebsiteProject, error) {
	var out []WebsiteProject
	err := c.Do(ctx, Request{Path: "/website-projects/", Token: token, Out: &out, Schema: SchemaWebsites, List: true})
	return out, err
}

// SocialAccounts lists linked social profiles.
func (c *Client) SocialAccounts(ctx context.Context, token string) ([]SocialAccount, error) {
	var out []SocialAccount
	err := c.Do(ctx, Request{Path: "/social-accounts/", Token: token, Out: &out, Schema: SchemaSocialAccounts, List: true})
	return out, err
}

// ConnectSocialAccount starts an OAuth link for platform. returnURL is where
// the provider callback should finally send the popup.
func (c *Client) ConnectSocialAccount(ctx context.Context, token, platform, returnURL string) (ConnectGrant, error) {
	var out ConnectGrant
	body := map[string]string{"platform": platform}
	if returnURL != "" {
		body["redirect_uri"] = returnURL
	}
	err := c.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   "/social-accounts/connect/" + url.PathEscape(platform) + "/",
		Route:  "/social-accounts/connect/{platform}/",
		Token:  token,
		Body:   body,
		Out:    &out,
	})
	return out, err
}

// SyncSocialAccount asks the backend to refresh an account's data.
func (c *Client) SyncSocialAccount(ctx context.Context, token string, id int64) error {
	return c.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   "/social-accounts/" + strconv.FormatInt(id, 10) + "/sync/",
		Route:  "/social-accounts/{id}/sync/",
		Token:  token,
	})
}

// DisconnectSocialAccount unlinks an account.
func (c *Client) DisconnectSocialAccount(ctx context.Context, token string, id int64) error {
	return c.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   "/social-accounts/" + strconv.FormatInt(id, 10) + "/disconnect/",
		Route:  "/social-accounts/{id}/disconnect/",
		Token:  token,
	})
}

// Notifications lists the caller's notifications.
func (c *Client) Notifications(ctx context.Context, token string) ([]Notification, error) {
	var out []Notification
	err := c.Do(ctx, Request{Path: "/notifications/", Token: token, Out: &out, Schema: SchemaNotifications, List: true})
	return out, err
}

// MarkNotificationRead flags one notification as read.
func (c *Client) MarkNotificationRead(ctx context.Context, token string, id int64) error {
	return c.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   "/notifications/" + strconv.FormatInt(id, 10) + "/read/",
		Route:  "/notifications/{id}/read/",
		Token:  token,
	})
}

// Ping checks backend reachability without credentials.
func (c *Client) Ping(ctx context.Context) error {
	return c.Do(ctx, Request{Path: "/health/"})
}
