package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Role names as issued by the backend.
const (
	RoleAdmin  = "admin"
	RoleAgent  = "agent"
	RoleClient = "client"
)

// User is the authenticated principal.
type User struct {
	ID             int64    `json:"id"`
	Email          string   `json:"email"`
	FirstName      string   `json:"first_name"`
	LastName       string   `json:"last_name"`
	Role           string   `json:"role"`
	CompanyName    string   `json:"company_name,omitempty"`
	ActiveServices []string `json:"active_services,omitempty"`
}

// DisplayName prefers the full name and falls back to the email.
func (u User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Email
	}
	return name
}

// Decimal accepts both JSON numbers and decimal strings ("100.00").
type Decimal float64

// UnmarshalJSON implements json.Unmarshaler.
func (d *Decimal) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*d = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*d = 0
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("decimal %q: %w", s, err)
		}
		*d = Decimal(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*d = Decimal(v)
	return nil
}

// Credentials is the login payload.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Registration is the sign-up payload.
type Registration struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	CompanyName string `json:"company_name,omitempty"`
}

// AuthResult is returned by login and register.
type AuthResult struct {
	Token  string `json:"token"`
	Access string `json:"access"`
	Key    string `json:"key"`
	User   *User  `json:"user"`
}

// Credential returns whichever token field the backend populated.
func (r AuthResult) Credential() string {
	for _, v := range []string{r.Token, r.Access, r.Key} {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// AdminStats feeds the admin overview.
type AdminStats struct {
	TotalClients    int     `json:"total_clients"`
	ActiveClients   int     `json:"active_clients"`
	TotalAgents     int     `json:"total_agents"`
	ActiveProjects  int     `json:"active_projects"`
	PendingInvoices int     `json:"pending_invoices"`
	MonthlyRevenue  Decimal `json:"monthly_revenue"`
}

// AgentStats feeds the agent overview.
type AgentStats struct {
	TotalClients   int     `json:"total_clients"`
	ActiveClients  int     `json:"active_clients"`
	PendingTasks   int     `json:"pending_tasks"`
	CompletedTasks int     `json:"completed_tasks"`
	UnreadMessages int     `json:"unread_messages"`
	MonthlyRevenue Decimal `json:"monthly_revenue"`
}

// ClientAccount is a customer account as seen by admins and agents.
type ClientAccount struct {
	ID             int64    `json:"id"`
	CompanyName    string   `json:"company_name"`
	Email          string   `json:"email"`
	Status         string   `json:"status"`
	MonthlyBudget  Decimal  `json:"monthly_budget"`
	ActiveServices []string `json:"active_services"`
}

// Task is an agency work item.
type Task struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Status   string `json:"status"`
	Priority string `json:"priority"`
	DueDate  string `json:"due_date"`
	ClientID int64  `json:"client"`
}

// Message is a chat message between a client and their agent.
type Message struct {
	ID          int64     `json:"id"`
	SenderID    int64     `json:"sender"`
	RecipientID int64     `json:"recipient"`
	SenderName  string    `json:"sender_name"`
	Content     string    `json:"content"`
	IsRead      bool      `json:"is_read"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewMessage is the send-message payload.
type NewMessage struct {
	RecipientID int64  `json:"recipient,omitempty"`
	Content     string `json:"content"`
}

// ContentPost is a scheduled or published social post.
type ContentPost struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Platform    string     `json:"platform"`
	Status      string     `json:"status"`
	ScheduledAt *time.Time `json:"scheduled_at"`
}

// PerformanceMetric summarises one platform's reach.
type PerformanceMetric struct {
	Platform       string  `json:"platform"`
	Reach          int64   `json:"reach"`
	Impressions    int64   `json:"impressions"`
	Engagement     int64   `json:"engagement"`
	Clicks         int64   `json:"clicks"`
	Followers      int64   `json:"followers"`
	EngagementRate float64 `json:"engagement_rate"`
}

// Invoice statuses.
const (
	InvoicePaid    = "paid"
	InvoicePending = "pending"
	InvoiceOverdue = "overdue"
)

// Invoice is a billing document.
type Invoice struct {
	ID      int64   `json:"id"`
	Number  string  `json:"number"`
	Amount  Decimal `json:"amount"`
	Status  string  `json:"status"`
	DueDate string  `json:"due_date"`
}

// WebsiteProject tracks a website build.
type WebsiteProject struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Domain   string `json:"domain"`
}

// SocialAccount is a linked third-party profile.
type SocialAccount struct {
	ID           int64      `json:"id"`
	Platform     string     `json:"platform"`
	AccountName  string     `json:"account_name"`
	Status       string     `json:"status"`
	IsConnected  bool       `json:"is_connected"`
	Followers    int64      `json:"followers"`
	LastSyncedAt *time.Time `json:"last_synced_at"`
}

// Connected reports whether the account is usable.
func (a SocialAccount) Connected() bool {
	return a.IsConnected || strings.EqualFold(a.Status, "connected") || strings.EqualFold(a.Status, "active")
}

// ConnectGrant carries the provider authorization URL for a popup.
type ConnectGrant struct {
	AuthorizationURL string `json:"authorization_url"`
	AuthURL          string `json:"auth_url"`
}

// URL returns the populated authorization URL field.
func (g ConnectGrant) URL() string {
	if g.AuthorizationURL != "" {
		return g.AuthorizationURL
	}
	return g.AuthURL
}

// Notification is an in-app notice.
type Notification struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Kind      string    `json:"type"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}
