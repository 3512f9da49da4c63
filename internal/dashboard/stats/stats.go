// Package stats derives the counters and totals shown on dashboard pages.
// Every function is pure: the same input always yields the same summary.
package stats

import (
	"strings"

	"github.com/visionboost/portal/internal/api"
)

// InvoiceSummary totals a list of invoices by status.
type InvoiceSummary struct {
	Count         int
	Total         float64
	Paid          float64
	Pending       float64
	OverdueCount  int
	OverdueAmount float64
}

// Invoices sums amounts by status. Total covers every invoice regardless of
// status; unknown statuses count toward Total only.
func Invoices(list []api.Invoice) InvoiceSummary {
	var s InvoiceSummary
	for _, inv := range list {
		amount := float64(inv.Amount)
		s.Count++
		s.Total += amount
		switch normalise(inv.Status) {
		case api.InvoicePaid:
			s.Paid += amount
		case api.InvoicePending:
			s.Pending += amount
		case api.InvoiceOverdue:
			s.OverdueCount++
			s.OverdueAmount += amount
		}
	}
	return s
}

// TaskSummary counts tasks by status.
type TaskSummary struct {
	Total      int
	Pending    int
	InProgress int
	Completed  int
	ByStatus   map[string]int
}

// Tasks counts tasks per status.
func Tasks(list []api.Task) TaskSummary {
	s := TaskSummary{ByStatus: make(map[string]int)}
	for _, task := range list {
		status := normalise(task.Status)
		s.Total++
		s.ByStatus[status]++
		switch status {
		case "pending", "todo":
			s.Pending++
		case "in_progress":
			s.InProgress++
		case "completed", "done":
			s.Completed++
		}
	}
	return s
}

// ClientSummary counts client accounts.
type ClientSummary struct {
	Total  int
	Active int
	Budget float64
}

// Clients counts accounts and sums monthly budgets.
func Clients(list []api.ClientAccount) ClientSummary {
	var s ClientSummary
	for _, c := range list {
		s.Total++
		if normalise(c.Status) == "active" {
			s.Active++
		}
		s.Budget += float64(c.MonthlyBudget)
	}
	return s
}

// Unread counts unread messages addressed to userID.
func Unread(list []api.Message, userID int64) int {
	n := 0
	for _, m := range list {
		if !m.IsRead && m.SenderID != userID {
			n++
		}
	}
	return n
}

// UnreadNotifications counts notifications not yet read.
func UnreadNotifications(list []api.Notification) int {
	n := 0
	for _, item := range list {
		if !item.IsRead {
			n++
		}
	}
	return n
}

// PerformanceSummary aggregates per-platform metrics.
type PerformanceSummary struct {
	Platforms         int
	Reach             int64
	Impressions       int64
	Engagement        int64
	Clicks            int64
	Followers         int64
	AvgEngagementRate float64
}

// Performance sums metrics across platforms and averages the engagement rate.
func Performance(list []api.PerformanceMetric) PerformanceSummary {
	var s PerformanceSummary
	var rate float64
	for _, m := range list {
		s.Platforms++
		s.Reach += m.Reach
		s.Impressions += m.Impressions
		s.Engagement += m.Engagement
		s.Clicks += m.Clicks
		s.Followers += m.Followers
		rate += m.EngagementRate
	}
	if s.Platforms > 0 {
		s.AvgEngagementRate = rate / float64(s.Platforms)
	}
	return s
}

// ContentByStatus keeps posts whose status matches. An empty status keeps all.
func ContentByStatus(list []api.ContentPost, status string) []api.ContentPost {
	status = normalise(status)
	if status == "" || status == "all" {
		return append([]api.ContentPost(nil), list...)
	}
	out := make([]api.ContentPost, 0, len(list))
	for _, post := range list {
		if normalise(post.Status) == status {
			out = append(out, post)
		}
	}
	return out
}

// ContentCounts counts posts per status.
func ContentCounts(list []api.ContentPost) map[string]int {
	out := make(map[string]int)
	for _, post := range list {
		out[normalise(post.Status)]++
	}
	return out
}

// ConnectedAccounts counts usable social accounts.
func ConnectedAccounts(list []api.SocialAccount) int {
	n := 0
	for _, a := range list {
		if a.Connected() {
			n++
		}
	}
	return n
}

// WebsiteProgress averages project completion, 0 for no projects.
func WebsiteProgress(list []api.WebsiteProject) int {
	if len(list) == 0 {
		return 0
	}
	total := 0
	for _, p := range list {
		total += clamp(p.Progress, 0, 100)
	}
	return total / len(list)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func normalise(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.ReplaceAll(strings.ReplaceAll(s, "-", "_"), " ", "_")
}
