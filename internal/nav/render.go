package nav

import (
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/visionboost/portal/internal/services"
)

// ExpansionCookie stores which menu groups the user left open.
const ExpansionCookie = "nav_open"

// Item is an Entry decorated for one request.
type Item struct {
	Entry
	Active   bool
	Open     bool
	Disabled bool
	Items    []Item
}

// Expansion is the set of open group ids. It is independent of the route.
type Expansion map[string]bool

// ExpansionFromRequest decodes the nav_open cookie.
func ExpansionFromRequest(r *http.Request) Expansion {
	out := Expansion{}
	cookie, err := r.Cookie(ExpansionCookie)
	if err != nil {
		return out
	}
	raw, err := url.QueryUnescape(cookie.Value)
	if err != nil {
		return out
	}
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			out[id] = true
		}
	}
	return out
}

// Toggle flips one group and returns the set for chaining.
func (e Expansion) Toggle(id string) Expansion {
	if e[id] {
		delete(e, id)
	} else {
		e[id] = true
	}
	return e
}

// Cookie encodes the set.
func (e Expansion) Cookie(secure bool) *http.Cookie {
	ids := make([]string, 0, len(e))
	for id, open := range e {
		if open {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return &http.Cookie{
		Name:     ExpansionCookie,
		Value:    url.QueryEscape(strings.Join(ids, ",")),
		Path:     "/",
		MaxAge:   60 * 60 * 24 * 365,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// Render decorates role's tree for the current path. Entries tied to a
// service the account does not have are disabled. A group is open when the
// user expanded it or when it contains the active entry.
func (m *Menus) Render(role, currentPath string, active []services.ID, open Expansion) []Item {
	current := cleanPath(currentPath)
	return decorate(m.Tree(role), current, active, open, false)
}

func decorate(entries []Entry, current string, active []services.ID, open Expansion, parentDisabled bool) []Item {
	items := make([]Item, 0, len(entries))
	for _, e := range entries {
		item := Item{Entry: e}
		item.Disabled = parentDisabled || (e.Service != "" && !services.IsActive(active, e.Service))
		item.Items = decorate(e.Children, current, active, open, item.Disabled)
		item.Active = isActive(e.Path, current, e.IsGroup())
		for _, child := range item.Items {
			if child.Active || child.Open {
				item.Open = true
			}
		}
		if open[e.ID] {
			item.Open = true
		}
		items = append(items, item)
	}
	markBestMatch(items, current)
	return items
}

func isActive(path, current string, group bool) bool {
	if path == "" {
		return false
	}
	if group {
		return under(current, path)
	}
	return path == current
}

// markBestMatch lights the deepest sibling whose path prefixes current when
// no sibling matched exactly, so /dashboard/client/messages/42 keeps
// Messages highlighted.
func markBestMatch(items []Item, current string) {
	best := -1
	for i, item := range items {
		if item.Active || hasActiveChild(item) {
			return
		}
		if item.Path == "" || !under(current, item.Path) {
			continue
		}
		if best < 0 || len(item.Path) > len(items[best].Path) {
			best = i
		}
	}
	if best < 0 {
		return
	}
	// Only a leaf deeper than the role home qualifies; the overview entry
	// would otherwise light up on every page.
	if strings.Count(items[best].Path, "/") > 2 {
		items[best].Active = true
	}
}

func hasActiveChild(item Item) bool {
	for _, child := range item.Items {
		if child.Active || hasActiveChild(child) {
			return true
		}
	}
	return false
}
