// Package services models the independently activatable product lines a
// client account can subscribe to and the switcher between their dashboards.
package services

import "strings"

// ID identifies a product line.
type ID string

// Known product lines.
const (
	Marketing ID = "marketing"
	Website   ID = "website"
	Courses   ID = "courses"
)

// Service describes one product line and the dashboard that serves it.
type Service struct {
	ID       ID
	Label    string
	BasePath string
	Icon     string
}

// Catalog lists the known product lines in display order.
type Catalog struct {
	services []Service
}

// DefaultCatalog returns the built-in product lines.
func DefaultCatalog() Catalog {
	return NewCatalog(
		Service{ID: Marketing, Label: "Social Media Marketing", BasePath: "/dashboard/client/marketing", Icon: "megaphone"},
		Service{ID: Website, Label: "Website Builder", BasePath: "/dashboard/client/website", Icon: "globe"},
		Service{ID: Courses, Label: "Courses", BasePath: "/dashboard/client/courses", Icon: "academic-cap"},
	)
}

// NewCatalog builds a catalog, normalising base paths.
func NewCatalog(list ...Service) Catalog {
	out := make([]Service, 0, len(list))
	for _, svc := range list {
		svc.BasePath = normalisePath(svc.BasePath)
		out = append(out, svc)
	}
	return Catalog{services: out}
}

// All returns the catalog entries in order.
func (c Catalog) All() []Service {
	return append([]Service(nil), c.services...)
}

// Lookup finds a service by id.
func (c Catalog) Lookup(id ID) (Service, bool) {
	for _, svc := range c.services {
		if svc.ID == id {
			return svc, true
		}
	}
	return Service{}, false
}

// Parse converts backend service names into known IDs, dropping unknown and
// duplicate values.
func Parse(raw []string) []ID {
	seen := make(map[ID]struct{}, len(raw))
	out := make([]ID, 0, len(raw))
	for _, value := range raw {
		id := ID(strings.ToLower(strings.TrimSpace(value)))
		switch id {
		case Marketing, Website, Courses:
		default:
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func normalisePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
	}
	return p
}
