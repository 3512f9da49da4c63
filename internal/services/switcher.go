package services

import "strings"

// Option is one rendered switcher entry.
type Option struct {
	Service
	Enabled bool
	Current bool
}

// Current returns the service whose base path is the longest prefix of path.
func (c Catalog) Current(path string) (Service, bool) {
	path = normalisePath(path)
	var (
		best  Service
		found bool
	)
	for _, svc := range c.services {
		if !hasPathPrefix(path, svc.BasePath) {
			continue
		}
		if !found || len(svc.BasePath) > len(best.BasePath) {
			best = svc
			found = true
		}
	}
	return best, found
}

// Options renders the switcher for the active set. It returns nil when fewer
// than two known services are active. Inactive services are listed disabled.
func (c Catalog) Options(active []ID, path string) []Option {
	set := c.activeSet(active)
	if len(set) < 2 {
		return nil
	}
	current, hasCurrent := c.Current(path)
	out := make([]Option, 0, len(c.services))
	for _, svc := range c.services {
		_, enabled := set[svc.ID]
		out = append(out, Option{
			Service: svc,
			Enabled: enabled,
			Current: hasCurrent && svc.ID == current.ID,
		})
	}
	return out
}

// Select returns the destination for a switch to id. Selecting an inactive or
// unknown service reports false and the caller must not navigate.
func (c Catalog) Select(active []ID, id ID) (string, bool) {
	svc, ok := c.Lookup(id)
	if !ok {
		return "", false
	}
	if _, enabled := c.activeSet(active)[id]; !enabled {
		return "", false
	}
	return svc.BasePath, true
}

// IsActive reports whether id is in active.
func IsActive(active []ID, id ID) bool {
	for _, a := range active {
		if a == id {
			return true
		}
	}
	return false
}

func (c Catalog) activeSet(active []ID) map[ID]struct{} {
	set := make(map[ID]struct{}, len(active))
	for _, id := range active {
		if _, known := c.Lookup(id); known {
			set[id] = struct{}{}
		}
	}
	return set
}

func hasPathPrefix(path, prefix string) bool {
	if prefix == "/" {
		return true
	}
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/'
}
