// Package nav holds the per-role menu trees and the route guard that keeps
// each role inside its own dashboard section.
package nav

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/ettle/strcase"
	"gopkg.in/yaml.v3"

	"github.com/visionboost/portal/internal/services"
)

//go:embed menus.yaml
var defaultMenus []byte

// Role names understood by the menu document.
const (
	RoleAdmin  = "admin"
	RoleAgent  = "agent"
	RoleClient = "client"
)

// Entry is one menu item. Groups carry Children and usually no Path.
type Entry struct {
	ID       string      `yaml:"id"`
	Label    string      `yaml:"label"`
	Path     string      `yaml:"path"`
	Icon     string      `yaml:"icon"`
	Service  services.ID `yaml:"service"`
	Children []Entry     `yaml:"children"`
}

// IsGroup reports whether the entry expands into children.
func (e Entry) IsGroup() bool {
	return len(e.Children) > 0
}

type roleMenu struct {
	Home     string   `yaml:"home"`
	Prefixes []string `yaml:"prefixes"`
	Menu     []Entry  `yaml:"menu"`
}

type document struct {
	Version string              `yaml:"version"`
	Roles   map[string]roleMenu `yaml:"roles"`
}

// Menus is the validated set of role trees.
type Menus struct {
	roles map[string]roleMenu
}

var (
	defaultOnce sync.Once
	defaultSet  *Menus
	defaultErr  error
)

// Default returns the menus compiled into the binary.
func Default() (*Menus, error) {
	defaultOnce.Do(func() {
		defaultSet, defaultErr = Load(bytes.NewReader(defaultMenus))
	})
	return defaultSet, defaultErr
}

// Load parses and validates a menu document.
func Load(r io.Reader) (*Menus, error) {
	var doc document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("nav: decode menus: %w", err)
	}
	if len(doc.Roles) == 0 {
		return nil, errors.New("nav: no roles defined")
	}
	for _, role := range []string{RoleAdmin, RoleAgent, RoleClient} {
		if _, ok := doc.Roles[role]; !ok {
			return nil, fmt.Errorf("nav: role %q missing", role)
		}
	}
	roles := make(map[string]roleMenu, len(doc.Roles))
	for name, menu := range doc.Roles {
		checked, err := validateRole(name, menu)
		if err != nil {
			return nil, err
		}
		roles[name] = checked
	}
	return &Menus{roles: roles}, nil
}

func validateRole(name string, menu roleMenu) (roleMenu, error) {
	if len(menu.Menu) == 0 {
		return menu, fmt.Errorf("nav: role %q has an empty menu", name)
	}
	if len(menu.Prefixes) == 0 {
		return menu, fmt.Errorf("nav: role %q has no permitted prefixes", name)
	}
	for i, p := range menu.Prefixes {
		menu.Prefixes[i] = cleanPath(p)
	}
	menu.Home = cleanPath(menu.Home)
	if !underAny(menu.Home, menu.Prefixes) {
		return menu, fmt.Errorf("nav: role %q home %s outside permitted prefixes", name, menu.Home)
	}
	seen := make(map[string]struct{})
	var walk func(entries []Entry, parent string) error
	walk = func(entries []Entry, parent string) error {
		for i := range entries {
			e := &entries[i]
			if strings.TrimSpace(e.Label) == "" {
				return fmt.Errorf("nav: role %q has an entry without a label", name)
			}
			if e.ID == "" {
				e.ID = strcase.ToKebab(e.Label)
				if parent != "" {
					e.ID = parent + "." + e.ID
				}
			}
			if _, dup := seen[e.ID]; dup {
				return fmt.Errorf("nav: role %q duplicate entry id %q", name, e.ID)
			}
			seen[e.ID] = struct{}{}
			if e.Path == "" && len(e.Children) == 0 {
				return fmt.Errorf("nav: role %q entry %q has neither path nor children", name, e.ID)
			}
			if e.Path != "" {
				e.Path = cleanPath(e.Path)
				if !underAny(e.Path, menu.Prefixes) {
					return fmt.Errorf("nav: role %q entry %q path %s outside permitted prefixes", name, e.ID, e.Path)
				}
			}
			if e.Service != "" {
				if _, ok := services.DefaultCatalog().Lookup(e.Service); !ok {
					return fmt.Errorf("nav: role %q entry %q references unknown service %q", name, e.ID, e.Service)
				}
			}
			if err := walk(e.Children, e.ID); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(menu.Menu, ""); err != nil {
		return menu, err
	}
	return menu, nil
}

// NormaliseRole maps unknown or empty roles to the client role.
func NormaliseRole(role string) string {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case RoleAdmin:
		return RoleAdmin
	case RoleAgent:
		return RoleAgent
	default:
		return RoleClient
	}
}

// Tree returns a copy of the ordered menu for role.
func (m *Menus) Tree(role string) []Entry {
	return cloneEntries(m.roles[NormaliseRole(role)].Menu)
}

// Home returns the landing path of role.
func (m *Menus) Home(role string) string {
	return m.roles[NormaliseRole(role)].Home
}

// PermittedPrefixes lists the path prefixes role may visit.
func (m *Menus) PermittedPrefixes(role string) []string {
	prefixes := m.roles[NormaliseRole(role)].Prefixes
	out := make([]string, len(prefixes))
	copy(out, prefixes)
	return out
}

// Allowed reports whether path lies inside role's permitted prefixes.
func (m *Menus) Allowed(role, path string) bool {
	return underAny(cleanPath(path), m.roles[NormaliseRole(role)].Prefixes)
}

// Group finds a group entry by id across every role.
func (m *Menus) Group(id string) (Entry, bool) {
	for _, menu := range m.roles {
		if e, ok := findGroup(menu.Menu, id); ok {
			return e, true
		}
	}
	return Entry{}, false
}

func findGroup(entries []Entry, id string) (Entry, bool) {
	for _, e := range entries {
		if e.ID == id && e.IsGroup() {
			return e, true
		}
		if found, ok := findGroup(e.Children, id); ok {
			return found, true
		}
	}
	return Entry{}, false
}

func cloneEntries(in []Entry) []Entry {
	if in == nil {
		return nil
	}
	out := make([]Entry, len(in))
	for i, e := range in {
		out[i] = e
		out[i].Children = cloneEntries(e.Children)
	}
	return out
}

func cleanPath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
	}
	return p
}

func underAny(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if under(path, prefix) {
			return true
		}
	}
	return false
}

func under(path, prefix string) bool {
	if prefix == "/" {
		return true
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
