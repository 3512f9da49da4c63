package api

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Schema names for list and document endpoints.
const (
	SchemaUser           = "user"
	SchemaClients        = "clients"
	SchemaTasks          = "tasks"
	SchemaMessages       = "messages"
	SchemaContent        = "content"
	SchemaPerformance    = "performance"
	SchemaInvoices       = "invoices"
	SchemaWebsites       = "website_projects"
	SchemaSocialAccounts = "social_accounts"
	SchemaNotifications  = "notifications"
)

// SchemaSet holds compiled response schemas keyed by name.
type SchemaSet struct {
	mu       sync.RWMutex
	compiled map[string]*jsonschema.Schema
}

var (
	defaultSchemasOnce sync.Once
	defaultSchemas     *SchemaSet
	defaultSchemasErr  error
)

// DefaultSchemas compiles the embedded schemas once.
func DefaultSchemas() (*SchemaSet, error) {
	defaultSchemasOnce.Do(func() {
		defaultSchemas, defaultSchemasErr = CompileSchemas(schemaFS, "schemas")
	})
	return defaultSchemas, defaultSchemasErr
}

// CompileSchemas compiles every *.json document under dir.
func CompileSchemas(fsys fs.FS, dir string) (*SchemaSet, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("api: read schemas: %w", err)
	}
	set := &SchemaSet{compiled: make(map[string]*jsonschema.Schema, len(entries))}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("api: read schema %s: %w", entry.Name(), err)
		}
		name := strings.TrimSuffix(entry.Name(), ".json")
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(entry.Name(), bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("api: load schema %s: %w", name, err)
		}
		compiled, err := compiler.Compile(entry.Name())
		if err != nil {
			return nil, fmt.Errorf("api: compile schema %s: %w", name, err)
		}
		set.compiled[name] = compiled
	}
	return set, nil
}

// Validate checks raw JSON against the named schema. Unknown names pass.
func (s *SchemaSet) Validate(name string, raw []byte) error {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	schema, ok := s.compiled[name]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return err
	}
	return schema.Validate(doc)
}
