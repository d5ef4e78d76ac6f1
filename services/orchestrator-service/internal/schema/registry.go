// Package schema owns the versioned event schemas and the emission gate that
// enforces them. No event leaves the process without passing through here.
package schema

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const resourceBase = "https://schemas.paystream.local/"

// Registry holds the compiled schema for every registered event type, keyed by
// schema name (e.g. "payment_settled.v1").
type Registry struct {
	compiled map[string]*jsonschema.Schema
}

// NewRegistry compiles every embedded schema document. Schema names derive
// from the file names, so payment_settled.v1.json registers the event type
// PaymentSettled at version 1.
func NewRegistry() (*Registry, error) {
	r := &Registry{compiled: make(map[string]*jsonschema.Schema)}

	entries, err := fs.ReadDir(schemaFS, "schemas")
	if err != nil {
		return nil, fmt.Errorf("read embedded schemas: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".json")
		if _, _, err := EventType(name); err != nil {
			return nil, fmt.Errorf("schema file %q: %w", entry.Name(), err)
		}

		raw, err := schemaFS.ReadFile("schemas/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read schema %q: %w", name, err)
		}
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		url := resourceBase + name + ".json"
		if err := c.AddResource(url, strings.NewReader(string(raw))); err != nil {
			return nil, fmt.Errorf("load schema %q: %w", name, err)
		}
		compiled, err := c.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("compile schema %q: %w", name, err)
		}
		r.compiled[name] = compiled
	}
	if len(r.compiled) == 0 {
		return nil, fmt.Errorf("no schemas registered")
	}
	return r, nil
}

// SchemaName maps a declared event type and version to its schema identifier:
// PaymentSettled, 1 -> payment_settled.v1. The transform is reversed exactly
// by EventType.
func SchemaName(eventType string, version int) string {
	var b strings.Builder
	for i, r := range eventType {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return fmt.Sprintf("%s.v%d", b.String(), version)
}

// EventType reverses SchemaName: payment_settled.v1 -> PaymentSettled, 1.
func EventType(schemaName string) (string, int, error) {
	base, versionPart, ok := strings.Cut(schemaName, ".v")
	if !ok || base == "" {
		return "", 0, fmt.Errorf("schema name %q is not of the form <event>.v<version>", schemaName)
	}
	version, err := strconv.Atoi(versionPart)
	if err != nil || version < 1 {
		return "", 0, fmt.Errorf("schema name %q has invalid version %q", schemaName, versionPart)
	}
	var b strings.Builder
	for _, part := range strings.Split(base, "_") {
		if part == "" {
			return "", 0, fmt.Errorf("schema name %q has an empty segment", schemaName)
		}
		b.WriteString(strings.ToUpper(part[:1]))
		b.WriteString(part[1:])
	}
	return b.String(), version, nil
}

// EventTypes recovers the full list of supported event types from the set of
// registered schemas, sorted for determinism.
func (r *Registry) EventTypes() []string {
	types := make([]string, 0, len(r.compiled))
	for name := range r.compiled {
		eventType, _, err := EventType(name)
		if err != nil {
			continue
		}
		types = append(types, eventType)
	}
	sort.Strings(types)
	return types
}

// Has reports whether a schema is registered for the event type and version.
func (r *Registry) Has(eventType string, version int) bool {
	_, ok := r.compiled[SchemaName(eventType, version)]
	return ok
}

// Validate checks a payload against the registered schema for the event type
// and version.
func (r *Registry) Validate(eventType string, version int, payload map[string]any) error {
	name := SchemaName(eventType, version)
	compiled, ok := r.compiled[name]
	if !ok {
		return &UnregisteredEventTypeError{EventType: eventType, SchemaName: name}
	}

	// Normalize to plain JSON values so Go-native types (ints, structs)
	// validate the same way a decoded wire payload would.
	raw, err := json.Marshal(payload)
	if err != nil {
		return &SchemaViolationError{EventType: eventType, SchemaName: name, Cause: err}
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return &SchemaViolationError{EventType: eventType, SchemaName: name, Cause: err}
	}

	if err := compiled.Validate(doc); err != nil {
		return &SchemaViolationError{EventType: eventType, SchemaName: name, Cause: err}
	}
	return nil
}
