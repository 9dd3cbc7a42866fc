package standards

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// packSchema is the Draft 2020-12 JSON Schema a StandardsPack document
// must satisfy before being admitted to the catalog. Validating at load
// time, rather than trusting the caller, keeps a malformed pack from
// ever reaching rule evaluation.
const packSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["pack_id", "industry", "rules"],
  "properties": {
    "pack_id": {"type": "string", "minLength": 1},
    "industry": {"type": "string", "minLength": 1},
    "rules": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["rule_id", "summary", "trigger", "actions"],
        "properties": {
          "rule_id": {"type": "string", "minLength": 1},
          "summary": {"type": "string"},
          "citations": {"type": "array", "items": {"type": "string"}},
          "trigger": {"type": "object"},
          "actions": {"type": "array", "minItems": 1}
        }
      }
    }
  }
}`

// Validator validates raw StandardsPack JSON documents against the
// compiled pack schema.
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles the pack schema once for reuse across loads.
func NewValidator() (*Validator, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	const url = "https://datumplan.sodiumbank.io/schemas/standards-pack.json"
	if err := c.AddResource(url, strings.NewReader(packSchema)); err != nil {
		return nil, fmt.Errorf("standards: load pack schema: %w", err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("standards: compile pack schema: %w", err)
	}
	return &Validator{schema: compiled}, nil
}

// ValidateRaw validates a raw JSON document against the pack schema.
func (v *Validator) ValidateRaw(data []byte) error {
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return fmt.Errorf("standards: invalid JSON: %w", err)
	}
	if err := v.schema.Validate(generic); err != nil {
		return fmt.Errorf("standards: schema validation failed: %w", err)
	}
	return nil
}

// Registry is the read-only catalog interface the SOE engine depends
// on. Implementations are explicit dependencies passed into each core
// entry point — tests inject an
// in-memory fake, production wires a store-backed implementation.
type Registry interface {
	GetPack(ctx context.Context, packID string) (*Pack, error)
}

// MemoryRegistry is an in-memory, load-once catalog, used by tests and
// by small deployments that ship their pack catalog as bundled fixtures.
type MemoryRegistry struct {
	mu    sync.RWMutex
	packs map[string]*Pack
	v     *Validator
}

// NewMemoryRegistry creates an empty in-memory registry.
func NewMemoryRegistry() (*MemoryRegistry, error) {
	v, err := NewValidator()
	if err != nil {
		return nil, err
	}
	return &MemoryRegistry{packs: make(map[string]*Pack), v: v}, nil
}

// LoadJSON validates and registers a pack from a raw JSON document.
func (r *MemoryRegistry) LoadJSON(data []byte) error {
	if err := r.v.ValidateRaw(data); err != nil {
		return err
	}
	var p Pack
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("standards: decode pack: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.packs[p.PackID] = &p
	return nil
}

// Register adds an already-parsed pack directly (used by tests).
func (r *MemoryRegistry) Register(p *Pack) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.packs[p.PackID] = p
}

// GetPack implements Registry.
func (r *MemoryRegistry) GetPack(ctx context.Context, packID string) (*Pack, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.packs[packID]
	if !ok {
		return nil, fmt.Errorf("standards: pack not found: %s", packID)
	}
	return p, nil
}
