package schema

import (
	"bytes"
	"context"
	"crypto/sha256"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	js "github.com/santhosh-tekuri/jsonschema/v5"
)

// buttonTreeSchema constrains admin-submitted button trees: ids and labels
// present, recursion through subButtons, the color and method enums.
//
//go:embed buttontree.json
var buttonTreeSchema []byte

// Compiler compiles JSON Schemas and caches the compiled form, keyed by the
// schema document itself. Bot config writes validate on every request, so the
// button tree schema stays hot in the cache.
type Compiler struct {
	compiler *js.Compiler
	cache    *expirable.LRU[string, *js.Schema]
}

// NewCompilerWithCache creates a new compiler with cache
func NewCompilerWithCache(maxSize int) *Compiler {
	c := js.NewCompiler()
	c.ExtractAnnotations = true

	return &Compiler{
		compiler: c,
		cache:    expirable.NewLRU[string, *js.Schema](maxSize, nil, time.Hour),
	}
}

func (c *Compiler) key(schema []byte) string {
	return string(schema)
}

// Prepare compiles and caches a schema document
func (c *Compiler) Prepare(ctx context.Context, schema []byte) error {
	key := c.key(schema)
	if _, ok := c.cache.Get(key); ok {
		return nil
	}

	// Full digest keeps resource names unique per document; AddResource
	// rejects re-registering a URL with different content
	sum := sha256.Sum256(schema)
	resourceURL := fmt.Sprintf("mem://schema/%x.json", sum)
	if err := c.compiler.AddResource(resourceURL, bytes.NewReader(schema)); err != nil {
		return fmt.Errorf("failed to add resource: %w", err)
	}

	compiled, err := c.compiler.Compile(resourceURL)
	if err != nil {
		return fmt.Errorf("failed to compile schema: %w", err)
	}

	c.cache.Add(key, compiled)
	return nil
}

// Validate validates a value against a schema document
func (c *Compiler) Validate(ctx context.Context, schema []byte, value interface{}) error {
	key := c.key(schema)
	compiled, ok := c.cache.Get(key)
	if !ok {
		if err := c.Prepare(ctx, schema); err != nil {
			return err
		}
		compiled, _ = c.cache.Get(key)
		if compiled == nil {
			return fmt.Errorf("schema not found in cache after preparation")
		}
	}

	// Round-trip through JSON so struct values validate the same as raw maps
	valueBytes, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	var valueRaw interface{}
	if err := json.Unmarshal(valueBytes, &valueRaw); err != nil {
		return fmt.Errorf("failed to unmarshal value: %w", err)
	}

	if err := compiled.Validate(valueRaw); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	return nil
}

// ValidateButtonTree validates a button list against the embedded tree schema
func (c *Compiler) ValidateButtonTree(ctx context.Context, buttons interface{}) error {
	return c.Validate(ctx, buttonTreeSchema, buttons)
}
