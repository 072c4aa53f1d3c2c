package config

import (
	"context"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// Built-in schema names.
const (
	SchemaConfig = "hu"
)

// SchemaRegistry manages CUE definitions used to validate decoded documents.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a registry holding the built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}
	if err := sr.RegisterSchema(SchemaConfig, "#Config", builtinConfigSchema); err != nil {
		panic(fmt.Sprintf("built-in schema %s: %v", SchemaConfig, err))
	}
	return sr
}

// RegisterSchema compiles source and registers the definition named def
// (for example "#Config") under name.
func (sr *SchemaRegistry) RegisterSchema(name, def, source string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(source)
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	schema := val.LookupPath(cue.ParsePath(def))
	if !schema.Exists() {
		return fmt.Errorf("schema %s: definition %s not found", name, def)
	}
	if err := schema.Err(); err != nil {
		return fmt.Errorf("schema %s: %w", name, err)
	}

	sr.schemas[name] = schema
	return nil
}

func (sr *SchemaRegistry) schema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// ValidateAgainstSchema validates data against a named schema. Definitions
// are closed, so unknown keys are rejected.
func (sr *SchemaRegistry) ValidateAgainstSchema(ctx context.Context, schemaName string, data interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	schema, ok := sr.schema(schemaName)
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}

	sr.mu.Lock()
	dataVal := sr.ctx.Encode(data)
	sr.mu.Unlock()
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	unified := schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

const builtinConfigSchema = `
#Duration: string & =~"^[0-9]+(ns|us|ms|s|m|h)$"

#Config: {
	// git remote pointing at the staging app
	remote?: string & =~"^[A-Za-z0-9._-]+$"

	hooks_dir?:      string & !=""
	policy_dir?:     string & !=""
	disabled_policies?: [...string & !=""]
	env_ignore?:     string & !=""
	api_url?:        string & =~"^https?://"
	github_api_url?: string & =~"^https?://"

	journal?: {
		enabled?:       bool
		path?:          string & !=""
		history_limit?: int & >=0 & <=10000
	}

	telemetry?: {
		logging?: {
			level?:       "trace" | "debug" | "info" | "warn" | "error" | "fatal"
			format?:      "console" | "json"
			output?:      string
			caller?:      bool
			time_format?: "unix" | "unixms" | "rfc3339"
		}
		tracing?: {
			enabled?:               bool
			exporter?:              "otlp" | "stdout" | "none"
			endpoint?:              string
			sampling_rate?:         number & >=0 & <=1
			max_export_batch_size?: int & >0
			export_timeout?:        #Duration
			headers?: {[string]: string}
			insecure?: bool
		}
		metrics?: {
			enabled?:        bool
			listen_address?: string
			path?:           string & =~"^/"
			textfile_path?:  string
			namespace?:      string & =~"^[a-z_][a-z0-9_]*$"
			buckets?: [...number]
		}
	}
}
`
