package config

import (
	"context"
	"strings"
	"testing"
)

func TestSchemaRegistry_BuiltIn(t *testing.T) {
	sr := NewSchemaRegistry()

	schema, ok := sr.schema(SchemaConfig)
	if !ok {
		t.Fatalf("built-in schema %s not found", SchemaConfig)
	}
	if schema.Err() != nil {
		t.Fatalf("built-in schema has errors: %v", schema.Err())
	}
	if len(sr.schemas) != 1 {
		t.Fatalf("registered %d schemas, want 1", len(sr.schemas))
	}
}

func TestSchemaRegistry_RegisterSchema(t *testing.T) {
	sr := NewSchemaRegistry()

	err := sr.RegisterSchema("hooks", "#Hooks", `
#Hooks: {
	changelog?: string
	timeout?:   int & >0
}
`)
	if err != nil {
		t.Fatalf("RegisterSchema() error = %v", err)
	}

	if err := sr.ValidateAgainstSchema(context.Background(), "hooks", map[string]interface{}{"timeout": 5}); err != nil {
		t.Fatalf("valid document rejected: %v", err)
	}
	if err := sr.ValidateAgainstSchema(context.Background(), "hooks", map[string]interface{}{"timeout": 0}); err == nil {
		t.Fatal("expected constraint violation")
	}
}

func TestSchemaRegistry_RegisterSchemaErrors(t *testing.T) {
	sr := NewSchemaRegistry()

	if err := sr.RegisterSchema("bad", "#Bad", `#Bad: {`); err == nil {
		t.Error("expected compile error")
	}
	if err := sr.RegisterSchema("missing", "#Missing", `#Other: {}`); err == nil {
		t.Error("expected missing definition error")
	}
	if err := sr.ValidateAgainstSchema(context.Background(), "nope", nil); err == nil {
		t.Error("expected unknown schema error")
	}
}

func TestSchemaRegistry_ValidateConfig(t *testing.T) {
	sr := NewSchemaRegistry()
	ctx := context.Background()

	tests := []struct {
		name    string
		data    map[string]interface{}
		wantErr string
	}{
		{
			name: "empty document",
			data: map[string]interface{}{},
		},
		{
			name: "full document",
			data: map[string]interface{}{
				"remote":    "staging",
				"hooks_dir": ".hu/hooks",
				"journal": map[string]interface{}{
					"enabled":       true,
					"path":          "/tmp/hu.db",
					"history_limit": 50,
				},
				"telemetry": map[string]interface{}{
					"logging": map[string]interface{}{"level": "debug"},
					"tracing": map[string]interface{}{
						"enabled":        true,
						"exporter":       "stdout",
						"export_timeout": "5s",
					},
				},
			},
		},
		{
			name:    "unknown key",
			data:    map[string]interface{}{"remotes": "heroku"},
			wantErr: "remotes",
		},
		{
			name:    "remote with slash",
			data:    map[string]interface{}{"remote": "origin/heroku"},
			wantErr: "remote",
		},
		{
			name: "bad log level",
			data: map[string]interface{}{
				"telemetry": map[string]interface{}{
					"logging": map[string]interface{}{"level": "loud"},
				},
			},
			wantErr: "level",
		},
		{
			name: "negative history limit",
			data: map[string]interface{}{
				"journal": map[string]interface{}{"history_limit": -1},
			},
			wantErr: "history_limit",
		},
		{
			name:    "api url scheme",
			data:    map[string]interface{}{"api_url": "ftp://example.com"},
			wantErr: "api_url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := sr.ValidateAgainstSchema(ctx, SchemaConfig, tt.data)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error mentioning %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestSchemaRegistry_ValidateCancelled(t *testing.T) {
	sr := NewSchemaRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := sr.ValidateAgainstSchema(ctx, SchemaConfig, map[string]interface{}{}); err == nil {
		t.Fatal("expected context error")
	}
}
