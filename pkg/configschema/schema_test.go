package configschema

import (
	"encoding/json"
	"testing"

	"github.com/nimburion/txscope/pkg/config"
)

func TestBuildSchema_UsesLoaderKeys(t *testing.T) {
	schema, err := BuildSchema(nil)
	if err != nil {
		t.Fatalf("build schema: %v", err)
	}

	for _, section := range []string{"service", "database", "observability", "transaction"} {
		if _, ok := schema.Properties[section]; !ok {
			t.Errorf("expected %s section in schema", section)
		}
	}
	if _, ok := schema.Properties["Database"]; ok {
		t.Error("did not expect Go field name as key")
	}
	if lookup(schema, "database", "max_open_conns") == nil {
		t.Error("expected database.max_open_conns")
	}
	if lookup(schema, "transaction", "log_suppressed_errors") == nil {
		t.Error("expected transaction.log_suppressed_errors")
	}
}

func TestBuildSchema_InjectsDefaults(t *testing.T) {
	schema, err := BuildSchema(nil)
	if err != nil {
		t.Fatalf("build schema: %v", err)
	}

	tests := []struct {
		path []string
		want string
	}{
		{[]string{"database", "type"}, `"postgres"`},
		{[]string{"database", "max_open_conns"}, `10`},
		{[]string{"transaction", "timeout"}, `"30s"`},
		{[]string{"transaction", "log_suppressed_errors"}, `true`},
	}
	for _, tt := range tests {
		prop := lookup(schema, tt.path...)
		if prop == nil {
			t.Fatalf("missing property %v", tt.path)
		}
		if string(prop.Default) != tt.want {
			t.Errorf("%v default = %s, want %s", tt.path, prop.Default, tt.want)
		}
	}
}

func TestBuildSchema_CustomDefaultsAndConstraints(t *testing.T) {
	defaults := config.DefaultConfig()
	defaults.Database.Type = config.DatabaseTypeMySQL

	schema, err := BuildSchema(defaults)
	if err != nil {
		t.Fatalf("build schema: %v", err)
	}

	dbType := lookup(schema, "database", "type")
	if string(dbType.Default) != `"mysql"` {
		t.Errorf("database.type default = %s", dbType.Default)
	}
	if len(dbType.Enum) != 2 {
		t.Errorf("expected database.type enum, got %v", dbType.Enum)
	}

	rate := lookup(schema, "observability", "tracing_sample_rate")
	if rate.Minimum == nil || rate.Maximum == nil || *rate.Maximum != 1 {
		t.Errorf("expected 0..1 bounds on tracing_sample_rate")
	}
	if len(schema.Required) != 0 {
		t.Errorf("expected defaults to satisfy required fields, got %v", schema.Required)
	}
}

func TestBuildSchema_MarshalsToJSON(t *testing.T) {
	schema, err := BuildSchema(nil)
	if err != nil {
		t.Fatalf("build schema: %v", err)
	}
	data, err := json.Marshal(schema)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["title"] != "txscope configuration" {
		t.Errorf("unexpected title: %v", decoded["title"])
	}
}
