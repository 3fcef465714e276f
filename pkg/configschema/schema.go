// Package configschema generates a JSON Schema for the txscope
// configuration file, keyed the way the loader reads it.
package configschema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/nimburion/txscope/pkg/config"
)

var durationType = reflect.TypeOf(time.Duration(0))

// BuildSchema returns a JSON Schema for config.Config. Defaults come from
// defaults, or config.DefaultConfig() when nil.
func BuildSchema(defaults *config.Config) (*jsonschema.Schema, error) {
	opts := &jsonschema.ForOptions{IgnoreInvalidTypes: true}

	configType := reflect.TypeOf(config.Config{})
	schema, err := jsonschema.ForType(configType, opts)
	if err != nil {
		return nil, fmt.Errorf("build config schema: %w", err)
	}
	applyFieldNames(schema, configType)

	if defaults == nil {
		defaults = config.DefaultConfig()
	}
	injectDefaults(schema, reflect.ValueOf(defaults))
	pruneRequiredWithDefaults(schema)
	applyConstraints(schema)

	schema.Title = "txscope configuration"
	schema.Description = "Schema for the txscope configuration file. Environment variables prefixed with " +
		config.DefaultEnvPrefix + "_ override file values."
	schema.Schema = "https://json-schema.org/draft/2020-12/schema"
	return schema, nil
}

// applyConstraints mirrors the loader's validation rules.
func applyConstraints(schema *jsonschema.Schema) {
	if prop := lookup(schema, "database", "type"); prop != nil {
		prop.Enum = []any{config.DatabaseTypePostgres, config.DatabaseTypeMySQL}
	}
	if prop := lookup(schema, "observability", "log_level"); prop != nil {
		prop.Enum = []any{"debug", "info", "warn", "error"}
	}
	if prop := lookup(schema, "observability", "log_format"); prop != nil {
		prop.Enum = []any{"json", "text"}
	}
	if prop := lookup(schema, "observability", "tracing_sample_rate"); prop != nil {
		lo, hi := 0.0, 1.0
		prop.Minimum = &lo
		prop.Maximum = &hi
	}
	for _, name := range []string{"max_open_conns", "max_idle_conns"} {
		if prop := lookup(schema, "database", name); prop != nil {
			zero := 0.0
			prop.Minimum = &zero
		}
	}
}

func lookup(schema *jsonschema.Schema, path ...string) *jsonschema.Schema {
	for _, name := range path {
		if schema == nil {
			return nil
		}
		schema = schema.Properties[name]
	}
	return schema
}

// applyFieldNames renames properties from Go field names to the
// mapstructure keys the loader uses.
func applyFieldNames(schema *jsonschema.Schema, t reflect.Type) {
	if schema == nil || t == nil {
		return
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct || len(schema.Properties) == 0 {
		return
	}

	nameMap := make(map[string]string)
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		jsonName, omit := jsonFieldName(field)
		if omit {
			continue
		}
		desired := fieldKeyName(field)
		nameMap[jsonName] = desired
		prop, ok := schema.Properties[jsonName]
		if !ok {
			continue
		}
		delete(schema.Properties, jsonName)
		if field.Type == durationType {
			// durations are written as strings like "30s"
			prop = &jsonschema.Schema{Type: "string"}
		}
		schema.Properties[desired] = prop
		applyFieldNames(prop, field.Type)
	}

	schema.Required = renameAll(schema.Required, nameMap)
	schema.PropertyOrder = renameAll(schema.PropertyOrder, nameMap)
}

func renameAll(names []string, nameMap map[string]string) []string {
	if len(names) == 0 {
		return names
	}
	out := make([]string, 0, len(names))
	for _, name := range names {
		if mapped, ok := nameMap[name]; ok {
			name = mapped
		}
		out = append(out, name)
	}
	return out
}

func injectDefaults(schema *jsonschema.Schema, value reflect.Value) {
	if schema == nil || !value.IsValid() {
		return
	}
	for value.Kind() == reflect.Pointer {
		if value.IsNil() {
			return
		}
		value = value.Elem()
	}

	if value.Kind() != reflect.Struct {
		if schema.Default == nil {
			if raw, ok := marshalDefault(schema, value); ok {
				schema.Default = raw
			}
		}
		return
	}

	t := value.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		if prop, ok := schema.Properties[fieldKeyName(field)]; ok {
			injectDefaults(prop, value.Field(i))
		}
	}
}

// pruneRequiredWithDefaults drops required entries that have a default,
// since the loader fills them in.
func pruneRequiredWithDefaults(schema *jsonschema.Schema) {
	if schema == nil {
		return
	}
	for _, prop := range schema.Properties {
		pruneRequiredWithDefaults(prop)
	}
	if len(schema.Required) == 0 {
		return
	}
	kept := make([]string, 0, len(schema.Required))
	for _, name := range schema.Required {
		prop := schema.Properties[name]
		if prop == nil || prop.Default == nil {
			kept = append(kept, name)
		}
	}
	schema.Required = kept
}

func marshalDefault(schema *jsonschema.Schema, value reflect.Value) (json.RawMessage, bool) {
	var v any = value.Interface()
	if value.Type() == durationType && schema.Type == "string" {
		v = value.Interface().(time.Duration).String()
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	return payload, true
}

func fieldKeyName(field reflect.StructField) string {
	for _, key := range []string{"mapstructure", "yaml"} {
		if name, _, _ := strings.Cut(field.Tag.Get(key), ","); name != "" && name != "-" {
			return name
		}
	}
	return strings.ToLower(field.Name)
}

func jsonFieldName(field reflect.StructField) (string, bool) {
	if !field.IsExported() {
		return "", true
	}
	name := field.Name
	if tag, ok := field.Tag.Lookup("json"); ok {
		tagName, _, found := strings.Cut(tag, ",")
		if tagName == "-" && !found {
			return "", true
		}
		if tagName != "" {
			name = tagName
		}
	}
	return name, false
}
