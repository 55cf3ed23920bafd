package llm

import (
	"encoding/json"
	"reflect"
	"slices"
	"strings"
)

// Names of the response shapes the pipeline asks models for.
const (
	SchemaResearchQueries     = "ResearchQueries"
	SchemaFeastSummaries      = "FeastSummaries"
	SchemaFixedScript         = "FixedScript"
	SchemaCastScript          = "CastScript"
	SchemaEpisodeDescriptions = "EpisodeDescriptions"
)

// SchemaSpec is what a provider needs to ask for a response shape: a compact
// example for JSON-mode prompts and a JSON Schema for native structured
// output.
type SchemaSpec struct {
	Description string
	JSONSchema  map[string]any
}

var registry = map[string]SchemaSpec{
	SchemaResearchQueries: {
		Description: `{"queries": ["string"]}`,
		JSONSchema: object(map[string]any{
			"queries": array(str()),
		}),
	},
	SchemaFeastSummaries: {
		Description: `{"feasts": [{"Title": "string", "Calendars": ["string"], "Summary": "string", "Themes": ["string"], "CommemorationIdeas": ["string"], "DiscussionQuestion": "string", "Traditions": ["string"]}]}`,
		JSONSchema: object(map[string]any{
			"feasts": array(object(map[string]any{
				"Title":              str(),
				"Calendars":          array(str()),
				"Summary":            str(),
				"Themes":             array(str()),
				"CommemorationIdeas": array(str()),
				"DiscussionQuestion": str(),
				"Traditions":         array(str()),
			})),
		}),
	},
	SchemaFixedScript: {
		Description: `{"lines": [{"PodcastHostName": "string", "Content": "string", "SystemInstructions": "string"}]}`,
		JSONSchema: object(map[string]any{
			"lines": array(object(map[string]any{
				"PodcastHostName":    str(),
				"Content":            str(),
				"SystemInstructions": nullableStr(),
			})),
		}),
	},
	SchemaCastScript: {
		Description: `{"title": "string", "saint_name": "string", "characters": ["string"], "script_lines": [{"character": "string", "text": "string"}], "voices": [{"character": "string", "voice_id": "string"}]}`,
		JSONSchema: object(map[string]any{
			"title":      str(),
			"saint_name": str(),
			"characters": array(str()),
			"script_lines": array(object(map[string]any{
				"character": str(),
				"text":      str(),
			})),
			"voices": array(object(map[string]any{
				"character": str(),
				"voice_id":  str(),
			})),
		}),
	},
	SchemaEpisodeDescriptions: {
		Description: `{"subtitle": "string", "short_description": "string", "long_description": "string"}`,
		JSONSchema: object(map[string]any{
			"subtitle":          str(),
			"short_description": str(),
			"long_description":  str(),
		}),
	},
}

// LookupSchema returns the registered spec for target, deriving one from the
// target's JSON field tags when the name is unknown.
func LookupSchema(target Schema) SchemaSpec {
	if spec, ok := registry[target.SchemaName()]; ok {
		return spec
	}
	t := reflect.TypeOf(target)
	example, _ := json.Marshal(describeType(t))
	return SchemaSpec{
		Description: string(example),
		JSONSchema:  jsonSchemaFor(t),
	}
}

// schemaInstruction is appended to the system message for providers without
// native structured output.
func schemaInstruction(spec SchemaSpec) string {
	return "\n\nIMPORTANT: Return your response as valid JSON that matches this exact structure: " + spec.Description
}

func object(props map[string]any) map[string]any {
	required := make([]string, 0, len(props))
	for name := range props {
		required = append(required, name)
	}
	slices.Sort(required)
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

func array(items map[string]any) map[string]any {
	return map[string]any{"type": "array", "items": items}
}

func str() map[string]any { return map[string]any{"type": "string"} }

func nullableStr() map[string]any { return map[string]any{"type": []string{"string", "null"}} }

// describeType renders an example value for t: strings as "string", numbers
// as "number", slices as one-element lists.
func describeType(t reflect.Type) any {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Struct:
		out := map[string]any{}
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			name, ok := jsonName(f)
			if !ok {
				continue
			}
			out[name] = describeType(f.Type)
		}
		return out
	case reflect.Slice, reflect.Array:
		return []any{describeType(t.Elem())}
	case reflect.Bool:
		return "boolean"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return "number"
	default:
		return "string"
	}
}

func jsonSchemaFor(t reflect.Type) map[string]any {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Struct:
		props := map[string]any{}
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			name, ok := jsonName(f)
			if !ok {
				continue
			}
			props[name] = jsonSchemaFor(f.Type)
		}
		return object(props)
	case reflect.Slice, reflect.Array:
		return array(jsonSchemaFor(t.Elem()))
	case reflect.Bool:
		return map[string]any{"type": "boolean"}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return map[string]any{"type": "integer"}
	case reflect.Float32, reflect.Float64:
		return map[string]any{"type": "number"}
	default:
		return str()
	}
}

func jsonName(f reflect.StructField) (string, bool) {
	if !f.IsExported() {
		return "", false
	}
	tag := f.Tag.Get("json")
	if tag == "-" {
		return "", false
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		name = f.Name
	}
	return name, true
}
