package config

import (
	"reflect"
	"strings"
)

// normalizeLegacyConfigMap maps legacy YAML keys (without underscores) to the
// canonical snake_case keys defined by mapstructure tags. It mutates and returns
// the provided map.
func normalizeLegacyConfigMap(data map[string]interface{}) map[string]interface{} {
	if data == nil {
		return nil
	}
	applyLegacyPathMappings(data)
	return normalizeMapForStruct(data, reflect.TypeOf(Config{}))
}

// applyLegacyPathMappings rewrites keys from older, pre-§6 config layouts
// into their current location so existing project configs keep working
// across a schema change.
func applyLegacyPathMappings(data map[string]interface{}) {
	if git, ok := data["git"].(map[string]interface{}); ok {
		if worktree, ok := git["worktree"].(map[string]interface{}); ok {
			if val, ok := worktree["dir"]; ok {
				if _, exists := data["worktree"]; !exists {
					data["worktree"] = val
				}
			}
		}
		if val, ok := git["auto_commit"]; ok {
			if _, exists := data["autoCommit"]; !exists {
				data["autoCommit"] = val
			}
		}
		delete(data, "git")
	}

	if agents, ok := data["agents"].(map[string]interface{}); ok {
		if val, ok := agents["default"]; ok {
			if _, exists := data["agent"]; !exists {
				data["agent"] = val
			}
		}
		delete(data, "agents")
	}
}

func normalizeMapForStruct(data map[string]interface{}, t reflect.Type) map[string]interface{} {
	if data == nil {
		return nil
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return data
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		name := canonicalTagName(field)
		if name == "" || name == "-" {
			continue
		}

		legacy := strings.ReplaceAll(name, "_", "")
		if legacy != name {
			if val, ok := data[legacy]; ok {
				if _, exists := data[name]; !exists {
					data[name] = val
				}
				delete(data, legacy)
			}
		}

		if val, ok := data[name]; ok {
			data[name] = normalizeValueForType(val, field.Type)
		}
	}

	return data
}

func normalizeValueForType(value interface{}, t reflect.Type) interface{} {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	switch t.Kind() {
	case reflect.Struct:
		if m, ok := value.(map[string]interface{}); ok {
			return normalizeMapForStruct(m, t)
		}
	case reflect.Slice:
		// Only normalize slices of structs/pointers to structs.
		if t.Elem().Kind() == reflect.Struct || (t.Elem().Kind() == reflect.Pointer && t.Elem().Elem().Kind() == reflect.Struct) {
			if list, ok := value.([]interface{}); ok {
				out := make([]interface{}, 0, len(list))
				for _, item := range list {
					out = append(out, normalizeValueForType(item, t.Elem()))
				}
				return out
			}
		}
	}

	return value
}

func canonicalTagName(field reflect.StructField) string {
	if tag := field.Tag.Get("mapstructure"); tag != "" {
		return strings.Split(tag, ",")[0]
	}
	if tag := field.Tag.Get("yaml"); tag != "" {
		return strings.Split(tag, ",")[0]
	}
	return strings.ToLower(field.Name)
}
