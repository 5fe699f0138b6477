package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

var configType = reflect.TypeOf(Config{})

// toJSON returns JSON bytes for the strict decoder in Decode, and the source
// format ("json" or "yaml").
//
// YAML is walked against the Config struct so errors carry the key path and
// line ("yaml line 7: handler.commands[1]: expected a list"). Scalars bound
// for string fields keep their literal text, so `flush_every: 0` or
// `timeout: 30` decode as "0" and "30" instead of failing as numbers.
func toJSON(path string, data []byte) ([]byte, string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return data, "json", nil
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, "yaml", fmt.Errorf("yaml: %w", err)
	}
	if len(doc.Content) == 0 {
		return []byte("{}"), "yaml", nil
	}

	v, err := nodeValue(doc.Content[0], "", configType)
	if err != nil {
		return nil, "yaml", err
	}
	j, err := json.Marshal(v)
	if err != nil {
		return nil, "yaml", fmt.Errorf("yaml->json: %w", err)
	}
	return j, "yaml", nil
}

// nodeValue converts n into a JSON-marshalable value. t is the Go type the
// value will land in; nil means "unknown, convert generically".
func nodeValue(n *yaml.Node, key string, t reflect.Type) (any, error) {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	switch n.Kind {
	case yaml.AliasNode:
		return nodeValue(n.Alias, key, t)

	case yaml.MappingNode:
		if t != nil && t.Kind() != reflect.Struct && t.Kind() != reflect.Map && t.Kind() != reflect.Interface {
			return nil, nodeErr(n, key, "expected %s, got a mapping", kindName(t))
		}
		fields := jsonFields(t)
		out := make(map[string]any, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			k, val := n.Content[i], n.Content[i+1]
			if k.Kind != yaml.ScalarNode {
				return nil, nodeErr(k, key, "keys must be scalars")
			}
			child := joinKey(key, k.Value)
			var ft reflect.Type
			if fields != nil {
				var ok bool
				if ft, ok = fields[k.Value]; !ok {
					return nil, nodeErr(k, child, "unknown key")
				}
			} else if t != nil && t.Kind() == reflect.Map {
				ft = t.Elem()
			}
			v, err := nodeValue(val, child, ft)
			if err != nil {
				return nil, err
			}
			out[k.Value] = v
		}
		return out, nil

	case yaml.SequenceNode:
		if t != nil && t.Kind() != reflect.Slice && t.Kind() != reflect.Interface {
			return nil, nodeErr(n, key, "expected %s, got a list", kindName(t))
		}
		var et reflect.Type
		if t != nil && t.Kind() == reflect.Slice {
			et = t.Elem()
		}
		out := make([]any, 0, len(n.Content))
		for i, c := range n.Content {
			v, err := nodeValue(c, fmt.Sprintf("%s[%d]", key, i), et)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil

	case yaml.ScalarNode:
		if n.Tag == "!!null" {
			return nil, nil
		}
		if t != nil {
			switch t.Kind() {
			case reflect.String:
				return n.Value, nil
			case reflect.Struct, reflect.Slice:
				return nil, nodeErr(n, key, "expected %s, got %q", kindName(t), n.Value)
			}
		}
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, nodeErr(n, key, "%v", err)
		}
		return v, nil
	}
	return nil, nodeErr(n, key, "unsupported yaml node")
}

// jsonFields maps json tag names to field types for struct t.
func jsonFields(t reflect.Type) map[string]reflect.Type {
	if t == nil || t.Kind() != reflect.Struct {
		return nil
	}
	out := make(map[string]reflect.Type, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		switch name {
		case "-":
			continue
		case "":
			name = f.Name
		}
		out[name] = f.Type
	}
	return out
}

func kindName(t reflect.Type) string {
	switch t.Kind() {
	case reflect.Struct, reflect.Map:
		return "a mapping"
	case reflect.Slice:
		return "a list"
	default:
		return "a " + t.Kind().String()
	}
}

func joinKey(parent, k string) string {
	if parent == "" {
		return k
	}
	return parent + "." + k
}

func nodeErr(n *yaml.Node, key, format string, args ...any) error {
	if key == "" {
		key = "(root)"
	}
	return fmt.Errorf("yaml line %d: %s: %s", n.Line, key, fmt.Sprintf(format, args...))
}

// describeJSONError rewrites decoder type errors to name the config key.
func describeJSONError(err error) error {
	var te *json.UnmarshalTypeError
	if errors.As(err, &te) && te.Field != "" {
		return fmt.Errorf("%s: expected %s, got %s", te.Field, te.Type.Kind(), te.Value)
	}
	return err
}
