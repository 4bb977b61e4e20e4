// Package starlark evaluates an optional properties script at engine
// startup. The script computes the free-form optimizer properties that go
// into the framework configuration, so deployments can derive hints from
// the dialect and configured sources instead of hardcoding them.
package starlark

import (
	"fmt"
	"sort"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"
)

// Inputs are the read-only globals exposed to the properties script.
type Inputs struct {
	Dialect       string
	DefaultSource string
	Sources       []string
	// Base properties from the config file, visible to the script as a
	// dict so it can extend rather than replace them.
	Base map[string]string
}

// target is exposed to the script as a struct value.
func (in Inputs) target() starlark.Value {
	return starlarkstruct.FromStringDict(starlark.String("target"), starlark.StringDict{
		"dialect":        starlark.String(in.Dialect),
		"default_source": starlark.String(in.DefaultSource),
	})
}

func (in Inputs) sourceList() starlark.Value {
	names := make([]starlark.Value, len(in.Sources))
	for i, s := range in.Sources {
		names[i] = starlark.String(s)
	}
	return starlark.NewList(names)
}

func (in Inputs) baseDict() (starlark.Value, error) {
	dict := starlark.NewDict(len(in.Base))
	keys := make([]string, 0, len(in.Base))
	for k := range in.Base {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := dict.SetKey(starlark.String(k), starlark.String(in.Base[k])); err != nil {
			return nil, err
		}
	}
	return dict, nil
}

// EvalFile executes the script at path and returns its exported
// "properties" dict merged over the base properties. The script must
// assign a dict of string keys to the module-global "properties"; values
// are stringified.
func EvalFile(path string, in Inputs) (map[string]string, error) {
	base, err := in.baseDict()
	if err != nil {
		return nil, fmt.Errorf("properties script %s: %w", path, err)
	}

	predeclared := starlark.StringDict{
		"target":     in.target(),
		"sources":    in.sourceList(),
		"properties": base,
	}

	thread := &starlark.Thread{
		Name:  "properties",
		Print: func(_ *starlark.Thread, _ string) {},
	}

	globals, err := starlark.ExecFileOptions(syntax.LegacyFileOptions(), thread, path, nil, predeclared)
	if err != nil {
		return nil, fmt.Errorf("properties script %s: %w", path, err)
	}

	exported, ok := globals["properties"]
	if !ok {
		// Script may mutate the predeclared dict in place.
		exported = base
	}
	return propertiesFromValue(exported, in.Base)
}

// propertiesFromValue converts the exported dict to a string map, merged
// over base.
func propertiesFromValue(v starlark.Value, base map[string]string) (map[string]string, error) {
	dict, ok := v.(*starlark.Dict)
	if !ok {
		return nil, fmt.Errorf("properties must be a dict, got %s", v.Type())
	}

	out := make(map[string]string, len(base)+dict.Len())
	for k, val := range base {
		out[k] = val
	}
	for _, item := range dict.Items() {
		key, ok := starlark.AsString(item[0])
		if !ok {
			return nil, fmt.Errorf("property keys must be strings, got %s", item[0].Type())
		}
		s, err := stringify(item[1])
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", key, err)
		}
		out[key] = s
	}
	return out, nil
}

// stringify renders script values as property strings.
func stringify(v starlark.Value) (string, error) {
	switch val := v.(type) {
	case starlark.String:
		return string(val), nil
	case starlark.Int:
		return val.String(), nil
	case starlark.Float:
		return val.String(), nil
	case starlark.Bool:
		if bool(val) {
			return "true", nil
		}
		return "false", nil
	case starlark.NoneType:
		return "", nil
	default:
		return "", fmt.Errorf("unsupported value type %s", v.Type())
	}
}
