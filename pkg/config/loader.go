// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

var topLevelKeys = map[string]bool{
	"mode": true, "llm": true, "workflows": true, "tools": true,
	"persistence": true, "logging": true, "workspace": true,
	"performance": true, "development": true,
}

// Load reads, decodes, environment-overrides, and validates the
// configuration file at path.
//
// The document is first parsed generically so that ${VAR} / ${VAR:-def}
// references anywhere in a string value are expanded (see env.go), then
// decoded into Config via mapstructure. Environment overrides by dotted
// path are applied after that decode and before validation, per §6.
// Unknown top-level keys are a load error.
func Load(path string) (*Config, error) {
	if err := LoadEnvFiles(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var generic map[string]interface{}
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	for key := range generic {
		if !topLevelKeys[key] {
			return nil, fmt.Errorf("config: unknown top-level key %q", key)
		}
	}

	expanded := ExpandEnvVarsInData(generic)

	var cfg Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		TagName:          "yaml",
	})
	if err != nil {
		return nil, fmt.Errorf("config: build decoder: %w", err)
	}
	if err := decoder.Decode(expanded); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}

	applyEnvOverrides(&cfg, "")

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides walks cfg's string fields and overrides any whose
// dotted path, uppercased, names a set environment variable. Only string
// fields are eligible per §6 ("any string setting").
func applyEnvOverrides(v any, prefix string) {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return
	}

	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		fv := rv.Field(i)
		if !fv.CanSet() {
			continue
		}

		name := yamlFieldName(field)
		if name == "" || name == "-" {
			continue
		}
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}

		switch fv.Kind() {
		case reflect.Struct:
			applyEnvOverrides(fv.Addr().Interface(), path)
		case reflect.Ptr:
			if !fv.IsNil() {
				applyEnvOverrides(fv.Interface(), path)
			}
		case reflect.String:
			if val, ok := os.LookupEnv(envName(path)); ok {
				fv.SetString(val)
			}
		}
	}
}

func yamlFieldName(f reflect.StructField) string {
	tag := f.Tag.Get("yaml")
	if tag == "" {
		return strings.ToLower(f.Name)
	}
	name := strings.Split(tag, ",")[0]
	return name
}

func envName(dottedPath string) string {
	return strings.ToUpper(strings.ReplaceAll(dottedPath, ".", "_"))
}
