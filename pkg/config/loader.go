package config

import (
	"fmt"
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// Load builds the configuration from defaults overridden by environment
// variables declared through `env` struct tags.
func Load() (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}
	envToPath := envMappings(reflect.TypeOf(Config{}), "")
	if err := k.Load(env.Provider(".", env.Opt{
		TransformFunc: func(key string, value string) (string, any) {
			if path, ok := envToPath[key]; ok {
				return path, value
			}
			// Unmapped variables are dropped rather than guessed at.
			return "", nil
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}
	cfg := &Config{}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return cfg, nil
}

// envMappings walks the config struct and collects env-var-to-koanf-path
// pairs from the `env` and `koanf` tags.
func envMappings(t reflect.Type, prefix string) map[string]string {
	mappings := make(map[string]string)
	for i := range t.NumField() {
		field := t.Field(i)
		path := field.Tag.Get("koanf")
		if path == "" {
			continue
		}
		if prefix != "" {
			path = prefix + "." + path
		}
		if envVar := field.Tag.Get("env"); envVar != "" {
			mappings[envVar] = path
		}
		if field.Type.Kind() == reflect.Struct && field.Type.String() != "time.Duration" {
			for k, v := range envMappings(field.Type, path) {
				mappings[k] = v
			}
		}
	}
	return mappings
}
