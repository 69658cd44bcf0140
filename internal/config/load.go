package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. NT_SYNC_INTERVAL.
const EnvPrefix = "NT"

// Load reads path, applies environment overrides and validates the result.
// A missing file is an error unless path is DefaultPath, in which case the
// defaults and the environment are used alone.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	v := viper.New()
	if err := setDefaults(v); err != nil {
		return nil, err
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("notion.token", EnvPrefix+"_NOTION_TOKEN", "NOTION_TOKEN")
	_ = v.BindEnv("todoist.token", EnvPrefix+"_TODOIST_TOKEN", "TODOIST_TOKEN")

	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) || path != DefaultPath {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key of Default so environment overrides apply
// to keys the file leaves out.
func setDefaults(v *viper.Viper) error {
	raw, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("encode defaults: %w", err)
	}
	var tree map[string]any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return fmt.Errorf("decode defaults: %w", err)
	}
	flatten("", tree, v.SetDefault)
	return nil
}

func flatten(prefix string, tree map[string]any, set func(string, any)) {
	for k, val := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := val.(map[string]any); ok && len(sub) > 0 {
			flatten(key, sub, set)
			continue
		}
		set(key, val)
	}
}
