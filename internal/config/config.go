// Package config loads the sync configuration from a YAML file and the
// environment, and validates it against an embedded CUE schema.
package config

import (
	"time"

	"github.com/soimon/notion-todoist/internal/model"
	"github.com/soimon/notion-todoist/internal/notion"
	"github.com/soimon/notion-todoist/internal/strategy"
	"github.com/soimon/notion-todoist/internal/todoist"
)

// DefaultPath is the config file read when --config is not given.
const DefaultPath = "notion-todoist.yaml"

// Config is the full configuration of the sync.
type Config struct {
	Notion  NotionConfig  `mapstructure:"notion" yaml:"notion" json:"notion"`
	Todoist TodoistConfig `mapstructure:"todoist" yaml:"todoist" json:"todoist"`
	Sync    SyncConfig    `mapstructure:"sync" yaml:"sync" json:"sync"`
	State   StateConfig   `mapstructure:"state" yaml:"state" json:"state"`
	Log     LogConfig     `mapstructure:"log" yaml:"log" json:"log"`
	Serve   ServeConfig   `mapstructure:"serve" yaml:"serve" json:"serve"`
}

// NotionConfig configures the Source store.
type NotionConfig struct {
	Token   string `mapstructure:"token" yaml:"token" json:"token"`
	Version string `mapstructure:"version" yaml:"version" json:"version"`
	// Lookback is how long completed tasks keep being fetched.
	Lookback time.Duration `mapstructure:"lookback" yaml:"lookback" json:"lookback"`
	Schema   notion.Schema `mapstructure:"schema" yaml:"schema" json:"schema"`
}

// TodoistConfig configures the Target store.
type TodoistConfig struct {
	Token string `mapstructure:"token" yaml:"token" json:"token"`
	URL   string `mapstructure:"url" yaml:"url" json:"url"`
	// RootProject is the project whose children mirror the Source projects.
	RootProject string `mapstructure:"root_project" yaml:"root_project" json:"root_project"`
	// Inbox receives tasks without a project.
	Inbox string `mapstructure:"inbox" yaml:"inbox" json:"inbox"`
	// LabelColor colors place labels; VerbColor colors verb labels and
	// defaults to LabelColor.
	LabelColor string `mapstructure:"label_color" yaml:"label_color" json:"label_color"`
	VerbColor  string `mapstructure:"verb_color" yaml:"verb_color" json:"verb_color"`
	BatchSize  int    `mapstructure:"batch_size" yaml:"batch_size" json:"batch_size"`
}

// SyncConfig configures the reconciliation policies.
type SyncConfig struct {
	Interval        time.Duration `mapstructure:"interval" yaml:"interval" json:"interval"`
	TaskStrategy    string        `mapstructure:"task_strategy" yaml:"task_strategy" json:"task_strategy"`
	ProjectStrategy string        `mapstructure:"project_strategy" yaml:"project_strategy" json:"project_strategy"`
	RecurringSymbol string        `mapstructure:"recurring_symbol" yaml:"recurring_symbol" json:"recurring_symbol"`
	PostponedSymbol string        `mapstructure:"postponed_symbol" yaml:"postponed_symbol" json:"postponed_symbol"`
}

// StateConfig selects where the boundary and pause flag live.
type StateConfig struct {
	// Backend is "sqlite" or "file".
	Backend string `mapstructure:"backend" yaml:"backend" json:"backend"`
	Path    string `mapstructure:"path" yaml:"path" json:"path"`
	// KeepPasses bounds the pass log; 0 keeps everything.
	KeepPasses int `mapstructure:"keep_passes" yaml:"keep_passes" json:"keep_passes"`
}

// LogConfig configures log output. An empty File logs to stderr.
type LogConfig struct {
	File       string `mapstructure:"file" yaml:"file" json:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups" json:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days" json:"max_age_days"`
}

// ServeConfig configures the trigger server.
type ServeConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr" json:"addr"`
}

// Default returns the configuration used when a key is not set anywhere.
func Default() *Config {
	return &Config{
		Notion: NotionConfig{
			Version:  notion.DefaultVersion,
			Lookback: 7 * 24 * time.Hour,
			Schema:   notion.DefaultSchema(),
		},
		Todoist: TodoistConfig{
			URL:        todoist.DefaultURL,
			LabelColor: "charcoal",
			BatchSize:  100,
		},
		Sync: SyncConfig{
			Interval:        5 * time.Minute,
			TaskStrategy:    strategy.NameSnapshot,
			ProjectStrategy: strategy.NameFollowSource,
			RecurringSymbol: model.DefaultRecurringSymbol,
			PostponedSymbol: model.DefaultPostponedSymbol,
		},
		State: StateConfig{
			Backend:    "sqlite",
			Path:       "notion-todoist.db",
			KeepPasses: 500,
		},
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Serve: ServeConfig{Addr: "127.0.0.1:8080"},
	}
}

// Redacted returns a copy with tokens masked, for display.
func (c Config) Redacted() Config {
	c.Notion.Token = mask(c.Notion.Token)
	c.Todoist.Token = mask(c.Todoist.Token)
	return c
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}
