// Package config loads settings from defaults, an optional YAML file, the
// environment and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes environment overrides. Nested keys use a double
// underscore: CARDSTREAK_STUDY__DAILY_GOAL=30.
const EnvPrefix = "CARDSTREAK_"

// Config holds all configuration for the application.
type Config struct {
	DB      DBConfig      `koanf:"db"`
	HTTP    HTTPConfig    `koanf:"http"`
	Log     LogConfig     `koanf:"log"`
	Study   StudyConfig   `koanf:"study"`
	Sources SourcesConfig `koanf:"sources"`
}

// DBConfig locates the SQLite database file.
type DBConfig struct {
	Path string `koanf:"path" validate:"required"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr string `koanf:"addr" validate:"required"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

// StudyConfig tunes batches, goals and streaks.
type StudyConfig struct {
	DailyGoal    int    `koanf:"daily_goal" validate:"gt=0"`
	BatchLimit   int    `koanf:"batch_limit" validate:"gt=0,lte=200"`
	StreakAnchor string `koanf:"streak_anchor" validate:"oneof=today yesterday"`
	ShuffleSeed  uint64 `koanf:"shuffle_seed"`
	Timezone     string `koanf:"timezone" validate:"required"`
}

// SourcesConfig says where git-backed decks are checked out.
type SourcesConfig struct {
	ReposDir string `koanf:"repos_dir" validate:"required"`
}

var defaults = map[string]any{
	"db.path":             "cardstreak.db",
	"http.addr":           ":8080",
	"log.level":           "info",
	"log.format":          "text",
	"study.daily_goal":    20,
	"study.batch_limit":   20,
	"study.streak_anchor": "today",
	"study.shuffle_seed":  0,
	"study.timezone":      "UTC",
	"sources.repos_dir":   "repos",
}

// flagKeys maps command-line flag names onto config keys. Flags not listed
// here are command options, not configuration.
var flagKeys = map[string]string{
	"db":         "db.path",
	"addr":       "http.addr",
	"log-level":  "log.level",
	"log-format": "log.format",
	"goal":       "study.daily_goal",
	"limit":      "study.batch_limit",
	"anchor":     "study.streak_anchor",
	"seed":       "study.shuffle_seed",
	"timezone":   "study.timezone",
	"repos-dir":  "sources.repos_dir",
}

// Load builds the configuration. path may be empty; a named file that does
// not exist is an error. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")
	for key, val := range defaults {
		if err := k.Set(key, val); err != nil {
			return nil, fmt.Errorf("set default %s: %w", key, err)
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found", path)
			}
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("error reading environment: %w", err)
	}

	if flags != nil {
		err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil)
		if err != nil {
			return nil, fmt.Errorf("error reading flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints and that the timezone exists.
func (c *Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.Study.Location(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Location resolves the configured timezone.
func (s StudyConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", s.Timezone, err)
	}
	return loc, nil
}

// NewLogger builds the slog logger described by the config. Output goes to
// w, or stderr when w is nil.
func (l LogConfig) NewLogger(w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
