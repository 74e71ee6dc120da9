// Package config loads the settings of the demo command.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Policies accepted by THROTTLE_POLICY.
const (
	PolicyTagged = "tagged"
	PolicyEdge   = "edge"
)

// Config stores the demo configuration. It can be reloaded at runtime.
type Config struct {
	Threshold  time.Duration `mapstructure:"THROTTLE_THRESHOLD" validate:"gte=0"`
	Policy     string        `mapstructure:"THROTTLE_POLICY" validate:"required,oneof=tagged edge"`
	ForceTail  bool          `mapstructure:"THROTTLE_FORCE_TAIL"`
	Tail       bool          `mapstructure:"THROTTLE_TAIL"`
	EventRate  float64       `mapstructure:"EVENT_RATE" validate:"gt=0"`
	EventBurst int           `mapstructure:"EVENT_BURST" validate:"gte=1"`
	EventCount int           `mapstructure:"EVENT_COUNT" validate:"gte=0"`
	LogLevel   string        `mapstructure:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	LoadTime   time.Time
}

// SetDefaults registers the default of every key on v. Keys must be known
// to v for environment variables to override them.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("THROTTLE_THRESHOLD", 250*time.Millisecond)
	v.SetDefault("THROTTLE_POLICY", PolicyTagged)
	v.SetDefault("THROTTLE_FORCE_TAIL", false)
	v.SetDefault("THROTTLE_TAIL", false)
	v.SetDefault("EVENT_RATE", 20.0)
	v.SetDefault("EVENT_BURST", 5)
	v.SetDefault("EVENT_COUNT", 100)
	v.SetDefault("LOG_LEVEL", "info")
}

// LoadConfig loads configuration from a config file to a Config instance.
// Environment variables named like the keys take precedence over the file.
func LoadConfig(v *viper.Viper, cfgPath, cfgType, cfgName string, cfg *Config) error {
	SetDefaults(v)
	v.AddConfigPath(cfgPath)
	v.SetConfigType(cfgType)
	v.SetConfigName(cfgName)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config %q: %w", cfgName, err)
	}

	return decode(v, cfg)
}

// LoadEnv fills cfg from defaults and environment variables only.
func LoadEnv(v *viper.Viper, cfg *Config) error {
	SetDefaults(v)
	v.AutomaticEnv()

	return decode(v, cfg)
}

// Watch reloads cfg whenever the config file changes and reports the result
// to onChange. A failed reload leaves cfg untouched.
func Watch(v *viper.Viper, cfg *Config, onChange func(Config, error)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}

		var next Config
		if err := decode(v, &next); err != nil {
			onChange(*cfg, err)
			return
		}

		*cfg = next
		onChange(next, nil)
	})
	v.WatchConfig()
}

// Level returns the slog level named by LogLevel, defaulting to info.
func (c Config) Level() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func decode(v *viper.Viper, cfg *Config) error {
	var next Config
	if err := v.Unmarshal(&next); err != nil {
		return fmt.Errorf("decoding config: %w", err)
	}

	if err := Validate(next); err != nil {
		return err
	}

	next.LoadTime = time.Now()
	*cfg = next

	return nil
}
