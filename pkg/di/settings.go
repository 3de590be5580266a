package di

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/goliatone/go-memoize/cache"
)

// EnvPrefix prefixes environment overrides read by ReadSettingsFile, e.g.
// MEMOIZE_SHARED_TTL=1m.
const EnvPrefix = "MEMOIZE"

// Settings is the file or environment form of the container configuration.
type Settings struct {
	// Shared configures the sturdyc service behind shared memoized functions.
	Shared cache.SharedConfig `mapstructure:"shared"`
	// Memoize holds the size and lifetime defaults of functions built by the container.
	Memoize cache.Settings  `mapstructure:"memoize"`
	Metrics MetricsSettings `mapstructure:"metrics"`
}

// MetricsSettings enables Prometheus collectors for every function the container builds.
type MetricsSettings struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

// DefaultSettings returns the defaults applied before decoding.
func DefaultSettings() Settings {
	return Settings{
		Shared:  cache.DefaultSharedConfig(),
		Memoize: cache.Settings{MaxSize: 1},
	}
}

// Validate checks the shared service configuration and the memoize defaults.
func (s Settings) Validate() error {
	if err := s.Shared.Validate(); err != nil {
		return err
	}
	return s.Memoize.Apply(cache.Config{}).Validate()
}

// DecodeHook returns the mapstructure hooks used for settings: durations may be written
// as strings such as "30s".
func DecodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.TextUnmarshallerHookFunc(),
	)
}

// SettingsFromMap decodes raw over DefaultSettings. Unknown keys are rejected.
func SettingsFromMap(raw map[string]any) (Settings, error) {
	s := DefaultSettings()
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       DecodeHook(),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           &s,
	})
	if err != nil {
		return Settings{}, err
	}
	if err := decoder.Decode(raw); err != nil {
		return Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	return s, s.Validate()
}

// LoadSettings decodes v over DefaultSettings.
func LoadSettings(v *viper.Viper) (Settings, error) {
	s := DefaultSettings()
	if v == nil {
		return s, nil
	}
	if err := v.Unmarshal(&s, viper.DecodeHook(DecodeHook())); err != nil {
		return Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	return s, s.Validate()
}

// ReadSettingsFile loads settings from path, with environment overrides under
// EnvPrefix.
func ReadSettingsFile(path string) (Settings, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		return Settings{}, fmt.Errorf("read settings %s: %w", path, err)
	}
	return LoadSettings(v)
}
