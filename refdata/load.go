package refdata

import (
	"bytes"
	_ "embed"
	"fmt"

	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// LoadConfig reads the shipped defaults and merges each file in paths over them, in order.
// Lists in a later file replace the earlier list as a whole.
func LoadConfig(paths ...string) (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaultsYAML)); err != nil {
		return Config{}, fmt.Errorf("failed to read default reference data: %w", err)
	}

	for _, p := range paths {
		if p == "" {
			continue
		}
		v.SetConfigFile(p)
		if err := v.MergeInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to merge reference data %s: %w", p, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode reference data: %w", err)
	}
	return cfg, nil
}

// Default builds the reference snapshot from the shipped defaults only
func Default() (*Reference, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	return Build(cfg)
}

// MustDefault is Default for tests and tools; it panics on error
func MustDefault() *Reference {
	ref, err := Default()
	if err != nil {
		panic(err)
	}
	return ref
}
