// Package config loads the settings shared by the parser and the engine from an
// optional file and RQL_* environment variables.
package config

import (
	"os"
	"strings"

	"github.com/creasty/defaults"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/krew-solutions/ascetic-rql-go/asceticrql/converters"
	"github.com/krew-solutions/ascetic-rql-go/asceticrql/engine"
	"github.com/krew-solutions/ascetic-rql-go/asceticrql/parser"
)

// EnvPrefix marks environment variables read by Load: RQL_HARD_LIMIT sets hard_limit.
const EnvPrefix = "RQL_"

type Config struct {
	// PrimaryKey is the field whose eq() value is cached by the parser.
	PrimaryKey string `mapstructure:"primary_key" default:"id"`
	// Compatible accepts percent-encoded comparison operators and quoted strings.
	Compatible       bool   `mapstructure:"compatible" default:"true"`
	DefaultConverter string `mapstructure:"default_converter" default:"auto"`
	// HardLimit caps every limit(); 0 disables the cap.
	HardLimit int `mapstructure:"hard_limit" default:"0"`
	// MaxIterations bounds the elements one query may scan; 0 disables the budget.
	MaxIterations int `mapstructure:"max_iterations" default:"10000"`
}

// Default returns a Config holding only the defaults.
func Default() *Config {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		panic(err)
	}
	return cfg
}

// Load reads path when it is not empty, then applies RQL_* environment variables,
// then validates.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read config %s", path)
		}
	}
	for _, env := range os.Environ() {
		key, value, _ := strings.Cut(env, "=")
		if !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		v.Set(strings.ToLower(strings.TrimPrefix(key, EnvPrefix)), value)
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var result *multierror.Error
	if c.PrimaryKey == "" {
		result = multierror.Append(result, errors.New("primary_key must not be empty"))
	}
	if _, ok := converters.NewDefaultRegistry(c.Compatible).Lookup(c.DefaultConverter); !ok {
		result = multierror.Append(result, errors.Errorf("default_converter %q is not a known converter", c.DefaultConverter))
	}
	if c.HardLimit < 0 {
		result = multierror.Append(result, errors.Errorf("hard_limit must not be negative, got %d", c.HardLimit))
	}
	if c.MaxIterations < 0 {
		result = multierror.Append(result, errors.Errorf("max_iterations must not be negative, got %d", c.MaxIterations))
	}
	return result.ErrorOrNil()
}

func (c *Config) ParserOptions() parser.Options {
	return parser.Options{
		PrimaryKey:       c.PrimaryKey,
		Compatible:       c.Compatible,
		DefaultConverter: c.DefaultConverter,
	}
}

// EngineOptions builds engine options around a parser configured from c.
func (c *Config) EngineOptions(logger zerolog.Logger) (engine.Options, error) {
	p, err := parser.New(c.ParserOptions())
	if err != nil {
		return engine.Options{}, err
	}
	return engine.Options{
		Parser:        p,
		HardLimit:     c.HardLimit,
		MaxIterations: c.MaxIterations,
		Logger:        logger,
	}, nil
}
