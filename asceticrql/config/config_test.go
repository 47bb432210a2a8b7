package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krew-solutions/ascetic-rql-go/asceticrql/engine"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "id", cfg.PrimaryKey)
	assert.True(t, cfg.Compatible)
	assert.Equal(t, "auto", cfg.DefaultConverter)
	assert.Equal(t, 0, cfg.HardLimit)
	assert.Equal(t, 10000, cfg.MaxIterations)
	assert.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	t.Run("no file", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("yaml file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "rql.yaml")
		require.NoError(t, os.WriteFile(path, []byte("primary_key: sku\ncompatible: false\nhard_limit: 50\n"), 0o600))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "sku", cfg.PrimaryKey)
		assert.False(t, cfg.Compatible)
		assert.Equal(t, 50, cfg.HardLimit)
		assert.Equal(t, 10000, cfg.MaxIterations)
	})

	t.Run("environment overrides file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "rql.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"hard_limit": 50}`), 0o600))
		t.Setenv("RQL_HARD_LIMIT", "7")
		t.Setenv("RQL_MAX_ITERATIONS", "0")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 7, cfg.HardLimit)
		assert.Equal(t, 0, cfg.MaxIterations)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})

	t.Run("invalid values", func(t *testing.T) {
		t.Setenv("RQL_DEFAULT_CONVERTER", "nope")
		_, err := Load("")
		assert.ErrorContains(t, err, "default_converter")
	})
}

func TestValidate(t *testing.T) {
	cfg := &Config{DefaultConverter: "nope", HardLimit: -1, MaxIterations: -2}
	err := cfg.Validate()
	require.Error(t, err)

	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	assert.Len(t, merr.Errors, 4)
}

func TestEngineOptions(t *testing.T) {
	cfg := Default()
	cfg.PrimaryKey = "sku"
	cfg.HardLimit = 1

	opts, err := cfg.EngineOptions(zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 1, opts.HardLimit)
	assert.Equal(t, 10000, opts.MaxIterations)

	data := []any{map[string]any{"sku": "a"}, map[string]any{"sku": "b"}}
	result, err := engine.Execute("limit(10)", opts, data)
	require.NoError(t, err)
	assert.Len(t, result, 1)

	q, err := opts.Parser.Parse("sku=b")
	require.NoError(t, err)
	assert.Equal(t, "b", q.Cache.PrimaryKey.Unwrap())

	cfg.DefaultConverter = "nope"
	_, err = cfg.EngineOptions(zerolog.Nop())
	assert.Error(t, err)
}
