package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	assert.Empty(t, cfg.Validate())
}

func TestValidate_RejectsBadEnvironment(t *testing.T) {
	cfg := Default()
	cfg.Server.Environment = "bogus"
	errs := cfg.Validate()
	require.NotEmpty(t, errs)
	assert.Equal(t, "server.environment", errs[0].Field)
}

func TestValidate_RejectsBadStorageType(t *testing.T) {
	cfg := Default()
	cfg.Storage.Type = "mongodb"
	errs := cfg.Validate()
	require.NotEmpty(t, errs)
	assert.Equal(t, "storage.type", errs[0].Field)
}

func TestValidate_RejectsPathTraversal(t *testing.T) {
	cfg := Default()
	cfg.Storage.Type = "sqlite"
	cfg.Storage.SQLitePath = "../../etc/passwd"
	errs := cfg.Validate()
	require.NotEmpty(t, errs)
	assert.Equal(t, "storage.sqlite_path", errs[0].Field)
}

func TestValidate_RejectsOutOfRangeTemporalBiasWeight(t *testing.T) {
	cfg := Default()
	cfg.Retriever.TemporalBiasWeight = 1.5
	errs := cfg.Validate()
	require.NotEmpty(t, errs)
	assert.Equal(t, "retriever.temporal_bias_weight", errs[0].Field)
}

func TestValidate_RejectsUnknownCachePreset(t *testing.T) {
	cfg := Default()
	cfg.Cache.Preset = "nonsense"
	errs := cfg.Validate()
	require.NotEmpty(t, errs)
	assert.Equal(t, "cache.preset", errs[0].Field)
}

func TestLoadFromFile_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	original := Default()
	original.Server.Name = "custom-name"
	require.NoError(t, original.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "custom-name", loaded.Server.Name)
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("EME_SERVER_NAME", "env-name")
	t.Setenv("EME_CACHE_PRESET", "high_hit_rate")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "env-name", cfg.Server.Name)
	assert.Equal(t, "high_hit_rate", cfg.Cache.Preset)
}

func TestValidationError_Error(t *testing.T) {
	e := ValidationError{Field: "x.y", Message: "bad", Suggestion: "fix it"}
	assert.Contains(t, e.Error(), "x.y")
	assert.Contains(t, e.Error(), "fix it")
}

func TestSaveToFile_CreatesReadableJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, Default().SaveToFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\"server\"")
}
