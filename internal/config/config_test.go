package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoadJSONAppliesDefaults(t *testing.T) {
	p := writeConfig(t, "config.json", `{
		"port": 8080,
		"embedding": {"providers": [{"name": "hash", "model": "hash-256"}]},
		"file_store": {"type": "local", "data": {"dir": "/tmp/indexes"}}
	}`)
	cfg, err := Load(p)
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, "info", cfg.LogConfig.Level)
	require.Equal(t, "blob", cfg.IndexStore.Type)
	require.Equal(t, 3, cfg.IndexCache.Size)
	require.Equal(t, 10, cfg.Query.DefaultK)
	require.Equal(t, 50, cfg.Query.MaxK)
	require.Equal(t, 10000, cfg.Query.EmbedTimeoutMS)
	require.Equal(t, 60000, cfg.Query.GenerateTimeoutMS)
	require.NotNil(t, cfg.Query.GenerateOnEmpty)
	require.True(t, *cfg.Query.GenerateOnEmpty)
	require.Equal(t, 0.1, *cfg.Generation.Defaults.Temperature)
	require.Equal(t, 1024, *cfg.Generation.Defaults.MaxOutputTokens)
	require.Equal(t, 30, cfg.Jobs.EmbeddingCacheMaxAgeDays)
}

func TestLoadYAML(t *testing.T) {
	p := writeConfig(t, "config.yaml", `
port: 9000
embedding:
  providers:
    - name: gemini
      model: text-embedding-004
      data:
        api_key_env: GEMINI_API_KEY
generation:
  providers:
    - name: openrouter
      model: meta-llama/llama-3-8b-instruct
  defaults:
    temperature: 0.3
index_store:
  type: pgvector
database:
  host: localhost
  user: scribe
query:
  default_k: 5
  generate_on_empty: false
`)
	cfg, err := Load(p)
	require.NoError(t, err)
	require.Equal(t, 9000, cfg.Port)
	require.Equal(t, "gemini", cfg.Embedding.Providers[0].Name)
	require.Equal(t, "openrouter", cfg.Generation.Providers[0].Name)
	require.Equal(t, 0.3, *cfg.Generation.Defaults.Temperature)
	require.Equal(t, "pgvector", cfg.IndexStore.Type)
	require.True(t, cfg.Database.Enabled())
	require.Equal(t, 5, cfg.Query.DefaultK)
	require.False(t, *cfg.Query.GenerateOnEmpty)
}

func TestLoadRejectsInvalidConfigs(t *testing.T) {
	const embed = `"embedding": {"providers": [{"name": "hash"}]}`
	const files = `"file_store": {"type": "local", "data": {"dir": "/tmp/x"}}`
	cases := map[string]string{
		"missing port":        `{` + embed + `,` + files + `}`,
		"missing embedder":    `{"port": 1,` + files + `}`,
		"unnamed generator":   `{"port": 1,` + embed + `,` + files + `,"generation": {"providers": [{"name": "openai"}]}}`,
		"bad index store":     `{"port": 1,` + embed + `,` + files + `,"index_store": {"type": "faiss"}}`,
		"pgvector without db": `{"port": 1,` + embed + `,"index_store": {"type": "pgvector"}}`,
		"db cache without db": `{"port": 1,` + files + `,"embedding": {"providers": [{"name": "hash"}], "db_cache": true}}`,
		"local without dir":   `{"port": 1,` + embed + `,"file_store": {"type": "local"}}`,
		"s3 without bucket":   `{"port": 1,` + embed + `,"file_store": {"type": "s3", "data": {}}}`,
		"max k too large":     `{"port": 1,` + embed + `,` + files + `,"query": {"max_k": 51}}`,
		"default above max":   `{"port": 1,` + embed + `,` + files + `,"query": {"max_k": 5, "default_k": 6}}`,
		"bad temperature":     `{"port": 1,` + embed + `,` + files + `,"generation": {"defaults": {"temperature": 3}}}`,
		"malformed":           `{"port": `,
		"mixed embed models":  `{"port": 1,` + files + `,"embedding": {"providers": [{"name": "gemini", "model": "a"}, {"name": "openai", "model": "b"}]}}`,
	}
	for name, content := range cases {
		_, err := Load(writeConfig(t, "config.json", content))
		require.Error(t, err, name)
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}
