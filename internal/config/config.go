package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xxxsen/common/logger"
	"gopkg.in/yaml.v3"

	"github.com/xxxsen/scribe/internal/model"
)

type Config struct {
	Port        int              `json:"port"`
	LogConfig   logger.LogConfig `json:"log_config"`
	CORSOrigins []string         `json:"cors_origins"`
	RateLimitMS int              `json:"rate_limit_ms"`
	Embedding   EmbeddingConfig  `json:"embedding"`
	Generation  GenerationConfig `json:"generation"`
	IndexStore  IndexStoreConfig `json:"index_store"`
	FileStore   FileStoreConfig  `json:"file_store"`
	Database    DatabaseConfig   `json:"database"`
	IndexCache  IndexCacheConfig `json:"index_cache"`
	Query       QueryConfig      `json:"query"`
	Jobs        JobsConfig       `json:"jobs"`
	Chunking    ChunkingConfig   `json:"chunking"`
}

type ProviderConfig struct {
	Name  string      `json:"name"`
	Model string      `json:"model"`
	Data  interface{} `json:"data"`
}

type EmbeddingConfig struct {
	Providers       []ProviderConfig `json:"providers"`
	TaskType        string           `json:"task_type"`
	MaxInputChars   int              `json:"max_input_chars"`
	CacheSize       int              `json:"cache_size"`
	CacheTTLSeconds int              `json:"cache_ttl_seconds"`
	DBCache         bool             `json:"db_cache"`
}

type GenerationConfig struct {
	Providers            []ProviderConfig       `json:"providers"`
	MaxOutputTokensLimit int                    `json:"max_output_tokens_limit"`
	Defaults             model.GenerationParams `json:"defaults"`
}

type IndexStoreConfig struct {
	// Type is "blob" (index files in the file store) or "pgvector".
	Type string `json:"type"`
}

type FileStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
}

func (c DatabaseConfig) Enabled() bool {
	return c.DSN != "" || c.Host != ""
}

type IndexCacheConfig struct {
	Size       int  `json:"size"`
	TTLSeconds int  `json:"ttl_seconds"`
	Watch      bool `json:"watch"`
}

type QueryConfig struct {
	DefaultK              int   `json:"default_k"`
	MaxK                  int   `json:"max_k"`
	EmbedTimeoutMS        int   `json:"embed_timeout_ms"`
	SearchTimeoutMS       int   `json:"search_timeout_ms"`
	GenerateTimeoutMS     int   `json:"generate_timeout_ms"`
	PromptMaxChars        int   `json:"prompt_max_chars"`
	GenerateOnEmpty       *bool `json:"generate_on_empty"`
	AnswerCacheSize       int   `json:"answer_cache_size"`
	AnswerCacheTTLSeconds int   `json:"answer_cache_ttl_seconds"`
}

type JobsConfig struct {
	IndexRefreshCron          string `json:"index_refresh_cron"`
	EmbeddingCacheCleanupCron string `json:"embedding_cache_cleanup_cron"`
	EmbeddingCacheMaxAgeDays  int    `json:"embedding_cache_max_age_days"`
}

type ChunkingConfig struct {
	MaxTokens     int `json:"max_tokens"`
	OverlapTokens int `json:"overlap_tokens"`
}

// Load reads a JSON config file. Files ending in .yaml or .yml are parsed as
// YAML and mapped onto the same json field names.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yamlToJSON(data)
		if err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func yamlToJSON(data []byte) ([]byte, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return json.Marshal(raw)
}

func (cfg *Config) applyDefaults() error {
	if cfg.Port == 0 {
		return fmt.Errorf("port is required")
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if len(cfg.Embedding.Providers) == 0 {
		return fmt.Errorf("embedding.providers is required")
	}
	for i, p := range cfg.Embedding.Providers {
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("embedding.providers[%d].name is required", i)
		}
		// failover entries must embed into one vector space
		if p.Model != cfg.Embedding.Providers[0].Model {
			return fmt.Errorf("embedding.providers[%d].model %q differs from %q", i, p.Model, cfg.Embedding.Providers[0].Model)
		}
	}
	for i, p := range cfg.Generation.Providers {
		if strings.TrimSpace(p.Name) == "" || strings.TrimSpace(p.Model) == "" {
			return fmt.Errorf("generation.providers[%d] name/model are required", i)
		}
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 1024
	}
	if cfg.Embedding.CacheTTLSeconds == 0 {
		cfg.Embedding.CacheTTLSeconds = 3600
	}
	if cfg.Generation.MaxOutputTokensLimit == 0 {
		cfg.Generation.MaxOutputTokensLimit = 8192
	}
	if cfg.Generation.Defaults.Temperature == nil {
		cfg.Generation.Defaults.Temperature = model.Float64Ptr(0.1)
	}
	if cfg.Generation.Defaults.MaxOutputTokens == nil {
		cfg.Generation.Defaults.MaxOutputTokens = model.IntPtr(1024)
	}
	if err := cfg.Generation.Defaults.Validate(cfg.Generation.MaxOutputTokensLimit); err != nil {
		return fmt.Errorf("generation.defaults: %w", err)
	}

	if cfg.IndexStore.Type == "" {
		cfg.IndexStore.Type = "blob"
	}
	switch cfg.IndexStore.Type {
	case "blob":
		if err := cfg.validateFileStore(); err != nil {
			return err
		}
	case "pgvector":
		if !cfg.Database.Enabled() {
			return fmt.Errorf("database is required for the pgvector index store")
		}
	default:
		return fmt.Errorf("index_store.type must be blob or pgvector")
	}
	if cfg.Embedding.DBCache && !cfg.Database.Enabled() {
		return fmt.Errorf("database is required for embedding.db_cache")
	}

	if cfg.IndexCache.Size == 0 {
		cfg.IndexCache.Size = 3
	}
	if cfg.Query.DefaultK == 0 {
		cfg.Query.DefaultK = 10
	}
	if cfg.Query.MaxK == 0 {
		cfg.Query.MaxK = 50
	}
	if cfg.Query.MaxK < 1 || cfg.Query.MaxK > 50 {
		return fmt.Errorf("query.max_k must be within [1, 50]")
	}
	if cfg.Query.DefaultK < 1 || cfg.Query.DefaultK > cfg.Query.MaxK {
		return fmt.Errorf("query.default_k must be within [1, max_k]")
	}
	if cfg.Query.EmbedTimeoutMS == 0 {
		cfg.Query.EmbedTimeoutMS = 10000
	}
	if cfg.Query.SearchTimeoutMS == 0 {
		cfg.Query.SearchTimeoutMS = 10000
	}
	if cfg.Query.GenerateTimeoutMS == 0 {
		cfg.Query.GenerateTimeoutMS = 60000
	}
	if cfg.Query.PromptMaxChars == 0 {
		cfg.Query.PromptMaxChars = 24000
	}
	if cfg.Query.GenerateOnEmpty == nil {
		enabled := true
		cfg.Query.GenerateOnEmpty = &enabled
	}
	if cfg.Query.AnswerCacheSize == 0 {
		cfg.Query.AnswerCacheSize = 1000
	}
	if cfg.Query.AnswerCacheTTLSeconds == 0 {
		cfg.Query.AnswerCacheTTLSeconds = 3600
	}
	if cfg.Jobs.EmbeddingCacheMaxAgeDays == 0 {
		cfg.Jobs.EmbeddingCacheMaxAgeDays = 30
	}
	return nil
}

func (cfg *Config) validateFileStore() error {
	if cfg.FileStore.Type == "" {
		cfg.FileStore.Type = "local"
	}
	fields, _ := cfg.FileStore.Data.(map[string]interface{})
	switch cfg.FileStore.Type {
	case "local":
		if dir, _ := fields["dir"].(string); dir == "" {
			return fmt.Errorf("file_store.data.dir is required for local store")
		}
	case "s3":
		if bucket, _ := fields["bucket"].(string); bucket == "" {
			return fmt.Errorf("file_store.data.bucket is required for s3 store")
		}
	default:
		return fmt.Errorf("file_store.type must be local or s3")
	}
	return nil
}
