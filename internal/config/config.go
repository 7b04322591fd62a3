package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/xxxsen/common/logger"
	"gopkg.in/yaml.v3"
)

const (
	defaultPort          = 8000
	defaultMaxUploadMB   = 50
	defaultChunkSize     = 1000
	defaultTopK          = 3
	defaultCollection    = "documents"
	defaultLocalDims     = 384
	defaultEmbedParallel = 4
	defaultLLMTimeout    = 60
	defaultLLMRetries    = 2
	defaultLLMBackoffMS  = 500
	defaultLLMMaxTokens  = 1024
	defaultLRUSize       = 2048
	defaultLRUTTLSeconds = 3600
	defaultCacheMaxAge   = 30
	defaultCacheSpec     = "0 3 * * *"
	defaultUploadSpec    = "30 3 * * *"
	defaultReindexSpec   = "*/10 * * * *"
)

var defaultAllowedExts = []string{"pdf", "txt", "md", "doc", "docx", "png", "jpg", "jpeg"}

type Config struct {
	Port        int               `json:"port"`
	LogConfig   logger.LogConfig  `json:"log_config"`
	Server      ServerConfig      `json:"server"`
	Upload      UploadConfig      `json:"upload"`
	FileStore   FileStoreConfig   `json:"file_store"`
	Database    DatabaseConfig    `json:"database"`
	VectorStore VectorStoreConfig `json:"vector_store"`
	Embedding   EmbeddingConfig   `json:"embedding"`
	LLM         LLMConfig         `json:"llm"`
	RAG         RAGConfig         `json:"rag"`
	Cache       CacheConfig       `json:"cache"`
	Jobs        JobsConfig        `json:"jobs"`
}

type ServerConfig struct {
	CORSOrigins []string `json:"cors_origins"`
	// RateLimitMS is the minimum gap between two language-model requests from
	// one client to one route. 0 disables the limit.
	RateLimitMS int `json:"rate_limit_ms"`
}

type UploadConfig struct {
	MaxSizeMB   int64    `json:"max_size_mb"`
	AllowedExts []string `json:"allowed_exts"`
}

func (c UploadConfig) MaxBytes() int64 {
	return c.MaxSizeMB * 1024 * 1024
}

type FileStoreConfig struct {
	Type string   `json:"type"`
	Dir  string   `json:"dir"`
	S3   S3Config `json:"s3"`
}

type S3Config struct {
	Endpoint     string `json:"endpoint"`
	SecretID     string `json:"secret_id"`
	SecretKey    string `json:"secret_key"`
	Bucket       string `json:"bucket"`
	Region       string `json:"region"`
	Prefix       string `json:"prefix"`
	UsePathStyle bool   `json:"use_path_style"`
}

type DatabaseConfig struct {
	Driver   string `json:"driver"`
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
	Path     string `json:"path"`
}

func (c DatabaseConfig) Enabled() bool {
	return c.Driver != ""
}

type VectorStoreConfig struct {
	Type       string `json:"type"`
	Collection string `json:"collection"`
}

type EmbeddingConfig struct {
	Provider    string                 `json:"provider"`
	Model       string                 `json:"model"`
	Dimensions  int                    `json:"dimensions"`
	Concurrency int                    `json:"concurrency"`
	Data        map[string]interface{} `json:"data"`
}

type LLMProviderConfig struct {
	Name     string                 `json:"name"`
	Provider string                 `json:"provider"`
	Model    string                 `json:"model"`
	Data     map[string]interface{} `json:"data"`
}

type LLMConfig struct {
	Providers        []LLMProviderConfig `json:"providers"`
	TimeoutSeconds   int                 `json:"timeout_seconds"`
	MaxRetries       *int                `json:"max_retries"`
	BackoffMS        int                 `json:"backoff_ms"`
	MaxTokens        int                 `json:"max_tokens"`
	TranscribePrompt string              `json:"transcribe_prompt"`
}

func (c LLMConfig) Retries() int {
	if c.MaxRetries == nil {
		return defaultLLMRetries
	}
	return *c.MaxRetries
}

type RAGConfig struct {
	ChunkSize int `json:"chunk_size"`
	TopK      int `json:"top_k"`
}

type CacheConfig struct {
	LRUSize       int  `json:"lru_size"`
	LRUTTLSeconds int  `json:"lru_ttl_seconds"`
	DisableDB     bool `json:"disable_db"`
}

type JobConfig struct {
	Spec     string `json:"spec"`
	MaxDays  int    `json:"max_days"`
	Disabled bool   `json:"disabled"`
}

type JobsConfig struct {
	EmbeddingCacheCleanup JobConfig `json:"embedding_cache_cleanup"`
	UploadCleanup         JobConfig `json:"upload_cleanup"`
	Reindex               JobConfig `json:"reindex"`
}

// Load reads a JSON or YAML config file, fills defaults and validates it.
// A .env file next to the config, or in the working directory, is loaded into
// the environment first so provider keys can live there.
func Load(path string) (*Config, error) {
	loadDotEnv(path)
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	var cfg Config
	if err := decode(path, raw, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the config used when no file is given: local uploads,
// in-memory index and offline embeddings.
func Default() *Config {
	cfg := &Config{}
	_ = cfg.applyDefaults()
	return cfg
}

func loadDotEnv(path string) {
	candidates := []string{filepath.Join(filepath.Dir(path), ".env"), ".env"}
	for _, file := range candidates {
		if _, err := os.Stat(file); err == nil {
			_ = godotenv.Load(file)
		}
	}
}

func decode(path string, raw []byte, cfg *Config) error {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return json.Unmarshal(raw, cfg)
	}
	// yaml is mapped onto the json tags so both formats share one schema.
	var generic map[string]interface{}
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return err
	}
	data, err := json.Marshal(generic)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, cfg)
}

func (cfg *Config) applyDefaults() error {
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return fmt.Errorf("port out of range: %d", cfg.Port)
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.Server.RateLimitMS < 0 {
		return fmt.Errorf("server.rate_limit_ms must not be negative")
	}
	if cfg.Upload.MaxSizeMB == 0 {
		cfg.Upload.MaxSizeMB = defaultMaxUploadMB
	}
	if cfg.Upload.MaxSizeMB < 0 {
		return fmt.Errorf("upload.max_size_mb must be positive")
	}
	if len(cfg.Upload.AllowedExts) == 0 {
		cfg.Upload.AllowedExts = append([]string(nil), defaultAllowedExts...)
	}
	for i, ext := range cfg.Upload.AllowedExts {
		cfg.Upload.AllowedExts[i] = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	}
	if err := cfg.applyFileStoreDefaults(); err != nil {
		return err
	}
	if err := cfg.applyDatabaseDefaults(); err != nil {
		return err
	}
	if err := cfg.applyVectorStoreDefaults(); err != nil {
		return err
	}
	if err := cfg.applyEmbeddingDefaults(); err != nil {
		return err
	}
	if err := cfg.applyLLMDefaults(); err != nil {
		return err
	}
	if cfg.RAG.ChunkSize <= 0 {
		cfg.RAG.ChunkSize = defaultChunkSize
	}
	if cfg.RAG.TopK <= 0 {
		cfg.RAG.TopK = defaultTopK
	}
	if cfg.Cache.LRUSize == 0 {
		cfg.Cache.LRUSize = defaultLRUSize
	}
	if cfg.Cache.LRUTTLSeconds == 0 {
		cfg.Cache.LRUTTLSeconds = defaultLRUTTLSeconds
	}
	if cfg.Jobs.EmbeddingCacheCleanup.Spec == "" {
		cfg.Jobs.EmbeddingCacheCleanup.Spec = defaultCacheSpec
	}
	if cfg.Jobs.EmbeddingCacheCleanup.MaxDays == 0 {
		cfg.Jobs.EmbeddingCacheCleanup.MaxDays = defaultCacheMaxAge
	}
	if cfg.Jobs.UploadCleanup.Spec == "" {
		cfg.Jobs.UploadCleanup.Spec = defaultUploadSpec
	}
	if cfg.Jobs.Reindex.Spec == "" {
		cfg.Jobs.Reindex.Spec = defaultReindexSpec
	}
	if cfg.Jobs.UploadCleanup.MaxDays < 0 || cfg.Jobs.EmbeddingCacheCleanup.MaxDays < 0 {
		return fmt.Errorf("jobs max_days must not be negative")
	}
	return nil
}

func (cfg *Config) applyFileStoreDefaults() error {
	if cfg.FileStore.Type == "" {
		cfg.FileStore.Type = "local"
	}
	switch cfg.FileStore.Type {
	case "local":
		if cfg.FileStore.Dir == "" {
			cfg.FileStore.Dir = "uploads"
		}
	case "s3":
		s3 := &cfg.FileStore.S3
		if s3.Bucket == "" || s3.SecretID == "" || s3.SecretKey == "" {
			return fmt.Errorf("file_store.s3 bucket/secret_id/secret_key are required for s3 store")
		}
		if s3.Region == "" {
			s3.Region = "us-east-1"
		}
	default:
		return fmt.Errorf("file_store.type must be local or s3")
	}
	return nil
}

func (cfg *Config) applyDatabaseDefaults() error {
	db := &cfg.Database
	switch db.Driver {
	case "":
		return nil
	case "postgres":
		if db.DSN == "" && db.Host == "" {
			return fmt.Errorf("database.dsn or database.host is required for postgres")
		}
		if db.Port == 0 {
			db.Port = 5432
		}
	case "sqlite":
		if db.Path == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite")
	}
	return nil
}

func (cfg *Config) applyVectorStoreDefaults() error {
	vs := &cfg.VectorStore
	if vs.Type == "" {
		vs.Type = "memory"
		if cfg.Database.Enabled() {
			vs.Type = cfg.Database.Driver
		}
	}
	if vs.Collection == "" {
		vs.Collection = defaultCollection
	}
	switch vs.Type {
	case "memory":
	case "postgres", "sqlite":
		if cfg.Database.Driver != vs.Type {
			return fmt.Errorf("vector_store.type %s requires database.driver %s", vs.Type, vs.Type)
		}
	default:
		return fmt.Errorf("vector_store.type must be postgres, sqlite or memory")
	}
	return nil
}

func (cfg *Config) applyEmbeddingDefaults() error {
	emb := &cfg.Embedding
	if emb.Provider == "" {
		emb.Provider = "local"
	}
	if emb.Provider == "local" {
		if emb.Model == "" {
			emb.Model = "hashing"
		}
		if emb.Dimensions == 0 {
			emb.Dimensions = defaultLocalDims
		}
		if emb.Data == nil {
			emb.Data = map[string]interface{}{}
		}
		emb.Data["dimensions"] = emb.Dimensions
	}
	if emb.Model == "" {
		return fmt.Errorf("embedding.model is required")
	}
	if emb.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions is required")
	}
	if emb.Concurrency <= 0 {
		emb.Concurrency = defaultEmbedParallel
	}
	return nil
}

func (cfg *Config) applyLLMDefaults() error {
	llm := &cfg.LLM
	if len(llm.Providers) == 0 {
		llm.Providers = []LLMProviderConfig{{Name: "groq", Provider: "groq", Model: "llama-3.1-8b-instant"}}
	}
	for i := range llm.Providers {
		p := &llm.Providers[i]
		if p.Provider == "" {
			return fmt.Errorf("llm.providers[%d].provider is required", i)
		}
		if p.Model == "" {
			return fmt.Errorf("llm.providers[%d].model is required", i)
		}
		if p.Name == "" {
			p.Name = p.Provider
		}
	}
	if llm.TimeoutSeconds <= 0 {
		llm.TimeoutSeconds = defaultLLMTimeout
	}
	if llm.MaxRetries != nil && *llm.MaxRetries < 0 {
		return fmt.Errorf("llm.max_retries must not be negative")
	}
	if llm.BackoffMS <= 0 {
		llm.BackoffMS = defaultLLMBackoffMS
	}
	if llm.MaxTokens <= 0 {
		llm.MaxTokens = defaultLLMMaxTokens
	}
	return nil
}
