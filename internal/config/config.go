// Package config loads newsdigest settings from a YAML file, a .env file
// and environment variables, and validates them before anything runs.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/dshills/newsdigest-mcp/internal/embedder"
	"github.com/dshills/newsdigest-mcp/internal/session"
	"github.com/dshills/newsdigest-mcp/internal/websearch"
	"github.com/dshills/newsdigest-mcp/pkg/types"
)

// DefaultPath is read when no config file is named. It may be absent.
const DefaultPath = "newsdigest.yaml"

// Environment variables applied over the file
const (
	EnvGoogleAPIKey      = "GOOGLE_API_KEY"
	EnvSerpAPIKey        = "SERPAPI_API_KEY"
	EnvEmbeddingProvider = embedder.EnvProvider
	EnvIndexPath         = "NEWSDIGEST_INDEX_PATH"
	EnvSessionBackend    = "NEWSDIGEST_SESSION_BACKEND"
	EnvRedisAddr         = "NEWSDIGEST_REDIS_ADDR"
	EnvLogLevel          = "NEWSDIGEST_LOG_LEVEL"
	EnvMaxResults        = "NEWSDIGEST_MAX_RESULTS"
)

// Index drivers
const (
	IndexSQLite = "sqlite"
	IndexMemory = "memory"
)

// DefaultGoogleEmbeddingModel is used when the googleai provider has no model set
const DefaultGoogleEmbeddingModel = "models/embedding-001"

// Config is the full application configuration.
type Config struct {
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Search    SearchConfig    `yaml:"search"`
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Index     IndexConfig     `yaml:"index"`
	Session   SessionConfig   `yaml:"session"`
	Compose   ComposeConfig   `yaml:"compose"`
	Log       LogConfig       `yaml:"log"`

	// Path is the file the configuration was read from, if any
	Path string `yaml:"-"`
}

type ChunkingConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

type SearchConfig struct {
	Provider    string        `yaml:"provider"`
	Engine      string        `yaml:"engine"`
	MaxArticles int           `yaml:"max_articles"`
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	Timeout     time.Duration `yaml:"timeout"`
	RateLimit   float64       `yaml:"rate_limit"`
	Burst       int           `yaml:"burst"`
}

type LLMConfig struct {
	Model   string        `yaml:"model"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

type EmbeddingConfig struct {
	Provider  string        `yaml:"provider"`
	Model     string        `yaml:"model"`
	APIKey    string        `yaml:"api_key"`
	BaseURL   string        `yaml:"base_url"`
	Timeout   time.Duration `yaml:"timeout"`
	CacheSize int           `yaml:"cache_size"`
}

type IngestConfig struct {
	Workers int `yaml:"workers"`
}

type FetchConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

type IndexConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

type SessionConfig struct {
	Backend   string `yaml:"backend"`
	Path      string `yaml:"path"`
	RedisAddr string `yaml:"redis_addr"`
	RedisKey  string `yaml:"redis_key"`
}

type ComposeConfig struct {
	MaxResults     int    `yaml:"max_results"`
	TimePeriod     string `yaml:"time_period"`
	ScopeToSession bool   `yaml:"scope_to_session"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Chunking: ChunkingConfig{Size: 1000, Overlap: 200},
		Search: SearchConfig{
			Provider:    websearch.ProviderSerpAPI,
			Engine:      "google",
			MaxArticles: websearch.DefaultMaxArticles,
			Timeout:     websearch.DefaultTimeout,
		},
		LLM: LLMConfig{Model: "gemini-pro", Timeout: 60 * time.Second},
		Embedding: EmbeddingConfig{
			Provider:  embedder.ProviderGoogleAI,
			Timeout:   30 * time.Second,
			CacheSize: embedder.DefaultCacheSize,
		},
		Ingest:  IngestConfig{Workers: 4},
		Fetch:   FetchConfig{Timeout: 10 * time.Second},
		Index:   IndexConfig{Driver: IndexSQLite, Path: "data/newsdigest.db"},
		Session: SessionConfig{Backend: session.BackendFile, Path: "session_history.json", RedisKey: session.DefaultRedisKey},
		Compose: ComposeConfig{MaxResults: 5, TimePeriod: "last_month"},
		Log:     LogConfig{Level: "info"},
	}
}

// LoadEnvFile loads KEY=VALUE pairs into the process environment without
// overriding variables that are already set. An empty path tries ".env"
// and ignores its absence.
func LoadEnvFile(path string) error {
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// Load reads path (or DefaultPath when empty), applies environment
// overrides and validates the result. A missing DefaultPath is not an
// error; a missing explicit path is.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		cfg.Path = path
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	cfg.resolve()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set(EnvGoogleAPIKey, &c.LLM.APIKey)
	set(EnvSerpAPIKey, &c.Search.APIKey)
	set(EnvEmbeddingProvider, &c.Embedding.Provider)
	set(EnvIndexPath, &c.Index.Path)
	set(EnvSessionBackend, &c.Session.Backend)
	set(EnvRedisAddr, &c.Session.RedisAddr)
	set(EnvLogLevel, &c.Log.Level)

	if v, ok := lookup(EnvMaxResults); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return types.NewConfigurationError("compose.max_results", "%s=%q is not an integer", EnvMaxResults, v)
		}
		c.Compose.MaxResults = n
	}
	if c.Embedding.APIKey == "" {
		c.Embedding.APIKey = apiKeyFor(strings.ToLower(c.Embedding.Provider), lookup)
	}
	return nil
}

func apiKeyFor(provider string, lookup func(string) (string, bool)) string {
	var key string
	switch provider {
	case embedder.ProviderGoogleAI:
		key = embedder.EnvGoogleAPIKey
	case embedder.ProviderCohere:
		key = embedder.EnvCohereAPIKey
	case embedder.ProviderJina:
		key = embedder.EnvJinaAPIKey
	case embedder.ProviderOpenAI:
		key = embedder.EnvOpenAIAPIKey
	default:
		return ""
	}
	v, _ := lookup(key)
	return v
}

// resolve fills values that depend on other settings.
func (c *Config) resolve() {
	c.Search.Provider = strings.ToLower(strings.TrimSpace(c.Search.Provider))
	c.Embedding.Provider = strings.ToLower(strings.TrimSpace(c.Embedding.Provider))
	c.Index.Driver = strings.ToLower(strings.TrimSpace(c.Index.Driver))
	c.Session.Backend = strings.ToLower(strings.TrimSpace(c.Session.Backend))

	if c.Search.Provider == websearch.ProviderSerpAPI && c.Search.APIKey == "" {
		c.Search.Provider = websearch.ProviderRSS
	}
	if c.Embedding.Provider == embedder.ProviderGoogleAI && c.Embedding.Model == "" {
		c.Embedding.Model = DefaultGoogleEmbeddingModel
	}
}

// Validate reports the first invalid setting as a ConfigurationError.
func (c *Config) Validate() error {
	switch {
	case c.Chunking.Size <= 0:
		return types.NewConfigurationError("chunking.size", "must be positive, got %d", c.Chunking.Size)
	case c.Chunking.Overlap < 0:
		return types.NewConfigurationError("chunking.overlap", "must not be negative, got %d", c.Chunking.Overlap)
	case c.Chunking.Overlap >= c.Chunking.Size:
		return types.NewConfigurationError("chunking.overlap", "must be smaller than chunking.size (%d >= %d)", c.Chunking.Overlap, c.Chunking.Size)
	case c.Compose.MaxResults <= 0:
		return types.NewConfigurationError("compose.max_results", "must be positive, got %d", c.Compose.MaxResults)
	case c.Search.MaxArticles <= 0:
		return types.NewConfigurationError("search.max_articles", "must be positive, got %d", c.Search.MaxArticles)
	case c.Search.RateLimit < 0:
		return types.NewConfigurationError("search.rate_limit", "must not be negative")
	case c.Ingest.Workers <= 0:
		return types.NewConfigurationError("ingest.workers", "must be positive, got %d", c.Ingest.Workers)
	}

	if !oneOf(c.Search.Provider, websearch.ProviderSerpAPI, websearch.ProviderRSS) {
		return types.NewConfigurationError("search.provider", "unknown provider %q", c.Search.Provider)
	}
	if !oneOf(c.Embedding.Provider, embedder.ProviderGoogleAI, embedder.ProviderCohere,
		embedder.ProviderJina, embedder.ProviderOpenAI, embedder.ProviderLocal) {
		return types.NewConfigurationError("embedding.provider", "unknown provider %q", c.Embedding.Provider)
	}
	if !oneOf(c.Index.Driver, IndexSQLite, IndexMemory) {
		return types.NewConfigurationError("index.driver", "unknown driver %q", c.Index.Driver)
	}
	if c.Index.Driver == IndexSQLite && c.Index.Path == "" {
		return types.NewConfigurationError("index.path", "must not be empty for the sqlite driver")
	}
	if !oneOf(c.Session.Backend, session.BackendFile, session.BackendRedis, session.BackendMemory) {
		return types.NewConfigurationError("session.backend", "unknown backend %q", c.Session.Backend)
	}
	if c.Session.Backend == session.BackendRedis && c.Session.RedisAddr == "" {
		return types.NewConfigurationError("session.redis_addr", "required for the redis backend (set %s)", EnvRedisAddr)
	}
	return nil
}

// EmbedderConfig maps the embedding section onto embedder.Config.
func (c *Config) EmbedderConfig() embedder.Config {
	return embedder.Config{
		Provider:  c.Embedding.Provider,
		APIKey:    c.Embedding.APIKey,
		Model:     c.Embedding.Model,
		BaseURL:   c.Embedding.BaseURL,
		CacheSize: c.Embedding.CacheSize,
	}
}

// WebSearchConfig maps the search section onto websearch.Config.
func (c *Config) WebSearchConfig() websearch.Config {
	return websearch.Config{
		Provider:  c.Search.Provider,
		APIKey:    c.Search.APIKey,
		Engine:    c.Search.Engine,
		BaseURL:   c.Search.BaseURL,
		Timeout:   c.Search.Timeout,
		RateLimit: c.Search.RateLimit,
		Burst:     c.Search.Burst,
	}
}

// SessionStoreConfig maps the session section onto session.Config.
func (c *Config) SessionStoreConfig() session.Config {
	return session.Config{
		Backend:   c.Session.Backend,
		Path:      c.Session.Path,
		RedisAddr: c.Session.RedisAddr,
		RedisKey:  c.Session.RedisKey,
	}
}

func oneOf(v string, allowed ...string) bool {
	return slices.Contains(allowed, v)
}
