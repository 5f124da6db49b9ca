package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/gookit/validate"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application configuration loaded from files and environment variables.
type Config struct {
	AppName              string        `mapstructure:"app_name" validate:"required"`
	Env                  string        `mapstructure:"app_env"`
	LogLevel             string        `mapstructure:"log_level" validate:"required|in:debug,info,warn,warning,error"`
	KeywordsRaw          string        `mapstructure:"keywords"`
	Keywords             []string      `mapstructure:"-"`
	FetchersFile         string        `mapstructure:"fetchers_file" validate:"required"`
	FetcherID            string        `mapstructure:"fetcher_id" validate:"required"`
	PublishersFile       string        `mapstructure:"publishers_file"`
	CrawlIntervalSeconds int64         `mapstructure:"crawl_interval" validate:"required|min:1"`
	CrawlInterval        time.Duration `mapstructure:"-"`
	KeywordDelayMS       int64         `mapstructure:"keyword_delay_ms" validate:"min:0"`
	KeywordDelay         time.Duration `mapstructure:"-"`
	PerKeywordCap        int           `mapstructure:"per_keyword_cap" validate:"required|min:1"`
	TopN                 int           `mapstructure:"top_n" validate:"min:0"`

	StorageType string `mapstructure:"storage_type" validate:"required|in:bbolt,sqlite"`
	BBoltPath   string `mapstructure:"bbolt_path"`
	SQLitePath  string `mapstructure:"sqlite_path"`

	SeenSetType string `mapstructure:"seen_set_type" validate:"required|in:file,redis"`
	SeenSetPath string `mapstructure:"seen_set_path"`
	RedisAddr   string `mapstructure:"redis_addr"`
	RedisKey    string `mapstructure:"redis_key"`

	ScorerBaseURL       string        `mapstructure:"scorer_base_url"`
	ScorerAPIKey        string        `mapstructure:"scorer_api_key"`
	ScorerMinIntervalMS int64         `mapstructure:"scorer_min_interval_ms" validate:"min:0"`
	ScorerMinInterval   time.Duration `mapstructure:"-"`
	ScorerMaxRetries    int           `mapstructure:"scorer_max_retries" validate:"min:0"`
	ScorerTimeoutSecs   int64         `mapstructure:"scorer_timeout_seconds" validate:"required|min:1"`
	ScorerTimeout       time.Duration `mapstructure:"-"`

	APIAddr        string `mapstructure:"api_addr" validate:"required"`
	QuerySource    string `mapstructure:"query_source" validate:"required|in:local,remote"`
	RemoteStoreURL string `mapstructure:"remote_store_url"`
	CacheSizeMB    int    `mapstructure:"cache_size_mb" validate:"required|min:1"`
	CacheTTLSecs   int    `mapstructure:"cache_ttl_seconds" validate:"min:0"`
	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
}

// Load reads configuration from environment variables and config files.
func Load() (*Config, error) {
	_ = godotenv.Load("configs/.env")

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_name", "nation-radar")
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("keywords", "$NATION,nation.fun,crestal network")
	v.SetDefault("fetchers_file", "./configs/fetchers.yaml")
	v.SetDefault("fetcher_id", "twitter")
	v.SetDefault("publishers_file", "")
	v.SetDefault("crawl_interval", 3600) // seconds
	v.SetDefault("keyword_delay_ms", 2000)
	v.SetDefault("per_keyword_cap", 300)
	v.SetDefault("top_n", 5)
	v.SetDefault("storage_type", "bbolt")
	v.SetDefault("bbolt_path", "./data/radar.db")
	v.SetDefault("sqlite_path", "./data/radar.sqlite")
	v.SetDefault("seen_set_type", "file")
	v.SetDefault("seen_set_path", "./data/seen_text_hashes.txt")
	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_key", "nation-radar:seen")
	v.SetDefault("scorer_base_url", "")
	v.SetDefault("scorer_api_key", "")
	v.SetDefault("scorer_min_interval_ms", 1000)
	v.SetDefault("scorer_max_retries", 2)
	v.SetDefault("scorer_timeout_seconds", 60)
	v.SetDefault("api_addr", ":5000")
	v.SetDefault("query_source", "local")
	v.SetDefault("remote_store_url", "")
	v.SetDefault("cache_size_mb", 16)
	v.SetDefault("cache_ttl_seconds", 30)
	v.SetDefault("metrics_enabled", true)
}

// finalize normalizes values, validates the struct and derives durations.
func (c *Config) finalize() error {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.StorageType = strings.ToLower(strings.TrimSpace(c.StorageType))
	c.SeenSetType = strings.ToLower(strings.TrimSpace(c.SeenSetType))
	c.QuerySource = strings.ToLower(strings.TrimSpace(c.QuerySource))
	c.Keywords = SplitKeywords(c.KeywordsRaw)

	v := validate.Struct(c)
	if !v.Validate() {
		return fmt.Errorf("invalid config: %s", v.Errors.One())
	}

	switch {
	case c.StorageType == "bbolt" && strings.TrimSpace(c.BBoltPath) == "":
		return fmt.Errorf("invalid config: bbolt_path is required for bbolt storage")
	case c.StorageType == "sqlite" && strings.TrimSpace(c.SQLitePath) == "":
		return fmt.Errorf("invalid config: sqlite_path is required for sqlite storage")
	case c.SeenSetType == "file" && strings.TrimSpace(c.SeenSetPath) == "":
		return fmt.Errorf("invalid config: seen_set_path is required for the file seen-set")
	case c.SeenSetType == "redis" && strings.TrimSpace(c.RedisAddr) == "":
		return fmt.Errorf("invalid config: redis_addr is required for the redis seen-set")
	case c.QuerySource == "remote" && strings.TrimSpace(c.RemoteStoreURL) == "":
		return fmt.Errorf("invalid config: remote_store_url is required for the remote query source")
	}

	c.CrawlInterval = time.Duration(c.CrawlIntervalSeconds) * time.Second
	c.KeywordDelay = time.Duration(c.KeywordDelayMS) * time.Millisecond
	c.ScorerMinInterval = time.Duration(c.ScorerMinIntervalMS) * time.Millisecond
	c.ScorerTimeout = time.Duration(c.ScorerTimeoutSecs) * time.Second
	return nil
}

// StoragePath returns the path of the configured storage backend.
func (c *Config) StoragePath() string {
	if c.StorageType == "sqlite" {
		return c.SQLitePath
	}
	return c.BBoltPath
}

// SplitKeywords parses a comma separated keyword list, dropping blanks and repeats.
func SplitKeywords(raw string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, part := range strings.Split(raw, ",") {
		kw := strings.TrimSpace(part)
		if kw == "" {
			continue
		}
		key := strings.ToLower(kw)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, kw)
	}
	return out
}
