package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App        App        `mapstructure:"app"`
	AI         AI         `mapstructure:"ai"`
	Retry      Retry      `mapstructure:"retry"`
	Search     Search     `mapstructure:"search"`
	Scrape     Scrape     `mapstructure:"scrape"`
	References References `mapstructure:"references"`
	Content    Content    `mapstructure:"content"`
	Cache      Cache      `mapstructure:"cache"`
	Store      Store      `mapstructure:"store"`
	Archive    Archive    `mapstructure:"archive"`
	Pipeline   Pipeline   `mapstructure:"pipeline"`
	Server     Server     `mapstructure:"server"`
}

// App holds general application configuration
type App struct {
	LogLevel   string `mapstructure:"log_level"`
	LogFormat  string `mapstructure:"log_format"`
	DataDir    string `mapstructure:"data_dir"`
	ConfigFile string `mapstructure:"config_file"`
}

// AI holds LLM configuration
type AI struct {
	Gemini GeminiConfig `mapstructure:"gemini"`
}

// GeminiConfig holds Google Gemini configuration
type GeminiConfig struct {
	APIKey      string            `mapstructure:"api_key"`
	Model       string            `mapstructure:"model"`
	Timeout     string            `mapstructure:"timeout"`
	MaxTokens   int32             `mapstructure:"max_tokens"`
	Temperature float32           `mapstructure:"temperature"`
	TopK        float32           `mapstructure:"top_k"`
	TopP        float32           `mapstructure:"top_p"`
	Safety      map[string]string `mapstructure:"safety"`
}

// Retry controls the generation retry loop
type Retry struct {
	MaxAttempts int    `mapstructure:"max_attempts"`
	BaseDelay   string `mapstructure:"base_delay"`
	MaxDelay    string `mapstructure:"max_delay"`
}

// Search holds search provider configuration
type Search struct {
	Provider   string          `mapstructure:"provider"`
	MaxResults int             `mapstructure:"max_results"`
	Timeout    string          `mapstructure:"timeout"`
	Language   string          `mapstructure:"language"`
	Providers  SearchProviders `mapstructure:"providers"`
}

// SearchProviders holds configuration for all search providers
type SearchProviders struct {
	Google  GoogleSearchConfig `mapstructure:"google"`
	SerpAPI SerpAPIConfig      `mapstructure:"serpapi"`
}

// GoogleSearchConfig holds Google Custom Search configuration
type GoogleSearchConfig struct {
	APIKey   string `mapstructure:"api_key"`
	SearchID string `mapstructure:"search_id"`
}

// SerpAPIConfig holds SerpAPI configuration
type SerpAPIConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// Scrape holds reference page fetching configuration
type Scrape struct {
	Timeout      string `mapstructure:"timeout"`
	UserAgent    string `mapstructure:"user_agent"`
	MaxBodyBytes int64  `mapstructure:"max_body_bytes"`
	Concurrency  int    `mapstructure:"concurrency"`
}

// References holds reference collection configuration
type References struct {
	Limit          int      `mapstructure:"limit"`
	ExcludeDomains []string `mapstructure:"exclude_domains"`
}

// Content holds preprocessing limits
type Content struct {
	MaxContentChars   int `mapstructure:"max_content_chars"`
	MaxReferenceChars int `mapstructure:"max_reference_chars"`
}

// Cache holds cache configuration
type Cache struct {
	Backend   string `mapstructure:"backend"`
	TTL       string `mapstructure:"ttl"`
	Directory string `mapstructure:"directory"`
	RedisURL  string `mapstructure:"redis_url"`
}

// Store holds article store configuration
type Store struct {
	PostgresDSN string `mapstructure:"postgres_dsn"`
	Table       string `mapstructure:"table"`
}

// Archive holds record archive configuration
type Archive struct {
	S3 S3Config `mapstructure:"s3"`
}

// S3Config holds S3 archive configuration
type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
	Prefix          string `mapstructure:"prefix"`
}

// Pipeline holds batch scheduling configuration
type Pipeline struct {
	BatchSize int    `mapstructure:"batch_size"`
	Interval  string `mapstructure:"interval"`
}

// Server holds the status listener used by watch
type Server struct {
	Addr       string `mapstructure:"addr"`
	AdminToken string `mapstructure:"admin_token"`
}

var globalConfig *Config

// Load loads the configuration from various sources
func Load(configFile string) (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Error loading .env file: %v\n", err)
		}
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".articleforge")
		viper.SetConfigType("yaml")
	}

	setDefaults()
	bindEnvironmentVariables()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	config.App.ConfigFile = viper.ConfigFileUsed()

	if err := postProcessConfig(config); err != nil {
		return nil, fmt.Errorf("error post-processing config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	globalConfig = config
	return config, nil
}

// Get returns the global configuration, loading it if necessary
func Get() *Config {
	if globalConfig == nil {
		config, err := Load("")
		if err != nil {
			panic(fmt.Sprintf("Failed to load configuration: %v", err))
		}
		return config
	}
	return globalConfig
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("app.log_level", "info")
	viper.SetDefault("app.log_format", "json")
	viper.SetDefault("app.data_dir", ".articleforge")

	viper.SetDefault("ai.gemini.model", "gemini-2.5-flash")
	viper.SetDefault("ai.gemini.timeout", "90s")
	viper.SetDefault("ai.gemini.max_tokens", 8192)
	viper.SetDefault("ai.gemini.temperature", 0.7)
	viper.SetDefault("ai.gemini.top_k", 40)
	viper.SetDefault("ai.gemini.top_p", 0.95)

	viper.SetDefault("retry.max_attempts", 3)
	viper.SetDefault("retry.base_delay", "5s")
	viper.SetDefault("retry.max_delay", "40s")

	viper.SetDefault("search.provider", "google")
	viper.SetDefault("search.max_results", 10)
	viper.SetDefault("search.timeout", "15s")
	viper.SetDefault("search.language", "en")

	viper.SetDefault("scrape.timeout", "15s")
	viper.SetDefault("scrape.user_agent", "Mozilla/5.0 (compatible; ArticleForge/1.0)")
	viper.SetDefault("scrape.max_body_bytes", 5<<20)
	viper.SetDefault("scrape.concurrency", 3)

	viper.SetDefault("references.limit", 3)

	viper.SetDefault("content.max_content_chars", 12000)
	viper.SetDefault("content.max_reference_chars", 2000)

	viper.SetDefault("cache.backend", "sqlite")
	viper.SetDefault("cache.ttl", "168h")
	viper.SetDefault("cache.directory", ".articleforge")

	viper.SetDefault("store.table", "articles")

	viper.SetDefault("archive.s3.prefix", "enhancements/")

	viper.SetDefault("pipeline.batch_size", 5)
	viper.SetDefault("pipeline.interval", "10m")

	viper.SetDefault("server.addr", ":9090")
}

// bindEnvironmentVariables sets up flexible environment variable binding
func bindEnvironmentVariables() {
	// Gemini API key - support multiple formats
	bindEnvKeys("ai.gemini.api_key", []string{
		"GEMINI_API_KEY",
		"GOOGLE_GEMINI_API_KEY",
		"GOOGLE_AI_API_KEY",
	})

	bindEnvKeys("search.providers.google.api_key", []string{
		"GOOGLE_CUSTOM_SEARCH_API_KEY",
		"GOOGLE_CSE_API_KEY",
		"GOOGLE_SEARCH_API_KEY",
	})

	bindEnvKeys("search.providers.google.search_id", []string{
		"GOOGLE_CUSTOM_SEARCH_ID",
		"GOOGLE_CSE_ID",
		"GOOGLE_SEARCH_ENGINE_ID",
	})

	bindEnvKeys("search.providers.serpapi.api_key", []string{
		"SERPAPI_API_KEY",
		"SERPAPI_KEY",
	})

	bindEnvKeys("search.provider", []string{
		"SEARCH_PROVIDER",
	})

	bindEnvKeys("store.postgres_dsn", []string{
		"DATABASE_URL",
		"POSTGRES_DSN",
	})

	bindEnvKeys("cache.redis_url", []string{
		"REDIS_URL",
	})

	bindEnvKeys("archive.s3.bucket", []string{
		"ARCHIVE_S3_BUCKET",
		"S3_BUCKET",
	})

	bindEnvKeys("server.admin_token", []string{
		"ARTICLEFORGE_ADMIN_TOKEN",
	})

	bindEnvKeys("app.log_level", []string{
		"LOG_LEVEL",
	})
}

// bindEnvKeys binds the first found environment variable to a viper key
func bindEnvKeys(viperKey string, envKeys []string) {
	for _, envKey := range envKeys {
		if value := os.Getenv(envKey); value != "" {
			viper.Set(viperKey, value)
			return
		}
	}
}

// postProcessConfig applies post-processing to configuration values
func postProcessConfig(config *Config) error {
	if config.Cache.Directory != "" {
		config.Cache.Directory = expandPath(config.Cache.Directory)
	}
	if config.App.DataDir != "" {
		config.App.DataDir = expandPath(config.App.DataDir)
	}

	durations := map[string]string{
		"ai.gemini.timeout": config.AI.Gemini.Timeout,
		"retry.base_delay":  config.Retry.BaseDelay,
		"retry.max_delay":   config.Retry.MaxDelay,
		"search.timeout":    config.Search.Timeout,
		"scrape.timeout":    config.Scrape.Timeout,
		"cache.ttl":         config.Cache.TTL,
		"pipeline.interval": config.Pipeline.Interval,
	}

	for key, duration := range durations {
		if duration != "" {
			if _, err := time.ParseDuration(duration); err != nil {
				return fmt.Errorf("invalid duration for %s: %s", key, duration)
			}
		}
	}

	return nil
}

// expandPath expands ~ and environment variables in paths
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return os.ExpandEnv(path)
}

// validateConfig checks value ranges. Missing search credentials are not an
// error: reference collection falls back to generated references.
func validateConfig(config *Config) error {
	var errs []string

	switch config.Search.Provider {
	case "", "google", "serpapi", "mock":
	default:
		errs = append(errs, fmt.Sprintf("Unknown search provider: %s. Supported: google, serpapi, mock", config.Search.Provider))
	}

	switch config.Cache.Backend {
	case "", "memory", "sqlite", "redis", "none":
	default:
		errs = append(errs, fmt.Sprintf("Unknown cache backend: %s. Supported: memory, sqlite, redis, none", config.Cache.Backend))
	}
	if config.Cache.Backend == "redis" && config.Cache.RedisURL == "" {
		errs = append(errs, "Redis cache requires cache.redis_url or REDIS_URL")
	}

	if config.Retry.MaxAttempts < 1 {
		errs = append(errs, "retry.max_attempts must be at least 1")
	}
	if config.References.Limit < 1 {
		errs = append(errs, "references.limit must be at least 1")
	}
	if config.Content.MaxContentChars <= 0 || config.Content.MaxReferenceChars <= 0 {
		errs = append(errs, "content limits must be positive")
	}
	if config.Pipeline.BatchSize < 1 {
		errs = append(errs, "pipeline.batch_size must be at least 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n- %s", strings.Join(errs, "\n- "))
	}

	return nil
}

// Duration parses a validated duration string, returning fallback when empty.
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// HasValidGoogleSearch returns true if Google Custom Search is properly configured
func (c *Config) HasValidGoogleSearch() bool {
	g := c.Search.Providers.Google
	return isValidAPIKey(g.APIKey) && isValidSearchID(g.SearchID)
}

// HasValidSerpAPI returns true if SerpAPI is properly configured
func (c *Config) HasValidSerpAPI() bool {
	return isValidAPIKey(c.Search.Providers.SerpAPI.APIKey)
}

// HasValidGemini returns true if a usable Gemini key is present
func (c *Config) HasValidGemini() bool {
	return isValidAPIKey(c.AI.Gemini.APIKey)
}

// SearchProviderConfig returns the credential map for the configured provider
func (c *Config) SearchProviderConfig() map[string]string {
	switch c.Search.Provider {
	case "google":
		if !c.HasValidGoogleSearch() {
			return map[string]string{}
		}
		return map[string]string{
			"api_key":   c.Search.Providers.Google.APIKey,
			"search_id": c.Search.Providers.Google.SearchID,
		}
	case "serpapi":
		if !c.HasValidSerpAPI() {
			return map[string]string{}
		}
		return map[string]string{
			"api_key": c.Search.Providers.SerpAPI.APIKey,
		}
	default:
		return map[string]string{}
	}
}

// isValidAPIKey checks if an API key is valid (not empty and not a placeholder)
func isValidAPIKey(apiKey string) bool {
	if apiKey == "" {
		return false
	}

	placeholders := []string{
		"your-api-key", "your-google-key", "your-google-api-key", "your-serpapi-key",
		"your-gemini-key", "YOUR_API_KEY", "PLACEHOLDER", "TODO", "CHANGE_ME",
	}

	for _, placeholder := range placeholders {
		if apiKey == placeholder {
			return false
		}
	}

	return true
}

// isValidSearchID checks if a search ID is valid (not empty and not a placeholder)
func isValidSearchID(searchID string) bool {
	if searchID == "" {
		return false
	}

	placeholders := []string{
		"your-search-engine-id", "your-search-id", "your-cse-id",
		"YOUR_SEARCH_ID", "PLACEHOLDER", "TODO", "CHANGE_ME",
	}

	for _, placeholder := range placeholders {
		if searchID == placeholder {
			return false
		}
	}

	return true
}

// Reset clears the global configuration (useful for testing)
func Reset() {
	globalConfig = nil
	viper.Reset()
}
