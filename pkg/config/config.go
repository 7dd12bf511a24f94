package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App       AppConfig                 `json:"app" yaml:"app"`
	Gateways  map[string]GatewayConfig  `json:"gateways" yaml:"gateways"`
	Providers map[string]ProviderConfig `json:"providers" yaml:"providers"`
	Memory    MemoryConfig              `json:"memory" yaml:"memory"`
	Database  DatabaseConfig            `json:"database" yaml:"database"`
	Tables    []string                  `json:"tables" yaml:"tables"`
	Cache     CacheConfig               `json:"cache" yaml:"cache"`
	Search    SearchConfig              `json:"search" yaml:"search"`
	Render    RenderConfig              `json:"render" yaml:"render"`
	Catalog   CatalogConfig             `json:"catalog" yaml:"catalog"`
	Policy    PolicyConfig              `json:"policy" yaml:"policy"`
}

type AppConfig struct {
	Name     string `json:"name" yaml:"name"`
	Listen   string `json:"listen" yaml:"listen"`
	Prompts  string `json:"prompts" yaml:"prompts"`
	LogDir   string `json:"log_dir" yaml:"log_dir"`
	Provider string `json:"provider,omitempty" yaml:"provider,omitempty"`
}

type GatewayConfig struct {
	Token   string `json:"token" yaml:"token"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
	// Table is the dataset a new chat starts on.
	Table string `json:"table,omitempty" yaml:"table,omitempty"`
}

type ProviderConfig struct {
	APIKey      string  `json:"api_key" yaml:"api_key"`
	Model       string  `json:"model" yaml:"model"`
	BaseURL     string  `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Temperature float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
}

type MemoryConfig struct {
	Type         string `json:"type" yaml:"type"`
	Path         string `json:"path" yaml:"path"`
	HistoryLimit int    `json:"history_limit" yaml:"history_limit"`
}

type DatabaseConfig struct {
	URL                     string `json:"url" yaml:"url"`
	StatementTimeoutSeconds int    `json:"statement_timeout_seconds" yaml:"statement_timeout_seconds"`
	MaxConns                int32  `json:"max_conns" yaml:"max_conns"`
}

type CacheConfig struct {
	Capacity   int `json:"capacity" yaml:"capacity"`
	TTLSeconds int `json:"ttl_seconds" yaml:"ttl_seconds"`
}

type SearchConfig struct {
	MinIntervalMillis int      `json:"min_interval_ms" yaml:"min_interval_ms"`
	MaxResults        int      `json:"max_results" yaml:"max_results"`
	SnippetChars      int      `json:"snippet_chars" yaml:"snippet_chars"`
	TimeoutSeconds    int      `json:"timeout_seconds" yaml:"timeout_seconds"`
	Backends          []string `json:"backends" yaml:"backends"`
	Enrich            bool     `json:"enrich" yaml:"enrich"`
}

type RenderConfig struct {
	Mode           string `json:"mode" yaml:"mode"`
	OutputDir      string `json:"output_dir" yaml:"output_dir"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`
}

type CatalogConfig struct {
	RefreshMinutes int `json:"refresh_minutes" yaml:"refresh_minutes"`
}

// PolicyConfig adds operator deny rules on top of the built-in guards.
type PolicyConfig struct {
	DeniedTools  []string `json:"denied_tools" yaml:"denied_tools"`
	DenyPatterns []string `json:"deny_patterns" yaml:"deny_patterns"`
}

// Render modes.
const (
	RenderPlotly = "plotly"
	RenderPNG    = "png"
)

// Load reads the config file at path (JSON, or YAML for .yaml/.yml), then applies
// environment overrides and defaults. A .env file next to the working directory is
// loaded first if present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a config built only from the environment and defaults.
func Default() (*Config, error) {
	_ = godotenv.Load()
	var cfg Config
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func LoadConfig(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		log.Fatalf("%v", err)
	}
	return cfg
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("EXOSCOPE_LISTEN"); v != "" {
		c.App.Listen = v
	}

	if c.Providers == nil {
		c.Providers = make(map[string]ProviderConfig)
	}
	for name, env := range map[string]string{
		"openai":    "OPENAI_API_KEY",
		"anthropic": "ANTHROPIC_API_KEY",
		"gemini":    "GEMINI_API_KEY",
	} {
		if v := os.Getenv(env); v != "" {
			p := c.Providers[name]
			p.APIKey = v
			c.Providers[name] = p
		}
	}

	if c.Gateways == nil {
		c.Gateways = make(map[string]GatewayConfig)
	}
	for name, env := range map[string]string{
		"telegram": "TELEGRAM_TOKEN",
		"discord":  "DISCORD_TOKEN",
	} {
		if v := os.Getenv(env); v != "" {
			g := c.Gateways[name]
			g.Token = v
			c.Gateways[name] = g
		}
	}

	var err error
	if c.Cache.Capacity, err = getEnvInt("CACHE_CAPACITY", c.Cache.Capacity); err != nil {
		return err
	}
	if c.Cache.TTLSeconds, err = getEnvInt("CACHE_TTL_SECONDS", c.Cache.TTLSeconds); err != nil {
		return err
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "exoscope"
	}
	if c.App.Listen == "" {
		c.App.Listen = ":8080"
	}
	if c.App.Prompts == "" {
		c.App.Prompts = "./prompts"
	}
	if c.App.LogDir == "" {
		c.App.LogDir = "logs"
	}
	if c.Memory.Path == "" {
		c.Memory.Path = "exoscope.db"
	}
	if c.Memory.HistoryLimit <= 0 {
		c.Memory.HistoryLimit = 5
	}
	if c.Database.StatementTimeoutSeconds <= 0 {
		c.Database.StatementTimeoutSeconds = 30
	}
	if c.Database.MaxConns <= 0 {
		c.Database.MaxConns = 10
	}
	if len(c.Tables) == 0 {
		c.Tables = []string{"k2", "toi", "cum"}
	}
	if c.Cache.Capacity <= 0 {
		c.Cache.Capacity = 100
	}
	if c.Cache.TTLSeconds <= 0 {
		c.Cache.TTLSeconds = 3600
	}
	if c.Search.MinIntervalMillis <= 0 {
		c.Search.MinIntervalMillis = 1000
	}
	if c.Search.MaxResults <= 0 {
		c.Search.MaxResults = 8
	}
	if c.Search.SnippetChars <= 0 {
		c.Search.SnippetChars = 200
	}
	if c.Search.TimeoutSeconds <= 0 {
		c.Search.TimeoutSeconds = 10
	}
	if len(c.Search.Backends) == 0 {
		c.Search.Backends = []string{"glossary", "wikipedia", "duckduckgo"}
	}
	if c.Render.Mode == "" {
		c.Render.Mode = RenderPlotly
	}
	if c.Render.OutputDir == "" {
		c.Render.OutputDir = "plots"
	}
	if c.Render.TimeoutSeconds <= 0 {
		c.Render.TimeoutSeconds = 15
	}
	if c.Catalog.RefreshMinutes < 0 {
		c.Catalog.RefreshMinutes = 0
	}
}

// GetDefaultProvider returns the provider named by app.provider if it is enabled, otherwise
// the first enabled provider by name.
func (c *Config) GetDefaultProvider() (string, ProviderConfig) {
	if p, ok := c.Providers[c.App.Provider]; ok && p.Enabled {
		return c.App.Provider, p
	}
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if p := c.Providers[name]; p.Enabled {
			return name, p
		}
	}
	return "", ProviderConfig{}
}

// GetTelegramConfig returns telegram config if enabled
func (c *Config) GetTelegramConfig() (GatewayConfig, bool) {
	return c.gateway("telegram")
}

// GetDiscordConfig returns discord config if enabled
func (c *Config) GetDiscordConfig() (GatewayConfig, bool) {
	return c.gateway("discord")
}

func (c *Config) gateway(name string) (GatewayConfig, bool) {
	g, ok := c.Gateways[name]
	if ok && g.Enabled && g.Token != "" {
		return g, true
	}
	return GatewayConfig{}, false
}

func (c CacheConfig) TTL() time.Duration { return time.Duration(c.TTLSeconds) * time.Second }

func (c SearchConfig) MinInterval() time.Duration {
	return time.Duration(c.MinIntervalMillis) * time.Millisecond
}

func (c SearchConfig) Timeout() time.Duration { return time.Duration(c.TimeoutSeconds) * time.Second }

func (c RenderConfig) Timeout() time.Duration { return time.Duration(c.TimeoutSeconds) * time.Second }

func (c DatabaseConfig) StatementTimeout() time.Duration {
	return time.Duration(c.StatementTimeoutSeconds) * time.Second
}

func (c CatalogConfig) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshMinutes) * time.Minute
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return i, nil
}
