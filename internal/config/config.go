// Package config loads docdex configuration from YAML with environment
// fallbacks for credentials.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	// ConfigFileName is looked up in the working directory, then the home
	// directory.
	ConfigFileName = ".docdex.yaml"

	defaultChunkSize    = 1000
	defaultChunkOverlap = 150
	defaultTopK         = 8
	defaultEmbedDim     = 768
	defaultWorkers      = 16
)

type Config struct {
	DatabaseURL  string         `yaml:"database_url"`
	Debug        bool           `yaml:"debug"`
	ChunkSize    int            `yaml:"chunk_size"`
	ChunkOverlap int            `yaml:"chunk_overlap"`
	TopK         int            `yaml:"top_k"`
	Workers      int            `yaml:"workers"`
	Embed        EmbedConfig    `yaml:"embed"`
	LLM          LLMConfig      `yaml:"llm"`
	Rerank       RerankConfig   `yaml:"rerank"`
	Sources      []SourceConfig `yaml:"sources"`
}

type EmbedConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"api_key"`
	Dim      int    `yaml:"dim"`
}

type LLMConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"api_key"`
}

type RerankConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Provider string `yaml:"provider"`
	Endpoint string `yaml:"endpoint"`
	Model    string `yaml:"model"`
}

// SourceConfig is one configured ingestion source: a folder (optionally with
// CSV row-mode controls) or an external database of rows.
type SourceConfig struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"` // folder | db

	// Folder source.
	Path         string            `yaml:"path"`
	CSVRowMode   bool              `yaml:"csv_row_mode"`
	CSVDelimiter string            `yaml:"csv_delimiter"`
	CSVHeaders   string            `yaml:"csv_headers"`
	CSVWhere     map[string]string `yaml:"csv_where"`
	CSVLimit     int               `yaml:"csv_limit"`

	// DB row source.
	URL        string `yaml:"url"`
	Table      string `yaml:"table"`
	IDColumn   string `yaml:"id_column"`
	TextColumn string `yaml:"text_column"`
	Where      string `yaml:"where"`
	Query      string `yaml:"query"`
	Alias      string `yaml:"alias"`
	Format     string `yaml:"format"`
}

// Load reads the config file at path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyFallbacks()
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyFallbacks()
	return cfg, nil
}

// LoadDefault looks for .docdex.yaml in the working directory, then the home
// directory, and falls back to defaults when neither exists.
func LoadDefault() (*Config, error) {
	if _, err := os.Stat(ConfigFileName); err == nil {
		return Load(ConfigFileName)
	}
	if home, err := os.UserHomeDir(); err == nil {
		path := filepath.Join(home, ConfigFileName)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	cfg := defaults()
	cfg.applyFallbacks()
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		ChunkSize:    defaultChunkSize,
		ChunkOverlap: defaultChunkOverlap,
		TopK:         defaultTopK,
		Workers:      defaultWorkers,
		Embed: EmbedConfig{
			Provider: "openai",
			Model:    "text-embedding-3-small",
			Dim:      defaultEmbedDim,
		},
		LLM: LLMConfig{
			Provider: "openai",
			Model:    "gpt-4o-mini",
		},
		Rerank: RerankConfig{Provider: "heuristic"},
	}
}

func (c *Config) applyFallbacks() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.Embed.APIKey == "" {
		c.Embed.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = defaultChunkSize
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		c.ChunkOverlap = c.ChunkSize / 10
	}
	if c.TopK <= 0 {
		c.TopK = defaultTopK
	}
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.Embed.Dim <= 0 {
		c.Embed.Dim = defaultEmbedDim
	}
}

// Validate reports fatal configuration problems before any writes happen.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("database_url is required (set it in %s or DATABASE_URL)", ConfigFileName)
	}
	return nil
}
