package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Sources       Sources       `yaml:"sources"`
	Dedup         Dedup         `yaml:"dedup"`
	Publish       Publish       `yaml:"publish"`
	Platforms     Platforms     `yaml:"platforms"`
	Summarization Summarization `yaml:"summarization"`
	Analysis      Analysis      `yaml:"analysis"`
	Briefing      Briefing      `yaml:"briefing"`
	SMTP          SMTP          `yaml:"smtp"`
	Redis         Redis         `yaml:"redis"`
	Notifications Notifications `yaml:"notifications"`
	Retention     Retention     `yaml:"retention"`
	Output        Output        `yaml:"output"`
	Server        Server        `yaml:"server"`
	Logging       Logging       `yaml:"logging"`
}

type Sources struct {
	Feeds []Feed       `yaml:"feeds"`
	Sites []Site       `yaml:"sites"`
	APIs  APIsConfig   `yaml:"apis"`
	Fetch FetchOptions `yaml:"fetch"`
}

type Feed struct {
	URL  string `yaml:"url"`
	Name string `yaml:"name"`
}

// Site describes an HTML listing page scraped with CSS selectors.
type Site struct {
	Name      string        `yaml:"name"`
	URL       string        `yaml:"url"`
	Selectors SiteSelectors `yaml:"selectors"`
	MaxItems  int           `yaml:"max_items"`
}

type SiteSelectors struct {
	Item    string `yaml:"item"`
	Title   string `yaml:"title"`
	Link    string `yaml:"link"`
	Summary string `yaml:"summary"`
	Date    string `yaml:"date"`
}

type APIsConfig struct {
	NewsAPI NewsAPIConfig `yaml:"newsapi"`
}

type NewsAPIConfig struct {
	Enabled   bool   `yaml:"enabled"`
	APIKeyEnv string `yaml:"api_key_env"`
	Query     string `yaml:"query"`
	Language  string `yaml:"language"`
	PageSize  int    `yaml:"page_size"`
}

type FetchOptions struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

type Dedup struct {
	WindowDays         int     `yaml:"window_days"`
	FuzzyThreshold     float64 `yaml:"fuzzy_threshold"`
	RecentWindow       int     `yaml:"recent_window"`
	SemanticEnabled    bool    `yaml:"semantic_enabled"`
	SemanticThreshold  float64 `yaml:"semantic_threshold"`
	SemanticWindowDays int     `yaml:"semantic_window_days"`
	SemanticTopK       int     `yaml:"semantic_top_k"`
}

type Publish struct {
	BaseDelayMinutes float64 `yaml:"base_delay_minutes"`
	Multiplier       float64 `yaml:"multiplier"`
	MaxRetries       int     `yaml:"max_retries"`
	BatchLimit       int     `yaml:"batch_limit"`
	TimeoutSeconds   int     `yaml:"timeout_seconds"`
}

// Platforms names the environment variables holding each platform credential.
type Platforms struct {
	LinkedIn LinkedIn `yaml:"linkedin"`
	DevTo    DevTo    `yaml:"devto"`
	Hashnode Hashnode `yaml:"hashnode"`
	Medium   Medium   `yaml:"medium"`
	Blogger  Blogger  `yaml:"blogger"`
	Telegram Telegram `yaml:"telegram"`
	Quaily   Quaily   `yaml:"quaily"`
}

type LinkedIn struct {
	TokenEnv string `yaml:"token_env"`
}

type DevTo struct {
	APIKeyEnv string   `yaml:"api_key_env"`
	Tags      []string `yaml:"tags"`
}

type Hashnode struct {
	APIKeyEnv        string   `yaml:"api_key_env"`
	PublicationIDEnv string   `yaml:"publication_id_env"`
	Tags             []string `yaml:"tags"`
}

type Medium struct {
	TokenEnv string   `yaml:"token_env"`
	Tags     []string `yaml:"tags"`
}

type Blogger struct {
	AddressEnv string `yaml:"address_env"`
}

type Telegram struct {
	TokenEnv  string `yaml:"token_env"`
	ChatIDEnv string `yaml:"chat_id_env"`
}

type Quaily struct {
	APIKeyEnv string `yaml:"api_key_env"`
	BaseURL   string `yaml:"base_url"`
	Channel   string `yaml:"channel"`
}

type Summarization struct {
	Provider       string `yaml:"provider"`
	Model          string `yaml:"model"`
	OllamaURL      string `yaml:"ollama_url"`
	EmbeddingModel string `yaml:"embedding_model"`
	Embedder       string `yaml:"embedder"`
	OpenAIModel    string `yaml:"openai_model"`
	OpenAIEmbed    string `yaml:"openai_embedding_model"`
	OpenAIBaseURL  string `yaml:"openai_base_url"`
	APIKeyEnv      string `yaml:"api_key_env"`
	MaxTokens      int    `yaml:"max_tokens"`
}

type Analysis struct {
	BatchSize          int `yaml:"batch_size"`
	MaxPending         int `yaml:"max_pending"`
	RelevanceThreshold int `yaml:"relevance_threshold"`
	BriefingMaxTokens  int `yaml:"briefing_max_tokens"`
}

type Briefing struct {
	EmailTo string `yaml:"email_to"`
}

type SMTP struct {
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	UserEnv string `yaml:"user_env"`
	PassEnv string `yaml:"pass_env"`
	From    string `yaml:"from"`
}

type Redis struct {
	Addr        string `yaml:"addr"`
	PasswordEnv string `yaml:"password_env"`
	DB          int    `yaml:"db"`
	Key         string `yaml:"key"`
}

type Notifications struct {
	NtfyTopic      string `yaml:"ntfy_topic"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type Retention struct {
	ArchiveAfterDays int `yaml:"archive_after_days"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ConfigDir returns the XDG config directory for lex.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "lex")
}

// DataDir returns the XDG data directory for lex.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "lex")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/lex/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'lex init' to create a default config",
		xdgConfig,
	)
}

// LoadEnv loads credentials from .env files into the process environment.
// Missing files are ignored; variables already set are never overwritten.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env", filepath.Join(ConfigDir(), ".env")}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := Defaults()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Defaults returns a Config populated with built-in defaults.
func Defaults() *Config {
	return &Config{
		Sources: Sources{
			APIs: APIsConfig{
				NewsAPI: NewsAPIConfig{
					APIKeyEnv: "NEWSAPI_KEY",
					Query:     "人工智能 OR 大模型",
					Language:  "zh",
					PageSize:  50,
				},
			},
			Fetch: FetchOptions{TimeoutSeconds: 15},
		},
		Dedup: Dedup{
			WindowDays:         30,
			FuzzyThreshold:     0.65,
			RecentWindow:       500,
			SemanticEnabled:    true,
			SemanticThreshold:  0.85,
			SemanticWindowDays: 30,
			SemanticTopK:       5,
		},
		Publish: Publish{
			BaseDelayMinutes: 5,
			Multiplier:       4,
			MaxRetries:       3,
			BatchLimit:       20,
			TimeoutSeconds:   30,
		},
		Platforms: Platforms{
			LinkedIn: LinkedIn{TokenEnv: "LINKEDIN_ACCESS_TOKEN"},
			DevTo:    DevTo{APIKeyEnv: "DEVTO_API_KEY", Tags: []string{"ai", "china", "news"}},
			Hashnode: Hashnode{
				APIKeyEnv:        "HASHNODE_API_KEY",
				PublicationIDEnv: "HASHNODE_PUBLICATION_ID",
				Tags:             []string{"artificial-intelligence", "china", "technology-news"},
			},
			Medium:   Medium{TokenEnv: "MEDIUM_INTEGRATION_TOKEN", Tags: []string{"artificial-intelligence", "china", "technology"}},
			Blogger:  Blogger{AddressEnv: "BLOGGER_EMAIL"},
			Telegram: Telegram{TokenEnv: "TELEGRAM_BOT_TOKEN", ChatIDEnv: "TELEGRAM_CHAT_ID"},
			Quaily:   Quaily{APIKeyEnv: "QUAILY_API_KEY", BaseURL: "https://api.quaily.com/v1"},
		},
		Summarization: Summarization{
			Provider:       "ollama",
			Model:          "qwen2.5:7b",
			OllamaURL:      "http://localhost:11434",
			EmbeddingModel: "nomic-embed-text",
			Embedder:       "ollama",
			OpenAIModel:    "gpt-4o-mini",
			OpenAIEmbed:    "text-embedding-3-small",
			APIKeyEnv:      "OPENAI_API_KEY",
			MaxTokens:      4096,
		},
		Analysis: Analysis{
			BatchSize:          50,
			MaxPending:         500,
			RelevanceThreshold: 3,
			BriefingMaxTokens:  8192,
		},
		SMTP: SMTP{
			Host:    "smtp.gmail.com",
			Port:    587,
			UserEnv: "SMTP_USER",
			PassEnv: "SMTP_PASS",
			From:    "lex@localhost",
		},
		Redis:         Redis{PasswordEnv: "REDIS_PASSWORD", Key: "lex:recent_titles"},
		Notifications: Notifications{TimeoutSeconds: 10},
		Retention:     Retention{ArchiveAfterDays: 90},
		Server:        Server{Port: 8000},
		Logging:       Logging{Level: "INFO", Format: "auto"},
	}
}

func (c *Config) validate() error {
	if c.Dedup.FuzzyThreshold <= 0 || c.Dedup.FuzzyThreshold > 1 {
		return fmt.Errorf("dedup.fuzzy_threshold must be in (0, 1], got %v", c.Dedup.FuzzyThreshold)
	}
	if c.Dedup.SemanticThreshold <= 0 || c.Dedup.SemanticThreshold > 1 {
		return fmt.Errorf("dedup.semantic_threshold must be in (0, 1], got %v", c.Dedup.SemanticThreshold)
	}
	if c.Publish.MaxRetries < 1 {
		return fmt.Errorf("publish.max_retries must be at least 1, got %d", c.Publish.MaxRetries)
	}
	if c.Publish.Multiplier < 1 {
		return fmt.Errorf("publish.multiplier must be at least 1, got %v", c.Publish.Multiplier)
	}
	return nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// Env returns the value of the environment variable named by key, or "".
func Env(key string) string {
	if key == "" {
		return ""
	}
	return os.Getenv(key)
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
