package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ConfirmInstruction = "instruction"
	ConfirmDirect      = "direct"
)

// DotenvPaths are tried in order before env overrides are applied.
var DotenvPaths = []string{"env/production.env", ".env"}

type Config struct {
	API     APIConfig     `json:"api" yaml:"api" toml:"api"`
	Chat    ChatConfig    `json:"chat" yaml:"chat" toml:"chat"`
	WebChat WebChatConfig `json:"webchat" yaml:"webchat" toml:"webchat"`
	Log     LogConfig     `json:"log" yaml:"log" toml:"log"`
	mu      sync.RWMutex
}

type APIConfig struct {
	BaseURL               string  `json:"base_url" yaml:"base_url" toml:"base_url" env:"BILLABEE_API_BASE_URL"`
	RequestTimeoutSeconds int     `json:"request_timeout_seconds" yaml:"request_timeout_seconds" toml:"request_timeout_seconds" env:"BILLABEE_API_REQUEST_TIMEOUT_SECONDS"`
	RequestsPerSecond     float64 `json:"requests_per_second" yaml:"requests_per_second" toml:"requests_per_second" env:"BILLABEE_API_REQUESTS_PER_SECOND"`
	User                  string  `json:"user,omitempty" yaml:"user,omitempty" toml:"user,omitempty" env:"BILLABEE_API_USER"`
}

type ChatConfig struct {
	ConfirmMode          string   `json:"confirm_mode" yaml:"confirm_mode" toml:"confirm_mode" env:"BILLABEE_CHAT_CONFIRM_MODE"`
	MaxConcurrentCreates int      `json:"max_concurrent_creates" yaml:"max_concurrent_creates" toml:"max_concurrent_creates" env:"BILLABEE_CHAT_MAX_CONCURRENT_CREATES"`
	Themes               []string `json:"themes" yaml:"themes" toml:"themes" env:"BILLABEE_CHAT_THEMES"`
	Markdown             bool     `json:"markdown" yaml:"markdown" toml:"markdown" env:"BILLABEE_CHAT_MARKDOWN"`
	HistoryFile          string   `json:"history_file,omitempty" yaml:"history_file,omitempty" toml:"history_file,omitempty" env:"BILLABEE_CHAT_HISTORY_FILE"`
}

type WebChatConfig struct {
	Host     string `json:"host" yaml:"host" toml:"host" env:"BILLABEE_WEBCHAT_HOST"`
	Port     int    `json:"port" yaml:"port" toml:"port" env:"BILLABEE_WEBCHAT_PORT"`
	Username string `json:"username" yaml:"username" toml:"username" env:"BILLABEE_WEBCHAT_USERNAME"`
	Password string `json:"password" yaml:"password" toml:"password" env:"BILLABEE_WEBCHAT_PASSWORD"`
}

type LogConfig struct {
	Level string `json:"level" yaml:"level" toml:"level" env:"BILLABEE_LOG_LEVEL"`
}

// DefaultThemes is the theme list offered on selection cards. "Auto" lets
// the backend infer one.
func DefaultThemes() []string {
	return []string{"Auto", "Work", "Study", "Exercise", "Personal", "Social"}
}

func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:               "http://127.0.0.1:5000",
			RequestTimeoutSeconds: 120,
			RequestsPerSecond:     0,
		},
		Chat: ChatConfig{
			ConfirmMode:          ConfirmInstruction,
			MaxConcurrentCreates: 0,
			Themes:               DefaultThemes(),
			Markdown:             true,
			HistoryFile:          "~/.billabee/history",
		},
		WebChat: WebChatConfig{
			Host: "127.0.0.1",
			Port: 18800,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	loadDotenv()

	// Full config from env var (containers).
	if cfgJSON := os.Getenv("BILLABEE_CONFIG_JSON"); cfgJSON != "" {
		if err := json.Unmarshal([]byte(cfgJSON), cfg); err != nil {
			return nil, fmt.Errorf("parsing BILLABEE_CONFIG_JSON: %w", err)
		}
		if err := env.Parse(cfg); err != nil {
			return nil, err
		}
		return cfg, cfg.Validate()
	}

	if path != "" {
		data, err := os.ReadFile(expandHome(path))
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		if err == nil {
			if err := decode(path, data, cfg); err != nil {
				return nil, fmt.Errorf("parsing %s: %w", path, err)
			}
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, cfg.Validate()
}

func loadDotenv() {
	for _, p := range DotenvPaths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		// godotenv never overrides variables already set in the environment.
		_ = godotenv.Load(p)
	}
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	case ".toml":
		_, err := toml.Decode(string(data), cfg)
		return err
	default:
		return json.Unmarshal(data, cfg)
	}
}

func encode(path string, cfg *Config) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Marshal(cfg)
	case ".toml":
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return json.MarshalIndent(cfg, "", "  ")
	}
}

// Marshal encodes cfg in the format implied by path's extension.
func Marshal(path string, cfg *Config) ([]byte, error) {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()
	return encode(path, cfg)
}

func SaveConfig(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	path = expandHome(path)
	data, err := encode(path, cfg)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// Validate normalizes empty fields and rejects values the client cannot use.
func (c *Config) Validate() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.API.BaseURL = strings.TrimRight(strings.TrimSpace(c.API.BaseURL), "/")
	if c.API.BaseURL == "" {
		return errors.New("config: api.base_url is required")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil {
		return fmt.Errorf("config: api.base_url %q: %w", c.API.BaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("config: api.base_url %q: scheme must be http or https", c.API.BaseURL)
	}
	if c.API.RequestTimeoutSeconds < 0 {
		return fmt.Errorf("config: api.request_timeout_seconds must not be negative")
	}
	if c.API.RequestTimeoutSeconds == 0 {
		c.API.RequestTimeoutSeconds = 120
	}
	if c.API.RequestsPerSecond < 0 {
		return fmt.Errorf("config: api.requests_per_second must not be negative")
	}

	switch strings.ToLower(c.Chat.ConfirmMode) {
	case "":
		c.Chat.ConfirmMode = ConfirmInstruction
	case ConfirmInstruction, ConfirmDirect:
		c.Chat.ConfirmMode = strings.ToLower(c.Chat.ConfirmMode)
	default:
		return fmt.Errorf("config: chat.confirm_mode %q: want %q or %q", c.Chat.ConfirmMode, ConfirmInstruction, ConfirmDirect)
	}
	if c.Chat.MaxConcurrentCreates < 0 {
		return fmt.Errorf("config: chat.max_concurrent_creates must not be negative")
	}
	if len(c.Chat.Themes) == 0 {
		c.Chat.Themes = DefaultThemes()
	}

	if c.WebChat.Port < 0 || c.WebChat.Port > 65535 {
		return fmt.Errorf("config: webchat.port %d out of range", c.WebChat.Port)
	}
	return nil
}

func (c *Config) RequestTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.API.RequestTimeoutSeconds) * time.Second
}

func (c *Config) HistoryPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return expandHome(c.Chat.HistoryFile)
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
