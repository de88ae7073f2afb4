package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/user/agentflow/internal/conversation"
	"github.com/user/agentflow/internal/graph"
	"github.com/user/agentflow/pkg/llm"
)

type Config struct {
	LogLevel      string `json:"log_level"`
	MaxConcurrent int    `json:"max_concurrent"`
	MaxToolRounds int    `json:"max_tool_rounds"`
	GraphPath     string `json:"graph_path"`
	LLM           struct {
		BaseURL          string  `json:"base_url"`
		APIKey           string  `json:"api_key"`
		MaxTokens        int     `json:"max_tokens"`
		Temperature      float32 `json:"temperature"`
		MaxContextTokens int     `json:"max_context_tokens"`
		OutputReserve    int     `json:"output_reserve"`
	} `json:"llm"`
	HTTP struct {
		Listen        string `json:"listen"`
		AllowedOrigin string `json:"allowed_origin"`
	} `json:"http"`
	Client struct {
		Endpoint       string `json:"endpoint"`
		TimeoutSeconds int    `json:"timeout_seconds"`
	} `json:"client"`
	Graph struct {
		ModelPolicy   string `json:"model_policy"`
		DanglingEdges string `json:"dangling_edges"`
	} `json:"graph"`
	Brave struct {
		APIKey string `json:"api_key"`
	} `json:"brave"`
	Telegram struct {
		Token string `json:"token"`
	} `json:"telegram"`
}

// DefaultPath returns ~/.agentflow/config.json.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.Getenv("HOME")
	}
	return filepath.Join(home, ".agentflow", "config.json")
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	cfg := &Config{
		LogLevel:      "info",
		MaxConcurrent: 2,
		MaxToolRounds: 10,
	}
	cfg.LLM.BaseURL = llm.DefaultBaseURL
	cfg.LLM.MaxTokens = 2000
	cfg.LLM.Temperature = llm.DefaultTemperature
	cfg.LLM.MaxContextTokens = 128000
	cfg.LLM.OutputReserve = 4096
	cfg.HTTP.Listen = "127.0.0.1:8000"
	cfg.Client.Endpoint = conversation.DefaultEndpoint
	cfg.Client.TimeoutSeconds = 60
	cfg.Graph.ModelPolicy = "first"
	cfg.Graph.DanglingEdges = "cascade"
	return cfg
}

// Load reads path over the defaults, writing the defaults there first if the
// file does not exist. A .env file in the working directory is loaded next,
// then environment variables override file values.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	// Load from file if exists, otherwise write defaults
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("ignoring unreadable .env", "error", err)
	}
	applyEnv(cfg)
	return cfg, nil
}

// applyEnv overrides cfg from the environment (highest precedence).
func applyEnv(cfg *Config) {
	if apiKey := os.Getenv("GOOGLE_API_KEY"); apiKey != "" {
		cfg.LLM.APIKey = apiKey
	}
	if apiKey := os.Getenv("AGENTFLOW_API_KEY"); apiKey != "" {
		cfg.LLM.APIKey = apiKey
	}
	if baseURL := os.Getenv("AGENTFLOW_BASE_URL"); baseURL != "" {
		cfg.LLM.BaseURL = baseURL
	}
	if endpoint := os.Getenv("AGENTFLOW_ENDPOINT"); endpoint != "" {
		cfg.Client.Endpoint = endpoint
	}
	if origin := os.Getenv("CORS_ALLOWED_ORIGIN"); origin != "" {
		cfg.HTTP.AllowedOrigin = origin
	}
	if braveKey := os.Getenv("BRAVE_API_KEY"); braveKey != "" {
		cfg.Brave.APIKey = braveKey
	}
	if tgToken := os.Getenv("TELEGRAM_BOT_TOKEN"); tgToken != "" {
		cfg.Telegram.Token = tgToken
	}
}

// Save writes cfg to path atomically, creating the directory if needed.
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeFile(path, data)
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data = append(data, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// ToMap converts cfg to its generic JSON form.
func ToMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// ListValues returns cfg as dot-separated keys, with secrets masked if mask is set.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	flat := Flatten(m)
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

// GetValue returns one key as stored in the file at path. Environment
// overrides are not reflected.
func GetValue(path, key string) (any, error) {
	if _, err := Load(path); err != nil {
		return nil, err
	}
	flat, err := readFlat(path)
	if err != nil {
		return nil, err
	}
	v, ok := flat[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	return v, nil
}

// SetValue stores value under key in the existing file at path. The key must
// be a known setting and value is coerced to that setting's type. The merged
// file is validated before it is written, so a bad value leaves it untouched.
func SetValue(path, key, value string) error {
	flat, err := readFlat(path)
	if err != nil {
		return err
	}

	v, err := coerce(key, value)
	if err != nil {
		return err
	}
	flat[key] = v

	merged, err := json.Marshal(Unflatten(flat))
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	cfg := Defaults()
	if err := json.Unmarshal(merged, cfg); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(Unflatten(flat), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeFile(path, data)
}

// coerce converts value to the JSON type key has in the defaults.
func coerce(key, value string) (any, error) {
	m, err := ToMap(Defaults())
	if err != nil {
		return nil, err
	}
	def, ok := Flatten(m)[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	switch def.(type) {
	case float64:
		var n float64
		if err := json.Unmarshal([]byte(value), &n); err != nil {
			return nil, fmt.Errorf("%s: expected a number, got %q", key, value)
		}
		return n, nil
	case bool:
		var b bool
		if err := json.Unmarshal([]byte(value), &b); err != nil {
			return nil, fmt.Errorf("%s: expected true or false, got %q", key, value)
		}
		return b, nil
	default:
		return value, nil
	}
}

func readFlat(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return Flatten(m), nil
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level: unknown level %q", c.LogLevel)
	}
	if _, err := graph.ParseModelPolicy(c.Graph.ModelPolicy); err != nil {
		return fmt.Errorf("graph.model_policy: %w", err)
	}
	if _, err := graph.ParseDanglingPolicy(c.Graph.DanglingEdges); err != nil {
		return fmt.Errorf("graph.dangling_edges: %w", err)
	}
	if c.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent: must be at least 1, got %d", c.MaxConcurrent)
	}
	return nil
}
