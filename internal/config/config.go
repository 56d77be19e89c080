package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config is the on-disk configuration, one JSON file per user.
type Config struct {
	ActiveProvider        string                    `mapstructure:"active_provider" json:"active_provider"`
	Providers             map[string]ProviderConfig `mapstructure:"providers" json:"providers"`
	MCPServers            map[string]MCPServer      `mapstructure:"mcp_servers" json:"mcp_servers,omitempty"`
	SystemPrompt          string                    `mapstructure:"system_prompt" json:"system_prompt,omitempty"`
	AutoSaveConversations bool                      `mapstructure:"auto_save_conversations" json:"auto_save_conversations"`
	ToolLoopLimit         int                       `mapstructure:"tool_loop_limit" json:"tool_loop_limit"`
	Debug                 bool                      `mapstructure:"debug" json:"debug"`
}

// ProviderConfig configures one backend.
type ProviderConfig struct {
	Type            string  `mapstructure:"type" json:"type,omitempty"` // anthropic, openai, openai-compat, openrouter, zai, ollama
	APIKey          string  `mapstructure:"api_key" json:"api_key"`
	APIURL          string  `mapstructure:"api_url" json:"api_url,omitempty"`
	Model           string  `mapstructure:"model" json:"model"`
	MaxTokens       int     `mapstructure:"max_tokens" json:"max_tokens,omitempty"`
	Temperature     float64 `mapstructure:"temperature" json:"temperature,omitempty"`
	Streaming       bool    `mapstructure:"streaming" json:"streaming"`
	ThinkingEnabled bool    `mapstructure:"thinking_enabled" json:"thinking_enabled,omitempty"`

	// OpenRouter attribution headers.
	AppURL   string `mapstructure:"app_url" json:"app_url,omitempty"`
	AppTitle string `mapstructure:"app_title" json:"app_title,omitempty"`
}

// MCPServer describes one remote tool server. Command and URL are
// mutually exclusive: Command spawns a child process speaking stdio,
// URL connects over HTTP.
type MCPServer struct {
	URL     string            `mapstructure:"url" json:"url,omitempty"`
	Command string            `mapstructure:"command" json:"command,omitempty"`
	Args    []string          `mapstructure:"args" json:"args,omitempty"`
	Env     map[string]string `mapstructure:"env" json:"env,omitempty"`
	Headers map[string]string `mapstructure:"headers" json:"headers,omitempty"`
	Timeout int               `mapstructure:"timeout" json:"timeout,omitempty"` // seconds, per tool call
}

// Validate checks an MCP server descriptor.
func (s *MCPServer) Validate() error {
	if s.URL != "" && s.Command != "" {
		return fmt.Errorf("cannot specify both url and command")
	}
	if s.URL == "" && s.Command == "" {
		return fmt.Errorf("either url or command is required")
	}
	return nil
}

// ConfigDir returns the per-user configuration directory.
func ConfigDir() (string, error) {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "sable"), nil
}

// Path returns the canonical config file path.
func Path() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("active_provider", "anthropic")
	v.SetDefault("auto_save_conversations", true)
	v.SetDefault("tool_loop_limit", 25)
	v.SetDefault("debug", false)
}

// Load reads the configuration, migrating a legacy YAML file on first
// run. A missing file yields defaults.
func Load() (*Config, error) {
	dir, err := ConfigDir()
	if err != nil {
		return nil, err
	}
	return LoadFromDir(dir)
}

// LoadFromDir reads config.json from the given directory.
func LoadFromDir(dir string) (*Config, error) {
	if err := MigrateYAML(dir); err != nil {
		return nil, fmt.Errorf("migrate legacy config: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(dir)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	// viper lowercases every map key; header names keep their case as
	// written in the file.
	if data, err := os.ReadFile(v.ConfigFileUsed()); err == nil {
		var raw struct {
			MCPServers map[string]struct{ Headers map[string]string } `json:"mcp_servers"`
		}
		if json.Unmarshal(data, &raw) == nil {
			for name, server := range cfg.MCPServers {
				if headers := raw.MCPServers[name].Headers; headers != nil {
					server.Headers = headers
					cfg.MCPServers[name] = server
				}
			}
		}
	}
	if cfg.Providers == nil {
		cfg.Providers = make(map[string]ProviderConfig)
	}
	if cfg.ToolLoopLimit <= 0 {
		cfg.ToolLoopLimit = 25
	}
	return &cfg, nil
}

// ActiveProviderConfig returns the configured active provider.
func (c *Config) ActiveProviderConfig() (string, ProviderConfig, error) {
	name := c.ActiveProvider
	if name == "" {
		return "", ProviderConfig{}, fmt.Errorf("no active provider configured")
	}
	pc, ok := c.Providers[name]
	if !ok {
		return "", ProviderConfig{}, fmt.Errorf("active provider %q not found in providers", name)
	}
	return name, pc, nil
}
