package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/MegaGrindStone/chat-relay/internal/handlers"
	"github.com/MegaGrindStone/chat-relay/internal/services"
	"gopkg.in/yaml.v3"
)

type llmConfig interface {
	llm(logger *slog.Logger) (handlers.LLM, error)
}

// BaseLLMConfig contains the common fields for all LLM configurations.
type BaseLLMConfig struct {
	Provider   string                 `yaml:"provider"`
	Model      string                 `yaml:"model"`
	Parameters services.LLMParameters `yaml:"parameters"`
}

type config struct {
	Port          string
	SystemPrompt  string
	LogLevel      string
	AllowedOrigin string
	JournalPath   string
	LLM           llmConfig
}

type openAIConfig struct {
	BaseLLMConfig `yaml:",inline"`
	APIKey        string `yaml:"apiKey"`
	BaseURL       string `yaml:"baseURL"`
}

type anthropicConfig struct {
	BaseLLMConfig `yaml:",inline"`
	APIKey        string `yaml:"apiKey"`
	BaseURL       string `yaml:"baseURL"`
	MaxTokens     int    `yaml:"maxTokens"`
}

type openRouterConfig struct {
	BaseLLMConfig `yaml:",inline"`
	APIKey        string `yaml:"apiKey"`
	BaseURL       string `yaml:"baseURL"`
}

type ollamaConfig struct {
	BaseLLMConfig `yaml:",inline"`
	Host          string `yaml:"host"`
}

const journalDisabled = "off"

// UnmarshalYAML decodes on top of the current values: scalar keys that are absent or empty keep them,
// and an llm block replaces the previous one as a whole.
func (c *config) UnmarshalYAML(value *yaml.Node) error {
	var rawConfig struct {
		Port          string         `yaml:"port"`
		SystemPrompt  string         `yaml:"systemPrompt"`
		LogLevel      string         `yaml:"logLevel"`
		AllowedOrigin string         `yaml:"allowedOrigin"`
		JournalPath   string         `yaml:"journalPath"`
		LLM           map[string]any `yaml:"llm"`
	}

	if err := value.Decode(&rawConfig); err != nil {
		return err
	}

	for dst, src := range map[*string]string{
		&c.Port:          rawConfig.Port,
		&c.SystemPrompt:  rawConfig.SystemPrompt,
		&c.LogLevel:      rawConfig.LogLevel,
		&c.AllowedOrigin: rawConfig.AllowedOrigin,
		&c.JournalPath:   rawConfig.JournalPath,
	} {
		if src != "" {
			*dst = src
		}
	}

	if rawConfig.LLM == nil {
		return nil
	}

	llmProvider, ok := rawConfig.LLM["provider"].(string)
	if !ok {
		return fmt.Errorf("llm provider is required")
	}

	llmRawYAML, err := yaml.Marshal(rawConfig.LLM)
	if err != nil {
		return err
	}

	var llm llmConfig
	switch llmProvider {
	case "openai":
		llm = &openAIConfig{}
	case "anthropic":
		llm = &anthropicConfig{}
	case "openrouter":
		llm = &openRouterConfig{}
	case "ollama":
		llm = &ollamaConfig{}
	default:
		return fmt.Errorf("unknown llm provider: %s", llmProvider)
	}

	if err := yaml.Unmarshal(llmRawYAML, llm); err != nil {
		return err
	}

	c.LLM = llm

	return nil
}

// loadConfig decodes defaults and then, if it exists, the file at path on top of them. Environment
// variables are applied last.
func loadConfig(defaults []byte, path string) (config, error) {
	cfg := config{}
	if err := yaml.Unmarshal(defaults, &cfg); err != nil {
		return config{}, fmt.Errorf("error decoding default config: %w", err)
	}

	f, err := os.Open(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return config{}, fmt.Errorf("error opening config file: %w", err)
	default:
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return config{}, fmt.Errorf("error decoding config file: %w", err)
		}
	}

	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}
	if cfg.LLM == nil {
		return config{}, fmt.Errorf("llm config is required")
	}

	return cfg, nil
}

func (c config) logLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// journalFile resolves the journal location, returning "" when the journal is disabled.
func (c config) journalFile(cfgDir string) string {
	switch strings.TrimSpace(c.JournalPath) {
	case journalDisabled:
		return ""
	case "":
		return filepath.Join(cfgDir, "journal.db")
	default:
		return c.JournalPath
	}
}

func envFallback(value, key string) string {
	if value != "" {
		return value
	}
	return os.Getenv(key)
}

func (o openAIConfig) llm(logger *slog.Logger) (handlers.LLM, error) {
	apiKey := envFallback(o.APIKey, "OPENAI_API_KEY")
	if apiKey == "" && o.BaseURL == "" {
		return nil, fmt.Errorf("apiKey is required")
	}
	return services.NewOpenAI(apiKey, o.BaseURL, o.Model, o.Parameters, logger), nil
}

func (a anthropicConfig) llm(logger *slog.Logger) (handlers.LLM, error) {
	if a.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if a.MaxTokens == 0 {
		return nil, fmt.Errorf("maxTokens is required")
	}

	opts := []services.AnthropicOption{services.WithAnthropicParameters(a.Parameters)}
	if a.BaseURL != "" {
		opts = append(opts, services.WithAnthropicBaseURL(a.BaseURL))
	}
	apiKey := envFallback(a.APIKey, "ANTHROPIC_API_KEY")
	return services.NewAnthropic(apiKey, a.Model, a.MaxTokens, logger, opts...), nil
}

func (o openRouterConfig) llm(logger *slog.Logger) (handlers.LLM, error) {
	if o.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	opts := []services.OpenRouterOption{services.WithOpenRouterParameters(o.Parameters)}
	if o.BaseURL != "" {
		opts = append(opts, services.WithOpenRouterBaseURL(o.BaseURL))
	}
	apiKey := envFallback(o.APIKey, "OPENROUTER_API_KEY")
	return services.NewOpenRouter(apiKey, o.Model, logger, opts...), nil
}

func (o ollamaConfig) llm(logger *slog.Logger) (handlers.LLM, error) {
	if o.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	return services.NewOllama(envFallback(o.Host, "OLLAMA_HOST"), o.Model, o.Parameters, logger)
}
