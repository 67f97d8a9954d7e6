package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const (
	DefaultModel           = "llama-3.3-70b-versatile"
	DefaultEmbeddingModel  = "text-embedding-3-small"
	DefaultMaxTokens       = 512
	DefaultMaxReplyChars   = 700
	DefaultMaxMessageChars = 4000
	DefaultGenerateTimeout = 20 // seconds
	DefaultEmbedTimeout    = 10 // seconds
	DefaultBufSize         = 100
	DefaultContextBudget   = 6000 // characters across all memory layers
	DefaultShortTermLimit  = 10
	DefaultLongTermLimit   = 3
	DefaultEpisodicLimit   = 3
	DefaultSummaryCron     = "0 0 23 * * *"
	DefaultMorningCheckin  = "0 0 9 * * *"
	DefaultEveningCheckin  = "0 0 19 * * *"
	DefaultSentimentDays   = 7
)

type Config struct {
	Agent     AgentConfig     `json:"agent"`
	Provider  ProviderConfig  `json:"provider"`
	Channels  ChannelsConfig  `json:"channels"`
	Memory    MemoryConfig    `json:"memory"`
	Scheduler SchedulerConfig `json:"scheduler"`
}

type AgentConfig struct {
	Model           string `json:"model"`
	MaxTokens       int    `json:"maxTokens"`
	MaxReplyChars   int    `json:"maxReplyChars"`
	MaxMessageChars int    `json:"maxMessageChars"`
	GenerateTimeout int    `json:"generateTimeoutSec"`
}

type ProviderConfig struct {
	APIKey         string `json:"apiKey"`
	BaseURL        string `json:"baseUrl,omitempty"`
	EmbeddingModel string `json:"embeddingModel,omitempty"`
}

type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
}

type TelegramConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token"`
	AllowFrom []string `json:"allowFrom"`
	Proxy     string   `json:"proxy,omitempty"`
}

type MemoryConfig struct {
	DBPath         string `json:"dbPath,omitempty"`
	ContextBudget  int    `json:"contextBudget"`
	ShortTermLimit int    `json:"shortTermLimit"`
	LongTermLimit  int    `json:"longTermLimit"`
	EpisodicLimit  int    `json:"episodicLimit"`
	EmbedTimeout   int    `json:"embedTimeoutSec,omitempty"`
}

type SchedulerConfig struct {
	SummaryCron    string `json:"summaryCron"`
	MorningCheckin string `json:"morningCheckin"`
	EveningCheckin string `json:"eveningCheckin"`
	CheckinsOn     bool   `json:"checkinsEnabled"`
}

func DefaultConfig() *Config {
	return &Config{
		Agent: AgentConfig{
			Model:           DefaultModel,
			MaxTokens:       DefaultMaxTokens,
			MaxReplyChars:   DefaultMaxReplyChars,
			MaxMessageChars: DefaultMaxMessageChars,
			GenerateTimeout: DefaultGenerateTimeout,
		},
		Provider: ProviderConfig{
			EmbeddingModel: DefaultEmbeddingModel,
		},
		Channels: ChannelsConfig{},
		Memory: MemoryConfig{
			ContextBudget:  DefaultContextBudget,
			ShortTermLimit: DefaultShortTermLimit,
			LongTermLimit:  DefaultLongTermLimit,
			EpisodicLimit:  DefaultEpisodicLimit,
			EmbedTimeout:   DefaultEmbedTimeout,
		},
		Scheduler: SchedulerConfig{
			SummaryCron:    DefaultSummaryCron,
			MorningCheckin: DefaultMorningCheckin,
			EveningCheckin: DefaultEveningCheckin,
			CheckinsOn:     true,
		},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".carely")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

func DataDir() string {
	return filepath.Join(ConfigDir(), "data")
}

func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if key := os.Getenv("CARELY_API_KEY"); key != "" {
		cfg.Provider.APIKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
	}
	if key := os.Getenv("GROQ_API_KEY"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
	}
	if url := os.Getenv("CARELY_BASE_URL"); url != "" {
		cfg.Provider.BaseURL = url
	}
	if model := os.Getenv("CARELY_MODEL"); model != "" {
		cfg.Agent.Model = model
	}
	if model := os.Getenv("CARELY_EMBEDDING_MODEL"); model != "" {
		cfg.Provider.EmbeddingModel = model
	}
	if token := os.Getenv("CARELY_TELEGRAM_TOKEN"); token != "" {
		cfg.Channels.Telegram.Token = token
	}
	if dbPath := os.Getenv("CARELY_DB_PATH"); dbPath != "" {
		cfg.Memory.DBPath = dbPath
	}
	if budget := os.Getenv("CARELY_CONTEXT_BUDGET"); budget != "" {
		if parsed, err := strconv.Atoi(budget); err == nil && parsed > 0 {
			cfg.Memory.ContextBudget = parsed
		}
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Agent.Model == "" {
		cfg.Agent.Model = DefaultModel
	}
	if cfg.Agent.MaxTokens <= 0 {
		cfg.Agent.MaxTokens = DefaultMaxTokens
	}
	if cfg.Agent.MaxReplyChars <= 0 {
		cfg.Agent.MaxReplyChars = DefaultMaxReplyChars
	}
	if cfg.Agent.MaxMessageChars <= 0 {
		cfg.Agent.MaxMessageChars = DefaultMaxMessageChars
	}
	if cfg.Agent.GenerateTimeout <= 0 {
		cfg.Agent.GenerateTimeout = DefaultGenerateTimeout
	}
	if cfg.Provider.EmbeddingModel == "" {
		cfg.Provider.EmbeddingModel = DefaultEmbeddingModel
	}
	if cfg.Memory.DBPath == "" {
		cfg.Memory.DBPath = filepath.Join(DataDir(), "carely.db")
	}
	if cfg.Memory.ContextBudget <= 0 {
		cfg.Memory.ContextBudget = DefaultContextBudget
	}
	if cfg.Memory.ShortTermLimit <= 0 {
		cfg.Memory.ShortTermLimit = DefaultShortTermLimit
	}
	if cfg.Memory.LongTermLimit <= 0 {
		cfg.Memory.LongTermLimit = DefaultLongTermLimit
	}
	if cfg.Memory.EpisodicLimit <= 0 {
		cfg.Memory.EpisodicLimit = DefaultEpisodicLimit
	}
	if cfg.Memory.EmbedTimeout <= 0 {
		cfg.Memory.EmbedTimeout = DefaultEmbedTimeout
	}
	if cfg.Scheduler.SummaryCron == "" {
		cfg.Scheduler.SummaryCron = DefaultSummaryCron
	}
	if cfg.Scheduler.MorningCheckin == "" {
		cfg.Scheduler.MorningCheckin = DefaultMorningCheckin
	}
	if cfg.Scheduler.EveningCheckin == "" {
		cfg.Scheduler.EveningCheckin = DefaultEveningCheckin
	}
}

func SaveConfig(cfg *Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(ConfigPath(), data, 0644)
}
