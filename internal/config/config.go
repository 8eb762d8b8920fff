// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Agent() AgentConfig
	Tournament() TournamentConfig

	// Tournament setters, driven by CLI flags rather than the config file.
	SetTournamentMaxIterations(int)
	SetTournamentPatience(int)
	SetTournamentMinImprovement(float64)
}

// Config holds the entire application configuration.
// It uses private fields to enforce access through the Interface's getter methods.
type Config struct {
	logger     LoggerConfig
	agent      AgentConfig
	tournament TournamentConfig
}

// fileConfig mirrors Config with exported fields so viper/mapstructure can
// decode into it. Config itself stays opaque behind the Interface getters.
type fileConfig struct {
	Logger     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	Agent      AgentConfig      `mapstructure:"agent" yaml:"agent"`
	Tournament TournamentConfig `mapstructure:"tournament" yaml:"tournament"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig         { return c.logger }
func (c *Config) Agent() AgentConfig           { return c.agent }
func (c *Config) Tournament() TournamentConfig { return c.tournament }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetTournamentMaxIterations(n int)      { c.tournament.MaxIterations = n }
func (c *Config) SetTournamentPatience(n int)           { c.tournament.Patience = n }
func (c *Config) SetTournamentMinImprovement(f float64) { c.tournament.MinImprovement = f }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// AgentConfig groups the settings of the external LLM collaborator.
type AgentConfig struct {
	LLM LLMRouterConfig `mapstructure:"llm" yaml:"llm"`
}

// LLMProvider defines the supported LLM providers.
type LLMProvider string

const (
	ProviderGemini LLMProvider = "gemini"
)

// LLMRouterConfig configures the model routing logic.
type LLMRouterConfig struct {
	DefaultFastModel     string                    `mapstructure:"default_fast_model" yaml:"default_fast_model"`
	DefaultPowerfulModel string                    `mapstructure:"default_powerful_model" yaml:"default_powerful_model"`
	RequestsPerMinute    float64                   `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	Models               map[string]LLMModelConfig `mapstructure:"models" yaml:"models"`
}

// LLMModelConfig defines the configuration for a single LLM.
type LLMModelConfig struct {
	Provider    LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"-"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float64       `mapstructure:"temperature" yaml:"temperature"`
	TopP        float64       `mapstructure:"top_p" yaml:"top_p"`
	TopK        int           `mapstructure:"top_k" yaml:"top_k"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// GitConfig holds the identity used when committing applied improvements.
type GitConfig struct {
	CommitApplied bool   `mapstructure:"commit_applied" yaml:"commit_applied"`
	AuthorName    string `mapstructure:"author_name" yaml:"author_name"`
	AuthorEmail   string `mapstructure:"author_email" yaml:"author_email"`
}

// TournamentConfig tunes the competitive improvement loop.
type TournamentConfig struct {
	MaxIterations    int           `mapstructure:"max_iterations" yaml:"max_iterations"`
	Patience         int           `mapstructure:"patience" yaml:"patience"`
	MinImprovement   float64       `mapstructure:"min_improvement" yaml:"min_improvement"`
	BuildTimeout     time.Duration `mapstructure:"build_timeout" yaml:"build_timeout"`
	TestTimeout      time.Duration `mapstructure:"test_timeout" yaml:"test_timeout"`
	LLMTimeout       time.Duration `mapstructure:"llm_timeout" yaml:"llm_timeout"`
	MaxOutputBytes   int           `mapstructure:"max_output_bytes" yaml:"max_output_bytes"`
	ContextFileLimit int           `mapstructure:"context_file_limit" yaml:"context_file_limit"`
	Git              GitConfig     `mapstructure:"git" yaml:"git"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var fc fileConfig
	if err := v.Unmarshal(&fc); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &Config{logger: fc.Logger, agent: fc.Agent, tournament: fc.Tournament}
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "crucible")
	v.SetDefault("logger.log_file", "crucible.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Agent --
	v.SetDefault("agent.llm.default_fast_model", "gemini-2.5-flash")
	v.SetDefault("agent.llm.default_powerful_model", "gemini-2.5-pro")
	v.SetDefault("agent.llm.requests_per_minute", 30.0)

	// -- Tournament --
	v.SetDefault("tournament.max_iterations", 10)
	v.SetDefault("tournament.patience", 3)
	v.SetDefault("tournament.min_improvement", 0.01)
	v.SetDefault("tournament.build_timeout", "60s")
	v.SetDefault("tournament.test_timeout", "5m")
	v.SetDefault("tournament.llm_timeout", "3m")
	v.SetDefault("tournament.max_output_bytes", 65536)
	v.SetDefault("tournament.context_file_limit", 12)
	v.SetDefault("tournament.git.commit_applied", false)
	v.SetDefault("tournament.git.author_name", "crucible-bot")
	v.SetDefault("tournament.git.author_email", "bot@crucible.local")
}

// Load reads configuration from the optional file path, environment variables
// (prefix CRUCIBLE) and defaults, in ascending priority of env over file over
// defaults, and unmarshals it into a Config.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("CRUCIBLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults and env vars.
	}

	var fc fileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &Config{logger: fc.Logger, agent: fc.Agent, tournament: fc.Tournament}, nil
}
