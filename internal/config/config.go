package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/meridianlabs-ai/deepresearch/internal/research"
)

// Config is the read-only settings object supplied at startup. Stage code
// receives the tunables it needs as parameters; nothing reaches back into
// this struct mid-run.
type Config struct {
	Service   ServiceConfig   `mapstructure:"service"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Research  ResearchConfig  `mapstructure:"research"`
	Tools     ToolsConfig     `mapstructure:"tools"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
	Streaming StreamingConfig `mapstructure:"streaming"`
	Auth      AuthConfig      `mapstructure:"auth"`
}

type ServiceConfig struct {
	HTTPPort    int    `mapstructure:"http_port"`
	MetricsPort int    `mapstructure:"metrics_port"`
	LogLevel    string `mapstructure:"log_level"`
}

type LLMConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	Model          string        `mapstructure:"model"`
	Temperature    float64       `mapstructure:"temperature"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	InterCallDelay time.Duration `mapstructure:"inter_call_delay"`
}

type ResearchConfig struct {
	MaxVerificationRetries int `mapstructure:"max_verification_retries"`
	ConfidenceThreshold    int `mapstructure:"confidence_threshold"`
	MaxSearchResults       int `mapstructure:"max_search_results"`
}

type ToolsConfig struct {
	CallTimeout     time.Duration `mapstructure:"call_timeout"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	BackoffBase     time.Duration `mapstructure:"backoff_base"`
	TavilyAPIKey    string        `mapstructure:"tavily_api_key"`
	TavilyBaseURL   string        `mapstructure:"tavily_base_url"`
	ArxivBaseURL    string        `mapstructure:"arxiv_base_url"`
	ArxivMaxResults int           `mapstructure:"arxiv_max_results"`
	WikiBaseURL     string        `mapstructure:"wiki_base_url"`
	WikiMaxResults  int           `mapstructure:"wiki_max_results"`
	PythonBin       string        `mapstructure:"python_bin"`
	CodeExecTimeout time.Duration `mapstructure:"code_exec_timeout"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	StateTTL time.Duration `mapstructure:"state_ttl"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	Enabled  bool   `mapstructure:"enabled"`
}

type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

type StreamingConfig struct {
	RingCapacity int `mapstructure:"ring_capacity"`
}

type AuthConfig struct {
	// Static bearer token for the consumer API; empty disables auth.
	APIToken string `mapstructure:"api_token"`
}

// Load reads configuration from the YAML file at path (optional) merged with
// DEEPRESEARCH_* environment variables, applies defaults, and validates
// required credentials.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("DEEPRESEARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Common credential env names used without the prefix.
	_ = v.BindEnv("llm.api_key", "DEEPRESEARCH_LLM_API_KEY", "LLM_API_KEY", "GROQ_API_KEY")
	_ = v.BindEnv("tools.tavily_api_key", "DEEPRESEARCH_TOOLS_TAVILY_API_KEY", "TAVILY_API_KEY")

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate fails fast on missing credentials so no stage ever runs with a
// half-configured client.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return research.NewConfigurationError("llm.api_key is required")
	}
	if c.Tools.TavilyAPIKey == "" {
		return research.NewConfigurationError("tools.tavily_api_key is required")
	}
	if c.Research.MaxVerificationRetries < 0 {
		return research.NewConfigurationError("research.max_verification_retries must be >= 0")
	}
	if c.Research.ConfidenceThreshold < 0 || c.Research.ConfidenceThreshold > 100 {
		return research.NewConfigurationError("research.confidence_threshold must be in [0,100]")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.http_port", 8081)
	v.SetDefault("service.metrics_port", 2112)
	v.SetDefault("service.log_level", "info")

	v.SetDefault("llm.base_url", "https://api.groq.com/openai/v1")
	v.SetDefault("llm.model", "llama-3.1-8b-instant")
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("llm.max_attempts", 3)
	v.SetDefault("llm.inter_call_delay", 500*time.Millisecond)

	v.SetDefault("research.max_verification_retries", 2)
	v.SetDefault("research.confidence_threshold", 70)
	v.SetDefault("research.max_search_results", 5)

	v.SetDefault("tools.call_timeout", 15*time.Second)
	v.SetDefault("tools.max_attempts", 3)
	v.SetDefault("tools.backoff_base", 500*time.Millisecond)
	v.SetDefault("tools.tavily_base_url", "https://api.tavily.com")
	v.SetDefault("tools.arxiv_base_url", "https://export.arxiv.org/api/query")
	v.SetDefault("tools.arxiv_max_results", 3)
	v.SetDefault("tools.wiki_base_url", "https://en.wikipedia.org/w/api.php")
	v.SetDefault("tools.wiki_max_results", 2)
	v.SetDefault("tools.python_bin", "python3")
	v.SetDefault("tools.code_exec_timeout", 5*time.Second)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.state_ttl", 24*time.Hour)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "deepresearch")
	v.SetDefault("database.database", "deepresearch")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.enabled", true)

	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "deepresearch-tasks")

	v.SetDefault("streaming.ring_capacity", 256)
}
