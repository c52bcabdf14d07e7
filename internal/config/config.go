// ABOUTME: Configuration loading and parsing for alexa-bridge
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config represents the complete alexa-bridge configuration
type Config struct {
	Server       ServerConfig       `yaml:"server" toml:"server"`
	Tailscale    TailscaleConfig    `yaml:"tailscale" toml:"tailscale"`
	Logging      LoggingConfig      `yaml:"logging" toml:"logging"`
	Metrics      MetricsConfig      `yaml:"metrics" toml:"metrics"`
	Alexa        AlexaConfig        `yaml:"alexa" toml:"alexa"`
	BotFramework BotFrameworkConfig `yaml:"botframework" toml:"botframework"`
	Matrix       MatrixConfig       `yaml:"matrix" toml:"matrix"`
	State        StateConfig        `yaml:"state" toml:"state"`
	Knowledge    KnowledgeConfig    `yaml:"knowledge" toml:"knowledge"`
	Monitor      MonitorConfig      `yaml:"monitor" toml:"monitor"`
	ObjectLog    ObjectLogConfig    `yaml:"object_log" toml:"object_log"`
	Bot          BotConfig          `yaml:"bot" toml:"bot"`
	RateLimit    RateLimitConfig    `yaml:"rate_limit" toml:"rate_limit"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
	HTTPS     bool   `yaml:"https" toml:"https"`
	Funnel    bool   `yaml:"funnel" toml:"funnel"` // Alexa needs a public HTTPS endpoint
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// AlexaConfig holds the Alexa skill endpoint configuration
type AlexaConfig struct {
	// SkillID is the expected application id. Empty accepts any skill.
	SkillID         string `yaml:"skill_id" toml:"skill_id"`
	UtteranceIntent string `yaml:"utterance_intent" toml:"utterance_intent"`
	UtteranceSlot   string `yaml:"utterance_slot" toml:"utterance_slot"`
	VerifyTimestamp bool   `yaml:"verify_timestamp" toml:"verify_timestamp"`

	TimestampTolerance time.Duration `yaml:"-" toml:"-"`
	ReplayTTL          time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	TimestampToleranceRaw string `yaml:"timestamp_tolerance" toml:"timestamp_tolerance"`
	ReplayTTLRaw          string `yaml:"replay_ttl" toml:"replay_ttl"`
}

// BotFrameworkConfig holds Bot Framework channel credentials.
// An empty AppID disables inbound auth and outbound tokens (emulator mode).
type BotFrameworkConfig struct {
	AppID             string `yaml:"app_id" toml:"app_id"`
	AppPassword       string `yaml:"app_password" toml:"app_password"`
	OpenIDMetadataURL string `yaml:"openid_metadata_url" toml:"openid_metadata_url"`
	TokenURL          string `yaml:"token_url" toml:"token_url"`
	Scope             string `yaml:"scope" toml:"scope"`
}

// MatrixConfig holds the optional Matrix monitor channel configuration
type MatrixConfig struct {
	Enabled      bool     `yaml:"enabled" toml:"enabled"`
	Homeserver   string   `yaml:"homeserver" toml:"homeserver"`
	UserID       string   `yaml:"user_id" toml:"user_id"`
	AccessToken  string   `yaml:"access_token" toml:"access_token"`
	AllowedRooms []string `yaml:"allowed_rooms" toml:"allowed_rooms"`
}

// StateConfig selects the conversation state backend
type StateConfig struct {
	Backend string `yaml:"backend" toml:"backend"` // memory, sqlite, badger
	Path    string `yaml:"path" toml:"path"`
}

// KnowledgeConfig selects and configures the knowledge-base lookup
type KnowledgeConfig struct {
	Backend         string  `yaml:"backend" toml:"backend"` // none, qnamaker, local
	Host            string  `yaml:"host" toml:"host"`
	KnowledgeBaseID string  `yaml:"knowledge_base_id" toml:"knowledge_base_id"`
	EndpointKey     string  `yaml:"endpoint_key" toml:"endpoint_key"`
	File            string  `yaml:"file" toml:"file"`
	Embedder        string  `yaml:"embedder" toml:"embedder"` // hashing, gemini
	GeminiAPIKey    string  `yaml:"gemini_api_key" toml:"gemini_api_key"`
	GeminiModel     string  `yaml:"gemini_model" toml:"gemini_model"`
	ScoreThreshold  float64 `yaml:"score_threshold" toml:"score_threshold"`
	Top             int     `yaml:"top" toml:"top"`

	Timeout    time.Duration `yaml:"-" toml:"-"`
	TimeoutRaw string        `yaml:"timeout" toml:"timeout"`
}

// MonitorConfig holds monitor relay configuration
type MonitorConfig struct {
	ActivationPhrase string `yaml:"activation_phrase" toml:"activation_phrase"`

	SendTimeout    time.Duration `yaml:"-" toml:"-"`
	SendTimeoutRaw string        `yaml:"send_timeout" toml:"send_timeout"`
}

// ObjectLogConfig holds the diagnostic payload dump configuration
type ObjectLogConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Dir       string `yaml:"dir" toml:"dir"`
	PruneCron string `yaml:"prune_cron" toml:"prune_cron"`

	Retention    time.Duration `yaml:"-" toml:"-"`
	RetentionRaw string        `yaml:"retention" toml:"retention"`
}

// BotConfig holds conversational behavior settings
type BotConfig struct {
	RepeatTurns   int    `yaml:"repeat_turns" toml:"repeat_turns"`
	DefaultLocale string `yaml:"default_locale" toml:"default_locale"`
}

// RateLimitConfig holds per-client request limits for the channel endpoints
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" toml:"enabled"`
	RPS     float64 `yaml:"rps" toml:"rps"`
	Burst   int     `yaml:"burst" toml:"burst"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	cfg, err := parse(expanded, strings.EqualFold(filepath.Ext(path), ".toml"))
	if err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func parse(data string, isTOML bool) (*Config, error) {
	var cfg Config
	if isTOML {
		if _, err := toml.Decode(data, &cfg); err != nil {
			return nil, err
		}
		return &cfg, nil
	}
	if err := yaml.Unmarshal([]byte(data), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// ApplyDefaults fills unset fields with their documented defaults.
func (c *Config) ApplyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}

	if c.Alexa.UtteranceIntent == "" {
		c.Alexa.UtteranceIntent = "GetUserIntent"
	}
	if c.Alexa.UtteranceSlot == "" {
		c.Alexa.UtteranceSlot = "phrase"
	}
	if c.Alexa.TimestampTolerance == 0 {
		c.Alexa.TimestampTolerance = 150 * time.Second
	}
	if c.Alexa.ReplayTTL == 0 {
		c.Alexa.ReplayTTL = 5 * time.Minute
	}

	if c.BotFramework.OpenIDMetadataURL == "" {
		c.BotFramework.OpenIDMetadataURL = "https://login.botframework.com/v1/.well-known/openidconfiguration"
	}
	if c.BotFramework.TokenURL == "" {
		c.BotFramework.TokenURL = "https://login.microsoftonline.com/botframework.com/oauth2/v2.0/token"
	}
	if c.BotFramework.Scope == "" {
		c.BotFramework.Scope = "https://api.botframework.com/.default"
	}

	if c.State.Backend == "" {
		c.State.Backend = "memory"
	}

	if c.Knowledge.Backend == "" {
		c.Knowledge.Backend = "none"
	}
	if c.Knowledge.Embedder == "" {
		c.Knowledge.Embedder = "hashing"
	}
	if c.Knowledge.GeminiModel == "" {
		c.Knowledge.GeminiModel = "text-embedding-004"
	}
	if c.Knowledge.ScoreThreshold == 0 {
		c.Knowledge.ScoreThreshold = 0.3
	}
	if c.Knowledge.Top == 0 {
		c.Knowledge.Top = 1
	}
	if c.Knowledge.Timeout == 0 {
		c.Knowledge.Timeout = 10 * time.Second
	}

	if c.Monitor.ActivationPhrase == "" {
		c.Monitor.ActivationPhrase = "monitor alexa"
	}
	if c.Monitor.SendTimeout == 0 {
		c.Monitor.SendTimeout = 10 * time.Second
	}

	if c.ObjectLog.Dir == "" {
		c.ObjectLog.Dir = "object-logs"
	}
	if c.ObjectLog.PruneCron == "" {
		c.ObjectLog.PruneCron = "0 3 * * *"
	}
	if c.ObjectLog.Retention == 0 {
		c.ObjectLog.Retention = 15 * 24 * time.Hour
	}

	if c.Bot.RepeatTurns == 0 {
		c.Bot.RepeatTurns = 4
	}
	if c.Bot.DefaultLocale == "" {
		c.Bot.DefaultLocale = "es"
	}

	if c.RateLimit.RPS == 0 {
		c.RateLimit.RPS = 5
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 10
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	switch c.State.Backend {
	case "memory":
	case "sqlite", "badger":
		if c.State.Path == "" {
			return fmt.Errorf("state.path is required for the %s backend", c.State.Backend)
		}
	default:
		return fmt.Errorf("state.backend must be memory, sqlite or badger, got %q", c.State.Backend)
	}

	switch c.Knowledge.Backend {
	case "none":
	case "qnamaker":
		if c.Knowledge.Host == "" || c.Knowledge.KnowledgeBaseID == "" || c.Knowledge.EndpointKey == "" {
			return fmt.Errorf("knowledge.host, knowledge.knowledge_base_id and knowledge.endpoint_key are required for qnamaker")
		}
		if _, err := url.Parse(c.Knowledge.Host); err != nil {
			return fmt.Errorf("knowledge.host is not a valid URL: %w", err)
		}
	case "local":
		if c.Knowledge.File == "" {
			return fmt.Errorf("knowledge.file is required for the local backend")
		}
		if c.Knowledge.Embedder != "hashing" && c.Knowledge.Embedder != "gemini" {
			return fmt.Errorf("knowledge.embedder must be hashing or gemini, got %q", c.Knowledge.Embedder)
		}
		if c.Knowledge.Embedder == "gemini" && c.Knowledge.GeminiAPIKey == "" {
			return fmt.Errorf("knowledge.gemini_api_key is required for the gemini embedder")
		}
	default:
		return fmt.Errorf("knowledge.backend must be none, qnamaker or local, got %q", c.Knowledge.Backend)
	}

	if c.Matrix.Enabled {
		if c.Matrix.Homeserver == "" {
			return fmt.Errorf("matrix.homeserver is required when matrix is enabled")
		}
		if _, err := url.Parse(c.Matrix.Homeserver); err != nil {
			return fmt.Errorf("matrix.homeserver is not a valid URL: %w", err)
		}
		if c.Matrix.UserID == "" || c.Matrix.AccessToken == "" {
			return fmt.Errorf("matrix.user_id and matrix.access_token are required when matrix is enabled")
		}
	}

	if c.BotFramework.AppID != "" && c.BotFramework.AppPassword == "" {
		return fmt.Errorf("botframework.app_password is required when app_id is set")
	}

	if c.Bot.RepeatTurns < 1 {
		return fmt.Errorf("bot.repeat_turns must be at least 1")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"alexa.timestamp_tolerance", cfg.Alexa.TimestampToleranceRaw, &cfg.Alexa.TimestampTolerance},
		{"alexa.replay_ttl", cfg.Alexa.ReplayTTLRaw, &cfg.Alexa.ReplayTTL},
		{"knowledge.timeout", cfg.Knowledge.TimeoutRaw, &cfg.Knowledge.Timeout},
		{"monitor.send_timeout", cfg.Monitor.SendTimeoutRaw, &cfg.Monitor.SendTimeout},
		{"object_log.retention", cfg.ObjectLog.RetentionRaw, &cfg.ObjectLog.Retention},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
