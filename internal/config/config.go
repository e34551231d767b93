package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the sales support agent.
type Config struct {
	Port       int              `yaml:"port"`
	Version    string           `yaml:"version"`
	Log        LogConfig        `yaml:"log"`
	LLM        LLMConfig        `yaml:"llm"`
	M365       M365Config       `yaml:"m365"`
	Bot        BotConfig        `yaml:"bot"`
	Tools      ToolsConfig      `yaml:"tools"`
	Storage    StorageConfig    `yaml:"storage"`
	Transcript TranscriptConfig `yaml:"transcript"`
	Notify     NotifyConfig     `yaml:"notify"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Auth       AuthConfig       `yaml:"auth"`
	Locale     LocaleConfig     `yaml:"localization"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console" or "json"
}

// Supported LLM providers.
const (
	ProviderLMStudio     = "lmstudio"
	ProviderOllama       = "ollama"
	ProviderAzureOpenAI  = "azureopenai"
	ProviderOpenAI       = "openai"
	ProviderGitHubModels = "githubmodels"
)

type LLMConfig struct {
	Provider     string           `yaml:"provider"`
	Timeout      time.Duration    `yaml:"timeout"`
	MaxTurns     int              `yaml:"max_turns"`
	LMStudio     ProviderSettings `yaml:"lmstudio"`
	Ollama       ProviderSettings `yaml:"ollama"`
	AzureOpenAI  ProviderSettings `yaml:"azure_openai"`
	OpenAI       ProviderSettings `yaml:"openai"`
	GitHubModels ProviderSettings `yaml:"github_models"`
}

// ProviderSettings configures one OpenAI-compatible endpoint. For Azure
// OpenAI, Model is the deployment name.
type ProviderSettings struct {
	Endpoint   string `yaml:"endpoint"`
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
	APIVersion string `yaml:"api_version"`
}

type M365Config struct {
	TenantID           string `yaml:"tenant_id"`
	ClientID           string `yaml:"client_id"`
	ClientSecret       string `yaml:"client_secret"`
	UserID             string `yaml:"user_id"`
	UseManagedIdentity bool   `yaml:"use_managed_identity"`
}

// Configured reports whether Microsoft 365 credentials are present.
func (c M365Config) Configured() bool {
	return c.UseManagedIdentity ||
		(c.TenantID != "" && c.ClientID != "" && c.ClientSecret != "")
}

type BotConfig struct {
	AppID       string `yaml:"app_id"`
	AppPassword string `yaml:"app_password"`
	TenantID    string `yaml:"tenant_id"`
}

// Configured reports whether Bot Framework credentials are present.
func (c BotConfig) Configured() bool {
	return c.AppID != "" && c.AppPassword != ""
}

// ToolsConfig points the data-retrieval tools at an MCP tool server.
// Per-tool endpoints override ServerURL.
type ToolsConfig struct {
	ServerURL  string        `yaml:"server_url"`
	Mail       string        `yaml:"mail"`
	Calendar   string        `yaml:"calendar"`
	SharePoint string        `yaml:"sharepoint"`
	Teams      string        `yaml:"teams"`
	APIKey     string        `yaml:"api_key"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// Supported durable store drivers.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
)

type StorageConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type TranscriptConfig struct {
	CacheSize    int             `yaml:"cache_size"`
	SummaryLimit int             `yaml:"summary_limit"`
	Retention    RetentionConfig `yaml:"retention"`
}

// RetentionConfig controls the transcript janitor. A zero MaxAge keeps
// transcripts forever.
type RetentionConfig struct {
	MaxAge     time.Duration `yaml:"max_age"`
	Interval   time.Duration `yaml:"interval"`
	ArchiveDir string        `yaml:"archive_dir"`
	Compress   bool          `yaml:"compress"`
}

type NotifyConfig struct {
	WebhookURL    string   `yaml:"webhook_url"`
	WebhookSecret string   `yaml:"webhook_secret"`
	WebhookTopics []string `yaml:"webhook_topics"`
	QueueSize     int      `yaml:"queue_size"`
}

type TelemetryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
}

// LocaleConfig selects the language of user-facing replies ("ja" or "en").
type LocaleConfig struct {
	DefaultLanguage string `yaml:"default_language"`
}

type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		Port:    8080,
		Version: "1.0.0",
		Log:     LogConfig{Level: "info", Format: "console"},
		Locale:  LocaleConfig{DefaultLanguage: "ja"},
		LLM: LLMConfig{
			Provider: ProviderLMStudio,
			Timeout:  2 * time.Minute,
			MaxTurns: 10,
			LMStudio: ProviderSettings{
				Endpoint: "http://localhost:1234/v1",
				APIKey:   "not-needed",
				Model:    "local-model",
			},
			Ollama: ProviderSettings{
				Endpoint: "http://localhost:11434",
				Model:    "qwen2.5:latest",
			},
			AzureOpenAI: ProviderSettings{
				APIVersion: "2024-06-01",
			},
			OpenAI: ProviderSettings{
				Model: "gpt-4o",
			},
			GitHubModels: ProviderSettings{
				Endpoint: "https://models.github.ai/inference",
				Model:    "openai/gpt-4o",
			},
		},
		Tools: ToolsConfig{
			Timeout:    30 * time.Second,
			MaxRetries: 2,
		},
		Storage: StorageConfig{Driver: StorageMemory},
		Transcript: TranscriptConfig{
			CacheSize:    100,
			SummaryLimit: 100,
			Retention:    RetentionConfig{Interval: time.Hour},
		},
		Notify: NotifyConfig{QueueSize: 256},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			OTLPEndpoint: "localhost:4317",
			ServiceName:  "salesagent",
		},
	}
}

// Load reads configuration from an optional YAML file named by
// SALESAGENT_CONFIG and then applies environment variables on top.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv("SALESAGENT_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = envInt("SALESAGENT_PORT", c.Port)
	c.Version = envStr("SALESAGENT_VERSION", c.Version)
	c.Log.Level = envStr("SALESAGENT_LOG_LEVEL", c.Log.Level)
	c.Log.Format = envStr("SALESAGENT_LOG_FORMAT", c.Log.Format)

	c.LLM.Provider = strings.ToLower(envStr("LLM_PROVIDER", c.LLM.Provider))
	c.LLM.Timeout = envDuration("LLM_TIMEOUT", c.LLM.Timeout)
	c.LLM.MaxTurns = envInt("LLM_MAX_TURNS", c.LLM.MaxTurns)
	c.LLM.LMStudio.Endpoint = envStr("LMSTUDIO_ENDPOINT", c.LLM.LMStudio.Endpoint)
	c.LLM.LMStudio.Model = envStr("LMSTUDIO_MODEL", c.LLM.LMStudio.Model)
	c.LLM.Ollama.Endpoint = envStr("OLLAMA_ENDPOINT", c.LLM.Ollama.Endpoint)
	c.LLM.Ollama.Model = envStr("OLLAMA_MODEL", c.LLM.Ollama.Model)
	c.LLM.AzureOpenAI.Endpoint = envStr("AZURE_OPENAI_ENDPOINT", c.LLM.AzureOpenAI.Endpoint)
	c.LLM.AzureOpenAI.APIKey = envStr("AZURE_OPENAI_API_KEY", c.LLM.AzureOpenAI.APIKey)
	c.LLM.AzureOpenAI.Model = envStr("AZURE_OPENAI_DEPLOYMENT", c.LLM.AzureOpenAI.Model)
	c.LLM.AzureOpenAI.APIVersion = envStr("AZURE_OPENAI_API_VERSION", c.LLM.AzureOpenAI.APIVersion)
	c.LLM.OpenAI.APIKey = envStr("OPENAI_API_KEY", c.LLM.OpenAI.APIKey)
	c.LLM.OpenAI.Model = envStr("OPENAI_MODEL", c.LLM.OpenAI.Model)
	c.LLM.OpenAI.Endpoint = envStr("OPENAI_BASE_URL", c.LLM.OpenAI.Endpoint)
	c.LLM.GitHubModels.APIKey = envStr("GITHUB_TOKEN", c.LLM.GitHubModels.APIKey)
	c.LLM.GitHubModels.Model = envStr("GITHUB_MODELS_MODEL", c.LLM.GitHubModels.Model)
	c.LLM.GitHubModels.Endpoint = envStr("GITHUB_MODELS_ENDPOINT", c.LLM.GitHubModels.Endpoint)

	c.M365.TenantID = envStr("M365_TENANT_ID", c.M365.TenantID)
	c.M365.ClientID = envStr("M365_CLIENT_ID", c.M365.ClientID)
	c.M365.ClientSecret = envStr("M365_CLIENT_SECRET", c.M365.ClientSecret)
	c.M365.UserID = envStr("M365_USER_ID", c.M365.UserID)
	c.M365.UseManagedIdentity = envBool("M365_USE_MANAGED_IDENTITY", c.M365.UseManagedIdentity)

	c.Bot.AppID = envStr("BOT_APP_ID", c.Bot.AppID)
	c.Bot.AppPassword = envStr("BOT_APP_PASSWORD", c.Bot.AppPassword)
	c.Bot.TenantID = envStr("BOT_TENANT_ID", c.Bot.TenantID)

	c.Tools.ServerURL = envStr("MCP_SERVER_URL", c.Tools.ServerURL)
	c.Tools.Mail = envStr("MCP_MAIL_ENDPOINT", c.Tools.Mail)
	c.Tools.Calendar = envStr("MCP_CALENDAR_ENDPOINT", c.Tools.Calendar)
	c.Tools.SharePoint = envStr("MCP_SHAREPOINT_ENDPOINT", c.Tools.SharePoint)
	c.Tools.Teams = envStr("MCP_TEAMS_ENDPOINT", c.Tools.Teams)
	c.Tools.APIKey = envStr("MCP_API_KEY", c.Tools.APIKey)
	c.Tools.Timeout = envDuration("MCP_TIMEOUT", c.Tools.Timeout)
	c.Tools.MaxRetries = envInt("MCP_MAX_RETRIES", c.Tools.MaxRetries)

	c.Storage.Driver = strings.ToLower(envStr("STORAGE_DRIVER", c.Storage.Driver))
	c.Storage.DSN = envStr("STORAGE_DSN", c.Storage.DSN)

	c.Transcript.CacheSize = envInt("TRANSCRIPT_CACHE_SIZE", c.Transcript.CacheSize)
	c.Transcript.SummaryLimit = envInt("TRANSCRIPT_SUMMARY_LIMIT", c.Transcript.SummaryLimit)
	c.Transcript.Retention.MaxAge = envDuration("TRANSCRIPT_RETENTION", c.Transcript.Retention.MaxAge)
	c.Transcript.Retention.Interval = envDuration("TRANSCRIPT_RETENTION_INTERVAL", c.Transcript.Retention.Interval)
	c.Transcript.Retention.ArchiveDir = envStr("TRANSCRIPT_ARCHIVE_DIR", c.Transcript.Retention.ArchiveDir)
	c.Transcript.Retention.Compress = envBool("TRANSCRIPT_ARCHIVE_COMPRESS", c.Transcript.Retention.Compress)

	c.Notify.WebhookURL = envStr("NOTIFY_WEBHOOK_URL", c.Notify.WebhookURL)
	c.Notify.WebhookSecret = envStr("NOTIFY_WEBHOOK_SECRET", c.Notify.WebhookSecret)
	c.Notify.WebhookTopics = envList("NOTIFY_WEBHOOK_TOPICS", c.Notify.WebhookTopics)
	c.Notify.QueueSize = envInt("NOTIFY_QUEUE_SIZE", c.Notify.QueueSize)

	c.Telemetry.Enabled = envBool("OTEL_ENABLED", c.Telemetry.Enabled)
	c.Telemetry.OTLPEndpoint = envStr("OTEL_EXPORTER_OTLP_ENDPOINT", c.Telemetry.OTLPEndpoint)
	c.Telemetry.ServiceName = envStr("OTEL_SERVICE_NAME", c.Telemetry.ServiceName)

	c.Auth.APIKeys = envList("SALESAGENT_API_KEYS", c.Auth.APIKeys)

	c.Locale.DefaultLanguage = strings.ToLower(strings.TrimSpace(
		envStr("LOCALIZATION_DEFAULT_LANGUAGE", c.Locale.DefaultLanguage)))
}

// Validate rejects configuration the server cannot start with.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case ProviderLMStudio, ProviderOllama, ProviderAzureOpenAI, ProviderOpenAI, ProviderGitHubModels:
	default:
		return fmt.Errorf("unsupported LLM provider %q", c.LLM.Provider)
	}

	switch c.Storage.Driver {
	case StorageMemory:
	case StorageSQLite, StorageRedis, StoragePostgres:
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage driver %q requires a DSN", c.Storage.Driver)
		}
	default:
		return fmt.Errorf("unsupported storage driver %q", c.Storage.Driver)
	}

	if c.Transcript.CacheSize <= 0 {
		return fmt.Errorf("transcript cache size must be positive, got %d", c.Transcript.CacheSize)
	}
	switch c.Locale.DefaultLanguage {
	case "ja", "en":
	default:
		return fmt.Errorf("unsupported default language %q", c.Locale.DefaultLanguage)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
