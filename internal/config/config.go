package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is read when no config file is given explicitly.
const DefaultPath = "config.yaml"

type Config struct {
	Warehouse WarehouseConfig `yaml:"warehouse"`
	Looker    LookerConfig    `yaml:"looker"`
	Cache     CacheConfig     `yaml:"cache"`
	Reasoning ReasoningConfig `yaml:"reasoning"`
	Slack     SlackConfig     `yaml:"slack"`
	Jira      JiraConfig      `yaml:"jira"`
	Email     EmailConfig     `yaml:"email"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	LogLevel  string          `yaml:"log_level"`
	LogFormat string          `yaml:"log_format"`
}

type WarehouseConfig struct {
	ConnString string `yaml:"conn_string"`
}

type LookerConfig struct {
	BaseURL      string            `yaml:"base_url"`
	ClientID     string            `yaml:"client_id"`
	ClientSecret string            `yaml:"client_secret"`
	Timeout      time.Duration     `yaml:"timeout"`
	KPILooks     map[string]string `yaml:"kpi_looks"`
}

// CacheConfig configures the Redis KPI snapshot cache. An empty Addr disables it.
type CacheConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type ReasoningConfig struct {
	Provider    string        `yaml:"provider"`
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
	JSONMode    bool          `yaml:"json_mode"`
}

type SlackConfig struct {
	Token      string `yaml:"token"`
	ChannelID  string `yaml:"channel_id"`
	CRMBaseURL string `yaml:"crm_base_url"`
}

type JiraConfig struct {
	URL           string `yaml:"url"`
	Username      string `yaml:"username"`
	APIToken      string `yaml:"api_token"`
	ProjectKey    string `yaml:"project_key"`
	CustomerField string `yaml:"customer_field"`
}

type EmailConfig struct {
	SendGridAPIKey string `yaml:"sendgrid_api_key"`
	FromAddress    string `yaml:"from_address"`
	FromName       string `yaml:"from_name"`
}

// KafkaConfig configures outcome fan-out. No brokers means no producer.
type KafkaConfig struct {
	Brokers       []string `yaml:"brokers"`
	OutcomesTopic string   `yaml:"outcomes_topic"`
	CyclesTopic   string   `yaml:"cycles_topic"`
}

type PipelineConfig struct {
	Interval         time.Duration `yaml:"interval"`
	WindowDays       int           `yaml:"window_days"`
	AnomalyThreshold float64       `yaml:"anomaly_threshold"`
	MonitoredMetrics []string      `yaml:"monitored_metrics"`
	JournalPath      string        `yaml:"journal_path"`
	ListenAddr       string        `yaml:"listen_addr"`
}

// Default returns the configuration used before the YAML file and the
// environment are applied.
func Default() *Config {
	return &Config{
		Warehouse: WarehouseConfig{
			ConnString: "postgres://localhost:5432/churn?sslmode=disable",
		},
		Looker: LookerConfig{
			Timeout: 30 * time.Second,
			KPILooks: map[string]string{
				"monthly_churn_rate":      "",
				"customer_lifetime_value": "",
				"revenue_churn":           "",
				"active_customers":        "",
				"support_tickets":         "",
			},
		},
		Cache: CacheConfig{
			TTL: 15 * time.Minute,
		},
		Reasoning: ReasoningConfig{
			Provider:    "openai",
			BaseURL:     "https://api.openai.com/v1",
			Model:       "gpt-4",
			Temperature: 0.1,
			Timeout:     2 * time.Minute,
		},
		Jira: JiraConfig{
			ProjectKey: "CUST",
		},
		Email: EmailConfig{
			FromAddress: "noreply@example.com",
			FromName:    "Customer Success Team",
		},
		Kafka: KafkaConfig{
			OutcomesTopic: "churn-action-outcomes",
			CyclesTopic:   "churn-cycles",
		},
		Pipeline: PipelineConfig{
			Interval:         60 * time.Minute,
			WindowDays:       30,
			AnomalyThreshold: 2.0,
			MonitoredMetrics: []string{
				"login_frequency_30d",
				"purchase_frequency_30d",
				"support_tickets_30d",
				"monthly_revenue",
			},
			JournalPath: "churn-journal.db",
		},
		LogLevel:  "info",
		LogFormat: "json",
	}
}

// Load builds the configuration from defaults, the YAML file at path (if it
// exists) and environment overrides. An empty path means DefaultPath.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Warehouse.ConnString, "WAREHOUSE_CONN_STRING")

	setString(&c.Looker.BaseURL, "LOOKER_BASE_URL")
	setString(&c.Looker.ClientID, "LOOKER_CLIENT_ID")
	setString(&c.Looker.ClientSecret, "LOOKER_CLIENT_SECRET")

	setString(&c.Cache.Addr, "REDIS_ADDR")

	setString(&c.Reasoning.Provider, "REASONING_PROVIDER")
	setString(&c.Reasoning.Model, "REASONING_MODEL")
	switch c.Reasoning.Provider {
	case "gemini":
		setString(&c.Reasoning.APIKey, "GEMINI_API_KEY")
	default:
		setString(&c.Reasoning.APIKey, "OPENAI_API_KEY")
	}

	setString(&c.Slack.Token, "SLACK_BOT_TOKEN")
	setString(&c.Slack.ChannelID, "SLACK_CHANNEL_ID")

	setString(&c.Jira.URL, "JIRA_URL")
	setString(&c.Jira.Username, "JIRA_USERNAME")
	setString(&c.Jira.APIToken, "JIRA_API_TOKEN")
	setString(&c.Jira.ProjectKey, "JIRA_PROJECT_KEY")

	setString(&c.Email.SendGridAPIKey, "SENDGRID_API_KEY")
	setString(&c.Email.FromAddress, "SENDGRID_FROM_EMAIL")

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}

	setString(&c.Pipeline.JournalPath, "JOURNAL_PATH")
	setString(&c.LogLevel, "LOG_LEVEL")
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Pipeline.Interval <= 0 {
		return fmt.Errorf("pipeline.interval must be positive")
	}
	if c.Pipeline.WindowDays <= 0 {
		return fmt.Errorf("pipeline.window_days must be positive")
	}
	if c.Pipeline.AnomalyThreshold <= 0 {
		return fmt.Errorf("pipeline.anomaly_threshold must be positive")
	}
	if len(c.Pipeline.MonitoredMetrics) == 0 {
		return fmt.Errorf("pipeline.monitored_metrics must not be empty")
	}
	switch c.Reasoning.Provider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("reasoning.provider %q is not supported", c.Reasoning.Provider)
	}
	if c.Reasoning.Temperature < 0 || c.Reasoning.Temperature > 2 {
		return fmt.Errorf("reasoning.temperature must be within [0,2]")
	}
	return nil
}

// SlackEnabled reports whether Slack alerts can be sent.
func (c *Config) SlackEnabled() bool {
	return c.Slack.Token != "" && c.Slack.ChannelID != ""
}

// JiraEnabled reports whether Jira tickets can be created.
func (c *Config) JiraEnabled() bool {
	return c.Jira.URL != "" && c.Jira.Username != "" && c.Jira.APIToken != ""
}

// EmailEnabled reports whether customer emails can be sent.
func (c *Config) EmailEnabled() bool {
	return c.Email.SendGridAPIKey != ""
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
