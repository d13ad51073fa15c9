package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Warehouse WarehouseConfig `yaml:"warehouse" mapstructure:"warehouse"`
	Fivetran  FivetranConfig  `yaml:"fivetran" mapstructure:"fivetran"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Anomaly   AnomalyConfig   `yaml:"anomaly" mapstructure:"anomaly"`
	Monitor   MonitorConfig   `yaml:"monitor" mapstructure:"monitor"`
	Notify    NotifyConfig    `yaml:"notify" mapstructure:"notify"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the history persistence backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver" validate:"oneof=memory sqlite postgres"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// WarehouseConfig identifies the monitored warehouse table and the
// quarantine side table.
type WarehouseConfig struct {
	DatabaseURL     string `yaml:"database_url" mapstructure:"database_url"`
	Schema          string `yaml:"schema" mapstructure:"schema"`
	Table           string `yaml:"table" mapstructure:"table"`
	QuarantineTable string `yaml:"quarantine_table" mapstructure:"quarantine_table"`
	IDColumn        string `yaml:"id_column" mapstructure:"id_column"`
	TimestampColumn string `yaml:"timestamp_column" mapstructure:"timestamp_column"`
	MaxConns        int32  `yaml:"max_conns" mapstructure:"max_conns"`
	TimeoutSecs     int    `yaml:"timeout_secs" mapstructure:"timeout_secs" validate:"min=1"`
}

// FivetranConfig holds connector-control API credentials.
type FivetranConfig struct {
	APIKey      string `yaml:"api_key" mapstructure:"api_key"`
	APISecret   string `yaml:"api_secret" mapstructure:"api_secret"`
	ConnectorID string `yaml:"connector_id" mapstructure:"connector_id"`
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs" validate:"min=1"`
}

// AnthropicConfig holds Anthropic API settings for the anomaly detective.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	Model       string `yaml:"model" mapstructure:"model"`
	MaxTokens   int64  `yaml:"max_tokens" mapstructure:"max_tokens" validate:"min=1"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs" validate:"min=1"`
}

// AnomalyConfig tunes what the detective samples and reports.
type AnomalyConfig struct {
	SampleLimit   int     `yaml:"sample_limit" mapstructure:"sample_limit" validate:"min=1,max=500"`
	LookbackDays  int     `yaml:"lookback_days" mapstructure:"lookback_days" validate:"min=1"`
	MinConfidence float64 `yaml:"min_confidence" mapstructure:"min_confidence" validate:"min=0,max=1"`
}

// MonitorConfig configures the watch loop.
type MonitorConfig struct {
	IntervalSecs  int `yaml:"interval_secs" mapstructure:"interval_secs" validate:"min=1"`
	MaxIterations int `yaml:"max_iterations" mapstructure:"max_iterations" validate:"min=0"`
}

// NotifyConfig configures alert dispatch channels.
type NotifyConfig struct {
	WebhookURL     string `yaml:"webhook_url" mapstructure:"webhook_url"`
	NotionToken    string `yaml:"notion_token" mapstructure:"notion_token"`
	NotionReviewDB string `yaml:"notion_review_db" mapstructure:"notion_review_db"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment. An explicit path
// overrides the default search for ./config.yaml.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("PIPEWARDEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "memory")
	v.SetDefault("warehouse.schema", "public")
	v.SetDefault("warehouse.table", "raw_news")
	v.SetDefault("warehouse.quarantine_table", "raw_news_quarantine")
	v.SetDefault("warehouse.id_column", "article_id")
	v.SetDefault("warehouse.timestamp_column", "published_at")
	v.SetDefault("warehouse.max_conns", 4)
	v.SetDefault("warehouse.timeout_secs", 30)
	v.SetDefault("fivetran.base_url", "https://api.fivetran.com/v1")
	v.SetDefault("fivetran.timeout_secs", 30)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("anthropic.timeout_secs", 120)
	v.SetDefault("anomaly.sample_limit", 20)
	v.SetDefault("anomaly.lookback_days", 30)
	v.SetDefault("anomaly.min_confidence", 0.5)
	v.SetDefault("monitor.interval_secs", 300)
	v.SetDefault("monitor.max_iterations", 0)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the configuration is usable for the given mode:
// "monitor" (cycle/watch), "serve", "connector", or "baseline". Field
// bounds are checked for every mode; credentials only where the mode
// needs them.
func (c *Config) Validate(mode string) error {
	var problems []string

	val := validator.New()
	if err := val.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if eris.As(err, &verrs) {
			for _, fe := range verrs {
				problems = append(problems, fmt.Sprintf("%s fails %q", strings.ToLower(fe.Namespace()), fe.Tag()))
			}
		} else {
			return eris.Wrap(err, "config: validate")
		}
	}

	needWarehouse := func() {
		if c.Warehouse.DatabaseURL == "" {
			problems = append(problems, "warehouse.database_url is required (PIPEWARDEN_WAREHOUSE_DATABASE_URL)")
		}
	}
	needStore := func() {
		if c.Store.Driver != "memory" && c.Store.DatabaseURL == "" {
			problems = append(problems, fmt.Sprintf("store.database_url is required for driver %q (PIPEWARDEN_STORE_DATABASE_URL)", c.Store.Driver))
		}
	}
	needFivetran := func() {
		if c.Fivetran.APIKey == "" {
			problems = append(problems, "fivetran.api_key is required (PIPEWARDEN_FIVETRAN_API_KEY)")
		}
		if c.Fivetran.APISecret == "" {
			problems = append(problems, "fivetran.api_secret is required (PIPEWARDEN_FIVETRAN_API_SECRET)")
		}
		if c.Fivetran.ConnectorID == "" {
			problems = append(problems, "fivetran.connector_id is required (PIPEWARDEN_FIVETRAN_CONNECTOR_ID)")
		}
	}
	needAnthropic := func() {
		if c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required (PIPEWARDEN_ANTHROPIC_KEY)")
		}
	}

	switch mode {
	case "monitor":
		needWarehouse()
		needStore()
		needFivetran()
		needAnthropic()
	case "serve":
		needWarehouse()
		needStore()
		needFivetran()
		needAnthropic()
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	case "connector":
		needFivetran()
	case "baseline":
		needWarehouse()
		needStore()
	case "history":
		needStore()
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
