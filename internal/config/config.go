package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Oracle   OracleConfig   `yaml:"oracle" mapstructure:"oracle"`
	Match    MatchConfig    `yaml:"match" mapstructure:"match"`
	Digitize DigitizeConfig `yaml:"digitize" mapstructure:"digitize"`
	Pricing  PricingConfig  `yaml:"pricing" mapstructure:"pricing"`
	Batch    BatchConfig    `yaml:"batch" mapstructure:"batch"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the template store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// OracleConfig holds the Anthropic-backed oracle settings.
type OracleConfig struct {
	Key            string   `yaml:"key" mapstructure:"key"`
	Model          string   `yaml:"model" mapstructure:"model"`
	MaxTokens      int64    `yaml:"max_tokens" mapstructure:"max_tokens"`
	Fields         []string `yaml:"fields" mapstructure:"fields"`
	MaxAttempts    int      `yaml:"max_attempts" mapstructure:"max_attempts"`
	TimeoutSecs    int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSecond  float64  `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	RateBurst      int      `yaml:"rate_burst" mapstructure:"rate_burst"`
	BackoffMillis  int      `yaml:"backoff_millis" mapstructure:"backoff_millis"`
	MaxBackoffSecs int      `yaml:"max_backoff_secs" mapstructure:"max_backoff_secs"`
}

// MatchConfig configures template matching.
type MatchConfig struct {
	SuccessThreshold float64 `yaml:"success_threshold" mapstructure:"success_threshold"`
	Locale           string  `yaml:"locale" mapstructure:"locale"`
}

// DigitizeConfig configures PDF text extraction.
type DigitizeConfig struct {
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
}

// PricingConfig holds per-model token pricing and the flat per-call rate
// used for savings accounting.
type PricingConfig struct {
	Models   map[string]ModelPricing `yaml:"models" mapstructure:"models"`
	UnitCall float64                 `yaml:"unit_call" mapstructure:"unit_call"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrentDocs int `yaml:"max_concurrent_docs" mapstructure:"max_concurrent_docs"`
}

// ServerConfig configures the reporting server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DOCEXTRACT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "docextract.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("batch.max_concurrent_docs", 5)
	v.SetDefault("match.success_threshold", 0.7)
	v.SetDefault("match.locale", "en")
	v.SetDefault("digitize.pdftotext_path", "pdftotext")
	v.SetDefault("oracle.model", "claude-haiku-4-5-20251001")
	v.SetDefault("oracle.max_tokens", 2048)
	v.SetDefault("oracle.fields", []string{
		"vendor_name", "invoice_number", "date", "due_date", "subtotal", "tax", "total_amount",
	})
	v.SetDefault("oracle.max_attempts", 3)
	v.SetDefault("oracle.timeout_secs", 60)
	v.SetDefault("oracle.rate_per_second", 2.0)
	v.SetDefault("oracle.rate_burst", 4)
	v.SetDefault("oracle.backoff_millis", 500)
	v.SetDefault("oracle.max_backoff_secs", 30)
	v.SetDefault("pricing.unit_call", 0.02)

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

// Validate checks the settings a given run mode depends on. Modes map to
// commands: "extract" covers process and batch, "serve" the reporting
// server, "export" the read-only exports.
func (c *Config) Validate(mode string) error {
	var problems []string

	check := func() {
		if c.Batch.MaxConcurrentDocs < 1 || c.Batch.MaxConcurrentDocs > 50 {
			problems = append(problems, "batch.max_concurrent_docs must be between 1 and 50")
		}
		if c.Match.SuccessThreshold < 0 || c.Match.SuccessThreshold >= 1 {
			problems = append(problems, "match.success_threshold must be in [0, 1)")
		}
		if err := c.validateStore(); err != nil {
			problems = append(problems, err.Error())
		}
	}

	switch mode {
	case "extract":
		check()
		if c.Oracle.Key == "" {
			problems = append(problems, "oracle.key is required")
		}
		if len(c.Oracle.Fields) == 0 {
			problems = append(problems, "oracle.fields must name at least one field")
		}
		if c.Oracle.MaxAttempts < 1 {
			problems = append(problems, "oracle.max_attempts must be >= 1")
		}
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
		if err := c.validateStore(); err != nil {
			problems = append(problems, err.Error())
		}
	case "export", "templates", "stats", "evaluate":
		if err := c.validateStore(); err != nil {
			problems = append(problems, err.Error())
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Driver {
	case "memory":
		return nil
	case "sqlite":
		if c.Store.Path == "" {
			return eris.New("store.path is required for the sqlite driver")
		}
		return nil
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return eris.New("store.database_url is required for the postgres driver")
		}
		return nil
	default:
		return eris.Errorf("unknown store.driver %q", c.Store.Driver)
	}
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
