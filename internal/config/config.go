package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the session configuration. It is built once at start and passed by reference.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	AWS       AWSConfig       `mapstructure:"aws"`
	Athena    AthenaConfig    `mapstructure:"athena"`
	Series    SeriesConfig    `mapstructure:"series"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Database  DatabaseConfig  `mapstructure:"database"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

// AWSConfig holds credentials shared by the Athena and S3 clients.
// Empty keys fall back to the default AWS credential chain.
type AWSConfig struct {
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	SessionToken    string `mapstructure:"session_token"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
}

type AthenaConfig struct {
	Database        string        `mapstructure:"database"`
	Table           string        `mapstructure:"table"`
	PredictionTable string        `mapstructure:"prediction_table"`
	OutputLocation  string        `mapstructure:"output_location"`
	WorkGroup       string        `mapstructure:"workgroup"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	MaxWait         time.Duration `mapstructure:"max_wait"`
	PageSize        int32         `mapstructure:"page_size"`
}

// SeriesConfig describes the observed/predicted tables used to assemble a series.
type SeriesConfig struct {
	WindowDays       int    `mapstructure:"window_days"`
	ReferenceDate    string `mapstructure:"reference_date"` // YYYY-MM-DD; empty means current_date
	TickerColumn     string `mapstructure:"ticker_column"`
	DateColumn       string `mapstructure:"date_column"`
	PriceColumn      string `mapstructure:"price_column"`
	PredictedColumn  string `mapstructure:"predicted_column"`
	CapturedAtColumn string `mapstructure:"captured_at_column"`
}

type CatalogConfig struct {
	PartitionColumn string `mapstructure:"partition_column"`
	Sentinel        string `mapstructure:"sentinel"`
	RefreshSchedule string `mapstructure:"refresh_schedule"`
}

type DashboardConfig struct {
	Tables       []string      `mapstructure:"tables"`
	MinRows      int           `mapstructure:"min_rows"`
	MaxRows      int           `mapstructure:"max_rows"`
	DefaultRows  int           `mapstructure:"default_rows"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
	CacheSize    int           `mapstructure:"cache_size"`
	ChartWidth   int           `mapstructure:"chart_width"`
	ChartHeight  int           `mapstructure:"chart_height"`
	ThumbWidth   int           `mapstructure:"thumb_width"`
	HistoryLimit int           `mapstructure:"history_limit"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres
	Path            string        `mapstructure:"path"`
	DSNValue        string        `mapstructure:"dsn"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN returns the connection string for the configured driver.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		return c.DSNValue
	}
	if c.DSNValue != "" {
		return c.DSNValue
	}
	return c.Path
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// Load reads configuration from file, .env and environment.
// Parameters:
//   - configPath: explicit config file; empty searches ./configs and the working directory.
// Returns:
//   - *Config: loaded configuration.
//   - error: non-nil if the file is unreadable or decoding fails.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Credentials and locations usually arrive through the standard AWS variables.
	v.BindEnv("aws.access_key_id", "AWS_ACCESS_KEY_ID")
	v.BindEnv("aws.secret_access_key", "AWS_SECRET_ACCESS_KEY")
	v.BindEnv("aws.session_token", "AWS_SESSION_TOKEN")
	v.BindEnv("aws.region", "AWS_REGION", "AWS_DEFAULT_REGION")
	v.BindEnv("aws.endpoint", "AWS_ENDPOINT_URL")
	v.BindEnv("athena.database", "ATHENA_DATABASE")
	v.BindEnv("athena.table", "ATHENA_TABLE")
	v.BindEnv("athena.prediction_table", "ATHENA_PREDICTION_TABLE")
	v.BindEnv("athena.output_location", "ATHENA_OUTPUT_LOCATION", "S3_STAGING_DIR")
	v.BindEnv("athena.workgroup", "ATHENA_WORKGROUP")
	v.BindEnv("database.dsn", "DATABASE_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})

	v.SetDefault("aws.region", "us-east-1")

	v.SetDefault("athena.table", "prices")
	v.SetDefault("athena.prediction_table", "predictions")
	v.SetDefault("athena.poll_interval", 2*time.Second)
	v.SetDefault("athena.max_wait", 0)
	v.SetDefault("athena.page_size", 1000)

	v.SetDefault("series.window_days", 120)
	v.SetDefault("series.ticker_column", "ticker")
	v.SetDefault("series.date_column", "date")
	v.SetDefault("series.price_column", "close")
	v.SetDefault("series.predicted_column", "predicted_price")
	v.SetDefault("series.captured_at_column", "captured_at")

	v.SetDefault("catalog.partition_column", "ticker")
	v.SetDefault("catalog.sentinel", "__HIVE_DEFAULT_PARTITION__")
	v.SetDefault("catalog.refresh_schedule", "@every 15m")

	v.SetDefault("dashboard.tables", []string{})
	v.SetDefault("dashboard.min_rows", 10)
	v.SetDefault("dashboard.max_rows", 1000)
	v.SetDefault("dashboard.default_rows", 100)
	v.SetDefault("dashboard.cache_ttl", 600*time.Second)
	v.SetDefault("dashboard.cache_size", 256)
	v.SetDefault("dashboard.chart_width", 1024)
	v.SetDefault("dashboard.chart_height", 480)
	v.SetDefault("dashboard.thumb_width", 320)
	v.SetDefault("dashboard.history_limit", 50)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/predictboard.db")
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.requests_per_second", 2.0)
	v.SetDefault("ratelimit.burst", 5)
}

// Validate checks the keys every session needs.
// Returns an error describing the first problem, or nil if valid.
func (c *Config) Validate() error {
	if c.Athena.Database == "" {
		return fmt.Errorf("athena.database is required")
	}
	if c.Athena.Table == "" {
		return fmt.Errorf("athena.table is required")
	}
	if !strings.HasPrefix(c.Athena.OutputLocation, "s3://") {
		return fmt.Errorf("athena.output_location must be an s3:// URI, got %q", c.Athena.OutputLocation)
	}
	if c.AWS.Region == "" {
		return fmt.Errorf("aws.region is required")
	}
	if (c.AWS.AccessKeyID == "") != (c.AWS.SecretAccessKey == "") {
		return fmt.Errorf("aws.access_key_id and aws.secret_access_key must be set together")
	}
	if c.Athena.PollInterval <= 0 {
		return fmt.Errorf("athena.poll_interval must be positive")
	}
	if c.Dashboard.MinRows <= 0 || c.Dashboard.MaxRows < c.Dashboard.MinRows {
		return fmt.Errorf("dashboard row limits are invalid: min=%d max=%d", c.Dashboard.MinRows, c.Dashboard.MaxRows)
	}
	if c.Dashboard.DefaultRows < c.Dashboard.MinRows || c.Dashboard.DefaultRows > c.Dashboard.MaxRows {
		return fmt.Errorf("dashboard.default_rows %d outside [%d, %d]", c.Dashboard.DefaultRows, c.Dashboard.MinRows, c.Dashboard.MaxRows)
	}
	if c.Series.WindowDays <= 0 {
		return fmt.Errorf("series.window_days must be positive")
	}
	if c.Series.ReferenceDate != "" {
		if _, err := time.Parse("2006-01-02", c.Series.ReferenceDate); err != nil {
			return fmt.Errorf("series.reference_date: %w", err)
		}
	}
	return nil
}

// BrowseTables returns the tables offered on the predictions page.
// When none are configured it falls back to the price and prediction tables.
func (c *Config) BrowseTables() []string {
	if len(c.Dashboard.Tables) > 0 {
		return c.Dashboard.Tables
	}
	var tables []string
	for _, t := range []string{c.Athena.Table, c.Athena.PredictionTable} {
		if t == "" {
			continue
		}
		if !strings.Contains(t, ".") {
			t = c.Athena.Database + "." + t
		}
		tables = append(tables, t)
	}
	return tables
}
