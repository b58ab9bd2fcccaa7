package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "ENERGODOC"

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	DB       DBConfig
	S3       S3Config
	Redis    RedisConfig
	Log      LogConfig
	Fallback FallbackConfig
	CORS     CORSConfig
	Queue    QueueConfig
	OCR      OCRConfig
	Rules    RulesConfig
	Metrics  MetricsConfig
}

// QueueConfig holds processing queue worker settings.
type QueueConfig struct {
	PollIntervalSecs int `mapstructure:"poll_interval_secs"`
	MaxRetries       int `mapstructure:"max_retries"`
	Concurrency      int `mapstructure:"concurrency"`
	TimeoutSecs      int `mapstructure:"timeout_secs"`
	StaleAfterSecs   int `mapstructure:"stale_after_secs"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// ProviderConfig holds settings for a single semantic fallback provider.
type ProviderConfig struct {
	Provider     string `mapstructure:"provider"`
	APIKey       string `mapstructure:"api_key"`
	DefaultModel string `mapstructure:"default_model"`
	MaxRetries   int    `mapstructure:"max_retries"`
	TimeoutSecs  int    `mapstructure:"timeout_secs"`
	Endpoint     string `mapstructure:"endpoint"`
}

// FallbackConfig controls the semantic mapping fallback.
type FallbackConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	MaxRetries    int           `mapstructure:"max_retries"`
	TimeoutSecs   int           `mapstructure:"timeout_secs"`
	BackoffMillis int           `mapstructure:"backoff_millis"`
	CacheBackend  string        `mapstructure:"cache_backend"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`

	Primary   ProviderConfig `mapstructure:"primary"`
	Secondary ProviderConfig `mapstructure:"secondary"`
	Tertiary  ProviderConfig `mapstructure:"tertiary"`
}

// Providers returns the configured providers in chain order.
func (f *FallbackConfig) Providers() []*ProviderConfig {
	var out []*ProviderConfig
	for _, p := range []*ProviderConfig{&f.Primary, &f.Secondary, &f.Tertiary} {
		if p.Provider != "" {
			out = append(out, p)
		}
	}
	return out
}

// Timeout is the per-attempt deadline of one fallback call.
func (f *FallbackConfig) Timeout() time.Duration {
	return time.Duration(f.TimeoutSecs) * time.Second
}

// Backoff is the initial delay between retries.
func (f *FallbackConfig) Backoff() time.Duration {
	return time.Duration(f.BackoffMillis) * time.Millisecond
}

// OCRConfig holds the external OCR tool settings.
type OCRConfig struct {
	Pdftotext    string `mapstructure:"pdftotext"`
	Pdftoppm     string `mapstructure:"pdftoppm"`
	Tesseract    string `mapstructure:"tesseract"`
	Lang         string `mapstructure:"lang"`
	DPI          int    `mapstructure:"dpi"`
	MaxPages     int    `mapstructure:"max_pages"`
	PSM          int    `mapstructure:"psm"`
	TessdataDir  string `mapstructure:"tessdata_dir"`
	MinPageChars int    `mapstructure:"min_page_chars"`
}

// RulesConfig points at an optional ruleset file overriding the embedded one.
type RulesConfig struct {
	Path string `mapstructure:"path"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// RedisConfig holds the fallback cache connection.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Environment  string        `mapstructure:"environment"`
}

// DBConfig holds PostgreSQL connection settings.
type DBConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxOpen  int    `mapstructure:"max_open"`
	MaxIdle  int    `mapstructure:"max_idle"`
}

// DSN returns the PostgreSQL connection string.
func (d *DBConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// S3Config holds AWS S3 settings.
type S3Config struct {
	Region        string `mapstructure:"region"`
	Bucket        string `mapstructure:"bucket"`
	Endpoint      string `mapstructure:"endpoint"`
	AccessKey     string `mapstructure:"access_key"`
	SecretKey     string `mapstructure:"secret_key"`
	MaxFileSizeMB int64  `mapstructure:"max_file_size_mb"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

var providerSlots = []string{"primary", "secondary", "tertiary"}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.environment", "development")

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "energodoc")
	v.SetDefault("db.password", "energodoc_secret")
	v.SetDefault("db.name", "energodoc")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_open", 25)
	v.SetDefault("db.max_idle", 10)

	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.bucket", "energodoc-submissions")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.max_file_size_mb", 50)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "energodoc:fallback:")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("cors.allowed_origins", "http://localhost:3000,http://127.0.0.1:3000")

	v.SetDefault("queue.poll_interval_secs", 5)
	v.SetDefault("queue.max_retries", 3)
	v.SetDefault("queue.concurrency", 4)
	v.SetDefault("queue.timeout_secs", 600)
	v.SetDefault("queue.stale_after_secs", 1800)

	v.SetDefault("ocr.pdftotext", "pdftotext")
	v.SetDefault("ocr.pdftoppm", "pdftoppm")
	v.SetDefault("ocr.tesseract", "tesseract")
	v.SetDefault("ocr.lang", "rus+uzb+eng")
	v.SetDefault("ocr.dpi", 300)
	v.SetDefault("ocr.max_pages", 50)
	v.SetDefault("ocr.psm", 6)
	v.SetDefault("ocr.min_page_chars", 20)

	v.SetDefault("rules.path", "")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("fallback.enabled", false)
	v.SetDefault("fallback.max_retries", 2)
	v.SetDefault("fallback.timeout_secs", 60)
	v.SetDefault("fallback.backoff_millis", 500)
	v.SetDefault("fallback.cache_backend", "redis")
	v.SetDefault("fallback.cache_ttl", "720h")
	v.SetDefault("fallback.primary.provider", "claude")
	for _, slot := range providerSlots {
		v.SetDefault("fallback."+slot+".timeout_secs", 60)
	}
}

func envKeys() []string {
	keys := []string{
		"server.port", "server.read_timeout", "server.write_timeout", "server.environment",
		"db.host", "db.port", "db.user", "db.password", "db.name", "db.sslmode", "db.max_open", "db.max_idle",
		"s3.region", "s3.bucket", "s3.endpoint", "s3.access_key", "s3.secret_key", "s3.max_file_size_mb",
		"redis.addr", "redis.password", "redis.db", "redis.prefix",
		"log.level", "log.format",
		"cors.allowed_origins",
		"queue.poll_interval_secs", "queue.max_retries", "queue.concurrency", "queue.timeout_secs", "queue.stale_after_secs",
		"ocr.pdftotext", "ocr.pdftoppm", "ocr.tesseract", "ocr.lang", "ocr.dpi", "ocr.max_pages",
		"ocr.psm", "ocr.tessdata_dir", "ocr.min_page_chars",
		"rules.path", "metrics.enabled", "metrics.path",
		"fallback.enabled", "fallback.max_retries", "fallback.timeout_secs", "fallback.backoff_millis",
		"fallback.cache_backend", "fallback.cache_ttl",
	}
	for _, slot := range providerSlots {
		for _, f := range []string{"provider", "api_key", "default_model", "max_retries", "timeout_secs", "endpoint"} {
			keys = append(keys, "fallback."+slot+"."+f)
		}
	}
	return keys
}

func envName(key string) string {
	return envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Load reads configuration from environment variables with the ENERGODOC_ prefix.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	// Nested keys need explicit bindings.
	for _, key := range envKeys() {
		if err := v.BindEnv(key, envName(key)); err != nil {
			return nil, fmt.Errorf("binding %s: %w", key, err)
		}
	}

	cfg := &Config{}

	serverPort := v.GetString("server.port")
	if port := os.Getenv("PORT"); port != "" && os.Getenv(envName("server.port")) == "" {
		serverPort = ":" + port
	}
	cfg.Server = ServerConfig{
		Port:         serverPort,
		ReadTimeout:  v.GetDuration("server.read_timeout"),
		WriteTimeout: v.GetDuration("server.write_timeout"),
		Environment:  v.GetString("server.environment"),
	}
	cfg.DB = DBConfig{
		Host:     v.GetString("db.host"),
		Port:     v.GetInt("db.port"),
		User:     v.GetString("db.user"),
		Password: v.GetString("db.password"),
		Name:     v.GetString("db.name"),
		SSLMode:  v.GetString("db.sslmode"),
		MaxOpen:  v.GetInt("db.max_open"),
		MaxIdle:  v.GetInt("db.max_idle"),
	}
	cfg.S3 = S3Config{
		Region:        v.GetString("s3.region"),
		Bucket:        v.GetString("s3.bucket"),
		Endpoint:      v.GetString("s3.endpoint"),
		AccessKey:     v.GetString("s3.access_key"),
		SecretKey:     v.GetString("s3.secret_key"),
		MaxFileSizeMB: v.GetInt64("s3.max_file_size_mb"),
	}
	cfg.Redis = RedisConfig{
		Addr:     v.GetString("redis.addr"),
		Password: v.GetString("redis.password"),
		DB:       v.GetInt("redis.db"),
		Prefix:   v.GetString("redis.prefix"),
	}
	cfg.Log = LogConfig{
		Level:  v.GetString("log.level"),
		Format: v.GetString("log.format"),
	}

	var corsOrigins []string
	for _, o := range strings.Split(v.GetString("cors.allowed_origins"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			corsOrigins = append(corsOrigins, o)
		}
	}
	cfg.CORS = CORSConfig{AllowedOrigins: corsOrigins}

	cfg.Queue = QueueConfig{
		PollIntervalSecs: v.GetInt("queue.poll_interval_secs"),
		MaxRetries:       v.GetInt("queue.max_retries"),
		Concurrency:      v.GetInt("queue.concurrency"),
		TimeoutSecs:      v.GetInt("queue.timeout_secs"),
		StaleAfterSecs:   v.GetInt("queue.stale_after_secs"),
	}
	cfg.OCR = OCRConfig{
		Pdftotext:    v.GetString("ocr.pdftotext"),
		Pdftoppm:     v.GetString("ocr.pdftoppm"),
		Tesseract:    v.GetString("ocr.tesseract"),
		Lang:         v.GetString("ocr.lang"),
		DPI:          v.GetInt("ocr.dpi"),
		MaxPages:     v.GetInt("ocr.max_pages"),
		PSM:          v.GetInt("ocr.psm"),
		TessdataDir:  v.GetString("ocr.tessdata_dir"),
		MinPageChars: v.GetInt("ocr.min_page_chars"),
	}
	cfg.Rules = RulesConfig{Path: v.GetString("rules.path")}
	cfg.Metrics = MetricsConfig{
		Enabled: v.GetBool("metrics.enabled"),
		Path:    v.GetString("metrics.path"),
	}

	provider := func(slot string) ProviderConfig {
		prefix := "fallback." + slot + "."
		return ProviderConfig{
			Provider:     v.GetString(prefix + "provider"),
			APIKey:       v.GetString(prefix + "api_key"),
			DefaultModel: v.GetString(prefix + "default_model"),
			MaxRetries:   v.GetInt(prefix + "max_retries"),
			TimeoutSecs:  v.GetInt(prefix + "timeout_secs"),
			Endpoint:     v.GetString(prefix + "endpoint"),
		}
	}
	cfg.Fallback = FallbackConfig{
		Enabled:       v.GetBool("fallback.enabled"),
		MaxRetries:    v.GetInt("fallback.max_retries"),
		TimeoutSecs:   v.GetInt("fallback.timeout_secs"),
		BackoffMillis: v.GetInt("fallback.backoff_millis"),
		CacheBackend:  v.GetString("fallback.cache_backend"),
		CacheTTL:      v.GetDuration("fallback.cache_ttl"),
		Primary:       provider("primary"),
		Secondary:     provider("secondary"),
		Tertiary:      provider("tertiary"),
	}

	if cfg.Fallback.CacheBackend != "redis" && cfg.Fallback.CacheBackend != "memory" {
		return nil, fmt.Errorf("unknown fallback cache backend %q", cfg.Fallback.CacheBackend)
	}
	return cfg, nil
}
