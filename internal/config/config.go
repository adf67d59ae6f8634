package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"

	FormatText     = "text"
	FormatYAML     = "yaml"
	FormatMarkdown = "markdown"
	FormatHTML     = "html"

	EnvLogLevel    = "TREEMIRROR_LOG_LEVEL"
	EnvRedisURL    = "TREEMIRROR_REDIS_URL"
	EnvS3Endpoint  = "TREEMIRROR_S3_ENDPOINT"
	EnvS3AccessKey = "TREEMIRROR_S3_ACCESS_KEY"
	EnvS3SecretKey = "TREEMIRROR_S3_SECRET_KEY"
	EnvS3Bucket    = "TREEMIRROR_S3_BUCKET"
)

type RepositoryConfig struct {
	URL           string `yaml:"url"`
	SourceSegment string `yaml:"source_segment"`
	RawSegment    string `yaml:"raw_segment"`
	Ref           string `yaml:"ref"`
}

// ListingConfig describes how entries are recognised on a listing page.
type ListingConfig struct {
	EntryTag   string `yaml:"entry_tag"`
	EntryClass string `yaml:"entry_class"`
	DirClass   string `yaml:"dir_class"`
	CacheSize  int    `yaml:"cache_size"`
}

type HTTPConfig struct {
	Timeout             time.Duration `yaml:"timeout"`
	UserAgent           string        `yaml:"user_agent"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
}

type DownloadConfig struct {
	OutDir     string        `yaml:"out_dir"`
	Workers    int           `yaml:"workers"`
	Retries    int           `yaml:"retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

type ReportConfig struct {
	Format   string `yaml:"format"`
	File     string `yaml:"file"`
	Template string `yaml:"template"` // Custom HTML page template
}

type PublishConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
	Prefix    string `yaml:"prefix"`
}

type Config struct {
	LogLevel   string           `yaml:"log_level"`
	Repository RepositoryConfig `yaml:"repository"`
	Listing    ListingConfig    `yaml:"listing"`
	HTTP       HTTPConfig       `yaml:"http"`
	Download   DownloadConfig   `yaml:"download"`
	Report     ReportConfig     `yaml:"report"`
	RedisURL   string           `yaml:"redis_url"`
	Publish    PublishConfig    `yaml:"publish"`
}

func (c *Config) SetDefaults() {
	c.LogLevel = LogLevelInfo

	c.Repository.SourceSegment = "src"
	c.Repository.RawSegment = "raw"
	c.Repository.Ref = "branch/master"

	c.Listing.EntryTag = "td"
	c.Listing.EntryClass = "four"
	c.Listing.DirClass = "octicon-file-directory-fill"
	c.Listing.CacheSize = 256

	c.HTTP.Timeout = 30 * time.Second
	c.HTTP.UserAgent = "treemirror/1.0"
	c.HTTP.MaxIdleConnsPerHost = 32

	c.Download.Workers = 8
	c.Download.RetryDelay = time.Second

	c.Report.Format = FormatText

	c.Publish.Region = "us-east-1"
}

// Load reads the YAML file at path over the defaults and applies environment
// overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	cfg.SetDefaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("cannot parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("cannot read config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	return cfg, nil
}

func (c *Config) applyEnv() {
	c.LogLevel = firstNonEmpty(os.Getenv(EnvLogLevel), c.LogLevel)
	c.RedisURL = firstNonEmpty(os.Getenv(EnvRedisURL), c.RedisURL)
	c.Publish.Endpoint = firstNonEmpty(os.Getenv(EnvS3Endpoint), c.Publish.Endpoint)
	c.Publish.AccessKey = firstNonEmpty(os.Getenv(EnvS3AccessKey), c.Publish.AccessKey)
	c.Publish.SecretKey = firstNonEmpty(os.Getenv(EnvS3SecretKey), c.Publish.SecretKey)
	c.Publish.Bucket = firstNonEmpty(os.Getenv(EnvS3Bucket), c.Publish.Bucket)
}

func (c *Config) Validate() error {
	u, err := url.Parse(c.Repository.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("repository url must be an absolute http(s) url: %q", c.Repository.URL)
	}

	switch c.LogLevel {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
	default:
		return fmt.Errorf("unknown log level: %q", c.LogLevel)
	}

	switch c.Report.Format {
	case FormatText, FormatYAML, FormatMarkdown, FormatHTML:
	default:
		return fmt.Errorf("unknown report format: %q", c.Report.Format)
	}

	if c.Download.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Download.Workers)
	}

	if c.Download.Retries < 0 {
		return fmt.Errorf("retries must not be negative, got %d", c.Download.Retries)
	}

	if c.Listing.CacheSize < 0 {
		return fmt.Errorf("listing cache size must not be negative, got %d", c.Listing.CacheSize)
	}

	if c.Listing.EntryTag == "" || c.Listing.EntryClass == "" || c.Listing.DirClass == "" {
		return fmt.Errorf("listing markers must not be empty")
	}

	if c.Publish.Enabled && (c.Publish.Endpoint == "" || c.Publish.Bucket == "") {
		return fmt.Errorf("publish requires endpoint and bucket")
	}

	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}

	return ""
}

// FetcherConfig is the subset of settings used by the listing fetcher.
type FetcherConfig struct {
	EntryTag   string
	EntryClass string
	DirClass   string
	UserAgent  string
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
}

func (c *Config) FetcherConfig() *FetcherConfig {
	return &FetcherConfig{
		EntryTag:   c.Listing.EntryTag,
		EntryClass: c.Listing.EntryClass,
		DirClass:   c.Listing.DirClass,
		UserAgent:  c.HTTP.UserAgent,
		Timeout:    c.HTTP.Timeout,
		Retries:    c.Download.Retries,
		RetryDelay: c.Download.RetryDelay,
	}
}

// MirrorConfig is the subset of settings used by the download workers.
type MirrorConfig struct {
	Workers    int
	Retries    int
	RetryDelay time.Duration
	Timeout    time.Duration
	UserAgent  string
}

func (c *Config) MirrorConfig() *MirrorConfig {
	return &MirrorConfig{
		Workers:    c.Download.Workers,
		Retries:    c.Download.Retries,
		RetryDelay: c.Download.RetryDelay,
		Timeout:    c.HTTP.Timeout,
		UserAgent:  c.HTTP.UserAgent,
	}
}
