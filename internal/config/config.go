// Package config loads the migration settings from an optional .env file, an
// optional YAML file and FILMMIGRATE_* environment variables, in that order of
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "FILMMIGRATE_"

// Report drivers accepted in Report.Driver.
const (
	ReportFS     = "fs"
	ReportS3     = "s3"
	ReportMemory = "memory"
	ReportNone   = "none"
)

// Config is the complete run configuration.
type Config struct {
	Source      Source      `yaml:"source"`
	Destination Destination `yaml:"destination"`
	Batch       Batch       `yaml:"batch"`
	Retry       Retry       `yaml:"retry"`
	Log         Log         `yaml:"log"`
	Report      Report      `yaml:"report"`
	Metrics     Metrics     `yaml:"metrics"`
}

// Source locates the SQLite catalogue.
type Source struct {
	Path string `yaml:"path"`
}

// Destination holds the Postgres connection parameters.
type Destination struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	User           string        `yaml:"user"`
	Password       string        `yaml:"password"`
	Database       string        `yaml:"database"`
	Schema         string        `yaml:"schema"`
	SSLMode        string        `yaml:"sslmode"`
	ConnectTimeout time.Duration `yaml:"connectTimeout"`
}

// Batch controls how records are grouped into COPY blocks.
type Batch struct {
	Size int `yaml:"size"`
	// DropPartial discards a final batch smaller than Size.
	DropPartial bool `yaml:"dropPartial"`
}

// Retry bounds the retries of transient destination failures.
type Retry struct {
	Attempts int           `yaml:"attempts"`
	Delay    time.Duration `yaml:"delay"`
}

// Log configures the process logger.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Report selects where the machine-readable run report is archived.
type Report struct {
	Driver string `yaml:"driver"`
	FSRoot string `yaml:"fsRoot"`
	S3     S3     `yaml:"s3"`
}

// S3 holds bucket settings for the s3 report driver.
type S3 struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"pathStyle"`
}

// Metrics selects where run metrics are exported. Both are optional.
type Metrics struct {
	Textfile       string `yaml:"textfile"`
	PushgatewayURL string `yaml:"pushgatewayURL"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Source: Source{Path: "db.sqlite"},
		Destination: Destination{
			Host:           "127.0.0.1",
			Port:           5432,
			Database:       "movies_database",
			Schema:         "content",
			SSLMode:        "disable",
			ConnectTimeout: 10 * time.Second,
		},
		Batch: Batch{Size: 10},
		Retry: Retry{Attempts: 3, Delay: time.Second},
		Log:   Log{Level: "info", Format: "text"},
		Report: Report{
			Driver: ReportFS,
			FSRoot: "./reports",
		},
	}
}

// Load builds the configuration. A missing .env file is not an error; a
// YAML file is read only when FILMMIGRATE_CONFIG names one.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	cfg := Default()
	if path := os.Getenv(EnvPrefix + "CONFIG"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

type envReader struct {
	errs []error
}

func (r *envReader) stringVar(name string, dst *string) {
	if v, ok := os.LookupEnv(EnvPrefix + name); ok && v != "" {
		*dst = v
	}
}

func (r *envReader) intVar(name string, dst *int) {
	v, ok := os.LookupEnv(EnvPrefix + name)
	if !ok || v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
		return
	}
	*dst = n
}

func (r *envReader) boolVar(name string, dst *bool) {
	v, ok := os.LookupEnv(EnvPrefix + name)
	if !ok || v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
		return
	}
	*dst = b
}

// durationVar accepts Go durations ("1500ms") or a bare number of seconds.
func (r *envReader) durationVar(name string, dst *time.Duration) {
	v, ok := os.LookupEnv(EnvPrefix + name)
	if !ok || v == "" {
		return
	}
	if secs, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(secs) * time.Second
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
		return
	}
	*dst = d
}

func applyEnv(cfg *Config) error {
	var r envReader
	r.stringVar("SQLITE_PATH", &cfg.Source.Path)

	r.stringVar("PG_HOST", &cfg.Destination.Host)
	r.intVar("PG_PORT", &cfg.Destination.Port)
	r.stringVar("PG_USER", &cfg.Destination.User)
	r.stringVar("PG_PASSWORD", &cfg.Destination.Password)
	r.stringVar("PG_DB", &cfg.Destination.Database)
	r.stringVar("PG_SCHEMA", &cfg.Destination.Schema)
	r.stringVar("PG_SSLMODE", &cfg.Destination.SSLMode)
	r.durationVar("PG_CONNECT_TIMEOUT", &cfg.Destination.ConnectTimeout)

	r.intVar("BATCH_SIZE", &cfg.Batch.Size)
	r.boolVar("DROP_PARTIAL_BATCH", &cfg.Batch.DropPartial)
	r.intVar("RETRY_ATTEMPTS", &cfg.Retry.Attempts)
	r.durationVar("RETRY_DELAY", &cfg.Retry.Delay)

	r.stringVar("LOG_LEVEL", &cfg.Log.Level)
	r.stringVar("LOG_FORMAT", &cfg.Log.Format)

	r.stringVar("REPORT_DRIVER", &cfg.Report.Driver)
	r.stringVar("REPORT_FS_ROOT", &cfg.Report.FSRoot)
	r.stringVar("REPORT_S3_BUCKET", &cfg.Report.S3.Bucket)
	r.stringVar("REPORT_S3_REGION", &cfg.Report.S3.Region)
	r.stringVar("REPORT_S3_ENDPOINT", &cfg.Report.S3.Endpoint)
	r.boolVar("REPORT_S3_PATH_STYLE", &cfg.Report.S3.PathStyle)

	r.stringVar("METRICS_TEXTFILE", &cfg.Metrics.Textfile)
	r.stringVar("PUSHGATEWAY_URL", &cfg.Metrics.PushgatewayURL)
	return errors.Join(r.errs...)
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Source.Path) == "" {
		errs = append(errs, errors.New("config: sqlite path is required"))
	}
	d := c.Destination
	if strings.TrimSpace(d.Host) == "" {
		errs = append(errs, errors.New("config: postgres host is required"))
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Errorf("config: postgres port %d out of range", d.Port))
	}
	if strings.TrimSpace(d.User) == "" {
		errs = append(errs, fmt.Errorf("config: postgres user is required (set %sPG_USER)", EnvPrefix))
	}
	if strings.TrimSpace(d.Database) == "" {
		errs = append(errs, errors.New("config: postgres database is required"))
	}
	if strings.TrimSpace(d.Schema) == "" {
		errs = append(errs, errors.New("config: postgres schema is required"))
	}
	if d.ConnectTimeout < 0 {
		errs = append(errs, errors.New("config: connect timeout must be >= 0"))
	}
	if c.Batch.Size <= 0 {
		errs = append(errs, fmt.Errorf("config: batch size must be > 0, got %d", c.Batch.Size))
	}
	if c.Retry.Attempts < 1 {
		errs = append(errs, errors.New("config: retry attempts must be >= 1"))
	}
	if c.Retry.Delay < 0 {
		errs = append(errs, errors.New("config: retry delay must be >= 0"))
	}
	if hclog.LevelFromString(c.Log.Level) == hclog.NoLevel {
		errs = append(errs, fmt.Errorf("config: unknown log level %q", c.Log.Level))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("config: log format must be text or json, got %q", c.Log.Format))
	}
	switch c.Report.Driver {
	case ReportFS, ReportMemory, ReportNone:
	case ReportS3:
		if c.Report.S3.Bucket == "" {
			errs = append(errs, fmt.Errorf("config: %sREPORT_S3_BUCKET required for s3 report driver", EnvPrefix))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown report driver %q", c.Report.Driver))
	}
	if u := c.Metrics.PushgatewayURL; u != "" {
		if parsed, err := url.Parse(u); err != nil || parsed.Host == "" {
			errs = append(errs, fmt.Errorf("config: invalid pushgateway url %q", u))
		}
	}
	return errors.Join(errs...)
}

// URL returns the connection URL. The schema is applied as search_path.
func (d Destination) URL() *url.URL {
	q := url.Values{}
	if d.SSLMode != "" {
		q.Set("sslmode", d.SSLMode)
	}
	if d.Schema != "" {
		q.Set("search_path", d.Schema)
	}
	if d.ConnectTimeout > 0 {
		secs := int(d.ConnectTimeout / time.Second)
		if secs < 1 {
			secs = 1
		}
		q.Set("connect_timeout", strconv.Itoa(secs))
	}
	u := &url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:     "/" + d.Database,
		RawQuery: q.Encode(),
	}
	if d.Password != "" {
		u.User = url.UserPassword(d.User, d.Password)
	} else if d.User != "" {
		u.User = url.User(d.User)
	}
	return u
}

// DSN returns the connection string including credentials.
func (d Destination) DSN() string {
	return d.URL().String()
}

// Redacted returns the connection string with the password masked, for logs.
func (d Destination) Redacted() string {
	return d.URL().Redacted()
}
