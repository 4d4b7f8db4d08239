package config

import (
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"emperror.dev/errors"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. METRICWATCH_SERVER_PORT.
const EnvPrefix = "METRICWATCH_"

// Config represents the structure of the configuration file.
type Config struct {
	Server struct {
		Host           string   `yaml:"host"`            // Listen address
		Port           int      `yaml:"port"`            // Listen port
		AllowedOrigins []string `yaml:"allowed_origins"` // CORS origins; empty allows any non-empty Origin
		AllowedIPs     []string `yaml:"allowed_ips"`     // Client IP allow list; empty allows all
		RateLimit      float64  `yaml:"rate_limit"`      // Requests per second per client IP; 0 disables
		RateBurst      int      `yaml:"rate_burst"`      // Token bucket burst per client IP
		TLSCertFile    string   `yaml:"tls_cert_file"`   // Serve HTTPS when both cert and key are set
		TLSKeyFile     string   `yaml:"tls_key_file"`
	} `yaml:"server"`

	Sampler struct {
		Interval time.Duration `yaml:"interval"`  // Time between samples
		Timeout  time.Duration `yaml:"timeout"`   // Upper bound for one tick's host reads
		DiskPath string        `yaml:"disk_path"` // Mount point reported as disk_usage/disk_total
	} `yaml:"sampler"`

	Store struct {
		Capacity        int           `yaml:"capacity"`          // Maximum samples held in memory
		Retention       time.Duration `yaml:"retention"`         // Max sample age kept by the prune job
		PruneInterval   time.Duration `yaml:"prune_interval"`    // Time between prune runs
		MaxQueryResults int           `yaml:"max_query_results"` // Cap for raw-mode history
	} `yaml:"store"`

	Query struct {
		HourlyBucket time.Duration `yaml:"hourly_bucket"` // Bucket width for 1d and 1w
		DailyBucket  time.Duration `yaml:"daily_bucket"`  // Bucket width for 1M and 1y
		CacheTTL     time.Duration `yaml:"cache_ttl"`     // Aggregated result cache TTL; 0 disables
	} `yaml:"query"`

	Auth struct {
		Enabled     bool          `yaml:"enabled"`      // Require a bearer token on /metrics and /ws
		Secret      string        `yaml:"secret"`       // HMAC signing key
		SecretFile  string        `yaml:"secret_file"`  // Where a generated key is persisted
		TokenExpiry time.Duration `yaml:"token_expiry"` // Lifetime of issued tokens
		Username    string        `yaml:"username"`     // Dashboard login user
		Password    string        `yaml:"password"`     // Dashboard login password; empty disables login
	} `yaml:"auth"`

	Log struct {
		Level  string `yaml:"level"`  // debug, info, warn, error
		Format string `yaml:"format"` // json or console
	} `yaml:"log"`
}

// Default returns the configuration used when no file or override is given.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 8080
	cfg.Server.RateLimit = 100
	cfg.Server.RateBurst = 200

	cfg.Sampler.Interval = 10 * time.Second
	cfg.Sampler.Timeout = 5 * time.Second
	cfg.Sampler.DiskPath = "/"

	cfg.Store.Capacity = 10000
	cfg.Store.Retention = 24 * time.Hour
	cfg.Store.PruneInterval = 24 * time.Hour
	cfg.Store.MaxQueryResults = 1000

	cfg.Query.HourlyBucket = time.Hour
	cfg.Query.DailyBucket = 24 * time.Hour
	cfg.Query.CacheTTL = 5 * time.Second

	cfg.Auth.Enabled = true
	cfg.Auth.TokenExpiry = 24 * time.Hour
	cfg.Auth.Username = "admin"

	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	return cfg
}

// Load reads the YAML file at path on top of the defaults (an empty path
// skips the file), applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read config file %s", path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config file %s", path)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Addr returns host:port for the HTTP listener.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// TLSEnabled reports whether the listener serves HTTPS.
func (c *Config) TLSEnabled() bool {
	return c.Server.TLSCertFile != "" && c.Server.TLSKeyFile != ""
}

// Validate rejects values the services cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, errors.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.RateLimit < 0 || (c.Server.RateLimit > 0 && c.Server.RateBurst <= 0) {
		errs = append(errs, errors.New("server.rate_limit must not be negative and needs a positive rate_burst"))
	}
	if (c.Server.TLSCertFile == "") != (c.Server.TLSKeyFile == "") {
		errs = append(errs, errors.New("server.tls_cert_file and server.tls_key_file must be set together"))
	}
	if c.Sampler.Interval <= 0 {
		errs = append(errs, errors.New("sampler.interval must be positive"))
	}
	if c.Sampler.Timeout < 0 {
		errs = append(errs, errors.New("sampler.timeout must not be negative"))
	}
	if c.Store.Capacity <= 0 {
		errs = append(errs, errors.New("store.capacity must be positive"))
	}
	if c.Store.Retention <= 0 {
		errs = append(errs, errors.New("store.retention must be positive"))
	}
	if c.Store.PruneInterval <= 0 {
		errs = append(errs, errors.New("store.prune_interval must be positive"))
	}
	if c.Store.MaxQueryResults <= 0 {
		errs = append(errs, errors.New("store.max_query_results must be positive"))
	}
	if c.Query.HourlyBucket <= 0 || c.Query.DailyBucket <= 0 {
		errs = append(errs, errors.New("query bucket widths must be positive"))
	}
	if c.Query.CacheTTL < 0 {
		errs = append(errs, errors.New("query.cache_ttl must not be negative"))
	}
	if c.Auth.Enabled && c.Auth.TokenExpiry <= 0 {
		errs = append(errs, errors.New("auth.token_expiry must be positive"))
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level)); err != nil {
		errs = append(errs, errors.Errorf("log.level %q is not a valid level", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "console":
	default:
		errs = append(errs, errors.Errorf("log.format %q must be json or console", c.Log.Format))
	}
	return errors.Combine(errs...)
}

type lookupFunc func(key string) (string, bool)

// applyEnv overrides fields from METRICWATCH_* variables.
func (c *Config) applyEnv(lookup lookupFunc) error {
	e := envReader{lookup: lookup}

	e.str("SERVER_HOST", &c.Server.Host)
	e.int("SERVER_PORT", &c.Server.Port)
	e.list("SERVER_ALLOWED_ORIGINS", &c.Server.AllowedOrigins)
	e.list("SERVER_ALLOWED_IPS", &c.Server.AllowedIPs)
	e.float("SERVER_RATE_LIMIT", &c.Server.RateLimit)
	e.int("SERVER_RATE_BURST", &c.Server.RateBurst)
	e.str("SERVER_TLS_CERT_FILE", &c.Server.TLSCertFile)
	e.str("SERVER_TLS_KEY_FILE", &c.Server.TLSKeyFile)

	e.duration("SAMPLER_INTERVAL", &c.Sampler.Interval)
	e.duration("SAMPLER_TIMEOUT", &c.Sampler.Timeout)
	e.str("SAMPLER_DISK_PATH", &c.Sampler.DiskPath)

	e.int("STORE_CAPACITY", &c.Store.Capacity)
	e.duration("STORE_RETENTION", &c.Store.Retention)
	e.duration("STORE_PRUNE_INTERVAL", &c.Store.PruneInterval)
	e.int("STORE_MAX_QUERY_RESULTS", &c.Store.MaxQueryResults)

	e.duration("QUERY_HOURLY_BUCKET", &c.Query.HourlyBucket)
	e.duration("QUERY_DAILY_BUCKET", &c.Query.DailyBucket)
	e.duration("QUERY_CACHE_TTL", &c.Query.CacheTTL)

	e.bool("AUTH_ENABLED", &c.Auth.Enabled)
	e.str("AUTH_SECRET", &c.Auth.Secret)
	e.str("AUTH_SECRET_FILE", &c.Auth.SecretFile)
	e.duration("AUTH_TOKEN_EXPIRY", &c.Auth.TokenExpiry)
	e.str("AUTH_USERNAME", &c.Auth.Username)
	e.str("AUTH_PASSWORD", &c.Auth.Password)

	e.str("LOG_LEVEL", &c.Log.Level)
	e.str("LOG_FORMAT", &c.Log.Format)

	return errors.Combine(e.errs...)
}

type envReader struct {
	lookup lookupFunc
	errs   []error
}

func (e *envReader) get(key string) (string, bool) {
	value, ok := e.lookup(EnvPrefix + key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(value), true
}

func (e *envReader) fail(key string, err error) {
	e.errs = append(e.errs, errors.Wrapf(err, "invalid value for %s%s", EnvPrefix, key))
}

func (e *envReader) str(key string, dst *string) {
	if value, ok := e.get(key); ok {
		*dst = value
	}
}

func (e *envReader) list(key string, dst *[]string) {
	value, ok := e.get(key)
	if !ok {
		return
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	*dst = items
}

func (e *envReader) int(key string, dst *int) {
	if value, ok := e.get(key); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			e.fail(key, err)
			return
		}
		*dst = parsed
	}
}

func (e *envReader) float(key string, dst *float64) {
	if value, ok := e.get(key); ok {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			e.fail(key, err)
			return
		}
		*dst = parsed
	}
}

func (e *envReader) bool(key string, dst *bool) {
	if value, ok := e.get(key); ok {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			e.fail(key, err)
			return
		}
		*dst = parsed
	}
}

func (e *envReader) duration(key string, dst *time.Duration) {
	if value, ok := e.get(key); ok {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			e.fail(key, err)
			return
		}
		*dst = parsed
	}
}
