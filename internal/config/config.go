// Package config loads and validates harvester configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/JakeFAU/org-harvester/internal/harvest"
)

// EnvPrefix is prepended to environment overrides, e.g. HARVESTER_PIPELINE_CONCURRENCY.
const EnvPrefix = "HARVESTER"

// DefaultUserAgent identifies the harvester when the config does not.
const DefaultUserAgent = "OrgHarvester/1.0 (+https://github.com/JakeFAU/org-harvester)"

// Config captures all harvester configuration knobs loaded via Viper.
type Config struct {
	UserAgent  string                 `mapstructure:"user_agent" validate:"required"`
	Logging    LoggingConfig          `mapstructure:"logging"`
	HTTP       HTTPConfig             `mapstructure:"http"`
	Politeness PolitenessConfig       `mapstructure:"politeness"`
	Pipeline   PipelineConfig         `mapstructure:"pipeline"`
	Enrich     EnrichConfig           `mapstructure:"enrich"`
	Sources    []harvest.SourceConfig `mapstructure:"sources" validate:"required,min=1,dive"`
}

// LoggingConfig toggles zap development features and the optional file sink.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	File        string `mapstructure:"file"`
	MaxSizeMB   int    `mapstructure:"max_size_mb" validate:"gte=0"`
	MaxBackups  int    `mapstructure:"max_backups" validate:"gte=0"`
	MaxAgeDays  int    `mapstructure:"max_age_days" validate:"gte=0"`
}

// HTTPConfig bounds individual fetches.
type HTTPConfig struct {
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
	MaxBodyBytes   int           `mapstructure:"max_body_bytes" validate:"gt=0"`
}

// PolitenessConfig governs the robots and rate gate.
type PolitenessConfig struct {
	MinInterval          time.Duration `mapstructure:"min_interval" validate:"gt=0"`
	MaxRequestsPerSecond float64       `mapstructure:"max_requests_per_second" validate:"gte=0"`
	StrictRobots         bool          `mapstructure:"strict_robots"`
	MaxCrawlDelay        time.Duration `mapstructure:"max_crawl_delay" validate:"gte=0"`
	RobotsTimeout        time.Duration `mapstructure:"robots_timeout" validate:"gte=0"`
}

// PipelineConfig controls the orchestrator.
type PipelineConfig struct {
	Concurrency int  `mapstructure:"concurrency" validate:"gte=1"`
	MaxRecords  int  `mapstructure:"max_records" validate:"gte=0"`
	Dedupe      bool `mapstructure:"dedupe"`
	Fsync       bool `mapstructure:"fsync"`
}

// EnrichConfig bounds careers-page discovery.
type EnrichConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout" validate:"gt=0"`
	MaxProbes    int           `mapstructure:"max_probes" validate:"gte=1"`
	MaxAnchors   int           `mapstructure:"max_anchors" validate:"gte=0"`
}

// Load builds a Config from disk and environment. Every failure is a
// *harvest.ConfigError.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, &harvest.ConfigError{Field: "file", Err: fmt.Errorf("read config: %w", err)}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, &harvest.ConfigError{Err: fmt.Errorf("unmarshal config: %w", err)}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("user_agent", DefaultUserAgent)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 28)
	v.SetDefault("http.request_timeout", "15s")
	v.SetDefault("http.max_body_bytes", 10<<20)
	v.SetDefault("politeness.min_interval", "1s")
	v.SetDefault("politeness.max_requests_per_second", 0)
	v.SetDefault("politeness.strict_robots", false)
	v.SetDefault("politeness.max_crawl_delay", "30s")
	v.SetDefault("politeness.robots_timeout", "10s")
	v.SetDefault("pipeline.concurrency", 4)
	v.SetDefault("pipeline.max_records", 0)
	v.SetDefault("pipeline.dedupe", false)
	v.SetDefault("pipeline.fsync", true)
	v.SetDefault("enrich.enabled", true)
	v.SetDefault("enrich.probe_timeout", "8s")
	v.SetDefault("enrich.max_probes", 8)
	v.SetDefault("enrich.max_anchors", 2)
}

// Validate enforces required values, reasonable limits and cross-field rules
// the struct tags cannot express.
func (c Config) Validate() error {
	if err := newValidator().Struct(c); err != nil {
		return validationError(err)
	}

	seen := make(map[string]int, len(c.Sources))
	for i, src := range c.Sources {
		field := fmt.Sprintf("sources[%d]", i)
		name := strings.TrimSpace(src.Name)
		if prev, dup := seen[name]; dup {
			return &harvest.ConfigError{
				Field: field + ".name",
				Err:   fmt.Errorf("duplicate source name %q (also sources[%d])", name, prev),
			}
		}
		seen[name] = i

		if src.URL != "" && src.Path != "" {
			return &harvest.ConfigError{Field: field, Err: errors.New("set url or path, not both")}
		}
		if src.URL != "" {
			if err := checkHTTPURL(src.URL); err != nil {
				return &harvest.ConfigError{Field: field + ".url", Err: err}
			}
		}
		if src.Type == harvest.SourceTypeYCLocation && src.URL == "" {
			return &harvest.ConfigError{Field: field + ".url", Err: errors.New("yc_location sources need a url")}
		}
		if src.Type == harvest.SourceTypeDirectory {
			if src.URL == "" {
				return &harvest.ConfigError{Field: field + ".url", Err: errors.New("directory sources need a url")}
			}
			if strings.TrimSpace(src.Selectors.Item) == "" {
				return &harvest.ConfigError{Field: field + ".selectors.item", Err: errors.New("directory sources need an item selector")}
			}
		}
		if err := checkMapping(src.Columns); err != nil {
			return &harvest.ConfigError{Field: field + ".columns", Err: err}
		}
		if err := checkMapping(src.Fields); err != nil {
			return &harvest.ConfigError{Field: field + ".fields", Err: err}
		}
	}
	return nil
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationError reports the first failing field using config key names.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &harvest.ConfigError{Err: err}
	}
	fe := verrs[0]
	field := fe.Namespace()
	if idx := strings.Index(field, "."); idx >= 0 {
		field = field[idx+1:]
	}
	msg := fmt.Sprintf("failed %q", fe.Tag())
	if fe.Param() != "" {
		msg = fmt.Sprintf("failed %q (%s)", fe.Tag(), fe.Param())
	}
	return &harvest.ConfigError{Field: field, Err: errors.New(msg)}
}

func checkHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("url has no host")
	}
	return nil
}

func checkMapping(mapping map[string]string) error {
	for key := range mapping {
		switch key {
		case harvest.FieldName, harvest.FieldWebsite, harvest.FieldInfo:
		default:
			return fmt.Errorf("unknown field %q, want one of %s", key, strings.Join(harvest.CanonicalFields, ", "))
		}
	}
	return nil
}
