package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the full runtime configuration, parsed once in main and passed
// into constructors. There is no ambient settings state anywhere else.
type Config struct {
	DBPath string `name:"db" env:"FIREWATCH_DB" default:"data/firewatch.db" help:"Path to the SQLite database."`
	Port   string `name:"port" env:"FIREWATCH_PORT" default:"8080" help:"HTTP read API port."`
	NoPoll bool   `name:"no-poll" env:"FIREWATCH_NO_POLL" help:"Disable polling (read API only)."`
	Once   bool   `name:"once" help:"Run a single ingestion cycle and exit."`

	StationsCSVPath       string `name:"stations-csv" env:"FIREWATCH_STATIONS_CSV" default:"data/stations_runtime.csv" help:"Primary station source-of-truth CSV."`
	StationsSourceCSVPath string `name:"stations-source-csv" env:"FIREWATCH_STATIONS_SOURCE_CSV" default:"data/stations.csv" help:"Fallback station CSV when the primary is missing."`
	StationIDsFile        string `name:"station-ids-file" env:"FIREWATCH_STATION_IDS_FILE" help:"Optional allowlist of station ids, one per line."`
	StationsCount         int    `name:"stations-count" env:"FIREWATCH_STATIONS_COUNT" default:"200" help:"Maximum stations loaded from the CSV."`

	PollInterval time.Duration `name:"poll-interval" env:"FIREWATCH_POLL_INTERVAL" default:"10m" help:"Time between ingestion cycles."`

	NoaaBaseURL    string        `name:"noaa-base-url" env:"FIREWATCH_NOAA_BASE_URL" default:"https://api.weather.gov" help:"Upstream weather API base URL."`
	NoaaUserAgent  string        `name:"noaa-user-agent" env:"FIREWATCH_NOAA_USER_AGENT" default:"firewatch/1.0 (contact: ops@rinconlabs.dev)" help:"User-Agent sent upstream."`
	NoaaRequireQC  bool          `name:"noaa-require-qc" env:"FIREWATCH_NOAA_REQUIRE_QC" default:"true" help:"Request only quality-controlled observations."`
	RequestTimeout time.Duration `name:"request-timeout" env:"FIREWATCH_REQUEST_TIMEOUT" default:"15s" help:"Per-request upstream timeout."`
	MaxRetries     int           `name:"max-retries" env:"FIREWATCH_MAX_RETRIES" default:"3" help:"Upstream attempts per call, including the first."`
	BackoffBase    float64       `name:"backoff-base" env:"FIREWATCH_BACKOFF_BASE" default:"1.5" help:"Exponential backoff base in seconds."`

	FeatureDays int     `name:"feature-days" env:"FIREWATCH_FEATURE_DAYS" default:"7" help:"Days of history per feature window."`
	FillValue   float64 `name:"fill-value" env:"FIREWATCH_FILL_VALUE" default:"0" help:"Substitute for missing feature values."`

	ModelArtifactDir string            `name:"model-artifact-dir" env:"FIREWATCH_MODEL_ARTIFACT_DIR" default:"data/models" help:"Directory holding classifier artifacts."`
	EnabledModelIDs  []string          `name:"enabled-models" env:"FIREWATCH_ENABLED_MODELS" default:"nb_balanced,rf_balanced,xgb_balanced,nb_unbalanced,rf_unbalanced,xgb_unbalanced" help:"Model ids to load at startup."`
	DefaultModelID   string            `name:"default-model" env:"FIREWATCH_DEFAULT_MODEL" default:"rf_unbalanced" help:"Model used when the read API gets no model_id."`
	Threshold        float64           `name:"threshold" env:"FIREWATCH_THRESHOLD" default:"0.5" help:"Probability threshold for label=1."`
	ModelThresholds  map[string]string `name:"model-thresholds" env:"FIREWATCH_MODEL_THRESHOLDS" help:"Optional per-model threshold overrides (model=value)."`
}

// Validate enforces the startup invariants. Any failure here is fatal before
// the first tick.
func (c *Config) Validate() error {
	if len(c.EnabledModelIDs) == 0 {
		return fmt.Errorf("enabled-models cannot be empty")
	}
	enabled := false
	for _, id := range c.EnabledModelIDs {
		if id == c.DefaultModelID {
			enabled = true
			break
		}
	}
	if !enabled {
		return fmt.Errorf("default-model %q must be included in enabled-models %s",
			c.DefaultModelID, strings.Join(c.EnabledModelIDs, ","))
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll-interval must be positive, got %s", c.PollInterval)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request-timeout must be positive, got %s", c.RequestTimeout)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("max-retries must be at least 1, got %d", c.MaxRetries)
	}
	if c.BackoffBase <= 0 {
		return fmt.Errorf("backoff-base must be positive, got %g", c.BackoffBase)
	}
	if c.FeatureDays < 1 {
		return fmt.Errorf("feature-days must be at least 1, got %d", c.FeatureDays)
	}
	if c.Threshold < 0 || c.Threshold > 1 {
		return fmt.Errorf("threshold must be in [0,1], got %g", c.Threshold)
	}
	if c.StationsCount < 1 {
		return fmt.Errorf("stations-count must be at least 1, got %d", c.StationsCount)
	}
	return nil
}
