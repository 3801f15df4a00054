// Package config resolves catstats settings from flags, CATSTATS_*
// environment variables, .env files and the yaml config file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/franz/catstats/internal/analytics"
	"github.com/franz/catstats/internal/catalog"
	"github.com/franz/catstats/internal/ingest"
	"github.com/franz/catstats/internal/query"
	"github.com/franz/catstats/internal/util"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "CATSTATS"

// FallbackAPIKeyEnv is read when no api.key is configured
const FallbackAPIKeyEnv = "ALMA_API_KEY"

// Config keys
const (
	KeyDB             = "db"
	KeyAPIBaseURL     = "api.base_url"
	KeyAPIKey         = "api.key"
	KeyAPITimeout     = "api.timeout"
	KeyAPIRPS         = "api.rps"
	KeyAPIReportPath  = "api.report_path"
	KeyAPIPageLimit   = "api.page_limit"
	KeyPolicy         = "ingest.policy"
	KeyMaxAttempts    = "ingest.max_attempts"
	KeyFirstYear      = "ingest.first_year"
	KeyLockTimeout    = "ingest.lock_timeout"
	KeyArtifacts      = "artifacts"
	KeyEventLevel     = "event_level"
	KeyLogFile        = "log_file"
	KeyServerAddr     = "server.addr"
	KeyNetworkDB      = "network_db"
	KeyDifficulties   = "difficulties"
	KeyColumns        = "columns"
	KeyVerbose        = "verbose"
	KeyQuiet          = "quiet"
	defaultDB         = "catstats.db"
	defaultArtifacts  = "artifacts"
	defaultServerAddr = ":8080"
)

// Settings is the resolved configuration
type Settings struct {
	DBPath       string
	APIBaseURL   string
	APIKey       string
	APITimeout   time.Duration
	APIRate      float64
	ReportPath   string
	PageLimit    int
	Policy       catalog.AggregationPolicy
	MaxAttempts  int
	FirstYear    int
	LockTimeout  time.Duration
	Artifacts    string
	EventLevel   string
	LogFile      string
	ServerAddr   string
	NetworkDB    bool
	Difficulties query.DifficultySets
	Columns      catalog.Columns
}

// LoadEnvFiles loads .env and .env.local without overriding variables
// already set in the environment
func LoadEnvFiles() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")
}

// SetDefaults registers defaults and environment binding on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyDB, defaultDB)
	v.SetDefault(KeyAPIBaseURL, analytics.DefaultBaseURL)
	v.SetDefault(KeyAPITimeout, analytics.DefaultTimeout)
	v.SetDefault(KeyAPIRPS, analytics.DefaultRequestsPerSecond)
	v.SetDefault(KeyAPIReportPath, ingest.DefaultReportPath)
	v.SetDefault(KeyAPIPageLimit, analytics.DefaultLimit)
	v.SetDefault(KeyPolicy, catalog.MultiValue.String())
	v.SetDefault(KeyMaxAttempts, 3)
	v.SetDefault(KeyFirstYear, ingest.FirstYear)
	v.SetDefault(KeyLockTimeout, time.Duration(0))
	v.SetDefault(KeyArtifacts, defaultArtifacts)
	v.SetDefault(KeyEventLevel, "info")
	v.SetDefault(KeyServerAddr, defaultServerAddr)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load resolves Settings from v
func Load(v *viper.Viper) (*Settings, error) {
	policy, err := catalog.ParsePolicy(v.GetString(KeyPolicy))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", util.ErrInvalidConfig, KeyPolicy, err)
	}

	s := &Settings{
		DBPath:      v.GetString(KeyDB),
		APIBaseURL:  v.GetString(KeyAPIBaseURL),
		APIKey:      strings.TrimSpace(v.GetString(KeyAPIKey)),
		APITimeout:  v.GetDuration(KeyAPITimeout),
		APIRate:     v.GetFloat64(KeyAPIRPS),
		ReportPath:  v.GetString(KeyAPIReportPath),
		PageLimit:   v.GetInt(KeyAPIPageLimit),
		Policy:      policy,
		MaxAttempts: v.GetInt(KeyMaxAttempts),
		FirstYear:   v.GetInt(KeyFirstYear),
		LockTimeout: v.GetDuration(KeyLockTimeout),
		Artifacts:   v.GetString(KeyArtifacts),
		EventLevel:  v.GetString(KeyEventLevel),
		LogFile:     v.GetString(KeyLogFile),
		ServerAddr:  v.GetString(KeyServerAddr),
		NetworkDB:   v.GetBool(KeyNetworkDB),
	}

	if s.APIKey == "" {
		s.APIKey = strings.TrimSpace(os.Getenv(FallbackAPIKeyEnv))
	}

	if err := v.UnmarshalKey(KeyColumns, &s.Columns); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", util.ErrInvalidConfig, KeyColumns, err)
	}

	override := make(map[string][]string)
	for report := range v.GetStringMap(KeyDifficulties) {
		override[report] = v.GetStringSlice(KeyDifficulties + "." + report)
	}
	s.Difficulties = query.DefaultDifficultySets().Merge(override)

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks settings that do not depend on the API key
func (s *Settings) Validate() error {
	if s.DBPath == "" {
		return fmt.Errorf("%w: %s is empty", util.ErrInvalidConfig, KeyDB)
	}
	if s.MaxAttempts < 1 {
		return fmt.Errorf("%w: %s must be at least 1", util.ErrInvalidConfig, KeyMaxAttempts)
	}
	if s.PageLimit < 25 || s.PageLimit > 1000 {
		return fmt.Errorf("%w: %s must be between 25 and 1000", util.ErrInvalidConfig, KeyAPIPageLimit)
	}
	if s.FirstYear < 1900 || s.FirstYear > time.Now().Year() {
		return fmt.Errorf("%w: %s %d out of range", util.ErrInvalidConfig, KeyFirstYear, s.FirstYear)
	}
	for report := range s.Difficulties {
		if _, ok := query.LookupReport(report); !ok {
			return fmt.Errorf("%w: difficulties for unknown report %q", util.ErrInvalidConfig, report)
		}
	}
	return nil
}

// RequireAPIKey fails when no API key was configured
func (s *Settings) RequireAPIKey() error {
	if s.APIKey == "" {
		return fmt.Errorf("%w: no API key (set %s_API_KEY or %s)", util.ErrInvalidConfig, EnvPrefix, FallbackAPIKeyEnv)
	}
	return nil
}

// ClientConfig returns the analytics client configuration
func (s *Settings) ClientConfig() analytics.ClientConfig {
	return analytics.ClientConfig{
		BaseURL:           s.APIBaseURL,
		APIKey:            s.APIKey,
		Timeout:           s.APITimeout,
		RequestsPerSecond: s.APIRate,
		UserAgent:         "catstats",
	}
}

// RetryConfig returns the period retry configuration
func (s *Settings) RetryConfig() *util.RetryConfig {
	cfg := util.PeriodRetryConfig()
	cfg.MaxAttempts = s.MaxAttempts
	return cfg
}

// LockPath returns the lock file guarding the database
func (s *Settings) LockPath() string {
	return util.LockPathFor(s.DBPath)
}

// SummaryPath returns where the run summary for runID is written
func (s *Settings) SummaryPath(runID string) string {
	return filepath.Join(s.Artifacts, fmt.Sprintf("run-%s.md", runID))
}

// MaskedAPIKey returns the API key with all but the last four characters hidden
func (s *Settings) MaskedAPIKey() string {
	return MaskKey(s.APIKey)
}

// MaskKey hides all but the last four characters of a secret
func MaskKey(key string) string {
	if key == "" {
		return "(not set)"
	}
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", len(key)-4) + key[len(key)-4:]
}
