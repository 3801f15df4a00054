package config

import (
	"strings"
	"testing"
	"time"

	"github.com/franz/catstats/internal/catalog"
	"github.com/franz/catstats/internal/util"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper(t *testing.T) *viper.Viper {
	t.Helper()
	t.Setenv(FallbackAPIKeyEnv, "")
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestLoadDefaults(t *testing.T) {
	v := newViper(t)

	s, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "catstats.db", s.DBPath)
	assert.Equal(t, catalog.MultiValue, s.Policy)
	assert.Equal(t, 3, s.MaxAttempts)
	assert.Equal(t, 2007, s.FirstYear)
	assert.Equal(t, 1000, s.PageLimit)
	assert.Equal(t, 5*time.Minute, s.APITimeout)
	assert.Equal(t, ":8080", s.ServerAddr)
	assert.Empty(t, s.APIKey)
	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, s.Difficulties.For("01"))
	assert.Equal(t, "catstats.db.lock", s.LockPath())
}

func TestLoadEnvironment(t *testing.T) {
	v := newViper(t)
	t.Setenv("CATSTATS_API_KEY", "  l8xx0123456789  ")
	t.Setenv("CATSTATS_INGEST_POLICY", "joined")
	t.Setenv("CATSTATS_INGEST_MAX_ATTEMPTS", "5")

	s, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "l8xx0123456789", s.APIKey)
	assert.Equal(t, catalog.CommaJoinedSingleValue, s.Policy)
	assert.Equal(t, 5, s.RetryConfig().MaxAttempts)
	assert.NoError(t, s.RequireAPIKey())
}

func TestLoadFallbackAPIKey(t *testing.T) {
	v := newViper(t)
	t.Setenv(FallbackAPIKeyEnv, "fallback-key")

	s, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "fallback-key", s.APIKey)
}

func TestLoadConfigFile(t *testing.T) {
	v := newViper(t)
	v.SetConfigType("yaml")
	yaml := `
db: /data/stats.db
api:
  page_limit: 500
  timeout: 90s
difficulties:
  "05": ["7", "8"]
columns:
  field_text: Local Param 03
`
	require.NoError(t, v.ReadConfig(strings.NewReader(yaml)))

	s, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "/data/stats.db", s.DBPath)
	assert.Equal(t, 500, s.PageLimit)
	assert.Equal(t, 90*time.Second, s.APITimeout)
	assert.Equal(t, []string{"7", "8"}, s.Difficulties.For("05"))
	assert.Equal(t, []string{"6", "7", "8", "9"}, s.Difficulties.For("04"))
	assert.Equal(t, "Local Param 03", s.Columns.FieldText)
	assert.Empty(t, s.Columns.MMSID, "unset columns fall back to the normalizer defaults")
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value interface{}
	}{
		{"bad policy", KeyPolicy, "sometimes"},
		{"zero attempts", KeyMaxAttempts, 0},
		{"page limit too large", KeyAPIPageLimit, 5000},
		{"first year in future", KeyFirstYear, time.Now().Year() + 1},
		{"empty db", KeyDB, ""},
		{"unknown report", KeyDifficulties, map[string]interface{}{"99": []string{"1"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newViper(t)
			v.Set(tt.key, tt.value)

			_, err := Load(v)
			require.Error(t, err)
			assert.ErrorIs(t, err, util.ErrInvalidConfig)
		})
	}
}

func TestRequireAPIKey(t *testing.T) {
	s := &Settings{}
	err := s.RequireAPIKey()
	require.Error(t, err)
	assert.ErrorIs(t, err, util.ErrInvalidConfig)
	assert.Contains(t, err.Error(), "CATSTATS_API_KEY")
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "(not set)", MaskKey(""))
	assert.Equal(t, "***", MaskKey("abc"))
	assert.Equal(t, "******6789", MaskKey("0123456789"))
}

func TestClientConfigAndPaths(t *testing.T) {
	s := &Settings{
		APIBaseURL: "https://example.test",
		APIKey:     "k",
		APITimeout: time.Second,
		APIRate:    2,
		Artifacts:  "out",
	}

	cc := s.ClientConfig()
	assert.Equal(t, "https://example.test", cc.BaseURL)
	assert.Equal(t, "k", cc.APIKey)
	assert.Equal(t, 2.0, cc.RequestsPerSecond)
	assert.Equal(t, "out/run-abc.md", s.SummaryPath("abc"))
}
