package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"competitive-insights/models"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	t.Setenv("LLM_ENABLED", "")
	t.Setenv("RATE_LIMIT_TIER", "")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, time.Hour, cfg.Cache.AnalysisTTL)
	assert.Equal(t, 24*time.Hour, cfg.Cache.ReportTTL)
	assert.Equal(t, 5*time.Minute, cfg.Cache.AlertsTTL)
	assert.False(t, cfg.RateLimit.FailOpen)
	assert.Equal(t, "pro", cfg.RateLimit.Tier)
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("DB_PORT", "6543")
	t.Setenv("CACHE_ANALYSIS_TTL", "10m")
	t.Setenv("RATE_LIMIT_FAIL_OPEN", "yes")
	t.Setenv("MONITOR_INTERVAL", "not-a-duration")
	t.Setenv("RATE_LIMIT_TIER", "enterprise")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, 10*time.Minute, cfg.Cache.AnalysisTTL)
	assert.True(t, cfg.RateLimit.FailOpen)
	assert.Equal(t, 15*time.Minute, cfg.Monitor.Interval)
	assert.Equal(t, "enterprise", cfg.RateLimit.Tier)
}

func TestLoadFromEnv_Invalid(t *testing.T) {
	t.Run("llm without key", func(t *testing.T) {
		t.Setenv("LLM_ENABLED", "true")
		t.Setenv("LLM_API_KEY", "")
		_, err := LoadFromEnv()
		assert.Error(t, err)
	})
	t.Run("unknown tier", func(t *testing.T) {
		t.Setenv("RATE_LIMIT_TIER", "platinum")
		_, err := LoadFromEnv()
		assert.Error(t, err)
	})
}

func TestParseThresholdsYAML(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		want    models.AnomalyThresholds
		wantErr bool
	}{
		{
			name: "empty document uses defaults",
			doc:  "",
			want: models.DefaultThresholds(),
		},
		{
			name: "partial override",
			doc:  "price_pct: 0.05\nreview_spike: 250\n",
			want: models.AnomalyThresholds{PricePct: 0.05, BSRPct: 0.20, RatingDelta: 0.5, ReviewSpike: 250},
		},
		{
			name:    "unknown key rejected",
			doc:     "price_pct: 0.05\nprice_percent: 5\n",
			wantErr: true,
		},
		{
			name:    "negative rejected",
			doc:     "bsr_pct: -0.1\n",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseThresholdsYAML([]byte(tt.doc))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, models.IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadThresholds_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "thresholds.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rating_delta: 0.3\n"), 0o600))

	got, err := LoadThresholds(path)
	require.NoError(t, err)
	assert.Equal(t, 0.3, got.RatingDelta)

	got, err = LoadThresholds("")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultThresholds(), got)

	_, err = LoadThresholds(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
