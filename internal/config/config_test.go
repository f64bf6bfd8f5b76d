package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forestlog/internal/game"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	rules := cfg.Rules()
	assert.Equal(t, 500, rules.PointsPerLevel)
	assert.Equal(t, game.PointRange{Min: 60, Max: 150}, rules.EffortPoints[game.EffortOak])
	require.Len(t, rules.Milestones, 4)
	assert.Equal(t, "7-Day Warrior", rules.Milestones[1].BadgeName)
	assert.Equal(t, time.UTC, cfg.Location())
	assert.Equal(t, 168*time.Hour, cfg.TokenTTL())
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr)
	assert.Equal(t, "/api/v1", cfg.Server.BasePath)
}

func TestFromYAMLOverridesDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte(`
game:
  timezone: Europe/Paris
  points_per_level: 100
  milestones:
    - threshold: 2
      badge: Twice
auth:
  token_ttl: 1h
webhooks:
  - url: http://localhost:9999/hook
    events: [log.created]
`))
	require.NoError(t, err)
	assert.Equal(t, "Europe/Paris", cfg.Location().String())
	assert.Equal(t, time.Hour, cfg.TokenTTL())

	rules := cfg.Rules()
	assert.Equal(t, 100, rules.PointsPerLevel)
	assert.Equal(t, game.PointRange{Min: 5, Max: 15}, rules.EffortPoints[game.EffortSeed], "effort defaults kept")
	require.Len(t, rules.Milestones, 1)
	assert.Equal(t, game.BadgeTypeStreak, rules.Milestones[0].BadgeType)
	require.Len(t, cfg.Webhooks, 1)
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cases := map[string]string{
		"timezone":     "game:\n  timezone: Mars/Olympus\n",
		"level":        "game:\n  points_per_level: -1\n",
		"effort range": "game:\n  effort:\n    oak:\n      min: 10\n      max: 5\n",
		"effort name":  "game:\n  effort:\n    redwood:\n      min: 1\n      max: 2\n",
		"badge dup":    "game:\n  milestones:\n    - {threshold: 3, badge: a}\n    - {threshold: 4, badge: a}\n",
		"ttl":          "auth:\n  token_ttl: forever\n",
		"webhook":      "webhooks:\n  - events: [log.created]\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromYAML([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestWriteDefaultAndLoad(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(dir)
	require.Error(t, err)

	cfg, err := LoadOptional(dir)
	require.NoError(t, err)
	assert.Nil(t, cfg)

	path, err := WriteDefault(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, FileName), path)

	require.NoError(t, os.WriteFile(path, []byte("game:\n  points_per_level: 42\n"), 0o644))
	_, err = WriteDefault(dir)
	require.NoError(t, err)

	cfg, err = Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.Game.PointsPerLevel, "existing config is not overwritten")
}
