package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig_DefaultsAndFile(t *testing.T) {
	req := require.New(t)
	dir := t.TempDir()
	yaml := `
server:
  http_address: ":18080"
auth:
  secret: "s3cret"
game:
  countdown_ticks: 3
  round_intermission: 500ms
`
	req.NoError(os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))

	cfg, err := LoadConfig(dir)
	req.NoError(err)

	req.Equal(":18080", cfg.Server.HTTPAddress)
	req.Equal(":9090", cfg.Server.RPCAddress)
	req.Equal(3, cfg.Game.CountdownTicks)
	req.Equal(500*time.Millisecond, cfg.Game.RoundIntermission)
	req.Equal(5*time.Minute, cfg.Game.RoomExpiry)
	req.Equal(10, cfg.Game.CodeAttempts)
	req.Equal("memory", cfg.Database.ContentSource)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	req := require.New(t)
	t.Setenv("QUIZ_AUTH_SECRET", "from-env")
	t.Setenv("QUIZ_GAME_COUNTDOWN_TICKS", "7")

	cfg, err := LoadConfig(t.TempDir())
	req.NoError(err)
	req.Equal("from-env", cfg.Auth.Secret)
	req.Equal(7, cfg.Game.CountdownTicks)
}

func TestLoadConfig_MissingSecret(t *testing.T) {
	_, err := LoadConfig(t.TempDir())
	require.Error(t, err)
}

func TestValidate_PostgresContentNeedsDatabase(t *testing.T) {
	cfg := Config{
		Auth:     AuthConfig{Secret: "x"},
		Database: DatabaseConfig{ContentSource: "postgres"},
		Game:     GameConfig{TickInterval: time.Second, CodeAttempts: 1},
	}
	require.Error(t, cfg.Validate())

	cfg.Database.Postgres.Enabled = true
	require.NoError(t, cfg.Validate())
}

// 房间码在 redis 里的过期时间必须比续期周期长
func TestValidate_RedisCodeTTLOutlivesSweep(t *testing.T) {
	req := require.New(t)
	cfg := Config{
		Auth:     AuthConfig{Secret: "x"},
		Redis:    RedisConfig{Address: "localhost:6379", CodeTTL: 10 * time.Second},
		Game:     GameConfig{TickInterval: time.Second, CodeAttempts: 1, SweepInterval: 30 * time.Second},
		Database: DatabaseConfig{ContentSource: "memory"},
	}
	req.Error(cfg.Validate())

	cfg.Game.SweepInterval = 0
	req.Error(cfg.Validate())

	cfg.Game.SweepInterval = 5 * time.Second
	req.NoError(cfg.Validate())

	cfg.Redis.Address = ""
	cfg.Game.SweepInterval = 0
	req.NoError(cfg.Validate())
}
