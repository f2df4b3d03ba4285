package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Game     GameConfig     `mapstructure:"game"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	HTTPAddress     string        `mapstructure:"http_address"`
	RPCAddress      string        `mapstructure:"rpc_address"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	HeartbeatPeriod time.Duration `mapstructure:"heartbeat_period"`
}

type DatabaseConfig struct {
	// ContentSource is "memory" or "postgres".
	ContentSource string         `mapstructure:"content_source"`
	Postgres      PostgresConfig `mapstructure:"postgres"`
	// SQLitePath holds scores when postgres is disabled.
	SQLitePath string `mapstructure:"sqlite_path"`
}

type PostgresConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

// RedisConfig enables the cross-instance relay and code reservation when Address is set.
type RedisConfig struct {
	Address string        `mapstructure:"address"`
	Channel string        `mapstructure:"channel"`
	Prefix  string        `mapstructure:"prefix"`
	CodeTTL time.Duration `mapstructure:"code_ttl"`
}

type AuthConfig struct {
	Secret string `mapstructure:"secret"`
}

// GameConfig 房间与回合的时间参数
type GameConfig struct {
	CountdownTicks    int           `mapstructure:"countdown_ticks"`
	TickInterval      time.Duration `mapstructure:"tick_interval"`
	RoomExpiry        time.Duration `mapstructure:"room_expiry"`
	ResultsGrace      time.Duration `mapstructure:"results_grace"`
	RoundIntermission time.Duration `mapstructure:"round_intermission"`
	CodeAttempts      int           `mapstructure:"code_attempts"`
	SweepInterval     time.Duration `mapstructure:"sweep_interval"`
	TimerResolution   time.Duration `mapstructure:"timer_resolution"`
	PersistTimeout    time.Duration `mapstructure:"persist_timeout"`
	SubscriberBuffer  int           `mapstructure:"subscriber_buffer"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_address", ":8080")
	v.SetDefault("server.rpc_address", ":9090")
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.heartbeat_period", 30*time.Second)

	v.SetDefault("database.content_source", "memory")
	v.SetDefault("database.postgres.enabled", false)
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "quiz")
	v.SetDefault("database.postgres.password", "quiz")
	v.SetDefault("database.postgres.dbname", "quiz")
	v.SetDefault("database.sqlite_path", "quizserver.db")

	v.SetDefault("redis.address", "")
	v.SetDefault("redis.channel", "quizserver:events")
	v.SetDefault("redis.prefix", "quizserver:room:")
	v.SetDefault("redis.code_ttl", 12*time.Hour)

	v.SetDefault("auth.secret", "")

	v.SetDefault("game.countdown_ticks", 5)
	v.SetDefault("game.tick_interval", time.Second)
	v.SetDefault("game.room_expiry", 5*time.Minute)
	v.SetDefault("game.results_grace", 2*time.Minute)
	v.SetDefault("game.round_intermission", 3*time.Second)
	v.SetDefault("game.code_attempts", 10)
	v.SetDefault("game.sweep_interval", 30*time.Second)
	v.SetDefault("game.timer_resolution", 50*time.Millisecond)
	v.SetDefault("game.persist_timeout", 5*time.Second)
	v.SetDefault("game.subscriber_buffer", 256)

	v.SetDefault("log.level", "info")
}

// LoadConfig reads config.yaml from path (optional) and applies QUIZ_* environment overrides,
// e.g. QUIZ_GAME_COUNTDOWN_TICKS=3.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("QUIZ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the room engine cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Auth.Secret == "":
		return errors.New("auth.secret is required")
	case c.Game.CountdownTicks < 0:
		return errors.New("game.countdown_ticks must not be negative")
	case c.Game.TickInterval <= 0:
		return errors.New("game.tick_interval must be positive")
	case c.Redis.Address != "" && (c.Game.SweepInterval <= 0 || c.Redis.CodeTTL <= c.Game.SweepInterval):
		return errors.New("redis needs a positive game.sweep_interval shorter than redis.code_ttl")
	case c.Game.CodeAttempts < 1:
		return errors.New("game.code_attempts must be at least 1")
	case c.Database.ContentSource != "memory" && c.Database.ContentSource != "postgres":
		return errors.New("database.content_source must be memory or postgres")
	case c.Database.ContentSource == "postgres" && !c.Database.Postgres.Enabled:
		return errors.New("database.content_source postgres requires database.postgres.enabled")
	}
	return nil
}
