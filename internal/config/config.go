package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Storage  StorageConfig  `mapstructure:"storage"`
	DB       DBConfig       `mapstructure:"db"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Sequence SequenceConfig `mapstructure:"sequence"`
	Oracle   OracleConfig   `mapstructure:"oracle"`
	Raffle   RaffleConfig   `mapstructure:"raffle"`
	Keeper   KeeperConfig   `mapstructure:"keeper"`
	Bank     BankConfig     `mapstructure:"bank"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Verbose bool   `mapstructure:"verbose"`
	File    string `mapstructure:"file"`
}

type StorageConfig struct {
	// Driver is "memory" or "postgres".
	Driver string `mapstructure:"driver"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type SequenceConfig struct {
	// Driver is "memory", "redis" or "postgres".
	Driver string `mapstructure:"driver"`
	Key    string `mapstructure:"key"`
}

type OracleConfig struct {
	// Driver is "memory" or "redis".
	Driver    string `mapstructure:"driver"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type RaffleConfig struct {
	MaxRandomnessAge   time.Duration `mapstructure:"max_randomness_age"`
	DisputeWindow      time.Duration `mapstructure:"dispute_window"`
	DeliveryConfirmers []string      `mapstructure:"delivery_confirmers"`
}

type KeeperConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Schedule  string `mapstructure:"schedule"`
	Identity  string `mapstructure:"identity"`
	OracleRef string `mapstructure:"oracle_ref"`
}

type BankConfig struct {
	FaucetEnabled bool `mapstructure:"faucet_enabled"`
}

// Load reads path (unless envOnly) and applies RAFFLE_ environment overrides
// on top of the defaults.
func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RAFFLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.verbose", false)
	v.SetDefault("log.file", "")
	v.SetDefault("storage.driver", "memory")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("sequence.driver", "memory")
	v.SetDefault("sequence.key", "raffle:counter")
	v.SetDefault("oracle.driver", "memory")
	v.SetDefault("oracle.key_prefix", "oracle:")
	v.SetDefault("raffle.max_randomness_age", "60s")
	v.SetDefault("raffle.dispute_window", "720h")
	v.SetDefault("raffle.delivery_confirmers", []string{})
	v.SetDefault("keeper.enabled", false)
	v.SetDefault("keeper.schedule", "@every 30s")
	v.SetDefault("keeper.identity", "")
	v.SetDefault("keeper.oracle_ref", "")
	v.SetDefault("bank.faucet_enabled", true)

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
