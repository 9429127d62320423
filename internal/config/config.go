package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
)

type Config struct {
	ServerAddress string `env:"SERVER_ADDRESS" envDefault:"0.0.0.0:8080"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat     string `env:"LOG_FORMAT" envDefault:"json"`
	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"postgres"`
	SchedulerConfig
	PostgresConfig
}

func NewConfig() (*Config, error) {
	config := &Config{}

	err := env.Parse(config)
	if err != nil {
		err = fmt.Errorf("config.NewConfig: %w", err)
	}
	return config, err
}

type SchedulerConfig struct {
	ScanInterval       time.Duration `env:"SCAN_INTERVAL" envDefault:"1m"`
	StuckCheckInterval time.Duration `env:"STUCK_CHECK_INTERVAL" envDefault:"5m"`
	ScanTimeout        time.Duration `env:"SCAN_TIMEOUT" envDefault:"30s"`
}

type PostgresConfig struct {
	Conn            string `env:"POSTGRES_CONN" envDefault:"postgres://test:test@db:5432/test?sslmode=disable"`
	AutoMigrateUp   string `env:"AUTO_MIGRATE_UP" envDefault:"true"`
	AutoMigrateDown string `env:"AUTO_MIGRATE_DOWN" envDefault:"false"`
	MigrationsURL   string `env:"MIGRATIONS_URL" envDefault:"file://internal/repository/db/migrations"`
}

func NewPostgresConfig() (*PostgresConfig, error) {
	config := &PostgresConfig{}

	err := env.Parse(config)
	if err != nil {
		err = fmt.Errorf("config.NewPostgresConfig: %w", err)
	}
	return config, err
}
