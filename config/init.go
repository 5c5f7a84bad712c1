package config

import (
	"log"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	"github.com/customeros/mailintake/internal/database"
	"github.com/customeros/mailintake/internal/logger"
	"github.com/customeros/mailintake/internal/tracing"
)

type Config struct {
	AppConfig      *AppConfig
	Logger         *logger.Config
	Tracing        *tracing.JaegerConfig
	DatabaseConfig *database.DatabaseConfig
	IngestConfig   *IngestConfig
	StorageConfig  *StorageConfig
	RedisConfig    *RedisConfig
}

func InitConfig() (*Config, error) {
	config := &Config{
		AppConfig:      &AppConfig{},
		Logger:         &logger.Config{},
		Tracing:        &tracing.JaegerConfig{},
		DatabaseConfig: &database.DatabaseConfig{},
		IngestConfig:   &IngestConfig{},
		StorageConfig:  &StorageConfig{},
		RedisConfig:    &RedisConfig{},
	}

	err := godotenv.Load()
	if err != nil {
		log.Print("Unable to load .env file")
	}

	err = env.Parse(config)
	if err != nil {
		return nil, err
	}
	config.IngestConfig.Normalize()

	return config, nil
}
