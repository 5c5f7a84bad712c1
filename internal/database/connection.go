package database

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DriverPgx    = "pgx"
	DriverLibPq  = "libpq"
	DriverSqlite = "sqlite"
)

type DatabaseConfig struct {
	Driver          string `env:"MAILINTAKE_DB_DRIVER" envDefault:"pgx"`
	Host            string `env:"MAILINTAKE_POSTGRES_HOST"`
	Port            string `env:"MAILINTAKE_POSTGRES_PORT" envDefault:"5432"`
	User            string `env:"MAILINTAKE_POSTGRES_USER"`
	DBName          string `env:"MAILINTAKE_POSTGRES_DB_NAME"`
	Password        string `env:"MAILINTAKE_POSTGRES_PASSWORD"`
	MaxConn         int    `env:"MAILINTAKE_POSTGRES_DB_MAX_CONN"`
	MaxIdleConn     int    `env:"MAILINTAKE_POSTGRES_DB_MAX_IDLE_CONN"`
	ConnMaxLifetime int    `env:"MAILINTAKE_POSTGRES_DB_CONN_MAX_LIFETIME"`
	LogLevel        string `env:"MAILINTAKE_DB_LOG_LEVEL" envDefault:"WARN"`
	SSLMode         string `env:"MAILINTAKE_POSTGRES_SSL_MODE" envDefault:"require"`
	SqlitePath      string `env:"MAILINTAKE_SQLITE_PATH" envDefault:"./data/mailintake.db"`
}

func NewConnection(dbConfig *DatabaseConfig) (*gorm.DB, error) {
	if err := validateConfig(dbConfig); err != nil {
		return nil, err
	}

	dialector, err := newDialector(dbConfig)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(gormLogLevel(dbConfig.LogLevel)),
		TranslateError: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	if dbConfig.Driver == DriverSqlite {
		// sqlite serialises writers, a single connection avoids SQLITE_BUSY
		sqlDB.SetMaxOpenConns(1)
		return db, nil
	}

	sqlDB.SetMaxIdleConns(orDefault(dbConfig.MaxIdleConn, 10))
	sqlDB.SetMaxOpenConns(orDefault(dbConfig.MaxConn, 50))
	sqlDB.SetConnMaxLifetime(time.Duration(orDefault(dbConfig.ConnMaxLifetime, 3600)) * time.Second)

	return db, nil
}

func newDialector(dbConfig *DatabaseConfig) (gorm.Dialector, error) {
	switch dbConfig.Driver {
	case DriverSqlite:
		return sqlite.Open(SqliteDSN(dbConfig.SqlitePath)), nil
	case DriverLibPq:
		return postgres.New(postgres.Config{DriverName: "postgres", DSN: postgresDSN(dbConfig)}), nil
	case DriverPgx, "":
		return postgres.Open(postgresDSN(dbConfig)), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", dbConfig.Driver)
	}
}

// SqliteDSN enables foreign keys so attachment rows cascade with their message.
func SqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path + "&_foreign_keys=on&_busy_timeout=5000"
	}
	return path + "?_foreign_keys=on&_busy_timeout=5000"
}

func postgresDSN(dbConfig *DatabaseConfig) string {
	port, _ := strconv.Atoi(dbConfig.Port)
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		dbConfig.Host, port, dbConfig.User, dbConfig.Password, dbConfig.DBName, dbConfig.SSLMode,
	)
}

func validateConfig(config *DatabaseConfig) error {
	if config == nil {
		return errors.New("database config is nil")
	}
	if config.Driver == DriverSqlite {
		if config.SqlitePath == "" {
			return errors.New("sqlite path config is empty")
		}
		return nil
	}
	switch {
	case config.Host == "":
		return errors.New("database host config is empty")
	case config.Port == "":
		return errors.New("database port config is empty")
	case config.User == "":
		return errors.New("database user config is empty")
	case config.DBName == "":
		return errors.New("database name config is empty")
	case config.SSLMode == "":
		return errors.New("database SSLMode config is empty")
	}
	if _, err := strconv.Atoi(config.Port); err != nil {
		return errors.Wrap(err, "invalid port number")
	}
	return nil
}

func gormLogLevel(level string) logger.LogLevel {
	switch strings.ToUpper(level) {
	case "SILENT":
		return logger.Silent
	case "ERROR":
		return logger.Error
	case "INFO":
		return logger.Info
	default:
		return logger.Warn
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
