package db

import (
	"fmt"
	"net"
	"strconv"

	mysqldrv "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Supported storage drivers.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
	DriverMemory = "memory"
)

// memoryDSN keeps a single shared in-memory SQLite database per process.
const memoryDSN = "file::memory:?cache=shared"

// DSN builds a MySQL DSN with parseTime enabled and a utf8mb4 charset.
func DSN(user, host string, port int, database string) string {
	cfg := mysqldrv.NewConfig()
	cfg.User = user
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	cfg.DBName = database
	cfg.ParseTime = true
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg.FormatDSN()
}

// ValidateDSN reports whether dsn is usable with driver.
func ValidateDSN(driver, dsn string) error {
	switch driver {
	case DriverMySQL:
		cfg, err := mysqldrv.ParseDSN(dsn)
		if err != nil {
			return fmt.Errorf("db: mysql dsn: %w", err)
		}
		if !cfg.ParseTime {
			return fmt.Errorf("db: mysql dsn: parseTime=true is required")
		}
	case DriverSQLite:
		if dsn == "" {
			return fmt.Errorf("db: sqlite dsn: path is required")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("db: unknown driver %q", driver)
	}
	return nil
}

// Connect opens a GORM connection for the given driver. For sqlite the dsn
// is a file path; memory ignores dsn.
func Connect(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	case DriverMySQL:
		dialector = mysql.Open(dsn)
	case DriverMemory:
		dialector = sqlite.Open(memoryDSN)
	default:
		return nil, fmt.Errorf("db: unknown driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("db: connect %s: %w", driver, err)
	}

	if driver != DriverMySQL {
		// SQLite allows one writer; a single connection also keeps the
		// in-memory database alive.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("db: connect %s: %w", driver, err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}
