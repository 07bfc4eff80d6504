package db

import (
	"fmt"
	"strings"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Dialector picks a gorm driver from the DSN.
//
//	postgres://... or postgresql://...   -> postgres
//	sqlite://<path>, file:..., :memory:  -> sqlite
//	mysql://<dsn> or a bare go-sql-driver DSN -> mysql
func Dialector(dsn string) (gorm.Dialector, string) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return postgres.Open(dsn), "postgres"
	case strings.HasPrefix(dsn, "sqlite://"):
		return gormsqlite.Open(strings.TrimPrefix(dsn, "sqlite://")), "sqlite"
	case strings.HasPrefix(dsn, "file:"), dsn == ":memory:":
		return gormsqlite.Open(dsn), "sqlite"
	case strings.HasPrefix(dsn, "mysql://"):
		return mysql.Open(strings.TrimPrefix(dsn, "mysql://")), "mysql"
	default:
		return mysql.Open(dsn), "mysql"
	}
}

// Connect opens the pool. Callers acquire connections per query through gorm;
// nothing here pins a connection.
func Connect(dsn string) (*gorm.DB, error) {
	dialector, driver := Dialector(dsn)

	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("db: open %s: %w", driver, err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("db: pool: %w", err)
	}
	if driver == "sqlite" {
		// single writer
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
	return gdb, nil
}
