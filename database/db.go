/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package database

import (
	"database/sql"
	"embed"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	migrate "github.com/rubenv/sql-migrate"

	"github.com/blnkfinance/payrecon/config"
)

// Supported SQL dialects, named as sql-migrate names them.
const (
	DialectPostgres = "postgres"
	DialectMySQL    = "mysql"
	DialectSQLite   = "sqlite3"
)

//go:embed sql
var SQLFiles embed.FS

// Ensure the instance is not accessible outside the package.
var instance IDataSource
var once sync.Once

// NewDataSource opens the blob store selected by the scheme of the
// configured data source DNS and returns a process-wide instance.
func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	var err error
	once.Do(func() {
		ds, errConn := Open(configuration)
		if errConn != nil {
			err = errConn
			return
		}
		instance = ds
	})
	if err != nil {
		once = sync.Once{}
		return nil, err
	}
	return instance, nil
}

// Open builds a new blob store without touching the shared instance.
func Open(configuration *config.Configuration) (IDataSource, error) {
	dns := configuration.DataSource.Dns
	scheme := dns
	if i := strings.Index(dns, "://"); i >= 0 {
		scheme = dns[:i]
	}

	switch scheme {
	case "file":
		return NewFileStore(strings.TrimPrefix(dns, "file://"))
	case "redis", "rediss":
		return NewRedisStore(dns, configuration.Redis.SkipTLSVerify)
	case "postgres", "postgresql", "mysql", "sqlite", "sqlite3":
		db, dialect, err := ConnectDB(dns)
		if err != nil {
			return nil, err
		}
		if _, err := Migrate(db, dialect, migrate.Up); err != nil {
			_ = db.Close()
			return nil, err
		}
		return &Datasource{Conn: db, Dialect: dialect}, nil
	default:
		return nil, fmt.Errorf("unsupported data source %q", scheme)
	}
}

// ConnectDB opens and pings a SQL database, reporting the dialect it speaks.
func ConnectDB(dns string) (*sql.DB, string, error) {
	driver, dsn, dialect, err := driverFor(dns)
	if err != nil {
		return nil, "", err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, "", err
	}
	err = db.Ping()
	if err != nil {
		log.Printf("database Connection error ❌: %v", err)
		_ = db.Close()
		return nil, "", err
	}
	if dialect == DialectSQLite {
		db.SetMaxOpenConns(1)
	}
	return db, dialect, nil
}

func driverFor(dns string) (driver, dsn, dialect string, err error) {
	switch {
	case strings.HasPrefix(dns, "postgres://"), strings.HasPrefix(dns, "postgresql://"):
		return "postgres", dns, DialectPostgres, nil
	case strings.HasPrefix(dns, "mysql://"):
		cfg, err := mysql.ParseDSN(strings.TrimPrefix(dns, "mysql://"))
		if err != nil {
			return "", "", "", errors.Wrap(err, "parsing mysql dsn")
		}
		cfg.ParseTime = true
		cfg.Loc = time.UTC
		return "mysql", cfg.FormatDSN(), DialectMySQL, nil
	case strings.HasPrefix(dns, "sqlite://"), strings.HasPrefix(dns, "sqlite3://"):
		u, err := url.Parse(dns)
		if err != nil {
			return "", "", "", errors.Wrap(err, "parsing sqlite dsn")
		}
		path := u.Host + u.Path
		if path == "" {
			return "", "", "", errors.New("sqlite dsn has no path")
		}
		return "sqlite3", path, DialectSQLite, nil
	}
	return "", "", "", fmt.Errorf("unsupported sql dsn %q", dns)
}

// Migrations returns the embedded migrations of a dialect.
func Migrations(dialect string) migrate.MigrationSource {
	return migrate.EmbedFileSystemMigrationSource{
		FileSystem: SQLFiles,
		Root:       "sql/" + dialect,
	}
}

// Migrate applies or rolls back the embedded migrations.
func Migrate(db *sql.DB, dialect string, direction migrate.MigrationDirection) (int, error) {
	n, err := migrate.Exec(db, dialect, Migrations(dialect), direction)
	if err != nil {
		return 0, errors.Wrapf(err, "running %s migrations", dialect)
	}
	return n, nil
}
