package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // Enable sqlite3 driver
	"github.com/myrjola/clustereval/internal/errors"
	"github.com/myrjola/clustereval/internal/random"
)

//go:embed schema.sql
var schemaDefinition string

type Database struct {
	ReadWrite *sql.DB
	ReadOnly  *sql.DB
	logger    *slog.Logger
}

// NewDatabase connects to database and synchronizes the schema.
//
// The url parameter is the path to the SQLite database file or ":memory:" for an in-memory database.
func NewDatabase(ctx context.Context, url string, logger *slog.Logger) (*Database, error) {
	db, err := connect(url, logger)
	if err != nil {
		return nil, errors.Wrap(err, "connect", slog.String("url", url))
	}

	if err = db.migrateTo(ctx, schemaDefinition); err != nil {
		return nil, errors.Wrap(err, "synchronize schema")
	}

	go db.startDatabaseOptimizer(ctx)

	return db, nil
}

// connect establishes two connection pools, one for read/write operations and one for read-only operations.
//
// A single writer connection avoids SQLITE_BUSY errors, see
// https://github.com/mattn/go-sqlite3/issues/1179#issuecomment-1638083995.
func connect(url string, logger *slog.Logger) (*Database, error) {
	var (
		err         error
		readWriteDB *sql.DB
		readDB      *sql.DB
	)

	// In-memory databases need shared cache so that both pools see the same data. Every in-memory database gets a
	// random name so that parallel tests don't share data. See https://www.sqlite.org/inmemorydb.html.
	extraConfig := ""
	if strings.Contains(url, ":memory:") {
		var name string
		if name, err = random.Letters(20); err != nil { //nolint:mnd // long enough to avoid collisions
			return nil, errors.Wrap(err, "generate in-memory database name")
		}
		url = name
		extraConfig = "&mode=memory&cache=shared"
	}

	// Options prefixed with underscore are pragmas interpreted by the driver, https://www.sqlite.org/pragma.html.
	pragmas := strings.Join([]string{
		"_journal_mode=wal",
		"_busy_timeout=5000",
		"_synchronous=normal",
		"_foreign_keys=on",
	}, "&")
	readWriteDSN := fmt.Sprintf("file:%s?_txlock=immediate&%s%s", url, pragmas, extraConfig)
	readDSN := fmt.Sprintf("file:%s?_txlock=deferred&_query_only=true&%s%s", url, pragmas, extraConfig)

	if readWriteDB, err = sql.Open("sqlite3", readWriteDSN); err != nil {
		return nil, errors.Wrap(err, "open read-write database")
	}
	readWriteDB.SetMaxOpenConns(1)
	readWriteDB.SetMaxIdleConns(1)
	readWriteDB.SetConnMaxLifetime(time.Hour)
	readWriteDB.SetConnMaxIdleTime(time.Hour)

	if readDB, err = sql.Open("sqlite3", readDSN); err != nil {
		return nil, errors.Wrap(err, "open read database")
	}
	maxReadConns := 10
	readDB.SetMaxOpenConns(maxReadConns)
	readDB.SetMaxIdleConns(maxReadConns)
	readDB.SetConnMaxLifetime(time.Hour)
	readDB.SetConnMaxIdleTime(time.Hour)

	return &Database{
		ReadWrite: readWriteDB,
		ReadOnly:  readDB,
		logger:    logger,
	}, nil
}

// Close closes both connection pools.
func (db *Database) Close() error {
	return errors.Join(db.ReadWrite.Close(), db.ReadOnly.Close())
}
