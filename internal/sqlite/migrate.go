package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/myrjola/clustereval/internal/errors"
)

// schemaObject is a row of sqlite_schema.
type schemaObject struct {
	kind    string
	name    string
	table   string
	sqlText string
}

// migrateTo makes the database schema match schemaDefinition.
//
// The migration is declarative. The target schema is materialized in a scratch in-memory database and compared
// with sqlite_schema of the live database:
//
//   - tables missing from the target are dropped and new tables are created,
//   - tables whose CREATE statement changed are rebuilt with the 12-step procedure of
//     https://www.sqlite.org/lang_altertable.html#otheralter keeping the columns both versions share,
//   - indexes and triggers are dropped and recreated whenever they differ.
//
// Inspired by https://david.rothlis.net/declarative-schema-migration-for-sqlite/
func (db *Database) migrateTo(ctx context.Context, schemaDefinition string) error {
	target, err := materialize(ctx, schemaDefinition)
	if err != nil {
		return errors.Wrap(err, "materialize target schema")
	}

	// Pragmas must run outside of the transaction, so we pin the single read-write connection.
	conn, err := db.ReadWrite.Conn(ctx)
	if err != nil {
		return errors.Wrap(err, "acquire connection")
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			db.logger.LogAttrs(ctx, slog.LevelError, "failed to release connection", errors.SlogError(closeErr))
		}
	}()

	if _, err = conn.ExecContext(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
		return errors.Wrap(err, "disable foreign key validation")
	}
	defer func() {
		if _, fkErr := conn.ExecContext(ctx, "PRAGMA foreign_keys = ON"); fkErr != nil {
			db.logger.LogAttrs(ctx, slog.LevelError, "failed to re-enable foreign key validation",
				errors.SlogError(fkErr))
		}
	}()

	var tx *sql.Tx
	if tx, err = conn.BeginTx(ctx, nil); err != nil {
		return errors.Wrap(err, "start transaction")
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			db.logger.LogAttrs(ctx, slog.LevelError, "failed to roll back migration", errors.SlogError(rbErr))
		}
	}()

	var current []schemaObject
	if current, err = querySchema(ctx, tx); err != nil {
		return errors.Wrap(err, "query current schema")
	}

	if err = db.migrateTables(ctx, tx, current, target); err != nil {
		return errors.Wrap(err, "migrate tables")
	}

	// Rebuilt tables lost their indexes and triggers, so the schema is read again.
	if current, err = querySchema(ctx, tx); err != nil {
		return errors.Wrap(err, "query migrated schema")
	}
	if err = db.migrateIndexesAndTriggers(ctx, tx, current, target); err != nil {
		return errors.Wrap(err, "migrate indexes and triggers")
	}

	if _, err = tx.ExecContext(ctx, "PRAGMA foreign_key_check"); err != nil {
		return errors.Wrap(err, "foreign key check")
	}

	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "commit migration")
	}
	return nil
}

func (db *Database) migrateTables(ctx context.Context, tx *sql.Tx, current, target []schemaObject) error {
	currentTables := filterKind(current, "table")
	targetTables := filterKind(target, "table")

	for _, table := range currentTables {
		if _, ok := findObject(targetTables, table.name); ok {
			continue
		}
		db.logger.LogAttrs(ctx, slog.LevelInfo, "dropping table", slog.String("table", table.name))
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE %s", quote(table.name))); err != nil {
			return errors.Wrap(err, "drop table", slog.String("table", table.name))
		}
	}

	for _, table := range targetTables {
		existing, ok := findObject(currentTables, table.name)
		switch {
		case !ok:
			db.logger.LogAttrs(ctx, slog.LevelInfo, "creating table", slog.String("query", table.sqlText))
			if _, err := tx.ExecContext(ctx, table.sqlText); err != nil {
				return errors.Wrap(err, "create table", slog.String("table", table.name))
			}
		case existing.sqlText != table.sqlText:
			if err := db.rebuildTable(ctx, tx, existing, table); err != nil {
				return errors.Wrap(err, "rebuild table", slog.String("table", table.name))
			}
		}
	}
	return nil
}

// rebuildTable creates the new table under a temporary name, copies the shared columns, and swaps the tables.
func (db *Database) rebuildTable(ctx context.Context, tx *sql.Tx, existing, table schemaObject) error {
	db.logger.LogAttrs(ctx, slog.LevelInfo, "migrating table",
		slog.String("table", table.name),
		slog.String("current_sql", existing.sqlText),
		slog.String("new_sql", table.sqlText))

	tempName := table.name + "_migration_temp"
	createTemp := strings.Replace(table.sqlText, table.name, tempName, 1)
	if _, err := tx.ExecContext(ctx, createTemp); err != nil {
		return errors.Wrap(err, "create temporary table", slog.String("query", createTemp))
	}

	oldColumns, err := tableColumns(ctx, tx, table.name)
	if err != nil {
		return errors.Wrap(err, "read current columns")
	}
	newColumns, err := tableColumns(ctx, tx, tempName)
	if err != nil {
		return errors.Wrap(err, "read new columns")
	}
	var shared []string
	for _, column := range newColumns {
		if slices.Contains(oldColumns, column) {
			shared = append(shared, quote(column))
		}
	}
	if len(shared) > 0 {
		columns := strings.Join(shared, ", ")
		copySQL := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", //nolint:gosec // identifiers come from the schema
			quote(tempName), columns, columns, quote(table.name))
		if _, err = tx.ExecContext(ctx, copySQL); err != nil {
			return errors.Wrap(err, "copy data", slog.String("query", copySQL))
		}
	}

	if _, err = tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE %s", quote(table.name))); err != nil {
		return errors.Wrap(err, "drop old table")
	}
	if _, err = tx.ExecContext(ctx,
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", quote(tempName), quote(table.name))); err != nil {
		return errors.Wrap(err, "rename new table")
	}
	return nil
}

func (db *Database) migrateIndexesAndTriggers(ctx context.Context, tx *sql.Tx, current, target []schemaObject) error {
	for _, kind := range []string{"index", "trigger"} {
		currentObjects := filterKind(current, kind)
		targetObjects := filterKind(target, kind)

		for _, object := range currentObjects {
			if wanted, ok := findObject(targetObjects, object.name); ok && wanted.sqlText == object.sqlText {
				continue
			}
			db.logger.LogAttrs(ctx, slog.LevelInfo, "dropping "+kind, slog.String("name", object.name))
			if _, err := tx.ExecContext(ctx,
				fmt.Sprintf("DROP %s %s", strings.ToUpper(kind), quote(object.name))); err != nil {
				return errors.Wrap(err, "drop "+kind, slog.String("name", object.name))
			}
		}

		for _, object := range targetObjects {
			if existing, ok := findObject(currentObjects, object.name); ok && existing.sqlText == object.sqlText {
				continue
			}
			db.logger.LogAttrs(ctx, slog.LevelInfo, "creating "+kind, slog.String("query", object.sqlText))
			if _, err := tx.ExecContext(ctx, object.sqlText); err != nil {
				return errors.Wrap(err, "create "+kind, slog.String("name", object.name))
			}
		}
	}
	return nil
}

// materialize applies schemaDefinition to a scratch in-memory database and returns its schema.
func materialize(ctx context.Context, schemaDefinition string) ([]schemaObject, error) {
	scratch, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, errors.Wrap(err, "open scratch database")
	}
	defer scratch.Close()
	// Every connection to :memory: is its own database.
	scratch.SetMaxOpenConns(1)

	if _, err = scratch.ExecContext(ctx, schemaDefinition); err != nil {
		return nil, errors.Wrap(err, "apply schema definition")
	}
	var objects []schemaObject
	if objects, err = querySchema(ctx, scratch); err != nil {
		return nil, errors.Wrap(err, "query scratch schema")
	}
	return objects, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// querySchema lists the user-defined objects. Automatic indexes have no SQL and are skipped.
func querySchema(ctx context.Context, q queryer) ([]schemaObject, error) {
	rows, err := q.QueryContext(ctx, `SELECT type, name, tbl_name, sql
FROM sqlite_schema
WHERE sql IS NOT NULL AND name NOT LIKE 'sqlite_%'
ORDER BY CASE type WHEN 'table' THEN 0 ELSE 1 END, name`)
	if err != nil {
		return nil, errors.Wrap(err, "query sqlite_schema")
	}
	defer rows.Close()

	var objects []schemaObject
	for rows.Next() {
		var object schemaObject
		if err = rows.Scan(&object.kind, &object.name, &object.table, &object.sqlText); err != nil {
			return nil, errors.Wrap(err, "scan schema object")
		}
		objects = append(objects, object)
	}
	if err = rows.Err(); err != nil {
		return nil, errors.Wrap(err, "rows error")
	}
	return objects, nil
}

func tableColumns(ctx context.Context, tx *sql.Tx, table string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, "SELECT name FROM PRAGMA_TABLE_INFO(?)", table)
	if err != nil {
		return nil, errors.Wrap(err, "query table info", slog.String("table", table))
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var column string
		if err = rows.Scan(&column); err != nil {
			return nil, errors.Wrap(err, "scan column")
		}
		columns = append(columns, column)
	}
	if err = rows.Err(); err != nil {
		return nil, errors.Wrap(err, "rows error")
	}
	return columns, nil
}

func filterKind(objects []schemaObject, kind string) []schemaObject {
	var filtered []schemaObject
	for _, object := range objects {
		if object.kind == kind {
			filtered = append(filtered, object)
		}
	}
	return filtered
}

func findObject(objects []schemaObject, name string) (schemaObject, bool) {
	for _, object := range objects {
		if object.name == name {
			return object, true
		}
	}
	return schemaObject{}, false //nolint:exhaustruct // not found
}

// quote makes an identifier safe to interpolate, also when it is an SQLite keyword.
func quote(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}
