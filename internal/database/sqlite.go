package database

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/consentkeys/pseudomask/internal/config"
)

// SQLiteDriver implements the Driver interface for SQLite databases.
type SQLiteDriver struct {
	db *sql.DB
}

// Connect establishes a connection to the SQLite database.
func (d *SQLiteDriver) Connect(cfg *config.Connection) error {
	db, err := connect("sqlite3", cfg.DSN(), "SQLite")
	if err != nil {
		return err
	}
	d.db = db
	return nil
}

// Close closes the database connection.
func (d *SQLiteDriver) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

// GetTables returns all table names in the database.
func (d *SQLiteDriver) GetTables() ([]string, error) {
	query := `SELECT name FROM sqlite_master
              WHERE type='table' AND name NOT LIKE 'sqlite_%'
              ORDER BY name`

	tables, err := queryStrings(d.db, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	return tables, nil
}

// GetTableSchema returns the CREATE TABLE statement for a table.
func (d *SQLiteDriver) GetTableSchema(table string) (string, error) {
	var createStmt string
	query := `SELECT sql FROM sqlite_master WHERE type='table' AND name=?`

	err := d.db.QueryRow(query, table).Scan(&createStmt)
	if err != nil {
		return "", fmt.Errorf("failed to get schema for table %s: %w", table, err)
	}

	return createStmt + ";", nil
}

// GetColumns returns column information for a table.
func (d *SQLiteDriver) GetColumns(table string) ([]ColumnInfo, error) {
	query := fmt.Sprintf("PRAGMA table_info(%s)", d.QuoteIdentifier(table))

	rows, err := d.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns: %w", err)
	}
	defer rows.Close()

	var columns []ColumnInfo
	for rows.Next() {
		var cid int
		var name, dataType string
		var notNull int
		var dfltValue sql.NullString
		var pk int

		if err := rows.Scan(&cid, &name, &dataType, &notNull, &dfltValue, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}

		columns = append(columns, ColumnInfo{
			Name:       name,
			DataType:   dataType,
			IsNullable: notNull == 0,
			Default:    dfltValue,
		})
	}

	return columns, rows.Err()
}

// GetForeignKeys returns all foreign key relationships in the database.
func (d *SQLiteDriver) GetForeignKeys() ([]ForeignKey, error) {
	tables, err := d.GetTables()
	if err != nil {
		return nil, err
	}

	var fks []ForeignKey
	for _, table := range tables {
		query := fmt.Sprintf("PRAGMA foreign_key_list(%s)", d.QuoteIdentifier(table))
		rows, err := d.db.Query(query)
		if err != nil {
			continue // Skip tables with no foreign keys
		}

		for rows.Next() {
			var id, seq int
			var refTable, from, to, onUpdate, onDelete, match string

			if err := rows.Scan(&id, &seq, &refTable, &from, &to, &onUpdate, &onDelete, &match); err != nil {
				rows.Close()
				continue
			}

			fks = append(fks, ForeignKey{
				Table:            table,
				Column:           from,
				ReferencedTable:  refTable,
				ReferencedColumn: to,
			})
		}
		rows.Close()
	}

	return fks, nil
}

// StreamRows streams rows from a table in batches.
func (d *SQLiteDriver) StreamRows(table string, limit int, batchSize int, callback RowCallback) error {
	columns, err := d.GetColumns(table)
	if err != nil {
		return err
	}
	query := selectAllQuery(d.QuoteIdentifier, table, columns, limit)
	return streamQuery(d.db, query, batchSize, callback)
}

// GetRowCount returns the number of rows in a table.
func (d *SQLiteDriver) GetRowCount(table string) (int64, error) {
	return rowCount(d.db, d.QuoteIdentifier, table)
}

// QuoteIdentifier quotes an identifier for SQLite.
func (d *SQLiteDriver) QuoteIdentifier(name string) string {
	return "\"" + strings.ReplaceAll(name, "\"", "\"\"") + "\""
}

// GetDatabaseType returns "sqlite".
func (d *SQLiteDriver) GetDatabaseType() string {
	return "sqlite"
}
