// Package database provides read-only access to the source databases that
// the export mode pseudonymises.
package database

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/consentkeys/pseudomask/internal/config"
)

// ForeignKey represents a foreign key relationship.
type ForeignKey struct {
	Table            string // Table containing the foreign key
	Column           string // Column that is the foreign key
	ReferencedTable  string // Table being referenced
	ReferencedColumn string // Column being referenced
}

// ColumnInfo holds metadata about a table column.
type ColumnInfo struct {
	Name       string
	DataType   string
	IsNullable bool
	Default    sql.NullString
}

// RowCallback is called for each batch of rows during streaming.
type RowCallback func(rows []map[string]any) error

// Driver defines the interface for database operations.
type Driver interface {
	// Connect establishes a connection to the database.
	Connect(cfg *config.Connection) error

	// Close closes the database connection.
	Close() error

	// GetTables returns a list of all table names in the database.
	GetTables() ([]string, error)

	// GetTableSchema returns the CREATE TABLE statement for a table.
	GetTableSchema(table string) (string, error)

	// GetColumns returns column information for a table.
	GetColumns(table string) ([]ColumnInfo, error)

	// GetForeignKeys returns all foreign key relationships in the database.
	GetForeignKeys() ([]ForeignKey, error)

	// StreamRows streams rows from a table in batches. A limit of 0 means
	// all rows.
	StreamRows(table string, limit int, batchSize int, callback RowCallback) error

	// GetRowCount returns the number of rows in a table.
	GetRowCount(table string) (int64, error)

	// QuoteIdentifier quotes an identifier (table/column name) for safe use in SQL.
	QuoteIdentifier(name string) string

	// GetDatabaseType returns the database type (mysql, postgres, sqlite).
	GetDatabaseType() string
}

// NewDriver creates a new database driver based on the connection type.
func NewDriver(dbType string) (Driver, error) {
	switch dbType {
	case "mysql":
		return &MySQLDriver{}, nil
	case "postgres":
		return &PostgresDriver{}, nil
	case "sqlite":
		return &SQLiteDriver{}, nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}
}

// connect opens and pings a database handle. Shared by all drivers.
func connect(driverName, dsn, label string) (*sql.DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", label, err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping %s: %w", label, err)
	}
	return db, nil
}

// queryStrings runs a query that returns a single string column.
func queryStrings(db *sql.DB, query string, args ...any) ([]string, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// selectAllQuery builds a SELECT over all columns of a table, quoting
// identifiers with the driver's quote function.
func selectAllQuery(quote func(string) string, table string, columns []ColumnInfo, limit int) string {
	names := make([]string, len(columns))
	for i, col := range columns {
		names[i] = quote(col.Name)
	}
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(names, ", "), quote(table))
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	return query
}

// streamQuery executes a query and delivers its rows to the callback in
// batches of batchSize maps. []byte values are converted to string so rule
// evaluation sees text.
func streamQuery(db *sql.DB, query string, batchSize int, callback RowCallback, args ...any) error {
	rows, err := db.Query(query, args...)
	if err != nil {
		return fmt.Errorf("failed to query rows: %w", err)
	}
	defer rows.Close()

	colNames, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("failed to get column names: %w", err)
	}

	batch := make([]map[string]any, 0, batchSize)

	for rows.Next() {
		values := make([]any, len(colNames))
		valuePtrs := make([]any, len(colNames))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(map[string]any, len(colNames))
		for i, col := range colNames {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		batch = append(batch, row)

		if len(batch) >= batchSize {
			if err := callback(batch); err != nil {
				return err
			}
			batch = make([]map[string]any, 0, batchSize)
		}
	}

	if len(batch) > 0 {
		if err := callback(batch); err != nil {
			return err
		}
	}

	return rows.Err()
}

// rowCount counts the rows of a table.
func rowCount(db *sql.DB, quote func(string) string, table string) (int64, error) {
	var count int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", quote(table))
	if err := db.QueryRow(query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count rows: %w", err)
	}
	return count, nil
}
