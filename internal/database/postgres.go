package database

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"

	"github.com/consentkeys/pseudomask/internal/config"
)

// PostgresDriver implements the Driver interface for PostgreSQL databases.
type PostgresDriver struct {
	db       *sql.DB
	database string
}

// Connect establishes a connection to the PostgreSQL database.
func (d *PostgresDriver) Connect(cfg *config.Connection) error {
	db, err := connect("postgres", cfg.DSN(), "PostgreSQL")
	if err != nil {
		return err
	}
	d.db = db
	d.database = cfg.DatabaseName
	return nil
}

// Close closes the database connection.
func (d *PostgresDriver) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

// GetTables returns all table names in the database.
func (d *PostgresDriver) GetTables() ([]string, error) {
	query := `SELECT table_name FROM information_schema.tables
              WHERE table_schema = 'public' AND table_type = 'BASE TABLE'
              ORDER BY table_name`

	tables, err := queryStrings(d.db, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	return tables, nil
}

// GetTableSchema returns the CREATE TABLE statement for a table.
// PostgreSQL has no SHOW CREATE TABLE, so the statement is reconstructed
// from the information schema plus the primary key index.
func (d *PostgresDriver) GetTableSchema(table string) (string, error) {
	columns, err := d.GetColumns(table)
	if err != nil {
		return "", err
	}

	var colDefs []string
	for _, col := range columns {
		def := fmt.Sprintf("    %s %s", d.QuoteIdentifier(col.Name), col.DataType)
		if !col.IsNullable {
			def += " NOT NULL"
		}
		if col.Default.Valid {
			def += " DEFAULT " + col.Default.String
		}
		colDefs = append(colDefs, def)
	}

	pkQuery := `SELECT a.attname
                FROM pg_index i
                JOIN pg_attribute a ON a.attrelid = i.indrelid AND a.attnum = ANY(i.indkey)
                WHERE i.indrelid = $1::regclass AND i.indisprimary`

	pkCols, err := queryStrings(d.db, pkQuery, table)
	if err == nil && len(pkCols) > 0 {
		for i, col := range pkCols {
			pkCols[i] = d.QuoteIdentifier(col)
		}
		colDefs = append(colDefs, fmt.Sprintf("    PRIMARY KEY (%s)", strings.Join(pkCols, ", ")))
	}

	return fmt.Sprintf("CREATE TABLE %s (\n%s\n);",
		d.QuoteIdentifier(table),
		strings.Join(colDefs, ",\n")), nil
}

// GetColumns returns column information for a table.
func (d *PostgresDriver) GetColumns(table string) ([]ColumnInfo, error) {
	query := `SELECT column_name,
                     CASE
                       WHEN character_maximum_length IS NOT NULL
                       THEN data_type || '(' || character_maximum_length || ')'
                       WHEN numeric_precision IS NOT NULL AND data_type NOT IN ('integer', 'bigint', 'smallint')
                       THEN data_type || '(' || numeric_precision || ',' || COALESCE(numeric_scale, 0) || ')'
                       ELSE data_type
                     END as data_type,
                     is_nullable,
                     column_default
              FROM information_schema.columns
              WHERE table_schema = 'public' AND table_name = $1
              ORDER BY ordinal_position`

	rows, err := d.db.Query(query, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns: %w", err)
	}
	defer rows.Close()

	var columns []ColumnInfo
	for rows.Next() {
		var col ColumnInfo
		var isNullable string
		if err := rows.Scan(&col.Name, &col.DataType, &isNullable, &col.Default); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		col.IsNullable = isNullable == "YES"
		columns = append(columns, col)
	}

	return columns, rows.Err()
}

// GetForeignKeys returns all foreign key relationships in the database.
func (d *PostgresDriver) GetForeignKeys() ([]ForeignKey, error) {
	query := `SELECT
                tc.table_name,
                kcu.column_name,
                ccu.table_name AS referenced_table_name,
                ccu.column_name AS referenced_column_name
              FROM information_schema.table_constraints AS tc
              JOIN information_schema.key_column_usage AS kcu
                ON tc.constraint_name = kcu.constraint_name
                AND tc.table_schema = kcu.table_schema
              JOIN information_schema.constraint_column_usage AS ccu
                ON ccu.constraint_name = tc.constraint_name
                AND ccu.table_schema = tc.table_schema
              WHERE tc.constraint_type = 'FOREIGN KEY'
                AND tc.table_schema = 'public'
              ORDER BY tc.table_name`

	rows, err := d.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query foreign keys: %w", err)
	}
	defer rows.Close()

	var fks []ForeignKey
	for rows.Next() {
		var fk ForeignKey
		if err := rows.Scan(&fk.Table, &fk.Column, &fk.ReferencedTable, &fk.ReferencedColumn); err != nil {
			return nil, fmt.Errorf("failed to scan foreign key: %w", err)
		}
		fks = append(fks, fk)
	}

	return fks, rows.Err()
}

// StreamRows streams rows from a table in batches.
func (d *PostgresDriver) StreamRows(table string, limit int, batchSize int, callback RowCallback) error {
	columns, err := d.GetColumns(table)
	if err != nil {
		return err
	}
	query := selectAllQuery(d.QuoteIdentifier, table, columns, limit)
	return streamQuery(d.db, query, batchSize, callback)
}

// GetRowCount returns the number of rows in a table.
func (d *PostgresDriver) GetRowCount(table string) (int64, error) {
	return rowCount(d.db, d.QuoteIdentifier, table)
}

// QuoteIdentifier quotes an identifier for PostgreSQL.
func (d *PostgresDriver) QuoteIdentifier(name string) string {
	return "\"" + strings.ReplaceAll(name, "\"", "\"\"") + "\""
}

// GetDatabaseType returns "postgres".
func (d *PostgresDriver) GetDatabaseType() string {
	return "postgres"
}
