// Package exporter writes a pseudonymised SQL dump of a source database.
package exporter

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/consentkeys/pseudomask/internal/database"
	"github.com/consentkeys/pseudomask/internal/masker"
	"github.com/consentkeys/pseudomask/internal/schema"
)

const (
	// DefaultBatchSize is the number of rows fetched and written per batch.
	DefaultBatchSize = 1000

	// BufferSize is the output buffer size.
	BufferSize = 64 * 1024
)

// Options configures an Exporter.
type Options struct {
	Verbose   bool
	BatchSize int
}

// Stats holds counters collected during an export.
type Stats struct {
	TablesExported  int
	TablesTruncated int
	RowsExported    int64
}

// Exporter streams tables from a database, applies masking rules, and
// writes the result as a SQL dump.
type Exporter struct {
	driver    database.Driver
	masker    *masker.Masker
	writer    *bufio.Writer
	batchSize int
	verbose   bool
	dbType    string
	stats     Stats
}

// New creates an Exporter. A non-positive batch size falls back to
// DefaultBatchSize.
func New(driver database.Driver, m *masker.Masker, out io.Writer, opts Options) *Exporter {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &Exporter{
		driver:    driver,
		masker:    m,
		writer:    bufio.NewWriterSize(out, BufferSize),
		batchSize: batchSize,
		verbose:   opts.Verbose,
		dbType:    driver.GetDatabaseType(),
	}
}

// Export writes the dump for the given tables, in the given order.
func (e *Exporter) Export(tables []schema.TableInfo) error {
	if err := e.writeHeader(); err != nil {
		return err
	}

	for _, table := range tables {
		if err := e.exportTable(table); err != nil {
			return fmt.Errorf("failed to export table %s: %w", table.Name, err)
		}
	}

	if err := e.writeFooter(); err != nil {
		return err
	}

	return e.writer.Flush()
}

// GetStats returns the counters collected so far.
func (e *Exporter) GetStats() Stats {
	return e.stats
}

func (e *Exporter) exportTable(table schema.TableInfo) error {
	if e.verbose {
		fmt.Fprintf(os.Stderr, "Exporting table: %s (%d rows)\n", table.Name, table.RowCount)
	}

	fmt.Fprintf(e.writer, "\n-- Table: %s\n", table.Name)
	fmt.Fprintln(e.writer, e.getDropTableStatement(table.Name))
	fmt.Fprintln(e.writer, table.CreateStmt)

	e.stats.TablesExported++

	if e.masker.ShouldTruncate(table.Name) {
		e.stats.TablesTruncated++
		return nil
	}

	columns := make([]string, len(table.Columns))
	for i, col := range table.Columns {
		columns[i] = col.Name
	}

	return e.driver.StreamRows(table.Name, 0, e.batchSize, func(rows []map[string]any) error {
		masked := make([]map[string]any, len(rows))
		for i, row := range rows {
			m, err := e.masker.MaskRow(table.Name, row)
			if err != nil {
				return err
			}
			masked[i] = m
		}

		if err := e.writeBatchInsert(table.Name, columns, masked); err != nil {
			return err
		}
		e.stats.RowsExported += int64(len(masked))
		return nil
	})
}

// writeHeader emits the dump preamble for the target dialect.
func (e *Exporter) writeHeader() error {
	fmt.Fprintf(e.writer, "-- Database Dump\n-- Generated by pseudomask at %s\n",
		time.Now().UTC().Format("2006-01-02 15:04:05"))

	switch e.dbType {
	case "mysql":
		fmt.Fprintln(e.writer, "SET NAMES utf8mb4;")
		fmt.Fprintln(e.writer, "SET FOREIGN_KEY_CHECKS = 0;")
		fmt.Fprintln(e.writer, "START TRANSACTION;")
	case "postgres":
		fmt.Fprintln(e.writer, "SET client_encoding = 'UTF8';")
		fmt.Fprintln(e.writer, "BEGIN;")
	case "sqlite":
		fmt.Fprintln(e.writer, "PRAGMA foreign_keys = OFF;")
		fmt.Fprintln(e.writer, "BEGIN TRANSACTION;")
	}

	return nil
}

// writeFooter emits the dump closing statements.
func (e *Exporter) writeFooter() error {
	fmt.Fprintln(e.writer)

	switch e.dbType {
	case "mysql":
		fmt.Fprintln(e.writer, "COMMIT;")
		fmt.Fprintln(e.writer, "SET FOREIGN_KEY_CHECKS = 1;")
	case "postgres":
		fmt.Fprintln(e.writer, "COMMIT;")
	case "sqlite":
		fmt.Fprintln(e.writer, "COMMIT;")
		fmt.Fprintln(e.writer, "PRAGMA foreign_keys = ON;")
	}

	fmt.Fprintln(e.writer, "-- End of dump")
	return nil
}

// getDropTableStatement returns the DROP TABLE statement for the dialect.
func (e *Exporter) getDropTableStatement(table string) string {
	quoted := e.driver.QuoteIdentifier(table)
	if e.dbType == "postgres" {
		return fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE;", quoted)
	}
	return fmt.Sprintf("DROP TABLE IF EXISTS %s;", quoted)
}

// writeBatchInsert writes one multi-row INSERT for a batch. Empty batches
// produce no output.
func (e *Exporter) writeBatchInsert(table string, columns []string, rows []map[string]any) error {
	if len(rows) == 0 {
		return nil
	}

	quotedCols := make([]string, len(columns))
	for i, col := range columns {
		quotedCols[i] = e.driver.QuoteIdentifier(col)
	}

	fmt.Fprintf(e.writer, "INSERT INTO %s (%s) VALUES\n",
		e.driver.QuoteIdentifier(table),
		strings.Join(quotedCols, ", "))

	for i, row := range rows {
		values := make([]string, len(columns))
		for j, col := range columns {
			values[j] = e.formatValue(row[col])
		}

		suffix := ",\n"
		if i == len(rows)-1 {
			suffix = ";\n"
		}
		fmt.Fprintf(e.writer, "(%s)%s", strings.Join(values, ", "), suffix)
	}

	return nil
}

// formatValue renders a Go value as a SQL literal.
func (e *Exporter) formatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "NULL"
	case bool:
		if v {
			return "1"
		}
		return "0"
	case string:
		return e.escapeString(v)
	case []byte:
		return e.escapeString(string(v))
	case time.Time:
		return "'" + v.Format("2006-01-02 15:04:05") + "'"
	case float32, float64:
		return fmt.Sprintf("%v", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// escapeString quotes a string literal, escaping the characters that would
// otherwise break or truncate the statement.
func (e *Exporter) escapeString(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('\'')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\'':
			b.WriteString("''")
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case 0x00:
			b.WriteString(`\0`)
		case 0x1a:
			b.WriteString(`\Z`)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('\'')
	return b.String()
}
