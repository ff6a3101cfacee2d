// Package schema extracts table metadata and orders tables so a dump can
// be reloaded without violating foreign key constraints.
package schema

import (
	"fmt"

	"github.com/consentkeys/pseudomask/internal/database"
)

// TableInfo holds schema information for a table.
type TableInfo struct {
	Name       string
	CreateStmt string
	Columns    []database.ColumnInfo
	RowCount   int64
}

// Analyser handles schema extraction and analysis.
type Analyser struct {
	driver database.Driver
}

// NewAnalyser creates a new schema analyser.
func NewAnalyser(driver database.Driver) *Analyser {
	return &Analyser{driver: driver}
}

// GetAllTables returns information about all tables in the database.
func (a *Analyser) GetAllTables() ([]TableInfo, error) {
	tables, err := a.driver.GetTables()
	if err != nil {
		return nil, fmt.Errorf("failed to get tables: %w", err)
	}

	var tableInfos []TableInfo
	for _, table := range tables {
		createStmt, err := a.driver.GetTableSchema(table)
		if err != nil {
			return nil, fmt.Errorf("failed to get schema for %s: %w", table, err)
		}

		columns, err := a.driver.GetColumns(table)
		if err != nil {
			return nil, fmt.Errorf("failed to get columns for %s: %w", table, err)
		}

		rowCount, err := a.driver.GetRowCount(table)
		if err != nil {
			return nil, fmt.Errorf("failed to get row count for %s: %w", table, err)
		}

		tableInfos = append(tableInfos, TableInfo{
			Name:       table,
			CreateStmt: createStmt,
			Columns:    columns,
			RowCount:   rowCount,
		})
	}

	return tableInfos, nil
}

// SortTablesByDependency returns tables sorted by foreign key dependencies:
// referenced tables come before the tables that reference them.
func (a *Analyser) SortTablesByDependency(tables []TableInfo) ([]TableInfo, error) {
	fks, err := a.driver.GetForeignKeys()
	if err != nil {
		return nil, fmt.Errorf("failed to get foreign keys: %w", err)
	}

	// Adjacency list: table -> tables it depends on
	dependencies := make(map[string][]string)
	tableSet := make(map[string]bool)

	for _, t := range tables {
		tableSet[t.Name] = true
		if dependencies[t.Name] == nil {
			dependencies[t.Name] = []string{}
		}
	}

	for _, fk := range fks {
		// Only add dependency if both tables exist in our set; skip
		// self-references.
		if tableSet[fk.Table] && tableSet[fk.ReferencedTable] && fk.Table != fk.ReferencedTable {
			dependencies[fk.Table] = append(dependencies[fk.Table], fk.ReferencedTable)
		}
	}

	return topologicalSort(tables, dependencies), nil
}

// topologicalSort orders tables with Kahn's algorithm. Cyclic tables, which
// cannot be fully ordered, are appended at the end rather than dropped.
func topologicalSort(tables []TableInfo, dependencies map[string][]string) []TableInfo {
	inDegree := make(map[string]int)
	for _, t := range tables {
		inDegree[t.Name] = 0
	}

	// Reverse adjacency list (who depends on me)
	dependents := make(map[string][]string)
	for table, deps := range dependencies {
		for _, dep := range deps {
			dependents[dep] = append(dependents[dep], table)
			inDegree[table]++
		}
	}

	var queue []string
	for _, t := range tables {
		if inDegree[t.Name] == 0 {
			queue = append(queue, t.Name)
		}
	}

	tableMap := make(map[string]TableInfo)
	for _, t := range tables {
		tableMap[t.Name] = t
	}

	var sorted []TableInfo
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		sorted = append(sorted, tableMap[current])

		for _, dependent := range dependents[current] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(sorted) != len(tables) {
		sortedSet := make(map[string]bool)
		for _, t := range sorted {
			sortedSet[t.Name] = true
		}
		for _, t := range tables {
			if !sortedSet[t.Name] {
				sorted = append(sorted, t)
			}
		}
	}

	return sorted
}
