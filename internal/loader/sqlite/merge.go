package sqlite

import (
	"fmt"
	"strings"

	"github.com/nishad/eudravigilance/internal/loader"
)

// upsertSQL builds the same version-gated merge statement as the
// postgres backend. SQLite's UPSERT clause only attaches to an INSERT
// whose source it can unambiguously parse as a VALUES/SELECT followed
// by ON CONFLICT, so the SELECT source here carries a trailing WHERE
// true to disambiguate it from the junction-table INSERT-SELECT form.
func upsertSQL(spec loader.TableSpec, staging string) string {
	cols := strings.Join(spec.Columns, ", ")
	pk := strings.Join(spec.PrimaryKey, ", ")

	if spec.VersionKey == "" && spec.NullifyColumn == "" {
		return fmt.Sprintf(
			"INSERT INTO %s (%s) SELECT %s FROM %s WHERE true ON CONFLICT (%s) DO NOTHING",
			spec.Name, cols, cols, staging, pk,
		)
	}

	assignments := make([]string, 0, len(spec.Columns))
	for _, c := range spec.Columns {
		if c == spec.VersionKey && spec.NullifyColumn != "" {
			// A nullification can satisfy the gate below with an older
			// or empty version key; never let it rewind the stored one.
			assignments = append(assignments, fmt.Sprintf("%s = MAX(%s.%s, excluded.%s)", c, spec.Name, c, c))
			continue
		}
		assignments = append(assignments, fmt.Sprintf("%s = excluded.%s", c, c))
	}

	var gate string
	switch {
	case spec.VersionKey != "" && spec.NullifyColumn != "":
		gate = fmt.Sprintf("excluded.%s > %s.%s OR excluded.%s IN ('true', 't', '1')",
			spec.VersionKey, spec.Name, spec.VersionKey, spec.NullifyColumn)
	case spec.VersionKey != "":
		gate = fmt.Sprintf("excluded.%s > %s.%s", spec.VersionKey, spec.Name, spec.VersionKey)
	default:
		gate = fmt.Sprintf("excluded.%s IN ('true', 't', '1')", spec.NullifyColumn)
	}

	return fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM %s WHERE true ON CONFLICT (%s) DO UPDATE SET %s WHERE %s",
		spec.Name, cols, cols, staging, pk, strings.Join(assignments, ", "), gate,
	)
}

func stagingTableName(table string) string {
	return "stg_" + table
}

// createStagingSQL creates a plain (non-temp) table shadowing target's
// columns. SQLite temp tables are connection-scoped rather than
// transaction-scoped, and this backend pins the pool to a single
// connection, so the staging table is dropped explicitly by the caller
// at the end of each file instead of relying on commit-time cleanup.
func createStagingSQL(spec loader.TableSpec, staging string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", staging)
	for _, col := range spec.Columns {
		fmt.Fprintf(&b, "\t%s %s,\n", col, columnType(col))
	}
	b.WriteString("\tPRIMARY KEY (" + strings.Join(spec.PrimaryKey, ", ") + ")\n)")
	return b.String()
}

func dropStagingSQL(staging string) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s", staging)
}

func deleteStagingRowsSQL(staging string) string {
	return fmt.Sprintf("DELETE FROM %s", staging)
}
