package sqlite

import (
	"fmt"
	"strings"

	"github.com/nishad/eudravigilance/internal/loader"
)

// columnType picks a SQLite storage class per column name. SQLite's
// type affinity is loose, but naming the intended class still
// documents each column. ValidateSchema checks column names only, not
// these types.
func columnType(column string) string {
	switch column {
	case "drug_seq", "rows_processed":
		return "INTEGER"
	case "is_nullified":
		return "BOOLEAN"
	case "load_timestamp", "etl_load_timestamp":
		return "TEXT"
	default:
		return "TEXT"
	}
}

func createTableSQL(spec loader.TableSpec) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", spec.Name)
	for _, col := range spec.Columns {
		fmt.Fprintf(&b, "\t%s %s,\n", col, columnType(col))
	}
	fmt.Fprintf(&b, "\tPRIMARY KEY (%s)\n", strings.Join(spec.PrimaryKey, ", "))
	b.WriteString(")")
	return b.String()
}

func createHistoryTableSQL() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	filename TEXT NOT NULL,
	file_hash TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	rows_processed INTEGER,
	load_timestamp TEXT NOT NULL
)`, loader.HistoryTable)
}
