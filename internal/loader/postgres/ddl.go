package postgres

import (
	"fmt"
	"strings"

	"github.com/nishad/eudravigilance/internal/loader"
)

// columnType picks a reasonable Postgres type per column name. The schema
// is deliberately simple text/numeric/boolean/timestamp, matching the
// CSV-native types the bulk loader writes.
func columnType(column string) string {
	switch column {
	case "drug_seq", "rows_processed":
		return "INTEGER"
	case "is_nullified":
		return "BOOLEAN"
	case "date_of_most_recent_info", "receiptdate", "testdate":
		return "TEXT"
	case "load_timestamp", "etl_load_timestamp":
		return "TIMESTAMPTZ"
	case "icsr_payload":
		return "JSONB"
	default:
		return "TEXT"
	}
}

func createTableSQL(spec loader.TableSpec) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", spec.Name)
	for i, col := range spec.Columns {
		fmt.Fprintf(&b, "\t%s %s", col, columnType(col))
		if i < len(spec.Columns)-1 || len(spec.PrimaryKey) > 0 {
			b.WriteString(",\n")
		} else {
			b.WriteString("\n")
		}
	}
	if len(spec.PrimaryKey) > 0 {
		fmt.Fprintf(&b, "\tPRIMARY KEY (%s)\n", strings.Join(spec.PrimaryKey, ", "))
	}
	b.WriteString(")")
	return b.String()
}

func createHistoryTableSQL() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	filename TEXT NOT NULL,
	file_hash TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	rows_processed INTEGER,
	load_timestamp TIMESTAMPTZ NOT NULL DEFAULT now()
)`, loader.HistoryTable)
}
