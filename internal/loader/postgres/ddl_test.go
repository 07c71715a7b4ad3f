package postgres

import (
	"strings"
	"testing"

	"github.com/nishad/eudravigilance/internal/loader"
)

func TestCreateTableSQLIncludesPrimaryKey(t *testing.T) {
	spec := loader.TableSpec{
		Name:       "reactions",
		Columns:    []string{"safetyreportid", "primarysourcereaction", "reactionmeddrapt"},
		PrimaryKey: []string{"safetyreportid", "primarysourcereaction"},
	}
	sql := createTableSQL(spec)

	if !strings.Contains(sql, "CREATE TABLE IF NOT EXISTS reactions") {
		t.Errorf("expected table name in DDL, got: %s", sql)
	}
	if !strings.Contains(sql, "PRIMARY KEY (safetyreportid, primarysourcereaction)") {
		t.Errorf("expected composite primary key clause, got: %s", sql)
	}
	for _, col := range spec.Columns {
		if !strings.Contains(sql, col) {
			t.Errorf("expected column %q in DDL, got: %s", col, sql)
		}
	}
}

func TestColumnTypeMapping(t *testing.T) {
	tests := map[string]string{
		"drug_seq":      "INTEGER",
		"is_nullified":  "BOOLEAN",
		"receiptdate":   "TEXT",
		"load_timestamp": "TIMESTAMPTZ",
		"icsr_payload":  "JSONB",
		"narrative":     "TEXT",
	}
	for col, want := range tests {
		if got := columnType(col); got != want {
			t.Errorf("columnType(%q) = %q, want %q", col, got, want)
		}
	}
}

func TestCreateHistoryTableSQL(t *testing.T) {
	sql := createHistoryTableSQL()
	if !strings.Contains(sql, "etl_file_history") {
		t.Errorf("expected history table name, got: %s", sql)
	}
	if !strings.Contains(sql, "file_hash TEXT PRIMARY KEY") {
		t.Errorf("expected file_hash as primary key, got: %s", sql)
	}
}
