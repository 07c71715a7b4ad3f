package sqlite

import (
	"strings"
	"testing"

	"github.com/nishad/eudravigilance/internal/loader"
)

func TestUpsertSQLVersionAndNullifyGate(t *testing.T) {
	spec := loader.TableSpec{
		Name:          "icsr_master",
		Columns:       []string{"safetyreportid", "date_of_most_recent_info", "is_nullified"},
		PrimaryKey:    []string{"safetyreportid"},
		VersionKey:    "date_of_most_recent_info",
		NullifyColumn: "is_nullified",
	}
	sql := upsertSQL(spec, "stg_icsr_master")

	if !strings.Contains(sql, "FROM stg_icsr_master WHERE true ON CONFLICT") {
		t.Errorf("expected a disambiguating WHERE true before ON CONFLICT, got: %s", sql)
	}
	if !strings.Contains(sql, "ON CONFLICT (safetyreportid) DO UPDATE SET") {
		t.Errorf("expected conflict-update clause, got: %s", sql)
	}
	if !strings.Contains(sql, "excluded.date_of_most_recent_info > icsr_master.date_of_most_recent_info") {
		t.Errorf("expected version gate, got: %s", sql)
	}
	if !strings.Contains(sql, "OR excluded.is_nullified IN ('true', 't', '1')") {
		t.Errorf("expected nullify gate to compare against the text SQLite actually stores, got: %s", sql)
	}
	if !strings.Contains(sql, "date_of_most_recent_info = MAX(icsr_master.date_of_most_recent_info, excluded.date_of_most_recent_info)") {
		t.Errorf("expected version key assignment to be clamped to MAX so a nullification can't rewind it, got: %s", sql)
	}
}

func TestUpsertSQLVersionOnlyGate(t *testing.T) {
	spec := loader.TableSpec{
		Name:       "icsr_audit",
		Columns:    []string{"safetyreportid", "receiptdate"},
		PrimaryKey: []string{"safetyreportid"},
		VersionKey: "receiptdate",
	}
	sql := upsertSQL(spec, "stg_icsr_audit")

	if strings.Contains(sql, "OR excluded") {
		t.Errorf("expected no nullify clause when NullifyColumn is unset, got: %s", sql)
	}
	if !strings.Contains(sql, "WHERE excluded.receiptdate > icsr_audit.receiptdate") {
		t.Errorf("expected version-only gate, got: %s", sql)
	}
	if strings.Contains(sql, "MAX(") {
		t.Errorf("did not expect a MAX clamp without a nullify column, got: %s", sql)
	}
}

func TestUpsertSQLNoGateDoesNothing(t *testing.T) {
	spec := loader.TableSpec{
		Name:       "drug_substances",
		Columns:    []string{"safetyreportid", "drug_seq", "activesubstancename"},
		PrimaryKey: []string{"safetyreportid", "drug_seq", "activesubstancename"},
	}
	sql := upsertSQL(spec, "stg_drug_substances")

	if !strings.Contains(sql, "FROM stg_drug_substances WHERE true ON CONFLICT (safetyreportid, drug_seq, activesubstancename) DO NOTHING") {
		t.Errorf("expected DO NOTHING with a disambiguating WHERE true for a table with no version/nullify gate, got: %s", sql)
	}
	if strings.Contains(sql, "DO UPDATE") {
		t.Errorf("did not expect a DO UPDATE clause, got: %s", sql)
	}
}

func TestStagingTableName(t *testing.T) {
	if got := stagingTableName("icsr_master"); got != "stg_icsr_master" {
		t.Errorf("stagingTableName(icsr_master) = %q, want stg_icsr_master", got)
	}
}
