package loader

import (
	"testing"

	"github.com/nishad/eudravigilance/internal/transform"
)

func TestNormalizedTablesMatchTransformColumns(t *testing.T) {
	for _, spec := range NormalizedTables() {
		want := transform.Columns(spec.Name)
		if len(want) == 0 {
			t.Errorf("transform.Columns(%q) returned no columns", spec.Name)
			continue
		}
		if len(spec.Columns) != len(want) {
			t.Errorf("%s: column count mismatch: spec has %d, transform has %d",
				spec.Name, len(spec.Columns), len(want))
			continue
		}
		for i := range want {
			if spec.Columns[i] != want[i] {
				t.Errorf("%s: column[%d] = %q, want %q", spec.Name, i, spec.Columns[i], want[i])
			}
		}
	}
}

func TestNormalizedTablesHavePrimaryKeys(t *testing.T) {
	for _, spec := range NormalizedTables() {
		if len(spec.PrimaryKey) == 0 {
			t.Errorf("%s: expected a non-empty primary key", spec.Name)
		}
	}
}

func TestICSRMasterHasVersionAndNullifyGates(t *testing.T) {
	for _, spec := range NormalizedTables() {
		if spec.Name != transform.TableICSRMaster {
			continue
		}
		if spec.VersionKey == "" {
			t.Error("icsr_master: expected a VersionKey")
		}
		if spec.NullifyColumn == "" {
			t.Error("icsr_master: expected a NullifyColumn")
		}
		return
	}
	t.Fatal("icsr_master not found in NormalizedTables")
}

func TestAuditTableSpecHasVersionKeyOnly(t *testing.T) {
	spec := AuditTableSpec()
	if spec.VersionKey != "receiptdate" {
		t.Errorf("expected VersionKey receiptdate, got %q", spec.VersionKey)
	}
	if spec.NullifyColumn != "" {
		t.Errorf("expected no NullifyColumn, got %q", spec.NullifyColumn)
	}
}
