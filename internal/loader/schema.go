package loader

import "github.com/nishad/eudravigilance/internal/transform"

// TableSpec is dialect-independent metadata each backend uses to derive
// its own DDL and merge SQL: the column list, the conflict key, and the
// optional version-gate columns from spec.md's merge rule.
type TableSpec struct {
	Name string
	// Columns is the full column list in canonical order, re-used from
	// the transformer so the two stages never drift apart.
	Columns []string
	// PrimaryKey is the set of columns identifying one logical row.
	PrimaryKey []string
	// VersionKey is the column compared to decide whether an incoming
	// row supersedes an existing one; empty means no version gate
	// applies (junction-table do-nothing-on-conflict).
	VersionKey string
	// NullifyColumn, when set, always applies regardless of VersionKey
	// once its value is true.
	NullifyColumn string
}

// NormalizedTables returns the seven target table specs in load order
// (master before the tables that reference it).
func NormalizedTables() []TableSpec {
	return []TableSpec{
		{
			Name:          transform.TableICSRMaster,
			Columns:       transform.Columns(transform.TableICSRMaster),
			PrimaryKey:    []string{"safetyreportid"},
			VersionKey:    "date_of_most_recent_info",
			NullifyColumn: "is_nullified",
		},
		{
			Name:       transform.TablePatientCharacteristics,
			Columns:    transform.Columns(transform.TablePatientCharacteristics),
			PrimaryKey: []string{"safetyreportid"},
		},
		{
			Name:       transform.TableReactions,
			Columns:    transform.Columns(transform.TableReactions),
			PrimaryKey: []string{"safetyreportid", "primarysourcereaction"},
		},
		{
			Name:       transform.TableDrugs,
			Columns:    transform.Columns(transform.TableDrugs),
			PrimaryKey: []string{"safetyreportid", "drug_seq"},
		},
		{
			Name:       transform.TableDrugSubstances,
			Columns:    transform.Columns(transform.TableDrugSubstances),
			PrimaryKey: []string{"safetyreportid", "drug_seq", "activesubstancename"},
		},
		{
			Name:       transform.TableTestsProcedures,
			Columns:    transform.Columns(transform.TableTestsProcedures),
			PrimaryKey: []string{"safetyreportid", "testname"},
		},
		{
			Name:       transform.TableCaseSummaryNarrative,
			Columns:    transform.Columns(transform.TableCaseSummaryNarrative),
			PrimaryKey: []string{"safetyreportid"},
		},
	}
}

// AuditTable is the audit-schema's single target.
const AuditTable = "icsr_audit"

// AuditTableSpec describes the audit table; its version key is
// receiptdate, since spec.md §3.2 requires the version gate to still
// apply across files even though in-file dedup already picked the
// newest receiptdate per safetyreportid.
func AuditTableSpec() TableSpec {
	return TableSpec{
		Name:       AuditTable,
		Columns:    []string{"safetyreportid", "receiptdate", "icsr_payload", "etl_load_timestamp"},
		PrimaryKey: []string{"safetyreportid"},
		VersionKey: "receiptdate",
	}
}

// HistoryTable is etl_file_history's name.
const HistoryTable = "etl_file_history"

// HistoryColumns is etl_file_history's column list.
var HistoryColumns = []string{"filename", "file_hash", "status", "rows_processed", "load_timestamp"}
