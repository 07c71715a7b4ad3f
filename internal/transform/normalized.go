// Package transform fans an extracted ICSR stream out into per-table CSV
// row buffers (normalized mode) or a single deduplicated CSV buffer
// (audit mode), ready for the Loader's native bulk-ingest protocol.
package transform

import (
	"encoding/csv"
	"fmt"

	"github.com/nishad/eudravigilance/internal/xmlextract"
)

// Table names, fixed by the normalized schema.
const (
	TableICSRMaster             = "icsr_master"
	TablePatientCharacteristics = "patient_characteristics"
	TableReactions              = "reactions"
	TableDrugs                  = "drugs"
	TableDrugSubstances         = "drug_substances"
	TableTestsProcedures        = "tests_procedures"
	TableCaseSummaryNarrative   = "case_summary_narrative"
)

// TableOrder fixes the order in which Normalized creates its table
// buffers, since map iteration order in Go is randomized. The loaders
// take their own load order (master before children) from
// loader.NormalizedTables, not from this slice.
var TableOrder = []string{
	TableICSRMaster,
	TablePatientCharacteristics,
	TableReactions,
	TableDrugs,
	TableDrugSubstances,
	TableTestsProcedures,
	TableCaseSummaryNarrative,
}

var tableColumns = map[string][]string{
	TableICSRMaster: {
		"safetyreportid", "receiptdate", "date_of_most_recent_info",
		"receiveridentifier", "senderidentifier", "qualification",
		"reportercountry", "is_nullified",
	},
	TablePatientCharacteristics: {
		"safetyreportid", "initials", "onset_age", "sex",
	},
	TableReactions: {
		"safetyreportid", "primarysourcereaction", "reactionmeddrapt",
	},
	TableDrugs: {
		"safetyreportid", "drug_seq", "characterization",
		"medicinalproduct", "dosage_text",
	},
	TableDrugSubstances: {
		"safetyreportid", "drug_seq", "activesubstancename",
	},
	TableTestsProcedures: {
		"safetyreportid", "testname", "testdate", "testresult",
	},
	TableCaseSummaryNarrative: {
		"safetyreportid", "narrative",
	},
}

// Columns returns the canonical column order for a table name.
func Columns(table string) []string {
	return tableColumns[table]
}

// NormalizedBatch is the transformer's normalized-mode output: one CSV
// row buffer and row count per table, plus any per-record errors
// accumulated while draining the extractor sequence.
type NormalizedBatch struct {
	Buffers      map[string]*RowBuffer
	RowCounts    map[string]int
	RecordErrors []xmlextract.RecordError
}

// Normalized drains results and fans each well-formed Record out into its
// table buffers. A RecordError on the sequence is accumulated, not
// treated as fatal: the caller decides whether the file still completes.
func Normalized(results <-chan xmlextract.Result) (*NormalizedBatch, error) {
	writers := make(map[string]*csv.Writer, len(TableOrder))
	batch := &NormalizedBatch{
		Buffers:   make(map[string]*RowBuffer, len(TableOrder)),
		RowCounts: make(map[string]int, len(TableOrder)),
	}
	for _, table := range TableOrder {
		rb := newRowBuffer()
		w := csv.NewWriter(rb.buf)
		if err := w.Write(tableColumns[table]); err != nil {
			return nil, fmt.Errorf("transform: writing header for %s: %w", table, err)
		}
		batch.Buffers[table] = rb
		writers[table] = w
	}

	for r := range results {
		if r.Err != nil {
			batch.RecordErrors = append(batch.RecordErrors, *r.Err)
			continue
		}
		rec := r.Record
		if rec == nil {
			continue
		}
		if err := writeMaster(writers[TableICSRMaster], rec); err != nil {
			return nil, err
		}
		batch.RowCounts[TableICSRMaster]++

		if rec.Patient != nil {
			if err := writePatient(writers[TablePatientCharacteristics], rec.Patient); err != nil {
				return nil, err
			}
			batch.RowCounts[TablePatientCharacteristics]++
		}

		for _, rx := range rec.Reactions {
			if err := writeReaction(writers[TableReactions], rx); err != nil {
				return nil, err
			}
			batch.RowCounts[TableReactions]++
		}

		for _, d := range rec.Drugs {
			if err := writeDrug(writers[TableDrugs], d); err != nil {
				return nil, err
			}
			batch.RowCounts[TableDrugs]++
			for _, s := range d.Substances {
				if err := writeDrugSubstance(writers[TableDrugSubstances], s); err != nil {
					return nil, err
				}
				batch.RowCounts[TableDrugSubstances]++
			}
		}

		for _, tp := range rec.TestsProcedures {
			if err := writeTest(writers[TableTestsProcedures], tp); err != nil {
				return nil, err
			}
			batch.RowCounts[TableTestsProcedures]++
		}

		if rec.Narrative != "" {
			if err := writers[TableCaseSummaryNarrative].Write([]string{rec.SafetyReportID, rec.Narrative}); err != nil {
				return nil, err
			}
			batch.RowCounts[TableCaseSummaryNarrative]++
		}
	}

	for table, w := range writers {
		w.Flush()
		if err := w.Error(); err != nil {
			return nil, fmt.Errorf("transform: flushing %s: %w", table, err)
		}
	}

	return batch, nil
}

func writeMaster(w *csv.Writer, rec *xmlextract.Record) error {
	return w.Write([]string{
		rec.SafetyReportID,
		rec.ReceiptDate,
		rec.DateOfMostRecentInfo,
		rec.ReceiverIdentifier,
		rec.SenderIdentifier,
		rec.Qualification,
		rec.ReporterCountry,
		boolString(rec.IsNullified),
	})
}

func writePatient(w *csv.Writer, p *xmlextract.PatientCharacteristics) error {
	return w.Write([]string{p.SafetyReportID, p.Initials, p.OnsetAge, p.Sex})
}

func writeReaction(w *csv.Writer, r xmlextract.Reaction) error {
	return w.Write([]string{r.SafetyReportID, r.PrimarySourceReaction, r.ReactionMeddraPT})
}

func writeDrug(w *csv.Writer, d xmlextract.Drug) error {
	return w.Write([]string{
		d.SafetyReportID,
		itoa(d.DrugSeq),
		d.Characterization,
		d.MedicinalProduct,
		d.DosageText,
	})
}

func writeDrugSubstance(w *csv.Writer, s xmlextract.DrugSubstance) error {
	return w.Write([]string{s.SafetyReportID, itoa(s.DrugSeq), s.ActiveSubstanceName})
}

func writeTest(w *csv.Writer, t xmlextract.TestProcedure) error {
	return w.Write([]string{t.SafetyReportID, t.TestName, t.TestDate, t.TestResult})
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func itoa(i int) string {
	return fmt.Sprintf("%d", i)
}
