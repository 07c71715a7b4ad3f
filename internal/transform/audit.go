package transform

import (
	"encoding/csv"
	"encoding/json"
	"fmt"

	"github.com/nishad/eudravigilance/internal/xmlextract"
)

// auditColumns is the fixed column order for the single audit-mode table.
var auditColumns = []string{"safetyreportid", "receiptdate", "icsr_payload", "etl_load_timestamp"}

// AuditBatch is the transformer's audit-mode output.
type AuditBatch struct {
	Buffer       *RowBuffer
	RowCount     int
	RecordErrors []xmlextract.RecordError
}

type auditRow struct {
	safetyReportID string
	receiptDate    string
	payload        []byte
}

// Audit drains results, keeping only the newest receiptdate per
// safetyreportid within this stream (lexicographic comparison on the
// fixed-length ISO-8601 date strings), and writes one CSV row per
// surviving safetyreportid. loadTimestamp is stamped onto every row so
// callers control the clock rather than the transformer reaching for one.
func Audit(results <-chan xmlextract.Result, loadTimestamp string) (*AuditBatch, error) {
	latest := make(map[string]auditRow)
	order := make([]string, 0)
	batch := &AuditBatch{}

	for r := range results {
		if r.Err != nil {
			batch.RecordErrors = append(batch.RecordErrors, *r.Err)
			continue
		}
		if r.Audit == nil {
			continue
		}
		id := r.Audit.Path("safetyreportid")
		if id == "" {
			continue
		}
		receiptDate := r.Audit.Path("receiptdate")

		payload, err := json.Marshal(r.Audit.ToValue())
		if err != nil {
			return nil, fmt.Errorf("transform: marshaling audit payload for %s: %w", id, err)
		}

		if existing, ok := latest[id]; !ok {
			order = append(order, id)
			latest[id] = auditRow{safetyReportID: id, receiptDate: receiptDate, payload: payload}
		} else if receiptDate >= existing.receiptDate {
			latest[id] = auditRow{safetyReportID: id, receiptDate: receiptDate, payload: payload}
		}
	}

	rb := newRowBuffer()
	w := csv.NewWriter(rb.buf)
	if err := w.Write(auditColumns); err != nil {
		return nil, fmt.Errorf("transform: writing audit header: %w", err)
	}
	for _, id := range order {
		row := latest[id]
		if err := w.Write([]string{row.safetyReportID, row.receiptDate, string(row.payload), loadTimestamp}); err != nil {
			return nil, fmt.Errorf("transform: writing audit row for %s: %w", id, err)
		}
		batch.RowCount++
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("transform: flushing audit buffer: %w", err)
	}

	batch.Buffer = rb
	return batch, nil
}
