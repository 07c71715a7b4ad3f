package xmlextract

import (
	"context"
	"encoding/xml"
	"errors"
	"io"
	"strings"

	"github.com/nishad/eudravigilance/internal/icsrerrors"
)

// NamespaceURI is the E2B(R3) HL7 v3 namespace every element is expected
// to resolve into.
const NamespaceURI = "urn:hl7-org:v3"

// recordElement is the local name of one ICSR within the ichicsrMessage
// batch envelope. Field paths in the E2B(R3) mapping table are relative
// to this element.
const recordElement = "safetyreport"

// Extract streams r and yields one Result per ICSR found, in document
// order, on the returned channel. It never materializes more than one
// ICSR subtree in memory at a time. A fatal, batch-level well-formedness
// error (outside any record's own subtree) is sent on the error channel
// and ends extraction; per-record problems are reported as Result.Err
// and do not stop the stream.
func Extract(ctx context.Context, r io.Reader, mode Mode) (<-chan Result, <-chan error) {
	out := make(chan Result, 32)
	fatal := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(fatal)

		dec := xml.NewDecoder(r)
		// Mirrors the teacher's own parser configuration: tolerate
		// markup that a strict parser would reject outright, since a
		// single unclosed tag inside one ICSR must not sink the file.
		dec.Strict = false
		dec.AutoClose = xml.HTMLAutoClose

		ordinal := 0
		for {
			select {
			case <-ctx.Done():
				fatal <- ctx.Err()
				return
			default:
			}

			tok, err := dec.Token()
			if err == io.EOF {
				return
			}
			if err != nil {
				fatal <- icsrerrors.Wrap("xmlextract.Extract", icsrerrors.KindXMLNotWellFormed, err)
				return
			}

			start, ok := tok.(xml.StartElement)
			if !ok {
				continue
			}
			if start.Name.Local != recordElement {
				continue
			}
			if start.Name.Space != "" && start.Name.Space != NamespaceURI {
				continue
			}

			ordinal++
			node, err := buildSubtree(dec, start)
			if err != nil {
				out <- Result{Err: &RecordError{Ordinal: ordinal, Reason: err.Error()}}
				continue
			}
			if node.Path("safetyreportid") == "" {
				out <- Result{Err: &RecordError{Ordinal: ordinal, Reason: errMissingSafetyReportID.Error()}}
				continue
			}

			switch mode {
			case ModeAudit:
				out <- Result{Audit: node}
			default:
				rec, verr := toRecord(node)
				if verr != nil {
					out <- Result{Err: &RecordError{Ordinal: ordinal, Reason: verr.Error()}}
					continue
				}
				out <- Result{Record: rec}
			}
		}
	}()

	return out, fatal
}

var errMissingSafetyReportID = errors.New("missing or empty safetyreportid")

// toRecord flattens a built ICSR subtree into the closed Record shape,
// following the E2B(R3) path mappings.
func toRecord(node *AuditNode) (*Record, error) {
	id := node.Path("safetyreportid")
	if id == "" {
		return nil, errMissingSafetyReportID
	}

	rec := &Record{
		SafetyReportID:       id,
		ReceiptDate:          node.Path("receiptdate"),
		DateOfMostRecentInfo: node.Path("dateofmostrecentinfo"),
		ReceiverIdentifier:   node.Path("receiver", "receiverid"),
		SenderIdentifier:     node.Path("sender", "senderid"),
	}

	if ps := node.Child("primarysource"); ps != nil {
		rec.Qualification = ps.Path("qualification")
		rec.ReporterCountry = ps.Path("reportercountry")
	}

	if patient := node.Child("patient"); patient != nil {
		rec.Patient = &PatientCharacteristics{
			SafetyReportID: id,
			Initials:       patient.Path("patientinitial"),
			OnsetAge:       patient.Path("patientonsetage"),
			Sex:            patient.Path("patientsex"),
		}
	}

	for _, r := range node.AllChildren("reaction") {
		rec.Reactions = append(rec.Reactions, Reaction{
			SafetyReportID:        id,
			PrimarySourceReaction: r.Path("primarysourcereaction"),
			ReactionMeddraPT:      r.Path("reactionmeddrapt"),
		})
	}

	for i, d := range node.AllChildren("drug") {
		seq := i + 1
		drug := Drug{
			SafetyReportID:   id,
			DrugSeq:          seq,
			Characterization: d.Path("drugcharacterization"),
			MedicinalProduct: d.Path("medicinalproduct"),
			DosageText:       d.Path("drugdosagetext"),
		}
		for _, as := range d.AllChildren("activesubstance") {
			name := as.Path("activesubstancename")
			if name == "" {
				continue
			}
			drug.Substances = append(drug.Substances, DrugSubstance{
				SafetyReportID:      id,
				DrugSeq:             seq,
				ActiveSubstanceName: name,
			})
		}
		rec.Drugs = append(rec.Drugs, drug)
	}

	for _, t := range node.AllChildren("test") {
		rec.TestsProcedures = append(rec.TestsProcedures, TestProcedure{
			SafetyReportID: id,
			TestName:       t.Path("testname"),
			TestDate:       t.Path("testdate"),
			TestResult:     t.Path("testresult"),
		})
	}

	rec.Narrative = node.Path("narrativeincludeclinical")

	reportType := strings.ToLower(node.Path("reporttype"))
	if strings.Contains(reportType, "nullification") || node.Child("nullificationreason") != nil {
		rec.IsNullified = true
	}

	return rec, nil
}
