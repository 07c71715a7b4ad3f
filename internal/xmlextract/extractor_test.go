package xmlextract

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

const batchTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<ichicsrMessage xmlns="urn:hl7-org:v3">
%s
</ichicsrMessage>`

const icsrA1 = `<safetyreport>
  <safetyreportid>A1</safetyreportid>
  <receiptdate>2024-01-01</receiptdate>
  <dateofmostrecentinfo>2024-01-01</dateofmostrecentinfo>
  <receiver><receiverid>RECV1</receiverid></receiver>
  <sender><senderid>SEND1</senderid></sender>
  <primarysource>
    <qualification>physician</qualification>
    <reportercountry>US</reportercountry>
  </primarysource>
  <patient>
    <patientinitial>J.D.</patientinitial>
    <patientonsetage>45</patientonsetage>
    <patientsex>1</patientsex>
  </patient>
  <reaction>
    <primarysourcereaction>Nausea</primarysourcereaction>
    <reactionmeddrapt>Nausea</reactionmeddrapt>
  </reaction>
  <drug>
    <drugcharacterization>1</drugcharacterization>
    <medicinalproduct>X</medicinalproduct>
    <drugdosagetext>10mg daily</drugdosagetext>
    <activesubstance><activesubstancename>substance-x</activesubstancename></activesubstance>
  </drug>
  <test>
    <testname>ALT</testname>
    <testdate>2024-01-02</testdate>
    <testresult>normal</testresult>
  </test>
  <narrativeincludeclinical>Patient recovered.</narrativeincludeclinical>
  <reporttype>1</reporttype>
</safetyreport>`

func extractAll(t *testing.T, xmlDoc string, mode Mode) ([]Result, error) {
	t.Helper()
	out, errs := Extract(context.Background(), strings.NewReader(xmlDoc), mode)
	var results []Result
	for r := range out {
		results = append(results, r)
	}
	return results, <-errs
}

func TestExtractNormalizedSingleRecord(t *testing.T) {
	doc := fmtBatch(icsrA1)
	results, err := extractAll(t, doc, ModeNormalized)
	if err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	rec := results[0].Record
	if rec == nil {
		t.Fatalf("expected a Record, got error %v", results[0].Err)
	}
	if rec.SafetyReportID != "A1" {
		t.Errorf("SafetyReportID = %q, want A1", rec.SafetyReportID)
	}
	if rec.ReceiptDate != "2024-01-01" {
		t.Errorf("ReceiptDate = %q", rec.ReceiptDate)
	}
	if rec.ReceiverIdentifier != "RECV1" || rec.SenderIdentifier != "SEND1" {
		t.Errorf("identifiers = %q/%q", rec.ReceiverIdentifier, rec.SenderIdentifier)
	}
	if rec.Qualification != "physician" || rec.ReporterCountry != "US" {
		t.Errorf("primarysource fields = %q/%q", rec.Qualification, rec.ReporterCountry)
	}
	if rec.Patient == nil || rec.Patient.Initials != "J.D." {
		t.Errorf("patient = %+v", rec.Patient)
	}
	if len(rec.Reactions) != 1 || rec.Reactions[0].ReactionMeddraPT != "Nausea" {
		t.Errorf("reactions = %+v", rec.Reactions)
	}
	if len(rec.Drugs) != 1 || rec.Drugs[0].DrugSeq != 1 || rec.Drugs[0].MedicinalProduct != "X" {
		t.Errorf("drugs = %+v", rec.Drugs)
	}
	if len(rec.Drugs[0].Substances) != 1 || rec.Drugs[0].Substances[0].ActiveSubstanceName != "substance-x" {
		t.Errorf("drug substances = %+v", rec.Drugs[0].Substances)
	}
	if len(rec.TestsProcedures) != 1 || rec.TestsProcedures[0].TestName != "ALT" {
		t.Errorf("tests = %+v", rec.TestsProcedures)
	}
	if rec.Narrative != "Patient recovered." {
		t.Errorf("narrative = %q", rec.Narrative)
	}
	if rec.IsNullified {
		t.Error("expected IsNullified = false")
	}
}

func TestExtractDrugSeqAssignedInDocumentOrder(t *testing.T) {
	second := strings.Replace(icsrA1, "<medicinalproduct>X</medicinalproduct>", "<medicinalproduct>Y</medicinalproduct>", 1)
	second = strings.Replace(second, "</drug>", "</drug>\n  <drug><medicinalproduct>Z</medicinalproduct></drug>", 1)
	doc := fmtBatch(icsrA1 + second)
	results, err := extractAll(t, doc, ModeNormalized)
	if err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Record.Drugs[0].DrugSeq != 1 || results[1].Record.Drugs[0].DrugSeq != 1 {
		t.Errorf("drug_seq must restart per ICSR, got %+v / %+v", results[0].Record.Drugs, results[1].Record.Drugs)
	}
	if len(results[1].Record.Drugs) != 2 || results[1].Record.Drugs[1].DrugSeq != 2 || results[1].Record.Drugs[1].MedicinalProduct != "Z" {
		t.Errorf("second drug of an ICSR must get drug_seq 2 in document order, got %+v", results[1].Record.Drugs)
	}
}

func TestExtractNullificationByReportType(t *testing.T) {
	nullified := strings.Replace(icsrA1, "<reporttype>1</reporttype>", "<reporttype>nullification</reporttype>", 1)
	doc := fmtBatch(nullified)
	results, err := extractAll(t, doc, ModeNormalized)
	if err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}
	if !results[0].Record.IsNullified {
		t.Error("expected IsNullified = true for reporttype=nullification")
	}
}

func TestExtractMissingSafetyReportIDIsRecordError(t *testing.T) {
	broken := strings.Replace(icsrA1, "<safetyreportid>A1</safetyreportid>", "<safetyreportid></safetyreportid>", 1)
	doc := fmtBatch(broken)
	results, err := extractAll(t, doc, ModeNormalized)
	if err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}
	if len(results) != 1 || results[0].Err == nil {
		t.Fatalf("expected a RecordError, got %+v", results)
	}
	if results[0].Err.Ordinal != 1 {
		t.Errorf("Ordinal = %d, want 1", results[0].Err.Ordinal)
	}
}

// TestExtractPartialCorruption covers scenario S6: the second of three
// ICSRs is invalid, but the first and third still load.
func TestExtractPartialCorruption(t *testing.T) {
	a2 := strings.Replace(icsrA1, "A1", "A2", -1)
	a2 = strings.Replace(a2, "<safetyreportid>A2</safetyreportid>", "<safetyreportid></safetyreportid>", 1)
	a3 := strings.Replace(icsrA1, "A1", "A3", -1)

	doc := fmtBatch(icsrA1 + a2 + a3)
	results, err := extractAll(t, doc, ModeNormalized)
	if err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Record == nil || results[0].Record.SafetyReportID != "A1" {
		t.Errorf("result 0 = %+v", results[0])
	}
	if results[1].Err == nil {
		t.Errorf("result 1 should be a RecordError, got %+v", results[1])
	}
	if results[2].Record == nil || results[2].Record.SafetyReportID != "A3" {
		t.Errorf("result 2 = %+v", results[2])
	}
}

func TestExtractAuditModePreservesTreeAndFlattensScalars(t *testing.T) {
	doc := fmtBatch(icsrA1)
	results, err := extractAll(t, doc, ModeAudit)
	if err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}
	if len(results) != 1 || results[0].Audit == nil {
		t.Fatalf("expected an AuditNode, got %+v", results)
	}

	val := results[0].Audit.ToValue()
	raw, err := json.Marshal(val)
	if err != nil {
		t.Fatalf("json.Marshal failed: %v", err)
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(raw, &obj); err != nil {
		t.Fatalf("json.Unmarshal failed: %v", err)
	}
	if obj["safetyreportid"] != "A1" {
		t.Errorf("safetyreportid = %v, want scalar A1", obj["safetyreportid"])
	}
	reactions, ok := obj["reaction"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected single reaction to flatten to an object, got %T", obj["reaction"])
	}
	if reactions["reactionmeddrapt"] != "Nausea" {
		t.Errorf("reaction/reactionmeddrapt = %v", reactions["reactionmeddrapt"])
	}
}

func TestExtractBatchLevelMalformedXMLIsFatal(t *testing.T) {
	// An attribute value with no closing quote is a raw tokenization
	// failure even in lenient mode, unlike a merely mismatched tag.
	doc := `<ichicsrMessage xmlns="urn:hl7-org:v3"><tag attr="unterminated></ichicsrMessage>`
	_, err := extractAll(t, doc, ModeNormalized)
	if err == nil {
		t.Error("expected a fatal error for an unparseable envelope")
	}
}

func fmtBatch(inner string) string {
	return strings.Replace(batchTemplate, "%s", inner, 1)
}
