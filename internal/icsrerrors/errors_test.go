package icsrerrors

import (
	"fmt"
	"strings"
	"testing"
)

func TestErrorCreation(t *testing.T) {
	err := E(Op("loader.upsert"), KindDbTransient, "connection dropped")

	if err.Op != "loader.upsert" {
		t.Errorf("expected Op 'loader.upsert', got %q", err.Op)
	}
	if err.Kind != KindDbTransient {
		t.Errorf("expected Kind KindDbTransient, got %v", err.Kind)
	}
	if err.Msg != "connection dropped" {
		t.Errorf("expected Msg 'connection dropped', got %q", err.Msg)
	}
}

func TestErrorWithWrappedError(t *testing.T) {
	underlying := fmt.Errorf("connection refused")
	err := E(Op("loader.connect"), KindDbTransient, underlying, "failed to connect")

	if err.Err != underlying {
		t.Error("expected underlying error to be set")
	}

	errStr := err.Error()
	for _, want := range []string{"loader.connect", "failed to connect", "connection refused"} {
		if !strings.Contains(errStr, want) {
			t.Errorf("error string %q should contain %q", errStr, want)
		}
	}
}

func TestErrorUnwrap(t *testing.T) {
	underlying := fmt.Errorf("root cause")
	err := E(Op("xmlextract.parse"), underlying)

	if unwrapped := err.Unwrap(); unwrapped != underlying {
		t.Error("Unwrap should return the underlying error")
	}
}

func TestWrapNilIsNil(t *testing.T) {
	if Wrap("op", KindInvalidICSR, nil) != nil {
		t.Error("Wrap(nil) should return nil")
	}
	if WrapMsg("op", KindInvalidICSR, "msg", nil) != nil {
		t.Error("WrapMsg(nil) should return nil")
	}
}

func TestIsKindAndGetKind(t *testing.T) {
	base := fmt.Errorf("boom")
	wrapped := Wrap("orchestrator.worker", KindDbConstraintViolated, base)

	if !IsKind(wrapped, KindDbConstraintViolated) {
		t.Error("expected IsKind to match KindDbConstraintViolated")
	}
	if IsKind(wrapped, KindXMLNotWellFormed) {
		t.Error("expected IsKind to reject the wrong kind")
	}
	if got := GetKind(wrapped); got != KindDbConstraintViolated {
		t.Errorf("expected GetKind KindDbConstraintViolated, got %v", got)
	}
	if got := GetKind(base); got != KindUnknown {
		t.Errorf("expected GetKind KindUnknown for a plain error, got %v", got)
	}
}

func TestKindFatalAndRecordLevel(t *testing.T) {
	fatalKinds := []Kind{KindConfigInvalid, KindSourceUnavailable, KindDbSchemaMismatch}
	for _, k := range fatalKinds {
		if !k.Fatal() {
			t.Errorf("expected %v to be fatal", k)
		}
	}
	if KindFileOpenFailed.Fatal() {
		t.Error("expected KindFileOpenFailed to not be fatal")
	}
	if !KindInvalidICSR.RecordLevel() {
		t.Error("expected KindInvalidICSR to be record-level")
	}
	if KindXMLNotWellFormed.RecordLevel() {
		t.Error("expected KindXMLNotWellFormed to not be record-level")
	}
}

func TestSkipCounter(t *testing.T) {
	sc := NewSkipCounter("icsr_record")
	sc.Skip(fmt.Errorf("missing safetyreportid"))
	sc.Skip(fmt.Errorf("malformed subtree"))

	if sc.Count != 2 {
		t.Errorf("expected Count 2, got %d", sc.Count)
	}
	if sc.LastErr == nil || sc.LastErr.Error() != "malformed subtree" {
		t.Errorf("expected LastErr to be the most recent skip, got %v", sc.LastErr)
	}
}
