package postgres

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nishad/eudravigilance/internal/icsrerrors"
)

func TestClassifyPgErrorConstraintViolation(t *testing.T) {
	err := &pgconn.PgError{Code: "23505", Message: "duplicate key"}
	if got := classifyPgError(err); got != icsrerrors.KindDbConstraintViolated {
		t.Errorf("expected KindDbConstraintViolated for SQLSTATE 23505, got %v", got)
	}
}

func TestClassifyPgErrorConnectionException(t *testing.T) {
	err := &pgconn.PgError{Code: "08006", Message: "connection failure"}
	if got := classifyPgError(err); got != icsrerrors.KindDbTransient {
		t.Errorf("expected KindDbTransient for SQLSTATE 08006, got %v", got)
	}
}

func TestClassifyPgErrorDeadlock(t *testing.T) {
	err := &pgconn.PgError{Code: "40P01", Message: "deadlock detected"}
	if got := classifyPgError(err); got != icsrerrors.KindDbTransient {
		t.Errorf("expected KindDbTransient for deadlock, got %v", got)
	}
}

func TestClassifyPgErrorNonPgErrorDefaultsTransient(t *testing.T) {
	if got := classifyPgError(errors.New("boom")); got != icsrerrors.KindDbTransient {
		t.Errorf("expected KindDbTransient default, got %v", got)
	}
}

func TestJoinColumns(t *testing.T) {
	if got := joinColumns([]string{"a", "b", "c"}); got != "a, b, c" {
		t.Errorf("joinColumns = %q, want %q", got, "a, b, c")
	}
	if got := joinColumns(nil); got != "" {
		t.Errorf("joinColumns(nil) = %q, want empty", got)
	}
}
