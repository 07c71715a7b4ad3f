package loader

import (
	"context"
	"errors"
	"testing"
)

func TestDialectOf(t *testing.T) {
	tests := []struct {
		dsn     string
		want    string
		wantErr bool
	}{
		{"postgres://user@host/db", "postgres", false},
		{"postgresql://user@host/db", "postgres", false},
		{"sqlite:///tmp/file.db", "sqlite", false},
		{"sqlite3:///tmp/file.db", "sqlite", false},
		{"mysql://user@host/db", "mysql", false},
		{"://broken", "", true},
	}

	for _, tt := range tests {
		got, err := dialectOf(tt.dsn)
		if tt.wantErr {
			if err == nil {
				t.Errorf("dialectOf(%q): expected error, got nil", tt.dsn)
			}
			continue
		}
		if err != nil {
			t.Fatalf("dialectOf(%q): unexpected error: %v", tt.dsn, err)
		}
		if got != tt.want {
			t.Errorf("dialectOf(%q) = %q, want %q", tt.dsn, got, tt.want)
		}
	}
}

func TestOpenUnregisteredDialect(t *testing.T) {
	_, err := Open(context.Background(), "mysql://user@host/db")
	if err == nil {
		t.Fatal("expected an error opening an unregistered dialect")
	}
	if !errors.Is(err, errUnregisteredDialect) {
		t.Errorf("expected errUnregisteredDialect, got %v", err)
	}
}

func TestOpenDispatchesToRegisteredFactory(t *testing.T) {
	called := false
	Register("teststub", func(ctx context.Context, dsn string) (Loader, error) {
		called = true
		return nil, nil
	})

	if _, err := Open(context.Background(), "teststub://anything"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("expected the registered factory to be invoked")
	}
}
