package db

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
)

func TestExtractDuplicateKeyName(t *testing.T) {
	tests := []struct {
		message string
		want    string
	}{
		{"Duplicate entry 'abc' for key 'submissions.PRIMARY'", "submissions.PRIMARY"},
		{"Duplicate entry 'x' for key `uniq_client_token`", "uniq_client_token"},
		{"Duplicate entry 'x' for key uniq_client_token", "uniq_client_token"},
		{"no marker here", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ExtractDuplicateKeyName(tt.message); got != tt.want {
			t.Errorf("ExtractDuplicateKeyName(%q) = %q, want %q", tt.message, got, tt.want)
		}
	}
}

func TestUniqueViolation(t *testing.T) {
	dup := &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'tok' for key 'uniq_client_token'"}
	key, ok := UniqueViolation(fmt.Errorf("insert: %w", dup))
	if !ok || key != "uniq_client_token" {
		t.Fatalf("UniqueViolation = (%q, %v), want (\"uniq_client_token\", true)", key, ok)
	}

	other := &mysql.MySQLError{Number: 1452, Message: "foreign key constraint fails"}
	if _, ok := UniqueViolation(other); ok {
		t.Fatal("UniqueViolation matched a non-duplicate error")
	}
	if _, ok := UniqueViolation(errors.New("plain")); ok {
		t.Fatal("UniqueViolation matched a plain error")
	}
}

func TestIsNoRows(t *testing.T) {
	if !IsNoRows(fmt.Errorf("scan failed: %w", sql.ErrNoRows)) {
		t.Fatal("IsNoRows missed a wrapped sql.ErrNoRows")
	}
	if IsNoRows(errors.New("boom")) {
		t.Fatal("IsNoRows matched an unrelated error")
	}
}
