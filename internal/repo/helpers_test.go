package repo

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsUniqueViolation(t *testing.T) {
	dup := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})
	other := &pgconn.PgError{Code: "23503"}

	if !isUniqueViolation(dup) {
		t.Error("wrapped 23505 should be a unique violation")
	}
	if isUniqueViolation(other) {
		t.Error("23503 is not a unique violation")
	}
	if isUniqueViolation(errors.New("boom")) {
		t.Error("plain error is not a unique violation")
	}
}

func TestJSONBRoundTrip(t *testing.T) {
	data, err := marshalJSONB("result", map[string]any{"stdout": "hi\n", "exit_code": 0})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	got, err := unmarshalJSONB("result", data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["stdout"] != "hi\n" || got["exit_code"] != float64(0) {
		t.Errorf("unexpected result: %v", got)
	}

	if data, _ := marshalJSONB("result", nil); data != nil {
		t.Errorf("nil map should be stored as NULL, got %s", data)
	}
	if got, _ := unmarshalJSONB("result", nil); got != nil {
		t.Errorf("NULL should decode to nil map, got %v", got)
	}
}

func TestNullHelpers(t *testing.T) {
	if nullString("") != nil || *nullString("x") != "x" {
		t.Error("nullString")
	}
	if nullInt(0) != nil || *nullInt(5) != 5 {
		t.Error("nullInt")
	}
	nilID := uuid.Nil
	if nullUUID(nil) != nil || nullUUID(&nilID) != nil {
		t.Error("nullUUID should map nil and uuid.Nil to NULL")
	}
}

func TestLimitOrDefault(t *testing.T) {
	tests := map[int]int{0: 100, -1: 100, 5: 5, 1000: 1000, 5000: 100}
	for in, want := range tests {
		if got := limitOrDefault(in); got != want {
			t.Errorf("limitOrDefault(%d) = %d, want %d", in, got, want)
		}
	}
}
