package db

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsUniqueViolation(t *testing.T) {
	slotErr := &pgconn.PgError{Code: "23505", ConstraintName: "appointments_active_slot_uniq"}

	if !IsUniqueViolation(fmt.Errorf("insert: %w", slotErr), "appointments_active_slot_uniq") {
		t.Error("wrapped slot violation not detected")
	}
	if !IsUniqueViolation(slotErr, "") {
		t.Error("any-constraint match failed")
	}
	if IsUniqueViolation(slotErr, "referrals_code_key") {
		t.Error("matched the wrong constraint")
	}
	if IsUniqueViolation(&pgconn.PgError{Code: "23503"}, "") {
		t.Error("foreign key violation reported as unique violation")
	}
	if IsUniqueViolation(errors.New("boom"), "") {
		t.Error("plain error reported as unique violation")
	}
}

func TestSchemaDeclaresSlotBackstop(t *testing.T) {
	if !strings.Contains(schema, "appointments_active_slot_uniq") {
		t.Fatal("schema is missing the active slot unique index")
	}
	if !strings.Contains(schema, "WHERE status <> 'cancelled'") {
		t.Fatal("active slot index must exclude cancelled appointments")
	}
}
