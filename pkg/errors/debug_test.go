package errors

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestDumpExtractsPostgresDetails(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "otp_challenges_email_purchase_key", TableName: "otp_challenges"}
	err := Wrap(CodeConflict, fmt.Errorf("insert challenge: %w", pgErr), "challenge exists")

	fields := Dump(err).Fields()
	assert.Equal(t, CodeConflict, fields["error_code"])
	assert.Equal(t, false, fields["retryable"])
	assert.Equal(t, "23505", fields["pg_code"])
	assert.Equal(t, "otp_challenges_email_purchase_key", fields["pg_constraint"])
	assert.NotContains(t, fields, "pg_column")
	assert.Len(t, fields["error_chain"], 3)
}

func TestDumpOfPlainError(t *testing.T) {
	fields := Dump(fmt.Errorf("boom")).Fields()
	assert.Equal(t, map[string]any{"error": "boom"}, fields)
	assert.Empty(t, Dump(nil).TopMessage)
}
