package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

func TestCodeTraits(t *testing.T) {
	cases := []struct {
		code    Code
		status  int
		retry   bool
		details bool
	}{
		{CodeValidation, http.StatusBadRequest, false, true},
		{CodeUnauthorized, http.StatusUnauthorized, false, false},
		{CodeForbidden, http.StatusForbidden, false, false},
		{CodeNotFound, http.StatusNotFound, false, false},
		{CodeConflict, http.StatusConflict, false, false},
		{CodeStateConflict, http.StatusUnprocessableEntity, false, true},
		{CodeIdempotency, http.StatusConflict, false, true},
		{CodeRateLimit, http.StatusTooManyRequests, false, false},
		{CodeInsufficient, http.StatusPaymentRequired, false, true},
		{CodeInternal, http.StatusInternalServerError, true, false},
		{CodeDependency, http.StatusServiceUnavailable, true, true},
		{"SOMETHING_ELSE", http.StatusInternalServerError, true, false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.status, tc.code.HTTPStatus(), tc.code)
		require.Equal(t, tc.retry, tc.code.Retryable(), tc.code)
		require.Equal(t, tc.details, tc.code.ExposesDetails(), tc.code)
	}
}

func TestPublicMessageHidesServerSideText(t *testing.T) {
	require.Equal(t, "document not found", New(CodeNotFound, "document not found").PublicMessage())
	require.Equal(t, "validation failed", New(CodeValidation, "").PublicMessage())
	require.Equal(t, "internal server error", Wrap(CodeInternal, stdErrors.New("nil map"), "mint receipt").PublicMessage())
	require.Equal(t, "dependency unavailable", New(CodeDependency, "sendpulse 502").PublicMessage())
}

func TestWrapAndAs(t *testing.T) {
	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "grant credits").WithDetails(map[string]any{"field": "key"})
	require.ErrorIs(t, wrapped, cause)
	require.Equal(t, "CONFLICT: grant credits", wrapped.Error())
	require.NotNil(t, wrapped.Details())

	outer := fmt.Errorf("consume: %w", New(CodeInsufficient, "balance too low"))
	require.True(t, IsCode(outer, CodeInsufficient))
	require.False(t, IsCode(outer, CodeConflict))
	require.False(t, IsCode(stdErrors.New("plain"), CodeInternal))
	require.Nil(t, As(nil))

	require.Equal(t, CodeInternal, Coerce(stdErrors.New("plain")).Code())
	require.Equal(t, CodeInsufficient, Coerce(outer).Code())
	require.Equal(t, CodeInternal, Coerce(nil).Code())
}

func TestLogFieldsCarryPostgresDiagnostics(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "uq_payment_provider_reference", TableName: "payments"}
	fields := LogFields(Wrap(CodeConflict, fmt.Errorf("insert: %w", pgErr), "record payment"))

	require.Equal(t, CodeConflict, fields["error_code"])
	require.Equal(t, "23505", fields["pg_code"])
	require.Equal(t, "payments", fields["pg_table"])
	require.NotContains(t, fields, "pg_column")
	require.Len(t, fields["error_chain"], 3)

	fields = LogFields(&pq.Error{Code: "23514", Constraint: "profiles_credit_balance_check"})
	require.Equal(t, "23514", fields["pg_code"])
	require.Equal(t, CodeInternal, fields["error_code"])

	require.Nil(t, LogFields(nil))
}
