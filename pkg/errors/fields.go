package errors

import (
	stdErrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// LogFields flattens err for structured logs: its code, the unwrap chain
// and, when a Postgres error is in the chain, the server's diagnostics.
func LogFields(err error) map[string]any {
	if err == nil {
		return nil
	}
	fields := map[string]any{"error_code": Coerce(err).Code()}

	var chain []string
	for e := err; e != nil; e = stdErrors.Unwrap(e) {
		chain = append(chain, fmt.Sprintf("%T: %v", e, e))
	}
	fields["error_chain"] = chain

	var pgxErr *pgconn.PgError
	var pqErr *pq.Error
	switch {
	case stdErrors.As(err, &pgxErr):
		addPG(fields, pgxErr.Code, pgxErr.TableName, pgxErr.ColumnName, pgxErr.ConstraintName, pgxErr.Detail)
	case stdErrors.As(err, &pqErr):
		addPG(fields, string(pqErr.Code), pqErr.Table, pqErr.Column, pqErr.Constraint, pqErr.Detail)
	}
	return fields
}

func addPG(fields map[string]any, code, table, column, constraint, detail string) {
	for k, v := range map[string]string{
		"pg_code":       code,
		"pg_table":      table,
		"pg_column":     column,
		"pg_constraint": constraint,
		"pg_detail":     detail,
	} {
		if v != "" {
			fields[k] = v
		}
	}
}
