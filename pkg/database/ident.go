package database

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes the tenancy engine branches on.
const (
	CodeUniqueViolation     = "23505"
	CodeForeignKeyViolation = "23503"
	CodeNotNullViolation    = "23502"
	CodeDuplicateSchema     = "42P06"
	CodeDuplicateTable      = "42P07"
	CodeDuplicateObject     = "42710"
	CodeInvalidSchemaName   = "3F000"
	CodeUndefinedTable      = "42P01"
)

// QuoteIdent quotes and joins identifier parts, e.g. QuoteIdent("tenant_a", "users")
// yields "tenant_a"."users". Embedded quotes are escaped and NUL bytes dropped.
func QuoteIdent(parts ...string) string {
	return pgx.Identifier(parts).Sanitize()
}

// ErrorCode returns the SQLSTATE of a Postgres error, or "" for anything else.
func ErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsAlreadyExists reports whether err is one of the "object already exists"
// errors a concurrent IF NOT EXISTS creator can still raise.
func IsAlreadyExists(err error) bool {
	switch ErrorCode(err) {
	case CodeDuplicateSchema, CodeDuplicateTable, CodeDuplicateObject:
		return true
	}
	return false
}
