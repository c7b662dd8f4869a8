package execute

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrSchemaMismatch is returned when the database lacks a table or column the model expects
	ErrSchemaMismatch = errors.New("database does not match model")

	// ErrNoRows is returned when the row a delete targets does not exist
	ErrNoRows = errors.New("no rows found")

	// ErrInvalidKey is returned when a key value cannot be used for matching
	ErrInvalidKey = errors.New("invalid key value")

	// ErrForeignKeyViolation is returned when the database rejects a delete
	// that the model allowed
	ErrForeignKeyViolation = errors.New("foreign key constraint violation")

	// ErrDeleteBlocked is returned when applying a blocked delete action
	ErrDeleteBlocked = errors.New("delete blocked")
)

// ConvertDBError converts database-specific errors to execution errors
func ConvertDBError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrNoRows
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "42P01": // undefined_table
			return fmt.Errorf("%w: %s", ErrSchemaMismatch, pgErr.Message)
		case "42703": // undefined_column
			return fmt.Errorf("%w: %s", ErrSchemaMismatch, pgErr.Message)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%w: %s", ErrForeignKeyViolation, pgErr.Detail)
		}
	}

	return err
}

// IsSchemaMismatch returns true if the error is ErrSchemaMismatch
func IsSchemaMismatch(err error) bool {
	return errors.Is(err, ErrSchemaMismatch)
}
