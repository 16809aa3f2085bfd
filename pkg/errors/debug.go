package errors

import (
	stdErrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrorDump is the log-only view of an error chain. It is never sent to clients.
type ErrorDump struct {
	TopMessage string `json:"top_message"`
	Code       Code   `json:"code,omitempty"`
	HTTPStatus int    `json:"http_status"`
	Retryable  bool   `json:"retryable"`
	Details    any    `json:"details,omitempty"`

	Chain []string `json:"chain,omitempty"`

	Postgres *PostgresDump `json:"postgres,omitempty"`
}

// PostgresDump carries the server-side fields of a pgx error.
type PostgresDump struct {
	Code       string `json:"code"`
	Constraint string `json:"constraint,omitempty"`
	Table      string `json:"table,omitempty"`
	Column     string `json:"column,omitempty"`
	Detail     string `json:"detail,omitempty"`
	Message    string `json:"message,omitempty"`
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	d := ErrorDump{
		TopMessage: err.Error(),
		Retryable:  IsRetryable(err),
		HTTPStatus: MetadataFor(CodeInternal).HTTPStatus,
	}
	if typed := As(err); typed != nil {
		d.Code = typed.Code()
		d.HTTPStatus = MetadataFor(typed.Code()).HTTPStatus
		d.Details = typed.Details()
	}

	for e := err; e != nil; e = stdErrors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}

	var pgErr *pgconn.PgError
	if stdErrors.As(err, &pgErr) {
		d.Postgres = &PostgresDump{
			Code:       pgErr.Code,
			Constraint: pgErr.ConstraintName,
			Table:      pgErr.TableName,
			Column:     pgErr.ColumnName,
			Detail:     pgErr.Detail,
			Message:    pgErr.Message,
		}
	}
	return d
}
