package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// ErrorDump is the log-only breakdown of an error: its typed code, the wrap
// chain and, for state store failures, the driver level diagnostics.
type ErrorDump struct {
	TopMessage string `json:"top_message"`
	Code       Code   `json:"code,omitempty"`
	HTTPStatus int    `json:"http_status,omitempty"`
	Retryable  bool   `json:"retryable,omitempty"`
	Details    any    `json:"details,omitempty"`

	Chain []string `json:"chain,omitempty"`

	SQLDriver     string `json:"sql_driver,omitempty"`
	SQLCode       string `json:"sql_code,omitempty"`
	SQLConstraint string `json:"sql_constraint,omitempty"`
	SQLTable      string `json:"sql_table,omitempty"`
	SQLDetail     string `json:"sql_detail,omitempty"`
	SQLMessage    string `json:"sql_message,omitempty"`
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	d := ErrorDump{TopMessage: err.Error()}
	if te := As(err); te != nil {
		meta := MetadataFor(te.Code())
		d.Code = te.Code()
		d.HTTPStatus = meta.HTTPStatus
		d.Retryable = meta.Retryable
		d.Details = te.Details()
	}

	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}

	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		d.SQLDriver = "pgx"
		d.SQLCode = pgxErr.Code
		d.SQLConstraint = pgxErr.ConstraintName
		d.SQLTable = pgxErr.TableName
		d.SQLDetail = pgxErr.Detail
		d.SQLMessage = pgxErr.Message
		return d
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		d.SQLDriver = "pq"
		d.SQLCode = string(pqErr.Code)
		d.SQLConstraint = pqErr.Constraint
		d.SQLTable = pqErr.Table
		d.SQLDetail = pqErr.Detail
		d.SQLMessage = pqErr.Message
		return d
	}

	// Local state defaults to sqlite; busy and locked codes show up here.
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		d.SQLDriver = "sqlite3"
		d.SQLCode = fmt.Sprintf("%d/%d", int(liteErr.Code), int(liteErr.ExtendedCode))
		d.SQLMessage = liteErr.Error()
	}
	return d
}
