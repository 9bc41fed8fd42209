package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Postgres SQLSTATEs that clear up on retry.
var pgContention = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"55P03": true, // lock_not_available
}

// ErrorDump flattens an error chain into log-friendly fields, including the
// storage driver's own codes when a database error is buried in it.
type ErrorDump struct {
	TopMessage string
	Code       Code
	Chain      []string

	// Driver is "sqlite", "pgx" or "pq" when a driver error was found.
	Driver     string
	DriverCode string
	Constraint string
	Table      string
	Detail     string
	// Contended marks lock and busy errors that a retry can clear.
	Contended bool
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	d := ErrorDump{TopMessage: err.Error(), Code: CodeOf(err)}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}

	var liteErr sqlite3.Error
	var pgxErr *pgconn.PgError
	var pqErr *pq.Error
	switch {
	case errors.As(err, &liteErr):
		d.Driver = "sqlite"
		d.DriverCode = fmt.Sprintf("%d/%d", int(liteErr.Code), int(liteErr.ExtendedCode))
		d.Detail = liteErr.Error()
		d.Contended = liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked
	case errors.As(err, &pgxErr):
		d.Driver = "pgx"
		d.DriverCode = pgxErr.Code
		d.Constraint = pgxErr.ConstraintName
		d.Table = pgxErr.TableName
		d.Detail = pgxErr.Detail
		d.Contended = pgContention[pgxErr.Code]
	case errors.As(err, &pqErr):
		d.Driver = "pq"
		d.DriverCode = string(pqErr.Code)
		d.Constraint = pqErr.Constraint
		d.Table = pqErr.Table
		d.Detail = pqErr.Detail
		d.Contended = pgContention[string(pqErr.Code)]
	}
	return d
}

// Fields renders the dump as structured log fields, omitting empty ones.
func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{
		"error":       d.TopMessage,
		"error_code":  d.Code,
		"error_chain": d.Chain,
	}
	if d.Driver == "" {
		return fields
	}
	fields["db_driver"] = d.Driver
	fields["db_code"] = d.DriverCode
	fields["db_contended"] = d.Contended
	for k, v := range map[string]string{"db_constraint": d.Constraint, "db_table": d.Table, "db_detail": d.Detail} {
		if v != "" {
			fields[k] = v
		}
	}
	return fields
}
