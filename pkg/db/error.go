package db

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// SQLSTATE codes that matter to partition provisioning and rollup retry.
const (
	pgDuplicateTable       = "42P07"
	pgUndefinedTable       = "42P01"
	pgInsufficientPriv     = "42501"
	pgSerializationFailure = "40001"
	pgLockNotAvailable     = "55P03"
	pgCannotConnectNow     = "57P03"
)

func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	if hasPGCode(err, "23505") {
		return true
	}
	// SQLite unique violation (test dialect).
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// IsDuplicateTableErr reports the benign "partition already exists" case.
func IsDuplicateTableErr(err error) bool {
	if err == nil {
		return false
	}
	if hasPGCode(err, pgDuplicateTable) {
		return true
	}
	return strings.Contains(err.Error(), "already exists")
}

// IsUndefinedTableErr reports a missing parent table. Fatal for provisioning.
func IsUndefinedTableErr(err error) bool {
	if err == nil {
		return false
	}
	if hasPGCode(err, pgUndefinedTable) {
		return true
	}
	return strings.Contains(err.Error(), "no such table")
}

func IsPermissionErr(err error) bool {
	return hasPGCode(err, pgInsufficientPriv)
}

// IsTransientErr reports errors worth retrying with backoff: serialization
// failures, lock timeouts, and connection-level trouble. Context
// cancellation is deliberately not transient.
func IsTransientErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgLockNotAvailable, pgCannotConnectNow:
			return true
		}
		// Class 08: connection exceptions.
		return strings.HasPrefix(pgErr.Code, "08")
	}
	return false
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}
