package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrStoreUnavailable marks failures that are worth retrying later:
// lost connections, lock timeouts, serialization failures and deadlocks.
var ErrStoreUnavailable = errors.New("store unavailable")

// Postgres SQLSTATE codes treated as transient
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
	codeQueryCanceled        = "57014"
)

// IsTransient reports whether err is a retryable infrastructure failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrStoreUnavailable) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable, codeQueryCanceled:
			return true
		}
		// Class 08: connection exceptions
		return len(pgErr.Code) == 5 && pgErr.Code[:2] == "08"
	}

	return pgconn.SafeToRetry(err) || pgconn.Timeout(err)
}
