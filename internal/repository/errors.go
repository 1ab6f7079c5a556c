// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as the
// markup manager and handlers to distinguish between different failure
// scenarios. For example, ErrDuplicateActive signals that a concurrent
// writer already inserted the active markup for the same tuple, while
// ErrNotFound means a referenced row does not exist.
package repository

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a requested row does not exist.
// Handlers should translate this into an HTTP 404 response.
var ErrNotFound = errors.New("not found")

// ErrDuplicateActive is returned when inserting an active markup collides
// with another active markup for the same (owner, item) tuple. It is
// the expected outcome of two concurrent apply calls and is retryable.
var ErrDuplicateActive = errors.New("active markup already exists")

// ErrDuplicateToken is returned when a freshly generated markup token
// collides with an existing one. Generating a new token resolves it.
var ErrDuplicateToken = errors.New("markup token already exists")

// ErrDeadlock is returned when the database aborted a transaction to
// break a lock cycle. The whole transaction may be retried.
var ErrDeadlock = errors.New("transaction deadlock")

// Retryable reports whether err is a conflict the caller may resolve by
// running the whole transaction again.
func Retryable(err error) bool {
	return errors.Is(err, ErrDuplicateActive) || errors.Is(err, ErrDuplicateToken) || errors.Is(err, ErrDeadlock)
}

// MySQL server error numbers mapped by translateMySQL.
const (
	mysqlDuplicateEntry = 1062
	mysqlDeadlock       = 1213
	mysqlLockWait       = 1205
)

// translateMySQL maps driver errors onto the sentinels above. Errors that
// are not recognised are returned unchanged.
func translateMySQL(err error) error {
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return err
	}
	switch me.Number {
	case mysqlDuplicateEntry:
		if strings.Contains(me.Message, "uq_markups_active") {
			return ErrDuplicateActive
		}
		if strings.Contains(me.Message, "uq_markups_token") {
			return ErrDuplicateToken
		}
	case mysqlDeadlock, mysqlLockWait:
		return ErrDeadlock
	}
	return err
}
