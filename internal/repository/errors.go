// Package repository is the MySQL implementation of service.Store. Each
// table has a small repo whose *Tx methods run inside a caller-supplied
// transaction; Store ties them together into units of work.
//
// Not-found rows are reported with the domain sentinels so that handlers
// can map them to HTTP statuses without knowing about database/sql.
package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/segment-reservation/internal/domain"
)

// MySQL server error numbers the store reacts to.
const (
	errDupEntry        = 1062
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
)

// classify turns lost lock races into domain.ErrWriteConflict so that the
// engine retries them. Other errors pass through unchanged.
func classify(err error) error {
	var me *mysql.MySQLError
	if errors.As(err, &me) && (me.Number == errDeadlock || me.Number == errLockWaitTimeout) {
		return fmt.Errorf("%w: %v", domain.ErrWriteConflict, err)
	}
	return err
}

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == errDupEntry
}

// notFound maps sql.ErrNoRows to kind.
func notFound(err error, kind error, key any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %v", kind, key)
	}
	return err
}

// affectedOne reports whether an UPDATE matched exactly one row. The DSN
// sets clientFoundRows, so a matched row counts even when no column changed.
func affectedOne(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func nullUint(n sql.NullInt64) *uint64 {
	if !n.Valid {
		return nil
	}
	v := uint64(n.Int64)
	return &v
}

func nullTime(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time
	return &t
}

// ptrArg passes a nullable column value to the driver.
func ptrArg[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
