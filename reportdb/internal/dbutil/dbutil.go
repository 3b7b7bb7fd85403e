// Package dbutil has helpers for working with sqlite databases.
package dbutil

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Reader is the read-only subset of a transaction.
type Reader interface {
	Get(dest interface{}, query string, args ...interface{}) error
	Select(dest interface{}, query string, args ...interface{}) error
}

func Open(p string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	// modernc sqlite does not tolerate concurrent writers on one handle
	db.SetMaxOpenConns(1)
	return db, nil
}

func OpenMemory() *sqlx.DB {
	db, err := Open(":memory:")
	if err != nil {
		panic(err)
	}
	return db
}

func NewTestDB(t testing.TB) *sqlx.DB {
	db := OpenMemory()
	t.Cleanup(func() { db.Close() })
	return db
}

// DoTx runs fn inside a transaction, committing when fn returns nil.
func DoTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// DoTx1 is DoTx for fns returning a value.
func DoTx1[T any](ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) (T, error)) (T, error) {
	var ret T
	err := DoTx(ctx, db, func(tx *sqlx.Tx) error {
		var err error
		ret, err = fn(tx)
		return err
	})
	return ret, err
}
