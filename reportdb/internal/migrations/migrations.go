// Package migrations tracks an append-only chain of schema statements
// and applies the ones a database has not seen yet.
package migrations

import (
	"context"
	"slices"

	"github.com/jmoiron/sqlx"
)

// State is one point in the schema history. ApplyStmt extends the
// chain; earlier States stay valid.
type State struct {
	prev *State
	stmt string
}

func InitialState() *State {
	return &State{}
}

func (s *State) ApplyStmt(stmt string) *State {
	return &State{prev: s, stmt: stmt}
}

func (s *State) stmts() []string {
	var out []string
	for x := s; x.prev != nil; x = x.prev {
		out = append(out, x.stmt)
	}
	slices.Reverse(out)
	return out
}

// Migrate applies every statement in s that db has not recorded,
// in chain order.
func Migrate(ctx context.Context, db *sqlx.DB, s *State) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS migrations (
		idx INTEGER PRIMARY KEY,
		stmt TEXT NOT NULL
	)`); err != nil {
		return err
	}
	var applied int
	if err := db.GetContext(ctx, &applied, `SELECT count(*) FROM migrations`); err != nil {
		return err
	}
	stmts := s.stmts()
	for i := applied; i < len(stmts); i++ {
		if _, err := db.ExecContext(ctx, stmts[i]); err != nil {
			return err
		}
		if _, err := db.ExecContext(ctx, `INSERT INTO migrations (idx, stmt)
			VALUES (?, ?)`, i, stmts[i]); err != nil {
			return err
		}
	}
	return nil
}
