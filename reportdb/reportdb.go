// Package reportdb persists simulation results to sqlite: one row per
// run plus per-op counts, per-component temperatures, and the hint map,
// keyed by the digest of the compiled source.
package reportdb

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/HamidrezaReyhani/CRZ64I"
	"github.com/HamidrezaReyhani/CRZ64I/isa"
	"github.com/HamidrezaReyhani/CRZ64I/reportdb/internal/dbutil"
	"github.com/HamidrezaReyhani/CRZ64I/reportdb/internal/migrations"
	"github.com/HamidrezaReyhani/CRZ64I/sim"
)

var currentSchema = func() *migrations.State {
	x := migrations.InitialState()
	x = x.ApplyStmt(`CREATE TABLE runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		program_digest BLOB NOT NULL,
		status TEXT NOT NULL,
		cycles INTEGER NOT NULL,
		energy REAL NOT NULL,
		wall_seconds REAL NOT NULL,
		steps INTEGER NOT NULL,
		max_temp REAL NOT NULL,
		fault TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`)
	x = x.ApplyStmt(`CREATE TABLE run_op_counts (
		run_id INTEGER NOT NULL,
		op TEXT NOT NULL,
		count INTEGER NOT NULL,

		FOREIGN KEY(run_id) REFERENCES runs(id),
		PRIMARY KEY(run_id, op)
	)`)
	x = x.ApplyStmt(`CREATE TABLE run_thermal (
		run_id INTEGER NOT NULL,
		component TEXT NOT NULL,
		temp REAL NOT NULL,

		FOREIGN KEY(run_id) REFERENCES runs(id),
		PRIMARY KEY(run_id, component)
	)`)
	x = x.ApplyStmt(`CREATE TABLE run_hints (
		run_id INTEGER NOT NULL,
		k TEXT NOT NULL,
		v TEXT NOT NULL,

		FOREIGN KEY(run_id) REFERENCES runs(id),
		PRIMARY KEY(run_id, k)
	)`)
	x = x.ApplyStmt(`CREATE TABLE measurements (
		op TEXT PRIMARY KEY,
		energy REAL NOT NULL,
		latency INTEGER NOT NULL,
		measured_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`)
	return x
}()

type RunID = int64

// Run is one persisted simulation result.
type Run struct {
	ID          RunID          `db:"id"`
	Digest      []byte         `db:"program_digest"`
	Status      string         `db:"status"`
	Cycles      uint64         `db:"cycles"`
	Energy      float64        `db:"energy"`
	WallSeconds float64        `db:"wall_seconds"`
	Steps       uint64         `db:"steps"`
	MaxTemp     float64        `db:"max_temp"`
	Fault       sql.NullString `db:"fault"`
	CreatedAt   string         `db:"created_at"`
}

// DB wraps a sqlite handle with the report schema applied.
type DB struct {
	db *sqlx.DB
}

// Open opens (creating if needed) the report database at p.
func Open(ctx context.Context, p string) (*DB, error) {
	db, err := dbutil.Open(p)
	if err != nil {
		return nil, err
	}
	return Setup(ctx, db)
}

// Setup applies the schema to db and wraps it.
func Setup(ctx context.Context, db *sqlx.DB) (*DB, error) {
	if err := migrations.Migrate(ctx, db, currentSchema); err != nil {
		return nil, err
	}
	return &DB{db: db}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

// SaveRun records res under the program digest. ambient is the base
// temperature used to report MaxTemp for runs that touched no component.
func (d *DB) SaveRun(ctx context.Context, digest crz64i.Digest, ambient float64, res sim.Result) (RunID, error) {
	return dbutil.DoTx1(ctx, d.db, func(tx *sqlx.Tx) (RunID, error) {
		var fault sql.NullString
		if res.Fault != nil {
			fault = sql.NullString{String: res.Fault.Error(), Valid: true}
		}
		var id RunID
		if err := tx.Get(&id, `INSERT INTO runs
			(program_digest, status, cycles, energy, wall_seconds, steps, max_temp, fault)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
			digest[:], res.Status.String(), res.Cycles, res.Energy,
			res.WallSeconds, res.Steps, res.MaxTemp(ambient), fault); err != nil {
			return 0, err
		}
		for op, count := range res.OpCounts {
			if _, err := tx.Exec(`INSERT INTO run_op_counts (run_id, op, count)
				VALUES (?, ?, ?)`, id, op, count); err != nil {
				return 0, err
			}
		}
		for comp, temp := range res.Thermal {
			if _, err := tx.Exec(`INSERT INTO run_thermal (run_id, component, temp)
				VALUES (?, ?, ?)`, id, comp, temp); err != nil {
				return 0, err
			}
		}
		for k, v := range res.Hints {
			if _, err := tx.Exec(`INSERT INTO run_hints (run_id, k, v)
				VALUES (?, ?, ?)`, id, k, v); err != nil {
				return 0, err
			}
		}
		return id, nil
	})
}

// GetRun returns one run row by ID.
func (d *DB) GetRun(ctx context.Context, id RunID) (Run, error) {
	return dbutil.DoTx1(ctx, d.db, func(tx *sqlx.Tx) (Run, error) {
		var r Run
		err := tx.Get(&r, `SELECT * FROM runs WHERE id = ?`, id)
		return r, err
	})
}

// ListRuns returns every run of one program, newest first.
func (d *DB) ListRuns(ctx context.Context, digest crz64i.Digest) ([]Run, error) {
	return dbutil.DoTx1(ctx, d.db, func(tx *sqlx.Tx) ([]Run, error) {
		var rs []Run
		err := tx.Select(&rs, `SELECT * FROM runs
			WHERE program_digest = ? ORDER BY id DESC`, digest[:])
		return rs, err
	})
}

// OpCounts returns the per-op execution counts of one run.
func (d *DB) OpCounts(ctx context.Context, id RunID) (map[string]uint64, error) {
	return dbutil.DoTx1(ctx, d.db, func(tx *sqlx.Tx) (map[string]uint64, error) {
		rows, err := tx.Query(`SELECT op, count FROM run_op_counts WHERE run_id = ?`, id)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		out := map[string]uint64{}
		for rows.Next() {
			var op string
			var count uint64
			if err := rows.Scan(&op, &count); err != nil {
				return nil, err
			}
			out[op] = count
		}
		return out, rows.Err()
	})
}

// SaveMeasurements upserts calibrated per-op costs. Re-measuring an op
// replaces its previous row.
func (d *DB) SaveMeasurements(ctx context.Context, costs map[string]isa.CostOverride) error {
	return dbutil.DoTx(ctx, d.db, func(tx *sqlx.Tx) error {
		for op, c := range costs {
			if _, err := tx.Exec(`INSERT INTO measurements (op, energy, latency)
				VALUES (?, ?, ?)
				ON CONFLICT(op) DO UPDATE SET
					energy = excluded.energy,
					latency = excluded.latency,
					measured_at = CURRENT_TIMESTAMP`, op, c.Energy, c.Latency); err != nil {
				return err
			}
		}
		return nil
	})
}

// Measurements returns every calibrated per-op cost, in the shape the
// energy-annotation pass options take.
func (d *DB) Measurements(ctx context.Context) (map[string]isa.CostOverride, error) {
	return dbutil.DoTx1(ctx, d.db, func(tx *sqlx.Tx) (map[string]isa.CostOverride, error) {
		rows, err := tx.Query(`SELECT op, energy, latency FROM measurements`)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		out := map[string]isa.CostOverride{}
		for rows.Next() {
			var op string
			var c isa.CostOverride
			if err := rows.Scan(&op, &c.Energy, &c.Latency); err != nil {
				return nil, err
			}
			out[op] = c
		}
		return out, rows.Err()
	})
}

// TotalEnergy sums the energy of every recorded run of one program.
func (d *DB) TotalEnergy(ctx context.Context, digest crz64i.Digest) (float64, error) {
	return dbutil.DoTx1(ctx, d.db, func(tx *sqlx.Tx) (float64, error) {
		var total float64
		err := tx.Get(&total, `SELECT coalesce(sum(energy), 0) FROM runs
			WHERE program_digest = ?`, digest[:])
		return total, err
	})
}
