// Package store saves analysis results to PostgreSQL.
package store

import (
	"context"
	_ "embed"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"gopkg.in/guregu/null.v3"

	"anticoag/internal/aggregate"
	"anticoag/internal/cohort"
)

//go:embed sql/schema.sql
var schema string

// Store is a results sink backed by a connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// NewPool connects and pings the database.
func NewPool(ctx context.Context, databaseURL string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = maxConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Open connects to databaseURL.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := NewPool(ctx, databaseURL, 4)
	if err != nil {
		return nil, err
	}
	return New(pool), nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close closes the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// InitSchema creates the result tables if they do not exist.
func (s *Store) InitSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func pgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

// float8 maps NaN to NULL.
func float8(v float64) pgtype.Float8 {
	return pgtype.Float8{Float64: v, Valid: !math.IsNaN(v)}
}

func ratio(s cohort.Survival) pgtype.Float8 {
	r, err := s.AliveRatio()
	if err != nil {
		return pgtype.Float8{Valid: false}
	}
	return pgtype.Float8{Float64: r, Valid: true}
}

func errText(err error) pgtype.Text {
	if err == nil {
		return pgtype.Text{}
	}
	return pgtype.Text{String: err.Error(), Valid: true}
}

var earliestCopyCols = []string{"run_id", "subject_id", "status", "delay_days"}

// SaveRun writes one analysis run in a single transaction: the run summary,
// the contingency cells and every earliest event. Results of an analysis
// that could not be computed are stored as NULL along with its error.
func (s *Store) SaveRun(ctx context.Context, runID uuid.UUID, r *cohort.Report, earliest []aggregate.EarliestEvent) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	id := pgUUID(runID)
	d, c := r.Delay, r.ChiSquare
	tStat, tDF, tP := float8(d.Statistic), float8(d.DF), float8(d.PValue)
	if r.DelayErr != nil {
		tStat, tDF, tP = pgtype.Float8{}, pgtype.Float8{}, pgtype.Float8{}
	}
	chiStat, chiP := float8(c.Statistic), float8(c.PValue)
	chiDOF := pgtype.Int4{Int32: int32(c.DF), Valid: true}
	if r.ChiSquareErr != nil {
		chiStat, chiP, chiDOF = pgtype.Float8{}, pgtype.Float8{}, pgtype.Int4{}
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO analysis_runs (
			run_id, ttest_mode, alive_n, expired_n, alive_mean_days, expired_mean_days,
			t_statistic, t_df, t_pvalue, t_error, chi2_statistic, chi2_dof, chi2_pvalue, chi2_error,
			yates_corrected, anticoag_alive_ratio, other_alive_ratio
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		id, string(d.Mode), d.N1, d.N2, float8(d.Mean1), float8(d.Mean2),
		tStat, tDF, tP, errText(r.DelayErr), chiStat, chiDOF, chiP, errText(r.ChiSquareErr),
		c.Corrected, ratio(r.Anticoagulated), ratio(r.NotAnticoagulated),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	statuses := [2]aggregate.Status{cohort.ColAlive: aggregate.Alive, cohort.ColExpired: aggregate.Expired}
	for row := range r.Contingency {
		for col, status := range statuses {
			var expected pgtype.Float8
			if len(c.Expected) > row && len(c.Expected[row]) > col {
				expected = float8(c.Expected[row][col])
			}
			_, err := tx.Exec(ctx, `
				INSERT INTO contingency_cells (run_id, anticoagulated, status, observed, expected)
				VALUES ($1, $2, $3, $4, $5)`,
				id, row == cohort.RowAnticoagulated, string(status), r.Contingency[row][col], expected,
			)
			if err != nil {
				return fmt.Errorf("insert contingency cell: %w", err)
			}
		}
	}

	rows := make([][]any, len(earliest))
	for i, ee := range earliest {
		rows[i] = []any{id, ee.SubjectID, string(ee.Status), ee.DelayDays}
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"earliest_events"},
		earliestCopyCols,
		pgx.CopyFromRows(rows),
	); err != nil {
		return fmt.Errorf("copy earliest_events: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// RunSummary is the stored headline of one run. Null fields belong to an
// analysis that could not be computed; its error text is kept instead.
type RunSummary struct {
	RunID         uuid.UUID
	TTestMode     string
	TStatistic    null.Float
	TPValue       null.Float
	TError        null.String
	Chi2Statistic null.Float
	Chi2DOF       null.Int
	Chi2PValue    null.Float
	Chi2Error     null.String
	EarliestCount int
}

func nullFloat(v pgtype.Float8) null.Float { return null.NewFloat(v.Float64, v.Valid) }

func nullString(v pgtype.Text) null.String { return null.NewString(v.String, v.Valid) }

// LoadRun reads back the summary of a stored run.
func (s *Store) LoadRun(ctx context.Context, runID uuid.UUID) (*RunSummary, error) {
	var (
		rs                       = RunSummary{RunID: runID}
		tStat, tP, chiStat, chiP pgtype.Float8
		tErr, chiErr             pgtype.Text
		dof                      pgtype.Int4
		cnt                      int64
	)
	err := s.pool.QueryRow(ctx, `
		SELECT r.ttest_mode, r.t_statistic, r.t_pvalue, r.t_error,
		       r.chi2_statistic, r.chi2_dof, r.chi2_pvalue, r.chi2_error,
		       (SELECT count(*) FROM earliest_events e WHERE e.run_id = r.run_id)
		FROM analysis_runs r WHERE r.run_id = $1`, pgUUID(runID),
	).Scan(&rs.TTestMode, &tStat, &tP, &tErr, &chiStat, &dof, &chiP, &chiErr, &cnt)
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}
	rs.TStatistic, rs.TPValue, rs.TError = nullFloat(tStat), nullFloat(tP), nullString(tErr)
	rs.Chi2Statistic, rs.Chi2PValue, rs.Chi2Error = nullFloat(chiStat), nullFloat(chiP), nullString(chiErr)
	rs.Chi2DOF = null.NewInt(int64(dof.Int32), dof.Valid)
	rs.EarliestCount = int(cnt)
	return &rs, nil
}
