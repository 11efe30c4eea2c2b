package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opendvf/dvfload/internal/clean"
	"github.com/opendvf/dvfload/internal/retry"
)

// SinkError is a storage failure. Transient failures are retried by
// UpsertBatch itself; a persistent failure fails the batch but never the
// partition.
type SinkError struct {
	Transient bool
	Err       error
}

func (e *SinkError) Error() string {
	kind := "persistent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("sink: %s: %v", kind, e.Err)
}

func (e *SinkError) Unwrap() error { return e.Err }

// UpsertResult reports the outcome of one batch commit.
type UpsertResult struct {
	// Submitted is the number of rows sent in the batch.
	Submitted int64

	// Affected is the number of rows actually inserted. Submitted minus
	// Affected is the number of composite-key collisions.
	Affected int64
}

// Collisions is the number of rows suppressed by the first-write-wins rule.
func (r UpsertResult) Collisions() int64 { return r.Submitted - r.Affected }

// Options configures the store.
type Options struct {
	// Retry governs batch commit attempts against transient failures.
	Retry retry.Policy

	// Logger receives structured store events. Nil discards them.
	Logger *slog.Logger
}

// Store is a PostgreSQL-backed sink.
type Store struct {
	pool   *pgxpool.Pool
	retry  retry.Policy
	logger *slog.Logger

	// upsert is the single-attempt commit, swapped in tests.
	// Nil means upsertOnce.
	upsert func(ctx context.Context, recs []clean.Record) (UpsertResult, error)
}

// Open connects to the database and verifies the connection. An unreachable
// store is an unrecoverable startup error for the process.
func Open(ctx context.Context, dsn string, opts Options) (*Store, error) {
	if opts.Retry.Attempts == 0 {
		opts.Retry = retry.DefaultPolicy()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	// One sequential pipeline writes at a time; a large pool buys nothing.
	cfg.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &Store{pool: pool, retry: opts.Retry, logger: opts.Logger}, nil
}

// Close releases the connection pool.
func (s *Store) Close() { s.pool.Close() }

// UpsertBatch commits one batch in a single transaction, retrying the whole
// batch on transient failures. On success the batch is fully committed; on
// error it is fully absent.
func (s *Store) UpsertBatch(ctx context.Context, recs []clean.Record) (UpsertResult, error) {
	if len(recs) == 0 {
		return UpsertResult{}, nil
	}

	upsert := s.upsert
	if upsert == nil {
		upsert = s.upsertOnce
	}

	var res UpsertResult
	err := s.retry.Do(ctx, func() error {
		r, err := upsert(ctx, recs)
		if err != nil {
			if isTransient(err) {
				s.logger.Warn("batch commit failed, will retry",
					"rows", len(recs), "error", err)
				return &SinkError{Transient: true, Err: err}
			}
			return retry.Abort(&SinkError{Err: err})
		}
		res = r
		return nil
	})
	if err != nil {
		var se *SinkError
		if !errors.As(err, &se) {
			// Retry budget exhausted wraps the transient SinkError; keep
			// the taxonomy for callers either way.
			err = &SinkError{Transient: true, Err: err}
		}
		return UpsertResult{}, err
	}
	return res, nil
}

func (s *Store) upsertOnce(ctx context.Context, recs []clean.Record) (UpsertResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return UpsertResult{}, err
	}
	defer tx.Rollback(ctx)

	b := &pgx.Batch{}
	for i := range recs {
		b.Queue(upsertSQL, upsertArgs(&recs[i])...)
	}

	br := tx.SendBatch(ctx, b)

	var affected int64
	for range recs {
		tag, err := br.Exec()
		if err != nil {
			br.Close()
			return UpsertResult{}, err
		}
		affected += tag.RowsAffected()
	}
	if err := br.Close(); err != nil {
		return UpsertResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return UpsertResult{}, err
	}

	return UpsertResult{Submitted: int64(len(recs)), Affected: affected}, nil
}

const upsertSQL = `INSERT INTO dvf_data (
	id_mutation, date_mutation, numero_disposition, id_parcelle, lot1_numero,
	valeur_fonciere, type_local, code_type_local,
	surface_reelle_bati, surface_terrain, lot1_surface_carrez,
	nombre_pieces_principales, longitude, latitude,
	code_postal, code_commune, nom_commune, code_departement,
	adresse_nom_voie, adresse_numero, import_year
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
ON CONFLICT (id_mutation, numero_disposition, id_parcelle, lot1_numero) DO NOTHING`

// upsertArgs flattens a record into insert parameters. Key columns keep
// empty strings so the unique index backing ON CONFLICT always fires;
// the other text columns store NULL when absent.
func upsertArgs(r *clean.Record) []any {
	return []any{
		r.IDMutation,
		dateOrNil(r.DateMutation),
		r.NumeroDisposition,
		r.IDParcelle,
		r.Lot1Numero,
		r.ValeurFonciere,
		textOrNil(r.TypeLocal),
		textOrNil(r.CodeTypeLocal),
		r.SurfaceReelleBati,
		r.SurfaceTerrain,
		r.Lot1SurfaceCarrez,
		r.NombrePiecesPrincipales,
		r.Longitude,
		r.Latitude,
		textOrNil(r.CodePostal),
		textOrNil(r.CodeCommune),
		textOrNil(r.NomCommune),
		textOrNil(r.CodeDepartement),
		textOrNil(r.AdresseNomVoie),
		textOrNil(r.AdresseNumero),
		r.ImportYear,
	}
}

func textOrNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func dateOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

// isTransient reports whether err is worth retrying: connection trouble,
// serialization conflicts, deadlocks and resource pressure are; schema
// mismatches and constraint violations are not.
func isTransient(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "08"): // connection exception
			return true
		case strings.HasPrefix(pgErr.Code, "53"): // insufficient resources
			return true
		case pgErr.Code == "40001" || pgErr.Code == "40P01": // serialization, deadlock
			return true
		case pgErr.Code == "57P03": // cannot connect now
			return true
		}
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	return pgconn.SafeToRetry(err)
}

// YearStatus summarizes one imported year.
type YearStatus struct {
	Records     int64
	FirstImport time.Time
	LastImport  time.Time
}

// ImportStatus returns per-year record counts, used by the run orchestrator
// to skip years already recorded complete.
func (s *Store) ImportStatus(ctx context.Context) (map[int]YearStatus, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT import_year, COUNT(*), MIN(import_date), MAX(import_date)
		FROM dvf_data
		GROUP BY import_year
		ORDER BY import_year`)
	if err != nil {
		return nil, fmt.Errorf("query import status: %w", err)
	}
	defer rows.Close()

	status := make(map[int]YearStatus)
	for rows.Next() {
		var year int
		var st YearStatus
		if err := rows.Scan(&year, &st.Records, &st.FirstImport, &st.LastImport); err != nil {
			return nil, fmt.Errorf("scan import status: %w", err)
		}
		status[year] = st
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read import status: %w", err)
	}
	return status, nil
}

// ClearYear removes every row of one partition, returning the count deleted.
func (s *Store) ClearYear(ctx context.Context, year int) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM dvf_data WHERE import_year = $1`, year)
	if err != nil {
		return 0, fmt.Errorf("clear year %d: %w", year, err)
	}
	return tag.RowsAffected(), nil
}

// Stats describes the whole table.
type Stats struct {
	TotalRecords  int64
	YearsImported int64
	EarliestDate  *time.Time
	LatestDate    *time.Time
	Apartments    int64
	Houses        int64
	TableSize     string
}

// TableStats returns aggregate statistics for the stats subcommand.
func (s *Store) TableStats(ctx context.Context) (*Stats, error) {
	var st Stats
	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(DISTINCT import_year),
			MIN(date_mutation),
			MAX(date_mutation),
			COUNT(*) FILTER (WHERE type_local = 'Appartement'),
			COUNT(*) FILTER (WHERE type_local = 'Maison'),
			pg_size_pretty(pg_total_relation_size('dvf_data'))
		FROM dvf_data`).Scan(
		&st.TotalRecords, &st.YearsImported,
		&st.EarliestDate, &st.LatestDate,
		&st.Apartments, &st.Houses, &st.TableSize,
	)
	if err != nil {
		return nil, fmt.Errorf("query table stats: %w", err)
	}
	return &st, nil
}
