/*
Package sqlite provides a SQLite-backed implementation of the filing storage interfaces.

PURPOSE:
  Implements filing.TxStore (submissions, operations, stock rows and the
  regulator response log) on SQLite.

KEY TABLES:
  submissions: one row per (delivery_type, period), enforced by a UNIQUE key
  operations:  weekly rows, kind code + JSON body, ordered by insertion seq
  stocks:      monthly rows, kind code + JSON body, ordered by insertion seq
  responses:   latest regulator call per (submission_id, endpoint)

ROW BODIES:
  Operations and stock rows are closed sum types whose fields differ per
  kind. Each row stores its kind code in a column and the concrete struct
  as JSON; filing.DecodeOperation / filing.DecodeStock restore them.

TIMESTAMPS:
  Stored as fixed-width UTC text (nanosecond precision) so that string
  comparison in SQL matches time ordering. created_at filters drive
  rectification cancellation.

CONCURRENCY:
  One open connection; SQLite serializes writers anyway. WithTx holds the
  store mutex so transactions never interleave.

USAGE:
  store, err := sqlite.New("./data/ssn.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - filing/store.go: Interface definitions
  - filing/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/warp/ssn-filing/filing"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements filing.TxStore using SQLite.
type Store struct {
	queries
	db *sql.DB
	mu sync.Mutex
}

var _ filing.TxStore = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// ":memory:" databases live per connection.
	db.SetMaxOpenConns(1)

	store := &Store{queries: queries{db: db}, db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS submissions (
		id TEXT PRIMARY KEY,
		company_code TEXT NOT NULL,
		delivery_type TEXT NOT NULL,
		period TEXT NOT NULL,
		state TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		sent_at TEXT,
		UNIQUE (delivery_type, period)
	);

	CREATE TABLE IF NOT EXISTS operations (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		submission_id TEXT NOT NULL REFERENCES submissions(id) ON DELETE CASCADE,
		kind TEXT NOT NULL,
		data TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_operations_submission
		ON operations(submission_id, seq);

	CREATE TABLE IF NOT EXISTS stocks (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		submission_id TEXT NOT NULL REFERENCES submissions(id) ON DELETE CASCADE,
		kind TEXT NOT NULL,
		data TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_stocks_submission
		ON stocks(submission_id, seq);

	-- Latest regulator call per endpoint; a resend overwrites.
	CREATE TABLE IF NOT EXISTS responses (
		submission_id TEXT NOT NULL REFERENCES submissions(id) ON DELETE CASCADE,
		endpoint TEXT NOT NULL CHECK (length(endpoint) <= 64),
		payload TEXT,
		response TEXT,
		status INTEGER NOT NULL,
		is_error INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (submission_id, endpoint)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (filing.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store filing.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&queries{db: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// InsertStocks writes the batch in its own transaction.
func (s *Store) InsertStocks(ctx context.Context, rows []filing.Stock) error {
	return s.WithTx(ctx, func(tx filing.Store) error {
		return tx.InsertStocks(ctx, rows)
	})
}

// =============================================================================
// QUERIES - Shared by the store and its transactions
// =============================================================================

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	db queryer
}

// =============================================================================
// SUBMISSIONS
// =============================================================================

const submissionColumns = `id, company_code, delivery_type, period, state, created_at, updated_at, sent_at`

func (q *queries) CreateSubmission(ctx context.Context, sub filing.Submission) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO submissions (`+submissionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.CompanyCode, sub.DeliveryType, sub.Period, sub.State,
		formatTime(sub.CreatedAt), formatTime(sub.UpdatedAt), nullTime(sub.SentAt),
	)
	if isUniqueConstraintError(err) {
		return filing.ErrDuplicateSubmission
	}
	if err != nil {
		return fmt.Errorf("failed to create submission: %w", err)
	}
	return nil
}

func (q *queries) UpdateSubmission(ctx context.Context, sub filing.Submission) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE submissions
		SET company_code = ?, delivery_type = ?, period = ?, state = ?, updated_at = ?, sent_at = ?
		WHERE id = ?`,
		sub.CompanyCode, sub.DeliveryType, sub.Period, sub.State,
		formatTime(sub.UpdatedAt), nullTime(sub.SentAt), sub.ID,
	)
	if isUniqueConstraintError(err) {
		return filing.ErrDuplicateSubmission
	}
	if err != nil {
		return fmt.Errorf("failed to update submission: %w", err)
	}
	return expectAffected(res, filing.ErrSubmissionNotFound)
}

func (q *queries) DeleteSubmission(ctx context.Context, id filing.SubmissionID) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM submissions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete submission: %w", err)
	}
	return expectAffected(res, filing.ErrSubmissionNotFound)
}

func (q *queries) GetSubmission(ctx context.Context, id filing.SubmissionID) (filing.Submission, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id = ?`, id)
	return scanSubmission(row)
}

func (q *queries) FindSubmission(ctx context.Context, dt filing.DeliveryType, period string) (filing.Submission, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE delivery_type = ? AND period = ?`, dt, period)
	return scanSubmission(row)
}

func (q *queries) ListSubmissions(ctx context.Context, f filing.SubmissionFilter) ([]filing.Submission, error) {
	var (
		where []string
		args  []any
	)
	if f.DeliveryType != "" {
		where = append(where, "delivery_type = ?")
		args = append(args, f.DeliveryType)
	}
	if f.Periods != nil {
		if len(f.Periods) == 0 {
			return nil, nil
		}
		where = append(where, "period IN ("+placeholders(len(f.Periods))+")")
		for _, p := range f.Periods {
			args = append(args, p)
		}
	}
	if len(f.States) > 0 {
		where = append(where, "state IN ("+placeholders(len(f.States))+")")
		for _, st := range f.States {
			args = append(args, st)
		}
	}

	query := `SELECT ` + submissionColumns + ` FROM submissions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY period DESC, delivery_type ASC"

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query submissions: %w", err)
	}
	defer rows.Close()

	var out []filing.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row scanner) (filing.Submission, error) {
	var (
		sub                  filing.Submission
		createdAt, updatedAt string
		sentAt               sql.NullString
	)
	err := row.Scan(&sub.ID, &sub.CompanyCode, &sub.DeliveryType, &sub.Period, &sub.State,
		&createdAt, &updatedAt, &sentAt)
	if errors.Is(err, sql.ErrNoRows) {
		return sub, filing.ErrSubmissionNotFound
	}
	if err != nil {
		return sub, fmt.Errorf("failed to scan submission: %w", err)
	}
	sub.CreatedAt = parseTime(createdAt)
	sub.UpdatedAt = parseTime(updatedAt)
	if sentAt.Valid {
		t := parseTime(sentAt.String)
		sub.SentAt = &t
	}
	return sub, nil
}

// =============================================================================
// OPERATIONS
// =============================================================================

func (q *queries) SaveOperation(ctx context.Context, op filing.Operation) error {
	data, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("failed to encode operation: %w", err)
	}
	meta := op.Meta()
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO operations (id, submission_id, kind, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			data = excluded.data,
			updated_at = excluded.updated_at`,
		meta.ID, meta.SubmissionID, op.Kind(), string(data),
		formatTime(meta.CreatedAt), formatTime(meta.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save operation: %w", err)
	}
	return nil
}

func (q *queries) GetOperation(ctx context.Context, id string) (filing.Operation, error) {
	var kind, data string
	err := q.db.QueryRowContext(ctx, `SELECT kind, data FROM operations WHERE id = ?`, id).Scan(&kind, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, filing.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get operation: %w", err)
	}
	return filing.DecodeOperation(filing.OperationKind(kind), []byte(data))
}

func (q *queries) DeleteOperation(ctx context.Context, id string) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM operations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete operation: %w", err)
	}
	return expectAffected(res, filing.ErrNotFound)
}

func (q *queries) ListOperations(ctx context.Context, id filing.SubmissionID) ([]filing.Operation, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT kind, data FROM operations WHERE submission_id = ? ORDER BY seq ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query operations: %w", err)
	}
	defer rows.Close()

	out := []filing.Operation{}
	for rows.Next() {
		var kind, data string
		if err := rows.Scan(&kind, &data); err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}
		op, err := filing.DecodeOperation(filing.OperationKind(kind), []byte(data))
		if err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	return out, rows.Err()
}

func (q *queries) DeleteOperationsCreatedAfter(ctx context.Context, id filing.SubmissionID, t time.Time) (int, error) {
	res, err := q.db.ExecContext(ctx,
		`DELETE FROM operations WHERE submission_id = ? AND created_at > ?`, id, formatTime(t))
	if err != nil {
		return 0, fmt.Errorf("failed to delete operations: %w", err)
	}
	return affected(res)
}

// =============================================================================
// STOCK
// =============================================================================

func (q *queries) SaveStock(ctx context.Context, s filing.Stock) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode stock: %w", err)
	}
	meta := s.Meta()
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO stocks (id, submission_id, kind, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			data = excluded.data,
			updated_at = excluded.updated_at`,
		meta.ID, meta.SubmissionID, s.Kind(), string(data),
		formatTime(meta.CreatedAt), formatTime(meta.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save stock: %w", err)
	}
	return nil
}

func (q *queries) InsertStocks(ctx context.Context, rows []filing.Stock) error {
	for _, r := range rows {
		if err := q.SaveStock(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func (q *queries) GetStock(ctx context.Context, id string) (filing.Stock, error) {
	var kind, data string
	err := q.db.QueryRowContext(ctx, `SELECT kind, data FROM stocks WHERE id = ?`, id).Scan(&kind, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, filing.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stock: %w", err)
	}
	return filing.DecodeStock(filing.StockKind(kind), []byte(data))
}

func (q *queries) DeleteStock(ctx context.Context, id string) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM stocks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete stock: %w", err)
	}
	return expectAffected(res, filing.ErrNotFound)
}

func (q *queries) ListStocks(ctx context.Context, id filing.SubmissionID) ([]filing.Stock, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT kind, data FROM stocks WHERE submission_id = ? ORDER BY seq ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query stocks: %w", err)
	}
	defer rows.Close()

	out := []filing.Stock{}
	for rows.Next() {
		var kind, data string
		if err := rows.Scan(&kind, &data); err != nil {
			return nil, fmt.Errorf("failed to scan stock: %w", err)
		}
		s, err := filing.DecodeStock(filing.StockKind(kind), []byte(data))
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (q *queries) CountStocks(ctx context.Context, id filing.SubmissionID) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM stocks WHERE submission_id = ?`, id).Scan(&n)
	return n, err
}

func (q *queries) DeleteStocks(ctx context.Context, id filing.SubmissionID) (int, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM stocks WHERE submission_id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stocks: %w", err)
	}
	return affected(res)
}

func (q *queries) DeleteStocksCreatedAfter(ctx context.Context, id filing.SubmissionID, t time.Time) (int, error) {
	res, err := q.db.ExecContext(ctx,
		`DELETE FROM stocks WHERE submission_id = ? AND created_at > ?`, id, formatTime(t))
	if err != nil {
		return 0, fmt.Errorf("failed to delete stocks: %w", err)
	}
	return affected(res)
}

// =============================================================================
// RESPONSES
// =============================================================================

func (q *queries) UpsertResponse(ctx context.Context, r filing.Response) (bool, error) {
	var exists int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM responses WHERE submission_id = ? AND endpoint = ?`,
		r.SubmissionID, r.Endpoint).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to look up response: %w", err)
	}

	_, err = q.db.ExecContext(ctx, `
		INSERT INTO responses (submission_id, endpoint, payload, response, status, is_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(submission_id, endpoint) DO UPDATE SET
			payload = excluded.payload,
			response = excluded.response,
			status = excluded.status,
			is_error = excluded.is_error,
			updated_at = excluded.updated_at`,
		r.SubmissionID, r.Endpoint, nullJSON(r.Payload), nullJSON(r.Body), r.Status, r.IsError,
		formatTime(r.CreatedAt), formatTime(r.UpdatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("failed to upsert response: %w", err)
	}
	return exists == 0, nil
}

func (q *queries) ListResponses(ctx context.Context, id filing.SubmissionID) ([]filing.Response, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT submission_id, endpoint, payload, response, status, is_error, created_at, updated_at
		FROM responses WHERE submission_id = ? ORDER BY endpoint ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query responses: %w", err)
	}
	defer rows.Close()

	var out []filing.Response
	for rows.Next() {
		var (
			r                    filing.Response
			payload, body        sql.NullString
			createdAt, updatedAt string
		)
		if err := rows.Scan(&r.SubmissionID, &r.Endpoint, &payload, &body, &r.Status, &r.IsError, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan response: %w", err)
		}
		if payload.Valid {
			r.Payload = json.RawMessage(payload.String)
		}
		if body.Valid {
			r.Body = json.RawMessage(body.String)
		}
		r.CreatedAt = parseTime(createdAt)
		r.UpdatedAt = parseTime(updatedAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func nullJSON(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func affected(res sql.Result) (int, error) {
	n, err := res.RowsAffected()
	return int(n), err
}

func expectAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
