package queuelib

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS downloads (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	file_ref         TEXT    NOT NULL UNIQUE,
	display_name     TEXT    NOT NULL,
	target_path      TEXT    NOT NULL,
	total_bytes      INTEGER CHECK (total_bytes IS NULL OR total_bytes >= 0),
	downloaded_bytes INTEGER NOT NULL DEFAULT 0 CHECK (downloaded_bytes >= 0),
	progress         REAL    NOT NULL DEFAULT 0 CHECK (progress >= 0 AND progress <= 100),
	status           TEXT    NOT NULL DEFAULT 'pending'
		CHECK (status IN ('pending', 'downloading', 'paused', 'completed', 'failed', 'cancelled')),
	retry_count      INTEGER NOT NULL DEFAULT 0 CHECK (retry_count >= 0),
	error_message    TEXT,
	created_at       INTEGER NOT NULL,
	started_at       INTEGER,
	completed_at     INTEGER,
	metadata         TEXT
);
CREATE INDEX IF NOT EXISTS idx_downloads_status ON downloads (status);
CREATE INDEX IF NOT EXISTS idx_downloads_created_at ON downloads (created_at);

CREATE TABLE IF NOT EXISTS download_sessions (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT    NOT NULL UNIQUE,
	created_at INTEGER NOT NULL,
	ended_at   INTEGER
);
`

var jobColumns = []string{
	"id", "file_ref", "display_name", "target_path", "total_bytes",
	"downloaded_bytes", "progress", "status", "retry_count", "error_message",
	"created_at", "started_at", "completed_at", "metadata",
}

type jobRow struct {
	ID              int64          `db:"id"`
	FileRef         string         `db:"file_ref"`
	DisplayName     string         `db:"display_name"`
	TargetPath      string         `db:"target_path"`
	TotalBytes      sql.NullInt64  `db:"total_bytes"`
	DownloadedBytes int64          `db:"downloaded_bytes"`
	Progress        float64        `db:"progress"`
	Status          string         `db:"status"`
	RetryCount      int            `db:"retry_count"`
	ErrorMessage    sql.NullString `db:"error_message"`
	CreatedAt       int64          `db:"created_at"`
	StartedAt       sql.NullInt64  `db:"started_at"`
	CompletedAt     sql.NullInt64  `db:"completed_at"`
	Metadata        sql.NullString `db:"metadata"`
}

func (r *jobRow) toJob() (*Job, error) {
	st, err := ParseStatus(r.Status)
	if err != nil {
		return nil, err
	}
	j := &Job{
		ID:              r.ID,
		FileRef:         r.FileRef,
		DisplayName:     r.DisplayName,
		TargetPath:      r.TargetPath,
		TotalBytes:      UnknownSize,
		DownloadedBytes: r.DownloadedBytes,
		Progress:        r.Progress,
		Status:          st,
		RetryCount:      r.RetryCount,
		ErrorMessage:    r.ErrorMessage.String,
		CreatedAt:       time.Unix(0, r.CreatedAt),
		StartedAt:       nullTime(r.StartedAt),
		CompletedAt:     nullTime(r.CompletedAt),
	}
	if r.TotalBytes.Valid {
		j.TotalBytes = r.TotalBytes.Int64
	}
	if r.Metadata.Valid && r.Metadata.String != "" {
		if err := json.Unmarshal([]byte(r.Metadata.String), &j.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for %s: %w", r.FileRef, err)
		}
	}
	return j, nil
}

func nullTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(0, v.Int64)
	return &t
}

func nullSize(n int64) interface{} {
	if n < 0 {
		return nil
	}
	return n
}

// Store persists download jobs in a sqlite database. A single store-wide
// mutex serializes every statement, so the Store is safe for concurrent
// use by workers and the control surface.
type Store struct {
	mu  sync.Mutex
	db  *sqlx.DB
	sb  sq.StatementBuilderType
	now func() time.Time
}

// OpenStore opens (creating if needed) the database at path and applies
// the schema. Pass ":memory:" for a throwaway in-memory database.
func OpenStore(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, storeErr("open", err)
		}
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, storeErr("open", err)
	}
	// one connection keeps ":memory:" databases alive and matches the
	// store-wide lock
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, storeErr("migrate", err)
	}
	return &Store{
		db:  db,
		sb:  sq.StatementBuilder.PlaceholderFormat(sq.Question),
		now: time.Now,
	}, nil
}

// SetClock overrides the time source used for timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Upsert inserts job or, when a row with the same file reference already
// exists, resets it to a fresh Pending record keeping its id. It returns
// the row id and updates job in place.
func (s *Store) Upsert(job *Job) (int64, error) {
	if job.FileRef == "" {
		return 0, ErrEmptyFileRef
	}
	var meta interface{}
	if len(job.Metadata) > 0 {
		b, err := json.Marshal(job.Metadata)
		if err != nil {
			return 0, storeErr("upsert", err)
		}
		meta = string(b)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	query, args, err := s.sb.Insert("downloads").
		Columns("file_ref", "display_name", "target_path", "total_bytes",
			"downloaded_bytes", "progress", "status", "retry_count",
			"error_message", "created_at", "started_at", "completed_at", "metadata").
		Values(job.FileRef, job.DisplayName, job.TargetPath, nullSize(job.TotalBytes),
			0, 0.0, string(StatusPending), 0,
			nil, now.UnixNano(), nil, nil, meta).
		Suffix(`ON CONFLICT (file_ref) DO UPDATE SET
			display_name = excluded.display_name,
			target_path = excluded.target_path,
			total_bytes = excluded.total_bytes,
			downloaded_bytes = 0,
			progress = 0,
			status = excluded.status,
			retry_count = 0,
			error_message = NULL,
			created_at = excluded.created_at,
			started_at = NULL,
			completed_at = NULL,
			metadata = excluded.metadata
		RETURNING id`).
		ToSql()
	if err != nil {
		return 0, storeErr("upsert", err)
	}
	var id int64
	if err := s.db.QueryRowx(query, args...).Scan(&id); err != nil {
		return 0, storeErr("upsert", err)
	}
	job.ID = id
	job.Status = StatusPending
	job.Progress = 0
	job.DownloadedBytes = 0
	job.RetryCount = 0
	job.ErrorMessage = ""
	job.CreatedAt = now
	job.StartedAt = nil
	job.CompletedAt = nil
	return id, nil
}

// UpdateProgress records transfer progress. A negative total leaves the
// stored size untouched.
func (s *Store) UpdateProgress(fileRef string, percent float64, downloaded, total int64) error {
	if percent < 0 || percent > 100 {
		return ErrInvalidProgress
	}
	if downloaded < 0 {
		downloaded = 0
	}
	q := s.sb.Update("downloads").
		Set("progress", percent).
		Set("downloaded_bytes", downloaded).
		Where(sq.Eq{"file_ref": fileRef})
	if total >= 0 {
		q = q.Set("total_bytes", total)
	}
	return s.execOne("update progress", q)
}

// UpdateStatus moves fileRef to status. Entering Downloading stamps
// started_at, entering Completed, Failed or Cancelled stamps completed_at
// and entering Pending clears it. errMsg is stored as the error message,
// an empty string clears it.
func (s *Store) UpdateStatus(fileRef string, status Status, errMsg string) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	s.mu.Lock()
	now := s.now().UnixNano()
	s.mu.Unlock()

	q := s.sb.Update("downloads").
		Set("status", string(status)).
		Where(sq.Eq{"file_ref": fileRef})
	if errMsg != "" {
		q = q.Set("error_message", errMsg)
	} else {
		q = q.Set("error_message", nil)
	}
	switch {
	case status == StatusDownloading:
		q = q.Set("started_at", now)
	case status.IsTerminal():
		q = q.Set("completed_at", now)
	case status == StatusPending:
		q = q.Set("completed_at", nil)
	}
	return s.execOne("update status", q)
}

// IncrementRetry bumps the retry counter and returns the new value.
func (s *Store) IncrementRetry(fileRef string) (int, error) {
	query, args, err := s.sb.Update("downloads").
		Set("retry_count", sq.Expr("retry_count + 1")).
		Where(sq.Eq{"file_ref": fileRef}).
		Suffix("RETURNING retry_count").
		ToSql()
	if err != nil {
		return 0, storeErr("increment retry", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	if err := s.db.QueryRowx(query, args...).Scan(&n); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrJobNotFound
		}
		return 0, storeErr("increment retry", err)
	}
	return n, nil
}

// ResetRetry sets the retry counter back to zero.
func (s *Store) ResetRetry(fileRef string) error {
	return s.execOne("reset retry", s.sb.Update("downloads").
		Set("retry_count", 0).
		Where(sq.Eq{"file_ref": fileRef}))
}

// Get returns the job for fileRef or ErrJobNotFound.
func (s *Store) Get(fileRef string) (*Job, error) {
	query, args, err := s.sb.Select(jobColumns...).
		From("downloads").
		Where(sq.Eq{"file_ref": fileRef}).
		ToSql()
	if err != nil {
		return nil, storeErr("get", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var row jobRow
	if err := s.db.Get(&row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, storeErr("get", err)
	}
	return row.toJob()
}

// ListByStatus returns the jobs in any of statuses, oldest first.
func (s *Store) ListByStatus(statuses ...Status) ([]*Job, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	return s.list("list by status", s.sb.Select(jobColumns...).
		From("downloads").
		Where(sq.Eq{"status": statusStrings(statuses)}).
		OrderBy("created_at ASC", "id ASC"))
}

// ListAll returns every job, newest first.
func (s *Store) ListAll() ([]*Job, error) {
	return s.list("list", s.sb.Select(jobColumns...).
		From("downloads").
		OrderBy("created_at DESC", "id DESC"))
}

// CountByStatus returns the number of jobs per status.
func (s *Store) CountByStatus() (map[Status]int, error) {
	query, args, err := s.sb.Select("status", "COUNT(*) AS n").
		From("downloads").
		GroupBy("status").
		ToSql()
	if err != nil {
		return nil, storeErr("count", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var rows []struct {
		Status string `db:"status"`
		N      int    `db:"n"`
	}
	if err := s.db.Select(&rows, query, args...); err != nil {
		return nil, storeErr("count", err)
	}
	out := make(map[Status]int, len(rows))
	for _, r := range rows {
		out[Status(r.Status)] = r.N
	}
	return out, nil
}

// Delete removes the job for fileRef. It reports whether a row existed.
func (s *Store) Delete(fileRef string) (bool, error) {
	n, err := s.exec("delete", s.sb.Delete("downloads").Where(sq.Eq{"file_ref": fileRef}))
	return n > 0, err
}

// DeleteByStatus removes every job in any of statuses and returns how many
// rows were deleted.
func (s *Store) DeleteByStatus(statuses ...Status) (int64, error) {
	if len(statuses) == 0 {
		return 0, nil
	}
	return s.exec("delete by status", s.sb.Delete("downloads").
		Where(sq.Eq{"status": statusStrings(statuses)}))
}

// BeginSession records the start of a daemon session.
func (s *Store) BeginSession(id string) error {
	s.mu.Lock()
	now := s.now().UnixNano()
	s.mu.Unlock()
	_, err := s.exec("begin session", s.sb.Insert("download_sessions").
		Columns("session_id", "created_at").
		Values(id, now))
	return err
}

// EndSession stamps the end time of a daemon session.
func (s *Store) EndSession(id string) error {
	s.mu.Lock()
	now := s.now().UnixNano()
	s.mu.Unlock()
	return s.execOne("end session", s.sb.Update("download_sessions").
		Set("ended_at", now).
		Where(sq.Eq{"session_id": id}))
}

// Session is a row of download_sessions.
type Session struct {
	ID        string     `json:"id"`
	CreatedAt time.Time  `json:"created_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// Sessions returns all recorded daemon sessions, oldest first.
func (s *Store) Sessions() ([]Session, error) {
	query, args, err := s.sb.Select("session_id", "created_at", "ended_at").
		From("download_sessions").
		OrderBy("id ASC").
		ToSql()
	if err != nil {
		return nil, storeErr("sessions", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var rows []struct {
		SessionID string        `db:"session_id"`
		CreatedAt int64         `db:"created_at"`
		EndedAt   sql.NullInt64 `db:"ended_at"`
	}
	if err := s.db.Select(&rows, query, args...); err != nil {
		return nil, storeErr("sessions", err)
	}
	out := make([]Session, len(rows))
	for i, r := range rows {
		out[i] = Session{ID: r.SessionID, CreatedAt: time.Unix(0, r.CreatedAt), EndedAt: nullTime(r.EndedAt)}
	}
	return out, nil
}

func (s *Store) list(op string, b sq.SelectBuilder) ([]*Job, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, storeErr(op, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var rows []jobRow
	if err := s.db.Select(&rows, query, args...); err != nil {
		return nil, storeErr(op, err)
	}
	jobs := make([]*Job, 0, len(rows))
	for i := range rows {
		j, err := rows[i].toJob()
		if err != nil {
			return nil, storeErr(op, err)
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

func (s *Store) exec(op string, b sq.Sqlizer) (int64, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return 0, storeErr(op, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(query, args...)
	if err != nil {
		return 0, storeErr(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storeErr(op, err)
	}
	return n, nil
}

// execOne runs b and maps zero affected rows to ErrJobNotFound.
func (s *Store) execOne(op string, b sq.Sqlizer) error {
	n, err := s.exec(op, b)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrJobNotFound
	}
	return nil
}

func statusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, st := range statuses {
		out[i] = string(st)
	}
	return out
}
