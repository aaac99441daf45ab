package jobstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/loqalabs/loqa-transcribe/internal/config"
	"github.com/loqalabs/loqa-transcribe/internal/protocol"
	_ "modernc.org/sqlite"
)

// Job is one recorded transcription job, terminal state included.
type Job struct {
	JobID          string
	Source         string
	Success        bool
	TextPath       string
	JSONPath       string
	Segments       int
	FailedChunks   int
	Error          string
	ElapsedSeconds float64
	CreatedAt      time.Time
}

// LogLine is one persisted worker log line.
type LogLine struct {
	ID        int64
	JobID     string
	Line      string
	CreatedAt time.Time
}

// Store keeps a SQLite history of completed jobs and their log lines. When
// the store is disabled every method is a no-op, so callers never branch.
type Store struct {
	db    *sql.DB
	cfg   config.JobStoreConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the job store according to config.
func Open(ctx context.Context, cfg config.JobStoreConfig, log *slog.Logger) (*Store, error) {
	if !cfg.Enabled {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if err := s.vacuum(ctx); err != nil {
			log.Warn("job store vacuum failed", slog.String("error", err.Error()))
		}
	}

	if err := s.Prune(ctx); err != nil {
		log.Warn("job store prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	ddl := `
CREATE TABLE IF NOT EXISTS jobs (
    job_id TEXT PRIMARY KEY,
    source TEXT NOT NULL,
    success INTEGER NOT NULL,
    text_path TEXT,
    json_path TEXT,
    segments INTEGER NOT NULL DEFAULT 0,
    failed_chunks INTEGER NOT NULL DEFAULT 0,
    error TEXT,
    elapsed_seconds REAL NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS job_logs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    job_id TEXT NOT NULL,
    line TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY(job_id) REFERENCES jobs(job_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_jobs_created ON jobs(created_at);
CREATE INDEX IF NOT EXISTS idx_job_logs_job ON job_logs(job_id, created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *Store) vacuum(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordResult upserts the terminal row for a job. Log lines may arrive
// before the result, so the job row is created lazily by AppendLog too.
func (s *Store) RecordResult(ctx context.Context, result protocol.JobResult) error {
	if s.db == nil {
		return nil
	}
	created := result.Timestamp
	if created.IsZero() {
		created = s.clock().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs(job_id, source, success, text_path, json_path, segments, failed_chunks, error, elapsed_seconds, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(job_id) DO UPDATE SET
		     success=excluded.success, text_path=excluded.text_path, json_path=excluded.json_path,
		     segments=excluded.segments, failed_chunks=excluded.failed_chunks,
		     error=excluded.error, elapsed_seconds=excluded.elapsed_seconds`,
		result.JobID, result.Source, result.Success, result.TextPath, result.JSONPath,
		result.Segments, result.FailedChunks, result.Error, result.ElapsedSeconds, created)
	return err
}

// AppendLog persists one worker log line, creating a placeholder job row if
// the result has not landed yet.
func (s *Store) AppendLog(ctx context.Context, jobID, source, line string) error {
	if s.db == nil {
		return nil
	}
	now := s.clock().UTC()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs(job_id, source, success, created_at) VALUES(?, ?, 0, ?)
		 ON CONFLICT(job_id) DO NOTHING`, jobID, source, now); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO job_logs(job_id, line, created_at) VALUES(?, ?, ?)`, jobID, line, now)
	return err
}

// ListJobs retrieves up to limit jobs ordered newest first.
func (s *Store) ListJobs(ctx context.Context, limit int) ([]Job, error) {
	if s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT job_id, source, success, text_path, json_path, segments, failed_chunks, error, elapsed_seconds, created_at
		 FROM jobs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		var textPath, jsonPath, jobErr sql.NullString
		var created string
		if err := rows.Scan(&j.JobID, &j.Source, &j.Success, &textPath, &jsonPath,
			&j.Segments, &j.FailedChunks, &jobErr, &j.ElapsedSeconds, &created); err != nil {
			return nil, err
		}
		j.TextPath = textPath.String
		j.JSONPath = jsonPath.String
		j.Error = jobErr.String
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			j.CreatedAt = ts
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// ListJobLogs retrieves up to limit log lines for a job in emission order.
func (s *Store) ListJobLogs(ctx context.Context, jobID string, limit int) ([]LogLine, error) {
	if s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, job_id, line, created_at FROM job_logs
		 WHERE job_id = ? ORDER BY id ASC LIMIT ?`, jobID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []LogLine
	for rows.Next() {
		var l LogLine
		var created string
		if err := rows.Scan(&l.ID, &l.JobID, &l.Line, &created); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			l.CreatedAt = ts
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// Prune keeps the newest MaxJobs rows; cascading deletes drop their logs.
func (s *Store) Prune(ctx context.Context) error {
	if s.db == nil || s.cfg.MaxJobs <= 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE job_id IN (
		SELECT job_id FROM jobs ORDER BY created_at DESC LIMIT -1 OFFSET ?
	)`, s.cfg.MaxJobs)
	return err
}
