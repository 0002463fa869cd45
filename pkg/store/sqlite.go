package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // register the "sqlite" driver

	"github.com/driftsec/fuzzfleet/pkg/errdefs"
	"github.com/driftsec/fuzzfleet/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	task_id        TEXT PRIMARY KEY,
	target         TEXT NOT NULL,
	wordlist_name  TEXT NOT NULL,
	wordlist_path  TEXT NOT NULL,
	options        TEXT NOT NULL,
	worker_ids     TEXT NOT NULL,
	status         TEXT NOT NULL,
	progress       REAL DEFAULT 0,
	findings_count INTEGER DEFAULT 0,
	created_at     TIMESTAMP NOT NULL,
	completed_at   TIMESTAMP
);

CREATE TABLE IF NOT EXISTS findings (
	finding_id      TEXT PRIMARY KEY,
	task_id         TEXT NOT NULL,
	url             TEXT NOT NULL,
	status_code     INTEGER NOT NULL,
	content_length  INTEGER NOT NULL,
	words           INTEGER NOT NULL,
	lines           INTEGER NOT NULL,
	severity        TEXT NOT NULL,
	detected_issues TEXT NOT NULL,
	raw_response    TEXT,
	checked         BOOLEAN DEFAULT FALSE,
	created_at      TIMESTAMP NOT NULL,
	FOREIGN KEY (task_id) REFERENCES tasks (task_id)
);

CREATE INDEX IF NOT EXISTS idx_findings_task_id ON findings (task_id);
CREATE INDEX IF NOT EXISTS idx_findings_severity ON findings (severity);

CREATE TABLE IF NOT EXISTS workers (
	worker_id       TEXT PRIMARY KEY,
	hostname        TEXT NOT NULL,
	status          TEXT NOT NULL,
	threads         INTEGER DEFAULT 10,
	current_task    TEXT,
	last_seen       TIMESTAMP,
	tasks_completed INTEGER DEFAULT 0,
	registered_at   TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS scan_configs (
	config_id          TEXT PRIMARY KEY,
	name               TEXT NOT NULL,
	target             TEXT NOT NULL,
	wordlist           TEXT NOT NULL,
	threads_per_worker INTEGER DEFAULT 10,
	rate_limit         INTEGER,
	follow_redirects   BOOLEAN DEFAULT TRUE,
	recursive          BOOLEAN DEFAULT FALSE,
	created_at         TIMESTAMP NOT NULL
);
`

// SQLiteStore implements Store on an embedded sqlite database
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path and applies
// the schema. ":memory:" is accepted for tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}

	// sqlite allows a single writer; serializing through one connection
	// avoids SQLITE_BUSY under concurrent loops.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close releases the database handle
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// SaveTask inserts a new task. A colliding task id fails with ErrDuplicateID.
func (s *SQLiteStore) SaveTask(task *types.Task) error {
	options, err := json.Marshal(task.Options)
	if err != nil {
		return fmt.Errorf("encode options: %w", err)
	}
	workerIDs, err := json.Marshal(task.WorkerIDs)
	if err != nil {
		return fmt.Errorf("encode worker ids: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO tasks
		(task_id, target, wordlist_name, wordlist_path, options, worker_ids, status, progress, findings_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.Target, task.WordlistName, task.WordlistPath,
		string(options), string(workerIDs), string(task.Status),
		task.Progress, task.FindingsCount, task.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if isUniqueViolation(err) {
		return errdefs.Wrap(errdefs.ErrDuplicateID, "task %s", task.ID)
	}
	if err != nil {
		return fmt.Errorf("save task %s: %w", task.ID, errdefs.ErrStoreFailure)
	}
	return nil
}

// GetTask returns a task by id
func (s *SQLiteStore) GetTask(id string) (*types.Task, error) {
	row := s.db.QueryRow(`
		SELECT task_id, target, wordlist_name, wordlist_path, options, worker_ids,
		       status, progress, findings_count, created_at, completed_at
		FROM tasks WHERE task_id = ?`, id)
	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, errdefs.Wrap(errdefs.ErrNotFound, "task %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, errdefs.ErrStoreFailure)
	}
	return task, nil
}

// ListTasks returns up to limit tasks, newest first
func (s *SQLiteStore) ListTasks(limit int) ([]*types.Task, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`
		SELECT task_id, target, wordlist_name, wordlist_path, options, worker_ids,
		       status, progress, findings_count, created_at, completed_at
		FROM tasks ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", errdefs.ErrStoreFailure)
	}
	defer rows.Close()

	var tasks []*types.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("list tasks: %w", errdefs.ErrStoreFailure)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// UpdateTaskProgress clamps progress to [0, 100] and persists it. A task
// still pending is promoted to in_progress on its first update. Unknown ids
// are a no-op.
func (s *SQLiteStore) UpdateTaskProgress(id string, progress float64) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	_, err := s.db.Exec(`
		UPDATE tasks
		SET progress = ?,
		    status = CASE WHEN status = 'pending' THEN 'in_progress' ELSE status END
		WHERE task_id = ?`, progress, id)
	if err != nil {
		return fmt.Errorf("update progress for task %s: %w", id, errdefs.ErrStoreFailure)
	}
	return nil
}

// CompleteTask marks a task completed with the final findings count.
// Idempotent: repeating the call rewrites the same terminal state.
func (s *SQLiteStore) CompleteTask(id string, findingsCount int) error {
	_, err := s.db.Exec(`
		UPDATE tasks
		SET status = 'completed', progress = 100, completed_at = ?, findings_count = ?
		WHERE task_id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), findingsCount, id)
	if err != nil {
		return fmt.Errorf("complete task %s: %w", id, errdefs.ErrStoreFailure)
	}
	return nil
}

// FailTask marks a task failed. Used by the coordinator's failure policy
// when every worker of a task reported failure.
func (s *SQLiteStore) FailTask(id string) error {
	_, err := s.db.Exec(`UPDATE tasks SET status = 'failed' WHERE task_id = ?`, id)
	if err != nil {
		return fmt.Errorf("fail task %s: %w", id, errdefs.ErrStoreFailure)
	}
	return nil
}

// SaveFinding inserts a finding. A duplicate finding id is silently ignored,
// which is what makes result replay idempotent.
func (s *SQLiteStore) SaveFinding(finding *types.Finding) error {
	issues, err := json.Marshal(finding.DetectedIssues)
	if err != nil {
		return fmt.Errorf("encode detected issues: %w", err)
	}

	createdAt := finding.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = s.db.Exec(`
		INSERT INTO findings
		(finding_id, task_id, url, status_code, content_length, words, lines, severity, detected_issues, raw_response, checked, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(finding_id) DO NOTHING`,
		finding.ID, finding.TaskID, finding.URL, finding.StatusCode,
		finding.ContentLength, finding.Words, finding.Lines,
		string(finding.Severity), string(issues), finding.RawResponse,
		finding.Checked, createdAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save finding %s: %w", finding.ID, errdefs.ErrStoreFailure)
	}
	return nil
}

// GetFindings returns findings joined with the owning task's target and
// wordlist name, newest first
func (s *SQLiteStore) GetFindings(filter FindingFilter) ([]*types.Finding, error) {
	query := `
		SELECT f.finding_id, f.task_id, f.url, f.status_code, f.content_length,
		       f.words, f.lines, f.severity, f.detected_issues, f.raw_response,
		       f.checked, f.created_at, t.target, t.wordlist_name
		FROM findings f
		LEFT JOIN tasks t ON f.task_id = t.task_id`

	var (
		where []string
		args  []interface{}
	)
	if filter.TaskID != nil {
		where = append(where, "f.task_id = ?")
		args = append(args, *filter.TaskID)
	}
	if filter.Checked != nil {
		where = append(where, "f.checked = ?")
		args = append(args, *filter.Checked)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY f.created_at DESC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("get findings: %w", errdefs.ErrStoreFailure)
	}
	defer rows.Close()

	var findings []*types.Finding
	for rows.Next() {
		f, err := scanFinding(rows)
		if err != nil {
			return nil, fmt.Errorf("get findings: %w", errdefs.ErrStoreFailure)
		}
		findings = append(findings, f)
	}
	return findings, rows.Err()
}

// CountFindings returns the number of findings recorded for a task
func (s *SQLiteStore) CountFindings(taskID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM findings WHERE task_id = ?`, taskID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count findings for task %s: %w", taskID, errdefs.ErrStoreFailure)
	}
	return n, nil
}

// MarkFindingChecked flips the checked flag. Unknown ids are a no-op.
func (s *SQLiteStore) MarkFindingChecked(id string, checked bool) error {
	_, err := s.db.Exec(`UPDATE findings SET checked = ? WHERE finding_id = ?`, checked, id)
	if err != nil {
		return fmt.Errorf("mark finding %s: %w", id, errdefs.ErrStoreFailure)
	}
	return nil
}

// SecuritySummary aggregates severity counts, unchecked findings and the
// ten most recent critical findings
func (s *SQLiteStore) SecuritySummary() (*types.SecuritySummary, error) {
	summary := &types.SecuritySummary{
		SeverityStats: make(map[types.Severity]int),
	}

	rows, err := s.db.Query(`SELECT severity, COUNT(*) FROM findings GROUP BY severity`)
	if err != nil {
		return nil, fmt.Errorf("severity stats: %w", errdefs.ErrStoreFailure)
	}
	for rows.Next() {
		var (
			sev string
			n   int
		)
		if err := rows.Scan(&sev, &n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("severity stats: %w", errdefs.ErrStoreFailure)
		}
		summary.SeverityStats[types.Severity(sev)] = n
		summary.TotalFindings += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("severity stats: %w", errdefs.ErrStoreFailure)
	}

	if err := s.db.QueryRow(`SELECT COUNT(*) FROM findings WHERE checked = FALSE`).
		Scan(&summary.UncheckedCount); err != nil {
		return nil, fmt.Errorf("unchecked count: %w", errdefs.ErrStoreFailure)
	}

	crit := string(types.SeverityCritical)
	recent, err := s.GetFindings(FindingFilter{})
	if err != nil {
		return nil, err
	}
	for _, f := range recent {
		if string(f.Severity) == crit {
			summary.RecentCritical = append(summary.RecentCritical, f)
			if len(summary.RecentCritical) == 10 {
				break
			}
		}
	}

	return summary, nil
}

// UpsertWorker writes a registry snapshot row for a worker
func (s *SQLiteStore) UpsertWorker(info *types.WorkerInfo) error {
	registeredAt := info.RegisteredAt
	if registeredAt.IsZero() {
		registeredAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO workers (worker_id, hostname, status, threads, current_task, last_seen, registered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(worker_id) DO UPDATE SET
			hostname = excluded.hostname,
			status = excluded.status,
			threads = excluded.threads,
			current_task = excluded.current_task,
			last_seen = excluded.last_seen`,
		info.ID, info.Hostname, string(info.Status), info.Threads,
		info.CurrentTask, info.LastSeen.UTC().Format(time.RFC3339Nano),
		registeredAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert worker %s: %w", info.ID, errdefs.ErrStoreFailure)
	}
	return nil
}

// IncrementWorkerTasksCompleted bumps a worker's completion counter.
// Unknown worker ids are a no-op; the snapshot loop fills the row in later.
func (s *SQLiteStore) IncrementWorkerTasksCompleted(workerID string) error {
	_, err := s.db.Exec(
		`UPDATE workers SET tasks_completed = tasks_completed + 1 WHERE worker_id = ?`,
		workerID,
	)
	if err != nil {
		return fmt.Errorf("increment tasks completed for %s: %w", workerID, errdefs.ErrStoreFailure)
	}
	return nil
}

// ListWorkerSnapshots returns the persisted worker registry view
func (s *SQLiteStore) ListWorkerSnapshots() ([]*types.WorkerInfo, error) {
	rows, err := s.db.Query(`
		SELECT worker_id, hostname, status, threads, current_task, last_seen, tasks_completed, registered_at
		FROM workers ORDER BY worker_id`)
	if err != nil {
		return nil, fmt.Errorf("list worker snapshots: %w", errdefs.ErrStoreFailure)
	}
	defer rows.Close()

	var workers []*types.WorkerInfo
	for rows.Next() {
		var (
			info        types.WorkerInfo
			status      string
			currentTask sql.NullString
			lastSeen    sql.NullString
			registered  string
		)
		if err := rows.Scan(&info.ID, &info.Hostname, &status, &info.Threads,
			&currentTask, &lastSeen, &info.TasksCompleted, &registered); err != nil {
			return nil, fmt.Errorf("list worker snapshots: %w", errdefs.ErrStoreFailure)
		}
		info.Status = types.WorkerStatus(status)
		info.CurrentTask = currentTask.String
		if lastSeen.Valid {
			info.LastSeen, _ = time.Parse(time.RFC3339Nano, lastSeen.String)
		}
		info.RegisteredAt, _ = time.Parse(time.RFC3339Nano, registered)
		workers = append(workers, &info)
	}
	return workers, rows.Err()
}

// SaveScanConfig persists a reusable scan configuration
func (s *SQLiteStore) SaveScanConfig(cfg *types.ScanConfig) error {
	createdAt := cfg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO scan_configs
		(config_id, name, target, wordlist, threads_per_worker, rate_limit, follow_redirects, recursive, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cfg.ID, cfg.Name, cfg.Target, cfg.Wordlist, cfg.ThreadsPerWorker,
		cfg.RateLimit, cfg.FollowRedirects, cfg.Recursive,
		createdAt.UTC().Format(time.RFC3339Nano),
	)
	if isUniqueViolation(err) {
		return errdefs.Wrap(errdefs.ErrDuplicateID, "scan config %s", cfg.ID)
	}
	if err != nil {
		return fmt.Errorf("save scan config %s: %w", cfg.ID, errdefs.ErrStoreFailure)
	}
	return nil
}

// ListScanConfigs returns saved scan configurations, newest first
func (s *SQLiteStore) ListScanConfigs() ([]*types.ScanConfig, error) {
	rows, err := s.db.Query(`
		SELECT config_id, name, target, wordlist, threads_per_worker, rate_limit, follow_redirects, recursive, created_at
		FROM scan_configs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list scan configs: %w", errdefs.ErrStoreFailure)
	}
	defer rows.Close()

	var configs []*types.ScanConfig
	for rows.Next() {
		var (
			cfg       types.ScanConfig
			rateLimit sql.NullInt64
			createdAt string
		)
		if err := rows.Scan(&cfg.ID, &cfg.Name, &cfg.Target, &cfg.Wordlist,
			&cfg.ThreadsPerWorker, &rateLimit, &cfg.FollowRedirects,
			&cfg.Recursive, &createdAt); err != nil {
			return nil, fmt.Errorf("list scan configs: %w", errdefs.ErrStoreFailure)
		}
		cfg.RateLimit = int(rateLimit.Int64)
		cfg.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		configs = append(configs, &cfg)
	}
	return configs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (*types.Task, error) {
	var (
		task        types.Task
		options     string
		workerIDs   string
		status      string
		createdAt   string
		completedAt sql.NullString
	)
	if err := row.Scan(&task.ID, &task.Target, &task.WordlistName, &task.WordlistPath,
		&options, &workerIDs, &status, &task.Progress, &task.FindingsCount,
		&createdAt, &completedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(options), &task.Options); err != nil {
		return nil, fmt.Errorf("decode options: %w", err)
	}
	if err := json.Unmarshal([]byte(workerIDs), &task.WorkerIDs); err != nil {
		return nil, fmt.Errorf("decode worker ids: %w", err)
	}
	task.Status = types.TaskStatus(status)
	task.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	if completedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, completedAt.String)
		if err == nil {
			task.CompletedAt = &t
		}
	}
	return &task, nil
}

func scanFinding(row rowScanner) (*types.Finding, error) {
	var (
		f            types.Finding
		severity     string
		issues       string
		rawResponse  sql.NullString
		createdAt    string
		taskTarget   sql.NullString
		wordlistName sql.NullString
	)
	if err := row.Scan(&f.ID, &f.TaskID, &f.URL, &f.StatusCode, &f.ContentLength,
		&f.Words, &f.Lines, &severity, &issues, &rawResponse, &f.Checked,
		&createdAt, &taskTarget, &wordlistName); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(issues), &f.DetectedIssues); err != nil {
		return nil, fmt.Errorf("decode detected issues: %w", err)
	}
	f.Severity = types.Severity(severity)
	f.RawResponse = rawResponse.String
	f.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	f.TaskTarget = taskTarget.String
	f.WordlistName = wordlistName.String
	return &f, nil
}
