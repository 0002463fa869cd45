package types

import (
	"time"
)

// TaskStatus represents the lifecycle state of a scan task
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Severity ranks a finding by how security-relevant it is
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// WorkerStatus represents the liveness of a worker as seen by the coordinator
type WorkerStatus string

const (
	WorkerStatusActive  WorkerStatus = "active"
	WorkerStatusOffline WorkerStatus = "offline"
)

// Task is a user-requested scan fanned out to a set of workers
type Task struct {
	ID            string       `json:"task_id"`
	Target        string       `json:"target"` // URL template containing the FUZZ placeholder
	WordlistName  string       `json:"wordlist_name"`
	WordlistPath  string       `json:"wordlist_path"`
	Options       *ScanOptions `json:"options"`
	WorkerIDs     []string     `json:"worker_ids"`
	Status        TaskStatus   `json:"status"`
	Progress      float64      `json:"progress"` // 0..100
	FindingsCount int          `json:"findings_count"`
	CreatedAt     time.Time    `json:"created_at"`
	CompletedAt   *time.Time   `json:"completed_at,omitempty"`
}

// Finding is a classified observation derived from one raw fuzzer record.
// Its ID is content-addressed from (task id, url) so that replayed results
// collapse onto the same row.
type Finding struct {
	ID             string    `json:"finding_id"`
	TaskID         string    `json:"task_id"`
	URL            string    `json:"url"`
	StatusCode     int       `json:"status_code"`
	ContentLength  int64     `json:"content_length"`
	Words          int       `json:"words"`
	Lines          int       `json:"lines"`
	Severity       Severity  `json:"severity"`
	DetectedIssues []string  `json:"detected_issues"`
	RawResponse    string    `json:"raw_response,omitempty"`
	Checked        bool      `json:"checked"`
	CreatedAt      time.Time `json:"created_at"`

	// Joined from the owning task on reads; not stored on the findings row.
	TaskTarget   string `json:"target,omitempty"`
	WordlistName string `json:"wordlist_name,omitempty"`
}

// WorkerInfo describes a worker node and its observed liveness
type WorkerInfo struct {
	ID             string       `json:"worker_id"`
	Hostname       string       `json:"hostname"`
	Threads        int          `json:"threads"` // declared capacity, advisory
	CurrentTask    string       `json:"current_task,omitempty"`
	LastSeen       time.Time    `json:"last_seen"`
	TasksCompleted int          `json:"tasks_completed"`
	RegisteredAt   time.Time    `json:"registered_at"`
	Status         WorkerStatus `json:"status"`
}

// ScanConfig is a saved, reusable scan configuration
type ScanConfig struct {
	ID               string    `json:"config_id"`
	Name             string    `json:"name"`
	Target           string    `json:"target"`
	Wordlist         string    `json:"wordlist"`
	ThreadsPerWorker int       `json:"threads_per_worker"`
	RateLimit        int       `json:"rate_limit,omitempty"`
	FollowRedirects  bool      `json:"follow_redirects"`
	Recursive        bool      `json:"recursive"`
	CreatedAt        time.Time `json:"created_at"`
}

// ScanOptions is the recognized option bag passed through to the fuzzer.
// Unknown keys in incoming JSON are dropped on decode.
type ScanOptions struct {
	Method          string   `json:"method,omitempty"`
	Headers         []string `json:"headers,omitempty"` // raw "Name: value" lines
	Data            string   `json:"data,omitempty"`
	Cookies         string   `json:"cookies,omitempty"`
	Threads         int      `json:"threads,omitempty"` // default 10
	Rate            int      `json:"rate,omitempty"`    // requests/sec cap
	Timeout         int      `json:"timeout,omitempty"` // fuzzer wall-clock cap, seconds
	Recursive       bool     `json:"recursive,omitempty"`
	FollowRedirects bool     `json:"follow_redirects,omitempty"`
}

// Default option values and worker thread bounds
const (
	DefaultThreads       = 10
	DefaultFuzzerTimeout = 7200 // seconds
	MinWorkerThreads     = 1
	MaxWorkerThreads     = 100
)

// EffectiveThreads returns the thread count to pass to the fuzzer
func (o *ScanOptions) EffectiveThreads() int {
	if o == nil || o.Threads <= 0 {
		return DefaultThreads
	}
	return o.Threads
}

// EffectiveTimeout returns the fuzzer wall-clock bound
func (o *ScanOptions) EffectiveTimeout() time.Duration {
	if o == nil || o.Timeout <= 0 {
		return DefaultFuzzerTimeout * time.Second
	}
	return time.Duration(o.Timeout) * time.Second
}

// ControlType identifies a control command sent to a worker
type ControlType string

const (
	ControlUpdateThreads ControlType = "update_threads"
	ControlPause         ControlType = "pause"
	ControlResume        ControlType = "resume"
	ControlShutdown      ControlType = "shutdown"
)

// ResultStatus is the outcome a worker reports for one task assignment
type ResultStatus string

const (
	ResultCompleted ResultStatus = "completed"
	ResultFailed    ResultStatus = "failed"
)

// TaskMessage is the payload pushed onto a worker's task queue. It carries
// the full task plus the id of the worker it is addressed to.
type TaskMessage struct {
	TaskID       string       `json:"task_id"`
	Target       string       `json:"target"`
	WordlistName string       `json:"wordlist_name"`
	WordlistPath string       `json:"wordlist_path"`
	Options      *ScanOptions `json:"options"`
	WorkerIDs    []string     `json:"worker_ids"`
	WorkerID     string       `json:"worker_id"`
	CreatedAt    time.Time    `json:"created_at"`
}

// ControlMessage is a command pushed onto a worker's control queue
type ControlMessage struct {
	Type      ControlType `json:"type"`
	Threads   int         `json:"threads,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// ResultMessage is the single message a worker emits per task assignment
type ResultMessage struct {
	TaskID    string        `json:"task_id"`
	WorkerID  string        `json:"worker_id"`
	Status    ResultStatus  `json:"status"`
	Results   *FuzzerOutput `json:"results,omitempty"`
	Error     string        `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// Heartbeat is the record a worker writes under workers:health
type Heartbeat struct {
	WorkerID        string          `json:"worker_id"`
	Status          string          `json:"status"`
	Timestamp       time.Time       `json:"timestamp"`
	CurrentThreads  int             `json:"current_threads"`
	ProcessorStatus ProcessorStatus `json:"processor_status"`
}

// ProcessorStatus describes what the worker's task processor is doing
type ProcessorStatus struct {
	CurrentTask     string    `json:"current_task,omitempty"`
	FuzzerAvailable bool      `json:"fuzzer_available"`
	Timestamp       time.Time `json:"timestamp"`
}

// WorkerDescriptor is the static record a worker writes under workers:active
// when it registers itself
type WorkerDescriptor struct {
	WorkerID  string    `json:"worker_id"`
	Hostname  string    `json:"hostname"`
	Threads   int       `json:"threads"`
	StartTime time.Time `json:"start_time"`
}

// RawRecord is one per-URL record from the fuzzer's JSON output
type RawRecord struct {
	URL    string `json:"url"`
	Status int    `json:"status"`
	Length int64  `json:"length"`
	Words  int    `json:"words"`
	Lines  int    `json:"lines"`
}

// FuzzerOutput is the parsed top-level fuzzer output document
type FuzzerOutput struct {
	Results []RawRecord `json:"results"`
}

// SecuritySummary aggregates the current findings for the presentation layer
type SecuritySummary struct {
	SeverityStats  map[Severity]int `json:"severity_stats"`
	UncheckedCount int              `json:"unchecked_count"`
	TotalFindings  int              `json:"total_findings"`
	RecentCritical []*Finding       `json:"recent_critical"`
}
