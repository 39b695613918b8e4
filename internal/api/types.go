package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// InvokeRequest asks the daemon to process one item of a collection.
type InvokeRequest struct {
	Collection    string `json:"collection"`
	Lane          string `json:"lane,omitempty"`
	Mode          string `json:"mode,omitempty"`
	FailurePolicy string `json:"failurePolicy,omitempty"`
	StartOffset   *int   `json:"startOffset,omitempty"`
	Token         string `json:"token,omitempty"`
}

// SkippedItem describes an item passed over under skip-on-error.
type SkippedItem struct {
	Offset int    `json:"offset"`
	ItemID string `json:"itemId"`
	Reason string `json:"reason"`
}

// InvokeResult is the transport form of one invocation.
type InvokeResult struct {
	Collection    string        `json:"collection"`
	InvocationID  string        `json:"invocationId"`
	ItemID        string        `json:"itemId,omitempty"`
	ItemPath      string        `json:"itemPath,omitempty"`
	BaseName      string        `json:"baseName,omitempty"`
	Format        string        `json:"format,omitempty"`
	DirName       string        `json:"dirName,omitempty"`
	Offset        int           `json:"offset"`
	Total         int           `json:"total"`
	Status        string        `json:"status"`
	BatchComplete bool          `json:"batchComplete"`
	Progress      string        `json:"progress,omitempty"`
	Skipped       []SkippedItem `json:"skipped,omitempty"`
	Signal        string        `json:"signal,omitempty"`
	SignalError   string        `json:"signalError,omitempty"`
	ElapsedMillis float64       `json:"elapsedMs"`
}

// InvokeResponse wraps an invocation outcome. Error and ErrorKind are set
// when the invocation failed; Result still carries the record position.
type InvokeResponse struct {
	Result    InvokeResult `json:"result"`
	Error     string       `json:"error,omitempty"`
	ErrorKind string       `json:"errorKind,omitempty"`
}

// Record is a persisted cursor.
type Record struct {
	Collection string `json:"collection"`
	Offset     int    `json:"offset"`
	Total      int    `json:"total"`
	Status     string `json:"status"`
	UpdatedAt  string `json:"updatedAt,omitempty"`
}

// RecordsResponse lists stored cursors.
type RecordsResponse struct {
	Records []Record `json:"records"`
}

// ResetRequest resets one collection, or every record when All is set.
type ResetRequest struct {
	Collection string `json:"collection,omitempty"`
	All        bool   `json:"all,omitempty"`
}

// ResetResponse reports the record after a single-collection reset.
type ResetResponse struct {
	Record *Record `json:"record,omitempty"`
	All    bool    `json:"all,omitempty"`
}

// Job is a scheduled sequence.
type Job struct {
	Token       string        `json:"token"`
	Collection  string        `json:"collection"`
	Lane        string        `json:"lane,omitempty"`
	State       string        `json:"state"`
	Invocations int           `json:"invocations"`
	Last        *InvokeResult `json:"last,omitempty"`
	Error       string        `json:"error,omitempty"`
	ErrorKind   string        `json:"errorKind,omitempty"`
	CreatedAt   string        `json:"createdAt,omitempty"`
	UpdatedAt   string        `json:"updatedAt,omitempty"`
}

// JobResponse wraps a single job.
type JobResponse struct {
	Job Job `json:"job"`
}

// JobsResponse lists retained jobs, newest first.
type JobsResponse struct {
	Jobs []Job `json:"jobs"`
}

// SignalRequest is the body accepted by the daemon's /continue and /halt
// endpoints, matching what the HTTP signal posts.
type SignalRequest struct {
	Token       string `json:"token"`
	Instruction string `json:"instruction,omitempty"`
}

// LatencyStats summarizes invocation latency in milliseconds.
type LatencyStats struct {
	Count int64   `json:"count"`
	Min   float64 `json:"minMs"`
	Mean  float64 `json:"meanMs"`
	P50   float64 `json:"p50Ms"`
	P90   float64 `json:"p90Ms"`
	P99   float64 `json:"p99Ms"`
	Max   float64 `json:"maxMs"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running             bool           `json:"running"`
	PID                 int            `json:"pid"`
	LockFilePath        string         `json:"lockFilePath"`
	StateBackend        string         `json:"stateBackend"`
	Step                string         `json:"step"`
	SchedulerConfigured bool           `json:"schedulerConfigured"`
	TracingEnabled      bool           `json:"tracingEnabled"`
	EventClients        int            `json:"eventClients"`
	ActiveLocks         int            `json:"activeLocks"`
	Jobs                map[string]int `json:"jobs"`
	Latency             LatencyStats   `json:"latency"`
}

// LogEvent is a structured log line.
type LogEvent struct {
	Sequence      uint64            `json:"seq"`
	Timestamp     string            `json:"ts"`
	Level         string            `json:"level"`
	Message       string            `json:"msg"`
	Component     string            `json:"component,omitempty"`
	Collection    string            `json:"collection,omitempty"`
	Lane          string            `json:"lane,omitempty"`
	ItemID        string            `json:"itemId,omitempty"`
	InvocationID  string            `json:"invocationId,omitempty"`
	CorrelationID string            `json:"correlationId,omitempty"`
	Fields        map[string]string `json:"fields,omitempty"`
}

// LogStreamResponse is a page of log events. Next is the cursor for the
// following request.
type LogStreamResponse struct {
	Events []LogEvent `json:"events"`
	Next   uint64     `json:"next"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error     string `json:"error"`
	ErrorKind string `json:"errorKind,omitempty"`
}
