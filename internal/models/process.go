package models

import "time"

// Log levels captured from worker processes
const (
	LevelInfo  = "info"
	LevelError = "error"
)

// Process runtime statuses
const (
	ProcessStarting = "starting"
	ProcessRunning  = "running"
	ProcessStopping = "stopping"
	ProcessStopped  = "stopped"
)

// LogEntry is a single captured line of worker output or a supervisor note
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

// ProcessStatus describes the runtime state of a server's worker process
type ProcessStatus struct {
	ServerId   string     `json:"server_id"`
	Status     string     `json:"status"`
	PID        int        `json:"pid,omitempty"`
	ServerType string     `json:"server_type,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
}

// StopResult reports the outcome of stopping one process during a bulk stop
type StopResult struct {
	ServerId string `json:"server_id"`
	Err      error  `json:"-"`
}

// LogsResponse is returned by the logs endpoint
type LogsResponse struct {
	ServerId string     `json:"server_id"`
	Logs     []LogEntry `json:"logs"`
	Total    int        `json:"total"`
}
