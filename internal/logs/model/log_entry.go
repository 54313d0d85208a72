package model

import "time"

type Level string

const (
	Info  Level = "info"
	Warn  Level = "warn"
	Error Level = "error"
	Debug Level = "debug"
)

// LogEntry is one parsed log line. Timestamp falls back to the fetch time when
// the line carries none.
type LogEntry struct {
	Timestamp   time.Time `json:"timestamp"`
	PodName     string    `json:"podName"`
	ServiceName string    `json:"serviceName"`
	Namespace   string    `json:"namespace"`
	Level       Level     `json:"level"`
	Message     string    `json:"message"`
	Raw         string    `json:"raw"`
}
