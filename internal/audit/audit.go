package audit

import (
	"context"
	"time"

	"mailservice/internal/email"
)

// TimestampLayout is the textual form timestamps are persisted in.
const TimestampLayout = "2006-01-02 15:04:05"

// Entry is the outcome of one delivery attempt for a task. Retries are
// internal to the attempt, so a task yields one Entry per attempt.
type Entry struct {
	TaskID      string
	Recipients  []string
	Subject     string
	Body        string
	MessageType string
	Success     bool
	// Detail is the failure cause. Empty when Success is true.
	Detail string
	At     time.Time
}

// Record is one persisted row: a single recipient of an Entry.
type Record struct {
	ID          int64
	Subject     string
	Body        string
	Timestamp   string
	MessageType string
	Recipient   string
	Success     bool
}

// Recorder appends entries to the durable audit log.
type Recorder interface {
	Record(ctx context.Context, entry Entry) error
}

// Succeeded builds the entry for a delivered task.
func Succeeded(task email.Task, at time.Time) Entry {
	return newEntry(task, true, "", at)
}

// Failed builds the entry for a task whose delivery attempt failed.
func Failed(task email.Task, cause error, at time.Time) Entry {
	detail := "unknown error"
	if cause != nil {
		detail = cause.Error()
	}
	return newEntry(task, false, detail, at)
}

func newEntry(task email.Task, success bool, detail string, at time.Time) Entry {
	return Entry{
		TaskID:      task.ID,
		Recipients:  append([]string(nil), task.Recipients...),
		Subject:     task.Subject,
		Body:        task.Body,
		MessageType: task.MessageType,
		Success:     success,
		Detail:      detail,
		At:          at,
	}
}
