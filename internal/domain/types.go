package domain

import (
	"sort"
	"time"
)

// MaxRetries is the number of failed attempts after which a task is terminally FAILED.
const MaxRetries = 3

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Terminal reports whether no further transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

type TaskType string

const (
	TaskTypeEmail        TaskType = "EMAIL"
	TaskTypeReport       TaskType = "REPORT"
	TaskTypeBackup       TaskType = "BACKUP"
	TaskTypeNotification TaskType = "NOTIFICATION"
	TaskTypeSync         TaskType = "SYNC"
)

// DefaultTaskTypes is the enumeration used when configuration does not name one.
var DefaultTaskTypes = []TaskType{
	TaskTypeEmail, TaskTypeReport, TaskTypeBackup, TaskTypeNotification, TaskTypeSync,
}

// TaskTypeDescriptions holds the human readable blurb for the default types.
var TaskTypeDescriptions = map[TaskType]string{
	TaskTypeEmail:        "Send email notification",
	TaskTypeReport:       "Generate data report",
	TaskTypeBackup:       "Create data backup",
	TaskTypeNotification: "Push notification",
	TaskTypeSync:         "Synchronize data",
}

type Task struct {
	ID          string     `json:"id"`
	Type        TaskType   `json:"task_type"`
	Payload     string     `json:"payload"`
	Status      Status     `json:"status"`
	RetryCount  int        `json:"retry_count"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ShortID is the trailing eight characters of the id, used in messages.
func (t Task) ShortID() string { return ShortID(t.ID) }

func ShortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[len(id)-8:]
}

type NotificationType string

const (
	NotificationInfo    NotificationType = "INFO"
	NotificationSuccess NotificationType = "SUCCESS"
	NotificationError   NotificationType = "ERROR"
	NotificationWarning NotificationType = "WARNING"
)

type Notification struct {
	ID        string           `json:"id"`
	Timestamp time.Time        `json:"timestamp"`
	Type      NotificationType `json:"type"`
	Message   string           `json:"message"`
	TaskID    string           `json:"task_id,omitempty"`
}

type Stats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// CountStats groups tasks by status.
func CountStats(tasks []Task) Stats {
	var s Stats
	for _, t := range tasks {
		switch t.Status {
		case StatusPending:
			s.Pending++
		case StatusProcessing:
			s.Processing++
		case StatusCompleted:
			s.Completed++
		case StatusFailed:
			s.Failed++
		}
	}
	return s
}

// Snapshot is a point-in-time view over the store, queue and notification log.
type Snapshot struct {
	Tasks           []Task         `json:"tasks"`
	QueueDepth      int            `json:"queue_depth"`
	Notifications   []Notification `json:"notifications"`
	Stats           Stats          `json:"stats"`
	Running         bool           `json:"running"`
	ProcessingDelay time.Duration  `json:"processing_delay"`
	FailureRate     int            `json:"failure_rate"`
}

var displayRank = map[Status]int{
	StatusProcessing: 0,
	StatusPending:    1,
	StatusCompleted:  2,
	StatusFailed:     2,
}

// SortForDisplay orders tasks processing first, then pending, then terminal,
// most recently updated first within each group.
func SortForDisplay(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		ri, rj := displayRank[tasks[i].Status], displayRank[tasks[j].Status]
		if ri != rj {
			return ri < rj
		}
		return tasks[i].UpdatedAt.After(tasks[j].UpdatedAt)
	})
}
