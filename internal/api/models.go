package api

import "intelliqueue/internal/domain"

type submitReq struct {
	TaskType string `json:"task_type" validate:"required"`
	Payload  string `json:"payload" validate:"required"`
}

type submitResp struct {
	ID string `json:"id"`
}

type workerConfigReq struct {
	ProcessingDelayMS *int64 `json:"processing_delay_ms" validate:"omitempty,gte=0"`
	FailureRate       *int   `json:"failure_rate" validate:"omitempty,gte=0,lte=100"`
}

type workerResp struct {
	Running           bool  `json:"running"`
	ProcessingDelayMS int64 `json:"processing_delay_ms"`
	FailureRate       int   `json:"failure_rate"`
}

type snapshotResp struct {
	Tasks             []domain.Task         `json:"tasks"`
	QueueDepth        int                   `json:"queue_depth"`
	Notifications     []domain.Notification `json:"notifications"`
	Stats             domain.Stats          `json:"stats"`
	Running           bool                  `json:"running"`
	ProcessingDelayMS int64                 `json:"processing_delay_ms"`
	FailureRate       int                   `json:"failure_rate"`
}

type taskTypeResp struct {
	Type        domain.TaskType `json:"type"`
	Description string          `json:"description,omitempty"`
}

type createScheduleReq struct {
	Name     string `json:"name" validate:"required"`
	CronExpr string `json:"cron_expr" validate:"required"`
	TaskType string `json:"task_type" validate:"required"`
	Payload  string `json:"payload" validate:"required"`
	Enabled  *bool  `json:"enabled"`
}

type updateScheduleReq struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

type errorResp struct {
	Error string `json:"error"`
}
