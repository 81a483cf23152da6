package models

import "time"

type TaskKind int

const (
	TaskCreate TaskKind = iota + 1
	TaskModify
	TaskDelete
)

type TaskTarget int

const (
	TargetSchedule TaskTarget = iota + 1
	TargetScheduleType
	TargetColor
)

// UploadTask is one queued local change waiting to be merged into the
// remote snapshot.
type UploadTask struct {
	TaskID    int64      `json:"task_id"`
	Kind      TaskKind   `json:"kind"`
	Target    TaskTarget `json:"target"`
	TargetID  string     `json:"target_id"`
	CreatedAt time.Time  `json:"created_at"`
}
