package entity

import (
	"time"
)

type JobStatus string

const (
	StatusPending  JobStatus = "pending"
	StatusRunning  JobStatus = "running"
	StatusFinished JobStatus = "finished"
	StatusFailed   JobStatus = "failed"
)

// Terminal reports whether no further queue transitions are allowed.
func (s JobStatus) Terminal() bool {
	return s == StatusFinished || s == StatusFailed
}

// Job is a generation request owned by the queue until a worker claims it.
type Job struct {
	ID         string        `json:"id"`
	UserID     string        `json:"user_id"`
	Prompt     string        `json:"prompt"`
	Length     Length        `json:"length"`
	Quality    Quality       `json:"quality"`
	Tier       Tier          `json:"tier"`
	EnqueuedAt time.Time     `json:"enqueued_at"`
	Timeout    time.Duration `json:"timeout"`
	ResultTTL  time.Duration `json:"result_ttl"`
}

// Deadline is the instant after which the handle is reported as timed out.
func (j Job) Deadline() time.Time {
	return j.EnqueuedAt.Add(j.Timeout)
}

// JobState is the queue-level view of a handle.
type JobState struct {
	ID         string     `json:"id"`
	Status     JobStatus  `json:"status"`
	Error      string     `json:"error,omitempty"`
	EnqueuedAt time.Time  `json:"enqueued_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
