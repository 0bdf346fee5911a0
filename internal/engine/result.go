package engine

import (
	"fmt"
	"time"
)

// ErrorKind classifies a task failure. The set is closed: every failure a
// task function raises must carry one of these kinds, and the retry policy
// consults nothing else.
type ErrorKind string

const (
	KindConnectTimeout ErrorKind = "connect-timeout"
	KindOpsTimeout     ErrorKind = "ops-timeout"
	KindOverallTimeout ErrorKind = "overall-timeout"
	KindAuthFailure    ErrorKind = "auth-failure"
	KindCommandFailure ErrorKind = "command-failure"
	KindOTPRequired    ErrorKind = "otp-required"
	KindCancelled      ErrorKind = "cancelled"
	KindValidation     ErrorKind = "validation-error"
)

// Stage names the timeout tier that was active when a failure occurred.
type Stage string

const (
	StageConnect Stage = "connect"
	StageOps     Stage = "ops"
	StageOverall Stage = "overall"
)

type ErrorInfo struct {
	Kind    ErrorKind `json:"code"`
	Stage   Stage     `json:"stage,omitempty"`
	Message string    `json:"message"`
	Detail  string    `json:"detail,omitempty"`
}

// TaskError is the only error type task functions may fail with. The runner
// translates anything else into a generic command-failure.
type TaskError struct {
	Info ErrorInfo
	Err  error
}

func NewTaskError(kind ErrorKind, stage Stage, msg string) *TaskError {
	return &TaskError{Info: ErrorInfo{Kind: kind, Stage: stage, Message: msg}}
}

func WrapTaskError(kind ErrorKind, stage Stage, msg string, err error) *TaskError {
	te := &TaskError{Info: ErrorInfo{Kind: kind, Stage: stage, Message: msg}, Err: err}
	if err != nil {
		te.Info.Detail = err.Error()
	}
	return te
}

func (e *TaskError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Info.Kind, e.Info.Stage, e.Info.Message, e.Err)
	}
	return fmt.Sprintf("%s (%s): %s", e.Info.Kind, e.Info.Stage, e.Info.Message)
}

func (e *TaskError) Unwrap() error { return e.Err }

// AttemptRecord captures one execution attempt of a task. A failed attempt
// carries exactly one ErrorInfo.
type AttemptRecord struct {
	Attempt    int        `json:"attempt"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
	Success    bool       `json:"success"`
	Error      *ErrorInfo `json:"error,omitempty"`
}

type ResultMeta struct {
	Host     string        `json:"host"`
	DeviceID uint          `json:"device_id"`
	Command  string        `json:"command,omitempty"`
	Elapsed  time.Duration `json:"elapsed"`
	Attempts int           `json:"attempt"`
	Stage    Stage         `json:"stage,omitempty"`
}

// TaskResult is the terminal outcome of one device task. Exactly one exists
// per task, produced after an attempt succeeds or retries are exhausted.
type TaskResult struct {
	DeviceID uint            `json:"device_id"`
	Success  bool            `json:"success"`
	Data     map[string]any  `json:"data,omitempty"`
	Error    *ErrorInfo      `json:"error,omitempty"`
	Meta     ResultMeta      `json:"meta"`
	Attempts []AttemptRecord `json:"attempts,omitempty"`
}
