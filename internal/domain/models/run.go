package models

import (
	"errors"
	"time"
)

// RunState 编排状态机的状态
type RunState string

const (
	StateCheckInput  RunState = "CHECK_INPUT"
	StateRetrieve    RunState = "RETRIEVE"
	StateGenerate    RunState = "GENERATE"
	StateCheckOutput RunState = "CHECK_OUTPUT"
	StateCacheWrite  RunState = "CACHE_WRITE"

	// 终态
	StateSucceeded RunState = "SUCCEEDED"
	StateBlocked   RunState = "BLOCKED"
	StateFailed    RunState = "FAILED"

	// 运行时层面的状态，不属于状态机本身
	StateRunning  RunState = "RUNNING"
	StateTimedOut RunState = "TIMED_OUT"
	StateAborted  RunState = "ABORTED"
)

// IsTerminal 判断是否为终态
func (s RunState) IsTerminal() bool {
	switch s {
	case StateSucceeded, StateBlocked, StateFailed, StateTimedOut, StateAborted:
		return true
	default:
		return false
	}
}

// RunHandle 提交到编排运行时后得到的句柄
type RunHandle struct {
	RunID     string    `json:"run_id"`
	RequestID string    `json:"request_id"`
	Runtime   string    `json:"runtime"`
	StartedAt time.Time `json:"started_at"`
}

// RunError 终态为失败时的可序列化错误信息
type RunError struct {
	Kind  ErrorKind `json:"kind"`
	Stage RunState  `json:"stage,omitempty"`
	Cause string    `json:"cause,omitempty"`
}

// Err 转换为 PipelineError
func (e *RunError) Err() error {
	if e == nil {
		return nil
	}
	return &PipelineError{Kind: e.Kind, Stage: e.Stage, Message: e.Cause}
}

// RunErrorFrom 从任意错误构建 RunError
func RunErrorFrom(err error) *RunError {
	if err == nil {
		return nil
	}
	re := &RunError{Kind: KindOf(err), Cause: err.Error()}
	var pe *PipelineError
	if errors.As(err, &pe) {
		re.Stage = pe.Stage
		if pe.Kind == KindModerationBlocked {
			re.Cause = pe.Message
		}
	}
	return re
}

// RunStatus 一次轮询观察到的运行状态
type RunStatus struct {
	RunID  string          `json:"run_id"`
	State  RunState        `json:"state"`
	Result *PipelineResult `json:"result,omitempty"`
	Error  *RunError       `json:"error,omitempty"`
}

// Terminal 判断状态是否为终态
func (s RunStatus) Terminal() bool {
	return s.State.IsTerminal()
}
