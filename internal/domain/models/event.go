package models

import "time"

// RunEvent 在各阶段之间按值传递的运行记录。
// 每个阶段通过 With* 方法得到新副本，原记录保持不变。
type RunEvent struct {
	Query     string    `json:"query"`
	RequestID string    `json:"request_id"`
	StartTime time.Time `json:"start_time"`
	RunID     string    `json:"run_id,omitempty"`

	State         RunState           `json:"state,omitempty"`
	InputVerdict  *ModerationVerdict `json:"input_verdict,omitempty"`
	Passages      []RetrievedPassage `json:"passages,omitempty"`
	Context       string             `json:"context,omitempty"`
	Generation    *Generation        `json:"generation,omitempty"`
	OutputVerdict *ModerationVerdict `json:"output_verdict,omitempty"`
	Result        *PipelineResult    `json:"result,omitempty"`
	Failure       *RunError          `json:"failure,omitempty"`
}

// NewRunEvent 创建初始运行记录
func NewRunEvent(query, requestID string, startTime time.Time) RunEvent {
	return RunEvent{
		Query:     query,
		RequestID: requestID,
		StartTime: startTime,
		State:     StateCheckInput,
	}
}

// WithRunID 设置运行 ID
func (e RunEvent) WithRunID(runID string) RunEvent {
	e.RunID = runID
	return e
}

// WithState 推进状态
func (e RunEvent) WithState(state RunState) RunEvent {
	e.State = state
	return e
}

// WithInputVerdict 记录输入审核结论
func (e RunEvent) WithInputVerdict(v ModerationVerdict) RunEvent {
	e.InputVerdict = &v
	return e
}

// WithRetrieval 记录检索结果和格式化后的上下文
func (e RunEvent) WithRetrieval(passages []RetrievedPassage, context string) RunEvent {
	e.Passages = append([]RetrievedPassage(nil), passages...)
	e.Context = context
	return e
}

// WithGeneration 记录生成结果
func (e RunEvent) WithGeneration(g Generation) RunEvent {
	e.Generation = &g
	return e
}

// WithOutputVerdict 记录输出审核结论
func (e RunEvent) WithOutputVerdict(v ModerationVerdict) RunEvent {
	e.OutputVerdict = &v
	return e
}

// WithResult 记录最终结果
func (e RunEvent) WithResult(r PipelineResult) RunEvent {
	r.Sources = append([]Source(nil), r.Sources...)
	e.Result = &r
	return e
}

// WithFailure 记录阶段失败并进入 FAILED
func (e RunEvent) WithFailure(err error) RunEvent {
	e.Failure = RunErrorFrom(err)
	e.State = StateFailed
	return e
}

// Blocked 判断当前记录是否已被审核拦截
func (e RunEvent) Blocked() (*ModerationVerdict, bool) {
	if e.InputVerdict != nil && !e.InputVerdict.Passed {
		return e.InputVerdict, true
	}
	if e.OutputVerdict != nil && !e.OutputVerdict.Passed {
		return e.OutputVerdict, true
	}
	return nil, false
}
