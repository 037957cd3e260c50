package models

import "time"

// ToolStatus classifies the outcome of a single tool invocation.
type ToolStatus string

const (
	ToolStatusSuccess  ToolStatus = "success"
	ToolStatusTimeout  ToolStatus = "timeout"
	ToolStatusError    ToolStatus = "error"
	ToolStatusNotFound ToolStatus = "not_found"
)

// ToolResponse is the record of one tool invocation. It is created once by
// the runner and never mutated afterwards. Error and NotFound are valid
// outcomes reported to the caller, not exceptions.
type ToolResponse struct {
	ToolName string        `json:"tool_name"`
	Status   ToolStatus    `json:"status"`
	Output   string        `json:"output"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
	ExitCode *int          `json:"exit_code,omitempty"`
	Model    string        `json:"model,omitempty"`
}

// OK reports whether the invocation produced usable output.
func (r *ToolResponse) OK() bool {
	return r.Status == ToolStatusSuccess
}
