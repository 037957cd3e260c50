// Package tools manages the registry of external review agents and runs
// them as blocking subprocesses with hard wall-clock timeouts.
package tools

import (
	"os/exec"
	"sort"
)

// Tool binds a tool name to its command invocation.
type Tool struct {
	Name string
	// Command is the binary to execute.
	Command string
	// Args are fixed arguments; the prompt is written to stdin.
	Args []string
	// ModelFlag, when non-empty, is used to pass a model hint.
	ModelFlag string
	// Models is the ordered model-priority list for this tool.
	Models []string
}

// DefaultModel returns the highest-priority model, or "" if none configured.
func (t Tool) DefaultModel() string {
	if len(t.Models) == 0 {
		return ""
	}
	return t.Models[0]
}

// Registry holds the enabled tool set in configured order.
type Registry struct {
	tools   map[string]Tool
	enabled []string

	// LookPath resolves a command on PATH, replaceable in tests.
	LookPath func(string) (string, error)
}

// NewRegistry builds a registry from tool definitions and the enabled list.
// Enabled names without a definition are ignored.
func NewRegistry(defs []Tool, enabled []string) *Registry {
	r := &Registry{
		tools:    make(map[string]Tool, len(defs)),
		LookPath: exec.LookPath,
	}
	for _, t := range defs {
		r.tools[t.Name] = t
	}
	for _, name := range enabled {
		if _, ok := r.tools[name]; ok {
			r.enabled = append(r.enabled, name)
		}
	}
	return r
}

// Lookup returns the named tool definition.
func (r *Registry) Lookup(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// All returns every defined tool sorted by name, enabled or not.
func (r *Registry) All() []Tool {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]Tool, 0, len(names))
	for _, name := range names {
		out = append(out, r.tools[name])
	}
	return out
}

// IsEnabled reports whether the tool name is on the enabled list.
func (r *Registry) IsEnabled(name string) bool {
	for _, e := range r.enabled {
		if e == name {
			return true
		}
	}
	return false
}

// Enabled returns the enabled tool names in configured order.
func (r *Registry) Enabled() []string {
	out := make([]string, len(r.enabled))
	copy(out, r.enabled)
	return out
}

// IsAvailable reports whether the tool is enabled and its binary is on PATH.
func (r *Registry) IsAvailable(name string) bool {
	t, ok := r.tools[name]
	if !ok {
		return false
	}
	for _, e := range r.enabled {
		if e == name {
			_, err := r.LookPath(t.Command)
			return err == nil
		}
	}
	return false
}

// FirstAvailable returns the first enabled tool whose binary is on PATH.
func (r *Registry) FirstAvailable() (string, bool) {
	for _, name := range r.enabled {
		if r.IsAvailable(name) {
			return name, true
		}
	}
	return "", false
}

// AvailableEnabled returns every enabled tool whose binary is on PATH,
// in configured order.
func (r *Registry) AvailableEnabled() []string {
	var out []string
	for _, name := range r.enabled {
		if r.IsAvailable(name) {
			out = append(out, name)
		}
	}
	return out
}
