// Package status classifies captured tmux pane text into agent states.
//
// The classifier is a pure function over (tool, pane lines): it performs no
// I/O, holds no mutable state, and is safe for concurrent use. Pattern tables
// are plain data interpreted by one shared evaluator, so supporting a new
// tool means adding a table, not new control flow.
package status

import "strings"

// Tool identifies which coding agent's output is being classified.
type Tool string

const (
	ToolClaudeCode  Tool = "claude"
	ToolOpenCode    Tool = "opencode"
	ToolMistralVibe Tool = "vibe"
	ToolCodexCli    Tool = "codex"
	ToolGeminiCli   Tool = "gemini"
	ToolUnknown     Tool = "unknown"
)

// KnownTools lists every tool with a built-in pattern table.
func KnownTools() []Tool {
	return []Tool{ToolClaudeCode, ToolOpenCode, ToolMistralVibe, ToolCodexCli, ToolGeminiCli}
}

// ParseTool maps a tool name or launch command to a Tool.
// Unrecognized input maps to ToolUnknown.
func ParseTool(s string) Tool {
	lower := strings.ToLower(strings.TrimSpace(s))
	switch {
	case strings.Contains(lower, "claude"):
		return ToolClaudeCode
	case strings.Contains(lower, "opencode"), strings.Contains(lower, "open-code"), strings.Contains(lower, "open code"):
		return ToolOpenCode
	case strings.Contains(lower, "vibe"), strings.Contains(lower, "mistral"):
		return ToolMistralVibe
	case strings.Contains(lower, "codex"):
		return ToolCodexCli
	case strings.Contains(lower, "gemini"):
		return ToolGeminiCli
	default:
		return ToolUnknown
	}
}

// Display returns the human-readable tool name used in fixture headers.
func (t Tool) Display() string {
	switch t {
	case ToolClaudeCode:
		return "Claude Code"
	case ToolOpenCode:
		return "OpenCode"
	case ToolMistralVibe:
		return "Mistral Vibe"
	case ToolCodexCli:
		return "Codex CLI"
	case ToolGeminiCli:
		return "Gemini CLI"
	default:
		return "Unknown"
	}
}

// FixtureDir returns the directory name used for this tool's fixture corpus.
func (t Tool) FixtureDir() string {
	switch t {
	case ToolClaudeCode:
		return "claude_code"
	case ToolOpenCode:
		return "opencode"
	case ToolMistralVibe:
		return "mistral_vibe"
	case ToolCodexCli:
		return "codex_cli"
	case ToolGeminiCli:
		return "gemini_cli"
	default:
		return "unknown"
	}
}

// ToolFromFixtureDir maps a fixture directory name back to a Tool.
func ToolFromFixtureDir(dir string) Tool {
	for _, t := range KnownTools() {
		if t.FixtureDir() == dir {
			return t
		}
	}
	return ToolUnknown
}

// Status is the classifier's sole output besides optional evidence.
type Status string

const (
	StatusRunning           Status = "running"
	StatusWaitingQuestion   Status = "waiting_question"
	StatusWaitingPermission Status = "waiting_permission"
	StatusIdle              Status = "idle"
	StatusError             Status = "error"
	StatusUnknown           Status = "unknown"
)

// Display returns the human-readable state name used in fixture headers.
func (s Status) Display() string {
	switch s {
	case StatusRunning:
		return "Running"
	case StatusWaitingQuestion:
		return "Waiting (Question)"
	case StatusWaitingPermission:
		return "Waiting (Permission)"
	case StatusIdle:
		return "Idle"
	case StatusError:
		return "Error"
	default:
		return "Unknown"
	}
}

// NeedsAttention reports whether the user must act before the agent proceeds.
func (s Status) NeedsAttention() bool {
	return s == StatusWaitingQuestion || s == StatusWaitingPermission
}

// ParseStatus accepts both the snake_case identifier and the fixture display
// name ("Waiting (Permission)"). Unrecognized input maps to StatusUnknown.
func ParseStatus(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "running":
		return StatusRunning
	case "waiting_question", "waiting (question)", "waiting question":
		return StatusWaitingQuestion
	case "waiting_permission", "waiting (permission)", "waiting permission":
		return StatusWaitingPermission
	case "idle":
		return StatusIdle
	case "error":
		return StatusError
	default:
		return StatusUnknown
	}
}

// RuleKind names which rule group produced a classification.
type RuleKind string

const (
	RulePermission RuleKind = "permission"
	RuleQuestion   RuleKind = "question"
	RuleRunning    RuleKind = "running"
	RuleError      RuleKind = "error"
	RuleDefault    RuleKind = "default"
)

// MatchEvidence records which pattern fired and on which line. It exists for
// golden-test assertions and debug logging only; callers must not branch on it.
type MatchEvidence struct {
	Rule    RuleKind `json:"rule"`
	Pattern string   `json:"pattern,omitempty"`
	Line    string   `json:"line,omitempty"`
}
