package status

import (
	"fmt"
	"strings"
)

// MaxSnapshotLines is how much pane tail the classifier considers. Matches
// the capture collaborator's `tmux capture-pane -p -S -50`.
const MaxSnapshotLines = 50

// Classifier maps (Tool, pane lines) to a Status. Immutable after
// construction; safe for concurrent use from any number of goroutines.
type Classifier struct {
	tables map[Tool]*resolvedTable
}

// New builds a classifier from the built-in pattern tables.
func New() (*Classifier, error) {
	return NewWithOverrides(nil, nil)
}

// NewWithOverrides builds a classifier with per-tool pattern overrides and
// extensions applied on top of the defaults (see MergeRawPatterns). An
// invalid pattern in any table fails construction: tables are validated once
// here so classification itself can never error.
func NewWithOverrides(overrides, extras map[Tool]*RawPatterns) (*Classifier, error) {
	tables := make(map[Tool]*resolvedTable, len(KnownTools()))
	for _, tool := range KnownTools() {
		raw := MergeRawPatterns(DefaultRawPatterns(tool), overrides[tool], extras[tool])
		tbl, err := compileTable(raw)
		if err != nil {
			return nil, fmt.Errorf("tool %s: %w", tool, err)
		}
		tables[tool] = tbl
	}
	return &Classifier{tables: tables}, nil
}

// MustNew is New for callers with no overrides, where the built-in tables
// failing to compile is a programming error.
func MustNew() *Classifier {
	c, err := New()
	if err != nil {
		panic(err)
	}
	return c
}

// Classify inspects the most recent pane lines and returns the agent state.
//
// Rule groups run in precedence order — permission, question, running,
// error — and each group scans the whole snapshot (most recent line first)
// before the next group is consulted. Permission and question outrank
// running/error because they are actionable blocking conditions: a transient
// error banner above a permission box must still surface as a permission
// wait.
//
// Classify is total: it never panics and has no error return. Empty or
// unrecognizable input resolves to Idle for known tools; an unknown tool
// always resolves to Unknown.
func (c *Classifier) Classify(tool Tool, lines []string) (Status, *MatchEvidence) {
	tbl := c.tables[tool]
	if tbl == nil {
		return StatusUnknown, &MatchEvidence{Rule: RuleDefault}
	}

	snap := prepareSnapshot(lines)
	if len(snap) == 0 {
		return StatusIdle, &MatchEvidence{Rule: RuleDefault}
	}

	if ev := scanGroup(snap, tbl.permission, RulePermission); ev != nil {
		return StatusWaitingPermission, ev
	}
	if ev := scanGroup(snap, tbl.question, RuleQuestion); ev != nil {
		return StatusWaitingQuestion, ev
	}
	if ev := scanRunning(tool, tbl, snap); ev != nil {
		return StatusRunning, ev
	}
	if ev := scanGroup(snap, tbl.errors, RuleError); ev != nil {
		return StatusError, ev
	}
	return StatusIdle, &MatchEvidence{Rule: RuleDefault}
}

// snapshotLine is one pane line with its precomputed lowered form.
type snapshotLine struct {
	text  string
	lower string
}

// prepareSnapshot strips ANSI remnants, normalizes NBSP (some tools pad
// their prompt with U+00A0), drops trailing blank lines, and keeps at most
// MaxSnapshotLines from the tail.
func prepareSnapshot(lines []string) []snapshotLine {
	end := len(lines)
	for end > 0 && strings.TrimSpace(StripANSI(lines[end-1])) == "" {
		end--
	}
	start := end - MaxSnapshotLines
	if start < 0 {
		start = 0
	}

	snap := make([]snapshotLine, 0, end-start)
	for _, line := range lines[start:end] {
		clean := strings.ReplaceAll(StripANSI(line), "\u00a0", " ")
		snap = append(snap, snapshotLine{text: clean, lower: strings.ToLower(clean)})
	}
	return snap
}

// scanGroup evaluates one rule group over the snapshot, newest line first.
func scanGroup(snap []snapshotLine, group []matcher, rule RuleKind) *MatchEvidence {
	for i := len(snap) - 1; i >= 0; i-- {
		for _, m := range group {
			if m.matches(snap[i].text, snap[i].lower) {
				return &MatchEvidence{
					Rule:    rule,
					Pattern: m.String(),
					Line:    strings.TrimSpace(snap[i].text),
				}
			}
		}
	}
	return nil
}

// scanRunning evaluates the active-processing group: busy patterns, the
// spinner+whimsical-word combo, and bare spinner glyphs.
func scanRunning(tool Tool, tbl *resolvedTable, snap []snapshotLine) *MatchEvidence {
	for i := len(snap) - 1; i >= 0; i-- {
		line := snap[i]

		for _, m := range tbl.busy {
			if !m.matches(line.text, line.lower) {
				continue
			}
			// "... to interrupt" hints also appear in static help text;
			// require surrounding busy context (timer parens, token counts,
			// ellipsis or a spinner glyph) before treating the line as
			// active. OpenCode's bare "esc interrupt" help bar is exempt:
			// it only renders while the agent is processing.
			if strings.Contains(m.String(), "to interrupt") &&
				!hasBusyLineContext(line, tbl.spinnerChars) {
				continue
			}
			return &MatchEvidence{Rule: RuleRunning, Pattern: m.String(), Line: strings.TrimSpace(line.text)}
		}

		if tbl.thinking != nil && tbl.thinking.MatchString(line.text) {
			return &MatchEvidence{Rule: RuleRunning, Pattern: "thinking", Line: strings.TrimSpace(line.text)}
		}

		if startsWithBoxDrawing(line.text) {
			// UI borders reuse decorative glyphs; never read them as spinners.
			continue
		}
		for _, ch := range tbl.spinnerChars {
			if !strings.Contains(line.text, ch) {
				continue
			}
			if spinnerIsAuthoritative(tool, ch, line) {
				return &MatchEvidence{Rule: RuleRunning, Pattern: "spinner:" + ch, Line: strings.TrimSpace(line.text)}
			}
		}
	}
	return nil
}

// hasBusyLineContext reports whether a line that mentions an interrupt hint
// actually looks like an active status line.
func hasBusyLineContext(line snapshotLine, spinnerChars []string) bool {
	if strings.Contains(line.text, "(") ||
		strings.Contains(line.lower, "tokens") ||
		strings.Contains(line.text, "…") {
		return true
	}
	for _, ch := range spinnerChars {
		if strings.Contains(line.text, ch) {
			return true
		}
	}
	return false
}

// spinnerIsAuthoritative applies per-tool spinner trust rules. Claude's
// asterisk frames (✳ ✽ ✶ ✢) also show up in non-active contexts, so they
// need an ellipsis or interrupt hint on the same line; braille frames and
// every other tool's spinner are taken at face value.
func spinnerIsAuthoritative(tool Tool, ch string, line snapshotLine) bool {
	if tool != ToolClaudeCode {
		return true
	}
	if isBrailleSpinner(ch) {
		return true
	}
	return strings.Contains(line.text, "…") || strings.Contains(line.lower, "interrupt")
}

func isBrailleSpinner(ch string) bool {
	r := []rune(ch)
	return len(r) == 1 && r[0] >= '⠀' && r[0] <= '⣿'
}

// startsWithBoxDrawing reports whether a line leads with a box-drawing rune.
func startsWithBoxDrawing(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false
	}
	switch []rune(trimmed)[0] {
	case '│', '├', '└', '─', '┌', '┐', '┘', '┤', '┬', '┴', '┼', '╭', '╰', '╮', '╯':
		return true
	}
	return false
}
