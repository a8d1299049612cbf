package status

import (
	"strings"
	"testing"
)

func mustClassifier(t *testing.T) *Classifier {
	t.Helper()
	c, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestClassify_UnknownToolAlwaysUnknown(t *testing.T) {
	c := mustClassifier(t)

	inputs := [][]string{
		nil,
		{},
		{"✳ Churning… (12s · ↓ 300 tokens)"},
		{"│ Do you want to proceed?", "│ ❯ 1. Yes"},
		{"$ "},
	}
	for _, lines := range inputs {
		got, _ := c.Classify(ToolUnknown, lines)
		if got != StatusUnknown {
			t.Errorf("Classify(Unknown, %q) = %v, want Unknown", lines, got)
		}
	}
}

func TestClassify_EmptyInputIsIdleForKnownTools(t *testing.T) {
	c := mustClassifier(t)

	for _, tool := range KnownTools() {
		for _, lines := range [][]string{nil, {}, {""}, {"   ", "\t", ""}} {
			got, ev := c.Classify(tool, lines)
			if got != StatusIdle {
				t.Errorf("Classify(%s, %q) = %v, want Idle", tool, lines, got)
			}
			if ev == nil || ev.Rule != RuleDefault {
				t.Errorf("Classify(%s, empty) evidence = %+v, want default rule", tool, ev)
			}
		}
	}
}

func TestClassify_PermissionOutranksRunning(t *testing.T) {
	c := mustClassifier(t)

	// Spinner line AND a permission box in the same snapshot: the
	// actionable blocking condition must win.
	lines := []string{
		"✳ Churning… (12s · ↓ 300 tokens)",
		"╭──────────────────────────────╮",
		"│ Do you want to proceed?      │",
		"│ ❯ 1. Yes                     │",
		"╰──────────────────────────────╯",
	}
	got, ev := c.Classify(ToolClaudeCode, lines)
	if got != StatusWaitingPermission {
		t.Fatalf("got %v, want WaitingPermission (evidence %+v)", got, ev)
	}
	if ev.Rule != RulePermission {
		t.Errorf("evidence rule = %v, want permission", ev.Rule)
	}
}

func TestClassify_QuestionOutranksRunning(t *testing.T) {
	c := mustClassifier(t)

	lines := []string{
		"✳ Pondering… (3s · ↑ 50 tokens)",
		"● Which backend should the cache target?",
		"  Use arrow keys to navigate · Press Enter to select",
	}
	got, _ := c.Classify(ToolClaudeCode, lines)
	if got != StatusWaitingQuestion {
		t.Fatalf("got %v, want WaitingQuestion", got)
	}
}

func TestClassify_PermissionOutranksQuestion(t *testing.T) {
	c := mustClassifier(t)

	// A permission dialog that also renders the arrow-key footer must
	// classify as permission: rule groups are evaluated over the whole
	// snapshot in precedence order, not per line.
	lines := []string{
		"│ Do you want to proceed?",
		"│ ❯ 1. Yes",
		"  Use arrow keys to navigate · Press Enter to select",
	}
	got, _ := c.Classify(ToolClaudeCode, lines)
	if got != StatusWaitingPermission {
		t.Fatalf("got %v, want WaitingPermission", got)
	}
}

func TestClassify_RunningOutranksError(t *testing.T) {
	c := mustClassifier(t)

	// Transient error banner with the agent already retrying.
	lines := []string{
		"  ✗ Error: API Error (529 overloaded_error)",
		"✳ Retrying… (8s · ↓ 10 tokens)",
	}
	got, _ := c.Classify(ToolClaudeCode, lines)
	if got != StatusRunning {
		t.Fatalf("got %v, want Running", got)
	}
}

func TestClassify_Deterministic(t *testing.T) {
	c := mustClassifier(t)

	lines := []string{
		"● working on it",
		"✳ Herding… (23s · ↓ 1.2k tokens · esc to interrupt)",
	}
	first, firstEv := c.Classify(ToolClaudeCode, lines)
	for i := 0; i < 100; i++ {
		got, ev := c.Classify(ToolClaudeCode, lines)
		if got != first {
			t.Fatalf("iteration %d: got %v, want %v", i, got, first)
		}
		if ev.Pattern != firstEv.Pattern || ev.Line != firstEv.Line {
			t.Fatalf("iteration %d: evidence drifted: %+v vs %+v", i, ev, firstEv)
		}
	}
}

func TestClassify_TotalOnGarbage(t *testing.T) {
	c := mustClassifier(t)

	garbage := [][]string{
		{"\x1b[31m", "\x1b", "\x9b0m"},
		{strings.Repeat("�", 500)},
		{"\xff\xfe\x00 not utf8 at all"},
		{strings.Repeat("x", 100000)},
		{"│", "╰", "─", "✳"},
		make([]string, 500), // many empty lines
	}
	for _, tool := range append(KnownTools(), ToolUnknown) {
		for _, lines := range garbage {
			// Must not panic; any Status is acceptable except an error path.
			got, _ := c.Classify(tool, lines)
			if got == "" {
				t.Errorf("Classify(%s) returned empty status", tool)
			}
		}
	}
}

func TestClassify_CapsSnapshotAtLimit(t *testing.T) {
	c := mustClassifier(t)

	// A busy line pushed beyond the 50-line window must not influence the
	// result; the caller's most recent lines decide.
	lines := []string{"✳ Churning… (12s · ↓ 300 tokens)"}
	for i := 0; i < MaxSnapshotLines+10; i++ {
		lines = append(lines, "plain output line")
	}
	got, _ := c.Classify(ToolClaudeCode, lines)
	if got != StatusIdle {
		t.Fatalf("got %v, want Idle (busy line outside window)", got)
	}
}

func TestClassify_AnsiRemnantsIgnored(t *testing.T) {
	c := mustClassifier(t)

	lines := []string{
		"\x1b[1m\x1b[32m│ Do you want to proceed?\x1b[0m",
		"\x1b[2m│ ❯ 1. Yes\x1b[0m",
	}
	got, _ := c.Classify(ToolClaudeCode, lines)
	if got != StatusWaitingPermission {
		t.Fatalf("got %v, want WaitingPermission", got)
	}
}

func TestClassify_EvidencePopulated(t *testing.T) {
	c := mustClassifier(t)

	lines := []string{"│ Do you want to proceed?"}
	got, ev := c.Classify(ToolClaudeCode, lines)
	if got != StatusWaitingPermission {
		t.Fatalf("got %v, want WaitingPermission", got)
	}
	if ev.Rule != RulePermission {
		t.Errorf("rule = %v", ev.Rule)
	}
	if ev.Pattern == "" {
		t.Error("pattern should name the matched pattern")
	}
	if !strings.Contains(ev.Line, "Do you want to proceed") {
		t.Errorf("line = %q, want matched line", ev.Line)
	}
}

func TestClassify_WelcomeBannerNotBusy(t *testing.T) {
	c := mustClassifier(t)

	// Truncated welcome banner: mid-line · plus a trailing ellipsis used to
	// false-positive the spinner regex before it was anchored to line start.
	lines := []string{
		"Opus 4.6 is here · $50 free extra usage · Try fast mode or use i…",
		"Opus 4.6 · Claude Max",
		`❯ Try "create a util logging.py that..."`,
		"⏵⏵ bypass permissions on (shift+tab to cycle)",
	}
	got, ev := c.Classify(ToolClaudeCode, lines)
	if got == StatusRunning {
		t.Fatalf("welcome banner misread as Running (evidence %+v)", ev)
	}
}

func TestClassify_InterruptHelpTextNotBusy(t *testing.T) {
	c := mustClassifier(t)

	// Static help text mentions the interrupt key without any timer or
	// spinner context; that alone must not read as active.
	lines := []string{
		"keyboard shortcuts",
		"  esc to interrupt the current task",
	}
	got, _ := c.Classify(ToolClaudeCode, lines)
	if got == StatusRunning {
		t.Fatal("bare interrupt help text misread as Running")
	}
}

func TestNewWithOverrides_ToolIsolation(t *testing.T) {
	base := mustClassifier(t)

	// Extending one tool's table must not change another tool's outcomes.
	extended, err := NewWithOverrides(nil, map[Tool]*RawPatterns{
		ToolOpenCode: {BusyPatterns: []string{"CUSTOM-BUSY-MARKER"}},
	})
	if err != nil {
		t.Fatalf("NewWithOverrides: %v", err)
	}

	lines := []string{"some output", "custom-busy-marker shown here"}

	got, _ := extended.Classify(ToolOpenCode, lines)
	if got != StatusRunning {
		t.Errorf("opencode with extra pattern: got %v, want Running", got)
	}

	for _, tool := range []Tool{ToolClaudeCode, ToolGeminiCli, ToolCodexCli, ToolMistralVibe} {
		want, _ := base.Classify(tool, lines)
		gotOther, _ := extended.Classify(tool, lines)
		if gotOther != want {
			t.Errorf("tool %s affected by opencode-only extras: %v vs %v", tool, gotOther, want)
		}
	}
}

func TestNewWithOverrides_ReplacesDefaults(t *testing.T) {
	c, err := NewWithOverrides(map[Tool]*RawPatterns{
		ToolClaudeCode: {PermissionPatterns: []string{}},
	}, nil)
	if err != nil {
		t.Fatalf("NewWithOverrides: %v", err)
	}

	// Permission table emptied by the override: the dialog no longer matches.
	got, _ := c.Classify(ToolClaudeCode, []string{"│ Do you want to proceed?"})
	if got == StatusWaitingPermission {
		t.Fatal("override with empty permission table should disable permission detection")
	}
}

func TestNewWithOverrides_InvalidRegexFailsFast(t *testing.T) {
	_, err := NewWithOverrides(nil, map[Tool]*RawPatterns{
		ToolClaudeCode: {BusyPatterns: []string{"re:[invalid("}},
	})
	if err == nil {
		t.Fatal("expected construction error for invalid regex")
	}
	if !strings.Contains(err.Error(), "claude") {
		t.Errorf("error should name the offending tool: %v", err)
	}
}

func TestMustNew_BuiltinsCompile(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("MustNew panicked on built-in tables: %v", r)
		}
	}()
	if MustNew() == nil {
		t.Fatal("nil classifier")
	}
}

func TestParseTool(t *testing.T) {
	cases := map[string]Tool{
		"claude":        ToolClaudeCode,
		"opencode":      ToolOpenCode,
		"open-code run": ToolOpenCode,
		"vibe":          ToolMistralVibe,
		"mistral-vibe":  ToolMistralVibe,
		"codex exec":    ToolCodexCli,
		"gemini":        ToolGeminiCli,
		"bash":          ToolUnknown,
		"":              ToolUnknown,
		"claude --dangerously-skip-permissions": ToolClaudeCode,
	}
	for in, want := range cases {
		if got := ParseTool(in); got != want {
			t.Errorf("ParseTool(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestParseStatus(t *testing.T) {
	cases := map[string]Status{
		"Running":              StatusRunning,
		"running":              StatusRunning,
		"Waiting (Permission)": StatusWaitingPermission,
		"waiting_permission":   StatusWaitingPermission,
		"Waiting (Question)":   StatusWaitingQuestion,
		"Idle":                 StatusIdle,
		"Error":                StatusError,
		"bogus":                StatusUnknown,
	}
	for in, want := range cases {
		if got := ParseStatus(in); got != want {
			t.Errorf("ParseStatus(%q) = %v, want %v", in, got, want)
		}
	}
}
