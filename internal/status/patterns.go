package status

import (
	"fmt"
	"regexp"
	"strings"
)

// RawPatterns holds string-form detection patterns before compilation.
// Patterns prefixed with "re:" are compiled as regex; everything else is
// matched with case-insensitive strings.Contains. The four rule groups map
// directly to the classifier's precedence order.
type RawPatterns struct {
	// PermissionPatterns mark allow/deny gates the user must resolve.
	PermissionPatterns []string
	// QuestionPatterns mark free-form or option-select questions from the agent.
	QuestionPatterns []string
	// BusyPatterns mark active processing (streaming, tool calls, timers).
	BusyPatterns []string
	// ErrorPatterns mark rendered error banners or crash output.
	ErrorPatterns []string
	// SpinnerChars are single-glyph animation frames that indicate activity.
	SpinnerChars []string
	// WhimsicalWords are the rotating "thinking" verbs some tools render
	// next to the spinner. Used to build the thinking combo regex.
	WhimsicalWords []string
}

// DefaultRawPatterns returns the built-in pattern table for a known tool.
// Returns nil for ToolUnknown: without a known UI format there is nothing
// to match against.
//
// The literal marker strings are tool-UI-version-dependent data derived from
// real captures. They belong here (and in config overrides), not in the
// evaluator; when a tool ships a new TUI, this table changes and the
// evaluator does not.
func DefaultRawPatterns(tool Tool) *RawPatterns {
	switch tool {
	case ToolClaudeCode:
		return &RawPatterns{
			PermissionPatterns: []string{
				// Most reliable permission dialog marker.
				"No, and tell Claude what to do differently",
				"Do you want to proceed",
				"Do you want to make this edit",
				"Yes, allow once",
				"Yes, allow always",
				"Allow once",
				"Allow always",
				"Do you trust the files in this folder",
				"Allow this MCP server",
				"(y/n)", "[y/n]", "(yes/no)", "[yes/no]",
			},
			QuestionPatterns: []string{
				// AskUserQuestion option-select UI footer.
				"Use arrow keys to navigate",
				"Press Enter to select",
				// Agent message line ending in a question mark.
				`re:^\s*●.+\?\s*$`,
			},
			BusyPatterns: []string{
				// PRIMARY: spinner + ellipsis status line (Claude 2.x).
				// Anchored to line start so the mid-line · in the welcome
				// banner cannot false-positive.
				`re:^[✳✽✶✢·]\s*.+…`,
				"ctrl+c to interrupt",
				// Older Claude Code versions.
				"esc to interrupt",
			},
			ErrorPatterns: []string{
				"API Error",
				"✗ Error",
				"OAuth token has expired",
				"Request timed out",
			},
			SpinnerChars:   claudeSpinnerChars(),
			WhimsicalWords: claudeWhimsicalWords(),
		}
	case ToolOpenCode:
		return &RawPatterns{
			PermissionPatterns: []string{
				"Allow this tool",
				"Always allow",
				"Reject (esc)",
				"allow once",
				"(y/n)", "[y/n]",
			},
			QuestionPatterns: []string{
				"Select an option",
				`re:^\s*┃\s*.+\?\s*$`,
			},
			BusyPatterns: []string{
				// Help bar swaps enter-to-send for esc while processing.
				"esc interrupt",
				"esc to exit",
				"Thinking...",
				"Generating...",
				"Building tool call...",
				"Waiting for tool response...",
			},
			ErrorPatterns: []string{
				"panic:",
				"stack trace",
				"fatal:",
			},
			// Pulse spinner frames (125ms cycle).
			SpinnerChars: []string{"█", "▓", "▒", "░"},
		}
	case ToolMistralVibe:
		return &RawPatterns{
			PermissionPatterns: []string{
				"Run this command",
				"Allow this action",
				"[y/N]", "(y/n)", "[y/n]",
			},
			QuestionPatterns: []string{
				"Choose an option",
				`re:^\s*◆\s*.+\?\s*$`,
			},
			BusyPatterns: []string{
				"ctrl+c to cancel",
				"Vibing",
				"Working on it",
			},
			ErrorPatterns: []string{
				"Traceback (most recent call last)",
				"MistralAPIError",
			},
			SpinnerChars: brailleSpinnerChars(),
		}
	case ToolCodexCli:
		return &RawPatterns{
			PermissionPatterns: []string{
				"Allow command",
				"Approve this command",
				"Yes (y)",
				"(y/n)", "[y/n]",
			},
			QuestionPatterns: []string{
				"Select one",
				`re:^\s*›\s.+\?\s*$`,
			},
			BusyPatterns: []string{
				"esc to interrupt",
				"ctrl+c to interrupt",
				`re:^\s*•?\s*Working\s*\(`,
			},
			ErrorPatterns: []string{
				"stream error",
				"ERROR:",
				"unexpected status",
			},
			SpinnerChars: brailleSpinnerChars(),
		}
	case ToolGeminiCli:
		return &RawPatterns{
			PermissionPatterns: []string{
				"Yes, allow once",
				"Yes, allow always",
				"Apply this change",
				"(y/n)", "[y/n]",
			},
			QuestionPatterns: []string{
				`re:^\s*✦\s*.+\?\s*$`,
				"Waiting for your answer",
			},
			BusyPatterns: []string{
				"esc to cancel",
			},
			ErrorPatterns: []string{
				"API Error",
				"Quota exceeded",
			},
			SpinnerChars: brailleSpinnerChars(),
		}
	default:
		return nil
	}
}

// brailleSpinnerChars returns the cli-spinners "dots" frames shared by
// several tools.
func brailleSpinnerChars() []string {
	return []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
}

// claudeSpinnerChars returns braille frames plus the asterisk spinner frames
// Claude Code 2.1.25+ uses. Excludes ✻ and · which also appear in done/idle
// states.
func claudeSpinnerChars() []string {
	return append(brailleSpinnerChars(), "✳", "✽", "✶", "✢")
}

// claudeWhimsicalWords returns the rotating "thinking" verbs Claude Code
// renders next to the spinner, e.g. "✢ Percolating… (53s · ↓ 749 tokens)".
func claudeWhimsicalWords() []string {
	return []string{
		"accomplishing", "actioning", "actualizing", "baking", "booping",
		"brewing", "calculating", "cerebrating", "channelling", "churning",
		"clauding", "coalescing", "cogitating", "combobulating", "computing",
		"concocting", "conjuring", "considering", "contemplating", "cooking",
		"crafting", "creating", "crunching", "deciphering", "deliberating",
		"determining", "discombobulating", "divining", "doing", "effecting",
		"elucidating", "enchanting", "envisioning", "finagling", "flibbertigibbeting",
		"forging", "forming", "frolicking", "generating", "germinating",
		"hatching", "herding", "honking", "hustling", "ideating",
		"imagining", "incubating", "inferring", "jiving", "manifesting",
		"marinating", "meandering", "moseying", "mulling", "mustering",
		"musing", "noodling", "percolating", "perusing", "philosophising",
		"pondering", "pontificating", "processing", "puttering", "puzzling",
		"reticulating", "ruminating", "scheming", "schlepping", "shimmying",
		"shucking", "simmering", "smooshing", "spelunking", "spinning",
		"stewing", "sussing", "synthesizing", "thinking", "tinkering",
		"transmuting", "unfurling", "unravelling", "vibing", "wandering",
		"whirring", "wibbling", "wizarding", "working", "wrangling",
		"billowing", "gusting", "metamorphosing", "sublimating", "recombobulating",
	}
}

// matcher is a single compiled rule: either a lowered substring or a regex.
type matcher struct {
	raw   string
	lower string
	re    *regexp.Regexp
}

func (m matcher) matches(line, lowerLine string) bool {
	if m.re != nil {
		return m.re.MatchString(line)
	}
	return strings.Contains(lowerLine, m.lower)
}

// String returns the original pattern text, for evidence reporting.
func (m matcher) String() string { return m.raw }

// resolvedTable holds one tool's compiled, ready-to-evaluate rule groups.
type resolvedTable struct {
	permission []matcher
	question   []matcher
	busy       []matcher
	errors     []matcher

	spinnerChars []string
	// thinking matches spinner + whimsical word + timing parens.
	thinking *regexp.Regexp
}

// compileTable compiles a raw table. Any invalid regex is a hard error:
// pattern tables are validated once at construction so a bad pattern fails
// the process at startup instead of silently misclassifying at runtime.
func compileTable(raw *RawPatterns) (*resolvedTable, error) {
	if raw == nil {
		return nil, fmt.Errorf("nil RawPatterns")
	}

	tbl := &resolvedTable{
		spinnerChars: append([]string(nil), raw.SpinnerChars...),
	}

	groups := []struct {
		name     string
		patterns []string
		out      *[]matcher
	}{
		{"permission", raw.PermissionPatterns, &tbl.permission},
		{"question", raw.QuestionPatterns, &tbl.question},
		{"busy", raw.BusyPatterns, &tbl.busy},
		{"error", raw.ErrorPatterns, &tbl.errors},
	}
	for _, g := range groups {
		for _, p := range g.patterns {
			m, err := compileMatcher(p)
			if err != nil {
				return nil, fmt.Errorf("%s pattern %q: %w", g.name, p, err)
			}
			*g.out = append(*g.out, m)
		}
	}

	if len(raw.WhimsicalWords) > 0 && len(raw.SpinnerChars) > 0 {
		expr := spinnerCharClass(raw.SpinnerChars) +
			`\s*(?i:` + strings.Join(raw.WhimsicalWords, "|") + `)[^(]*\([^)]*\)`
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("thinking pattern: %w", err)
		}
		tbl.thinking = re
	}

	return tbl, nil
}

func compileMatcher(pattern string) (matcher, error) {
	if rest, ok := strings.CutPrefix(pattern, "re:"); ok {
		re, err := regexp.Compile(rest)
		if err != nil {
			return matcher{}, err
		}
		return matcher{raw: pattern, re: re}, nil
	}
	return matcher{raw: pattern, lower: strings.ToLower(pattern)}, nil
}

// spinnerCharClass builds a regex character class from spinner glyphs,
// e.g. ["⠋", "✳"] -> "[⠋✳]".
func spinnerCharClass(chars []string) string {
	var b strings.Builder
	b.WriteByte('[')
	for _, ch := range chars {
		b.WriteString(regexp.QuoteMeta(ch))
	}
	b.WriteByte(']')
	return b.String()
}

// MergeRawPatterns merges defaults with overrides and extras:
//   - a non-nil field in overrides (even empty) replaces the default field;
//   - extras fields append after defaults/overrides;
//   - nil defaults are allowed (overrides/extras only).
//
// Inputs are never mutated.
func MergeRawPatterns(defaults, overrides, extras *RawPatterns) *RawPatterns {
	result := &RawPatterns{}

	if defaults != nil {
		result.PermissionPatterns = copySlice(defaults.PermissionPatterns)
		result.QuestionPatterns = copySlice(defaults.QuestionPatterns)
		result.BusyPatterns = copySlice(defaults.BusyPatterns)
		result.ErrorPatterns = copySlice(defaults.ErrorPatterns)
		result.SpinnerChars = copySlice(defaults.SpinnerChars)
		result.WhimsicalWords = copySlice(defaults.WhimsicalWords)
	}

	if overrides != nil {
		if overrides.PermissionPatterns != nil {
			result.PermissionPatterns = copySlice(overrides.PermissionPatterns)
		}
		if overrides.QuestionPatterns != nil {
			result.QuestionPatterns = copySlice(overrides.QuestionPatterns)
		}
		if overrides.BusyPatterns != nil {
			result.BusyPatterns = copySlice(overrides.BusyPatterns)
		}
		if overrides.ErrorPatterns != nil {
			result.ErrorPatterns = copySlice(overrides.ErrorPatterns)
		}
		if overrides.SpinnerChars != nil {
			result.SpinnerChars = copySlice(overrides.SpinnerChars)
		}
		if overrides.WhimsicalWords != nil {
			result.WhimsicalWords = copySlice(overrides.WhimsicalWords)
		}
	}

	if extras != nil {
		result.PermissionPatterns = append(result.PermissionPatterns, extras.PermissionPatterns...)
		result.QuestionPatterns = append(result.QuestionPatterns, extras.QuestionPatterns...)
		result.BusyPatterns = append(result.BusyPatterns, extras.BusyPatterns...)
		result.ErrorPatterns = append(result.ErrorPatterns, extras.ErrorPatterns...)
		result.SpinnerChars = append(result.SpinnerChars, extras.SpinnerChars...)
		result.WhimsicalWords = append(result.WhimsicalWords, extras.WhimsicalWords...)
	}

	return result
}

func copySlice(s []string) []string {
	if s == nil {
		return nil
	}
	c := make([]string, len(s))
	copy(c, s)
	return c
}
