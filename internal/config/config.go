// Package config loads user configuration from ~/.aoe/config.toml.
//
// Detection marker strings are tool-UI-version-dependent data, so the config
// lets users patch a tool's pattern table the day its TUI changes, without
// waiting for a release.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/agent-of-empires/aoe/internal/status"
)

// FileName is the config file name inside the aoe directory.
const FileName = "config.toml"

// Config is the root of the TOML config file.
type Config struct {
	// Status configures status detection and polling.
	Status StatusSettings `toml:"status"`

	// Logs configures the debug log.
	Logs LogSettings `toml:"logs"`
}

// StatusSettings configures the classifier and the poller.
type StatusSettings struct {
	// PollIntervalMS is the polling cadence in milliseconds (default: 1000).
	PollIntervalMS int `toml:"poll_interval_ms"`

	// CaptureLines is how many pane lines to capture per poll (default: 50).
	CaptureLines int `toml:"capture_lines"`

	// Tools holds per-tool pattern overrides, keyed by tool name
	// ("claude", "opencode", "vibe", "codex", "gemini").
	Tools map[string]ToolPatterns `toml:"tools"`
}

// ToolPatterns overrides or extends one tool's built-in pattern table.
// Plain fields replace the built-in group when present (even if empty);
// *_extra fields append. Patterns prefixed with "re:" compile as regex.
type ToolPatterns struct {
	PermissionPatterns []string `toml:"permission_patterns"`
	QuestionPatterns   []string `toml:"question_patterns"`
	BusyPatterns       []string `toml:"busy_patterns"`
	ErrorPatterns      []string `toml:"error_patterns"`
	SpinnerChars       []string `toml:"spinner_chars"`

	PermissionPatternsExtra []string `toml:"permission_patterns_extra"`
	QuestionPatternsExtra   []string `toml:"question_patterns_extra"`
	BusyPatternsExtra       []string `toml:"busy_patterns_extra"`
	ErrorPatternsExtra      []string `toml:"error_patterns_extra"`
	SpinnerCharsExtra       []string `toml:"spinner_chars_extra"`
}

// LogSettings configures the debug log file.
type LogSettings struct {
	// Level is "debug", "info", "warn" or "error" (default: "info").
	Level string `toml:"level"`

	// Format is "json" (default) or "text".
	Format string `toml:"format"`

	// Debug enables logging to <aoe dir>/aoe.log.
	Debug bool `toml:"debug"`
}

// Dir returns the aoe data directory (~/.aoe, or $AOE_HOME when set).
func Dir() (string, error) {
	if dir := os.Getenv("AOE_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".aoe"), nil
}

// DefaultPath returns the default config file path.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

// Load reads the config file. A missing file is not an error: defaults apply.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg.applyDefaults()
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Status.PollIntervalMS <= 0 {
		c.Status.PollIntervalMS = 1000
	}
	if c.Status.CaptureLines <= 0 {
		c.Status.CaptureLines = status.MaxSnapshotLines
	}
	if c.Logs.Level == "" {
		c.Logs.Level = "info"
	}
	if c.Logs.Format == "" {
		c.Logs.Format = "json"
	}
}

// PollInterval returns the polling cadence as a duration.
func (s StatusSettings) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalMS) * time.Millisecond
}

// PatternOverrides converts the [status.tools.*] sections into the override
// and extras maps the classifier constructor takes.
func (s StatusSettings) PatternOverrides() (overrides, extras map[status.Tool]*status.RawPatterns) {
	overrides = make(map[status.Tool]*status.RawPatterns)
	extras = make(map[status.Tool]*status.RawPatterns)

	for name, tp := range s.Tools {
		tool := status.ParseTool(name)
		if tool == status.ToolUnknown {
			continue
		}
		if o := tp.overrideSet(); o != nil {
			overrides[tool] = o
		}
		if e := tp.extraSet(); e != nil {
			extras[tool] = e
		}
	}
	return overrides, extras
}

func (tp ToolPatterns) overrideSet() *status.RawPatterns {
	if tp.PermissionPatterns == nil && tp.QuestionPatterns == nil &&
		tp.BusyPatterns == nil && tp.ErrorPatterns == nil && tp.SpinnerChars == nil {
		return nil
	}
	return &status.RawPatterns{
		PermissionPatterns: tp.PermissionPatterns,
		QuestionPatterns:   tp.QuestionPatterns,
		BusyPatterns:       tp.BusyPatterns,
		ErrorPatterns:      tp.ErrorPatterns,
		SpinnerChars:       tp.SpinnerChars,
	}
}

func (tp ToolPatterns) extraSet() *status.RawPatterns {
	if len(tp.PermissionPatternsExtra) == 0 && len(tp.QuestionPatternsExtra) == 0 &&
		len(tp.BusyPatternsExtra) == 0 && len(tp.ErrorPatternsExtra) == 0 &&
		len(tp.SpinnerCharsExtra) == 0 {
		return nil
	}
	return &status.RawPatterns{
		PermissionPatterns: tp.PermissionPatternsExtra,
		QuestionPatterns:   tp.QuestionPatternsExtra,
		BusyPatterns:       tp.BusyPatternsExtra,
		ErrorPatterns:      tp.ErrorPatternsExtra,
		SpinnerChars:       tp.SpinnerCharsExtra,
	}
}

// BuildClassifier constructs a classifier with this config's overrides
// applied. Invalid patterns fail here, at startup, never during polling.
func (c *Config) BuildClassifier() (*status.Classifier, error) {
	overrides, extras := c.Status.PatternOverrides()
	cls, err := status.NewWithOverrides(overrides, extras)
	if err != nil {
		return nil, fmt.Errorf("build classifier: %w", err)
	}
	return cls, nil
}
