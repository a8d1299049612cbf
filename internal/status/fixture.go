package status

import (
	"fmt"
	"os"
	"strings"
)

// Fixture is a captured pane snapshot paired with its expected status. The
// golden corpus under testdata/fixtures is made of these; the capture
// subcommand writes new ones.
//
// File format: a leading block of '#' comment lines, one blank separator,
// then the raw captured pane content verbatim. Only the "Expected status:"
// header line is machine-read; the rest of the header is documentary and may
// change freely without affecting parsing.
type Fixture struct {
	Tool          Tool
	Expected      Status
	CapturedFrom  string // tool --version output
	CaptureDate   string // YYYY-MM-DD
	UpdateCommand string // how to re-capture this fixture
	KeyIndicators string // human note on what marks this state

	// Lines is the captured pane content, one entry per line.
	Lines []string
}

const (
	headerFixture       = "# FIXTURE:"
	headerCapturedFrom  = "# Captured from:"
	headerCaptureDate   = "# Capture date:"
	headerUpdate        = "# To update:"
	headerExpected      = "# Expected status:"
	headerKeyIndicators = "# Key indicators:"
)

// ParseFixture parses fixture file content. The expected-status header line
// is required; everything else in the header is optional.
func ParseFixture(content []byte) (*Fixture, error) {
	lines := strings.Split(strings.ReplaceAll(string(content), "\r\n", "\n"), "\n")

	f := &Fixture{Tool: ToolUnknown, Expected: StatusUnknown}
	sawExpected := false

	i := 0
	for ; i < len(lines); i++ {
		line := lines[i]
		if !strings.HasPrefix(line, "#") {
			break
		}
		switch {
		case strings.HasPrefix(line, headerExpected):
			f.Expected = ParseStatus(strings.TrimSpace(strings.TrimPrefix(line, headerExpected)))
			sawExpected = true
		case strings.HasPrefix(line, headerFixture):
			f.Tool = parseFixtureTitle(strings.TrimSpace(strings.TrimPrefix(line, headerFixture)))
		case strings.HasPrefix(line, headerCapturedFrom):
			f.CapturedFrom = strings.TrimSpace(strings.TrimPrefix(line, headerCapturedFrom))
		case strings.HasPrefix(line, headerCaptureDate):
			f.CaptureDate = strings.TrimSpace(strings.TrimPrefix(line, headerCaptureDate))
		case strings.HasPrefix(line, headerUpdate):
			f.UpdateCommand = strings.TrimSpace(strings.TrimPrefix(line, headerUpdate))
		case strings.HasPrefix(line, headerKeyIndicators):
			f.KeyIndicators = strings.TrimSpace(strings.TrimPrefix(line, headerKeyIndicators))
		}
	}
	if !sawExpected {
		return nil, fmt.Errorf("fixture missing %q header line", headerExpected)
	}

	// One blank separator between header and body.
	if i < len(lines) && strings.TrimSpace(lines[i]) == "" {
		i++
	}
	f.Lines = lines[i:]

	// Files end with a newline; the split artifact after it is not a body line.
	if n := len(f.Lines); n > 0 && f.Lines[n-1] == "" {
		f.Lines = f.Lines[:n-1]
	}

	return f, nil
}

// parseFixtureTitle extracts the tool from "<Tool Display Name> - <State> State".
func parseFixtureTitle(title string) Tool {
	name, _, _ := strings.Cut(title, " - ")
	for _, t := range KnownTools() {
		if strings.EqualFold(t.Display(), strings.TrimSpace(name)) {
			return t
		}
	}
	return ToolUnknown
}

// ReadFixtureFile loads and parses a fixture from disk.
func ReadFixtureFile(path string) (*Fixture, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	f, err := ParseFixture(content)
	if err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return f, nil
}

// Encode renders the fixture in the canonical file format.
func (f *Fixture) Encode() []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s - %s State\n", headerFixture, f.Tool.Display(), f.Expected.Display())
	fmt.Fprintf(&b, "%s %s\n", headerCapturedFrom, f.CapturedFrom)
	fmt.Fprintf(&b, "%s %s\n", headerCaptureDate, f.CaptureDate)
	fmt.Fprintf(&b, "%s %s\n", headerUpdate, f.UpdateCommand)
	b.WriteString("#\n")
	fmt.Fprintf(&b, "%s %s\n", headerExpected, f.Expected.Display())
	fmt.Fprintf(&b, "%s %s\n", headerKeyIndicators, f.KeyIndicators)
	b.WriteString("\n")
	b.WriteString(strings.Join(f.Lines, "\n"))
	if len(f.Lines) > 0 && !strings.HasSuffix(b.String(), "\n") {
		b.WriteString("\n")
	}
	return []byte(b.String())
}

// WriteFile writes the fixture to disk in the canonical format.
func (f *Fixture) WriteFile(path string) error {
	if err := os.WriteFile(path, f.Encode(), 0o644); err != nil {
		return fmt.Errorf("write fixture: %w", err)
	}
	return nil
}
