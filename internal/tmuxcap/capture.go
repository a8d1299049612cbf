// Package tmuxcap reads pane content out of tmux for status detection.
//
// Every read shells out to the tmux binary. Captures are deduplicated with
// singleflight and cached briefly so a burst of status checks against the
// same session costs one subprocess, not one per caller.
package tmuxcap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/agent-of-empires/aoe/internal/logging"
	"github.com/agent-of-empires/aoe/internal/status"
)

var log = logging.ForComponent(logging.CompTmux)

// SessionPrefix marks tmux sessions managed by aoe.
const SessionPrefix = "aoe_"

// ErrCaptureTimeout is returned when capture-pane exceeds its timeout.
// Callers should keep the previous status rather than flipping to error.
var ErrCaptureTimeout = errors.New("capture-pane timed out")

const (
	captureTimeout = 3 * time.Second
	cacheTTL       = 500 * time.Millisecond
)

// Capturer captures pane snapshots from tmux sessions.
type Capturer struct {
	// Lines is how many lines of scrollback to capture (default: 50).
	Lines int

	sf singleflight.Group

	cacheMu sync.RWMutex
	cache   map[string]cacheEntry
}

type cacheEntry struct {
	lines []string
	at    time.Time
}

// NewCapturer returns a capturer reading the last n lines of each pane.
func NewCapturer(n int) *Capturer {
	if n <= 0 {
		n = status.MaxSnapshotLines
	}
	return &Capturer{
		Lines: n,
		cache: make(map[string]cacheEntry),
	}
}

// buildCaptureArgs returns the tmux arguments for a pane capture. Split out
// so tests can check the exact invocation without a tmux server.
// -p prints to stdout, -J joins wrapped lines, -S sets the scrollback start.
func buildCaptureArgs(session string, lines int) []string {
	return []string{
		"capture-pane",
		"-p",
		"-J",
		"-S", strconv.Itoa(-lines),
		"-t", session,
	}
}

// CapturePane returns the last Lines lines of the session's active pane,
// oldest first. Concurrent calls for the same session share one subprocess.
func (c *Capturer) CapturePane(ctx context.Context, session string) ([]string, error) {
	c.cacheMu.RLock()
	if e, ok := c.cache[session]; ok && time.Since(e.at) < cacheTTL {
		c.cacheMu.RUnlock()
		return e.lines, nil
	}
	c.cacheMu.RUnlock()

	v, err, _ := c.sf.Do(session, func() (interface{}, error) {
		// Double-check the cache inside singleflight.
		c.cacheMu.RLock()
		if e, ok := c.cache[session]; ok && time.Since(e.at) < cacheTTL {
			c.cacheMu.RUnlock()
			return e.lines, nil
		}
		c.cacheMu.RUnlock()

		cctx, cancel := context.WithTimeout(ctx, captureTimeout)
		defer cancel()

		cmd := exec.CommandContext(cctx, "tmux", buildCaptureArgs(session, c.Lines)...)
		output, err := cmd.Output()
		if err != nil {
			if cctx.Err() == context.DeadlineExceeded {
				log.Warn("capture_timeout", slog.String("session", session))
				return nil, ErrCaptureTimeout
			}
			return nil, fmt.Errorf("capture pane %s: %w", session, err)
		}

		lines := strings.Split(strings.TrimRight(string(output), "\n"), "\n")

		c.cacheMu.Lock()
		c.cache[session] = cacheEntry{lines: lines, at: time.Now()}
		c.cacheMu.Unlock()

		return lines, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

// Invalidate drops the cached snapshot for a session. Call after sending
// keys or any other action that changes pane content.
func (c *Capturer) Invalidate(session string) {
	c.cacheMu.Lock()
	delete(c.cache, session)
	c.cacheMu.Unlock()
}

// ListSessions returns the names of aoe-managed tmux sessions. A missing
// tmux server is not an error: there are simply no sessions.
func ListSessions(ctx context.Context) ([]string, error) {
	cctx, cancel := context.WithTimeout(ctx, captureTimeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, "tmux", "list-sessions", "-F", "#{session_name}")
	output, err := cmd.Output()
	if err != nil {
		// tmux exits 1 with "no server running" when nothing is up.
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, nil
		}
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	var sessions []string
	for _, line := range strings.Split(strings.TrimSpace(string(output)), "\n") {
		if strings.HasPrefix(line, SessionPrefix) {
			sessions = append(sessions, line)
		}
	}
	return sessions, nil
}

// CurrentCommand returns the command running in the session's active pane,
// used to detect which tool the pane is hosting.
func CurrentCommand(ctx context.Context, session string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, captureTimeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, "tmux", "display-message", "-p", "-t", session, "#{pane_current_command}")
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("pane command for %s: %w", session, err)
	}
	return strings.TrimSpace(string(output)), nil
}

// DetectTool maps the session's pane command to a tool. Sessions running a
// plain shell (or anything unrecognized) come back as ToolUnknown.
func DetectTool(ctx context.Context, session string) status.Tool {
	cmdName, err := CurrentCommand(ctx, session)
	if err != nil {
		log.Debug("detect_tool_failed", slog.String("session", session), slog.String("error", err.Error()))
		return status.ToolUnknown
	}
	return status.ParseTool(cmdName)
}
