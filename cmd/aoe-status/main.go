package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/agent-of-empires/aoe/internal/config"
	"github.com/agent-of-empires/aoe/internal/history"
	"github.com/agent-of-empires/aoe/internal/logging"
	"github.com/agent-of-empires/aoe/internal/poller"
	"github.com/agent-of-empires/aoe/internal/status"
	"github.com/agent-of-empires/aoe/internal/tmuxcap"
)

const Version = "0.3.1"

// Table column widths for status output.
const (
	tableColSession = 28
	tableColTool    = 14
)

func init() {
	initColorProfile()
}

func main() {
	args := os.Args[1:]

	if len(args) == 0 {
		printHelp()
		return
	}

	cfg := loadConfig()
	initLogging(cfg)
	defer logging.Shutdown()

	switch args[0] {
	case "version", "--version", "-v":
		fmt.Printf("aoe-status v%s\n", Version)
	case "help", "--help", "-h":
		printHelp()
	case "status":
		handleStatus(cfg, args[1:])
	case "classify":
		handleClassify(cfg, args[1:])
	case "capture":
		handleCapture(cfg, args[1:])
	case "verify":
		handleVerify(cfg, args[1:])
	case "history":
		handleHistory(args[1:])
	case "watch":
		handleWatch(cfg, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
		printHelp()
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Println("aoe-status - status detection for AI agent tmux sessions")
	fmt.Println()
	fmt.Println("Usage: aoe-status <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  status    Show the status of every aoe tmux session")
	fmt.Println("  classify  Classify a pane snapshot from a file or stdin")
	fmt.Println("  capture   Capture a live pane into a test fixture")
	fmt.Println("  verify    Run a fixture corpus through the classifier")
	fmt.Println("  history   Show recorded status transitions")
	fmt.Println("  watch     Poll sessions and stream status changes")
	fmt.Println("  version   Print the version")
	fmt.Println()
	fmt.Println("Run 'aoe-status <command> -h' for command options.")
}

func loadConfig() *config.Config {
	path, err := config.DefaultPath()
	if err != nil {
		fatalf("resolve config path: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		fatalf("%v", err)
	}
	return cfg
}

func initLogging(cfg *config.Config) {
	dir, err := config.Dir()
	if err != nil {
		return
	}
	debug := cfg.Logs.Debug || os.Getenv("AOE_DEBUG") != ""
	logging.Init(logging.Config{
		LogDir: dir,
		Level:  cfg.Logs.Level,
		Format: cfg.Logs.Format,
		Debug:  debug,
	})
}

func buildClassifier(cfg *config.Config) *status.Classifier {
	cls, err := cfg.BuildClassifier()
	if err != nil {
		fatalf("%v", err)
	}
	return cls
}

func requireTmux() {
	if _, err := exec.LookPath("tmux"); err != nil {
		fatalf("tmux not found in PATH")
	}
}

// handleStatus captures and classifies every aoe session once.
func handleStatus(cfg *config.Config, args []string) {
	fset := flag.NewFlagSet("status", flag.ExitOnError)
	jsonOutput := fset.Bool("json", false, "Output as JSON")
	quiet := fset.Bool("q", false, "Only print the count of sessions needing attention")
	fset.Usage = func() {
		fmt.Println("Usage: aoe-status status [options]")
		fmt.Println()
		fmt.Println("Options:")
		fset.PrintDefaults()
	}
	if err := fset.Parse(args); err != nil {
		os.Exit(1)
	}

	requireTmux()
	ctx := context.Background()

	sessions, err := tmuxcap.ListSessions(ctx)
	if err != nil {
		fatalf("%v", err)
	}
	if len(sessions) == 0 {
		if *jsonOutput {
			fmt.Println("[]")
		} else if *quiet {
			fmt.Println("0")
		} else {
			fmt.Println("No aoe sessions running.")
		}
		return
	}

	cls := buildClassifier(cfg)
	capturer := tmuxcap.NewCapturer(cfg.Status.CaptureLines)

	type row struct {
		Session  string                `json:"session"`
		Tool     status.Tool           `json:"tool"`
		Status   status.Status         `json:"status"`
		Evidence *status.MatchEvidence `json:"evidence,omitempty"`
	}

	var rows []row
	attention := 0
	for _, name := range sessions {
		tool := tmuxcap.DetectTool(ctx, name)
		lines, err := capturer.CapturePane(ctx, name)
		if err != nil {
			rows = append(rows, row{Session: name, Tool: tool, Status: status.StatusUnknown})
			continue
		}
		st, ev := cls.Classify(tool, lines)
		if st.NeedsAttention() {
			attention++
		}
		rows = append(rows, row{Session: name, Tool: tool, Status: st, Evidence: ev})
	}

	if *jsonOutput {
		printJSON(rows)
		return
	}
	if *quiet {
		fmt.Println(attention)
		return
	}

	palette := newStatusPalette()
	fmt.Printf("%-*s %-*s %s\n", tableColSession, "SESSION", tableColTool, "TOOL", "STATUS")
	fmt.Println(strings.Repeat("-", tableColSession+tableColTool+24))
	for _, r := range rows {
		fmt.Printf("%-*s %-*s %s\n",
			tableColSession, truncate(r.Session, tableColSession),
			tableColTool, r.Tool.Display(),
			palette.render(r.Status),
		)
	}
	fmt.Printf("\n%d of %d sessions need attention\n", attention, len(rows))
}

// handleClassify classifies a snapshot from a file or stdin. Exit code 0
// always: classification is total, only I/O or flag misuse fails.
func handleClassify(cfg *config.Config, args []string) {
	fset := flag.NewFlagSet("classify", flag.ExitOnError)
	toolName := fset.String("tool", "", "Tool hosting the pane (claude, opencode, vibe, codex, gemini)")
	jsonOutput := fset.Bool("json", false, "Output as JSON")
	fset.Usage = func() {
		fmt.Println("Usage: aoe-status classify --tool <name> [file]")
		fmt.Println()
		fmt.Println("Reads a pane snapshot from the file (or stdin) and prints its status.")
		fmt.Println()
		fmt.Println("Options:")
		fset.PrintDefaults()
	}
	if err := fset.Parse(args); err != nil {
		os.Exit(1)
	}
	if *toolName == "" {
		fset.Usage()
		os.Exit(1)
	}

	var lines []string
	if path := fset.Arg(0); path != "" && path != "-" {
		data, err := os.ReadFile(path)
		if err != nil {
			fatalf("%v", err)
		}
		lines = splitSnapshot(string(data))
	} else {
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			lines = append(lines, scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			fatalf("read stdin: %v", err)
		}
	}

	cls := buildClassifier(cfg)
	tool := status.ParseTool(*toolName)
	st, ev := cls.Classify(tool, lines)

	if *jsonOutput {
		printJSON(map[string]any{
			"tool":     tool,
			"status":   st,
			"evidence": ev,
		})
		return
	}

	palette := newStatusPalette()
	fmt.Println(palette.render(st))
	if ev != nil {
		fmt.Printf("  rule:    %s\n", ev.Rule)
		fmt.Printf("  pattern: %s\n", ev.Pattern)
		fmt.Printf("  line:    %s\n", strings.TrimSpace(ev.Line))
	}
}

// handleCapture snapshots a live pane into a fixture file.
func handleCapture(cfg *config.Config, args []string) {
	fset := flag.NewFlagSet("capture", flag.ExitOnError)
	session := fset.String("session", "", "tmux session to capture")
	toolName := fset.String("tool", "", "Tool hosting the pane (default: auto-detect)")
	state := fset.String("state", "", "Expected status for the fixture header")
	outPath := fset.String("out", "", "Output file (default: <tool_dir>/<state>.txt)")
	notes := fset.String("notes", "", "Key indicators note for the fixture header")
	fset.Usage = func() {
		fmt.Println("Usage: aoe-status capture --session <name> --state <status> [options]")
		fmt.Println()
		fmt.Println("Captures the session's pane into a fixture file for the golden corpus.")
		fmt.Println()
		fmt.Println("Options:")
		fset.PrintDefaults()
	}
	if err := fset.Parse(args); err != nil {
		os.Exit(1)
	}
	if *session == "" || *state == "" {
		fset.Usage()
		os.Exit(1)
	}

	expected := status.ParseStatus(*state)
	if expected == status.StatusUnknown && !strings.EqualFold(*state, "unknown") {
		fatalf("unknown state: %s", *state)
	}

	requireTmux()
	ctx := context.Background()

	tool := status.ParseTool(*toolName)
	if *toolName == "" {
		tool = tmuxcap.DetectTool(ctx, *session)
	}
	if tool == status.ToolUnknown {
		fatalf("could not detect tool for %s; pass --tool", *session)
	}

	capturer := tmuxcap.NewCapturer(cfg.Status.CaptureLines)
	lines, err := capturer.CapturePane(ctx, *session)
	if err != nil {
		fatalf("%v", err)
	}

	fixture := &status.Fixture{
		Tool:          tool,
		Expected:      expected,
		CapturedFrom:  tool.Display(),
		CaptureDate:   time.Now().Format("2006-01-02"),
		UpdateCommand: fmt.Sprintf("aoe-status capture --session %s --tool %s --state %s", *session, tool, expected),
		KeyIndicators: *notes,
		Lines:         lines,
	}

	path := *outPath
	if path == "" {
		path = defaultFixturePath(tool, expected)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		fatalf("%v", err)
	}
	if err := fixture.WriteFile(path); err != nil {
		fatalf("%v", err)
	}
	fmt.Printf("Wrote %s (%d lines)\n", path, len(lines))
}

// handleVerify runs every fixture under a directory through the classifier
// and reports mismatches. Exit code 1 when any fixture fails.
func handleVerify(cfg *config.Config, args []string) {
	fset := flag.NewFlagSet("verify", flag.ExitOnError)
	jsonOutput := fset.Bool("json", false, "Output as JSON")
	fset.Usage = func() {
		fmt.Println("Usage: aoe-status verify [dir]")
		fmt.Println()
		fmt.Println("Walks the directory for .txt fixtures (tool-named subdirectories)")
		fmt.Println("and checks each against its expected status.")
		fmt.Println()
		fmt.Println("Options:")
		fset.PrintDefaults()
	}
	if err := fset.Parse(args); err != nil {
		os.Exit(1)
	}

	root := fset.Arg(0)
	if root == "" {
		root = "."
	}

	cls := buildClassifier(cfg)
	palette := newStatusPalette()

	results, err := verifyFixtures(cls, root)
	if err != nil {
		fatalf("%v", err)
	}
	if len(results) == 0 {
		fatalf("no fixtures found under %s", root)
	}

	failed := 0
	for _, r := range results {
		if !r.Pass {
			failed++
		}
	}

	if *jsonOutput {
		printJSON(results)
	} else {
		for _, r := range results {
			mark := palette.running.Render("ok  ")
			if !r.Pass {
				mark = palette.errored.Render("FAIL")
			}
			fmt.Printf("%s %s", mark, r.Path)
			if !r.Pass {
				fmt.Printf("  (expected %s, got %s)", r.Expected, r.Got)
			}
			fmt.Println()
		}
		fmt.Printf("\n%d fixtures, %d failed\n", len(results), failed)
	}
	if failed > 0 {
		os.Exit(1)
	}
}

// handleHistory prints recorded status transitions.
func handleHistory(args []string) {
	fset := flag.NewFlagSet("history", flag.ExitOnError)
	session := fset.String("session", "", "Only show one session's transitions")
	limit := fset.Int("limit", 20, "Max transitions to show")
	jsonOutput := fset.Bool("json", false, "Output as JSON")
	fset.Usage = func() {
		fmt.Println("Usage: aoe-status history [options]")
		fmt.Println()
		fmt.Println("Options:")
		fset.PrintDefaults()
	}
	if err := fset.Parse(args); err != nil {
		os.Exit(1)
	}

	store := openHistory()
	defer store.Close()

	transitions, err := store.Recent(context.Background(), *session, *limit)
	if err != nil {
		fatalf("%v", err)
	}

	if *jsonOutput {
		printJSON(transitions)
		return
	}
	if len(transitions) == 0 {
		fmt.Println("No transitions recorded.")
		return
	}

	palette := newStatusPalette()
	for _, tr := range transitions {
		from := tr.From.Display()
		if tr.From == "" {
			from = "(new)"
		}
		fmt.Printf("%s  %-*s %s -> %s\n",
			tr.At.Format("2006-01-02 15:04:05"),
			tableColSession, truncate(tr.Session, tableColSession),
			palette.dim.Render(from),
			palette.render(tr.To),
		)
	}
}

// handleWatch runs the poller in the foreground, streaming status changes
// until interrupted. Config edits reload the pattern tables live.
func handleWatch(cfg *config.Config, args []string) {
	fset := flag.NewFlagSet("watch", flag.ExitOnError)
	jsonOutput := fset.Bool("json", false, "Output updates as JSON lines")
	record := fset.Bool("record", true, "Record transitions to the history database")
	fset.Usage = func() {
		fmt.Println("Usage: aoe-status watch [options]")
		fmt.Println()
		fmt.Println("Options:")
		fset.PrintDefaults()
	}
	if err := fset.Parse(args); err != nil {
		os.Exit(1)
	}

	requireTmux()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	capturer := tmuxcap.NewCapturer(cfg.Status.CaptureLines)
	p := poller.New(capturer, buildClassifier(cfg), cfg.Status.PollInterval())

	if *record {
		store := openHistory()
		defer store.Close()
		p.SetRecorder(store)
	}

	// Track current sessions and pick up new ones as they appear.
	trackSessions := func() {
		sessions, err := tmuxcap.ListSessions(ctx)
		if err != nil {
			return
		}
		for _, name := range sessions {
			p.Track(name, tmuxcap.DetectTool(ctx, name))
		}
	}
	trackSessions()
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				trackSessions()
			}
		}
	}()

	// Live-reload pattern tables when the config file changes.
	if path, err := config.DefaultPath(); err == nil {
		watcher, err := config.NewWatcher(path, func() {
			fresh, err := config.Load(path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "config reload failed: %v\n", err)
				return
			}
			cls, err := fresh.BuildClassifier()
			if err != nil {
				fmt.Fprintf(os.Stderr, "config reload failed: %v\n", err)
				return
			}
			p.SetClassifier(cls)
		})
		if err == nil {
			go watcher.Start()
			defer watcher.Stop()
		}
	}

	go func() {
		palette := newStatusPalette()
		for u := range p.Updates() {
			if *jsonOutput {
				data, _ := json.Marshal(u)
				fmt.Println(string(data))
				continue
			}
			fmt.Printf("%s  %-*s %s\n",
				u.At.Format("15:04:05"),
				tableColSession, truncate(u.Session, tableColSession),
				palette.render(u.Status),
			)
		}
	}()

	if err := p.Run(ctx); err != nil && ctx.Err() == nil {
		fatalf("%v", err)
	}
}

// splitSnapshot turns raw captured text into pane lines for the classifier.
func splitSnapshot(data string) []string {
	return strings.Split(strings.TrimRight(data, "\n"), "\n")
}

// defaultFixturePath places a capture in the corpus layout the golden tests
// read: <tool_dir>/<state>.txt.
func defaultFixturePath(tool status.Tool, st status.Status) string {
	return filepath.Join(tool.FixtureDir(), string(st)+".txt")
}

// verifyResult is one fixture checked against the classifier.
type verifyResult struct {
	Path     string        `json:"path"`
	Tool     status.Tool   `json:"tool"`
	Expected status.Status `json:"expected"`
	Got      status.Status `json:"got"`
	Pass     bool          `json:"pass"`
}

// verifyFixtures walks root for .txt fixtures and classifies each body
// against its expected-status header. The tool comes from the fixture title,
// falling back to the directory name. Unparseable files are skipped with a
// note to stderr so a stray txt file cannot fail a whole corpus run.
func verifyFixtures(cls *status.Classifier, root string) ([]verifyResult, error) {
	var results []verifyResult
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || filepath.Ext(path) != ".txt" {
			return err
		}
		fixture, err := status.ReadFixtureFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "skip %s: %v\n", path, err)
			return nil
		}
		tool := fixture.Tool
		if tool == status.ToolUnknown {
			tool = status.ToolFromFixtureDir(filepath.Base(filepath.Dir(path)))
		}
		got, _ := cls.Classify(tool, fixture.Lines)
		results = append(results, verifyResult{
			Path:     path,
			Tool:     tool,
			Expected: fixture.Expected,
			Got:      got,
			Pass:     got == fixture.Expected,
		})
		return nil
	})
	return results, err
}

func openHistory() *history.Store {
	dir, err := config.Dir()
	if err != nil {
		fatalf("%v", err)
	}
	store, err := history.Open(filepath.Join(dir, "history.db"))
	if err != nil {
		fatalf("%v", err)
	}
	return store
}
