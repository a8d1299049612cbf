package poller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agent-of-empires/aoe/internal/status"
)

// fakeCapturer serves canned snapshots per session.
type fakeCapturer struct {
	mu    sync.Mutex
	panes map[string][]string
	errs  map[string]error
	calls int
}

func (f *fakeCapturer) CapturePane(_ context.Context, session string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.errs[session]; err != nil {
		return nil, err
	}
	return f.panes[session], nil
}

func (f *fakeCapturer) set(session string, lines ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panes == nil {
		f.panes = make(map[string][]string)
	}
	f.panes[session] = lines
}

// fakeRecorder collects transitions.
type fakeRecorder struct {
	mu          sync.Mutex
	transitions []string
}

func (f *fakeRecorder) Record(_ context.Context, session string, _ status.Tool, from, to status.Status, _ *status.MatchEvidence) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transitions = append(f.transitions, session+":"+string(from)+"->"+string(to))
	return nil
}

func newTestPoller(t *testing.T, cap Capturer) *Poller {
	t.Helper()
	cls, err := status.New()
	require.NoError(t, err)
	return New(cap, cls, 10*time.Millisecond)
}

func TestPollOnce_EmitsUpdateOnChange(t *testing.T) {
	fc := &fakeCapturer{}
	fc.set("aoe_demo", "✳ Crunching… (9s · ↓ 312 tokens)")

	p := newTestPoller(t, fc)
	p.Track("aoe_demo", status.ToolClaudeCode)

	require.NoError(t, p.PollOnce(context.Background()))

	select {
	case u := <-p.Updates():
		assert.Equal(t, "aoe_demo", u.Session)
		assert.Equal(t, status.StatusRunning, u.Status)
		require.NotNil(t, u.Evidence)
	default:
		t.Fatal("no update emitted")
	}
}

func TestPollOnce_NoUpdateWhenStatusUnchanged(t *testing.T) {
	fc := &fakeCapturer{}
	fc.set("aoe_demo", "✳ Crunching… (9s · ↓ 312 tokens)")

	p := newTestPoller(t, fc)
	p.Track("aoe_demo", status.ToolClaudeCode)

	require.NoError(t, p.PollOnce(context.Background()))
	<-p.Updates()

	require.NoError(t, p.PollOnce(context.Background()))
	select {
	case u := <-p.Updates():
		t.Fatalf("unexpected update: %+v", u)
	default:
	}
}

func TestPollOnce_CaptureErrorKeepsPreviousStatus(t *testing.T) {
	fc := &fakeCapturer{}
	fc.set("aoe_demo", "✳ Crunching… (9s · ↓ 312 tokens)")

	p := newTestPoller(t, fc)
	p.Track("aoe_demo", status.ToolClaudeCode)
	require.NoError(t, p.PollOnce(context.Background()))

	fc.mu.Lock()
	fc.errs = map[string]error{"aoe_demo": context.DeadlineExceeded}
	fc.mu.Unlock()

	require.NoError(t, p.PollOnce(context.Background()))

	st, ok := p.Last("aoe_demo")
	require.True(t, ok)
	assert.Equal(t, status.StatusRunning, st)
}

func TestPollOnce_RecordsTransitions(t *testing.T) {
	fc := &fakeCapturer{}
	fc.set("aoe_demo", "")

	p := newTestPoller(t, fc)
	rec := &fakeRecorder{}
	p.SetRecorder(rec)
	p.Track("aoe_demo", status.ToolOpenCode)

	require.NoError(t, p.PollOnce(context.Background()))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.transitions, 1)
	assert.Equal(t, "aoe_demo:->idle", rec.transitions[0])
}

func TestUntrack_ForgetsLastStatus(t *testing.T) {
	fc := &fakeCapturer{}
	fc.set("aoe_demo", "")

	p := newTestPoller(t, fc)
	p.Track("aoe_demo", status.ToolClaudeCode)
	require.NoError(t, p.PollOnce(context.Background()))

	p.Untrack("aoe_demo")
	_, ok := p.Last("aoe_demo")
	assert.False(t, ok)

	// Nothing tracked: PollOnce is a no-op.
	fc.mu.Lock()
	before := fc.calls
	fc.mu.Unlock()
	require.NoError(t, p.PollOnce(context.Background()))
	fc.mu.Lock()
	assert.Equal(t, before, fc.calls)
	fc.mu.Unlock()
}

func TestSetClassifier_SwapsTables(t *testing.T) {
	fc := &fakeCapturer{}
	fc.set("aoe_demo", "FROBNICATING NOW")

	p := newTestPoller(t, fc)
	p.Track("aoe_demo", status.ToolClaudeCode)
	require.NoError(t, p.PollOnce(context.Background()))
	<-p.Updates() // idle

	cls, err := status.NewWithOverrides(nil, map[status.Tool]*status.RawPatterns{
		status.ToolClaudeCode: {BusyPatterns: []string{"FROBNICATING"}},
	})
	require.NoError(t, err)
	p.SetClassifier(cls)

	require.NoError(t, p.PollOnce(context.Background()))
	select {
	case u := <-p.Updates():
		assert.Equal(t, status.StatusRunning, u.Status)
	default:
		t.Fatal("expected update after classifier swap")
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	fc := &fakeCapturer{}
	p := newTestPoller(t, fc)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}
