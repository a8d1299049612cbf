// Package poller polls tracked tmux sessions and publishes status changes.
package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/agent-of-empires/aoe/internal/logging"
	"github.com/agent-of-empires/aoe/internal/status"
)

var log = logging.ForComponent(logging.CompPoller)

// maxConcurrentCaptures bounds parallel tmux subprocess spawns per tick.
const maxConcurrentCaptures = 8

// Capturer is the pane-snapshot source. Satisfied by *tmuxcap.Capturer.
type Capturer interface {
	CapturePane(ctx context.Context, session string) ([]string, error)
}

// Recorder persists status transitions. Satisfied by *history.Store.
type Recorder interface {
	Record(ctx context.Context, session string, tool status.Tool, from, to status.Status, evidence *status.MatchEvidence) error
}

// Update is one observed status for one session.
type Update struct {
	Session  string                `json:"session"`
	Tool     status.Tool           `json:"tool"`
	Status   status.Status         `json:"status"`
	Evidence *status.MatchEvidence `json:"evidence,omitempty"`
	At       time.Time             `json:"at"`
}

// Poller captures tracked sessions on a fixed cadence, classifies each
// snapshot, and emits an Update whenever a session's status changes.
type Poller struct {
	capturer Capturer
	interval time.Duration
	limiter  *rate.Limiter

	mu         sync.RWMutex
	classifier *status.Classifier
	tracked    map[string]status.Tool
	last       map[string]status.Status
	recorder   Recorder

	updates chan Update
}

// New creates a poller. The classifier can be swapped later with
// SetClassifier (config reload); recorder may be nil.
func New(capturer Capturer, classifier *status.Classifier, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = time.Second
	}
	return &Poller{
		capturer:   capturer,
		interval:   interval,
		limiter:    rate.NewLimiter(rate.Every(interval), 1),
		classifier: classifier,
		tracked:    make(map[string]status.Tool),
		last:       make(map[string]status.Status),
		updates:    make(chan Update, 64),
	}
}

// SetRecorder attaches a transition recorder.
func (p *Poller) SetRecorder(r Recorder) {
	p.mu.Lock()
	p.recorder = r
	p.mu.Unlock()
}

// SetClassifier swaps the classifier. Safe while Run is active; the next
// tick uses the new tables.
func (p *Poller) SetClassifier(c *status.Classifier) {
	p.mu.Lock()
	p.classifier = c
	p.mu.Unlock()
}

// Track adds a session to the polling set.
func (p *Poller) Track(session string, tool status.Tool) {
	p.mu.Lock()
	p.tracked[session] = tool
	p.mu.Unlock()
}

// Untrack removes a session and forgets its last status.
func (p *Poller) Untrack(session string) {
	p.mu.Lock()
	delete(p.tracked, session)
	delete(p.last, session)
	p.mu.Unlock()
}

// Updates returns the channel of status changes. Slow consumers drop
// updates rather than stalling the poll loop.
func (p *Poller) Updates() <-chan Update {
	return p.updates
}

// Run polls until ctx is cancelled. The rate limiter keeps ticks from
// bunching up after a slow capture round.
func (p *Poller) Run(ctx context.Context) error {
	for {
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := p.PollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn("poll_failed", slog.String("error", err.Error()))
		}
	}
}

// PollOnce captures and classifies every tracked session concurrently and
// emits updates for sessions whose status changed.
func (p *Poller) PollOnce(ctx context.Context) error {
	p.mu.RLock()
	sessions := make(map[string]status.Tool, len(p.tracked))
	for name, tool := range p.tracked {
		sessions[name] = tool
	}
	cls := p.classifier
	p.mu.RUnlock()

	if len(sessions) == 0 || cls == nil {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentCaptures)

	for name, tool := range sessions {
		g.Go(func() error {
			lines, err := p.capturer.CapturePane(gctx, name)
			if err != nil {
				// Keep the previous status on capture failure.
				log.Debug("capture_failed", slog.String("session", name), slog.String("error", err.Error()))
				return nil
			}
			st, ev := cls.Classify(tool, lines)
			p.observe(gctx, name, tool, st, ev)
			return nil
		})
	}
	return g.Wait()
}

func (p *Poller) observe(ctx context.Context, session string, tool status.Tool, st status.Status, ev *status.MatchEvidence) {
	p.mu.Lock()
	prev, seen := p.last[session]
	if seen && prev == st {
		p.mu.Unlock()
		return
	}
	p.last[session] = st
	recorder := p.recorder
	p.mu.Unlock()

	log.Debug("status_changed",
		slog.String("session", session),
		slog.String("tool", string(tool)),
		slog.String("from", string(prev)),
		slog.String("to", string(st)),
	)

	if recorder != nil {
		if err := recorder.Record(ctx, session, tool, prev, st, ev); err != nil {
			log.Warn("record_transition_failed", slog.String("session", session), slog.String("error", err.Error()))
		}
	}

	select {
	case p.updates <- Update{Session: session, Tool: tool, Status: st, Evidence: ev, At: time.Now()}:
	default:
		log.Debug("update_dropped", slog.String("session", session))
	}
}

// Last returns the most recent status for a session.
func (p *Poller) Last(session string) (status.Status, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	st, ok := p.last[session]
	return st, ok
}
