// Package poller watches the public event firehose and feeds the indexing
// queue. It never confirms that an event actually touched a SKILL file —
// the event API carries no file lists, so that check belongs to the indexer.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/skilldex-dev/skilldex/internal/kv"
	"github.com/skilldex-dev/skilldex/internal/sourcehost"
	"go.uber.org/zap"
)

const (
	// DefaultInterval between poll cycles. Operators must keep this below
	// the upstream event window or events are silently dropped.
	DefaultInterval = 5 * time.Minute

	keyLastEventID    = "github-events:last-event-id"
	keyProcessedPfx   = "github-events:processed:"
	markerTTL         = 7 * 24 * time.Hour
	eventsPerPage     = 100
	indexableEventTyp = "PushEvent"
)

// CheckSkillJob is the message enqueued for the indexing worker.
type CheckSkillJob struct {
	Type      string    `json:"type"` // always "check_skill"
	Owner     string    `json:"owner"`
	Repo      string    `json:"repo"`
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	CreatedAt time.Time `json:"created_at"`
}

// EventSource supplies pages of the public event stream.
type EventSource interface {
	ListPublicEvents(ctx context.Context, perPage int) ([]sourcehost.Event, error)
}

// Enqueuer accepts indexing jobs.
type Enqueuer interface {
	Enqueue(ctx context.Context, body any) error
}

// Poller pulls, dedupes, filters, and enqueues.
type Poller struct {
	events   EventSource
	kv       *kv.Store
	queue    Enqueuer
	interval time.Duration
	logger   *zap.Logger

	onEnqueued func() // metrics hook; may be nil
}

// New creates a Poller. interval <= 0 selects DefaultInterval.
func New(events EventSource, store *kv.Store, queue Enqueuer, interval time.Duration, logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		events:   events,
		kv:       store,
		queue:    queue,
		interval: interval,
		logger:   logger,
	}
}

// SetEnqueuedHook registers a callback fired once per enqueued job.
func (p *Poller) SetEnqueuedHook(fn func()) { p.onEnqueued = fn }

// Run polls until ctx is canceled. Any cycle error is logged and retried on
// the next tick; events stay recoverable as long as they remain inside the
// upstream retention window.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	if err := p.Poll(ctx); err != nil && ctx.Err() == nil {
		p.logger.Warn("poll cycle failed", zap.Error(err))
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.Poll(ctx); err != nil && ctx.Err() == nil {
				p.logger.Warn("poll cycle failed", zap.Error(err))
			}
		}
	}
}

// Poll executes one cycle: fetch a page, sort newest-first, stop at the last
// seen id, enqueue PushEvents with a parseable repo coordinate, and mark each
// handled event.
func (p *Poller) Poll(ctx context.Context) error {
	events, err := p.events.ListPublicEvents(ctx, eventsPerPage)
	if err != nil {
		return fmt.Errorf("fetch events: %w", err)
	}
	if len(events) == 0 {
		return nil
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].CreatedAt.After(events[j].CreatedAt)
	})

	lastSeen, err := p.kv.Get(ctx, keyLastEventID)
	if err != nil && !errors.Is(err, kv.ErrNotFound) {
		return fmt.Errorf("read last event id: %w", err)
	}

	enqueued := 0
	sawBoundary := false
	for _, ev := range events {
		if ev.ID == lastSeen {
			sawBoundary = true
			break
		}
		done, err := p.kv.Exists(ctx, keyProcessedPfx+ev.ID)
		if err != nil {
			return fmt.Errorf("check processed marker: %w", err)
		}
		if done {
			continue
		}

		if ev.Type == indexableEventTyp {
			owner, repo, ok := splitRepo(ev.Repo.Name)
			if ok {
				job := CheckSkillJob{
					Type:      "check_skill",
					Owner:     owner,
					Repo:      repo,
					EventID:   ev.ID,
					EventType: ev.Type,
					CreatedAt: ev.CreatedAt,
				}
				if err := p.queue.Enqueue(ctx, job); err != nil {
					return fmt.Errorf("enqueue indexing job: %w", err)
				}
				enqueued++
				if p.onEnqueued != nil {
					p.onEnqueued()
				}
			}
		}

		if err := p.kv.Set(ctx, keyProcessedPfx+ev.ID, "1", markerTTL); err != nil {
			return fmt.Errorf("mark processed: %w", err)
		}
	}

	// The high-water mark advances only after the whole page is handled. A
	// mid-cycle failure leaves it in place, so the next cycle walks the same
	// span again and the processed markers skip what was already done.
	if err := p.kv.Set(ctx, keyLastEventID, events[0].ID, markerTTL); err != nil {
		return fmt.Errorf("save last event id: %w", err)
	}

	if lastSeen != "" && !sawBoundary {
		// A full page of unseen events: the stream may have advanced past
		// our window and some events were never observed.
		p.logger.Warn("event stream gap possible",
			zap.String("last_seen", lastSeen),
			zap.Int("page_size", len(events)),
		)
	}

	p.logger.Debug("poll cycle complete",
		zap.Int("events", len(events)),
		zap.Int("enqueued", enqueued),
	)
	return nil
}

func splitRepo(full string) (owner, repo string, ok bool) {
	owner, repo, ok = strings.Cut(full, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", false
	}
	return owner, repo, true
}
