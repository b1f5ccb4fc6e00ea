package poller

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/skilldex-dev/skilldex/internal/kv"
	"github.com/skilldex-dev/skilldex/internal/sourcehost"
	"go.uber.org/zap"
)

type stubEvents struct {
	events []sourcehost.Event
}

func (s *stubEvents) ListPublicEvents(context.Context, int) ([]sourcehost.Event, error) {
	return s.events, nil
}

type captureQueue struct {
	jobs []CheckSkillJob
}

func (q *captureQueue) Enqueue(_ context.Context, body any) error {
	job := body.(CheckSkillJob)
	q.jobs = append(q.jobs, job)
	return nil
}

func event(id, typ, repo string, age time.Duration) sourcehost.Event {
	ev := sourcehost.Event{ID: id, Type: typ, CreatedAt: time.Now().Add(-age)}
	ev.Repo.Name = repo
	return ev
}

func testKV(t *testing.T) *kv.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	return kv.New(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
}

func TestPoll_enqueuesPushEvents(t *testing.T) {
	store := testKV(t)
	queue := &captureQueue{}
	events := &stubEvents{events: []sourcehost.Event{
		event("3", "PushEvent", "acme/widget", time.Minute),
		event("2", "WatchEvent", "acme/widget", 2*time.Minute),
		event("1", "PushEvent", "other/repo", 3*time.Minute),
	}}

	fired := 0
	p := New(events, store, queue, time.Minute, zap.NewNop())
	p.SetEnqueuedHook(func() { fired++ })

	if err := p.Poll(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(queue.jobs) != 2 {
		t.Fatalf("got %d jobs, want 2 (PushEvents only)", len(queue.jobs))
	}
	// Newest first.
	if queue.jobs[0].Owner != "acme" || queue.jobs[0].Repo != "widget" {
		t.Errorf("job 0: %+v", queue.jobs[0])
	}
	if queue.jobs[0].Type != "check_skill" || queue.jobs[0].EventID != "3" {
		t.Errorf("job 0 envelope: %+v", queue.jobs[0])
	}
	if queue.jobs[1].Owner != "other" {
		t.Errorf("job 1: %+v", queue.jobs[1])
	}
	if fired != 2 {
		t.Errorf("enqueued hook fired %d times", fired)
	}

	// High-water mark is the newest event id.
	v, err := store.Get(context.Background(), "github-events:last-event-id")
	if err != nil || v != "3" {
		t.Errorf("last-event-id: got %q, %v", v, err)
	}
}

func TestPoll_stopsAtLastSeen(t *testing.T) {
	store := testKV(t)
	queue := &captureQueue{}
	events := &stubEvents{events: []sourcehost.Event{
		event("2", "PushEvent", "acme/widget", time.Minute),
		event("1", "PushEvent", "acme/older", 2*time.Minute),
	}}

	p := New(events, store, queue, time.Minute, zap.NewNop())
	ctx := context.Background()

	if err := p.Poll(ctx); err != nil {
		t.Fatal(err)
	}
	if len(queue.jobs) != 2 {
		t.Fatalf("first cycle: got %d jobs", len(queue.jobs))
	}

	// Second cycle with one new event on top: only it is enqueued.
	events.events = append([]sourcehost.Event{
		event("5", "PushEvent", "acme/newest", 0),
	}, events.events...)

	if err := p.Poll(ctx); err != nil {
		t.Fatal(err)
	}
	if len(queue.jobs) != 3 {
		t.Fatalf("second cycle: got %d jobs total, want 3", len(queue.jobs))
	}
	if queue.jobs[2].Repo != "newest" {
		t.Errorf("job 2: %+v", queue.jobs[2])
	}
}

func TestPoll_processedMarkerDedupes(t *testing.T) {
	store := testKV(t)
	queue := &captureQueue{}
	ctx := context.Background()

	// Event 1 was already handled in a cycle that died before advancing the
	// high-water mark.
	if err := store.Set(ctx, "github-events:processed:1", "1", time.Hour); err != nil {
		t.Fatal(err)
	}

	events := &stubEvents{events: []sourcehost.Event{
		event("2", "PushEvent", "acme/widget", time.Minute),
		event("1", "PushEvent", "acme/done", 2*time.Minute),
	}}
	p := New(events, store, queue, time.Minute, zap.NewNop())

	if err := p.Poll(ctx); err != nil {
		t.Fatal(err)
	}
	if len(queue.jobs) != 1 || queue.jobs[0].EventID != "2" {
		t.Errorf("got %+v, want only event 2", queue.jobs)
	}
}

type flakyQueue struct {
	captureQueue
	failOn map[int]bool // 1-based Enqueue call numbers that fail
	calls  int
}

func (q *flakyQueue) Enqueue(ctx context.Context, body any) error {
	q.calls++
	if q.failOn[q.calls] {
		return errTransient
	}
	return q.captureQueue.Enqueue(ctx, body)
}

var errTransient = errors.New("queue unavailable")

func TestPoll_failedCycleKeepsEventsRecoverable(t *testing.T) {
	store := testKV(t)
	queue := &flakyQueue{failOn: map[int]bool{1: true}}
	events := &stubEvents{events: []sourcehost.Event{
		event("2", "PushEvent", "acme/widget", time.Minute),
		event("1", "PushEvent", "other/repo", 2*time.Minute),
	}}
	p := New(events, store, queue, time.Minute, zap.NewNop())
	ctx := context.Background()

	if err := p.Poll(ctx); err == nil {
		t.Fatal("enqueue failure not surfaced")
	}
	if len(queue.jobs) != 0 {
		t.Fatalf("failed cycle enqueued %+v", queue.jobs)
	}
	// The boundary must not advance past events the cycle never handled.
	if _, err := store.Get(ctx, "github-events:last-event-id"); !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("high-water mark advanced by a failed cycle: %v", err)
	}

	// The next cycle sees the same page and recovers both events.
	if err := p.Poll(ctx); err != nil {
		t.Fatal(err)
	}
	if len(queue.jobs) != 2 {
		t.Fatalf("got %d jobs after retry cycle, want 2: %+v", len(queue.jobs), queue.jobs)
	}
	if queue.jobs[0].EventID != "2" || queue.jobs[1].EventID != "1" {
		t.Errorf("jobs: %+v", queue.jobs)
	}
	if v, err := store.Get(ctx, "github-events:last-event-id"); err != nil || v != "2" {
		t.Errorf("last-event-id after recovery: %q, %v", v, err)
	}
}

func TestPoll_partialCycleNotReplayed(t *testing.T) {
	store := testKV(t)
	queue := &flakyQueue{failOn: map[int]bool{1: true, 3: true}}
	events := &stubEvents{events: []sourcehost.Event{
		event("3", "PushEvent", "acme/widget", time.Minute),
		event("2", "PushEvent", "other/repo", 2*time.Minute),
	}}
	p := New(events, store, queue, time.Minute, zap.NewNop())
	ctx := context.Background()

	// Cycle 1 fails on event 3. Cycle 2 enqueues 3 but fails on event 2;
	// 3's processed marker keeps cycle 3 from enqueuing it twice.
	if err := p.Poll(ctx); err == nil {
		t.Fatal("cycle 1 should fail")
	}
	if err := p.Poll(ctx); err == nil {
		t.Fatal("cycle 2 should fail")
	}
	if err := p.Poll(ctx); err != nil {
		t.Fatal(err)
	}

	ids := make(map[string]int)
	for _, j := range queue.jobs {
		ids[j.EventID]++
	}
	if ids["3"] != 1 || ids["2"] != 1 || len(queue.jobs) != 2 {
		t.Errorf("jobs: %+v", queue.jobs)
	}
}

func TestPoll_skipsUnparseableRepo(t *testing.T) {
	store := testKV(t)
	queue := &captureQueue{}
	events := &stubEvents{events: []sourcehost.Event{
		event("1", "PushEvent", "no-slash", time.Minute),
	}}
	p := New(events, store, queue, time.Minute, zap.NewNop())

	if err := p.Poll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(queue.jobs) != 0 {
		t.Errorf("unparseable repo enqueued: %+v", queue.jobs)
	}
}

func TestSplitRepo(t *testing.T) {
	cases := []struct {
		in    string
		owner string
		repo  string
		ok    bool
	}{
		{"acme/widget", "acme", "widget", true},
		{"no-slash", "", "", false},
		{"a/b/c", "", "", false},
		{"/repo", "", "", false},
		{"owner/", "", "", false},
	}
	for _, tc := range cases {
		owner, repo, ok := splitRepo(tc.in)
		if owner != tc.owner || repo != tc.repo || ok != tc.ok {
			t.Errorf("splitRepo(%q) = %q,%q,%v", tc.in, owner, repo, ok)
		}
	}
}

func TestCheckSkillJob_json(t *testing.T) {
	job := CheckSkillJob{Type: "check_skill", Owner: "acme", Repo: "widget", EventID: "7"}
	data, err := json.Marshal(job)
	if err != nil {
		t.Fatal(err)
	}
	var got CheckSkillJob
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got != job {
		t.Errorf("round trip: %+v", got)
	}
}
