package contentcache

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/skilldex-dev/skilldex/internal/skills"
)

func testCache(t *testing.T, maxItems int) *Cache {
	t.Helper()
	c, err := New(t.TempDir(), maxItems)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func fetchReturning(content string, calls *int) FetchFunc {
	return func(context.Context) (string, string, error) {
		*calls++
		return content, "sha-" + content, nil
	}
}

func TestKey(t *testing.T) {
	if got := Key("acme", "widget", "skills/foo"); got != "acme_widget_skills-foo" {
		t.Errorf("got %q", got)
	}
	if got := Key("acme", "widget", ""); got != "acme_widget_root" {
		t.Errorf("root path: got %q", got)
	}
}

func TestGet_hashMatchSkipsFetch(t *testing.T) {
	c := testCache(t, 10)
	ctx := context.Background()
	calls := 0
	fetch := fetchReturning("doc v1", &calls)

	entry, err := c.Get(ctx, "k", "", fetch)
	if err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Fatalf("first get should fetch, calls=%d", calls)
	}

	// Registry hash matches the cached copy: no refetch.
	_, err = c.Get(ctx, "k", entry.ContentHash, fetch)
	if err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Errorf("hash match should not refetch, calls=%d", calls)
	}

	// Registry reports a different hash: refetch.
	_, err = c.Get(ctx, "k", skills.ContentHash("doc v2"), fetch)
	if err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("hash mismatch should refetch, calls=%d", calls)
	}
}

func TestGet_stalenessWithoutHash(t *testing.T) {
	c := testCache(t, 10)
	ctx := context.Background()
	calls := 0
	fetch := fetchReturning("doc", &calls)

	base := time.Now()
	c.now = func() time.Time { return base }

	if _, err := c.Get(ctx, "k", "", fetch); err != nil {
		t.Fatal(err)
	}

	// Young entry without a registry hash is served from cache.
	c.now = func() time.Time { return base.Add(30 * time.Minute) }
	if _, err := c.Get(ctx, "k", "", fetch); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Errorf("young entry refetched, calls=%d", calls)
	}

	// Past StaleAfter it is refreshed.
	c.now = func() time.Time { return base.Add(2 * time.Hour) }
	if _, err := c.Get(ctx, "k", "", fetch); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("stale entry not refetched, calls=%d", calls)
	}
}

func TestGet_servesStaleOnFetchFailure(t *testing.T) {
	c := testCache(t, 10)
	ctx := context.Background()
	calls := 0

	if _, err := c.Get(ctx, "k", "", fetchReturning("doc", &calls)); err != nil {
		t.Fatal(err)
	}

	failing := func(context.Context) (string, string, error) {
		return "", "", errors.New("upstream down")
	}
	entry, err := c.Get(ctx, "k", skills.ContentHash("newer doc"), failing)
	if err != nil {
		t.Fatalf("stale copy should be served, got %v", err)
	}
	if entry.Content != "doc" {
		t.Errorf("got %q", entry.Content)
	}

	// With nothing cached the failure propagates.
	if _, err := c.Get(ctx, "empty", "", failing); err == nil {
		t.Error("expected error with no cached fallback")
	}
}

func TestPutAndInvalidate(t *testing.T) {
	c := testCache(t, 10)
	ctx := context.Background()

	if err := c.Put("k", "registry doc", "abc123", "registry"); err != nil {
		t.Fatal(err)
	}

	calls := 0
	entry, err := c.Get(ctx, "k", skills.ContentHash("registry doc"), fetchReturning("other", &calls))
	if err != nil {
		t.Fatal(err)
	}
	if calls != 0 || entry.Content != "registry doc" {
		t.Errorf("Put entry not served: calls=%d content=%q", calls, entry.Content)
	}
	if entry.Source != "registry" {
		t.Errorf("Source: got %q", entry.Source)
	}

	if err := c.Invalidate("k"); err != nil {
		t.Fatal(err)
	}
	if c.Len() != 0 {
		t.Errorf("Len after invalidate: %d", c.Len())
	}
	// Invalidating a missing key is fine.
	if err := c.Invalidate("k"); err != nil {
		t.Errorf("second invalidate: %v", err)
	}
}

func TestPrune(t *testing.T) {
	c := testCache(t, 5)
	base := time.Now()

	for i := 0; i < 7; i++ {
		i := i
		c.now = func() time.Time { return base.Add(time.Duration(i) * time.Minute) }
		if err := c.Put(fmt.Sprintf("k%d", i), "doc", "", "host"); err != nil {
			t.Fatal(err)
		}
	}

	if got := c.Len(); got > 5 {
		t.Errorf("cache overflowed: %d entries", got)
	}
	// The newest entry always survives pruning.
	if _, err := c.load("k6"); err != nil {
		t.Errorf("newest entry pruned: %v", err)
	}
}
