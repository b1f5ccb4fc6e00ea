package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/skilldex-dev/skilldex/internal/queue"
	"github.com/skilldex-dev/skilldex/internal/registry/model"
	"go.uber.org/zap"
)

type stubStore struct {
	suggested map[string]string // slug -> name
	replaced  map[uuid.UUID][]string
}

func newStubStore() *stubStore {
	return &stubStore{
		suggested: make(map[string]string),
		replaced:  make(map[uuid.UUID][]string),
	}
}

func (s *stubStore) EnsureSuggested(_ context.Context, slug, name string) error {
	s.suggested[slug] = name
	return nil
}

func (s *stubStore) ReplaceSkillCategories(_ context.Context, skillID uuid.UUID, slugs []string) error {
	s.replaced[skillID] = slugs
	return nil
}

type stubSuggester struct {
	out []string
	err error
}

func (s *stubSuggester) Suggest(context.Context, string, string, string) ([]string, error) {
	return s.out, s.err
}

func classify(t *testing.T, w *Worker, job *Job) []string {
	t.Helper()
	if err := w.Classify(context.Background(), job); err != nil {
		t.Fatalf("Classify: %v", err)
	}
	store := w.store.(*stubStore)
	return store.replaced[job.SkillID]
}

func TestClassify_keywordThreshold(t *testing.T) {
	store := newStubStore()
	w := New(store, nil, zap.NewNop())

	// "coding" scores 4 (code, refactor, debug, compiler); "testing" scores
	// only 1 (mock) and stays below the threshold.
	got := classify(t, w, &Job{
		SkillID:     uuid.New(),
		Name:        "refactor-helper",
		Description: "Refactor code and debug it",
		Content:     "Run the compiler, then mock nothing else.\n",
	})

	if len(got) != 1 || got[0] != "coding" {
		t.Errorf("got %v, want [coding]", got)
	}
}

func TestClassify_fallbackOther(t *testing.T) {
	store := newStubStore()
	w := New(store, nil, zap.NewNop())

	got := classify(t, w, &Job{
		SkillID:     uuid.New(),
		Name:        "mystery",
		Description: "does something unusual",
		Content:     "entirely unrelated prose\n",
	})

	if len(got) != 1 || got[0] != model.CategorySlugOther {
		t.Errorf("got %v, want [other]", got)
	}
}

func TestClassify_capAtFive(t *testing.T) {
	store := newStubStore()
	w := New(store, nil, zap.NewNop())

	// Six categories score at least two hits each.
	content := `
		code refactor
		test coverage
		deploy docker
		sql database
		documentation grammar
		vulnerability encryption
	`
	got := classify(t, w, &Job{
		SkillID: uuid.New(),
		Name:    "kitchen-sink",
		Content: content,
	})

	if len(got) != 5 {
		t.Fatalf("got %d categories (%v), want 5", len(got), got)
	}
}

func TestClassify_suggesterMerge(t *testing.T) {
	store := newStubStore()
	sug := &stubSuggester{out: []string{"Security", "Genealogy Tools", "Beekeeping", "One Too Many"}}
	w := New(store, sug, zap.NewNop())

	got := classify(t, w, &Job{
		SkillID:     uuid.New(),
		Name:        "odd-skill",
		Description: "nothing the keywords catch",
	})

	// Predefined suggestion joins directly; at most two unknown slugs become
	// ai-suggested rows.
	want := map[string]bool{"security": true, "genealogy-tools": true, "beekeeping": true}
	if len(got) != 3 {
		t.Fatalf("got %v, want 3 categories", got)
	}
	for _, slug := range got {
		if !want[slug] {
			t.Errorf("unexpected category %q", slug)
		}
	}
	if _, ok := store.suggested["security"]; ok {
		t.Error("predefined slugs must not be re-created as suggested")
	}
	if store.suggested["genealogy-tools"] != "Genealogy Tools" {
		t.Errorf("suggested name: got %q", store.suggested["genealogy-tools"])
	}
	if len(store.suggested) != 2 {
		t.Errorf("at most two new categories per skill, got %v", store.suggested)
	}
}

func TestClassify_suggesterFailureKeepsKeywordPass(t *testing.T) {
	store := newStubStore()
	w := New(store, &stubSuggester{err: errors.New("provider down")}, zap.NewNop())

	got := classify(t, w, &Job{
		SkillID:     uuid.New(),
		Name:        "refactor-helper",
		Description: "Refactor code and debug the compiler",
	})

	if len(got) != 1 || got[0] != "coding" {
		t.Errorf("got %v, want [coding]", got)
	}
}

func TestHandle_dropsMalformedJob(t *testing.T) {
	w := New(newStubStore(), nil, zap.NewNop())
	err := w.Handle(context.Background(), &queue.Message{Body: json.RawMessage(`{bad json`)})
	if !errors.Is(err, queue.ErrDrop) {
		t.Errorf("expected ErrDrop, got %v", err)
	}
}

func TestKeywordScores_contentWindow(t *testing.T) {
	// Keywords past the 4 KB window must not count.
	padding := make([]byte, contentWindow)
	for i := range padding {
		padding[i] = 'x'
	}
	content := string(padding) + " code refactor debug"

	scores := KeywordScores("plain", "plain", content)
	if scores["coding"] != 0 {
		t.Errorf("keywords beyond the window counted: %v", scores)
	}
}

func TestIsPredefined(t *testing.T) {
	if !IsPredefined("coding") || !IsPredefined("other") {
		t.Error("built-in slugs must be predefined")
	}
	if IsPredefined("beekeeping") {
		t.Error("unknown slug must not be predefined")
	}
}
