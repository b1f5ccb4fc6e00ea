// Package classifier assigns 1–5 categories to a skill from its name,
// description, and document body. A keyword pass over the predefined taxonomy
// is always authoritative; an optional external suggestion provider can add
// predefined matches and propose new ai-suggested categories.
package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/skilldex-dev/skilldex/internal/queue"
	"github.com/skilldex-dev/skilldex/internal/registry/model"
	"github.com/skilldex-dev/skilldex/internal/skills"
	"go.uber.org/zap"
)

const (
	// contentWindow bounds how much of the document body the keyword pass
	// inspects.
	contentWindow = 4 * 1024

	// keywordThreshold is the minimum keyword score for a predefined
	// category to qualify on its own.
	keywordThreshold = 2

	maxCategories   = 5
	maxSuggestedNew = 2
	suggestedScore  = 1 // providers rank below any threshold-passing keyword match
)

// Job is the classification message produced by the indexing worker.
type Job struct {
	SkillID     uuid.UUID `json:"skill_id"`
	Content     string    `json:"content"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
}

// Suggester is an optional external text-model provider. Implementations
// return up to five slugs from the predefined list plus up to two new slugs.
type Suggester interface {
	Suggest(ctx context.Context, name, description, content string) ([]string, error)
}

// CategoryStore is the slice of the category repository the worker needs.
type CategoryStore interface {
	EnsureSuggested(ctx context.Context, slug, name string) error
	ReplaceSkillCategories(ctx context.Context, skillID uuid.UUID, slugs []string) error
}

// Worker consumes classification jobs.
type Worker struct {
	store     CategoryStore
	suggester Suggester // may be nil
	logger    *zap.Logger
}

// New creates a Worker. suggester may be nil when no provider is configured.
func New(store CategoryStore, suggester Suggester, logger *zap.Logger) *Worker {
	return &Worker{store: store, suggester: suggester, logger: logger}
}

// Handle is the queue handler.
func (w *Worker) Handle(ctx context.Context, msg *queue.Message) error {
	var job Job
	if err := json.Unmarshal(msg.Body, &job); err != nil {
		return fmt.Errorf("%w: decode classify job: %v", queue.ErrDrop, err)
	}
	return w.Classify(ctx, &job)
}

type rankedCategory struct {
	slug  string
	score int
}

// Classify scores the job, merges provider suggestions, and atomically
// replaces the skill's category set. The result always has between one and
// five entries.
func (w *Worker) Classify(ctx context.Context, job *Job) error {
	scores := KeywordScores(job.Name, job.Description, job.Content)

	var picked []rankedCategory
	for slug, score := range scores {
		if score >= keywordThreshold {
			picked = append(picked, rankedCategory{slug, score})
		}
	}

	if w.suggester != nil {
		suggested, err := w.suggester.Suggest(ctx, job.Name, job.Description, head(job.Content, contentWindow))
		if err != nil {
			// The keyword pass stands on its own when the provider fails.
			w.logger.Warn("category suggestion failed",
				zap.String("skill_id", job.SkillID.String()),
				zap.Error(err),
			)
		} else {
			picked = w.mergeSuggestions(ctx, picked, suggested)
		}
	}

	sort.Slice(picked, func(i, j int) bool {
		if picked[i].score != picked[j].score {
			return picked[i].score > picked[j].score
		}
		return picked[i].slug < picked[j].slug
	})
	if len(picked) > maxCategories {
		picked = picked[:maxCategories]
	}

	slugs := make([]string, 0, len(picked))
	for _, p := range picked {
		slugs = append(slugs, p.slug)
	}
	if len(slugs) == 0 {
		slugs = []string{model.CategorySlugOther}
	}

	if err := w.store.ReplaceSkillCategories(ctx, job.SkillID, slugs); err != nil {
		return fmt.Errorf("replace categories: %w", err)
	}
	w.logger.Debug("skill classified",
		zap.String("skill_id", job.SkillID.String()),
		zap.Strings("categories", slugs),
	)
	return nil
}

// mergeSuggestions folds provider output into the ranked set: predefined
// slugs join directly, unknown slugs become ai-suggested rows (at most two).
func (w *Worker) mergeSuggestions(ctx context.Context, picked []rankedCategory, suggested []string) []rankedCategory {
	has := func(slug string) bool {
		for _, p := range picked {
			if p.slug == slug {
				return true
			}
		}
		return false
	}

	newCount := 0
	for _, raw := range suggested {
		slug := skills.Slugify(raw)
		if slug == "" || has(slug) {
			continue
		}
		if !IsPredefined(slug) {
			if newCount >= maxSuggestedNew {
				continue
			}
			if err := w.store.EnsureSuggested(ctx, slug, titleOf(slug)); err != nil {
				w.logger.Warn("ensure suggested category", zap.String("slug", slug), zap.Error(err))
				continue
			}
			newCount++
		}
		picked = append(picked, rankedCategory{slug: slug, score: suggestedScore})
	}
	return picked
}

// KeywordScores counts case-insensitive keyword hits per predefined category
// over the name, description, and the first 4 KB of the body.
func KeywordScores(name, description, content string) map[string]int {
	haystack := strings.ToLower(name + "\n" + description + "\n" + head(content, contentWindow))
	scores := make(map[string]int)
	for _, cat := range Predefined {
		n := 0
		for _, kw := range cat.Keywords {
			n += strings.Count(haystack, kw)
		}
		if n > 0 {
			scores[cat.Slug] = n
		}
	}
	return scores
}

func head(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func titleOf(slug string) string {
	words := strings.Split(slug, "-")
	for i, word := range words {
		if word == "" {
			continue
		}
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}
