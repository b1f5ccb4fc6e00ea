package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/skilldex-dev/skilldex/internal/registry/model"
)

// CategoryRepository provides access to categories and the skill↔category join.
type CategoryRepository struct {
	db *pgxpool.Pool
}

// NewCategoryRepository creates a CategoryRepository.
func NewCategoryRepository(db *pgxpool.Pool) *CategoryRepository {
	return &CategoryRepository{db: db}
}

// EnsurePredefined inserts the build-time category set, updating names,
// descriptions, and keyword lists on conflict. Run at startup.
func (r *CategoryRepository) EnsurePredefined(ctx context.Context, cats []model.Category) error {
	for _, c := range cats {
		_, err := r.db.Exec(ctx, `
			INSERT INTO categories (slug, name, description, kind, keywords)
			VALUES ($1, $2, $3, 'predefined', $4)
			ON CONFLICT (slug) DO UPDATE SET
				name = EXCLUDED.name,
				description = EXCLUDED.description,
				keywords = EXCLUDED.keywords`,
			c.Slug, c.Name, c.Description, c.Keywords)
		if err != nil {
			return fmt.Errorf("ensure category %s: %w", c.Slug, err)
		}
	}
	return nil
}

// EnsureSuggested inserts an ai-suggested category if absent. The name is
// derived from the slug; later renames are manual.
func (r *CategoryRepository) EnsureSuggested(ctx context.Context, slug, name string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO categories (slug, name, description, kind, keywords)
		VALUES ($1, $2, '', 'ai-suggested', '{}')
		ON CONFLICT (slug) DO NOTHING`, slug, name)
	return err
}

// ReplaceSkillCategories atomically swaps the category set for a skill.
// A concurrent classifier run for the same skill cannot leave a partial list.
func (r *CategoryRepository) ReplaceSkillCategories(ctx context.Context, skillID uuid.UUID, slugs []string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`DELETE FROM skill_categories WHERE skill_id = $1`, skillID); err != nil {
		return fmt.Errorf("clear categories: %w", err)
	}
	for _, slug := range slugs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO skill_categories (skill_id, category_slug)
			VALUES ($1, $2) ON CONFLICT DO NOTHING`, skillID, slug); err != nil {
			return fmt.Errorf("insert category %s: %w", slug, err)
		}
	}
	return tx.Commit(ctx)
}

// ListWithCounts returns every predefined category plus the ai-suggested ones
// that have at least one skill, each with its public skill count.
func (r *CategoryRepository) ListWithCounts(ctx context.Context) ([]model.Category, error) {
	rows, err := r.db.Query(ctx, `
		SELECT c.slug, c.name, c.description, c.kind, c.keywords,
		       count(sc.skill_id) AS n
		FROM categories c
		LEFT JOIN skill_categories sc ON sc.category_slug = c.slug
		LEFT JOIN skills s ON s.id = sc.skill_id AND s.visibility = 'public'
		GROUP BY c.slug, c.name, c.description, c.kind, c.keywords
		HAVING c.kind = 'predefined' OR count(sc.skill_id) > 0
		ORDER BY c.kind, c.slug`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Category
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.Slug, &c.Name, &c.Description, &c.Kind,
			&c.Keywords, &c.SkillCount); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
