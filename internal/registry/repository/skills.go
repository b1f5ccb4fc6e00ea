package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/skilldex-dev/skilldex/internal/registry/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("row not found")

// SkillRepository provides typed access to the skills table and its joins.
type SkillRepository struct {
	db *pgxpool.Pool
}

// NewSkillRepository creates a SkillRepository.
func NewSkillRepository(db *pgxpool.Pool) *SkillRepository {
	return &SkillRepository{db: db}
}

const skillColumns = `
	id, slug, name, description, repo_owner, repo_name, skill_path,
	github_url, stars, forks, trending_score, indexed_at, updated_at,
	last_commit_at, readme, file_structure, star_snapshots, visibility,
	source_type, tier, owner_id, org_id, content_hash, last_ingest_error`

func scanSkill(row pgx.Row) (*model.Skill, error) {
	var s model.Skill
	var snapshots []byte
	err := row.Scan(
		&s.ID, &s.Slug, &s.Name, &s.Description, &s.RepoOwner, &s.RepoName,
		&s.SkillPath, &s.GithubURL, &s.Stars, &s.Forks, &s.TrendingScore,
		&s.IndexedAt, &s.UpdatedAt, &s.LastCommitAt, &s.Readme,
		&s.FileStructure, &snapshots, &s.Visibility, &s.SourceType, &s.Tier,
		&s.OwnerID, &s.OrgID, &s.ContentHash, &s.LastIngestErr,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(snapshots) > 0 {
		if err := json.Unmarshal(snapshots, &s.StarSnapshots); err != nil {
			return nil, fmt.Errorf("decode star snapshots: %w", err)
		}
	}
	return &s, nil
}

func (r *SkillRepository) collect(rows pgx.Rows) ([]*model.Skill, error) {
	defer rows.Close()
	var out []*model.Skill
	for rows.Next() {
		s, err := scanSkill(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// UpsertSkill inserts or updates a skill by slug, refreshing the author's
// denormalized counts in the same transaction. It reports whether a new row
// was created so callers can keep the author skill-count invariant.
func (r *SkillRepository) UpsertSkill(ctx context.Context, s *model.Skill, author *model.Author) (created bool, err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	snapshots, err := json.Marshal(s.StarSnapshots)
	if err != nil {
		return false, fmt.Errorf("encode star snapshots: %w", err)
	}

	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	now := time.Now().UTC()
	if s.IndexedAt.IsZero() {
		s.IndexedAt = now
	}
	s.UpdatedAt = now

	var inserted bool
	err = tx.QueryRow(ctx, `
		INSERT INTO skills (
			id, slug, name, description, repo_owner, repo_name, skill_path,
			github_url, stars, forks, trending_score, indexed_at, updated_at,
			last_commit_at, readme, file_structure, star_snapshots, visibility,
			source_type, tier, owner_id, org_id, content_hash, last_ingest_error
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24
		)
		ON CONFLICT (slug) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			github_url = EXCLUDED.github_url,
			stars = EXCLUDED.stars,
			forks = EXCLUDED.forks,
			updated_at = EXCLUDED.updated_at,
			last_commit_at = EXCLUDED.last_commit_at,
			readme = EXCLUDED.readme,
			file_structure = EXCLUDED.file_structure,
			visibility = EXCLUDED.visibility,
			tier = EXCLUDED.tier,
			content_hash = EXCLUDED.content_hash,
			last_ingest_error = EXCLUDED.last_ingest_error
		RETURNING (xmax = 0), id`,
		s.ID, s.Slug, s.Name, s.Description, s.RepoOwner, s.RepoName,
		s.SkillPath, s.GithubURL, s.Stars, s.Forks, s.TrendingScore,
		s.IndexedAt, s.UpdatedAt, s.LastCommitAt, s.Readme, s.FileStructure,
		snapshots, s.Visibility, s.SourceType, s.Tier, s.OwnerID, s.OrgID,
		s.ContentHash, s.LastIngestErr,
	).Scan(&inserted, &s.ID)
	if err != nil {
		return false, fmt.Errorf("upsert skill: %w", err)
	}

	if author != nil {
		if err := upsertAuthorTx(ctx, tx, author, inserted, s.Stars); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

// FindBySlug returns a skill and its category slugs.
func (r *SkillRepository) FindBySlug(ctx context.Context, slug string) (*model.Skill, error) {
	s, err := scanSkill(r.db.QueryRow(ctx,
		`SELECT`+skillColumns+` FROM skills WHERE slug = $1`, slug))
	if err != nil {
		return nil, err
	}
	if err := r.attachCategories(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// FindByID returns a skill by primary key.
func (r *SkillRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Skill, error) {
	s, err := scanSkill(r.db.QueryRow(ctx,
		`SELECT`+skillColumns+` FROM skills WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	if err := r.attachCategories(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// FindByOwnerName resolves the newest skill for (repo_owner, name) — the
// lookup behind GET /registry/skill/{owner}/{name}.
func (r *SkillRepository) FindByOwnerName(ctx context.Context, owner, name string) (*model.Skill, error) {
	s, err := scanSkill(r.db.QueryRow(ctx, `
		SELECT`+skillColumns+` FROM skills
		WHERE repo_owner = $1 AND (name = $2 OR repo_name = $2)
		ORDER BY indexed_at DESC
		LIMIT 1`, owner, name))
	if err != nil {
		return nil, err
	}
	if err := r.attachCategories(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// FindByCoordinate returns the hosted skills for (owner, repo), optionally
// narrowed to one skill path.
func (r *SkillRepository) FindByCoordinate(ctx context.Context, owner, repo string) ([]*model.Skill, error) {
	rows, err := r.db.Query(ctx, `
		SELECT`+skillColumns+` FROM skills
		WHERE repo_owner = $1 AND repo_name = $2 AND source_type = 'hosted'`,
		owner, repo)
	if err != nil {
		return nil, err
	}
	return r.collect(rows)
}

// SlugTaken reports whether slug is already claimed by a skill with a
// different hosted identity.
func (r *SkillRepository) SlugTaken(ctx context.Context, slug, owner, repo, path string) (bool, error) {
	var taken bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM skills
			WHERE slug = $1
			  AND NOT (repo_owner = $2 AND repo_name = $3 AND skill_path = $4)
		)`, slug, owner, repo, path).Scan(&taken)
	return taken, err
}

// SearchParams filter a search query. AccessibleIDs carries the private
// skills the accessor may see; OwnerID additionally surfaces the accessor's
// own unlisted skills in listings.
type SearchParams struct {
	Query         string
	Category      string
	Limit         int
	Offset        int
	OwnerID       *uuid.UUID
	AccessibleIDs []uuid.UUID
}

// SearchSkills runs the visibility-filtered catalog search and returns the
// page plus the total match count.
func (r *SkillRepository) SearchSkills(ctx context.Context, p SearchParams) ([]*model.Skill, int, error) {
	if p.Limit <= 0 {
		p.Limit = 20
	} else if p.Limit > 100 {
		p.Limit = 100
	}
	accessible := p.AccessibleIDs
	if accessible == nil {
		accessible = []uuid.UUID{}
	}
	var ownerID any
	if p.OwnerID != nil {
		ownerID = *p.OwnerID
	}

	where := `
		(
			s.visibility = 'public'
			OR (s.visibility = 'unlisted' AND $1::uuid IS NOT NULL AND s.owner_id = $1)
			OR (s.visibility = 'private' AND s.id = ANY($2))
		)
		AND ($3 = '' OR s.name ILIKE '%' || $3 || '%' OR s.description ILIKE '%' || $3 || '%')
		AND ($4 = '' OR EXISTS (
			SELECT 1 FROM skill_categories sc
			WHERE sc.skill_id = s.id AND sc.category_slug = $4
		))`

	var total int
	if err := r.db.QueryRow(ctx,
		`SELECT count(*) FROM skills s WHERE `+where,
		ownerID, accessible, p.Query, p.Category,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count search: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT`+skillColumns+` FROM skills s
		WHERE `+where+`
		ORDER BY s.trending_score DESC, s.stars DESC, s.indexed_at DESC
		LIMIT $5 OFFSET $6`,
		ownerID, accessible, p.Query, p.Category, p.Limit, p.Offset)
	if err != nil {
		return nil, 0, err
	}
	out, err := r.collect(rows)
	if err != nil {
		return nil, 0, err
	}
	if err := r.attachCategoriesBulk(ctx, out); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// ListTrending returns public skills by trending score.
func (r *SkillRepository) ListTrending(ctx context.Context, limit int) ([]*model.Skill, error) {
	return r.listOrdered(ctx, "trending_score DESC, stars DESC", limit)
}

// ListTop returns public skills by stars.
func (r *SkillRepository) ListTop(ctx context.Context, limit int) ([]*model.Skill, error) {
	return r.listOrdered(ctx, "stars DESC, trending_score DESC", limit)
}

// ListRecent returns public skills by index time.
func (r *SkillRepository) ListRecent(ctx context.Context, limit int) ([]*model.Skill, error) {
	return r.listOrdered(ctx, "indexed_at DESC", limit)
}

func (r *SkillRepository) listOrdered(ctx context.Context, order string, limit int) ([]*model.Skill, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `
		SELECT`+skillColumns+` FROM skills
		WHERE visibility = 'public' AND tier <> 'archived'
		ORDER BY `+order+`
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return r.collect(rows)
}

// ScoreRow is the snapshot data Phase B needs, fetched without content.
type ScoreRow struct {
	ID           uuid.UUID
	Stars        int
	Snapshots    []model.StarSnapshot
	IndexedAt    time.Time
	LastCommitAt *time.Time
	Score        float64
	Tier         model.Tier
}

// ListScoreRows streams the scoring inputs for every non-archived skill.
func (r *SkillRepository) ListScoreRows(ctx context.Context) ([]ScoreRow, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, stars, star_snapshots, indexed_at, last_commit_at,
		       trending_score, tier
		FROM skills
		WHERE tier <> 'archived'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ScoreRow
	for rows.Next() {
		var row ScoreRow
		var snapshots []byte
		if err := rows.Scan(&row.ID, &row.Stars, &snapshots, &row.IndexedAt,
			&row.LastCommitAt, &row.Score, &row.Tier); err != nil {
			return nil, err
		}
		if len(snapshots) > 0 {
			if err := json.Unmarshal(snapshots, &row.Snapshots); err != nil {
				return nil, fmt.Errorf("decode snapshots: %w", err)
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// ScoreUpdate is one (id, score) pair for BulkUpdateScores.
type ScoreUpdate struct {
	ID    uuid.UUID
	Score float64
}

// BulkUpdateScores writes trending scores in one batched round trip.
func (r *SkillRepository) BulkUpdateScores(ctx context.Context, updates []ScoreUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, u := range updates {
		batch.Queue(
			`UPDATE skills SET trending_score = $1 WHERE id = $2`,
			u.Score, u.ID)
	}
	br := r.db.SendBatch(ctx, batch)
	defer br.Close()
	for range updates {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("bulk score update: %w", err)
		}
	}
	return nil
}

// UpdateStats writes the Phase A refresh for one skill in a single statement.
func (r *SkillRepository) UpdateStats(ctx context.Context, id uuid.UUID, stars, forks int, snapshots []model.StarSnapshot, lastCommitAt *time.Time, score float64) error {
	encoded, err := json.Marshal(snapshots)
	if err != nil {
		return fmt.Errorf("encode snapshots: %w", err)
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE skills
		SET stars = $1, forks = $2, star_snapshots = $3, last_commit_at = $4,
		    trending_score = $5, updated_at = now()
		WHERE id = $6`,
		stars, forks, encoded, lastCommitAt, score, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetStarSnapshots returns the snapshot series for one skill.
func (r *SkillRepository) GetStarSnapshots(ctx context.Context, id uuid.UUID) ([]model.StarSnapshot, error) {
	var raw []byte
	err := r.db.QueryRow(ctx,
		`SELECT star_snapshots FROM skills WHERE id = $1`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var snapshots []model.StarSnapshot
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &snapshots); err != nil {
			return nil, fmt.Errorf("decode snapshots: %w", err)
		}
	}
	return snapshots, nil
}

// SetTier moves a skill to the given tier.
func (r *SkillRepository) SetTier(ctx context.Context, id uuid.UUID, tier model.Tier) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE skills SET tier = $1, updated_at = now() WHERE id = $2`, tier, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByTier returns minimal lifecycle rows for skills in the given tier.
func (r *SkillRepository) ListByTier(ctx context.Context, tier model.Tier) ([]*model.Skill, error) {
	rows, err := r.db.Query(ctx,
		`SELECT`+skillColumns+` FROM skills WHERE tier = $1`, tier)
	if err != nil {
		return nil, err
	}
	return r.collect(rows)
}

// ArchiveCoordinate marks every hosted skill for (owner, repo) archived —
// used when the upstream repository is gone (404).
func (r *SkillRepository) ArchiveCoordinate(ctx context.Context, owner, repo string) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE skills SET tier = 'archived', updated_at = now()
		WHERE repo_owner = $1 AND repo_name = $2 AND source_type = 'hosted'`,
		owner, repo)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// RecordIngestError stores the last persistent ingest failure on the row.
func (r *SkillRepository) RecordIngestError(ctx context.Context, id uuid.UUID, msg string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE skills SET last_ingest_error = $1, updated_at = now() WHERE id = $2`,
		msg, id)
	return err
}

// Delete removes a skill and its dependents in one transaction:
// categories, favorites, permission grants, actions, then the row itself.
// Object-store cleanup is the caller's responsibility.
func (r *SkillRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, q := range []string{
		`DELETE FROM skill_categories WHERE skill_id = $1`,
		`DELETE FROM favorites WHERE skill_id = $1`,
		`DELETE FROM skill_permissions WHERE skill_id = $1`,
		`DELETE FROM user_actions WHERE skill_id = $1`,
	} {
		if _, err := tx.Exec(ctx, q, id); err != nil {
			return fmt.Errorf("cascade delete: %w", err)
		}
	}
	tag, err := tx.Exec(ctx, `DELETE FROM skills WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete skill: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return tx.Commit(ctx)
}

func (r *SkillRepository) attachCategories(ctx context.Context, s *model.Skill) error {
	rows, err := r.db.Query(ctx,
		`SELECT category_slug FROM skill_categories WHERE skill_id = $1 ORDER BY category_slug`,
		s.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return err
		}
		s.Categories = append(s.Categories, slug)
	}
	return rows.Err()
}

func (r *SkillRepository) attachCategoriesBulk(ctx context.Context, list []*model.Skill) error {
	if len(list) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(list))
	byID := make(map[uuid.UUID]*model.Skill, len(list))
	for i, s := range list {
		ids[i] = s.ID
		byID[s.ID] = s
	}
	rows, err := r.db.Query(ctx,
		`SELECT skill_id, category_slug FROM skill_categories WHERE skill_id = ANY($1)`,
		ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		var slug string
		if err := rows.Scan(&id, &slug); err != nil {
			return err
		}
		if s, ok := byID[id]; ok {
			s.Categories = append(s.Categories, slug)
		}
	}
	return rows.Err()
}
