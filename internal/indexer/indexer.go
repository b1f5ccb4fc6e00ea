// Package indexer consumes check_skill jobs: it discovers SKILL.md files in
// a repository, parses their frontmatter, writes skill and author rows,
// uploads the canonical content to the object store, and hands the result to
// the classification queue.
package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/skilldex-dev/skilldex/internal/kv"
	"github.com/skilldex-dev/skilldex/internal/objstore"
	"github.com/skilldex-dev/skilldex/internal/poller"
	"github.com/skilldex-dev/skilldex/internal/queue"
	"github.com/skilldex-dev/skilldex/internal/registry/model"
	"github.com/skilldex-dev/skilldex/internal/skills"
	"github.com/skilldex-dev/skilldex/internal/sourcehost"
	"go.uber.org/zap"
)

const (
	repoLockTTL     = 2 * time.Minute
	needsUpdateTTL  = 48 * time.Hour
	keyNeedsUpdate  = "needs_update:"
	keyRepoLockPfx  = "lock:skill:"
	maxFilesPerRepo = 50
)

// ErrLocked signals that another worker is ingesting the same repository;
// the job is redelivered later.
var ErrLocked = errors.New("repository is being indexed by another worker")

// ClassifyJob is the message enqueued for the classification worker.
type ClassifyJob struct {
	SkillID     uuid.UUID `json:"skill_id"`
	Content     string    `json:"content"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
}

// HostClient is the slice of the source-host client the indexer needs.
type HostClient interface {
	GetRepo(ctx context.Context, owner, repo string) (*sourcehost.Repo, error)
	ListContents(ctx context.Context, owner, repo, path string) ([]sourcehost.ContentEntry, error)
	GetContent(ctx context.Context, owner, repo, path string) (*sourcehost.FileContent, error)
}

// SkillStore is the slice of the skill repository the indexer needs.
type SkillStore interface {
	FindByCoordinate(ctx context.Context, owner, repo string) ([]*model.Skill, error)
	SlugTaken(ctx context.Context, slug, owner, repo, path string) (bool, error)
	UpsertSkill(ctx context.Context, s *model.Skill, author *model.Author) (bool, error)
	ArchiveCoordinate(ctx context.Context, owner, repo string) (int64, error)
	RecordIngestError(ctx context.Context, id uuid.UUID, msg string) error
}

// Enqueuer accepts classification jobs.
type Enqueuer interface {
	Enqueue(ctx context.Context, body any) error
}

// Worker ingests one repository per job.
type Worker struct {
	host     HostClient
	store    SkillStore
	objects  objstore.Store
	kv       *kv.Store
	classify Enqueuer
	logger   *zap.Logger

	onIndexed func() // metrics hook; may be nil
}

// New creates a Worker.
func New(host HostClient, store SkillStore, objects objstore.Store, kvStore *kv.Store, classify Enqueuer, logger *zap.Logger) *Worker {
	return &Worker{
		host:     host,
		store:    store,
		objects:  objects,
		kv:       kvStore,
		classify: classify,
		logger:   logger,
	}
}

// SetIndexedHook registers a callback fired once per upserted skill.
func (w *Worker) SetIndexedHook(fn func()) { w.onIndexed = fn }

// Handle is the queue handler: it decodes the job and runs one ingest.
func (w *Worker) Handle(ctx context.Context, msg *queue.Message) error {
	var job poller.CheckSkillJob
	if err := json.Unmarshal(msg.Body, &job); err != nil {
		return fmt.Errorf("%w: decode check_skill job: %v", queue.ErrDrop, err)
	}
	return w.IndexRepo(ctx, job.Owner, job.Repo)
}

// IndexRepo ingests every SKILL.md in (owner, repo). Writes for one
// repository are serialized via a short-TTL KV lock; a held lock causes
// redelivery rather than a concurrent second ingest, which would break the
// author skill-count invariant.
func (w *Worker) IndexRepo(ctx context.Context, owner, repo string) error {
	lock, ok, err := w.kv.AcquireLock(ctx, keyRepoLockPfx+owner+"/"+repo, repoLockTTL)
	if err != nil {
		return fmt.Errorf("acquire repo lock: %w", err)
	}
	if !ok {
		return ErrLocked
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lock.Release(releaseCtx); err != nil {
			w.logger.Warn("release repo lock", zap.Error(err))
		}
	}()

	meta, err := w.host.GetRepo(ctx, owner, repo)
	if err != nil {
		if sourcehost.IsNotFound(err) {
			n, aerr := w.store.ArchiveCoordinate(ctx, owner, repo)
			if aerr != nil {
				return fmt.Errorf("archive vanished repo: %w", aerr)
			}
			if n > 0 {
				w.logger.Info("archived skills for vanished repository",
					zap.String("repo", owner+"/"+repo), zap.Int64("count", n))
			}
			return nil
		}
		return fmt.Errorf("fetch repo metadata: %w", err)
	}

	candidates, err := w.discover(ctx, owner, repo)
	if err != nil {
		return fmt.Errorf("discover skill files: %w", err)
	}
	if len(candidates) == 0 {
		return nil
	}

	existing, err := w.store.FindByCoordinate(ctx, owner, repo)
	if err != nil {
		return fmt.Errorf("load existing skills: %w", err)
	}
	slugByPath := make(map[string]string, len(existing))
	idByPath := make(map[string]uuid.UUID, len(existing))
	for _, s := range existing {
		slugByPath[s.SkillPath] = s.Slug
		idByPath[s.SkillPath] = s.ID
	}

	for _, filePath := range candidates {
		if err := w.ingestFile(ctx, owner, repo, filePath, meta, slugByPath, idByPath); err != nil {
			return err
		}
	}
	return nil
}

// discover walks the curated discovery paths breadth-first, bounded in depth
// and total files, and returns the paths of candidate SKILL.md files.
func (w *Worker) discover(ctx context.Context, owner, repo string) ([]string, error) {
	type dir struct {
		path  string
		depth int
	}
	var frontier []dir
	for _, p := range skills.DiscoveryPaths {
		frontier = append(frontier, dir{path: p})
	}

	seen := make(map[string]bool)
	var found []string
	for len(frontier) > 0 && len(found) < maxFilesPerRepo {
		d := frontier[0]
		frontier = frontier[1:]
		if seen[d.path] {
			continue
		}
		seen[d.path] = true

		entries, err := w.host.ListContents(ctx, owner, repo, d.path)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			switch e.Type {
			case "file":
				if skills.IsSkillFile(e.Name) && !skills.ExcludedPath(e.Path) {
					found = append(found, e.Path)
				}
			case "dir":
				if d.depth+1 <= skills.MaxDiscoveryDepth {
					frontier = append(frontier, dir{path: e.Path, depth: d.depth + 1})
				}
			}
		}
	}
	return found, nil
}

func (w *Worker) ingestFile(ctx context.Context, owner, repo, filePath string, meta *sourcehost.Repo, slugByPath map[string]string, idByPath map[string]uuid.UUID) error {
	skillPath := skills.SkillPathOf(filePath)

	file, err := w.host.GetContent(ctx, owner, repo, filePath)
	if err != nil {
		var apiErr *sourcehost.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
			// Persistent client error on this one file: record and move on.
			if id, ok := idByPath[skillPath]; ok {
				if rerr := w.store.RecordIngestError(ctx, id, apiErr.Error()); rerr != nil {
					w.logger.Warn("record ingest error", zap.Error(rerr))
				}
			}
			w.logger.Warn("skill file unreadable",
				zap.String("repo", owner+"/"+repo),
				zap.String("path", filePath),
				zap.Int("status", apiErr.StatusCode),
			)
			return nil
		}
		return fmt.Errorf("fetch %s: %w", filePath, err)
	}

	fm, _, err := skills.ParseFrontmatter(file.Content)
	if err != nil || !fm.Valid() {
		w.logger.Warn("invalid skill frontmatter",
			zap.String("repo", owner+"/"+repo),
			zap.String("path", filePath),
			zap.Error(err),
		)
		return nil
	}

	slug, err := w.resolveSlug(ctx, owner, repo, skillPath, fm.Name, slugByPath)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	pushedAt := meta.PushedAt
	skill := &model.Skill{
		Slug:          slug,
		Name:          fm.Name,
		Description:   fm.Description,
		RepoOwner:     owner,
		RepoName:      repo,
		SkillPath:     skillPath,
		GithubURL:     meta.HTMLURL,
		Stars:         meta.Stars,
		Forks:         meta.Forks,
		LastCommitAt:  &pushedAt,
		FileStructure: w.fileTree(ctx, owner, repo, skillPath),
		Visibility:    model.VisibilityPublic,
		SourceType:    model.SourceTypeHosted,
		Tier:          model.TierHot,
		ContentHash:   skills.ContentHash(file.Content),
		IndexedAt:     now,
	}

	author := &model.Author{
		Username:    meta.Owner.Login,
		GithubID:    meta.Owner.ID,
		AvatarURL:   meta.Owner.AvatarURL,
		DisplayName: meta.Owner.Login,
		Type:        model.AuthorType(meta.Owner.Type),
	}
	if author.Type != model.AuthorTypeOrg {
		author.Type = model.AuthorTypeUser
	}

	created, err := w.store.UpsertSkill(ctx, skill, author)
	if err != nil {
		return fmt.Errorf("upsert skill %s: %w", slug, err)
	}

	if err := w.objects.Put(ctx, skill.ObjectKey(), []byte(file.Content)); err != nil {
		// The row is committed; the next redelivery repairs the object.
		return fmt.Errorf("store canonical content: %w", err)
	}

	if err := w.kv.Set(ctx, keyNeedsUpdate+skill.ID.String(), "1", needsUpdateTTL); err != nil {
		w.logger.Warn("mark needs_update", zap.Error(err))
	}

	// Classification is fire-and-forget past the enqueue itself.
	job := ClassifyJob{
		SkillID:     skill.ID,
		Content:     file.Content,
		Name:        fm.Name,
		Description: fm.Description,
	}
	if err := w.classify.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("enqueue classification: %w", err)
	}

	if w.onIndexed != nil {
		w.onIndexed()
	}
	w.logger.Info("skill indexed",
		zap.String("slug", slug),
		zap.String("repo", owner+"/"+repo),
		zap.String("path", skillPath),
		zap.Bool("created", created),
	)
	return nil
}

// resolveSlug keeps the stored slug for a known identity and disambiguates
// fresh collisions with a numeric suffix, so slugs stay globally unique and
// stable across re-indexing.
func (w *Worker) resolveSlug(ctx context.Context, owner, repo, skillPath, displayName string, slugByPath map[string]string) (string, error) {
	if slug, ok := slugByPath[skillPath]; ok {
		return slug, nil
	}
	base := skills.BaseSlug(owner, repo, skillPath, displayName)
	var probeErr error
	slug := skills.DisambiguateSlug(base, func(candidate string) bool {
		taken, err := w.store.SlugTaken(ctx, candidate, owner, repo, skillPath)
		if err != nil {
			probeErr = err
			return false
		}
		return taken
	})
	if probeErr != nil {
		return "", fmt.Errorf("probe slug: %w", probeErr)
	}
	slugByPath[skillPath] = slug
	return slug, nil
}

// fileTree serializes the immediate contents of the skill directory. Errors
// degrade to an empty tree; the structure is cosmetic.
func (w *Worker) fileTree(ctx context.Context, owner, repo, skillPath string) string {
	entries, err := w.host.ListContents(ctx, owner, repo, skillPath)
	if err != nil || len(entries) == 0 {
		return ""
	}
	type node struct {
		Name string `json:"name"`
		Type string `json:"type"`
	}
	nodes := make([]node, 0, len(entries))
	for _, e := range entries {
		nodes = append(nodes, node{Name: e.Name, Type: e.Type})
	}
	data, err := json.Marshal(nodes)
	if err != nil {
		return ""
	}
	return string(data)
}
