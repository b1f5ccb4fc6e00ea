package ranking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/skilldex-dev/skilldex/internal/kv"
	"github.com/skilldex-dev/skilldex/internal/objstore"
	"github.com/skilldex-dev/skilldex/internal/registry/model"
	"github.com/skilldex-dev/skilldex/internal/registry/repository"
	"github.com/skilldex-dev/skilldex/internal/sourcehost"
	"go.uber.org/zap"
)

const (
	// DefaultInterval between ranking runs.
	DefaultInterval = time.Hour

	keyNeedsUpdatePfx = "needs_update:"
	keyRunLock        = "lock:ranking:run"

	// scoreEpsilon — Phase B only writes rows whose score moved more than
	// this, keeping the hourly run cheap on a quiet catalog.
	scoreEpsilon = 0.01
	batchSize    = 100

	cacheListSize = 50
)

// SkillStore is the slice of the skill repository the engine needs.
type SkillStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.Skill, error)
	UpdateStats(ctx context.Context, id uuid.UUID, stars, forks int, snapshots []model.StarSnapshot, lastCommitAt *time.Time, score float64) error
	ListScoreRows(ctx context.Context) ([]repository.ScoreRow, error)
	BulkUpdateScores(ctx context.Context, updates []repository.ScoreUpdate) error
	ArchiveCoordinate(ctx context.Context, owner, repo string) (int64, error)
	ListTrending(ctx context.Context, limit int) ([]*model.Skill, error)
	ListTop(ctx context.Context, limit int) ([]*model.Skill, error)
	ListRecent(ctx context.Context, limit int) ([]*model.Skill, error)
}

// AuthorStore resolves author profiles for the cache lists.
type AuthorStore interface {
	GetByUsername(ctx context.Context, username string) (*model.Author, error)
	RecomputeTotals(ctx context.Context) error
}

// HostClient fetches live repository stats for marked skills.
type HostClient interface {
	GetRepo(ctx context.Context, owner, repo string) (*sourcehost.Repo, error)
}

// Engine runs the periodic scoring cycle.
type Engine struct {
	skills   SkillStore
	authors  AuthorStore
	host     HostClient
	kv       *kv.Store
	objects  objstore.Store
	interval time.Duration
	logger   *zap.Logger

	now func() time.Time // test seam
}

// New creates an Engine. interval <= 0 selects DefaultInterval.
func New(skills SkillStore, authors AuthorStore, host HostClient, kvStore *kv.Store, objects objstore.Store, interval time.Duration, logger *zap.Logger) *Engine {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Engine{
		skills:   skills,
		authors:  authors,
		host:     host,
		kv:       kvStore,
		objects:  objects,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Run executes ranking cycles until ctx is canceled.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.RunOnce(ctx); err != nil && ctx.Err() == nil {
				e.logger.Warn("ranking run failed", zap.Error(err))
			}
		}
	}
}

// RunOnce performs one full cycle: marked refreshes, bulk rescoring, author
// totals, and cache-list regeneration. A KV run lock prevents concurrent
// cycles; a second caller returns immediately.
func (e *Engine) RunOnce(ctx context.Context) error {
	lock, ok, err := e.kv.AcquireLock(ctx, keyRunLock, e.interval)
	if err != nil {
		return fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		e.logger.Debug("ranking run already in progress")
		return nil
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lock.Release(releaseCtx); err != nil {
			e.logger.Warn("release run lock", zap.Error(err))
		}
	}()

	started := e.now()
	refreshed, err := e.refreshMarked(ctx)
	if err != nil {
		return fmt.Errorf("refresh marked skills: %w", err)
	}
	rescored, err := e.rescoreAll(ctx)
	if err != nil {
		return fmt.Errorf("rescore skills: %w", err)
	}
	if err := e.authors.RecomputeTotals(ctx); err != nil {
		return fmt.Errorf("recompute author totals: %w", err)
	}
	if err := e.RegenerateCacheLists(ctx); err != nil {
		return fmt.Errorf("regenerate cache lists: %w", err)
	}

	e.logger.Info("ranking run complete",
		zap.Int("refreshed", refreshed),
		zap.Int("rescored", rescored),
		zap.Duration("elapsed", e.now().Sub(started)),
	)
	return nil
}

// refreshMarked handles every needs_update marker: live stats from the source
// host, a fresh snapshot when stars moved, recomputed score, one write.
func (e *Engine) refreshMarked(ctx context.Context) (int, error) {
	keys, err := e.kv.ScanPrefix(ctx, keyNeedsUpdatePfx, 0)
	if err != nil {
		return 0, fmt.Errorf("scan markers: %w", err)
	}

	refreshed := 0
	for _, key := range keys {
		id, err := uuid.Parse(strings.TrimPrefix(key, keyNeedsUpdatePfx))
		if err != nil {
			e.logger.Warn("dropping malformed marker", zap.String("key", key))
			_ = e.kv.Delete(ctx, key)
			continue
		}
		if err := e.refreshOne(ctx, id); err != nil {
			// The marker stays; the next run retries.
			e.logger.Warn("refresh skill failed",
				zap.String("skill_id", id.String()), zap.Error(err))
			continue
		}
		if err := e.kv.Delete(ctx, key); err != nil {
			e.logger.Warn("clear marker", zap.String("key", key), zap.Error(err))
		}
		refreshed++
	}
	return refreshed, nil
}

func (e *Engine) refreshOne(ctx context.Context, id uuid.UUID) error {
	skill, err := e.skills.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil // deleted since marking; nothing to refresh
		}
		return err
	}
	if skill.SourceType != model.SourceTypeHosted {
		return nil
	}

	meta, err := e.host.GetRepo(ctx, skill.RepoOwner, skill.RepoName)
	if err != nil {
		if sourcehost.IsNotFound(err) {
			_, aerr := e.skills.ArchiveCoordinate(ctx, skill.RepoOwner, skill.RepoName)
			return aerr
		}
		return err
	}

	now := e.now()
	snapshots := skill.StarSnapshots
	if meta.Stars != skill.Stars || len(snapshots) == 0 {
		snapshots = AppendSnapshot(now, snapshots, meta.Stars)
	}
	pushedAt := meta.PushedAt
	score := Score(now, meta.Stars, snapshots, skill.IndexedAt, &pushedAt)
	return e.skills.UpdateStats(ctx, id, meta.Stars, meta.Forks, snapshots, &pushedAt, score)
}

// rescoreAll recomputes every non-archived score from stored snapshots only.
func (e *Engine) rescoreAll(ctx context.Context) (int, error) {
	rows, err := e.skills.ListScoreRows(ctx)
	if err != nil {
		return 0, err
	}

	now := e.now()
	var pending []repository.ScoreUpdate
	total := 0
	for _, row := range rows {
		score := Score(now, row.Stars, row.Snapshots, row.IndexedAt, row.LastCommitAt)
		if diff := score - row.Score; diff > scoreEpsilon || diff < -scoreEpsilon {
			pending = append(pending, repository.ScoreUpdate{ID: row.ID, Score: score})
		}
		if len(pending) >= batchSize {
			if err := e.skills.BulkUpdateScores(ctx, pending); err != nil {
				return total, err
			}
			total += len(pending)
			pending = pending[:0]
		}
	}
	if len(pending) > 0 {
		if err := e.skills.BulkUpdateScores(ctx, pending); err != nil {
			return total, err
		}
		total += len(pending)
	}
	return total, nil
}

// ── Cache lists ───────────────────────────────────────────────────────────────

// CacheList is the serialized form of one pre-computed discovery list.
type CacheList struct {
	GeneratedAt time.Time        `json:"generated_at"`
	Skills      []CacheListEntry `json:"skills"`
}

// CacheListEntry is one skill row in a cache list, with its author attached.
type CacheListEntry struct {
	ID            uuid.UUID       `json:"id"`
	Slug          string          `json:"slug"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Stars         int             `json:"stars"`
	TrendingScore float64         `json:"trending_score"`
	IndexedAt     time.Time       `json:"indexed_at"`
	Author        CacheListAuthor `json:"author"`
}

// CacheListAuthor is the author summary embedded in cache lists.
type CacheListAuthor struct {
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// RegenerateCacheLists rewrites the three discovery blobs in the object store.
func (e *Engine) RegenerateCacheLists(ctx context.Context) error {
	avatars := make(map[string]string)
	lists := []struct {
		key  string
		load func(context.Context, int) ([]*model.Skill, error)
	}{
		{"cache/trending.json", e.skills.ListTrending},
		{"cache/top.json", e.skills.ListTop},
		{"cache/recent.json", e.skills.ListRecent},
	}
	for _, l := range lists {
		skills, err := l.load(ctx, cacheListSize)
		if err != nil {
			return fmt.Errorf("load %s: %w", l.key, err)
		}
		data, err := e.buildList(ctx, skills, avatars)
		if err != nil {
			return fmt.Errorf("build %s: %w", l.key, err)
		}
		if err := e.objects.Put(ctx, l.key, data); err != nil {
			return fmt.Errorf("write %s: %w", l.key, err)
		}
	}
	return nil
}

func (e *Engine) buildList(ctx context.Context, skills []*model.Skill, avatars map[string]string) ([]byte, error) {
	list := CacheList{GeneratedAt: e.now().UTC(), Skills: make([]CacheListEntry, 0, len(skills))}
	for _, s := range skills {
		avatar, ok := avatars[s.RepoOwner]
		if !ok {
			if author, err := e.authors.GetByUsername(ctx, s.RepoOwner); err == nil {
				avatar = author.AvatarURL
			}
			avatars[s.RepoOwner] = avatar
		}
		list.Skills = append(list.Skills, CacheListEntry{
			ID:            s.ID,
			Slug:          s.Slug,
			Name:          s.Name,
			Description:   s.Description,
			Stars:         s.Stars,
			TrendingScore: s.TrendingScore,
			IndexedAt:     s.IndexedAt,
			Author:        CacheListAuthor{Username: s.RepoOwner, AvatarURL: avatar},
		})
	}
	return json.Marshal(list)
}
