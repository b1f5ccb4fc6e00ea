// Package service contains the business logic behind the registry HTTP
// surface: visibility-filtered search and detail, ZIP downloads, favorites,
// categories, and the device-auth session flow.
package service

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"hash/crc32"
	"time"

	"github.com/google/uuid"
	"github.com/skilldex-dev/skilldex/internal/access"
	"github.com/skilldex-dev/skilldex/internal/contentcache"
	"github.com/skilldex-dev/skilldex/internal/objstore"
	"github.com/skilldex-dev/skilldex/internal/registry/model"
	"github.com/skilldex-dev/skilldex/internal/registry/repository"
	"github.com/skilldex-dev/skilldex/internal/skills"
	"github.com/skilldex-dev/skilldex/pkg/source"
	"go.uber.org/zap"
)

// skillRepo is the persistence interface for the skill service.
// *repository.SkillRepository satisfies this interface.
type skillRepo interface {
	FindBySlug(ctx context.Context, slug string) (*model.Skill, error)
	FindByOwnerName(ctx context.Context, owner, name string) (*model.Skill, error)
	SearchSkills(ctx context.Context, p repository.SearchParams) ([]*model.Skill, int, error)
}

// favoriteRepo is the persistence interface for favorites.
type favoriteRepo interface {
	Add(ctx context.Context, userID, skillID uuid.UUID) error
	Remove(ctx context.Context, userID, skillID uuid.UUID) error
}

// categoryRepo lists categories with live counts.
type categoryRepo interface {
	ListWithCounts(ctx context.Context) ([]model.Category, error)
}

// actionRepo records the user-action audit trail.
type actionRepo interface {
	Record(ctx context.Context, userID *uuid.UUID, skillID uuid.UUID, action string) error
}

// Resurrector runs the on-access freshness check for cold/archived skills.
// *lifecycle.Manager satisfies this interface.
type Resurrector interface {
	Reconsider(ctx context.Context, s *model.Skill) (bool, error)
}

// SkillService answers the read API.
type SkillService struct {
	skills     skillRepo
	favorites  favoriteRepo
	categories categoryRepo
	actions    actionRepo
	checker    *access.Checker
	objects    objstore.Store
	cache      *contentcache.Cache // nil disables content caching
	lifecycle  Resurrector         // nil disables on-access resurrection
	logger     *zap.Logger
}

// NewSkillService creates a SkillService.
func NewSkillService(skills skillRepo, favorites favoriteRepo, categories categoryRepo, actions actionRepo, checker *access.Checker, objects objstore.Store, logger *zap.Logger) *SkillService {
	return &SkillService{
		skills:     skills,
		favorites:  favorites,
		categories: categories,
		actions:    actions,
		checker:    checker,
		objects:    objects,
		logger:     logger,
	}
}

// SetContentCache configures the local document cache consulted on detail reads.
func (s *SkillService) SetContentCache(c *contentcache.Cache) { s.cache = c }

// SetLifecycle configures the on-access resurrection check for downloads.
func (s *SkillService) SetLifecycle(r Resurrector) { s.lifecycle = r }

// SearchQuery are the caller-supplied search parameters.
type SearchQuery struct {
	Query          string
	Category       string
	Limit          int
	Offset         int
	IncludePrivate bool
}

// Page size bounds applied to caller-supplied limits.
const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100
)

// Search runs the visibility-filtered catalog search.
func (s *SkillService) Search(ctx context.Context, acc *access.Accessor, q SearchQuery) ([]*model.Skill, int, error) {
	if q.Limit <= 0 {
		q.Limit = defaultSearchLimit
	} else if q.Limit > maxSearchLimit {
		q.Limit = maxSearchLimit
	}
	ownerID, accessibleIDs, err := s.checker.SearchFilter(ctx, acc, q.IncludePrivate)
	if err != nil {
		return nil, 0, fmt.Errorf("resolve search filter: %w", err)
	}
	return s.skills.SearchSkills(ctx, repository.SearchParams{
		Query:         q.Query,
		Category:      q.Category,
		Limit:         q.Limit,
		Offset:        q.Offset,
		OwnerID:       ownerID,
		AccessibleIDs: accessibleIDs,
	})
}

// SkillDetail is a skill row with its canonical document attached.
type SkillDetail struct {
	Skill   *model.Skill
	Content string
}

// GetByCoordinate resolves a skill by (owner, name) and attaches its content.
func (s *SkillService) GetByCoordinate(ctx context.Context, acc *access.Accessor, owner, name string) (*SkillDetail, error) {
	skill, err := s.skills.FindByOwnerName(ctx, owner, name)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	return s.detail(ctx, acc, skill)
}

// GetByIdentifier resolves the legacy single-segment form: a plain slug, or
// "@owner/name" for private skills.
func (s *SkillService) GetByIdentifier(ctx context.Context, acc *access.Accessor, identifier string) (*SkillDetail, error) {
	if owner, name, err := source.ParseRef(identifier); err == nil {
		return s.GetByCoordinate(ctx, acc, owner, name)
	}
	skill, err := s.skills.FindBySlug(ctx, identifier)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	return s.detail(ctx, acc, skill)
}

func (s *SkillService) detail(ctx context.Context, acc *access.Accessor, skill *model.Skill) (*SkillDetail, error) {
	if err := s.authorize(ctx, acc, skill); err != nil {
		return nil, err
	}
	content, err := s.content(ctx, skill)
	if err != nil {
		return nil, err
	}
	return &SkillDetail{Skill: skill, Content: content}, nil
}

// content loads the canonical document, through the content cache when one is
// configured. The registry's stored hash validates the cached copy.
func (s *SkillService) content(ctx context.Context, skill *model.Skill) (string, error) {
	fetch := func(ctx context.Context) (string, string, error) {
		data, err := s.objects.Get(ctx, skill.ObjectKey())
		if err != nil {
			return "", "", err
		}
		return string(data), "", nil
	}

	if s.cache != nil {
		key := contentcache.Key(skill.RepoOwner, skill.RepoName, skill.SkillPath)
		entry, err := s.cache.Get(ctx, key, skill.ContentHash, fetch)
		if err == nil {
			return entry.Content, nil
		}
		s.logger.Warn("content cache miss path failed",
			zap.String("slug", skill.Slug), zap.Error(err))
	}

	content, _, err := fetch(ctx)
	if err != nil {
		if errors.Is(err, objstore.ErrNotFound) {
			return "", fmt.Errorf("%w: skill content missing", ErrNotFound)
		}
		return "", fmt.Errorf("load skill content: %w", err)
	}
	return content, nil
}

// Download builds the ZIP archive for a skill and records the access. The
// entry is stored uncompressed with its CRC-32, so any compliant reader can
// verify integrity without inflating.
func (s *SkillService) Download(ctx context.Context, acc *access.Accessor, slug string) (*model.Skill, []byte, error) {
	skill, err := s.skills.FindBySlug(ctx, slug)
	if err != nil {
		return nil, nil, mapRepoErr(err)
	}
	if err := s.authorize(ctx, acc, skill); err != nil {
		return nil, nil, err
	}
	// Non-public downloads additionally require the read scope.
	if skill.Visibility != model.VisibilityPublic && !acc.HasScope(model.ScopeRead) {
		if acc.Anonymous() {
			return nil, nil, ErrUnauthorized
		}
		return nil, nil, fmt.Errorf("%w: read scope required", ErrForbidden)
	}

	content, err := s.content(ctx, skill)
	if err != nil {
		return nil, nil, err
	}
	if skill.ContentHash != "" && skills.ContentHash(content) != skill.ContentHash {
		// Never serve bytes that contradict the advertised hash.
		return nil, nil, fmt.Errorf("content hash mismatch for %s", skill.Slug)
	}

	archive, err := buildZip("SKILL.md", []byte(content))
	if err != nil {
		return nil, nil, fmt.Errorf("build archive: %w", err)
	}

	var userID *uuid.UUID
	if !acc.Anonymous() {
		userID = acc.UserID
	}
	if err := s.actions.Record(ctx, userID, skill.ID, "download"); err != nil {
		s.logger.Warn("record download", zap.String("slug", slug), zap.Error(err))
	}

	if s.lifecycle != nil && skill.Tier != model.TierHot {
		if _, err := s.lifecycle.Reconsider(ctx, skill); err != nil {
			s.logger.Warn("lifecycle reconsider", zap.String("slug", slug), zap.Error(err))
		}
	}
	return skill, archive, nil
}

// buildZip writes a single stored (uncompressed) entry with an explicit
// CRC-32 and sizes.
func buildZip(name string, data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	hdr := &zip.FileHeader{
		Name:               name,
		Method:             zip.Store,
		Modified:           time.Now().UTC(),
		CRC32:              crc32.ChecksumIEEE(data),
		CompressedSize64:   uint64(len(data)),
		UncompressedSize64: uint64(len(data)),
	}
	f, err := w.CreateHeader(hdr)
	if err != nil {
		return nil, err
	}
	if _, err := f.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Categories lists the category taxonomy with live counts.
func (s *SkillService) Categories(ctx context.Context) ([]model.Category, error) {
	return s.categories.ListWithCounts(ctx)
}

// SetFavorite adds or removes a favorite. Both directions are idempotent.
func (s *SkillService) SetFavorite(ctx context.Context, acc *access.Accessor, slug string, favored bool) error {
	if acc.Anonymous() {
		return ErrUnauthorized
	}
	if !acc.HasScope(model.ScopeRead) {
		return fmt.Errorf("%w: read scope required", ErrForbidden)
	}
	skill, err := s.skills.FindBySlug(ctx, slug)
	if err != nil {
		return mapRepoErr(err)
	}
	if err := s.authorize(ctx, acc, skill); err != nil {
		return err
	}
	if favored {
		return s.favorites.Add(ctx, *acc.UserID, skill.ID)
	}
	return s.favorites.Remove(ctx, *acc.UserID, skill.ID)
}

// authorize translates the visibility check into a service error. Private
// skills answer 404 to strangers so their existence stays hidden.
func (s *SkillService) authorize(ctx context.Context, acc *access.Accessor, skill *model.Skill) error {
	ok, err := s.checker.CanView(ctx, acc, skill)
	if err != nil {
		return fmt.Errorf("check visibility: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func mapRepoErr(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
