// Package lifecycle moves skills between freshness tiers. Hot skills ride the
// full refresh cycle, cold ones a reduced cadence, archived ones none — they
// stay resolvable by direct lookup but leave the bulk rescoring set.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/skilldex-dev/skilldex/internal/registry/model"
	"github.com/skilldex-dev/skilldex/internal/sourcehost"
	"go.uber.org/zap"
)

const (
	// DefaultInterval between tier sweeps.
	DefaultInterval = 24 * time.Hour

	// coldAfter demotes hot skills with no commit for a quarter.
	coldAfter = 90 * 24 * time.Hour
	// archiveAfter demotes cold skills dormant for a year.
	archiveAfter = 365 * 24 * time.Hour

	// Resurrection thresholds for the on-access freshness check.
	resurrectMinStars = 20
	resurrectActivity = 90 * 24 * time.Hour
)

// SkillStore is the slice of the skill repository the manager needs.
type SkillStore interface {
	ListByTier(ctx context.Context, tier model.Tier) ([]*model.Skill, error)
	SetTier(ctx context.Context, id uuid.UUID, tier model.Tier) error
}

// HostClient checks whether a repository still exists.
type HostClient interface {
	GetRepo(ctx context.Context, owner, repo string) (*sourcehost.Repo, error)
}

// Manager sweeps tiers on a schedule and resurrects skills on access.
type Manager struct {
	skills   SkillStore
	host     HostClient
	interval time.Duration
	logger   *zap.Logger

	now func() time.Time // test seam
}

// New creates a Manager. interval <= 0 selects DefaultInterval.
func New(skills SkillStore, host HostClient, interval time.Duration, logger *zap.Logger) *Manager {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Manager{
		skills:   skills,
		host:     host,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Run sweeps until ctx is canceled.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Sweep(ctx); err != nil && ctx.Err() == nil {
				m.logger.Warn("lifecycle sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep demotes dormant skills: hot → cold past a quarter without commits,
// cold → archived past a year. Upload-sourced skills have no upstream and
// never demote.
func (m *Manager) Sweep(ctx context.Context) error {
	now := m.now()

	demoted := 0
	hot, err := m.skills.ListByTier(ctx, model.TierHot)
	if err != nil {
		return fmt.Errorf("list hot skills: %w", err)
	}
	for _, s := range hot {
		if s.SourceType != model.SourceTypeHosted || s.LastCommitAt == nil {
			continue
		}
		if now.Sub(*s.LastCommitAt) > coldAfter {
			if err := m.skills.SetTier(ctx, s.ID, model.TierCold); err != nil {
				return fmt.Errorf("demote to cold: %w", err)
			}
			demoted++
		}
	}

	archived := 0
	cold, err := m.skills.ListByTier(ctx, model.TierCold)
	if err != nil {
		return fmt.Errorf("list cold skills: %w", err)
	}
	for _, s := range cold {
		if s.LastCommitAt == nil {
			continue
		}
		if now.Sub(*s.LastCommitAt) > archiveAfter {
			if err := m.skills.SetTier(ctx, s.ID, model.TierArchived); err != nil {
				return fmt.Errorf("demote to archived: %w", err)
			}
			archived++
		}
	}

	if demoted > 0 || archived > 0 {
		m.logger.Info("lifecycle sweep complete",
			zap.Int("cooled", demoted),
			zap.Int("archived", archived),
		)
	}
	return nil
}

// Reconsider runs the on-access freshness check for a cold or archived skill:
// if the host repo answers and shows enough stars or recent activity, the
// skill returns to hot. It reports whether the tier changed. Hot skills and
// host errors leave the tier untouched.
func (m *Manager) Reconsider(ctx context.Context, s *model.Skill) (bool, error) {
	if s.Tier == model.TierHot || s.SourceType != model.SourceTypeHosted {
		return false, nil
	}

	meta, err := m.host.GetRepo(ctx, s.RepoOwner, s.RepoName)
	if err != nil {
		if sourcehost.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("freshness check: %w", err)
	}

	active := meta.Stars >= resurrectMinStars ||
		m.now().Sub(meta.PushedAt) <= resurrectActivity
	if s.Tier == model.TierArchived && !active {
		// The repo is back: archived means "source gone", so a live answer
		// alone resurrects.
		active = true
	}
	if !active {
		return false, nil
	}

	if err := m.skills.SetTier(ctx, s.ID, model.TierHot); err != nil {
		return false, fmt.Errorf("resurrect skill: %w", err)
	}
	s.Tier = model.TierHot
	m.logger.Info("skill resurrected",
		zap.String("slug", s.Slug),
		zap.Int("stars", meta.Stars),
	)
	return true, nil
}
