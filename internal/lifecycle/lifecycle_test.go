package lifecycle

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/skilldex-dev/skilldex/internal/registry/model"
	"github.com/skilldex-dev/skilldex/internal/sourcehost"
	"go.uber.org/zap"
)

type stubSkills struct {
	byTier map[model.Tier][]*model.Skill
	tiers  map[uuid.UUID]model.Tier
}

func (s *stubSkills) ListByTier(_ context.Context, tier model.Tier) ([]*model.Skill, error) {
	return s.byTier[tier], nil
}

func (s *stubSkills) SetTier(_ context.Context, id uuid.UUID, tier model.Tier) error {
	if s.tiers == nil {
		s.tiers = make(map[uuid.UUID]model.Tier)
	}
	s.tiers[id] = tier
	return nil
}

type stubHost struct {
	repo *sourcehost.Repo
	err  error
}

func (h *stubHost) GetRepo(context.Context, string, string) (*sourcehost.Repo, error) {
	if h.err != nil {
		return nil, h.err
	}
	return h.repo, nil
}

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func hostedSkill(tier model.Tier, commitDaysAgo int) *model.Skill {
	at := testNow.Add(-time.Duration(commitDaysAgo) * 24 * time.Hour)
	return &model.Skill{
		ID:           uuid.New(),
		Slug:         "s-" + uuid.NewString()[:8],
		RepoOwner:    "acme",
		RepoName:     "widget",
		SourceType:   model.SourceTypeHosted,
		Tier:         tier,
		LastCommitAt: &at,
	}
}

func testManager(skills *stubSkills, host HostClient) *Manager {
	m := New(skills, host, time.Hour, zap.NewNop())
	m.now = func() time.Time { return testNow }
	return m
}

func TestSweep(t *testing.T) {
	staleHot := hostedSkill(model.TierHot, 120)
	freshHot := hostedSkill(model.TierHot, 10)
	uploaded := hostedSkill(model.TierHot, 400)
	uploaded.SourceType = model.SourceTypeUpload
	noCommit := hostedSkill(model.TierHot, 0)
	noCommit.LastCommitAt = nil

	staleCold := hostedSkill(model.TierCold, 400)
	freshCold := hostedSkill(model.TierCold, 100)

	skills := &stubSkills{byTier: map[model.Tier][]*model.Skill{
		model.TierHot:  {staleHot, freshHot, uploaded, noCommit},
		model.TierCold: {staleCold, freshCold},
	}}
	m := testManager(skills, &stubHost{})

	if err := m.Sweep(context.Background()); err != nil {
		t.Fatal(err)
	}

	if got := skills.tiers[staleHot.ID]; got != model.TierCold {
		t.Errorf("stale hot skill: tier %q", got)
	}
	if got := skills.tiers[staleCold.ID]; got != model.TierArchived {
		t.Errorf("stale cold skill: tier %q", got)
	}
	for _, s := range []*model.Skill{freshHot, uploaded, noCommit, freshCold} {
		if _, changed := skills.tiers[s.ID]; changed {
			t.Errorf("skill %s demoted unexpectedly to %q", s.Slug, skills.tiers[s.ID])
		}
	}
}

func TestReconsider(t *testing.T) {
	liveRepo := func(stars, pushedDaysAgo int) *sourcehost.Repo {
		r := &sourcehost.Repo{Stars: stars, PushedAt: testNow.Add(-time.Duration(pushedDaysAgo) * 24 * time.Hour)}
		return r
	}

	t.Run("hot skill untouched", func(t *testing.T) {
		skills := &stubSkills{}
		m := testManager(skills, &stubHost{repo: liveRepo(1000, 1)})
		s := hostedSkill(model.TierHot, 1)

		changed, err := m.Reconsider(context.Background(), s)
		if err != nil || changed {
			t.Errorf("changed=%v err=%v", changed, err)
		}
	})

	t.Run("cold with enough stars resurrects", func(t *testing.T) {
		skills := &stubSkills{}
		m := testManager(skills, &stubHost{repo: liveRepo(25, 400)})
		s := hostedSkill(model.TierCold, 400)

		changed, err := m.Reconsider(context.Background(), s)
		if err != nil || !changed {
			t.Fatalf("changed=%v err=%v", changed, err)
		}
		if s.Tier != model.TierHot || skills.tiers[s.ID] != model.TierHot {
			t.Errorf("tier: struct=%q store=%q", s.Tier, skills.tiers[s.ID])
		}
	})

	t.Run("cold with recent push resurrects", func(t *testing.T) {
		skills := &stubSkills{}
		m := testManager(skills, &stubHost{repo: liveRepo(2, 30)})
		s := hostedSkill(model.TierCold, 400)

		changed, err := m.Reconsider(context.Background(), s)
		if err != nil || !changed {
			t.Errorf("changed=%v err=%v", changed, err)
		}
	})

	t.Run("cold and still dormant stays cold", func(t *testing.T) {
		skills := &stubSkills{}
		m := testManager(skills, &stubHost{repo: liveRepo(2, 400)})
		s := hostedSkill(model.TierCold, 400)

		changed, err := m.Reconsider(context.Background(), s)
		if err != nil || changed {
			t.Errorf("changed=%v err=%v", changed, err)
		}
		if s.Tier != model.TierCold {
			t.Errorf("tier mutated to %q", s.Tier)
		}
	})

	t.Run("archived resurrects on any live answer", func(t *testing.T) {
		skills := &stubSkills{}
		m := testManager(skills, &stubHost{repo: liveRepo(0, 1000)})
		s := hostedSkill(model.TierArchived, 1000)

		changed, err := m.Reconsider(context.Background(), s)
		if err != nil || !changed {
			t.Errorf("changed=%v err=%v", changed, err)
		}
	})

	t.Run("vanished repo leaves tier", func(t *testing.T) {
		skills := &stubSkills{}
		m := testManager(skills, &stubHost{err: &sourcehost.APIError{StatusCode: http.StatusNotFound}})
		s := hostedSkill(model.TierArchived, 1000)

		changed, err := m.Reconsider(context.Background(), s)
		if err != nil || changed {
			t.Errorf("changed=%v err=%v", changed, err)
		}
		if s.Tier != model.TierArchived {
			t.Errorf("tier mutated to %q", s.Tier)
		}
	})

	t.Run("uploaded skill never checked", func(t *testing.T) {
		skills := &stubSkills{}
		m := testManager(skills, &stubHost{err: &sourcehost.APIError{StatusCode: http.StatusInternalServerError}})
		s := hostedSkill(model.TierCold, 400)
		s.SourceType = model.SourceTypeUpload

		changed, err := m.Reconsider(context.Background(), s)
		if err != nil || changed {
			t.Errorf("changed=%v err=%v", changed, err)
		}
	})
}
