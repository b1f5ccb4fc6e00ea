package skills

import "testing"

func TestSlugify(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"My Cool Skill", "my-cool-skill"},
		{"acme widget", "acme-widget"},
		{"Hello,  World!!", "hello-world"},
		{"--already--dashed--", "already-dashed"},
		{"UPPER_case.mixed", "upper-case-mixed"},
		{"skills/.curated/foo", "skills-curated-foo"},
		{"", ""},
		{"!!!", ""},
	}
	for _, tc := range cases {
		if got := Slugify(tc.in); got != tc.want {
			t.Errorf("Slugify(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestBaseSlug(t *testing.T) {
	cases := []struct {
		name        string
		owner       string
		repo        string
		skillPath   string
		displayName string
		want        string
	}{
		{"root skill", "acme", "widget", "", "ignored-at-root", "acme-widget"},
		{"nested with display name", "acme", "widget", "skills/reviewer", "Code Reviewer", "acme-widget-code-reviewer"},
		{"nested without display name", "acme", "widget", "skills/reviewer", "", "acme-widget-skills-reviewer"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := BaseSlug(tc.owner, tc.repo, tc.skillPath, tc.displayName)
			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestDisambiguateSlug(t *testing.T) {
	taken := map[string]bool{
		"acme-widget":   true,
		"acme-widget-2": true,
	}
	got := DisambiguateSlug("acme-widget", func(s string) bool { return taken[s] })
	if got != "acme-widget-3" {
		t.Errorf("got %q, want acme-widget-3", got)
	}

	got = DisambiguateSlug("fresh", func(s string) bool { return false })
	if got != "fresh" {
		t.Errorf("free base should pass through, got %q", got)
	}
}
