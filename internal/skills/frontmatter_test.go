package skills

import (
	"errors"
	"testing"
)

const sampleDoc = `---
name: code-reviewer
description: Reviews pull requests for common mistakes
allowed-tools:
  - Read
  - Grep
model: fast
---

# Code Reviewer

Look at the diff and flag issues.
`

func TestParseFrontmatter(t *testing.T) {
	fm, body, err := ParseFrontmatter(sampleDoc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fm.Name != "code-reviewer" {
		t.Errorf("Name: got %q", fm.Name)
	}
	if fm.Description != "Reviews pull requests for common mistakes" {
		t.Errorf("Description: got %q", fm.Description)
	}
	if len(fm.AllowedTools) != 2 || fm.AllowedTools[0] != "Read" {
		t.Errorf("AllowedTools: got %v", fm.AllowedTools)
	}
	if fm.Model != "fast" {
		t.Errorf("Model: got %q", fm.Model)
	}
	if !fm.Valid() {
		t.Error("expected valid frontmatter")
	}
	if body == "" || body[0] != '\n' {
		t.Errorf("body should start after the closing delimiter, got %q", body[:min(20, len(body))])
	}
}

func TestParseFrontmatter_missing(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{"no frontmatter at all", "# Just a README\n"},
		{"unterminated block", "---\nname: x\n"},
		{"empty document", ""},
		{"delimiter not first line", "\n---\nname: x\n---\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := ParseFrontmatter(tc.doc)
			if !errors.Is(err, ErrNoFrontmatter) {
				t.Errorf("expected ErrNoFrontmatter, got %v", err)
			}
		})
	}
}

func TestParseFrontmatter_invalidYAML(t *testing.T) {
	_, _, err := ParseFrontmatter("---\nname: [unclosed\n---\nbody\n")
	if err == nil || errors.Is(err, ErrNoFrontmatter) {
		t.Errorf("expected a YAML parse error, got %v", err)
	}
}

func TestFrontmatterValid(t *testing.T) {
	cases := []struct {
		fm   Frontmatter
		want bool
	}{
		{Frontmatter{Name: "a", Description: "b"}, true},
		{Frontmatter{Name: "a"}, false},
		{Frontmatter{Description: "b"}, false},
		{Frontmatter{Name: "  ", Description: "b"}, false},
	}
	for _, tc := range cases {
		if got := tc.fm.Valid(); got != tc.want {
			t.Errorf("Valid(%+v) = %v, want %v", tc.fm, got, tc.want)
		}
	}
}
