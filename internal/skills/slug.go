// Package skills holds the domain primitives shared by the indexing pipeline
// and the read API: slug derivation, SKILL.md frontmatter parsing, discovery
// path rules, and content hashing.
package skills

import (
	"strings"
)

// Slugify lowercases s and collapses every run of non-alphanumeric characters
// to a single '-'. Leading and trailing dashes are trimmed.
func Slugify(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	dash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		default:
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// BaseSlug derives the canonical slug for a hosted skill identity.
// A root-level skill gets "{owner}-{repo}"; a nested one appends the
// frontmatter display name when present, else the skill path.
func BaseSlug(owner, repo, skillPath, displayName string) string {
	if skillPath == "" {
		return Slugify(owner + " " + repo)
	}
	suffix := displayName
	if suffix == "" {
		suffix = skillPath
	}
	return Slugify(owner + " " + repo + " " + suffix)
}

// DisambiguateSlug returns the first slug from base, base-2, base-3, ... that
// taken reports as free. The chosen slug is persisted with the skill so
// re-indexing the same identity stays stable.
func DisambiguateSlug(base string, taken func(slug string) bool) string {
	if !taken(base) {
		return base
	}
	for i := 2; ; i++ {
		candidate := base + "-" + itoa(i)
		if !taken(candidate) {
			return candidate
		}
	}
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	return string(buf[pos:])
}
