package skills

import (
	"path"
	"strings"
)

// DiscoveryPaths is the curated list of in-repo directories searched for
// SKILL.md files, in addition to the repository root. Dot-folder entries here
// are searched explicitly even though dot folders are otherwise excluded.
var DiscoveryPaths = []string{
	"",
	"skills",
	"skills/.curated",
	"skills/.experimental",
	"skills/.system",
	".claude/skills",
	".cursor/skills",
	".codex/skills",
	".windsurf/skills",
}

// MaxDiscoveryDepth bounds the breadth-first directory walk below each
// discovery path.
const MaxDiscoveryDepth = 3

// IsSkillFile reports whether the basename names a candidate SKILL document.
// Matching is case-insensitive.
func IsSkillFile(name string) bool {
	return strings.EqualFold(path.Base(name), "SKILL.md")
}

// curatedDotPrefixes are the only dot folders whose contents may become
// registry rows.
var curatedDotPrefixes = []string{
	"skills/.curated/",
	"skills/.experimental/",
	"skills/.system/",
}

// ExcludedPath reports whether p sits under a dot folder at any depth.
// Dot folders hold agent-local configuration, not standalone skills; a
// SKILL.md under ".claude/skills/foo/" belongs to that repository's agent
// setup and must not become a registry row. The curated skills/.curated,
// skills/.experimental, and skills/.system trees are the one exception.
func ExcludedPath(p string) bool {
	for _, prefix := range curatedDotPrefixes {
		if strings.HasPrefix(p, prefix) {
			return hasDotSegment(strings.TrimPrefix(p, prefix))
		}
	}
	return hasDotSegment(p)
}

func hasDotSegment(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if len(seg) > 1 && seg[0] == '.' {
			return true
		}
	}
	return false
}

// SkillPathOf returns the skill path for a discovered file: the directory of
// the SKILL.md, with "." normalized to the empty string (repository root).
func SkillPathOf(filePath string) string {
	dir := path.Dir(filePath)
	if dir == "." || dir == "/" {
		return ""
	}
	return dir
}
