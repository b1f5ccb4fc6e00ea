package skills

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrNoFrontmatter is returned when the document does not open with a
// frontmatter block.
var ErrNoFrontmatter = errors.New("skill document has no frontmatter block")

// Frontmatter is the YAML header of a SKILL.md document. Name and Description
// are required; everything else is optional agent configuration.
type Frontmatter struct {
	Name          string   `yaml:"name"`
	Description   string   `yaml:"description"`
	AllowedTools  []string `yaml:"allowed-tools"`
	Model         string   `yaml:"model"`
	Context       string   `yaml:"context"`
	Agent         string   `yaml:"agent"`
	Hooks         []string `yaml:"hooks"`
	UserInvocable *bool    `yaml:"user-invocable"`
}

// Valid reports whether the frontmatter names a usable skill.
func (f *Frontmatter) Valid() bool {
	return strings.TrimSpace(f.Name) != "" && strings.TrimSpace(f.Description) != ""
}

// ParseFrontmatter extracts and decodes the frontmatter block from a SKILL.md
// document. The block opens with a line containing only "---" and closes with
// the next such line; the remainder of the document is returned as body.
func ParseFrontmatter(content string) (*Frontmatter, string, error) {
	lines := strings.SplitAfter(content, "\n")
	if len(lines) == 0 || strings.TrimRight(lines[0], "\r\n") != "---" {
		return nil, "", ErrNoFrontmatter
	}

	var header strings.Builder
	bodyStart := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimRight(lines[i], "\r\n") == "---" {
			bodyStart = i + 1
			break
		}
		header.WriteString(lines[i])
	}
	if bodyStart < 0 {
		return nil, "", ErrNoFrontmatter
	}

	var fm Frontmatter
	if err := yaml.Unmarshal([]byte(header.String()), &fm); err != nil {
		return nil, "", fmt.Errorf("parse frontmatter: %w", err)
	}

	body := strings.Join(lines[bodyStart:], "")
	return &fm, body, nil
}
