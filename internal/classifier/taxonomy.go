package classifier

import "github.com/skilldex-dev/skilldex/internal/registry/model"

// Predefined is the built-in category taxonomy. Keywords are lowercase; the
// keyword pass matches them as substrings of the lowercased document.
var Predefined = []model.Category{
	{
		Slug:        "coding",
		Name:        "Coding",
		Description: "Writing, reviewing, and refactoring source code",
		Kind:        model.CategoryPredefined,
		Keywords:    []string{"code", "refactor", "programming", "function", "compiler", "debug", "lint"},
	},
	{
		Slug:        "testing",
		Name:        "Testing",
		Description: "Test authoring, coverage, and quality assurance",
		Kind:        model.CategoryPredefined,
		Keywords:    []string{"test", "coverage", "assertion", "mock", "fixture", "regression", "qa"},
	},
	{
		Slug:        "devops",
		Name:        "DevOps",
		Description: "Deployment, CI/CD, containers, and infrastructure",
		Kind:        model.CategoryPredefined,
		Keywords:    []string{"deploy", "docker", "kubernetes", "terraform", "ci/cd", "pipeline", "infrastructure", "helm"},
	},
	{
		Slug:        "data",
		Name:        "Data",
		Description: "Data processing, analytics, and databases",
		Kind:        model.CategoryPredefined,
		Keywords:    []string{"data", "sql", "database", "etl", "analytics", "pandas", "query", "warehouse"},
	},
	{
		Slug:        "writing",
		Name:        "Writing",
		Description: "Documentation, technical writing, and editing",
		Kind:        model.CategoryPredefined,
		Keywords:    []string{"writing", "documentation", "readme", "blog", "editing", "grammar", "summarize"},
	},
	{
		Slug:        "research",
		Name:        "Research",
		Description: "Information gathering, analysis, and synthesis",
		Kind:        model.CategoryPredefined,
		Keywords:    []string{"research", "search", "analyze", "investigate", "sources", "literature", "citation"},
	},
	{
		Slug:        "security",
		Name:        "Security",
		Description: "Security review, auditing, and hardening",
		Kind:        model.CategoryPredefined,
		Keywords:    []string{"security", "vulnerability", "audit", "cve", "secret", "encryption", "auth"},
	},
	{
		Slug:        "web",
		Name:        "Web",
		Description: "Frontend, APIs, and web frameworks",
		Kind:        model.CategoryPredefined,
		Keywords:    []string{"web", "frontend", "react", "css", "html", "api", "http", "browser"},
	},
	{
		Slug:        "automation",
		Name:        "Automation",
		Description: "Workflow automation, scripting, and agents",
		Kind:        model.CategoryPredefined,
		Keywords:    []string{"automation", "workflow", "script", "cron", "schedule", "agent", "hook"},
	},
	{
		Slug:        "design",
		Name:        "Design",
		Description: "UI/UX, diagrams, and visual assets",
		Kind:        model.CategoryPredefined,
		Keywords:    []string{"design", "ui", "ux", "figma", "diagram", "mockup", "layout"},
	},
	{
		Slug:        "productivity",
		Name:        "Productivity",
		Description: "Task management, planning, and personal tooling",
		Kind:        model.CategoryPredefined,
		Keywords:    []string{"productivity", "task", "planning", "notes", "calendar", "todo", "organize"},
	},
	{
		Slug:        model.CategorySlugOther,
		Name:        "Other",
		Description: "Skills that fit no other category",
		Kind:        model.CategoryPredefined,
	},
}

var predefinedSlugs = func() map[string]bool {
	m := make(map[string]bool, len(Predefined))
	for _, c := range Predefined {
		m[c.Slug] = true
	}
	return m
}()

// IsPredefined reports whether slug belongs to the built-in taxonomy.
func IsPredefined(slug string) bool { return predefinedSlugs[slug] }
