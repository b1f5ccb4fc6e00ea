package model

// CategoryKind distinguishes build-time categories from ones minted by the
// classification worker.
type CategoryKind string

const (
	CategoryPredefined  CategoryKind = "predefined"
	CategoryAISuggested CategoryKind = "ai-suggested"
)

// Category is a skill grouping. Predefined categories carry a keyword list
// used by the keyword classification pass; ai-suggested ones do not.
type Category struct {
	Slug        string       `json:"slug"        db:"slug"`
	Name        string       `json:"name"        db:"name"`
	Description string       `json:"description" db:"description"`
	Kind        CategoryKind `json:"kind"        db:"kind"`
	Keywords    []string     `json:"keywords,omitempty" db:"keywords"`
	SkillCount  int          `json:"skill_count" db:"-"`
}

// CategorySlugOther is assigned when keyword scoring and suggestion both
// produce nothing; every skill carries 1–5 categories.
const CategorySlugOther = "other"
