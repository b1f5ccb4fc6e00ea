package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/skilldex-dev/skilldex/internal/registry/model"
	"github.com/skilldex-dev/skilldex/internal/registry/service"
	"go.uber.org/zap"
)

// SkillHandler serves the registry read endpoints.
type SkillHandler struct {
	svc    *service.SkillService
	logger *zap.Logger
}

// NewSkillHandler creates a SkillHandler.
func NewSkillHandler(svc *service.SkillService, logger *zap.Logger) *SkillHandler {
	return &SkillHandler{svc: svc, logger: logger}
}

// Register wires the read routes. The registry group carries optional auth;
// favorites require it.
func (h *SkillHandler) Register(r *gin.Engine, auth *Authenticator) {
	reg := r.Group("/registry", auth.Optional())
	reg.GET("/search", h.Search)
	reg.GET("/skill/:owner", h.GetByIdentifier)
	reg.GET("/skill/:owner/:name", h.GetByCoordinate)

	r.GET("/skills/:slug/download", auth.Optional(), h.Download)
	r.GET("/categories", h.Categories)

	r.POST("/favorites", auth.Required(), h.AddFavorite)
	r.DELETE("/favorites", auth.Required(), h.RemoveFavorite)
}

// skillSummary is one row of a search response.
type skillSummary struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Owner       string   `json:"owner"`
	Repo        string   `json:"repo"`
	Stars       int      `json:"stars"`
	UpdatedAt   string   `json:"updatedAt"`
	Categories  []string `json:"categories"`
	Visibility  string   `json:"visibility"`
	Slug        string   `json:"slug"`
}

func summarize(s *model.Skill) skillSummary {
	cats := s.Categories
	if cats == nil {
		cats = []string{}
	}
	return skillSummary{
		Name:        s.Name,
		Description: s.Description,
		Owner:       s.RepoOwner,
		Repo:        s.RepoName,
		Stars:       s.Stars,
		UpdatedAt:   s.UpdatedAt.UTC().Format(time.RFC3339),
		Categories:  cats,
		Visibility:  string(s.Visibility),
		Slug:        s.Slug,
	}
}

// Search handles GET /registry/search.
func (h *SkillHandler) Search(c *gin.Context) {
	acc := accessor(c)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	skills, total, err := h.svc.Search(c.Request.Context(), acc, service.SearchQuery{
		Query:          c.Query("q"),
		Category:       c.Query("category"),
		Limit:          limit,
		Offset:         offset,
		IncludePrivate: c.Query("include_private") == "true",
	})
	if err != nil {
		fail(c, h.logger, err)
		return
	}

	out := make([]skillSummary, 0, len(skills))
	for _, s := range skills {
		out = append(out, summarize(s))
	}
	publicCache(c, acc, 60*time.Second)
	c.JSON(http.StatusOK, gin.H{"skills": out, "total": total})
}

// skillDocument is the detail response.
type skillDocument struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Owner       string   `json:"owner"`
	Repo        string   `json:"repo"`
	Stars       int      `json:"stars"`
	UpdatedAt   string   `json:"updatedAt"`
	Categories  []string `json:"categories"`
	Content     string   `json:"content"`
	GithubURL   string   `json:"githubUrl"`
	Visibility  string   `json:"visibility"`
}

func document(d *service.SkillDetail) skillDocument {
	sum := summarize(d.Skill)
	return skillDocument{
		Name:        sum.Name,
		Description: sum.Description,
		Owner:       sum.Owner,
		Repo:        sum.Repo,
		Stars:       sum.Stars,
		UpdatedAt:   sum.UpdatedAt,
		Categories:  sum.Categories,
		Content:     d.Content,
		GithubURL:   d.Skill.GithubURL,
		Visibility:  sum.Visibility,
	}
}

// GetByCoordinate handles GET /registry/skill/{owner}/{name}. The owner
// segment may carry the "@owner/name" identifier form's leading @.
func (h *SkillHandler) GetByCoordinate(c *gin.Context) {
	acc := accessor(c)
	detail, err := h.svc.GetByCoordinate(c.Request.Context(), acc,
		strings.TrimPrefix(c.Param("owner"), "@"), c.Param("name"))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	publicCache(c, acc, 300*time.Second)
	c.JSON(http.StatusOK, document(detail))
}

// GetByIdentifier handles the legacy single-segment form
// GET /registry/skill/{identifier}, where identifier may be a slug or
// "@owner/name".
func (h *SkillHandler) GetByIdentifier(c *gin.Context) {
	acc := accessor(c)
	detail, err := h.svc.GetByIdentifier(c.Request.Context(), acc, c.Param("owner"))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	publicCache(c, acc, 300*time.Second)
	c.JSON(http.StatusOK, document(detail))
}

// Download handles GET /skills/{slug}/download.
func (h *SkillHandler) Download(c *gin.Context) {
	acc := accessor(c)
	skill, archive, err := h.svc.Download(c.Request.Context(), acc, c.Param("slug"))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	RecordDownload()

	if skill.Visibility == model.VisibilityPublic {
		publicCache(c, acc, 60*time.Second)
	} else {
		c.Header("Cache-Control", "private, no-cache")
	}
	c.Header("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", skill.Slug+".zip"))
	c.Data(http.StatusOK, "application/zip", archive)
}

// Categories handles GET /categories.
func (h *SkillHandler) Categories(c *gin.Context) {
	cats, err := h.svc.Categories(c.Request.Context())
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	type category struct {
		Slug       string `json:"slug"`
		Name       string `json:"name"`
		Kind       string `json:"kind"`
		SkillCount int    `json:"skillCount"`
	}
	out := make([]category, 0, len(cats))
	for _, cat := range cats {
		out = append(out, category{
			Slug:       cat.Slug,
			Name:       cat.Name,
			Kind:       string(cat.Kind),
			SkillCount: cat.SkillCount,
		})
	}
	c.Header("Cache-Control", "public, max-age=300, stale-while-revalidate=300")
	c.JSON(http.StatusOK, gin.H{"categories": out})
}

type favoriteRequest struct {
	Slug string `json:"slug" binding:"required"`
}

// AddFavorite handles POST /favorites.
func (h *SkillHandler) AddFavorite(c *gin.Context) {
	h.setFavorite(c, true)
}

// RemoveFavorite handles DELETE /favorites.
func (h *SkillHandler) RemoveFavorite(c *gin.Context) {
	h.setFavorite(c, false)
}

func (h *SkillHandler) setFavorite(c *gin.Context, favored bool) {
	var req favoriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "slug is required"})
		return
	}
	if err := h.svc.SetFavorite(c.Request.Context(), accessor(c), req.Slug, favored); err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"slug": req.Slug, "favorited": favored})
}
