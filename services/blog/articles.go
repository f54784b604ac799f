package main

import (
	"context"
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/pavitra93/go-multi-tenant-blog/shared/events"
	"github.com/pavitra93/go-multi-tenant-blog/shared/middleware"
	"github.com/pavitra93/go-multi-tenant-blog/shared/models"
	"github.com/pavitra93/go-multi-tenant-blog/shared/repository"
	"github.com/pavitra93/go-multi-tenant-blog/shared/tenancy"
	"github.com/pavitra93/go-multi-tenant-blog/shared/utils"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

var (
	errArticleNotFound = utils.NotFound("Article not found")
	errNotAuthor       = utils.Forbidden("Only the author can modify this article")
)

// blogStore is the slice of the repository the blog service needs
type blogStore interface {
	CreateArticleWithImage(ctx context.Context, schema tenancy.Schema, article *models.Article, imageURL string) error
	CreateArticleImage(ctx context.Context, schema tenancy.Schema, image *models.ArticleImage) error
	FindArticle(ctx context.Context, schema tenancy.Schema, id uuid.UUID) (*models.Article, error)
	ListArticles(ctx context.Context, schema tenancy.Schema, f repository.ArticleFilter) ([]models.Article, int64, error)
	UpdateArticle(ctx context.Context, schema tenancy.Schema, id uuid.UUID, fields map[string]interface{}) error
	DeleteArticle(ctx context.Context, schema tenancy.Schema, id uuid.UUID) error

	CreateComment(ctx context.Context, schema tenancy.Schema, comment *models.Comment) error
	FindComment(ctx context.Context, schema tenancy.Schema, id uuid.UUID) (*models.Comment, error)
	ListComments(ctx context.Context, schema tenancy.Schema, articleID uuid.UUID) ([]*models.Comment, error)
	UpdateCommentText(ctx context.Context, schema tenancy.Schema, id uuid.UUID, text string) error
	DeleteComment(ctx context.Context, schema tenancy.Schema, id uuid.UUID) error
	RateComment(ctx context.Context, schema tenancy.Schema, rating *models.Rating) (*models.Comment, error)
	RatedCommentIDs(ctx context.Context, schema tenancy.Schema, userID, articleID uuid.UUID) (map[uuid.UUID]bool, error)
}

// blogDeps is shared by every blog handler
type blogDeps struct {
	store  blogStore
	events events.Publisher
}

// publish delivers an event; a failed delivery never fails the request
func (d *blogDeps) publish(c *gin.Context, eventType string, payload any) {
	schema, err := tenancy.SchemaFromContext(c.Request.Context())
	if err != nil {
		return
	}
	if err := d.events.Publish(c.Request.Context(), events.New(eventType, schema.String(), payload)); err != nil {
		logrus.WithFields(logrus.Fields{
			"type":   eventType,
			"tenant": schema,
		}).WithError(err).Warn("Failed to publish event")
	}
}

// CreateArticleRequest represents the create article request
type CreateArticleRequest struct {
	Title    string `json:"title" binding:"required,min=5,max=100"`
	Perex    string `json:"perex" binding:"required,min=10,max=255"`
	Content  string `json:"content" binding:"required"`
	ImageURL string `json:"imageUrl" binding:"omitempty,max=2048"`
}

// UpdateArticleRequest represents a partial article update
type UpdateArticleRequest struct {
	Title    *string `json:"title" binding:"omitempty,min=5,max=100"`
	Perex    *string `json:"perex" binding:"omitempty,min=10,max=255"`
	Content  *string `json:"content" binding:"omitempty,min=1"`
	ImageURL *string `json:"imageUrl" binding:"omitempty,max=2048"`
}

// ArticleIDRequest identifies an article in the body
type ArticleIDRequest struct {
	ID uuid.UUID `json:"id" binding:"required"`
}

// requestScope returns the tenant schema and, when authenticated, the user id
func requestScope(c *gin.Context) (tenancy.Schema, uuid.UUID, bool, error) {
	schema, err := tenancy.SchemaFromContext(c.Request.Context())
	if err != nil {
		return "", uuid.Nil, false, err
	}
	userID, ok := middleware.GetUserID(c)
	return schema, userID, ok, nil
}

// parsePage reads page and pageSize from the query string
func parsePage(c *gin.Context) (int, int, error) {
	page, size := 1, defaultPageSize
	if raw := c.Query("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return 0, 0, utils.BadRequest("page must be a positive integer")
		}
		page = n
	}
	if raw := c.Query("pageSize"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxPageSize {
			return 0, 0, utils.BadRequest("pageSize must be between 1 and 100")
		}
		size = n
	}
	return page, size, nil
}

func parseID(c *gin.Context, param string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		return uuid.Nil, utils.BadRequest("Invalid " + param)
	}
	return id, nil
}

// loadOwnArticle loads an article the user is allowed to change
func (d *blogDeps) loadOwnArticle(ctx context.Context, schema tenancy.Schema, id, userID uuid.UUID) (*models.Article, error) {
	article, err := d.store.FindArticle(ctx, schema, id)
	if err != nil {
		return nil, mapNotFound(err, errArticleNotFound, "Failed to load article")
	}
	if article.AuthorID != userID {
		return nil, errNotAuthor
	}
	return article, nil
}

func mapNotFound(err error, notFound error, message string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound
	}
	return utils.Internal(message, err)
}

// handleCreateArticle creates a draft owned by the caller
func handleCreateArticle(d *blogDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		schema, userID, _, err := requestScope(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		var req CreateArticleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Title must be 5-100 characters, perex 10-255 characters and content is required")
			return
		}

		article := &models.Article{
			Title:    req.Title,
			Perex:    req.Perex,
			Content:  req.Content,
			Status:   models.ArticleDraft,
			AuthorID: userID,
		}
		if err := d.store.CreateArticleWithImage(c.Request.Context(), schema, article, req.ImageURL); err != nil {
			utils.RespondError(c, utils.Internal("Failed to create article", err))
			return
		}

		utils.CreatedResponse(c, "Article created successfully", article)
	}
}

func (d *blogDeps) listArticles(c *gin.Context, filter repository.ArticleFilter) {
	schema, err := tenancy.SchemaFromContext(c.Request.Context())
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	page, size, err := parsePage(c)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	filter.Page, filter.PageSize = page, size

	articles, total, err := d.store.ListArticles(c.Request.Context(), schema, filter)
	if err != nil {
		utils.RespondError(c, utils.Internal("Failed to fetch articles", err))
		return
	}

	utils.OKResponse(c, "Articles retrieved successfully", utils.Page[models.Article]{
		Items:    articles,
		Total:    total,
		Page:     page,
		PageSize: size,
	})
}

// handleListArticles lists published articles, newest first
func handleListArticles(d *blogDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		d.listArticles(c, repository.ArticleFilter{PublishedOnly: true})
	}
}

// handleMyArticles lists every article of the caller, drafts included
func handleMyArticles(d *blogDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.GetUserID(c)
		if !ok {
			utils.RespondError(c, utils.Unauthorized("Authorization token required"))
			return
		}
		d.listArticles(c, repository.ArticleFilter{AuthorID: &userID})
	}
}

// handleGetArticle returns a published article, or a draft to its author
func handleGetArticle(d *blogDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		schema, userID, authenticated, err := requestScope(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		id, err := parseID(c, "id")
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		article, err := d.store.FindArticle(c.Request.Context(), schema, id)
		if err != nil {
			utils.RespondError(c, mapNotFound(err, errArticleNotFound, "Failed to load article"))
			return
		}
		if !article.IsPublished() && (!authenticated || article.AuthorID != userID) {
			utils.RespondError(c, errArticleNotFound)
			return
		}

		utils.OKResponse(c, "Article retrieved successfully", article)
	}
}

// handlePublishArticle makes a draft visible to readers
func handlePublishArticle(d *blogDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		schema, userID, _, err := requestScope(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		var req ArticleIDRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Article id is required")
			return
		}

		article, err := d.loadOwnArticle(c.Request.Context(), schema, req.ID, userID)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		if article.IsPublished() {
			utils.BadRequestResponse(c, "Article is already published")
			return
		}

		fields := map[string]interface{}{"status": models.ArticlePublished}
		if err := d.store.UpdateArticle(c.Request.Context(), schema, article.ID, fields); err != nil {
			utils.RespondError(c, mapNotFound(err, errArticleNotFound, "Failed to publish article"))
			return
		}
		article.Status = models.ArticlePublished

		d.publish(c, events.ArticlePublished, article)
		utils.OKResponse(c, "Article published successfully", article)
	}
}

// handleUpdateArticle changes the given fields of an own article
func handleUpdateArticle(d *blogDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		schema, userID, _, err := requestScope(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		id, err := parseID(c, "id")
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		var req UpdateArticleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Title must be 5-100 characters and perex 10-255 characters")
			return
		}

		article, err := d.loadOwnArticle(c.Request.Context(), schema, id, userID)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		fields := map[string]interface{}{}
		if req.Title != nil {
			fields["title"] = *req.Title
			article.Title = *req.Title
		}
		if req.Perex != nil {
			fields["perex"] = *req.Perex
			article.Perex = *req.Perex
		}
		if req.Content != nil {
			fields["content"] = *req.Content
			article.Content = *req.Content
		}
		if len(fields) == 0 && (req.ImageURL == nil || *req.ImageURL == "") {
			utils.BadRequestResponse(c, "Nothing to update")
			return
		}

		if len(fields) > 0 {
			if err := d.store.UpdateArticle(c.Request.Context(), schema, article.ID, fields); err != nil {
				utils.RespondError(c, mapNotFound(err, errArticleNotFound, "Failed to update article"))
				return
			}
		}
		if req.ImageURL != nil && *req.ImageURL != "" {
			image := &models.ArticleImage{URL: *req.ImageURL, ArticleID: article.ID}
			if err := d.store.CreateArticleImage(c.Request.Context(), schema, image); err != nil {
				utils.RespondError(c, utils.Internal("Failed to attach image", err))
				return
			}
			article.ImageURL = image.URL
		}

		utils.OKResponse(c, "Article updated successfully", article)
	}
}

// handleRemoveArticle deletes an own article with its comments
func handleRemoveArticle(d *blogDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		schema, userID, _, err := requestScope(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		var req ArticleIDRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Article id is required")
			return
		}

		article, err := d.loadOwnArticle(c.Request.Context(), schema, req.ID, userID)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		if err := d.store.DeleteArticle(c.Request.Context(), schema, article.ID); err != nil {
			utils.RespondError(c, mapNotFound(err, errArticleNotFound, "Failed to remove article"))
			return
		}

		utils.OKResponse(c, "Article removed successfully", gin.H{"id": article.ID})
	}
}
