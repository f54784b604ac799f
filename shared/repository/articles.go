package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pavitra93/go-multi-tenant-blog/shared/models"
	"github.com/pavitra93/go-multi-tenant-blog/shared/tenancy"
)

// ArticleFilter narrows an article listing
type ArticleFilter struct {
	AuthorID      *uuid.UUID
	PublishedOnly bool
	Page          int
	PageSize      int
}

// Offset returns the row offset of the requested page
func (f ArticleFilter) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.PageSize
}

// articleColumns selects an article with its comment count and latest image
func articleColumns(schema tenancy.Schema) string {
	return fmt.Sprintf(`a.*,
		(SELECT COUNT(*) FROM %s c WHERE c.article_id = a.id) AS comments_count,
		(SELECT i.url FROM %s i WHERE i.article_id = a.id ORDER BY i.created_at DESC LIMIT 1) AS image_url`,
		qualified(schema, models.TableComments), qualified(schema, models.TableArticleImages))
}

// CreateArticle inserts article
func (r *Repository) CreateArticle(ctx context.Context, schema tenancy.Schema, article *models.Article) error {
	q, err := r.table(ctx, schema, models.TableArticles)
	if err != nil {
		return err
	}
	return q.Create(article).Error
}

// CreateArticleImage attaches an image url to an article
func (r *Repository) CreateArticleImage(ctx context.Context, schema tenancy.Schema, image *models.ArticleImage) error {
	q, err := r.table(ctx, schema, models.TableArticleImages)
	if err != nil {
		return err
	}
	return q.Create(image).Error
}

// FindArticle loads one article with its comment count and image
func (r *Repository) FindArticle(ctx context.Context, schema tenancy.Schema, id uuid.UUID) (*models.Article, error) {
	q, err := r.aliased(ctx, schema, models.TableArticles, "a")
	if err != nil {
		return nil, err
	}
	var article models.Article
	if err := q.Select(articleColumns(schema)).Where("a.id = ?", id).Take(&article).Error; err != nil {
		return nil, err
	}
	return &article, nil
}

// ListArticles returns one page of articles, newest first, and the total matching count
func (r *Repository) ListArticles(ctx context.Context, schema tenancy.Schema, f ArticleFilter) ([]models.Article, int64, error) {
	q, err := r.aliased(ctx, schema, models.TableArticles, "a")
	if err != nil {
		return nil, 0, err
	}
	if f.AuthorID != nil {
		q = q.Where("a.author_id = ?", *f.AuthorID)
	}
	if f.PublishedOnly {
		q = q.Where("a.status = ?", models.ArticlePublished)
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	articles := make([]models.Article, 0, f.PageSize)
	err = q.Select(articleColumns(schema)).
		Order("a.created_at DESC").
		Offset(f.Offset()).
		Limit(f.PageSize).
		Find(&articles).Error
	if err != nil {
		return nil, 0, err
	}
	return articles, total, nil
}

// UpdateArticle writes the given columns of an article
func (r *Repository) UpdateArticle(ctx context.Context, schema tenancy.Schema, id uuid.UUID, fields map[string]interface{}) error {
	q, err := r.table(ctx, schema, models.TableArticles)
	if err != nil {
		return err
	}
	fields["updated_at"] = time.Now()
	return affected(q.Where("id = ?", id).Updates(fields))
}

// DeleteArticle removes an article together with its comments and images
func (r *Repository) DeleteArticle(ctx context.Context, schema tenancy.Schema, id uuid.UUID) error {
	q, err := r.table(ctx, schema, models.TableArticles)
	if err != nil {
		return err
	}
	return affected(q.Where("id = ?", id).Delete(&models.Article{}))
}

// CreateArticleWithImage inserts an article and, when imageURL is set, its cover image
func (r *Repository) CreateArticleWithImage(ctx context.Context, schema tenancy.Schema, article *models.Article, imageURL string) error {
	return r.Transaction(ctx, func(tx *Repository) error {
		if err := tx.CreateArticle(ctx, schema, article); err != nil {
			return err
		}
		if imageURL == "" {
			return nil
		}
		article.ImageURL = imageURL
		return tx.CreateArticleImage(ctx, schema, &models.ArticleImage{URL: imageURL, ArticleID: article.ID})
	})
}
