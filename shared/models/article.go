package models

import (
	"github.com/google/uuid"
)

// ArticleStatus is the publication state of an article
type ArticleStatus string

const (
	ArticleDraft     ArticleStatus = "DRAFT"
	ArticlePublished ArticleStatus = "PUBLISHED"
)

// Article is a blog post written by a tenant user
type Article struct {
	Base
	Title    string        `json:"title" gorm:"not null"`
	Perex    string        `json:"perex" gorm:"not null"`
	Content  string        `json:"content" gorm:"not null"`
	Status   ArticleStatus `json:"status" gorm:"not null;default:DRAFT"`
	AuthorID uuid.UUID     `json:"authorId" gorm:"type:uuid;not null"`

	// Read-only columns filled by list queries
	CommentsCount int64  `json:"commentsCount" gorm:"->"`
	ImageURL      string `json:"imageUrl,omitempty" gorm:"->"`
}

func (Article) TableName() string {
	return TableArticles
}

// IsPublished reports whether the article is visible to anonymous readers
func (a *Article) IsPublished() bool {
	return a.Status == ArticlePublished
}

// ArticleImage is the cover image of an article
type ArticleImage struct {
	Base
	URL       string    `json:"url" gorm:"not null"`
	ArticleID uuid.UUID `json:"articleId" gorm:"type:uuid;not null"`
}

func (ArticleImage) TableName() string {
	return TableArticleImages
}
