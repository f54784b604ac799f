package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Table names inside a tenant schema. Queries always qualify them with the schema.
const (
	TableUsers             = "users"
	TableCredentials       = "credentials"
	TableArticles          = "articles"
	TableComments          = "comments"
	TableUserImages        = "user_images"
	TableArticleImages     = "article_images"
	TableRatings           = "ratings"
	TableBlacklistedTokens = "blacklisted_tokens"
)

// TenantTables lists every table created in a new tenant schema, in dependency order
var TenantTables = []string{
	TableUsers,
	TableCredentials,
	TableArticles,
	TableComments,
	TableUserImages,
	TableArticleImages,
	TableRatings,
	TableBlacklistedTokens,
}

// Base carries the uuid key and timestamps shared by tenant entities
type Base struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BeforeCreate assigns an id when the caller did not
func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}
