package models

import (
	"github.com/google/uuid"
)

// Comment is a reply to an article or to another comment
type Comment struct {
	Base
	ArticleID   uuid.UUID  `json:"articleId" gorm:"type:uuid;not null"`
	UserID      uuid.UUID  `json:"userId" gorm:"type:uuid;not null"`
	ParentID    *uuid.UUID `json:"parentId,omitempty" gorm:"type:uuid"`
	Text        string     `json:"text" gorm:"not null"`
	RatingScore int        `json:"ratingScore" gorm:"default:0"`

	Replies []*Comment `json:"replies,omitempty" gorm:"-"`
	CanVote bool       `json:"canVote" gorm:"-"`
}

func (Comment) TableName() string {
	return TableComments
}

// Rating is a single up or down vote on a comment
type Rating struct {
	Base
	IsUpvote  bool      `json:"isUpvote"`
	UserID    uuid.UUID `json:"userId" gorm:"type:uuid;not null"`
	CommentID uuid.UUID `json:"commentId" gorm:"type:uuid;not null"`
}

func (Rating) TableName() string {
	return TableRatings
}
