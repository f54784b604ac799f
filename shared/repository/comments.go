package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pavitra93/go-multi-tenant-blog/shared/models"
	"github.com/pavitra93/go-multi-tenant-blog/shared/tenancy"
)

// ErrAlreadyRated is returned by RateComment for a second vote by the same user
var ErrAlreadyRated = errors.New("comment already rated by user")

// CreateComment inserts comment
func (r *Repository) CreateComment(ctx context.Context, schema tenancy.Schema, comment *models.Comment) error {
	q, err := r.table(ctx, schema, models.TableComments)
	if err != nil {
		return err
	}
	return q.Create(comment).Error
}

// FindComment loads a comment without its replies
func (r *Repository) FindComment(ctx context.Context, schema tenancy.Schema, id uuid.UUID) (*models.Comment, error) {
	q, err := r.table(ctx, schema, models.TableComments)
	if err != nil {
		return nil, err
	}
	var comment models.Comment
	if err := q.Where("id = ?", id).First(&comment).Error; err != nil {
		return nil, err
	}
	return &comment, nil
}

// ListComments returns every comment of an article, oldest first
func (r *Repository) ListComments(ctx context.Context, schema tenancy.Schema, articleID uuid.UUID) ([]*models.Comment, error) {
	q, err := r.table(ctx, schema, models.TableComments)
	if err != nil {
		return nil, err
	}
	var comments []*models.Comment
	if err := q.Where("article_id = ?", articleID).Order("created_at ASC").Find(&comments).Error; err != nil {
		return nil, err
	}
	return comments, nil
}

// UpdateCommentText replaces the text of a comment
func (r *Repository) UpdateCommentText(ctx context.Context, schema tenancy.Schema, id uuid.UUID, text string) error {
	q, err := r.table(ctx, schema, models.TableComments)
	if err != nil {
		return err
	}
	return affected(q.Where("id = ?", id).Updates(map[string]interface{}{
		"text":       text,
		"updated_at": time.Now(),
	}))
}

// DeleteComment removes a comment; replies and ratings cascade
func (r *Repository) DeleteComment(ctx context.Context, schema tenancy.Schema, id uuid.UUID) error {
	q, err := r.table(ctx, schema, models.TableComments)
	if err != nil {
		return err
	}
	return affected(q.Where("id = ?", id).Delete(&models.Comment{}))
}

// HasRated reports whether user already voted on comment
func (r *Repository) HasRated(ctx context.Context, schema tenancy.Schema, userID, commentID uuid.UUID) (bool, error) {
	q, err := r.table(ctx, schema, models.TableRatings)
	if err != nil {
		return false, err
	}
	var n int64
	err = q.Where("user_id = ? AND comment_id = ?", userID, commentID).Count(&n).Error
	return n > 0, err
}

// CreateRating inserts a vote
func (r *Repository) CreateRating(ctx context.Context, schema tenancy.Schema, rating *models.Rating) error {
	q, err := r.table(ctx, schema, models.TableRatings)
	if err != nil {
		return err
	}
	return q.Create(rating).Error
}

// AdjustScore adds delta to the rating score of a comment
func (r *Repository) AdjustScore(ctx context.Context, schema tenancy.Schema, commentID uuid.UUID, delta int) error {
	q, err := r.table(ctx, schema, models.TableComments)
	if err != nil {
		return err
	}
	return affected(q.Where("id = ?", commentID).UpdateColumn("rating_score", gorm.Expr("rating_score + ?", delta)))
}

// RatedCommentIDs returns the comments of an article user has voted on
func (r *Repository) RatedCommentIDs(ctx context.Context, schema tenancy.Schema, userID, articleID uuid.UUID) (map[uuid.UUID]bool, error) {
	q, err := r.aliased(ctx, schema, models.TableRatings, "r")
	if err != nil {
		return nil, err
	}
	var ids []uuid.UUID
	err = q.Joins("JOIN "+qualified(schema, models.TableComments)+" c ON c.id = r.comment_id").
		Where("r.user_id = ? AND c.article_id = ?", userID, articleID).
		Pluck("r.comment_id", &ids).Error
	if err != nil {
		return nil, err
	}
	rated := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		rated[id] = true
	}
	return rated, nil
}

// RateComment records a vote and moves the comment score by one, atomically
func (r *Repository) RateComment(ctx context.Context, schema tenancy.Schema, rating *models.Rating) (*models.Comment, error) {
	var comment *models.Comment
	err := r.Transaction(ctx, func(tx *Repository) error {
		rated, err := tx.HasRated(ctx, schema, rating.UserID, rating.CommentID)
		if err != nil {
			return err
		}
		if rated {
			return ErrAlreadyRated
		}
		if err := tx.CreateRating(ctx, schema, rating); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrAlreadyRated
			}
			return err
		}

		delta := -1
		if rating.IsUpvote {
			delta = 1
		}
		if err := tx.AdjustScore(ctx, schema, rating.CommentID, delta); err != nil {
			return err
		}
		comment, err = tx.FindComment(ctx, schema, rating.CommentID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return comment, nil
}
