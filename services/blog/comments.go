package main

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pavitra93/go-multi-tenant-blog/shared/events"
	"github.com/pavitra93/go-multi-tenant-blog/shared/models"
	"github.com/pavitra93/go-multi-tenant-blog/shared/repository"
	"github.com/pavitra93/go-multi-tenant-blog/shared/utils"
)

var (
	errCommentNotFound = utils.NotFound("Comment not found")
	errNotCommenter    = utils.Forbidden("Only the author can modify this comment")
	errAlreadyRated    = utils.BadRequest("User has already rated this comment")
	errOwnComment      = utils.BadRequest("You cannot rate your own comment")
)

// CreateCommentRequest represents a new comment or reply
type CreateCommentRequest struct {
	ArticleID uuid.UUID  `json:"articleId" binding:"required"`
	ParentID  *uuid.UUID `json:"parentId"`
	Text      string     `json:"text" binding:"required,min=1,max=1000"`
}

// UpdateCommentRequest replaces the comment text
type UpdateCommentRequest struct {
	Text string `json:"text" binding:"required,min=1,max=1000"`
}

// RateCommentRequest is an up or down vote
type RateCommentRequest struct {
	IsUpvote *bool `json:"isUpvote" binding:"required"`
}

// handleCreateComment adds a comment to a published article
func handleCreateComment(d *blogDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		schema, userID, _, err := requestScope(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		var req CreateCommentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Article id and a text of at most 1000 characters are required")
			return
		}

		ctx := c.Request.Context()
		article, err := d.store.FindArticle(ctx, schema, req.ArticleID)
		if err != nil {
			utils.RespondError(c, mapNotFound(err, errArticleNotFound, "Failed to load article"))
			return
		}
		if !article.IsPublished() {
			utils.RespondError(c, errArticleNotFound)
			return
		}

		if req.ParentID != nil {
			parent, err := d.store.FindComment(ctx, schema, *req.ParentID)
			if err != nil {
				utils.RespondError(c, mapNotFound(err, errCommentNotFound, "Failed to load comment"))
				return
			}
			if parent.ArticleID != article.ID {
				utils.BadRequestResponse(c, "Parent comment belongs to another article")
				return
			}
		}

		comment := &models.Comment{
			ArticleID: article.ID,
			UserID:    userID,
			ParentID:  req.ParentID,
			Text:      req.Text,
		}
		if err := d.store.CreateComment(ctx, schema, comment); err != nil {
			utils.RespondError(c, utils.Internal("Failed to create comment", err))
			return
		}

		d.publish(c, events.CommentCreated, comment)
		utils.CreatedResponse(c, "Comment created successfully", comment)
	}
}

// handleArticleComments returns the comment tree of an article
func handleArticleComments(d *blogDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		schema, userID, authenticated, err := requestScope(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		articleID, err := parseID(c, "articleId")
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		ctx := c.Request.Context()
		comments, err := d.store.ListComments(ctx, schema, articleID)
		if err != nil {
			utils.RespondError(c, utils.Internal("Failed to fetch comments", err))
			return
		}

		var rated map[uuid.UUID]bool
		if authenticated {
			rated, err = d.store.RatedCommentIDs(ctx, schema, userID, articleID)
			if err != nil {
				utils.RespondError(c, utils.Internal("Failed to fetch ratings", err))
				return
			}
		}

		var viewer *uuid.UUID
		if authenticated {
			viewer = &userID
		}
		utils.OKResponse(c, "Comments retrieved successfully", buildCommentTree(comments, viewer, rated))
	}
}

// buildCommentTree nests replies under their parents keeping the input order.
// A reply whose parent is missing is shown at the top level.
func buildCommentTree(comments []*models.Comment, viewer *uuid.UUID, rated map[uuid.UUID]bool) []*models.Comment {
	byID := make(map[uuid.UUID]*models.Comment, len(comments))
	for _, cm := range comments {
		cm.Replies = nil
		cm.CanVote = viewer != nil && cm.UserID != *viewer && !rated[cm.ID]
		byID[cm.ID] = cm
	}

	roots := make([]*models.Comment, 0, len(comments))
	for _, cm := range comments {
		if cm.ParentID != nil {
			if parent, ok := byID[*cm.ParentID]; ok && parent != cm {
				parent.Replies = append(parent.Replies, cm)
				continue
			}
		}
		roots = append(roots, cm)
	}
	return roots
}

// loadOwnComment loads a comment the caller wrote
func (d *blogDeps) loadOwnComment(c *gin.Context) (*models.Comment, error) {
	schema, userID, _, err := requestScope(c)
	if err != nil {
		return nil, err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return nil, err
	}
	comment, err := d.store.FindComment(c.Request.Context(), schema, id)
	if err != nil {
		return nil, mapNotFound(err, errCommentNotFound, "Failed to load comment")
	}
	if comment.UserID != userID {
		return nil, errNotCommenter
	}
	return comment, nil
}

// handleUpdateComment edits an own comment
func handleUpdateComment(d *blogDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdateCommentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Text of at most 1000 characters is required")
			return
		}
		comment, err := d.loadOwnComment(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		schema, _, _, _ := requestScope(c)
		if err := d.store.UpdateCommentText(c.Request.Context(), schema, comment.ID, req.Text); err != nil {
			utils.RespondError(c, mapNotFound(err, errCommentNotFound, "Failed to update comment"))
			return
		}
		comment.Text = req.Text

		utils.OKResponse(c, "Comment updated successfully", comment)
	}
}

// handleDeleteComment removes an own comment and its replies
func handleDeleteComment(d *blogDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		comment, err := d.loadOwnComment(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		schema, _, _, _ := requestScope(c)
		if err := d.store.DeleteComment(c.Request.Context(), schema, comment.ID); err != nil {
			utils.RespondError(c, mapNotFound(err, errCommentNotFound, "Failed to remove comment"))
			return
		}

		utils.OKResponse(c, "Comment removed successfully", gin.H{"id": comment.ID})
	}
}

// handleRateComment records one vote per user and comment
func handleRateComment(d *blogDeps) gin.HandlerFunc {
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
		var req RateCommentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "isUpvote is required")
			return
		}

		ctx := c.Request.Context()
		comment, err := d.store.FindComment(ctx, schema, id)
		if err != nil {
			utils.RespondError(c, mapNotFound(err, errCommentNotFound, "Failed to load comment"))
			return
		}
		if comment.UserID == userID {
			utils.RespondError(c, errOwnComment)
			return
		}

		rating := &models.Rating{UserID: userID, CommentID: comment.ID, IsUpvote: *req.IsUpvote}
		updated, err := d.store.RateComment(ctx, schema, rating)
		if err != nil {
			if errors.Is(err, repository.ErrAlreadyRated) {
				utils.RespondError(c, errAlreadyRated)
				return
			}
			utils.RespondError(c, mapNotFound(err, errCommentNotFound, "Failed to rate comment"))
			return
		}
		updated.CanVote = false

		d.publish(c, events.CommentRated, updated)
		utils.OKResponse(c, "Comment rated successfully", updated)
	}
}
