package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/pavitra93/go-multi-tenant-blog/shared/models"
	"github.com/pavitra93/go-multi-tenant-blog/shared/tenancy"
)

// CountUsersByEmail returns how many users use email
func (r *Repository) CountUsersByEmail(ctx context.Context, schema tenancy.Schema, email string) (int64, error) {
	q, err := r.table(ctx, schema, models.TableUsers)
	if err != nil {
		return 0, err
	}
	var n int64
	err = q.Where("email = ?", email).Count(&n).Error
	return n, err
}

// CreateUser inserts user
func (r *Repository) CreateUser(ctx context.Context, schema tenancy.Schema, user *models.User) error {
	q, err := r.table(ctx, schema, models.TableUsers)
	if err != nil {
		return err
	}
	return q.Create(user).Error
}

// CreateCredentials inserts the credentials row of a user
func (r *Repository) CreateCredentials(ctx context.Context, schema tenancy.Schema, creds *models.Credentials) error {
	q, err := r.table(ctx, schema, models.TableCredentials)
	if err != nil {
		return err
	}
	return q.Create(creds).Error
}

// FindUserByID loads a user
func (r *Repository) FindUserByID(ctx context.Context, schema tenancy.Schema, id uuid.UUID) (*models.User, error) {
	q, err := r.table(ctx, schema, models.TableUsers)
	if err != nil {
		return nil, err
	}
	var user models.User
	if err := q.Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindUserByEmail loads a user by email
func (r *Repository) FindUserByEmail(ctx context.Context, schema tenancy.Schema, email string) (*models.User, error) {
	q, err := r.table(ctx, schema, models.TableUsers)
	if err != nil {
		return nil, err
	}
	var user models.User
	if err := q.Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindCredentials loads the credentials of a user
func (r *Repository) FindCredentials(ctx context.Context, schema tenancy.Schema, userID uuid.UUID) (*models.Credentials, error) {
	q, err := r.table(ctx, schema, models.TableCredentials)
	if err != nil {
		return nil, err
	}
	var creds models.Credentials
	if err := q.Where("user_id = ?", userID).First(&creds).Error; err != nil {
		return nil, err
	}
	return &creds, nil
}

// UpdateUserName renames a user
func (r *Repository) UpdateUserName(ctx context.Context, schema tenancy.Schema, id uuid.UUID, name string) error {
	q, err := r.table(ctx, schema, models.TableUsers)
	if err != nil {
		return err
	}
	return affected(q.Where("id = ?", id).Updates(map[string]interface{}{
		"name":       name,
		"updated_at": time.Now(),
	}))
}

// DeleteUser removes a user; dependent rows cascade
func (r *Repository) DeleteUser(ctx context.Context, schema tenancy.Schema, id uuid.UUID) error {
	q, err := r.table(ctx, schema, models.TableUsers)
	if err != nil {
		return err
	}
	return affected(q.Where("id = ?", id).Delete(&models.User{}))
}

// CreateBlacklistedToken stores a revoked refresh token
func (r *Repository) CreateBlacklistedToken(ctx context.Context, schema tenancy.Schema, token *models.BlacklistedToken) error {
	q, err := r.table(ctx, schema, models.TableBlacklistedTokens)
	if err != nil {
		return err
	}
	return q.Create(token).Error
}

// BlacklistedTokenExists reports whether the token was revoked
func (r *Repository) BlacklistedTokenExists(ctx context.Context, schema tenancy.Schema, userID uuid.UUID, tokenID string) (bool, error) {
	q, err := r.table(ctx, schema, models.TableBlacklistedTokens)
	if err != nil {
		return false, err
	}
	var n int64
	err = q.Where("user_id = ? AND token_id = ?", userID, tokenID).Count(&n).Error
	return n > 0, err
}

// CreateUserImage stores an avatar url
func (r *Repository) CreateUserImage(ctx context.Context, schema tenancy.Schema, image *models.UserImage) error {
	q, err := r.table(ctx, schema, models.TableUserImages)
	if err != nil {
		return err
	}
	return q.Create(image).Error
}

// CreateUserWithCredentials inserts a user and its credentials in one transaction
func (r *Repository) CreateUserWithCredentials(ctx context.Context, schema tenancy.Schema, user *models.User, creds *models.Credentials) error {
	return r.Transaction(ctx, func(tx *Repository) error {
		if err := tx.CreateUser(ctx, schema, user); err != nil {
			return err
		}
		creds.UserID = user.ID
		return tx.CreateCredentials(ctx, schema, creds)
	})
}
