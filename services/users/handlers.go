package main

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/pavitra93/go-multi-tenant-blog/shared/contracts"
	"github.com/pavitra93/go-multi-tenant-blog/shared/models"
	"github.com/pavitra93/go-multi-tenant-blog/shared/rpc"
	"github.com/pavitra93/go-multi-tenant-blog/shared/tenancy"
	"github.com/pavitra93/go-multi-tenant-blog/shared/utils"
)

var (
	errInvalidCredentials = utils.Unauthorized("Invalid credentials")
	errUserNotFound       = utils.NotFound("User not found")
	errEmailInUse         = utils.BadRequest("email already in use")
)

// userStore is the slice of the repository the users service needs
type userStore interface {
	CountUsersByEmail(ctx context.Context, schema tenancy.Schema, email string) (int64, error)
	CreateUserWithCredentials(ctx context.Context, schema tenancy.Schema, user *models.User, creds *models.Credentials) error
	FindUserByID(ctx context.Context, schema tenancy.Schema, id uuid.UUID) (*models.User, error)
	FindUserByEmail(ctx context.Context, schema tenancy.Schema, email string) (*models.User, error)
	FindCredentials(ctx context.Context, schema tenancy.Schema, userID uuid.UUID) (*models.Credentials, error)
	UpdateUserName(ctx context.Context, schema tenancy.Schema, id uuid.UUID, name string) error
	DeleteUser(ctx context.Context, schema tenancy.Schema, id uuid.UUID) error
	CreateBlacklistedToken(ctx context.Context, schema tenancy.Schema, token *models.BlacklistedToken) error
	BlacklistedTokenExists(ctx context.Context, schema tenancy.Schema, userID uuid.UUID, tokenID string) (bool, error)
	CreateUserImage(ctx context.Context, schema tenancy.Schema, image *models.UserImage) error
}

type userHandlers struct {
	store   userStore
	service string
	now     func() time.Time
}

func newUserHandlers(store userStore, service string) *userHandlers {
	return &userHandlers{store: store, service: service, now: time.Now}
}

func (h *userHandlers) register(server *rpc.Server) {
	server.Handle(contracts.CreateUser, h.createUser)
	server.Handle(contracts.GetUserByID, h.getUserByID)
	server.Handle(contracts.GetUserByEmail, h.getUserByEmail)
	server.Handle(contracts.GetUserByEmailUnchecked, h.getUserByEmailUnchecked)
	server.Handle(contracts.GetUserByCredentials, h.getUserByCredentials)
	server.Handle(contracts.UpdateUser, h.updateUser)
	server.Handle(contracts.RemoveUser, h.removeUser)
	server.Handle(contracts.CreateBlacklistedToken, h.createBlacklistedToken)
	server.Handle(contracts.VerifyBlacklistedToken, h.verifyBlacklistedToken)
	server.Handle(contracts.CreateUserImage, h.createUserImage)
	server.Handle(contracts.UsersPing, h.ping, rpc.WithoutTenant())
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (h *userHandlers) createUser(ctx context.Context, payload json.RawMessage) (any, error) {
	schema, err := tenancy.SchemaFromContext(ctx)
	if err != nil {
		return nil, err
	}
	var req contracts.NewUser
	if err := rpc.Bind(payload, &req); err != nil {
		return nil, err
	}

	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, utils.BadRequest("Email and password are required")
	}
	name := utils.FormatName(req.Name)
	if name == "" {
		return nil, utils.BadRequest("Name is required")
	}
	if !utils.IsValidName(name) {
		return nil, utils.BadRequest("Name contains invalid characters")
	}

	count, err := h.store.CountUsersByEmail(ctx, schema, email)
	if err != nil {
		return nil, utils.Internal("Failed to check email", err)
	}
	if count > 0 {
		return nil, errEmailInUse
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		return nil, utils.Internal("Failed to hash password", err)
	}

	user := &models.User{Email: email, Name: name, Password: hash, IsActive: true}
	creds := &models.Credentials{
		LastPassword:      hash,
		PasswordUpdatedAt: h.now().Unix(),
	}
	if err := h.store.CreateUserWithCredentials(ctx, schema, user, creds); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errEmailInUse
		}
		return nil, utils.Internal("Failed to create user", err)
	}

	logrus.WithFields(logrus.Fields{
		"user_id": user.ID,
		"tenant":  schema,
	}).Info("User created")
	return user.View(), nil
}

func (h *userHandlers) getUserByID(ctx context.Context, payload json.RawMessage) (any, error) {
	schema, err := tenancy.SchemaFromContext(ctx)
	if err != nil {
		return nil, err
	}
	var ref contracts.UserRef
	if err := rpc.Bind(payload, &ref); err != nil {
		return nil, err
	}

	user, err := h.store.FindUserByID(ctx, schema, ref.ID)
	if err != nil {
		return nil, notFoundAs(err, errUserNotFound, "Failed to load user")
	}
	return user.View(), nil
}

// getUserByEmail is used by login, so a missing user reads as bad credentials
func (h *userHandlers) getUserByEmail(ctx context.Context, payload json.RawMessage) (any, error) {
	rec, err := h.recordByEmail(ctx, payload)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, errInvalidCredentials
	}
	return rec, nil
}

// getUserByEmailUnchecked replies null for an unknown email
func (h *userHandlers) getUserByEmailUnchecked(ctx context.Context, payload json.RawMessage) (any, error) {
	rec, err := h.recordByEmail(ctx, payload)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	return rec.User, nil
}

func (h *userHandlers) recordByEmail(ctx context.Context, payload json.RawMessage) (*contracts.UserRecord, error) {
	schema, err := tenancy.SchemaFromContext(ctx)
	if err != nil {
		return nil, err
	}
	var ref contracts.EmailRef
	if err := rpc.Bind(payload, &ref); err != nil {
		return nil, err
	}

	user, err := h.store.FindUserByEmail(ctx, schema, normalizeEmail(ref.Email))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, utils.Internal("Failed to load user", err)
	}

	creds, err := h.store.FindCredentials(ctx, schema, user.ID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.Internal("Failed to load credentials", err)
	}
	rec := contracts.NewUserRecord(user, creds)
	return &rec, nil
}

// getUserByCredentials checks the refresh token version against the stored one
func (h *userHandlers) getUserByCredentials(ctx context.Context, payload json.RawMessage) (any, error) {
	schema, err := tenancy.SchemaFromContext(ctx)
	if err != nil {
		return nil, err
	}
	var q contracts.CredentialsQuery
	if err := rpc.Bind(payload, &q); err != nil {
		return nil, err
	}

	user, err := h.store.FindUserByID(ctx, schema, q.UserID)
	if err != nil {
		return nil, notFoundAs(err, errInvalidCredentials, "Failed to load user")
	}
	creds, err := h.store.FindCredentials(ctx, schema, user.ID)
	if err != nil {
		return nil, notFoundAs(err, errInvalidCredentials, "Failed to load credentials")
	}
	if creds.Version != q.Version {
		return nil, errInvalidCredentials
	}
	return contracts.NewUserRecord(user, creds), nil
}

func (h *userHandlers) updateUser(ctx context.Context, payload json.RawMessage) (any, error) {
	schema, err := tenancy.SchemaFromContext(ctx)
	if err != nil {
		return nil, err
	}
	var req contracts.UserUpdate
	if err := rpc.Bind(payload, &req); err != nil {
		return nil, err
	}

	user, err := h.store.FindUserByID(ctx, schema, req.ID)
	if err != nil {
		return nil, notFoundAs(err, errUserNotFound, "Failed to load user")
	}
	if req.Name == nil {
		return user.View(), nil
	}

	name := utils.FormatName(*req.Name)
	if name == "" || !utils.IsValidName(name) {
		return nil, utils.BadRequest("Name contains invalid characters")
	}
	if name == user.Name {
		return nil, utils.BadRequest("Name must be different")
	}

	if err := h.store.UpdateUserName(ctx, schema, user.ID, name); err != nil {
		return nil, notFoundAs(err, errUserNotFound, "Failed to update user")
	}
	user.Name = name
	return user.View(), nil
}

func (h *userHandlers) removeUser(ctx context.Context, payload json.RawMessage) (any, error) {
	schema, err := tenancy.SchemaFromContext(ctx)
	if err != nil {
		return nil, err
	}
	var ref contracts.UserRef
	if err := rpc.Bind(payload, &ref); err != nil {
		return nil, err
	}

	user, err := h.store.FindUserByID(ctx, schema, ref.ID)
	if err != nil {
		return nil, notFoundAs(err, errUserNotFound, "Failed to load user")
	}
	if err := h.store.DeleteUser(ctx, schema, user.ID); err != nil {
		return nil, notFoundAs(err, errUserNotFound, "Failed to remove user")
	}
	return user.View(), nil
}

func (h *userHandlers) createBlacklistedToken(ctx context.Context, payload json.RawMessage) (any, error) {
	schema, err := tenancy.SchemaFromContext(ctx)
	if err != nil {
		return nil, err
	}
	var ref contracts.TokenRef
	if err := rpc.Bind(payload, &ref); err != nil {
		return nil, err
	}
	if ref.TokenID == "" {
		return nil, utils.BadRequest("Token id is required")
	}

	token := &models.BlacklistedToken{TokenID: ref.TokenID, UserID: ref.UserID}
	// revoking twice is not an error
	if err := h.store.CreateBlacklistedToken(ctx, schema, token); err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, utils.Internal("Failed to blacklist token", err)
	}
	return contracts.TokenStatus{Blacklisted: true}, nil
}

func (h *userHandlers) verifyBlacklistedToken(ctx context.Context, payload json.RawMessage) (any, error) {
	schema, err := tenancy.SchemaFromContext(ctx)
	if err != nil {
		return nil, err
	}
	var ref contracts.TokenRef
	if err := rpc.Bind(payload, &ref); err != nil {
		return nil, err
	}

	exists, err := h.store.BlacklistedTokenExists(ctx, schema, ref.UserID, ref.TokenID)
	if err != nil {
		return nil, utils.Internal("Failed to check token", err)
	}
	return contracts.TokenStatus{Blacklisted: exists}, nil
}

// createUserImage records an uploaded avatar for an existing user
func (h *userHandlers) createUserImage(ctx context.Context, payload json.RawMessage) (any, error) {
	schema, err := tenancy.SchemaFromContext(ctx)
	if err != nil {
		return nil, err
	}
	var ref contracts.UserImageRef
	if err := rpc.Bind(payload, &ref); err != nil {
		return nil, err
	}
	url := strings.TrimSpace(ref.URL)
	if url == "" {
		return nil, utils.BadRequest("Image url is required")
	}

	user, err := h.store.FindUserByID(ctx, schema, ref.UserID)
	if err != nil {
		return nil, notFoundAs(err, errUserNotFound, "Failed to load user")
	}
	image := &models.UserImage{URL: url, UserID: user.ID}
	if err := h.store.CreateUserImage(ctx, schema, image); err != nil {
		return nil, utils.Internal("Failed to store image", err)
	}
	return image, nil
}

func (h *userHandlers) ping(context.Context, json.RawMessage) (any, error) {
	return contracts.Pong{Service: h.service, Status: "ok"}, nil
}

// notFoundAs maps a missing row to notFound and anything else to a 500
func notFoundAs(err error, notFound error, message string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound
	}
	return utils.Internal(message, err)
}
