package models

import (
	"github.com/google/uuid"
)

// User represents a tenant user record
type User struct {
	Base
	Email    string `json:"email" gorm:"uniqueIndex;not null"`
	Password string `json:"-" gorm:"not null"`
	Name     string `json:"name" gorm:"not null"`
	IsActive bool   `json:"isActive" gorm:"default:true"`
	IsAdmin  bool   `json:"isAdmin" gorm:"default:false"`
	IP       string `json:"-"`

	Credentials *Credentials `json:"-" gorm:"-"`
}

func (User) TableName() string {
	return TableUsers
}

// Credentials tracks the password history and token version of a user.
// Bumping Version invalidates every refresh token issued before.
type Credentials struct {
	Base
	UserID            uuid.UUID `json:"userId" gorm:"type:uuid;uniqueIndex;not null"`
	Version           int       `json:"version" gorm:"default:0"`
	LastPassword      string    `json:"-"`
	PasswordUpdatedAt int64     `json:"passwordUpdatedAt"`
}

func (Credentials) TableName() string {
	return TableCredentials
}

// UserImage is an avatar uploaded by a user
type UserImage struct {
	Base
	URL    string    `json:"url" gorm:"not null"`
	UserID uuid.UUID `json:"userId" gorm:"type:uuid;not null"`
}

func (UserImage) TableName() string {
	return TableUserImages
}

// BlacklistedToken is a revoked refresh token
type BlacklistedToken struct {
	TokenID   string    `json:"tokenId" gorm:"primaryKey"`
	UserID    uuid.UUID `json:"userId" gorm:"type:uuid;not null"`
	CreatedAt int64     `json:"createdAt" gorm:"autoCreateTime"`
}

func (BlacklistedToken) TableName() string {
	return TableBlacklistedTokens
}

// UserView is the public shape of a user
type UserView struct {
	ID      uuid.UUID `json:"id"`
	Email   string    `json:"email"`
	Name    string    `json:"name"`
	IsAdmin bool      `json:"isAdmin"`
}

// View strips private fields from the user
func (u *User) View() UserView {
	return UserView{ID: u.ID, Email: u.Email, Name: u.Name, IsAdmin: u.IsAdmin}
}
