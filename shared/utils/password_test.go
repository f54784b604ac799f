package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword_PHCFormat(t *testing.T) {
	t.Parallel()

	hash, err := HashPassword("Secr3t!")
	require.NoError(t, err)

	parts := strings.Split(hash, "$")
	require.Len(t, parts, 6)
	assert.Equal(t, "argon2id", parts[1])
	assert.Equal(t, "v=19", parts[2])
	assert.Equal(t, "m=65536,t=3,p=4", parts[3])
}

func TestVerifyPassword(t *testing.T) {
	t.Parallel()

	hash, err := HashPassword("Secr3t!")
	require.NoError(t, err)

	ok, err := VerifyPassword("Secr3t!", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassword("secret", hash)
	require.NoError(t, err)
	assert.False(t, ok)

	other, err := HashPassword("Secr3t!")
	require.NoError(t, err)
	assert.NotEqual(t, hash, other, "salts differ")
}

func TestVerifyPassword_InvalidHash(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		hash    string
		wantErr error
	}{
		{"empty", "", ErrInvalidHash},
		{"not a hash", "plain-text", ErrInvalidHash},
		{"bcrypt", "$2b$v=19$m=65536,t=3,p=4$salt$hash", ErrInvalidHash},
		{"old version", "$argon2id$v=18$m=65536,t=3,p=4$c29tZXNhbHRoZXJl$c29tZWhhc2hoZXJl", ErrIncompatibleVersion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ok, err := VerifyPassword("Secr3t!", tt.hash)
			assert.False(t, ok)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestIsStrongPassword(t *testing.T) {
	t.Parallel()

	tests := map[string]bool{
		"Secr3t!":   true,
		"Password1": true,
		"Pass-word": true,
		"password1": false,
		"PASSWORD1": false,
		"Password":  false,
	}
	for pw, want := range tests {
		assert.Equal(t, want, IsStrongPassword(pw), pw)
	}
}

func TestFormatName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "John Doe", FormatName("  john   doe "))
	assert.Equal(t, "Anna Maria O'neil", FormatName("anna\nmaria o'neil"))
	assert.Equal(t, "Élise", FormatName("élise"))
	assert.Equal(t, "", FormatName("   "))
}

func TestIsValidName(t *testing.T) {
	t.Parallel()

	assert.True(t, IsValidName("Jean-Luc O'Brien Jr."))
	assert.False(t, IsValidName("robert'); drop table users;--"))
}
