package models

import (
	"time"

	"github.com/google/uuid"
)

// Скоупы API-ключей.
const (
	ScopeStoriesRead  = "stories:read"
	ScopeStoriesWrite = "stories:write"
	ScopeAdminAll     = "admin:all"
)

// APIKeyPrefixLength - по первым символам ключа ищутся кандидаты в БД.
const APIKeyPrefixLength = 16

// APIKey - запись таблицы api_keys.
type APIKey struct {
	ID         uuid.UUID  `db:"id"`
	UserID     string     `db:"user_id"`
	KeyPrefix  string     `db:"key_prefix"`
	KeyHash    string     `db:"key_hash"`
	Scopes     []string   `db:"scopes"`
	IsActive   bool       `db:"is_active"`
	ExpiresAt  *time.Time `db:"expires_at"`
	LastUsedAt *time.Time `db:"last_used_at"`
	CreatedAt  time.Time  `db:"created_at"`
}

// User - владелец ключа.
type User struct {
	ID    string `db:"id"`
	Email string `db:"email"`
	Name  string `db:"name"`
	Role  string `db:"role"`
}

// AuthResult - результат проверки ключа.
type AuthResult struct {
	UserID   string
	Email    string
	KeyID    uuid.UUID
	Scopes   []string
	Verified time.Time
}

// HasScope: admin:all даёт всё, stories:write включает stories:read.
func (a *AuthResult) HasScope(required string) bool {
	for _, s := range a.Scopes {
		if s == required || s == ScopeAdminAll {
			return true
		}
		if required == ScopeStoriesRead && s == ScopeStoriesWrite {
			return true
		}
	}
	return false
}
