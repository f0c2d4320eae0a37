package database

import (
	"time"

	"github.com/uptrace/bun"
)

// User is the bun model for the users table. The domain model lives in
// internal/user; only the store packages touch this type.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID             int64     `bun:"id,pk,autoincrement"`
	Email          string    `bun:"email,notnull,unique"`
	HashedPassword string    `bun:"hashed_password,notnull"`
	SessionID      *string   `bun:"session_id"`
	ResetToken     *string   `bun:"reset_token"`
	CreatedAt      time.Time `bun:"created_at,notnull"`
	UpdatedAt      time.Time `bun:"updated_at,notnull"`
}
