package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	RoleGameMaster = "gm"
	RoleAdmin      = "admin"
)

type Profile struct {
	bun.BaseModel `bun:"table:profile"`
	ID            uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	Email         string    `bun:"email,notnull,default:''" json:"email"`
	DisplayName   string    `bun:"display_name,notnull,default:''" json:"display_name"`
	AvatarURL     *string   `bun:"avatar_url" json:"avatar_url"`
	Points        int       `bun:"points,notnull,default:0" json:"points"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`

	Roles []string `bun:"-" json:"roles"`
}

// UserRole grants a capability to a profile. A profile may hold several roles.
type UserRole struct {
	bun.BaseModel `bun:"table:user_role"`
	UserID        uuid.UUID `bun:"user_id,pk,type:uuid" json:"user_id"`
	Role          string    `bun:"role,pk" json:"role"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}

// Principal only use in middleware
type Principal struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
}
