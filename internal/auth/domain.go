package auth

import (
	"time"

	"github.com/google/uuid"
)

// Account represents a developer account that can exchange credentials.
type Account struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
