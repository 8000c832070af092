package auth

import (
	"time"

	"github.com/google/uuid"

	"github.com/kilnstock/kilnstock/internal/policy"
)

// User is an account record.
type User struct {
	ID                 uuid.UUID
	Username           string
	Email              string
	PasswordHash       string
	Role               policy.Role
	AllowedTransaction string
	CreatedAt          time.Time
}

// Restriction decodes the stored transaction-type allow-list.
func (u *User) Restriction() policy.Restriction {
	return policy.ParseRestriction(u.AllowedTransaction)
}
