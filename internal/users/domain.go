package users

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/kilnstock/kilnstock/internal/policy"
)

// Account is the administrative view of a user.
type Account struct {
	ID                 uuid.UUID   `json:"id"`
	Username           string      `json:"username"`
	Email              string      `json:"email"`
	Role               policy.Role `json:"role"`
	AllowedTransaction string      `json:"allowed_transaction"`
	CreatedAt          time.Time   `json:"created_at"`
}

// Restriction decodes the stored transaction-type allow-list.
func (a Account) Restriction() policy.Restriction {
	return policy.ParseRestriction(a.AllowedTransaction)
}

var (
	// ErrSelfManagement indicates an admin acting on their own account.
	ErrSelfManagement = errors.New("cannot manage own account")
	// ErrTargetProtected indicates the target outranks the caller.
	ErrTargetProtected = errors.New("target account is protected")
	// ErrInvalidRole indicates a role outside the assignable set.
	ErrInvalidRole = errors.New("role must be user or admin")
	// ErrInvalidRestrictionType indicates an unknown transaction type in a
	// restriction list.
	ErrInvalidRestrictionType = errors.New("restriction contains unknown transaction type")
)
