package users

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/kilnstock/kilnstock/internal/policy"
)

// Service enforces the admin-panel visibility and mutation rules.
type Service struct {
	repo Repository
}

// NewService constructs a Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// PrincipalByID resolves an account into a policy.Principal. It backs the
// session middleware.
func (s *Service) PrincipalByID(ctx context.Context, id uuid.UUID) (policy.Principal, error) {
	account, err := s.repo.Get(ctx, id)
	if err != nil {
		return policy.Principal{}, err
	}
	return policy.Principal{
		ID:          account.ID,
		Username:    account.Username,
		Email:       account.Email,
		Role:        account.Role,
		Restriction: account.Restriction(),
	}, nil
}

// ListVisible returns the accounts the caller may manage. The caller's own
// account is always excluded, and admins never see super admins.
func (s *Service) ListVisible(ctx context.Context, caller policy.Principal) ([]Account, error) {
	accounts, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	visible := make([]Account, 0, len(accounts))
	for _, a := range accounts {
		if a.ID == caller.ID {
			continue
		}
		if caller.Role != policy.RoleSuperAdmin && a.Role == policy.RoleSuperAdmin {
			continue
		}
		visible = append(visible, a)
	}
	return visible, nil
}

// UpdateRole changes a target account's role. Super admin cannot be
// assigned through the panel, and a super admin account cannot be touched.
func (s *Service) UpdateRole(ctx context.Context, caller policy.Principal, target uuid.UUID, role policy.Role) error {
	if role != policy.RoleUser && role != policy.RoleAdmin {
		return ErrInvalidRole
	}
	account, err := s.visibleTarget(ctx, caller, target)
	if err != nil {
		return err
	}
	return s.repo.UpdateRole(ctx, account.ID, string(role))
}

// UpdateRestriction replaces a target account's transaction allow-list.
// An empty list clears the restriction entirely.
func (s *Service) UpdateRestriction(ctx context.Context, caller policy.Principal, target uuid.UUID, types []string) error {
	for _, t := range types {
		t = strings.TrimSpace(t)
		if t == "" || strings.EqualFold(t, policy.AllowAll) {
			continue
		}
		if !restrictable(t) {
			return ErrInvalidRestrictionType
		}
	}
	account, err := s.visibleTarget(ctx, caller, target)
	if err != nil {
		return err
	}
	return s.repo.UpdateRestriction(ctx, account.ID, policy.NewRestriction(types).String())
}

// Delete removes a target account. Only super admins may delete, and never
// themselves or another super admin.
func (s *Service) Delete(ctx context.Context, caller policy.Principal, target uuid.UUID) error {
	if caller.Role != policy.RoleSuperAdmin {
		return ErrTargetProtected
	}
	account, err := s.visibleTarget(ctx, caller, target)
	if err != nil {
		return err
	}
	return s.repo.Delete(ctx, account.ID)
}

func (s *Service) visibleTarget(ctx context.Context, caller policy.Principal, target uuid.UUID) (Account, error) {
	if target == caller.ID {
		return Account{}, ErrSelfManagement
	}
	account, err := s.repo.Get(ctx, target)
	if err != nil {
		return Account{}, err
	}
	if account.Role == policy.RoleSuperAdmin {
		return Account{}, ErrTargetProtected
	}
	return account, nil
}

func restrictable(t string) bool {
	for _, known := range policy.RestrictableTypes {
		if known == t {
			return true
		}
	}
	return false
}
