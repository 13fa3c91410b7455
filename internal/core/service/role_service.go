package service

import (
	"context"

	"github.com/rl1809/market-core/internal/core/domain"
	"github.com/rl1809/market-core/internal/port"
)

// RoleService is the store-backed port.RoleDirectory.
type RoleService struct {
	rt *Runtime
}

func NewRoleService(rt *Runtime) *RoleService {
	return &RoleService{rt: rt}
}

func (s *RoleService) HasRole(ctx context.Context, userID int64, role domain.Role) (ok bool, err error) {
	err = s.rt.inTx(ctx, "role.check", func(tx port.Tx) error {
		ok, err = tx.HasRole(ctx, userID, role)
		return err
	})
	return ok, err
}

func (s *RoleService) Grant(ctx context.Context, userID int64, role domain.Role) (err error) {
	ctx, end := s.rt.begin(ctx, "role.grant")
	defer end(&err)

	if userID <= 0 {
		return domain.Validation("user id must be positive")
	}
	if !role.Valid() {
		return domain.Validation("unknown role %q", role)
	}
	return s.rt.inTx(ctx, "role.grant", func(tx port.Tx) error {
		return tx.GrantRole(ctx, userID, role)
	})
}
