package storage

import (
	"context"

	"github.com/pkg/errors"

	"github.com/rl1809/market-core/internal/core/domain"
)

func (t *sqlTx) HasRole(ctx context.Context, userID int64, role domain.Role) (bool, error) {
	var n int
	err := t.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_roles WHERE user_id = ? AND role = ?`,
		userID, string(role),
	).Scan(&n)
	if err != nil {
		return false, errors.Wrap(err, "query role")
	}
	return n > 0, nil
}

// GrantRole is idempotent.
func (t *sqlTx) GrantRole(ctx context.Context, userID int64, role domain.Role) error {
	if !role.Valid() {
		return errors.Errorf("unknown role %q", role)
	}
	ok, err := t.HasRole(ctx, userID, role)
	if err != nil || ok {
		return err
	}
	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO user_roles (user_id, role) VALUES (?, ?)`,
		userID, string(role),
	)
	if err != nil && !isDuplicate(err) {
		return errors.Wrap(err, "grant role")
	}
	return nil
}
