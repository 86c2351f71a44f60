package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/ariefcatur/storefront-ledger/internal/roles"
)

// RoleDirectory persists user roles in user_roles. Users without a row are
// clients.
type RoleDirectory struct {
	DB *pgxpool.Pool
}

var _ roles.Directory = (*RoleDirectory)(nil)

func (d *RoleDirectory) RoleOf(ctx context.Context, userID string) (roles.Role, error) {
	var s string
	err := d.DB.QueryRow(ctx, `SELECT role FROM user_roles WHERE user_id=$1`, userID).Scan(&s)
	if errors.Is(err, pgx.ErrNoRows) {
		return roles.Default, nil
	}
	if err != nil {
		return "", errors.Wrapf(err, "read role of %s", userID)
	}
	return roles.Parse(s)
}

func (d *RoleDirectory) SetRole(ctx context.Context, userID string, r roles.Role) error {
	_, err := d.DB.Exec(ctx, `
		INSERT INTO user_roles(user_id, role, updated_at) VALUES ($1,$2,$3)
		ON CONFLICT (user_id) DO UPDATE SET role=EXCLUDED.role, updated_at=EXCLUDED.updated_at`,
		userID, string(r), time.Now().UTC())
	return errors.Wrapf(err, "set role of %s", userID)
}

func (d *RoleDirectory) UsersWith(ctx context.Context, c roles.Capability) ([]string, error) {
	var names []string
	for _, r := range roles.WithCapability(c) {
		names = append(names, string(r))
	}
	rows, err := d.DB.Query(ctx, `SELECT user_id FROM user_roles WHERE role = ANY($1) ORDER BY user_id`, names)
	if err != nil {
		return nil, errors.Wrap(err, "list users by capability")
	}
	out, err := pgx.CollectRows(rows, pgx.RowTo[string])
	return out, errors.Wrap(err, "scan users")
}
