package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lalithlochan/quorum/internal/errs"
)

const userColumns = `id, name, email, phone, push_token, role, is_active, notification_preferences`

func scanUser(row pgx.Row) (*User, error) {
	var (
		u     User
		prefs []byte
	)
	if err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.Phone,
		&u.PushToken,
		&u.Role,
		&u.Active,
		&prefs,
	); err != nil {
		return nil, err
	}
	u.Preferences = ResolvePreferences(prefs)
	return &u, nil
}

// GetUser retrieves a user by ID, active or not
func (r *Repository) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := scanUser(r.db.Pool().QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NotFound("user %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return u, nil
}

// ListActiveUsersByRole returns every active user holding role
func (r *Repository) ListActiveUsersByRole(ctx context.Context, role string) ([]*User, error) {
	rows, err := r.db.Pool().Query(ctx,
		`SELECT `+userColumns+` FROM users WHERE role = $1 AND is_active ORDER BY name`,
		role,
	)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return users, nil
}
