package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrUserNotFound = errors.New("user not found")

// Roles recognized by the platform.
const (
	RoleBuyer   = "buyer"
	RoleCreator = "creator"
	RoleAdmin   = "admin"
)

// User is the directory view of an account, enough for role checks and
// notification addressing.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// Directory answers identity questions for the order workflow: role
// lookups, email addressing, and the unassigned-requests pool admin.
type Directory struct {
	pool *pgxpool.Pool
}

func NewDirectory(pool *pgxpool.Pool) *Directory {
	return &Directory{pool: pool}
}

func (d *Directory) Get(ctx context.Context, id string) (*User, error) {
	var u User
	err := d.pool.QueryRow(ctx,
		`SELECT id, name, email, role, COALESCE(is_active, TRUE), created_at
         FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.IsActive, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("fetch user: %w", err)
	}
	return &u, nil
}

func (d *Directory) Role(ctx context.Context, id string) (string, error) {
	u, err := d.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return u.Role, nil
}

func (d *Directory) Email(ctx context.Context, id string) (string, error) {
	var email string
	err := d.pool.QueryRow(ctx, `SELECT email FROM users WHERE id = $1`, id).Scan(&email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrUserNotFound
		}
		return "", fmt.Errorf("fetch email: %w", err)
	}
	return email, nil
}

// UnassignedPoolAdmin returns the admin that fronts the unassigned
// generic-request pool: the earliest-created active admin. Deterministic
// so repeated generic requests bind to the same placeholder fulfiller
// regardless of how many admins exist.
func (d *Directory) UnassignedPoolAdmin(ctx context.Context) (string, error) {
	var id string
	err := d.pool.QueryRow(ctx,
		`SELECT id FROM users
         WHERE role = 'admin' AND COALESCE(is_active, TRUE)
         ORDER BY created_at ASC, id ASC LIMIT 1`).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrUserNotFound
		}
		return "", fmt.Errorf("fetch pool admin: %w", err)
	}
	return id, nil
}
