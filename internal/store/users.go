package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const userColumns = "id, email, name, preferred_name, age_range, password_hash, is_active, created_at"

// CreateUser inserts u and fills in its ID and CreatedAt. It returns
// ErrDuplicate when the email is already registered.
func (s *SQLiteStore) CreateUser(ctx context.Context, u *User) error {
	stmt, err := s.db.PrepareContext(ctx,
		"INSERT INTO users (email, name, preferred_name, age_range, password_hash, is_active, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare user insert: %w", err)
	}
	defer stmt.Close()

	u.CreatedAt = time.Now().UTC()
	res, err := stmt.ExecContext(ctx, u.Email, u.Name, u.PreferredName, u.AgeRange, u.PasswordHash, u.IsActive, u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("email %s: %w", u.Email, ErrDuplicate)
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	u.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read user id: %w", err)
	}
	return nil
}

// GetUserByEmail returns nil, nil when no user has the email.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE email = ?", email)
	return scanUser(row)
}

// GetUserByID returns nil, nil when the user does not exist.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
	return scanUser(row)
}

func (s *SQLiteStore) SetUserActive(ctx context.Context, id int64, active bool) error {
	res, err := s.db.ExecContext(ctx, "UPDATE users SET is_active = ? WHERE id = ?", active, id)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("user %d not found", id)
	}
	return nil
}

func scanUser(row *sql.Row) (*User, error) {
	var (
		u             User
		preferredName sql.NullString
		ageRange      sql.NullString
	)
	err := row.Scan(&u.ID, &u.Email, &u.Name, &preferredName, &ageRange, &u.PasswordHash, &u.IsActive, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // User not found
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	if preferredName.Valid {
		u.PreferredName = &preferredName.String
	}
	if ageRange.Valid {
		u.AgeRange = &ageRange.String
	}
	return &u, nil
}
