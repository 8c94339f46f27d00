package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/pavelanni/korrekturpilot/internal/model"
)

const userColumns = `id, username, display_name, password_hash, role, active, credits, created_at`

func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Username, &u.DisplayName, &u.PasswordHash, &u.Role, &u.Active, &u.Credits, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts a new user.
func (s *Store) CreateUser(u model.User) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO users (username, display_name, password_hash, role, active, credits, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.Username, u.DisplayName, u.PasswordHash, u.Role, u.Active, u.Credits, time.Now(),
	)
	if err != nil {
		slog.Error("failed to create user", "username", u.Username, "error", err)
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	slog.Info("created user", "id", id, "username", u.Username, "role", u.Role)
	return id, nil
}

// GetUserByUsername returns a user by username, or nil if there is none.
func (s *Store) GetUserByUsername(username string) (*model.User, error) {
	u, err := scanUser(s.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE username = ?`, username))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return u, err
}

// GetUserByID returns a user by ID, or nil if there is none.
func (s *Store) GetUserByID(id int64) (*model.User, error) {
	u, err := scanUser(s.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return u, err
}

// ListUsers returns all users.
func (s *Store) ListUsers() ([]model.User, error) {
	rows, err := s.db.Query(`SELECT ` + userColumns + ` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// ToggleUserActive flips the active flag on a user.
func (s *Store) ToggleUserActive(id int64) error {
	res, err := s.db.Exec(`UPDATE users SET active = NOT active WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return expectRow(res)
}

// UserCount returns the total number of users.
func (s *Store) UserCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}

// AddCredits grants n credits and returns the new balance.
func (s *Store) AddCredits(id int64, n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("credits to add must be positive, got %d", n)
	}
	var balance int
	err := s.db.QueryRow(
		`UPDATE users SET credits = credits + ? WHERE id = ? RETURNING credits`, n, id,
	).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	slog.Info("added credits", "user_id", id, "added", n, "balance", balance)
	return balance, nil
}

// ConsumeCredit takes one credit from the user and returns the remaining
// balance. The check and the decrement happen in a single statement.
func (s *Store) ConsumeCredit(id int64) (int, error) {
	var balance int
	err := s.db.QueryRow(
		`UPDATE users SET credits = credits - 1 WHERE id = ? AND credits > 0 RETURNING credits`, id,
	).Scan(&balance)
	if err == sql.ErrNoRows {
		u, lookupErr := s.GetUserByID(id)
		if lookupErr != nil {
			return 0, lookupErr
		}
		if u == nil {
			return 0, ErrNotFound
		}
		return 0, ErrNoCredits
	}
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// RefundCredit returns a credit taken by ConsumeCredit.
func (s *Store) RefundCredit(id int64) error {
	res, err := s.db.Exec(`UPDATE users SET credits = credits + 1 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return expectRow(res)
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
