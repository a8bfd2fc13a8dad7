package storage

import (
	"database/sql"

	"github.com/fleetwatch/fleetwatch/internal/models"
)

// User operations

// CreateUser inserts a new user with an already-hashed password
func (db *DB) CreateUser(user models.User) (int64, error) {
	result, err := db.conn.Exec(`
		INSERT INTO users (username, password_hash, email, must_change_password)
		VALUES (?, ?, ?, ?)
	`, user.Username, user.PasswordHash, nullString(user.Email), user.MustChangePassword)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetUserByUsername returns nil without error when the user does not exist
func (db *DB) GetUserByUsername(username string) (*models.User, error) {
	return db.getUser("username = ?", username)
}

// GetUserByID returns nil without error when the user does not exist
func (db *DB) GetUserByID(id int64) (*models.User, error) {
	return db.getUser("id = ?", id)
}

func (db *DB) getUser(where string, arg interface{}) (*models.User, error) {
	var user models.User
	var email sql.NullString
	err := db.conn.QueryRow(`
		SELECT id, username, password_hash, email, must_change_password, created_at
		FROM users
		WHERE `+where, arg).Scan(&user.ID, &user.Username, &user.PasswordHash,
		&email, &user.MustChangePassword, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	user.Email = email.String
	return &user, nil
}

// UpdateUserPassword replaces the password hash and clears the
// must-change-password flag
func (db *DB) UpdateUserPassword(id int64, passwordHash string) error {
	_, err := db.conn.Exec(`
		UPDATE users
		SET password_hash = ?, must_change_password = 0, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, passwordHash, id)
	return err
}

// EnsureAdminUser creates the default admin account when it does not
// exist yet. The account is flagged to force a password change on first
// login.
func (db *DB) EnsureAdminUser(username, passwordHash string) (bool, error) {
	existing, err := db.GetUserByUsername(username)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}

	_, err = db.CreateUser(models.User{
		Username:           username,
		PasswordHash:       passwordHash,
		MustChangePassword: true,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
