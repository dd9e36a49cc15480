package repository

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"todoService/models"
)

const queryTimeout = 3 * time.Second

type UserRepository struct {
	db *sql.DB
	// now is replaceable in tests.
	now func() time.Time
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db, now: time.Now}
}

// Register inserts a new user. Usernames are compared exactly (case-sensitive);
// ErrDuplicateUsername is returned if the name is taken, including when a
// concurrent registration wins the race on the UNIQUE constraint.
func (r *UserRepository) Register(ctx context.Context, username, passwordHash string) (*models.User, error) {
	existing, err := r.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrDuplicateUsername
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	created := r.now().UTC().Truncate(time.Second)
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)`,
		username, passwordHash, created.Format(time.RFC3339))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateUsername
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return &models.User{ID: id, Username: username, PasswordHash: passwordHash, CreatedAt: &created}, nil
}

// FindByCredentials returns the user whose username and password hash both match
// exactly, or (nil, nil) when there is no such user.
func (r *UserRepository) FindByCredentials(ctx context.Context, username, passwordHash string) (*models.User, error) {
	u, err := r.GetByUsername(ctx, username)
	if err != nil || u == nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(u.PasswordHash), []byte(passwordHash)) != 1 {
		return nil, nil
	}
	return u, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	return r.getOne(ctx, `SELECT id, username, password_hash, created_at FROM users WHERE id = ?`, id)
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.getOne(ctx, `SELECT id, username, password_hash, created_at FROM users WHERE username = ?`, username)
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg any) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var (
		u       models.User
		created sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Username, &u.PasswordHash, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	if created.Valid {
		if t, err := time.Parse(time.RFC3339, created.String); err == nil {
			u.CreatedAt = &t
		}
	}
	return &u, nil
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
