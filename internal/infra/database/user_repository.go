package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ib_reminder_service/internal/domain/user"
)

// Custom errors
var ErrUserNotFound = fmt.Errorf("user not found")
var ErrDuplicateEmail = fmt.Errorf("user with this email already exists")

const userColumns = `id, email, role, password_hash, telegram_chat_id, created_at`

type UserRepository struct {
	db *Conn
}

func NewUserRepository(db *Conn) *UserRepository {
	return &UserRepository{db: db}
}

func scanUser(row rowScanner) (*user.User, error) {
	u := &user.User{}
	if err := row.Scan(&u.ID, &u.Email, &u.Role, &u.PasswordHash, &u.TelegramChatID, &u.CreatedAt); err != nil {
		return nil, err
	}
	return u, nil
}

func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	u.Email = user.NormalizeEmail(u.Email)
	if u.CreatedAt == "" {
		u.CreatedAt = now()
	}
	query := `INSERT INTO users (email, role, password_hash, telegram_chat_id, created_at)
               VALUES ($1, $2, $3, $4, $5)
               RETURNING id`
	err := r.db.QueryRowContext(ctx, query, u.Email, string(u.Role), u.PasswordHash, u.TelegramChatID, u.CreatedAt).Scan(&u.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("error creating user: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*user.User, error) {
	return r.getOne(ctx, "ID", `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	return r.getOne(ctx, "email", `SELECT `+userColumns+` FROM users WHERE email = $1`, user.NormalizeEmail(email))
}

func (r *UserRepository) GetByTelegramChatID(ctx context.Context, chatID string) (*user.User, error) {
	if chatID == "" {
		return nil, ErrUserNotFound
	}
	return r.getOne(ctx, "telegram chat ID", `SELECT `+userColumns+` FROM users WHERE telegram_chat_id = $1 ORDER BY id LIMIT 1`, chatID)
}

func (r *UserRepository) getOne(ctx context.Context, by, query string, arg any) (*user.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("error getting user by %s: %w", by, err)
	}
	return u, nil
}

func (r *UserRepository) Update(ctx context.Context, u *user.User) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET role = $1, telegram_chat_id = $2 WHERE id = $3`,
		string(u.Role), u.TelegramChatID, u.ID)
	if err != nil {
		return fmt.Errorf("error updating user: %w", err)
	}
	return requireRow(res, ErrUserNotFound)
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET password_hash = $1 WHERE id = $2`, passwordHash, id)
	if err != nil {
		return fmt.Errorf("error updating user password: %w", err)
	}
	return requireRow(res, ErrUserNotFound)
}

func (r *UserRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("error deleting user: %w", err)
	}
	return requireRow(res, ErrUserNotFound)
}

func (r *UserRepository) ListAll(ctx context.Context) ([]*user.User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("error listing users: %w", err)
	}
	defer rows.Close()

	users := make([]*user.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning user: %w", err)
		}
		users = append(users, u)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return users, nil
}
