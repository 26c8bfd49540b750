package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"ib_reminder_service/internal/domain/user"
	idb "ib_reminder_service/internal/infra/database" // Custom errors like ErrUserNotFound are here

	"golang.org/x/crypto/bcrypt"
)

// Custom application-level errors
var ErrNotAuthorized = fmt.Errorf("caller is not allowed to perform this action")
var ErrInvalidRole = fmt.Errorf("invalid role")
var ErrCannotDeleteSelf = fmt.Errorf("you cannot delete your own account")
var ErrEmailRequired = fmt.Errorf("email is required")
var ErrPasswordRequired = fmt.Errorf("password is required")
var ErrInvalidCredentials = fmt.Errorf("invalid email or password")

const (
	generatedPasswordLength   = 14
	generatedPasswordAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%"
)

// NewUserInput carries the fields of a user created by an admin.
type NewUserInput struct {
	Email          string
	Role           user.Role
	Password       string
	TelegramChatID string
}

// TeamMember is the public view of a user used to pick target assignees.
type TeamMember struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
}

type AdminService struct {
	userRepo user.Repository
}

func NewAdminService(ur user.Repository) *AdminService {
	return &AdminService{userRepo: ur}
}

func requireAdmin(caller *user.User) error {
	if caller == nil || caller.Role != user.RoleAdmin {
		return ErrNotAuthorized
	}
	return nil
}

// Login checks the password of email and returns the user.
func (s *AdminService) Login(ctx context.Context, email, password string) (*user.User, error) {
	email = user.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	u, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, idb.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if u.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// Identify resolves the caller from an email header value.
func (s *AdminService) Identify(ctx context.Context, email string) (*user.User, error) {
	email = user.NormalizeEmail(email)
	if email == "" {
		return nil, idb.ErrUserNotFound
	}
	return s.userRepo.GetByEmail(ctx, email)
}

// TeamMembers lists every user's email, ordered by email.
func (s *AdminService) TeamMembers(ctx context.Context) ([]TeamMember, error) {
	users, err := s.userRepo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	members := make([]TeamMember, 0, len(users))
	for _, u := range users {
		members = append(members, TeamMember{ID: u.ID, Email: u.Email})
	}
	sort.Slice(members, func(i, j int) bool { return members[i].Email < members[j].Email })
	return members, nil
}

func (s *AdminService) ListUsers(ctx context.Context, caller *user.User) ([]*user.User, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	users, err := s.userRepo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// AddUser creates a user with a bcrypt-hashed password.
func (s *AdminService) AddUser(ctx context.Context, caller *user.User, in NewUserInput) (*user.User, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	email := user.NormalizeEmail(in.Email)
	if email == "" {
		return nil, ErrEmailRequired
	}
	if in.Role == "" {
		in.Role = user.RoleIB
	}
	if !in.Role.Valid() {
		return nil, ErrInvalidRole
	}
	password := strings.TrimSpace(in.Password)
	if password == "" {
		return nil, ErrPasswordRequired
	}
	hash, err := hashPassword(password)
	if err != nil {
		return nil, err
	}

	u := &user.User{
		Email:          email,
		Role:           in.Role,
		PasswordHash:   hash,
		TelegramChatID: strings.TrimSpace(in.TelegramChatID),
	}
	if err := s.userRepo.Create(ctx, u); err != nil {
		if errors.Is(err, idb.ErrDuplicateEmail) {
			return nil, idb.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("failed to create user in repository: %w", err)
	}
	return u, nil
}

// UpdateUser changes the role and chat id of a user.
func (s *AdminService) UpdateUser(ctx context.Context, caller *user.User, id int64, role user.Role, chatID string) (*user.User, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	if role == "" {
		role = user.RoleIB
	}
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	target, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	target.Role = role
	target.TelegramChatID = strings.TrimSpace(chatID)
	if err := s.userRepo.Update(ctx, target); err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return target, nil
}

func (s *AdminService) DeleteUser(ctx context.Context, caller *user.User, id int64) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}
	target, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if target.Email == caller.Email {
		return ErrCannotDeleteSelf
	}
	return s.userRepo.Delete(ctx, id)
}

func (s *AdminService) ResetPassword(ctx context.Context, caller *user.User, id int64, password string) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}
	password = strings.TrimSpace(password)
	if password == "" {
		return ErrPasswordRequired
	}
	hash, err := hashPassword(password)
	if err != nil {
		return err
	}
	return s.userRepo.UpdatePassword(ctx, id, hash)
}

// GeneratePassword returns a random password for an admin to hand out.
func (s *AdminService) GeneratePassword(caller *user.User) (string, error) {
	if err := requireAdmin(caller); err != nil {
		return "", err
	}
	return generatePassword(generatedPasswordLength)
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func generatePassword(n int) (string, error) {
	max := big.NewInt(int64(len(generatedPasswordAlphabet)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate password: %w", err)
		}
		b[i] = generatedPasswordAlphabet[idx.Int64()]
	}
	return string(b), nil
}
