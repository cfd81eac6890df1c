package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strings"

	"gorm.io/gorm"

	"github.com/davitran/hubsync/internal/models"
	"github.com/davitran/hubsync/pkg/crypto"
	apperrors "github.com/davitran/hubsync/pkg/errors"
)

const maxUsernameSuggestions = 5

var (
	// ErrUserNotFound indicates the requested account does not exist.
	ErrUserNotFound = apperrors.New("ACCOUNT_NOT_FOUND", "Account not found.", http.StatusBadRequest)
	// ErrDuplicateEmail signals an email uniqueness violation.
	ErrDuplicateEmail = apperrors.New("DUPLICATE_EMAIL", "An account with this email already exists.", http.StatusBadRequest)
	// ErrDuplicateUsername signals a username uniqueness violation.
	ErrDuplicateUsername = apperrors.New("USERNAME_TAKEN", "This username is already taken.", http.StatusBadRequest)
)

// CreateUserInput describes the fields accepted when creating an account.
type CreateUserInput struct {
	Email     string
	Username  string
	FirstName string
	LastName  string
	Password  string
}

// UserService is the store adapter for accounts. It owns hashing on write;
// the clear password never reaches the database.
type UserService struct {
	db *gorm.DB
}

// NewUserService constructs a UserService instance.
func NewUserService(db *gorm.DB) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}
	return &UserService{db: db}, nil
}

// Create provisions a new account with a hashed password. Accounts start
// active and unverified.
func (s *UserService) Create(ctx context.Context, input CreateUserInput) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	username := strings.TrimSpace(input.Username)
	if email == "" {
		return nil, apperrors.NewBadRequest("email is required")
	}
	if username == "" {
		return nil, apperrors.NewBadRequest("username is required")
	}
	if strings.TrimSpace(input.Password) == "" {
		return nil, apperrors.NewBadRequest("password is required")
	}

	hashed, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("user service: hash password: %w", err)
	}

	user := &models.User{
		Email:           email,
		Username:        username,
		FirstName:       strings.TrimSpace(input.FirstName),
		LastName:        strings.TrimSpace(input.LastName),
		Password:        hashed,
		IsActive:        true,
		IsEmailVerified: false,
	}

	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, s.classifyDuplicate(ctx, email, username)
		}
		return nil, fmt.Errorf("user service: create user: %w", err)
	}

	return user, nil
}

// GetByEmail loads an account by its case-normalised email.
func (s *UserService) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.first(ctx, "email = ?", strings.ToLower(strings.TrimSpace(email)))
}

// GetByID loads an account by identifier.
func (s *UserService) GetByID(ctx context.Context, id uint) (*models.User, error) {
	return s.first(ctx, "id = ?", id)
}

// GetByVerificationToken loads the account holding a pending verification token.
func (s *UserService) GetByVerificationToken(ctx context.Context, token string) (*models.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrUserNotFound
	}
	return s.first(ctx, "email_verification_token = ?", token)
}

// Update persists all mutable fields of the account.
func (s *UserService) Update(ctx context.Context, user *models.User) error {
	if err := s.db.WithContext(ctx).Save(user).Error; err != nil {
		return fmt.Errorf("user service: update user: %w", err)
	}
	return nil
}

// SetPassword replaces the password hash only.
func (s *UserService) SetPassword(ctx context.Context, user *models.User, plain string) error {
	hashed, err := crypto.HashPassword(plain)
	if err != nil {
		return fmt.Errorf("user service: hash password: %w", err)
	}

	if err := s.db.WithContext(ctx).
		Model(user).
		Update("password", hashed).Error; err != nil {
		return fmt.Errorf("user service: set password: %w", err)
	}

	user.Password = hashed
	return nil
}

// MarkEmailVerified flips the verified flag and clears the pending token.
func (s *UserService) MarkEmailVerified(ctx context.Context, user *models.User) error {
	if err := s.db.WithContext(ctx).
		Model(user).
		Updates(map[string]any{
			"is_email_verified":        true,
			"email_verification_token": nil,
		}).Error; err != nil {
		return fmt.Errorf("user service: mark verified: %w", err)
	}

	user.IsEmailVerified = true
	user.EmailVerificationToken = nil
	return nil
}

// SetVerificationToken stores a fresh pending verification token.
func (s *UserService) SetVerificationToken(ctx context.Context, user *models.User, token string) error {
	if err := s.db.WithContext(ctx).
		Model(user).
		Updates(map[string]any{
			"is_email_verified":        false,
			"email_verification_token": token,
		}).Error; err != nil {
		return fmt.Errorf("user service: set verification token: %w", err)
	}

	user.IsEmailVerified = false
	user.EmailVerificationToken = &token
	return nil
}

// UsernameTaken reports whether any account already holds the username.
func (s *UserService) UsernameTaken(ctx context.Context, username string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("username = ?", strings.TrimSpace(username)).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("user service: username lookup: %w", err)
	}
	return count > 0, nil
}

// EmailTaken reports whether any account already holds the email.
func (s *UserService) EmailTaken(ctx context.Context, email string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("user service: email lookup: %w", err)
	}
	return count > 0, nil
}

// SuggestUsernames proposes up to five alternatives for a taken username by
// appending a random 4-digit suffix, skipping any that collide.
func (s *UserService) SuggestUsernames(ctx context.Context, base string) ([]string, error) {
	suggestions := make([]string, 0, maxUsernameSuggestions)
	for i := 0; i < maxUsernameSuggestions; i++ {
		candidate := fmt.Sprintf("%s%d", base, 1000+rand.Intn(9000))

		taken, err := s.UsernameTaken(ctx, candidate)
		if err != nil {
			return nil, err
		}
		if !taken {
			suggestions = append(suggestions, candidate)
		}
	}
	return suggestions, nil
}

func (s *UserService) first(ctx context.Context, query string, args ...any) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where(query, args...).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user service: load user: %w", err)
	}
	return &user, nil
}

// classifyDuplicate resolves which uniqueness constraint tripped so the
// caller can report a field-scoped failure.
func (s *UserService) classifyDuplicate(ctx context.Context, email, username string) error {
	if taken, err := s.EmailTaken(ctx, email); err == nil && taken {
		return ErrDuplicateEmail
	}
	if taken, err := s.UsernameTaken(ctx, username); err == nil && taken {
		return ErrDuplicateUsername
	}
	return ErrDuplicateEmail
}
