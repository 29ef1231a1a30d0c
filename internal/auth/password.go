// Package auth implements password sign-in, credential re-verification and
// the JWT bearer tokens of the HTTP API.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gitlab.com/yelinaung/sharedbudget/internal/logger"
	"gitlab.com/yelinaung/sharedbudget/internal/models"
	"gitlab.com/yelinaung/sharedbudget/internal/normalize"
	"gitlab.com/yelinaung/sharedbudget/internal/store"
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// Registration is the sign-up form.
type Registration struct {
	Email    string
	Name     string
	Phone    string
	Password string
}

// PasswordAuthenticator implements password-based authentication using bcrypt.
type PasswordAuthenticator struct {
	users       store.UserStore
	countryCode string
	cost        int
}

// NewPasswordAuthenticator creates a new password-based authenticator. Phone
// numbers given at sign-up are normalized with countryCode.
func NewPasswordAuthenticator(users store.UserStore, countryCode string) *PasswordAuthenticator {
	return &PasswordAuthenticator{
		users:       users,
		countryCode: countryCode,
		cost:        bcrypt.DefaultCost,
	}
}

// ValidateCredential checks if the password meets minimum requirements.
func (a *PasswordAuthenticator) ValidateCredential(credential string) error {
	if len(credential) < MinPasswordLength {
		return models.ErrWeakPassword
	}
	return nil
}

// HashPassword validates and hashes a new password.
func (a *PasswordAuthenticator) HashPassword(credential string) (string, error) {
	if err := a.ValidateCredential(credential); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(credential), a.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// NormalizeEmail trims and validates an email address.
func NormalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: malformed email", models.ErrInvalidCredentials)
	}
	return email, nil
}

// Register creates a new account with an empty budget and no groups.
func (a *PasswordAuthenticator) Register(ctx context.Context, reg Registration) (*models.User, error) {
	email, err := NormalizeEmail(reg.Email)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(reg.Name)
	if name == "" {
		return nil, models.ErrEmptyName
	}

	hash, err := a.HashPassword(reg.Password)
	if err != nil {
		return nil, err
	}

	if _, err := a.users.GetUserByEmail(ctx, email); err == nil {
		return nil, models.ErrEmailExists
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}

	user := &models.User{
		ID:              uuid.NewString(),
		Name:            name,
		Phone:           normalize.NormalizePhoneNumberWithCode(reg.Phone, a.countryCode),
		Email:           email,
		PasswordHash:    hash,
		Income:          decimal.Zero,
		BudgetTotal:     decimal.Zero,
		RemainingBudget: decimal.Zero,
		Budget:          models.Budget{},
		GroupIDs:        []string{},
	}
	if err := a.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, models.ErrEmailExists) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	logger.Log.Info().Str("user", logger.HashUserID(user.ID)).Msg("User registered")
	return user, nil
}

// Authenticate verifies the email and password, returning the user if valid.
func (a *PasswordAuthenticator) Authenticate(ctx context.Context, email, credential string) (*models.User, error) {
	user, err := a.users.GetUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(credential)); err != nil {
		return nil, models.ErrInvalidCredentials
	}
	return user, nil
}

// Verify re-checks the password of an already signed-in user before a
// sensitive change.
func (a *PasswordAuthenticator) Verify(ctx context.Context, uid, credential string) (*models.User, error) {
	user, err := a.users.GetUser(ctx, uid)
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(credential)); err != nil {
		return nil, models.ErrInvalidCredentials
	}
	return user, nil
}
