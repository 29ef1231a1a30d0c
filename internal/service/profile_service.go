package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"gitlab.com/yelinaung/sharedbudget/internal/auth"
	"gitlab.com/yelinaung/sharedbudget/internal/logger"
	"gitlab.com/yelinaung/sharedbudget/internal/models"
	"gitlab.com/yelinaung/sharedbudget/internal/normalize"
	"gitlab.com/yelinaung/sharedbudget/internal/store"
)

// CredentialVerifier re-checks passwords and hashes new ones.
type CredentialVerifier interface {
	Verify(ctx context.Context, uid, credential string) (*models.User, error)
	HashPassword(credential string) (string, error)
}

// ProfileService edits identity fields and deletes accounts.
type ProfileService struct {
	users       store.UserStore
	creds       CredentialVerifier
	reconciler  *Reconciler
	groups      *GroupService
	countryCode string
}

// NewProfileService creates a ProfileService.
func NewProfileService(
	users store.UserStore,
	creds CredentialVerifier,
	reconciler *Reconciler,
	groups *GroupService,
	countryCode string,
) *ProfileService {
	return &ProfileService{
		users:       users,
		creds:       creds,
		reconciler:  reconciler,
		groups:      groups,
		countryCode: countryCode,
	}
}

// UpdateName re-checks the password, then renames the user and every copy of
// the name held by groups and shared budgets. The user record is updated even
// when some copies fail.
func (s *ProfileService) UpdateName(ctx context.Context, uid, credential, name string) (*models.User, CascadeResult, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, CascadeResult{}, models.ErrEmptyName
	}
	if _, err := s.creds.Verify(ctx, uid, credential); err != nil {
		return nil, CascadeResult{}, err
	}
	user, err := s.users.UpdateUser(ctx, uid, func(u *models.User) error {
		if u.Name == name {
			return store.ErrSkip
		}
		u.Name = name
		return nil
	})
	if err != nil {
		return nil, CascadeResult{}, err
	}
	result := s.reconciler.PropagateIdentityChange(ctx, uid, IdentityChange{Name: &name})
	return user, result, nil
}

// UpdatePhone changes the phone number the same way UpdateName changes the name.
func (s *ProfileService) UpdatePhone(ctx context.Context, uid, credential, phone string) (*models.User, CascadeResult, error) {
	if _, err := s.creds.Verify(ctx, uid, credential); err != nil {
		return nil, CascadeResult{}, err
	}
	phone = normalize.NormalizePhoneNumberWithCode(phone, s.countryCode)
	user, err := s.users.UpdateUser(ctx, uid, func(u *models.User) error {
		if u.Phone == phone {
			return store.ErrSkip
		}
		u.Phone = phone
		return nil
	})
	if err != nil {
		return nil, CascadeResult{}, err
	}
	result := s.reconciler.PropagateIdentityChange(ctx, uid, IdentityChange{Phone: &phone})
	logger.Log.Info().
		Str(logFieldUser, logger.HashUserID(uid)).
		Str("phone_hash", logger.HashPhone(phone)).
		Msg("Phone number changed")
	return user, result, nil
}

// UpdateEmail changes the sign-in email after re-checking the password.
func (s *ProfileService) UpdateEmail(ctx context.Context, uid, credential, email string) (*models.User, error) {
	email, err := auth.NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if _, err := s.creds.Verify(ctx, uid, credential); err != nil {
		return nil, err
	}

	if other, err := s.users.GetUserByEmail(ctx, email); err == nil && other.ID != uid {
		return nil, models.ErrEmailExists
	} else if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}

	return s.users.UpdateUser(ctx, uid, func(u *models.User) error {
		if u.Email == email {
			return store.ErrSkip
		}
		u.Email = email
		return nil
	})
}

// UpdatePassword replaces the password after re-checking the current one.
func (s *ProfileService) UpdatePassword(ctx context.Context, uid, current, next string) error {
	if _, err := s.creds.Verify(ctx, uid, current); err != nil {
		return err
	}
	hash, err := s.creds.HashPassword(next)
	if err != nil {
		return err
	}
	if _, err := s.users.UpdateUser(ctx, uid, func(u *models.User) error {
		u.PasswordHash = hash
		return nil
	}); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	logger.Log.Info().Str(logFieldUser, logger.HashUserID(uid)).Msg("Password changed")
	return nil
}

// UpdateProfilePicture stores a base64 encoded picture. An empty string
// removes it.
func (s *ProfileService) UpdateProfilePicture(ctx context.Context, uid, picture string) (*models.User, error) {
	picture = strings.TrimSpace(picture)
	if picture != "" {
		raw, err := base64.StdEncoding.DecodeString(picture)
		if err != nil {
			return nil, models.ErrInvalidPicture
		}
		if len(raw) > models.MaxProfilePictureBytes {
			return nil, models.ErrPictureTooLarge
		}
	}
	return s.users.UpdateUser(ctx, uid, func(u *models.User) error {
		if u.ProfilePictureBase64 == picture {
			return store.ErrSkip
		}
		u.ProfilePictureBase64 = picture
		return nil
	})
}

// DeleteAccount re-checks the password and deletes the identity with
// everything it owns.
func (s *ProfileService) DeleteAccount(ctx context.Context, uid, credential string) (CascadeResult, error) {
	if _, err := s.creds.Verify(ctx, uid, credential); err != nil {
		return CascadeResult{}, err
	}
	return s.groups.DeleteIdentity(ctx, uid)
}
