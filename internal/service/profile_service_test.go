package service

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"gitlab.com/yelinaung/sharedbudget/internal/models"
	"gitlab.com/yelinaung/sharedbudget/internal/store"
)

const testPassword = "correct horse"

// plainVerifier accepts testPassword for everyone and "hashes" by prefixing.
type plainVerifier struct {
	users store.UserStore
}

func (v plainVerifier) Verify(ctx context.Context, uid, credential string) (*models.User, error) {
	u, err := v.users.GetUser(ctx, uid)
	if err != nil {
		return nil, err
	}
	if credential != testPassword {
		return nil, models.ErrInvalidCredentials
	}
	return u, nil
}

func (plainVerifier) HashPassword(credential string) (string, error) {
	if len(credential) < 8 {
		return "", models.ErrWeakPassword
	}
	return "hashed:" + credential, nil
}

func newProfileEnv(t *testing.T) (*testEnv, *ProfileService, *models.Group) {
	t.Helper()
	env, groups, g := newGroupEnv(t)
	svc := NewProfileService(env.store, plainVerifier{users: env.store}, NewReconciler(env.store, env.hub), groups, "358")
	return env, svc, g
}

func TestProfileService_UpdateName(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("wrong password changes nothing", func(t *testing.T) {
		t.Parallel()
		env, svc, _ := newProfileEnv(t)

		_, _, err := svc.UpdateName(ctx, "m1", "guess", "Mallory")
		require.ErrorIs(t, err, models.ErrInvalidCredentials)
		require.Equal(t, "Mika", env.user(t, "m1").Name)
	})

	t.Run("blank name is rejected", func(t *testing.T) {
		t.Parallel()
		_, svc, _ := newProfileEnv(t)

		_, _, err := svc.UpdateName(ctx, "m1", testPassword, "  ")
		require.ErrorIs(t, err, models.ErrEmptyName)
	})

	t.Run("propagates to member records and snapshots", func(t *testing.T) {
		t.Parallel()
		env, svc, g := newProfileEnv(t)
		sb, err := NewSharingService(env.store).Share(ctx, "m1", g.ID)
		require.NoError(t, err)

		u, result, err := svc.UpdateName(ctx, "m1", testPassword, " Mikaela ")
		require.NoError(t, err)
		require.True(t, result.OK())
		require.Equal(t, "Mikaela", u.Name)

		grp := env.group(t, g.ID)
		require.Equal(t, "Mikaela", grp.Members[grp.MemberIndex("m1")].Name)
		got, err := env.store.GetSharedBudget(ctx, sb.ID)
		require.NoError(t, err)
		require.Equal(t, "Mikaela", got.UserName)
	})
}

func TestProfileService_UpdatePhone(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env, svc, g := newProfileEnv(t)

	u, result, err := svc.UpdatePhone(ctx, "m2", testPassword, "040 555 1234")
	require.NoError(t, err)
	require.True(t, result.OK())
	require.Equal(t, "358405551234", u.Phone)

	grp := env.group(t, g.ID)
	require.Equal(t, "358405551234", grp.Members[grp.MemberIndex("m2")].Phone)
}

func TestProfileService_Credentials(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env, svc, _ := newProfileEnv(t)

	t.Run("email", func(t *testing.T) {
		_, err := svc.UpdateEmail(ctx, "m1", testPassword, "not an email")
		require.ErrorIs(t, err, models.ErrInvalidCredentials)

		_, err = svc.UpdateEmail(ctx, "m1", testPassword, "m2@example.com")
		require.ErrorIs(t, err, models.ErrEmailExists)

		u, err := svc.UpdateEmail(ctx, "m1", testPassword, "mika@example.com")
		require.NoError(t, err)
		require.Equal(t, "mika@example.com", u.Email)
	})

	t.Run("password", func(t *testing.T) {
		require.ErrorIs(t, svc.UpdatePassword(ctx, "m1", "wrong", "new password"), models.ErrInvalidCredentials)
		require.ErrorIs(t, svc.UpdatePassword(ctx, "m1", testPassword, "short"), models.ErrWeakPassword)
		require.NoError(t, svc.UpdatePassword(ctx, "m1", testPassword, "new password"))
		require.Equal(t, "hashed:new password", env.user(t, "m1").PasswordHash)
	})
}

func TestProfileService_UpdateProfilePicture(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env, svc, _ := newProfileEnv(t)

	_, err := svc.UpdateProfilePicture(ctx, "m1", "%%% not base64 %%%")
	require.ErrorIs(t, err, models.ErrInvalidPicture)

	huge := base64.StdEncoding.EncodeToString([]byte(strings.Repeat("x", models.MaxProfilePictureBytes+1)))
	_, err = svc.UpdateProfilePicture(ctx, "m1", huge)
	require.ErrorIs(t, err, models.ErrPictureTooLarge)

	pic := base64.StdEncoding.EncodeToString([]byte("\x89PNG"))
	u, err := svc.UpdateProfilePicture(ctx, "m1", pic)
	require.NoError(t, err)
	require.Equal(t, pic, u.ProfilePictureBase64)

	u, err = svc.UpdateProfilePicture(ctx, "m1", "")
	require.NoError(t, err)
	require.Empty(t, u.ProfilePictureBase64)
	require.Empty(t, env.user(t, "m1").ProfilePictureBase64)
}

func TestProfileService_DeleteAccount(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env, svc, g := newProfileEnv(t)

	_, err := svc.DeleteAccount(ctx, "owner", "wrong")
	require.ErrorIs(t, err, models.ErrInvalidCredentials)
	env.user(t, "owner")

	result, err := svc.DeleteAccount(ctx, "owner", testPassword)
	require.NoError(t, err)
	require.True(t, result.OK())
	_, err = env.store.GetUser(ctx, "owner")
	require.ErrorIs(t, err, models.ErrNotFound)
	require.Equal(t, "m1", env.group(t, g.ID).Owner)
}
