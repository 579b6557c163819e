package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"rental-backend/access"
	"rental-backend/models"
	"rental-backend/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUserService(t *testing.T) (*UserService, *recordingNotifier) {
	t.Helper()
	notes := &recordingNotifier{}
	svc := NewUserService(testutil.NewDB(t), notes, "https://api.example/", "https://app.example")
	return svc, notes
}

func registerInput(email string) RegisterInput {
	return RegisterInput{
		Email:            email,
		Password:         "s3cret-pass",
		FirstName:        "Giulia",
		LastName:         "Neri",
		HasAcceptedTerms: true,
	}
}

func TestRegisterSendsVerificationLink(t *testing.T) {
	svc, notes := newUserService(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, registerInput(" Giulia@Example.com "))
	require.NoError(t, err)
	assert.Equal(t, "giulia@example.com", u.Email)
	assert.Equal(t, "giulia@example.com", u.Username)
	assert.Equal(t, models.ProfilePendingExtraData, u.Status)
	assert.False(t, u.EmailVerified)
	assert.NotEqual(t, "s3cret-pass", u.Password)

	events := notes.Events()
	require.Len(t, events, 1)
	assert.True(t, strings.HasPrefix(events[0], "verify:giulia@example.com https://api.example/api/v1/auth/verify-email?token="))

	token := *u.VerificationToken
	require.NoError(t, svc.VerifyEmail(ctx, token))
	got, err := svc.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, got.EmailVerified)
	assert.Nil(t, got.VerificationToken)

	assert.Equal(t, KindNotFound, kindOf(t, svc.VerifyEmail(ctx, token)))
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newUserService(t)
	ctx := context.Background()

	in := registerInput("not-an-email")
	_, err := svc.Register(ctx, in)
	assert.Equal(t, KindValidation, kindOf(t, err))

	in = registerInput("a@example.com")
	in.Password = "short"
	_, err = svc.Register(ctx, in)
	assert.Equal(t, KindValidation, kindOf(t, err))

	in = registerInput("a@example.com")
	in.HasAcceptedTerms = false
	_, err = svc.Register(ctx, in)
	assert.Equal(t, KindValidation, kindOf(t, err))

	_, err = svc.Register(ctx, registerInput("a@example.com"))
	require.NoError(t, err)
	_, err = svc.Register(ctx, registerInput("a@example.com"))
	assert.Equal(t, KindConflict, kindOf(t, err))
}

func TestLoginAuthenticateLogout(t *testing.T) {
	svc, _ := newUserService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, registerInput("b@example.com"))
	require.NoError(t, err)

	_, err = svc.Login(ctx, "b@example.com", "wrong-password")
	assert.Equal(t, KindValidation, kindOf(t, err))
	_, err = svc.Login(ctx, "nobody@example.com", "s3cret-pass")
	assert.Equal(t, KindValidation, kindOf(t, err))

	login, err := svc.Login(ctx, "B@example.com", "s3cret-pass")
	require.NoError(t, err)
	require.NotEmpty(t, login.Token)

	u, err := svc.Authenticate(ctx, login.Token)
	require.NoError(t, err)
	assert.Equal(t, "b@example.com", u.Email)

	require.NoError(t, svc.Logout(ctx, login.Token))
	_, err = svc.Authenticate(ctx, login.Token)
	assert.Error(t, err)
}

func TestExpiredTokensArePurged(t *testing.T) {
	svc, _ := newUserService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, registerInput("c@example.com"))
	require.NoError(t, err)
	login, err := svc.Login(ctx, "c@example.com", "s3cret-pass")
	require.NoError(t, err)

	svc.Now = func() time.Time { return time.Now().UTC().Add(8 * 24 * time.Hour) }
	_, err = svc.Authenticate(ctx, login.Token)
	assert.Error(t, err)

	n, err := svc.PurgeExpiredTokens(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestDeactivateBlocksLogin(t *testing.T) {
	svc, _ := newUserService(t)
	ctx := context.Background()
	u, err := svc.Register(ctx, registerInput("d@example.com"))
	require.NoError(t, err)
	login, err := svc.Login(ctx, "d@example.com", "s3cret-pass")
	require.NoError(t, err)

	require.NoError(t, svc.Deactivate(ctx, u.ID))

	_, err = svc.Authenticate(ctx, login.Token)
	assert.Error(t, err)
	_, err = svc.Login(ctx, "d@example.com", "s3cret-pass")
	assert.Equal(t, KindForbidden, kindOf(t, err))
}

func TestUpdateUser(t *testing.T) {
	svc, _ := newUserService(t)
	ctx := context.Background()
	u, err := svc.Register(ctx, registerInput("e@example.com"))
	require.NoError(t, err)

	name, tel := "Marta", "+39 333 1234567"
	got, err := svc.Update(ctx, u.ID, UpdateUserInput{FirstName: &name, Telephone: &tel})
	require.NoError(t, err)
	assert.Equal(t, "Marta", got.FirstName)
	assert.Equal(t, "Neri", got.LastName)
	require.NotNil(t, got.Telephone)
	assert.Equal(t, tel, *got.Telephone)

	empty := " "
	_, err = svc.Update(ctx, u.ID, UpdateUserInput{Username: &empty})
	assert.Equal(t, KindValidation, kindOf(t, err))

	_, err = svc.Update(ctx, 999, UpdateUserInput{FirstName: &name})
	assert.Equal(t, KindNotFound, kindOf(t, err))
}

func TestCompleteProfile(t *testing.T) {
	svc, _ := newUserService(t)
	ctx := context.Background()
	u, err := svc.Register(ctx, registerInput("f@example.com"))
	require.NoError(t, err)
	p := access.FromUser(*u)

	_, err = svc.CompleteProfile(ctx, p, CompleteProfileInput{FirstName: "Franca"})
	var appErr *AppError
	require.ErrorAs(t, err, &appErr)
	assert.Contains(t, appErr.Fields, "last_name")
	assert.Contains(t, appErr.Fields, "telephone")

	got, err := svc.CompleteProfile(ctx, p, CompleteProfileInput{FirstName: "Franca", LastName: "Blu", Telephone: "+39 320 000000"})
	require.NoError(t, err)
	assert.Equal(t, models.ProfileComplete, got.Status)

	_, err = svc.CompleteProfile(ctx, p, CompleteProfileInput{FirstName: "Franca", LastName: "Blu", Telephone: "+39 320 000000"})
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "The User: f@example.com, has already completed his profile", appErr.Message)

	_, err = svc.CompleteProfile(ctx, access.Anonymous, CompleteProfileInput{})
	assert.Equal(t, KindForbidden, kindOf(t, err))
}

func TestListUsersSearch(t *testing.T) {
	svc, _ := newUserService(t)
	ctx := context.Background()
	for _, e := range []string{"anna@example.com", "bruno@example.com", "carla@example.com"} {
		_, err := svc.Register(ctx, registerInput(e))
		require.NoError(t, err)
	}

	rows, total, err := svc.List(ctx, ListParams{Search: "BRU"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, rows, 1)
	assert.Equal(t, "bruno@example.com", rows[0].Email)

	rows, total, err = svc.List(ctx, ListParams{Ordering: "-email", PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, rows, 2)
	assert.Equal(t, "carla@example.com", rows[0].Email)
}
