package impl

import (
	"context"
	"testing"
	"time"

	"accounts/internal/domain/entity"
	domainerrors "accounts/internal/domain/errors"
	"accounts/internal/domain/repository"
	"accounts/internal/usecase"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestUserService_RegisterUser_Success(t *testing.T) {
	fx := createTestUserService(t)
	ctx := context.Background()

	fx.userRepo.EXPECT().FindByEmail(mock.Anything, "ann@x.io").Return(nil, repository.ErrUserNotFound)
	fx.hasher.EXPECT().Hash(mock.Anything, "pw1").Return("$2a$10$hashed", nil)
	fx.userRepo.EXPECT().
		Create(mock.Anything, mock.AnythingOfType("*entity.User")).
		Run(func(_ context.Context, user *entity.User) {
			user.ID = uuid.New()
		}).
		Return(nil)

	out, err := fx.service.RegisterUser(ctx, &usecase.RegisterUserInput{
		Name:     "Ann",
		Email:    "ann@x.io",
		Password: "pw1",
	})

	require.NoError(t, err)
	require.NotNil(t, out.User)
	assert.NotEqual(t, uuid.Nil, out.User.ID)
	assert.Equal(t, "Ann", out.User.Name)
	assert.Equal(t, "$2a$10$hashed", out.User.PasswordHash)
	assert.NotEqual(t, "pw1", out.User.PasswordHash)
}

func TestUserService_RegisterUser_NormalizesInput(t *testing.T) {
	fx := createTestUserService(t)

	fx.userRepo.EXPECT().FindByEmail(mock.Anything, "ann@x.io").Return(nil, repository.ErrUserNotFound)
	fx.hasher.EXPECT().Hash(mock.Anything, " pw1 ").Return("hashed", nil)
	fx.userRepo.EXPECT().
		Create(mock.Anything, mock.MatchedBy(func(user *entity.User) bool {
			return user.Email == "ann@x.io" && user.Name == "Ann"
		})).
		Return(nil)

	_, err := fx.service.RegisterUser(context.Background(), &usecase.RegisterUserInput{
		Name:     "  Ann ",
		Email:    " Ann@X.io ",
		Password: " pw1 ",
	})
	require.NoError(t, err)
}

func TestUserService_RegisterUser_MissingFields(t *testing.T) {
	tests := []struct {
		name    string
		input   usecase.RegisterUserInput
		missing string
	}{
		{"all missing", usecase.RegisterUserInput{}, "missing: name, email, password"},
		{"no name", usecase.RegisterUserInput{Email: "ann@x.io", Password: "pw1"}, "missing: name"},
		{"blank name", usecase.RegisterUserInput{Name: "   ", Email: "ann@x.io", Password: "pw1"}, "missing: name"},
		{"no email", usecase.RegisterUserInput{Name: "Ann", Password: "pw1"}, "missing: email"},
		{"no password", usecase.RegisterUserInput{Name: "Ann", Email: "ann@x.io"}, "missing: password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := createTestUserService(t)

			out, err := fx.service.RegisterUser(context.Background(), &tt.input)
			require.Error(t, err)
			assert.Nil(t, out)
			assert.True(t, errors.Is(err, domainerrors.ErrMissingFields))

			var appErr domainerrors.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, tt.missing, appErr.Details())
		})
	}
}

func TestUserService_RegisterUser_EmailTaken(t *testing.T) {
	fx := createTestUserService(t)

	fx.userRepo.EXPECT().FindByEmail(mock.Anything, "ann@x.io").Return(&entity.User{ID: uuid.New(), Email: "ann@x.io"}, nil)

	out, err := fx.service.RegisterUser(context.Background(), &usecase.RegisterUserInput{
		Name:     "Ann",
		Email:    "ann@x.io",
		Password: "pw2",
	})

	assert.Nil(t, out)
	assert.True(t, errors.Is(err, domainerrors.ErrUserAlreadyExists))
	fx.hasher.AssertNotCalled(t, "Hash", mock.Anything, mock.Anything)
	fx.userRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestUserService_RegisterUser_LostRaceOnCreate(t *testing.T) {
	fx := createTestUserService(t)

	fx.userRepo.EXPECT().FindByEmail(mock.Anything, "ann@x.io").Return(nil, repository.ErrUserNotFound)
	fx.hasher.EXPECT().Hash(mock.Anything, "pw1").Return("hashed", nil)
	fx.userRepo.EXPECT().Create(mock.Anything, mock.Anything).
		Return(domainerrors.ErrUserAlreadyExists.WrapMessage("email already exists"))

	_, err := fx.service.RegisterUser(context.Background(), &usecase.RegisterUserInput{
		Name:     "Ann",
		Email:    "ann@x.io",
		Password: "pw1",
	})

	assert.True(t, errors.Is(err, domainerrors.ErrUserAlreadyExists))
}

func TestUserService_RegisterUser_LookupFails(t *testing.T) {
	fx := createTestUserService(t)

	dbErr := domainerrors.NewDatabaseExecuteError(errors.New("connection refused"), "find user")
	fx.userRepo.EXPECT().FindByEmail(mock.Anything, "ann@x.io").Return(nil, dbErr)

	_, err := fx.service.RegisterUser(context.Background(), &usecase.RegisterUserInput{
		Name:     "Ann",
		Email:    "ann@x.io",
		Password: "pw1",
	})

	require.Error(t, err)
	assert.False(t, errors.Is(err, domainerrors.ErrUserAlreadyExists))

	var appErr domainerrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, 500, appErr.HTTPCode())
}

func TestUserService_RegisterUser_HashFails(t *testing.T) {
	fx := createTestUserService(t)

	fx.userRepo.EXPECT().FindByEmail(mock.Anything, "ann@x.io").Return(nil, repository.ErrUserNotFound)
	fx.hasher.EXPECT().Hash(mock.Anything, "pw1").Return("", errors.New("entropy exhausted"))

	_, err := fx.service.RegisterUser(context.Background(), &usecase.RegisterUserInput{
		Name:     "Ann",
		Email:    "ann@x.io",
		Password: "pw1",
	})

	assert.True(t, errors.Is(err, domainerrors.ErrPasswordHashFailed))
	fx.userRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestUserService_RegisterUser_PasswordTooLong(t *testing.T) {
	fx := createTestUserService(t)

	fx.userRepo.EXPECT().FindByEmail(mock.Anything, "ann@x.io").Return(nil, repository.ErrUserNotFound)
	fx.hasher.EXPECT().Hash(mock.Anything, mock.Anything).
		Return("", domainerrors.ErrPasswordTooLong.WrapMessage("hash password"))

	_, err := fx.service.RegisterUser(context.Background(), &usecase.RegisterUserInput{
		Name:     "Ann",
		Email:    "ann@x.io",
		Password: "long",
	})

	assert.True(t, errors.Is(err, domainerrors.ErrPasswordTooLong))
}

func TestUserService_Login_Success(t *testing.T) {
	fx := createTestUserService(t)

	user := &entity.User{ID: uuid.New(), Name: "Ann", Email: "ann@x.io", PasswordHash: "stored-hash"}
	now := time.Now()
	session := &entity.Session{Token: "signed.jwt.token", Subject: user.ID, IssuedAt: now, ExpiresAt: now.Add(time.Hour)}

	fx.userRepo.EXPECT().FindByEmail(mock.Anything, "ann@x.io").Return(user, nil)
	fx.hasher.EXPECT().Check(mock.Anything, "pw1", "stored-hash").Return(true)
	fx.tokenService.EXPECT().Issue(user.ID).Return(session, nil)

	out, err := fx.service.Login(context.Background(), &usecase.LoginInput{Email: "Ann@x.io", Password: "pw1"})

	require.NoError(t, err)
	assert.Equal(t, session, out.Session)
	assert.Equal(t, user, out.User)
}

func TestUserService_Login_WrongPasswordAndUnknownEmailAreIdentical(t *testing.T) {
	user := &entity.User{ID: uuid.New(), Email: "ann@x.io", PasswordHash: "stored-hash"}

	wrongPassword := func(t *testing.T) error {
		fx := createTestUserService(t)
		fx.userRepo.EXPECT().FindByEmail(mock.Anything, "ann@x.io").Return(user, nil)
		fx.hasher.EXPECT().Check(mock.Anything, "bad", "stored-hash").Return(false)

		_, err := fx.service.Login(context.Background(), &usecase.LoginInput{Email: "ann@x.io", Password: "bad"})
		fx.tokenService.AssertNotCalled(t, "Issue", mock.Anything)

		return err
	}

	unknownEmail := func(t *testing.T) error {
		fx := createTestUserService(t)
		fx.userRepo.EXPECT().FindByEmail(mock.Anything, "nobody@x.io").Return(nil, repository.ErrUserNotFound)
		// The comparison still runs, against the guard hash.
		fx.hasher.EXPECT().Check(mock.Anything, "pw1", "").Return(false)

		_, err := fx.service.Login(context.Background(), &usecase.LoginInput{Email: "nobody@x.io", Password: "pw1"})
		fx.tokenService.AssertNotCalled(t, "Issue", mock.Anything)

		return err
	}

	errWrong := wrongPassword(t)
	errUnknown := unknownEmail(t)

	require.Error(t, errWrong)
	require.Error(t, errUnknown)
	assert.True(t, errors.Is(errWrong, domainerrors.ErrInvalidCredentials))
	assert.True(t, errors.Is(errUnknown, domainerrors.ErrInvalidCredentials))
	assert.Equal(t, errWrong.Error(), errUnknown.Error())

	var a, b domainerrors.AppError
	require.True(t, errors.As(errWrong, &a))
	require.True(t, errors.As(errUnknown, &b))
	assert.Equal(t, a.HTTPCode(), b.HTTPCode())
	assert.Equal(t, a.ErrorCode(), b.ErrorCode())
	assert.Equal(t, a.Message(), b.Message())
}

func TestUserService_Login_MissingFields(t *testing.T) {
	fx := createTestUserService(t)

	_, err := fx.service.Login(context.Background(), &usecase.LoginInput{Email: "ann@x.io"})

	assert.True(t, errors.Is(err, domainerrors.ErrMissingFields))
	fx.userRepo.AssertNotCalled(t, "FindByEmail", mock.Anything, mock.Anything)
}

func TestUserService_Login_LookupFails(t *testing.T) {
	fx := createTestUserService(t)

	fx.userRepo.EXPECT().FindByEmail(mock.Anything, "ann@x.io").
		Return(nil, domainerrors.NewDatabaseExecuteError(errors.New("timeout"), "find user"))

	_, err := fx.service.Login(context.Background(), &usecase.LoginInput{Email: "ann@x.io", Password: "pw1"})

	require.Error(t, err)
	assert.False(t, errors.Is(err, domainerrors.ErrInvalidCredentials), "infrastructure failures are not reported as bad credentials")
}

func TestUserService_Login_TokenIssueFails(t *testing.T) {
	fx := createTestUserService(t)
	user := &entity.User{ID: uuid.New(), Email: "ann@x.io", PasswordHash: "stored-hash"}

	fx.userRepo.EXPECT().FindByEmail(mock.Anything, "ann@x.io").Return(user, nil)
	fx.hasher.EXPECT().Check(mock.Anything, "pw1", "stored-hash").Return(true)
	fx.tokenService.EXPECT().Issue(user.ID).Return(nil, errors.New("signing failed"))

	_, err := fx.service.Login(context.Background(), &usecase.LoginInput{Email: "ann@x.io", Password: "pw1"})

	assert.True(t, errors.Is(err, domainerrors.ErrTokenIssueFailed))
}

func TestUserService_Login_CancelledContext(t *testing.T) {
	fx := createTestUserService(t)
	user := &entity.User{ID: uuid.New(), Email: "ann@x.io", PasswordHash: "stored-hash"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fx.userRepo.EXPECT().FindByEmail(mock.Anything, "ann@x.io").Return(user, nil)
	fx.hasher.EXPECT().Check(mock.Anything, "pw1", "stored-hash").Return(false)

	_, err := fx.service.Login(ctx, &usecase.LoginInput{Email: "ann@x.io", Password: "pw1"})

	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, errors.Is(err, domainerrors.ErrInvalidCredentials))
}

func TestUserService_GetProfile(t *testing.T) {
	fx := createTestUserService(t)
	user := &entity.User{ID: uuid.New(), Name: "Ann", Email: "ann@x.io"}

	fx.userRepo.EXPECT().FindByID(mock.Anything, user.ID).Return(user, nil)

	got, err := fx.service.GetProfile(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, user, got)
}

func TestUserService_GetProfile_NotFound(t *testing.T) {
	fx := createTestUserService(t)
	id := uuid.New()

	fx.userRepo.EXPECT().FindByID(mock.Anything, id).Return(nil, repository.ErrUserNotFound)

	_, err := fx.service.GetProfile(context.Background(), id)
	assert.True(t, errors.Is(err, domainerrors.ErrUserNotFound))
}
