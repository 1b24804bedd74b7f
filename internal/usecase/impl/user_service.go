// Package impl contains the implementation of the application's business logic.
package impl

import (
	"context"
	"log/slog"
	"reflect"
	"strings"

	deliverycontext "accounts/internal/delivery/context"
	"accounts/internal/domain/entity"
	domainerrors "accounts/internal/domain/errors"
	"accounts/internal/domain/repository"
	"accounts/internal/domain/service"
	"accounts/internal/infra/metrics"
	"accounts/internal/usecase"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/fx"
)

// userService implements the UserUsecase interface.
type userService struct {
	userRepo     repository.UserRepository
	hasher       service.PasswordHasher
	tokenService service.TokenService
	validate     *validator.Validate
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

// UserServiceParams holds dependencies for UserService, injected by Fx.
type UserServiceParams struct {
	fx.In

	UserRepo     repository.UserRepository
	Hasher       service.PasswordHasher
	TokenService service.TokenService
	Metrics      *metrics.Metrics `optional:"true"`
	Logger       *slog.Logger
}

// NewUserService is the constructor for userService. It receives all dependencies as interfaces.
func NewUserService(params UserServiceParams) usecase.UserUsecase {
	return &userService{
		userRepo:     params.UserRepo,
		hasher:       params.Hasher,
		tokenService: params.TokenService,
		validate:     newInputValidator(),
		metrics:      params.Metrics,
		logger:       params.Logger,
	}
}

// newInputValidator reports field names as they appear in JSON.
func newInputValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return field.Name
		}

		return name
	})

	return v
}

// log returns a request-scoped logger if available, otherwise falls back to the service's logger.
func (srv *userService) log(ctx context.Context) *slog.Logger {
	return deliverycontext.GetLoggerOrDefault(ctx, srv.logger)
}

// RegisterUser validates the input, rejects known emails, hashes the password
// and stores the new account.
func (srv *userService) RegisterUser(ctx context.Context, input *usecase.RegisterUserInput) (*usecase.RegisterOutput, error) {
	normalized := &usecase.RegisterUserInput{
		Name:     strings.TrimSpace(input.Name),
		Email:    normalizeEmail(input.Email),
		Password: input.Password,
	}

	if err := srv.validateInput(normalized); err != nil {
		srv.metrics.RecordRegistration(metrics.OutcomeInvalidInput)

		return nil, err
	}

	srv.log(ctx).Debug("Starting registration", slog.String("email", normalized.Email))

	_, err := srv.userRepo.FindByEmail(ctx, normalized.Email)
	switch {
	case err == nil:
		srv.metrics.RecordRegistration(metrics.OutcomeConflict)
		srv.log(ctx).Info("Registration rejected, email taken", slog.String("email", normalized.Email))

		return nil, domainerrors.ErrUserAlreadyExists.WrapMessage("register user")
	case !errors.Is(err, repository.ErrUserNotFound):
		return nil, srv.registrationFailed(ctx, normalized.Email, errors.Wrap(err, "failed to find user by email"))
	}

	passwordHash, err := srv.hasher.Hash(ctx, normalized.Password)
	if err != nil {
		if errors.Is(err, domainerrors.ErrPasswordTooLong) {
			srv.metrics.RecordRegistration(metrics.OutcomeInvalidInput)

			return nil, err
		}

		return nil, srv.registrationFailed(ctx, normalized.Email, errors.Wrap(domainerrors.ErrPasswordHashFailed, err.Error()))
	}

	user := &entity.User{
		Name:         normalized.Name,
		Email:        normalized.Email,
		PasswordHash: passwordHash,
	}

	if err := srv.userRepo.Create(ctx, user); err != nil {
		// A concurrent registration may have taken the email since the lookup.
		if errors.Is(err, domainerrors.ErrUserAlreadyExists) {
			srv.metrics.RecordRegistration(metrics.OutcomeConflict)
			srv.log(ctx).Info("Registration rejected, email taken", slog.String("email", normalized.Email))

			return nil, errors.Wrap(err, "register user")
		}

		return nil, srv.registrationFailed(ctx, normalized.Email, errors.Wrap(err, "failed to create user"))
	}

	srv.metrics.RecordRegistration(metrics.OutcomeSuccess)
	srv.log(ctx).Info("User registered", slog.Any("userID", user.ID))

	return &usecase.RegisterOutput{User: user}, nil
}

func (srv *userService) registrationFailed(ctx context.Context, email string, err error) error {
	srv.metrics.RecordRegistration(metrics.OutcomeError)
	srv.log(ctx).Error("Registration failed", slog.String("email", email), slog.Any("error", err))

	return err
}

// Login verifies the credentials and issues a session token.
func (srv *userService) Login(ctx context.Context, input *usecase.LoginInput) (*usecase.LoginOutput, error) {
	normalized := &usecase.LoginInput{
		Email:    normalizeEmail(input.Email),
		Password: input.Password,
	}

	if err := srv.validateInput(normalized); err != nil {
		srv.metrics.RecordLogin(metrics.OutcomeInvalidInput)

		return nil, err
	}

	srv.log(ctx).Debug("Starting user login", slog.String("email", normalized.Email))

	user, err := srv.userRepo.FindByEmail(ctx, normalized.Email)
	if err != nil && !errors.Is(err, repository.ErrUserNotFound) {
		srv.metrics.RecordLogin(metrics.OutcomeError)
		srv.log(ctx).Error("Login failed", slog.String("email", normalized.Email), slog.Any("error", err))

		return nil, errors.Wrap(err, "failed to find user by email")
	}

	// For unknown emails the empty hash makes the hasher compare against its
	// guard hash, so both failure paths take the same time.
	var passwordHash string
	if user != nil {
		passwordHash = user.PasswordHash
	}
	matched := srv.hasher.Check(ctx, normalized.Password, passwordHash)

	if user == nil || !matched {
		if ctxErr := ctx.Err(); ctxErr != nil {
			srv.metrics.RecordLogin(metrics.OutcomeError)

			return nil, errors.Wrap(ctxErr, "login aborted")
		}

		srv.metrics.RecordLogin(metrics.OutcomeInvalidCredentials)
		srv.log(ctx).Warn("Login failed", slog.String("email", normalized.Email), slog.Any("error", domainerrors.ErrInvalidCredentials))

		return nil, domainerrors.ErrInvalidCredentials.WrapMessage("login failed")
	}

	session, err := srv.tokenService.Issue(user.ID)
	if err != nil {
		srv.metrics.RecordLogin(metrics.OutcomeError)
		srv.log(ctx).Error("Login failed", slog.String("email", normalized.Email), slog.Any("error", err))

		return nil, errors.Wrap(domainerrors.ErrTokenIssueFailed, err.Error())
	}

	srv.metrics.RecordLogin(metrics.OutcomeSuccess)
	srv.log(ctx).Debug("User logged in successfully", slog.Any("userID", user.ID))

	return &usecase.LoginOutput{
		Session: session,
		User:    user,
	}, nil
}

// GetProfile loads the account for an authenticated subject.
func (srv *userService) GetProfile(ctx context.Context, userID uuid.UUID) (*entity.User, error) {
	user, err := srv.userRepo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, domainerrors.ErrUserNotFound.WrapMessage("get profile")
		}

		srv.log(ctx).Error("Failed to load profile", slog.Any("userID", userID), slog.Any("error", err))

		return nil, errors.Wrap(err, "failed to find user by id")
	}

	return user, nil
}

// validateInput maps missing required fields to ErrMissingFields with the
// JSON names of the offending fields in the details.
func (srv *userService) validateInput(input any) error {
	err := srv.validate.Struct(input)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return errors.Wrap(err, "validate input")
	}

	fields := make([]string, 0, len(validationErrs))
	for _, fieldErr := range validationErrs {
		fields = append(fields, fieldErr.Field())
	}

	return domainerrors.ErrMissingFields.WithDetails("missing: " + strings.Join(fields, ", "))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
