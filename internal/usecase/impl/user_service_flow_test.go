package impl

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"accounts/config"
	domainerrors "accounts/internal/domain/errors"
	"accounts/internal/domain/repository"
	"accounts/internal/domain/service"
	"accounts/internal/infra/auth"
	"accounts/internal/infra/metrics"
	"accounts/internal/infra/persistence/memory"
	"accounts/internal/usecase"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/crypto/bcrypt"
)

type settableClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *settableClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *settableClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

type flowFixtures struct {
	service usecase.UserUsecase
	repo    repository.UserRepository
	tokens  service.TokenService
	clock   *settableClock
	metrics *metrics.Metrics
}

// newFlowFixtures wires the use case against the in-memory store, real bcrypt
// at its minimum cost and a JWT service driven by a settable clock.
func newFlowFixtures(t *testing.T) flowFixtures {
	t.Helper()

	clock := &settableClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	m := metrics.New()

	hasher, err := auth.NewBcryptHasherWithCost(bcrypt.MinCost)
	require.NoError(t, err)

	tokens, err := auth.NewJWTService(&config.Config{
		SecretKey: config.SecretKeyConfig{Access: "flow_test_secret_key_with_enough_length"},
	}, clock.Now)
	require.NoError(t, err)

	repo := memory.NewUserRepository()

	return flowFixtures{
		service: NewUserService(UserServiceParams{
			UserRepo:     repo,
			Hasher:       hasher,
			TokenService: tokens,
			Metrics:      m,
			Logger:       newDiscardLogger(),
		}),
		repo:    repo,
		tokens:  tokens,
		clock:   clock,
		metrics: m,
	}
}

func TestUserFlow_RegisterLoginValidate(t *testing.T) {
	fx := newFlowFixtures(t)
	ctx := context.Background()

	reg, err := fx.service.RegisterUser(ctx, &usecase.RegisterUserInput{Name: "Ann", Email: "ann@x.io", Password: "pw1"})
	require.NoError(t, err)

	stored, err := fx.repo.FindByEmail(ctx, "ann@x.io")
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, stored.ID)
	assert.NotEqual(t, "pw1", stored.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("pw1")))

	login, err := fx.service.Login(ctx, &usecase.LoginInput{Email: "ann@x.io", Password: "pw1"})
	require.NoError(t, err)
	assert.Equal(t, fx.clock.Now().Add(time.Hour), login.Session.ExpiresAt)

	claims, err := fx.tokens.Validate(login.Session.Token)
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, claims.UserID)

	profile, err := fx.service.GetProfile(ctx, claims.UserID)
	require.NoError(t, err)
	assert.Equal(t, "Ann", profile.Name)

	expected := `
# HELP accounts_registrations_total Total number of registration attempts by outcome
# TYPE accounts_registrations_total counter
accounts_registrations_total{outcome="success"} 1
# HELP accounts_logins_total Total number of login attempts by outcome
# TYPE accounts_logins_total counter
accounts_logins_total{outcome="success"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(fx.metrics.Registry(), strings.NewReader(expected),
		"accounts_registrations_total", "accounts_logins_total"))
}

func TestUserFlow_LongNameAndEmailAreAccepted(t *testing.T) {
	fx := newFlowFixtures(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		input usecase.RegisterUserInput
	}{
		{"101 character name", usecase.RegisterUserInput{Name: strings.Repeat("a", 101), Email: "long-name@x.io", Password: "pw1"}},
		{"256 character email", usecase.RegisterUserInput{Name: "Ann", Email: strings.Repeat("b", 251) + "@x.io", Password: "pw1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, err := fx.service.RegisterUser(ctx, &tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.input.Name, reg.User.Name)

			_, err = fx.service.Login(ctx, &usecase.LoginInput{Email: tt.input.Email, Password: "pw1"})
			require.NoError(t, err)
		})
	}
}

func TestUserFlow_DuplicateRegistrationKeepsFirstAccount(t *testing.T) {
	fx := newFlowFixtures(t)
	ctx := context.Background()

	_, err := fx.service.RegisterUser(ctx, &usecase.RegisterUserInput{Name: "Ann", Email: "ann@x.io", Password: "pw1"})
	require.NoError(t, err)

	_, err = fx.service.RegisterUser(ctx, &usecase.RegisterUserInput{Name: "Ann", Email: "ann@x.io", Password: "pw2"})
	assert.True(t, errors.Is(err, domainerrors.ErrUserAlreadyExists))

	_, err = fx.service.Login(ctx, &usecase.LoginInput{Email: "ann@x.io", Password: "pw1"})
	require.NoError(t, err, "the original password still works")

	_, err = fx.service.Login(ctx, &usecase.LoginInput{Email: "ann@x.io", Password: "pw2"})
	assert.True(t, errors.Is(err, domainerrors.ErrInvalidCredentials))
}

func TestUserFlow_FailedLoginsAreIndistinguishable(t *testing.T) {
	fx := newFlowFixtures(t)
	ctx := context.Background()

	_, err := fx.service.RegisterUser(ctx, &usecase.RegisterUserInput{Name: "Ann", Email: "ann@x.io", Password: "pw1"})
	require.NoError(t, err)

	_, errWrong := fx.service.Login(ctx, &usecase.LoginInput{Email: "ann@x.io", Password: "nope"})
	_, errUnknown := fx.service.Login(ctx, &usecase.LoginInput{Email: "bob@x.io", Password: "pw1"})

	require.Error(t, errWrong)
	require.Error(t, errUnknown)
	assert.Equal(t, errWrong.Error(), errUnknown.Error())

	var wrong, unknown domainerrors.AppError
	require.True(t, errors.As(errWrong, &wrong))
	require.True(t, errors.As(errUnknown, &unknown))
	assert.Equal(t, wrong.HTTPCode(), unknown.HTTPCode())
	assert.Equal(t, wrong.ErrorCode(), unknown.ErrorCode())
	assert.Equal(t, wrong.Message(), unknown.Message())

	expected := `
# HELP accounts_logins_total Total number of login attempts by outcome
# TYPE accounts_logins_total counter
accounts_logins_total{outcome="invalid_credentials"} 2
`
	assert.NoError(t, testutil.GatherAndCompare(fx.metrics.Registry(), strings.NewReader(expected), "accounts_logins_total"))
}

func TestUserFlow_TokenExpiresAfterOneHour(t *testing.T) {
	fx := newFlowFixtures(t)
	ctx := context.Background()

	_, err := fx.service.RegisterUser(ctx, &usecase.RegisterUserInput{Name: "Ann", Email: "ann@x.io", Password: "pw1"})
	require.NoError(t, err)

	login, err := fx.service.Login(ctx, &usecase.LoginInput{Email: "ann@x.io", Password: "pw1"})
	require.NoError(t, err)

	fx.clock.Advance(59 * time.Minute)
	_, err = fx.tokens.Validate(login.Session.Token)
	require.NoError(t, err)

	fx.clock.Advance(time.Minute)
	_, err = fx.tokens.Validate(login.Session.Token)
	assert.True(t, errors.Is(err, domainerrors.ErrInvalidToken))
}

func TestUserFlow_ConcurrentRegistrationSameEmail(t *testing.T) {
	defer goleak.VerifyNone(t)

	fx := newFlowFixtures(t)
	ctx := context.Background()

	const workers = 8

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)

	for i := range workers {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			_, err := fx.service.RegisterUser(ctx, &usecase.RegisterUserInput{
				Name:     fmt.Sprintf("Ann %d", i),
				Email:    "ann@x.io",
				Password: "pw1",
			})

			mu.Lock()
			defer mu.Unlock()

			switch {
			case err == nil:
				successes++
			case errors.Is(err, domainerrors.ErrUserAlreadyExists):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}

	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, conflicts)
}

func TestUserFlow_ConcurrentRegistrationDistinctEmails(t *testing.T) {
	defer goleak.VerifyNone(t)

	fx := newFlowFixtures(t)
	ctx := context.Background()

	const workers = 8

	var wg sync.WaitGroup

	errs := make([]error, workers)

	for i := range workers {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			_, errs[i] = fx.service.RegisterUser(ctx, &usecase.RegisterUserInput{
				Name:     "User",
				Email:    fmt.Sprintf("user%d@x.io", i),
				Password: "pw",
			})
		}(i)
	}

	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "worker %d", i)

		_, err = fx.service.Login(ctx, &usecase.LoginInput{Email: fmt.Sprintf("user%d@x.io", i), Password: "pw"})
		require.NoError(t, err)
	}
}
