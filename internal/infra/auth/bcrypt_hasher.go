// Package auth provides concrete implementations for authentication-related domain services.
package auth

import (
	"context"
	"crypto/rand"
	"runtime"
	"time"

	"accounts/config"
	domainerrors "accounts/internal/domain/errors"
	"accounts/internal/domain/service"
	"accounts/internal/errors"
	"accounts/internal/infra/metrics"

	"go.uber.org/fx"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// bcryptHasher is a concrete implementation of the PasswordHasher interface using bcrypt.
// Hash and Check share a weighted semaphore so bcrypt work never occupies more
// than maxConcurrent CPUs at once.
type bcryptHasher struct {
	cost    int
	sem     *semaphore.Weighted
	metrics *metrics.Metrics

	// guardHash is compared against when Check receives an empty hash.
	guardHash []byte
}

// BcryptHasherParams holds the hasher's dependencies, injected by Fx.
type BcryptHasherParams struct {
	fx.In

	Config  *config.Config
	Metrics *metrics.Metrics `optional:"true"`
}

// NewBcryptHasher builds the hasher from auth.bcryptCost and auth.maxConcurrentHashes.
func NewBcryptHasher(params BcryptHasherParams) (service.PasswordHasher, error) {
	return newBcryptHasher(params.Config.Auth.BcryptCost, params.Config.Auth.MaxConcurrentHashes, params.Metrics)
}

// NewBcryptHasherWithCost builds a hasher with an explicit cost and one slot per CPU.
func NewBcryptHasherWithCost(cost int) (service.PasswordHasher, error) {
	return newBcryptHasher(cost, runtime.GOMAXPROCS(0), nil)
}

func newBcryptHasher(cost, maxConcurrent int, m *metrics.Metrics) (*bcryptHasher, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, errors.Errorf("bcrypt cost %d outside [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	if maxConcurrent <= 0 {
		maxConcurrent = runtime.GOMAXPROCS(0)
	}

	// The guard hash must use the same cost as real hashes or the timing
	// difference would leak which emails exist.
	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return nil, errors.Wrap(err, "generate guard password")
	}
	guardHash, err := bcrypt.GenerateFromPassword(seed, cost)
	if err != nil {
		return nil, errors.Wrap(err, "generate guard hash")
	}

	return &bcryptHasher{
		cost:      cost,
		sem:       semaphore.NewWeighted(int64(maxConcurrent)),
		metrics:   m,
		guardHash: guardHash,
	}, nil
}

// Hash generates a salted hash from a plaintext password using bcrypt.
// bcrypt automatically handles salt generation.
func (h *bcryptHasher) Hash(ctx context.Context, password string) (string, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", errors.Wrap(err, "wait for hashing slot")
	}
	defer h.sem.Release(1)

	start := time.Now()
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	h.metrics.ObserveHash(metrics.OpHash, time.Since(start))
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", errors.Wrap(domainerrors.ErrPasswordTooLong, "hash password")
		}

		return "", errors.Wrap(err, "bcrypt generate")
	}

	return string(hashed), nil
}

// Check compares a plaintext password with a bcrypt hash.
func (h *bcryptHasher) Check(ctx context.Context, password, hash string) bool {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return false
	}
	defer h.sem.Release(1)

	target := []byte(hash)
	guarded := hash == ""
	if guarded {
		target = h.guardHash
	}

	start := time.Now()
	err := bcrypt.CompareHashAndPassword(target, []byte(password))
	h.metrics.ObserveHash(metrics.OpCheck, time.Since(start))

	return err == nil && !guarded
}
