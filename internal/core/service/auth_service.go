package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/tasktracker/task-system/internal/core/domain"
	"github.com/tasktracker/task-system/internal/core/ports"
	"github.com/tasktracker/task-system/internal/pkg/metrics"
)

const (
	minPasswordLength = 8
	maxFullNameLength = 100
)

var (
	dummyHashOnce sync.Once
	dummyHash     []byte
)

// timingDummyHash is compared against when a username does not exist so
// unknown and known usernames cost the same bcrypt work.
func timingDummyHash() []byte {
	dummyHashOnce.Do(func() {
		dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.DefaultCost)
	})
	return dummyHash
}

// AuthService implements registration, token issue and verification.
type AuthService struct {
	store      ports.CredentialStore
	cache      *IdentityCache
	tokens     *TokenManager
	bcryptCost int
	log        zerolog.Logger
}

var _ ports.AuthService = (*AuthService)(nil)

func NewAuthService(store ports.CredentialStore, cache *IdentityCache, tokens *TokenManager, log zerolog.Logger) *AuthService {
	return &AuthService{
		store:      store,
		cache:      cache,
		tokens:     tokens,
		bcryptCost: bcrypt.DefaultCost,
		log:        log,
	}
}

func (s *AuthService) Register(ctx context.Context, in ports.RegisterInput) (*domain.User, error) {
	if in.Role == "" {
		in.Role = domain.RoleClient
	}
	switch {
	case !domain.ValidUsername(in.Username):
		return nil, fmt.Errorf("%w: username must be 3-50 letters, digits or underscores", domain.ErrInvalidInput)
	case len(in.Password) < minPasswordLength:
		return nil, fmt.Errorf("%w: password must be at least %d characters", domain.ErrInvalidInput, minPasswordLength)
	case len(in.FullName) > maxFullNameLength:
		return nil, fmt.Errorf("%w: full name must be at most %d characters", domain.ErrInvalidInput, maxFullNameLength)
	case !in.Role.Valid():
		return nil, fmt.Errorf("%w: unknown role %q", domain.ErrInvalidInput, in.Role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, fmt.Errorf("%w: password too long", domain.ErrInvalidInput)
		}
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	created, err := s.store.Create(ctx, &domain.User{
		Username:     in.Username,
		FullName:     in.FullName,
		Role:         in.Role,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return nil, err
	}

	_ = s.cache.Put(ctx, created)
	s.log.Info().Int64("user_id", created.ID).Str("username", created.Username).Msg("user created and cached")
	return created, nil
}

// Login returns domain.ErrInvalidCredentials for an unknown username, a
// wrong password and a disabled identity alike.
func (s *AuthService) Login(ctx context.Context, username, password string) (string, *domain.User, error) {
	if username == "" || password == "" {
		return "", nil, domain.ErrInvalidCredentials
	}

	user, err := s.cache.LookupByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrIdentityNotFound) {
			_ = bcrypt.CompareHashAndPassword(timingDummyHash(), []byte(password))
			return "", nil, domain.ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("login: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", nil, domain.ErrInvalidCredentials
	}
	if user.Disabled {
		return "", nil, domain.ErrInvalidCredentials
	}

	token, _, err := s.tokens.Issue(user.ID)
	if err != nil {
		return "", nil, err
	}

	metrics.TokensIssuedTotal.Inc()
	return token, user, nil
}

func (s *AuthService) Verify(ctx context.Context, token string) (*domain.PublicUser, error) {
	user, err := s.verify(ctx, token)
	metrics.TokenVerificationsTotal.WithLabelValues(verifyResult(err)).Inc()
	if err != nil {
		return nil, err
	}
	return user.Public(), nil
}

func (s *AuthService) verify(ctx context.Context, token string) (*domain.User, error) {
	id, err := s.tokens.Parse(token)
	if err != nil {
		return nil, err
	}

	user, err := s.cache.LookupByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.Disabled {
		return nil, domain.ErrIdentityDisabled
	}
	return user, nil
}

func verifyResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrMalformedToken):
		return "malformed"
	case errors.Is(err, domain.ErrSignatureInvalid):
		return "signature_invalid"
	case errors.Is(err, domain.ErrTokenExpired):
		return "expired"
	case errors.Is(err, domain.ErrIdentityNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrIdentityDisabled):
		return "disabled"
	default:
		return "error"
	}
}

// Disable marks the identity disabled and writes the disabled record over
// both cache keys, so tokens already issued for it stop verifying
// immediately. Unknown ids yield domain.ErrUserNotFound.
func (s *AuthService) Disable(ctx context.Context, id int64) (*domain.User, error) {
	user, err := s.store.SetDisabled(ctx, id, true)
	if err != nil {
		if errors.Is(err, domain.ErrIdentityNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}

	if err := s.cache.Put(ctx, user); err != nil {
		// An empty key is refilled from the store on the next lookup.
		s.log.Warn().Err(err).Int64("user_id", id).Msg("cache disabled user failed, evicting")
		if err := s.cache.Invalidate(ctx, user); err != nil {
			s.log.Error().Err(err).Int64("user_id", id).Msg("evict disabled user failed")
		}
	}

	s.log.Info().Int64("user_id", id).Msg("user disabled")
	return user, nil
}

// SeedMaster creates the bootstrap admin account when it does not exist yet.
func (s *AuthService) SeedMaster(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return nil
	}

	_, err := s.cache.LookupByUsername(ctx, username)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrIdentityNotFound) {
		return fmt.Errorf("seed master user: %w", err)
	}

	_, err = s.Register(ctx, ports.RegisterInput{
		Username: username,
		Password: password,
		FullName: "Master Admin",
		Role:     domain.RoleAdmin,
	})
	if err != nil && !errors.Is(err, domain.ErrUserExists) {
		return fmt.Errorf("seed master user: %w", err)
	}
	s.log.Info().Str("username", username).Msg("master user ensured")
	return nil
}
