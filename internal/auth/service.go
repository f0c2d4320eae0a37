package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/argon2"

	"github.com/redmonkez12/go-auth-service/internal/user"
)

var (
	ErrAlreadyExists    = errors.New("user already exists")
	ErrEmailRequired    = errors.New("email is required")
	ErrPasswordRequired = errors.New("password is required")
)

// Argon2id parameters - tuned for security vs performance balance
// Time: 3, Memory: 64MB, Threads: 4, KeyLen: 32 bytes
const (
	argon2Time    = 3
	argon2Memory  = 64 * 1024 // 64 MB
	argon2Threads = 4
	argon2KeyLen  = 32
	saltLen       = 16
)

// UserStore defines the persistence surface the auth service needs.
// Implemented by *user.Store.
type UserStore interface {
	Add(ctx context.Context, email, hashedPassword string) (*user.User, error)
	FindBy(ctx context.Context, criteria user.Criteria) (*user.User, error)
	Update(ctx context.Context, id int64, fields user.Fields) error
}

// Service handles authentication business logic. It keeps no user state of
// its own; every operation goes back to the store.
type Service struct {
	store UserStore
}

func NewService(store UserStore) *Service {
	return &Service{store: store}
}

// Register creates a new user account with a salted hash of the password.
// The plaintext password is never stored.
func (s *Service) Register(ctx context.Context, email, password string) (*user.User, error) {
	if email == "" {
		return nil, ErrEmailRequired
	}
	if password == "" {
		return nil, ErrPasswordRequired
	}

	_, err := s.store.FindBy(ctx, user.Criteria{user.FieldEmail: email})
	if err == nil {
		return nil, ErrAlreadyExists
	}
	if !errors.Is(err, user.ErrNotFound) {
		return nil, fmt.Errorf("failed to check for existing user: %w", err)
	}

	hashedPassword, err := hashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	newUser, err := s.store.Add(ctx, email, hashedPassword)
	if err != nil {
		if errors.Is(err, user.ErrDuplicateEmail) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return newUser, nil
}

// ValidLogin reports whether the email and password match a registered user.
// An unknown email or a wrong password is false, not an error.
func (s *Service) ValidLogin(ctx context.Context, email, password string) (bool, error) {
	existing, err := s.store.FindBy(ctx, user.Criteria{user.FieldEmail: email})
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get user: %w", err)
	}

	return verifyPassword(existing.HashedPassword, password), nil
}

// CreateSession issues a fresh session id for the user with the given email
// and persists it, replacing any prior session. It returns "" with a nil
// error when the user does not exist. The caller is expected to have checked
// the password via ValidLogin first.
func (s *Service) CreateSession(ctx context.Context, email string) (string, error) {
	existing, err := s.store.FindBy(ctx, user.Criteria{user.FieldEmail: email})
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get user: %w", err)
	}

	sessionID := uuid.NewString()
	if err := s.store.Update(ctx, existing.ID, user.Fields{user.FieldSessionID: sessionID}); err != nil {
		return "", fmt.Errorf("failed to store session: %w", err)
	}

	return sessionID, nil
}

// GetUserBySession resolves a session id to its user. An empty or unknown
// session id yields (nil, nil).
func (s *Service) GetUserBySession(ctx context.Context, sessionID string) (*user.User, error) {
	if sessionID == "" {
		return nil, nil
	}

	existing, err := s.store.FindBy(ctx, user.Criteria{user.FieldSessionID: sessionID})
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user by session: %w", err)
	}

	return existing, nil
}

// DestroySession clears the session id of the given user. Unknown user ids
// are a silent no-op.
func (s *Service) DestroySession(ctx context.Context, userID int64) error {
	err := s.store.Update(ctx, userID, user.Fields{user.FieldSessionID: nil})
	if err != nil && !errors.Is(err, user.ErrNotFound) {
		return fmt.Errorf("failed to destroy session: %w", err)
	}
	return nil
}

// RequestReset generates and persists a password reset token for the user
// with the given email. Unlike the session operations it propagates
// user.ErrNotFound, since callers need to distinguish that case.
func (s *Service) RequestReset(ctx context.Context, email string) (string, error) {
	existing, err := s.store.FindBy(ctx, user.Criteria{user.FieldEmail: email})
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return "", user.ErrNotFound
		}
		return "", fmt.Errorf("failed to get user: %w", err)
	}

	resetToken, err := generateRandomToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate reset token: %w", err)
	}

	if err := s.store.Update(ctx, existing.ID, user.Fields{user.FieldResetToken: resetToken}); err != nil {
		return "", fmt.Errorf("failed to store reset token: %w", err)
	}

	return resetToken, nil
}

// UpdatePassword consumes a reset token: the new hash is written and the
// token cleared in a single update, so the two never go out of sync. Empty
// arguments are a no-op; an unknown token is user.ErrNotFound.
func (s *Service) UpdatePassword(ctx context.Context, resetToken, password string) error {
	if resetToken == "" || password == "" {
		return nil
	}

	existing, err := s.store.FindBy(ctx, user.Criteria{user.FieldResetToken: resetToken})
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return user.ErrNotFound
		}
		return fmt.Errorf("failed to get user by reset token: %w", err)
	}

	hashedPassword, err := hashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	err = s.store.Update(ctx, existing.ID, user.Fields{
		user.FieldHashedPassword: hashedPassword,
		user.FieldResetToken:     nil,
	})
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	return nil
}

// hashPassword creates an argon2id hash of the password with a fresh salt.
func hashPassword(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey(
		[]byte(password),
		salt,
		argon2Time,
		argon2Memory,
		argon2Threads,
		argon2KeyLen,
	)

	// Encode as: $argon2id$v=19$m=65536,t=3,p=4$salt$hash
	encodedSalt := base64.RawStdEncoding.EncodeToString(salt)
	encodedHash := base64.RawStdEncoding.EncodeToString(hash)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argon2Memory,
		argon2Time,
		argon2Threads,
		encodedSalt,
		encodedHash,
	), nil
}

// verifyPassword checks a password against a stored hash, re-deriving with
// the parameters encoded in the hash and comparing in constant time.
func verifyPassword(encodedHash, password string) bool {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return false
	}

	var version int
	var memory, time uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return false
	}
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	decodedHash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false
	}

	inputHash := argon2.IDKey(
		[]byte(password),
		salt,
		time,
		memory,
		threads,
		uint32(len(decodedHash)),
	)

	return subtle.ConstantTimeCompare(decodedHash, inputHash) == 1
}

// generateRandomToken creates a cryptographically secure random token.
func generateRandomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
