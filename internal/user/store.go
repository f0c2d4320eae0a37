package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"github.com/redmonkez12/go-auth-service/internal/database"
)

var (
	ErrNotFound        = errors.New("user not found")
	ErrDuplicateEmail  = errors.New("email already exists")
	ErrInvalidCriteria = errors.New("no search criteria specified")
	ErrInvalidField    = errors.New("unknown user field")
)

// Field names a column of the users table that callers may query or update.
// Lookups and updates are validated against the recognized set below, so a
// Field forged from an arbitrary string still fails with ErrInvalidField.
type Field string

const (
	FieldID             Field = "id"
	FieldEmail          Field = "email"
	FieldHashedPassword Field = "hashed_password"
	FieldSessionID      Field = "session_id"
	FieldResetToken     Field = "reset_token"
)

// Criteria selects rows where every listed field equals its value.
type Criteria map[Field]any

// Fields lists the columns an Update call sets.
type Fields map[Field]any

var recognizedFields = map[Field]struct{}{
	FieldID:             {},
	FieldEmail:          {},
	FieldHashedPassword: {},
	FieldSessionID:      {},
	FieldResetToken:     {},
}

// Store handles user data persistence. It holds no state beyond the
// injected DB handle; consistency is one row per call.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

// Add inserts a new user and returns the persisted row with its assigned id.
// It performs no duplicate-email check itself; the schema's unique constraint
// is a backstop and maps to ErrDuplicateEmail.
func (s *Store) Add(ctx context.Context, email, hashedPassword string) (*User, error) {
	now := time.Now()
	dbUser := &database.User{
		Email:          email,
		HashedPassword: hashedPassword,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	_, err := s.db.NewInsert().
		Model(dbUser).
		Returning("*").
		Exec(ctx)

	if err != nil {
		if isDuplicateKey(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("failed to add user: %w", err)
	}

	return mapDBUserToModel(dbUser), nil
}

// FindBy returns the first user matching all given criteria. When several
// rows match, the one with the lowest id wins, so repeated calls agree.
func (s *Store) FindBy(ctx context.Context, criteria Criteria) (*User, error) {
	if len(criteria) == 0 {
		return nil, ErrInvalidCriteria
	}
	if err := validateFields(keys(criteria)); err != nil {
		return nil, err
	}

	dbUser := new(database.User)
	q := s.db.NewSelect().Model(dbUser)
	for field, value := range criteria {
		q = q.Where("? = ?", bun.Ident(string(field)), value)
	}

	err := q.Order("id ASC").Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	return mapDBUserToModel(dbUser), nil
}

// Update sets the given fields on the user with the given id. Every field
// name is validated before anything is written, and all sets go out in a
// single UPDATE statement, so the row never holds a partial write.
func (s *Store) Update(ctx context.Context, id int64, fields Fields) error {
	if err := validateFields(keys(fields)); err != nil {
		return err
	}
	if len(fields) == 0 {
		// Nothing to set; still report a missing row.
		_, err := s.FindBy(ctx, Criteria{FieldID: id})
		return err
	}

	q := s.db.NewUpdate().Model((*database.User)(nil))
	for field, value := range fields {
		q = q.Set("? = ?", bun.Ident(string(field)), value)
	}
	q = q.Set("updated_at = ?", time.Now())

	result, err := q.Where("id = ?", id).Exec(ctx)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to update user: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

func validateFields(names []Field) error {
	for _, name := range names {
		if _, ok := recognizedFields[name]; !ok {
			return fmt.Errorf("%w: %q", ErrInvalidField, string(name))
		}
	}
	return nil
}

func keys[M ~map[Field]any](m M) []Field {
	out := make([]Field, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func isDuplicateKey(err error) bool {
	// lib/pq reports unique violations by message; sqlite (tests) by "UNIQUE
	// constraint failed".
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value violates unique constraint") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}

// mapDBUserToModel converts the database model to the domain model.
func mapDBUserToModel(dbu *database.User) *User {
	return &User{
		ID:             dbu.ID,
		Email:          dbu.Email,
		HashedPassword: dbu.HashedPassword,
		SessionID:      dbu.SessionID,
		ResetToken:     dbu.ResetToken,
		CreatedAt:      dbu.CreatedAt,
		UpdatedAt:      dbu.UpdatedAt,
	}
}
