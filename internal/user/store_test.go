package user

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/redmonkez12/go-auth-service/internal/database"
)

// newTestDB opens an in-memory SQLite database with the users table created.
// Each test gets its own database, named after the test so parallel tests
// never share state.
func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	sqlDB, err := sql.Open(sqliteshim.ShimName, dsn)
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	db := bun.NewDB(sqlDB, sqlitedialect.New())

	_, err = db.NewCreateTable().
		Model((*database.User)(nil)).
		Exec(context.Background())
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })

	return db
}

func TestStoreAdd(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	created, err := store.Add(ctx, "a@x.com", "hashed-pw")
	require.NoError(t, err)

	assert.Equal(t, int64(1), created.ID)
	assert.Equal(t, "a@x.com", created.Email)
	assert.Equal(t, "hashed-pw", created.HashedPassword)
	assert.Nil(t, created.SessionID)
	assert.Nil(t, created.ResetToken)
	assert.False(t, created.CreatedAt.IsZero())

	second, err := store.Add(ctx, "b@x.com", "other-pw")
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.ID)
}

func TestStoreAddDuplicateEmail(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	_, err := store.Add(ctx, "a@x.com", "hash1")
	require.NoError(t, err)

	_, err = store.Add(ctx, "a@x.com", "hash2")
	assert.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestStoreFindBy(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	created, err := store.Add(ctx, "a@x.com", "hashed-pw")
	require.NoError(t, err)

	t.Run("by email", func(t *testing.T) {
		found, err := store.FindBy(ctx, Criteria{FieldEmail: "a@x.com"})
		require.NoError(t, err)
		assert.Equal(t, created.ID, found.ID)
	})

	t.Run("by id", func(t *testing.T) {
		found, err := store.FindBy(ctx, Criteria{FieldID: created.ID})
		require.NoError(t, err)
		assert.Equal(t, "a@x.com", found.Email)
	})

	t.Run("multiple criteria", func(t *testing.T) {
		found, err := store.FindBy(ctx, Criteria{
			FieldID:    created.ID,
			FieldEmail: "a@x.com",
		})
		require.NoError(t, err)
		assert.Equal(t, created.ID, found.ID)
	})

	t.Run("no match", func(t *testing.T) {
		_, err := store.FindBy(ctx, Criteria{FieldEmail: "missing@x.com"})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("empty criteria", func(t *testing.T) {
		_, err := store.FindBy(ctx, Criteria{})
		assert.ErrorIs(t, err, ErrInvalidCriteria)
	})

	t.Run("unknown field", func(t *testing.T) {
		_, err := store.FindBy(ctx, Criteria{Field("bogus"): 1})
		assert.ErrorIs(t, err, ErrInvalidField)
	})
}

func TestStoreFindByDeterministicOnMultipleMatches(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	first, err := store.Add(ctx, "a@x.com", "hash")
	require.NoError(t, err)
	second, err := store.Add(ctx, "b@x.com", "hash")
	require.NoError(t, err)

	// Put both users behind the same session id; FindBy must keep
	// returning the lower id.
	require.NoError(t, store.Update(ctx, first.ID, Fields{FieldSessionID: "shared"}))
	require.NoError(t, store.Update(ctx, second.ID, Fields{FieldSessionID: "shared"}))

	for i := 0; i < 5; i++ {
		found, err := store.FindBy(ctx, Criteria{FieldSessionID: "shared"})
		require.NoError(t, err)
		assert.Equal(t, first.ID, found.ID)
	}
}

func TestStoreUpdate(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	created, err := store.Add(ctx, "a@x.com", "old-hash")
	require.NoError(t, err)

	t.Run("sets and clears fields together", func(t *testing.T) {
		require.NoError(t, store.Update(ctx, created.ID, Fields{FieldResetToken: "tok"}))

		err := store.Update(ctx, created.ID, Fields{
			FieldHashedPassword: "new-hash",
			FieldResetToken:     nil,
		})
		require.NoError(t, err)

		found, err := store.FindBy(ctx, Criteria{FieldID: created.ID})
		require.NoError(t, err)
		assert.Equal(t, "new-hash", found.HashedPassword)
		assert.Nil(t, found.ResetToken)
	})

	t.Run("unknown id", func(t *testing.T) {
		err := store.Update(ctx, 9999, Fields{FieldSessionID: "s"})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("unknown field rejected before any write", func(t *testing.T) {
		err := store.Update(ctx, created.ID, Fields{
			FieldSessionID: "should-not-land",
			Field("bogus"): 1,
		})
		assert.ErrorIs(t, err, ErrInvalidField)

		found, err := store.FindBy(ctx, Criteria{FieldID: created.ID})
		require.NoError(t, err)
		assert.Nil(t, found.SessionID)
	})

	t.Run("empty fields on known id", func(t *testing.T) {
		assert.NoError(t, store.Update(ctx, created.ID, Fields{}))
	})

	t.Run("empty fields on unknown id", func(t *testing.T) {
		err := store.Update(ctx, 9999, Fields{})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
