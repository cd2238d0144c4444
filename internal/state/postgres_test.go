package state

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return &PostgresStore{db: db, key: DefaultStateKey, logger: zaptest.NewLogger(t)}, mock
}

func TestPostgresStore_Load(t *testing.T) {
	store, mock := newMockStore(t)

	raw, err := json.Marshal(sampleBlob())
	require.NoError(t, err)

	mock.ExpectQuery("SELECT blob FROM bot_state").
		WithArgs(DefaultStateKey).
		WillReturnRows(sqlmock.NewRows([]string{"blob"}).AddRow(raw))

	b, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, b.OpenTrades, 1)
	assert.True(t, b.Seen("abc"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadMissingRow(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT blob FROM bot_state").
		WithArgs(DefaultStateKey).
		WillReturnError(sql.ErrNoRows)

	b, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, b.OpenTrades)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Save(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO bot_state").
		WithArgs(DefaultStateKey, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Save(context.Background(), sampleBlob()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveError(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO bot_state").
		WithArgs(DefaultStateKey, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(sqlmock.ErrCancelled)

	require.Error(t, store.Save(context.Background(), sampleBlob()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Close(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectClose()

	require.NoError(t, store.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}
