package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koscakluka/ema-tutor/core/memory"
)

var selectColumns = []string{"client_id", "version", "data", "updated_at"}

func newTestRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db), mock
}

func TestGet(t *testing.T) {
	repository, mock := newTestRepository(t)
	updatedAt := time.Now().UTC()

	mock.ExpectQuery("SELECT client_id, version, data, updated_at FROM conversation_memory WHERE client_id = \\$1").
		WithArgs("client-1").
		WillReturnRows(sqlmock.NewRows(selectColumns).AddRow("client-1", 1, []byte(`{"client_id":"client-1"}`), updatedAt))

	record, err := repository.Get(context.Background(), "client-1")
	require.NoError(t, err)
	assert.Equal(t, "client-1", record.ClientID)
	assert.Equal(t, 1, record.Version)
	assert.JSONEq(t, `{"client_id":"client-1"}`, string(record.Data))
	assert.True(t, record.UpdatedAt.Equal(updatedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetNotFound(t *testing.T) {
	repository, mock := newTestRepository(t)

	mock.ExpectQuery("SELECT .+ FROM conversation_memory").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repository.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, memory.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDBError(t *testing.T) {
	repository, mock := newTestRepository(t)

	mock.ExpectQuery("SELECT .+ FROM conversation_memory").
		WillReturnError(errors.New("db error"))

	_, err := repository.Get(context.Background(), "client-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, memory.ErrNotFound)
}

func TestPutUpserts(t *testing.T) {
	repository, mock := newTestRepository(t)
	record := memory.Record{ClientID: "client-1", Version: 1, Data: []byte(`{}`), UpdatedAt: time.Now().UTC()}

	mock.ExpectExec("INSERT INTO conversation_memory .+ ON CONFLICT \\(client_id\\) DO UPDATE").
		WithArgs(record.ClientID, record.Version, record.Data, record.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repository.Put(context.Background(), record))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPutDBError(t *testing.T) {
	repository, mock := newTestRepository(t)

	mock.ExpectExec("INSERT INTO conversation_memory").
		WillReturnError(errors.New("db error"))

	err := repository.Put(context.Background(), memory.Record{ClientID: "client-1", Version: 1, Data: []byte(`{}`)})
	assert.Error(t, err)
}

func TestDelete(t *testing.T) {
	repository, mock := newTestRepository(t)

	mock.ExpectExec("DELETE FROM conversation_memory WHERE client_id = \\$1").
		WithArgs("client-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repository.Delete(context.Background(), "client-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreSaveAndLoadThroughRepository(t *testing.T) {
	repository, mock := newTestRepository(t)
	store := memory.NewStore(repository)

	m := store.New("client-1")
	store.Append(m, memory.RoleUser, "I love pizza")

	var saved []byte
	mock.ExpectExec("INSERT INTO conversation_memory").
		WithArgs("client-1", memory.RecordVersion, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, store.Save(context.Background(), m))

	record, err := memory.Encode(m, time.Now())
	require.NoError(t, err)
	saved = record.Data

	mock.ExpectQuery("SELECT .+ FROM conversation_memory").
		WithArgs("client-1").
		WillReturnRows(sqlmock.NewRows(selectColumns).AddRow("client-1", memory.RecordVersion, saved, time.Now()))

	loaded, err := store.Load(context.Background(), "client-1")
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.TotalInteractions)
	assert.Equal(t, []string{"food"}, loaded.Topics)
	assert.NoError(t, mock.ExpectationsWereMet())
}
