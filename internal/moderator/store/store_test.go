package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"escrowops/internal/moderator/models"
	"escrowops/pkg/platform/sentinel"
	txcontext "escrowops/pkg/platform/tx"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) TestFindUnknown() {
	_, err := s.store.FindByID(s.ctx, "nobody")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemoryStoreSuite) TestSaveStoresCopy() {
	m, err := models.NewModerator("7", time.Now())
	s.Require().NoError(err)
	s.Require().NoError(s.store.Save(s.ctx, m))

	m.Capabilities.Ban = true
	got, err := s.store.FindByID(s.ctx, "7")
	s.Require().NoError(err)
	s.False(got.Capabilities.Ban, "mutating the caller's record must not leak into the store")

	got.Capabilities.Freeze = true
	again, err := s.store.FindByID(s.ctx, "7")
	s.Require().NoError(err)
	s.False(again.Capabilities.Freeze)
}

func (s *InMemoryStoreSuite) TestListOrderedByUserID() {
	for _, id := range []string{"c", "a", "b"} {
		m, err := models.NewModerator(id, time.Now())
		s.Require().NoError(err)
		s.Require().NoError(s.store.Save(s.ctx, m))
	}
	list, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(list, 3)
	s.Equal("a", list[0].UserID)
	s.Equal("c", list[2].UserID)
}

func (s *InMemoryStoreSuite) TestDelete() {
	m, err := models.NewModerator("7", time.Now())
	s.Require().NoError(err)
	s.Require().NoError(s.store.Save(s.ctx, m))

	s.Require().NoError(s.store.Delete(s.ctx, "7"))
	_, err = s.store.FindByID(s.ctx, "7")
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.NoError(s.store.Delete(s.ctx, "7"))
}

var moderatorRowColumns = []string{"user_id", "username", "display_name", "can_ban", "can_freeze", "can_broadcast", "can_edit_fees", "deals_handled", "created_at", "updated_at"}

func newMockStore(t *testing.T) (*Postgres, *sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return NewPostgres(db), db, mock
}

func TestPostgresFindByID(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("maps row", func(t *testing.T) {
		s, _, mock := newMockStore(t)
		mock.ExpectQuery(regexp.QuoteMeta(findQuery)).WithArgs("42").
			WillReturnRows(sqlmock.NewRows(moderatorRowColumns).
				AddRow("42", "alice", "Alice", true, false, true, false, int64(3), now, now))

		m, err := s.FindByID(context.Background(), "42")
		require.NoError(t, err)
		assert.Equal(t, "alice", m.Username)
		assert.Equal(t, models.Capabilities{Ban: true, Broadcast: true}, m.Capabilities)
		assert.Equal(t, uint64(3), m.DealsHandled)
	})

	t.Run("missing row is not found", func(t *testing.T) {
		s, _, mock := newMockStore(t)
		mock.ExpectQuery(regexp.QuoteMeta(findQuery)).WithArgs("9").WillReturnError(sql.ErrNoRows)

		_, err := s.FindByID(context.Background(), "9")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("locks row inside transaction", func(t *testing.T) {
		s, db, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(findQuery + ` FOR UPDATE`)).WithArgs("42").
			WillReturnRows(sqlmock.NewRows(moderatorRowColumns).
				AddRow("42", "", "", false, false, false, false, int64(0), now, now))
		mock.ExpectRollback()

		tx, err := db.Begin()
		require.NoError(t, err)
		_, err = s.FindByID(txcontext.WithTx(context.Background(), tx), "42")
		require.NoError(t, err)
		require.NoError(t, tx.Rollback())
	})
}

func TestPostgresSave(t *testing.T) {
	s, _, mock := newMockStore(t)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m := &models.Moderator{UserID: "42", Capabilities: models.Capabilities{EditFees: true}, DealsHandled: 2, CreatedAt: now, UpdatedAt: now}

	mock.ExpectExec(`INSERT INTO moderators`).
		WithArgs("42", "", "", false, false, false, true, int64(2), now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.Save(context.Background(), m))

	mock.ExpectExec(`INSERT INTO moderators`).WillReturnError(errors.New("connection reset"))
	assert.Error(t, s.Save(context.Background(), m))
}

func TestPostgresDelete(t *testing.T) {
	s, _, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta(deleteQuery)).WithArgs("42").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.Delete(context.Background(), "42"))
}

func TestPostgresList(t *testing.T) {
	s, _, mock := newMockStore(t)
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(listQuery)).
		WillReturnRows(sqlmock.NewRows(moderatorRowColumns).
			AddRow("1", "", "", false, false, false, false, int64(0), now, now).
			AddRow("2", "", "", true, true, true, true, int64(5), now, now))

	list, err := s.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.True(t, list[1].Capabilities.EditFees)
}
