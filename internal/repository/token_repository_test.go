package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetops/tripshare-api/internal/models"
)

func TestTokenRepositoryConsumeWinsRace(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	mock.ExpectExec("UPDATE confirmation_tokens").
		WithArgs(sqlmock.AnyArg(), "approve", "tok-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Consume(context.Background(), "tok-1", "approve"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepositoryConsumeAlreadyUsed(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	mock.ExpectExec("UPDATE confirmation_tokens").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Consume(context.Background(), "tok-1", "reject")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestTokenRepositoryGetByToken(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	expires := time.Now().Add(time.Hour).UTC()
	rows := sqlmock.NewRows([]string{"id", "token", "subject", "purpose", "expires_at", "consumed"}).
		AddRow("tok-id", "tok-1", "trip-1", string(models.TokenPurposeTripApproval), expires, false)
	mock.ExpectQuery("SELECT (.+) FROM confirmation_tokens").
		WithArgs("tok-1").
		WillReturnRows(rows)

	record, err := repo.GetByToken(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "trip-1", record.Subject)
	assert.False(t, record.Consumed)
}
