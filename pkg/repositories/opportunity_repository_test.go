package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealdesk-crm/intake-engine/pkg/apperrors"
	"github.com/dealdesk-crm/intake-engine/pkg/models"
)

func TestOpportunityRepository_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery("INSERT INTO opportunities").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(id))

	repo := NewOpportunityRepository(mock)
	opp := &models.Opportunity{Title: "Acme BV", Status: "new", Stage: "intake", Priority: "medium"}

	err = repo.Create(context.Background(), opp)
	require.NoError(t, err)
	assert.Equal(t, id, opp.ID)
	assert.False(t, opp.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpportunityRepository_AssignIfUnassigned(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	oppID := uuid.New()
	ownerID := uuid.New()
	at := time.Now()

	mock.ExpectExec("UPDATE opportunities").
		WithArgs(oppID, ownerID, "Anna Strong", at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	repo := NewOpportunityRepository(mock)
	err = repo.AssignIfUnassigned(context.Background(), oppID, ownerID, "Anna Strong", at)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpportunityRepository_AssignIfUnassigned_LosesRace(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	// The conditional WHERE assigned_to IS NULL matched nothing: a concurrent
	// writer assigned first.
	mock.ExpectExec("UPDATE opportunities").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	repo := NewOpportunityRepository(mock)
	err = repo.AssignIfUnassigned(context.Background(), uuid.New(), uuid.New(), "Anna Strong", time.Now())
	assert.ErrorIs(t, err, apperrors.ErrAlreadyAssigned)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpportunityRepository_Reassign_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("UPDATE opportunities").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	repo := NewOpportunityRepository(mock)
	err = repo.Reassign(context.Background(), uuid.New(), uuid.New(), "Anna Strong", time.Now())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestOpportunityRepository_Delete(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	oppID := uuid.New()
	mock.ExpectExec("DELETE FROM opportunities").
		WithArgs(oppID).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	repo := NewOpportunityRepository(mock)
	require.NoError(t, repo.Delete(context.Background(), oppID))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpportunityRepository_Delete_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("DELETE FROM opportunities").
		WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	repo := NewOpportunityRepository(mock)
	err = repo.Delete(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestOpportunityRepository_GetByID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT (.+) FROM opportunities").
		WithArgs(pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)

	repo := NewOpportunityRepository(mock)
	_, err = repo.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
