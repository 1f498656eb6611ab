package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealdesk-crm/intake-engine/pkg/apperrors"
	"github.com/dealdesk-crm/intake-engine/pkg/models"
)

func TestActionRepository_Create_DuplicateHash(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("INSERT INTO assignment_actions").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	repo := NewActionRepository(mock)
	action := &models.AssignmentAction{
		OpportunityID:  uuid.New(),
		AssigneeID:     uuid.New(),
		AssignmentHash: "same-hash",
		Source:         models.AssignmentSourceAI,
	}

	err = repo.Create(context.Background(), action)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestActionRepository_SetOutcome_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("UPDATE assignment_actions").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	repo := NewActionRepository(mock)
	now := time.Now()
	err = repo.SetOutcome(context.Background(), uuid.New(), &now, nil)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
