package db

import (
	"errors"
	"fmt"
	"testing"

	e "github.com/NiKuma0/secunda-tz/internal/directory/errors"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslateError(t *testing.T) {
	t.Run("depth trigger", func(t *testing.T) {
		err := translateError(fmt.Errorf("commit: %w", &pgconn.PgError{
			Code:           "23514",
			ConstraintName: "specialization_depth",
			Message:        "Specialization nesting level cannot exceed 3",
		}))
		assert.ErrorIs(t, err, e.ErrSpecializationDepth)
		assert.ErrorIs(t, err, e.ErrIntegrityViolation)
	})

	t.Run("building trigger carries id", func(t *testing.T) {
		err := translateError(&pgconn.PgError{
			Code:           "23514",
			ConstraintName: "organization_has_building",
			Detail:         "12",
		})
		var missing *e.OrganizationWithoutBuildingError
		require.True(t, errors.As(err, &missing))
		assert.Equal(t, int64(12), missing.OrganizationID)
	})

	t.Run("building trigger without id", func(t *testing.T) {
		err := translateError(&pgconn.PgError{Code: "23514", ConstraintName: "organization_has_building"})
		assert.ErrorIs(t, err, e.ErrOrganizationWithoutBuilding)
	})

	t.Run("other check constraint", func(t *testing.T) {
		pgErr := &pgconn.PgError{Code: "23514", ConstraintName: "chk_other"}
		assert.Same(t, pgErr, translateError(pgErr))
	})

	t.Run("other errors pass through", func(t *testing.T) {
		plain := errors.New("boom")
		assert.Same(t, plain, translateError(plain))
		assert.Nil(t, translateError(nil))
	})
}
