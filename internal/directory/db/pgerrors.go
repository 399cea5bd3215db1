package db

import (
	"errors"
	"fmt"
	"strconv"

	e "github.com/NiKuma0/secunda-tz/internal/directory/errors"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	sqlStateCheckViolation = "23514"

	constraintSpecializationDepth = "specialization_depth"
	constraintOrganizationBuilding = "organization_has_building"
)

// translateError maps the errors raised by the integrity triggers to the
// typed errors of the errors package and leaves every other error as is.
func translateError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr == nil || pgErr.Code != sqlStateCheckViolation {
		return err
	}

	switch pgErr.ConstraintName {
	case constraintSpecializationDepth:
		return fmt.Errorf("%w (%s)", e.ErrSpecializationDepth, pgErr.Message)
	case constraintOrganizationBuilding:
		id, convErr := strconv.ParseInt(pgErr.Detail, 10, 64)
		if convErr != nil {
			return fmt.Errorf("%w (%s)", e.ErrOrganizationWithoutBuilding, pgErr.Message)
		}
		return &e.OrganizationWithoutBuildingError{OrganizationID: id}
	default:
		return err
	}
}
