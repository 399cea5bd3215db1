package errors

import (
	"fmt"
)

var (
	ErrNotFound           = fmt.Errorf("not found")
	ErrInvalidInput       = fmt.Errorf("invalid input")
	ErrInvalidConfig      = fmt.Errorf("invalid config")
	ErrIntegrityViolation = fmt.Errorf("integrity violation")

	// ErrSpecializationDepth is returned when a specialization would sit deeper
	// than the allowed nesting level.
	ErrSpecializationDepth = fmt.Errorf("%w: specialization nesting level cannot exceed 3", ErrIntegrityViolation)
	ErrSpecializationCycle = fmt.Errorf("%w: specialization cannot be its own ancestor", ErrIntegrityViolation)
	// ErrOrganizationWithoutBuilding is matched by OrganizationWithoutBuildingError.
	ErrOrganizationWithoutBuilding = fmt.Errorf("%w: organization must have a building", ErrIntegrityViolation)
)

// NotFoundError reports a missing single entity and keeps the requested id
// for diagnostics. errors.Is(err, ErrNotFound) holds for it.
type NotFoundError struct {
	Resource string
	ID       int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s (id=%d) not found", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// OrganizationWithoutBuildingError is raised at commit time when an
// organization written in the transaction has no building association.
type OrganizationWithoutBuildingError struct {
	OrganizationID int64
}

func (e *OrganizationWithoutBuildingError) Error() string {
	return fmt.Sprintf("organization (id=%d) must have at least one building", e.OrganizationID)
}

func (e *OrganizationWithoutBuildingError) Is(target error) bool {
	return target == ErrOrganizationWithoutBuilding || target == ErrIntegrityViolation
}

// InvalidInput wraps ErrInvalidInput with a reason.
func InvalidInput(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

