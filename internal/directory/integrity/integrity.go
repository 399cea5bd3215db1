// Package integrity holds the write-side rules of the directory that must
// hold on every store: the specialization tree is at most MaxDepth levels
// deep, and every organization written in a transaction has a building
// before that transaction commits.
//
// The rules only see the data through lookup functions, so the same checks
// run against any transaction handle.
package integrity

import (
	"context"
	"fmt"
	"sort"

	e "github.com/NiKuma0/secunda-tz/internal/directory/errors"
)

// MaxDepth is the deepest level a specialization may sit at. Roots are
// level 1.
const MaxDepth = 3

// ParentLookup returns the parent id of the specialization id, or nil for a
// root.
type ParentLookup func(ctx context.Context, id int64) (*int64, error)

// BuildingLookup reports whether the organization has a building association.
type BuildingLookup func(ctx context.Context, organizationID int64) (bool, error)

// CheckDepth walks the parent chain starting at parentID and returns the
// level a specialization placed under parentID would occupy. selfID is the
// id of the node being written, zero for a new node; finding it on the chain
// is a cycle. The walk never takes more than MaxDepth steps.
func CheckDepth(ctx context.Context, selfID int64, parentID *int64, lookup ParentLookup) (int, error) {
	depth := 1
	cur := parentID
	for cur != nil {
		if selfID != 0 && *cur == selfID {
			return 0, e.ErrSpecializationCycle
		}
		depth++
		if depth > MaxDepth {
			return 0, e.ErrSpecializationDepth
		}

		next, err := lookup(ctx, *cur)
		if err != nil {
			return 0, fmt.Errorf("failed to resolve parent %d: %w", *cur, err)
		}
		cur = next
	}
	return depth, nil
}

// CheckSubtree rejects placing a subtree of the given height (1 for a leaf)
// at level depth.
func CheckSubtree(depth, height int) error {
	if depth+height-1 > MaxDepth {
		return e.ErrSpecializationDepth
	}
	return nil
}

// PendingOrganizations collects the organizations written in one
// transaction. It is not safe for concurrent use; a transaction owns it.
type PendingOrganizations struct {
	ids map[int64]struct{}
}

// Add registers an organization id for the commit-time check.
func (p *PendingOrganizations) Add(id int64) {
	if p.ids == nil {
		p.ids = make(map[int64]struct{})
	}
	p.ids[id] = struct{}{}
}

// IDs returns the registered ids in ascending order.
func (p *PendingOrganizations) IDs() []int64 {
	ids := make([]int64, 0, len(p.ids))
	for id := range p.ids {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Verify checks every registered organization and returns an
// *errors.OrganizationWithoutBuildingError for the lowest offending id.
func (p *PendingOrganizations) Verify(ctx context.Context, hasBuilding BuildingLookup) error {
	for _, id := range p.IDs() {
		ok, err := hasBuilding(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to check building of organization %d: %w", id, err)
		}
		if !ok {
			return &e.OrganizationWithoutBuildingError{OrganizationID: id}
		}
	}
	return nil
}
