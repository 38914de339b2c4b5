package core

// dependents.go implements the second phase of a composite insert.
//
// Parents get their identity from the store during BulkInsert. Only then can
// the foreign key of each dependent row be set. The phase links every child
// to its owning parent, copies the parent identity into the child, and bulk
// inserts the children through their own store.

import (
	"context"
	"fmt"
)

// WithDependents registers a dependent phase for a composite record type.
// children returns the dependent rows a parent owns; nil entries are ignored.
//
// A child whose back-link is unset is linked to the parent that lists it.
// A child linked to a parent outside the inserted batch fails the run with
// ErrParentNotInBatch, and a parent without an identity after insert fails
// it with ErrIdentityNotAssigned. Errors from the child store are returned
// unwrapped.
func WithDependents[P interface {
	Record[P]
	comparable
}, C Dependent[P]](store Store[C], children func(P) []C) Option[P] {
	return func(imp *Importer[P]) {
		imp.dependents = append(imp.dependents, func(ctx context.Context, parents []P) (int, error) {
			linked, err := LinkDependents(parents, children)
			if err != nil {
				return 0, err
			}
			if len(linked) == 0 {
				return 0, nil
			}
			if err := store.BulkInsert(ctx, linked); err != nil {
				return 0, err
			}
			return len(linked), nil
		})
	}
}

// LinkDependents sets the back-link and foreign key of every child of
// parents and returns the children in parent order.
func LinkDependents[P interface {
	Record[P]
	comparable
}, C Dependent[P]](parents []P, children func(P) []C) ([]C, error) {
	batch := make(map[P]struct{}, len(parents))
	for _, p := range parents {
		batch[p] = struct{}{}
	}

	var linked []C
	for _, p := range parents {
		for _, c := range children(p) {
			if isNil(c) {
				continue
			}

			owner := c.Parent()
			if isNil(owner) {
				c.SetParent(p)
				owner = p
			}
			if _, ok := batch[owner]; !ok {
				return nil, fmt.Errorf("%w: child of %T is linked elsewhere", ErrParentNotInBatch, p)
			}

			id := owner.Identity()
			if id == 0 {
				return nil, fmt.Errorf("%w: parent %T", ErrIdentityNotAssigned, owner)
			}
			c.SetParentIdentity(id)
			linked = append(linked, c)
		}
	}
	return linked, nil
}
