package activity

import (
	"context"
	"errors"

	"github.com/edutime/edutime-server/models"
)

// authorize checks that the caller may submit activity for childUID:
// either the caller is the child, or the caller is a parent whose family
// lists the child. Fails before any validation cost is spent.
func (p *Pipeline) authorize(ctx context.Context, callerUID, childUID string) error {
	if callerUID == "" {
		return ErrUnauthenticated
	}

	caller, err := p.store.User(ctx, callerUID)
	if errors.Is(err, ErrNotFound) {
		return ErrPermissionDenied
	}
	if err != nil {
		return err
	}

	if callerUID == childUID {
		return nil
	}

	if caller.Role != models.RoleParent || caller.FamilyID == nil {
		return ErrPermissionDenied
	}

	family, err := p.store.Family(ctx, *caller.FamilyID)
	if errors.Is(err, ErrNotFound) {
		return ErrPermissionDenied
	}
	if err != nil {
		return err
	}
	if !family.HasChild(childUID) {
		return ErrPermissionDenied
	}

	return nil
}
