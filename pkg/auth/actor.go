package auth

import (
	"github.com/google/uuid"

	"github.com/farmlink/farmlink-backend/pkg/enums"
	pkgerrors "github.com/farmlink/farmlink-backend/pkg/errors"
)

// Actor is the server-derived principal passed into every domain operation.
type Actor struct {
	UserID uuid.UUID
	Role   enums.ActorRole
}

// SystemActor is used by workers and internal reconciliation paths.
func SystemActor() Actor {
	return Actor{Role: enums.ActorRoleSystem}
}

// Validate rejects actors that could not have come from a verified session.
func (a Actor) Validate() error {
	if !a.Role.IsValid() {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "actor role missing")
	}
	if a.Role != enums.ActorRoleSystem && a.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}
	return nil
}

func (a Actor) Is(role enums.ActorRole) bool {
	return a.Role == role
}

// UserIDPtr returns nil for the system actor.
func (a Actor) UserIDPtr() *uuid.UUID {
	if a.UserID == uuid.Nil {
		return nil
	}
	id := a.UserID
	return &id
}
