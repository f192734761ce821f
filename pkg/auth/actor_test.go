package auth

import (
	"testing"

	"github.com/google/uuid"

	"github.com/farmlink/farmlink-backend/pkg/enums"
	pkgerrors "github.com/farmlink/farmlink-backend/pkg/errors"
)

func TestActorValidate(t *testing.T) {
	if err := SystemActor().Validate(); err != nil {
		t.Fatalf("system actor should validate: %v", err)
	}
	if err := (Actor{UserID: uuid.New(), Role: enums.ActorRoleBuyer}).Validate(); err != nil {
		t.Fatalf("buyer should validate: %v", err)
	}
	if err := (Actor{Role: enums.ActorRoleFarmer}).Validate(); !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized for missing id, got %v", err)
	}
	if err := (Actor{UserID: uuid.New(), Role: "guest"}).Validate(); !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized for unknown role, got %v", err)
	}
}

func TestActorUserIDPtr(t *testing.T) {
	if SystemActor().UserIDPtr() != nil {
		t.Fatal("system actor has no user id")
	}
	id := uuid.New()
	ptr := Actor{UserID: id, Role: enums.ActorRoleAdmin}.UserIDPtr()
	if ptr == nil || *ptr != id {
		t.Fatalf("unexpected ptr %v", ptr)
	}
}
