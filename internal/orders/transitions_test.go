package orders

import (
	"testing"

	"github.com/google/uuid"

	"github.com/farmlink/farmlink-backend/pkg/auth"
	"github.com/farmlink/farmlink-backend/pkg/db/models"
	"github.com/farmlink/farmlink-backend/pkg/enums"
	pkgerrors "github.com/farmlink/farmlink-backend/pkg/errors"
)

func TestCheckTransitionGraph(t *testing.T) {
	buyer := uuid.New()
	farmer := uuid.New()
	asFarmer := auth.Actor{UserID: farmer, Role: enums.ActorRoleFarmer}
	asBuyer := auth.Actor{UserID: buyer, Role: enums.ActorRoleBuyer}
	asAdmin := auth.Actor{UserID: uuid.New(), Role: enums.ActorRoleAdmin}
	otherFarmer := auth.Actor{UserID: uuid.New(), Role: enums.ActorRoleFarmer}

	allowed := map[edge]auth.Actor{
		{enums.OrderStatusPending, enums.OrderStatusAccepted}:         asFarmer,
		{enums.OrderStatusPending, enums.OrderStatusRejected}:         asFarmer,
		{enums.OrderStatusPending, enums.OrderStatusCancelled}:        asBuyer,
		{enums.OrderStatusAccepted, enums.OrderStatusPacked}:          asFarmer,
		{enums.OrderStatusPacked, enums.OrderStatusShipped}:           asFarmer,
		{enums.OrderStatusShipped, enums.OrderStatusOutForDelivery}:   asFarmer,
		{enums.OrderStatusOutForDelivery, enums.OrderStatusDelivered}: asFarmer,
		{enums.OrderStatusDelivered, enums.OrderStatusCompleted}:      asAdmin,
	}

	statuses := []enums.OrderStatus{
		enums.OrderStatusPending, enums.OrderStatusAccepted, enums.OrderStatusRejected,
		enums.OrderStatusPacked, enums.OrderStatusShipped, enums.OrderStatusOutForDelivery,
		enums.OrderStatusDelivered, enums.OrderStatusCompleted, enums.OrderStatusCancelled,
	}
	actors := []auth.Actor{asFarmer, asBuyer, asAdmin, otherFarmer, auth.SystemActor()}

	for _, from := range statuses {
		for _, to := range statuses {
			order := &models.Order{BuyerID: buyer, FarmerID: farmer, Status: from}
			for _, actor := range actors {
				err := CheckTransition(order, actor, to)
				want, isEdge := allowed[edge{from, to}]
				shouldPass := isEdge && (actor == want ||
					(from == enums.OrderStatusDelivered && actor.Role == enums.ActorRoleSystem))
				if shouldPass && err != nil {
					t.Fatalf("%s -> %s as %s: unexpected error %v", from, to, actor.Role, err)
				}
				if !shouldPass && !pkgerrors.IsCode(err, pkgerrors.CodeForbiddenTransition) {
					t.Fatalf("%s -> %s as %s: expected forbidden transition, got %v", from, to, actor.Role, err)
				}
			}
		}
	}
}

func TestTerminalStatesHaveNoOutgoingEdges(t *testing.T) {
	for e := range capabilities {
		if e.from.IsTerminal() {
			t.Fatalf("terminal status %s has outgoing edge to %s", e.from, e.to)
		}
	}
}

func TestCheckTransitionRejectsUnknownTarget(t *testing.T) {
	err := CheckTransition(&models.Order{Status: enums.OrderStatusPending}, auth.SystemActor(), "teleported")
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAllowedTargets(t *testing.T) {
	farmer := uuid.New()
	order := &models.Order{FarmerID: farmer, BuyerID: uuid.New(), Status: enums.OrderStatusPending}
	got := AllowedTargets(order, auth.Actor{UserID: farmer, Role: enums.ActorRoleFarmer})
	if len(got) != 2 || got[0] != enums.OrderStatusAccepted || got[1] != enums.OrderStatusRejected {
		t.Fatalf("unexpected targets %v", got)
	}
	if got := AllowedTargets(order, auth.Actor{UserID: uuid.New(), Role: enums.ActorRoleFarmer}); len(got) != 0 {
		t.Fatalf("non-owner should have no targets, got %v", got)
	}
}
