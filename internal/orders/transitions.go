package orders

import (
	"sort"

	"github.com/farmlink/farmlink-backend/pkg/auth"
	"github.com/farmlink/farmlink-backend/pkg/db/models"
	"github.com/farmlink/farmlink-backend/pkg/enums"
	pkgerrors "github.com/farmlink/farmlink-backend/pkg/errors"
)

type ownership int

const (
	ownerNone ownership = iota
	ownerFarmer
	ownerBuyer
)

type edge struct {
	from enums.OrderStatus
	to   enums.OrderStatus
}

type capability struct {
	roles []enums.ActorRole
	owner ownership
}

// capabilities is the only place that decides who may move an order where.
var capabilities = map[edge]capability{
	{enums.OrderStatusPending, enums.OrderStatusAccepted}:         {roles: []enums.ActorRole{enums.ActorRoleFarmer}, owner: ownerFarmer},
	{enums.OrderStatusPending, enums.OrderStatusRejected}:         {roles: []enums.ActorRole{enums.ActorRoleFarmer}, owner: ownerFarmer},
	{enums.OrderStatusPending, enums.OrderStatusCancelled}:        {roles: []enums.ActorRole{enums.ActorRoleBuyer}, owner: ownerBuyer},
	{enums.OrderStatusAccepted, enums.OrderStatusPacked}:          {roles: []enums.ActorRole{enums.ActorRoleFarmer}, owner: ownerFarmer},
	{enums.OrderStatusPacked, enums.OrderStatusShipped}:           {roles: []enums.ActorRole{enums.ActorRoleFarmer}, owner: ownerFarmer},
	{enums.OrderStatusShipped, enums.OrderStatusOutForDelivery}:   {roles: []enums.ActorRole{enums.ActorRoleFarmer}, owner: ownerFarmer},
	{enums.OrderStatusOutForDelivery, enums.OrderStatusDelivered}: {roles: []enums.ActorRole{enums.ActorRoleFarmer}, owner: ownerFarmer},
	{enums.OrderStatusDelivered, enums.OrderStatusCompleted}:      {roles: []enums.ActorRole{enums.ActorRoleAdmin, enums.ActorRoleSystem}, owner: ownerNone},
}

// CheckTransition returns FORBIDDEN_TRANSITION unless actor may move order
// from its current status to target.
func CheckTransition(order *models.Order, actor auth.Actor, target enums.OrderStatus) error {
	if !target.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid status %q", target)
	}
	details := map[string]any{
		"from": order.Status,
		"to":   target,
		"role": actor.Role,
	}
	capab, ok := capabilities[edge{order.Status, target}]
	if !ok {
		return pkgerrors.New(pkgerrors.CodeForbiddenTransition, "transition not allowed").
			WithDetails(withReason(details, "no such edge"))
	}
	if !capab.allows(order, actor) {
		return pkgerrors.New(pkgerrors.CodeForbiddenTransition, "transition not allowed").
			WithDetails(withReason(details, "actor not permitted"))
	}
	return nil
}

// AllowedTargets lists the statuses actor could move order to right now.
func AllowedTargets(order *models.Order, actor auth.Actor) []enums.OrderStatus {
	out := []enums.OrderStatus{}
	for e, capab := range capabilities {
		if e.from == order.Status && capab.allows(order, actor) {
			out = append(out, e.to)
		}
	}
	sortStatuses(out)
	return out
}

func (c capability) allows(order *models.Order, actor auth.Actor) bool {
	roleOK := false
	for _, r := range c.roles {
		if r == actor.Role {
			roleOK = true
			break
		}
	}
	if !roleOK {
		return false
	}
	switch c.owner {
	case ownerFarmer:
		return actor.UserID == order.FarmerID
	case ownerBuyer:
		return actor.UserID == order.BuyerID
	default:
		return true
	}
}

func withReason(details map[string]any, reason string) map[string]any {
	details["reason"] = reason
	return details
}

var statusRank = map[enums.OrderStatus]int{
	enums.OrderStatusPending:        0,
	enums.OrderStatusAccepted:       1,
	enums.OrderStatusPacked:         2,
	enums.OrderStatusShipped:        3,
	enums.OrderStatusOutForDelivery: 4,
	enums.OrderStatusDelivered:      5,
	enums.OrderStatusCompleted:      6,
	enums.OrderStatusRejected:       7,
	enums.OrderStatusCancelled:      8,
}

func sortStatuses(s []enums.OrderStatus) {
	sort.Slice(s, func(i, j int) bool { return statusRank[s[i]] < statusRank[s[j]] })
}
